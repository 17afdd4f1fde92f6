package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"calplan/internal/model"
)

// SQLite stores one row per event. The position column preserves list order,
// which detach relies on (the detached occurrence is appended at the end).
type SQLite struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &SQLite{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		position INTEGER PRIMARY KEY,
		id TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL,
		date TEXT NOT NULL,
		start_time TEXT NOT NULL DEFAULT '',
		end_time TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		color TEXT NOT NULL DEFAULT '',
		recurrence TEXT NOT NULL DEFAULT '',
		recurrence_detail TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_events_date ON events(date);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("init sqlite schema: %w", err)
	}
	return nil
}

func (s *SQLite) Load(ctx context.Context) ([]model.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, date, start_time, end_time, description, color, recurrence, recurrence_detail
		FROM events ORDER BY position
	`)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []model.Event{}
	for rows.Next() {
		var (
			ev     model.Event
			color  string
			rec    string
			detail sql.NullString
		)
		if err := rows.Scan(&ev.ID, &ev.Title, &ev.Date, &ev.StartTime, &ev.EndTime,
			&ev.Description, &color, &rec, &detail); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Color = model.Color(color)
		ev.Recurrence = model.Recurrence(rec)
		if detail.Valid && detail.String != "" {
			var d model.RecurrenceDetail
			if err := json.Unmarshal([]byte(detail.String), &d); err != nil {
				return nil, fmt.Errorf("decode recurrence detail for %q: %w", ev.Title, err)
			}
			ev.RecurrenceDetail = &d
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// Save replaces every row in one transaction.
func (s *SQLite) Save(ctx context.Context, events []model.Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM events"); err != nil {
		return fmt.Errorf("clear events: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (position, id, title, date, start_time, end_time, description, color, recurrence, recurrence_detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, ev := range events {
		var detail sql.NullString
		if ev.RecurrenceDetail != nil {
			b, err := json.Marshal(ev.RecurrenceDetail)
			if err != nil {
				return fmt.Errorf("encode recurrence detail: %w", err)
			}
			detail = sql.NullString{String: string(b), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, i, ev.ID, ev.Title, ev.Date, ev.StartTime, ev.EndTime,
			ev.Description, string(ev.Color), string(ev.Recurrence), detail); err != nil {
			return fmt.Errorf("insert event %q: %w", ev.Title, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit events: %w", err)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
