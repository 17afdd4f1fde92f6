package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"calplan/internal/model"
)

// JSONFile keeps all events in a single JSON array.
type JSONFile struct {
	path string
	mu   sync.Mutex
}

func NewJSONFile(path string) *JSONFile {
	return &JSONFile{path: path}
}

func (s *JSONFile) Path() string { return s.path }

// Load returns an empty list when the file does not exist yet. A file that
// fails to decode is moved aside to <path>.corrupt so the next Save starts
// clean.
func (s *JSONFile) Load(ctx context.Context) ([]model.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return []model.Event{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read events %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return []model.Event{}, nil
	}

	var events []model.Event
	if err := json.Unmarshal(data, &events); err != nil {
		backup := s.path + ".corrupt"
		_ = os.Rename(s.path, backup)
		return nil, fmt.Errorf("corrupt JSON in %s (backed up to %s): %w", s.path, backup, err)
	}
	if events == nil {
		events = []model.Event{}
	}
	return events, nil
}

func (s *JSONFile) Save(ctx context.Context, events []model.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if events == nil {
		events = []model.Event{}
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create store dir: %w", err)
		}
	}

	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal events: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write temp events file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace events file: %w", err)
	}
	return nil
}
