// Package store persists the event list. Both backends save the whole list
// at once; the calendar book never writes partial updates.
package store

import (
	"context"
	"fmt"

	"calplan/internal/model"
)

type Store interface {
	Load(ctx context.Context) ([]model.Event, error)
	Save(ctx context.Context, events []model.Event) error
}

const (
	DriverJSON   = "json"
	DriverSQLite = "sqlite"
)

// Open returns the backend named by driver. SQLite stores hold a database
// handle and must be closed by the caller through Close.
func Open(driver, path string) (Store, error) {
	switch driver {
	case "", DriverJSON:
		return NewJSONFile(path), nil
	case DriverSQLite:
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}

// Close releases resources held by s, if any.
func Close(s Store) error {
	if c, ok := s.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
