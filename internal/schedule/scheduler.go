// Package schedule is the event scheduling engine: recurrence expansion,
// conflict detection and reschedule planning over immutable snapshots of
// the event list.
package schedule

import "github.com/google/uuid"

// IDFunc generates a fresh, unique event ID.
type IDFunc func() string

// Scheduler bundles the engine operations that need to mint event IDs.
// The zero value is not usable; construct one with New.
type Scheduler struct {
	newID IDFunc
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithIDFunc overrides the default UUIDv4 generator.
func WithIDFunc(fn IDFunc) Option {
	return func(s *Scheduler) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// New returns a Scheduler.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{newID: uuid.NewString}
	for _, opt := range opts {
		opt(s)
	}
	return s
}
