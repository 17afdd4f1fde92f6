package schedule

import (
	"errors"
	"fmt"

	"calplan/internal/model"
)

var (
	// ErrEventNotFound is returned when a moved or edited event cannot be
	// matched in the snapshot.
	ErrEventNotFound = errors.New("event not found")
	// ErrNotAwaitingConfirmation is returned by Plan.Resolve when the plan
	// is in any state other than RequiresConfirmation.
	ErrNotAwaitingConfirmation = errors.New("plan is not awaiting confirmation")
)

// ValidationError reports input that must be fixed before the engine runs.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// ConflictError is the soft error raised when a candidate occurrence overlaps
// existing events. Callers must treat it as a hard block on the operation.
type ConflictError struct {
	// Occurrence is the candidate that was rejected.
	Occurrence model.Event
	// Conflicts lists every existing event that overlaps the candidate.
	Conflicts []model.Event
}

func (e *ConflictError) Error() string {
	if len(e.Conflicts) == 0 {
		return "time conflict"
	}
	first := e.Conflicts[0]
	return fmt.Sprintf("time conflict on %s with %q (%s - %s) and %d other(s)",
		e.Occurrence.Date, first.Title, first.StartTime, first.EndTime, len(e.Conflicts)-1)
}
