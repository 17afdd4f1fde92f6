package schedule

import (
	"fmt"

	"calplan/internal/model"
	"calplan/internal/timeofday"
)

// State is the position of a move in the reschedule state machine.
type State string

const (
	StateProposed             State = "proposed"
	StateRejectedNoop         State = "rejected_noop"
	StateRejectedConflict     State = "rejected_conflict"
	StateRequiresConfirmation State = "requires_confirmation"
	StateAborted              State = "aborted"
	StateDetached             State = "detached"
	StateAppliedInPlace       State = "applied_in_place"
)

// defaultMoveDuration is used when the dragged event has no end time.
const defaultMoveDuration = 60

// ConfirmFunc asks whether a recurring occurrence may be detached from its
// series. Anything but true is a decline.
type ConfirmFunc func(title string) bool

// Move describes a drag (or equivalent programmatic move) of one occurrence.
type Move struct {
	// Event is the dragged occurrence as captured at drag start.
	Event model.Event

	// Original window captured at drag start. Empty fields default to the
	// corresponding fields of Event.
	OriginalDate  string
	OriginalStart string
	OriginalEnd   string

	// TargetDate is the drop date. TargetStart is the drop slot; empty keeps
	// the original start time (a month-view drop carries no time).
	TargetDate  string
	TargetStart string
}

// MoveOf captures ev's current window as the original window of a move.
func MoveOf(ev model.Event, targetDate, targetStart string) Move {
	return Move{
		Event:         ev,
		OriginalDate:  ev.Date,
		OriginalStart: ev.StartTime,
		OriginalEnd:   ev.EndTime,
		TargetDate:    targetDate,
		TargetStart:   targetStart,
	}
}

func (m Move) withDefaults() Move {
	if m.OriginalDate == "" {
		m.OriginalDate = m.Event.Date
	}
	if m.OriginalStart == "" {
		m.OriginalStart = m.Event.StartTime
	}
	if m.OriginalEnd == "" {
		m.OriginalEnd = m.Event.EndTime
	}
	return m
}

// DraggedKey is the identity of the dragged event. Legacy records without an
// ID are keyed by their title, original date and original start.
func (m Move) DraggedKey() string {
	m = m.withDefaults()
	if m.Event.ID != "" {
		return m.Event.ID
	}
	return model.LegacyKey(m.Event.Title, m.OriginalDate, m.OriginalStart)
}

// Plan is the outcome of proposing a move. Events always holds a complete
// snapshot: the input unchanged for rejected, aborted and pending plans, or
// the new snapshot once the move has been applied.
type Plan struct {
	State State
	Move  Move

	NewStart string
	NewEnd   string

	// Conflicts is set for StateRejectedConflict; the first entry is the one
	// reported to the user.
	Conflicts []model.Event

	Events []model.Event

	// Updated is the moved record for StateAppliedInPlace.
	Updated *model.Event
	// Created and Removed are set for StateDetached.
	Created *model.Event
	Removed *model.Event

	index int
	newID IDFunc
}

// Changed reports whether the plan produced a new snapshot.
func (p *Plan) Changed() bool {
	return p.State == StateDetached || p.State == StateAppliedInPlace
}

// Propose runs the move through the no-op, conflict and recurrence checks.
//
// A recurring occurrence stops in StateRequiresConfirmation; the caller
// answers with Resolve. Any failure while matching the dragged event or
// computing its new window returns an error and no plan, leaving the caller's
// snapshot untouched.
func (s *Scheduler) Propose(events []model.Event, mv Move) (*Plan, error) {
	mv = mv.withDefaults()
	plan := &Plan{State: StateProposed, Move: mv, Events: events, index: -1, newID: s.newID}

	if _, err := ParseDate(mv.TargetDate); err != nil {
		return nil, invalid("targetDate", "must be yyyy-MM-dd")
	}

	newStart, newEnd, err := movedWindow(mv)
	if err != nil {
		return nil, err
	}
	plan.NewStart, plan.NewEnd = newStart, newEnd

	origStart := mv.OriginalStart
	if origStart != "" {
		if origStart, err = timeofday.Canonical(origStart); err != nil {
			return nil, err
		}
	}
	if mv.TargetDate == mv.OriginalDate && newStart == origStart {
		plan.State = StateRejectedNoop
		return plan, nil
	}

	key := mv.DraggedKey()
	plan.index = indexOf(events, key, mv.OriginalDate)
	if plan.index < 0 {
		return nil, fmt.Errorf("move %q on %s: %w", mv.Event.Title, mv.OriginalDate, ErrEventNotFound)
	}

	conflicts, err := FindConflicts(mv.TargetDate, newStart, newEnd, events, key)
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		plan.State = StateRejectedConflict
		plan.Conflicts = conflicts
		return plan, nil
	}

	if events[plan.index].IsRecurring() {
		plan.State = StateRequiresConfirmation
		return plan, nil
	}

	next := model.CloneEvents(events)
	moved := &next[plan.index]
	moved.Date = mv.TargetDate
	moved.StartTime = newStart
	moved.EndTime = newEnd

	updated := moved.Clone()
	plan.Updated = &updated
	plan.Events = next
	plan.State = StateAppliedInPlace
	return plan, nil
}

// Resolve answers a pending confirmation. Confirming detaches the dragged
// occurrence into a standalone event at the target slot; declining aborts
// the move with the snapshot unchanged.
func (p *Plan) Resolve(confirmed bool) error {
	if p.State != StateRequiresConfirmation {
		return ErrNotAwaitingConfirmation
	}
	if !confirmed {
		p.State = StateAborted
		return nil
	}

	removed := p.Events[p.index].Clone()
	created := removed.Clone()
	created.ID = p.newID()
	created.Date = p.Move.TargetDate
	created.StartTime = p.NewStart
	created.EndTime = p.NewEnd
	created.Recurrence = model.RecurrenceNone
	created.RecurrenceDetail = nil

	next := make([]model.Event, 0, len(p.Events))
	for i, ev := range p.Events {
		if i == p.index {
			continue
		}
		next = append(next, ev.Clone())
	}
	next = append(next, created)

	p.Events = next
	p.Removed = &removed
	p.Created = &created
	p.State = StateDetached
	return nil
}

// Reschedule proposes the move and, when the occurrence is recurring, asks
// confirm exactly once. A nil confirm declines.
func (s *Scheduler) Reschedule(events []model.Event, mv Move, confirm ConfirmFunc) (*Plan, error) {
	plan, err := s.Propose(events, mv)
	if err != nil {
		return nil, err
	}
	if plan.State != StateRequiresConfirmation {
		return plan, nil
	}

	ok := false
	if confirm != nil {
		ok = confirm(events[plan.index].Title)
	}
	if err := plan.Resolve(ok); err != nil {
		return nil, err
	}
	return plan, nil
}

// movedWindow computes the new start and end, keeping the original duration
// (or 60 minutes when there was no end time).
func movedWindow(mv Move) (string, string, error) {
	start := mv.TargetStart
	if start == "" {
		start = mv.OriginalStart
	}
	if start == "" {
		return "", mv.OriginalEnd, nil
	}
	startMin, err := timeofday.Parse(start)
	if err != nil {
		return "", "", err
	}

	duration := defaultMoveDuration
	if mv.OriginalEnd != "" && mv.OriginalStart != "" {
		if duration, err = timeofday.Duration(mv.OriginalStart, mv.OriginalEnd); err != nil {
			return "", "", err
		}
		if duration <= 0 {
			return "", "", invalid("endTime", "original end is not after original start")
		}
	}
	if startMin+duration >= timeofday.MinutesPerDay {
		return "", "", invalid("targetStart", "moved event would run past midnight")
	}
	return timeofday.Format(startMin), timeofday.Format(startMin + duration), nil
}

// indexOf finds the event with the given key on date.
func indexOf(events []model.Event, key, date string) int {
	for i, ev := range events {
		if ev.Key() == key && ev.Date == date {
			return i
		}
	}
	return -1
}
