// Package calendar owns the event list. Every write builds a new snapshot
// through the scheduling engine, persists it, and only then swaps it in, so a
// failed save leaves the previous snapshot in place.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	appLog "calplan/internal/log"
	"calplan/internal/model"
	"calplan/internal/schedule"
	"calplan/internal/store"
	"calplan/internal/timeofday"
)

// ErrStaleProposal is returned by Commit when the book changed after the
// proposal was made. Callers re-propose against the current snapshot.
var ErrStaleProposal = errors.New("calendar changed since the move was proposed")

// Book is the single owner of the event list.
type Book struct {
	mu      sync.RWMutex
	events  []model.Event
	version uint64

	store          store.Store
	sched          *schedule.Scheduler
	fuzzyThreshold float32
}

// Option configures a Book.
type Option func(*Book)

// WithScheduler replaces the default scheduler, e.g. to inject IDs in tests.
func WithScheduler(s *schedule.Scheduler) Option {
	return func(b *Book) {
		if s != nil {
			b.sched = s
		}
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler similarity for a fuzzy
// title match. Values outside (0, 1] are ignored.
func WithFuzzyThreshold(v float32) Option {
	return func(b *Book) {
		if v > 0 && v <= 1 {
			b.fuzzyThreshold = v
		}
	}
}

// New returns an empty Book backed by st. Call Load to read stored events.
func New(st store.Store, opts ...Option) *Book {
	b := &Book{
		events:         []model.Event{},
		store:          st,
		sched:          schedule.New(),
		fuzzyThreshold: defaultFuzzyThreshold,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Load replaces the snapshot with the store's contents.
func (b *Book) Load(ctx context.Context) error {
	events, err := b.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load events: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = events
	b.version++
	appLog.Info("calendar loaded", "events", len(events))
	return nil
}

// Events returns a copy of the current snapshot in storage order.
func (b *Book) Events() []model.Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return model.CloneEvents(b.events)
}

// Get returns the first event whose key matches.
func (b *Book) Get(key string) (model.Event, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if i := indexByKey(b.events, key); i >= 0 {
		return b.events[i].Clone(), true
	}
	return model.Event{}, false
}

// OnDate returns the events on date ordered by start time. Untimed events
// come first; ties keep storage order.
func (b *Book) OnDate(date string) []model.Event {
	b.mu.RLock()
	var out []model.Event
	for _, ev := range b.events {
		if ev.Date == date {
			out = append(out, ev.Clone())
		}
	}
	b.mu.RUnlock()

	sortByStart(out)
	return out
}

// Create validates ev, expands it under its recurrence rule and appends every
// occurrence. Nothing is stored if any occurrence conflicts with an existing
// event.
func (b *Book) Create(ctx context.Context, ev model.Event) ([]model.Event, error) {
	if err := schedule.Validate(ev); err != nil {
		return nil, err
	}
	occurrences, err := b.sched.Expand(ev)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := checkIDsFree(occurrences, b.events); err != nil {
		return nil, err
	}
	if err := schedule.CheckOccurrences(occurrences, b.events, ""); err != nil {
		return nil, err
	}

	next := make([]model.Event, 0, len(b.events)+len(occurrences))
	next = append(next, b.events...)
	next = append(next, occurrences...)
	if err := b.commitLocked(ctx, next); err != nil {
		return nil, err
	}

	appLog.Info("event created", "title", ev.Title, "date", ev.Date, "recurrence", string(ev.Recurrence), "occurrences", len(occurrences))
	return model.CloneEvents(occurrences), nil
}

// Update replaces the single record identified by key. Recurrence fields are
// stored as given; siblings of a recurring occurrence are not touched and the
// record is not re-expanded.
func (b *Book) Update(ctx context.Context, key string, ev model.Event) (model.Event, error) {
	if err := schedule.Validate(ev); err != nil {
		return model.Event{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	i := indexByKey(b.events, key)
	if i < 0 {
		return model.Event{}, fmt.Errorf("update %q: %w", key, schedule.ErrEventNotFound)
	}
	// The record keeps its ID for its whole lifetime.
	if ev.ID != "" && ev.ID != b.events[i].ID {
		return model.Event{}, &schedule.ValidationError{Field: "id", Reason: "cannot change the id of an existing event"}
	}
	ev.ID = b.events[i].ID

	conflicts, err := schedule.FindConflicts(ev.Date, ev.StartTime, ev.EndTime, b.events, b.events[i].Key())
	if err != nil {
		return model.Event{}, err
	}
	if len(conflicts) > 0 {
		return model.Event{}, &schedule.ConflictError{Occurrence: ev.Clone(), Conflicts: conflicts}
	}

	next := model.CloneEvents(b.events)
	next[i] = ev.Clone()
	if err := b.commitLocked(ctx, next); err != nil {
		return model.Event{}, err
	}

	appLog.Info("event updated", "key", key, "title", ev.Title, "date", ev.Date)
	return ev.Clone(), nil
}

// Delete removes exactly one record. Other occurrences of the same series
// stay.
func (b *Book) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	i := indexByKey(b.events, key)
	if i < 0 {
		return fmt.Errorf("delete %q: %w", key, schedule.ErrEventNotFound)
	}

	next := make([]model.Event, 0, len(b.events)-1)
	next = append(next, b.events[:i]...)
	next = append(next, b.events[i+1:]...)
	if err := b.commitLocked(ctx, next); err != nil {
		return err
	}

	appLog.Info("event deleted", "key", key)
	return nil
}

// Move reschedules one occurrence. confirm is asked at most once, only for a
// recurring occurrence whose move is otherwise valid.
func (b *Book) Move(ctx context.Context, mv schedule.Move, confirm schedule.ConfirmFunc) (*schedule.Plan, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	plan, err := b.sched.Reschedule(b.events, mv, confirm)
	if err != nil {
		return nil, err
	}
	if err := b.applyLocked(ctx, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// Proposal is a move planned against a specific snapshot version.
type Proposal struct {
	*schedule.Plan
	version uint64
}

// Propose plans a move without changing the book. A plan that requires
// confirmation is answered with Resolve and then passed to Commit.
func (b *Book) Propose(mv schedule.Move) (*Proposal, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	plan, err := b.sched.Propose(b.events, mv)
	if err != nil {
		return nil, err
	}
	return &Proposal{Plan: plan, version: b.version}, nil
}

// Commit stores the outcome of a resolved proposal. Plans that did not change
// anything are accepted without touching the store.
func (b *Book) Commit(ctx context.Context, p *Proposal) error {
	if p == nil || p.Plan == nil {
		return errors.New("nil proposal")
	}
	if p.State == schedule.StateRequiresConfirmation {
		return fmt.Errorf("commit %q: %w", p.Move.Event.Title, schedule.ErrNotAwaitingConfirmation)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if !p.Changed() {
		return nil
	}
	if p.version != b.version {
		return ErrStaleProposal
	}
	return b.applyLocked(ctx, p.Plan)
}

func (b *Book) applyLocked(ctx context.Context, plan *schedule.Plan) error {
	if !plan.Changed() {
		appLog.Debug("move not applied", "title", plan.Move.Event.Title, "state", string(plan.State))
		return nil
	}
	if err := b.commitLocked(ctx, plan.Events); err != nil {
		return err
	}
	appLog.Info("event moved",
		"title", plan.Move.Event.Title,
		"state", string(plan.State),
		"from", plan.Move.OriginalDate,
		"to", plan.Move.TargetDate,
		"start", plan.NewStart,
	)
	return nil
}

// commitLocked persists next and swaps it in. b.mu must be held for writing.
func (b *Book) commitLocked(ctx context.Context, next []model.Event) error {
	if err := b.store.Save(ctx, next); err != nil {
		appLog.Error("failed to save events", err, "events", len(next))
		return fmt.Errorf("save events: %w", err)
	}
	b.events = next
	b.version++
	return nil
}

// checkIDsFree rejects occurrences whose key is already taken, either by a
// stored event or by an earlier occurrence of the same batch.
func checkIDsFree(occurrences, events []model.Event) error {
	taken := make(map[string]struct{}, len(events)+len(occurrences))
	for _, ev := range events {
		taken[ev.Key()] = struct{}{}
	}
	for _, occ := range occurrences {
		k := occ.Key()
		if _, dup := taken[k]; dup {
			return &schedule.ValidationError{Field: "id", Reason: fmt.Sprintf("id %q is already in use", k)}
		}
		taken[k] = struct{}{}
	}
	return nil
}

func indexByKey(events []model.Event, key string) int {
	for i, ev := range events {
		if ev.Key() == key {
			return i
		}
	}
	return -1
}

// sortByStart orders untimed events first, then by parsed start minute.
// Unparseable start times sort with the untimed ones.
func sortByStart(events []model.Event) {
	minute := func(ev model.Event) int {
		if ev.StartTime == "" {
			return -1
		}
		m, err := timeofday.Parse(ev.StartTime)
		if err != nil {
			return -1
		}
		return m
	}
	sort.SliceStable(events, func(i, j int) bool {
		return minute(events[i]) < minute(events[j])
	})
}
