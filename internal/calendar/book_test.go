package calendar

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calplan/internal/model"
	"calplan/internal/schedule"
)

type memStore struct {
	mu      sync.Mutex
	events  []model.Event
	saves   int
	failErr error
}

func (m *memStore) Load(context.Context) ([]model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return model.CloneEvents(m.events), nil
}

func (m *memStore) Save(_ context.Context, events []model.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	m.saves++
	m.events = model.CloneEvents(events)
	return nil
}

func sequentialIDs() schedule.IDFunc {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func newTestBook(t *testing.T, seed ...model.Event) (*Book, *memStore) {
	t.Helper()
	st := &memStore{events: seed}
	b := New(st, WithScheduler(schedule.New(schedule.WithIDFunc(sequentialIDs()))))
	require.NoError(t, b.Load(context.Background()))
	return b, st
}

func timed(id, title, date, start, end string) model.Event {
	return model.Event{ID: id, Title: title, Date: date, StartTime: start, EndTime: end}
}

func TestCreateExpandsAndPersists(t *testing.T) {
	b, st := newTestBook(t)

	created, err := b.Create(context.Background(), model.Event{
		Title: "Standup", Date: "2025-06-02", StartTime: "9:00 AM", EndTime: "9:15 AM",
		Recurrence:       model.RecurrenceWeekly,
		RecurrenceDetail: &model.RecurrenceDetail{WeeklyDays: []int{1}, EndDate: "2025-06-30"},
	})
	require.NoError(t, err)
	require.Len(t, created, 5)

	assert.Len(t, b.Events(), 5)
	assert.Equal(t, 1, st.saves)
	assert.Equal(t, b.Events(), st.events)
}

func TestCreateRejectsConflictAtomically(t *testing.T) {
	review := timed("r", "Review", "2025-06-16", "9:00 AM", "10:00 AM")
	b, st := newTestBook(t, review)

	_, err := b.Create(context.Background(), model.Event{
		Title: "Standup", Date: "2025-06-02", StartTime: "9:00 AM", EndTime: "9:15 AM",
		Recurrence:       model.RecurrenceWeekly,
		RecurrenceDetail: &model.RecurrenceDetail{WeeklyDays: []int{1}, EndDate: "2025-06-30"},
	})
	var ce *schedule.ConflictError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "2025-06-16", ce.Occurrence.Date)
	assert.Equal(t, "Review", ce.Conflicts[0].Title)

	assert.Equal(t, []model.Event{review}, b.Events())
	assert.Equal(t, 0, st.saves)
}

func TestCreateRejectsInvalid(t *testing.T) {
	b, _ := newTestBook(t)

	_, err := b.Create(context.Background(), model.Event{Title: "No times", Date: "2025-06-02"})
	var ve *schedule.ValidationError
	assert.True(t, errors.As(err, &ve))
	assert.Empty(t, b.Events())
}

func TestFailedSaveKeepsSnapshot(t *testing.T) {
	seed := timed("a", "Review", "2025-06-02", "9:00 AM", "10:00 AM")
	b, st := newTestBook(t, seed)
	st.failErr = errors.New("disk full")

	_, err := b.Create(context.Background(), timed("", "Lunch", "2025-06-02", "12:00 PM", "1:00 PM"))
	require.Error(t, err)
	assert.ErrorIs(t, err, st.failErr)

	_, err = b.Move(context.Background(), schedule.MoveOf(seed, "2025-06-03", ""), nil)
	require.Error(t, err)

	assert.Equal(t, []model.Event{seed}, b.Events())
}

func TestUpdate(t *testing.T) {
	a := timed("a", "Review", "2025-06-02", "9:00 AM", "10:00 AM")
	c := timed("c", "Lunch", "2025-06-02", "12:00 PM", "1:00 PM")
	b, _ := newTestBook(t, a, c)

	edited := a
	edited.ID = ""
	edited.Title = "Design review"
	edited.EndTime = "11:00 AM"
	got, err := b.Update(context.Background(), "a", edited)
	require.NoError(t, err)
	assert.Equal(t, "a", got.ID)

	stored, ok := b.Get("a")
	require.True(t, ok)
	assert.Equal(t, "Design review", stored.Title)
	assert.Equal(t, "11:00 AM", stored.EndTime)

	clash := stored
	clash.EndTime = "12:30 PM"
	_, err = b.Update(context.Background(), "a", clash)
	var ce *schedule.ConflictError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "Lunch", ce.Conflicts[0].Title)

	_, err = b.Update(context.Background(), "missing", stored)
	assert.ErrorIs(t, err, schedule.ErrEventNotFound)
}

func TestIDsStayUnique(t *testing.T) {
	a := timed("a", "Review", "2025-06-02", "9:00 AM", "10:00 AM")
	c := timed("b", "Lunch", "2025-06-02", "12:00 PM", "1:00 PM")
	b, st := newTestBook(t, a, c)

	t.Run("create with a taken id", func(t *testing.T) {
		_, err := b.Create(context.Background(), timed("a", "Gym", "2025-06-03", "7:00 AM", "8:00 AM"))
		var ve *schedule.ValidationError
		require.True(t, errors.As(err, &ve))
		assert.Equal(t, "id", ve.Field)
		assert.Len(t, b.Events(), 2)
		assert.Equal(t, 0, st.saves)
	})

	t.Run("update to another record's id", func(t *testing.T) {
		_, err := b.Update(context.Background(), "a", timed("b", "Review", "2025-06-02", "9:00 AM", "10:00 AM"))
		var ve *schedule.ValidationError
		require.True(t, errors.As(err, &ve))
		assert.Equal(t, "id", ve.Field)
		assert.Equal(t, []model.Event{a, c}, b.Events())
	})

	t.Run("update with the same id", func(t *testing.T) {
		edited := a
		edited.Title = "Design review"
		got, err := b.Update(context.Background(), "a", edited)
		require.NoError(t, err)
		assert.Equal(t, "a", got.ID)
	})

	seen := map[string]bool{}
	for _, ev := range b.Events() {
		assert.False(t, seen[ev.ID], "duplicate id %s", ev.ID)
		seen[ev.ID] = true
	}
}

func TestDeleteRemovesOneOccurrence(t *testing.T) {
	b, _ := newTestBook(t)
	created, err := b.Create(context.Background(), model.Event{
		Title: "Gym", Date: "2025-06-02", StartTime: "7:00 AM", EndTime: "8:00 AM",
		Recurrence: model.RecurrenceDaily, RecurrenceDetail: &model.RecurrenceDetail{EndDate: "2025-06-04"},
	})
	require.NoError(t, err)
	require.Len(t, created, 3)

	require.NoError(t, b.Delete(context.Background(), created[1].ID))
	events := b.Events()
	require.Len(t, events, 2)
	assert.Equal(t, created[0].ID, events[0].ID)
	assert.Equal(t, created[2].ID, events[1].ID)

	assert.ErrorIs(t, b.Delete(context.Background(), created[1].ID), schedule.ErrEventNotFound)
}

func TestMoveDetachesWithConfirmation(t *testing.T) {
	b, st := newTestBook(t)
	created, err := b.Create(context.Background(), model.Event{
		Title: "Gym", Date: "2025-06-02", StartTime: "7:00 AM", EndTime: "8:00 AM",
		Recurrence: model.RecurrenceDaily, RecurrenceDetail: &model.RecurrenceDetail{EndDate: "2025-06-04"},
	})
	require.NoError(t, err)

	plan, err := b.Move(context.Background(), schedule.MoveOf(created[0], "2025-06-10", "6:00 PM"), func(string) bool { return true })
	require.NoError(t, err)
	assert.Equal(t, schedule.StateDetached, plan.State)

	events := b.Events()
	require.Len(t, events, 3)
	last := events[2]
	assert.Equal(t, "2025-06-10", last.Date)
	assert.Equal(t, "6:00 PM", last.StartTime)
	assert.Equal(t, model.RecurrenceNone, last.Recurrence)
	assert.Equal(t, 2, st.saves)
}

func TestMoveDeclinedDoesNotSave(t *testing.T) {
	b, st := newTestBook(t)
	created, err := b.Create(context.Background(), model.Event{
		Title: "Gym", Date: "2025-06-02", StartTime: "7:00 AM", EndTime: "8:00 AM",
		Recurrence: model.RecurrenceDaily, RecurrenceDetail: &model.RecurrenceDetail{EndDate: "2025-06-04"},
	})
	require.NoError(t, err)
	before := b.Events()

	plan, err := b.Move(context.Background(), schedule.MoveOf(created[0], "2025-06-10", ""), nil)
	require.NoError(t, err)
	assert.Equal(t, schedule.StateAborted, plan.State)
	assert.Equal(t, before, b.Events())
	assert.Equal(t, 1, st.saves)
}

func TestProposeCommit(t *testing.T) {
	b, _ := newTestBook(t)
	created, err := b.Create(context.Background(), model.Event{
		Title: "Gym", Date: "2025-06-02", StartTime: "7:00 AM", EndTime: "8:00 AM",
		Recurrence: model.RecurrenceDaily, RecurrenceDetail: &model.RecurrenceDetail{EndDate: "2025-06-03"},
	})
	require.NoError(t, err)

	p, err := b.Propose(schedule.MoveOf(created[0], "2025-06-10", ""))
	require.NoError(t, err)
	require.Equal(t, schedule.StateRequiresConfirmation, p.State)
	assert.ErrorIs(t, b.Commit(context.Background(), p), schedule.ErrNotAwaitingConfirmation)

	require.NoError(t, p.Resolve(true))
	require.NoError(t, b.Commit(context.Background(), p))
	assert.Len(t, b.OnDate("2025-06-10"), 1)
	assert.Empty(t, b.OnDate("2025-06-02"))
}

func TestCommitStaleProposal(t *testing.T) {
	a := timed("a", "Review", "2025-06-02", "9:00 AM", "10:00 AM")
	b, _ := newTestBook(t, a)

	p, err := b.Propose(schedule.MoveOf(a, "2025-06-03", ""))
	require.NoError(t, err)
	require.Equal(t, schedule.StateAppliedInPlace, p.State)

	_, err = b.Create(context.Background(), timed("", "Lunch", "2025-06-05", "12:00 PM", "1:00 PM"))
	require.NoError(t, err)

	assert.ErrorIs(t, b.Commit(context.Background(), p), ErrStaleProposal)
	got, _ := b.Get("a")
	assert.Equal(t, "2025-06-02", got.Date)
}

func TestOnDateOrdering(t *testing.T) {
	b, _ := newTestBook(t,
		timed("late", "Late", "2025-06-02", "3:00 PM", "4:00 PM"),
		model.Event{ID: "allday", Title: "Holiday", Date: "2025-06-02"},
		timed("early", "Early", "2025-06-02", "8:00 AM", "9:00 AM"),
		timed("noon", "Noon", "2025-06-02", "12:00 PM", "12:30 PM"),
		timed("other", "Other", "2025-06-03", "1:00 AM", "2:00 AM"),
	)

	var ids []string
	for _, ev := range b.OnDate("2025-06-02") {
		ids = append(ids, ev.ID)
	}
	assert.Equal(t, []string{"allday", "early", "noon", "late"}, ids)
}

func TestEventsReturnsCopy(t *testing.T) {
	b, _ := newTestBook(t, model.Event{
		ID: "a", Title: "Weekly", Date: "2025-06-02", Recurrence: model.RecurrenceWeekly,
		RecurrenceDetail: &model.RecurrenceDetail{EndDate: "2025-06-30", WeeklyDays: []int{1}},
	})

	events := b.Events()
	events[0].Title = "changed"
	events[0].RecurrenceDetail.WeeklyDays[0] = 5

	got, ok := b.Get("a")
	require.True(t, ok)
	assert.Equal(t, "Weekly", got.Title)
	assert.Equal(t, model.Weekdays{1}, got.RecurrenceDetail.WeeklyDays)
}
