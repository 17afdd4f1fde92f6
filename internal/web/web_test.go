package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calplan/internal/calendar"
	"calplan/internal/config"
	"calplan/internal/model"
	"calplan/internal/schedule"
	"calplan/internal/store"
)

type testServer struct {
	*httptest.Server
	book *calendar.Book
}

func newTestServer(t *testing.T, mutate func(*config.Config)) *testServer {
	t.Helper()
	cfg := config.DefaultConfig()
	if mutate != nil {
		mutate(cfg)
	}

	n := 0
	sched := schedule.New(schedule.WithIDFunc(func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}))
	book := calendar.New(store.NewJSONFile(filepath.Join(t.TempDir(), "events.json")), calendar.WithScheduler(sched))
	require.NoError(t, book.Load(context.Background()))

	srv := httptest.NewServer(NewServer(cfg, book).Handler())
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, book: book}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, ts.URL+path, rdr)
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

func TestHealthAndBasicAuth(t *testing.T) {
	ts := newTestServer(t, func(c *config.Config) {
		c.BasicAuth = &config.BasicAuthConfig{Username: "me", Password: "pw"}
	})

	resp, body := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))

	resp, _ = ts.do(t, http.MethodGet, "/api/events", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/events", nil)
	require.NoError(t, err)
	req.SetBasicAuth("me", "pw")
	authed, err := ts.Client().Do(req)
	require.NoError(t, err)
	authed.Body.Close()
	assert.Equal(t, http.StatusOK, authed.StatusCode)
}

func TestCreateListAndConflict(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, body := ts.do(t, http.MethodPost, "/api/events", model.Event{
		Title: "Review", Date: "2025-06-02", StartTime: "9:00 AM", EndTime: "10:00 AM", Color: model.ColorBlue,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	created := decode[eventsResponse](t, body)
	require.Len(t, created.Events, 1)
	assert.Equal(t, "id-1", created.Events[0].ID)

	resp, body = ts.do(t, http.MethodPost, "/api/events", model.Event{
		Title: "Clash", Date: "2025-06-02", StartTime: "9:30 AM", EndTime: "9:45 AM",
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	conflict := decode[errorResponse](t, body)
	require.Len(t, conflict.Conflicts, 1)
	assert.Equal(t, "Review", conflict.Conflicts[0].Title)

	resp, body = ts.do(t, http.MethodGet, "/api/events?q=rev&colors=blue", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[eventsResponse](t, body).Events, 1)

	resp, body = ts.do(t, http.MethodGet, "/api/events?colors=red", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[eventsResponse](t, body).Events)

	resp, _ = ts.do(t, http.MethodGet, "/api/events?colors=purple", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodGet, "/api/events?date=June", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateValidationAndDefaultEndDate(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, body := ts.do(t, http.MethodPost, "/api/events", model.Event{Title: "No times", Date: "2025-06-02"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "startTime", decode[errorResponse](t, body).Field)

	resp, _ = ts.do(t, http.MethodPost, "/api/events", map[string]any{"title": "x", "bogus": true})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = ts.do(t, http.MethodPost, "/api/events", model.Event{
		Title: "Standup", Date: "2025-06-02", StartTime: "9:00 AM", EndTime: "9:15 AM",
		Recurrence: model.RecurrenceWeekly,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	events := decode[eventsResponse](t, body).Events
	require.Len(t, events, 27)
	assert.Equal(t, "2025-12-01", events[len(events)-1].Date)
	assert.Equal(t, "2025-12-02", events[0].RecurrenceDetail.EndDate)
}

func TestUpdateAndDelete(t *testing.T) {
	ts := newTestServer(t, nil)
	_, err := ts.book.Create(context.Background(), model.Event{Title: "Review", Date: "2025-06-02", StartTime: "9:00 AM", EndTime: "10:00 AM"})
	require.NoError(t, err)

	resp, body := ts.do(t, http.MethodPut, "/api/events/id-1", model.Event{
		Title: "Review v2", Date: "2025-06-02", StartTime: "9:00 AM", EndTime: "10:30 AM",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, "Review v2", decode[model.Event](t, body).Title)

	resp, body = ts.do(t, http.MethodPut, "/api/events/id-1", model.Event{
		Title: "Review v2", Date: "2025-06-02", StartTime: "10:00 AM", EndTime: "9:00 AM",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "endTime", decode[errorResponse](t, body).Field)

	resp, body = ts.do(t, http.MethodGet, "/api/events/id-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "10:30 AM", decode[model.Event](t, body).EndTime)

	resp, body = ts.do(t, http.MethodPost, "/api/events", model.Event{
		ID: "id-1", Title: "Copy", Date: "2025-06-03", StartTime: "9:00 AM", EndTime: "10:00 AM",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode, string(body))
	assert.Equal(t, "id", decode[errorResponse](t, body).Field)

	_, err = ts.book.Create(context.Background(), model.Event{Title: "Lunch", Date: "2025-06-04", StartTime: "12:00 PM", EndTime: "1:00 PM"})
	require.NoError(t, err)
	resp, body = ts.do(t, http.MethodPut, "/api/events/id-1", model.Event{
		ID: "id-2", Title: "Review v3", Date: "2025-06-02", StartTime: "9:00 AM", EndTime: "10:30 AM",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode, string(body))
	assert.Equal(t, "id", decode[errorResponse](t, body).Field)
	assert.Len(t, ts.book.Events(), 2)
	lunch, ok := ts.book.Get("id-2")
	require.True(t, ok)
	assert.Equal(t, "Lunch", lunch.Title)

	resp, _ = ts.do(t, http.MethodDelete, "/api/events/id-1", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodDelete, "/api/events/id-1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodGet, "/api/events/id-1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMoveTwoPhaseDetach(t *testing.T) {
	ts := newTestServer(t, nil)
	created, err := ts.book.Create(context.Background(), model.Event{
		Title: "Gym", Date: "2025-06-02", StartTime: "7:00 AM", EndTime: "8:00 AM",
		Recurrence: model.RecurrenceDaily, RecurrenceDetail: &model.RecurrenceDetail{EndDate: "2025-06-04"},
	})
	require.NoError(t, err)
	target := created[1]

	move := moveRequest{TargetDate: "2025-06-10", TargetStart: "6:00 PM"}
	resp, body := ts.do(t, http.MethodPost, "/api/events/"+target.ID+"/move", move)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	pending := decode[moveResponse](t, body)
	assert.Equal(t, schedule.StateRequiresConfirmation, pending.State)
	assert.Equal(t, "Gym", pending.Title)
	assert.Len(t, ts.book.Events(), 3)

	no := false
	move.ConfirmDetach = &no
	resp, body = ts.do(t, http.MethodPost, "/api/events/"+target.ID+"/move", move)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, schedule.StateAborted, decode[moveResponse](t, body).State)

	yes := true
	move.ConfirmDetach = &yes
	resp, body = ts.do(t, http.MethodPost, "/api/events/"+target.ID+"/move", move)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	done := decode[moveResponse](t, body)
	assert.Equal(t, schedule.StateDetached, done.State)
	assert.Equal(t, target.ID, done.RemovedID)
	require.NotNil(t, done.Event)
	assert.Equal(t, "6:00 PM", done.Event.StartTime)
	assert.Equal(t, "7:00 PM", done.Event.EndTime)
	assert.Equal(t, model.RecurrenceNone, done.Event.Recurrence)

	_, ok := ts.book.Get(target.ID)
	assert.False(t, ok)
	_, ok = ts.book.Get(done.Event.ID)
	assert.True(t, ok)
}

func TestMoveInPlaceAndConflict(t *testing.T) {
	ts := newTestServer(t, nil)
	ctx := context.Background()
	_, err := ts.book.Create(ctx, model.Event{Title: "Review", Date: "2025-06-02", StartTime: "9:00 AM", EndTime: "10:00 AM"})
	require.NoError(t, err)
	_, err = ts.book.Create(ctx, model.Event{Title: "Lunch", Date: "2025-06-03", StartTime: "12:00 PM", EndTime: "1:00 PM"})
	require.NoError(t, err)

	resp, body := ts.do(t, http.MethodPost, "/api/events/id-1/move", moveRequest{TargetDate: "2025-06-03", TargetStart: "12:30 PM"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	rejected := decode[moveResponse](t, body)
	assert.Equal(t, schedule.StateRejectedConflict, rejected.State)
	require.Len(t, rejected.Conflicts, 1)
	assert.Equal(t, "Lunch", rejected.Conflicts[0].Title)

	resp, body = ts.do(t, http.MethodPost, "/api/events/id-1/move", moveRequest{TargetDate: "2025-06-03"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	applied := decode[moveResponse](t, body)
	assert.Equal(t, schedule.StateAppliedInPlace, applied.State)
	assert.Equal(t, "2025-06-03", applied.Event.Date)

	resp, _ = ts.do(t, http.MethodPost, "/api/events/id-1/move", moveRequest{TargetDate: "tomorrow"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodPost, "/api/events/nope/move", moveRequest{TargetDate: "2025-06-03"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSlotsAndExport(t *testing.T) {
	ts := newTestServer(t, nil)
	_, err := ts.book.Create(context.Background(), model.Event{Title: "Review", Date: "2025-06-02", StartTime: "9:00 AM", EndTime: "10:00 AM"})
	require.NoError(t, err)

	resp, body := ts.do(t, http.MethodGet, "/api/slots", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	slots := decode[slotsResponse](t, body).Slots
	require.Len(t, slots, 48)
	assert.Equal(t, "12:00 AM", slots[0])
	assert.Equal(t, "12:30 AM", slots[1])

	resp, _ = ts.do(t, http.MethodGet, "/api/slots?step=0", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = ts.do(t, http.MethodGet, "/api/calendar.ics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/calendar"))
	assert.Contains(t, string(body), "SUMMARY:Review")
	assert.Contains(t, string(body), "DTSTART:20250602T090000")
}
