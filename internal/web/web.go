package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"calplan/internal/calendar"
	"calplan/internal/config"
	"calplan/internal/ics"
	appLog "calplan/internal/log"
	"calplan/internal/model"
	"calplan/internal/schedule"
	"calplan/internal/timeofday"
)

const maxBodyBytes = 1 << 20

// Server exposes the calendar book as a JSON API for the browser UI.
type Server struct {
	cfg  *config.Config
	book *calendar.Book
	mux  *http.ServeMux
}

func NewServer(cfg *config.Config, book *calendar.Book) *Server {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	s := &Server{
		cfg:  cfg,
		book: book,
		mux:  http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the routed handler, wrapped in basic auth when configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// Run serves on cfg.Listen until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		appLog.Info("shutting down HTTP server")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware guards everything except /health.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="calplan", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/events", s.handleListEvents)
	s.mux.HandleFunc("POST /api/events", s.handleCreateEvent)
	s.mux.HandleFunc("GET /api/events/{id}", s.handleGetEvent)
	s.mux.HandleFunc("PUT /api/events/{id}", s.handleUpdateEvent)
	s.mux.HandleFunc("DELETE /api/events/{id}", s.handleDeleteEvent)
	s.mux.HandleFunc("POST /api/events/{id}/move", s.handleMoveEvent)
	s.mux.HandleFunc("GET /api/slots", s.handleSlots)
	s.mux.HandleFunc("GET /api/calendar.ics", s.handleExport)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

type eventsResponse struct {
	Events []model.Event `json:"events"`
}

// handleListEvents searches the book.
//
// GET /api/events?q=standup&colors=blue,red&date=2025-06-02&fuzzy=1
//   - colors: comma separated; defaults to the configured color filters
//   - fuzzy:  defaults to the configured fuzzy_search
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := calendar.Filter{
		Query:  q.Get("q"),
		Date:   q.Get("date"),
		Fuzzy:  parseBoolDefault(q.Get("fuzzy"), s.cfg.FuzzySearch),
		Colors: s.cfg.ColorFilters,
	}
	if raw := q.Get("colors"); raw != "" {
		filter.Colors = nil
		for _, part := range strings.Split(raw, ",") {
			c := model.Color(strings.ToLower(strings.TrimSpace(part)))
			if c == "" {
				continue
			}
			if !c.Valid() {
				writeError(w, http.StatusBadRequest, "unknown color: "+string(c))
				return
			}
			filter.Colors = append(filter.Colors, c)
		}
	}
	if filter.Date != "" {
		if _, err := schedule.ParseDate(filter.Date); err != nil {
			writeError(w, http.StatusBadRequest, "date must be yyyy-MM-dd")
			return
		}
	}

	writeJSON(w, http.StatusOK, eventsResponse{Events: s.book.Search(filter)})
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	ev, ok := s.book.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// handleCreateEvent applies the configured end-date policy before creating,
// mirroring the form's default end date for recurring events.
func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var ev model.Event
	if !decodeJSON(w, r, &ev) {
		return
	}

	ev, err := s.cfg.RecurrenceDefaults.ApplyDefaultEndDate(ev)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	created, err := s.book.Create(r.Context(), ev)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, eventsResponse{Events: created})
}

func (s *Server) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	var ev model.Event
	if !decodeJSON(w, r, &ev) {
		return
	}

	updated, err := s.book.Update(r.Context(), r.PathValue("id"), ev)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	if err := s.book.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type moveRequest struct {
	OriginalDate  string `json:"original_date"`
	OriginalStart string `json:"original_start"`
	OriginalEnd   string `json:"original_end"`
	TargetDate    string `json:"target_date"`
	TargetStart   string `json:"target_start"`
	// ConfirmDetach answers the detach question for a recurring occurrence.
	// Leaving it out asks the client to confirm first.
	ConfirmDetach *bool `json:"confirm_detach,omitempty"`
}

type moveResponse struct {
	State     schedule.State `json:"state"`
	Title     string         `json:"title"`
	NewStart  string         `json:"new_start,omitempty"`
	NewEnd    string         `json:"new_end,omitempty"`
	Conflicts []model.Event  `json:"conflicts,omitempty"`
	Event     *model.Event   `json:"event,omitempty"`
	RemovedID string         `json:"removed_id,omitempty"`
}

// handleMoveEvent is the drop target of a drag. A recurring occurrence needs
// two requests: the first (without confirm_detach) answers 409 with state
// requires_confirmation, the second carries the user's answer and is planned
// again against the then-current calendar.
func (s *Server) handleMoveEvent(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ev, ok := s.book.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	mv := schedule.Move{
		Event:         ev,
		OriginalDate:  req.OriginalDate,
		OriginalStart: req.OriginalStart,
		OriginalEnd:   req.OriginalEnd,
		TargetDate:    req.TargetDate,
		TargetStart:   req.TargetStart,
	}

	if req.ConfirmDetach == nil {
		p, err := s.book.Propose(mv)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if p.State == schedule.StateRequiresConfirmation {
			writeJSON(w, http.StatusConflict, newMoveResponse(p.Plan))
			return
		}
	}

	confirmed := req.ConfirmDetach != nil && *req.ConfirmDetach
	plan, err := s.book.Move(r.Context(), mv, func(string) bool { return confirmed })
	if err != nil {
		writeDomainError(w, err)
		return
	}

	status := http.StatusOK
	if plan.State == schedule.StateRejectedConflict {
		status = http.StatusConflict
	}
	writeJSON(w, status, newMoveResponse(plan))
}

func newMoveResponse(p *schedule.Plan) moveResponse {
	resp := moveResponse{
		State:     p.State,
		Title:     p.Move.Event.Title,
		NewStart:  p.NewStart,
		NewEnd:    p.NewEnd,
		Conflicts: p.Conflicts,
	}
	switch {
	case p.Updated != nil:
		resp.Event = p.Updated
	case p.Created != nil:
		resp.Event = p.Created
	}
	if p.Removed != nil {
		resp.RemovedID = p.Removed.Key()
	}
	return resp
}

type slotsResponse struct {
	Slots []string `json:"slots"`
}

// handleSlots lists the droppable start times of the week/day grids.
func (s *Server) handleSlots(w http.ResponseWriter, r *http.Request) {
	step := parseIntDefault(r.URL.Query().Get("step"), 30)
	if step <= 0 || step > 720 {
		writeError(w, http.StatusBadRequest, "step must be between 1 and 720 minutes")
		return
	}
	writeJSON(w, http.StatusOK, slotsResponse{Slots: timeofday.Slots(step)})
}

func (s *Server) handleExport(w http.ResponseWriter, _ *http.Request) {
	body, err := ics.Export(s.book.Events(), s.cfg.Export.ProdID)
	if err != nil {
		appLog.Error("ics export failed", err)
		writeError(w, http.StatusInternalServerError, "failed to export calendar")
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="calendar.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

type errorResponse struct {
	Error      string        `json:"error"`
	Field      string        `json:"field,omitempty"`
	Occurrence *model.Event  `json:"occurrence,omitempty"`
	Conflicts  []model.Event `json:"conflicts,omitempty"`
}

// writeDomainError maps engine and book errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	var (
		ve *schedule.ValidationError
		fe *timeofday.FormatError
		ce *schedule.ConflictError
	)
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Field: ve.Field})
	case errors.As(err, &fe):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.As(err, &ce):
		occ := ce.Occurrence
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Occurrence: &occ, Conflicts: ce.Conflicts})
	case errors.Is(err, schedule.ErrEventNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, calendar.ErrStaleProposal):
		writeError(w, http.StatusConflict, err.Error())
	default:
		appLog.Error("request failed", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func parseBoolDefault(s string, def bool) bool {
	if s == "" {
		return def
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return def
	}
	return b
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
