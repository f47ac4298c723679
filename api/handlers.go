/*
handlers.go - HTTP API handlers for the shift calendar

PURPOSE:
  Exposes scheduler.Service over REST. Handles HTTP request/response and
  JSON serialization, and delegates every decision to the service.

ENDPOINTS:
  Reference:
    GET    /api/health                 Liveness, refresh state
    GET    /api/employees              Roster (cached)
    GET    /api/tags                   Tag taxonomy (cached)

  View:
    GET    /api/view?start=&end=       Navigate (optional) and return the window
    POST   /api/refresh                Reload the current view
    POST   /api/events/{kind}          select | click | drop | dates

  Shifts:
    POST   /api/shifts                 Add shift
    PUT    /api/shifts/{id}            Edit shift
    GET    /api/shifts.ics             Shifts in view as iCalendar

  Form support:
    GET    /api/availability/check     Conflict for (resource, date)
    GET    /api/availability/disabled  Disabled days for the date picker
    GET    /api/overrides              Overrides of the open form
    POST   /api/overrides              Confirm an override
    DELETE /api/overrides              Close the form

  Batches:
    GET    /api/counts                 Unpublished / to-copy / weekly / tags
    POST   /api/publish                Publish the view
    POST   /api/copy-week              Copy the view one week ahead
    GET    /api/batch                  Running or last batch
    POST   /api/batch/stop             Stop the running batch
    GET    /api/runs                   Batch history

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid dates, moves across employees
  - 404: Unknown shift, availability record or event
  - 409: Scheduling conflicts (conflict attached), batch running, no view
  - 502: Vendor API failures
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/warp/shift-scheduler/calendar"
	"github.com/warp/shift-scheduler/schedule"
	"github.com/warp/shift-scheduler/scheduler"
	"github.com/warp/shift-scheduler/tadabase"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// RefreshStatus reports the state of the refresh coordinator.
type RefreshStatus interface {
	Busy() bool
	LastRefresh() (time.Time, calendar.ViewWindow, bool)
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *scheduler.Service
	Status  RefreshStatus

	log *zap.Logger
}

// NewHandler creates a handler. status may be nil.
func NewHandler(svc *scheduler.Service, status RefreshStatus, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{Service: svc, Status: status, log: log}
}

// =============================================================================
// REFERENCE DATA
// =============================================================================

// Health returns liveness and refresh state.
// GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	dto := HealthDTO{Status: "ok"}
	if h.Status != nil {
		dto.Refreshing = h.Status.Busy()
		if at, window, ok := h.Status.LastRefresh(); ok {
			dto.LastRefresh = &at
			dto.Window = window.String()
		}
	}
	writeJSON(w, http.StatusOK, dto)
}

// ListEmployees returns the roster sorted by name.
// GET /api/employees
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, orEmpty(h.Service.State().Employees()))
}

// ListTags returns the tag taxonomy.
// GET /api/tags
func (h *Handler) ListTags(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, orEmpty(h.Service.State().Tags()))
}

// =============================================================================
// VIEW
// =============================================================================

// GetView returns the loaded window. With start and end (end exclusive) it
// first navigates there.
// GET /api/view?start=&end=
func (h *Handler) GetView(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("start") != "" || q.Get("end") != "" {
		view, err := parseView(q.Get("start"), q.Get("end"))
		if err != nil {
			writeErr(w, err)
			return
		}
		if _, err := h.Service.Handle(r.Context(), scheduler.DatesSet{View: view}); err != nil {
			writeErr(w, err)
			return
		}
	}

	state := h.Service.State()
	window, ok := state.Window()
	if !ok {
		writeErr(w, scheduler.ErrNoView)
		return
	}
	counts, _ := h.Service.CountUnpublished()
	writeJSON(w, http.StatusOK, ViewDTO{
		Window:       toWindowDTO(window),
		Shifts:       orEmpty(state.Shifts()),
		Availability: orEmpty(state.Availability()),
		Unpublished:  counts,
	})
}

// Refresh reloads the current view, optionally dropping cached reference
// data first.
// POST /api/refresh
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	ctx := r.Context()
	if req.ReloadReference {
		if err := h.Service.ReloadReference(ctx); err != nil {
			writeErr(w, err)
			return
		}
	}
	if err := h.Service.RefreshCurrent(ctx); err != nil {
		writeErr(w, err)
		return
	}
	window, _ := h.Service.State().Window()
	writeJSON(w, http.StatusOK, toWindowDTO(window))
}

// HandleEvent forwards a calendar widget callback.
// POST /api/events/{kind}
func (h *Handler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	var ev scheduler.Event
	var err error
	switch chi.URLParam(r, "kind") {
	case "select":
		var e scheduler.SelectEvent
		err = json.NewDecoder(r.Body).Decode(&e)
		ev = e
	case "click":
		var e scheduler.EventClick
		err = json.NewDecoder(r.Body).Decode(&e)
		ev = e
	case "drop":
		var e scheduler.EventDrop
		err = json.NewDecoder(r.Body).Decode(&e)
		ev = e
	case "dates":
		var req DatesRequest
		if err = json.NewDecoder(r.Body).Decode(&req); err == nil {
			var view calendar.View
			if view, err = parseView(req.Start, req.End); err != nil {
				writeErr(w, err)
				return
			}
			ev = scheduler.DatesSet{View: view}
		}
	default:
		writeErr(w, scheduler.ErrUnknownEvent)
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	out, err := h.Service.Handle(r.Context(), ev)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// =============================================================================
// SHIFTS
// =============================================================================

// AddShift creates a shift from the add form.
// POST /api/shifts
func (h *Handler) AddShift(w http.ResponseWriter, r *http.Request) {
	var req scheduler.ShiftInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	sh, err := h.Service.AddShift(r.Context(), req)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sh)
}

// EditShift updates a shift from the edit form.
// PUT /api/shifts/{id}
func (h *Handler) EditShift(w http.ResponseWriter, r *http.Request) {
	var req scheduler.ShiftInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	sh, err := h.Service.EditShift(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sh)
}

// =============================================================================
// FORM SUPPORT
// =============================================================================

// CheckAvailability resolves a single (resource, date).
// GET /api/availability/check?resource=&date=&exclude=
func (h *Handler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resource := q.Get("resource")
	if resource == "" {
		writeErr(w, &scheduler.ValidationError{Field: "resource", Reason: "is required"})
		return
	}
	day, err := calendar.ParseDay(q.Get("date"))
	if err != nil {
		writeErr(w, err)
		return
	}

	c := h.Service.Check(resource, day, q.Get("exclude"))
	disabled := c != nil
	if window, ok := h.Service.State().Window(); ok && !window.IsWithinView(day) {
		disabled = true
	}
	writeJSON(w, http.StatusOK, CheckDTO{
		ResourceID: resource,
		Date:       day.Format(calendar.DayLayout),
		Conflict:   c,
		Disabled:   disabled,
	})
}

// DisabledDates lists the days the date picker refuses.
// GET /api/availability/disabled?resource=&shift=
func (h *Handler) DisabledDates(w http.ResponseWriter, r *http.Request) {
	resource := r.URL.Query().Get("resource")
	if resource == "" {
		writeErr(w, &scheduler.ValidationError{Field: "resource", Reason: "is required"})
		return
	}
	dates, err := h.Service.DisabledDates(resource, r.URL.Query().Get("shift"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DisabledDTO{ResourceID: resource, Dates: orEmpty(dates)})
}

// ListOverrides returns the overrides of the open form.
// GET /api/overrides
func (h *Handler) ListOverrides(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Service.Overrides().Entries())
}

// AddOverride confirms scheduling over an availability conflict.
// POST /api/overrides
func (h *Handler) AddOverride(w http.ResponseWriter, r *http.Request) {
	var req OverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ResourceID == "" {
		writeErr(w, &scheduler.ValidationError{Field: "resource_id", Reason: "is required"})
		return
	}
	day, err := calendar.ParseDay(req.Date)
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := h.Service.AddOverride(req.ResourceID, day, req.ShiftID); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.Service.Overrides().Entries())
}

// ClearOverrides closes the form session.
// DELETE /api/overrides
func (h *Handler) ClearOverrides(w http.ResponseWriter, r *http.Request) {
	h.Service.EndSession()
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// STATISTICS AND BATCHES
// =============================================================================

// Counts returns the header statistics. Tag statistics cover ?day=,
// defaulting to today.
// GET /api/counts?day=
func (h *Handler) Counts(w http.ResponseWriter, r *http.Request) {
	unpublished, err := h.Service.CountUnpublished()
	if err != nil {
		writeErr(w, err)
		return
	}
	toCopy, _ := h.Service.CountShiftsToCopy()
	weekly, _ := h.Service.WeeklyShiftCounts()

	dayStr := r.URL.Query().Get("day")
	if dayStr == "" {
		window, _ := h.Service.State().Window()
		dayStr = window.Today
	}
	day, err := calendar.ParseDay(dayStr)
	if err != nil {
		writeErr(w, err)
		return
	}
	tags, err := h.Service.TagStatistics(day)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CountsDTO{Unpublished: unpublished, ToCopy: toCopy, Weekly: weekly, Tags: tags})
}

// Publish publishes every unpublished shift in view. It returns once the
// batch is done or stopped.
// POST /api/publish
func (h *Handler) Publish(w http.ResponseWriter, r *http.Request) {
	p, err := h.Service.PublishView(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// CopyWeek copies the shifts in view one week ahead.
// POST /api/copy-week
func (h *Handler) CopyWeek(w http.ResponseWriter, r *http.Request) {
	p, err := h.Service.CopyWeek(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// BatchStatus returns the running batch, or the last one.
// GET /api/batch
func (h *Handler) BatchStatus(w http.ResponseWriter, r *http.Request) {
	p, ok := h.Service.BatchStatus()
	if !ok {
		writeError(w, http.StatusNotFound, "No batch has run", nil)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// StopBatch asks the running batch to stop.
// POST /api/batch/stop
func (h *Handler) StopBatch(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StopDTO{Stopped: h.Service.StopBatch()})
}

// ListRuns returns the batch history, newest first.
// GET /api/runs?limit=
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer", err)
			return
		}
		limit = n
	}
	runs, err := h.Service.BatchHistory(r.Context(), limit)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(runs))
}

// =============================================================================
// HELPERS
// =============================================================================

func parseView(start, end string) (calendar.View, error) {
	s, err := calendar.ParseDay(start)
	if err != nil {
		return calendar.View{}, err
	}
	e, err := calendar.ParseDay(end)
	if err != nil {
		return calendar.View{}, err
	}
	return calendar.View{ActiveStart: s, ActiveEnd: e}, nil
}

// decodeOptional decodes a JSON body, accepting an empty one.
func decodeOptional(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// statusFor maps a service error to an HTTP status.
func statusFor(err error) int {
	var ve *scheduler.ValidationError
	switch {
	case errors.As(err, &ve),
		errors.Is(err, calendar.ErrInvalidDate),
		errors.Is(err, calendar.ErrInvalidView),
		errors.Is(err, scheduler.ErrInvalidShift),
		errors.Is(err, scheduler.ErrNothingToOverride),
		errors.Is(err, scheduler.ErrOutsideView),
		errors.Is(err, scheduler.ErrCrossResourceMove):
		return http.StatusBadRequest
	case errors.Is(err, scheduler.ErrShiftNotFound),
		errors.Is(err, scheduler.ErrAvailabilityNotFound),
		errors.Is(err, scheduler.ErrUnknownEvent):
		return http.StatusNotFound
	case schedule.IsConflict(err),
		errors.Is(err, scheduler.ErrBatchRunning),
		errors.Is(err, scheduler.ErrNoView):
		return http.StatusConflict
	case errors.Is(err, tadabase.ErrUnexpectedStatus),
		errors.Is(err, tadabase.ErrMalformedResponse),
		errors.Is(err, tadabase.ErrMalformedRecord):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// writeErr writes err with its mapped status. Conflicts carry the
// conflict so the widget can show its dialog.
func writeErr(w http.ResponseWriter, err error) {
	status := statusFor(err)
	resp := ErrorResponse{Error: http.StatusText(status), Details: err.Error()}
	var ce *schedule.ConflictError
	if errors.As(err, &ce) {
		resp.Conflict = ce.Conflict
	}
	writeJSON(w, status, resp)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
