/*
handlers_test.go - Tests for the HTTP API

Runs the full router over a scheduler.Service backed by an in-memory
source, the same way the calendar widget calls it.
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/shift-scheduler/cache"
	"github.com/warp/shift-scheduler/calendar"
	"github.com/warp/shift-scheduler/clock"
	"github.com/warp/shift-scheduler/schedule"
	"github.com/warp/shift-scheduler/scheduler"
	"github.com/warp/shift-scheduler/store/memory"
	"github.com/warp/shift-scheduler/tadabase"
)

func day(s string) time.Time {
	d, _ := calendar.ParseDay(s)
	return d
}

// memSource is a minimal scheduler.Source.
type memSource struct {
	mu           sync.Mutex
	shifts       []schedule.Shift
	availability []schedule.Availability
	next         int
}

func (m *memSource) FetchShifts(_ context.Context, from, to string) ([]schedule.Shift, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []schedule.Shift
	for _, s := range m.shifts {
		if s.Day() >= from && s.Day() <= to {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memSource) FetchAvailability(context.Context, string, string) ([]schedule.Availability, error) {
	return m.availability, nil
}

func (m *memSource) FetchRegularDayOffRules(context.Context, string, string) ([]schedule.RegularDayOffRule, error) {
	return nil, nil
}

func (m *memSource) FetchEmployees(context.Context) ([]schedule.Employee, error) {
	return []schedule.Employee{
		{ID: "emp-1", Name: "Ann", Positions: []schedule.Position{{ID: "p1", Name: "Driver"}}},
		{ID: "emp-2", Name: "Bob"},
	}, nil
}

func (m *memSource) FetchTags(context.Context) ([]schedule.Tag, error) {
	return []schedule.Tag{{ID: "t1", Name: "Night", Category: "Shift"}}, nil
}

func (m *memSource) GetShift(_ context.Context, id string) (schedule.Shift, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.shifts {
		if s.ID == id {
			return s, nil
		}
	}
	return schedule.Shift{}, &tadabase.StatusError{Method: "GET", Path: id, StatusCode: 404}
}

func (m *memSource) CreateShift(_ context.Context, s schedule.Shift) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	s.ID = fmt.Sprintf("new-%d", m.next)
	m.shifts = append(m.shifts, s)
	return s.ID, nil
}

func (m *memSource) UpdateShift(_ context.Context, s schedule.Shift) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.shifts {
		if m.shifts[i].ID == s.ID {
			m.shifts[i] = s
		}
	}
	return nil
}

func (m *memSource) PublishShift(context.Context, string) error { return nil }

func newTestServer(t *testing.T, loadView bool) (*httptest.Server, *scheduler.Service) {
	t.Helper()
	src := &memSource{
		shifts: []schedule.Shift{
			{ID: "s1", ResourceID: "emp-1", PositionID: "p1", Start: day("2024-06-04"), PublishStatus: schedule.StatusNotPublished, Tags: []schedule.TagRef{{ID: "t1"}}},
			{ID: "s2", ResourceID: "emp-2", PositionID: "p1", Start: day("2024-06-05"), PublishStatus: schedule.StatusPublished},
		},
		availability: []schedule.Availability{
			{ID: "a1", ResourceID: "emp-2", Start: day("2024-06-07"), End: day("2024-06-08"), Kind: schedule.KindVacation},
			{ID: "a2", ResourceID: "emp-1", Start: day("2024-06-08"), End: day("2024-06-09"), Kind: schedule.KindSuspension},
		},
	}
	clk := clock.NewFake(time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC))
	svc := scheduler.New(src, cache.New(memory.New(), cache.WithClock(clk)), scheduler.WithClock(clk))
	require.NoError(t, svc.LoadReference(context.Background()))

	srv := httptest.NewServer(NewRouter(NewHandler(svc, nil, nil), nil))
	t.Cleanup(srv.Close)

	if loadView {
		resp := do(t, srv, http.MethodGet, "/api/view?start=2024-06-03&end=2024-06-10", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()
	}
	return srv, svc
}

func do(t *testing.T, srv *httptest.Server, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

// =============================================================================
// VIEW
// =============================================================================

func TestGetView_NavigatesAndReturnsWindow(t *testing.T) {
	srv, _ := newTestServer(t, false)

	resp := do(t, srv, http.MethodGet, "/api/view?start=2024-06-03&end=2024-06-10", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	view := decode[ViewDTO](t, resp)

	assert.Equal(t, "2024-06-03", view.Window.Start)
	assert.Equal(t, "2024-06-09", view.Window.End)
	assert.Equal(t, 7, view.Window.DaysInView)
	assert.Len(t, view.Shifts, 2)
	assert.Len(t, view.Availability, 2)
	assert.Equal(t, 1, view.Unpublished.Total)
}

func TestGetView_Errors(t *testing.T) {
	srv, _ := newTestServer(t, false)

	resp := do(t, srv, http.MethodGet, "/api/view", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "nothing loaded yet")
	resp.Body.Close()

	resp = do(t, srv, http.MethodGet, "/api/view?start=2024-06-10&end=2024-06-03", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "inverted view")
	resp.Body.Close()

	resp = do(t, srv, http.MethodGet, "/api/view?start=june&end=2024-06-03", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestHealthAndReference(t *testing.T) {
	srv, _ := newTestServer(t, true)

	health := decode[HealthDTO](t, do(t, srv, http.MethodGet, "/api/health", nil))
	assert.Equal(t, "ok", health.Status)

	employees := decode[[]schedule.Employee](t, do(t, srv, http.MethodGet, "/api/employees", nil))
	require.Len(t, employees, 2)
	assert.Equal(t, "Ann", employees[0].Name)

	tags := decode[[]schedule.Tag](t, do(t, srv, http.MethodGet, "/api/tags", nil))
	assert.Equal(t, "Night", tags[0].Name)

	resp := do(t, srv, http.MethodPost, "/api/refresh", RefreshRequest{ReloadReference: true})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

// =============================================================================
// SHIFTS
// =============================================================================

func TestAddShift(t *testing.T) {
	srv, _ := newTestServer(t, true)

	resp := do(t, srv, http.MethodPost, "/api/shifts", scheduler.ShiftInput{
		ResourceID: "emp-1", PositionID: "p1", Date: "2024-06-06", Tags: []string{"t1"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	sh := decode[schedule.Shift](t, resp)
	assert.Equal(t, "new-1", sh.ID)
	assert.Equal(t, "Driver", sh.PositionName)
	assert.Equal(t, schedule.StatusNotPublished, sh.PublishStatus)
}

func TestAddShift_ConflictCarriesDetails(t *testing.T) {
	srv, _ := newTestServer(t, true)

	resp := do(t, srv, http.MethodPost, "/api/shifts", scheduler.ShiftInput{
		ResourceID: "emp-2", PositionID: "p1", Date: "2024-06-07",
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	body := decode[ErrorResponse](t, resp)
	require.NotNil(t, body.Conflict)
	assert.Equal(t, schedule.ConflictAvailability, body.Conflict.Type)
	assert.Equal(t, "Vacation", body.Conflict.Title)
}

func TestAddShift_BadRequests(t *testing.T) {
	srv, _ := newTestServer(t, true)

	resp := do(t, srv, http.MethodPost, "/api/shifts", scheduler.ShiftInput{ResourceID: "emp-1", Date: "2024-06-06"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "missing position")
	resp.Body.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/shifts", strings.NewReader("{"))
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestEditShift(t *testing.T) {
	srv, _ := newTestServer(t, true)

	resp := do(t, srv, http.MethodPut, "/api/shifts/s2", scheduler.ShiftInput{PositionID: "p1", Date: "2024-06-05", Notes: "late"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sh := decode[schedule.Shift](t, resp)
	assert.Equal(t, schedule.StatusRePublish, sh.PublishStatus)
	assert.Equal(t, "late", sh.Notes)

	resp = do(t, srv, http.MethodPut, "/api/shifts/missing", scheduler.ShiftInput{PositionID: "p1", Date: "2024-06-05"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestExportICS(t *testing.T) {
	srv, _ := newTestServer(t, true)

	resp := do(t, srv, http.MethodGet, "/api/shifts.ics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/calendar")
	defer resp.Body.Close()

	cal, err := ics.ParseCalendar(resp.Body)
	require.NoError(t, err)
	events := cal.Events()
	require.Len(t, events, 2)

	summaries := map[string]bool{}
	for _, ev := range events {
		summaries[ev.GetProperty(ics.ComponentPropertySummary).Value] = true
	}
	assert.True(t, summaries["Ann - Driver"])

	resp2 := do(t, srv, http.MethodGet, "/api/shifts.ics?resource=emp-2", nil)
	defer resp2.Body.Close()
	cal, err = ics.ParseCalendar(resp2.Body)
	require.NoError(t, err)
	assert.Len(t, cal.Events(), 1)
}

// =============================================================================
// EVENTS AND FORM SUPPORT
// =============================================================================

func TestHandleEvent(t *testing.T) {
	srv, _ := newTestServer(t, true)

	out := decode[scheduler.Outcome](t, do(t, srv, http.MethodPost, "/api/events/select",
		scheduler.SelectEvent{ResourceID: "emp-2", Date: "2024-06-07"}))
	assert.Equal(t, scheduler.ActionConfirmOverride, out.Action)

	out = decode[scheduler.Outcome](t, do(t, srv, http.MethodPost, "/api/events/drop",
		scheduler.EventDrop{ShiftID: "s1", ResourceID: "emp-1", NewDate: "2024-06-06"}))
	assert.Equal(t, scheduler.ActionMoved, out.Action)

	out = decode[scheduler.Outcome](t, do(t, srv, http.MethodPost, "/api/events/dates",
		DatesRequest{Start: "2024-06-10", End: "2024-06-17"}))
	assert.Equal(t, scheduler.ActionViewChanged, out.Action)
	assert.Equal(t, "2024-06-10", out.Window.StartStr)

	resp := do(t, srv, http.MethodPost, "/api/events/hover", struct{}{})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp = do(t, srv, http.MethodPost, "/api/events/click", scheduler.EventClick{ShiftID: "nope"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestAvailabilityAndOverrides(t *testing.T) {
	srv, _ := newTestServer(t, true)

	check := decode[CheckDTO](t, do(t, srv, http.MethodGet, "/api/availability/check?resource=emp-2&date=2024-06-07", nil))
	assert.True(t, check.Disabled)
	require.NotNil(t, check.Conflict)

	resp := do(t, srv, http.MethodPost, "/api/overrides", OverrideRequest{ResourceID: "emp-2", Date: "2024-06-07"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	entries := decode[[]schedule.Override](t, resp)
	assert.Equal(t, []schedule.Override{{ResourceID: "emp-2", Date: "2024-06-07"}}, entries)

	check = decode[CheckDTO](t, do(t, srv, http.MethodGet, "/api/availability/check?resource=emp-2&date=2024-06-07", nil))
	assert.False(t, check.Disabled)

	disabled := decode[DisabledDTO](t, do(t, srv, http.MethodGet, "/api/availability/disabled?resource=emp-2", nil))
	assert.Equal(t, []string{"2024-06-05"}, disabled.Dates)

	resp = do(t, srv, http.MethodDelete, "/api/overrides", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()
	entries = decode[[]schedule.Override](t, do(t, srv, http.MethodGet, "/api/overrides", nil))
	assert.Empty(t, entries)

	resp = do(t, srv, http.MethodGet, "/api/availability/check?date=2024-06-07", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestAddOverride_OnlyForAvailabilityConflicts(t *testing.T) {
	srv, svc := newTestServer(t, true)

	// GIVEN: emp-1 is suspended on 06-08
	resp := do(t, srv, http.MethodPost, "/api/overrides", OverrideRequest{ResourceID: "emp-1", Date: "2024-06-08"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	body := decode[ErrorResponse](t, resp)
	require.NotNil(t, body.Conflict)
	assert.Equal(t, schedule.ConflictSuspension, body.Conflict.Type)

	// THEN: nothing was recorded and the picker still refuses the day
	assert.Zero(t, svc.Overrides().Len())
	check := decode[CheckDTO](t, do(t, srv, http.MethodGet, "/api/availability/check?resource=emp-1&date=2024-06-08", nil))
	assert.True(t, check.Disabled)
	require.NotNil(t, check.Conflict)
	assert.Equal(t, schedule.ConflictSuspension, check.Conflict.Type)

	// existing shift: s1 is emp-1 on 06-04
	resp = do(t, srv, http.MethodPost, "/api/overrides", OverrideRequest{ResourceID: "emp-1", Date: "2024-06-04"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	// clear day
	resp = do(t, srv, http.MethodPost, "/api/overrides", OverrideRequest{ResourceID: "emp-1", Date: "2024-06-05"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
	assert.Zero(t, svc.Overrides().Len())
}

func TestAddOverride_NoView(t *testing.T) {
	srv, _ := newTestServer(t, false)

	resp := do(t, srv, http.MethodPost, "/api/overrides", OverrideRequest{ResourceID: "emp-2", Date: "2024-06-07"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

// =============================================================================
// BATCHES
// =============================================================================

func TestPublishAndBatchStatus(t *testing.T) {
	srv, _ := newTestServer(t, true)

	resp := do(t, srv, http.MethodGet, "/api/batch", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	counts := decode[CountsDTO](t, do(t, srv, http.MethodGet, "/api/counts?day=2024-06-04", nil))
	assert.Equal(t, 1, counts.Unpublished.Total)
	assert.Equal(t, 2, counts.ToCopy)
	assert.Equal(t, 1, counts.Tags.ByTag["Night"])

	p := decode[scheduler.Progress](t, do(t, srv, http.MethodPost, "/api/publish", nil))
	assert.True(t, p.Done)
	assert.Equal(t, 1, p.Succeeded)

	last := decode[scheduler.Progress](t, do(t, srv, http.MethodGet, "/api/batch", nil))
	assert.Equal(t, p.RunID, last.RunID)

	stop := decode[StopDTO](t, do(t, srv, http.MethodPost, "/api/batch/stop", nil))
	assert.False(t, stop.Stopped)

	runs := decode[[]scheduler.BatchRun](t, do(t, srv, http.MethodGet, "/api/runs", nil))
	assert.Empty(t, runs, "no run store wired")

	resp = do(t, srv, http.MethodGet, "/api/runs?limit=x", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", &scheduler.ValidationError{Field: "date", Reason: "bad"}, http.StatusBadRequest},
		{"date", &calendar.DateError{Op: "ParseDay", Input: "x"}, http.StatusBadRequest},
		{"cross resource", scheduler.ErrCrossResourceMove, http.StatusBadRequest},
		{"nothing to override", fmt.Errorf("emp-1: %w", scheduler.ErrNothingToOverride), http.StatusBadRequest},
		{"missing shift", fmt.Errorf("edit: %w", scheduler.ErrShiftNotFound), http.StatusNotFound},
		{"conflict", &schedule.ConflictError{Conflict: &schedule.Conflict{Type: schedule.ConflictSuspension}}, http.StatusConflict},
		{"batch running", scheduler.ErrBatchRunning, http.StatusConflict},
		{"vendor", fmt.Errorf("refresh: %w", &tadabase.StatusError{StatusCode: 503}), http.StatusBadGateway},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
