package scheduler

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/warp/shift-scheduler/calendar"
	"github.com/warp/shift-scheduler/schedule"
)

// =============================================================================
// CALENDAR EVENTS
// =============================================================================
//
// The calendar widget talks to the service only through these four events.
// Handle answers each with an Outcome telling the widget what to show.

// Event is one of SelectEvent, EventClick, EventDrop or DatesSet.
type Event interface {
	calendarEvent()
}

// SelectEvent: the user selected an empty cell (resource, day).
type SelectEvent struct {
	ResourceID string `json:"resource_id"`
	Date       string `json:"date"`
	Override   bool   `json:"override,omitempty"`
}

// EventClick: the user clicked a shift, or an availability background.
type EventClick struct {
	ShiftID        string `json:"shift_id,omitempty"`
	AvailabilityID string `json:"availability_id,omitempty"`
	Override       bool   `json:"override,omitempty"`
}

// EventDrop: the user dragged a shift to another cell.
type EventDrop struct {
	ShiftID    string `json:"shift_id"`
	ResourceID string `json:"resource_id"`
	NewDate    string `json:"new_date"`
	Override   bool   `json:"override,omitempty"`
}

// DatesSet: the widget navigated to another range.
type DatesSet struct {
	View calendar.View `json:"view"`
}

func (SelectEvent) calendarEvent() {}
func (EventClick) calendarEvent()  {}
func (EventDrop) calendarEvent()   {}
func (DatesSet) calendarEvent()    {}

// Action tells the widget how to react to an event.
type Action string

const (
	ActionOpenAddForm      Action = "open_add_form"
	ActionOpenEditForm     Action = "open_edit_form"
	ActionConfirmOverride  Action = "confirm_override"
	ActionBlocked          Action = "blocked"
	ActionShowAvailability Action = "show_availability"
	ActionMoved            Action = "moved"
	ActionReverted         Action = "reverted"
	ActionViewChanged      Action = "view_changed"
)

// Outcome is the answer to an Event.
type Outcome struct {
	Action        Action                 `json:"action"`
	Message       string                 `json:"message,omitempty"`
	Shift         *schedule.Shift        `json:"shift,omitempty"`
	Conflict      *schedule.Conflict     `json:"conflict,omitempty"`
	Availability  *schedule.Availability `json:"availability,omitempty"`
	DisabledDates []string               `json:"disabled_dates,omitempty"`
	Window        *calendar.ViewWindow   `json:"window,omitempty"`
}

// Handle dispatches a widget event.
func (s *Service) Handle(ctx context.Context, ev Event) (Outcome, error) {
	switch e := ev.(type) {
	case SelectEvent:
		return s.handleSelect(e)
	case EventClick:
		return s.handleClick(e)
	case EventDrop:
		return s.handleDrop(ctx, e)
	case DatesSet:
		return s.handleDatesSet(ctx, e)
	default:
		return Outcome{}, fmt.Errorf("%w: %T", ErrUnknownEvent, ev)
	}
}

// CurrentView is the view the widget last reported, or the view of the
// loaded window.
func (s *Service) CurrentView() (calendar.View, bool) {
	if v, ok := s.state.View(); ok {
		return v, true
	}
	if w, ok := s.state.Window(); ok {
		return w.View(), true
	}
	return calendar.View{}, false
}

func (s *Service) handleSelect(e SelectEvent) (Outcome, error) {
	if e.ResourceID == "" {
		return Outcome{}, &ValidationError{Field: "resource_id", Reason: "is required"}
	}
	day, err := calendar.StartOfDay(e.Date)
	if err != nil {
		return Outcome{}, &ValidationError{Field: "date", Reason: "must be YYYY-MM-DD"}
	}

	c := s.Check(e.ResourceID, day, "")
	switch {
	case c.Fatal():
		return Outcome{Action: ActionBlocked, Message: c.Title, Conflict: c}, nil
	case c.Overridable() && !e.Override:
		return Outcome{Action: ActionConfirmOverride, Message: c.Title, Conflict: c}, nil
	}

	s.BeginSession()
	if c != nil {
		s.overrides.Add(e.ResourceID, day)
		s.log.Info("availability override confirmed", zap.String("resource", e.ResourceID), zap.String("date", e.Date))
	}
	return s.formOutcome(ActionOpenAddForm, e.ResourceID, "", nil)
}

func (s *Service) handleClick(e EventClick) (Outcome, error) {
	if e.ShiftID == "" {
		a, ok := s.state.AvailabilityRecord(e.AvailabilityID)
		if !ok {
			return Outcome{}, fmt.Errorf("availability %q: %w", e.AvailabilityID, ErrAvailabilityNotFound)
		}
		return Outcome{Action: ActionShowAvailability, Message: string(a.Kind), Availability: &a}, nil
	}

	sh, ok := s.state.Shift(e.ShiftID)
	if !ok {
		return Outcome{}, fmt.Errorf("click %s: %w", e.ShiftID, ErrShiftNotFound)
	}

	// A second shift on the same day does not keep the user from opening
	// this one; suspensions and availability do.
	c := s.Check(sh.ResourceID, sh.Start, sh.ID)
	switch {
	case c != nil && c.Type == schedule.ConflictSuspension:
		return Outcome{Action: ActionBlocked, Message: c.Title, Conflict: c, Shift: &sh}, nil
	case c.Overridable() && !e.Override:
		return Outcome{Action: ActionConfirmOverride, Message: c.Title, Conflict: c, Shift: &sh}, nil
	}

	s.BeginSession()
	if c.Overridable() {
		s.overrides.Add(sh.ResourceID, sh.Start)
	}
	return s.formOutcome(ActionOpenEditForm, sh.ResourceID, sh.ID, &sh)
}

func (s *Service) handleDrop(ctx context.Context, e EventDrop) (Outcome, error) {
	day, err := calendar.StartOfDay(e.NewDate)
	if err != nil {
		return Outcome{Action: ActionReverted}, &ValidationError{Field: "new_date", Reason: "must be YYYY-MM-DD"}
	}

	moved, err := s.MoveShift(ctx, e.ShiftID, e.ResourceID, day, e.Override)
	if err == nil {
		return Outcome{Action: ActionMoved, Shift: &moved}, nil
	}

	var ce *schedule.ConflictError
	switch {
	case errors.As(err, &ce) && ce.Conflict.Overridable():
		return Outcome{Action: ActionConfirmOverride, Message: ce.Conflict.Title, Conflict: ce.Conflict}, nil
	case errors.As(err, &ce):
		return Outcome{Action: ActionReverted, Message: ce.Conflict.Title, Conflict: ce.Conflict}, nil
	case errors.Is(err, ErrCrossResourceMove), errors.Is(err, ErrOutsideView):
		return Outcome{Action: ActionReverted, Message: err.Error()}, nil
	}
	return Outcome{Action: ActionReverted}, err
}

func (s *Service) handleDatesSet(ctx context.Context, e DatesSet) (Outcome, error) {
	if _, err := calendar.GetViewDateInfo(e.View, s.clock.Now()); err != nil {
		return Outcome{}, err
	}
	s.state.SetView(e.View)
	window, err := s.loadView(ctx, e.View)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Action: ActionViewChanged, Window: &window}, nil
}

// RefreshCurrent reloads the current view, through the refresh
// coordinator when one is wired.
func (s *Service) RefreshCurrent(ctx context.Context) error {
	v, ok := s.CurrentView()
	if !ok {
		return ErrNoView
	}
	_, err := s.loadView(ctx, v)
	return err
}

func (s *Service) loadView(ctx context.Context, v calendar.View) (calendar.ViewWindow, error) {
	window, err := calendar.GetViewDateInfo(v, s.clock.Now())
	if err != nil {
		return calendar.ViewWindow{}, err
	}
	if s.refresher != nil {
		_, loaded := s.state.Window()
		err = s.refresher.RequestRefresh(ctx, v, !loaded)
	} else {
		err = s.Refresh(ctx, window)
	}
	return window, err
}

func (s *Service) formOutcome(action Action, resourceID, shiftID string, sh *schedule.Shift) (Outcome, error) {
	out := Outcome{Action: action, Shift: sh}
	if _, ok := s.state.Window(); ok {
		disabled, err := s.DisabledDates(resourceID, shiftID)
		if err != nil {
			return Outcome{}, err
		}
		out.DisabledDates = disabled
	}
	return out, nil
}
