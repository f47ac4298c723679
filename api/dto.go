/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON structures of the HTTP API. Domain types that already carry JSON
  tags (schedule.Shift, schedule.Conflict, scheduler.Outcome,
  scheduler.Progress) are returned as is; the types here cover requests
  and the composite responses.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/shift-scheduler/calendar"
	"github.com/warp/shift-scheduler/schedule"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`

	Conflict *schedule.Conflict `json:"conflict,omitempty"`
}

// HealthDTO reports liveness and the refresh state.
type HealthDTO struct {
	Status      string     `json:"status"`
	Refreshing  bool       `json:"refreshing"`
	LastRefresh *time.Time `json:"last_refresh,omitempty"`
	Window      string     `json:"window,omitempty"`
}

// WindowDTO is a calendar.ViewWindow with day strings only.
type WindowDTO struct {
	Today      string `json:"today"`
	Start      string `json:"start"`
	End        string `json:"end"`
	DaysInView int    `json:"days_in_view"`
}

func toWindowDTO(w calendar.ViewWindow) WindowDTO {
	return WindowDTO{Today: w.Today, Start: w.StartStr, End: w.EndStr, DaysInView: w.DaysInView}
}

// ViewDTO is everything the widget renders for the loaded window.
type ViewDTO struct {
	Window       WindowDTO               `json:"window"`
	Shifts       []schedule.Shift        `json:"shifts"`
	Availability []schedule.Availability `json:"availability"`
	Unpublished  schedule.PublishCounts  `json:"unpublished"`
}

// RefreshRequest is the optional body of POST /api/refresh.
type RefreshRequest struct {
	ReloadReference bool `json:"reload_reference"`
}

// DatesRequest is the body of the dates event. End is exclusive, as the
// widget reports it.
type DatesRequest struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// OverrideRequest confirms an availability override for the open form.
// Only days with an availability conflict can be overridden.
type OverrideRequest struct {
	ResourceID string `json:"resource_id"`
	Date       string `json:"date"`
	// ShiftID names the shift being edited, which never conflicts with itself.
	ShiftID string `json:"shift_id,omitempty"`
}

// CheckDTO answers an availability check.
type CheckDTO struct {
	ResourceID string             `json:"resource_id"`
	Date       string             `json:"date"`
	Conflict   *schedule.Conflict `json:"conflict"`
	Disabled   bool               `json:"disabled"`
}

// DisabledDTO lists the days the date picker refuses.
type DisabledDTO struct {
	ResourceID string   `json:"resource_id"`
	Dates      []string `json:"dates"`
}

// CountsDTO carries the header statistics.
type CountsDTO struct {
	Unpublished schedule.PublishCounts `json:"unpublished"`
	ToCopy      int                    `json:"to_copy"`
	Weekly      map[string]int         `json:"weekly"`
	Tags        schedule.TagStats      `json:"tags"`
}

// StopDTO reports whether a batch was asked to stop.
type StopDTO struct {
	Stopped bool `json:"stopped"`
}
