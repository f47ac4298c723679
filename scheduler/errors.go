package scheduler

import (
	"errors"
	"fmt"
)

var (
	// ErrShiftNotFound: the shift is not in the loaded view.
	ErrShiftNotFound = errors.New("shift not found")

	// ErrInvalidShift: required shift fields are missing or malformed.
	ErrInvalidShift = errors.New("invalid shift")

	// ErrAvailabilityNotFound: no loaded availability record has that id.
	ErrAvailabilityNotFound = errors.New("availability record not found")

	// ErrOutsideView: the target day is not visible.
	ErrOutsideView = errors.New("date outside current view")

	// ErrNoView: nothing has been loaded yet.
	ErrNoView = errors.New("no view loaded")

	// ErrCrossResourceMove: shifts cannot be dragged to another employee.
	ErrCrossResourceMove = errors.New("shifts cannot be moved between employees")

	// ErrBatchRunning: a publish or copy run is already in progress.
	ErrBatchRunning = errors.New("batch operation already running")

	// ErrNothingToOverride: the day has no availability conflict to override.
	ErrNothingToOverride = errors.New("no availability conflict to override")

	// ErrUnknownEvent: Handle received an event type it does not know.
	ErrUnknownEvent = errors.New("unknown calendar event")
)

// ValidationError names the offending field of a shift form.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid shift: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidShift }

// ItemError is the failure of one shift inside a batch.
type ItemError struct {
	ShiftID    string `json:"shift_id"`
	ResourceID string `json:"resource_id"`
	Message    string `json:"message"`
}
