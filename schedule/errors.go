package schedule

import (
	"errors"
	"fmt"
)

var (
	// ErrShiftConflict: the resource already has a shift that day.
	ErrShiftConflict = errors.New("shift conflict")

	// ErrSuspensionConflict: the resource is suspended that day. Never overridable.
	ErrSuspensionConflict = errors.New("suspension conflict")

	// ErrAvailabilityConflict: the resource is unavailable that day. Overridable.
	ErrAvailabilityConflict = errors.New("availability conflict")
)

// ConflictError turns a Conflict into an error for operations that refuse
// to proceed. The conflict itself stays available for the caller's dialog.
type ConflictError struct {
	ResourceID string
	Date       string
	Conflict   *Conflict
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s for %s on %s: %s", e.Conflict.Type, e.ResourceID, e.Date, e.Conflict.Title)
}

func (e *ConflictError) Unwrap() error {
	switch e.Conflict.Type {
	case ConflictShift:
		return ErrShiftConflict
	case ConflictSuspension:
		return ErrSuspensionConflict
	default:
		return ErrAvailabilityConflict
	}
}

// IsConflict reports whether err is any scheduling conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrShiftConflict) ||
		errors.Is(err, ErrSuspensionConflict) ||
		errors.Is(err, ErrAvailabilityConflict)
}
