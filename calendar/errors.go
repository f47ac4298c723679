package calendar

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidDate is returned when an input cannot be read as a calendar day.
	ErrInvalidDate = errors.New("invalid date")

	// ErrInvalidView is returned when a view has missing or inverted bounds.
	ErrInvalidView = errors.New("invalid view")
)

// DateError carries the operation and raw input that failed to parse.
type DateError struct {
	Op    string
	Input string
	Err   error // underlying parse error, if any
}

func (e *DateError) Error() string {
	if e.Input == "" {
		return fmt.Sprintf("%s: invalid date", e.Op)
	}
	return fmt.Sprintf("%s: invalid date %q", e.Op, e.Input)
}

func (e *DateError) Unwrap() []error {
	if e.Err == nil || e.Err == ErrInvalidDate {
		return []error{ErrInvalidDate}
	}
	return []error{ErrInvalidDate, e.Err}
}

// relabel rewrites the Op of a DateError so callers see the outer function name.
func relabel(err error, op string) error {
	var de *DateError
	if errors.As(err, &de) {
		return &DateError{Op: op, Input: de.Input, Err: de.Err}
	}
	return err
}
