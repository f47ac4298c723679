/*
date.go - UTC calendar-day arithmetic

PURPOSE:
  Every date that enters the scheduler (vendor API strings, widget view
  bounds, user selections) is normalized to UTC midnight of its calendar
  day before it is compared, stored, or sent anywhere. This removes drift
  between the browser's local zone and the "calendar day" semantics of
  the stored records.

INPUTS:
  Functions accept either a time.Time or a string beginning with
  YYYY-MM-DD. Anything after the date part ("T08:00:00", " 08:00") is
  ignored. A zero time.Time is invalid.

ERROR CONVENTION:
  All parsing functions return (value, error) with a *DateError that
  wraps ErrInvalidDate. Predicates (IsDateInRange, IsSameDate) never
  fail: invalid input simply answers false.

CANONICAL FORM:
  FormatDate is the single source of truth for equality between dates of
  different origins. Never compare a raw time.Time against a raw string.

SEE ALSO:
  - view.go: view windows and week boundaries built on these helpers
  - schedule/resolver.go: conflict checks
*/
package calendar

import (
	"strings"
	"time"
)

// DayLayout is the canonical calendar-day string layout.
const DayLayout = "2006-01-02"

// DateLike is any value the calendar helpers accept as a day.
type DateLike interface {
	time.Time | string
}

// =============================================================================
// NORMALIZATION
// =============================================================================

// StartOfDay returns UTC midnight of the calendar day of v.
func StartOfDay[T DateLike](v T) (time.Time, error) {
	switch x := any(v).(type) {
	case time.Time:
		if x.IsZero() {
			return time.Time{}, &DateError{Op: "StartOfDay", Input: "zero time"}
		}
		u := x.UTC()
		return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC), nil
	case string:
		t, err := parseDay(x)
		if err != nil {
			return time.Time{}, &DateError{Op: "StartOfDay", Input: x, Err: err}
		}
		return t, nil
	}
	return time.Time{}, &DateError{Op: "StartOfDay"}
}

// EndOfDay returns 23:59:59.999 UTC of the calendar day of v.
func EndOfDay[T DateLike](v T) (time.Time, error) {
	d, err := StartOfDay(v)
	if err != nil {
		return time.Time{}, relabel(err, "EndOfDay")
	}
	return d.Add(24*time.Hour - time.Millisecond), nil
}

// FormatDate renders v as YYYY-MM-DD.
func FormatDate[T DateLike](v T) (string, error) {
	d, err := StartOfDay(v)
	if err != nil {
		return "", relabel(err, "FormatDate")
	}
	return d.Format(DayLayout), nil
}

// ParseDay is StartOfDay specialised to strings.
func ParseDay(s string) (time.Time, error) {
	return StartOfDay(s)
}

func parseDay(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) < len(DayLayout) {
		return time.Time{}, ErrInvalidDate
	}
	if len(s) > len(DayLayout) {
		switch s[len(DayLayout)] {
		case 'T', ' ':
		default:
			return time.Time{}, ErrInvalidDate
		}
	}
	return time.ParseInLocation(DayLayout, s[:len(DayLayout)], time.UTC)
}

// =============================================================================
// COMPARISON
// =============================================================================

// IsSameDate reports whether a and b fall on the same calendar day.
func IsSameDate[A, B DateLike](a A, b B) bool {
	as, err := FormatDate(a)
	if err != nil {
		return false
	}
	bs, err := FormatDate(b)
	if err != nil {
		return false
	}
	return as == bs
}

// IsDateInRange reports whether date lies in [start, end], both bounds
// inclusive at day granularity. Any invalid input yields false.
func IsDateInRange[A, B, C DateLike](date A, start B, end C) bool {
	d, err := StartOfDay(date)
	if err != nil {
		return false
	}
	s, err := StartOfDay(start)
	if err != nil {
		return false
	}
	e, err := EndOfDay(end)
	if err != nil {
		return false
	}
	return !d.Before(s) && !d.After(e)
}

// =============================================================================
// ARITHMETIC
// =============================================================================

// AddDays shifts the calendar day of v by n days.
func AddDays[T DateLike](v T, n int) (time.Time, error) {
	d, err := StartOfDay(v)
	if err != nil {
		return time.Time{}, relabel(err, "AddDays")
	}
	return d.AddDate(0, 0, n), nil
}

// SubtractDays shifts the calendar day of v back by n days.
func SubtractDays[T DateLike](v T, n int) (time.Time, error) {
	d, err := AddDays(v, -n)
	if err != nil {
		return time.Time{}, relabel(err, "SubtractDays")
	}
	return d, nil
}

// DaysBetween counts whole days from a to b (negative when b is earlier).
func DaysBetween[A, B DateLike](a A, b B) (int, error) {
	as, err := StartOfDay(a)
	if err != nil {
		return 0, relabel(err, "DaysBetween")
	}
	bs, err := StartOfDay(b)
	if err != nil {
		return 0, relabel(err, "DaysBetween")
	}
	return int(bs.Sub(as).Hours() / 24), nil
}

// Today returns UTC midnight of now.
func Today(now time.Time) time.Time {
	d, err := StartOfDay(now)
	if err != nil {
		return time.Time{}
	}
	return d
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseWeekday maps an English weekday name ("Monday", "friday") to time.Weekday.
func ParseWeekday(name string) (time.Weekday, bool) {
	wd, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
	return wd, ok
}
