/*
resolver.go - Availability / conflict resolution

PURPOSE:
  Answers "can resource R be scheduled on day D?" against the in-memory
  shift and availability lists loaded for the current view.

PRECEDENCE (first match wins):
  1. shift_conflict        existing shift for (R, D)          fatal for a new add
  2. suspension_conflict   Suspension record covering D        fatal, no override
  3. availability_conflict any other record covering D         overridable
  4. nil                   clear

  Suspensions are looked for first across every covering record, so an
  overlapping vacation listed earlier never hides one. Other records are
  scanned in list order (fetched first, synthesized after) and the first
  match is the one surfaced to the user. Overrides only clear step 3.

EDIT IN PLACE:
  A shift never conflicts with itself. Callers editing a shift use
  CheckExcluding with that shift's id.

KNOWN GAP:
  This is a client-side advisory check. Two sessions can both pass it and
  both create a shift for the same resource and day; the vendor API does not
  enforce uniqueness.
*/
package schedule

import (
	"time"

	"github.com/warp/shift-scheduler/calendar"
)

// ConflictType classifies a scheduling conflict.
type ConflictType string

const (
	ConflictShift        ConflictType = "shift_conflict"
	ConflictSuspension   ConflictType = "suspension_conflict"
	ConflictAvailability ConflictType = "availability_conflict"
)

// Conflict describes why a day is blocked. Start and End are inclusive
// display dates.
type Conflict struct {
	Type         ConflictType  `json:"type"`
	Title        string        `json:"title"`
	Start        string        `json:"start"`
	End          string        `json:"end"`
	ShiftID      string        `json:"shift_id,omitempty"`
	Availability *Availability `json:"availability,omitempty"`
}

// Fatal reports whether no override can clear the conflict.
func (c *Conflict) Fatal() bool {
	return c != nil && (c.Type == ConflictShift || c.Type == ConflictSuspension)
}

// Overridable reports whether the user may confirm "schedule anyway".
func (c *Conflict) Overridable() bool {
	return c != nil && c.Type == ConflictAvailability
}

// Resolver checks candidate days against a snapshot of the loaded lists.
// Overrides is optional; when set, overridden availability conflicts are
// treated as clear.
type Resolver struct {
	Shifts       []Shift
	Availability []Availability
	Overrides    *OverrideSet
}

// Resolve is Resolver.Check without overrides.
func Resolve(shifts []Shift, availability []Availability, resourceID string, day time.Time) *Conflict {
	return Resolver{Shifts: shifts, Availability: availability}.Check(resourceID, day)
}

// Check returns the first conflict for (resourceID, day) or nil.
func (r Resolver) Check(resourceID string, day time.Time) *Conflict {
	return r.CheckExcluding(resourceID, day, "")
}

// CheckExcluding is Check ignoring the shift with id excludeShiftID.
func (r Resolver) CheckExcluding(resourceID string, day time.Time, excludeShiftID string) *Conflict {
	d, err := calendar.StartOfDay(day)
	if err != nil {
		return nil
	}
	dayStr := d.Format(calendar.DayLayout)

	if s, ok := r.findShift(resourceID, dayStr, excludeShiftID); ok {
		return &Conflict{
			Type:    ConflictShift,
			Title:   "Already Scheduled",
			Start:   s.Day(),
			End:     s.Day(),
			ShiftID: s.ID,
		}
	}

	if a, ok := r.findSuspension(resourceID, d); ok {
		return availabilityConflict(ConflictSuspension, a)
	}
	a, ok := r.findAvailability(resourceID, d)
	if !ok {
		return nil
	}
	if r.Overrides != nil && r.Overrides.IsOverridden(resourceID, d) {
		return nil
	}
	return availabilityConflict(ConflictAvailability, a)
}

func availabilityConflict(typ ConflictType, a Availability) *Conflict {
	return &Conflict{
		Type:         typ,
		Title:        string(a.Kind),
		Start:        a.Start.Format(calendar.DayLayout),
		End:          a.LastDay().Format(calendar.DayLayout),
		Availability: &a,
	}
}

func (r Resolver) findShift(resourceID, day, excludeShiftID string) (Shift, bool) {
	for _, s := range r.Shifts {
		if s.ResourceID != resourceID || s.Start.IsZero() {
			continue
		}
		if excludeShiftID != "" && s.ID == excludeShiftID {
			continue
		}
		if s.Day() == day {
			return s, true
		}
	}
	return Shift{}, false
}

// findSuspension returns the first Suspension covering day. A suspension
// wins over any other record covering the same day, whatever the list order.
func (r Resolver) findSuspension(resourceID string, day time.Time) (Availability, bool) {
	for _, a := range r.Availability {
		if a.ResourceID == resourceID && a.Kind == KindSuspension && a.Covers(day) {
			return a, true
		}
	}
	return Availability{}, false
}

// findAvailability returns the first non-suspension record covering day.
func (r Resolver) findAvailability(resourceID string, day time.Time) (Availability, bool) {
	for _, a := range r.Availability {
		if a.ResourceID == resourceID && a.Kind != KindSuspension && a.Covers(day) {
			return a, true
		}
	}
	return Availability{}, false
}

// IsDateDisabled mirrors the shift form's date picker: a day is disabled
// when it is outside the view, when another shift of the resource occupies
// it, when a suspension covers it, or when any other availability record
// covers it and the user has not overridden that day.
func (r Resolver) IsDateDisabled(window calendar.ViewWindow, resourceID string, day time.Time, currentShiftID string) bool {
	d, err := calendar.StartOfDay(day)
	if err != nil {
		return true
	}
	if !window.IsWithinView(d) {
		return true
	}
	if _, ok := r.findShift(resourceID, d.Format(calendar.DayLayout), currentShiftID); ok {
		return true
	}
	if _, ok := r.findSuspension(resourceID, d); ok {
		return true
	}
	if r.Overrides != nil && r.Overrides.IsOverridden(resourceID, d) {
		return false
	}
	_, blocked := r.findAvailability(resourceID, d)
	return blocked
}

// DisabledDates lists the disabled days of the window for a resource.
func (r Resolver) DisabledDates(window calendar.ViewWindow, resourceID, currentShiftID string) []string {
	var out []string
	for _, d := range window.Days() {
		if r.IsDateDisabled(window, resourceID, d, currentShiftID) {
			out = append(out, d.Format(calendar.DayLayout))
		}
	}
	return out
}
