// Package schedule holds the shift and availability entities and the rules
// that decide whether a resource can be scheduled on a given day.
package schedule

import (
	"time"

	"github.com/warp/shift-scheduler/calendar"
)

// =============================================================================
// PUBLISH STATUS
// =============================================================================

// PublishStatus is the vendor-side publication state of a shift.
type PublishStatus string

const (
	StatusNotPublished PublishStatus = "Not Published"
	StatusRePublish    PublishStatus = "Re-Publish"
	StatusPublished    PublishStatus = "Published"
)

// ParsePublishStatus maps a vendor label to a status. Unknown or empty
// labels are treated as Not Published.
func ParsePublishStatus(label string) PublishStatus {
	switch PublishStatus(label) {
	case StatusPublished:
		return StatusPublished
	case StatusRePublish:
		return StatusRePublish
	default:
		return StatusNotPublished
	}
}

// NeedsPublish reports whether the shift is waiting for a publish run.
func (s PublishStatus) NeedsPublish() bool {
	return s == StatusNotPublished || s == StatusRePublish
}

// AfterEdit is the status a shift takes once it has been moved: a published
// shift needs re-publishing, anything else keeps its status.
func (s PublishStatus) AfterEdit() PublishStatus {
	if s == StatusPublished {
		return StatusRePublish
	}
	return s
}

// AfterFormEdit is the status written by the edit form, which resets
// everything but Published to Not Published.
func (s PublishStatus) AfterFormEdit() PublishStatus {
	if s == StatusPublished {
		return StatusRePublish
	}
	return StatusNotPublished
}

// =============================================================================
// AVAILABILITY KIND
// =============================================================================

// AvailabilityKind classifies an unavailability record. Values are the
// vendor labels.
type AvailabilityKind string

const (
	KindRegularDayOff     AvailabilityKind = "Regular Day Off"
	KindVacation          AvailabilityKind = "Vacation"
	KindInjuryWork        AvailabilityKind = "Injury - Work Related"
	KindInjuryOutside     AvailabilityKind = "Injury - Outside of Work"
	KindPersonalEmergency AvailabilityKind = "Personal Emergency"
	KindSuspension        AvailabilityKind = "Suspension"
)

// ParseAvailabilityKind maps a vendor label to a kind. An empty label is a
// regular day off; unrecognised labels are kept verbatim and still block
// scheduling like any other non-suspension kind.
func ParseAvailabilityKind(label string) AvailabilityKind {
	if label == "" {
		return KindRegularDayOff
	}
	return AvailabilityKind(label)
}

// Known reports whether k is one of the declared kinds.
func (k AvailabilityKind) Known() bool {
	switch k {
	case KindRegularDayOff, KindVacation, KindInjuryWork, KindInjuryOutside, KindPersonalEmergency, KindSuspension:
		return true
	}
	return false
}

// =============================================================================
// ENTITIES
// =============================================================================

// TagRef is a tag attached to a shift or employee.
type TagRef struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Shift is one scheduled day of work for a resource (employee).
// Start is always UTC midnight.
type Shift struct {
	ID            string        `json:"id"`
	ResourceID    string        `json:"resource_id"`
	PositionID    string        `json:"position_id"`
	PositionName  string        `json:"position_name,omitempty"`
	Start         time.Time     `json:"start"`
	PublishStatus PublishStatus `json:"publish_status"`
	Tags          []TagRef      `json:"tags,omitempty"`
	Notes         string        `json:"notes,omitempty"`
}

// Day is the canonical YYYY-MM-DD of the shift.
func (s Shift) Day() string {
	return s.Start.Format(calendar.DayLayout)
}

// TagIDs lists the ids of the shift's tags.
func (s Shift) TagIDs() []string {
	ids := make([]string, 0, len(s.Tags))
	for _, t := range s.Tags {
		ids = append(ids, t.ID)
	}
	return ids
}

// Availability is an unavailability record for a resource.
// End is exclusive: End = last unavailable day + 1.
type Availability struct {
	ID         string           `json:"id"`
	ResourceID string           `json:"resource_id"`
	Start      time.Time        `json:"start"`
	End        time.Time        `json:"end"`
	Kind       AvailabilityKind `json:"kind"`
	Generated  bool             `json:"generated,omitempty"`
}

// LastDay is the inclusive upper bound of the record.
func (a Availability) LastDay() time.Time {
	return a.End.AddDate(0, 0, -1)
}

// Covers reports whether day falls in [Start, LastDay].
func (a Availability) Covers(day time.Time) bool {
	if a.Start.IsZero() || a.End.IsZero() {
		return false
	}
	return calendar.IsDateInRange(day, a.Start, a.LastDay())
}

// Position is a role an employee can be scheduled for.
type Position struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Employee is a schedulable resource.
type Employee struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Department []string   `json:"department,omitempty"`
	Status     string     `json:"status,omitempty"`
	Positions  []Position `json:"positions,omitempty"`
	Tags       []TagRef   `json:"tags,omitempty"`
}

// PositionName resolves a position id against the employee's positions.
func (e Employee) PositionName(id string) (string, bool) {
	for _, p := range e.Positions {
		if p.ID == id {
			return p.Name, true
		}
	}
	return "", false
}

// Tag is an entry of the tag taxonomy.
type Tag struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

// RegularDayOffRule is a weekly recurring day off. Start and End bound the
// rule inclusively; a zero bound is open.
type RegularDayOffRule struct {
	ID         string
	ResourceID string
	Weekdays   []time.Weekday
	Start      time.Time
	End        time.Time
}
