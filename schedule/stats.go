package schedule

import (
	"sort"
	"time"

	"github.com/warp/shift-scheduler/calendar"
)

// PublishCounts summarises shifts awaiting publication in a view.
type PublishCounts struct {
	NotPublished int `json:"not_published"`
	RePublish    int `json:"re_publish"`
	Total        int `json:"total"`
}

// ShiftsInView returns the shifts whose day is inside window, in list order.
func ShiftsInView(shifts []Shift, window calendar.ViewWindow) []Shift {
	var out []Shift
	for _, s := range shifts {
		if !s.Start.IsZero() && window.IsWithinView(s.Start) {
			out = append(out, s)
		}
	}
	return out
}

// UnpublishedInView returns the shifts of window that need a publish run.
func UnpublishedInView(shifts []Shift, window calendar.ViewWindow) []Shift {
	var out []Shift
	for _, s := range ShiftsInView(shifts, window) {
		if s.PublishStatus.NeedsPublish() {
			out = append(out, s)
		}
	}
	return out
}

// CountUnpublished counts Not Published and Re-Publish shifts in window.
func CountUnpublished(shifts []Shift, window calendar.ViewWindow) PublishCounts {
	var c PublishCounts
	for _, s := range ShiftsInView(shifts, window) {
		switch s.PublishStatus {
		case StatusNotPublished:
			c.NotPublished++
			c.Total++
		case StatusRePublish:
			c.RePublish++
			c.Total++
		}
	}
	return c
}

// WeeklyShiftCounts counts shifts per resource inside window.
func WeeklyShiftCounts(shifts []Shift, window calendar.ViewWindow) map[string]int {
	counts := make(map[string]int)
	for _, s := range ShiftsInView(shifts, window) {
		counts[s.ResourceID]++
	}
	return counts
}

// TagStats counts the tags used by the shifts of a single day.
type TagStats struct {
	Date       string         `json:"date"`
	Shifts     int            `json:"shifts"`
	ByCategory map[string]int `json:"by_category"`
	ByTag      map[string]int `json:"by_tag"`
}

// TagStatistics tallies shift tags for day, resolving names and categories
// through the tag taxonomy. Tags missing from the taxonomy count under
// their id with an empty category.
func TagStatistics(shifts []Shift, tags []Tag, day time.Time) (TagStats, error) {
	dayStr, err := calendar.FormatDate(day)
	if err != nil {
		return TagStats{}, err
	}
	byID := make(map[string]Tag, len(tags))
	for _, t := range tags {
		byID[t.ID] = t
	}

	stats := TagStats{Date: dayStr, ByCategory: map[string]int{}, ByTag: map[string]int{}}
	for _, s := range shifts {
		if s.Start.IsZero() || s.Day() != dayStr {
			continue
		}
		stats.Shifts++
		for _, ref := range s.Tags {
			t, ok := byID[ref.ID]
			name := ref.ID
			if ok {
				name = t.Name
			}
			stats.ByTag[name]++
			stats.ByCategory[t.Category]++
		}
	}
	return stats, nil
}

// SortShifts orders shifts by day, then resource, then id.
func SortShifts(shifts []Shift) {
	sort.SliceStable(shifts, func(i, j int) bool {
		a, b := shifts[i], shifts[j]
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		if a.ResourceID != b.ResourceID {
			return a.ResourceID < b.ResourceID
		}
		return a.ID < b.ID
	})
}

// SortEmployees orders the roster by name, then id, and returns it.
func SortEmployees(es []Employee) []Employee {
	sort.SliceStable(es, func(i, j int) bool {
		if es[i].Name != es[j].Name {
			return es[i].Name < es[j].Name
		}
		return es[i].ID < es[j].ID
	})
	return es
}
