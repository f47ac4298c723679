package schedule

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/warp/shift-scheduler/calendar"
)

var rruleWeekdays = [...]rrule.Weekday{
	time.Sunday:    rrule.SU,
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
}

// SynthesizeRegularDaysOff expands weekly day-off rules into one-day
// availability records for every visible day of window.
//
// A day is skipped when a record in existing (or one synthesized earlier
// in this call) already covers that resource and day, so the result never
// duplicates an explicit record. Output order follows rule order, then day.
func SynthesizeRegularDaysOff(rules []RegularDayOffRule, window calendar.ViewWindow, existing []Availability) ([]Availability, error) {
	var out []Availability
	covered := func(resourceID string, day time.Time) bool {
		for _, a := range existing {
			if a.ResourceID == resourceID && a.Covers(day) {
				return true
			}
		}
		for _, a := range out {
			if a.ResourceID == resourceID && a.Covers(day) {
				return true
			}
		}
		return false
	}

	for _, rule := range rules {
		days, err := ruleOccurrences(rule, window)
		if err != nil {
			return nil, fmt.Errorf("expand rule %s: %w", rule.ID, err)
		}
		for _, day := range days {
			if covered(rule.ResourceID, day) {
				continue
			}
			out = append(out, Availability{
				ID:         rule.ID + "-" + day.Format(calendar.DayLayout),
				ResourceID: rule.ResourceID,
				Start:      day,
				End:        day.AddDate(0, 0, 1),
				Kind:       KindRegularDayOff,
				Generated:  true,
			})
		}
	}
	return out, nil
}

// ruleOccurrences lists the days of window matching the rule's weekdays,
// clipped to the rule's own bounds.
func ruleOccurrences(rule RegularDayOffRule, window calendar.ViewWindow) ([]time.Time, error) {
	if len(rule.Weekdays) == 0 || rule.ResourceID == "" {
		return nil, nil
	}

	from, to := window.Start, window.AdjustedEnd
	if !rule.Start.IsZero() {
		if s, err := calendar.StartOfDay(rule.Start); err == nil && s.After(from) {
			from = s
		}
	}
	if !rule.End.IsZero() {
		if e, err := calendar.StartOfDay(rule.End); err == nil && e.Before(to) {
			to = e
		}
	}
	if to.Before(from) {
		return nil, nil
	}

	byDay := make([]rrule.Weekday, 0, len(rule.Weekdays))
	for _, wd := range rule.Weekdays {
		if wd < time.Sunday || wd > time.Saturday {
			continue
		}
		byDay = append(byDay, rruleWeekdays[wd])
	}
	if len(byDay) == 0 {
		return nil, nil
	}

	r, err := rrule.NewRRule(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Byweekday: byDay,
		Dtstart:   from,
		Until:     to,
	})
	if err != nil {
		return nil, err
	}
	return r.Between(from, to, true), nil
}
