package schedule_test

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/shift-scheduler/calendar"
	"github.com/warp/shift-scheduler/schedule"
)

func ids(recs []schedule.Availability) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.ID)
	}
	return out
}

func TestSynthesizeRegularDaysOff_WeeklyRule(t *testing.T) {
	// GIVEN: R is off every Saturday and Sunday; view is Mon June 3 - Sun June 9
	rules := []schedule.RegularDayOffRule{{ID: "rdo-1", ResourceID: "R", Weekdays: []time.Weekday{time.Saturday, time.Sunday}}}

	got, err := schedule.SynthesizeRegularDaysOff(rules, weekWindow(t), nil)
	require.NoError(t, err)

	want := []string{"rdo-1-2024-06-08", "rdo-1-2024-06-09"}
	if diff := cmp.Diff(want, ids(got)); diff != "" {
		t.Errorf("generated ids mismatch (-want +got):\n%s", diff)
	}
	for _, a := range got {
		assert.True(t, a.Generated)
		assert.Equal(t, schedule.KindRegularDayOff, a.Kind)
		n, err := calendar.DaysBetween(a.Start, a.End)
		require.NoError(t, err)
		assert.Equal(t, 1, n, "one-day record with exclusive end")
	}
}

func TestSynthesizeRegularDaysOff_SkipsDaysWithExplicitRecords(t *testing.T) {
	// GIVEN: R is off every Monday and Wednesday, but already has vacation on Wednesday
	rules := []schedule.RegularDayOffRule{{ID: "rdo-1", ResourceID: "R", Weekdays: []time.Weekday{time.Monday, time.Wednesday}}}
	existing := []schedule.Availability{avail("vac", "R", "2024-06-05", "2024-06-05", schedule.KindVacation)}

	got, err := schedule.SynthesizeRegularDaysOff(rules, weekWindow(t), existing)
	require.NoError(t, err)
	assert.Equal(t, []string{"rdo-1-2024-06-03"}, ids(got))
}

func TestSynthesizeRegularDaysOff_NoDuplicatesAcrossRules(t *testing.T) {
	rules := []schedule.RegularDayOffRule{
		{ID: "a", ResourceID: "R", Weekdays: []time.Weekday{time.Friday}},
		{ID: "b", ResourceID: "R", Weekdays: []time.Weekday{time.Friday, time.Thursday}},
	}
	got, err := schedule.SynthesizeRegularDaysOff(rules, weekWindow(t), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a-2024-06-07", "b-2024-06-06"}, ids(got))
}

func TestSynthesizeRegularDaysOff_ClipsToRuleBounds(t *testing.T) {
	rules := []schedule.RegularDayOffRule{{
		ID:         "rdo",
		ResourceID: "R",
		Weekdays:   []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		Start:      day("2024-06-05"),
		End:        day("2024-06-06"),
	}}
	got, err := schedule.SynthesizeRegularDaysOff(rules, weekWindow(t), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"rdo-2024-06-05", "rdo-2024-06-06"}, ids(got))
}

func TestSynthesizeRegularDaysOff_IgnoresEmptyRules(t *testing.T) {
	rules := []schedule.RegularDayOffRule{
		{ID: "none", ResourceID: "R"},
		{ID: "nobody", Weekdays: []time.Weekday{time.Monday}},
	}
	got, err := schedule.SynthesizeRegularDaysOff(rules, weekWindow(t), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSynthesizedRecordsResolveAsAvailabilityConflicts(t *testing.T) {
	rules := []schedule.RegularDayOffRule{{ID: "rdo", ResourceID: "R", Weekdays: []time.Weekday{time.Tuesday}}}
	got, err := schedule.SynthesizeRegularDaysOff(rules, weekWindow(t), nil)
	require.NoError(t, err)

	c := schedule.Resolve(nil, got, "R", day("2024-06-04"))
	require.NotNil(t, c)
	assert.Equal(t, schedule.ConflictAvailability, c.Type)
	assert.Equal(t, "Regular Day Off", c.Title)
	assert.Nil(t, schedule.Resolve(nil, got, "R", day("2024-06-05")))
}
