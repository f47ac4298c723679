package api

import (
	"fmt"
	"net/http"
	"strings"

	ics "github.com/arran4/golang-ical"

	"github.com/warp/shift-scheduler/schedule"
	"github.com/warp/shift-scheduler/scheduler"
)

// ExportICS renders the shifts in view as an iCalendar feed of all-day
// events, one per shift.
// GET /api/shifts.ics?resource=
func (h *Handler) ExportICS(w http.ResponseWriter, r *http.Request) {
	state := h.Service.State()
	window, ok := state.Window()
	if !ok {
		writeErr(w, scheduler.ErrNoView)
		return
	}

	names := make(map[string]string)
	for _, e := range state.Employees() {
		names[e.ID] = e.Name
	}
	cal := buildCalendar(schedule.ShiftsInView(state.Shifts(), window), names, r.URL.Query().Get("resource"))

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="shifts-%s.ics"`, window.StartStr))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(cal.Serialize()))
}

func buildCalendar(shifts []schedule.Shift, names map[string]string, resource string) *ics.Calendar {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//warp//shift-scheduler//EN")
	cal.SetXWRCalName("Shifts")

	for _, sh := range shifts {
		if resource != "" && sh.ResourceID != resource {
			continue
		}
		ev := cal.AddEvent(sh.ID + "@shift-scheduler")
		ev.SetDtStampTime(sh.Start)
		ev.SetAllDayStartAt(sh.Start)
		ev.SetAllDayEndAt(sh.Start.AddDate(0, 0, 1))
		ev.SetSummary(summary(sh, names[sh.ResourceID]))

		var desc []string
		desc = append(desc, "Status: "+string(sh.PublishStatus))
		if tags := tagNames(sh); tags != "" {
			desc = append(desc, "Tags: "+tags)
		}
		if sh.Notes != "" {
			desc = append(desc, sh.Notes)
		}
		ev.SetDescription(strings.Join(desc, "\n"))
		if sh.PublishStatus != schedule.StatusPublished {
			ev.SetStatus(ics.ObjectStatusTentative)
		} else {
			ev.SetStatus(ics.ObjectStatusConfirmed)
		}
	}
	return cal
}

func summary(sh schedule.Shift, employee string) string {
	if employee == "" {
		employee = sh.ResourceID
	}
	if sh.PositionName == "" {
		return employee
	}
	return employee + " - " + sh.PositionName
}

func tagNames(sh schedule.Shift) string {
	var out []string
	for _, t := range sh.Tags {
		if t.Name != "" {
			out = append(out, t.Name)
		} else {
			out = append(out, t.ID)
		}
	}
	return strings.Join(out, ", ")
}
