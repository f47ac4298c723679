package calendar

import (
	"fmt"
	"time"
)

// =============================================================================
// VIEW WINDOW - The one place that decides "which days are visible"
// =============================================================================

// View is the visible range reported by the calendar widget.
// ActiveEnd is exclusive, as the widget reports it.
type View struct {
	ActiveStart time.Time
	ActiveEnd   time.Time
}

// ViewWindow carries two explicit boundaries for the same view:
//
//	End         exclusive; used to build fetch ranges
//	AdjustedEnd inclusive (End - 1 day); used by every "is in view" check
type ViewWindow struct {
	Today       string
	Start       time.Time
	End         time.Time
	AdjustedEnd time.Time
	StartStr    string
	EndStr      string
	DaysInView  int
}

// GetViewDateInfo derives the window for v. now supplies Today.
func GetViewDateInfo(v View, now time.Time) (ViewWindow, error) {
	if v.ActiveStart.IsZero() || v.ActiveEnd.IsZero() {
		return ViewWindow{}, fmt.Errorf("%w: missing bounds", ErrInvalidView)
	}
	start, err := StartOfDay(v.ActiveStart)
	if err != nil {
		return ViewWindow{}, err
	}
	end, err := StartOfDay(v.ActiveEnd)
	if err != nil {
		return ViewWindow{}, err
	}
	if !end.After(start) {
		return ViewWindow{}, fmt.Errorf("%w: end %s not after start %s", ErrInvalidView, end.Format(DayLayout), start.Format(DayLayout))
	}
	adjusted := end.AddDate(0, 0, -1)
	days, err := DaysBetween(start, adjusted)
	if err != nil {
		return ViewWindow{}, err
	}

	return ViewWindow{
		Today:       Today(now).Format(DayLayout),
		Start:       start,
		End:         end,
		AdjustedEnd: adjusted,
		StartStr:    start.Format(DayLayout),
		EndStr:      adjusted.Format(DayLayout),
		DaysInView:  days + 1,
	}, nil
}

// IsWithinView reports whether t falls in [Start, AdjustedEnd].
func (w ViewWindow) IsWithinView(t time.Time) bool {
	return IsDateInRange(t, w.Start, w.AdjustedEnd)
}

// Days lists every visible day in order.
func (w ViewWindow) Days() []time.Time {
	days := make([]time.Time, 0, w.DaysInView)
	for d := w.Start; !d.After(w.AdjustedEnd); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// FetchRange returns the inclusive YYYY-MM-DD range to request from the
// vendor API, widened by bufferDays on both sides.
func (w ViewWindow) FetchRange(bufferDays int) (string, string) {
	return w.Start.AddDate(0, 0, -bufferDays).Format(DayLayout),
		w.AdjustedEnd.AddDate(0, 0, bufferDays).Format(DayLayout)
}

// View converts the window back into widget bounds.
func (w ViewWindow) View() View {
	return View{ActiveStart: w.Start, ActiveEnd: w.End}
}

func (w ViewWindow) String() string {
	return "[" + w.StartStr + ", " + w.EndStr + "]"
}

// =============================================================================
// WEEKS - Monday-first
// =============================================================================

// Week is a Monday..Sunday span, both ends inclusive.
type Week struct {
	Start    time.Time
	End      time.Time
	StartStr string
	EndStr   string
}

// GetWeekBoundaries returns the Monday-first week containing v.
func GetWeekBoundaries[T DateLike](v T) (Week, error) {
	d, err := StartOfDay(v)
	if err != nil {
		return Week{}, relabel(err, "GetWeekBoundaries")
	}
	day := int(d.Weekday())
	offset := 1 - day
	if day == 0 {
		offset = -6
	}
	monday := d.AddDate(0, 0, offset)
	sunday := monday.AddDate(0, 0, 6)
	return Week{
		Start:    monday,
		End:      sunday,
		StartStr: monday.Format(DayLayout),
		EndStr:   sunday.Format(DayLayout),
	}, nil
}

// NextWeek returns the week after w.
func (w Week) NextWeek() Week {
	start := w.Start.AddDate(0, 0, 7)
	end := w.End.AddDate(0, 0, 7)
	return Week{Start: start, End: end, StartStr: start.Format(DayLayout), EndStr: end.Format(DayLayout)}
}

// View returns the widget bounds covering w (end exclusive).
func (w Week) View() View {
	return View{ActiveStart: w.Start, ActiveEnd: w.End.AddDate(0, 0, 1)}
}
