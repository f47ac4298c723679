package scheduler

import (
	"sync"

	"github.com/warp/shift-scheduler/calendar"
	"github.com/warp/shift-scheduler/schedule"
)

// State is the in-memory picture of the loaded view: shifts and
// availability for the current window plus the reference data. Readers
// always get copies; Replace swaps the view lists in one step so nobody
// observes shifts from one window next to availability from another.
type State struct {
	mu sync.RWMutex

	window    calendar.ViewWindow
	hasWindow bool
	view      calendar.View
	hasView   bool

	shifts       []schedule.Shift
	availability []schedule.Availability
	employees    []schedule.Employee
	tags         []schedule.Tag
}

// NewState returns an empty state.
func NewState() *State {
	return &State{}
}

// Replace installs a freshly fetched window.
func (s *State) Replace(window calendar.ViewWindow, shifts []schedule.Shift, availability []schedule.Availability) {
	schedule.SortShifts(shifts)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.window = window
	s.hasWindow = true
	s.shifts = shifts
	s.availability = availability
}

// SetReference installs the roster and tag taxonomy.
func (s *State) SetReference(employees []schedule.Employee, tags []schedule.Tag) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.employees = employees
	s.tags = tags
}

// SetView records the view the widget is showing.
func (s *State) SetView(v calendar.View) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view = v
	s.hasView = true
}

// View returns the last view reported by the widget.
func (s *State) View() (calendar.View, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view, s.hasView
}

// Window returns the window of the loaded data. ok is false before the
// first successful refresh.
func (s *State) Window() (calendar.ViewWindow, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.window, s.hasWindow
}

func (s *State) Shifts() []schedule.Shift {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]schedule.Shift(nil), s.shifts...)
}

func (s *State) Availability() []schedule.Availability {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]schedule.Availability(nil), s.availability...)
}

func (s *State) Employees() []schedule.Employee {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]schedule.Employee(nil), s.employees...)
}

func (s *State) Tags() []schedule.Tag {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]schedule.Tag(nil), s.tags...)
}

// Shift looks up a loaded shift by id.
func (s *State) Shift(id string) (schedule.Shift, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sh := range s.shifts {
		if sh.ID == id {
			return sh, true
		}
	}
	return schedule.Shift{}, false
}

// Employee looks up an employee by id.
func (s *State) Employee(id string) (schedule.Employee, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.employees {
		if e.ID == id {
			return e, true
		}
	}
	return schedule.Employee{}, false
}

// AvailabilityRecord looks up an availability record by id.
func (s *State) AvailabilityRecord(id string) (schedule.Availability, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.availability {
		if a.ID == id {
			return a, true
		}
	}
	return schedule.Availability{}, false
}

// UpsertShift applies a local write so the view reflects it before the
// next refresh.
func (s *State) UpsertShift(sh schedule.Shift) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.shifts {
		if s.shifts[i].ID == sh.ID {
			s.shifts[i] = sh
			schedule.SortShifts(s.shifts)
			return
		}
	}
	s.shifts = append(s.shifts, sh)
	schedule.SortShifts(s.shifts)
}

// SetPublished marks loaded shifts Published.
func (s *State) SetPublished(ids ...string) {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.shifts {
		if _, ok := set[s.shifts[i].ID]; ok {
			s.shifts[i].PublishStatus = schedule.StatusPublished
		}
	}
}

// resolver snapshots the lists into a resolver.
func (s *State) resolver(overrides *schedule.OverrideSet) schedule.Resolver {
	return schedule.Resolver{
		Shifts:       s.Shifts(),
		Availability: s.Availability(),
		Overrides:    overrides,
	}
}
