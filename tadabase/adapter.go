package tadabase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/warp/shift-scheduler/calendar"
	"github.com/warp/shift-scheduler/schedule"
)

// Tables are the vendor table ids.
type Tables struct {
	Shifts       string `yaml:"shifts"`
	Availability string `yaml:"availability"`
	Employees    string `yaml:"employees"`
	Tags         string `yaml:"tags"`
}

// DefaultTables are the production table ids.
func DefaultTables() Tables {
	return Tables{
		Shifts:       "lGArg7rmR6",
		Availability: "eykNOvrDY3",
		Employees:    "4MXQJdrZ6v",
		Tags:         "q3kjZVj6Vb",
	}
}

// Field ids.
const (
	fieldShiftEmployee = "field_58"
	fieldShiftPosition = "field_59"
	fieldShiftDate     = "field_60"
	fieldShiftTags     = "field_477"
	fieldShiftStatus   = "field_478"
	fieldShiftNotes    = "field_479"

	fieldAvailEmployee = "field_64"
	fieldAvailRange    = "field_428"
	fieldAvailKind     = "field_67"
	fieldAvailWeekdays = "field_475"

	fieldEmpDepartment = "field_427"
	fieldEmpPositions  = "field_395"
	fieldEmpTags       = "field_62"

	fieldTagName     = "field_43"
	fieldTagCategory = "field_63"
)

const (
	opOnOrAfter   = "is on or after"
	opOnOrBefore  = "is on or before"
	opIs          = "is"
	opIsNot       = "is not"
	opContainsAny = "contains_any"
)

// Adapter maps vendor records onto schedule types. It satisfies
// scheduler.Source.
type Adapter struct {
	client     *Client
	tables     Tables
	department string
	log        *zap.Logger
}

// NewAdapter binds a client to table ids. department restricts the roster
// to one department; empty means every active employee.
func NewAdapter(client *Client, tables Tables, department string, log *zap.Logger) *Adapter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Adapter{client: client, tables: tables, department: department, log: log}
}

// =============================================================================
// READS
// =============================================================================

// FetchShifts returns shifts dated within [from, to].
func (a *Adapter) FetchShifts(ctx context.Context, from, to string) ([]schedule.Shift, error) {
	recs, err := a.client.List(ctx, a.tables.Shifts, []Filter{
		{FieldID: fieldShiftDate, Operator: opOnOrAfter, Value: from},
		{FieldID: fieldShiftDate, Operator: opOnOrBefore, Value: to},
	})
	if err != nil {
		return nil, fmt.Errorf("fetch shifts: %w", err)
	}

	shifts := make([]schedule.Shift, 0, len(recs))
	for _, rec := range recs {
		s, err := shiftFromRecord(rec)
		if err != nil {
			a.log.Warn("skipping shift record", zap.String("id", rec.ID()), zap.Error(err))
			continue
		}
		shifts = append(shifts, s)
	}
	return shifts, nil
}

// FetchAvailability returns non-recurring unavailability overlapping
// [from, to]. Regular days off come from FetchRegularDayOffRules.
func (a *Adapter) FetchAvailability(ctx context.Context, from, to string) ([]schedule.Availability, error) {
	recs, err := a.client.List(ctx, a.tables.Availability, []Filter{
		{FieldID: fieldAvailRange + "-start", Operator: opOnOrBefore, Value: to},
		{FieldID: fieldAvailRange + "-end", Operator: opOnOrAfter, Value: from},
		{FieldID: fieldAvailKind, Operator: opIsNot, Value: string(schedule.KindRegularDayOff)},
	})
	if err != nil {
		return nil, fmt.Errorf("fetch availability: %w", err)
	}

	out := make([]schedule.Availability, 0, len(recs))
	for _, rec := range recs {
		av, err := availabilityFromRecord(rec)
		if err != nil {
			a.log.Warn("skipping availability record", zap.String("id", rec.ID()), zap.Error(err))
			continue
		}
		out = append(out, av)
	}
	return out, nil
}

// FetchRegularDayOffRules returns weekly day-off rules active in [from, to].
// Records without weekdays produce no rule.
func (a *Adapter) FetchRegularDayOffRules(ctx context.Context, from, to string) ([]schedule.RegularDayOffRule, error) {
	recs, err := a.client.List(ctx, a.tables.Availability, []Filter{
		{FieldID: fieldAvailKind, Operator: opIs, Value: string(schedule.KindRegularDayOff)},
		{FieldID: fieldAvailRange + "-start", Operator: opOnOrBefore, Value: to},
		{FieldID: fieldAvailRange + "-end", Operator: opOnOrAfter, Value: from},
	})
	if err != nil {
		return nil, fmt.Errorf("fetch regular days off: %w", err)
	}

	var rules []schedule.RegularDayOffRule
	for _, rec := range recs {
		rule, ok := ruleFromRecord(rec)
		if !ok {
			continue
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// FetchEmployees returns the active roster.
func (a *Adapter) FetchEmployees(ctx context.Context) ([]schedule.Employee, error) {
	var filters []Filter
	if a.department != "" {
		filters = append(filters, Filter{FieldID: fieldEmpDepartment, Operator: opContainsAny, Value: a.department})
	}
	filters = append(filters, Filter{FieldID: "status", Operator: opIs, Value: "Active"})

	recs, err := a.client.List(ctx, a.tables.Employees, filters)
	if err != nil {
		return nil, fmt.Errorf("fetch employees: %w", err)
	}

	out := make([]schedule.Employee, 0, len(recs))
	for _, rec := range recs {
		if rec.ID() == "" {
			continue
		}
		out = append(out, employeeFromRecord(rec))
	}
	return out, nil
}

// FetchTags returns the tag taxonomy.
func (a *Adapter) FetchTags(ctx context.Context) ([]schedule.Tag, error) {
	recs, err := a.client.List(ctx, a.tables.Tags, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch tags: %w", err)
	}
	out := make([]schedule.Tag, 0, len(recs))
	for _, rec := range recs {
		if rec.ID() == "" {
			continue
		}
		out = append(out, schedule.Tag{
			ID:       rec.ID(),
			Name:     rec.String(fieldTagName),
			Category: rec.String(fieldTagCategory),
		})
	}
	return out, nil
}

// GetShift reads one shift back, e.g. after a create.
func (a *Adapter) GetShift(ctx context.Context, id string) (schedule.Shift, error) {
	rec, err := a.client.Get(ctx, a.tables.Shifts, id)
	if err != nil {
		return schedule.Shift{}, fmt.Errorf("get shift %s: %w", id, err)
	}
	return shiftFromRecord(rec)
}

// =============================================================================
// WRITES
// =============================================================================

// CreateShift inserts s and returns the new record id. The status written
// is s.PublishStatus, defaulting to Not Published.
func (a *Adapter) CreateShift(ctx context.Context, s schedule.Shift) (string, error) {
	fields := shiftFields(s)
	fields[fieldShiftEmployee] = s.ResourceID
	id, err := a.client.Create(ctx, a.tables.Shifts, fields)
	if err != nil {
		return "", fmt.Errorf("create shift: %w", err)
	}
	return id, nil
}

// UpdateShift writes date, position, tags, notes and status of s. The
// employee of an existing shift never changes.
func (a *Adapter) UpdateShift(ctx context.Context, s schedule.Shift) error {
	if _, err := a.client.Update(ctx, a.tables.Shifts, s.ID, shiftFields(s)); err != nil {
		return fmt.Errorf("update shift %s: %w", s.ID, err)
	}
	return nil
}

// PublishShift marks a shift Published.
func (a *Adapter) PublishShift(ctx context.Context, id string) error {
	fields := Fields{fieldShiftStatus: string(schedule.StatusPublished)}
	if _, err := a.client.Update(ctx, a.tables.Shifts, id, fields); err != nil {
		return fmt.Errorf("publish shift %s: %w", id, err)
	}
	return nil
}

func shiftFields(s schedule.Shift) Fields {
	status := s.PublishStatus
	if status == "" {
		status = schedule.StatusNotPublished
	}
	f := Fields{
		fieldShiftDate:     s.Day(),
		fieldShiftPosition: s.PositionID,
		fieldShiftTags:     strings.Join(s.TagIDs(), ","),
		fieldShiftStatus:   string(status),
	}
	if s.Notes != "" {
		f[fieldShiftNotes] = s.Notes
	}
	return f
}

// =============================================================================
// RECORD MAPPING
// =============================================================================

func shiftFromRecord(rec Record) (schedule.Shift, error) {
	id := rec.ID()
	resource := rec.String(fieldShiftEmployee)
	if id == "" || resource == "" {
		return schedule.Shift{}, fmt.Errorf("shift %q: missing id or employee: %w", id, ErrMalformedRecord)
	}
	start, err := calendar.StartOfDay(rec.String(fieldShiftDate))
	if err != nil {
		return schedule.Shift{}, fmt.Errorf("shift %s: %w", id, err)
	}

	s := schedule.Shift{
		ID:            id,
		ResourceID:    resource,
		PositionID:    rec.String(fieldShiftPosition),
		Start:         start,
		PublishStatus: schedule.ParsePublishStatus(rec.String(fieldShiftStatus)),
		Notes:         rec.String(fieldShiftNotes),
	}
	if vals := rec.Vals(fieldShiftPosition + "_val"); len(vals) > 0 {
		s.PositionName = vals[0].Val
	}
	if vals := rec.Vals(fieldShiftTags + "_val"); len(vals) > 0 {
		for _, v := range vals {
			s.Tags = append(s.Tags, schedule.TagRef{ID: v.ID, Name: v.Val})
		}
	} else {
		for _, tid := range rec.Strings(fieldShiftTags) {
			s.Tags = append(s.Tags, schedule.TagRef{ID: tid})
		}
	}
	return s, nil
}

// availabilityFromRecord converts the vendor's inclusive range into an
// exclusive End.
func availabilityFromRecord(rec Record) (schedule.Availability, error) {
	id := rec.ID()
	resource := rec.String(fieldAvailEmployee)
	rng, ok := rec.Range(fieldAvailRange)
	if id == "" || resource == "" || !ok {
		return schedule.Availability{}, fmt.Errorf("availability %q: %w", id, ErrMalformedRecord)
	}
	start, err := calendar.StartOfDay(rng.Start)
	if err != nil {
		return schedule.Availability{}, fmt.Errorf("availability %s: %w", id, err)
	}
	end, err := calendar.AddDays(rng.End, 1)
	if err != nil {
		return schedule.Availability{}, fmt.Errorf("availability %s: %w", id, err)
	}
	return schedule.Availability{
		ID:         id,
		ResourceID: resource,
		Start:      start,
		End:        end,
		Kind:       schedule.ParseAvailabilityKind(rec.String(fieldAvailKind)),
	}, nil
}

func ruleFromRecord(rec Record) (schedule.RegularDayOffRule, bool) {
	rule := schedule.RegularDayOffRule{
		ID:         rec.ID(),
		ResourceID: rec.String(fieldAvailEmployee),
	}
	for _, name := range rec.Strings(fieldAvailWeekdays) {
		if wd, ok := calendar.ParseWeekday(name); ok {
			rule.Weekdays = append(rule.Weekdays, wd)
		}
	}
	if rule.ID == "" || rule.ResourceID == "" || len(rule.Weekdays) == 0 {
		return rule, false
	}
	if rng, ok := rec.Range(fieldAvailRange); ok {
		rule.Start = parseOrZero(rng.Start)
		rule.End = parseOrZero(rng.End)
	}
	return rule, true
}

func employeeFromRecord(rec Record) schedule.Employee {
	e := schedule.Employee{
		ID:         rec.ID(),
		Name:       rec.String("name"),
		Department: rec.Strings(fieldEmpDepartment),
		Status:     rec.String("status"),
	}
	for _, v := range rec.Vals(fieldEmpPositions + "_val") {
		e.Positions = append(e.Positions, schedule.Position{ID: v.ID, Name: v.Val})
	}
	for _, v := range rec.Vals(fieldEmpTags + "_val") {
		e.Tags = append(e.Tags, schedule.TagRef{ID: v.ID, Name: v.Val})
	}
	return e
}

func parseOrZero(s string) time.Time {
	t, err := calendar.StartOfDay(s)
	if err != nil {
		return time.Time{}
	}
	return t
}
