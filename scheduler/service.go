/*
Package scheduler is the application layer of the shift calendar.

PURPOSE:
  Owns the loaded view (State), the user's availability overrides, and
  every operation the calendar performs: refresh, reference data loading,
  add / edit / move of shifts, publish and copy-week batches, and the
  statistics shown in the header.

DATA FLOW:
  Source (vendor API) --Refresh--> State --reads--> Resolver / stats
                      <--writes--- AddShift / EditShift / MoveShift / batches

  Reference data (employees, tags) goes through the cache so a vendor outage
  still leaves a usable roster.

CONFLICTS:
  Shift and suspension conflicts always refuse the write. Availability
  conflicts refuse it unless the caller confirms an override, which is then
  recorded for the rest of the form session.

CONCURRENCY:
  State and the override set are safe for concurrent use. Two writers can
  still both pass the conflict check for the same day; the vendor does not
  enforce uniqueness.

SEE ALSO:
  - batch.go: publish and copy-week
  - events.go: calendar widget events
  - schedule/resolver.go: conflict precedence
*/
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/warp/shift-scheduler/cache"
	"github.com/warp/shift-scheduler/calendar"
	"github.com/warp/shift-scheduler/clock"
	"github.com/warp/shift-scheduler/schedule"
)

// Cache keys of the reference data.
const (
	EmployeesCacheKey = "employeesData"
	TagsCacheKey      = "tagsData"
)

// Config holds the tunables of the service.
type Config struct {
	// AvailabilityBufferDays widens availability fetches on both sides.
	AvailabilityBufferDays int
	EmployeesTTL           time.Duration
	TagsTTL                time.Duration
	// CopyDelay paces copy-week creates.
	CopyDelay time.Duration
}

// DefaultConfig returns the production tunables.
func DefaultConfig() Config {
	return Config{
		AvailabilityBufferDays: 7,
		EmployeesTTL:           30 * time.Minute,
		TagsTTL:                time.Hour,
		CopyDelay:              800 * time.Millisecond,
	}
}

// Service implements the calendar operations.
type Service struct {
	source    Source
	cache     *cache.Cache
	state     *State
	overrides *schedule.OverrideSet
	clock     clock.Clock
	log       *zap.Logger
	cfg       Config
	runs      RunStore

	refresher  RefreshRequester
	onRefresh  func(calendar.ViewWindow)
	onProgress func(Progress)

	batchMu sync.Mutex
	batch   *batchState
	last    *Progress

	bg sync.WaitGroup
}

// Option configures a Service.
type Option func(*Service)

func WithClock(c clock.Clock) Option { return func(s *Service) { s.clock = c } }

func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.log = l } }

func WithConfig(c Config) Option { return func(s *Service) { s.cfg = c } }

// WithRunStore persists batch run summaries.
func WithRunStore(r RunStore) Option { return func(s *Service) { s.runs = r } }

// WithRefreshHook is called after every successful Refresh.
func WithRefreshHook(fn func(calendar.ViewWindow)) Option {
	return func(s *Service) { s.onRefresh = fn }
}

// WithProgressHook is called after every batch item.
func WithProgressHook(fn func(Progress)) Option {
	return func(s *Service) { s.onProgress = fn }
}

// New creates a service over source. c caches reference data.
func New(source Source, c *cache.Cache, opts ...Option) *Service {
	s := &Service{
		source:    source,
		cache:     c,
		state:     NewState(),
		overrides: schedule.NewOverrideSet(),
		clock:     clock.Real{},
		log:       zap.NewNop(),
		cfg:       DefaultConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetRefresher wires the refresh coordinator used after writes and on
// navigation. The coordinator itself calls back into Refresh.
func (s *Service) SetRefresher(r RefreshRequester) {
	s.refresher = r
}

// State exposes the loaded view.
func (s *Service) State() *State { return s.state }

// Overrides exposes the override set of the current form session.
func (s *Service) Overrides() *schedule.OverrideSet { return s.overrides }

// Close waits for background refresh requests issued after writes.
func (s *Service) Close() {
	s.bg.Wait()
}

// =============================================================================
// LOADING
// =============================================================================

// Refresh reloads shifts and availability for window. Shifts and
// availability are fetched concurrently; regular days off are synthesized
// against the fresh availability. On error the state is left untouched.
func (s *Service) Refresh(ctx context.Context, window calendar.ViewWindow) error {
	from, to := window.FetchRange(s.cfg.AvailabilityBufferDays)

	var (
		shifts       []schedule.Shift
		availability []schedule.Availability
		rules        []schedule.RegularDayOffRule
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		shifts, err = s.source.FetchShifts(gctx, window.StartStr, window.EndStr)
		return err
	})
	g.Go(func() error {
		var err error
		availability, err = s.source.FetchAvailability(gctx, from, to)
		return err
	})
	g.Go(func() error {
		var err error
		rules, err = s.source.FetchRegularDayOffRules(gctx, from, to)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("refresh %s: %w", window, err)
	}

	generated, err := schedule.SynthesizeRegularDaysOff(rules, window, availability)
	if err != nil {
		return fmt.Errorf("refresh %s: %w", window, err)
	}
	availability = append(availability, generated...)

	s.state.Replace(window, s.decorate(shifts), availability)
	s.log.Info("view refreshed",
		zap.Stringer("window", window),
		zap.Int("shifts", len(shifts)),
		zap.Int("availability", len(availability)),
		zap.Int("generated_days_off", len(generated)))

	if s.onRefresh != nil {
		s.onRefresh(window)
	}
	return nil
}

// LoadReference loads the roster and tag taxonomy through the cache.
func (s *Service) LoadReference(ctx context.Context) error {
	var (
		employees []schedule.Employee
		tags      []schedule.Tag
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		employees, err = cache.Fetch(gctx, s.cache, cache.Config[[]schedule.Employee]{
			Key:       EmployeesCacheKey,
			Duration:  s.cfg.EmployeesTTL,
			Call:      s.source.FetchEmployees,
			Validator: validEmployees,
			Process:   schedule.SortEmployees,
		})
		return err
	})
	g.Go(func() error {
		var err error
		tags, err = cache.Fetch(gctx, s.cache, cache.Config[[]schedule.Tag]{
			Key:       TagsCacheKey,
			Duration:  s.cfg.TagsTTL,
			Call:      s.source.FetchTags,
			Validator: validTags,
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("load reference data: %w", err)
	}

	s.state.SetReference(employees, tags)
	s.log.Info("reference data loaded", zap.Int("employees", len(employees)), zap.Int("tags", len(tags)))
	return nil
}

// ReloadReference drops the cached reference data and loads it again.
func (s *Service) ReloadReference(ctx context.Context) error {
	if err := s.cache.Invalidate(ctx, EmployeesCacheKey, TagsCacheKey); err != nil {
		return err
	}
	return s.LoadReference(ctx)
}

func validEmployees(es []schedule.Employee) bool {
	for _, e := range es {
		if e.ID == "" {
			return false
		}
	}
	return true
}

func validTags(ts []schedule.Tag) bool {
	for _, t := range ts {
		if t.ID == "" {
			return false
		}
	}
	return true
}

// decorate fills position and tag names from the reference data when the
// source left them empty.
func (s *Service) decorate(shifts []schedule.Shift) []schedule.Shift {
	tagNames := make(map[string]string)
	for _, t := range s.state.Tags() {
		tagNames[t.ID] = t.Name
	}
	for i := range shifts {
		sh := &shifts[i]
		if sh.PositionName == "" {
			if e, ok := s.state.Employee(sh.ResourceID); ok {
				sh.PositionName, _ = e.PositionName(sh.PositionID)
			}
		}
		for j := range sh.Tags {
			if sh.Tags[j].Name == "" {
				sh.Tags[j].Name = tagNames[sh.Tags[j].ID]
			}
		}
	}
	return shifts
}

// =============================================================================
// FORM SESSIONS
// =============================================================================

// BeginSession starts an add or edit form: overrides from any earlier form
// are discarded.
func (s *Service) BeginSession() {
	s.overrides.Clear()
}

// EndSession closes the form.
func (s *Service) EndSession() {
	s.overrides.Clear()
}

// Check resolves (resourceID, day) against the loaded view, honouring
// overrides. excludeShiftID names a shift being edited.
func (s *Service) Check(resourceID string, day time.Time, excludeShiftID string) *schedule.Conflict {
	return s.state.resolver(s.overrides).CheckExcluding(resourceID, day, excludeShiftID)
}

// AddOverride records the user's confirmation to schedule resourceID on day
// over an availability conflict. Only overridable conflicts are accepted:
// shift and suspension conflicts come back as *schedule.ConflictError, a
// clear day as ErrNothingToOverride. excludeShiftID names a shift being edited.
func (s *Service) AddOverride(resourceID string, day time.Time, excludeShiftID string) error {
	if _, ok := s.state.Window(); !ok {
		return ErrNoView
	}
	c := s.state.resolver(nil).CheckExcluding(resourceID, day, excludeShiftID)
	if c == nil {
		return fmt.Errorf("%s on %s: %w", resourceID, day.Format(calendar.DayLayout), ErrNothingToOverride)
	}
	if !c.Overridable() {
		return &schedule.ConflictError{ResourceID: resourceID, Date: day.Format(calendar.DayLayout), Conflict: c}
	}
	s.overrides.Add(resourceID, day)
	return nil
}

// DisabledDates lists the days the date picker must refuse for resourceID.
func (s *Service) DisabledDates(resourceID, currentShiftID string) ([]string, error) {
	window, ok := s.state.Window()
	if !ok {
		return nil, ErrNoView
	}
	return s.state.resolver(s.overrides).DisabledDates(window, resourceID, currentShiftID), nil
}

// =============================================================================
// WRITES
// =============================================================================

// ShiftInput is the add/edit form.
type ShiftInput struct {
	ResourceID string   `json:"resource_id"`
	PositionID string   `json:"position_id"`
	Date       string   `json:"date"`
	Tags       []string `json:"tags,omitempty"`
	Notes      string   `json:"notes,omitempty"`
	// Override confirms scheduling over an availability conflict.
	Override bool `json:"override,omitempty"`
}

// AddShift creates a shift after checking for conflicts.
func (s *Service) AddShift(ctx context.Context, in ShiftInput) (schedule.Shift, error) {
	if in.ResourceID == "" {
		return schedule.Shift{}, &ValidationError{Field: "resource_id", Reason: "is required"}
	}
	day, err := s.validateForm(in)
	if err != nil {
		return schedule.Shift{}, err
	}
	if err := s.checkWrite(in.ResourceID, day, "", in.Override); err != nil {
		return schedule.Shift{}, err
	}

	sh := schedule.Shift{
		ResourceID:    in.ResourceID,
		PositionID:    in.PositionID,
		Start:         day,
		PublishStatus: schedule.StatusNotPublished,
		Tags:          tagRefs(in.Tags),
		Notes:         in.Notes,
	}
	id, err := s.source.CreateShift(ctx, sh)
	if err != nil {
		return schedule.Shift{}, fmt.Errorf("add shift: %w", err)
	}
	sh.ID = id
	sh = s.decorate([]schedule.Shift{sh})[0]

	s.state.UpsertShift(sh)
	s.overrides.Clear()
	s.log.Info("shift added", zap.String("id", id), zap.String("resource", sh.ResourceID), zap.String("date", sh.Day()))
	s.refreshAfterWrite()
	return sh, nil
}

// EditShift updates position, date, tags and notes of a loaded shift. The
// shift never conflicts with itself; keeping its day skips the check.
func (s *Service) EditShift(ctx context.Context, id string, in ShiftInput) (schedule.Shift, error) {
	existing, ok := s.state.Shift(id)
	if !ok {
		return schedule.Shift{}, fmt.Errorf("edit %s: %w", id, ErrShiftNotFound)
	}
	if in.ResourceID != "" && in.ResourceID != existing.ResourceID {
		return schedule.Shift{}, ErrCrossResourceMove
	}
	day, err := s.validateForm(in)
	if err != nil {
		return schedule.Shift{}, err
	}
	if !calendar.IsSameDate(day, existing.Start) {
		if err := s.checkWrite(existing.ResourceID, day, id, in.Override); err != nil {
			return schedule.Shift{}, err
		}
	}

	updated := existing
	updated.PositionID = in.PositionID
	updated.PositionName = ""
	updated.Start = day
	updated.Tags = tagRefs(in.Tags)
	updated.Notes = in.Notes
	updated.PublishStatus = existing.PublishStatus.AfterFormEdit()

	if err := s.source.UpdateShift(ctx, updated); err != nil {
		return schedule.Shift{}, fmt.Errorf("edit shift: %w", err)
	}
	updated = s.decorate([]schedule.Shift{updated})[0]

	s.state.UpsertShift(updated)
	s.overrides.Clear()
	s.log.Info("shift edited", zap.String("id", id), zap.String("date", updated.Day()))
	s.refreshAfterWrite()
	return updated, nil
}

// MoveShift drags a shift to another day of the same employee. A refused
// move returns the error and leaves the shift where it was.
func (s *Service) MoveShift(ctx context.Context, id, resourceID string, newDay time.Time, override bool) (schedule.Shift, error) {
	existing, ok := s.state.Shift(id)
	if !ok {
		return schedule.Shift{}, fmt.Errorf("move %s: %w", id, ErrShiftNotFound)
	}
	if resourceID != "" && resourceID != existing.ResourceID {
		return schedule.Shift{}, ErrCrossResourceMove
	}
	day, err := calendar.StartOfDay(newDay)
	if err != nil {
		return schedule.Shift{}, &ValidationError{Field: "date", Reason: err.Error()}
	}
	if window, ok := s.state.Window(); ok && !window.IsWithinView(day) {
		return schedule.Shift{}, fmt.Errorf("%s: %w", day.Format(calendar.DayLayout), ErrOutsideView)
	}
	if err := s.checkWrite(existing.ResourceID, day, id, override); err != nil {
		return schedule.Shift{}, err
	}

	moved := existing
	moved.Start = day
	moved.PublishStatus = existing.PublishStatus.AfterEdit()
	if err := s.source.UpdateShift(ctx, moved); err != nil {
		return schedule.Shift{}, fmt.Errorf("move shift: %w", err)
	}
	if fresh, err := s.source.GetShift(ctx, id); err == nil {
		moved = s.decorate([]schedule.Shift{fresh})[0]
	} else {
		s.log.Warn("re-reading moved shift failed", zap.String("id", id), zap.Error(err))
	}

	s.state.UpsertShift(moved)
	s.log.Info("shift moved", zap.String("id", id), zap.String("from", existing.Day()), zap.String("to", moved.Day()))
	s.refreshAfterWrite()
	return moved, nil
}

func (s *Service) validateForm(in ShiftInput) (time.Time, error) {
	if in.PositionID == "" {
		return time.Time{}, &ValidationError{Field: "position_id", Reason: "is required"}
	}
	day, err := calendar.StartOfDay(in.Date)
	if err != nil {
		return time.Time{}, &ValidationError{Field: "date", Reason: "must be YYYY-MM-DD"}
	}
	if window, ok := s.state.Window(); ok && !window.IsWithinView(day) {
		return time.Time{}, fmt.Errorf("%s: %w", day.Format(calendar.DayLayout), ErrOutsideView)
	}
	return day, nil
}

// checkWrite refuses fatal conflicts and unconfirmed availability
// conflicts. A confirmed override is recorded.
func (s *Service) checkWrite(resourceID string, day time.Time, excludeShiftID string, override bool) error {
	c := s.Check(resourceID, day, excludeShiftID)
	if c == nil {
		return nil
	}
	if c.Overridable() && override {
		s.overrides.Add(resourceID, day)
		return nil
	}
	return &schedule.ConflictError{ResourceID: resourceID, Date: day.Format(calendar.DayLayout), Conflict: c}
}

func (s *Service) refreshAfterWrite() {
	if s.refresher == nil {
		return
	}
	view, ok := s.state.View()
	if !ok {
		window, hasWindow := s.state.Window()
		if !hasWindow {
			return
		}
		view = window.View()
	}
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		if err := s.refresher.RequestRefresh(context.Background(), view, false); err != nil {
			s.log.Warn("refresh after write failed", zap.Error(err))
		}
	}()
}

func tagRefs(ids []string) []schedule.TagRef {
	var refs []schedule.TagRef
	for _, id := range ids {
		if id != "" {
			refs = append(refs, schedule.TagRef{ID: id})
		}
	}
	return refs
}

// =============================================================================
// STATISTICS
// =============================================================================

// CountUnpublished counts shifts in view waiting for publish.
func (s *Service) CountUnpublished() (schedule.PublishCounts, error) {
	window, ok := s.state.Window()
	if !ok {
		return schedule.PublishCounts{}, ErrNoView
	}
	return schedule.CountUnpublished(s.state.Shifts(), window), nil
}

// CountShiftsToCopy counts the shifts copy-week would duplicate.
func (s *Service) CountShiftsToCopy() (int, error) {
	window, ok := s.state.Window()
	if !ok {
		return 0, ErrNoView
	}
	return len(schedule.ShiftsInView(s.state.Shifts(), window)), nil
}

// WeeklyShiftCounts counts shifts in view per employee.
func (s *Service) WeeklyShiftCounts() (map[string]int, error) {
	window, ok := s.state.Window()
	if !ok {
		return nil, ErrNoView
	}
	return schedule.WeeklyShiftCounts(s.state.Shifts(), window), nil
}

// TagStatistics aggregates tags of the shifts on day.
func (s *Service) TagStatistics(day time.Time) (schedule.TagStats, error) {
	return schedule.TagStatistics(s.state.Shifts(), s.state.Tags(), day)
}
