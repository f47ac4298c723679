package scheduler

import (
	"context"
	"time"

	"github.com/warp/shift-scheduler/calendar"
	"github.com/warp/shift-scheduler/schedule"
)

// Source is the system of record for shifts, availability and the
// reference data. Date arguments are inclusive YYYY-MM-DD bounds.
type Source interface {
	FetchShifts(ctx context.Context, from, to string) ([]schedule.Shift, error)
	FetchAvailability(ctx context.Context, from, to string) ([]schedule.Availability, error)
	FetchRegularDayOffRules(ctx context.Context, from, to string) ([]schedule.RegularDayOffRule, error)
	FetchEmployees(ctx context.Context) ([]schedule.Employee, error)
	FetchTags(ctx context.Context) ([]schedule.Tag, error)

	GetShift(ctx context.Context, id string) (schedule.Shift, error)
	CreateShift(ctx context.Context, s schedule.Shift) (string, error)
	UpdateShift(ctx context.Context, s schedule.Shift) error
	PublishShift(ctx context.Context, id string) error
}

// BatchKind names a batch operation.
type BatchKind string

const (
	BatchPublish BatchKind = "publish"
	BatchCopy    BatchKind = "copy_week"
)

// BatchRun is the persisted summary of one batch operation.
type BatchRun struct {
	ID          string    `json:"id"`
	Kind        BatchKind `json:"kind"`
	ViewStart   string    `json:"view_start"`
	ViewEnd     string    `json:"view_end"`
	Total       int       `json:"total"`
	Succeeded   int       `json:"succeeded"`
	Failed      int       `json:"failed"`
	Stopped     bool      `json:"stopped"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

// RunStore keeps the batch run history.
type RunStore interface {
	SaveRun(ctx context.Context, run BatchRun) error
	ListRuns(ctx context.Context, limit int) ([]BatchRun, error)
}

// RefreshRequester schedules a reload of a view. refresh.Coordinator
// implements it.
type RefreshRequester interface {
	RequestRefresh(ctx context.Context, view calendar.View, initial bool) error
}
