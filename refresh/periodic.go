package refresh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/warp/shift-scheduler/calendar"
)

// ViewFunc reports the view currently on screen. ok is false before the
// widget has reported one.
type ViewFunc func() (view calendar.View, ok bool)

// Periodic requests a refresh of the current view on a cron schedule, so
// changes made by other users show up without navigation.
type Periodic struct {
	coord   *Coordinator
	current ViewFunc
	log     *zap.Logger

	cron    *cron.Cron
	entry   cron.EntryID
	mu      sync.Mutex
	started bool
}

// NewPeriodic parses expr (standard five-field cron) and binds it to coord.
func NewPeriodic(coord *Coordinator, expr string, current ViewFunc, log *zap.Logger) (*Periodic, error) {
	if log == nil {
		log = zap.NewNop()
	}
	p := &Periodic{
		coord:   coord,
		current: current,
		log:     log,
		cron:    cron.New(cron.WithLogger(cronLogger{log.Sugar()})),
	}
	id, err := p.cron.AddFunc(expr, p.tick)
	if err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", expr, err)
	}
	p.entry = id
	return p, nil
}

// Start begins the schedule.
func (p *Periodic) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.cron.Start()
	p.started = true
	p.log.Info("periodic refresh started", zap.Time("next", p.Next()))
}

// Stop halts the schedule and waits for a running tick to finish.
func (p *Periodic) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return
	}
	<-p.cron.Stop().Done()
	p.started = false
	p.log.Info("periodic refresh stopped")
}

// RunNow performs one tick synchronously.
func (p *Periodic) RunNow(ctx context.Context) error {
	view, ok := p.current()
	if !ok {
		return nil
	}
	return p.coord.RequestRefresh(ctx, view, false)
}

// Next returns when the next tick is due. Zero until Start.
func (p *Periodic) Next() time.Time {
	return p.cron.Entry(p.entry).Next
}

func (p *Periodic) tick() {
	if err := p.RunNow(context.Background()); err != nil {
		p.log.Warn("periodic refresh failed", zap.Error(err))
	}
}

type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
