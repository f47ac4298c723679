/*
Package refresh serializes reloads of the calendar data.

PURPOSE:
  The calendar widget fires a refresh on every navigation, drop, and save.
  Requests arrive in bursts; only the most recent window matters, and two
  reloads must never run at once.

RULES:
  - At most one refresh runs at a time.
  - A non-initial run waits the cooldown before reading the window, so a
    burst of requests collapses into one reload of the last window asked for.
  - A request arriving while a run is still cooling down joins that run.
  - A request arriving after the running refresh has read its window queues
    a single trailing run; further requests join it.
  - Each caller gets the error of the run that served it.

The initial load skips the cooldown.

SEE ALSO:
  - periodic.go: cron-driven refresh of the current view
  - scheduler/service.go: the Refresher doing the actual fetch
*/
package refresh

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/shift-scheduler/calendar"
	"github.com/warp/shift-scheduler/clock"
)

// DefaultCooldown is the debounce applied to non-initial refreshes.
const DefaultCooldown = 800 * time.Millisecond

// ErrClosed is returned by RequestRefresh after Close.
var ErrClosed = errors.New("refresh coordinator closed")

// Refresher reloads data for a window.
type Refresher interface {
	Refresh(ctx context.Context, window calendar.ViewWindow) error
}

// RefresherFunc adapts a function to Refresher.
type RefresherFunc func(ctx context.Context, window calendar.ViewWindow) error

func (f RefresherFunc) Refresh(ctx context.Context, window calendar.ViewWindow) error {
	return f(ctx, window)
}

type run struct {
	done        chan struct{}
	initial     bool
	snapshotted bool
	err         error
	window      calendar.ViewWindow
}

// Coordinator is the single-flight, latest-wins refresh gate.
type Coordinator struct {
	refresher Refresher
	clock     clock.Clock
	log       *zap.Logger
	cooldown  time.Duration

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	closed      bool
	current     *run
	next        *run
	latest      calendar.View
	lastRefresh time.Time
	lastWindow  calendar.ViewWindow
}

// Option configures a Coordinator.
type Option func(*Coordinator)

func WithClock(c clock.Clock) Option { return func(co *Coordinator) { co.clock = c } }

func WithLogger(l *zap.Logger) Option { return func(co *Coordinator) { co.log = l } }

// WithCooldown overrides DefaultCooldown. Zero disables the wait.
func WithCooldown(d time.Duration) Option { return func(co *Coordinator) { co.cooldown = d } }

// New creates a coordinator. Call Close to stop pending runs.
func New(r Refresher, opts ...Option) *Coordinator {
	c := &Coordinator{
		refresher: r,
		clock:     clock.Real{},
		log:       zap.NewNop(),
		cooldown:  DefaultCooldown,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.base, c.cancel = context.WithCancel(context.Background())
	return c
}

// RequestRefresh asks for the data of view to be loaded and waits for the
// run that serves it. Cancelling ctx stops the wait, not the run.
func (c *Coordinator) RequestRefresh(ctx context.Context, view calendar.View, initial bool) error {
	if _, err := calendar.GetViewDateInfo(view, c.clock.Now()); err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.latest = view

	var r *run
	switch {
	case c.current == nil:
		r = &run{done: make(chan struct{}), initial: initial}
		c.current = r
		c.wg.Add(1)
		go c.execute(r)
	case !c.current.snapshotted:
		r = c.current
	default:
		if c.next == nil {
			c.next = &run{done: make(chan struct{})}
		}
		r = c.next
	}
	c.mu.Unlock()

	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) execute(r *run) {
	defer c.wg.Done()

	for r != nil {
		err := c.runOnce(r)

		c.mu.Lock()
		r.err = err
		if err == nil {
			c.lastRefresh = c.clock.Now()
			c.lastWindow = r.window
		}
		close(r.done)
		r, c.next = c.next, nil
		c.current = r
		c.mu.Unlock()
	}
}

func (c *Coordinator) runOnce(r *run) error {
	if !r.initial && c.cooldown > 0 {
		if err := c.clock.Sleep(c.base, c.cooldown); err != nil {
			c.mu.Lock()
			r.snapshotted = true
			c.mu.Unlock()
			return err
		}
	}

	c.mu.Lock()
	view := c.latest
	r.snapshotted = true
	c.mu.Unlock()

	window, err := calendar.GetViewDateInfo(view, c.clock.Now())
	if err != nil {
		return err
	}
	r.window = window

	start := c.clock.Now()
	if err := c.refresher.Refresh(c.base, window); err != nil {
		c.log.Error("refresh failed", zap.Stringer("window", window), zap.Error(err))
		return err
	}
	c.log.Debug("refresh complete",
		zap.Stringer("window", window),
		zap.Duration("took", c.clock.Now().Sub(start)))
	return nil
}

// Busy reports whether a refresh is running or queued.
func (c *Coordinator) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil
}

// LastRefresh returns the completion time and window of the last
// successful refresh. ok is false before the first one.
func (c *Coordinator) LastRefresh() (at time.Time, window calendar.ViewWindow, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRefresh, c.lastWindow, !c.lastRefresh.IsZero()
}

// Close cancels pending runs and waits for the worker to exit.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancel()
	c.wg.Wait()
}
