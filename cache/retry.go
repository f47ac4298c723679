package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/warp/shift-scheduler/clock"
)

const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = time.Second
)

// Policy controls Retry. After the first failed attempt, retry n (1-based)
// waits Delay*n before calling again, up to MaxRetries retries.
type Policy struct {
	MaxRetries int
	Delay      time.Duration
}

// DefaultPolicy is three retries starting at one second.
func DefaultPolicy() Policy {
	return Policy{MaxRetries: DefaultMaxRetries, Delay: DefaultRetryDelay}
}

// Retry calls fn until it succeeds or the retries run out, returning the
// last error. A cancelled context stops the wait and returns ctx.Err().
func Retry[T any](ctx context.Context, clk clock.Clock, log *zap.Logger, p Policy, fn func(context.Context) (T, error)) (T, error) {
	if clk == nil {
		clk = clock.Real{}
	}
	if log == nil {
		log = zap.NewNop()
	}

	for attempt := 0; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if attempt >= p.MaxRetries || ctx.Err() != nil {
			var zero T
			return zero, err
		}

		log.Warn("api call failed, retrying",
			zap.Int("retry", attempt+1),
			zap.Int("max_retries", p.MaxRetries),
			zap.Error(err))

		if serr := clk.Sleep(ctx, p.Delay*time.Duration(attempt+1)); serr != nil {
			var zero T
			return zero, serr
		}
	}
}
