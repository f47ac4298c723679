package cache_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/shift-scheduler/cache"
	"github.com/warp/shift-scheduler/clock"
	"github.com/warp/shift-scheduler/store/memory"
)

var t0 = time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)

var errDown = errors.New("vendor down")

type producer struct {
	calls   int
	results []string
	errs    []error
}

// call returns results/errs by call index; past the end it repeats the last.
func (p *producer) call(_ context.Context) ([]string, error) {
	i := p.calls
	p.calls++
	if i < len(p.errs) && p.errs[i] != nil {
		return nil, p.errs[i]
	}
	if len(p.errs) > 0 && i >= len(p.errs) && p.errs[len(p.errs)-1] != nil {
		return nil, p.errs[len(p.errs)-1]
	}
	return []string{p.results[min(i, len(p.results)-1)]}, nil
}

func newCache(store cache.Store, clk *clock.Fake) *cache.Cache {
	return cache.New(store, cache.WithClock(clk))
}

func TestFetch_ServesFreshEntryWithoutCalling(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(t0)
	c := newCache(memory.New(), clk)
	p := &producer{results: []string{"first", "second"}}
	cfg := cache.Config[[]string]{Key: "employees", Duration: 30 * time.Minute, Call: p.call}

	got, err := cache.Fetch(ctx, c, cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"first"}, got)

	clk.Advance(29 * time.Minute)
	got, err = cache.Fetch(ctx, c, cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"first"}, got)
	assert.Equal(t, 1, p.calls)
}

func TestFetch_RefreshesExpiredEntry(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(t0)
	c := newCache(memory.New(), clk)
	p := &producer{results: []string{"first", "second"}}
	cfg := cache.Config[[]string]{Key: "employees", Duration: 30 * time.Minute, Call: p.call}

	_, err := cache.Fetch(ctx, c, cfg)
	require.NoError(t, err)

	clk.Advance(31 * time.Minute)
	got, err := cache.Fetch(ctx, c, cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"second"}, got)
	assert.Equal(t, 2, p.calls)
}

func TestFetch_DefaultDurationIsOneHour(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(t0)
	c := newCache(memory.New(), clk)
	p := &producer{results: []string{"first", "second"}}
	cfg := cache.Config[[]string]{Key: "tags", Call: p.call}

	_, err := cache.Fetch(ctx, c, cfg)
	require.NoError(t, err)
	clk.Advance(59 * time.Minute)
	_, err = cache.Fetch(ctx, c, cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, p.calls)

	clk.Advance(2 * time.Minute)
	_, err = cache.Fetch(ctx, c, cfg)
	require.NoError(t, err)
	assert.Equal(t, 2, p.calls)
}

func TestFetch_ValidatorRejectionForcesCall(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(t0)
	c := newCache(memory.New(), clk)
	p := &producer{results: []string{"", "ok"}}
	cfg := cache.Config[[]string]{
		Key:       "tags",
		Call:      p.call,
		Validator: func(v []string) bool { return len(v) == 1 && v[0] != "" },
	}

	_, err := cache.Fetch(ctx, c, cfg)
	require.NoError(t, err)

	got, err := cache.Fetch(ctx, c, cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, got)
	assert.Equal(t, 2, p.calls)
}

func TestFetch_RetriesWithLinearBackoff(t *testing.T) {
	// GIVEN: the producer fails twice then succeeds
	ctx := context.Background()
	clk := clock.NewFake(t0)
	c := newCache(memory.New(), clk)
	p := &producer{errs: []error{errDown, errDown, nil}, results: []string{"", "", "ok"}}

	// WHEN
	got, err := cache.Fetch(ctx, c, cache.Config[[]string]{Key: "k", Call: p.call})

	// THEN: two waits of 1s and 2s before the successful third attempt
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, got)
	assert.Equal(t, 3, p.calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clk.Sleeps())
}

func TestFetch_FallsBackToExpiredEntry(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(t0)
	store := memory.New()
	c := newCache(store, clk)

	seed := &producer{results: []string{"stale"}}
	_, err := cache.Fetch(ctx, c, cache.Config[[]string]{Key: "k", Call: seed.call})
	require.NoError(t, err)

	clk.Advance(48 * time.Hour)
	failing := &producer{errs: []error{errDown}}
	got, err := cache.Fetch(ctx, c, cache.Config[[]string]{Key: "k", Call: failing.call})

	require.NoError(t, err)
	assert.Equal(t, []string{"stale"}, got)
	assert.Equal(t, 4, failing.calls, "first attempt plus three retries")
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}, clk.Sleeps())
}

func TestFetch_NoExpiredFallbackReturnsError(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(t0)
	c := newCache(memory.New(), clk)

	seed := &producer{results: []string{"stale"}}
	_, err := cache.Fetch(ctx, c, cache.Config[[]string]{Key: "k", Call: seed.call})
	require.NoError(t, err)

	clk.Advance(48 * time.Hour)
	failing := &producer{errs: []error{errDown}}
	_, err = cache.Fetch(ctx, c, cache.Config[[]string]{Key: "k", Call: failing.call, NoExpiredFallback: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, errDown)
}

func TestFetch_NothingCachedAndProducerFails(t *testing.T) {
	c := newCache(memory.New(), clock.NewFake(t0))
	failing := &producer{errs: []error{errDown}}

	_, err := cache.Fetch(context.Background(), c, cache.Config[[]string]{Key: "k", Call: failing.call})
	assert.ErrorIs(t, err, errDown)
}

func TestFetch_ProcessAppliesToFreshAndCached(t *testing.T) {
	ctx := context.Background()
	c := newCache(memory.New(), clock.NewFake(t0))
	p := &producer{results: []string{"a"}}
	cfg := cache.Config[[]string]{
		Key:  "k",
		Call: p.call,
		Process: func(v []string) []string {
			if len(v) == 1 {
				return append(v, "processed")
			}
			return v
		},
	}

	got, err := cache.Fetch(ctx, c, cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "processed"}, got)

	got, err = cache.Fetch(ctx, c, cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "processed"}, got)
	assert.Equal(t, 1, p.calls)
}

func TestFetch_CorruptEntryIsDeletedAndRefetched(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.Set(ctx, "k", []byte("{not json")))
	c := newCache(store, clock.NewFake(t0))
	p := &producer{results: []string{"fresh"}}

	got, err := cache.Fetch(ctx, c, cache.Config[[]string]{Key: "k", Call: p.call})
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh"}, got)

	raw, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"timestamp":`)
}

func TestFetch_QuotaClearsStoreAndRetriesWrite(t *testing.T) {
	// GIVEN: a 100 byte store already holding an 85 byte entry
	ctx := context.Background()
	store := memory.NewWithQuota(100)
	require.NoError(t, store.Set(ctx, "other", make([]byte, 80)))
	c := newCache(store, clock.NewFake(t0))
	p := &producer{results: []string{"v"}}

	// WHEN: the new envelope does not fit
	got, err := cache.Fetch(ctx, c, cache.Config[[]string]{Key: "k", Call: p.call})

	// THEN: the store was cleared and the new entry written
	require.NoError(t, err)
	assert.Equal(t, []string{"v"}, got)
	_, err = store.Get(ctx, "other")
	assert.ErrorIs(t, err, cache.ErrNotFound)
	_, err = store.Get(ctx, "k")
	assert.NoError(t, err)
}

func TestFetch_SecondQuotaFailureIsSwallowed(t *testing.T) {
	ctx := context.Background()
	store := memory.NewWithQuota(10)
	c := newCache(store, clock.NewFake(t0))
	p := &producer{results: []string{"too big for the store"}}

	got, err := cache.Fetch(ctx, c, cache.Config[[]string]{Key: "k", Call: p.call})
	require.NoError(t, err)
	assert.Equal(t, []string{"too big for the store"}, got)
	assert.Equal(t, 0, store.Len())
}

func TestInvalidate(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	c := newCache(store, clock.NewFake(t0))
	p := &producer{results: []string{"a"}}
	_, err := cache.Fetch(ctx, c, cache.Config[[]string]{Key: "employees", Call: p.call})
	require.NoError(t, err)

	require.NoError(t, c.Invalidate(ctx, "employees", "never-set"))
	assert.Equal(t, 0, store.Len())
}

func TestRetry_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	_, err := cache.Retry(ctx, clock.Real{}, nil, cache.DefaultPolicy(), func(context.Context) (int, error) {
		calls++
		return 0, errDown
	})
	assert.ErrorIs(t, err, errDown)
	assert.Equal(t, 1, calls)
}

func TestRetry_ZeroRetries(t *testing.T) {
	clk := clock.NewFake(t0)
	calls := 0
	_, err := cache.Retry(context.Background(), clk, nil, cache.Policy{}, func(context.Context) (int, error) {
		calls++
		return 0, errDown
	})
	assert.ErrorIs(t, err, errDown)
	assert.Equal(t, 1, calls)
	assert.Empty(t, clk.Sleeps())
}
