package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/shift-scheduler/cache"
	"github.com/warp/shift-scheduler/scheduler"
)

func setupTestStore(t *testing.T, quota int64) *Store {
	t.Helper()
	store, err := New(":memory:", quota)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCacheEntries_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t, 0)

	_, err := store.Get(ctx, "employees")
	assert.ErrorIs(t, err, cache.ErrNotFound)

	require.NoError(t, store.Set(ctx, "employees", []byte(`{"data":[],"timestamp":1}`)))
	require.NoError(t, store.Set(ctx, "employees", []byte(`{"data":[1],"timestamp":2}`)))

	got, err := store.Get(ctx, "employees")
	require.NoError(t, err)
	assert.Equal(t, `{"data":[1],"timestamp":2}`, string(got))

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"employees"}, keys)

	require.NoError(t, store.Delete(ctx, "employees"))
	assert.ErrorIs(t, store.Delete(ctx, "employees"), cache.ErrNotFound)
}

func TestCacheEntries_Quota(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t, 20)

	require.NoError(t, store.Set(ctx, "a", []byte("0123456789")))
	assert.ErrorIs(t, store.Set(ctx, "b", []byte("0123456789")), cache.ErrQuotaExceeded)

	// Overwriting an entry only counts its new size.
	require.NoError(t, store.Set(ctx, "a", []byte("0123456789abcdef")))

	require.NoError(t, store.Clear(ctx))
	require.NoError(t, store.Set(ctx, "b", []byte("0123456789")))
}

func TestCacheEntries_WorkWithCacheFetch(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t, 0)
	c := cache.New(store)

	calls := 0
	cfg := cache.Config[[]string]{
		Key: "tags",
		Call: func(context.Context) ([]string, error) {
			calls++
			return []string{"Moving"}, nil
		},
	}
	for i := 0; i < 2; i++ {
		got, err := cache.Fetch(ctx, c, cfg)
		require.NoError(t, err)
		assert.Equal(t, []string{"Moving"}, got)
	}
	assert.Equal(t, 1, calls)
}

func TestBatchRuns(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t, 0)
	start := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)

	run := scheduler.BatchRun{
		ID:        "run-1",
		Kind:      scheduler.BatchPublish,
		ViewStart: "2024-06-03",
		ViewEnd:   "2024-06-09",
		Total:     4,
		StartedAt: start,
	}
	require.NoError(t, store.SaveRun(ctx, run))

	run.Succeeded = 3
	run.Failed = 1
	run.CompletedAt = start.Add(time.Minute)
	require.NoError(t, store.SaveRun(ctx, run))

	older := scheduler.BatchRun{ID: "run-0", Kind: scheduler.BatchCopy, ViewStart: "2024-05-27", ViewEnd: "2024-06-02", StartedAt: start.Add(-time.Hour), Stopped: true}
	require.NoError(t, store.SaveRun(ctx, older))

	runs, err := store.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-1", runs[0].ID)
	assert.Equal(t, 3, runs[0].Succeeded)
	assert.Equal(t, 1, runs[0].Failed)
	assert.True(t, runs[0].CompletedAt.Equal(start.Add(time.Minute)))
	assert.Equal(t, scheduler.BatchCopy, runs[1].Kind)
	assert.True(t, runs[1].Stopped)
	assert.True(t, runs[1].CompletedAt.IsZero())
}
