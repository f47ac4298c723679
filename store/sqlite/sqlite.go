/*
Package sqlite provides a SQLite-backed cache.Store and batch run history.

PURPOSE:
  Local persistence for the scheduler process. Shifts and availability are
  owned by the vendor platform and never stored here; only the reference
  data cache (employees, tags) and the audit trail of publish/copy runs.

INTERFACES IMPLEMENTED:
  cache.Store:        Get / Set / Delete / Clear of cache envelopes
  scheduler.RunStore: SaveRun / ListRuns for batch run history

KEY TABLES:
  cache_entries: key -> JSON envelope, with updated_at for inspection
  batch_runs:    one row per publish or copy run, upserted on progress

QUOTA:
  When opened with a positive quota, Set refuses writes that would push the
  total size of keys plus payloads past it, returning cache.ErrQuotaExceeded.
  The check and the write happen in one transaction.

WAL MODE:
  Opened with WAL so the API can read while a refresh writes.

USAGE:
  store, err := sqlite.New("./data/scheduler.db", 5<<20)
  if err != nil {
      return err
  }
  defer store.Close()

  c := cache.New(store, cache.WithLogger(log))

SEE ALSO:
  - cache/store.go: Store interface
  - store/memory: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/shift-scheduler/cache"
	"github.com/warp/shift-scheduler/scheduler"
)

// Store implements cache.Store and scheduler.RunStore using SQLite.
type Store struct {
	db    *sql.DB
	mu    sync.RWMutex
	quota int64
}

// New opens (creating if needed) the database at dbPath. Use ":memory:"
// for a throwaway database. quota <= 0 disables the cache size limit.
func New(dbPath string, quota int64) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Every :memory: connection is a separate database.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, quota: quota}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS cache_entries (
		key TEXT PRIMARY KEY,
		payload BLOB NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS batch_runs (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		view_start TEXT NOT NULL,
		view_end TEXT NOT NULL,
		total INTEGER NOT NULL DEFAULT 0,
		succeeded INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		stopped BOOLEAN NOT NULL DEFAULT FALSE,
		started_at TEXT NOT NULL,
		completed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_batch_runs_started
		ON batch_runs(started_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// CACHE STORE (cache.Store interface)
// =============================================================================

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM cache_entries WHERE key = ?`, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cache.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache entry: %w", err)
	}
	return payload, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if s.quota > 0 {
		var used int64
		err := tx.QueryRowContext(ctx, `
			SELECT COALESCE(SUM(LENGTH(key) + LENGTH(payload)), 0)
			FROM cache_entries WHERE key <> ?`, key).Scan(&used)
		if err != nil {
			return fmt.Errorf("failed to measure cache: %w", err)
		}
		if used+int64(len(key)+len(value)) > s.quota {
			return cache.ErrQuotaExceeded
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO cache_entries (key, payload, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return tx.Commit()
}

func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return cache.ErrNotFound
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries`); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}

// Keys lists cached keys, for the CLI.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT key FROM cache_entries ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// =============================================================================
// BATCH RUN HISTORY (scheduler.RunStore interface)
// =============================================================================

// SaveRun upserts the run row.
func (s *Store) SaveRun(ctx context.Context, run scheduler.BatchRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var completed any
	if !run.CompletedAt.IsZero() {
		completed = run.CompletedAt.UTC().Format(time.RFC3339)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO batch_runs
		(id, kind, view_start, view_end, total, succeeded, failed, stopped, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			total = excluded.total,
			succeeded = excluded.succeeded,
			failed = excluded.failed,
			stopped = excluded.stopped,
			completed_at = excluded.completed_at`,
		run.ID,
		string(run.Kind),
		run.ViewStart,
		run.ViewEnd,
		run.Total,
		run.Succeeded,
		run.Failed,
		run.Stopped,
		run.StartedAt.UTC().Format(time.RFC3339),
		completed,
	)
	if err != nil {
		return fmt.Errorf("failed to save batch run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]scheduler.BatchRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, view_start, view_end, total, succeeded, failed, stopped, started_at, completed_at
		FROM batch_runs
		ORDER BY started_at DESC, id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list batch runs: %w", err)
	}
	defer rows.Close()

	var runs []scheduler.BatchRun
	for rows.Next() {
		var (
			r         scheduler.BatchRun
			kind      string
			started   string
			completed sql.NullString
		)
		if err := rows.Scan(&r.ID, &kind, &r.ViewStart, &r.ViewEnd, &r.Total, &r.Succeeded,
			&r.Failed, &r.Stopped, &started, &completed); err != nil {
			return nil, err
		}
		r.Kind = scheduler.BatchKind(kind)
		r.StartedAt, _ = time.Parse(time.RFC3339, started)
		if completed.Valid {
			r.CompletedAt, _ = time.Parse(time.RFC3339, completed.String)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
