/*
store.go - Persistence interface for cache entries

PURPOSE:
  The cache keeps opaque blobs under single string keys. Store is the only
  thing it needs from local persistence, so the same cache logic runs over
  an in-memory map (tests, ephemeral CLI runs) or a SQLite file (server).

QUOTA:
  Stores may refuse a write with ErrQuotaExceeded. The cache reacts by
  clearing the whole store and retrying the write once.

IMPLEMENTATIONS:
  - store/memory: in-memory map with optional byte quota
  - store/sqlite: SQLite table with optional byte quota
*/
package cache

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Store.Get when a key has no entry.
	ErrNotFound = errors.New("cache entry not found")

	// ErrQuotaExceeded is returned by Store.Set when the write would exceed
	// the store's capacity.
	ErrQuotaExceeded = errors.New("cache quota exceeded")
)

// Store is a flat key/value blob store.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}
