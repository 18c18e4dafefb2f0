package cache

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"gravl/internal/log"
)

// Resident keeps one record sequence loaded under a fixed key. Concurrent
// misses share a single fetch and the newest fetch replaces the entry. A
// fetch that started before an Invalidate never repopulates the cache.
type Resident[T any] struct {
	key    string
	cache  Cache[[]T]
	fetch  func(context.Context) ([]T, error)
	group  singleflight.Group
	logger *log.Logger

	mu  sync.Mutex
	gen uint64
}

func NewResident[T any](key string, c Cache[[]T], fetch func(context.Context) ([]T, error), logger *log.Logger) *Resident[T] {
	if logger == nil {
		logger = log.New(log.Config{Component: log.ComponentCache})
	}
	return &Resident[T]{key: key, cache: c, fetch: fetch, logger: logger}
}

// Key is the cache key the sequence lives under.
func (r *Resident[T]) Key() string { return r.key }

// Get returns the cached sequence, fetching it on a miss. Callers must treat
// the returned slice as read-only.
func (r *Resident[T]) Get(ctx context.Context) ([]T, error) {
	if records, ok := r.cache.Get(ctx, r.key); ok {
		return records, nil
	}
	return r.Refresh(ctx)
}

// Refresh fetches the sequence from the store and replaces the cache entry.
func (r *Resident[T]) Refresh(ctx context.Context) ([]T, error) {
	v, err, _ := r.group.Do(r.key, func() (any, error) {
		r.mu.Lock()
		gen := r.gen
		r.mu.Unlock()

		records, err := r.fetch(ctx)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		if gen != r.gen {
			r.logger.DebugContext(ctx, "Discarding records fetched before invalidation",
				log.FieldCacheKey, r.key,
				log.FieldOperation, log.OpRefresh)
			return records, nil
		}
		r.cache.Set(ctx, r.key, records)
		r.logger.DebugContext(ctx, "Resident records loaded",
			log.FieldCacheKey, r.key,
			log.FieldRecordCount, len(records),
			log.FieldOperation, log.OpRefresh)
		return records, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]T), nil
}

// Invalidate drops the cached sequence so the next Get refetches it.
func (r *Resident[T]) Invalidate(ctx context.Context) {
	r.mu.Lock()
	r.gen++
	r.cache.Delete(ctx, r.key)
	r.mu.Unlock()
	r.group.Forget(r.key)

	r.logger.InfoContext(ctx, "Resident records invalidated",
		log.FieldCacheKey, r.key,
		log.FieldOperation, log.OpInvalidate)
}
