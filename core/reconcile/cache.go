package reconcile

import (
	"context"
	"sync"
	"time"

	"idm-reconciler/core/connid"
	"idm-reconciler/core/model"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// ReconcileCache holds the indices of both sides.
type ReconcileCache struct {
	Internal map[string]*model.Any
	External map[string]*connid.ConnectorObject

	Built time.Time
	TTL   time.Duration
}

// IsExpired reports whether the cache must be rebuilt. A zero TTL always expires.
func (c *ReconcileCache) IsExpired() bool {
	if c.TTL == 0 {
		return true
	}
	return time.Since(c.Built) > c.TTL
}

type cacheStore struct {
	mu     sync.RWMutex
	caches map[string]*ReconcileCache
	sf     singleflight.Group
}

var globalCacheStore = &cacheStore{
	caches: make(map[string]*ReconcileCache),
}

// BuildCache loads both indices concurrently. The cache is not stored.
func BuildCache(ctx context.Context, spec *Spec) (*ReconcileCache, error) {
	cache := &ReconcileCache{TTL: spec.CacheTTL}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		idx, err := spec.Adapter.LoadInternalIndex(gctx)
		cache.Internal = idx
		return err
	})
	g.Go(func() error {
		idx, err := spec.Adapter.LoadExternalIndex(gctx)
		cache.External = idx
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	cache.Built = time.Now()
	return cache, nil
}

// GetOrBuildCache returns the stored cache of spec, rebuilding it when missing or
// expired. Concurrent rebuilds of the same key are collapsed.
func GetOrBuildCache(ctx context.Context, spec *Spec) (*ReconcileCache, error) {
	key := spec.CacheKey()

	globalCacheStore.mu.RLock()
	cache, ok := globalCacheStore.caches[key]
	globalCacheStore.mu.RUnlock()
	if ok && !cache.IsExpired() {
		return cache, nil
	}

	result, err, _ := globalCacheStore.sf.Do(key, func() (any, error) {
		globalCacheStore.mu.RLock()
		cache, ok := globalCacheStore.caches[key]
		globalCacheStore.mu.RUnlock()
		if ok && !cache.IsExpired() {
			return cache, nil
		}

		fresh, err := BuildCache(ctx, spec)
		if err != nil {
			return nil, err
		}

		globalCacheStore.mu.Lock()
		globalCacheStore.caches[key] = fresh
		globalCacheStore.mu.Unlock()
		return fresh, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*ReconcileCache), nil
}

// InvalidateCache drops the stored cache of spec.
func InvalidateCache(spec *Spec) {
	globalCacheStore.mu.Lock()
	delete(globalCacheStore.caches, spec.CacheKey())
	globalCacheStore.mu.Unlock()
}
