package vectorstore

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// cacheEntry is a resolved backend handle for one tenant.
type cacheEntry struct {
	store   Store
	backend string
}

// TenantIndexCache caches the resolved backend handle per tenant so the
// retrieval hot path skips backend selection and index loading.
//
// The cache is an injectable service, not a package global: each Router
// owns one. Entries are keyed by tenant; concurrent misses for the same
// tenant are deduplicated through singleflight so the loader runs once.
// Invalidate removes one tenant without disturbing the rest.
type TenantIndexCache struct {
	entries sync.Map // tenantID -> cacheEntry
	group   singleflight.Group
	logger  *zap.Logger
}

// NewTenantIndexCache creates an empty cache.
func NewTenantIndexCache(logger *zap.Logger) *TenantIndexCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TenantIndexCache{logger: logger}
}

// Get returns the tenant's cached handle, loading it via load on a miss.
// A cache hit performs no storage access.
func (c *TenantIndexCache) Get(ctx context.Context, tenantID string, load func(ctx context.Context) (Store, error)) (Store, error) {
	if entry, ok := c.entries.Load(tenantID); ok {
		cacheHits.Inc()
		return entry.(cacheEntry).store, nil
	}

	v, err, _ := c.group.Do(tenantID, func() (interface{}, error) {
		// Double-check: another goroutine may have populated the entry
		// between the Load above and acquiring the flight. Only a failed
		// double-check counts as a miss.
		if entry, ok := c.entries.Load(tenantID); ok {
			cacheHits.Inc()
			return entry.(cacheEntry).store, nil
		}
		cacheMisses.Inc()

		store, err := load(ctx)
		if err != nil {
			return nil, err
		}

		c.entries.Store(tenantID, cacheEntry{store: store, backend: store.Name()})

		c.logger.Debug("tenant index cached",
			zap.String("tenant_id", tenantID),
			zap.String("backend", store.Name()),
		)
		return store, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Store), nil
}

// Backend returns the cached backend discriminator for the tenant, or ""
// when the tenant is not cached.
func (c *TenantIndexCache) Backend(tenantID string) string {
	if entry, ok := c.entries.Load(tenantID); ok {
		return entry.(cacheEntry).backend
	}
	return ""
}

// Invalidate drops the tenant's entry. The next access reloads from
// storage. Other tenants' entries are untouched.
func (c *TenantIndexCache) Invalidate(tenantID string) {
	if _, ok := c.entries.LoadAndDelete(tenantID); ok {
		cacheInvalidations.Inc()
		c.logger.Debug("tenant index invalidated",
			zap.String("tenant_id", tenantID),
		)
	}
}

// Len returns the number of cached tenants.
func (c *TenantIndexCache) Len() int {
	n := 0
	c.entries.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}
