package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// routerTracer for OpenTelemetry instrumentation.
var routerTracer = otel.Tracer("docvault.vectorstore.router")

// Router selects a backend per tenant and caches the resolved handle.
//
// The persistent backend is chosen whenever it is configured and
// reachable at load time; otherwise the tenant lands on the embedded
// ephemeral backend. Retrieval failures and empty results from the
// persistent backend fall back to the ephemeral one without touching the
// cached selection.
type Router struct {
	persistent Store // optional
	ephemeral  Store
	cache      *TenantIndexCache
	logger     *zap.Logger
}

// NewRouter creates a Router. The ephemeral store is required; the
// persistent store may be nil when only embedded storage is configured.
func NewRouter(persistent, ephemeral Store, logger *zap.Logger) (*Router, error) {
	if ephemeral == nil {
		return nil, fmt.Errorf("%w: ephemeral store is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Router{
		persistent: persistent,
		ephemeral:  ephemeral,
		cache:      NewTenantIndexCache(logger),
		logger:     logger,
	}, nil
}

// Cache exposes the tenant index cache, mainly for inspection in tests
// and admin tooling.
func (r *Router) Cache() *TenantIndexCache {
	return r.cache
}

// selectStore resolves the tenant's backend through the cache.
func (r *Router) selectStore(ctx context.Context, tenantID string) (Store, error) {
	return r.cache.Get(ctx, tenantID, func(ctx context.Context) (Store, error) {
		if r.persistent == nil {
			return r.ephemeral, nil
		}
		if err := r.persistent.Ping(ctx); err != nil {
			r.logger.Warn("persistent backend unreachable, using ephemeral store",
				zap.String("tenant_id", tenantID),
				zap.Error(err),
			)
			return r.ephemeral, nil
		}
		return r.persistent, nil
	})
}

// IngestChunks stores a document's chunks on the tenant's selected
// backend and tags every chunk with the tenant.
func (r *Router) IngestChunks(ctx context.Context, tenantID, documentID string, chunks []Chunk) ([]string, error) {
	ctx, span := routerTracer.Start(ctx, "Router.IngestChunks")
	defer span.End()

	span.SetAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.String("document_id", documentID),
		attribute.Int("chunk_count", len(chunks)),
	)

	store, err := r.selectStore(ctx, tenantID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.String("backend", store.Name()))

	ids, err := store.IngestChunks(ctx, tenantID, documentID, chunks)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "success")
	return ids, nil
}

// Search runs a tenant-scoped similarity search with fallback. Results
// are re-checked against the tenant before they leave the router.
func (r *Router) Search(ctx context.Context, tenantID, query string, k int) ([]SearchResult, error) {
	ctx, span := routerTracer.Start(ctx, "Router.Search")
	defer span.End()

	span.SetAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.Int("k", k),
	)

	store, err := r.selectStore(ctx, tenantID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.String("backend", store.Name()))

	results, err := store.Search(ctx, tenantID, query, k)

	// Persistent failures and empty persistent results fall back to the
	// ephemeral store. The fallback read bypasses the cache so the
	// tenant's selection is not rewritten by a transient outage.
	if store != r.ephemeral {
		switch {
		case err != nil:
			fallbackSearches.WithLabelValues("error").Inc()
			r.logger.Warn("persistent search failed, falling back to ephemeral store",
				zap.String("tenant_id", tenantID),
				zap.Error(err),
			)
			results, err = r.ephemeral.Search(ctx, tenantID, query, k)
		case len(results) == 0:
			fallbackSearches.WithLabelValues("empty").Inc()
			results, err = r.ephemeral.Search(ctx, tenantID, query, k)
		}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	results = r.filterTenant(tenantID, results)

	span.SetAttributes(attribute.Int("results_count", len(results)))
	span.SetStatus(codes.Ok, "success")

	return results, nil
}

// filterTenant drops any result not owned by the tenant. Backends already
// scope their queries; this is the last line of defense against a
// misbehaving backend leaking another tenant's chunks.
func (r *Router) filterTenant(tenantID string, results []SearchResult) []SearchResult {
	filtered := results[:0]
	for _, res := range results {
		if res.TenantID != tenantID {
			r.logger.Error("dropped cross-tenant search result",
				zap.String("tenant_id", tenantID),
				zap.String("result_tenant_id", res.TenantID),
				zap.String("chunk_id", res.ID),
			)
			continue
		}
		filtered = append(filtered, res)
	}
	return filtered
}

// DeleteDocument removes a document's chunks from every backend. Chunks
// may exist on both when a tenant moved between backends.
func (r *Router) DeleteDocument(ctx context.Context, tenantID, documentID string) error {
	var errs []error
	if r.persistent != nil {
		if err := r.persistent.DeleteDocument(ctx, tenantID, documentID); err != nil {
			errs = append(errs, err)
		}
	}
	if err := r.ephemeral.DeleteDocument(ctx, tenantID, documentID); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// DeleteTenant drops the tenant's index from every backend and the cache.
func (r *Router) DeleteTenant(ctx context.Context, tenantID string) error {
	var errs []error
	if r.persistent != nil {
		if err := r.persistent.DeleteTenant(ctx, tenantID); err != nil {
			errs = append(errs, err)
		}
	}
	if err := r.ephemeral.DeleteTenant(ctx, tenantID); err != nil {
		errs = append(errs, err)
	}
	r.cache.Invalidate(tenantID)
	return errors.Join(errs...)
}

// HasTenant reports whether the tenant has chunks on its selected backend.
func (r *Router) HasTenant(ctx context.Context, tenantID string) (bool, error) {
	store, err := r.selectStore(ctx, tenantID)
	if err != nil {
		return false, err
	}
	return store.HasTenant(ctx, tenantID)
}

// Invalidate drops the tenant's cached backend handle.
func (r *Router) Invalidate(tenantID string) {
	r.cache.Invalidate(tenantID)
}

// Close closes every backend.
func (r *Router) Close() error {
	var errs []error
	if r.persistent != nil {
		if err := r.persistent.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := r.ephemeral.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
