// Package retrieval answers tenant queries from the vector store, gated
// by the tenant's daily query quota.
package retrieval

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docvault/internal/vectorstore"
)

// retrievalTracer for OpenTelemetry instrumentation.
var retrievalTracer = otel.Tracer("docvault.retrieval")

// DefaultK is how many chunks a query returns when the caller does not
// say otherwise.
const DefaultK = 3

// QueryGate is the quota surface retrieval needs: one call that checks
// and consumes a query as a single serialized unit.
type QueryGate interface {
	ConsumeQuery(ctx context.Context, tenantID string) error
}

// Searcher is the vector store surface retrieval needs.
type Searcher interface {
	Search(ctx context.Context, tenantID, query string, k int) ([]vectorstore.SearchResult, error)
}

// Service performs quota-gated retrieval.
type Service struct {
	quotas   QueryGate
	searcher Searcher
	logger   *zap.Logger
}

// NewService creates a retrieval Service.
func NewService(quotas QueryGate, searcher Searcher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{quotas: quotas, searcher: searcher, logger: logger}
}

// Retrieve consumes one query from the tenant's daily quota and returns
// the top k chunks ranked by similarity. A tenant with no indexed
// documents gets an empty result, not an error. The quota is consumed
// either way: the tenant asked, the system answered.
func (s *Service) Retrieve(ctx context.Context, tenantID, query string, k int) ([]vectorstore.SearchResult, error) {
	ctx, span := retrievalTracer.Start(ctx, "Service.Retrieve")
	defer span.End()

	if k <= 0 {
		k = DefaultK
	}

	span.SetAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.Int("k", k),
	)

	if err := s.quotas.ConsumeQuery(ctx, tenantID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	results, err := s.searcher.Search(ctx, tenantID, query, k)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("results_count", len(results)))
	span.SetStatus(codes.Ok, "success")

	s.logger.Debug("retrieved context",
		zap.String("tenant_id", tenantID),
		zap.Int("k", k),
		zap.Int("results", len(results)),
	)

	return results, nil
}

// RetrieveContext runs Retrieve and joins the chunk texts into one
// context block for a generation model.
func (s *Service) RetrieveContext(ctx context.Context, tenantID, query string, k int) (string, error) {
	results, err := s.Retrieve(ctx, tenantID, query, k)
	if err != nil {
		return "", err
	}
	return BuildContext(results), nil
}

// BuildContext joins chunk contents, one chunk per line.
func BuildContext(results []vectorstore.SearchResult) string {
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = r.Content
	}
	return strings.Join(parts, "\n")
}
