package vectorstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docvault/internal/sanitize"
)

// chromemTracer for OpenTelemetry instrumentation.
var chromemTracer = otel.Tracer("docvault.vectorstore.chromem")

// tenantCollectionPrefix namespaces per-tenant collections.
const tenantCollectionPrefix = "tenant_"

// ChromemConfig holds configuration for the embedded chromem-go backend.
type ChromemConfig struct {
	// Path is the directory for persistent storage.
	// Default: "vector_store"
	Path string `koanf:"path"`

	// Compress enables gzip compression for stored data.
	Compress bool `koanf:"compress"`

	// VectorSize is the expected embedding dimension.
	// Must match the embedder's output dimension.
	// Default: 384
	VectorSize int `koanf:"vector_size"`
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "vector_store"
	}
	if c.VectorSize == 0 {
		c.VectorSize = 384
	}
}

// Validate validates the configuration.
func (c *ChromemConfig) Validate() error {
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	return nil
}

// ChromemStore implements Store using chromem-go, an embeddable vector
// database with zero third-party dependencies.
//
// Tenant isolation is structural: each tenant gets its own collection,
// so a query can only ever touch one tenant's chunks.
type ChromemStore struct {
	db       *chromem.DB
	embedder Embedder
	config   ChromemConfig
	logger   *zap.Logger
}

// NewChromemStore creates a ChromemStore with the given configuration.
func NewChromemStore(config ChromemConfig, embedder Embedder, logger *zap.Logger) (*ChromemStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	expandedPath, err := expandPath(config.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}
	if err := os.MkdirAll(expandedPath, 0o755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", expandedPath, err)
	}

	db, err := chromem.NewPersistentDB(expandedPath, config.Compress)
	if err != nil {
		return nil, fmt.Errorf("creating chromem DB: %w", err)
	}

	store := &ChromemStore{
		db:       db,
		embedder: embedder,
		config:   config,
		logger:   logger,
	}

	logger.Info("chromem store initialized",
		zap.String("path", expandedPath),
		zap.Bool("compress", config.Compress),
		zap.Int("vector_size", config.VectorSize),
	)

	return store, nil
}

// expandPath expands ~ to the home directory.
func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// Name identifies the backend.
func (s *ChromemStore) Name() string {
	return "chromem"
}

// Ping reports availability. The embedded store is always reachable.
func (s *ChromemStore) Ping(ctx context.Context) error {
	return nil
}

// collectionName maps a tenant to its collection.
func collectionName(tenantID string) string {
	return tenantCollectionPrefix + sanitize.Identifier(tenantID)
}

// createEmbeddingFunc adapts the Embedder to chromem's callback.
func (s *ChromemStore) createEmbeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.EmbedQuery(ctx, text)
	}
}

// IngestChunks embeds and stores a document's chunks in the tenant's
// collection.
func (s *ChromemStore) IngestChunks(ctx context.Context, tenantID, documentID string, chunks []Chunk) ([]string, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.IngestChunks")
	defer span.End()

	span.SetAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.String("document_id", documentID),
		attribute.Int("chunk_count", len(chunks)),
	)

	if len(chunks) == 0 {
		return nil, ErrEmptyChunks
	}

	collection, err := s.db.GetOrCreateCollection(collectionName(tenantID), nil, s.createEmbeddingFunc())
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("getting/creating collection for tenant %s: %w", tenantID, err)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	embeddings, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	docs := make([]chromem.Document, len(chunks))
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = chunkID(documentID, c.Ordinal)

		metadata := map[string]string{
			"tenant_id":   tenantID,
			"document_id": documentID,
			"ordinal":     strconv.Itoa(c.Ordinal),
		}
		for k, v := range c.Metadata {
			metadata[k] = fmt.Sprintf("%v", v)
		}

		docs[i] = chromem.Document{
			ID:        ids[i],
			Content:   c.Content,
			Metadata:  metadata,
			Embedding: embeddings[i],
		}
	}

	// Concurrency of 1 since embeddings are precomputed.
	if err := collection.AddDocuments(ctx, docs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("adding chunks: %w", err)
	}

	span.SetStatus(codes.Ok, "success")

	s.logger.Debug("ingested chunks into chromem",
		zap.String("tenant_id", tenantID),
		zap.String("document_id", documentID),
		zap.Int("count", len(chunks)),
	)

	return ids, nil
}

// chunkID builds a stable chunk identifier within a document.
func chunkID(documentID string, ordinal int) string {
	return fmt.Sprintf("%s_%04d", documentID, ordinal)
}

// Search performs similarity search over the tenant's collection.
func (s *ChromemStore) Search(ctx context.Context, tenantID, query string, k int) ([]SearchResult, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Search")
	defer span.End()

	span.SetAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.Int("k", k),
	)

	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if query == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}

	collection := s.db.GetCollection(collectionName(tenantID), s.createEmbeddingFunc())
	if collection == nil {
		// No collection means no documents for this tenant.
		return []SearchResult{}, nil
	}

	// chromem requires nResults <= document count.
	docCount := collection.Count()
	if docCount == 0 {
		return []SearchResult{}, nil
	}
	if k > docCount {
		k = docCount
	}

	results, err := collection.Query(ctx, query, k, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying tenant %s: %w", tenantID, err)
	}

	searchResults := make([]SearchResult, len(results))
	for i, r := range results {
		searchResults[i] = resultFromChromem(r)
	}

	span.SetAttributes(attribute.Int("results_count", len(searchResults)))
	span.SetStatus(codes.Ok, "success")

	return searchResults, nil
}

// resultFromChromem converts a chromem result into a SearchResult.
func resultFromChromem(r chromem.Result) SearchResult {
	ordinal, _ := strconv.Atoi(r.Metadata["ordinal"])

	metadata := make(map[string]interface{}, len(r.Metadata))
	for k, v := range r.Metadata {
		metadata[k] = v
	}

	return SearchResult{
		ID:         r.ID,
		TenantID:   r.Metadata["tenant_id"],
		DocumentID: r.Metadata["document_id"],
		Ordinal:    ordinal,
		Content:    r.Content,
		Score:      r.Similarity,
		Metadata:   metadata,
	}
}

// DeleteDocument removes every chunk of one document from the tenant's
// collection.
func (s *ChromemStore) DeleteDocument(ctx context.Context, tenantID, documentID string) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.DeleteDocument")
	defer span.End()

	span.SetAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.String("document_id", documentID),
	)

	collection := s.db.GetCollection(collectionName(tenantID), s.createEmbeddingFunc())
	if collection == nil {
		return nil
	}

	if err := collection.Delete(ctx, map[string]string{"document_id": documentID}, nil); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting document %s chunks: %w", documentID, err)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// DeleteTenant drops the tenant's collection entirely.
func (s *ChromemStore) DeleteTenant(ctx context.Context, tenantID string) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.DeleteTenant")
	defer span.End()

	span.SetAttributes(attribute.String("tenant_id", tenantID))

	name := collectionName(tenantID)
	if s.db.GetCollection(name, s.createEmbeddingFunc()) == nil {
		return nil
	}

	if err := s.db.DeleteCollection(name); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting collection for tenant %s: %w", tenantID, err)
	}

	span.SetStatus(codes.Ok, "success")

	s.logger.Info("tenant index dropped",
		zap.String("tenant_id", tenantID),
		zap.String("backend", s.Name()),
	)

	return nil
}

// HasTenant reports whether the tenant has any stored chunks.
func (s *ChromemStore) HasTenant(ctx context.Context, tenantID string) (bool, error) {
	collection := s.db.GetCollection(collectionName(tenantID), s.createEmbeddingFunc())
	if collection == nil {
		return false, nil
	}
	return collection.Count() > 0, nil
}

// Close closes the store. chromem persists continuously, nothing to flush.
func (s *ChromemStore) Close() error {
	return nil
}

// Ensure ChromemStore implements Store interface.
var _ Store = (*ChromemStore)(nil)
