package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// pgvectorTracer for OpenTelemetry instrumentation.
var pgvectorTracer = otel.Tracer("docvault.vectorstore.pgvector")

// PgvectorConfig holds configuration for the PostgreSQL/pgvector backend.
type PgvectorConfig struct {
	// DSN is the PostgreSQL connection string.
	DSN string `koanf:"dsn"`

	// VectorSize is the embedding dimension for the vector column.
	// Default: 384
	VectorSize int `koanf:"vector_size"`
}

// ApplyDefaults sets default values for unset fields.
func (c *PgvectorConfig) ApplyDefaults() {
	if c.VectorSize == 0 {
		c.VectorSize = 384
	}
}

// Validate validates the configuration.
func (c *PgvectorConfig) Validate() error {
	if c.DSN == "" {
		return fmt.Errorf("%w: DSN is required", ErrInvalidConfig)
	}
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	return nil
}

// chunkRow is the document_chunks table. The embedding column is a pgvector
// type gorm cannot model, so reads and writes of it go through raw SQL.
type chunkRow struct {
	ID         string         `gorm:"primaryKey;size:64"`
	TenantID   string         `gorm:"size:255;index:idx_document_chunks_tenant"`
	DocumentID string         `gorm:"size:36;index:idx_document_chunks_document"`
	Ordinal    int            `gorm:""`
	Content    string         `gorm:"type:text"`
	Metadata   datatypes.JSON `gorm:""`
}

func (chunkRow) TableName() string {
	return "document_chunks"
}

// PgvectorStore implements Store on PostgreSQL with the pgvector extension.
// Similarity search orders by cosine distance (the <=> operator) with a
// tenant-scoped WHERE clause.
type PgvectorStore struct {
	db       *gorm.DB
	embedder Embedder
	config   PgvectorConfig
	logger   *zap.Logger
}

// NewPgvectorStore connects to PostgreSQL and prepares the schema.
func NewPgvectorStore(config PgvectorConfig, embedder Embedder, logger *zap.Logger) (*PgvectorStore, error) {
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

	db, err := gorm.Open(postgres.Open(config.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	store := &PgvectorStore{
		db:       db,
		embedder: embedder,
		config:   config,
		logger:   logger,
	}

	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("migrating pgvector schema: %w", err)
	}

	logger.Info("pgvector store initialized",
		zap.Int("vector_size", config.VectorSize),
	)

	return store, nil
}

// NewPgvectorStoreWithDB wraps an existing gorm connection. Used by tests
// and callers that manage their own pool.
func NewPgvectorStoreWithDB(db *gorm.DB, config PgvectorConfig, embedder Embedder, logger *zap.Logger) (*PgvectorStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()

	return &PgvectorStore{
		db:       db,
		embedder: embedder,
		config:   config,
		logger:   logger,
	}, nil
}

// migrate creates the extension, table, and indexes.
func (s *PgvectorStore) migrate() error {
	if err := s.db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return fmt.Errorf("creating vector extension: %w", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS document_chunks (
			id          VARCHAR(64) PRIMARY KEY,
			tenant_id   VARCHAR(255) NOT NULL,
			document_id VARCHAR(36) NOT NULL,
			ordinal     INTEGER NOT NULL,
			content     TEXT NOT NULL,
			metadata    JSONB,
			embedding   vector(%d) NOT NULL
		)`, s.config.VectorSize)
	if err := s.db.Exec(createTable).Error; err != nil {
		return fmt.Errorf("creating document_chunks table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_document_chunks_tenant ON document_chunks (tenant_id)",
		"CREATE INDEX IF NOT EXISTS idx_document_chunks_document ON document_chunks (tenant_id, document_id)",
	}
	for _, idx := range indexes {
		if err := s.db.Exec(idx).Error; err != nil {
			return fmt.Errorf("creating index: %w", err)
		}
	}

	return nil
}

// Name identifies the backend.
func (s *PgvectorStore) Name() string {
	return "pgvector"
}

// Ping reports whether PostgreSQL is reachable.
func (s *PgvectorStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// vectorLiteral renders an embedding as a pgvector text literal.
func vectorLiteral(embedding []float32) string {
	var b strings.Builder
	b.Grow(len(embedding)*10 + 2)
	b.WriteByte('[')
	for i, v := range embedding {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

// IngestChunks embeds the chunks and inserts them in one transaction.
func (s *PgvectorStore) IngestChunks(ctx context.Context, tenantID, documentID string, chunks []Chunk) ([]string, error) {
	ctx, span := pgvectorTracer.Start(ctx, "PgvectorStore.IngestChunks")
	defer span.End()

	span.SetAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.String("document_id", documentID),
		attribute.Int("chunk_count", len(chunks)),
	)

	if len(chunks) == 0 {
		return nil, ErrEmptyChunks
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

	ids := make([]string, len(chunks))
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, c := range chunks {
			ids[i] = chunkID(documentID, c.Ordinal)

			var metadata []byte
			if c.Metadata != nil {
				metadata, err = json.Marshal(c.Metadata)
				if err != nil {
					return fmt.Errorf("marshaling chunk metadata: %w", err)
				}
			}

			insert := `
				INSERT INTO document_chunks (id, tenant_id, document_id, ordinal, content, metadata, embedding)
				VALUES (?, ?, ?, ?, ?, ?, ?::vector)
				ON CONFLICT (id) DO UPDATE SET
					content = EXCLUDED.content,
					metadata = EXCLUDED.metadata,
					embedding = EXCLUDED.embedding`
			if err := tx.Exec(insert,
				ids[i], tenantID, documentID, c.Ordinal, c.Content,
				datatypes.JSON(metadata), vectorLiteral(embeddings[i]),
			).Error; err != nil {
				return fmt.Errorf("inserting chunk %s: %w", ids[i], err)
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "success")

	s.logger.Debug("ingested chunks into pgvector",
		zap.String("tenant_id", tenantID),
		zap.String("document_id", documentID),
		zap.Int("count", len(chunks)),
	)

	return ids, nil
}

// searchRow is the raw scan target for similarity queries.
type searchRow struct {
	ID         string
	TenantID   string
	DocumentID string
	Ordinal    int
	Content    string
	Metadata   datatypes.JSON
	Similarity float32
}

// Search performs tenant-scoped cosine similarity search.
func (s *PgvectorStore) Search(ctx context.Context, tenantID, query string, k int) ([]SearchResult, error) {
	ctx, span := pgvectorTracer.Start(ctx, "PgvectorStore.Search")
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

	queryEmbedding, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	literal := vectorLiteral(queryEmbedding)

	var rows []searchRow
	sql := `
		SELECT id, tenant_id, document_id, ordinal, content, metadata,
		       1 - (embedding <=> ?::vector) AS similarity
		FROM document_chunks
		WHERE tenant_id = ?
		ORDER BY embedding <=> ?::vector
		LIMIT ?`
	if err := s.db.WithContext(ctx).Raw(sql, literal, tenantID, literal, k).Scan(&rows).Error; err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	results := make([]SearchResult, len(rows))
	for i, row := range rows {
		var metadata map[string]interface{}
		if len(row.Metadata) > 0 {
			if err := json.Unmarshal(row.Metadata, &metadata); err != nil {
				s.logger.Warn("failed to decode chunk metadata",
					zap.String("chunk_id", row.ID),
					zap.Error(err),
				)
			}
		}

		results[i] = SearchResult{
			ID:         row.ID,
			TenantID:   row.TenantID,
			DocumentID: row.DocumentID,
			Ordinal:    row.Ordinal,
			Content:    row.Content,
			Score:      row.Similarity,
			Metadata:   metadata,
		}
	}

	span.SetAttributes(attribute.Int("results_count", len(results)))
	span.SetStatus(codes.Ok, "success")

	return results, nil
}

// DeleteDocument removes every chunk of one document.
func (s *PgvectorStore) DeleteDocument(ctx context.Context, tenantID, documentID string) error {
	ctx, span := pgvectorTracer.Start(ctx, "PgvectorStore.DeleteDocument")
	defer span.End()

	span.SetAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.String("document_id", documentID),
	)

	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND document_id = ?", tenantID, documentID).
		Delete(&chunkRow{}).Error
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting document %s chunks: %w", documentID, err)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// DeleteTenant removes every chunk the tenant owns.
func (s *PgvectorStore) DeleteTenant(ctx context.Context, tenantID string) error {
	ctx, span := pgvectorTracer.Start(ctx, "PgvectorStore.DeleteTenant")
	defer span.End()

	span.SetAttributes(attribute.String("tenant_id", tenantID))

	err := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Delete(&chunkRow{}).Error
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting chunks for tenant %s: %w", tenantID, err)
	}

	span.SetStatus(codes.Ok, "success")

	s.logger.Info("tenant index dropped",
		zap.String("tenant_id", tenantID),
		zap.String("backend", s.Name()),
	)

	return nil
}

// HasTenant reports whether the tenant has any stored chunks.
func (s *PgvectorStore) HasTenant(ctx context.Context, tenantID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&chunkRow{}).
		Where("tenant_id = ?", tenantID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return count > 0, nil
}

// Close closes the underlying connection pool.
func (s *PgvectorStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ensure PgvectorStore implements Store interface.
var _ Store = (*PgvectorStore)(nil)
