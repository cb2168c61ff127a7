package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docvault/internal/document"
	"github.com/fyrsmithlabs/docvault/internal/vectorstore"
)

// ingestorTracer for OpenTelemetry instrumentation.
var ingestorTracer = otel.Tracer("docvault.pipeline")

// ChunkIndex is the vector store surface the ingestor needs.
type ChunkIndex interface {
	IngestChunks(ctx context.Context, tenantID, documentID string, chunks []vectorstore.Chunk) ([]string, error)
	Invalidate(tenantID string)
}

// Lifecycle is the document manager surface the ingestor needs.
type Lifecycle interface {
	Get(ctx context.Context, tenantID, docID string) (*document.Document, error)
	MarkIngested(ctx context.Context, tenantID, docID string, chunkCount int) error
	MarkError(ctx context.Context, tenantID, docID, message string) error
	RequestReingest(ctx context.Context, tenantID, docID string) (*document.Document, error)
}

// PendingLister lists a tenant's documents awaiting ingestion.
type PendingLister interface {
	ListByStatus(ctx context.Context, tenantID string, status document.Status) ([]document.Document, error)
}

// BatchResult summarizes a multi-document ingestion run.
type BatchResult struct {
	Succeeded int
	Failed    int

	// Errors maps document ID to its ingestion failure.
	Errors map[string]error
}

// Ingestor drives a document from pending to ingested: extract, chunk,
// embed, store, then update the lifecycle record. Any failure lands the
// document in error state with the cause recorded.
type Ingestor struct {
	lifecycle Lifecycle
	pending   PendingLister
	index     ChunkIndex
	extractor *Extractor
	chunker   *Chunker
	logger    *zap.Logger
}

// NewIngestor creates an Ingestor.
func NewIngestor(lifecycle Lifecycle, pending PendingLister, index ChunkIndex, chunker *Chunker, logger *zap.Logger) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if chunker == nil {
		chunker = NewChunker(ChunkerConfig{})
	}
	return &Ingestor{
		lifecycle: lifecycle,
		pending:   pending,
		index:     index,
		extractor: NewExtractor(),
		chunker:   chunker,
		logger:    logger,
	}
}

// IngestDocument processes one pending document. On success the document
// is marked ingested with its exact chunk count and the tenant's cached
// index handle is invalidated so the next retrieval sees the new chunks.
func (ing *Ingestor) IngestDocument(ctx context.Context, tenantID, docID string) error {
	ctx, span := ingestorTracer.Start(ctx, "Ingestor.IngestDocument")
	defer span.End()

	span.SetAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.String("document_id", docID),
	)

	doc, err := ing.lifecycle.Get(ctx, tenantID, docID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if doc.Status != document.StatusPending {
		return fmt.Errorf("%w: cannot ingest document in status %s",
			document.ErrInvalidTransition, doc.Status)
	}

	chunks, err := ing.prepare(doc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ing.fail(ctx, tenantID, docID, err)
	}

	ids, err := ing.index.IngestChunks(ctx, tenantID, docID, chunks)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ing.fail(ctx, tenantID, docID, err)
	}
	if len(ids) == 0 {
		err = fmt.Errorf("%w: ingestion stored no chunks", vectorstore.ErrStorageInconsistent)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ing.fail(ctx, tenantID, docID, err)
	}

	ing.index.Invalidate(tenantID)

	if err := ing.lifecycle.MarkIngested(ctx, tenantID, docID, len(ids)); err != nil {
		span.RecordError(err)
		return err
	}

	span.SetAttributes(attribute.Int("chunk_count", len(ids)))
	span.SetStatus(codes.Ok, "success")

	ing.logger.Info("document ingested",
		zap.String("tenant_id", tenantID),
		zap.String("document_id", docID),
		zap.Int("chunk_count", len(ids)),
	)

	return nil
}

// prepare extracts and splits the document's text.
func (ing *Ingestor) prepare(doc *document.Document) ([]vectorstore.Chunk, error) {
	text, err := ing.extractor.Extract(doc.FilePath, doc.FileType)
	if err != nil {
		return nil, fmt.Errorf("extracting text: %w", err)
	}

	chunks, err := ing.chunker.Split(text, map[string]interface{}{
		"source":    doc.OriginalFilename,
		"file_type": doc.FileType,
	})
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, ErrNoContent
	}
	return chunks, nil
}

// fail records the error on the document and returns the original cause.
func (ing *Ingestor) fail(ctx context.Context, tenantID, docID string, cause error) error {
	if err := ing.lifecycle.MarkError(ctx, tenantID, docID, cause.Error()); err != nil {
		ing.logger.Error("failed to record ingestion error",
			zap.String("tenant_id", tenantID),
			zap.String("document_id", docID),
			zap.Error(err),
		)
	}

	ing.logger.Warn("document ingestion failed",
		zap.String("tenant_id", tenantID),
		zap.String("document_id", docID),
		zap.Error(cause),
	)

	return cause
}

// IngestPending processes every pending document of the tenant. Failures
// are isolated per document; the batch errors only when every document
// failed.
func (ing *Ingestor) IngestPending(ctx context.Context, tenantID string) (*BatchResult, error) {
	ctx, span := ingestorTracer.Start(ctx, "Ingestor.IngestPending")
	defer span.End()

	span.SetAttributes(attribute.String("tenant_id", tenantID))

	docs, err := ing.pending.ListByStatus(ctx, tenantID, document.StatusPending)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	result := &BatchResult{Errors: make(map[string]error)}
	for _, doc := range docs {
		if err := ing.IngestDocument(ctx, tenantID, doc.ID); err != nil {
			result.Failed++
			result.Errors[doc.ID] = err
			continue
		}
		result.Succeeded++
	}

	span.SetAttributes(
		attribute.Int("succeeded", result.Succeeded),
		attribute.Int("failed", result.Failed),
	)

	if len(docs) > 0 && result.Succeeded == 0 {
		span.SetStatus(codes.Error, "all documents failed")
		return result, fmt.Errorf("ingestion failed for all %d documents: %w",
			result.Failed, errors.Join(valuesOf(result.Errors)...))
	}

	span.SetStatus(codes.Ok, "success")
	return result, nil
}

// valuesOf collects map values for errors.Join.
func valuesOf(m map[string]error) []error {
	out := make([]error, 0, len(m))
	for _, err := range m {
		out = append(out, err)
	}
	return out
}

// Reingest moves a document back to pending and runs ingestion again.
func (ing *Ingestor) Reingest(ctx context.Context, tenantID, docID string) error {
	if _, err := ing.lifecycle.RequestReingest(ctx, tenantID, docID); err != nil {
		return err
	}
	return ing.IngestDocument(ctx, tenantID, docID)
}
