package document

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// managerTracer for OpenTelemetry instrumentation.
var managerTracer = otel.Tracer("docvault.document")

// QuotaLedger is the quota surface the manager needs.
type QuotaLedger interface {
	ReserveDocument(ctx context.Context, tenantID string, bytes int64) error
	DecrementDocumentCount(ctx context.Context, tenantID string, bytes int64) error
	ResetUsage(ctx context.Context, tenantID string) error
}

// VectorIndex is the vector store surface the manager needs for cleanup.
type VectorIndex interface {
	// DeleteDocument removes all chunks belonging to one document.
	DeleteDocument(ctx context.Context, tenantID, documentID string) error

	// DeleteTenant removes the tenant's entire index.
	DeleteTenant(ctx context.Context, tenantID string) error

	// Invalidate drops any cached handle to the tenant's index.
	Invalidate(tenantID string)
}

// RegisterParams describes a validated, staged upload ready to become a
// document record.
type RegisterParams struct {
	StoredFilename   string
	OriginalFilename string
	FilePath         string
	FileSize         int64
	FileType         string
}

// Manager coordinates the document lifecycle across the database, the
// filesystem, the quota ledger, and the vector index.
type Manager struct {
	repo   *Repository
	quotas QuotaLedger
	index  VectorIndex
	logger *zap.Logger
}

// NewManager creates a Manager.
func NewManager(repo *Repository, quotas QuotaLedger, index VectorIndex, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{repo: repo, quotas: quotas, index: index, logger: logger}
}

// Register reserves quota and records a pending document for a staged
// upload. If the record cannot be created the reservation is released.
func (m *Manager) Register(ctx context.Context, tenantID string, params RegisterParams) (*Document, error) {
	ctx, span := managerTracer.Start(ctx, "Manager.Register")
	defer span.End()

	span.SetAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.Int64("file_size", params.FileSize),
	)

	if err := m.quotas.ReserveDocument(ctx, tenantID, params.FileSize); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	doc := &Document{
		ID:               uuid.NewString(),
		TenantID:         tenantID,
		Filename:         params.StoredFilename,
		OriginalFilename: params.OriginalFilename,
		FilePath:         params.FilePath,
		FileSize:         params.FileSize,
		FileType:         params.FileType,
		Status:           StatusPending,
	}

	if err := m.repo.Create(ctx, doc); err != nil {
		if relErr := m.quotas.DecrementDocumentCount(ctx, tenantID, params.FileSize); relErr != nil {
			m.logger.Error("failed to release quota after create failure",
				zap.String("tenant_id", tenantID),
				zap.Error(relErr),
			)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.String("document_id", doc.ID))
	span.SetStatus(codes.Ok, "success")

	m.logger.Info("document registered",
		zap.String("tenant_id", tenantID),
		zap.String("document_id", doc.ID),
		zap.String("filename", doc.Filename),
		zap.Int64("file_size", doc.FileSize),
	)

	return doc, nil
}

// Get returns the tenant's document by ID.
func (m *Manager) Get(ctx context.Context, tenantID, docID string) (*Document, error) {
	return m.repo.Get(ctx, tenantID, docID)
}

// List returns all of the tenant's documents.
func (m *Manager) List(ctx context.Context, tenantID string) ([]Document, error) {
	return m.repo.List(ctx, tenantID)
}

// MarkIngested transitions a document to ingested with its chunk count.
func (m *Manager) MarkIngested(ctx context.Context, tenantID, docID string, chunkCount int) error {
	doc, err := m.repo.Get(ctx, tenantID, docID)
	if err != nil {
		return err
	}
	if err := doc.transition(StatusIngested); err != nil {
		return err
	}
	doc.ChunkCount = &chunkCount
	doc.ErrorMessage = nil
	return m.repo.Save(ctx, doc)
}

// MarkError transitions a document to error, recording the cause.
func (m *Manager) MarkError(ctx context.Context, tenantID, docID, message string) error {
	doc, err := m.repo.Get(ctx, tenantID, docID)
	if err != nil {
		return err
	}
	if err := doc.transition(StatusError); err != nil {
		return err
	}
	doc.ErrorMessage = &message
	doc.ChunkCount = nil
	return m.repo.Save(ctx, doc)
}

// RequestReingest moves an ingested or failed document back to pending and
// drops its chunks from the index so the next ingestion starts clean.
func (m *Manager) RequestReingest(ctx context.Context, tenantID, docID string) (*Document, error) {
	ctx, span := managerTracer.Start(ctx, "Manager.RequestReingest")
	defer span.End()

	span.SetAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.String("document_id", docID),
	)

	doc, err := m.repo.Get(ctx, tenantID, docID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	hadChunks := doc.Status == StatusIngested

	if err := doc.transition(StatusPending); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	doc.ErrorMessage = nil
	doc.ChunkCount = nil

	if err := m.repo.Save(ctx, doc); err != nil {
		span.RecordError(err)
		return nil, err
	}

	if hadChunks {
		if err := m.index.DeleteDocument(ctx, tenantID, docID); err != nil {
			m.logger.Warn("failed to drop stale chunks before reingest",
				zap.String("tenant_id", tenantID),
				zap.String("document_id", docID),
				zap.Error(err),
			)
		}
		m.index.Invalidate(tenantID)
	}

	span.SetStatus(codes.Ok, "success")
	return doc, nil
}

// Delete removes a document: its chunks, its stored file, its record, and
// its quota accounting. The cached index handle is invalidated, and when
// the last document goes the tenant's index is dropped entirely.
func (m *Manager) Delete(ctx context.Context, tenantID, docID string) error {
	ctx, span := managerTracer.Start(ctx, "Manager.Delete")
	defer span.End()

	span.SetAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.String("document_id", docID),
	)

	doc, err := m.repo.Get(ctx, tenantID, docID)
	if err != nil {
		span.RecordError(err)
		return err
	}

	if doc.Status == StatusIngested {
		if err := m.index.DeleteDocument(ctx, tenantID, docID); err != nil {
			m.logger.Warn("failed to delete document chunks from index",
				zap.String("tenant_id", tenantID),
				zap.String("document_id", docID),
				zap.Error(err),
			)
		}
	}

	if err := m.removeFile(doc); err != nil {
		m.logger.Warn("failed to remove stored file",
			zap.String("tenant_id", tenantID),
			zap.String("document_id", docID),
			zap.String("path", doc.FilePath),
			zap.Error(err),
		)
	}

	if err := m.repo.Delete(ctx, tenantID, docID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if err := m.quotas.DecrementDocumentCount(ctx, tenantID, doc.FileSize); err != nil {
		m.logger.Error("failed to decrement quota after delete",
			zap.String("tenant_id", tenantID),
			zap.Error(err),
		)
	}

	m.index.Invalidate(tenantID)

	remaining, err := m.repo.Count(ctx, tenantID)
	if err == nil && remaining == 0 {
		if err := m.index.DeleteTenant(ctx, tenantID); err != nil {
			m.logger.Warn("failed to drop empty tenant index",
				zap.String("tenant_id", tenantID),
				zap.Error(err),
			)
		}
	}

	span.SetStatus(codes.Ok, "success")

	m.logger.Info("document deleted",
		zap.String("tenant_id", tenantID),
		zap.String("document_id", docID),
	)

	return nil
}

// DeleteAll removes every document the tenant owns, drops the tenant's
// index, and zeroes the tenant's usage counters.
func (m *Manager) DeleteAll(ctx context.Context, tenantID string) (int64, error) {
	ctx, span := managerTracer.Start(ctx, "Manager.DeleteAll")
	defer span.End()

	span.SetAttributes(attribute.String("tenant_id", tenantID))

	docs, err := m.repo.List(ctx, tenantID)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	for i := range docs {
		if err := m.removeFile(&docs[i]); err != nil {
			m.logger.Warn("failed to remove stored file",
				zap.String("tenant_id", tenantID),
				zap.String("document_id", docs[i].ID),
				zap.Error(err),
			)
		}
	}

	deleted, err := m.repo.DeleteAll(ctx, tenantID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	if err := m.index.DeleteTenant(ctx, tenantID); err != nil {
		m.logger.Warn("failed to drop tenant index",
			zap.String("tenant_id", tenantID),
			zap.Error(err),
		)
	}
	m.index.Invalidate(tenantID)

	if err := m.quotas.ResetUsage(ctx, tenantID); err != nil {
		m.logger.Error("failed to reset usage after bulk delete",
			zap.String("tenant_id", tenantID),
			zap.Error(err),
		)
	}

	span.SetAttributes(attribute.Int64("deleted", deleted))
	span.SetStatus(codes.Ok, "success")

	m.logger.Info("all documents deleted",
		zap.String("tenant_id", tenantID),
		zap.Int64("count", deleted),
	)

	return deleted, nil
}

// removeFile deletes the stored file, tolerating files already gone.
func (m *Manager) removeFile(doc *Document) error {
	if doc.FilePath == "" {
		return nil
	}
	if err := os.Remove(doc.FilePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing %s: %w", doc.FilePath, err)
	}
	return nil
}
