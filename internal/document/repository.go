package document

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// Repository persists document records. All reads are scoped by tenant so
// a missing row and a cross-tenant row are the same ErrNotFound.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a Repository backed by the given database.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Migrate creates the documents table.
func (r *Repository) Migrate() error {
	return r.db.AutoMigrate(&Document{})
}

// Create inserts a new document record.
func (r *Repository) Create(ctx context.Context, doc *Document) error {
	if err := r.db.WithContext(ctx).Create(doc).Error; err != nil {
		return fmt.Errorf("creating document %s: %w", doc.ID, err)
	}
	return nil
}

// Get returns the tenant's document by ID.
func (r *Repository) Get(ctx context.Context, tenantID, docID string) (*Document, error) {
	var doc Document
	err := r.db.WithContext(ctx).
		First(&doc, "tenant_id = ? AND id = ?", tenantID, docID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, docID)
		}
		return nil, fmt.Errorf("loading document %s: %w", docID, err)
	}
	return &doc, nil
}

// List returns all of the tenant's documents, newest first.
func (r *Repository) List(ctx context.Context, tenantID string) ([]Document, error) {
	var docs []Document
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		Find(&docs).Error
	if err != nil {
		return nil, fmt.Errorf("listing documents for tenant %s: %w", tenantID, err)
	}
	return docs, nil
}

// ListByStatus returns the tenant's documents in the given status, oldest
// first so pending work is processed in upload order.
func (r *Repository) ListByStatus(ctx context.Context, tenantID string, status Status) ([]Document, error) {
	var docs []Document
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND status = ?", tenantID, status).
		Order("created_at ASC").
		Find(&docs).Error
	if err != nil {
		return nil, fmt.Errorf("listing %s documents for tenant %s: %w", status, tenantID, err)
	}
	return docs, nil
}

// Save persists changes to an existing document.
func (r *Repository) Save(ctx context.Context, doc *Document) error {
	if err := r.db.WithContext(ctx).Save(doc).Error; err != nil {
		return fmt.Errorf("saving document %s: %w", doc.ID, err)
	}
	return nil
}

// Delete removes the tenant's document record.
func (r *Repository) Delete(ctx context.Context, tenantID, docID string) error {
	res := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, docID).
		Delete(&Document{})
	if res.Error != nil {
		return fmt.Errorf("deleting document %s: %w", docID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, docID)
	}
	return nil
}

// DeleteAll removes every document record owned by the tenant and returns
// how many were removed.
func (r *Repository) DeleteAll(ctx context.Context, tenantID string) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Delete(&Document{})
	if res.Error != nil {
		return 0, fmt.Errorf("deleting documents for tenant %s: %w", tenantID, res.Error)
	}
	return res.RowsAffected, nil
}

// Count returns the number of documents owned by the tenant.
func (r *Repository) Count(ctx context.Context, tenantID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&Document{}).
		Where("tenant_id = ?", tenantID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("counting documents for tenant %s: %w", tenantID, err)
	}
	return count, nil
}

// CountAndSize returns the tenant's document count and total stored bytes.
// Implements the quota recalculation source.
func (r *Repository) CountAndSize(ctx context.Context, tenantID string) (int64, int64, error) {
	count, err := r.Count(ctx, tenantID)
	if err != nil {
		return 0, 0, err
	}

	var total struct {
		Bytes int64
	}
	err = r.db.WithContext(ctx).
		Model(&Document{}).
		Select("COALESCE(SUM(file_size), 0) AS bytes").
		Where("tenant_id = ?", tenantID).
		Scan(&total).Error
	if err != nil {
		return 0, 0, fmt.Errorf("summing document sizes for tenant %s: %w", tenantID, err)
	}
	return count, total.Bytes, nil
}
