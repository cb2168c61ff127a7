// Package document manages the document lifecycle: registration on upload,
// ingestion status transitions, deletion, and reingest requests.
package document

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// Common errors returned by the document package.
var (
	// ErrNotFound indicates the document does not exist or belongs to a
	// different tenant. The two cases are deliberately indistinguishable.
	ErrNotFound = errors.New("document not found")

	// ErrInvalidTransition indicates a status change that the lifecycle
	// does not permit.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Status is the ingestion state of a document.
type Status string

const (
	// StatusPending means the file is stored but not yet indexed.
	StatusPending Status = "pending"

	// StatusIngested means the document's chunks are in the vector store.
	StatusIngested Status = "ingested"

	// StatusError means the last ingestion attempt failed.
	StatusError Status = "error"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusIngested, StatusError:
		return true
	}
	return false
}

// allowedTransitions is the full lifecycle graph. Reingest moves ingested
// and error documents back to pending.
var allowedTransitions = map[Status][]Status{
	StatusPending:  {StatusIngested, StatusError},
	StatusIngested: {StatusPending},
	StatusError:    {StatusPending},
}

// CanTransition reports whether a document may move from one status to
// another.
func CanTransition(from, to Status) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Document is a tenant-owned uploaded file and its ingestion state.
type Document struct {
	ID               string         `gorm:"primaryKey;size:36" json:"id"`
	TenantID         string         `gorm:"size:255;index:idx_documents_tenant" json:"tenant_id"`
	Filename         string         `gorm:"size:255" json:"filename"`
	OriginalFilename string         `gorm:"size:255" json:"original_filename"`
	FilePath         string         `gorm:"size:1024" json:"file_path"`
	FileSize         int64          `json:"file_size"`
	FileType         string         `gorm:"size:16" json:"file_type"`
	Status           Status         `gorm:"size:16;default:pending" json:"status"`
	ChunkCount       *int           `json:"chunk_count,omitempty"`
	ErrorMessage     *string        `gorm:"size:2048" json:"error_message,omitempty"`
	Metadata         datatypes.JSON `json:"metadata,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// TableName returns the database table name.
func (Document) TableName() string {
	return "documents"
}

// transition validates and applies a status change.
func (d *Document) transition(to Status) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}
	if !CanTransition(d.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, d.Status, to)
	}
	d.Status = to
	return nil
}
