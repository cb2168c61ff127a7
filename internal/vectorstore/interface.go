// Package vectorstore provides tenant-scoped vector storage: an embedded
// ephemeral backend, a relational persistent backend, and a router that
// selects between them per tenant with cached index handles.
package vectorstore

import (
	"context"
	"errors"
)

// Sentinel errors for vector store operations.
var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyChunks indicates empty or nil chunk input.
	ErrEmptyChunks = errors.New("empty or nil chunks")

	// ErrBackendUnavailable indicates the backing store cannot be reached.
	ErrBackendUnavailable = errors.New("vector store backend unavailable")

	// ErrStorageInconsistent indicates an ingestion that claimed success
	// while the stored state does not reflect it.
	ErrStorageInconsistent = errors.New("vector storage inconsistent")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("failed to generate embeddings")
)

// Embedder generates vector embeddings from text.
//
// Embeddings are dense numerical representations that capture semantic
// meaning, enabling similarity search. Implementations can use local
// models (TEI) or cloud APIs (OpenAI, Cohere).
type Embedder interface {
	// EmbedDocuments generates embeddings for multiple texts.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query.
	// Some models optimize differently for queries vs documents.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Store is the capability interface every vector backend implements.
//
// Every operation is tenant-scoped: a store never returns chunks across
// tenant boundaries, and deleting one tenant's data leaves all others
// untouched.
type Store interface {
	// Name identifies the backend ("chromem", "pgvector").
	Name() string

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	// IngestChunks embeds and stores a document's chunks, returning the
	// stored chunk IDs.
	IngestChunks(ctx context.Context, tenantID, documentID string, chunks []Chunk) ([]string, error)

	// Search returns up to k chunks of the tenant ranked by similarity.
	// A tenant with no stored chunks yields an empty result, not an error.
	Search(ctx context.Context, tenantID, query string, k int) ([]SearchResult, error)

	// DeleteDocument removes every chunk belonging to one document.
	DeleteDocument(ctx context.Context, tenantID, documentID string) error

	// DeleteTenant removes the tenant's entire index.
	DeleteTenant(ctx context.Context, tenantID string) error

	// HasTenant reports whether the tenant has any stored chunks.
	HasTenant(ctx context.Context, tenantID string) (bool, error)

	// Close releases backend resources.
	Close() error
}
