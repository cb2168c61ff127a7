package vectorstore

// Chunk is one contiguous piece of an extracted document, ready for
// embedding and storage.
type Chunk struct {
	// Ordinal is the chunk's position within its document, starting at 0.
	Ordinal int `json:"ordinal"`

	// Content is the chunk text.
	Content string `json:"content"`

	// Metadata carries extraction details (source filename, page, etc).
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// SearchResult is one ranked chunk returned from a similarity search.
type SearchResult struct {
	// ID is the stored chunk ID.
	ID string `json:"id"`

	// TenantID is the owning tenant, carried for defense-in-depth
	// filtering at the router.
	TenantID string `json:"tenant_id"`

	// DocumentID is the source document.
	DocumentID string `json:"document_id"`

	// Ordinal is the chunk's position within its document.
	Ordinal int `json:"ordinal"`

	// Content is the chunk text.
	Content string `json:"content"`

	// Score is the similarity score, higher is more similar.
	Score float32 `json:"score"`

	// Metadata is the chunk metadata as stored.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}
