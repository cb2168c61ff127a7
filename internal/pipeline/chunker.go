package pipeline

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/fyrsmithlabs/docvault/internal/vectorstore"
)

// Default splitting parameters.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// ChunkerConfig holds text splitting configuration.
type ChunkerConfig struct {
	// ChunkSize is the target chunk length in characters.
	// Default: 1000
	ChunkSize int `koanf:"chunk_size"`

	// ChunkOverlap is how many characters adjacent chunks share.
	// Default: 200
	ChunkOverlap int `koanf:"chunk_overlap"`
}

// ApplyDefaults sets default values for unset fields.
func (c *ChunkerConfig) ApplyDefaults() {
	if c.ChunkSize == 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.ChunkOverlap == 0 {
		c.ChunkOverlap = DefaultChunkOverlap
	}
}

// Chunker splits extracted text into overlapping chunks using recursive
// character splitting (paragraphs first, then sentences, then words).
type Chunker struct {
	splitter textsplitter.RecursiveCharacter
}

// NewChunker creates a Chunker.
func NewChunker(config ChunkerConfig) *Chunker {
	config.ApplyDefaults()
	return &Chunker{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(config.ChunkSize),
			textsplitter.WithChunkOverlap(config.ChunkOverlap),
		),
	}
}

// Split turns text into ordered chunks carrying the given metadata.
// Whitespace-only input yields no chunks.
func (c *Chunker) Split(text string, metadata map[string]interface{}) ([]vectorstore.Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	pieces, err := c.splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("splitting text: %w", err)
	}

	chunks := make([]vectorstore.Chunk, 0, len(pieces))
	for _, piece := range pieces {
		if strings.TrimSpace(piece) == "" {
			continue
		}
		chunks = append(chunks, vectorstore.Chunk{
			Ordinal:  len(chunks),
			Content:  piece,
			Metadata: metadata,
		})
	}
	return chunks, nil
}
