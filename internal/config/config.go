// Package config provides configuration loading for docvault.
//
// Configuration is loaded from a YAML file and overridden by environment
// variables. Each subsystem config carries its own defaults and validation.
package config

import (
	"fmt"

	"github.com/fyrsmithlabs/docvault/internal/logging"
)

// Config holds the complete docvault configuration.
type Config struct {
	Logging     logging.Config    `koanf:"logging"`
	Database    DatabaseConfig    `koanf:"database"`
	Upload      UploadConfig      `koanf:"upload"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Embedding   EmbeddingConfig   `koanf:"embedding"`
}

// DatabaseConfig holds the relational store configuration for
// Document and UserQuota records.
type DatabaseConfig struct {
	// Driver selects the gorm driver: "postgres" or "sqlite".
	Driver string `koanf:"driver"`

	// DSN is the connection string (postgres URL or sqlite file path).
	DSN string `koanf:"dsn"`
}

// UploadConfig holds upload staging and validation limits.
type UploadConfig struct {
	// Dir is the root directory for committed uploads.
	// Files land under {Dir}/{tenant_id}/.
	Dir string `koanf:"dir"`

	// MaxFileSizeBytes is the hard per-file byte ceiling.
	MaxFileSizeBytes int64 `koanf:"max_file_size_bytes"`
}

// VectorStoreConfig selects and configures the similarity-search backends.
type VectorStoreConfig struct {
	// Provider selects the backend: "chromem" (embedded, file-persisted)
	// or "pgvector" (persistent relational store with vector search).
	Provider string `koanf:"provider"`

	Chromem  ChromemConfig  `koanf:"chromem"`
	Pgvector PgvectorConfig `koanf:"pgvector"`
}

// ChromemConfig configures the embedded chromem-go backend.
type ChromemConfig struct {
	// Path is the base directory; each tenant's index lives in its own
	// subdirectory beneath it.
	Path string `koanf:"path"`

	// Compress enables gzip compression for stored data.
	Compress bool `koanf:"compress"`

	// VectorSize is the embedding dimension. Must match the embedder.
	VectorSize int `koanf:"vector_size"`
}

// PgvectorConfig configures the persistent pgvector backend.
type PgvectorConfig struct {
	// DSN is the PostgreSQL connection string. Empty means the persistent
	// backend is not configured and the router stays on the ephemeral one.
	DSN string `koanf:"dsn"`

	// VectorSize is the embedding dimension. Must match the embedder.
	VectorSize int `koanf:"vector_size"`
}

// EmbeddingConfig configures the embedding provider endpoint.
type EmbeddingConfig struct {
	// BaseURL is an OpenAI-compatible embeddings endpoint.
	// For TEI: http://localhost:8080/v1
	BaseURL string `koanf:"base_url"`

	// Model is the embedding model name.
	Model string `koanf:"model"`

	// APIKey is the API key (optional for self-hosted TEI).
	APIKey string `koanf:"api_key"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	c.Logging.ApplyDefaults()
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.DSN == "" && c.Database.Driver == "sqlite" {
		c.Database.DSN = "docvault.db"
	}
	if c.Upload.Dir == "" {
		c.Upload.Dir = "uploaded_docs"
	}
	if c.Upload.MaxFileSizeBytes == 0 {
		c.Upload.MaxFileSizeBytes = 10 * 1024 * 1024 // 10MB
	}
	if c.VectorStore.Provider == "" {
		c.VectorStore.Provider = "chromem"
	}
	if c.VectorStore.Chromem.Path == "" {
		c.VectorStore.Chromem.Path = "vector_store"
	}
	if c.VectorStore.Chromem.VectorSize == 0 {
		c.VectorStore.Chromem.VectorSize = 384
	}
	if c.VectorStore.Pgvector.VectorSize == 0 {
		c.VectorStore.Pgvector.VectorSize = 384
	}
	if c.Embedding.BaseURL == "" {
		c.Embedding.BaseURL = "http://localhost:8080/v1"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "BAAI/bge-small-en-v1.5"
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("config: unsupported database driver %q (supported: postgres, sqlite)", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("config: database dsn required")
	}
	switch c.VectorStore.Provider {
	case "chromem", "pgvector":
	default:
		return fmt.Errorf("config: unsupported vectorstore provider %q (supported: chromem, pgvector)", c.VectorStore.Provider)
	}
	if c.VectorStore.Provider == "pgvector" && c.VectorStore.Pgvector.DSN == "" {
		return fmt.Errorf("config: pgvector provider selected but no dsn configured")
	}
	if c.Upload.MaxFileSizeBytes <= 0 {
		return fmt.Errorf("config: max_file_size_bytes must be positive")
	}
	return nil
}
