package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/docvault/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "docvault.db", cfg.Database.DSN)
	assert.Equal(t, "uploaded_docs", cfg.Upload.Dir)
	assert.Equal(t, int64(10*1024*1024), cfg.Upload.MaxFileSizeBytes)
	assert.Equal(t, "chromem", cfg.VectorStore.Provider)
	assert.Equal(t, "vector_store", cfg.VectorStore.Chromem.Path)
	assert.Equal(t, 384, cfg.VectorStore.Chromem.VectorSize)
	assert.Equal(t, 384, cfg.VectorStore.Pgvector.VectorSize)
	assert.Equal(t, "http://localhost:8080/v1", cfg.Embedding.BaseURL)
	assert.Equal(t, "BAAI/bge-small-en-v1.5", cfg.Embedding.Model)
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
database:
  driver: sqlite
  dsn: /tmp/test.db
upload:
  dir: /tmp/uploads
  max_file_size_bytes: 1048576
vectorstore:
  provider: chromem
  chromem:
    path: /tmp/vectors
    compress: true
    vector_size: 512
embedding:
  model: BAAI/bge-base-en-v1.5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/test.db", cfg.Database.DSN)
	assert.Equal(t, "/tmp/uploads", cfg.Upload.Dir)
	assert.Equal(t, int64(1048576), cfg.Upload.MaxFileSizeBytes)
	assert.Equal(t, "/tmp/vectors", cfg.VectorStore.Chromem.Path)
	assert.True(t, cfg.VectorStore.Chromem.Compress)
	assert.Equal(t, 512, cfg.VectorStore.Chromem.VectorSize)
	assert.Equal(t, 384, cfg.VectorStore.Pgvector.VectorSize)
	assert.Equal(t, "BAAI/bge-base-en-v1.5", cfg.Embedding.Model)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("DOCVAULT_DATABASE_DSN", "env.db")
	t.Setenv("DOCVAULT_VECTORSTORE_PROVIDER", "chromem")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "env.db", cfg.Database.DSN)
	assert.Equal(t, "chromem", cfg.VectorStore.Provider)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := config.Load("/does/not/exist.yaml")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{not yaml:::"), 0o644))

	_, err := config.Load(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *config.Config {
		cfg := &config.Config{}
		cfg.ApplyDefaults()
		return cfg
	}

	t.Run("defaults valid", func(t *testing.T) {
		assert.NoError(t, base().Validate())
	})

	t.Run("bad database driver", func(t *testing.T) {
		cfg := base()
		cfg.Database.Driver = "mysql"
		assert.ErrorContains(t, cfg.Validate(), "unsupported database driver")
	})

	t.Run("bad vectorstore provider", func(t *testing.T) {
		cfg := base()
		cfg.VectorStore.Provider = "qdrant"
		assert.ErrorContains(t, cfg.Validate(), "unsupported vectorstore provider")
	})

	t.Run("pgvector without dsn", func(t *testing.T) {
		cfg := base()
		cfg.VectorStore.Provider = "pgvector"
		assert.ErrorContains(t, cfg.Validate(), "no dsn configured")
	})

	t.Run("nonpositive file size", func(t *testing.T) {
		cfg := base()
		cfg.Upload.MaxFileSizeBytes = -1
		assert.ErrorContains(t, cfg.Validate(), "max_file_size_bytes")
	})
}
