package pipeline_test

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/fyrsmithlabs/docvault/internal/document"
	"github.com/fyrsmithlabs/docvault/internal/pipeline"
	"github.com/fyrsmithlabs/docvault/internal/vectorstore"
)

type noopLedger struct{}

func (noopLedger) ReserveDocument(ctx context.Context, tenantID string, bytes int64) error { return nil }
func (noopLedger) DecrementDocumentCount(ctx context.Context, tenantID string, bytes int64) error {
	return nil
}
func (noopLedger) ResetUsage(ctx context.Context, tenantID string) error { return nil }

type noopVectorIndex struct{}

func (noopVectorIndex) DeleteDocument(ctx context.Context, tenantID, documentID string) error {
	return nil
}
func (noopVectorIndex) DeleteTenant(ctx context.Context, tenantID string) error { return nil }
func (noopVectorIndex) Invalidate(tenantID string)                              {}

// fakeChunkIndex captures ingested chunks and invalidations.
type fakeChunkIndex struct {
	chunks      map[string][]vectorstore.Chunk
	invalidated []string
	failWith    error
	dropIDs     bool
}

func newFakeChunkIndex() *fakeChunkIndex {
	return &fakeChunkIndex{chunks: make(map[string][]vectorstore.Chunk)}
}

func (f *fakeChunkIndex) IngestChunks(ctx context.Context, tenantID, documentID string, chunks []vectorstore.Chunk) ([]string, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	if f.dropIDs {
		return nil, nil
	}
	f.chunks[documentID] = chunks
	ids := make([]string, len(chunks))
	for i := range chunks {
		ids[i] = documentID
	}
	return ids, nil
}

func (f *fakeChunkIndex) Invalidate(tenantID string) {
	f.invalidated = append(f.invalidated, tenantID)
}

type testEnv struct {
	ingestor *pipeline.Ingestor
	manager  *document.Manager
	repo     *document.Repository
	index    *fakeChunkIndex
	dir      string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	repo := document.NewRepository(db)
	require.NoError(t, repo.Migrate())

	manager := document.NewManager(repo, noopLedger{}, noopVectorIndex{}, nil)
	index := newFakeChunkIndex()
	ingestor := pipeline.NewIngestor(manager, repo, index, nil, nil)

	return &testEnv{
		ingestor: ingestor,
		manager:  manager,
		repo:     repo,
		index:    index,
		dir:      t.TempDir(),
	}
}

// register writes content to disk and records a pending document.
func (env *testEnv) register(t *testing.T, tenantID, name string, content []byte) *document.Document {
	t.Helper()
	path := filepath.Join(env.dir, name)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	doc, err := env.manager.Register(context.Background(), tenantID, document.RegisterParams{
		StoredFilename:   name,
		OriginalFilename: name,
		FilePath:         path,
		FileSize:         int64(len(content)),
		FileType:         filepath.Ext(name),
	})
	require.NoError(t, err)
	return doc
}

func TestIngestDocument(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	doc := env.register(t, "tenant-a", "notes.txt", []byte("some meaningful document content"))
	require.NoError(t, env.ingestor.IngestDocument(ctx, "tenant-a", doc.ID))

	loaded, err := env.repo.Get(ctx, "tenant-a", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, document.StatusIngested, loaded.Status)
	require.NotNil(t, loaded.ChunkCount)
	assert.Equal(t, len(env.index.chunks[doc.ID]), *loaded.ChunkCount)
	assert.Contains(t, env.index.invalidated, "tenant-a")

	chunk := env.index.chunks[doc.ID][0]
	assert.Equal(t, "notes.txt", chunk.Metadata["source"])
}

func TestIngestDocumentLongTextChunking(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Several paragraphs well past one chunk size.
	var b strings.Builder
	for i := 0; i < 60; i++ {
		b.WriteString("This paragraph talks about the architecture of the ingestion pipeline in some detail. ")
		if i%5 == 4 {
			b.WriteString("\n\n")
		}
	}
	doc := env.register(t, "tenant-a", "design.md", []byte(b.String()))
	require.NoError(t, env.ingestor.IngestDocument(ctx, "tenant-a", doc.ID))

	chunks := env.index.chunks[doc.ID]
	require.Greater(t, len(chunks), 1)
	for i, c := range chunks {
		assert.Equal(t, i, c.Ordinal)
		assert.LessOrEqual(t, len(c.Content), 1100)
	}
}

func TestIngestDocumentEmptyContent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	doc := env.register(t, "tenant-a", "empty.txt", []byte("   \n\t  "))
	err := env.ingestor.IngestDocument(ctx, "tenant-a", doc.ID)
	require.ErrorIs(t, err, pipeline.ErrNoContent)

	loaded, err := env.repo.Get(ctx, "tenant-a", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, document.StatusError, loaded.Status)
	require.NotNil(t, loaded.ErrorMessage)
	assert.Contains(t, *loaded.ErrorMessage, "no text content")
}

func TestIngestDocumentStorageInconsistent(t *testing.T) {
	env := newTestEnv(t)
	env.index.dropIDs = true
	ctx := context.Background()

	doc := env.register(t, "tenant-a", "notes.txt", []byte("content"))
	err := env.ingestor.IngestDocument(ctx, "tenant-a", doc.ID)
	require.ErrorIs(t, err, vectorstore.ErrStorageInconsistent)

	loaded, err := env.repo.Get(ctx, "tenant-a", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, document.StatusError, loaded.Status)
}

func TestIngestDocumentIndexFailure(t *testing.T) {
	env := newTestEnv(t)
	env.index.failWith = errors.New("backend down")
	ctx := context.Background()

	doc := env.register(t, "tenant-a", "notes.txt", []byte("content"))
	err := env.ingestor.IngestDocument(ctx, "tenant-a", doc.ID)
	require.Error(t, err)

	loaded, err := env.repo.Get(ctx, "tenant-a", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, document.StatusError, loaded.Status)
	assert.Contains(t, *loaded.ErrorMessage, "backend down")
}

func TestIngestDocumentWrongStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	doc := env.register(t, "tenant-a", "notes.txt", []byte("content"))
	require.NoError(t, env.ingestor.IngestDocument(ctx, "tenant-a", doc.ID))

	err := env.ingestor.IngestDocument(ctx, "tenant-a", doc.ID)
	require.ErrorIs(t, err, document.ErrInvalidTransition)
}

func TestIngestPendingPartialFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.register(t, "tenant-a", "good.txt", []byte("good content"))
	bad := env.register(t, "tenant-a", "bad.txt", []byte("  "))

	result, err := env.ingestor.IngestPending(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	require.Contains(t, result.Errors, bad.ID)
	assert.ErrorIs(t, result.Errors[bad.ID], pipeline.ErrNoContent)
}

func TestIngestPendingAllFail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.register(t, "tenant-a", "a.txt", []byte(" "))
	env.register(t, "tenant-a", "b.txt", []byte(" "))

	result, err := env.ingestor.IngestPending(ctx, "tenant-a")
	require.Error(t, err)
	assert.Equal(t, 2, result.Failed)
	assert.Equal(t, 0, result.Succeeded)
}

func TestIngestPendingEmpty(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.ingestor.IngestPending(context.Background(), "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, 0, result.Succeeded)
	assert.Equal(t, 0, result.Failed)
}

func TestReingestAfterError(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	doc := env.register(t, "tenant-a", "doc.txt", []byte("  "))
	require.Error(t, env.ingestor.IngestDocument(ctx, "tenant-a", doc.ID))

	// Fix the file, then reingest: error -> pending -> ingested.
	require.NoError(t, os.WriteFile(doc.FilePath, []byte("now there is real content"), 0o644))
	require.NoError(t, env.ingestor.Reingest(ctx, "tenant-a", doc.ID))

	loaded, err := env.repo.Get(ctx, "tenant-a", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, document.StatusIngested, loaded.Status)
	assert.Nil(t, loaded.ErrorMessage)
}

func TestExtractDocx(t *testing.T) {
	extractor := pipeline.NewExtractor()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, err := w.Create("word/document.xml")
	require.NoError(t, err)
	_, err = f.Write([]byte(`<w:document><w:body>` +
		`<w:p><w:r><w:t>First paragraph.</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t>Second paragraph.</w:t></w:r></w:p>` +
		`</w:body></w:document>`))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	path := filepath.Join(t.TempDir(), "letter.docx")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	text, err := extractor.Extract(path, ".docx")
	require.NoError(t, err)
	assert.Contains(t, text, "First paragraph.")
	assert.Contains(t, text, "Second paragraph.")
	assert.Contains(t, text, "\n")
}

func TestExtractPlainFamilies(t *testing.T) {
	extractor := pipeline.NewExtractor()
	dir := t.TempDir()

	for _, name := range []string{"a.txt", "b.md", "c.py", "d.json"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("content of "+name), 0o644))

		text, err := extractor.Extract(path, filepath.Ext(name))
		require.NoError(t, err)
		assert.Equal(t, "content of "+name, text)
	}
}

func TestExtractInvalidPDF(t *testing.T) {
	extractor := pipeline.NewExtractor()
	path := filepath.Join(t.TempDir(), "broken.pdf")
	require.NoError(t, os.WriteFile(path, []byte("not a pdf at all"), 0o644))

	_, err := extractor.Extract(path, ".pdf")
	require.Error(t, err)
}

func TestChunkerEmptyInput(t *testing.T) {
	chunker := pipeline.NewChunker(pipeline.ChunkerConfig{})

	chunks, err := chunker.Split("   ", nil)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChunkerOverlap(t *testing.T) {
	chunker := pipeline.NewChunker(pipeline.ChunkerConfig{ChunkSize: 50, ChunkOverlap: 10})

	text := strings.Repeat("word ", 60)
	chunks, err := chunker.Split(text, nil)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)
	for i, c := range chunks {
		assert.Equal(t, i, c.Ordinal)
	}
}
