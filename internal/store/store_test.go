package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/code-factory/internal/chunker"
	"github.com/mvp-joe/code-factory/internal/embed"
)

// Test Plan:
// - Upsert then TopK returns the stored chunk with its metadata round-tripped
// - Upsert with the same chunk ID replaces, not duplicates
// - DeleteChunksByPath removes every chunk for the path
// - Equality filters restrict TopK results
// - FileMetadata upsert/get/delete round-trips, one record per path
// - Knowledge base is isolated from code context and scoped by space

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Options{Dir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func embedText(t *testing.T, p embed.Provider, text string) []float32 {
	t.Helper()
	vec, err := p.Embed(context.Background(), text)
	require.NoError(t, err)
	return vec
}

func testRow(t *testing.T, p embed.Provider, id, path, name, content string) CodeChunkRow {
	t.Helper()
	return NewCodeChunkRow(chunker.Chunk{
		ID:        id,
		Path:      path,
		Name:      name,
		Type:      chunker.TypeFunction,
		Content:   content,
		StartLine: 1,
		EndLine:   3,
		Language:  "python",
	}, embedText(t, p, content))
}

func TestStore_UpsertAndTopK(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)
	p := embed.NewMockProvider(32)

	row := testRow(t, p, "c1", "utils/math.py", "square", "def square(x): return x * x")
	require.NoError(t, s.UpsertChunks(ctx, []CodeChunkRow{row}))

	hits, err := s.TopK(ctx, embedText(t, p, "def square(x): return x * x"), 5, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	assert.Equal(t, "c1", hits[0].ChunkID)
	assert.Equal(t, "utils/math.py", hits[0].Path)
	assert.Equal(t, "square", hits[0].ChunkName)
	assert.Equal(t, "function", hits[0].ChunkType)
	assert.Equal(t, 1, hits[0].StartLine)
	assert.Equal(t, 3, hits[0].EndLine)
}

func TestStore_UpsertReplacesById(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)
	p := embed.NewMockProvider(32)

	first := testRow(t, p, "c1", "a.py", "f", "def f(): return 1")
	require.NoError(t, s.UpsertChunks(ctx, []CodeChunkRow{first}))

	second := testRow(t, p, "c1", "a.py", "f", "def f(): return 2")
	require.NoError(t, s.UpsertChunks(ctx, []CodeChunkRow{second}))

	assert.Equal(t, 1, s.CodeChunkCount())

	hits, err := s.TopK(ctx, embedText(t, p, "def f(): return 2"), 1, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Contains(t, hits[0].Content, "return 2")
}

func TestStore_DeleteChunksByPath(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)
	p := embed.NewMockProvider(32)

	require.NoError(t, s.UpsertChunks(ctx, []CodeChunkRow{
		testRow(t, p, "c1", "a.py", "f", "def f(): pass"),
		testRow(t, p, "c2", "a.py", "g", "def g(): pass"),
		testRow(t, p, "c3", "b.py", "h", "def h(): pass"),
	}))
	require.Equal(t, 3, s.CodeChunkCount())

	require.NoError(t, s.DeleteChunksByPath(ctx, "a.py"))
	assert.Equal(t, 1, s.CodeChunkCount())

	hits, err := s.TopK(ctx, embedText(t, p, "def h(): pass"), 3, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "b.py", hits[0].Path)
}

func TestStore_TopKEqualityFilters(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)
	p := embed.NewMockProvider(32)

	require.NoError(t, s.UpsertChunks(ctx, []CodeChunkRow{
		testRow(t, p, "c1", "a.py", "f", "def f(): pass"),
		testRow(t, p, "c2", "b.py", "g", "def g(): pass"),
	}))

	hits, err := s.TopK(ctx, embedText(t, p, "def"), 10, map[string]string{"path": "b.py"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "b.py", hits[0].Path)
}

func TestStore_FileMetadataRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)

	now := time.Now()
	fm := FileMetadata{
		Path:        "src/app.py",
		FileSize:    1234,
		MTime:       now,
		ContentHash: "abc123",
		LastIndexed: now,
		ChunkCount:  4,
	}
	require.NoError(t, s.UpsertFileMetadata(ctx, fm))

	// Second upsert for the same path updates in place.
	fm.ChunkCount = 7
	require.NoError(t, s.UpsertFileMetadata(ctx, fm))

	all, err := s.GetAllFileMetadata(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	got := all["src/app.py"]
	assert.Equal(t, int64(1234), got.FileSize)
	assert.Equal(t, "abc123", got.ContentHash)
	assert.Equal(t, 7, got.ChunkCount)
	assert.True(t, got.MTime.Equal(now))

	require.NoError(t, s.DeleteFileMetadata(ctx, "src/app.py"))
	all, err = s.GetAllFileMetadata(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestStore_KnowledgeSpaceIsolation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)
	p := embed.NewMockProvider(32)

	require.NoError(t, s.UpsertKnowledge(ctx, []KnowledgeChunkRow{
		{ChunkID: "k1", Content: "fastapi routing guide", Vector: embedText(t, p, "fastapi routing guide"), KnowledgeSpace: "proj-a", DocumentType: "guide"},
		{ChunkID: "k2", Content: "react hooks guide", Vector: embedText(t, p, "react hooks guide"), KnowledgeSpace: "proj-b", DocumentType: "guide"},
	}))

	hits, err := s.TopKKnowledge(ctx, embedText(t, p, "guide"), 10, "proj-a")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "k1", hits[0].ChunkID)

	// Knowledge documents never leak into code context queries.
	codeHits, err := s.TopK(ctx, embedText(t, p, "guide"), 10, nil)
	require.NoError(t, err)
	assert.Empty(t, codeHits)
}
