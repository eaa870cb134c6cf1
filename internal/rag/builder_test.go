package rag

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/code-factory/internal/chunker"
	"github.com/mvp-joe/code-factory/internal/embed"
	"github.com/mvp-joe/code-factory/internal/store"
)

// Test Plan:
// - Build returns a delimited block containing retrieved chunk content
// - Results from multiple queries are deduplicated by chunk ID
// - Output never exceeds the token budget (in chars)
// - Empty store yields an empty context
// - AppendContext appends under the delimiter, never for empty context

func seedStore(t *testing.T, p embed.Provider) *store.Store {
	t.Helper()
	ctx := context.Background()
	st, err := store.Open(store.Options{Dir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	contents := map[string]string{
		"auth.py":  "def login(user, password):\n    return check(user, password)",
		"math.py":  "def square(x):\n    return x * x",
		"views.py": "def render(template):\n    return template.render()",
	}
	var rows []store.CodeChunkRow
	for path, content := range contents {
		vec, err := p.Embed(ctx, content)
		require.NoError(t, err)
		rows = append(rows, store.NewCodeChunkRow(chunker.Chunk{
			ID: path, Path: path, Name: strings.TrimSuffix(path, ".py"),
			Type: chunker.TypeFunction, Content: content,
			StartLine: 1, EndLine: 2, Language: "python",
		}, vec))
	}
	require.NoError(t, st.UpsertChunks(ctx, rows))
	return st
}

func TestBuilder_BuildReturnsDelimitedChunks(t *testing.T) {
	t.Parallel()

	p := embed.NewMockProvider(16)
	st := seedStore(t, p)
	b := NewBuilder(st, p, 0, nil)

	block, err := b.Build(context.Background(), "def square(x):\n    return x * x", nil, nil)
	require.NoError(t, err)
	assert.Contains(t, block, "def square")
	assert.Contains(t, block, "math.py:1-2")
}

func TestBuilder_DeduplicatesAcrossQueries(t *testing.T) {
	t.Parallel()

	p := embed.NewMockProvider(16)
	st := seedStore(t, p)
	b := NewBuilder(st, p, 0, nil)

	// Main query and sub-query both retrieve the same three chunks.
	block, err := b.Build(context.Background(), "square function",
		[]string{"square function"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(block, "def square"))
}

func TestBuilder_TokenBudgetTruncates(t *testing.T) {
	t.Parallel()

	p := embed.NewMockProvider(16)
	st := seedStore(t, p)

	const budget = 10 // tokens → 40 chars
	b := NewBuilder(st, p, budget, nil)
	block, err := b.Build(context.Background(), "function", nil, nil)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(block), budget*charsPerToken)
}

func TestBuilder_EmptyStore(t *testing.T) {
	t.Parallel()

	p := embed.NewMockProvider(16)
	st, err := store.Open(store.Options{Dir: t.TempDir()})
	require.NoError(t, err)
	defer st.Close()

	b := NewBuilder(st, p, 0, nil)
	block, err := b.Build(context.Background(), "anything", nil, nil)
	require.NoError(t, err)
	assert.Empty(t, block)
}

func TestAppendContext(t *testing.T) {
	t.Parallel()

	out := AppendContext("do the thing", "--- a.py ---\ncode\n")
	assert.True(t, strings.HasPrefix(out, "do the thing"))
	assert.Contains(t, out, contextHeader)
	assert.Contains(t, out, contextFooter)

	assert.Equal(t, "prompt", AppendContext("prompt", ""))
	assert.Equal(t, "prompt", AppendContext("prompt", "  \n"))
}
