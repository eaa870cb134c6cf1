package modify

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan:
// - Identical payload lists produce byte-identical patches (determinism)
// - Error payloads are skipped
// - Binary extensions emit a single header line, no body
// - Per-file headers carry insertion/deletion counts
// - Unchanged payloads produce no diff; all-unchanged plan gives empty patch
// - Aggregate summary totals match per-file counts
// - Context size scales with content size

func TestDiffer_Determinism(t *testing.T) {
	t.Parallel()

	plan := &Plan{Payloads: []Payload{
		{FilePath: "a.py", Original: "def f():\n    return 1\n", Modified: "def f():\n    return 2\n"},
		{FilePath: "b.py", Original: "", Modified: "def g():\n    pass\n"},
	}}

	d := NewDiffer()
	first, err := d.Diff(plan)
	require.NoError(t, err)
	second, err := d.Diff(plan)
	require.NoError(t, err)
	assert.Equal(t, first.Text, second.Text)
}

func TestDiffer_SkipsErrorPayloads(t *testing.T) {
	t.Parallel()

	plan := &Plan{Payloads: []Payload{
		{FilePath: "bad.py", Err: "could not modify"},
		{FilePath: "good.py", Original: "", Modified: "x = 1\n"},
	}}

	patch, err := NewDiffer().Diff(plan)
	require.NoError(t, err)
	assert.Equal(t, 1, patch.FilesChanged)
	assert.NotContains(t, patch.Text, "bad.py")
}

func TestDiffer_BinaryFiles(t *testing.T) {
	t.Parallel()

	plan := &Plan{Payloads: []Payload{
		{FilePath: "logo.png", Original: "old", Modified: "new"},
	}}

	patch, err := NewDiffer().Diff(plan)
	require.NoError(t, err)
	require.Len(t, patch.Files, 1)
	assert.True(t, patch.Files[0].Binary)
	assert.Contains(t, patch.Text, "# === Binary file logo.png has been modified ===")
	assert.NotContains(t, patch.Text, "@@")
}

func TestDiffer_PerFileHeaderAndCounts(t *testing.T) {
	t.Parallel()

	plan := &Plan{Payloads: []Payload{
		{FilePath: "utils/math.py", Original: "", Modified: "def square(x):\n    return x * x\n"},
	}}

	patch, err := NewDiffer().Diff(plan)
	require.NoError(t, err)
	assert.Contains(t, patch.Text, "# === Diff for utils/math.py (+2/-0) ===")
	assert.Equal(t, 2, patch.Insertions)
	assert.Equal(t, 0, patch.Deletions)
	assert.Contains(t, patch.Text, "# === Summary: 1 files changed, +2 insertions, -0 deletions ===")
}

func TestDiffer_NoChangesGivesEmptyPatch(t *testing.T) {
	t.Parallel()

	plan := &Plan{Payloads: []Payload{
		{FilePath: "same.py", Original: "x = 1\n", Modified: "x = 1\n"},
		{FilePath: "err.py", Err: "boom"},
	}}

	patch, err := NewDiffer().Diff(plan)
	require.NoError(t, err)
	assert.True(t, patch.Empty())
	assert.Empty(t, patch.Text)
}

func TestDiffer_ModifiedFunctionHasHunks(t *testing.T) {
	t.Parallel()

	original := "def greet(name):\n    return f\"Hello, {name}!\"\n"
	modified := "def greet(name, title=None):\n    if title:\n        return f\"Hello, {title} {name}!\"\n    return f\"Hello, {name}!\"\n"
	plan := &Plan{Payloads: []Payload{{FilePath: "module.py", Original: original, Modified: modified}}}

	patch, err := NewDiffer().Diff(plan)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, strings.Count(patch.Files[0].UnifiedDiff, "@@"), 1)
}

func TestContextLines(t *testing.T) {
	t.Parallel()

	small := Payload{Original: strings.Repeat("a\n", 10)}
	medium := Payload{Original: strings.Repeat("a\n", 100)}
	large := Payload{Original: strings.Repeat("a\n", 300)}

	assert.Equal(t, 3, contextLines(small))
	assert.Equal(t, 2, contextLines(medium))
	assert.Equal(t, 1, contextLines(large))

	// The larger side decides.
	mixed := Payload{Original: "a\n", Modified: strings.Repeat("a\n", 300)}
	assert.Equal(t, 1, contextLines(mixed))
}
