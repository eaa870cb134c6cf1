package modify

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/code-factory/internal/llm"
)

// Test Plan:
// - Path escape attempts fail with PathEscapeError (relative and absolute)
// - Existing files load their original content; new files get empty original
// - Empty modified output against non-empty original suppresses the payload
// - Function deletion removes exactly the named python function
// - requirements.txt merges and sorts; pinned lines win
// - package.json deep-merges a JSON object from the request
// - Unknown types degrade to a comment trailer on invalid model output
// - Markdown fences are stripped from model output

func structuredReq(root string, s StructuredPrompt) Request {
	return Request{ProjectRoot: root, Structured: &s}
}

func TestResolveWithinRoot_Escapes(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	_, err := ResolveWithinRoot(root, "../outside.py")
	var escape *PathEscapeError
	require.ErrorAs(t, err, &escape)

	_, err = ResolveWithinRoot(root, "nested/../../outside.py")
	require.ErrorAs(t, err, &escape)

	_, err = ResolveWithinRoot(root, "/etc/passwd")
	require.ErrorAs(t, err, &escape)

	abs, err := ResolveWithinRoot(root, "sub/inside.py")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "sub", "inside.py"), abs)
}

func TestBuildPlan_PathEscapeIsFatal(t *testing.T) {
	t.Parallel()

	m := NewModifier(llm.NewMockClient(nil, "content"), nil)
	req := structuredReq(t.TempDir(), StructuredPrompt{
		Action: ActionModify, File: "../../etc/passwd", What: "overwrite",
	})

	plan, err := m.BuildPlan(context.Background(), req, "")
	var escape *PathEscapeError
	require.ErrorAs(t, err, &escape)
	assert.Nil(t, plan)
}

func TestBuildPlan_NewFileHasEmptyOriginal(t *testing.T) {
	t.Parallel()

	m := NewModifier(llm.NewMockClient(nil, "def square(x):\n    return x * x\n"), nil)
	req := structuredReq(t.TempDir(), StructuredPrompt{
		Action: ActionCreate, File: "utils/math.py",
		What: "add square function", How: "def square(x): return x*x",
	})

	plan, err := m.BuildPlan(context.Background(), req, "")
	require.NoError(t, err)
	require.Len(t, plan.Payloads, 1)
	assert.Empty(t, plan.Payloads[0].Original)
	assert.Contains(t, plan.Payloads[0].Modified, "def square")
}

func TestBuildPlan_ReadsOriginalFromDisk(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	original := "def greet(name):\n    return f\"Hello, {name}!\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, "module.py"), []byte(original), 0o644))

	modified := "def greet(name, title=None):\n    if title:\n        return f\"Hello, {title} {name}!\"\n    return f\"Hello, {name}!\"\n"
	m := NewModifier(llm.NewMockClient(nil, modified), nil)
	req := structuredReq(root, StructuredPrompt{
		Action: ActionModify, File: "module.py",
		What: "add optional title", How: "extend signature",
	})

	plan, err := m.BuildPlan(context.Background(), req, "")
	require.NoError(t, err)
	require.Len(t, plan.Payloads, 1)
	assert.Equal(t, original, plan.Payloads[0].Original)
	assert.Contains(t, plan.Payloads[0].Modified, "def greet(name, title=None):")
}

func TestBuildPlan_EmptyModifiedSuppressed(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "keep.py"), []byte("x = 1\n"), 0o644))

	m := NewModifier(llm.NewMockClient(nil, "   \n"), nil)
	req := structuredReq(root, StructuredPrompt{Action: ActionModify, File: "keep.py", What: "noop"})

	plan, err := m.BuildPlan(context.Background(), req, "")
	require.NoError(t, err)
	assert.Empty(t, plan.Payloads)
}

func TestBuildPlan_DeleteFunction(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	source := "def a():\n    return 1\n\ndef b():\n    return 2\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, "m.py"), []byte(source), 0o644))

	// Deletion is deterministic: the model is never consulted.
	client := llm.NewMockClient(nil)
	m := NewModifier(client, nil)
	req := structuredReq(root, StructuredPrompt{Action: ActionDelete, File: "m.py", Function: "a"})

	plan, err := m.BuildPlan(context.Background(), req, "")
	require.NoError(t, err)
	require.Len(t, plan.Payloads, 1)
	assert.NotContains(t, plan.Payloads[0].Modified, "def a")
	assert.Contains(t, plan.Payloads[0].Modified, "def b")
	assert.Equal(t, 0, client.Calls())
}

func TestBuildPlan_DeleteMissingFunctionErrors(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "m.py"), []byte("def b():\n    pass\n"), 0o644))

	m := NewModifier(llm.NewMockClient(nil), nil)
	req := structuredReq(root, StructuredPrompt{Action: ActionDelete, File: "m.py", Function: "missing"})

	plan, err := m.BuildPlan(context.Background(), req, "")
	require.NoError(t, err)
	require.Len(t, plan.Payloads, 1)
	assert.NotEmpty(t, plan.Payloads[0].Err)
}

func TestTransformRequirements_MergeAndSort(t *testing.T) {
	t.Parallel()

	original := "uvicorn==0.24.0\nfastapi\n"
	req := structuredReq(t.TempDir(), StructuredPrompt{
		Action: ActionModify, File: "requirements.txt",
		What: "add deps", How: "pydantic==2.5.0 fastapi==0.109.1",
	})

	out, err := transformRequirements(original, req)
	require.NoError(t, err)
	assert.Equal(t, "fastapi==0.109.1\npydantic==2.5.0\nuvicorn==0.24.0\n", out)
}

func TestTransformPackageJSON_DeepMerge(t *testing.T) {
	t.Parallel()

	original := `{"name": "frontend", "dependencies": {"react": "^18.2.0"}}`
	req := structuredReq(t.TempDir(), StructuredPrompt{
		Action: ActionModify, File: "package.json",
		What: "add axios", How: `{"dependencies": {"axios": "^1.6.0"}}`,
	})

	out, err := transformPackageJSON(original, req)
	require.NoError(t, err)
	assert.Contains(t, out, `"axios": "^1.6.0"`)
	assert.Contains(t, out, `"react": "^18.2.0"`)
	assert.Contains(t, out, `"name": "frontend"`)
}

func TestAskForModifiedSource_DegradesToTrailer(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "conf.rs"), []byte("fn main() {}\n"), 0o644))

	client := llm.NewMockClient(nil, "unused").FailWith(0, llm.ErrInvalidResponse)
	m := NewModifier(client, nil)
	req := structuredReq(root, StructuredPrompt{Action: ActionModify, File: "conf.rs", What: "tune"})

	plan, err := m.BuildPlan(context.Background(), req, "")
	require.NoError(t, err)
	require.Len(t, plan.Payloads, 1)
	assert.Contains(t, plan.Payloads[0].Modified, "// modify conf.rs: tune")
}

func TestStripFences(t *testing.T) {
	t.Parallel()

	fenced := "```python\ndef f():\n    pass\n```"
	assert.Equal(t, "def f():\n    pass", stripFences(fenced))
	assert.Equal(t, "plain", stripFences("plain"))
}
