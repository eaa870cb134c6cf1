package modify_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/code-factory/internal/llm"
	"github.com/mvp-joe/code-factory/internal/modify"
	"github.com/mvp-joe/code-factory/internal/patchapply"
)

// End-to-end scenarios through the interactor and the patch applier:
// - Create a new file: per-file diff header, file exists after apply
// - Modify an existing function: hunks present, docs mention the file,
//   applied content matches the payload byte-for-byte
// - Delete a function: sibling function survives, file still parses

const scenarioInitialJSON = `{"summary": "change", "affected_areas": [], "approach": "edit"}`
const scenarioQualityJSON = `{"complexity": 2, "maintainability": 8, "coupling": 1}`

func allPassReview() string {
	categories := []string{"syntax", "style", "security", "compatibility", "performance", "error_handling", "documentation"}
	var checks []string
	for _, cat := range categories {
		checks = append(checks, fmt.Sprintf(`{"type": %q, "passed": true, "message": "ok"}`, cat))
	}
	return `{"checks": [` + strings.Join(checks, ",") + `]}`
}

func runPipeline(t *testing.T, req modify.Request, responses ...string) *modify.Result {
	t.Helper()
	budget := llm.NewBudget(0)
	client := llm.NewMockClient(budget, responses...)
	it, err := modify.NewInteractor(modify.InteractorOptions{
		Analyzer:  modify.NewAnalyzer(client, nil),
		Modifier:  modify.NewModifier(client, nil),
		Validator: modify.NewValidator(client, nil),
		Budget:    budget,
	})
	require.NoError(t, err)

	result, err := it.Execute(context.Background(), req)
	require.NoError(t, err)
	return result
}

func applyPatch(t *testing.T, root string, result *modify.Result) {
	t.Helper()
	if _, err := exec.LookPath("patch"); err != nil {
		t.Skip("patch utility not installed")
	}
	require.NoError(t, patchapply.New(root, nil).Apply(context.Background(), result.Patch))
}

func TestScenario_CreateNewFile(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "utils"), 0o755))

	req := modify.Request{
		ProjectRoot: root,
		Structured: &modify.StructuredPrompt{
			Action: modify.ActionCreate, File: "utils/math.py",
			What: "add square function", How: "def square(x): return x*x",
		},
	}
	result := runPipeline(t, req,
		scenarioInitialJSON, scenarioQualityJSON,
		"def square(x):\n    return x * x\n",
		allPassReview(),
	)

	require.True(t, result.Validation.OK)
	assert.Contains(t, result.Patch.Text, "# === Diff for utils/math.py (+2/-0) ===")

	applyPatch(t, root, result)
	data, err := os.ReadFile(filepath.Join(root, "utils", "math.py"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "def square")
}

func TestScenario_ModifyExistingFunction(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	original := "def greet(name):\n    return f\"Hello, {name}!\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, "module.py"), []byte(original), 0o644))

	modified := "def greet(name, title=None):\n    if title:\n        return f\"Hello, {title} {name}!\"\n    return f\"Hello, {name}!\"\n"
	req := modify.Request{
		ProjectRoot: root,
		Structured: &modify.StructuredPrompt{
			Action: modify.ActionModify, File: "module.py",
			What: "add optional title", How: "extend signature",
		},
	}
	result := runPipeline(t, req,
		scenarioInitialJSON, scenarioQualityJSON,
		modified,
		allPassReview(),
	)

	require.True(t, result.Validation.OK)
	require.Len(t, result.Patch.Files, 1)
	assert.GreaterOrEqual(t, strings.Count(result.Patch.Files[0].UnifiedDiff, "@@"), 1)
	assert.Contains(t, string(result.Docs), "module.py")

	applyPatch(t, root, result)
	data, err := os.ReadFile(filepath.Join(root, "module.py"))
	require.NoError(t, err)
	assert.Equal(t, modified, string(data))
}

func TestScenario_DeleteFunction(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	source := "def a():\n    return 1\n\ndef b():\n    return 2\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, "m.py"), []byte(source), 0o644))

	// Deletion is deterministic, so only analysis and review hit the model.
	req := modify.Request{
		ProjectRoot: root,
		Structured:  &modify.StructuredPrompt{Action: modify.ActionDelete, File: "m.py", Function: "a"},
	}
	result := runPipeline(t, req,
		scenarioInitialJSON, scenarioQualityJSON,
		allPassReview(),
	)

	require.True(t, result.Validation.OK)

	applyPatch(t, root, result)
	data, err := os.ReadFile(filepath.Join(root, "m.py"))
	require.NoError(t, err)
	content := string(data)
	assert.NotContains(t, content, "def a")
	assert.Contains(t, content, "def b")
}
