package modify

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/code-factory/internal/llm"
)

// Test Plan:
// - Happy path: analysis, plan, validation ok, patch, and docs all produced
// - Validation failure retries planning with feedback appended to the prompt
// - Retries are bounded; exhaustion returns the last report, empty patch,
//   no docs, no files written
// - Budget exhaustion mid-run returns a degraded result with partials
// - Path escape surfaces as a fatal error
// - Create-file scenario produces the expected per-file diff header

// scriptedPipeline wires an interactor whose analyzer, modifier, and validator
// share one mock client that returns the given responses in order.
func scriptedPipeline(t *testing.T, budget *llm.Budget, responses ...string) (*Interactor, *llm.MockClient) {
	t.Helper()
	client := llm.NewMockClient(budget, responses...)
	it, err := NewInteractor(InteractorOptions{
		Analyzer:  NewAnalyzer(client, nil),
		Modifier:  NewModifier(client, nil),
		Validator: NewValidator(client, nil),
		Budget:    budget,
	})
	require.NoError(t, err)
	return it, client
}

func TestInteractor_HappyPathCreate(t *testing.T) {
	t.Parallel()

	budget := llm.NewBudget(0)
	it, _ := scriptedPipeline(t, budget,
		initialJSON,  // analyzer: initial
		qualityJSON,  // analyzer: dependency
		"def square(x):\n    return x * x\n", // modifier
		passingReview(), // validator phase 2
	)

	req := structuredReq(t.TempDir(), StructuredPrompt{
		Action: ActionCreate, File: "utils/math.py",
		What: "add square function", How: "def square(x): return x*x",
	})

	result, err := it.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.Degraded)
	assert.True(t, result.Validation.OK)
	require.Len(t, result.Plan.Payloads, 1)
	assert.Contains(t, result.Patch.Text, "# === Diff for utils/math.py (+2/-0) ===")
	assert.Contains(t, string(result.Docs), "utils/math.py")
}

func TestInteractor_RetryWithValidationFeedback(t *testing.T) {
	t.Parallel()

	budget := llm.NewBudget(0)
	it, client := scriptedPipeline(t, budget,
		initialJSON,
		qualityJSON,
		"def broken(:\n    pass\n", // modifier attempt 1: syntax-invalid
		"def fixed():\n    return 1\n", // modifier attempt 2
		passingReview(), // validator phase 2 for attempt 2
	)

	req := structuredReq(t.TempDir(), StructuredPrompt{
		Action: ActionCreate, File: "m.py", What: "add function",
	})

	result, err := it.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.Validation.OK)
	assert.Contains(t, result.Plan.Payloads[0].Modified, "def fixed")

	// The retry prompt carried the validation feedback.
	var sawFeedback bool
	for _, p := range client.Prompts {
		if strings.Contains(p, "Validation feedback") && strings.Contains(p, "syntax") {
			sawFeedback = true
		}
	}
	assert.True(t, sawFeedback, "retry prompt must carry validation feedback")
}

func TestInteractor_RetriesExhaustedLeavesEmptyPatch(t *testing.T) {
	t.Parallel()

	budget := llm.NewBudget(0)
	// The modifier always produces syntax-invalid python; validation fails
	// every attempt.
	it, _ := scriptedPipeline(t, budget,
		initialJSON,
		qualityJSON,
		"def broken(:\n    pass\n",
	)

	root := t.TempDir()
	req := structuredReq(root, StructuredPrompt{
		Action: ActionCreate, File: "m.py", What: "add function",
	})

	result, err := it.Execute(context.Background(), req)
	require.NoError(t, err)

	assert.False(t, result.Validation.OK)
	assert.Len(t, result.Validation.ChecksByType, 1)
	assert.Contains(t, result.Validation.ChecksByType, "syntax")
	assert.True(t, result.Patch.Empty())
	assert.Empty(t, result.Docs)

	// No file was written.
	_, statErr := os.Stat(filepath.Join(root, "m.py"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestInteractor_BudgetExhaustionDegrades(t *testing.T) {
	t.Parallel()

	// Enough budget for the two analysis calls (200 tokens each), nothing
	// more: planning must not run.
	budget := llm.NewBudget(400)
	it, client := scriptedPipeline(t, budget,
		initialJSON,
		qualityJSON,
		"never used",
	)

	req := structuredReq(t.TempDir(), StructuredPrompt{
		Action: ActionCreate, File: "m.py", What: "add function",
	})

	result, err := it.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.Degraded)
	assert.Contains(t, result.Reason, "budget")
	// The analysis partial is still carried.
	assert.Equal(t, "simple change", result.Analysis.InitialAnalysis["summary"])
	assert.Empty(t, result.Plan.Payloads)
	assert.Equal(t, 2, client.Calls())
}

func TestInteractor_PathEscapeIsFatal(t *testing.T) {
	t.Parallel()

	budget := llm.NewBudget(0)
	it, _ := scriptedPipeline(t, budget,
		initialJSON,
		qualityJSON,
		"content",
	)

	req := structuredReq(t.TempDir(), StructuredPrompt{
		Action: ActionModify, File: "../outside.py", What: "escape",
	})

	result, err := it.Execute(context.Background(), req)
	var escape *PathEscapeError
	require.ErrorAs(t, err, &escape)
	require.NotNil(t, result)
	assert.True(t, result.Patch.Empty())
}
