package modify

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/code-factory/internal/llm"
)

// Test Plan:
// - Phase-1 syntax failure short-circuits: ok=false, checks_by_type has only
//   "syntax", and the model is never consulted
// - Phase 2 aggregates checks per category; ok iff nothing failed
// - A failed category flips ok and records the failure message
// - Error payloads are ignored by both phases
// - JSON/YAML/JS syntax checks catch malformed content
// - Degraded review (invalid model output) records a message, run continues

// passingReview renders a model response where every category passes.
func passingReview() string {
	var checks []string
	for _, cat := range reviewCategories {
		checks = append(checks, fmt.Sprintf(`{"type": %q, "passed": true, "message": "ok"}`, cat))
	}
	return `{"checks": [` + strings.Join(checks, ",") + `]}`
}

func failingReview(failCat string) string {
	var checks []string
	for _, cat := range reviewCategories {
		passed := cat != failCat
		checks = append(checks, fmt.Sprintf(`{"type": %q, "passed": %v, "message": "msg"}`, cat, passed))
	}
	return `{"checks": [` + strings.Join(checks, ",") + `]}`
}

func TestValidator_SyntaxShortCircuit(t *testing.T) {
	t.Parallel()

	client := llm.NewMockClient(nil, passingReview())
	v := NewValidator(client, nil)

	plan := &Plan{Payloads: []Payload{
		{FilePath: "bad.py", Modified: "def broken(:\n    pass\n"},
	}}

	report, err := v.Validate(context.Background(), plan)
	require.NoError(t, err)
	assert.False(t, report.OK)
	assert.Len(t, report.ChecksByType, 1)
	assert.Contains(t, report.ChecksByType, "syntax")
	assert.Equal(t, 0, client.Calls(), "phase 2 must not run after a syntax failure")
	assert.NotEmpty(t, report.Messages)
}

func TestValidator_AllChecksPass(t *testing.T) {
	t.Parallel()

	client := llm.NewMockClient(nil, passingReview())
	v := NewValidator(client, nil)

	plan := &Plan{Payloads: []Payload{
		{FilePath: "ok.py", Modified: "def fine():\n    return 1\n"},
	}}

	report, err := v.Validate(context.Background(), plan)
	require.NoError(t, err)
	assert.True(t, report.OK)

	for _, cat := range reviewCategories {
		summary, ok := report.ChecksByType[cat]
		require.True(t, ok, "category %s missing", cat)
		assert.Equal(t, 0, summary.Failed)
	}
}

func TestValidator_FailedCategoryFlipsOK(t *testing.T) {
	t.Parallel()

	client := llm.NewMockClient(nil, failingReview("security"))
	v := NewValidator(client, nil)

	plan := &Plan{Payloads: []Payload{
		{FilePath: "ok.py", Modified: "def fine():\n    return 1\n"},
	}}

	report, err := v.Validate(context.Background(), plan)
	require.NoError(t, err)
	assert.False(t, report.OK)
	assert.Equal(t, 1, report.ChecksByType["security"].Failed)
	require.Len(t, report.Messages, 1)
	assert.Contains(t, report.Messages[0], "[security]")
}

func TestValidator_IgnoresErrorPayloads(t *testing.T) {
	t.Parallel()

	client := llm.NewMockClient(nil, passingReview())
	v := NewValidator(client, nil)

	plan := &Plan{Payloads: []Payload{
		{FilePath: "broken.py", Err: "model failed"},
	}}

	report, err := v.Validate(context.Background(), plan)
	require.NoError(t, err)
	assert.True(t, report.OK)
	assert.Equal(t, 0, client.Calls())
}

func TestCheckSyntax_Formats(t *testing.T) {
	t.Parallel()

	assert.Empty(t, checkSyntax("a.json", `{"name": "x"}`))
	assert.NotEmpty(t, checkSyntax("a.json", `{"name": `))

	assert.Empty(t, checkSyntax("a.yaml", "services:\n  backend:\n    image: x\n"))
	assert.NotEmpty(t, checkSyntax("a.yaml", "services:\n\tbackend: x\n"))

	assert.Empty(t, checkSyntax("a.js", "function f() { return [1, 2]; }\n"))
	assert.NotEmpty(t, checkSyntax("a.js", "function f() { return [1, 2; }\n"))

	// Braces inside strings and comments do not count.
	assert.Empty(t, checkSyntax("a.js", "const s = \"}{\"; // }\n"))

	// Unknown types have no phase-1 check.
	assert.Empty(t, checkSyntax("a.rs", "fn main() {"))
}

func TestValidator_DegradedReviewContinues(t *testing.T) {
	t.Parallel()

	client := llm.NewMockClient(nil, "not json at all")
	v := NewValidator(client, nil)

	plan := &Plan{Payloads: []Payload{
		{FilePath: "ok.py", Modified: "def fine():\n    return 1\n"},
	}}

	report, err := v.Validate(context.Background(), plan)
	require.NoError(t, err)
	// Only the syntax summary exists; the review failure is a message.
	assert.True(t, report.OK)
	require.Len(t, report.Messages, 1)
	assert.Contains(t, report.Messages[0], "review unavailable")
}
