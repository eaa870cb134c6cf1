package modify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mvp-joe/code-factory/internal/graph"
	"github.com/mvp-joe/code-factory/internal/llm"
	"github.com/mvp-joe/code-factory/internal/rag"
)

// securityKeywords gate the security analysis sub-prompt. The set is closed.
var securityKeywords = []string{
	"auth", "password", "crypt", "secret", "token", "key", "permission", "access",
}

// maxRiskFactor caps each contribution to the overall risk mean.
const maxRiskFactor = 10

// Analyzer produces the structured AnalysisResult for a request. Three
// sub-prompts run in order: target-file analysis, graph-backed dependency
// analysis, and (only for security-related requests) security analysis.
type Analyzer struct {
	client llm.Client
	logger *zap.Logger
}

// NewAnalyzer creates an analyzer.
func NewAnalyzer(client llm.Client, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{client: client, logger: logger}
}

// Analyze runs the three sub-prompts and aggregates the risk assessment.
// Sub-prompt parse failures degrade that sub-result; they never abort the
// analysis.
func (a *Analyzer) Analyze(ctx context.Context, req Request, sg *graph.SemanticGraph) (*AnalysisResult, error) {
	result := &AnalysisResult{}

	// Sub-prompt 1: structured target-file analysis.
	initial, err := a.askJSON(ctx, a.initialPrompt(req))
	if err != nil {
		if llm.IsBudgetExceeded(err) {
			return result, err
		}
		result.InitialAnalysis = map[string]any{"error": err.Error()}
	} else {
		result.InitialAnalysis = initial
	}

	// Sub-prompt 2: dependency analysis grounded on the semantic graph.
	result.DependencyAnalysis = a.analyzeDependencies(ctx, req, sg)

	// Sub-prompt 3: security analysis, only for security-related requests.
	if containsSecurityKeyword(req.TaskText()) {
		sec := a.analyzeSecurity(ctx, req)
		result.SecurityAnalysis = &sec
	}

	result.RiskAssessment = a.assessRisk(req, result)
	return result, nil
}

// analyzeDependencies queries the graph for ripple risks around the target
// symbols, then asks the model for the quality triple.
func (a *Analyzer) analyzeDependencies(ctx context.Context, req Request, sg *graph.SemanticGraph) DependencyAnalysis {
	dep := DependencyAnalysis{}

	if sg != nil {
		symbols := a.targetSymbols(req, sg)
		dep.RippleRisk = sg.RippleRisk(symbols, 2)
	}

	parsed, err := a.askJSON(ctx, a.dependencyPrompt(req, dep.RippleRisk))
	if err != nil {
		dep.Error = err.Error()
		return dep
	}
	dep.CodeQuality = CodeQuality{
		Complexity:      clampRisk(numberField(parsed, "complexity")),
		Maintainability: clampRisk(numberField(parsed, "maintainability")),
		Coupling:        clampRisk(numberField(parsed, "coupling")),
	}
	return dep
}

// analyzeSecurity runs the gated security sub-prompt.
func (a *Analyzer) analyzeSecurity(ctx context.Context, req Request) SecurityAnalysis {
	sec := SecurityAnalysis{}
	parsed, err := a.askJSON(ctx, a.securityPrompt(req))
	if err != nil {
		sec.Error = err.Error()
		return sec
	}
	sec.Vulnerabilities = stringSliceField(parsed, "vulnerabilities")
	sec.Recommendations = stringSliceField(parsed, "recommendations")
	return sec
}

// assessRisk computes the mean of four capped factors: ripple impact,
// complexity, vulnerability count, and target file count.
func (a *Analyzer) assessRisk(req Request, result *AnalysisResult) RiskAssessment {
	ripple := clampRisk(float64(len(result.DependencyAnalysis.RippleRisk)))
	complexity := clampRisk(result.DependencyAnalysis.CodeQuality.Complexity)
	vulns := 0.0
	if result.SecurityAnalysis != nil {
		vulns = clampRisk(float64(len(result.SecurityAnalysis.Vulnerabilities)))
	}
	targets := clampRisk(float64(len(req.TargetFiles())))

	return RiskAssessment{OverallRisk: (ripple + complexity + vulns + targets) / 4}
}

// targetSymbols maps the request's target files to graph symbols.
func (a *Analyzer) targetSymbols(req Request, sg *graph.SemanticGraph) []string {
	var symbols []string
	if req.Structured != nil && req.Structured.Function != "" {
		symbols = append(symbols, req.Structured.Function)
	}
	for _, f := range req.TargetFiles() {
		base := f
		if idx := strings.LastIndexByte(base, '/'); idx >= 0 {
			base = base[idx+1:]
		}
		if idx := strings.LastIndexByte(base, '.'); idx >= 0 {
			base = base[:idx]
		}
		if _, ok := sg.Node(base); ok {
			symbols = append(symbols, base)
		}
	}
	return symbols
}

// askJSON issues one prompt and validates the response as a JSON object.
func (a *Analyzer) askJSON(ctx context.Context, prompt string) (map[string]any, error) {
	raw, err := a.client.Ask(ctx, prompt)
	if err != nil {
		return nil, err
	}
	parsed, perr := parseJSONObject(raw)
	if perr != nil {
		a.logger.Warn("analysis sub-result was not valid JSON", zap.Error(perr))
		return nil, fmt.Errorf("%w: %v", llm.ErrInvalidResponse, perr)
	}
	return parsed, nil
}

func (a *Analyzer) initialPrompt(req Request) string {
	prompt := fmt.Sprintf(`Analyze the following code modification request for project %q.
Respond with a single JSON object with keys "summary", "affected_areas" (array of strings), and "approach".

Request: %s`, req.ProjectRoot, req.TaskText())
	return rag.AppendContext(prompt, req.RAGContext)
}

func (a *Analyzer) dependencyPrompt(req Request, ripples []graph.Ripple) string {
	rippleJSON, _ := json.Marshal(ripples)
	return fmt.Sprintf(`Given this modification request and the ripple risks below, rate the affected code.
Respond with a single JSON object with numeric keys "complexity", "maintainability", and "coupling", each 0-10.

Request: %s
Ripple risks: %s`, req.TaskText(), rippleJSON)
}

func (a *Analyzer) securityPrompt(req Request) string {
	prompt := fmt.Sprintf(`Review this modification request for security implications.
Respond with a single JSON object with keys "vulnerabilities" and "recommendations", both arrays of strings.

Request: %s`, req.TaskText())
	return rag.AppendContext(prompt, req.RAGContext)
}

func containsSecurityKeyword(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range securityKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// parseJSONObject extracts the first JSON object from model output,
// tolerating markdown fences around it.
func parseJSONObject(raw string) (map[string]any, error) {
	text := stripFences(raw)
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in response")
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(text[start:end+1]), &parsed); err != nil {
		return nil, fmt.Errorf("invalid JSON object: %w", err)
	}
	return parsed, nil
}

// stripFences removes a wrapping markdown code fence if present.
func stripFences(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")
	if len(lines) < 2 {
		return text
	}
	lines = lines[1:]
	if strings.HasPrefix(strings.TrimSpace(lines[len(lines)-1]), "```") {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}

func clampRisk(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > maxRiskFactor {
		return maxRiskFactor
	}
	return v
}

func numberField(m map[string]any, key string) float64 {
	if v, ok := m[key].(float64); ok {
		return v
	}
	return 0
}

func stringSliceField(m map[string]any, key string) []string {
	raw, ok := m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
