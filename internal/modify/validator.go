package modify

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
	python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/mvp-joe/code-factory/internal/llm"
)

// reviewCategories are the LLM review dimensions of phase 2.
var reviewCategories = []string{
	"syntax", "style", "security", "compatibility",
	"performance", "error_handling", "documentation",
}

// Validator checks a plan in two phases: deterministic syntax checks that
// short-circuit on failure, then an LLM review across seven categories.
type Validator struct {
	client llm.Client
	logger *zap.Logger
}

// NewValidator creates a validator.
func NewValidator(client llm.Client, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{client: client, logger: logger}
}

// Validate runs both phases over every non-error payload. A phase-1 syntax
// failure returns immediately with ok=false and a checks_by_type map
// containing only "syntax".
func (v *Validator) Validate(ctx context.Context, plan *Plan) (*ValidationReport, error) {
	report := &ValidationReport{
		ChecksByType: make(map[string]CheckSummary),
	}

	// Phase 1: syntax.
	syntax := CheckSummary{}
	for _, p := range plan.Payloads {
		if p.Err != "" {
			continue
		}
		syntax.Total++
		if msg := checkSyntax(p.FilePath, p.Modified); msg != "" {
			syntax.Failed++
			syntax.Failures = append(syntax.Failures, fmt.Sprintf("%s: %s", p.FilePath, msg))
		} else {
			syntax.Passed++
		}
	}
	if syntax.Failed > 0 {
		report.ChecksByType["syntax"] = syntax
		report.Messages = syntax.Failures
		report.OK = false
		return report, nil
	}
	report.ChecksByType["syntax"] = syntax

	// Phase 2: LLM review.
	for _, p := range plan.Payloads {
		if p.Err != "" {
			continue
		}
		checks, err := v.reviewFile(ctx, p)
		if err != nil {
			if llm.IsBudgetExceeded(err) {
				return report, err
			}
			// Degraded review: record the failure as a message, count
			// nothing, keep going.
			report.Messages = append(report.Messages,
				fmt.Sprintf("%s: review unavailable: %v", p.FilePath, err))
			continue
		}
		for _, c := range checks {
			summary := report.ChecksByType[c.Type]
			summary.Total++
			if c.Passed {
				summary.Passed++
			} else {
				summary.Failed++
				failure := fmt.Sprintf("%s: [%s] %s", p.FilePath, c.Type, c.Message)
				summary.Failures = append(summary.Failures, failure)
				report.Messages = append(report.Messages, failure)
			}
			report.ChecksByType[c.Type] = summary
		}
	}

	report.OK = true
	for _, summary := range report.ChecksByType {
		if summary.Failed > 0 {
			report.OK = false
			break
		}
	}
	return report, nil
}

// reviewCheck is one structured LLM review verdict.
type reviewCheck struct {
	Type    string `json:"type"`
	Passed  bool   `json:"passed"`
	Message string `json:"message"`
}

// reviewFile asks the model for structured checks over the modified file.
func (v *Validator) reviewFile(ctx context.Context, p Payload) ([]reviewCheck, error) {
	prompt := fmt.Sprintf(`Review the modified file %q across these categories: %s.
Respond with a single JSON object {"checks": [{"type": string, "passed": bool, "message": string}]} containing exactly one check per category.

Modified content:
%s`, p.FilePath, strings.Join(reviewCategories, ", "), p.Modified)

	raw, err := v.client.Ask(ctx, prompt)
	if err != nil {
		return nil, err
	}

	parsed, perr := parseJSONObject(raw)
	if perr != nil {
		return nil, fmt.Errorf("%w: %v", llm.ErrInvalidResponse, perr)
	}
	data, _ := json.Marshal(parsed["checks"])
	var checks []reviewCheck
	if err := json.Unmarshal(data, &checks); err != nil || len(checks) == 0 {
		return nil, fmt.Errorf("%w: missing checks array", llm.ErrInvalidResponse)
	}

	known := make(map[string]bool, len(reviewCategories))
	for _, cat := range reviewCategories {
		known[cat] = true
	}
	filtered := checks[:0]
	for _, c := range checks {
		if known[c.Type] {
			filtered = append(filtered, c)
		}
	}
	return filtered, nil
}

// checkSyntax is the deterministic phase-1 check. Returns an empty string on
// success, otherwise a failure message.
func checkSyntax(path, content string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".py":
		return checkPythonSyntax(content)
	case ".json":
		if strings.TrimSpace(content) == "" {
			return ""
		}
		var v any
		if err := json.Unmarshal([]byte(content), &v); err != nil {
			return fmt.Sprintf("invalid JSON: %v", err)
		}
	case ".js", ".jsx", ".ts", ".tsx":
		return checkBraceBalance(content)
	case ".yml", ".yaml":
		var v any
		if err := yaml.Unmarshal([]byte(content), &v); err != nil {
			return fmt.Sprintf("invalid YAML: %v", err)
		}
	}
	return ""
}

// checkPythonSyntax compile-checks via the tree-sitter grammar.
func checkPythonSyntax(content string) string {
	parser := sitter.NewParser()
	defer parser.Close()
	if err := parser.SetLanguage(sitter.NewLanguage(python.Language())); err != nil {
		return ""
	}
	tree := parser.Parse([]byte(content), nil)
	if tree == nil {
		return "unparseable python source"
	}
	defer tree.Close()
	if tree.RootNode().HasError() {
		return "python syntax error"
	}
	return ""
}

// checkBraceBalance is the JS/TS heuristic: braces, parens, and brackets
// must balance, ignoring string and comment contents.
func checkBraceBalance(content string) string {
	var brace, paren, bracket int
	inString := byte(0)
	inLineComment := false
	inBlockComment := false

	for i := 0; i < len(content); i++ {
		ch := content[i]
		switch {
		case inLineComment:
			if ch == '\n' {
				inLineComment = false
			}
		case inBlockComment:
			if ch == '*' && i+1 < len(content) && content[i+1] == '/' {
				inBlockComment = false
				i++
			}
		case inString != 0:
			if ch == '\\' {
				i++
			} else if ch == inString {
				inString = 0
			}
		default:
			switch ch {
			case '"', '\'', '`':
				inString = ch
			case '/':
				if i+1 < len(content) {
					if content[i+1] == '/' {
						inLineComment = true
					} else if content[i+1] == '*' {
						inBlockComment = true
					}
				}
			case '{':
				brace++
			case '}':
				brace--
			case '(':
				paren++
			case ')':
				paren--
			case '[':
				bracket++
			case ']':
				bracket--
			}
		}
	}

	if brace != 0 || paren != 0 || bracket != 0 {
		return fmt.Sprintf("unbalanced delimiters (braces %+d, parens %+d, brackets %+d)", brace, paren, bracket)
	}
	return ""
}
