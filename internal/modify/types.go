// Package modify implements the code modification pipeline: analysis,
// planning, validation, diffing, and documentation, sequenced by the
// Interactor.
package modify

import (
	"fmt"

	"github.com/mvp-joe/code-factory/internal/graph"
)

// Action is a structured request verb.
type Action string

const (
	ActionCreate Action = "create"
	ActionModify Action = "modify"
	ActionDelete Action = "delete"
)

// StructuredPrompt is the machine-readable form of a user prompt.
type StructuredPrompt struct {
	Action   Action `json:"action"`
	File     string `json:"file"`
	What     string `json:"what"`
	How      string `json:"how"`
	Function string `json:"function,omitempty"`
}

// Request is an immutable modification request. Exactly one of Prompt or
// Structured is set.
type Request struct {
	ProjectRoot string
	Prompt      string
	Structured  *StructuredPrompt
	RAGContext  string
}

// TaskText renders the request's task for prompting.
func (r Request) TaskText() string {
	if r.Structured == nil {
		return r.Prompt
	}
	s := r.Structured
	text := fmt.Sprintf("%s %s: %s", s.Action, s.File, s.What)
	if s.How != "" {
		text += " — " + s.How
	}
	if s.Function != "" {
		text += fmt.Sprintf(" (function %s)", s.Function)
	}
	return text
}

// TargetFiles lists the files the request names explicitly.
func (r Request) TargetFiles() []string {
	if r.Structured != nil && r.Structured.File != "" {
		return []string{r.Structured.File}
	}
	return nil
}

// CodeQuality is the coarse quality triple from dependency analysis.
type CodeQuality struct {
	Complexity      float64 `json:"complexity"`
	Maintainability float64 `json:"maintainability"`
	Coupling        float64 `json:"coupling"`
}

// DependencyAnalysis carries ripple risks and the quality triple.
type DependencyAnalysis struct {
	RippleRisk  []graph.Ripple `json:"ripple_risk"`
	CodeQuality CodeQuality    `json:"code_quality"`
	Error       string         `json:"error,omitempty"`
}

// SecurityAnalysis is the optional third analysis pass.
type SecurityAnalysis struct {
	Vulnerabilities []string `json:"vulnerabilities"`
	Recommendations []string `json:"recommendations"`
	Error           string   `json:"error,omitempty"`
}

// RiskAssessment summarises overall request risk on a 0-10 scale.
type RiskAssessment struct {
	OverallRisk float64 `json:"overall_risk"`
}

// AnalysisResult is the analyzer's structured output. Degraded sub-results
// carry an error field but the analysis still proceeds.
type AnalysisResult struct {
	InitialAnalysis    map[string]any     `json:"initial_analysis"`
	DependencyAnalysis DependencyAnalysis `json:"dependency_analysis"`
	SecurityAnalysis   *SecurityAnalysis  `json:"security_analysis,omitempty"`
	RiskAssessment     RiskAssessment     `json:"risk_assessment"`
	Error              string             `json:"error,omitempty"`
}

// Payload is one planned file change. Entries carrying Err are skipped by
// the diffing stage; the error field survives serialization for wire
// compatibility.
type Payload struct {
	FilePath string `json:"file_path"`
	Original string `json:"original"`
	Modified string `json:"modified"`
	Err      string `json:"error,omitempty"`
}

// Plan is the full modification plan: one payload per file changed.
type Plan struct {
	Payloads []Payload `json:"payloads"`
}

// FilePatch is one file's unified diff.
type FilePatch struct {
	FilePath    string `json:"file_path"`
	UnifiedDiff string `json:"unified_diff"`
	Insertions  int    `json:"insertions"`
	Deletions   int    `json:"deletions"`
	Binary      bool   `json:"binary,omitempty"`
}

// Patch is the concatenation of per-file diffs plus an aggregate summary.
type Patch struct {
	Files        []FilePatch `json:"files"`
	Text         string      `json:"text"`
	FilesChanged int         `json:"files_changed"`
	Insertions   int         `json:"insertions"`
	Deletions    int         `json:"deletions"`
}

// Empty reports whether the patch carries no diffs.
func (p Patch) Empty() bool {
	return len(p.Files) == 0
}

// CheckSummary aggregates validation checks of one type.
type CheckSummary struct {
	Total    int      `json:"total"`
	Passed   int      `json:"passed"`
	Failed   int      `json:"failed"`
	Failures []string `json:"failures"`
}

// ValidationReport is the validator's output. OK holds iff no check of any
// type failed.
type ValidationReport struct {
	OK           bool                    `json:"ok"`
	Messages     []string                `json:"messages"`
	ChecksByType map[string]CheckSummary `json:"checks_by_type"`
}

// DocumentationUpdate is a rendered changelog.
type DocumentationUpdate string

// PathEscapeError marks a path that resolves outside the project root.
// Fatal to the request; nothing is applied.
type PathEscapeError struct {
	Path string
}

func (e *PathEscapeError) Error() string {
	return fmt.Sprintf("path escapes project root: %s", e.Path)
}
