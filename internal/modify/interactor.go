package modify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mvp-joe/code-factory/internal/graph"
	"github.com/mvp-joe/code-factory/internal/llm"
)

// DefaultRetries is how many times planning re-runs after a failed
// validation. Enforced here, never by the adapters.
const DefaultRetries = 2

// Result is the interactor's return value. Every slot is always present;
// unavailable slots carry empty or error-annotated values, and Degraded
// marks a run that stopped early.
type Result struct {
	Analysis   *AnalysisResult
	Plan       *Plan
	Patch      *Patch
	Validation *ValidationReport
	Docs       DocumentationUpdate
	Degraded   bool
	Reason     string
}

// GraphProvider builds the request's semantic graph. Optional.
type GraphProvider func(ctx context.Context, req Request) (*graph.SemanticGraph, error)

// Interactor sequences analysis, planning, validation, diffing, and
// documentation for one request. Strictly sequential across stages; the
// budget is checked before each model-driven stage.
type Interactor struct {
	analyzer  *Analyzer
	modifier  *Modifier
	validator *Validator
	differ    *Differ
	docs      *DocWriter
	budget    llm.Charger
	graphFor  GraphProvider
	retries   int
	logger    *zap.Logger
}

// InteractorOptions configures NewInteractor.
type InteractorOptions struct {
	Analyzer  *Analyzer
	Modifier  *Modifier
	Validator *Validator
	Budget    llm.Charger
	GraphFor  GraphProvider
	// Retries overrides DefaultRetries when > 0.
	Retries int
	Logger  *zap.Logger
}

// NewInteractor wires the pipeline.
func NewInteractor(opts InteractorOptions) (*Interactor, error) {
	if opts.Analyzer == nil || opts.Modifier == nil || opts.Validator == nil {
		return nil, fmt.Errorf("analyzer, modifier, and validator are required")
	}
	if opts.Budget == nil {
		return nil, fmt.Errorf("budget charger is required")
	}
	if opts.Retries <= 0 {
		opts.Retries = DefaultRetries
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Interactor{
		analyzer:  opts.Analyzer,
		modifier:  opts.Modifier,
		validator: opts.Validator,
		differ:    NewDiffer(),
		docs:      NewDocWriter(),
		budget:    opts.Budget,
		graphFor:  opts.GraphFor,
		retries:   opts.Retries,
		logger:    opts.Logger,
	}, nil
}

// Execute runs the pipeline. Exactly one analysis, one plan, and one patch
// are produced per request, plus at most one documentation update. A
// PathEscapeError is fatal and surfaces to the caller; budget exhaustion
// returns a degraded result carrying whatever was produced so far.
func (it *Interactor) Execute(ctx context.Context, req Request) (*Result, error) {
	result := &Result{
		Analysis:   &AnalysisResult{},
		Plan:       &Plan{},
		Patch:      &Patch{},
		Validation: &ValidationReport{ChecksByType: map[string]CheckSummary{}},
	}

	// Stage: Analyzing.
	if err := it.budget.Check(); err != nil {
		return it.degrade(result, err), nil
	}
	var sg *graph.SemanticGraph
	if it.graphFor != nil {
		var err error
		sg, err = it.graphFor(ctx, req)
		if err != nil {
			it.logger.Warn("graph build failed, analysis proceeds without it", zap.Error(err))
		}
	}
	analysis, err := it.analyzer.Analyze(ctx, req, sg)
	if analysis != nil {
		result.Analysis = analysis
	}
	if err != nil {
		if llm.IsBudgetExceeded(err) {
			return it.degrade(result, err), nil
		}
		return nil, fmt.Errorf("analysis failed: %w", err)
	}

	// Stages: Planning -> Validating, with bounded retries. Validation
	// feedback is appended to the planning prompt on each retry.
	feedback := ""
	for attempt := 0; attempt <= it.retries; attempt++ {
		if err := it.budget.Check(); err != nil {
			return it.degrade(result, err), nil
		}

		plan, err := it.modifier.BuildPlan(ctx, req, feedback)
		if plan != nil {
			result.Plan = plan
		}
		if err != nil {
			var escape *PathEscapeError
			if errors.As(err, &escape) {
				return result, err
			}
			if llm.IsBudgetExceeded(err) {
				return it.degrade(result, err), nil
			}
			return nil, fmt.Errorf("planning failed: %w", err)
		}

		if err := it.budget.Check(); err != nil {
			return it.degrade(result, err), nil
		}
		validation, err := it.validator.Validate(ctx, result.Plan)
		if validation != nil {
			result.Validation = validation
		}
		if err != nil {
			if llm.IsBudgetExceeded(err) {
				return it.degrade(result, err), nil
			}
			return nil, fmt.Errorf("validation failed: %w", err)
		}

		if validation.OK {
			break
		}
		if attempt < it.retries {
			feedback = "Validation feedback:\n" + strings.Join(validation.Messages, "\n")
			it.logger.Info("validation failed, retrying planning",
				zap.Int("attempt", attempt+1),
				zap.Int("messages", len(validation.Messages)))
		}
	}

	// Failed validation after all retries: the plan and the last report are
	// returned, the patch stays empty, nothing is documented.
	if !result.Validation.OK {
		return result, nil
	}

	// Stage: Diffing (pure).
	patch, err := it.differ.Diff(result.Plan)
	if err != nil {
		return nil, fmt.Errorf("diffing failed: %w", err)
	}
	result.Patch = patch

	// Stage: Documenting (pure).
	result.Docs = it.docs.Render(patch)
	return result, nil
}

// degrade marks the result as stopped early.
func (it *Interactor) degrade(result *Result, cause error) *Result {
	result.Degraded = true
	result.Reason = cause.Error()
	it.logger.Warn("request degraded", zap.String("reason", result.Reason))
	return result
}
