package modify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/mvp-joe/code-factory/internal/llm"
	"github.com/mvp-joe/code-factory/internal/rag"
)

// Transform deterministically rewrites one file for a request. Strategies
// are keyed by extension in the modifier's dispatch table.
type Transform func(original string, req Request) (string, error)

// Modifier produces the modification plan: exactly one payload per target
// file, each carrying the full original and modified contents. It never
// emits diffs; that is the differ's job.
type Modifier struct {
	client     llm.Client
	transforms map[string]Transform
	logger     *zap.Logger
}

// NewModifier creates a modifier with the standard dispatch table.
func NewModifier(client llm.Client, logger *zap.Logger) *Modifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Modifier{client: client, logger: logger}
	m.transforms = map[string]Transform{
		"requirements.txt": transformRequirements,
		"package.json":     transformPackageJSON,
		".css":             transformCSS,
		".jsx":             transformJSXScaffold,
	}
	return m
}

// errDeferToModel lets a transform decline and hand the file to the model
// path instead.
var errDeferToModel = errors.New("defer to model")

// BuildPlan produces payloads for the request. Validation feedback from a
// failed attempt is threaded back into the prompts on retry.
func (m *Modifier) BuildPlan(ctx context.Context, req Request, feedback string) (*Plan, error) {
	targets := req.TargetFiles()
	if len(targets) == 0 {
		return m.planFromFreeText(ctx, req, feedback)
	}

	plan := &Plan{}
	for _, target := range targets {
		payload, err := m.buildPayload(ctx, req, target, feedback)
		if err != nil {
			var escape *PathEscapeError
			if errors.As(err, &escape) {
				return nil, err // fatal: never apply anything for this request
			}
			if llm.IsBudgetExceeded(err) {
				return plan, err
			}
			plan.Payloads = append(plan.Payloads, Payload{FilePath: target, Err: err.Error()})
			continue
		}
		if payload != nil {
			plan.Payloads = append(plan.Payloads, *payload)
		}
	}
	return plan, nil
}

// buildPayload produces one file's payload. Returns nil when the change is
// suppressed (empty modified content against a non-empty original).
func (m *Modifier) buildPayload(ctx context.Context, req Request, target, feedback string) (*Payload, error) {
	abs, err := ResolveWithinRoot(req.ProjectRoot, target)
	if err != nil {
		return nil, err
	}

	original := ""
	if data, readErr := os.ReadFile(abs); readErr == nil {
		original = string(data)
	} else if !os.IsNotExist(readErr) {
		return nil, fmt.Errorf("failed to read %s: %w", target, readErr)
	}

	var modified string
	switch {
	case req.Structured != nil && req.Structured.Action == ActionDelete && req.Structured.Function != "":
		modified, err = deleteFunction(original, req.Structured.Function, filepath.Ext(target))
	default:
		if transform, ok := m.transformFor(target); ok {
			modified, err = transform(original, req)
			if errors.Is(err, errDeferToModel) {
				modified, err = m.askForModifiedSource(ctx, req, target, original, feedback)
			}
		} else {
			modified, err = m.askForModifiedSource(ctx, req, target, original, feedback)
		}
	}
	if err != nil {
		return nil, err
	}

	if strings.ToLower(filepath.Ext(target)) == ".py" {
		modified = postProcessPython(target, modified)
	}

	// Empty output against a non-empty original means "no change".
	if strings.TrimSpace(modified) == "" && original != "" {
		m.logger.Debug("suppressing empty modification", zap.String("path", target))
		return nil, nil
	}

	return &Payload{FilePath: target, Original: original, Modified: modified}, nil
}

// transformFor finds a deterministic transform for the target, by full base
// name first, then by extension.
func (m *Modifier) transformFor(target string) (Transform, bool) {
	if t, ok := m.transforms[filepath.Base(target)]; ok {
		return t, true
	}
	t, ok := m.transforms[strings.ToLower(filepath.Ext(target))]
	return t, ok
}

// askForModifiedSource requests the complete modified file from the model.
func (m *Modifier) askForModifiedSource(ctx context.Context, req Request, target, original, feedback string) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are modifying the file %q.\n", target)
	fmt.Fprintf(&sb, "Task: %s\n", req.TaskText())
	if feedback != "" {
		fmt.Fprintf(&sb, "\nValidation feedback from the previous attempt:\n%s\n", feedback)
	}
	if original == "" {
		sb.WriteString("\nThe file does not exist yet; produce its full contents.\n")
	} else {
		fmt.Fprintf(&sb, "\nCurrent contents:\n```\n%s\n```\n", original)
	}
	sb.WriteString("\nOutput ONLY the complete, final source of the file. No explanations, no markdown fences, no diffs.")

	raw, err := m.client.Ask(ctx, rag.AppendContext(sb.String(), req.RAGContext))
	if err != nil {
		if isInvalidResponse(err) {
			// Degrade: unknown-type annotator keeps the pipeline moving.
			return appendCommentTrailer(original, req, filepath.Ext(target)), nil
		}
		return "", err
	}
	// stripFences trims surrounding whitespace; keep the source newline-terminated.
	source := stripFences(raw)
	if source != "" && !strings.HasSuffix(source, "\n") {
		source += "\n"
	}
	return source, nil
}

// planFromFreeText asks the model to propose payloads for an unstructured
// request.
func (m *Modifier) planFromFreeText(ctx context.Context, req Request, feedback string) (*Plan, error) {
	prompt := fmt.Sprintf(`Propose file modifications for this request against project %q.
Respond with a JSON array of objects, each {"file_path": string, "modified": string} where "modified" is the complete new file content.

Request: %s`, req.ProjectRoot, req.Prompt)
	if feedback != "" {
		prompt += "\n\nValidation feedback from the previous attempt:\n" + feedback
	}

	raw, err := m.client.Ask(ctx, rag.AppendContext(prompt, req.RAGContext))
	if err != nil {
		if isInvalidResponse(err) {
			return &Plan{Payloads: []Payload{{Err: err.Error()}}}, nil
		}
		return nil, err
	}

	var proposed []struct {
		FilePath string `json:"file_path"`
		Modified string `json:"modified"`
	}
	text := stripFences(raw)
	start := strings.IndexByte(text, '[')
	end := strings.LastIndexByte(text, ']')
	if start < 0 || end <= start {
		return &Plan{Payloads: []Payload{{Err: "model response carried no payload array"}}}, nil
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &proposed); err != nil {
		return &Plan{Payloads: []Payload{{Err: fmt.Sprintf("invalid payload array: %v", err)}}}, nil
	}

	plan := &Plan{}
	for _, p := range proposed {
		abs, resolveErr := ResolveWithinRoot(req.ProjectRoot, p.FilePath)
		if resolveErr != nil {
			return nil, resolveErr
		}
		original := ""
		if data, readErr := os.ReadFile(abs); readErr == nil {
			original = string(data)
		}
		if strings.TrimSpace(p.Modified) == "" && original != "" {
			continue
		}
		plan.Payloads = append(plan.Payloads, Payload{
			FilePath: p.FilePath,
			Original: original,
			Modified: p.Modified,
		})
	}
	return plan, nil
}

// ResolveWithinRoot resolves a project-relative path and rejects any result
// outside the project root.
func ResolveWithinRoot(root, rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", &PathEscapeError{Path: rel}
	}
	abs := filepath.Clean(filepath.Join(root, rel))
	rootClean := filepath.Clean(root)
	if abs != rootClean && !strings.HasPrefix(abs, rootClean+string(filepath.Separator)) {
		return "", &PathEscapeError{Path: rel}
	}
	return abs, nil
}

func isInvalidResponse(err error) bool {
	return err != nil && errors.Is(err, llm.ErrInvalidResponse)
}
