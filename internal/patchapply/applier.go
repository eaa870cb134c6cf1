// Package patchapply writes a unified-diff patch to the working tree using
// the system patch utility.
package patchapply

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"go.uber.org/zap"

	"github.com/mvp-joe/code-factory/internal/modify"
)

// applyTimeout bounds the patch subprocess.
const applyTimeout = 60 * time.Second

// ApplyError is the typed failure for a patch that could not be applied.
// Fatal to the request; the caller must not retry blindly.
type ApplyError struct {
	Output string
	Err    error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("patch apply failed: %v: %s", e.Err, e.Output)
}

func (e *ApplyError) Unwrap() error {
	return e.Err
}

// Applier applies patches under a fixed project root.
type Applier struct {
	rootDir string
	logger  *zap.Logger
}

// New creates an applier for the given project root.
func New(rootDir string, logger *zap.Logger) *Applier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Applier{rootDir: rootDir, logger: logger}
}

// Apply writes the patch to the working tree. Idempotent for empty patches.
// Temporary files are removed on every path; a failed apply returns an
// ApplyError. No file outside the project root is ever touched.
func (a *Applier) Apply(ctx context.Context, patch *modify.Patch) error {
	if patch == nil || patch.Empty() {
		return nil
	}

	// Path safety: every target must resolve inside the root.
	for _, fp := range patch.Files {
		if _, err := modify.ResolveWithinRoot(a.rootDir, fp.FilePath); err != nil {
			return err
		}
		if fp.Binary {
			return &ApplyError{Err: fmt.Errorf("binary patch for %s cannot be applied", fp.FilePath)}
		}
	}

	tmp, err := os.CreateTemp("", "factory-patch-*.diff")
	if err != nil {
		return fmt.Errorf("failed to create patch temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.WriteString(patch.Text); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write patch temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close patch temp file: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, applyTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "patch",
		"-p1",
		"--forward",
		"--batch",
		"--no-backup-if-mismatch",
		"-i", tmpPath,
	)
	cmd.Dir = a.rootDir

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Run(); err != nil {
		a.logger.Error("patch utility failed",
			zap.Error(err),
			zap.String("output", output.String()))
		return &ApplyError{Output: output.String(), Err: err}
	}

	a.logger.Info("patch applied",
		zap.Int("files", patch.FilesChanged),
		zap.Int("insertions", patch.Insertions),
		zap.Int("deletions", patch.Deletions))
	return nil
}
