package modify

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/aymanbagabas/go-udiff"
)

// binaryExtensions never get a textual diff body.
var binaryExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".ico": true,
	".pdf": true, ".zip": true, ".tar": true, ".gz": true, ".whl": true,
	".so": true, ".dylib": true, ".dll": true, ".exe": true, ".bin": true,
	".woff": true, ".woff2": true, ".ttf": true, ".eot": true,
	".pyc": true, ".class": true, ".jar": true, ".db": true, ".sqlite": true,
}

// Differ renders the plan into a unified-diff patch. Pure and deterministic:
// identical payload lists produce byte-identical output, and it never calls
// the model.
type Differ struct{}

// NewDiffer creates a differ.
func NewDiffer() *Differ {
	return &Differ{}
}

// Diff produces the aggregate patch. Entries carrying an error are skipped;
// binary files get a single header line and no body. If no entry produced a
// diff, the returned patch is empty.
func (d *Differ) Diff(plan *Plan) (*Patch, error) {
	patch := &Patch{}
	var sb strings.Builder

	for _, p := range plan.Payloads {
		if p.Err != "" {
			continue
		}
		if p.Original == p.Modified {
			continue
		}

		if binaryExtensions[strings.ToLower(filepath.Ext(p.FilePath))] {
			header := fmt.Sprintf("# === Binary file %s has been modified ===\n", p.FilePath)
			sb.WriteString(header)
			patch.Files = append(patch.Files, FilePatch{FilePath: p.FilePath, Binary: true})
			patch.FilesChanged++
			continue
		}

		body, insertions, deletions, err := unifiedDiff(p)
		if err != nil {
			return nil, fmt.Errorf("failed to diff %s: %w", p.FilePath, err)
		}
		if body == "" {
			continue
		}

		fmt.Fprintf(&sb, "# === Diff for %s (+%d/-%d) ===\n", p.FilePath, insertions, deletions)
		sb.WriteString(body)
		if !strings.HasSuffix(body, "\n") {
			sb.WriteByte('\n')
		}

		patch.Files = append(patch.Files, FilePatch{
			FilePath:    p.FilePath,
			UnifiedDiff: body,
			Insertions:  insertions,
			Deletions:   deletions,
		})
		patch.FilesChanged++
		patch.Insertions += insertions
		patch.Deletions += deletions
	}

	if patch.FilesChanged == 0 {
		return &Patch{}, nil
	}

	fmt.Fprintf(&sb, "# === Summary: %d files changed, +%d insertions, -%d deletions ===\n",
		patch.FilesChanged, patch.Insertions, patch.Deletions)
	patch.Text = sb.String()
	return patch, nil
}

// unifiedDiff computes one file's unified diff with context size scaled to
// the file: 3 lines below 50, 2 below 200, 1 otherwise.
func unifiedDiff(p Payload) (string, int, int, error) {
	context := contextLines(p)

	// /dev/null labels let the patch utility create and delete files.
	from := "a/" + p.FilePath
	to := "b/" + p.FilePath
	if p.Original == "" {
		from = "/dev/null"
	}
	if p.Modified == "" {
		to = "/dev/null"
	}

	edits := udiff.Strings(p.Original, p.Modified)
	unified, err := udiff.ToUnifiedDiff(from, to, p.Original, edits, context)
	if err != nil {
		return "", 0, 0, err
	}
	body := unified.String()

	insertions, deletions := countChanges(body)
	return body, insertions, deletions, nil
}

// contextLines picks the context size from the larger of the two contents.
func contextLines(p Payload) int {
	lines := len(strings.Split(p.Original, "\n"))
	if n := len(strings.Split(p.Modified, "\n")); n > lines {
		lines = n
	}
	switch {
	case lines < 50:
		return 3
	case lines < 200:
		return 2
	default:
		return 1
	}
}

// countChanges counts insertion and deletion lines in a unified diff body.
func countChanges(body string) (insertions, deletions int) {
	for _, line := range strings.Split(body, "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
		case strings.HasPrefix(line, "+"):
			insertions++
		case strings.HasPrefix(line, "-"):
			deletions++
		}
	}
	return insertions, deletions
}
