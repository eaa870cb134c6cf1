package modify

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// changeType classifies one diff hunk.
type changeType string

const (
	changeFeature  changeType = "feature"
	changeFix      changeType = "fix"
	changeRefactor changeType = "refactor"
	changeDocs     changeType = "docs"
	changeStyle    changeType = "style"
	changePerf     changeType = "perf"
	changeTest     changeType = "test"
	changeBuild    changeType = "build"
	changeOther    changeType = "other"
)

// byTypeSectionThreshold gates the "by type" section of the changelog.
const byTypeSectionThreshold = 5

// DocWriter renders a deterministic markdown changelog from a patch. A pure
// function of its input; it never calls the model.
type DocWriter struct{}

// NewDocWriter creates a documentation writer.
func NewDocWriter() *DocWriter {
	return &DocWriter{}
}

// Render produces the changelog for a patch.
func (w *DocWriter) Render(patch *Patch) DocumentationUpdate {
	if patch == nil || patch.Empty() {
		return ""
	}

	type hunkInfo struct {
		file string
		kind changeType
	}
	var hunks []hunkInfo
	for _, fp := range patch.Files {
		if fp.Binary {
			hunks = append(hunks, hunkInfo{file: fp.FilePath, kind: changeOther})
			continue
		}
		for _, hunk := range splitHunks(fp.UnifiedDiff) {
			hunks = append(hunks, hunkInfo{file: fp.FilePath, kind: classifyHunk(fp.FilePath, hunk)})
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Changes\n\n%d file(s) changed, +%d insertions, -%d deletions.\n",
		patch.FilesChanged, patch.Insertions, patch.Deletions)

	// "By type" section when enough typed hunks exist.
	counts := make(map[changeType]int)
	typed := 0
	for _, h := range hunks {
		counts[h.kind]++
		if h.kind != changeOther {
			typed++
		}
	}
	if typed >= byTypeSectionThreshold {
		sb.WriteString("\n### By type\n\n")
		kinds := make([]string, 0, len(counts))
		for k := range counts {
			kinds = append(kinds, string(k))
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			fmt.Fprintf(&sb, "- %s: %d change(s)\n", k, counts[changeType(k)])
		}
	}

	// Per-file section.
	sb.WriteString("\n### Files\n\n")
	for _, fp := range patch.Files {
		if fp.Binary {
			fmt.Fprintf(&sb, "- `%s`: binary file modified\n", fp.FilePath)
			continue
		}
		fmt.Fprintf(&sb, "- `%s`: +%d/-%d\n", fp.FilePath, fp.Insertions, fp.Deletions)
	}

	return DocumentationUpdate(sb.String())
}

// splitHunks breaks a unified diff body at @@ markers.
func splitHunks(body string) []string {
	var hunks []string
	var current []string
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "@@") {
			if len(current) > 0 {
				hunks = append(hunks, strings.Join(current, "\n"))
			}
			current = []string{line}
			continue
		}
		if len(current) > 0 {
			current = append(current, line)
		}
	}
	if len(current) > 0 {
		hunks = append(hunks, strings.Join(current, "\n"))
	}
	return hunks
}

// classifyHunk labels one hunk by file-path and content heuristics.
func classifyHunk(path, hunk string) changeType {
	base := strings.ToLower(filepath.Base(path))
	lower := strings.ToLower(hunk)

	switch {
	case strings.Contains(base, "test"):
		return changeTest
	case base == "requirements.txt" || base == "package.json" || base == "dockerfile" ||
		strings.HasPrefix(base, "docker-compose") || base == "makefile" || base == "go.mod":
		return changeBuild
	case strings.HasSuffix(base, ".md") || strings.HasSuffix(base, ".rst"):
		return changeDocs
	}

	added := addedLines(hunk)
	switch {
	case strings.Contains(lower, "fix") || strings.Contains(lower, "bug"):
		return changeFix
	case strings.Contains(lower, "cache") || strings.Contains(lower, "optimi") || strings.Contains(lower, "perf"):
		return changePerf
	case containsNewDefinition(added):
		return changeFeature
	case onlyCommentChanges(hunk):
		return changeDocs
	case onlyWhitespaceChanges(hunk):
		return changeStyle
	case len(added) > 0 && deletionCount(hunk) > 0:
		return changeRefactor
	default:
		return changeOther
	}
}

func addedLines(hunk string) []string {
	var added []string
	for _, line := range strings.Split(hunk, "\n") {
		if strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "+++") {
			added = append(added, line[1:])
		}
	}
	return added
}

func deletionCount(hunk string) int {
	n := 0
	for _, line := range strings.Split(hunk, "\n") {
		if strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "---") {
			n++
		}
	}
	return n
}

var definitionPrefixes = []string{"def ", "class ", "func ", "function ", "const ", "export "}

func containsNewDefinition(added []string) bool {
	for _, line := range added {
		trimmed := strings.TrimSpace(line)
		for _, prefix := range definitionPrefixes {
			if strings.HasPrefix(trimmed, prefix) {
				return true
			}
		}
	}
	return false
}

func onlyCommentChanges(hunk string) bool {
	changed := false
	for _, line := range strings.Split(hunk, "\n") {
		if !strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "-") {
			continue
		}
		if strings.HasPrefix(line, "+++") || strings.HasPrefix(line, "---") {
			continue
		}
		changed = true
		body := strings.TrimSpace(line[1:])
		if body == "" {
			continue
		}
		if !strings.HasPrefix(body, "#") && !strings.HasPrefix(body, "//") &&
			!strings.HasPrefix(body, "/*") && !strings.HasPrefix(body, "*") &&
			!strings.HasPrefix(body, "\"\"\"") {
			return false
		}
	}
	return changed
}

func onlyWhitespaceChanges(hunk string) bool {
	var removed, added []string
	for _, line := range strings.Split(hunk, "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
		case strings.HasPrefix(line, "+"):
			added = append(added, collapseSpaces(line[1:]))
		case strings.HasPrefix(line, "-"):
			removed = append(removed, collapseSpaces(line[1:]))
		}
	}
	if len(added) == 0 && len(removed) == 0 {
		return false
	}
	return strings.Join(added, "\n") == strings.Join(removed, "\n")
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
