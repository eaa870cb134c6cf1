package modify

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
	python "github.com/tree-sitter/tree-sitter-python/bindings/go"
)

// Deterministic python post-processing applied on top of model output for
// specific file shapes: test files get their __main__ blocks deduplicated,
// __init__.py files get their exports normalized.

var mainBlockRe = regexp.MustCompile(`(?m)^if __name__ == ["']__main__["']:\n(?:[ \t]+.*\n?)*`)

// postProcessPython applies the shape-specific cleanups for a python target.
func postProcessPython(target, modified string) string {
	base := filepath.Base(target)
	switch {
	case strings.HasPrefix(base, "test_") || strings.HasSuffix(base, "_test.py"):
		return dedupeMainBlocks(modified)
	case base == "__init__.py":
		return optimizeInitFile(modified)
	default:
		return modified
	}
}

// dedupeMainBlocks collapses repeated `if __name__ == "__main__":` blocks —
// a common artifact of merging generated tests — into a single block at the
// file end.
func dedupeMainBlocks(source string) string {
	blocks := mainBlockRe.FindAllString(source, -1)
	if len(blocks) <= 1 {
		return source
	}

	stripped := mainBlockRe.ReplaceAllString(source, "")
	stripped = strings.TrimRight(stripped, "\n")

	// Keep the last block: later merges supersede earlier ones.
	final := strings.TrimRight(blocks[len(blocks)-1], "\n")
	return stripped + "\n\n\n" + final + "\n"
}

var initImportRe = regexp.MustCompile(`(?m)^from\s+(\.[\w.]*)\s+import\s+(.+)$`)

// optimizeInitFile sorts relative imports and regenerates __all__ from the
// imported names. Files that do not parse are returned unchanged.
func optimizeInitFile(source string) string {
	if !pythonParses(source) {
		return source
	}

	matches := initImportRe.FindAllStringSubmatch(source, -1)
	if len(matches) == 0 {
		return source
	}

	var imports []string
	var exported []string
	seen := map[string]bool{}
	for _, m := range matches {
		line := fmt.Sprintf("from %s import %s", m[1], strings.TrimSpace(m[2]))
		if !seen[line] {
			seen[line] = true
			imports = append(imports, line)
		}
		for _, name := range strings.Split(m[2], ",") {
			name = strings.TrimSpace(name)
			// Honor aliases: `import x as y` exports y.
			if idx := strings.Index(name, " as "); idx >= 0 {
				name = strings.TrimSpace(name[idx+4:])
			}
			if name != "" && !strings.HasPrefix(name, "_") {
				exported = append(exported, name)
			}
		}
	}
	sort.Strings(imports)
	sort.Strings(exported)

	rest := initImportRe.ReplaceAllString(source, "")
	// Drop a stale __all__; it is regenerated below.
	rest = regexp.MustCompile(`(?ms)^__all__\s*=\s*\[[^\]]*\]\n?`).ReplaceAllString(rest, "")
	rest = strings.TrimSpace(rest)

	var sb strings.Builder
	sb.WriteString(strings.Join(imports, "\n"))
	sb.WriteString("\n\n__all__ = [\n")
	for _, name := range exported {
		fmt.Fprintf(&sb, "    %q,\n", name)
	}
	sb.WriteString("]\n")
	if rest != "" {
		sb.WriteString("\n" + rest + "\n")
	}
	return sb.String()
}

// pythonParses reports whether the source parses cleanly.
func pythonParses(source string) bool {
	parser := sitter.NewParser()
	defer parser.Close()
	if err := parser.SetLanguage(sitter.NewLanguage(python.Language())); err != nil {
		return false
	}
	tree := parser.Parse([]byte(source), nil)
	if tree == nil {
		return false
	}
	defer tree.Close()
	return !tree.RootNode().HasError()
}

// transformJSXScaffold emits a minimal component when creating a new JSX
// file; existing files pass through to the model path.
func transformJSXScaffold(original string, req Request) (string, error) {
	if original != "" {
		return "", errDeferToModel
	}
	name := "Component"
	if req.Structured != nil && req.Structured.File != "" {
		base := strings.TrimSuffix(filepath.Base(req.Structured.File), filepath.Ext(req.Structured.File))
		if base != "" {
			name = strings.ToUpper(base[:1]) + base[1:]
		}
	}
	task := ""
	if req.Structured != nil {
		task = req.Structured.What
	}
	return fmt.Sprintf(`import React from 'react'

// %s
export const %s = () => {
  return (
    <div className=%q>
    </div>
  )
}

export default %s
`, task, name, strings.ToLower(name), name), nil
}
