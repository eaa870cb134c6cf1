package modify

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
	python "github.com/tree-sitter/tree-sitter-python/bindings/go"
)

// requirementSpecRe matches a pip requirement line like "fastapi==0.109.1"
// or a bare package name.
var requirementSpecRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._\[\]-]*(?:[=<>!~]=?[A-Za-z0-9.*]+)?$`)

// transformRequirements merges the declared requirements with packages named
// by the request, sorted alphabetically. Pinned lines win over bare names.
func transformRequirements(original string, req Request) (string, error) {
	byName := make(map[string]string)

	addSpec := func(spec string) {
		spec = strings.TrimSpace(spec)
		if spec == "" || strings.HasPrefix(spec, "#") || !requirementSpecRe.MatchString(spec) {
			return
		}
		name := strings.ToLower(regexp.MustCompile(`[=<>!~\[]`).Split(spec, 2)[0])
		if existing, ok := byName[name]; ok && strings.ContainsAny(existing, "=<>!~") {
			return // keep the pinned line
		}
		byName[name] = spec
	}

	for _, line := range strings.Split(original, "\n") {
		addSpec(line)
	}
	if req.Structured != nil {
		for _, token := range regexp.MustCompile(`[\s,]+`).Split(req.Structured.How, -1) {
			addSpec(token)
		}
	}

	specs := make([]string, 0, len(byName))
	for _, spec := range byName {
		specs = append(specs, spec)
	}
	sort.Slice(specs, func(i, j int) bool {
		return strings.ToLower(specs[i]) < strings.ToLower(specs[j])
	})
	if len(specs) == 0 {
		return original, nil
	}
	return strings.Join(specs, "\n") + "\n", nil
}

// transformPackageJSON deep-merges a JSON object found in the request into
// the original manifest. Without a parseable object the original passes
// through unchanged.
func transformPackageJSON(original string, req Request) (string, error) {
	var base map[string]any
	if strings.TrimSpace(original) == "" {
		base = map[string]any{}
	} else if err := json.Unmarshal([]byte(original), &base); err != nil {
		return "", fmt.Errorf("original package.json is not valid JSON: %w", err)
	}

	if req.Structured != nil {
		if patch, err := parseJSONObject(req.Structured.How); err == nil {
			mergeJSON(base, patch)
		}
	}

	out, err := json.MarshalIndent(base, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to render package.json: %w", err)
	}
	return string(out) + "\n", nil
}

// mergeJSON recursively merges src into dst; scalar conflicts take src.
func mergeJSON(dst, src map[string]any) {
	for k, v := range src {
		if srcMap, ok := v.(map[string]any); ok {
			if dstMap, ok := dst[k].(map[string]any); ok {
				mergeJSON(dstMap, srcMap)
				continue
			}
		}
		dst[k] = v
	}
}

// transformCSS appends a scaffolded rule block describing the request.
func transformCSS(original string, req Request) (string, error) {
	task := "requested change"
	if req.Structured != nil && req.Structured.What != "" {
		task = req.Structured.What
	}
	block := fmt.Sprintf("\n/* %s */\n.todo-%s {\n}\n", task, slug(task))
	return strings.TrimRight(original, "\n") + block, nil
}

// appendCommentTrailer is the unknown-type fallback: annotate the file with
// the pending task in the language-appropriate comment syntax.
func appendCommentTrailer(original string, req Request, ext string) string {
	task := req.TaskText()
	var trailer string
	switch strings.ToLower(ext) {
	case ".py", ".sh", ".bash", ".rb", ".yml", ".yaml", ".toml":
		trailer = "# " + task
	case ".html", ".htm", ".md", ".xml":
		trailer = "<!-- " + task + " -->"
	case ".css":
		trailer = "/* " + task + " */"
	default:
		trailer = "// " + task
	}
	if original == "" {
		return trailer + "\n"
	}
	return strings.TrimRight(original, "\n") + "\n\n" + trailer + "\n"
}

// deleteFunction removes one named function from the source. Python uses the
// tree-sitter AST to locate the exact span; other languages fall back to the
// brace-balance extent of a matching declaration line.
func deleteFunction(original, name, ext string) (string, error) {
	if strings.ToLower(ext) == ".py" {
		return deletePythonFunction(original, name)
	}
	return deleteBraceFunction(original, name)
}

func deletePythonFunction(original, name string) (string, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	if err := parser.SetLanguage(sitter.NewLanguage(python.Language())); err != nil {
		return "", fmt.Errorf("failed to load python grammar: %w", err)
	}

	source := []byte(original)
	tree := parser.Parse(source, nil)
	if tree == nil {
		return "", fmt.Errorf("failed to parse python source")
	}
	defer tree.Close()

	root := tree.RootNode()
	for i := uint(0); i < root.ChildCount(); i++ {
		node := root.Child(i)
		target := node
		if node.Kind() == "decorated_definition" {
			if inner := node.ChildByFieldName("definition"); inner != nil {
				target = inner
			}
		}
		if target.Kind() != "function_definition" {
			continue
		}
		nameNode := target.ChildByFieldName("name")
		if nameNode == nil || string(source[nameNode.StartByte():nameNode.EndByte()]) != name {
			continue
		}

		start := node.StartByte()
		end := node.EndByte()
		// Swallow the trailing newline so no blank hole is left behind.
		for end < uint(len(source)) && source[end] == '\n' {
			end++
		}
		return string(source[:start]) + string(source[end:]), nil
	}
	return "", fmt.Errorf("function %q not found", name)
}

var braceFuncTemplate = `(?m)^.*\bfunc(?:tion)?\s+%s\s*\(`

func deleteBraceFunction(original, name string) (string, error) {
	re, err := regexp.Compile(fmt.Sprintf(braceFuncTemplate, regexp.QuoteMeta(name)))
	if err != nil {
		return "", err
	}
	loc := re.FindStringIndex(original)
	if loc == nil {
		return "", fmt.Errorf("function %q not found", name)
	}

	depth := 0
	end := loc[1]
	for end < len(original) {
		switch original[end] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				end++
				for end < len(original) && original[end] == '\n' {
					end++
				}
				return original[:loc[0]] + original[end:], nil
			}
		}
		end++
	}
	return "", fmt.Errorf("unbalanced braces around function %q", name)
}

func slug(s string) string {
	s = strings.ToLower(s)
	s = regexp.MustCompile(`[^a-z0-9]+`).ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
