package sre

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/afero"
	sitter "github.com/tree-sitter/go-tree-sitter"
	python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	"go.uber.org/zap"

	"github.com/mvp-joe/code-factory/internal/llm"
)

// TestGenerator produces one consolidated test file per source file: symbol
// extraction per language, one model-written test per symbol, fences
// stripped, placed at the language's conventional path.
type TestGenerator struct {
	fs     afero.Fs
	root   string
	client llm.Client
	logger *zap.Logger
}

// NewTestGenerator creates the generator.
func NewTestGenerator(fs afero.Fs, root string, client llm.Client, logger *zap.Logger) *TestGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TestGenerator{fs: fs, root: root, client: client, logger: logger}
}

// Generate writes a test file for the given project-relative source file and
// returns the test file's relative path.
func (g *TestGenerator) Generate(ctx context.Context, sourceRel string) (string, error) {
	data, err := afero.ReadFile(g.fs, filepath.Join(g.root, sourceRel))
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", sourceRel, err)
	}
	source := string(data)

	lang := languageOf(sourceRel)
	symbols := extractSymbols(lang, source)
	if len(symbols) == 0 {
		return "", fmt.Errorf("no testable symbols found in %s", sourceRel)
	}

	var parts []string
	for _, symbol := range symbols {
		prompt := fmt.Sprintf(`Write one %s unit test for the function or method %q from the file below.
Output ONLY the test code, no explanations and no markdown fences.

Source file %s:
%s`, lang, symbol, sourceRel, source)

		raw, askErr := g.client.Ask(ctx, prompt)
		if askErr != nil {
			g.logger.Warn("test generation failed for symbol",
				zap.String("symbol", symbol), zap.Error(askErr))
			continue
		}
		parts = append(parts, stripTestFences(raw))
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("no tests could be generated for %s", sourceRel)
	}

	content := consolidate(lang, parts)
	testRel := testPathFor(lang, sourceRel)

	abs := filepath.Join(g.root, testRel)
	if err := g.fs.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	if err := afero.WriteFile(g.fs, abs, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", testRel, err)
	}
	return testRel, nil
}

func languageOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".py":
		return "python"
	case ".ts", ".tsx":
		return "typescript"
	case ".js", ".jsx":
		return "javascript"
	case ".go":
		return "go"
	case ".java":
		return "java"
	default:
		return ""
	}
}

var (
	jsFuncSymbolRe   = regexp.MustCompile(`(?m)^(?:export\s+)?(?:async\s+)?function\s+(\w+)|^(?:export\s+)?const\s+(\w+)\s*=\s*(?:async\s*)?\(`)
	goFuncSymbolRe   = regexp.MustCompile(`(?m)^func\s*(?:\([^)]*\)\s*)?(\w+)\s*\(`)
	javaFuncSymbolRe = regexp.MustCompile(`(?m)^\s+(?:public|protected)\s+(?:static\s+)?[\w<>\[\]]+\s+(\w+)\s*\(`)
)

// extractSymbols lists function/method names: AST for python, regex for the
// rest.
func extractSymbols(lang, source string) []string {
	switch lang {
	case "python":
		return pythonSymbols(source)
	case "javascript", "typescript":
		return regexSymbols(jsFuncSymbolRe, source)
	case "go":
		return regexSymbols(goFuncSymbolRe, source)
	case "java":
		return regexSymbols(javaFuncSymbolRe, source)
	default:
		return nil
	}
}

func pythonSymbols(source string) []string {
	parser := sitter.NewParser()
	defer parser.Close()
	if err := parser.SetLanguage(sitter.NewLanguage(python.Language())); err != nil {
		return nil
	}
	src := []byte(source)
	tree := parser.Parse(src, nil)
	if tree == nil {
		return nil
	}
	defer tree.Close()

	var symbols []string
	var walk func(node *sitter.Node)
	walk = func(node *sitter.Node) {
		for i := uint(0); i < node.ChildCount(); i++ {
			child := node.Child(i)
			switch child.Kind() {
			case "function_definition":
				if name := child.ChildByFieldName("name"); name != nil {
					symbol := string(src[name.StartByte():name.EndByte()])
					if !strings.HasPrefix(symbol, "_") {
						symbols = append(symbols, symbol)
					}
				}
			case "class_definition", "decorated_definition", "block":
				walk(child)
			}
		}
	}
	walk(tree.RootNode())
	return symbols
}

func regexSymbols(re *regexp.Regexp, source string) []string {
	var symbols []string
	seen := map[string]bool{}
	for _, m := range re.FindAllStringSubmatch(source, -1) {
		name := m[1]
		if name == "" && len(m) > 2 {
			name = m[2]
		}
		if name != "" && !seen[name] {
			seen[name] = true
			symbols = append(symbols, name)
		}
	}
	return symbols
}

// testPathFor places the test at the conventional path per language.
func testPathFor(lang, sourceRel string) string {
	dir := filepath.Dir(sourceRel)
	base := strings.TrimSuffix(filepath.Base(sourceRel), filepath.Ext(sourceRel))
	switch lang {
	case "python":
		return filepath.Join(dir, "test_"+base+".py")
	case "typescript":
		return filepath.Join(dir, base+".test.ts")
	case "javascript":
		return filepath.Join(dir, base+".test.js")
	case "go":
		return filepath.Join(dir, base+"_test.go")
	case "java":
		return filepath.Join(dir, base+"Test.java")
	default:
		return filepath.Join(dir, base+"_test")
	}
}

// consolidate joins the generated tests into a single file. Python
// consolidation collapses unittest.main() invocations into exactly one at
// the file end.
func consolidate(lang string, parts []string) string {
	if lang != "python" {
		return strings.Join(parts, "\n\n") + "\n"
	}

	mainRe := regexp.MustCompile(`(?m)^if __name__ == .__main__.:\n(?:\s+unittest\.main\(\).*\n?)?`)
	var cleaned []string
	for _, part := range parts {
		cleaned = append(cleaned, strings.TrimSpace(mainRe.ReplaceAllString(part, "")))
	}
	out := strings.Join(cleaned, "\n\n")
	out += "\n\n\nif __name__ == \"__main__\":\n    unittest.main()\n"
	return out
}

// stripTestFences removes wrapping markdown fences from model output.
func stripTestFences(raw string) string {
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
