package chunker

import (
	"fmt"
	"regexp"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
	python "github.com/tree-sitter/tree-sitter-python/bindings/go"
)

// PythonStrategy chunks Python files into top-level function and class
// definitions using the tree-sitter AST. If parsing fails or the tree
// contains errors, it falls back to line blocks split on top-level
// `def`/`class` markers.
type PythonStrategy struct {
	language *sitter.Language
}

// NewPythonStrategy creates a Python chunking strategy.
func NewPythonStrategy() *PythonStrategy {
	return &PythonStrategy{
		language: sitter.NewLanguage(python.Language()),
	}
}

// Chunk implements Strategy.
func (s *PythonStrategy) Chunk(path, content string) ([]Chunk, error) {
	chunks, ok := s.chunkAST(content)
	if !ok {
		chunks = s.chunkLineBlocks(content)
	}
	return chunks, nil
}

// chunkAST extracts top-level defs and classes from the parse tree.
// Returns ok=false when the source does not parse cleanly.
func (s *PythonStrategy) chunkAST(content string) ([]Chunk, bool) {
	parser := sitter.NewParser()
	defer parser.Close()

	if err := parser.SetLanguage(s.language); err != nil {
		return nil, false
	}

	source := []byte(content)
	tree := parser.Parse(source, nil)
	if tree == nil {
		return nil, false
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, false
	}

	var chunks []Chunk
	for i := uint(0); i < root.ChildCount(); i++ {
		node := root.Child(i)
		var chunkType ChunkType
		switch node.Kind() {
		case "function_definition":
			chunkType = TypeFunction
		case "decorated_definition":
			// Decorators wrap the real definition; classify by the inner node.
			inner := node.ChildByFieldName("definition")
			if inner == nil {
				continue
			}
			if inner.Kind() == "class_definition" {
				chunkType = TypeClass
			} else {
				chunkType = TypeFunction
			}
		case "class_definition":
			chunkType = TypeClass
		default:
			continue
		}

		name := pythonNodeName(node, source)
		chunks = append(chunks, Chunk{
			Name:      name,
			Type:      chunkType,
			Content:   string(source[node.StartByte():node.EndByte()]),
			StartLine: int(node.StartPosition().Row) + 1,
			EndLine:   int(node.EndPosition().Row) + 1,
			Language:  "python",
		})
	}
	return chunks, true
}

// pythonNodeName finds the identifier of a (possibly decorated) definition.
func pythonNodeName(node *sitter.Node, source []byte) string {
	target := node
	if node.Kind() == "decorated_definition" {
		if inner := node.ChildByFieldName("definition"); inner != nil {
			target = inner
		}
	}
	nameNode := target.ChildByFieldName("name")
	if nameNode == nil {
		return ""
	}
	return string(source[nameNode.StartByte():nameNode.EndByte()])
}

var pythonTopLevelRe = regexp.MustCompile(`^(?:async\s+)?(def|class)\s+(\w+)`)

// chunkLineBlocks is the parse-error fallback: split on top-level def/class
// lines and keep everything between as blocks.
func (s *PythonStrategy) chunkLineBlocks(content string) []Chunk {
	lines := strings.Split(content, "\n")
	var chunks []Chunk
	var current []string
	currentName := ""
	currentType := TypeBlock
	startLine := 1

	flush := func(endLine int) {
		if len(current) == 0 {
			return
		}
		body := strings.Join(current, "\n")
		if strings.TrimSpace(body) == "" {
			current = nil
			return
		}
		chunks = append(chunks, Chunk{
			Name:      currentName,
			Type:      currentType,
			Content:   body,
			StartLine: startLine,
			EndLine:   endLine,
			Language:  "python",
		})
		current = nil
	}

	for i, line := range lines {
		if m := pythonTopLevelRe.FindStringSubmatch(line); m != nil {
			flush(i)
			startLine = i + 1
			currentName = m[2]
			if m[1] == "class" {
				currentType = TypeClass
			} else {
				currentType = TypeFunction
			}
		} else if len(current) == 0 && currentName == "" {
			startLine = i + 1
		}
		current = append(current, line)
	}
	flush(len(lines))

	for i := range chunks {
		if chunks[i].Name == "" {
			chunks[i].Name = fmt.Sprintf("python_block_%d", i)
		}
	}
	return chunks
}
