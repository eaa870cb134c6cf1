package chunker

import (
	"regexp"
	"strings"
)

// JavaScriptStrategy chunks JavaScript into top-level functions, classes, and
// variable declarations. Files containing JSX indicators are redirected to
// the JSX strategy, which copes with embedded markup that confuses the
// declaration patterns here.
type JavaScriptStrategy struct {
	jsx *JSXStrategy
}

var (
	jsFuncRe  = regexp.MustCompile(`^(?:export\s+)?(?:async\s+)?function\s+(\w+)`)
	jsClassRe = regexp.MustCompile(`^(?:export\s+)?class\s+(\w+)`)
	jsVarRe   = regexp.MustCompile(`^(?:export\s+)?(?:const|let|var)\s+(\w+)`)
)

// Chunk implements Strategy.
func (s *JavaScriptStrategy) Chunk(path, content string) ([]Chunk, error) {
	if s.jsx != nil && ContainsJSX(content) {
		return s.jsx.Chunk(path, content)
	}

	lines := strings.Split(content, "\n")

	var chunks []Chunk
	var current []string
	currentName := ""
	currentType := TypeBlock
	startLine := 1
	depth := 0

	flush := func(endLine int) {
		if len(current) == 0 {
			return
		}
		body := strings.Join(current, "\n")
		if strings.TrimSpace(body) != "" {
			chunks = append(chunks, Chunk{
				Name:      currentName,
				Type:      currentType,
				Content:   body,
				StartLine: startLine,
				EndLine:   endLine,
				Language:  "javascript",
			})
		}
		current = nil
	}

	for i, line := range lines {
		if depth == 0 {
			name, chunkType := matchJSDecl(line)
			if name != "" {
				flush(i)
				startLine = i + 1
				currentName = name
				currentType = chunkType
			}
		}
		depth += braceDelta(line)
		current = append(current, line)
	}
	flush(len(lines))
	return chunks, nil
}

func matchJSDecl(line string) (string, ChunkType) {
	if m := jsFuncRe.FindStringSubmatch(line); m != nil {
		return m[1], TypeFunction
	}
	if m := jsClassRe.FindStringSubmatch(line); m != nil {
		return m[1], TypeClass
	}
	if m := jsVarRe.FindStringSubmatch(line); m != nil {
		return m[1], TypeBlock
	}
	return "", ""
}
