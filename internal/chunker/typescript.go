package chunker

import (
	"regexp"
	"strings"
)

// TypeScriptStrategy chunks TypeScript into top-level declarations (classes,
// interfaces, enums, functions, types, variables) using line-by-line regex
// matching with brace-balance accumulation: a new declaration only begins
// when the running brace depth is back at zero.
type TypeScriptStrategy struct{}

var (
	tsDeclRe = regexp.MustCompile(`^(?:export\s+)?(class|interface|enum|function|type)\s+(\w+)`)
	tsVarRe  = regexp.MustCompile(`^(?:export\s+)?(?:const|let|var)\s+(\w+)`)
)

// Chunk implements Strategy.
func (s *TypeScriptStrategy) Chunk(path, content string) ([]Chunk, error) {
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
				Language:  "typescript",
			})
		}
		current = nil
	}

	for i, line := range lines {
		if depth == 0 {
			name, chunkType := matchTSDecl(line)
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

	// The whole file as one labelled chunk when no declaration matched.
	if len(chunks) == 0 && strings.TrimSpace(content) != "" {
		chunks = append(chunks, Chunk{
			Name:      "ts_content",
			Type:      TypeTSFile,
			Content:   content,
			StartLine: 1,
			EndLine:   len(lines),
			Language:  "typescript",
		})
	}
	return chunks, nil
}

func matchTSDecl(line string) (string, ChunkType) {
	if m := tsDeclRe.FindStringSubmatch(line); m != nil {
		switch m[1] {
		case "class", "interface", "enum":
			return m[2], TypeClass
		default:
			return m[2], TypeFunction
		}
	}
	if m := tsVarRe.FindStringSubmatch(line); m != nil {
		return m[1], TypeBlock
	}
	return "", ""
}
