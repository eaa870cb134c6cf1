package chunker

import (
	"regexp"
	"strings"
)

// GoStrategy chunks Go sources into functions, methods, structs, and
// interfaces via regex matching with brace-balance extent computation.
type GoStrategy struct{}

var (
	goFuncRe = regexp.MustCompile(`(?m)^func\s*(?:\([^)]*\)\s*)?(\w+)\s*\(`)
	goTypeRe = regexp.MustCompile(`(?m)^type\s+(\w+)\s+(struct|interface)\b`)
)

// Chunk implements Strategy.
func (s *GoStrategy) Chunk(path, content string) ([]Chunk, error) {
	var chunks []Chunk

	for _, loc := range goFuncRe.FindAllStringSubmatchIndex(content, -1) {
		start := loc[0]
		name := content[loc[2]:loc[3]]
		end := braceExtent(content, loc[1])
		snippet := strings.TrimSpace(content[start:end])
		if snippet == "" {
			continue
		}
		chunks = append(chunks, Chunk{
			Name:      name,
			Type:      TypeFunction,
			Content:   snippet,
			StartLine: lineOfOffset(content, start),
			EndLine:   lineOfOffset(content, end-1),
			Language:  "go",
		})
	}

	for _, loc := range goTypeRe.FindAllStringSubmatchIndex(content, -1) {
		start := loc[0]
		name := content[loc[2]:loc[3]]
		end := braceExtent(content, loc[1])
		snippet := strings.TrimSpace(content[start:end])
		if snippet == "" {
			continue
		}
		chunks = append(chunks, Chunk{
			Name:      name,
			Type:      TypeClass,
			Content:   snippet,
			StartLine: lineOfOffset(content, start),
			EndLine:   lineOfOffset(content, end-1),
			Language:  "go",
		})
	}

	return chunks, nil
}
