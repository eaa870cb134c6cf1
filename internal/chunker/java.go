package chunker

import (
	"regexp"
	"strings"
)

// JavaStrategy chunks Java sources into classes, interfaces, enums, and
// methods. Same extent computation as the Go strategy.
type JavaStrategy struct{}

var (
	javaTypeRe = regexp.MustCompile(`(?m)^(?:public\s+|private\s+|protected\s+)?(?:abstract\s+|final\s+|static\s+)*(class|interface|enum)\s+(\w+)`)
	javaMethodRe = regexp.MustCompile(`(?m)^\s{1,8}(?:public|private|protected)\s+(?:static\s+|final\s+|abstract\s+|synchronized\s+)*[\w<>\[\],\s]+\s(\w+)\s*\([^)]*\)\s*(?:throws\s+[\w,\s]+)?\{`)
)

// Chunk implements Strategy.
func (s *JavaStrategy) Chunk(path, content string) ([]Chunk, error) {
	var chunks []Chunk

	for _, loc := range javaTypeRe.FindAllStringSubmatchIndex(content, -1) {
		start := loc[0]
		name := content[loc[4]:loc[5]]
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
			Language:  "java",
		})
	}

	for _, loc := range javaMethodRe.FindAllStringSubmatchIndex(content, -1) {
		start := loc[0]
		name := content[loc[2]:loc[3]]
		end := braceExtent(content, loc[1]-1)
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
			Language:  "java",
		})
	}

	return chunks, nil
}
