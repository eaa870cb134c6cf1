package chunker

import "strings"

// CSSStrategy splits stylesheets into selector blocks by brace balance.
type CSSStrategy struct{}

// Chunk implements Strategy.
func (s *CSSStrategy) Chunk(path, content string) ([]Chunk, error) {
	lines := strings.Split(content, "\n")
	var chunks []Chunk

	i := 0
	for i < len(lines) {
		stripped := strings.TrimSpace(lines[i])
		if !strings.Contains(stripped, "{") {
			i++
			continue
		}

		selector := strings.TrimSpace(strings.SplitN(stripped, "{", 2)[0])
		startLine := i + 1
		block := []string{lines[i]}
		depth := braceDelta(lines[i])
		i++
		for i < len(lines) && depth > 0 {
			block = append(block, lines[i])
			depth += braceDelta(lines[i])
			i++
		}

		chunks = append(chunks, Chunk{
			Name:      selector,
			Type:      TypeSelector,
			Content:   strings.Join(block, "\n"),
			StartLine: startLine,
			EndLine:   i,
			Language:  "css",
		})
	}
	return chunks, nil
}
