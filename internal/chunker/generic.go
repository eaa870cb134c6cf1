package chunker

import "strings"

// GenericStrategy splits arbitrary text into paragraphs on blank lines.
type GenericStrategy struct{}

// Chunk implements Strategy.
func (s *GenericStrategy) Chunk(path, content string) ([]Chunk, error) {
	paragraphs := strings.Split(content, "\n\n")
	var chunks []Chunk
	lineOffset := 0

	for _, para := range paragraphs {
		lineCount := len(strings.Split(para, "\n"))
		if strings.TrimSpace(para) != "" {
			name := para
			if len(name) > 30 {
				name = name[:30]
			}
			chunks = append(chunks, Chunk{
				Name:      strings.TrimSpace(name),
				Type:      TypeParagraph,
				Content:   para,
				StartLine: lineOffset + 1,
				EndLine:   lineOffset + lineCount,
			})
		}
		// +1 for the blank separator line consumed by the split.
		lineOffset += lineCount + 1
	}
	return chunks, nil
}
