package chunker

import (
	"regexp"
	"strings"
)

// MarkdownStrategy splits markdown into heading-delimited sections. Sections
// never overlap; content before the first heading becomes an "Introduction"
// section.
type MarkdownStrategy struct{}

var markdownHeadingRe = regexp.MustCompile(`^#{1,6} `)

// Chunk implements Strategy.
func (s *MarkdownStrategy) Chunk(path, content string) ([]Chunk, error) {
	lines := strings.Split(content, "\n")
	var chunks []Chunk
	var current []string
	heading := "Introduction"
	startLine := 1

	flush := func(endLine int) {
		if len(current) == 0 {
			return
		}
		chunks = append(chunks, Chunk{
			Name:      heading,
			Type:      TypeMarkdownSection,
			Content:   strings.Join(current, "\n"),
			StartLine: startLine,
			EndLine:   endLine,
			Language:  "markdown",
		})
		current = nil
	}

	for i, line := range lines {
		if markdownHeadingRe.MatchString(line) {
			flush(i)
			heading = strings.TrimSpace(strings.TrimLeft(line, "#"))
			startLine = i + 1
		}
		current = append(current, line)
	}
	flush(len(lines))
	return chunks, nil
}
