package chunker

import (
	"fmt"
	"strings"
)

// ShellStrategy splits shell scripts into comment-delimited blocks: each
// comment line that follows accumulated content starts a new block.
type ShellStrategy struct{}

// Chunk implements Strategy.
func (s *ShellStrategy) Chunk(path, content string) ([]Chunk, error) {
	lines := strings.Split(content, "\n")
	var chunks []Chunk
	var current []string
	startLine := 1

	flush := func(endLine int) {
		if len(current) == 0 {
			return
		}
		chunks = append(chunks, Chunk{
			Name:      fmt.Sprintf("shell_block_%d", len(chunks)),
			Type:      TypeBlock,
			Content:   strings.Join(current, "\n"),
			StartLine: startLine,
			EndLine:   endLine,
			Language:  "bash",
		})
		current = nil
	}

	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "#") && len(current) > 0 {
			flush(i)
			startLine = i + 1
		}
		current = append(current, line)
	}
	flush(len(lines))
	return chunks, nil
}
