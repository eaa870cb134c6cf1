package chunker

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// HTMLStrategy chunks HTML files into <script> blocks (each its own chunk,
// labelled javascript) followed by one chunk holding the remaining markup.
type HTMLStrategy struct{}

// Chunk implements Strategy.
func (s *HTMLStrategy) Chunk(path, content string) ([]Chunk, error) {
	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		// Unparseable markup still has to produce a chunk; the registry's
		// fallback covers it.
		return nil, nil
	}

	var chunks []Chunk
	scriptIdx := 0

	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "script" {
			var code strings.Builder
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.TextNode {
					code.WriteString(c.Data)
				}
			}
			if strings.TrimSpace(code.String()) != "" {
				chunks = append(chunks, Chunk{
					Name:     fmt.Sprintf("script_%d", scriptIdx),
					Type:     TypeScript,
					Content:  code.String(),
					Language: "javascript",
				})
			}
			scriptIdx++
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(doc)

	markup := stripScriptBlocks(content)
	if strings.TrimSpace(markup) != "" {
		chunks = append(chunks, Chunk{
			Name:      "html",
			Type:      TypeBlock,
			Content:   markup,
			StartLine: 1,
			EndLine:   countLines(content),
			Language:  "html",
		})
	}
	return chunks, nil
}

// stripScriptBlocks removes <script>...</script> elements from raw markup.
func stripScriptBlocks(content string) string {
	var out strings.Builder
	lower := strings.ToLower(content)
	pos := 0
	for {
		open := strings.Index(lower[pos:], "<script")
		if open < 0 {
			out.WriteString(content[pos:])
			break
		}
		open += pos
		out.WriteString(content[pos:open])
		close := strings.Index(lower[open:], "</script>")
		if close < 0 {
			break
		}
		pos = open + close + len("</script>")
	}
	return out.String()
}
