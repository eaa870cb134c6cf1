package chunker

import (
	"regexp"
	"strings"
)

// JSXStrategy chunks React/JSX sources into components, hooks, and functions
// using regex patterns with brace-balance extent computation. When no pattern
// matches, it falls through to the generic paragraph strategy and relabels
// the result as a single jsx_file chunk type.
type JSXStrategy struct {
	generic *GenericStrategy
}

type jsxPattern struct {
	re        *regexp.Regexp
	chunkType ChunkType
	kind      string
}

var jsxPatterns = []jsxPattern{
	{regexp.MustCompile(`(?m)^(?:export\s+(?:default\s+)?)?(?:const|function)\s+(\w+)\s*=?\s*\([^)]*\)\s*=>\s*\{`), TypeFunction, "component"},
	{regexp.MustCompile(`(?m)^class\s+(\w+)\s+extends\s+(?:React\.)?Component\s*\{`), TypeClass, "class_component"},
	{regexp.MustCompile(`(?m)^(?:export\s+)?function\s+(\w+)\s*\([^)]*\)\s*\{`), TypeFunction, "function"},
	{regexp.MustCompile(`(?m)^(?:export\s+)?const\s+(use\w+)\s*[=(]`), TypeFunction, "hook"},
}

// jsxIndicatorRe detects JSX content inside otherwise plain JavaScript.
// Substring-level detection: JSX-like text inside strings or comments can
// produce false positives, which then simply chunk through this strategy.
var jsxIndicatorRe = regexp.MustCompile(`<[A-Z]\w*[\s/>]|React\.|from\s+['"]react['"]|import\s+React`)

// ContainsJSX reports whether the content carries JSX indicators.
func ContainsJSX(content string) bool {
	return jsxIndicatorRe.MatchString(content)
}

// Chunk implements Strategy.
func (s *JSXStrategy) Chunk(path, content string) ([]Chunk, error) {
	type span struct{ start, end int }
	var chunks []Chunk
	seen := make(map[span]bool)

	for _, p := range jsxPatterns {
		for _, loc := range p.re.FindAllStringSubmatchIndex(content, -1) {
			start := loc[0]
			name := content[loc[2]:loc[3]]
			end := braceExtent(content, loc[1]-1)
			if end <= start || seen[span{start, end}] {
				continue
			}
			snippet := strings.TrimSpace(content[start:end])
			if len(snippet) <= 10 {
				continue
			}
			seen[span{start, end}] = true
			chunks = append(chunks, Chunk{
				Name:      name,
				Type:      p.chunkType,
				Content:   snippet,
				StartLine: lineOfOffset(content, start),
				EndLine:   lineOfOffset(content, end-1),
				Language:  "jsx",
			})
		}
	}

	if len(chunks) == 0 {
		fallback, err := s.generic.Chunk(path, content)
		if err != nil {
			return nil, err
		}
		for i := range fallback {
			fallback[i].Type = TypeJSXFile
			fallback[i].Language = "jsx"
			if fallback[i].Name == "" {
				fallback[i].Name = "jsx_content"
			}
		}
		return fallback, nil
	}
	return chunks, nil
}
