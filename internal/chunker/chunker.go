// Package chunker splits source files into semantically labelled chunks for
// retrieval. A Registry dispatches files by extension to language-aware
// strategies; every strategy is guaranteed to return at least one chunk.
package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// ChunkType labels what a chunk represents within its source file.
type ChunkType string

const (
	TypeFunction        ChunkType = "function"
	TypeClass           ChunkType = "class"
	TypeBlock           ChunkType = "block"
	TypeSelector        ChunkType = "selector"
	TypeScript          ChunkType = "script"
	TypeMarkdownSection ChunkType = "markdown_section"
	TypeParagraph       ChunkType = "paragraph"
	TypeFallback        ChunkType = "fallback"
	TypeTSFile          ChunkType = "ts_file"
	TypeJSXFile         ChunkType = "jsx_file"
)

// Chunk is a fragment of a source file carrying a semantic label.
// StartLine and EndLine are 1-based inclusive.
type Chunk struct {
	ID           string
	Path         string // project-relative
	Name         string
	Type         ChunkType
	Content      string
	StartLine    int
	EndLine      int
	ContentHash  string // SHA-256 of Content
	Language     string
	LintErrors   []string
	Dependencies []string
}

// Strategy splits one file's content into chunks. Implementations must be
// safe for concurrent use. A strategy may return no chunks (for example when
// no declaration matches); the Registry then substitutes the whole-file
// fallback chunk.
type Strategy interface {
	Chunk(path, content string) ([]Chunk, error)
}

// LargeFileLineThreshold is the line count above which files are chunked with
// fixed-size chunking regardless of language.
const LargeFileLineThreshold = 5000

// fixedChunkLines is the window size used for oversized files.
const fixedChunkLines = 200

// Registry maps file extensions to chunking strategies.
type Registry struct {
	strategies map[string]Strategy
	generic    Strategy
}

// NewRegistry creates a registry preconfigured with all language strategies.
func NewRegistry() *Registry {
	generic := &GenericStrategy{}
	jsx := &JSXStrategy{generic: generic}
	r := &Registry{
		strategies: map[string]Strategy{
			".py":   NewPythonStrategy(),
			".ts":   &TypeScriptStrategy{},
			".tsx":  jsx,
			".js":   &JavaScriptStrategy{jsx: jsx},
			".jsx":  jsx,
			".go":   &GoStrategy{},
			".java": &JavaStrategy{},
			".html": &HTMLStrategy{},
			".htm":  &HTMLStrategy{},
			".css":  &CSSStrategy{},
			".md":   &MarkdownStrategy{},
			".sh":   &ShellStrategy{},
			".bash": &ShellStrategy{},
		},
		generic: generic,
	}
	return r
}

// Supports reports whether the extension has a dedicated strategy.
// Unknown extensions still chunk through the generic strategy.
func (r *Registry) Supports(ext string) bool {
	_, ok := r.strategies[strings.ToLower(ext)]
	return ok
}

// ChunkFile dispatches the file to its language strategy and finalizes the
// resulting chunks (IDs, content hashes, span clamping).
//
// Guarantees:
//   - at least one chunk is returned for any input
//   - every chunk's ContentHash is the SHA-256 of its Content
//   - spans are clamped to [1, line count]
func (r *Registry) ChunkFile(path, content string) ([]Chunk, error) {
	lineCount := countLines(content)

	var (
		chunks []Chunk
		err    error
	)
	if lineCount > LargeFileLineThreshold {
		chunks = fixedSizeChunks(path, content)
	} else {
		strategy, ok := r.strategies[strings.ToLower(filepath.Ext(path))]
		if !ok {
			strategy = r.generic
		}
		chunks, err = strategy.Chunk(path, content)
		if err != nil {
			return nil, fmt.Errorf("chunking %s: %w", path, err)
		}
	}

	if len(chunks) == 0 {
		chunks = []Chunk{fallbackChunk(path, content)}
	}

	for i := range chunks {
		finalize(&chunks[i], path, lineCount)
	}
	return chunks, nil
}

// fallbackChunk wraps the whole file in a single chunk. Used whenever a
// strategy yields nothing.
func fallbackChunk(path, content string) Chunk {
	return Chunk{
		Path:      path,
		Name:      filepath.Base(path),
		Type:      TypeFallback,
		Content:   content,
		StartLine: 1,
		EndLine:   max(countLines(content), 1),
		Language:  languageForExt(filepath.Ext(path)),
	}
}

// fixedSizeChunks splits oversized files into fixed line windows.
func fixedSizeChunks(path, content string) []Chunk {
	lines := strings.Split(content, "\n")
	var chunks []Chunk
	for start := 0; start < len(lines); start += fixedChunkLines {
		end := start + fixedChunkLines
		if end > len(lines) {
			end = len(lines)
		}
		chunks = append(chunks, Chunk{
			Path:      path,
			Name:      fmt.Sprintf("%s_block_%d", filepath.Base(path), len(chunks)),
			Type:      TypeBlock,
			Content:   strings.Join(lines[start:end], "\n"),
			StartLine: start + 1,
			EndLine:   end,
			Language:  languageForExt(filepath.Ext(path)),
		})
	}
	return chunks
}

// finalize stamps identity fields and clamps the span to the file bounds.
func finalize(c *Chunk, path string, lineCount int) {
	c.Path = path
	if c.Language == "" {
		c.Language = languageForExt(filepath.Ext(path))
	}
	if c.Name == "" {
		c.Name = filepath.Base(path)
	}
	if c.StartLine < 1 {
		c.StartLine = 1
	}
	if lineCount > 0 && c.EndLine > lineCount {
		c.EndLine = lineCount
	}
	if c.EndLine < c.StartLine {
		c.EndLine = c.StartLine
	}

	sum := sha256.Sum256([]byte(c.Content))
	c.ContentHash = hex.EncodeToString(sum[:])

	id := xxhash.New()
	id.WriteString(path)
	id.WriteString("\x00")
	id.WriteString(c.Name)
	id.WriteString("\x00")
	id.WriteString(c.Content)
	c.ID = fmt.Sprintf("%016x", id.Sum64())
}

// countLines counts newline-terminated lines, treating a trailing partial
// line as a line.
func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}

func languageForExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".py":
		return "python"
	case ".ts", ".tsx":
		return "typescript"
	case ".js":
		return "javascript"
	case ".jsx":
		return "jsx"
	case ".go":
		return "go"
	case ".java":
		return "java"
	case ".html", ".htm":
		return "html"
	case ".css":
		return "css"
	case ".md":
		return "markdown"
	case ".sh", ".bash":
		return "bash"
	default:
		return "text"
	}
}
