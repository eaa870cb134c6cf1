package store

import (
	"time"

	"github.com/philippgille/chromem-go"

	"github.com/mvp-joe/code-factory/internal/chunker"
)

// CodeChunkRow is the stored form of a chunker.Chunk plus its embedding.
type CodeChunkRow struct {
	ChunkID      string
	Path         string
	ChunkName    string
	ChunkType    string
	Content      string
	Vector       []float32
	StartLine    int
	EndLine      int
	ContentHash  string
	Language     string
	LintErrors   []string
	Dependencies []string
}

// NewCodeChunkRow pairs a chunk with its embedding vector.
func NewCodeChunkRow(c chunker.Chunk, vector []float32) CodeChunkRow {
	return CodeChunkRow{
		ChunkID:      c.ID,
		Path:         c.Path,
		ChunkName:    c.Name,
		ChunkType:    string(c.Type),
		Content:      c.Content,
		Vector:       vector,
		StartLine:    c.StartLine,
		EndLine:      c.EndLine,
		ContentHash:  c.ContentHash,
		Language:     c.Language,
		LintErrors:   c.LintErrors,
		Dependencies: c.Dependencies,
	}
}

// toDocument converts the row to chromem's document shape. All metadata
// values are strings; lists are joined with an unprintable separator.
func (r CodeChunkRow) toDocument() chromem.Document {
	return chromem.Document{
		ID:        r.ChunkID,
		Content:   r.Content,
		Embedding: r.Vector,
		Metadata: map[string]string{
			"path":         r.Path,
			"chunk_name":   r.ChunkName,
			"chunk_type":   r.ChunkType,
			"start_line":   formatInt(r.StartLine),
			"end_line":     formatInt(r.EndLine),
			"content_hash": r.ContentHash,
			"language":     r.Language,
			"lint_errors":  joinList(r.LintErrors),
			"dependencies": joinList(r.Dependencies),
		},
	}
}

// KnowledgeChunkRow is a knowledge-base document. Isolated from project
// chunks; carries its knowledge space for scoped retrieval.
type KnowledgeChunkRow struct {
	ChunkID        string
	Content        string
	Vector         []float32
	KnowledgeSpace string
	DocumentType   string
	Framework      string
	Version        string
	SourceHash     string
	MetadataJSON   string
}

func (r KnowledgeChunkRow) toDocument() chromem.Document {
	return chromem.Document{
		ID:        r.ChunkID,
		Content:   r.Content,
		Embedding: r.Vector,
		Metadata: map[string]string{
			"knowledge_space": r.KnowledgeSpace,
			"document_type":   r.DocumentType,
			"framework":       r.Framework,
			"version":         r.Version,
			"source_hash":     r.SourceHash,
			"metadata_json":   r.MetadataJSON,
		},
	}
}

// ChunkHit is one vector-query result.
type ChunkHit struct {
	ChunkID      string
	Path         string
	ChunkName    string
	ChunkType    string
	Content      string
	StartLine    int
	EndLine      int
	Language     string
	LintErrors   []string
	Dependencies []string
	Similarity   float32
	Metadata     map[string]string
}

func chunkHitFromResult(res chromem.Result) ChunkHit {
	return ChunkHit{
		ChunkID:      res.ID,
		Path:         res.Metadata["path"],
		ChunkName:    res.Metadata["chunk_name"],
		ChunkType:    res.Metadata["chunk_type"],
		Content:      res.Content,
		StartLine:    parseInt(res.Metadata["start_line"]),
		EndLine:      parseInt(res.Metadata["end_line"]),
		Language:     res.Metadata["language"],
		LintErrors:   splitList(res.Metadata["lint_errors"]),
		Dependencies: splitList(res.Metadata["dependencies"]),
		Similarity:   res.Similarity,
		Metadata:     res.Metadata,
	}
}

// FileMetadata is the per-file index bookkeeping record. Exactly one record
// exists per path; ContentHash equals the SHA-256 of the file content at
// LastIndexed.
type FileMetadata struct {
	Path        string
	FileSize    int64
	MTime       time.Time
	ContentHash string
	LastIndexed time.Time
	ChunkCount  int
}
