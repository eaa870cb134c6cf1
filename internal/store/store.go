// Package store owns the persistent state shared across requests: two
// chromem-go vector collections (code_context, knowledge_base) and a SQLite
// file_metadata table. Upserts are atomic per row; there are no cross-table
// transactions.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"
	"github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

const (
	codeContextCollection   = "code_context"
	knowledgeBaseCollection = "knowledge_base"
)

// Store bundles the vector collections and the metadata database.
type Store struct {
	db          *chromem.DB
	codeContext *chromem.Collection
	knowledge   *chromem.Collection
	meta        *sql.DB
	logger      *zap.Logger
}

// Options configures Open.
type Options struct {
	// Dir is the state directory, typically <project_root>/.factory.
	Dir string
	// Persistent selects on-disk chromem storage. Tests use in-memory.
	Persistent bool
	Logger     *zap.Logger
}

// Open creates or opens the store under opts.Dir.
func Open(opts Options) (*Store, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	var (
		db  *chromem.DB
		err error
	)
	if opts.Persistent {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create state dir: %w", err)
		}
		db, err = chromem.NewPersistentDB(filepath.Join(opts.Dir, "vectors"), false)
		if err != nil {
			return nil, fmt.Errorf("failed to open vector store: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	code, err := db.GetOrCreateCollection(codeContextCollection, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s collection: %w", codeContextCollection, err)
	}
	knowledge, err := db.GetOrCreateCollection(knowledgeBaseCollection, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s collection: %w", knowledgeBaseCollection, err)
	}

	metaPath := ":memory:"
	if opts.Persistent {
		metaPath = filepath.Join(opts.Dir, "factory.db")
	}
	meta, err := sql.Open("sqlite3", metaPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata database: %w", err)
	}
	if err := createMetadataSchema(meta); err != nil {
		meta.Close()
		return nil, err
	}

	return &Store{
		db:          db,
		codeContext: code,
		knowledge:   knowledge,
		meta:        meta,
		logger:      opts.Logger,
	}, nil
}

// Close releases the metadata database connection.
func (s *Store) Close() error {
	return s.meta.Close()
}

// createMetadataSchema creates the file_metadata table.
func createMetadataSchema(db *sql.DB) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS file_metadata (
			path TEXT PRIMARY KEY,
			file_size INTEGER NOT NULL,
			mtime INTEGER NOT NULL,
			content_hash TEXT NOT NULL,
			last_indexed TEXT NOT NULL,
			chunk_count INTEGER NOT NULL
		)
	`
	if _, err := db.Exec(ddl); err != nil {
		return fmt.Errorf("failed to create file_metadata table: %w", err)
	}
	return nil
}

// UpsertChunks replaces the stored documents for the given chunk rows.
// chromem has no native upsert, so each document is deleted then re-added;
// per-row the operation is atomic from the reader's perspective.
func (s *Store) UpsertChunks(ctx context.Context, rows []CodeChunkRow) error {
	for _, row := range rows {
		if err := s.codeContext.Delete(ctx, nil, nil, row.ChunkID); err != nil {
			return fmt.Errorf("failed to delete chunk %s: %w", row.ChunkID, err)
		}
		if err := s.codeContext.AddDocument(ctx, row.toDocument()); err != nil {
			return fmt.Errorf("failed to add chunk %s: %w", row.ChunkID, err)
		}
	}
	return nil
}

// DeleteChunksByPath removes every stored chunk belonging to the given
// project-relative path.
func (s *Store) DeleteChunksByPath(ctx context.Context, path string) error {
	if s.codeContext.Count() == 0 {
		return nil
	}
	if err := s.codeContext.Delete(ctx, map[string]string{"path": path}, nil); err != nil {
		return fmt.Errorf("failed to delete chunks for %s: %w", path, err)
	}
	return nil
}

// TopK returns up to k chunks ordered by cosine similarity to the query
// vector, restricted by the given equality filters.
func (s *Store) TopK(ctx context.Context, vector []float32, k int, filters map[string]string) ([]ChunkHit, error) {
	count := s.codeContext.Count()
	if count == 0 || k <= 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}

	docs, err := s.codeContext.QueryEmbedding(ctx, vector, k, filters, nil)
	if err != nil {
		return nil, fmt.Errorf("vector query failed: %w", err)
	}

	hits := make([]ChunkHit, 0, len(docs))
	for _, doc := range docs {
		hits = append(hits, chunkHitFromResult(doc))
	}
	return hits, nil
}

// UpsertKnowledge replaces stored knowledge documents.
func (s *Store) UpsertKnowledge(ctx context.Context, rows []KnowledgeChunkRow) error {
	for _, row := range rows {
		if err := s.knowledge.Delete(ctx, nil, nil, row.ChunkID); err != nil {
			return fmt.Errorf("failed to delete knowledge chunk %s: %w", row.ChunkID, err)
		}
		if err := s.knowledge.AddDocument(ctx, row.toDocument()); err != nil {
			return fmt.Errorf("failed to add knowledge chunk %s: %w", row.ChunkID, err)
		}
	}
	return nil
}

// TopKKnowledge queries the knowledge base, scoped to one knowledge space to
// prevent cross-project bleed.
func (s *Store) TopKKnowledge(ctx context.Context, vector []float32, k int, knowledgeSpace string) ([]ChunkHit, error) {
	count := s.knowledge.Count()
	if count == 0 || k <= 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}

	filters := map[string]string{}
	if knowledgeSpace != "" {
		filters["knowledge_space"] = knowledgeSpace
	}
	docs, err := s.knowledge.QueryEmbedding(ctx, vector, k, filters, nil)
	if err != nil {
		return nil, fmt.Errorf("knowledge query failed: %w", err)
	}

	hits := make([]ChunkHit, 0, len(docs))
	for _, doc := range docs {
		hits = append(hits, chunkHitFromResult(doc))
	}
	return hits, nil
}

// UpsertFileMetadata writes one file's metadata record, keyed by path.
func (s *Store) UpsertFileMetadata(ctx context.Context, fm FileMetadata) error {
	query := `
		INSERT INTO file_metadata (path, file_size, mtime, content_hash, last_indexed, chunk_count)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			file_size = excluded.file_size,
			mtime = excluded.mtime,
			content_hash = excluded.content_hash,
			last_indexed = excluded.last_indexed,
			chunk_count = excluded.chunk_count
	`
	_, err := s.meta.ExecContext(ctx, query,
		fm.Path, fm.FileSize, fm.MTime.UnixNano(), fm.ContentHash,
		fm.LastIndexed.UTC().Format(time.RFC3339Nano), fm.ChunkCount)
	if err != nil {
		return fmt.Errorf("failed to upsert metadata for %s: %w", fm.Path, err)
	}
	return nil
}

// GetAllFileMetadata loads every file metadata record keyed by path.
func (s *Store) GetAllFileMetadata(ctx context.Context) (map[string]FileMetadata, error) {
	rows, err := sq.Select("path", "file_size", "mtime", "content_hash", "last_indexed", "chunk_count").
		From("file_metadata").
		RunWith(s.meta).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query file metadata: %w", err)
	}
	defer rows.Close()

	result := make(map[string]FileMetadata)
	for rows.Next() {
		var (
			fm          FileMetadata
			mtimeNanos  int64
			lastIndexed string
		)
		if err := rows.Scan(&fm.Path, &fm.FileSize, &mtimeNanos, &fm.ContentHash, &lastIndexed, &fm.ChunkCount); err != nil {
			return nil, fmt.Errorf("failed to scan file metadata: %w", err)
		}
		fm.MTime = time.Unix(0, mtimeNanos)
		fm.LastIndexed, err = time.Parse(time.RFC3339Nano, lastIndexed)
		if err != nil {
			return nil, fmt.Errorf("failed to parse last_indexed for %s: %w", fm.Path, err)
		}
		result[fm.Path] = fm
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating file metadata: %w", err)
	}
	return result, nil
}

// DeleteFileMetadata removes the record for one path.
func (s *Store) DeleteFileMetadata(ctx context.Context, path string) error {
	_, err := sq.Delete("file_metadata").
		Where(sq.Eq{"path": path}).
		RunWith(s.meta).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete metadata for %s: %w", path, err)
	}
	return nil
}

// CodeChunkCount returns the number of stored code chunks.
func (s *Store) CodeChunkCount() int {
	return s.codeContext.Count()
}

// joinList and splitList encode string sequences into chromem's string-only
// metadata values.
func joinList(values []string) string {
	return strings.Join(values, "\x1f")
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	return strings.Split(value, "\x1f")
}

func formatInt(v int) string {
	return strconv.Itoa(v)
}

func parseInt(v string) int {
	n, _ := strconv.Atoi(v)
	return n
}
