// Package indexer keeps the code_context collection and file_metadata table
// consistent with the on-disk project tree with minimum work.
package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mvp-joe/code-factory/internal/chunker"
	"github.com/mvp-joe/code-factory/internal/embed"
	"github.com/mvp-joe/code-factory/internal/store"
)

// Report summarizes one indexing run. Per-file failures are recorded in
// Errors and never abort the run.
type Report struct {
	FilesIndexed   int
	FilesUnchanged int
	FilesSkipped   int
	ChunksIndexed  int
	Errors         []string
	Duration       time.Duration
}

// Indexer walks the project, detects changed files, and re-chunks,
// re-embeds, and re-stores only what changed.
type Indexer struct {
	rootDir  string
	store    *store.Store
	registry *chunker.Registry
	provider embed.Provider
	workers  int
	logger   *zap.Logger
}

// Options configures New.
type Options struct {
	RootDir        string
	Store          *store.Store
	Provider       embed.Provider
	IgnorePatterns []string
	// Workers bounds file-level parallelism. Defaults to the CPU count.
	Workers int
	Logger  *zap.Logger
}

// New creates an indexer.
func New(opts Options) (*Indexer, error) {
	if opts.RootDir == "" {
		return nil, fmt.Errorf("root dir is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if opts.Provider == nil {
		return nil, fmt.Errorf("embedding provider is required")
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Indexer{
		rootDir:  opts.RootDir,
		store:    opts.Store,
		registry: chunker.NewRegistry(),
		provider: opts.Provider,
		workers:  opts.Workers,
		logger:   opts.Logger,
	}, nil
}

// fileState is the on-disk fingerprint used for change detection.
type fileState struct {
	size  int64
	mtime time.Time
	hash  string
}

// Index brings the store in sync with the project tree.
//
// Algorithm:
//  1. Discover eligible files (skip dirs, ignore patterns, size cap).
//  2. Fingerprint each file as (size, mtime, content-hash), with an mtime
//     fast-path: when size and mtime match the stored record, the hash is
//     not recomputed and the file counts as unchanged.
//  3. Re-process new and changed files with bounded worker parallelism:
//     chunk, embed, delete prior chunks for the path, insert the new batch,
//     upsert metadata.
//  4. Remove metadata and chunks for files that vanished from disk.
func (ix *Indexer) Index(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := &Report{}

	discovery, err := NewFileDiscovery(ix.rootDir, nil)
	if err != nil {
		return nil, err
	}
	eligible, skipped, err := discovery.Discover()
	if err != nil {
		return nil, err
	}
	report.FilesSkipped = len(skipped)

	stored, err := ix.store.GetAllFileMetadata(ctx)
	if err != nil {
		return nil, err
	}

	var (
		mu      sync.Mutex
		changed []string
	)

	present := make(map[string]bool, len(eligible))
	for _, rel := range eligible {
		present[rel] = true
	}

	// Step 2: change detection.
	for _, rel := range eligible {
		abs := filepath.Join(ix.rootDir, rel)
		info, statErr := os.Stat(abs)
		if statErr != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", rel, statErr))
			continue
		}

		prev, known := stored[rel]
		if known && prev.FileSize == info.Size() && prev.MTime.Equal(info.ModTime()) {
			report.FilesUnchanged++
			continue
		}

		if known {
			// Size or mtime drifted; the content hash decides.
			hash, hashErr := hashFile(abs)
			if hashErr != nil {
				report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", rel, hashErr))
				continue
			}
			if hash == prev.ContentHash {
				// Content identical; refresh the stored fingerprint so the
				// fast path works next run.
				prev.FileSize = info.Size()
				prev.MTime = info.ModTime()
				if upErr := ix.store.UpsertFileMetadata(ctx, prev); upErr != nil {
					report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", rel, upErr))
				}
				report.FilesUnchanged++
				continue
			}
		}
		changed = append(changed, rel)
	}

	// Step 3: process changed files with bounded parallelism. Workers are
	// independent; within a file, chunks are written as one batch.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.workers)
	for _, rel := range changed {
		g.Go(func() error {
			chunks, procErr := ix.processFile(gctx, rel)
			mu.Lock()
			defer mu.Unlock()
			if procErr != nil {
				report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", rel, procErr))
				return nil // per-file failures do not abort the run
			}
			report.FilesIndexed++
			report.ChunksIndexed += chunks
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Step 4: deletion sweep.
	for rel := range stored {
		if present[rel] {
			continue
		}
		if err := ix.store.DeleteChunksByPath(ctx, rel); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", rel, err))
			continue
		}
		if err := ix.store.DeleteFileMetadata(ctx, rel); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", rel, err))
		}
	}

	sort.Strings(report.Errors)
	report.Duration = time.Since(start)
	ix.logger.Info("index run complete",
		zap.Int("files_indexed", report.FilesIndexed),
		zap.Int("files_unchanged", report.FilesUnchanged),
		zap.Int("files_skipped", report.FilesSkipped),
		zap.Int("chunks_indexed", report.ChunksIndexed),
		zap.Int("errors", len(report.Errors)),
		zap.Duration("duration", report.Duration))
	return report, nil
}

// processFile re-indexes one file: chunk, embed, replace stored chunks,
// upsert metadata. Returns the number of chunks stored.
func (ix *Indexer) processFile(ctx context.Context, rel string) (int, error) {
	abs := filepath.Join(ix.rootDir, rel)
	data, err := os.ReadFile(abs)
	if err != nil {
		return 0, fmt.Errorf("read failed: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return 0, fmt.Errorf("stat failed: %w", err)
	}

	chunks, err := ix.registry.ChunkFile(rel, string(data))
	if err != nil {
		return 0, err
	}

	rows := make([]store.CodeChunkRow, 0, len(chunks))
	for _, c := range chunks {
		vec, embErr := ix.provider.Embed(ctx, c.Content)
		if embErr != nil {
			if errors.Is(embErr, embed.ErrUnavailable) {
				// Model not loaded: skip the chunk, keep the file.
				ix.logger.Debug("skipping chunk, embeddings unavailable",
					zap.String("path", rel), zap.String("chunk", c.Name))
				continue
			}
			return 0, fmt.Errorf("embed failed for chunk %s: %w", c.Name, embErr)
		}
		rows = append(rows, store.NewCodeChunkRow(c, vec))
	}

	if err := ix.store.DeleteChunksByPath(ctx, rel); err != nil {
		return 0, err
	}
	if err := ix.store.UpsertChunks(ctx, rows); err != nil {
		return 0, err
	}

	sum := sha256.Sum256(data)
	fm := store.FileMetadata{
		Path:        rel,
		FileSize:    info.Size(),
		MTime:       info.ModTime(),
		ContentHash: hex.EncodeToString(sum[:]),
		LastIndexed: time.Now(),
		ChunkCount:  len(rows),
	}
	if err := ix.store.UpsertFileMetadata(ctx, fm); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// hashFile computes the SHA-256 hex digest of a file's content.
func hashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
