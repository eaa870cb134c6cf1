package indexer

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// watchDebounce batches rapid-fire filesystem events into one index run.
const watchDebounce = 500 * time.Millisecond

// Watch blocks until the context is cancelled, re-running Index after each
// debounced burst of filesystem events under the project root.
func (ix *Indexer) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch every non-skipped directory; fsnotify is not recursive.
	err = filepath.WalkDir(ix.rootDir, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !entry.IsDir() {
			return nil
		}
		if skipDirs[entry.Name()] {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
	if err != nil {
		return fmt.Errorf("failed to watch project tree: %w", err)
	}

	var timer *time.Timer
	fired := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// New directories must be added to the watch set.
			if event.Op.Has(fsnotify.Create) && isDir(event.Name) {
				_ = watcher.Add(event.Name)
			}
			if timer == nil {
				timer = time.AfterFunc(watchDebounce, func() {
					select {
					case fired <- struct{}{}:
					default:
					}
				})
			} else {
				timer.Reset(watchDebounce)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			ix.logger.Warn("watcher error", zap.Error(err))

		case <-fired:
			timer = nil
			if _, err := ix.Index(ctx); err != nil {
				ix.logger.Error("watch-triggered index failed", zap.Error(err))
			}
		}
	}
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
