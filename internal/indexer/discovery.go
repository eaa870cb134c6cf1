package indexer

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
	ignore "github.com/sabhiram/go-gitignore"
)

// MaxFileSize is the largest file the indexer will process.
const MaxFileSize = 100 * 1024 // 100 KiB

// skipDirs are directory names never descended into.
var skipDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	".factory":     true,
	"node_modules": true,
	"__pycache__":  true,
	".venv":        true,
	"venv":         true,
	"env":          true,
	"dist":         true,
	"build":        true,
	"target":       true,
	".idea":        true,
	".vscode":      true,
	".pytest_cache": true,
	".mypy_cache":   true,
}

// FileDiscovery enumerates indexable project files.
type FileDiscovery struct {
	rootDir        string
	ignorePatterns []glob.Glob
	gitignore      *ignore.GitIgnore
}

// NewFileDiscovery creates a discovery rooted at rootDir. Extra ignore
// patterns are glob-style and matched against project-relative paths. A
// .gitignore at the root is honored when present.
func NewFileDiscovery(rootDir string, ignorePatterns []string) (*FileDiscovery, error) {
	compiled := make([]glob.Glob, 0, len(ignorePatterns))
	for _, pattern := range ignorePatterns {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid ignore pattern %q: %w", pattern, err)
		}
		compiled = append(compiled, g)
	}

	var gi *ignore.GitIgnore
	if gitignorePath := filepath.Join(rootDir, ".gitignore"); fileExists(gitignorePath) {
		parsed, err := ignore.CompileIgnoreFile(gitignorePath)
		if err == nil {
			gi = parsed
		}
	}

	return &FileDiscovery{
		rootDir:        rootDir,
		ignorePatterns: compiled,
		gitignore:      gi,
	}, nil
}

// Discover walks the project tree and returns eligible project-relative
// paths. Files above MaxFileSize are returned separately as skipped.
func (d *FileDiscovery) Discover() (eligible, skipped []string, err error) {
	err = filepath.WalkDir(d.rootDir, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		rel, relErr := filepath.Rel(d.rootDir, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		if entry.IsDir() {
			if rel != "." && (skipDirs[entry.Name()] || d.ignored(rel+"/")) {
				return filepath.SkipDir
			}
			return nil
		}

		if !entry.Type().IsRegular() {
			return nil
		}
		if d.ignored(rel) {
			return nil
		}

		info, infoErr := entry.Info()
		if infoErr != nil {
			return nil // vanished between walk and stat
		}
		if info.Size() > MaxFileSize {
			skipped = append(skipped, rel)
			return nil
		}

		eligible = append(eligible, rel)
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to walk %s: %w", d.rootDir, err)
	}
	return eligible, skipped, nil
}

// ignored applies glob ignore patterns and .gitignore rules.
func (d *FileDiscovery) ignored(rel string) bool {
	for _, g := range d.ignorePatterns {
		if g.Match(rel) {
			return true
		}
	}
	if d.gitignore != nil && d.gitignore.MatchesPath(rel) {
		return true
	}
	// Hidden files at any depth are not indexed.
	for _, part := range strings.Split(rel, "/") {
		if strings.HasPrefix(part, ".") && part != "." && part != ".." {
			return true
		}
	}
	return false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
