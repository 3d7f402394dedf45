package walker

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultExcludes keeps version control internals, dependency trees, and
// editor backups out of batch runs.
var DefaultExcludes = []string{
	"**/.git/**",
	"**/node_modules/**",
	"**/vendor/**",
	"**/*~",
}

// Walker collects files under a root matching include globs and not matching
// exclude globs. Patterns use doublestar syntax against slash-separated paths
// relative to the walk root.
type Walker struct {
	includes []string
	excludes []string
}

// Option configures a Walker.
type Option func(*Walker)

// WithIncludes replaces the default include pattern ("**/*").
func WithIncludes(patterns ...string) Option {
	return func(w *Walker) {
		if len(patterns) > 0 {
			w.includes = patterns
		}
	}
}

// WithExcludes adds exclude patterns on top of the defaults.
func WithExcludes(patterns ...string) Option {
	return func(w *Walker) {
		w.excludes = append(w.excludes, patterns...)
	}
}

// FileInfo is one matched file.
type FileInfo struct {
	Path    string // absolute
	RelPath string // relative to the walk root
	Size    int64
	ModTime time.Time
}

func New(opts ...Option) *Walker {
	w := &Walker{
		includes: []string{"**/*"},
		excludes: append([]string{}, DefaultExcludes...),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Walk returns matching files under root in directory order. A root that is
// itself a regular file is returned as-is without pattern checks, so single
// files can be passed straight through from the CLI.
func (w *Walker) Walk(ctx context.Context, root string) ([]FileInfo, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	rootInfo, err := os.Stat(absRoot)
	if err != nil {
		return nil, err
	}
	if !rootInfo.IsDir() {
		return []FileInfo{{
			Path:    absRoot,
			RelPath: filepath.Base(absRoot),
			Size:    rootInfo.Size(),
			ModTime: rootInfo.ModTime(),
		}}, nil
	}

	var files []FileInfo
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}

		rel, err := filepath.Rel(absRoot, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if path == absRoot {
				return nil
			}
			if w.matchesAny(w.excludes, rel+"/") {
				return fs.SkipDir
			}
			return nil
		}

		if !w.matchesAny(w.includes, rel) || w.matchesAny(w.excludes, rel) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil // file vanished mid-walk
		}
		files = append(files, FileInfo{
			Path:    path,
			RelPath: rel,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return files, nil
}

func (w *Walker) matchesAny(patterns []string, rel string) bool {
	for _, pattern := range patterns {
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return true
		}
	}
	return false
}
