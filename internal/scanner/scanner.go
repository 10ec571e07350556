// Package scanner discovers note files under a corpus root. It walks
// the tree, applies the include pattern and exclusion rules, and
// streams results so large corpora never need to fit in memory.
package scanner

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/notedex/notedex/internal/errors"
)

// DefaultMaxFileSize is the largest note the scanner will report (10 MiB).
const DefaultMaxFileSize = 10 * 1024 * 1024

// FileInfo contains metadata about a discovered note.
type FileInfo struct {
	Path    string // relative to the corpus root
	AbsPath string
	Size    int64
	ModTime time.Time
}

// Options configures a scan.
type Options struct {
	// RootDir is the corpus root to walk.
	RootDir string

	// Pattern is a filename glob notes must match (default "*.md").
	Pattern string

	// ExcludeDirs lists directory names skipped entirely. Hidden
	// directories are always skipped.
	ExcludeDirs []string

	// MaxFileSize drops files above this many bytes (0 = 10 MiB).
	MaxFileSize int64

	// Workers is the stat concurrency (0 = NumCPU).
	Workers int
}

// Result is returned from the scan channel.
type Result struct {
	File  *FileInfo
	Error error
}

// Scan walks the root and streams matching notes. The channel closes
// when the walk completes or ctx is cancelled.
func Scan(ctx context.Context, opts Options) (<-chan Result, error) {
	if opts.RootDir == "" {
		opts.RootDir = "."
	}
	absRoot, err := filepath.Abs(opts.RootDir)
	if err != nil {
		return nil, errors.ValidationError("failed to resolve root directory", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, errors.StorageError("failed to stat root directory", err)
	}
	if !info.IsDir() {
		return nil, errors.ValidationError("root path is not a directory: "+absRoot, nil)
	}

	if opts.Pattern == "" {
		opts.Pattern = "*.md"
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make(chan Result, workers*4)

	go func() {
		defer close(results)

		paths := make(chan string, workers*4)
		g, gctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			defer close(paths)
			return walk(gctx, absRoot, opts, paths)
		})

		for i := 0; i < workers; i++ {
			g.Go(func() error {
				for path := range paths {
					fi, err := statFile(absRoot, path, opts.MaxFileSize)
					if err != nil || fi == nil {
						continue // unreadable or oversized, skip
					}
					select {
					case results <- Result{File: fi}:
					case <-gctx.Done():
						return gctx.Err()
					}
				}
				return nil
			})
		}

		if err := g.Wait(); err != nil && err != context.Canceled {
			results <- Result{Error: err}
		}
	}()

	return results, nil
}

// ScanAll collects a full scan into a slice. Order is not guaranteed;
// workers report files as they stat them.
func ScanAll(ctx context.Context, opts Options) ([]*FileInfo, error) {
	ch, err := Scan(ctx, opts)
	if err != nil {
		return nil, err
	}
	var files []*FileInfo
	for res := range ch {
		if res.Error != nil {
			return files, res.Error
		}
		files = append(files, res.File)
	}
	return files, nil
}

func walk(ctx context.Context, absRoot string, opts Options, paths chan<- string) error {
	return filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			return nil // unreadable entry, keep walking
		}

		if d.IsDir() {
			if path == absRoot {
				return nil
			}
			if shouldExcludeDir(d.Name(), opts.ExcludeDirs) {
				return filepath.SkipDir
			}
			return nil
		}

		if matched, _ := filepath.Match(opts.Pattern, d.Name()); !matched {
			return nil
		}

		select {
		case paths <- path:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	})
}

// shouldExcludeDir skips hidden directories and any name in excludes.
func shouldExcludeDir(name string, excludes []string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	for _, ex := range excludes {
		if name == ex {
			return true
		}
	}
	return false
}

func statFile(absRoot, path string, maxSize int64) (*FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > maxSize {
		return nil, nil
	}
	rel, err := filepath.Rel(absRoot, path)
	if err != nil {
		return nil, err
	}
	return &FileInfo{
		Path:    rel,
		AbsPath: path,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}
