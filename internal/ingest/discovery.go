package ingest

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/meridian-dev/meridian/internal/gitignore"
	"github.com/meridian-dev/meridian/internal/merrors"
)

// Discover walks cfg.Roots in parallel — one goroutine per root, matching
// spec.md §4.6 Phase 1 — skipping hidden entries, oversized files, and
// anything excluded by include/exclude globs or .gitignore, and returns the
// aggregated file list. Grounded on the teacher's Scanner.scan, generalized
// from a single root to many and from a streamed channel to a single
// discovery-phase result (the streaming happens in the enqueue phase
// instead).
func Discover(ctx context.Context, cfg Config) ([]DiscoveredFile, error) {
	cfg = cfg.withDefaults()

	var (
		mu  sync.Mutex
		all []DiscoveredFile
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, root := range cfg.Roots {
		root := root
		g.Go(func() error {
			found, err := discoverRoot(gctx, root, cfg)
			if err != nil {
				return err
			}
			mu.Lock()
			all = append(all, found...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return all, nil
}

func discoverRoot(ctx context.Context, root string, cfg Config) ([]DiscoveredFile, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, merrors.Invalid(merrors.ErrCodeInvalidInput, "invalid ingestion root: "+root)
	}

	matcher := gitignore.New()
	if cfg.RespectGitignore {
		_ = matcher.AddFromFile(filepath.Join(absRoot, ".gitignore"), "")
	}

	var out []DiscoveredFile
	walkErr := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err != nil {
			return nil
		}

		relPath, err := filepath.Rel(absRoot, path)
		if err != nil || relPath == "." {
			return nil
		}
		relSlash := filepath.ToSlash(relPath)

		if isHiddenEntry(d.Name()) && relPath != "." {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if cfg.RespectGitignore && matcher.Match(relSlash, true) {
				return fs.SkipDir
			}
			if matchesAny(relSlash, cfg.ExcludePatterns) {
				return fs.SkipDir
			}
			return nil
		}

		if cfg.RespectGitignore && matcher.Match(relSlash, false) {
			return nil
		}
		if matchesAny(relSlash, cfg.ExcludePatterns) {
			return nil
		}
		if len(cfg.IncludePatterns) > 0 && !matchesAny(relSlash, cfg.IncludePatterns) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.Size() > cfg.MaxFileSize {
			return nil
		}

		out = append(out, DiscoveredFile{
			Path:    "/" + relSlash,
			AbsPath: path,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if walkErr != nil {
		return nil, merrors.Transient(merrors.ErrCodeStorageTimeout, "failed to walk ingestion root: "+root, walkErr)
	}
	return out, nil
}

func isHiddenEntry(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}

func matchesAny(path string, patterns []string) bool {
	base := filepath.Base(path)
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, path); ok {
			return true
		}
		if ok, _ := filepath.Match(p, base); ok {
			return true
		}
	}
	return false
}
