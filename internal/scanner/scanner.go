package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Aman-CERP/tokindex/internal/gitignore"
)

// gitignoreCacheSize bounds the number of per-directory matchers kept alive.
const gitignoreCacheSize = 1000

// Scanner discovers indexable files. One Scanner may run several scans; the
// parsed .gitignore files are cached between them.
type Scanner struct {
	// nil values record directories without a .gitignore
	gitignoreCache *lru.Cache[string, *gitignore.Matcher]
}

// New creates a Scanner.
func New() (*Scanner, error) {
	cache, err := lru.New[string, *gitignore.Matcher](gitignoreCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create gitignore cache: %w", err)
	}
	return &Scanner{gitignoreCache: cache}, nil
}

// walkRules are the compiled filters of one scan.
type walkRules struct {
	exclude    *gitignore.Matcher
	include    *gitignore.Matcher
	extensions map[string]bool
	maxSize    int64
	opts       *ScanOptions
}

func newWalkRules(opts *ScanOptions) *walkRules {
	r := &walkRules{
		exclude:    gitignore.New(),
		extensions: normalizeExtensions(opts.Extensions),
		maxSize:    opts.MaxFileSize,
		opts:       opts,
	}
	if r.maxSize <= 0 {
		r.maxSize = DefaultMaxFileSize
	}
	for _, group := range [][]string{DefaultExcludes, SensitivePatterns, opts.ExcludePatterns} {
		for _, p := range group {
			r.exclude.AddPattern(p)
		}
	}
	if len(opts.IncludePatterns) > 0 {
		r.include = gitignore.New()
		for _, p := range opts.IncludePatterns {
			r.include.AddPattern(p)
		}
	}
	return r
}

// Scan walks the root and streams every indexable file in lexical order.
// The channel is closed when the walk ends or ctx is cancelled.
func (s *Scanner) Scan(ctx context.Context, opts *ScanOptions) (<-chan ScanResult, error) {
	if opts == nil {
		opts = &ScanOptions{}
	}
	rootDir := opts.RootDir
	if rootDir == "" {
		rootDir = "."
	}

	absRoot, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to stat root directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path is not a directory: %s", absRoot)
	}

	rules := newWalkRules(opts)
	results := make(chan ScanResult, 256)
	go func() {
		defer close(results)
		s.walk(ctx, absRoot, rules, results)
	}()
	return results, nil
}

// Collect drains a scan stream into a file list and the errors it carried.
func Collect(results <-chan ScanResult) ([]*FileInfo, []error) {
	var (
		files []*FileInfo
		errs  []error
	)
	for r := range results {
		if r.Error != nil {
			errs = append(errs, r.Error)
			continue
		}
		files = append(files, r.File)
	}
	return files, errs
}

func (s *Scanner) walk(ctx context.Context, absRoot string, rules *walkRules, results chan<- ScanResult) {
	err := filepath.WalkDir(absRoot, func(p string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			// unreadable directories are skipped, not fatal
			slog.Debug("scan_entry_skipped", slog.String("path", p), slog.String("error", err.Error()))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(absRoot, p)
		if err != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if s.excluded(rel, true, absRoot, rules) {
				return filepath.SkipDir
			}
			return nil
		}

		info, ok := rules.fileInfo(p, d)
		if !ok {
			return nil
		}
		if s.excluded(rel, false, absRoot, rules) || !rules.included(rel) {
			return nil
		}

		select {
		case results <- ScanResult{File: &FileInfo{Path: rel, AbsPath: p, Size: info.Size(), ModTime: info.ModTime()}}:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	})

	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		select {
		case results <- ScanResult{Error: err}:
		case <-ctx.Done():
		}
	}
}

// fileInfo resolves regular files and, when enabled, symlinks to regular files.
func (r *walkRules) fileInfo(p string, d fs.DirEntry) (fs.FileInfo, bool) {
	var (
		info fs.FileInfo
		err  error
	)
	switch {
	case d.Type().IsRegular():
		info, err = d.Info()
	case d.Type()&fs.ModeSymlink != 0 && r.opts.FollowSymlinks:
		info, err = os.Stat(p)
	default:
		return nil, false
	}
	if err != nil || !info.Mode().IsRegular() || info.Size() > r.maxSize {
		return nil, false
	}
	return info, true
}

func (r *walkRules) included(rel string) bool {
	if r.extensions != nil && !r.extensions[strings.ToLower(path.Ext(rel))] {
		return false
	}
	return r.include == nil || r.include.Match(rel, false)
}

func (s *Scanner) excluded(rel string, isDir bool, absRoot string, rules *walkRules) bool {
	if rules.exclude.Match(rel, isDir) {
		return true
	}
	return rules.opts.RespectGitignore && s.isGitignored(rel, isDir, absRoot)
}

// isGitignored checks the root .gitignore and every nested one on the way
// down to rel. Each nested matcher carries its directory as base.
func (s *Scanner) isGitignored(rel string, isDir bool, absRoot string) bool {
	if m := s.matcherFor(absRoot, ""); m != nil && m.Match(rel, isDir) {
		return true
	}

	dir := path.Dir(rel)
	if dir == "." {
		return false
	}
	base := ""
	for _, part := range strings.Split(dir, "/") {
		if base == "" {
			base = part
		} else {
			base += "/" + part
		}
		m := s.matcherFor(filepath.Join(absRoot, filepath.FromSlash(base)), base)
		if m != nil && m.Match(rel, isDir) {
			return true
		}
	}
	return false
}

func (s *Scanner) matcherFor(dir, base string) *gitignore.Matcher {
	if m, ok := s.gitignoreCache.Get(dir); ok {
		return m
	}

	var m *gitignore.Matcher
	file := filepath.Join(dir, ".gitignore")
	if _, err := os.Stat(file); err == nil {
		m = gitignore.New()
		if err := m.AddFromFile(file, base); err != nil {
			slog.Warn("gitignore_unreadable", slog.String("path", file), slog.String("error", err.Error()))
			m = nil
		}
	}
	s.gitignoreCache.Add(dir, m)
	return m
}

// InvalidateGitignoreCache drops every cached matcher. The watcher calls it
// when a .gitignore changes.
func (s *Scanner) InvalidateGitignoreCache() {
	s.gitignoreCache.Purge()
}
