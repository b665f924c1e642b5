// Package indexer runs a complete index build: it takes the build lock,
// scans the project, tokenizes every admitted file and replaces the
// container on disk, reporting each stage through a ui.Renderer.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/Aman-CERP/tokindex/internal/config"
	tkerrors "github.com/Aman-CERP/tokindex/internal/errors"
	"github.com/Aman-CERP/tokindex/internal/index"
	"github.com/Aman-CERP/tokindex/internal/scanner"
	"github.com/Aman-CERP/tokindex/internal/store"
	"github.com/Aman-CERP/tokindex/internal/ui"
)

// RunConfig configures one build.
type RunConfig struct {
	// RootDir is the project root to index.
	RootDir string

	// IndexPath overrides the container location (default <root>/.tokindex/index.tkix).
	IndexPath string

	// Workers overrides build.workers when positive.
	Workers int

	// Extensions restricts the scan to these extensions.
	Extensions []string

	// Exclude adds patterns to paths.exclude.
	Exclude []string

	// WaitForLock blocks until a concurrent build finishes instead of failing.
	WaitForLock bool

	// LockRetry, when set and WaitForLock is false, retries a held lock
	// with backoff before giving up.
	LockRetry *tkerrors.RetryConfig
}

// Result is the outcome of a build.
type Result struct {
	Files     int
	Skipped   int
	Binary    int
	Empty     int
	Faulted   int
	Tokens    int
	Trigrams  int
	Bytes     int64
	IndexPath string
	IndexSize int64
	Duration  time.Duration
	Errors    int
	Warnings  int
	Stages    ui.StageTimings

	// Index is the freshly built index, already saved at IndexPath.
	Index *index.TokenIndex
}

// Dependencies are the injected collaborators of a Runner.
type Dependencies struct {
	// Renderer receives progress (required).
	Renderer ui.Renderer

	// Config is the loaded project configuration (required).
	Config *config.Config

	// Scanner is reused across runs so its gitignore cache survives (optional).
	Scanner *scanner.Scanner

	// Now stamps the index (optional, defaults to time.Now).
	Now func() time.Time
}

// Runner executes builds with progress reporting.
type Runner struct {
	renderer ui.Renderer
	config   *config.Config
	scanner  *scanner.Scanner
	now      func() time.Time
}

// NewRunner creates a Runner.
func NewRunner(deps Dependencies) (*Runner, error) {
	if deps.Renderer == nil {
		return nil, fmt.Errorf("renderer is required")
	}
	if deps.Config == nil {
		return nil, fmt.Errorf("config is required")
	}

	s := deps.Scanner
	if s == nil {
		var err error
		if s, err = scanner.New(); err != nil {
			return nil, fmt.Errorf("failed to create scanner: %w", err)
		}
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Runner{renderer: deps.Renderer, config: deps.Config, scanner: s, now: now}, nil
}

// Scanner returns the scanner shared by every run.
func (r *Runner) Scanner() *scanner.Scanner { return r.scanner }

// Run performs a full rebuild. The previous container stays in place until
// the new one has been written completely.
func (r *Runner) Run(ctx context.Context, cfg RunConfig) (*Result, error) {
	start := time.Now()

	root, err := filepath.Abs(cfg.RootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root: %w", err)
	}
	indexPath := cfg.IndexPath
	if indexPath == "" {
		indexPath = store.IndexPath(root)
	}

	lock := store.NewBuildLock(filepath.Dir(indexPath))
	switch {
	case cfg.WaitForLock:
		err = lock.Lock(ctx)
	case cfg.LockRetry != nil:
		err = tkerrors.Retry(ctx, *cfg.LockRetry, lock.TryLock)
	default:
		err = lock.TryLock()
	}
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			slog.Warn("build_lock_release_failed", slog.String("error", err.Error()))
		}
	}()

	res := &Result{IndexPath: indexPath}

	// Stage 1: scan
	scanStart := time.Now()
	files, err := r.scanFiles(ctx, root, cfg, res)
	if err != nil {
		return nil, err
	}
	res.Stages.Scan = time.Since(scanStart)

	// Stage 2: tokenize
	buildStart := time.Now()
	idx, summary, err := r.buildIndex(ctx, root, files, cfg)
	if err != nil {
		return nil, err
	}
	res.Stages.Build = time.Since(buildStart)
	for _, w := range summary.Warnings {
		r.renderer.AddError(ui.ErrorEvent{File: w.Path, Err: w.Err, IsWarn: true})
	}
	res.Warnings += len(summary.Warnings)

	// Stage 3: persist
	saveStart := time.Now()
	r.renderer.UpdateProgress(ui.ProgressEvent{
		Stage:   ui.StagePersisting,
		Message: fmt.Sprintf("Writing %s", indexPath),
	})
	size, err := store.Save(indexPath, idx)
	if err != nil {
		return nil, err
	}
	res.Stages.Save = time.Since(saveStart)

	res.Files = summary.Files
	res.Skipped = summary.Skipped
	res.Binary = summary.Binary
	res.Empty = summary.Empty
	res.Faulted = summary.Faulted
	res.Tokens = summary.Tokens
	res.Trigrams = summary.Trigrams
	res.Bytes = summary.Bytes
	res.IndexSize = size
	res.Index = idx
	res.Duration = time.Since(start)

	r.renderer.Complete(res.CompletionStats())

	filesPerSec := 0.0
	if secs := res.Stages.Build.Seconds(); secs > 0 {
		filesPerSec = float64(res.Files) / secs
	}
	slog.Info("index_complete",
		slog.String("path", root),
		slog.Int("files", res.Files),
		slog.Int("skipped", res.Skipped),
		slog.Int("binary", res.Binary),
		slog.Int("empty", res.Empty),
		slog.Int("faulted", res.Faulted),
		slog.Int("tokens", res.Tokens),
		slog.Int("trigrams", res.Trigrams),
		slog.Int64("bytes", res.Bytes),
		slog.Int64("index_bytes", res.IndexSize),
		slog.Int64("duration_total_ms", res.Duration.Milliseconds()),
		slog.Int64("duration_scan_ms", res.Stages.Scan.Milliseconds()),
		slog.Int64("duration_build_ms", res.Stages.Build.Milliseconds()),
		slog.Int64("duration_save_ms", res.Stages.Save.Milliseconds()),
		slog.Float64("files_per_sec", filesPerSec))

	return res, nil
}

// CompletionStats converts the result for a renderer.
func (res *Result) CompletionStats() ui.CompletionStats {
	return ui.CompletionStats{
		Files:     res.Files,
		Skipped:   res.Skipped,
		Binary:    res.Binary,
		Empty:     res.Empty,
		Faulted:   res.Faulted,
		Tokens:    res.Tokens,
		Trigrams:  res.Trigrams,
		Bytes:     res.Bytes,
		IndexSize: res.IndexSize,
		IndexPath: res.IndexPath,
		Duration:  res.Duration,
		Errors:    res.Errors,
		Warnings:  res.Warnings,
		Stages:    res.Stages,
	}
}

// scanFiles walks root and returns the files to admit, in walk order.
// Walk errors are reported as warnings.
func (r *Runner) scanFiles(ctx context.Context, root string, cfg RunConfig, res *Result) ([]*scanner.FileInfo, error) {
	r.renderer.UpdateProgress(ui.ProgressEvent{
		Stage:   ui.StageScanning,
		Message: fmt.Sprintf("Scanning %s...", root),
	})
	slog.Info("index_scan_started", slog.String("path", root))

	opts := r.config.ScanOptions(root)
	opts.Extensions = cfg.Extensions
	opts.ExcludePatterns = append(append([]string(nil), opts.ExcludePatterns...), cfg.Exclude...)

	results, err := r.scanner.Scan(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to start scanning: %w", err)
	}

	var files []*scanner.FileInfo
	for result := range results {
		if result.Error != nil {
			ev := ui.ErrorEvent{Err: result.Error, IsWarn: true}
			if result.File != nil {
				ev.File = result.File.Path
			}
			r.renderer.AddError(ev)
			res.Warnings++
			continue
		}
		files = append(files, result.File)
		r.renderer.UpdateProgress(ui.ProgressEvent{
			Stage:       ui.StageScanning,
			Current:     len(files),
			CurrentFile: result.File.Path,
		})
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	slog.Info("index_scan_complete", slog.Int("files", len(files)))
	return files, nil
}

// buildIndex feeds files to the builder in scan order, so FileIds follow the walk.
func (r *Runner) buildIndex(ctx context.Context, root string, files []*scanner.FileInfo, cfg RunConfig) (*index.TokenIndex, *index.BuildSummary, error) {
	total := len(files)
	r.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageIndexing, Total: total})

	workers := r.config.Build.Workers
	if cfg.Workers > 0 {
		workers = cfg.Workers
	}
	b := index.NewBuilder(index.BuilderOptions{
		Workers: workers,
		Policy:  r.config.Policy(),
		Root:    root,
		Now:     r.now,
		OnFileDone: func(done int, path string) {
			r.renderer.UpdateProgress(ui.ProgressEvent{
				Stage:       ui.StageIndexing,
				Current:     done,
				Total:       total,
				CurrentFile: path,
			})
		},
	})

	docs := make(chan index.Document)
	go func() {
		defer close(docs)
		for _, f := range files {
			select {
			case docs <- index.FileDocument(f.Path, f.AbsPath):
			case <-ctx.Done():
				return
			}
		}
	}()

	return b.Build(ctx, docs)
}
