package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Aman-CERP/tokindex/internal/config"
	"github.com/Aman-CERP/tokindex/internal/gitignore"
	"github.com/Aman-CERP/tokindex/internal/scanner"
)

// Watcher watches a directory tree with fsnotify and emits debounced batches.
type Watcher struct {
	fsw            *fsnotify.Watcher
	debouncer      *Debouncer
	ignore         *gitignore.Matcher
	events         chan Batch
	errors         chan error
	ready          chan struct{}
	stopCh         chan struct{}
	rootPath       string
	opts           Options
	mu             sync.RWMutex
	stopped        bool
	droppedBatches atomic.Uint64
}

// New creates a Watcher.
func New(opts Options) (*Watcher, error) {
	opts = opts.WithDefaults()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	return &Watcher{
		fsw:       fsw,
		debouncer: NewDebouncer(opts.DebounceWindow),
		ignore:    gitignore.New(),
		events:    make(chan Batch, opts.EventBufferSize),
		errors:    make(chan error, 10),
		ready:     make(chan struct{}),
		stopCh:    make(chan struct{}),
		opts:      opts,
	}, nil
}

// Start watches path recursively and blocks until Stop is called or ctx is done.
func (w *Watcher) Start(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}
	w.mu.Lock()
	w.rootPath = absPath
	w.mu.Unlock()

	w.loadGitignore()
	go w.forwardDebounced()

	if err := w.addRecursive(absPath); err != nil {
		return fmt.Errorf("add directories to watcher: %w", err)
	}
	close(w.ready)
	slog.Info("watch_started", slog.String("path", absPath))

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

// Ready is closed once every directory is being watched.
func (w *Watcher) Ready() <-chan struct{} { return w.ready }

func (w *Watcher) handleEvent(event fsnotify.Event) {
	rel, err := filepath.Rel(w.rootPath, event.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	isDir := false
	if info, err := os.Stat(event.Name); err == nil {
		isDir = info.IsDir()
	}
	if w.shouldIgnore(rel, isDir) {
		return
	}

	now := time.Now()
	switch base := filepath.Base(event.Name); base {
	case ".gitignore":
		w.loadGitignore()
		w.debouncer.Add(FileEvent{Path: rel, Operation: OpGitignoreChange, Timestamp: now})
		return
	case config.ProjectConfigFile, config.ProjectConfigFileAlt:
		w.debouncer.Add(FileEvent{Path: rel, Operation: OpConfigChange, Timestamp: now})
		return
	}

	var op Operation
	switch {
	case event.Op.Has(fsnotify.Create):
		op = OpCreate
		if isDir {
			// files may already exist inside a directory moved into place
			if err := w.addRecursive(event.Name); err != nil {
				w.emitError(err)
			}
		}
	case event.Op.Has(fsnotify.Write):
		op = OpModify
	case event.Op.Has(fsnotify.Remove):
		op = OpDelete
	case event.Op.Has(fsnotify.Rename):
		op = OpRename
	default:
		// chmod
		return
	}
	w.debouncer.Add(FileEvent{Path: rel, Operation: op, IsDir: isDir, Timestamp: now})
}

func (w *Watcher) forwardDebounced() {
	for events := range w.debouncer.Output() {
		w.emit(NewBatch(events))
	}
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		rel, _ := filepath.Rel(w.rootPath, p)
		rel = filepath.ToSlash(rel)
		if rel != "." && w.shouldIgnore(rel, true) {
			return filepath.SkipDir
		}
		return w.fsw.Add(p)
	})
}

func (w *Watcher) shouldIgnore(rel string, isDir bool) bool {
	if rel == "." || rel == "" {
		return true
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.ignore.Match(rel, isDir)
}

// loadGitignore rebuilds the matcher from the default exclusions, the
// configured patterns and every .gitignore under the root.
func (w *Watcher) loadGitignore() {
	m := gitignore.New()
	for _, p := range scanner.DefaultExcludes {
		m.AddPattern(p)
	}
	for _, p := range w.opts.IgnorePatterns {
		m.AddPattern(p)
	}

	_ = filepath.WalkDir(w.rootPath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			slog.Warn("skipping directory in gitignore scan",
				slog.String("path", p),
				slog.String("error", err.Error()))
			return nil
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() != ".gitignore" {
			return nil
		}
		base, _ := filepath.Rel(w.rootPath, filepath.Dir(p))
		if base == "." {
			base = ""
		}
		if err := m.AddFromFile(p, filepath.ToSlash(base)); err != nil {
			slog.Warn("failed to read .gitignore",
				slog.String("path", p),
				slog.String("error", err.Error()))
		}
		return nil
	})

	w.mu.Lock()
	w.ignore = m
	w.mu.Unlock()
}

func (w *Watcher) emit(b Batch) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return
	}
	select {
	case w.events <- b:
	default:
		// a queued batch already triggers a full rebuild
		n := w.droppedBatches.Add(1)
		slog.Warn("event buffer full, dropping batch",
			slog.Int("batch_size", len(b.Events)),
			slog.Uint64("total_dropped_batches", n))
	}
}

func (w *Watcher) emitError(err error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return
	}
	select {
	case w.errors <- err:
	default:
	}
}

// Stop stops watching and closes Events and Errors. Safe to call more than once.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	close(w.events)
	close(w.errors)
	w.mu.Unlock()

	w.debouncer.Stop()
	return w.fsw.Close()
}

// Events returns the channel of debounced batches.
func (w *Watcher) Events() <-chan Batch { return w.events }

// Errors returns non-fatal watcher errors.
func (w *Watcher) Errors() <-chan error { return w.errors }

// DroppedBatches returns how many batches were dropped on a full buffer.
func (w *Watcher) DroppedBatches() uint64 { return w.droppedBatches.Load() }

// RootPath returns the watched root.
func (w *Watcher) RootPath() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.rootPath
}
