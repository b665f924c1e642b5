package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// PlainRenderer prints one line per event, without ANSI codes.
type PlainRenderer struct {
	mu  sync.Mutex
	out io.Writer

	// every progressEvery-th update of a counted stage is printed
	progressEvery int
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{out: cfg.Output, progressEvery: 1}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(ctx context.Context) error { return nil }

// UpdateProgress implements Renderer. Format: "[STAGE] current/total - detail".
func (r *PlainRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg := event.Message
	if msg == "" {
		msg = event.CurrentFile
	}

	switch {
	case event.Total > 0:
		if event.Current%r.progressEvery != 0 && event.Current != event.Total {
			return
		}
		_, _ = fmt.Fprintf(r.out, "[%s] %d/%d - %s\n", event.Stage.Icon(), event.Current, event.Total, msg)
	case msg != "":
		_, _ = fmt.Fprintf(r.out, "[%s] %s\n", event.Stage.Icon(), msg)
	}
}

// AddError implements Renderer.
func (r *PlainRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prefix := "ERROR"
	if event.IsWarn {
		prefix = "WARN"
	}
	if event.File != "" {
		_, _ = fmt.Fprintf(r.out, "%s: %s: %v\n", prefix, event.File, event.Err)
	} else {
		_, _ = fmt.Fprintf(r.out, "%s: %v\n", prefix, event.Err)
	}
}

// Complete implements Renderer.
func (r *PlainRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, _ = fmt.Fprintf(r.out, "Complete: %s files, %s tokens, %s trigrams indexed in %s",
		humanize.Comma(int64(stats.Files)), humanize.Comma(int64(stats.Tokens)),
		humanize.Comma(int64(stats.Trigrams)), stats.Duration.Round(100*time.Millisecond))
	if stats.Errors > 0 || stats.Warnings > 0 {
		_, _ = fmt.Fprintf(r.out, " (%d errors, %d warnings)", stats.Errors, stats.Warnings)
	}
	_, _ = fmt.Fprintln(r.out)

	if stats.Skipped > 0 || stats.Binary > 0 || stats.Empty > 0 || stats.Faulted > 0 {
		_, _ = fmt.Fprintf(r.out, "Files: %d skipped, %d binary, %d empty, %d faulted\n",
			stats.Skipped, stats.Binary, stats.Empty, stats.Faulted)
	}
	if stats.IndexPath != "" {
		_, _ = fmt.Fprintf(r.out, "Index: %s (%s)\n", stats.IndexPath, humanize.IBytes(uint64(stats.IndexSize)))
	}

	if s := stats.Stages; s.Scan > 0 || s.Build > 0 {
		_, _ = fmt.Fprintln(r.out, "Stage Breakdown:")
		_, _ = fmt.Fprintf(r.out, "  Scan:  %s\n", s.Scan.Round(time.Millisecond))
		_, _ = fmt.Fprintf(r.out, "  Build: %s (%s read)\n", s.Build.Round(time.Millisecond), humanize.IBytes(uint64(stats.Bytes)))
		_, _ = fmt.Fprintf(r.out, "  Save:  %s\n", s.Save.Round(time.Millisecond))
	}
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error { return nil }

var _ Renderer = (*PlainRenderer)(nil)
