package watcher

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// RebuildFunc performs one rebuild for a batch of changes.
type RebuildFunc func(ctx context.Context, b Batch) error

// Rebuilder runs a RebuildFunc for each batch, one at a time. Batches that
// queue up while a rebuild runs are merged into a single follow-up run.
type Rebuilder struct {
	fn      RebuildFunc
	OnError func(error)

	runs atomic.Int64
}

// NewRebuilder creates a Rebuilder.
func NewRebuilder(fn RebuildFunc) *Rebuilder {
	return &Rebuilder{fn: fn}
}

// Runs returns the number of rebuilds started.
func (r *Rebuilder) Runs() int64 { return r.runs.Load() }

// Run consumes batches until the channel closes (nil) or ctx is done (ctx.Err()).
// A failed rebuild is logged and reported through OnError; watching continues.
func (r *Rebuilder) Run(ctx context.Context, batches <-chan Batch) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case b, ok := <-batches:
			if !ok {
				return nil
			}
			b, open := drain(b, batches)
			r.rebuild(ctx, b)
			if !open {
				return nil
			}
		}
	}
}

// drain merges every batch already queued. open is false once the channel is closed.
func drain(b Batch, batches <-chan Batch) (merged Batch, open bool) {
	for {
		select {
		case next, ok := <-batches:
			if !ok {
				return b, false
			}
			b = b.Merge(next)
		default:
			return b, true
		}
	}
}

func (r *Rebuilder) rebuild(ctx context.Context, b Batch) {
	r.runs.Add(1)
	start := time.Now()
	slog.Info("watch_rebuild_started",
		slog.Int("changes", len(b.Events)),
		slog.Bool("gitignore_changed", b.Gitignore),
		slog.Bool("config_changed", b.Config))

	if err := r.fn(ctx, b); err != nil {
		slog.Error("watch_rebuild_failed",
			slog.String("error", err.Error()),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()))
		if r.OnError != nil {
			r.OnError(err)
		}
		return
	}
	slog.Info("watch_rebuild_complete", slog.Int64("duration_ms", time.Since(start).Milliseconds()))
}
