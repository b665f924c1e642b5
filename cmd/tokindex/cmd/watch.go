package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/tokindex/internal/config"
	"github.com/Aman-CERP/tokindex/internal/indexer"
	"github.com/Aman-CERP/tokindex/internal/output"
	"github.com/Aman-CERP/tokindex/internal/ui"
	"github.com/Aman-CERP/tokindex/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [path]",
		Short: "Rebuild the index whenever project files change",
		Long: `Build the index, then watch the project and rebuild it after each
burst of changes settles (watch.debounce, default 500ms).

Every rebuild is a complete build; the container on disk is always a
finished snapshot. Changes to .gitignore or the project config are picked
up by the next rebuild. Stop with Ctrl+C.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, cmd, args)
		},
	}
	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, args []string) error {
	root, err := resolveRoot(args)
	if err != nil {
		return err
	}
	cfg, err := config.Load(root)
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	renderer := ui.NewPlainRenderer(ui.NewConfig(cmd.OutOrStdout(),
		ui.WithNoColor(ui.DetectNoColor()),
		ui.WithProjectDir(root),
	))
	runner, err := indexer.NewRunner(indexer.Dependencies{Renderer: renderer, Config: cfg})
	if err != nil {
		return err
	}

	run := func(ctx context.Context) error {
		_, err := runner.Run(ctx, indexer.RunConfig{RootDir: root, WaitForLock: true})
		return err
	}
	if err := run(ctx); err != nil {
		return err
	}

	w, err := watcher.New(watcher.Options{
		DebounceWindow: cfg.DebounceDuration(),
		IgnorePatterns: cfg.Paths.Exclude,
	})
	if err != nil {
		return err
	}

	rebuilder := watcher.NewRebuilder(func(ctx context.Context, b watcher.Batch) error {
		if b.Config {
			newCfg, err := config.Load(root)
			if err != nil {
				return fmt.Errorf("reload config: %w", err)
			}
			r, err := indexer.NewRunner(indexer.Dependencies{
				Renderer: renderer,
				Config:   newCfg,
				Scanner:  runner.Scanner(),
			})
			if err != nil {
				return err
			}
			runner = r
		}
		if b.Gitignore {
			runner.Scanner().InvalidateGitignoreCache()
		}
		out.Newline()
		out.Statusf("🔄", "%d change%s, rebuilding", len(b.Events), plural(len(b.Events)))
		return run(ctx)
	})
	rebuilder.OnError = func(err error) {
		out.Warningf("rebuild failed: %v", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.Start(gctx, root)
	})
	g.Go(func() error {
		return rebuilder.Run(gctx, w.Events())
	})
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case err, ok := <-w.Errors():
				if !ok {
					return nil
				}
				slog.Warn("watch_error", slog.String("error", err.Error()))
			}
		}
	})
	g.Go(func() error {
		select {
		case <-w.Ready():
			out.Statusf("👀", "Watching %s (Ctrl+C to stop)", root)
		case <-gctx.Done():
		}
		return nil
	})

	err = g.Wait()
	_ = w.Stop()
	if errors.Is(err, context.Canceled) {
		out.Newline()
		out.Status("", "Stopped.")
		return nil
	}
	return err
}
