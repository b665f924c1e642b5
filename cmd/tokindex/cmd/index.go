package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/tokindex/internal/config"
	tkerrors "github.com/Aman-CERP/tokindex/internal/errors"
	"github.com/Aman-CERP/tokindex/internal/indexer"
	"github.com/Aman-CERP/tokindex/internal/ui"
)

// indexOptions holds CLI flags for index.
type indexOptions struct {
	noTUI      bool
	workers    int
	exclude    []string
	extensions []string
	indexPath  string
}

func newIndexCmd() *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Build the token index for a project",
		Long: `Scan a project, tokenize every admitted file and write the index
container to .tokindex/index.tkix.

The previous container is replaced only once the new one is complete, so
concurrent searches keep working while a build runs. Only one build per
project runs at a time.

Examples:
  tokindex index
  tokindex index ~/src/project --no-tui
  tokindex index -e .go -e .md -x 'testdata/**'`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Ctrl+C cancels the build and leaves the old container in place
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runIndex(ctx, cmd, args, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.noTUI, "no-tui", false, "Plain progress output instead of the interactive display")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", 0, "Tokenizer workers (default: build.workers or number of CPUs)")
	cmd.Flags().StringArrayVarP(&opts.exclude, "exclude", "x", nil, "Exclude paths matching a gitignore pattern (repeatable)")
	cmd.Flags().StringArrayVarP(&opts.extensions, "ext", "e", nil, "Only index files with this extension (repeatable)")
	cmd.Flags().StringVar(&opts.indexPath, "index", "", "Write the container here instead of .tokindex/index.tkix")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, args []string, opts indexOptions) error {
	root, err := resolveRoot(args)
	if err != nil {
		return err
	}
	cfg, err := config.Load(root)
	if err != nil {
		return err
	}
	indexPath := ""
	if opts.indexPath != "" {
		if indexPath, err = resolveIndexPath(opts.indexPath, root); err != nil {
			return err
		}
	}

	renderer := ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(),
		ui.WithForcePlain(opts.noTUI),
		ui.WithNoColor(ui.DetectNoColor()),
		ui.WithProjectDir(root),
	))
	if err := renderer.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = renderer.Stop() }()

	runner, err := indexer.NewRunner(indexer.Dependencies{Renderer: renderer, Config: cfg})
	if err != nil {
		return err
	}
	lockRetry := tkerrors.DefaultRetryConfig()
	_, err = runner.Run(ctx, indexer.RunConfig{
		RootDir:    root,
		IndexPath:  indexPath,
		Workers:    opts.workers,
		Extensions: opts.extensions,
		Exclude:    opts.exclude,
		LockRetry:  &lockRetry,
	})
	return err
}
