// Package cmd provides the CLI commands for tokindex.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	tkerrors "github.com/Aman-CERP/tokindex/internal/errors"
	"github.com/Aman-CERP/tokindex/internal/logging"
	"github.com/Aman-CERP/tokindex/internal/profiling"
	"github.com/Aman-CERP/tokindex/pkg/version"
)

// Profiling flags
var (
	profileCPU   string
	profileMem   string
	profileTrace string
	profiler     = profiling.NewProfiler()
	stopProfile  func() error
)

// Debug logging flag
var (
	debugMode      bool
	loggingCleanup func()
	prevLogger     *slog.Logger
)

// NewRootCmd creates the root command for the tokindex CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tokindex",
		Short: "Token-level inverted index for source trees",
		Long: `tokindex builds a compact inverted index from the tokens of every file
in a project and answers "which files contain these identifiers" in
microseconds.

  tokindex index            build .tokindex/index.tkix for the project
  tokindex search Foo bar   files containing both tokens
  tokindex serve            answer the same queries over MCP (stdio)`,
		Version:       version.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.SetVersionTemplate("tokindex version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&profileCPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileMem, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profileTrace, "profile-trace", "", "Write execution trace to file")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.tokindex/logs/")

	cmd.PersistentPreRunE = startProfilingAndLogging
	cmd.PersistentPostRunE = stopProfilingAndLogging

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newGlobCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newLogsCmd())

	return cmd
}

// startProfilingAndLogging starts debug logging and the requested profiles.
func startProfilingAndLogging(cmd *cobra.Command, _ []string) error {
	// serve installs its own file-only logger
	if debugMode && cmd.Name() != "serve" {
		prevLogger = slog.Default()
		cleanup, err := logging.Install(logging.DebugConfig())
		if err != nil {
			return fmt.Errorf("failed to setup debug logging: %w", err)
		}
		loggingCleanup = cleanup
		slog.Info("debug_logging_enabled",
			slog.String("log_file", logging.DefaultLogPath()),
			slog.String("version", version.Version),
			slog.String("command", cmd.Name()))
	}

	opts := profiling.Options{CPUPath: profileCPU, MemPath: profileMem, TracePath: profileTrace}
	if opts.Enabled() {
		stop, err := profiler.Start(opts)
		if err != nil {
			return fmt.Errorf("failed to start profiling: %w", err)
		}
		stopProfile = stop
	}
	return nil
}

// stopProfilingAndLogging stops profiling, writes the heap profile if
// requested and closes the debug log.
func stopProfilingAndLogging(_ *cobra.Command, _ []string) error {
	var err error
	if stopProfile != nil {
		if err = stopProfile(); err != nil {
			err = fmt.Errorf("failed to write profile: %w", err)
		}
		stopProfile = nil
	}

	if loggingCleanup != nil {
		slog.Info("debug_logging_stopped", slog.String("memory", profiling.MemSummary()))
		loggingCleanup()
		loggingCleanup = nil
		slog.SetDefault(prevLogger)
	}
	return err
}

// Execute runs the root command and prints any error to stderr.
func Execute() error {
	root := NewRootCmd()
	err := root.Execute()
	if err != nil {
		// post-run hooks are skipped when a command fails
		_ = stopProfilingAndLogging(root, nil)
		fmt.Fprint(root.ErrOrStderr(), tkerrors.FormatForCLI(err))
	}
	return err
}
