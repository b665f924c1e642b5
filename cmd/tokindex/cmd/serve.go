package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/tokindex/internal/config"
	"github.com/Aman-CERP/tokindex/internal/logging"
	"github.com/Aman-CERP/tokindex/internal/mcp"
	"github.com/Aman-CERP/tokindex/internal/telemetry"
)

func newServeCmd() *cobra.Command {
	var (
		transport string
		indexPath string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the Model Context Protocol server for the project in the working
directory. Clients get the search, glob and index_status tools, and every
indexed file as a resource.

stdout carries the protocol stream, so nothing else is printed there; logs
go to ~/.tokindex/logs/tokindex.log. A container rebuilt by 'tokindex index'
or 'tokindex watch' is picked up on the next query.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, transport, indexPath)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "", "Transport: stdio (default: server.transport)")
	cmd.Flags().StringVar(&indexPath, "index", "", "Serve this container instead of .tokindex/index.tkix")

	return cmd
}

func runServe(ctx context.Context, transport, indexFlag string) error {
	root, err := config.FindProjectRoot(".")
	if err != nil {
		return err
	}
	cfg, err := config.Load(root)
	if err != nil {
		return err
	}
	if transport == "" {
		transport = cfg.Server.Transport
	}
	indexPath, err := resolveIndexPath(indexFlag, root)
	if err != nil {
		return err
	}

	level := cfg.Server.LogLevel
	if debugMode {
		level = "debug"
	}
	prev := slog.Default()
	cleanup, err := logging.Install(logging.ServeConfig(level))
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer func() {
		cleanup()
		slog.SetDefault(prev)
	}()

	var metrics *telemetry.QueryMetrics
	if cfg.Telemetry.Enabled {
		dbPath := telemetry.DBPath(filepath.Dir(indexPath))
		st, err := telemetry.OpenSQLiteMetricsStore(dbPath)
		if err != nil {
			slog.Warn("telemetry_unavailable", slog.String("path", dbPath), slog.String("error", err.Error()))
		} else {
			metrics = telemetry.NewQueryMetrics(st)
			defer func() {
				if err := metrics.Close(); err != nil {
					slog.Warn("telemetry_flush_failed", slog.String("error", err.Error()))
				}
				_ = st.Close()
			}()
		}
	}

	srv, err := mcp.NewServer(mcp.Options{
		RootPath:  root,
		IndexPath: indexPath,
		Config:    cfg,
		Metrics:   metrics,
	})
	if err != nil {
		return err
	}

	// without a container the tools still answer, index_status explains why
	if n, err := srv.RegisterResources(ctx); err != nil {
		slog.Warn("resources_not_registered", slog.String("error", err.Error()))
	} else {
		slog.Debug("resources_registered", slog.Int("count", n))
	}

	return srv.Serve(ctx, transport)
}
