package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Aman-CERP/tokindex/internal/config"
	tkerrors "github.com/Aman-CERP/tokindex/internal/errors"
	"github.com/Aman-CERP/tokindex/internal/search"
	"github.com/Aman-CERP/tokindex/internal/store"
	"github.com/Aman-CERP/tokindex/internal/telemetry"
)

// resolveRoot returns the absolute project directory: the first argument
// when given, otherwise the project enclosing the working directory.
func resolveRoot(args []string) (string, error) {
	if len(args) == 0 || args[0] == "" {
		return config.FindProjectRoot(".")
	}

	root, err := filepath.Abs(args[0])
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return "", tkerrors.New(tkerrors.ErrCodeFileNotFound, fmt.Sprintf("path not found: %s", args[0]), err)
	}
	if !info.IsDir() {
		return "", tkerrors.ValidationError(fmt.Sprintf("not a directory: %s", args[0]), nil)
	}
	return root, nil
}

// resolveIndexPath returns the container path, --index taking precedence.
func resolveIndexPath(flag, root string) (string, error) {
	if flag == "" {
		return store.IndexPath(root), nil
	}
	p, err := filepath.Abs(flag)
	if err != nil {
		return "", fmt.Errorf("failed to resolve index path: %w", err)
	}
	return p, nil
}

// queryContext is what the query commands share: configuration, the
// loaded engine and optional telemetry.
type queryContext struct {
	root      string
	indexPath string
	config    *config.Config
	engine    *search.Engine
	metrics   *telemetry.QueryMetrics
	closers   []func()
}

// openQueryContext loads the configuration and the container. When record
// is set and telemetry is enabled, every query is recorded to the
// telemetry database next to the container.
func openQueryContext(indexFlag string, record bool) (*queryContext, error) {
	root, err := config.FindProjectRoot(".")
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}
	indexPath, err := resolveIndexPath(indexFlag, root)
	if err != nil {
		return nil, err
	}

	idx, err := store.Load(indexPath)
	if err != nil {
		return nil, err
	}

	qc := &queryContext{root: root, indexPath: indexPath, config: cfg}
	if record && cfg.Telemetry.Enabled {
		qc.openMetrics()
	}

	engineCfg := search.EngineConfig{CacheSize: cfg.Search.CacheSize}
	if qc.metrics != nil {
		metrics := qc.metrics
		engineCfg.OnQuery = func(res *search.Result) {
			metrics.Record(telemetry.EventFromResult(res))
		}
	}
	qc.engine, err = search.NewEngine(idx, engineCfg)
	if err != nil {
		qc.Close()
		return nil, err
	}
	return qc, nil
}

// openMetrics enables telemetry. Failures are logged and telemetry stays off.
func (qc *queryContext) openMetrics() {
	dbPath := telemetry.DBPath(filepath.Dir(qc.indexPath))
	st, err := telemetry.OpenSQLiteMetricsStore(dbPath)
	if err != nil {
		slog.Warn("telemetry_unavailable", slog.String("path", dbPath), slog.String("error", err.Error()))
		return
	}
	// flushed once on Close; a CLI query never lives long enough for the ticker
	qc.metrics = telemetry.NewQueryMetricsWithConfig(st, telemetry.QueryMetricsConfig{})
	qc.closers = append(qc.closers, func() {
		if err := qc.metrics.Close(); err != nil {
			slog.Warn("telemetry_flush_failed", slog.String("error", err.Error()))
		}
		_ = st.Close()
	})
}

// Close flushes telemetry and releases resources.
func (qc *queryContext) Close() {
	for i := len(qc.closers) - 1; i >= 0; i-- {
		qc.closers[i]()
	}
	qc.closers = nil
}
