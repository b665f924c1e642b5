package mcp

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/Aman-CERP/tokindex/internal/search"
	"github.com/Aman-CERP/tokindex/internal/store"
)

// indexSource serves the engine for one container path. The container is
// loaded on first use and reloaded whenever its size or modification time
// changes, so a concurrent 'tokindex index' or 'watch' is picked up without
// restarting the server.
type indexSource struct {
	path      string
	engineCfg search.EngineConfig

	mu     sync.Mutex
	engine *search.Engine
	loaded store.Info
}

func newIndexSource(path string, cfg search.EngineConfig) *indexSource {
	return &indexSource{path: path, engineCfg: cfg}
}

// Engine returns an engine over the current container and its file info.
func (s *indexSource) Engine() (*search.Engine, store.Info, error) {
	info, err := store.Stat(s.path)
	if err != nil {
		return nil, store.Info{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.engine != nil && info.Size == s.loaded.Size && info.ModTime.Equal(s.loaded.ModTime) {
		return s.engine, s.loaded, nil
	}

	idx, err := store.Load(s.path)
	if err != nil {
		return nil, store.Info{}, err
	}
	engine, err := search.NewEngine(idx, s.engineCfg)
	if err != nil {
		return nil, store.Info{}, fmt.Errorf("create search engine: %w", err)
	}

	reload := s.engine != nil
	s.engine = engine
	s.loaded = *info
	slog.Info("index_loaded",
		slog.String("path", s.path),
		slog.Bool("reload", reload),
		slog.Int("files", idx.FileCount()),
		slog.Int64("bytes", info.Size))
	return s.engine, s.loaded, nil
}
