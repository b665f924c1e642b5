package store

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	mmap "github.com/blevesearch/mmap-go"

	tkerrors "github.com/Aman-CERP/tokindex/internal/errors"
	"github.com/Aman-CERP/tokindex/internal/index"
)

const (
	// DataDirName is the per-project directory holding the container.
	DataDirName = ".tokindex"

	// IndexFileName is the container file name inside the data directory.
	IndexFileName = "index.tkix"

	// LockFileName guards concurrent builds of one container.
	LockFileName = "index.lock"
)

// DataDir returns the data directory for a project root.
func DataDir(root string) string {
	return filepath.Join(root, DataDirName)
}

// IndexPath returns the default container path for a project root.
func IndexPath(root string) string {
	return filepath.Join(DataDir(root), IndexFileName)
}

// Info describes a container on disk without decoding it.
type Info struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// Exists reports whether a container file is present at path.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Stat returns size and modification time of the container.
func Stat(path string) (*Info, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, tkerrors.IndexNotFound(path, err)
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	return &Info{Path: path, Size: info.Size(), ModTime: info.ModTime()}, nil
}

// Save writes idx to path atomically: the container is written to a temporary
// file in the same directory, synced and renamed over the destination. Readers
// see either the previous container or the new one. It returns the size written.
func Save(path string, idx *index.TokenIndex) (int64, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create index directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".index-*.tmp")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	bw := bufio.NewWriterSize(tmp, 1<<20)
	n, err := Encode(bw, idx)
	if err != nil {
		return 0, fmt.Errorf("encode index: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return 0, fmt.Errorf("write index: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return 0, fmt.Errorf("sync index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close index: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return 0, fmt.Errorf("replace index: %w", err)
	}
	committed = true

	slog.Debug("index_saved",
		slog.String("path", path),
		slog.Int64("bytes", n),
		slog.Int("files", idx.FileCount()))
	return n, nil
}

// Load maps the container at path read-only, decodes it and unmaps it again.
func Load(path string) (*index.TokenIndex, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, tkerrors.IndexNotFound(path, err)
	}
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat index: %w", err)
	}
	if info.Size() == 0 {
		return nil, tkerrors.CorruptContainer(path, "empty file", nil)
	}

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("map index: %w", err)
	}
	defer func() { _ = data.Unmap() }()

	start := time.Now()
	idx, err := Decode(data)
	if err != nil {
		var e *tkerrors.Error
		if errors.As(err, &e) {
			e.WithDetail("path", path)
		}
		return nil, err
	}

	slog.Debug("index_loaded",
		slog.String("path", path),
		slog.Int("files", idx.FileCount()),
		slog.Int("tokens", idx.TokenCount()),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))
	return idx, nil
}
