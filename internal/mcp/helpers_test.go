package mcp

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/tokindex/internal/index"
	"github.com/Aman-CERP/tokindex/internal/store"
	"github.com/Aman-CERP/tokindex/internal/tokenizer"
)

type testFile struct {
	path    string
	content string
}

// sampleFiles are admitted in this order, so README.md is FileId 0.
var sampleFiles = []testFile{
	{"README.md", "Call handleRequest to serve"},
	{"main.go", "package main\n\nfunc handleRequest() {}\n"},
	{"util/strings.go", "package util\n\nfunc handleString() {}\n"},
}

// buildProject writes files under root and saves a container for them.
func buildProject(t *testing.T, root string, files []testFile) {
	t.Helper()

	docs := make(chan index.Document, len(files))
	for _, f := range files {
		abs := filepath.Join(root, filepath.FromSlash(f.path))
		require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
		require.NoError(t, os.WriteFile(abs, []byte(f.content), 0o644))
		content := []byte(f.content)
		docs <- index.Document{
			Path: f.path,
			Open: func() (index.Content, error) { return index.BytesContent(content), nil },
		}
	}
	close(docs)

	b := index.NewBuilder(index.BuilderOptions{
		Workers: 2,
		Policy:  tokenizer.DefaultPolicy(),
		Root:    root,
		Now:     func() time.Time { return time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC) },
	})
	idx, _, err := b.Build(context.Background(), docs)
	require.NoError(t, err)
	_, err = store.Save(store.IndexPath(root), idx)
	require.NoError(t, err)
}

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()
	srv, err := NewServer(opts)
	require.NoError(t, err)
	return srv
}
