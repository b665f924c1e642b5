package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// sampleProject is the file set used by the command tests.
var sampleProject = map[string]string{
	"README.md":         "# Sample\n\nRun NewServer to start.\n",
	"main.go":           "package main\n\nfunc main() {\n\tsrv := NewServer()\n\tsrv.Run()\n}\n",
	"server/server.go":  "package server\n\nfunc NewServer() *Server { return &Server{} }\n",
	"util/strings.go":   "package util\n\nfunc Reverse(s string) string { return s }\n",
	"docs/guide.txt":    "configuration guide\n",
	"server/handler.go": "package server\n\nfunc (s *Server) handleRequest() {}\n",
}

// newProject creates a project directory, makes it the working directory
// and isolates user config and logs from the real home directory.
func newProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))
	for rel, content := range sampleProject {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}

	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("NO_COLOR", "1")
	t.Chdir(root)
	return root
}

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCmd()
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// indexProject runs 'tokindex index --no-tui' and fails the test on error.
func indexProject(t *testing.T) {
	t.Helper()
	_, _, err := execute(t, "index", "--no-tui")
	require.NoError(t, err)
}
