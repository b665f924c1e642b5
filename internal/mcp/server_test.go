package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/tokindex/internal/config"
	"github.com/Aman-CERP/tokindex/internal/store"
	"github.com/Aman-CERP/tokindex/internal/telemetry"
)

func TestNewServer_RequiresRoot(t *testing.T) {
	_, err := NewServer(Options{})
	assert.Error(t, err)
}

func TestNewServer_Defaults(t *testing.T) {
	root := t.TempDir()
	srv := newTestServer(t, Options{RootPath: root})

	name, _ := srv.Info()
	assert.Equal(t, "tokindex", name)
	assert.Equal(t, store.IndexPath(root), srv.indexPath)
	assert.NotNil(t, srv.MCPServer())

	var names []string
	for _, tool := range srv.ListTools() {
		names = append(names, tool.Name)
		assert.NotEmpty(t, tool.Description)
	}
	assert.Equal(t, []string{"search", "glob", "index_status"}, names)
}

func TestServer_CallTool_Search(t *testing.T) {
	root := t.TempDir()
	buildProject(t, root, sampleFiles)
	srv := newTestServer(t, Options{RootPath: root})

	tests := []struct {
		name     string
		args     map[string]any
		contains []string
		absent   []string
	}{
		{
			name:     "and across files",
			args:     map[string]any{"query": "handleRequest"},
			contains: []string{"- `README.md`\n- `main.go`\n"},
			absent:   []string{"strings.go"},
		},
		{
			name:     "or mode",
			args:     map[string]any{"query": "handleRequest handleString", "mode": "or"},
			contains: []string{"- `README.md`", "- `main.go`", "- `util/strings.go`"},
		},
		{
			name:     "glob filter",
			args:     map[string]any{"query": "handleRequest", "glob": []any{"*.go"}},
			contains: []string{"- `main.go`"},
			absent:   []string{"README.md`"},
		},
		{
			name:     "exclude filter",
			args:     map[string]any{"query": "package", "exclude": []any{"util/"}},
			contains: []string{"- `main.go`"},
			absent:   []string{"strings.go"},
		},
		{
			name:     "limit",
			args:     map[string]any{"query": "package", "limit": float64(1)},
			contains: []string{"Found 1 file (2 before filters and limit)"},
		},
		{
			name:     "unknown token",
			args:     map[string]any{"query": "nowhere"},
			contains: []string{`No files found for "nowhere" (0 of 1 tokens are in the index).`},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := srv.CallTool(context.Background(), "search", tt.args)
			require.NoError(t, err)
			out, ok := got.(string)
			require.True(t, ok)
			for _, s := range tt.contains {
				assert.Contains(t, out, s)
			}
			for _, s := range tt.absent {
				assert.NotContains(t, out, s)
			}
		})
	}
}

func TestServer_CallTool_InvalidParams(t *testing.T) {
	root := t.TempDir()
	buildProject(t, root, sampleFiles)
	srv := newTestServer(t, Options{RootPath: root})

	tests := []struct {
		name string
		tool string
		args map[string]any
	}{
		{"missing query", "search", map[string]any{}},
		{"non-string query", "search", map[string]any{"query": 42}},
		{"whitespace query", "search", map[string]any{"query": "   "}},
		{"unknown mode", "search", map[string]any{"query": "main", "mode": "xor"}},
		{"missing pattern", "glob", map[string]any{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := srv.CallTool(context.Background(), tt.tool, tt.args)

			var mcpErr *MCPError
			require.ErrorAs(t, err, &mcpErr)
			assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
		})
	}
}

func TestServer_CallTool_UnknownTool(t *testing.T) {
	srv := newTestServer(t, Options{RootPath: t.TempDir()})

	_, err := srv.CallTool(context.Background(), "search_code", nil)

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeMethodNotFound, mcpErr.Code)
}

func TestServer_CallTool_MissingIndex(t *testing.T) {
	srv := newTestServer(t, Options{RootPath: t.TempDir()})

	_, err := srv.CallTool(context.Background(), "search", map[string]any{"query": "main"})

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeIndexNotFound, mcpErr.Code)
	assert.Contains(t, mcpErr.Message, "tokindex index")
}

func TestServer_CallTool_Glob(t *testing.T) {
	root := t.TempDir()
	buildProject(t, root, sampleFiles)
	srv := newTestServer(t, Options{RootPath: root})

	got, err := srv.CallTool(context.Background(), "glob", map[string]any{"pattern": "**/*.go"})
	require.NoError(t, err)

	out := got.(string)
	assert.Contains(t, out, "- `main.go`")
	assert.Contains(t, out, "- `util/strings.go`")
	assert.NotContains(t, out, "README.md")
}

func TestServer_IndexStatus(t *testing.T) {
	t.Run("missing", func(t *testing.T) {
		// Given: a project that was never indexed
		srv := newTestServer(t, Options{RootPath: t.TempDir()})

		// When: asking for the status
		got, err := srv.CallTool(context.Background(), "index_status", nil)

		// Then: the status explains what to do instead of failing
		require.NoError(t, err)
		status := got.(*IndexStatusOutput)
		assert.Equal(t, "missing", status.Status)
		assert.Nil(t, status.Index)
		assert.Contains(t, status.Message, "tokindex index")
	})

	t.Run("ready", func(t *testing.T) {
		root := t.TempDir()
		buildProject(t, root, sampleFiles)
		srv := newTestServer(t, Options{RootPath: root})

		got, err := srv.CallTool(context.Background(), "index_status", nil)

		require.NoError(t, err)
		status := got.(*IndexStatusOutput)
		assert.Equal(t, "ready", status.Status)
		require.NotNil(t, status.Index)
		assert.Equal(t, 3, status.Index.Files)
		assert.Positive(t, status.Index.Tokens)
		assert.Positive(t, status.Index.SizeBytes)
		assert.Equal(t, "2026-05-04T10:00:00Z", status.Index.BuiltAt)
		assert.Equal(t, 2, status.Index.MinLength)
		assert.Nil(t, status.Queries)
	})
}

func TestServer_ReloadsRebuiltIndex(t *testing.T) {
	// Given: a server that already answered from the first container
	root := t.TempDir()
	buildProject(t, root, sampleFiles[:1])
	srv := newTestServer(t, Options{RootPath: root})
	got, err := srv.CallTool(context.Background(), "search", map[string]any{"query": "package"})
	require.NoError(t, err)
	assert.Contains(t, got.(string), "No files found")

	// When: the project is rebuilt with more files
	buildProject(t, root, sampleFiles)

	// Then: the next query sees the new container
	got, err = srv.CallTool(context.Background(), "search", map[string]any{"query": "package"})
	require.NoError(t, err)
	assert.Contains(t, got.(string), "- `main.go`")
}

func TestServer_RecordsQueryMetrics(t *testing.T) {
	root := t.TempDir()
	buildProject(t, root, sampleFiles)
	metrics := telemetry.NewQueryMetricsWithConfig(nil, telemetry.QueryMetricsConfig{})
	defer func() { _ = metrics.Close() }()
	srv := newTestServer(t, Options{RootPath: root, Metrics: metrics})

	for _, q := range []string{"handleRequest", "nowhere"} {
		_, err := srv.CallTool(context.Background(), "search", map[string]any{"query": q})
		require.NoError(t, err)
	}

	snap := metrics.Snapshot()
	assert.Equal(t, int64(2), snap.TotalQueries)
	assert.Equal(t, int64(1), snap.ZeroResultCount)

	got, err := srv.CallTool(context.Background(), "index_status", nil)
	require.NoError(t, err)
	require.NotNil(t, got.(*IndexStatusOutput).Queries)
	assert.Equal(t, int64(2), got.(*IndexStatusOutput).Queries.Total)
}

func TestServer_ConfigDefaults(t *testing.T) {
	root := t.TempDir()
	buildProject(t, root, sampleFiles)
	cfg := config.NewConfig()
	cfg.Search.Mode = "or"
	cfg.Search.Limit = 1
	srv := newTestServer(t, Options{RootPath: root, Config: cfg})

	res, err := srv.search(context.Background(), SearchInput{Query: "handleRequest handleString"})

	require.NoError(t, err)
	assert.Equal(t, "or", string(res.Mode))
	assert.Equal(t, []string{"README.md"}, res.Paths)
	assert.Equal(t, 3, res.Candidates)
}

func TestServer_Serve_UnknownTransport(t *testing.T) {
	srv := newTestServer(t, Options{RootPath: t.TempDir()})

	err := srv.Serve(context.Background(), "sse")

	assert.Error(t, err)
}

func TestServer_OverMCPSession(t *testing.T) {
	// Given: a client connected to the server over in-memory transports
	root := t.TempDir()
	buildProject(t, root, sampleFiles)
	srv := newTestServer(t, Options{RootPath: root})

	ctx := context.Background()
	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	serverSession, err := srv.MCPServer().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	defer func() { _ = serverSession.Close() }()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	defer func() { _ = session.Close() }()

	// When: listing and calling tools
	list, err := session.ListTools(ctx, nil)
	require.NoError(t, err)
	var names []string
	for _, tool := range list.Tools {
		names = append(names, tool.Name)
	}

	res, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "glob",
		Arguments: map[string]any{"pattern": "*.md"},
	})
	require.NoError(t, err)

	// Then: the tools are advertised and the structured output decodes
	assert.ElementsMatch(t, []string{"search", "glob", "index_status"}, names)
	require.False(t, res.IsError)
	raw, err := json.Marshal(res.StructuredContent)
	require.NoError(t, err)
	var out GlobOutput
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, []string{"README.md"}, out.Paths)
	assert.Equal(t, 1, out.Total)
}
