package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/tokindex/internal/config"
	tkerrors "github.com/Aman-CERP/tokindex/internal/errors"
	"github.com/Aman-CERP/tokindex/internal/search"
	"github.com/Aman-CERP/tokindex/internal/store"
	"github.com/Aman-CERP/tokindex/internal/telemetry"
	"github.com/Aman-CERP/tokindex/pkg/version"
)

const (
	// ServerName is reported to clients during initialization.
	ServerName = "tokindex"

	// DefaultLimit applies when neither the request nor the config sets one.
	DefaultLimit = 50

	// MaxLimit caps the paths returned by one tool call.
	MaxLimit = 1000
)

// Options configures a Server.
type Options struct {
	// RootPath is the project root. Required.
	RootPath string

	// IndexPath defaults to the container under RootPath.
	IndexPath string

	// Config supplies query defaults; nil uses the built-in defaults.
	Config *config.Config

	// Metrics records every served query when set.
	Metrics *telemetry.QueryMetrics

	Logger *slog.Logger
}

// Server is the MCP server for tokindex. It answers token and file name
// queries from AI clients against the project's index container.
type Server struct {
	mcp       *mcp.Server
	source    *indexSource
	config    *config.Config
	rootPath  string
	indexPath string
	logger    *slog.Logger

	metrics *telemetry.QueryMetrics

	mu sync.RWMutex
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var tools = []ToolInfo{
	{
		Name:        "search",
		Description: "Find files containing every token of a query (or any token with mode=or). Answers from a prebuilt inverted index in milliseconds. Exact matching by default; fuzzy=true tolerates typos and partial identifiers.",
	},
	{
		Name:        "glob",
		Description: "List indexed files whose path matches a glob such as **/*.go or cmd/*/main.go.",
	},
	{
		Name:        "index_status",
		Description: "Report whether the index exists, when it was built and how many files and tokens it holds. Use before searching if results look stale.",
	},
}

// NewServer creates a new MCP server.
func NewServer(opts Options) (*Server, error) {
	if opts.RootPath == "" {
		return nil, errors.New("root path is required")
	}
	root, err := filepath.Abs(opts.RootPath)
	if err != nil {
		return nil, fmt.Errorf("resolve root path: %w", err)
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.NewConfig()
	}
	indexPath := opts.IndexPath
	if indexPath == "" {
		indexPath = store.IndexPath(root)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config:    cfg,
		rootPath:  root,
		indexPath: indexPath,
		logger:    logger,
		metrics:   opts.Metrics,
	}
	s.source = newIndexSource(indexPath, search.EngineConfig{
		CacheSize: cfg.Search.CacheSize,
		OnQuery:   s.recordQuery,
	})

	s.mcp = mcp.NewServer(
		&mcp.Implementation{Name: ServerName, Version: version.Version},
		nil,
	)
	s.registerTools()
	if opts.Metrics != nil {
		s.registerQueryMetricsResource()
	}
	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return ServerName, version.Version
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	return append([]ToolInfo(nil), tools...)
}

func (s *Server) recordQuery(res *search.Result) {
	s.mu.RLock()
	m := s.metrics
	s.mu.RUnlock()
	if m != nil {
		m.Record(telemetry.EventFromResult(res))
	}
}

// CallTool invokes a tool by name with JSON-style arguments and returns
// markdown for search and glob, and *IndexStatusOutput for index_status.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case "search":
		in, err := searchInputFromArgs(args)
		if err != nil {
			return nil, err
		}
		res, err := s.search(ctx, in)
		if err != nil {
			return nil, err
		}
		return FormatSearchResult(res), nil
	case "glob":
		pattern, _ := args["pattern"].(string)
		res, err := s.glob(GlobInput{Pattern: pattern, Limit: intArg(args, "limit")})
		if err != nil {
			return nil, err
		}
		return FormatGlobResult(res), nil
	case "index_status":
		return s.indexStatus(), nil
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

func searchInputFromArgs(args map[string]any) (SearchInput, error) {
	query, ok := args["query"].(string)
	if !ok {
		return SearchInput{}, NewInvalidParamsError("query parameter is required and must be a string")
	}
	in := SearchInput{Query: query, Limit: intArg(args, "limit")}
	in.Mode, _ = args["mode"].(string)
	in.Fuzzy, _ = args["fuzzy"].(bool)
	in.Contains, _ = args["contains"].(string)
	in.Exclude = stringsArg(args, "exclude")
	in.Glob = stringsArg(args, "glob")
	return in, nil
}

// intArg reads a JSON number.
func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func stringsArg(args map[string]any, key string) []string {
	switch v := args[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	case string:
		return []string{v}
	}
	return nil
}

func (s *Server) limit(requested int) int {
	limit := requested
	if limit <= 0 {
		limit = s.config.Search.Limit
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	return min(limit, MaxLimit)
}

func (s *Server) search(ctx context.Context, in SearchInput) (*search.Result, error) {
	if strings.TrimSpace(in.Query) == "" {
		return nil, NewInvalidParamsError("query cannot be empty or whitespace only")
	}

	opts := s.config.SearchOptions()
	if in.Mode != "" {
		mode, err := search.ParseMode(in.Mode)
		if err != nil {
			return nil, MapError(err)
		}
		opts.Mode = mode
	}
	opts.Fuzzy = opts.Fuzzy || in.Fuzzy
	opts.PathContains = in.Contains
	opts.PathExcludes = in.Exclude
	opts.Globs = in.Glob
	opts.Limit = s.limit(in.Limit)

	requestID := generateRequestID()
	s.logger.Info("search started",
		slog.String("request_id", requestID),
		slog.String("query", in.Query),
		slog.String("mode", string(opts.Mode)),
		slog.Bool("fuzzy", opts.Fuzzy),
		slog.Int("limit", opts.Limit))

	engine, _, err := s.source.Engine()
	if err != nil {
		s.logger.Error("search failed", slog.String("request_id", requestID), slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	res, err := engine.Search(ctx, in.Query, opts)
	if err != nil {
		s.logger.Error("search failed", slog.String("request_id", requestID), slog.String("error", err.Error()))
		return nil, MapError(err)
	}

	s.logger.Info("search completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", res.Elapsed),
		slog.Int("result_count", len(res.Paths)))
	return res, nil
}

func (s *Server) glob(in GlobInput) (*search.GlobResult, error) {
	if strings.TrimSpace(in.Pattern) == "" {
		return nil, NewInvalidParamsError("pattern parameter is required")
	}
	engine, _, err := s.source.Engine()
	if err != nil {
		return nil, MapError(err)
	}
	res, err := engine.Glob(in.Pattern, s.limit(in.Limit))
	if err != nil {
		return nil, MapError(err)
	}
	return res, nil
}

// indexStatus never fails: a missing or unreadable container is reported
// in the output so clients can tell the user to build one.
func (s *Server) indexStatus() *IndexStatusOutput {
	out := &IndexStatusOutput{
		Status:    "ready",
		RootPath:  s.rootPath,
		IndexPath: s.indexPath,
	}

	s.mu.RLock()
	m := s.metrics
	s.mu.RUnlock()
	if m != nil {
		snap := m.Snapshot()
		out.Queries = &QueryStats{Total: snap.TotalQueries, ZeroResultPct: snap.ZeroResultPercentage()}
	}

	engine, info, err := s.source.Engine()
	if err != nil {
		out.Status = "unreadable"
		if errors.Is(err, tkerrors.ErrIndexNotFound) {
			out.Status = "missing"
		}
		out.Message = MapError(err).Message
		return out
	}

	idx := engine.Index()
	meta := idx.Meta()
	out.Index = &IndexStats{
		Version:    meta.Version,
		Files:      idx.FileCount(),
		Tokens:     idx.TokenCount(),
		Trigrams:   idx.TrigramCount(),
		SizeBytes:  info.Size,
		Size:       humanize.IBytes(uint64(info.Size)),
		BuiltAt:    meta.BuiltAt.UTC().Format(time.RFC3339),
		MinLength:  meta.Policy.MinLength,
		Connectors: meta.Policy.Connectors,
	}
	return out
}

// registerTools registers all tools with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[0].Name, Description: tools[0].Description}, s.mcpSearchHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[1].Name, Description: tools[1].Description}, s.mcpGlobHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[2].Name, Description: tools[2].Description}, s.mcpIndexStatusHandler)
	s.logger.Debug("MCP tools registered", slog.Int("count", len(tools)))
}

func (s *Server) mcpSearchHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	res, err := s.search(ctx, input)
	if err != nil {
		return nil, SearchOutput{}, err
	}
	return nil, SearchOutput{
		Paths:         res.Paths,
		Tokens:        res.Tokens,
		MatchedTokens: res.MatchedTokens,
		Candidates:    res.Candidates,
		Mode:          string(res.Mode),
		Fuzzy:         res.Fuzzy,
		ElapsedMS:     milliseconds(res.Elapsed),
	}, nil
}

func (s *Server) mcpGlobHandler(_ context.Context, _ *mcp.CallToolRequest, input GlobInput) (
	*mcp.CallToolResult,
	GlobOutput,
	error,
) {
	res, err := s.glob(input)
	if err != nil {
		return nil, GlobOutput{}, err
	}
	return nil, GlobOutput{Paths: res.Paths, Total: res.Total, ElapsedMS: milliseconds(res.Elapsed)}, nil
}

func (s *Server) mcpIndexStatusHandler(_ context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (
	*mcp.CallToolResult,
	*IndexStatusOutput,
	error,
) {
	return nil, s.indexStatus(), nil
}

// Serve runs the server on the given transport until ctx is done or the client disconnects.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("Starting MCP server",
		slog.String("transport", transport),
		slog.String("root", s.rootPath),
		slog.String("index", s.indexPath))

	switch transport {
	case "", "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
			return err
		}
		s.logger.Info("MCP server stopped gracefully")
		return nil
	default:
		return tkerrors.ConfigError(fmt.Sprintf("unknown transport: %s", transport), nil).
			WithSuggestion("Use --transport stdio")
	}
}

func milliseconds(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	id := uuid.New()
	return id.String()[:8]
}
