package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/tokindex/internal/index"
)

const (
	// MaxResourceSize is the largest file served as a resource (1MB).
	MaxResourceSize = 1024 * 1024

	// MaxResources bounds the files registered as resources.
	MaxResources = 10000

	// QueryMetricsURI identifies the query telemetry resource.
	QueryMetricsURI = "tokindex://query_metrics"
)

// RegisterResources registers the files of the current container as MCP
// resources. Files added by later rebuilds are not registered until restart.
func (s *Server) RegisterResources(_ context.Context) (int, error) {
	engine, _, err := s.source.Engine()
	if err != nil {
		return 0, err
	}

	files := engine.Index().Files()
	if len(files) > MaxResources {
		s.logger.Warn("too many files to register as resources",
			"files", len(files), "registered", MaxResources)
		files = files[:MaxResources]
	}
	for _, f := range files {
		s.registerFileResource(f)
	}
	s.logger.Info("registered resources", "count", len(files))
	return len(files), nil
}

func (s *Server) registerFileResource(f index.FileRecord) {
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        path.Base(f.Path),
			URI:         "file://" + f.Path,
			Description: fmt.Sprintf("%s (%s)", f.Path, humanize.IBytes(uint64(f.Size))),
			MIMEType:    MimeTypeForPath(f.Path),
		},
		func(ctx context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			return s.handleReadResource(ctx, f.Path)
		},
	)
}

// handleReadResource reads a file below the project root.
func (s *Server) handleReadResource(_ context.Context, relativePath string) (*mcp.ReadResourceResult, error) {
	if !isValidPath(relativePath) {
		return nil, NewInvalidParamsError(fmt.Sprintf("invalid path: %s", relativePath))
	}

	fullPath := filepath.Join(s.rootPath, filepath.FromSlash(relativePath))
	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &MCPError{Code: ErrCodeFileNotFound, Message: fmt.Sprintf("file not found: %s", relativePath)}
		}
		return nil, MapError(err)
	}
	if info.Size() > MaxResourceSize {
		return nil, &MCPError{
			Code:    ErrCodeFileTooLarge,
			Message: fmt.Sprintf("file too large: %s (max %s)", humanize.IBytes(uint64(info.Size())), humanize.IBytes(MaxResourceSize)),
		}
	}

	content, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, MapError(err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      "file://" + relativePath,
			MIMEType: MimeTypeForPath(relativePath),
			Text:     string(content),
		}},
	}, nil
}

// isValidPath rejects absolute paths and anything escaping the root.
func isValidPath(p string) bool {
	if p == "" || filepath.IsAbs(p) || strings.HasPrefix(p, "/") {
		return false
	}
	// Windows drive letters
	if len(p) >= 2 && p[1] == ':' {
		return false
	}
	for _, part := range strings.Split(path.Clean(filepath.ToSlash(p)), "/") {
		if part == ".." {
			return false
		}
	}
	return true
}

// sourceTypes covers extensions the system MIME table usually lacks.
var sourceTypes = map[string]string{
	".go":   "text/x-go",
	".mod":  "text/x-go.mod",
	".ts":   "text/typescript",
	".tsx":  "text/typescript",
	".py":   "text/x-python",
	".rs":   "text/x-rust",
	".java": "text/x-java",
	".c":    "text/x-c",
	".h":    "text/x-c",
	".cpp":  "text/x-c++",
	".rb":   "text/x-ruby",
	".sh":   "text/x-sh",
	".md":   "text/markdown",
	".yaml": "text/x-yaml",
	".yml":  "text/x-yaml",
	".toml": "text/x-toml",
}

// MimeTypeForPath returns the MIME type for a file, defaulting to text/plain.
func MimeTypeForPath(p string) string {
	ext := index.Ext(p)
	if t, ok := sourceTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		if i := strings.IndexByte(t, ';'); i >= 0 {
			t = t[:i]
		}
		return t
	}
	return "text/plain"
}

// QueryMetricsOutput is the JSON structure of the query_metrics resource.
type QueryMetricsOutput struct {
	TotalQueries        int64            `json:"total_queries"`
	ZeroResultPct       float64          `json:"zero_result_pct"`
	Repetition          string           `json:"repetition"`
	QueryTypeCounts     map[string]int64 `json:"query_type_counts"`
	TopTerms            []QueryTermCount `json:"top_terms"`
	ZeroResultQueries   []string         `json:"zero_result_queries"`
	LatencyDistribution map[string]int64 `json:"latency_distribution"`
}

// QueryTermCount is a term and its frequency.
type QueryTermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

func (s *Server) registerQueryMetricsResource() {
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        "query_metrics",
			URI:         QueryMetricsURI,
			Description: "Query patterns served by this server since it started",
			MIMEType:    "application/json",
		},
		func(context.Context, *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			content, err := s.queryMetricsJSON()
			if err != nil {
				return nil, err
			}
			return &mcp.ReadResourceResult{
				Contents: []*mcp.ResourceContents{{
					URI:      QueryMetricsURI,
					MIMEType: "application/json",
					Text:     string(content),
				}},
			}, nil
		},
	)
}

func (s *Server) queryMetricsJSON() ([]byte, error) {
	s.mu.RLock()
	metrics := s.metrics
	s.mu.RUnlock()
	if metrics == nil {
		return nil, NewInvalidParamsError("query metrics not available")
	}

	snap := metrics.Snapshot()
	out := QueryMetricsOutput{
		TotalQueries:        snap.TotalQueries,
		ZeroResultPct:       snap.ZeroResultPercentage(),
		Repetition:          snap.RepetitionSummary(),
		QueryTypeCounts:     make(map[string]int64, len(snap.QueryTypeCounts)),
		TopTerms:            make([]QueryTermCount, 0, len(snap.TopTerms)),
		ZeroResultQueries:   snap.ZeroResultQueries,
		LatencyDistribution: make(map[string]int64, len(snap.LatencyDistribution)),
	}
	for qt, n := range snap.QueryTypeCounts {
		out.QueryTypeCounts[string(qt)] = n
	}
	for _, tc := range snap.TopTerms {
		out.TopTerms = append(out.TopTerms, QueryTermCount{Term: tc.Term, Count: tc.Count})
	}
	for b, n := range snap.LatencyDistribution {
		out.LatencyDistribution[string(b)] = n
	}

	content, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, MapError(err)
	}
	return content, nil
}
