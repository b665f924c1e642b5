package mcp

// SearchInput defines the input schema for the search tool.
type SearchInput struct {
	Query    string   `json:"query" jsonschema:"identifiers or words to look for; punctuation separates tokens"`
	Mode     string   `json:"mode,omitempty" jsonschema:"and (every token must occur, default) or or (any token)"`
	Fuzzy    bool     `json:"fuzzy,omitempty" jsonschema:"match tokens through shared trigrams instead of exact hashes"`
	Contains string   `json:"contains,omitempty" jsonschema:"keep only paths containing this substring"`
	Exclude  []string `json:"exclude,omitempty" jsonschema:"drop paths containing any of these substrings"`
	Glob     []string `json:"glob,omitempty" jsonschema:"keep paths matching at least one glob, e.g. *.go or src/**/*.ts"`
	Limit    int      `json:"limit,omitempty" jsonschema:"maximum number of paths, default 50"`
}

// SearchOutput defines the output schema for the search tool.
type SearchOutput struct {
	Paths         []string `json:"paths" jsonschema:"matching files relative to the project root, in index order"`
	Tokens        []string `json:"tokens" jsonschema:"distinct query tokens"`
	MatchedTokens int      `json:"matched_tokens" jsonschema:"query tokens present in the index"`
	Candidates    int      `json:"candidates" jsonschema:"files matching the tokens before path filters and limit"`
	Mode          string   `json:"mode"`
	Fuzzy         bool     `json:"fuzzy"`
	ElapsedMS     float64  `json:"elapsed_ms"`
}

// GlobInput defines the input schema for the glob tool.
type GlobInput struct {
	Pattern string `json:"pattern" jsonschema:"glob over indexed paths, e.g. **/*_test.go"`
	Limit   int    `json:"limit,omitempty" jsonschema:"maximum number of paths, default 50"`
}

// GlobOutput defines the output schema for the glob tool.
type GlobOutput struct {
	Paths     []string `json:"paths" jsonschema:"matching files in index order"`
	Total     int      `json:"total" jsonschema:"matches before the limit"`
	ElapsedMS float64  `json:"elapsed_ms"`
}

// IndexStatusInput defines the input schema for the index_status tool (no parameters).
type IndexStatusInput struct{}

// IndexStatusOutput defines the output schema for the index_status tool.
type IndexStatusOutput struct {
	Status    string      `json:"status" jsonschema:"ready, missing or unreadable"`
	Message   string      `json:"message,omitempty"`
	RootPath  string      `json:"root_path"`
	IndexPath string      `json:"index_path"`
	Index     *IndexStats `json:"index,omitempty"`
	Queries   *QueryStats `json:"queries,omitempty"`
}

// IndexStats describes the loaded container.
type IndexStats struct {
	Version    uint16 `json:"version"`
	Files      int    `json:"files"`
	Tokens     int    `json:"tokens"`
	Trigrams   int    `json:"trigrams"`
	SizeBytes  int64  `json:"size_bytes"`
	Size       string `json:"size"`
	BuiltAt    string `json:"built_at"`
	MinLength  int    `json:"min_token_length"`
	Connectors string `json:"connectors"`
}

// QueryStats summarises queries served since startup.
type QueryStats struct {
	Total         int64   `json:"total"`
	ZeroResultPct float64 `json:"zero_result_pct"`
}
