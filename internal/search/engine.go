// Package search evaluates token queries against a loaded TokenIndex.
//
// A query is tokenized with the policy stored in the index, each token is
// resolved to a posting set (exact hash lookup, or the union of its trigram
// sets in fuzzy mode), the sets are combined with AND or OR in ascending
// cardinality order, and the surviving paths pass through the post-filters.
//
// Exact matching compares 64-bit token hashes. Two different tokens with the
// same hash are indistinguishable, so results may contain rare false
// positives; file contents are never re-read to verify a match.
package search

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Aman-CERP/tokindex/internal/index"
	"github.com/Aman-CERP/tokindex/internal/tokenizer"
	"github.com/Aman-CERP/tokindex/internal/trigram"
)

// DefaultCacheSize is the number of fuzzy candidate sets kept per engine.
const DefaultCacheSize = 1024

// Result is the outcome of one query.
type Result struct {
	Paths []string `json:"paths"`
	Query string   `json:"query"`

	// Tokens are the distinct query tokens in first-seen order.
	Tokens []string `json:"tokens"`

	// QueryTokens is len(Tokens); MatchedTokens counts tokens with a non-empty set.
	QueryTokens   int `json:"query_tokens"`
	MatchedTokens int `json:"matched_tokens"`

	// Candidates is the size of the combined set before post-filters.
	Candidates int `json:"candidates"`

	Mode    Mode          `json:"mode"`
	Fuzzy   bool          `json:"fuzzy"`
	Elapsed time.Duration `json:"elapsed_ns"`
}

// GlobResult is the outcome of a file name search.
type GlobResult struct {
	Pattern string        `json:"pattern"`
	Paths   []string      `json:"paths"`
	Total   int           `json:"total"` // matches before the limit
	Elapsed time.Duration `json:"elapsed_ns"`
}

// EngineConfig configures an Engine.
type EngineConfig struct {
	// CacheSize bounds the fuzzy candidate cache (0 = DefaultCacheSize).
	CacheSize int

	// OnQuery, when set, is called after every successful Search.
	OnQuery func(*Result)
}

// Engine answers queries over one immutable index. It is safe for concurrent use.
type Engine struct {
	idx     *index.TokenIndex
	tok     *tokenizer.Tokenizer
	fuzzy   *lru.Cache[string, *roaring.Bitmap]
	onQuery func(*Result)
}

// NewEngine creates an Engine over idx.
func NewEngine(idx *index.TokenIndex, cfg EngineConfig) (*Engine, error) {
	if idx == nil {
		return nil, fmt.Errorf("index is required")
	}
	size := cfg.CacheSize
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, *roaring.Bitmap](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create fuzzy cache: %w", err)
	}
	return &Engine{
		idx:     idx,
		tok:     tokenizer.New(idx.Meta().Policy),
		fuzzy:   cache,
		onQuery: cfg.OnQuery,
	}, nil
}

// Index returns the index the engine serves.
func (e *Engine) Index() *index.TokenIndex { return e.idx }

// Search evaluates query. It fails only on invalid options or a cancelled
// context; unknown tokens and an empty index yield an empty result.
func (e *Engine) Search(ctx context.Context, query string, opts Options) (*Result, error) {
	start := time.Now()
	f, err := opts.compile()
	if err != nil {
		return nil, err
	}

	res := &Result{
		Paths: []string{},
		Query: query,
		Mode:  opts.mode(),
		Fuzzy: opts.Fuzzy,
	}
	res.Tokens = e.tok.QueryTokens(query)
	res.QueryTokens = len(res.Tokens)

	if res.QueryTokens > 0 && !e.idx.IsEmpty() {
		sets := make([]*roaring.Bitmap, 0, len(res.Tokens))
		for _, t := range res.Tokens {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			bm := e.lookup(t, opts.Fuzzy)
			if !bm.IsEmpty() {
				res.MatchedTokens++
			}
			sets = append(sets, bm)
		}

		var ids *roaring.Bitmap
		if res.Mode == ModeOr {
			ids = union(sets)
		} else {
			ids = intersect(sets)
		}
		res.Candidates = int(ids.GetCardinality())
		res.Paths = f.apply(e.resolve(ids))
	}

	res.Elapsed = time.Since(start)
	slog.Debug("search_complete",
		slog.String("query", query),
		slog.String("mode", string(res.Mode)),
		slog.Bool("fuzzy", res.Fuzzy),
		slog.Int("tokens", res.QueryTokens),
		slog.Int("matched_tokens", res.MatchedTokens),
		slog.Int("candidates", res.Candidates),
		slog.Int("results", len(res.Paths)),
		slog.Int64("duration_us", res.Elapsed.Microseconds()))

	if e.onQuery != nil {
		e.onQuery(res)
	}
	return res, nil
}

var emptySet = roaring.New()

// lookup returns the candidate set of one token. The returned bitmap is
// shared with the index or the cache and must not be modified.
func (e *Engine) lookup(token string, fuzzy bool) *roaring.Bitmap {
	if !fuzzy || len(token) < trigram.MinTokenLength {
		if bm := e.idx.Postings(tokenizer.HashString(token)); bm != nil {
			return bm
		}
		return emptySet
	}

	key := strings.ToLower(token)
	if bm, ok := e.fuzzy.Get(key); ok {
		return bm
	}
	var parts []*roaring.Bitmap
	for _, t := range trigram.Unique([]byte(key)) {
		if bm := e.idx.TrigramPostings(t); bm != nil {
			parts = append(parts, bm)
		}
	}
	bm := emptySet
	if len(parts) > 0 {
		bm = roaring.FastOr(parts...)
	}
	e.fuzzy.Add(key, bm)
	return bm
}

func byCardinality(sets []*roaring.Bitmap) {
	slices.SortStableFunc(sets, func(a, b *roaring.Bitmap) int {
		return cmp.Compare(a.GetCardinality(), b.GetCardinality())
	})
}

// intersect starts from the smallest set and stops once the running result is empty.
func intersect(sets []*roaring.Bitmap) *roaring.Bitmap {
	byCardinality(sets)
	acc := sets[0].Clone()
	for _, s := range sets[1:] {
		if acc.IsEmpty() {
			break
		}
		acc.And(s)
	}
	return acc
}

func union(sets []*roaring.Bitmap) *roaring.Bitmap {
	byCardinality(sets)
	return roaring.FastOr(sets...)
}

// resolve maps FileIds to paths in ascending id order.
func (e *Engine) resolve(ids *roaring.Bitmap) []string {
	paths := make([]string, 0, ids.GetCardinality())
	it := ids.Iterator()
	for it.HasNext() {
		if rec, ok := e.idx.File(it.Next()); ok {
			paths = append(paths, rec.Path)
		}
	}
	return paths
}

// Glob returns the indexed paths matching pattern, in FileId order.
func (e *Engine) Glob(pattern string, limit int) (*GlobResult, error) {
	start := time.Now()
	g, err := compileGlob(pattern)
	if err != nil {
		return nil, err
	}
	if limit < 0 {
		limit = 0
	}

	res := &GlobResult{Pattern: pattern, Paths: []string{}}
	for _, rec := range e.idx.Files() {
		if !g.match(rec.Path) {
			continue
		}
		res.Total++
		if limit == 0 || len(res.Paths) < limit {
			res.Paths = append(res.Paths, rec.Path)
		}
	}
	res.Elapsed = time.Since(start)
	return res, nil
}
