// Package telemetry records local query statistics: query kinds, frequent
// terms, zero-result queries and a latency histogram. Nothing leaves the
// machine; aggregates are flushed to a SQLite file beside the index.
package telemetry

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Aman-CERP/tokindex/internal/search"
)

// QueryType classifies a query by matching strategy and combination mode.
type QueryType string

const (
	QueryTypeExactAnd QueryType = "exact_and"
	QueryTypeExactOr  QueryType = "exact_or"
	QueryTypeFuzzyAnd QueryType = "fuzzy_and"
	QueryTypeFuzzyOr  QueryType = "fuzzy_or"
)

// ClassifyQuery returns the QueryType for a mode and fuzzy flag.
func ClassifyQuery(mode search.Mode, fuzzy bool) QueryType {
	switch {
	case fuzzy && mode == search.ModeOr:
		return QueryTypeFuzzyOr
	case fuzzy:
		return QueryTypeFuzzyAnd
	case mode == search.ModeOr:
		return QueryTypeExactOr
	default:
		return QueryTypeExactAnd
	}
}

// LatencyBucket is a latency histogram bucket, named by its upper bound in ms.
type LatencyBucket string

const (
	BucketP1    LatencyBucket = "p1"
	BucketP10   LatencyBucket = "p10"
	BucketP50   LatencyBucket = "p50"
	BucketP100  LatencyBucket = "p100"
	BucketP1000 LatencyBucket = "p1000" // everything from 100ms up
)

// LatencyBuckets lists the buckets in ascending order.
var LatencyBuckets = []LatencyBucket{BucketP1, BucketP10, BucketP50, BucketP100, BucketP1000}

var bucketBounds = []time.Duration{time.Millisecond, 10 * time.Millisecond, 50 * time.Millisecond, 100 * time.Millisecond}

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	for i, bound := range bucketBounds {
		if d < bound {
			return LatencyBuckets[i]
		}
	}
	return BucketP1000
}

// QueryEvent is one search query.
type QueryEvent struct {
	Query       string
	QueryType   QueryType
	Tokens      []string // query tokens; terms are extracted from Query when empty
	ResultCount int
	Latency     time.Duration
	Timestamp   time.Time
}

// IsZeroResult reports whether the query matched nothing.
func (e QueryEvent) IsZeroResult() bool { return e.ResultCount == 0 }

// terms returns the words the event contributes to term frequencies.
func (e QueryEvent) terms() []string {
	if len(e.Tokens) > 0 {
		return e.Tokens
	}
	return ExtractTerms(e.Query)
}

// EventFromResult builds a QueryEvent from a search result.
func EventFromResult(res *search.Result) QueryEvent {
	return QueryEvent{
		Query:       res.Query,
		QueryType:   ClassifyQuery(res.Mode, res.Fuzzy),
		Tokens:      res.Tokens,
		ResultCount: len(res.Paths),
		Latency:     res.Elapsed,
		Timestamp:   time.Now(),
	}
}

// ExtractTerms splits a raw query into lowercased whitespace-separated terms
// of at least three bytes.
func ExtractTerms(query string) []string {
	var terms []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		if len(w) >= 3 {
			terms = append(terms, w)
		}
	}
	return terms
}

// Counts are the per-day aggregates of a set of queries.
type Counts struct {
	Types      map[QueryType]int64
	Latencies  map[LatencyBucket]int64
	ZeroResult int64
}

func newCounts() Counts {
	return Counts{Types: make(map[QueryType]int64), Latencies: make(map[LatencyBucket]int64)}
}

func (c *Counts) add(e QueryEvent) {
	c.Types[e.QueryType]++
	c.Latencies[LatencyToBucket(e.Latency)]++
	if e.IsZeroResult() {
		c.ZeroResult++
	}
}

// Queries is the number of queries counted.
func (c Counts) Queries() int64 {
	var n int64
	for _, v := range c.Types {
		n += v
	}
	return n
}

// Delta is what one flush hands to a Store: everything recorded since the
// previous flush.
type Delta struct {
	Counts
	Terms       map[string]int64
	ZeroQueries []QueryEvent
}

func newDelta() Delta {
	return Delta{Counts: newCounts(), Terms: make(map[string]int64)}
}

// Empty reports whether the delta holds no queries.
func (d Delta) Empty() bool { return len(d.Types) == 0 }

// Store persists deltas and summarises what it holds.
type Store interface {
	// Apply adds d to the totals for date (YYYY-MM-DD).
	Apply(date string, d Delta) error
	// Snapshot summarises the dates from..to inclusive, with at most topN
	// terms and zero-result queries.
	Snapshot(from, to string, topN int) (*QueryMetricsSnapshot, error)
	Close() error
}

// LoadSnapshot summarises what a store holds for the dates from..to
// (YYYY-MM-DD, inclusive).
func LoadSnapshot(store Store, from, to string, topN int) (*QueryMetricsSnapshot, error) {
	return store.Snapshot(from, to, topN)
}

// TermCount is a term and its frequency.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// QueryMetricsSnapshot is an immutable view of query metrics.
type QueryMetricsSnapshot struct {
	QueryTypeCounts     map[QueryType]int64     `json:"query_type_counts"`
	TopTerms            []TermCount             `json:"top_terms"`
	ZeroResultQueries   []string                `json:"zero_result_queries"` // newest first
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	TotalQueries        int64                   `json:"total_queries"`
	ZeroResultCount     int64                   `json:"zero_result_count"`
	Since               time.Time               `json:"since"`

	ExactRepeatCount int64   `json:"exact_repeat_count"`
	ExactRepeatRate  float64 `json:"exact_repeat_rate"`
	UniqueQueryCount int64   `json:"unique_query_count"`
}

func snapshotOf(c Counts) *QueryMetricsSnapshot {
	return &QueryMetricsSnapshot{
		QueryTypeCounts:     maps.Clone(c.Types),
		LatencyDistribution: maps.Clone(c.Latencies),
		TotalQueries:        c.Queries(),
		ZeroResultCount:     c.ZeroResult,
	}
}

// ZeroResultPercentage returns the share of zero-result queries in percent.
func (s *QueryMetricsSnapshot) ZeroResultPercentage() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ZeroResultCount) / float64(s.TotalQueries) * 100
}

// RepetitionSummary returns e.g. "exact=15.6%, unique=42".
func (s *QueryMetricsSnapshot) RepetitionSummary() string {
	if s.TotalQueries == 0 {
		return "No queries recorded"
	}
	return fmt.Sprintf("exact=%.1f%%, unique=%d", s.ExactRepeatRate*100, s.UniqueQueryCount)
}

// QueryMetricsConfig configures a QueryMetrics collector. Zero values take
// the defaults.
type QueryMetricsConfig struct {
	TopTermsCapacity      int           // terms tracked in memory (100)
	ZeroResultsCapacity   int           // zero-result queries kept in memory (100)
	RecentQueriesCapacity int           // queries remembered for repeat detection (500)
	FlushInterval         time.Duration // 0 disables the background flush
}

// DefaultQueryMetricsConfig returns the defaults with a one minute flush.
func DefaultQueryMetricsConfig() QueryMetricsConfig {
	return QueryMetricsConfig{FlushInterval: time.Minute}.withDefaults()
}

func (c QueryMetricsConfig) withDefaults() QueryMetricsConfig {
	c.TopTermsCapacity = cmp.Or(max(c.TopTermsCapacity, 0), 100)
	c.ZeroResultsCapacity = cmp.Or(max(c.ZeroResultsCapacity, 0), 100)
	c.RecentQueriesCapacity = cmp.Or(max(c.RecentQueriesCapacity, 0), 500)
	return c
}

// QueryMetrics collects query telemetry. It is safe for concurrent use.
type QueryMetrics struct {
	cfg   QueryMetricsConfig
	store Store

	mu       sync.Mutex
	counts   Counts
	terms    *lru.Cache[string, int64]
	zeroLog  []string // oldest first, at most cfg.ZeroResultsCapacity
	recent   *lru.Cache[uint64, struct{}]
	repeats  int64
	since    time.Time
	pending  Delta
	closed   bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}

	// flushMu keeps flushes in the order their deltas were drained.
	flushMu sync.Mutex
}

// NewQueryMetrics creates a collector with the default configuration.
// A nil store keeps metrics in memory only.
func NewQueryMetrics(store Store) *QueryMetrics {
	return NewQueryMetricsWithConfig(store, DefaultQueryMetricsConfig())
}

// NewQueryMetricsWithConfig creates a collector.
func NewQueryMetricsWithConfig(store Store, cfg QueryMetricsConfig) *QueryMetrics {
	cfg = cfg.withDefaults()
	terms, _ := lru.New[string, int64](cfg.TopTermsCapacity)
	recent, _ := lru.New[uint64, struct{}](cfg.RecentQueriesCapacity)

	m := &QueryMetrics{
		cfg:     cfg,
		store:   store,
		counts:  newCounts(),
		terms:   terms,
		recent:  recent,
		since:   time.Now(),
		pending: newDelta(),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	if store != nil && cfg.FlushInterval > 0 {
		go m.flushEvery(cfg.FlushInterval)
	} else {
		close(m.done)
	}
	return m
}

func (m *QueryMetrics) flushEvery(interval time.Duration) {
	defer close(m.done)
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		select {
		case <-tick.C:
			_ = m.Flush()
		case <-m.stop:
			return
		}
	}
}

// Record captures one query. It never touches the store.
func (m *QueryMetrics) Record(e QueryEvent) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	terms := e.terms()
	key := xxhash.Sum64String(strings.ToLower(strings.TrimSpace(e.Query)))

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}

	m.counts.add(e)
	m.pending.add(e)
	for _, t := range terms {
		n, _ := m.terms.Get(t)
		m.terms.Add(t, n+1)
		m.pending.Terms[t]++
	}
	if e.IsZeroResult() {
		m.pending.ZeroQueries = append(m.pending.ZeroQueries, e)
		m.zeroLog = append(m.zeroLog, e.Query)
		if over := len(m.zeroLog) - m.cfg.ZeroResultsCapacity; over > 0 {
			m.zeroLog = slices.Delete(m.zeroLog, 0, over)
		}
	}
	if seen, _ := m.recent.ContainsOrAdd(key, struct{}{}); seen {
		m.repeats++
	}
}

// Snapshot returns the metrics recorded by this collector.
func (m *QueryMetrics) Snapshot() *QueryMetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := snapshotOf(m.counts)
	snap.Since = m.since
	for _, t := range m.terms.Keys() {
		if n, ok := m.terms.Peek(t); ok {
			snap.TopTerms = append(snap.TopTerms, TermCount{Term: t, Count: n})
		}
	}
	sortTerms(snap.TopTerms)
	snap.ZeroResultQueries = slices.Clone(m.zeroLog)
	slices.Reverse(snap.ZeroResultQueries)

	snap.ExactRepeatCount = m.repeats
	snap.UniqueQueryCount = int64(m.recent.Len())
	if snap.TotalQueries > 0 {
		snap.ExactRepeatRate = float64(m.repeats) / float64(snap.TotalQueries)
	}
	return snap
}

// sortTerms orders by count descending, then term.
func sortTerms(terms []TermCount) {
	slices.SortFunc(terms, func(a, b TermCount) int {
		return cmp.Or(cmp.Compare(b.Count, a.Count), cmp.Compare(a.Term, b.Term))
	})
}

// Flush hands everything recorded since the previous flush to the store.
// A failed delta is dropped; telemetry is best effort.
func (m *QueryMetrics) Flush() error {
	if m.store == nil {
		return nil
	}

	m.flushMu.Lock()
	defer m.flushMu.Unlock()

	m.mu.Lock()
	d := m.pending
	m.pending = newDelta()
	m.mu.Unlock()

	if d.Empty() {
		return nil
	}
	return m.store.Apply(time.Now().Format(time.DateOnly), d)
}

// Close stops the background flush and flushes one last time. Later
// records are ignored. The store itself is not closed.
func (m *QueryMetrics) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.stopOnce.Do(func() { close(m.stop) })
	<-m.done
	return m.Flush()
}
