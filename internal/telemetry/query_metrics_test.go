package telemetry

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/tokindex/internal/search"
)

func memoryMetrics() *QueryMetrics {
	return NewQueryMetricsWithConfig(nil, QueryMetricsConfig{})
}

func TestClassifyQuery(t *testing.T) {
	assert.Equal(t, QueryTypeExactAnd, ClassifyQuery(search.ModeAnd, false))
	assert.Equal(t, QueryTypeExactOr, ClassifyQuery(search.ModeOr, false))
	assert.Equal(t, QueryTypeFuzzyAnd, ClassifyQuery(search.ModeAnd, true))
	assert.Equal(t, QueryTypeFuzzyOr, ClassifyQuery(search.ModeOr, true))
	assert.Equal(t, QueryTypeExactAnd, ClassifyQuery("", false))
}

func TestLatencyToBucket(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want LatencyBucket
	}{
		{0, BucketP1},
		{999 * time.Microsecond, BucketP1},
		{time.Millisecond, BucketP10},
		{10 * time.Millisecond, BucketP50},
		{99 * time.Millisecond, BucketP100},
		{100 * time.Millisecond, BucketP1000},
		{time.Minute, BucketP1000},
	}
	for _, tt := range tests {
		t.Run(tt.d.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, LatencyToBucket(tt.d))
		})
	}
}

func TestExtractTerms(t *testing.T) {
	assert.Equal(t, []string{"parse", "config"}, ExtractTerms("  Parse CONFIG go "))
	assert.Nil(t, ExtractTerms(""))
	assert.Nil(t, ExtractTerms("a bb"))
}

func TestEventFromResult(t *testing.T) {
	res := &search.Result{
		Query:   "foo bar",
		Tokens:  []string{"foo", "bar"},
		Paths:   []string{"a.go"},
		Mode:    search.ModeOr,
		Fuzzy:   true,
		Elapsed: 3 * time.Millisecond,
	}

	ev := EventFromResult(res)

	assert.Equal(t, "foo bar", ev.Query)
	assert.Equal(t, QueryTypeFuzzyOr, ev.QueryType)
	assert.Equal(t, []string{"foo", "bar"}, ev.Tokens)
	assert.Equal(t, 1, ev.ResultCount)
	assert.Equal(t, 3*time.Millisecond, ev.Latency)
	assert.False(t, ev.IsZeroResult())
	assert.False(t, ev.Timestamp.IsZero())
}

func TestQueryMetrics_Record(t *testing.T) {
	// Given: a mix of queries
	m := memoryMetrics()
	m.Record(QueryEvent{Query: "parse_config", QueryType: QueryTypeExactAnd, Tokens: []string{"parse_config"}, ResultCount: 2, Latency: 200 * time.Microsecond})
	m.Record(QueryEvent{Query: "parse_config", QueryType: QueryTypeExactAnd, Tokens: []string{"parse_config"}, ResultCount: 2, Latency: 2 * time.Millisecond})
	m.Record(QueryEvent{Query: "missing thing", QueryType: QueryTypeFuzzyOr, ResultCount: 0})

	// When: taking a snapshot
	snap := m.Snapshot()

	// Then: every aggregate reflects the queries
	assert.Equal(t, int64(3), snap.TotalQueries)
	assert.Equal(t, map[QueryType]int64{QueryTypeExactAnd: 2, QueryTypeFuzzyOr: 1}, snap.QueryTypeCounts)
	assert.Equal(t, TermCount{Term: "parse_config", Count: 2}, snap.TopTerms[0])
	assert.Contains(t, snap.TopTerms, TermCount{Term: "missing", Count: 1})
	assert.Equal(t, []string{"missing thing"}, snap.ZeroResultQueries)
	assert.Equal(t, int64(1), snap.ZeroResultCount)
	assert.Equal(t, map[LatencyBucket]int64{BucketP1: 2, BucketP10: 1}, snap.LatencyDistribution)
	assert.Equal(t, int64(1), snap.ExactRepeatCount)
	assert.Equal(t, int64(2), snap.UniqueQueryCount)
	assert.InDelta(t, 100.0/3, snap.ZeroResultPercentage(), 1e-9)
}

func TestQueryMetrics_RepeatDetectionNormalizes(t *testing.T) {
	m := memoryMetrics()

	m.Record(QueryEvent{Query: "Handler"})
	m.Record(QueryEvent{Query: "  handler "})

	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap.ExactRepeatCount)
	assert.Equal(t, "exact=50.0%, unique=1", snap.RepetitionSummary())
}

func TestQueryMetrics_TopTermsEviction(t *testing.T) {
	m := NewQueryMetricsWithConfig(nil, QueryMetricsConfig{TopTermsCapacity: 2})

	m.Record(QueryEvent{Tokens: []string{"aaa"}})
	m.Record(QueryEvent{Tokens: []string{"bbb"}})
	m.Record(QueryEvent{Tokens: []string{"ccc"}})

	terms := m.Snapshot().TopTerms
	assert.Len(t, terms, 2)
	assert.NotContains(t, terms, TermCount{Term: "aaa", Count: 1})
}

func TestQueryMetrics_ClosedIgnoresRecords(t *testing.T) {
	m := memoryMetrics()
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	m.Record(QueryEvent{Query: "late"})

	assert.Zero(t, m.Snapshot().TotalQueries)
}

func TestQueryMetrics_ConcurrentRecord(t *testing.T) {
	m := memoryMetrics()

	var wg sync.WaitGroup
	for i := range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Record(QueryEvent{Query: fmt.Sprintf("query %d", i), QueryType: QueryTypeExactAnd, ResultCount: i % 2})
			_ = m.Snapshot()
		}()
	}
	wg.Wait()

	snap := m.Snapshot()
	assert.Equal(t, int64(100), snap.TotalQueries)
	assert.Equal(t, int64(50), snap.ZeroResultCount)
}

func TestQueryMetrics_FlushWritesDeltasOnce(t *testing.T) {
	// Given: a collector backed by SQLite
	s := openTestStore(t)
	m := NewQueryMetricsWithConfig(s, QueryMetricsConfig{})
	m.Record(QueryEvent{Query: "alpha beta", QueryType: QueryTypeExactAnd, Tokens: []string{"alpha", "beta"}, ResultCount: 1})
	m.Record(QueryEvent{Query: "nothing", QueryType: QueryTypeExactOr, Tokens: []string{"nothing"}})

	// When: flushing twice and closing
	require.NoError(t, m.Flush())
	require.NoError(t, m.Flush())
	m.Record(QueryEvent{Query: "alpha", QueryType: QueryTypeExactAnd, Tokens: []string{"alpha"}, ResultCount: 1})
	require.NoError(t, m.Close())

	// Then: the store holds each query exactly once
	today := time.Now().Format(time.DateOnly)
	snap, err := LoadSnapshot(s, today, today, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(3), snap.TotalQueries)
	assert.Equal(t, map[QueryType]int64{QueryTypeExactAnd: 2, QueryTypeExactOr: 1}, snap.QueryTypeCounts)
	assert.Equal(t, TermCount{Term: "alpha", Count: 2}, snap.TopTerms[0])
	assert.Equal(t, []string{"nothing"}, snap.ZeroResultQueries)
	assert.Equal(t, int64(1), snap.ZeroResultCount)
	assert.Equal(t, int64(3), snap.LatencyDistribution[BucketP1])
}

func TestQueryMetrics_BackgroundFlush(t *testing.T) {
	s := openTestStore(t)
	m := NewQueryMetricsWithConfig(s, QueryMetricsConfig{FlushInterval: 20 * time.Millisecond})
	defer m.Close()

	m.Record(QueryEvent{Query: "tick", QueryType: QueryTypeExactAnd, Tokens: []string{"tick"}, ResultCount: 1})

	assert.Eventually(t, func() bool {
		terms, err := s.topTerms(1)
		return err == nil && len(terms) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestQueryMetricsSnapshot_Empty(t *testing.T) {
	snap := memoryMetrics().Snapshot()

	assert.Zero(t, snap.ZeroResultPercentage())
	assert.Equal(t, "No queries recorded", snap.RepetitionSummary())
}

func TestQueryMetrics_ZeroResultLogKeepsNewest(t *testing.T) {
	// Given: more zero-result queries than the collector keeps
	m := NewQueryMetricsWithConfig(nil, QueryMetricsConfig{ZeroResultsCapacity: 3})
	for i := range 5 {
		m.Record(QueryEvent{Query: fmt.Sprintf("miss%d", i)})
	}

	// When: taking a snapshot
	snap := m.Snapshot()

	// Then: the newest remain, newest first, while the count covers all
	assert.Equal(t, []string{"miss4", "miss3", "miss2"}, snap.ZeroResultQueries)
	assert.Equal(t, int64(5), snap.ZeroResultCount)
}

func TestQueryMetrics_FlushSkipsEmptyDelta(t *testing.T) {
	s := &countingStore{}
	m := NewQueryMetricsWithConfig(s, QueryMetricsConfig{})

	require.NoError(t, m.Flush())
	m.Record(QueryEvent{Query: "one", ResultCount: 1})
	require.NoError(t, m.Close())

	assert.Equal(t, 1, s.applied)
	assert.Equal(t, int64(1), s.last.Queries())
}

func TestQueryMetricsConfig_Defaults(t *testing.T) {
	cfg := DefaultQueryMetricsConfig()

	assert.Equal(t, QueryMetricsConfig{
		TopTermsCapacity:      100,
		ZeroResultsCapacity:   100,
		RecentQueriesCapacity: 500,
		FlushInterval:         time.Minute,
	}, cfg)
	assert.Equal(t, 100, QueryMetricsConfig{TopTermsCapacity: -1}.withDefaults().TopTermsCapacity)
}

// countingStore records the deltas handed to it.
type countingStore struct {
	applied int
	last    Delta
}

func (s *countingStore) Apply(_ string, d Delta) error {
	s.applied++
	s.last = d
	return nil
}

func (s *countingStore) Snapshot(string, string, int) (*QueryMetricsSnapshot, error) {
	return snapshotOf(newCounts()), nil
}

func (s *countingStore) Close() error { return nil }
