package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/tokindex/internal/config"
	tkerrors "github.com/Aman-CERP/tokindex/internal/errors"
	"github.com/Aman-CERP/tokindex/internal/output"
	"github.com/Aman-CERP/tokindex/internal/store"
	"github.com/Aman-CERP/tokindex/internal/telemetry"
	"github.com/Aman-CERP/tokindex/internal/ui"
)

// StatsOutput is the JSON structure of 'tokindex stats'.
type StatsOutput struct {
	Index   IndexStatsOutput  `json:"index"`
	Queries *QueryStatsOutput `json:"queries,omitempty"`
}

// IndexStatsOutput describes the container.
type IndexStatsOutput struct {
	Path          string    `json:"path"`
	Root          string    `json:"root"`
	FormatVersion uint16    `json:"format_version"`
	SizeBytes     int64     `json:"size_bytes"`
	Files         int       `json:"files"`
	Tokens        int       `json:"tokens"`
	Trigrams      int       `json:"trigrams"`
	BuiltAt       time.Time `json:"built_at"`
	MinLength     int       `json:"min_token_length"`
	Connectors    string    `json:"connectors"`
}

// QueryStatsOutput summarises recorded queries.
type QueryStatsOutput struct {
	Days              int                   `json:"days"`
	Total             int64                 `json:"total"`
	ZeroResults       int64                 `json:"zero_results"`
	ZeroResultPct     float64               `json:"zero_result_pct"`
	QueryTypes        map[string]int64      `json:"query_types"`
	Latency           map[string]int64      `json:"latency"`
	TopTerms          []telemetry.TermCount `json:"top_terms"`
	RecentZeroResults []string              `json:"recent_zero_results"`
}

func newStatsCmd() *cobra.Command {
	var (
		format    string
		indexPath string
		days      int
		top       int
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index and query statistics",
		Long: `Show the container metadata and a summary of the queries recorded
by 'tokindex search' over the last days.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := output.ParseFormat(format)
			if err != nil {
				return tkerrors.ValidationError(err.Error(), nil)
			}
			if days < 1 {
				return tkerrors.ValidationError(fmt.Sprintf("--days must be at least 1, got %d", days), nil)
			}

			root, err := config.FindProjectRoot(".")
			if err != nil {
				return err
			}
			path, err := resolveIndexPath(indexPath, root)
			if err != nil {
				return err
			}

			stats, err := collectStats(path, days, top, time.Now())
			if err != nil {
				return err
			}
			if f == output.FormatJSON {
				return output.New(cmd.OutOrStdout()).JSON(stats)
			}
			printStats(output.NewWithColor(cmd.OutOrStdout(), !noColor(cmd)), stats)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().StringVar(&indexPath, "index", "", "Container to inspect instead of .tokindex/index.tkix")
	cmd.Flags().IntVar(&days, "days", 7, "Query statistics window in days")
	cmd.Flags().IntVar(&top, "top", 10, "Number of top terms and zero-result queries")

	return cmd
}

// collectStats reads the container and, when it exists, the telemetry database.
func collectStats(indexPath string, days, top int, now time.Time) (*StatsOutput, error) {
	info, err := store.Stat(indexPath)
	if err != nil {
		return nil, err
	}
	idx, err := store.Load(indexPath)
	if err != nil {
		return nil, err
	}

	meta := idx.Meta()
	stats := &StatsOutput{Index: IndexStatsOutput{
		Path:          indexPath,
		Root:          meta.Root,
		FormatVersion: meta.Version,
		SizeBytes:     info.Size,
		Files:         idx.FileCount(),
		Tokens:        idx.TokenCount(),
		Trigrams:      idx.TrigramCount(),
		BuiltAt:       meta.BuiltAt,
		MinLength:     meta.Policy.MinLength,
		Connectors:    meta.Policy.Connectors,
	}}

	// stats never creates the telemetry database
	dbPath := telemetry.DBPath(filepath.Dir(indexPath))
	if _, err := os.Stat(dbPath); err != nil {
		return stats, nil
	}
	st, err := telemetry.OpenSQLiteMetricsStore(dbPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = st.Close() }()

	from := now.AddDate(0, 0, -(days - 1)).Format(time.DateOnly)
	snap, err := telemetry.LoadSnapshot(st, from, now.Format(time.DateOnly), top)
	if err != nil {
		return nil, err
	}

	q := &QueryStatsOutput{
		Days:              days,
		Total:             snap.TotalQueries,
		ZeroResults:       snap.ZeroResultCount,
		ZeroResultPct:     snap.ZeroResultPercentage(),
		QueryTypes:        make(map[string]int64, len(snap.QueryTypeCounts)),
		Latency:           make(map[string]int64, len(snap.LatencyDistribution)),
		TopTerms:          snap.TopTerms,
		RecentZeroResults: snap.ZeroResultQueries,
	}
	for qt, n := range snap.QueryTypeCounts {
		q.QueryTypes[string(qt)] = n
	}
	for b, n := range snap.LatencyDistribution {
		q.Latency[string(b)] = n
	}
	stats.Queries = q
	return stats, nil
}

var latencyLabels = map[telemetry.LatencyBucket]string{
	telemetry.BucketP1:    "<1ms",
	telemetry.BucketP10:   "1-10ms",
	telemetry.BucketP50:   "10-50ms",
	telemetry.BucketP100:  "50-100ms",
	telemetry.BucketP1000: ">=100ms",
}

func printStats(out *output.Writer, stats *StatsOutput) {
	ix := stats.Index
	connectors := ix.Connectors
	if connectors == "" {
		connectors = "(none)"
	}

	out.Status("📦", "Index")
	out.KeyValues([]output.KV{
		{Key: "Path", Value: ix.Path},
		{Key: "Root", Value: ix.Root},
		{Key: "Size", Value: humanize.IBytes(uint64(ix.SizeBytes))},
		{Key: "Built", Value: fmt.Sprintf("%s (%s)", humanize.Time(ix.BuiltAt), ix.BuiltAt.Local().Format(time.DateTime))},
		{Key: "Files", Value: humanize.Comma(int64(ix.Files))},
		{Key: "Tokens", Value: humanize.Comma(int64(ix.Tokens))},
		{Key: "Trigrams", Value: humanize.Comma(int64(ix.Trigrams))},
		{Key: "Format", Value: fmt.Sprintf("v%d", ix.FormatVersion)},
		{Key: "Tokenizer", Value: fmt.Sprintf("min length %d, connectors %s", ix.MinLength, connectors)},
	})

	q := stats.Queries
	out.Newline()
	if q == nil {
		out.Hint("No queries recorded yet.")
		return
	}
	out.Statusf("🔎", "Queries (last %d days)", q.Days)
	if q.Total == 0 {
		out.Hint("   No queries in this period.")
		return
	}

	rows := []output.KV{
		{Key: "Total", Value: humanize.Comma(q.Total)},
		{Key: "Zero results", Value: fmt.Sprintf("%s (%.1f%%)", humanize.Comma(q.ZeroResults), q.ZeroResultPct)},
	}
	for _, qt := range []telemetry.QueryType{
		telemetry.QueryTypeExactAnd, telemetry.QueryTypeExactOr,
		telemetry.QueryTypeFuzzyAnd, telemetry.QueryTypeFuzzyOr,
	} {
		if n := q.QueryTypes[string(qt)]; n > 0 {
			rows = append(rows, output.KV{Key: string(qt), Value: humanize.Comma(n)})
		}
	}
	for _, b := range telemetry.LatencyBuckets {
		if n := q.Latency[string(b)]; n > 0 {
			rows = append(rows, output.KV{Key: latencyLabels[b], Value: humanize.Comma(n)})
		}
	}
	out.KeyValues(rows)

	if len(q.TopTerms) > 0 {
		terms := make([]string, 0, len(q.TopTerms))
		for _, tc := range q.TopTerms {
			terms = append(terms, fmt.Sprintf("%s (%d)", tc.Term, tc.Count))
		}
		out.Newline()
		out.Status("", "Top terms: "+strings.Join(terms, ", "))
	}
	if len(q.RecentZeroResults) > 0 {
		out.Status("", "Recent zero-result queries: "+strings.Join(q.RecentZeroResults, "; "))
	}
}

// noColor reports whether styled output should be disabled for cmd.
func noColor(cmd *cobra.Command) bool {
	return ui.DetectNoColor() || !ui.IsTTY(cmd.OutOrStdout())
}
