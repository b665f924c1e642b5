package telemetry

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure Go driver, no cgo
)

// DBFileName is the telemetry database inside the index data directory.
const DBFileName = "telemetry.db"

// maxZeroResultQueries bounds the persisted zero-result log.
const maxZeroResultQueries = 100

// Metric names in the daily_counts table.
const (
	metricType    = "type"
	metricLatency = "latency"
	metricZero    = "zero"
)

const schema = `
CREATE TABLE IF NOT EXISTS daily_counts (
	date   TEXT NOT NULL,
	metric TEXT NOT NULL,
	key    TEXT NOT NULL,
	count  INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (date, metric, key)
);

CREATE TABLE IF NOT EXISTS terms (
	term      TEXT PRIMARY KEY,
	count     INTEGER NOT NULL,
	last_seen TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_terms_count ON terms(count DESC);

CREATE TABLE IF NOT EXISTS zero_result_log (
	id    INTEGER PRIMARY KEY AUTOINCREMENT,
	query TEXT NOT NULL,
	at    TIMESTAMP NOT NULL
);
`

// DBPath returns the telemetry database path for a data directory.
func DBPath(dataDir string) string {
	return filepath.Join(dataDir, DBFileName)
}

// SQLiteMetricsStore is a Store in a SQLite file.
type SQLiteMetricsStore struct {
	db *sql.DB
}

// OpenSQLiteMetricsStore opens (creating if needed) the database at path.
func OpenSQLiteMetricsStore(path string) (*SQLiteMetricsStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create telemetry directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open telemetry db: %w", err)
	}
	// one writer; WAL lets a concurrent `stats` read
	db.SetMaxOpenConns(1)

	// modernc.org/sqlite ignores most DSN pragmas
	for _, stmt := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		schema,
	} {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init telemetry db: %w", err)
		}
	}
	return &SQLiteMetricsStore{db: db}, nil
}

// Apply adds d to the totals for date in one transaction.
func (s *SQLiteMetricsStore) Apply(date string, d Delta) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin telemetry flush: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := addDailyCounts(tx, date, d.Counts); err != nil {
		return err
	}
	if err := addTerms(tx, d.Terms); err != nil {
		return err
	}
	if err := logZeroResults(tx, d.ZeroQueries); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit telemetry flush: %w", err)
	}
	return nil
}

func addDailyCounts(tx *sql.Tx, date string, c Counts) error {
	stmt, err := tx.Prepare(`
		INSERT INTO daily_counts (date, metric, key, count) VALUES (?, ?, ?, ?)
		ON CONFLICT(date, metric, key) DO UPDATE SET count = count + excluded.count`)
	if err != nil {
		return fmt.Errorf("prepare daily counts: %w", err)
	}
	defer stmt.Close()

	add := func(metric, key string, n int64) error {
		if n == 0 {
			return nil
		}
		if _, err := stmt.Exec(date, metric, key, n); err != nil {
			return fmt.Errorf("add %s count: %w", metric, err)
		}
		return nil
	}
	for qt, n := range c.Types {
		if err := add(metricType, string(qt), n); err != nil {
			return err
		}
	}
	for b, n := range c.Latencies {
		if err := add(metricLatency, string(b), n); err != nil {
			return err
		}
	}
	return add(metricZero, "", c.ZeroResult)
}

func addTerms(tx *sql.Tx, terms map[string]int64) error {
	if len(terms) == 0 {
		return nil
	}
	stmt, err := tx.Prepare(`
		INSERT INTO terms (term, count, last_seen) VALUES (?, ?, ?)
		ON CONFLICT(term) DO UPDATE SET count = count + excluded.count, last_seen = excluded.last_seen`)
	if err != nil {
		return fmt.Errorf("prepare terms: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for term, n := range terms {
		if _, err := stmt.Exec(term, n, now); err != nil {
			return fmt.Errorf("add term count: %w", err)
		}
	}
	return nil
}

// logZeroResults appends to the zero-result log and trims it to the newest
// maxZeroResultQueries entries.
func logZeroResults(tx *sql.Tx, events []QueryEvent) error {
	if len(events) == 0 {
		return nil
	}
	for _, e := range events {
		if _, err := tx.Exec(`INSERT INTO zero_result_log (query, at) VALUES (?, ?)`, e.Query, e.Timestamp.UTC()); err != nil {
			return fmt.Errorf("log zero-result query: %w", err)
		}
	}
	_, err := tx.Exec(`
		DELETE FROM zero_result_log
		WHERE id <= (SELECT id FROM zero_result_log ORDER BY id DESC LIMIT 1 OFFSET ?)`,
		maxZeroResultQueries)
	if err != nil {
		return fmt.Errorf("trim zero-result log: %w", err)
	}
	return nil
}

// Snapshot implements Store.
func (s *SQLiteMetricsStore) Snapshot(from, to string, topN int) (*QueryMetricsSnapshot, error) {
	counts, err := s.dailyCounts(from, to)
	if err != nil {
		return nil, err
	}
	snap := snapshotOf(counts)
	if snap.TopTerms, err = s.topTerms(topN); err != nil {
		return nil, err
	}
	if snap.ZeroResultQueries, err = s.zeroResultQueries(topN); err != nil {
		return nil, err
	}
	if t, err := time.Parse(time.DateOnly, from); err == nil {
		snap.Since = t
	}
	return snap, nil
}

func (s *SQLiteMetricsStore) dailyCounts(from, to string) (Counts, error) {
	c := newCounts()
	rows, err := s.db.Query(`
		SELECT metric, key, SUM(count) FROM daily_counts
		WHERE date >= ? AND date <= ?
		GROUP BY metric, key`, from, to)
	if err != nil {
		return c, fmt.Errorf("query daily counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			metric, key string
			n           int64
		)
		if err := rows.Scan(&metric, &key, &n); err != nil {
			return c, fmt.Errorf("scan daily count: %w", err)
		}
		switch metric {
		case metricType:
			c.Types[QueryType(key)] = n
		case metricLatency:
			c.Latencies[LatencyBucket(key)] = n
		case metricZero:
			c.ZeroResult = n
		}
	}
	return c, rows.Err()
}

func (s *SQLiteMetricsStore) topTerms(limit int) ([]TermCount, error) {
	rows, err := s.db.Query(`SELECT term, count FROM terms ORDER BY count DESC, term ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query top terms: %w", err)
	}
	defer rows.Close()

	var terms []TermCount
	for rows.Next() {
		var tc TermCount
		if err := rows.Scan(&tc.Term, &tc.Count); err != nil {
			return nil, fmt.Errorf("scan term: %w", err)
		}
		terms = append(terms, tc)
	}
	return terms, rows.Err()
}

// zeroResultQueries returns logged zero-result queries, newest first.
func (s *SQLiteMetricsStore) zeroResultQueries(limit int) ([]string, error) {
	rows, err := s.db.Query(`SELECT query FROM zero_result_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query zero-result log: %w", err)
	}
	defer rows.Close()

	var queries []string
	for rows.Next() {
		var q string
		if err := rows.Scan(&q); err != nil {
			return nil, fmt.Errorf("scan zero-result query: %w", err)
		}
		queries = append(queries, q)
	}
	return queries, rows.Err()
}

// Close closes the database.
func (s *SQLiteMetricsStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteMetricsStore)(nil)
