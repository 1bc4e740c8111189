// Package store persists the query log: one row per processed query with its
// classification, outcome and cost. The log feeds three consumers: the
// per-user rate limit (count of recent successful queries), the /stats
// analytics endpoint, and operator inspection of recent traffic.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// Record is one processed query as written to the log.
type Record struct {
	// UserID identifies the requesting user (e.g. a phone number).
	UserID string `json:"user_id"`
	// Query is the original query text.
	Query string `json:"query"`
	// Intent is the classified intent, or a failure marker such as "rejected".
	Intent string `json:"intent"`
	// Response is the text returned to the user.
	Response string `json:"response"`
	// Success reports whether the pipeline produced an answer.
	Success bool `json:"success"`
	// Error is the failure detail for unsuccessful queries.
	Error string `json:"error,omitempty"`
	// TokensUsed is the LLM token cost of the query, 0 when no model ran.
	TokensUsed int `json:"tokens_used"`
	// ProcessingTime is the end-to-end latency in seconds.
	ProcessingTime float64 `json:"processing_time"`
	// CreatedAt is when the record was written. Zero means "now".
	CreatedAt time.Time `json:"created_at"`
}

// Stats is an aggregate view over the whole query log.
type Stats struct {
	// TotalQueries is the number of logged queries.
	TotalQueries int `json:"total_queries"`
	// SuccessfulQueries is the number of queries answered successfully.
	SuccessfulQueries int `json:"successful_queries"`
	// SuccessRate is SuccessfulQueries/TotalQueries as a percentage.
	SuccessRate float64 `json:"success_rate"`
	// UniqueUsers is the number of distinct user IDs seen.
	UniqueUsers int `json:"unique_users"`
	// IntentDistribution maps each intent to its query count.
	IntentDistribution map[string]int `json:"intent_distribution"`
}

// QueryLog persists and aggregates processed queries. Implementations must
// be safe for concurrent use.
type QueryLog interface {
	// Append writes one record to the log.
	Append(ctx context.Context, rec Record) error
	// CountRecentSuccesses returns how many successful queries the user has
	// logged strictly after since. The per-user rate limit is built on it.
	CountRecentSuccesses(ctx context.Context, userID string, since time.Time) (int, error)
	// Recent returns the newest n records, newest-first.
	Recent(ctx context.Context, n int) ([]Record, error)
	// Stats aggregates the whole log.
	Stats(ctx context.Context) (Stats, error)
	// Close releases any resources held by the log.
	Close() error
}

// SQLiteStore is a QueryLog backed by a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// DefaultDBPath resolves to ~/.knowligo/knowligo.db, creating the directory
// when it does not exist yet.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: resolve home directory: %w", err)
	}
	dir := filepath.Join(home, ".knowligo")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: create %s: %w", dir, err)
	}
	return filepath.Join(dir, "knowligo.db"), nil
}

// Open opens the query log database at path, creating the file and schema on
// first use. Tests can pass ":memory:".
func Open(path string) (*SQLiteStore, error) {
	// WAL lets /stats reads proceed while the pipeline appends.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// A single connection; concurrent writers would trip SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS query_logs (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id         TEXT    NOT NULL,
    query           TEXT    NOT NULL,
    intent          TEXT    NOT NULL DEFAULT '',
    response        TEXT    NOT NULL DEFAULT '',
    success         INTEGER NOT NULL DEFAULT 1,
    error           TEXT    NOT NULL DEFAULT '',
    tokens_used     INTEGER NOT NULL DEFAULT 0,
    processing_time REAL    NOT NULL DEFAULT 0.0,
    created_at      INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_query_logs_user_created
    ON query_logs (user_id, created_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Append writes one record to the log.
func (s *SQLiteStore) Append(ctx context.Context, rec Record) error {
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	success := 0
	if rec.Success {
		success = 1
	}

	const q = `
INSERT INTO query_logs (user_id, query, intent, response, success, error, tokens_used, processing_time, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q,
		rec.UserID, rec.Query, rec.Intent, rec.Response, success,
		rec.Error, rec.TokensUsed, rec.ProcessingTime, created.Unix(),
	)
	if err != nil {
		return fmt.Errorf("store: append: %w", err)
	}
	return nil
}

// CountRecentSuccesses returns how many successful queries the user has
// logged strictly after since.
func (s *SQLiteStore) CountRecentSuccesses(ctx context.Context, userID string, since time.Time) (int, error) {
	const q = `
SELECT COUNT(*) FROM query_logs
WHERE  user_id = ? AND created_at > ? AND success = 1`

	var count int
	if err := s.db.QueryRowContext(ctx, q, userID, since.Unix()).Scan(&count); err != nil {
		return 0, fmt.Errorf("store: count recent successes: %w", err)
	}
	return count, nil
}

// Recent returns the newest n records, newest-first.
func (s *SQLiteStore) Recent(ctx context.Context, n int) ([]Record, error) {
	const q = `
SELECT user_id, query, intent, response, success, error, tokens_used, processing_time, created_at
FROM   query_logs
ORDER  BY created_at DESC, id DESC
LIMIT  ?`

	rows, err := s.db.QueryContext(ctx, q, n)
	if err != nil {
		return nil, fmt.Errorf("store: recent: %w", err)
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var rec Record
		var success int
		var ts int64
		if err := rows.Scan(&rec.UserID, &rec.Query, &rec.Intent, &rec.Response,
			&success, &rec.Error, &rec.TokensUsed, &rec.ProcessingTime, &ts); err != nil {
			return nil, fmt.Errorf("store: recent scan: %w", err)
		}
		rec.Success = success == 1
		rec.CreatedAt = time.Unix(ts, 0)
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: recent rows: %w", err)
	}
	return recs, nil
}

// Stats aggregates the whole log.
func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM query_logs`).Scan(&st.TotalQueries); err != nil {
		return Stats{}, fmt.Errorf("store: stats total: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM query_logs WHERE success = 1`).Scan(&st.SuccessfulQueries); err != nil {
		return Stats{}, fmt.Errorf("store: stats successes: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT user_id) FROM query_logs`).Scan(&st.UniqueUsers); err != nil {
		return Stats{}, fmt.Errorf("store: stats users: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT intent, COUNT(*) AS count
FROM   query_logs
GROUP  BY intent
ORDER  BY count DESC`)
	if err != nil {
		return Stats{}, fmt.Errorf("store: stats intents: %w", err)
	}
	defer rows.Close()

	st.IntentDistribution = make(map[string]int)
	for rows.Next() {
		var intent string
		var count int
		if err := rows.Scan(&intent, &count); err != nil {
			return Stats{}, fmt.Errorf("store: stats intents scan: %w", err)
		}
		st.IntentDistribution[intent] = count
	}
	if err := rows.Err(); err != nil {
		return Stats{}, fmt.Errorf("store: stats intents rows: %w", err)
	}

	if st.TotalQueries > 0 {
		st.SuccessRate = float64(st.SuccessfulQueries) / float64(st.TotalQueries) * 100
	}
	return st, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
