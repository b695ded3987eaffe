package telemetry

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// maxNoCandidateRows bounds the persisted no-candidate log.
const maxNoCandidateRows = 100

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	ownsDB bool
}

var _ Store = (*SQLiteStore)(nil)

// Open opens (or creates) a telemetry database at path and ensures the
// schema exists. Use ":memory:" for an ephemeral store.
func Open(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create telemetry dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open telemetry db: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("configure telemetry db: %w", err)
	}
	if err := InitSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db, ownsDB: true}, nil
}

// NewSQLiteStore wraps an existing connection. The caller keeps ownership
// of db and must have created the schema with InitSchema.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &SQLiteStore{db: db}, nil
}

// InitSchema creates the telemetry tables if they don't exist.
func InitSchema(db *sql.DB) error {
	schema := `
	-- Daily counters (mode, reason, fallback, latency, request, answer)
	CREATE TABLE IF NOT EXISTS counters (
		date TEXT NOT NULL,
		family TEXT NOT NULL,
		key TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (date, family, key)
	);

	-- Top query terms (with frequency count)
	CREATE TABLE IF NOT EXISTS query_terms (
		term TEXT PRIMARY KEY,
		count INTEGER NOT NULL DEFAULT 1,
		last_seen TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_query_terms_count ON query_terms(count DESC);

	-- Queries that retrieved nothing (bounded FIFO)
	CREATE TABLE IF NOT EXISTS no_candidate_queries (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL,
		query TEXT NOT NULL,
		reason TEXT NOT NULL,
		timestamp TEXT NOT NULL
	);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create telemetry schema: %w", err)
	}
	return nil
}

// SaveCounts adds daily counts for one counter family.
func (s *SQLiteStore) SaveCounts(date, family string, counts map[string]int64) error {
	if len(counts) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
		INSERT INTO counters (date, family, key, count)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(date, family, key) DO UPDATE SET count = count + excluded.count
	`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for key, count := range counts {
		if _, err := stmt.Exec(date, family, key, count); err != nil {
			return fmt.Errorf("insert %s count: %w", family, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// GetCounts sums a family's counts over an inclusive date range.
func (s *SQLiteStore) GetCounts(family, from, to string) (map[string]int64, error) {
	rows, err := s.db.Query(`
		SELECT key, SUM(count) AS total
		FROM counters
		WHERE family = ? AND date >= ? AND date <= ?
		GROUP BY key
	`, family, from, to)
	if err != nil {
		return nil, fmt.Errorf("query %s counts: %w", family, err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		counts[key] = count
	}
	return counts, rows.Err()
}

// UpsertTermCounts updates term frequency counts.
func (s *SQLiteStore) UpsertTermCounts(terms map[string]int64) error {
	if len(terms) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
		INSERT INTO query_terms (term, count, last_seen)
		VALUES (?, ?, ?)
		ON CONFLICT(term) DO UPDATE SET
			count = count + excluded.count,
			last_seen = excluded.last_seen
	`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for term, count := range terms {
		if _, err := stmt.Exec(term, count, now); err != nil {
			return fmt.Errorf("upsert term count: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// GetTopTerms retrieves the top N terms by frequency.
func (s *SQLiteStore) GetTopTerms(limit int) ([]TermCount, error) {
	rows, err := s.db.Query(`
		SELECT term, count
		FROM query_terms
		ORDER BY count DESC, term ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query top terms: %w", err)
	}
	defer rows.Close()

	var terms []TermCount
	for rows.Next() {
		var tc TermCount
		if err := rows.Scan(&tc.Term, &tc.Count); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		terms = append(terms, tc)
	}
	return terms, rows.Err()
}

// AddNoCandidateQuery appends a query and trims the log to the newest
// maxNoCandidateRows entries.
func (s *SQLiteStore) AddNoCandidateQuery(q NoCandidateQuery) error {
	_, err := s.db.Exec(`
		INSERT INTO no_candidate_queries (id, query, reason, timestamp)
		VALUES (?, ?, ?, ?)
	`, q.ID, q.Query, q.Reason, q.Timestamp.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert no-candidate query: %w", err)
	}

	_, err = s.db.Exec(`
		DELETE FROM no_candidate_queries
		WHERE seq NOT IN (
			SELECT seq FROM no_candidate_queries
			ORDER BY seq DESC
			LIMIT ?
		)
	`, maxNoCandidateRows)
	if err != nil {
		return fmt.Errorf("trim no-candidate queries: %w", err)
	}
	return nil
}

// GetNoCandidateQueries retrieves recent no-candidate queries, newest first.
func (s *SQLiteStore) GetNoCandidateQueries(limit int) ([]NoCandidateQuery, error) {
	rows, err := s.db.Query(`
		SELECT id, query, reason, timestamp
		FROM no_candidate_queries
		ORDER BY seq DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query no-candidate queries: %w", err)
	}
	defer rows.Close()

	var queries []NoCandidateQuery
	for rows.Next() {
		var q NoCandidateQuery
		var ts string
		if err := rows.Scan(&q.ID, &q.Query, &q.Reason, &ts); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		q.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		queries = append(queries, q)
	}
	return queries, rows.Err()
}

// Close releases resources. A shared connection is left open.
func (s *SQLiteStore) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}
