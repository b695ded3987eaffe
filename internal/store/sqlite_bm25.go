package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// SQLiteLexicalIndex implements LexicalIndex using an in-memory SQLite FTS5
// table. Content is pre-tokenized with Tokenize so both backends agree on
// what a term is; the negated FTS5 bm25() rank is the score.
type SQLiteLexicalIndex struct {
	mu     sync.RWMutex
	db     *sql.DB
	count  int
	closed bool
}

var _ LexicalIndex = (*SQLiteLexicalIndex)(nil)

// NewSQLiteLexicalIndex creates an empty in-memory FTS5 index.
func NewSQLiteLexicalIndex() (*SQLiteLexicalIndex, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// An in-memory database lives on exactly one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA cache_size = -65536", // 64MB cache (negative = KB)
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	idx := &SQLiteLexicalIndex{db: db}
	if err := idx.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return idx, nil
}

func (s *SQLiteLexicalIndex) initSchema() error {
	schema := `
	-- doc_id and ordinal are stored but not searchable
	CREATE VIRTUAL TABLE IF NOT EXISTS fts_content USING fts5(
		doc_id UNINDEXED,
		ordinal UNINDEXED,
		content,
		tokenize='unicode61'
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Index adds documents in indexing order.
func (s *SQLiteLexicalIndex) Index(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	insertStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO fts_content(doc_id, ordinal, content) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare FTS statement: %w", err)
	}
	defer insertStmt.Close()

	next := s.count
	for _, doc := range docs {
		content := strings.Join(Tokenize(doc.Content), " ")
		if _, err := insertStmt.ExecContext(ctx, doc.ID, next, content); err != nil {
			return fmt.Errorf("failed to index document %s: %w", doc.ID, err)
		}
		next++
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	s.count = next
	return nil
}

// Search scores every document matching any query token and returns the
// best limit results.
func (s *SQLiteLexicalIndex) Search(ctx context.Context, query string, limit int) ([]LexicalResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	expr := matchExpression(Tokenize(query))
	if expr == "" || limit <= 0 || s.count == 0 {
		return []LexicalResult{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT doc_id, ordinal, bm25(fts_content) AS score
		FROM fts_content
		WHERE content MATCH ?
	`, expr)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer rows.Close()

	var docs []scoredDoc
	for rows.Next() {
		var d scoredDoc
		if err := rows.Scan(&d.id, &d.ordinal, &d.score); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		// FTS5 bm25() returns negative scores where lower is better.
		d.score = -d.score
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read results: %w", err)
	}

	return rankLexical(docs, limit), nil
}

// matchExpression builds an FTS5 disjunction of quoted tokens.
func matchExpression(tokens []string) string {
	if len(tokens) == 0 {
		return ""
	}
	quoted := make([]string, len(tokens))
	for i, t := range tokens {
		quoted[i] = `"` + t + `"`
	}
	return strings.Join(quoted, " OR ")
}

// Stats returns index statistics.
func (s *SQLiteLexicalIndex) Stats() LexicalStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return LexicalStats{Backend: "sqlite", DocumentCount: s.count}
}

// Close closes the database.
func (s *SQLiteLexicalIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
