package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// LexicalBackend names a LexicalIndex implementation.
type LexicalBackend string

const (
	// LexicalBackendBleve uses an in-memory bleve index (default).
	LexicalBackendBleve LexicalBackend = "bleve"

	// LexicalBackendSQLite uses an in-memory SQLite FTS5 table.
	LexicalBackendSQLite LexicalBackend = "sqlite"
)

// NewLexicalIndex creates an empty LexicalIndex for the named backend.
// An empty backend selects bleve.
func NewLexicalIndex(backend string) (LexicalIndex, error) {
	switch LexicalBackend(backend) {
	case LexicalBackendBleve, "":
		return NewBleveLexicalIndex()
	case LexicalBackendSQLite:
		return NewSQLiteLexicalIndex()
	default:
		return nil, fmt.Errorf("unknown lexical backend: %s (valid options: bleve, sqlite)", backend)
	}
}

// BuildLexicalIndex creates an index for backend and indexes docs in order.
func BuildLexicalIndex(ctx context.Context, backend string, docs []Document) (LexicalIndex, error) {
	start := time.Now()

	idx, err := NewLexicalIndex(backend)
	if err != nil {
		return nil, err
	}
	if err := idx.Index(ctx, docs); err != nil {
		_ = idx.Close()
		return nil, err
	}

	stats := idx.Stats()
	slog.Debug("lexical_index_built",
		slog.String("backend", stats.Backend),
		slog.Int("documents", stats.DocumentCount),
		slog.Duration("took", time.Since(start)))
	return idx, nil
}
