// Package store provides the lexical (bleve or SQLite FTS5) and dense (HNSW)
// indexes searched by the retrieval engine.
package store

import (
	"context"
	"fmt"
	"sort"

	amanerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// Document is a unit of text submitted to a lexical index.
type Document struct {
	ID      string // Chunk ID
	Content string // Text content
}

// LexicalResult is a scored lexical match.
type LexicalResult struct {
	ChunkID string
	Score   float64
	Rank    int // 1-based
}

// LexicalStats contains lexical index statistics.
type LexicalStats struct {
	Backend       string
	DocumentCount int
}

// LexicalIndex provides term-overlap search over the corpus.
//
// Documents are assigned ordinals in the order Index receives them. Search
// scores every matching document and breaks score ties by ordinal, so results
// are deterministic for a given corpus.
type LexicalIndex interface {
	// Index adds documents in indexing order.
	Index(ctx context.Context, docs []Document) error

	// Search returns at most limit results ranked by score descending.
	// A query without tokens, or an empty index, yields no results.
	Search(ctx context.Context, query string, limit int) ([]LexicalResult, error)

	// Stats returns index statistics.
	Stats() LexicalStats

	// Close releases resources.
	Close() error
}

// DenseResult is a scored dense match.
type DenseResult struct {
	Row     int
	ChunkID string
	Score   float64 // inner product
	Rank    int     // 1-based
}

// DenseIndex provides inner-product search over stored vectors.
type DenseIndex interface {
	// Search returns at most k rows ranked by score descending, ties by row.
	Search(ctx context.Context, query []float32, k int) ([]DenseResult, error)

	// Dimensions returns the stored vector width.
	Dimensions() int

	// Len returns the number of stored vectors.
	Len() int
}

// DenseConfig tunes the HNSW graph.
type DenseConfig struct {
	// M is the maximum number of neighbors per node.
	M int

	// EfSearch is the candidate list size during search.
	EfSearch int

	// ExactLimit is the row count at or below which Search scans every vector
	// instead of walking the graph. Zero selects the default; negative always
	// walks the graph.
	ExactLimit int
}

// DefaultDenseConfig returns graph defaults suitable for corpora of a few
// hundred thousand chunks.
func DefaultDenseConfig() DenseConfig {
	return DenseConfig{
		M:          16,
		EfSearch:   64,
		ExactLimit: 4096,
	}
}

// ErrDimensionMismatch indicates a query vector whose width differs from the
// stored vectors.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

var (
	// ErrDenseCountMismatch is returned when the dense corpus rows do not
	// line up with the stored vectors.
	ErrDenseCountMismatch = amanerrors.New(amanerrors.ErrCodeDenseCountMismatch,
		"dense corpus rows do not match stored vectors", nil)

	// ErrCorruptIndex is returned when a persisted graph cannot be read.
	ErrCorruptIndex = amanerrors.New(amanerrors.ErrCodeCorruptIndex,
		"dense index is unreadable", nil)

	// ErrClosed is returned by operations on a closed index.
	ErrClosed = fmt.Errorf("index is closed")
)

// scoredDoc is a lexical match before ranking.
type scoredDoc struct {
	id      string
	score   float64
	ordinal int
}

// rankLexical orders matches by score descending then ordinal ascending and
// assigns 1-based ranks to the first limit entries.
func rankLexical(docs []scoredDoc, limit int) []LexicalResult {
	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].score != docs[j].score {
			return docs[i].score > docs[j].score
		}
		return docs[i].ordinal < docs[j].ordinal
	})
	if limit >= 0 && len(docs) > limit {
		docs = docs[:limit]
	}

	results := make([]LexicalResult, len(docs))
	for i, d := range docs {
		results[i] = LexicalResult{ChunkID: d.id, Score: d.score, Rank: i + 1}
	}
	return results
}
