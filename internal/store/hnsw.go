package store

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/coder/hnsw"

	"github.com/Aman-CERP/amanrag/internal/corpus"
	amanerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// HNSWDenseIndex implements DenseIndex on a coder/hnsw graph keyed by row.
//
// Scores are exact inner products recomputed from the stored vectors; the
// graph only proposes candidates. Indexes at or below DenseConfig.ExactLimit
// rows are scanned in full.
type HNSWDenseIndex struct {
	mu      sync.RWMutex
	graph   *hnsw.Graph[uint64]
	vectors [][]float32 // by row
	ids     []string    // by row; empty until rows are attached
	dims    int
	config  DenseConfig
}

var _ DenseIndex = (*HNSWDenseIndex)(nil)

func newGraph(cfg DenseConfig) *hnsw.Graph[uint64] {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25
	return graph
}

func normalizeConfig(cfg DenseConfig) DenseConfig {
	def := DefaultDenseConfig()
	if cfg.M <= 0 {
		cfg.M = def.M
	}
	if cfg.EfSearch <= 0 {
		cfg.EfSearch = def.EfSearch
	}
	if cfg.ExactLimit == 0 {
		cfg.ExactLimit = def.ExactLimit
	}
	return cfg
}

// BuildHNSW builds a graph over vectors, where vectors[i] is row i.
// Every vector must share one non-zero width. Rows are attached with
// NewHNSWDenseIndex or on Load.
func BuildHNSW(vectors [][]float32, cfg DenseConfig) (*HNSWDenseIndex, error) {
	cfg = normalizeConfig(cfg)
	if len(vectors) == 0 {
		return nil, fmt.Errorf("no vectors to index")
	}

	dims := len(vectors[0])
	if dims == 0 {
		return nil, fmt.Errorf("vectors have zero width")
	}

	graph := newGraph(cfg)
	stored := make([][]float32, len(vectors))
	for row, v := range vectors {
		if len(v) != dims {
			return nil, ErrDimensionMismatch{Expected: dims, Got: len(v)}
		}
		vec := make([]float32, dims)
		copy(vec, v)
		stored[row] = vec
		graph.Add(hnsw.MakeNode(uint64(row), vec))
	}

	return &HNSWDenseIndex{
		graph:   graph,
		vectors: stored,
		dims:    dims,
		config:  cfg,
	}, nil
}

// NewHNSWDenseIndex builds an in-memory index and attaches rows to it.
func NewHNSWDenseIndex(vectors [][]float32, rows []corpus.RowRef, cfg DenseConfig) (*HNSWDenseIndex, error) {
	idx, err := BuildHNSW(vectors, cfg)
	if err != nil {
		return nil, err
	}
	if err := idx.attach(rows); err != nil {
		return nil, err
	}
	return idx, nil
}

// attach maps rows to chunk ids. rows must be sorted and unique, as returned
// by corpus.Store.Rows, and cover exactly [0, Len).
func (s *HNSWDenseIndex) attach(rows []corpus.RowRef) error {
	n := len(s.vectors)
	if len(rows) != n {
		return amanerrors.New(amanerrors.ErrCodeDenseCountMismatch,
			fmt.Sprintf("dense corpus has %d rows but the index holds %d vectors", len(rows), n), nil).
			WithDetail("rows", fmt.Sprint(len(rows))).
			WithDetail("vectors", fmt.Sprint(n)).
			WithSuggestion("Rebuild the dense index and meta file together")
	}

	ids := make([]string, n)
	for i, r := range rows {
		if r.Row != i {
			return amanerrors.New(amanerrors.ErrCodeDenseCountMismatch,
				fmt.Sprintf("dense corpus row %d has no vector", r.Row), nil).
				WithSuggestion("Rebuild the dense index and meta file together")
		}
		ids[i] = r.ChunkID
	}
	s.ids = ids
	return nil
}

// Save exports the graph to path under an exclusive artifact lock.
func (s *HNSWDenseIndex) Save(ctx context.Context, path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	lock := NewArtifactLock(dir)
	if err := lock.Lock(ctx); err != nil {
		return err
	}
	defer func() { _ = lock.Unlock() }()

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}

	w := bufio.NewWriter(file)
	if err := s.graph.Export(w); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to export graph: %w", err)
	}
	if err := w.Flush(); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to flush index file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close index file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename index file: %w", err)
	}
	return nil
}

// LoadHNSW imports the graph at path under a shared artifact lock and attaches
// rows. An unreadable graph returns ErrCorruptIndex; rows that do not line up
// with the stored vectors return ErrDenseCountMismatch.
func LoadHNSW(ctx context.Context, path string, rows []corpus.RowRef, cfg DenseConfig) (*HNSWDenseIndex, error) {
	cfg = normalizeConfig(cfg)
	start := time.Now()

	lock := NewArtifactLock(filepath.Dir(path))
	if err := lock.RLock(ctx); err != nil {
		return nil, err
	}
	defer func() { _ = lock.Unlock() }()

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index file: %w", err)
	}
	defer file.Close()

	graph := newGraph(cfg)
	if err := graph.Import(bufio.NewReader(file)); err != nil {
		return nil, amanerrors.New(amanerrors.ErrCodeCorruptIndex,
			fmt.Sprintf("failed to import graph from %s", path), err)
	}
	// Search parameters come from config, not from the exported stream.
	graph.EfSearch = cfg.EfSearch

	n := graph.Len()
	vectors := make([][]float32, n)
	dims := 0
	for row := 0; row < n; row++ {
		vec, ok := graph.Lookup(uint64(row))
		if !ok {
			return nil, amanerrors.New(amanerrors.ErrCodeDenseCountMismatch,
				fmt.Sprintf("index has %d vectors but row %d is missing", n, row), nil)
		}
		if dims == 0 {
			dims = len(vec)
		}
		vectors[row] = vec
	}

	idx := &HNSWDenseIndex{
		graph:   graph,
		vectors: vectors,
		dims:    dims,
		config:  cfg,
	}
	if err := idx.attach(rows); err != nil {
		return nil, err
	}

	slog.Debug("dense_index_loaded",
		slog.String("path", path),
		slog.Int("vectors", n),
		slog.Int("dimensions", dims),
		slog.Duration("took", time.Since(start)))
	return idx, nil
}

// Search returns the k rows with the highest inner product with query.
func (s *HNSWDenseIndex) Search(ctx context.Context, query []float32, k int) ([]DenseResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(query) != s.dims {
		return nil, ErrDimensionMismatch{Expected: s.dims, Got: len(query)}
	}
	if k <= 0 || len(s.vectors) == 0 {
		return []DenseResult{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var candidates []int
	if len(s.vectors) <= s.config.ExactLimit {
		candidates = make([]int, len(s.vectors))
		for row := range candidates {
			candidates[row] = row
		}
	} else {
		nodes := s.graph.Search(query, k)
		candidates = make([]int, 0, len(nodes))
		for _, node := range nodes {
			candidates = append(candidates, int(node.Key))
		}
	}

	results := make([]DenseResult, 0, len(candidates))
	for _, row := range candidates {
		if row < 0 || row >= len(s.vectors) {
			continue
		}
		r := DenseResult{Row: row, Score: dot(query, s.vectors[row])}
		if row < len(s.ids) {
			r.ChunkID = s.ids[row]
		}
		results = append(results, r)
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Row < results[j].Row
	})
	if len(results) > k {
		results = results[:k]
	}
	for i := range results {
		results[i].Rank = i + 1
	}
	return results, nil
}

// Dimensions returns the stored vector width.
func (s *HNSWDenseIndex) Dimensions() int {
	return s.dims
}

// Len returns the number of stored vectors.
func (s *HNSWDenseIndex) Len() int {
	return len(s.vectors)
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
