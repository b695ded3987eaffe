package store

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanrag/internal/corpus"
	amanerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

func rowRefs(n int) []corpus.RowRef {
	refs := make([]corpus.RowRef, n)
	for i := range refs {
		refs[i] = corpus.RowRef{Row: i, ChunkID: "c" + string(rune('a'+i%26)) + string(rune('0'+i/26%10))}
	}
	return refs
}

func unit(angle float64) []float32 {
	return []float32{float32(math.Cos(angle)), float32(math.Sin(angle))}
}

func TestHNSWDenseIndex_SearchExactInnerProduct(t *testing.T) {
	// Given: three vectors where rows 0 and 2 tie for the query
	vectors := [][]float32{{1, 0}, {0, 1}, {1, 0}}
	idx, err := NewHNSWDenseIndex(vectors, []corpus.RowRef{
		{Row: 0, ChunkID: "first"},
		{Row: 1, ChunkID: "second"},
		{Row: 2, ChunkID: "third"},
	}, DefaultDenseConfig())
	require.NoError(t, err)

	// When: searching
	results, err := idx.Search(context.Background(), []float32{0.8, 0.2}, 3)
	require.NoError(t, err)

	// Then: scores are inner products, ties ordered by row
	require.Len(t, results, 3)
	assert.Equal(t, []int{0, 2, 1}, []int{results[0].Row, results[1].Row, results[2].Row})
	assert.Equal(t, "first", results[0].ChunkID)
	assert.Equal(t, "third", results[1].ChunkID)
	assert.InDelta(t, 0.8, results[0].Score, 1e-6)
	assert.InDelta(t, 0.2, results[2].Score, 1e-6)
	assert.Equal(t, []int{1, 2, 3}, []int{results[0].Rank, results[1].Rank, results[2].Rank})
}

func TestHNSWDenseIndex_SearchKeepsNegativeScores(t *testing.T) {
	idx, err := NewHNSWDenseIndex([][]float32{{1, 0}, {-1, 0}}, rowRefs(2), DefaultDenseConfig())
	require.NoError(t, err)

	results, err := idx.Search(context.Background(), []float32{1, 0}, 5)
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.InDelta(t, -1.0, results[1].Score, 1e-6)
}

func TestHNSWDenseIndex_SearchLimitAndDimensions(t *testing.T) {
	idx, err := NewHNSWDenseIndex([][]float32{{1, 0}, {0, 1}, {1, 1}}, rowRefs(3), DefaultDenseConfig())
	require.NoError(t, err)
	assert.Equal(t, 2, idx.Dimensions())
	assert.Equal(t, 3, idx.Len())

	results, err := idx.Search(context.Background(), []float32{1, 0}, 1)
	require.NoError(t, err)
	assert.Len(t, results, 1)

	_, err = idx.Search(context.Background(), []float32{1, 0, 0}, 1)
	var dimErr ErrDimensionMismatch
	require.ErrorAs(t, err, &dimErr)
	assert.Equal(t, 2, dimErr.Expected)
	assert.Equal(t, 3, dimErr.Got)
}

func TestHNSWDenseIndex_GraphSearchFindsNearest(t *testing.T) {
	// Given: a ring of vectors searched through the graph
	const n = 200
	vectors := make([][]float32, n)
	for i := range vectors {
		vectors[i] = unit(2 * math.Pi * float64(i) / n)
	}
	cfg := DefaultDenseConfig()
	cfg.ExactLimit = -1
	cfg.EfSearch = 128
	idx, err := NewHNSWDenseIndex(vectors, rowRefs(n), cfg)
	require.NoError(t, err)

	// When: searching with a stored vector
	results, err := idx.Search(context.Background(), vectors[37], 5)
	require.NoError(t, err)

	// Then: the stored vector is the best match and order is by score
	require.NotEmpty(t, results)
	assert.Equal(t, 37, results[0].Row)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestBuildHNSW_RejectsBadInput(t *testing.T) {
	_, err := BuildHNSW(nil, DefaultDenseConfig())
	assert.Error(t, err)

	_, err = BuildHNSW([][]float32{{1, 0}, {1}}, DefaultDenseConfig())
	var dimErr ErrDimensionMismatch
	assert.ErrorAs(t, err, &dimErr)
}

func TestNewHNSWDenseIndex_CountMismatch(t *testing.T) {
	tests := []struct {
		name string
		rows []corpus.RowRef
	}{
		{"fewer rows than vectors", []corpus.RowRef{{Row: 0, ChunkID: "a"}}},
		{"more rows than vectors", []corpus.RowRef{{Row: 0, ChunkID: "a"}, {Row: 1, ChunkID: "b"}, {Row: 2, ChunkID: "c"}}},
		{"row outside the index", []corpus.RowRef{{Row: 0, ChunkID: "a"}, {Row: 5, ChunkID: "b"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewHNSWDenseIndex([][]float32{{1, 0}, {0, 1}}, tt.rows, DefaultDenseConfig())
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrDenseCountMismatch)
			assert.True(t, amanerrors.IsFatal(err))
		})
	}
}

func TestHNSWDenseIndex_SaveLoadRoundTrip(t *testing.T) {
	// Given: a saved index
	dir := t.TempDir()
	path := filepath.Join(dir, "index", "index.hnsw")
	vectors := [][]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}

	built, err := BuildHNSW(vectors, DefaultDenseConfig())
	require.NoError(t, err)
	require.NoError(t, built.Save(context.Background(), path))

	// When: loading it with matching rows
	loaded, err := LoadHNSW(context.Background(), path, rowRefs(3), DefaultDenseConfig())
	require.NoError(t, err)

	// Then: it searches like the original
	assert.Equal(t, 3, loaded.Len())
	assert.Equal(t, 3, loaded.Dimensions())
	results, err := loaded.Search(context.Background(), []float32{0, 1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].Row)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)

	// And: the lock file sits next to the artifact, temp files are gone
	assert.FileExists(t, filepath.Join(dir, "index", ArtifactLockName))
	assert.NoFileExists(t, path+".tmp")
}

func TestLoadHNSW_CountMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.hnsw")
	built, err := BuildHNSW([][]float32{{1, 0}, {0, 1}}, DefaultDenseConfig())
	require.NoError(t, err)
	require.NoError(t, built.Save(context.Background(), path))

	_, err = LoadHNSW(context.Background(), path, rowRefs(3), DefaultDenseConfig())
	assert.ErrorIs(t, err, ErrDenseCountMismatch)
}

func TestLoadHNSW_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.hnsw")
	require.NoError(t, os.WriteFile(path, []byte("not a graph"), 0644))

	_, err := LoadHNSW(context.Background(), path, rowRefs(1), DefaultDenseConfig())
	assert.ErrorIs(t, err, ErrCorruptIndex)
	assert.False(t, amanerrors.IsFatal(err))
}

func TestLoadHNSW_MissingFile(t *testing.T) {
	_, err := LoadHNSW(context.Background(), filepath.Join(t.TempDir(), "missing.hnsw"), nil, DefaultDenseConfig())
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrDenseCountMismatch)
}
