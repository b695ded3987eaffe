package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachedEmbedder_HitsSkipInner(t *testing.T) {
	// Given: a cached embedder
	inner := &countingEmbedder{vec: []float32{1, 0}, model: "m"}
	c := NewCachedEmbedder(inner, 10)

	// When: the same text is embedded twice
	first, err := c.Embed(context.Background(), "q")
	require.NoError(t, err)
	second, err := c.Embed(context.Background(), "q")
	require.NoError(t, err)

	// Then: the inner embedder is called once
	assert.Equal(t, int32(1), inner.calls.Load())
	assert.Equal(t, first, second)
	assert.Equal(t, 1, c.Len())
}

func TestCachedEmbedder_ReturnsCopies(t *testing.T) {
	inner := &countingEmbedder{vec: []float32{1, 0}, model: "m"}
	c := NewCachedEmbedder(inner, 10)

	v, _ := c.Embed(context.Background(), "q")
	v[0] = 42

	again, _ := c.Embed(context.Background(), "q")
	assert.Equal(t, float32(1), again[0])
}

func TestCachedEmbedder_ErrorsNotCached(t *testing.T) {
	inner := &countingEmbedder{err: errBoom, model: "m"}
	c := NewCachedEmbedder(inner, 10)

	_, err := c.Embed(context.Background(), "q")
	assert.ErrorIs(t, err, errBoom)
	_, err = c.Embed(context.Background(), "q")
	assert.ErrorIs(t, err, errBoom)

	assert.Equal(t, int32(2), inner.calls.Load())
	assert.Equal(t, 0, c.Len())
}

func TestCachedEmbedder_Evicts(t *testing.T) {
	inner := &countingEmbedder{vec: []float32{1}, model: "m"}
	c := NewCachedEmbedder(inner, 2)

	for _, q := range []string{"a", "b", "c"} {
		_, err := c.Embed(context.Background(), q)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, c.Len())

	_, _ = c.Embed(context.Background(), "a")
	assert.Equal(t, int32(4), inner.calls.Load())
}

func TestCachedEmbedder_Delegates(t *testing.T) {
	inner := &countingEmbedder{vec: []float32{1, 2, 3}, model: "m"}
	c := NewCachedEmbedder(inner, 0)

	assert.Equal(t, 3, c.Dimensions())
	assert.Equal(t, "m", c.ModelName())
	assert.Same(t, inner, c.Inner())
	assert.NoError(t, c.Close())
}
