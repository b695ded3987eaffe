package embed

import (
	"context"
	"errors"
	"sync/atomic"
)

// countingEmbedder returns a fixed vector and counts calls.
type countingEmbedder struct {
	calls atomic.Int32
	vec   []float32
	err   error
	model string
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	out := make([]float32, len(c.vec))
	copy(out, c.vec)
	return out, nil
}

func (c *countingEmbedder) Dimensions() int   { return len(c.vec) }
func (c *countingEmbedder) ModelName() string { return c.model }
func (c *countingEmbedder) Close() error      { return nil }

var errBoom = errors.New("boom")
