package embed

import (
	"context"
	"errors"
	"log/slog"

	amanerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// GuardedEmbedder fails fast while its circuit breaker is open, so a dead
// embedding service degrades queries immediately instead of after a timeout
// each.
type GuardedEmbedder struct {
	inner   Embedder
	breaker *amanerrors.CircuitBreaker
}

var _ Embedder = (*GuardedEmbedder)(nil)

// NewGuardedEmbedder wraps inner with breaker.
func NewGuardedEmbedder(inner Embedder, breaker *amanerrors.CircuitBreaker) *GuardedEmbedder {
	return &GuardedEmbedder{inner: inner, breaker: breaker}
}

// Embed delegates through the breaker. An open breaker yields an
// ErrCodeEmbedUnavailable error wrapping ErrCircuitOpen.
func (g *GuardedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := amanerrors.CircuitExecute(g.breaker, func() ([]float32, error) {
		return g.inner.Embed(ctx, text)
	})
	if errors.Is(err, amanerrors.ErrCircuitOpen) {
		slog.Debug("embed_circuit_open", slog.String("breaker", g.breaker.Name()))
		return nil, amanerrors.New(amanerrors.ErrCodeEmbedUnavailable, "embedding service circuit is open", err)
	}
	return vec, err
}

// State returns the breaker state.
func (g *GuardedEmbedder) State() amanerrors.State {
	return g.breaker.State()
}

// Dimensions delegates to the wrapped embedder.
func (g *GuardedEmbedder) Dimensions() int {
	return g.inner.Dimensions()
}

// ModelName delegates to the wrapped embedder.
func (g *GuardedEmbedder) ModelName() string {
	return g.inner.ModelName()
}

// Close closes the wrapped embedder.
func (g *GuardedEmbedder) Close() error {
	return g.inner.Close()
}
