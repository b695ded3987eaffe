// Package embed turns query text into vectors for dense search.
//
// Providers are Ollama, OpenAI-compatible endpoints and a deterministic static
// hash embedder. NewFromConfig wraps the provider in a circuit breaker and an
// LRU cache.
package embed

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"time"

	amanerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

const (
	// DefaultTimeout bounds a single HTTP embedding call when the caller's
	// context carries no deadline.
	DefaultTimeout = 30 * time.Second

	// StaticDimensions is the default width of the static embedder.
	StaticDimensions = 256

	// PoolSize is the idle connection pool per embedding host.
	PoolSize = 4
)

// Embedder produces a query vector for text.
type Embedder interface {
	// Embed returns the L2-normalized embedding of text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the vector width, or 0 when not yet known.
	Dimensions() int

	// ModelName identifies the model for cache keys and diagnostics.
	ModelName() string

	// Close releases resources.
	Close() error
}

// ErrClosed is returned by a closed embedder.
var ErrClosed = errors.New("embedder is closed")

func newTransport() *http.Transport {
	return &http.Transport{
		MaxIdleConns:        PoolSize,
		MaxIdleConnsPerHost: PoolSize,
		MaxConnsPerHost:     PoolSize * 2,
		IdleConnTimeout:     10 * time.Second,
	}
}

// classify maps a transport failure to a structured error. Deadline
// expiry becomes ErrCodeEmbedTimeout; anything else is ErrCodeEmbedUnavailable.
func classify(op string, err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return amanerrors.New(amanerrors.ErrCodeEmbedTimeout, op+" timed out", err)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return amanerrors.New(amanerrors.ErrCodeEmbedUnavailable, op+" failed", err).
			WithSuggestion("Check that the embedding service is running and reachable")
	}
}

// statusError maps a non-200 response. Server errors are worth retrying;
// client errors mean the request itself is wrong.
func statusError(op string, status int, body string) error {
	msg := fmt.Sprintf("%s returned status %d: %s", op, status, body)
	if status >= 500 || status == http.StatusTooManyRequests {
		return amanerrors.New(amanerrors.ErrCodeEmbedUnavailable, msg, nil)
	}
	return amanerrors.New(amanerrors.ErrCodeEmbeddingFailed, msg, nil)
}

func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
