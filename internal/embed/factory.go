package embed

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/Aman-CERP/amanrag/internal/config"
	amanerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// ProviderType represents an embedding provider.
type ProviderType string

const (
	// ProviderOllama uses the Ollama /api/embed endpoint (default).
	ProviderOllama ProviderType = config.ProviderOllama

	// ProviderOpenAI uses an OpenAI-compatible /v1/embeddings endpoint.
	ProviderOpenAI ProviderType = config.ProviderOpenAI

	// ProviderStatic uses hash-based embeddings with no service.
	ProviderStatic ProviderType = config.ProviderStatic
)

// ParseProvider converts a string to ProviderType. Unknown names map to Ollama.
func ParseProvider(s string) ProviderType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(ProviderOpenAI):
		return ProviderOpenAI
	case string(ProviderStatic):
		return ProviderStatic
	default:
		return ProviderOllama
	}
}

// NewProvider creates the bare embedder named by cfg.Provider.
func NewProvider(cfg config.EmbeddingsConfig) (Embedder, error) {
	switch ParseProvider(cfg.Provider) {
	case ProviderStatic:
		return NewStaticEmbedder(cfg.Dimensions), nil
	case ProviderOpenAI:
		return NewOpenAIEmbedder(OpenAIConfig{
			Host:       cfg.Host,
			Model:      cfg.Model,
			APIKey:     cfg.APIKey,
			Dimensions: cfg.Dimensions,
		}), nil
	case ProviderOllama:
		return NewOllamaEmbedder(OllamaConfig{
			Host:       cfg.Host,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		}), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
}

// NewFromConfig creates the query embedder: the provider behind a circuit
// breaker, behind an LRU cache. The static provider needs neither guard.
func NewFromConfig(cfg config.EmbeddingsConfig) (Embedder, error) {
	provider, err := NewProvider(cfg)
	if err != nil {
		return nil, err
	}

	var embedder Embedder = provider
	if ParseProvider(cfg.Provider) != ProviderStatic {
		breaker := amanerrors.NewCircuitBreaker("embed-"+string(ParseProvider(cfg.Provider)),
			amanerrors.WithMaxFailures(cfg.BreakerThreshold),
			amanerrors.WithResetTimeout(cfg.BreakerTimeout))
		embedder = NewGuardedEmbedder(embedder, breaker)
		embedder = NewCachedEmbedder(embedder, cfg.CacheSize)
	}

	slog.Debug("embedder_created",
		slog.String("provider", string(ParseProvider(cfg.Provider))),
		slog.String("model", embedder.ModelName()),
		slog.Int("dimensions", embedder.Dimensions()))
	return embedder, nil
}
