package search

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/Aman-CERP/amanrag/internal/config"
	"github.com/Aman-CERP/amanrag/internal/corpus"
	"github.com/Aman-CERP/amanrag/internal/embed"
	amanerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/store"
)

// ConfigFrom extracts engine defaults from the application config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		TopK:          cfg.Retrieval.TopK,
		MinScore:      cfg.Retrieval.MinScore,
		CandidatePool: cfg.Retrieval.CandidatePool,
		EmbedTimeout:  cfg.Retrieval.EmbedTimeout,
	}
}

// DenseConfigFrom extracts graph parameters from the application config.
func DenseConfigFrom(cfg *config.Config) store.DenseConfig {
	d := store.DefaultDenseConfig()
	if cfg.Dense.M > 0 {
		d.M = cfg.Dense.M
	}
	if cfg.Dense.EfSearch > 0 {
		d.EfSearch = cfg.Dense.EfSearch
	}
	return d
}

// Load builds a Retriever from persisted artifacts. It fails only on fatal
// conditions (an unusable corpus, dense rows that do not line up with the
// stored vectors); any other dense problem degrades to lexical retrieval
// with a recorded reason.
func Load(ctx context.Context, cfg *config.Config, opts ...Option) (*Retriever, error) {
	start := time.Now()

	chunks, err := corpus.Load(corpus.Sources{
		ChunksPath: cfg.Paths.Chunks,
		MetaPath:   cfg.Paths.Meta,
	})
	if err != nil {
		return nil, err
	}

	docs := make([]store.Document, 0, chunks.Len())
	for _, c := range chunks.All() {
		docs = append(docs, store.Document{ID: c.ID, Content: c.Text})
	}
	lexical, err := store.BuildLexicalIndex(ctx, cfg.Retrieval.LexicalBackend, docs)
	if err != nil {
		return nil, amanerrors.Wrap(amanerrors.ErrCodeInternal, err)
	}

	dense, embedder, err := loadDense(ctx, cfg, chunks)
	if err != nil {
		_ = lexical.Close()
		return nil, err
	}

	r := NewRetriever(chunks, lexical, dense, embedder, ConfigFrom(cfg), opts...)
	slog.Info("retriever_loaded",
		slog.Int("chunks", chunks.Len()),
		slog.String("lexical_backend", lexical.Stats().Backend),
		slog.Bool("dense", r.Dense().Available()),
		slog.String("dense_reason", string(r.Dense().Reason)),
		slog.Duration("took", time.Since(start)))
	return r, nil
}

// loadDense decides dense availability. Only a row/vector count mismatch is
// returned as an error.
func loadDense(ctx context.Context, cfg *config.Config, chunks *corpus.Store) (DenseAvailability, embed.Embedder, error) {
	if !cfg.Retrieval.Hybrid {
		return DenseUnavailable(ReasonConfigHybridDisabled), nil, nil
	}
	if !fileExists(cfg.Paths.Index) || !fileExists(cfg.Paths.Meta) {
		return DenseUnavailable(ReasonMissingDenseArtifacts), nil, nil
	}
	rows := chunks.Rows()
	if len(rows) == 0 {
		return DenseUnavailable(ReasonEmptyMetaRows), nil, nil
	}

	if embed.ParseProvider(cfg.Embeddings.Provider) == embed.ProviderOpenAI && cfg.Embeddings.APIKey == "" {
		slog.Warn("embedder_unconfigured", slog.String("provider", cfg.Embeddings.Provider))
		return DenseUnavailable(ReasonMissingEmbedder), nil, nil
	}
	embedder, err := embed.NewFromConfig(cfg.Embeddings)
	if err != nil {
		slog.Warn("embedder_create_failed", slog.String("error", err.Error()))
		return DenseUnavailable(ReasonMissingEmbedder), nil, nil
	}

	idx, err := store.LoadHNSW(ctx, cfg.Paths.Index, rows, DenseConfigFrom(cfg))
	if err != nil {
		_ = embedder.Close()
		if errors.Is(err, store.ErrDenseCountMismatch) {
			return DenseAvailability{}, nil, err
		}
		slog.Warn("dense_index_load_failed",
			slog.String("path", cfg.Paths.Index),
			slog.String("error", err.Error()))
		return DenseUnavailable(ReasonFailedToLoadDenseIndex), nil, nil
	}
	return DenseAvailable(idx), embedder, nil
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
