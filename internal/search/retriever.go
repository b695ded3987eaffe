package search

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/amanrag/internal/corpus"
	"github.com/Aman-CERP/amanrag/internal/embed"
	amanerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/store"
)

// Recorder observes completed retrievals.
type Recorder interface {
	RecordRetrieval(ctx context.Context, event Event)
}

// Event summarizes one retrieval for a Recorder.
type Event struct {
	Query        string
	Mode         Mode
	Reason       string
	ShouldAnswer bool
	HitCount     int
	TopScore     float64
	Latency      time.Duration
}

// Retriever answers retrieval requests over an immutable corpus. It is safe
// for concurrent use.
type Retriever struct {
	corpus   *corpus.Store
	lexical  store.LexicalIndex
	dense    DenseAvailability
	embedder embed.Embedder
	config   Config
	recorder Recorder

	closeOnce sync.Once
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithRecorder attaches a retrieval observer.
func WithRecorder(r Recorder) Option {
	return func(rt *Retriever) {
		rt.recorder = r
	}
}

// NewRetriever assembles a Retriever. Dense availability is final: a dense
// index without an embedder degrades to missing_embedder.
func NewRetriever(c *corpus.Store, lexical store.LexicalIndex, dense DenseAvailability, embedder embed.Embedder, cfg Config, opts ...Option) *Retriever {
	if cfg.EmbedTimeout <= 0 {
		cfg.EmbedTimeout = DefaultConfig().EmbedTimeout
	}
	if dense.Available() && embedder == nil {
		dense = DenseUnavailable(ReasonMissingEmbedder)
	}

	r := &Retriever{
		corpus:   c,
		lexical:  lexical,
		dense:    dense,
		embedder: embedder,
		config:   cfg,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve runs one query. Only invalid arguments return an error; every
// lookup failure degrades the result instead.
func (r *Retriever) Retrieve(ctx context.Context, req Request) (Result, error) {
	start := time.Now()

	req, err := req.validate()
	if err != nil {
		return Result{}, err
	}
	width := max(req.TopK, req.CandidatePool)
	blank := strings.TrimSpace(req.Query) == ""

	var (
		lexical     []store.LexicalResult
		dense       []store.DenseResult
		denseReason DegradationReason
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		results, err := r.lexical.Search(gctx, req.Query, width)
		if err != nil {
			slog.Warn("lexical_search_failed", slog.String("error", err.Error()))
			return nil
		}
		lexical = results
		return nil
	})
	if r.dense.Available() && !blank {
		g.Go(func() error {
			dense, denseReason = r.searchDense(gctx, req.Query, width)
			return nil
		})
	}
	_ = g.Wait()

	fallback := r.dense.fallback()
	if fallback == "" {
		fallback = denseReason
	}

	mode := ModeOf(len(lexical) > 0, len(dense) > 0)
	candidates := Merge(store.Terms(req.Query), lexical, dense, r.corpus)
	hits := Fuse(mode, candidates, r.corpus, req.TopK)
	ok, code := Gate(hits, mode, req.MinScore)

	result := Result{
		Hits:         hits,
		Mode:         mode,
		ShouldAnswer: ok,
		Reason:       FormatReason(code, fallback),
		Degradation:  fallback,
	}

	took := time.Since(start)
	slog.Debug("retrieval_complete",
		slog.String("mode", string(mode)),
		slog.String("reason", result.Reason),
		slog.Int("lexical", len(lexical)),
		slog.Int("dense", len(dense)),
		slog.Int("hits", len(hits)),
		slog.Duration("took", took))

	if r.recorder != nil {
		ev := Event{
			Query:        req.Query,
			Mode:         mode,
			Reason:       result.Reason,
			ShouldAnswer: ok,
			HitCount:     len(hits),
			Latency:      took,
		}
		if len(hits) > 0 {
			ev.TopScore = hits[0].FusedScore
		}
		r.recorder.RecordRetrieval(ctx, ev)
	}
	return result, nil
}

// searchDense embeds the query under the embed timeout and searches the
// dense index. A failure yields no results and the matching reason.
func (r *Retriever) searchDense(ctx context.Context, query string, k int) ([]store.DenseResult, DegradationReason) {
	vec, err := r.embedQuery(ctx, query)
	if err != nil {
		reason := ReasonVectorQueryFailed
		if errors.Is(err, context.DeadlineExceeded) ||
			amanerrors.GetCode(err) == amanerrors.ErrCodeEmbedTimeout {
			reason = ReasonEmbedTimeout
		}
		slog.Warn("query_embed_failed",
			slog.String("reason", string(reason)),
			slog.String("error", err.Error()))
		return nil, reason
	}

	results, err := r.dense.Index.Search(ctx, vec, k)
	if err != nil {
		var dimErr store.ErrDimensionMismatch
		if errors.As(err, &dimErr) {
			slog.Warn("dense_dimension_mismatch",
				slog.Int("expected", dimErr.Expected),
				slog.Int("got", dimErr.Got))
			return nil, ReasonDenseDimensionMismatch
		}
		slog.Warn("dense_search_failed", slog.String("error", err.Error()))
		return nil, ReasonVectorQueryFailed
	}
	return results, ""
}

// embedQuery bounds the embed call by the configured timeout even when the
// embedder ignores its context.
func (r *Retriever) embedQuery(ctx context.Context, query string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, r.config.EmbedTimeout)
	defer cancel()

	type embedResult struct {
		vec []float32
		err error
	}
	done := make(chan embedResult, 1)
	go func() {
		vec, err := r.embedder.Embed(ctx, query)
		done <- embedResult{vec: vec, err: err}
	}()

	select {
	case res := <-done:
		return res.vec, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Config returns the engine defaults.
func (r *Retriever) Config() Config {
	return r.config
}

// Dense returns the dense availability decided at construction.
func (r *Retriever) Dense() DenseAvailability {
	return r.dense
}

// Corpus returns the chunk store.
func (r *Retriever) Corpus() *corpus.Store {
	return r.corpus
}

// Embedder returns the query embedder, or nil.
func (r *Retriever) Embedder() embed.Embedder {
	return r.embedder
}

// LexicalStats returns lexical index statistics.
func (r *Retriever) LexicalStats() store.LexicalStats {
	return r.lexical.Stats()
}

// Close releases the lexical index and the embedder.
func (r *Retriever) Close() error {
	var errs []error
	r.closeOnce.Do(func() {
		if r.lexical != nil {
			errs = append(errs, r.lexical.Close())
		}
		if r.embedder != nil {
			errs = append(errs, r.embedder.Close())
		}
	})
	return errors.Join(errs...)
}
