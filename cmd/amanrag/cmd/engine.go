package cmd

import (
	"context"
	"log/slog"

	"github.com/Aman-CERP/amanrag/internal/answer"
	"github.com/Aman-CERP/amanrag/internal/config"
	"github.com/Aman-CERP/amanrag/internal/search"
	"github.com/Aman-CERP/amanrag/internal/telemetry"
	"github.com/Aman-CERP/amanrag/internal/watcher"
)

// newGenerator returns the Ollama generator, or nil when generation is
// disabled.
func newGenerator(cfg *config.Config) *answer.OllamaGenerator {
	if cfg.Generation.Disabled {
		return nil
	}
	return answer.NewOllamaGenerator(answer.OllamaConfig{
		URL:     cfg.Generation.URL,
		Model:   cfg.Generation.Model,
		Timeout: cfg.Generation.Timeout,
	})
}

// newAnswerer wires retriever to the configured generator.
func newAnswerer(cfg *config.Config, retriever answer.Retriever) *answer.Answerer {
	if gen := newGenerator(cfg); gen != nil {
		return answer.NewAnswerer(retriever, gen, answer.ConfigFrom(cfg))
	}
	return answer.NewAnswerer(retriever, nil, answer.ConfigFrom(cfg))
}

// requestOverrides holds per-invocation retrieval flags. Nil keeps the
// configured default.
type requestOverrides struct {
	topK          *int
	minScore      *float64
	candidatePool *int
}

// apply builds a request for query. A larger top_k lifts the default pool.
func (o requestOverrides) apply(cfg search.Config, query string) search.Request {
	req := cfg.NewRequest(query)
	if o.topK != nil {
		req.TopK = *o.topK
		if o.candidatePool == nil && req.CandidatePool != 0 && req.CandidatePool < req.TopK {
			req.CandidatePool = req.TopK
		}
	}
	if o.minScore != nil {
		req.MinScore = *o.minScore
	}
	if o.candidatePool != nil {
		req.CandidatePool = *o.candidatePool
	}
	return req
}

// engine is a long-running retrieval engine with optional hot reload.
type engine struct {
	holder  *search.Holder
	metrics *telemetry.Metrics
	stop    []func()
}

// startEngine loads the retriever into a Holder. A failed initial load is
// recorded on the Holder rather than returned, so services can start and
// report not-ready until the artifacts are fixed. With watch set, artifact
// changes reload the engine until ctx is done.
func startEngine(ctx context.Context, cfg *config.Config, watch bool) (*engine, error) {
	var st telemetry.Store
	if cfg.Server.TelemetryDB != "" {
		s, err := telemetry.Open(cfg.Server.TelemetryDB)
		if err != nil {
			return nil, err
		}
		st = s
	}
	metrics := telemetry.New(st)

	e := &engine{holder: search.NewHolder(nil), metrics: metrics}
	load := func(ctx context.Context) (*search.Retriever, error) {
		return search.Load(ctx, cfg, search.WithRecorder(metrics))
	}

	if ret, err := load(ctx); err != nil {
		e.holder.SetLoadError(err)
		slog.Error("engine_load_failed", slog.String("error", err.Error()))
	} else {
		e.holder.Swap(ret)
	}

	if watch {
		if err := e.watch(ctx, cfg, load); err != nil {
			e.Close()
			return nil, err
		}
	}
	return e, nil
}

func (e *engine) watch(ctx context.Context, cfg *config.Config, load watcher.LoadFunc) error {
	opts := watcher.DefaultOptions()
	w, err := watcher.NewArtifactWatcher([]string{cfg.Paths.Chunks, cfg.Paths.Index, cfg.Paths.Meta}, opts)
	if err != nil {
		return err
	}
	reloader := watcher.NewReloader(e.holder, load, opts)

	watchCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		if err := w.Start(watchCtx); err != nil && watchCtx.Err() == nil {
			slog.Error("artifact_watch_failed", slog.String("error", err.Error()))
		}
	}()
	go func() {
		defer close(done)
		reloader.Run(watchCtx, w.Events())
	}()
	go func() {
		for {
			select {
			case <-watchCtx.Done():
				return
			case err := <-w.Errors():
				slog.Warn("artifact_watch_error", slog.String("error", err.Error()))
			}
		}
	}()

	slog.Info("artifact_watch_enabled", slog.Bool("polling", w.Polling()))
	e.stop = append(e.stop, func() {
		cancel()
		_ = w.Stop()
		<-done
		reloads, failures := reloader.Stats()
		slog.Info("artifact_watch_stopped", slog.Int64("reloads", reloads), slog.Int64("failures", failures))
	})
	return nil
}

// Close stops watching, closes the live retriever and flushes telemetry.
func (e *engine) Close() {
	for _, stop := range e.stop {
		stop()
	}
	if err := e.holder.Close(); err != nil {
		slog.Warn("engine_close_failed", slog.String("error", err.Error()))
	}
	if err := e.metrics.Close(); err != nil {
		slog.Warn("telemetry_close_failed", slog.String("error", err.Error()))
	}
}
