package watcher

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Aman-CERP/amanrag/internal/search"
)

// LoadFunc builds a fresh retrieval engine from the current artifacts.
type LoadFunc func(ctx context.Context) (*search.Retriever, error)

// Reloader swaps a freshly loaded engine into a Holder. A failed load keeps
// the current engine serving.
type Reloader struct {
	holder *search.Holder
	load   LoadFunc
	grace  time.Duration

	mu      sync.Mutex // serializes reloads
	closeMu sync.Mutex
	pending map[*search.Retriever]*time.Timer

	reloads  atomic.Int64
	failures atomic.Int64
}

// NewReloader creates a reloader.
func NewReloader(holder *search.Holder, load LoadFunc, opts Options) *Reloader {
	opts = opts.WithDefaults()
	return &Reloader{
		holder:  holder,
		load:    load,
		grace:   opts.CloseGrace,
		pending: make(map[*search.Retriever]*time.Timer),
	}
}

// Reload loads a new engine and swaps it in. The replaced engine is closed
// after the grace period.
func (r *Reloader) Reload(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	next, err := r.load(ctx)
	if err != nil {
		r.failures.Add(1)
		r.holder.SetLoadError(err)
		slog.Error("engine_reload_failed",
			slog.String("error", err.Error()),
			slog.Bool("serving_previous", r.holder.Ready()))
		return err
	}

	old := r.holder.Swap(next)
	r.reloads.Add(1)
	slog.Info("engine_reloaded",
		slog.Int("chunks", next.Corpus().Len()),
		slog.Bool("hybrid", next.Dense().Available()),
		slog.String("dense_reason", string(next.Dense().Reason)),
		slog.Duration("took", time.Since(start)))

	if old != nil {
		r.closeLater(old)
	}
	return nil
}

func (r *Reloader) closeLater(old *search.Retriever) {
	r.closeMu.Lock()
	defer r.closeMu.Unlock()
	r.pending[old] = time.AfterFunc(r.grace, func() {
		r.closeMu.Lock()
		delete(r.pending, old)
		r.closeMu.Unlock()
		closeRetriever(old)
	})
}

// Run reloads on every batch until ctx is cancelled or events is closed,
// then closes any replaced engines still in their grace period.
func (r *Reloader) Run(ctx context.Context, events <-chan []FileEvent) {
	defer r.drain()
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-events:
			if !ok {
				return
			}
			for _, ev := range batch {
				slog.Info("artifact_changed",
					slog.String("path", ev.Path),
					slog.String("op", ev.Operation.String()))
			}
			_ = r.Reload(ctx)
		}
	}
}

// drain closes replaced engines immediately.
func (r *Reloader) drain() {
	r.closeMu.Lock()
	pending := r.pending
	r.pending = make(map[*search.Retriever]*time.Timer)
	r.closeMu.Unlock()

	for old, timer := range pending {
		if timer.Stop() {
			closeRetriever(old)
		}
	}
}

func closeRetriever(ret *search.Retriever) {
	if err := ret.Close(); err != nil {
		slog.Warn("engine_close_failed", slog.String("error", err.Error()))
	}
}

// Stats returns the number of successful and failed reloads.
func (r *Reloader) Stats() (reloads, failures int64) {
	return r.reloads.Load(), r.failures.Load()
}
