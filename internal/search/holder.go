package search

import (
	"context"
	"sync/atomic"

	amanerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// ErrNotReady is returned by a Holder with no loaded Retriever.
var ErrNotReady = amanerrors.New(amanerrors.ErrCodeEngineNotReady, "retrieval engine is not loaded", nil)

// Holder holds the live Retriever and lets a reload swap it atomically.
// In-flight queries finish on the Retriever they started with.
type Holder struct {
	current atomic.Pointer[Retriever]
	loadErr atomic.Pointer[error]
}

// NewHolder returns a Holder serving r, which may be nil.
func NewHolder(r *Retriever) *Holder {
	h := &Holder{}
	if r != nil {
		h.current.Store(r)
	}
	return h
}

// Current returns the live Retriever, or nil.
func (h *Holder) Current() *Retriever {
	return h.current.Load()
}

// Swap installs r and returns the previous Retriever. It clears any recorded
// load error.
func (h *Holder) Swap(r *Retriever) *Retriever {
	h.loadErr.Store(nil)
	return h.current.Swap(r)
}

// SetLoadError records why the engine could not be built.
func (h *Holder) SetLoadError(err error) {
	h.loadErr.Store(&err)
}

// LoadError returns the last recorded load error, or nil.
func (h *Holder) LoadError() error {
	if p := h.loadErr.Load(); p != nil {
		return *p
	}
	return nil
}

// Ready reports whether a Retriever is loaded.
func (h *Holder) Ready() bool {
	return h.current.Load() != nil
}

// Retrieve delegates to the live Retriever.
func (h *Holder) Retrieve(ctx context.Context, req Request) (Result, error) {
	r := h.current.Load()
	if r == nil {
		return Result{}, ErrNotReady
	}
	return r.Retrieve(ctx, req)
}

// Config returns the live Retriever's defaults, or DefaultConfig.
func (h *Holder) Config() Config {
	if r := h.current.Load(); r != nil {
		return r.Config()
	}
	return DefaultConfig()
}

// Close closes the live Retriever.
func (h *Holder) Close() error {
	if r := h.current.Swap(nil); r != nil {
		return r.Close()
	}
	return nil
}
