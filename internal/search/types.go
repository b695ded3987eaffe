// Package search is the hybrid retrieval and confidence-gating engine.
//
// A Retriever runs a lexical and a dense lookup in parallel, merges the
// candidates by chunk id, fuses their scores into one ranking and gates
// whether the evidence is strong enough to attempt an answer.
package search

import (
	"time"

	"github.com/Aman-CERP/amanrag/internal/corpus"
	amanerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/store"
)

// Mode records which index families produced candidates for a query.
type Mode string

const (
	ModeHybrid    Mode = "hybrid"
	ModeDenseOnly Mode = "dense-only"
	ModeBM25Only  Mode = "bm25-only"
	ModeNone      Mode = "none"
)

// ModeOf returns the mode for the families that returned at least one
// candidate.
func ModeOf(hasLexical, hasDense bool) Mode {
	switch {
	case hasLexical && hasDense:
		return ModeHybrid
	case hasDense:
		return ModeDenseOnly
	case hasLexical:
		return ModeBM25Only
	default:
		return ModeNone
	}
}

// DegradationReason explains why dense retrieval did not contribute.
type DegradationReason string

// Decided once at construction.
const (
	ReasonConfigHybridDisabled   DegradationReason = "config_hybrid_disabled"
	ReasonMissingDenseArtifacts  DegradationReason = "missing_dense_artifacts"
	ReasonMissingEmbedder        DegradationReason = "missing_embedder"
	ReasonFailedToLoadDenseIndex DegradationReason = "failed_to_load_dense_index"
	ReasonEmptyMetaRows          DegradationReason = "empty_meta_rows"
)

// Decided per query.
const (
	ReasonVectorQueryFailed      DegradationReason = "vector_query_failed"
	ReasonEmbedTimeout           DegradationReason = "embed_timeout"
	ReasonDenseDimensionMismatch DegradationReason = "dense_dimension_mismatch"
)

// GateReason is the machine-parsable code of a gate decision.
type GateReason string

const (
	GateOK                GateReason = "ok"
	GateNoCandidates      GateReason = "no_candidates"
	GateLowLexicalSupport GateReason = "low_lexical_support"
	GateLowDenseSupport   GateReason = "low_dense_support"
	GateLowHybridSupport  GateReason = "low_hybrid_support"
	GateAmbiguousTopHit   GateReason = "ambiguous_top_hit"
)

// CandidateHit is one merged candidate before fusion. At least one family
// is present: a nil score means the family did not return the chunk, and
// its rank is then 0.
type CandidateHit struct {
	ChunkID    string
	DenseScore *float64
	DenseRank  int
	BM25Score  *float64
	BM25Rank   int
	Coverage   float64
}

// Hit is a ranked, fused result. It holds copies of the chunk's text and
// metadata.
type Hit struct {
	FusedScore float64         `json:"fused_score"`
	ChunkID    string          `json:"chunk_id"`
	Metadata   corpus.Metadata `json:"metadata"`
	Text       string          `json:"text"`
	DenseScore *float64        `json:"dense_score,omitempty"`
	DenseRank  int             `json:"dense_rank,omitempty"`
	BM25Score  *float64        `json:"bm25_score,omitempty"`
	BM25Rank   int             `json:"bm25_rank,omitempty"`
	Coverage   float64         `json:"coverage"`
}

// Result is the outcome of one retrieval.
type Result struct {
	Hits         []Hit  `json:"hits"`
	Mode         Mode   `json:"mode"`
	ShouldAnswer bool   `json:"should_answer"`
	Reason       string `json:"reason"`

	// Degradation is the fallback embedded in Reason, if any.
	Degradation DegradationReason `json:"degradation,omitempty"`
}

// Config holds engine defaults.
type Config struct {
	TopK          int
	MinScore      float64
	CandidatePool int

	// EmbedTimeout bounds the query embedding call.
	EmbedTimeout time.Duration
}

// DefaultConfig returns engine defaults.
func DefaultConfig() Config {
	return Config{
		TopK:          5,
		MinScore:      0.30,
		CandidatePool: 20,
		EmbedTimeout:  5 * time.Second,
	}
}

// Request is a single retrieval request.
type Request struct {
	Query         string  `json:"query"`
	TopK          int     `json:"top_k"`
	MinScore      float64 `json:"min_score"`
	CandidatePool int     `json:"candidate_pool,omitempty"`
}

// NewRequest builds a Request for query from cfg's defaults.
func (c Config) NewRequest(query string) Request {
	return Request{
		Query:         query,
		TopK:          c.TopK,
		MinScore:      c.MinScore,
		CandidatePool: c.CandidatePool,
	}
}

// ErrInvalidRequest is returned for out-of-range request arguments.
var ErrInvalidRequest = amanerrors.New(amanerrors.ErrCodeInvalidRequest, "invalid retrieval request", nil)

// validate checks ranges and defaults CandidatePool to TopK.
func (r Request) validate() (Request, error) {
	switch {
	case r.TopK <= 0:
		return r, invalid("top_k must be positive")
	case !(r.MinScore >= 0 && r.MinScore <= 1):
		return r, invalid("min_score must be in [0,1]")
	case r.CandidatePool < 0:
		return r, invalid("candidate_pool must not be negative")
	}
	if r.CandidatePool == 0 {
		r.CandidatePool = r.TopK
	}
	if r.CandidatePool < r.TopK {
		return r, invalid("candidate_pool must be at least top_k")
	}
	return r, nil
}

func invalid(msg string) error {
	return amanerrors.New(amanerrors.ErrCodeInvalidRequest, msg, nil)
}

// DenseAvailability holds either a usable dense index or the reason there is
// none. It is decided once when the Retriever is built.
type DenseAvailability struct {
	Index  store.DenseIndex
	Reason DegradationReason
}

// DenseAvailable wraps a loaded index.
func DenseAvailable(idx store.DenseIndex) DenseAvailability {
	return DenseAvailability{Index: idx}
}

// DenseUnavailable records why dense retrieval is off.
func DenseUnavailable(reason DegradationReason) DenseAvailability {
	return DenseAvailability{Reason: reason}
}

// Available reports whether dense retrieval can run.
func (d DenseAvailability) Available() bool {
	return d.Index != nil && d.Reason == ""
}

// fallback is the reason reported on every query. Disabling hybrid in
// config is a choice, not a fallback.
func (d DenseAvailability) fallback() DegradationReason {
	if d.Reason == ReasonConfigHybridDisabled {
		return ""
	}
	return d.Reason
}
