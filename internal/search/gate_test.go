package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGate(t *testing.T) {
	const minScore = 0.30

	tests := []struct {
		name   string
		mode   Mode
		hits   []Hit
		ok     bool
		reason GateReason
	}{
		{
			name:   "no hits",
			mode:   ModeNone,
			hits:   nil,
			reason: GateNoCandidates,
		},
		{
			name:   "bm25-only passes on positive score",
			mode:   ModeBM25Only,
			hits:   []Hit{{FusedScore: 0.05, BM25Score: score(1.2), Coverage: 0.05}},
			ok:     true,
			reason: GateOK,
		},
		{
			name:   "bm25-only passes on coverage",
			mode:   ModeBM25Only,
			hits:   []Hit{{FusedScore: 0.12, BM25Score: score(0), Coverage: 0.12}},
			ok:     true,
			reason: GateOK,
		},
		{
			name:   "bm25-only fails without support",
			mode:   ModeBM25Only,
			hits:   []Hit{{FusedScore: 0.1, BM25Score: score(0), Coverage: 0.1}},
			reason: GateLowLexicalSupport,
		},
		{
			name:   "dense-only passes on dense score",
			mode:   ModeDenseOnly,
			hits:   []Hit{{DenseScore: score(0.30)}},
			ok:     true,
			reason: GateOK,
		},
		{
			name:   "dense-only passes on coverage",
			mode:   ModeDenseOnly,
			hits:   []Hit{{FusedScore: 0.08, DenseScore: score(0.1), Coverage: 0.08}},
			ok:     true,
			reason: GateOK,
		},
		{
			name:   "dense-only fails without support",
			mode:   ModeDenseOnly,
			hits:   []Hit{{FusedScore: 0.05, DenseScore: score(0.29), Coverage: 0.05}},
			reason: GateLowDenseSupport,
		},
		{
			name:   "hybrid passes on dense support alone",
			mode:   ModeHybrid,
			hits:   []Hit{{FusedScore: 0.6, DenseScore: score(0.5)}},
			ok:     true,
			reason: GateOK,
		},
		{
			name:   "hybrid fails without either support",
			mode:   ModeHybrid,
			hits:   []Hit{{FusedScore: 0.3, DenseScore: score(0.1), Coverage: 0.05}},
			reason: GateLowHybridSupport,
		},
		{
			name: "ambiguous near-tie",
			mode: ModeHybrid,
			hits: []Hit{
				{FusedScore: 0.5000, BM25Score: score(1), Coverage: 0.05},
				{FusedScore: 0.4995, BM25Score: score(1), Coverage: 0.05},
			},
			reason: GateAmbiguousTopHit,
		},
		{
			name: "near-tie with strong dense is not ambiguous",
			mode: ModeHybrid,
			hits: []Hit{
				{FusedScore: 0.5000, BM25Score: score(1), DenseScore: score(0.40), Coverage: 0.05},
				{FusedScore: 0.4995, BM25Score: score(1), Coverage: 0.05},
			},
			ok:     true,
			reason: GateOK,
		},
		{
			name: "near-tie with coverage is not ambiguous",
			mode: ModeHybrid,
			hits: []Hit{
				{FusedScore: 0.1000, BM25Score: score(1), Coverage: 0.10},
				{FusedScore: 0.1000, BM25Score: score(1), Coverage: 0.10},
			},
			ok:     true,
			reason: GateOK,
		},
		{
			name: "clear margin is not ambiguous",
			mode: ModeHybrid,
			hits: []Hit{
				{FusedScore: 0.50, BM25Score: score(1), Coverage: 0.05},
				{FusedScore: 0.49, BM25Score: score(1), Coverage: 0.05},
			},
			ok:     true,
			reason: GateOK,
		},
		{
			name:   "single hit cannot be ambiguous",
			mode:   ModeHybrid,
			hits:   []Hit{{FusedScore: 0.05, BM25Score: score(1), Coverage: 0.05}},
			ok:     true,
			reason: GateOK,
		},
		{
			name: "bm25-only tie is not ambiguous",
			mode: ModeBM25Only,
			hits: []Hit{
				{FusedScore: 0.09, BM25Score: score(1.5), Coverage: 0.09},
				{FusedScore: 0.09, BM25Score: score(1.5), Coverage: 0.09},
			},
			ok:     true,
			reason: GateOK,
		},
		{
			name: "dense-only tie is not ambiguous",
			mode: ModeDenseOnly,
			hits: []Hit{
				{FusedScore: 0.05, DenseScore: score(0.31), Coverage: 0.05},
				{FusedScore: 0.05, DenseScore: score(0.31), Coverage: 0.05},
			},
			ok:     true,
			reason: GateOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reason := Gate(tt.hits, tt.mode, minScore)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestFormatReason(t *testing.T) {
	assert.Equal(t, "ok", FormatReason(GateOK, ""))
	assert.Equal(t, "ok(fallback=missing_dense_artifacts)",
		FormatReason(GateOK, ReasonMissingDenseArtifacts))
	assert.Equal(t, "no_candidates(fallback=embed_timeout)",
		FormatReason(GateNoCandidates, ReasonEmbedTimeout))
}
