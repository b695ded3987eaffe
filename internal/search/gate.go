package search

import "fmt"

// Gate thresholds.
const (
	lexicalCoverageFloor = 0.12
	denseCoverageFloor   = 0.08

	ambiguityMargin      = 0.001
	ambiguityCoverageCap = 0.10
	ambiguityDenseSlack  = 0.03
)

// Gate decides whether the top hits carry enough evidence to answer.
// Rules apply in order and the first that fires decides.
func Gate(hits []Hit, mode Mode, minScore float64) (bool, GateReason) {
	if len(hits) == 0 || mode == ModeNone {
		return false, GateNoCandidates
	}
	top := hits[0]

	switch mode {
	case ModeBM25Only:
		if !lexicalSupport(top) {
			return false, GateLowLexicalSupport
		}
	case ModeDenseOnly:
		if !denseSupport(top, minScore) {
			return false, GateLowDenseSupport
		}
	case ModeHybrid:
		if !lexicalSupport(top) && !denseSupport(top, minScore) {
			return false, GateLowHybridSupport
		}
		if ambiguous(hits, minScore) {
			return false, GateAmbiguousTopHit
		}
	}

	return true, GateOK
}

// ambiguous reports a near-tie at the top of a hybrid ranking that neither
// coverage nor dense similarity resolves.
func ambiguous(hits []Hit, minScore float64) bool {
	if len(hits) < 2 {
		return false
	}
	top := hits[0]
	return top.FusedScore-hits[1].FusedScore < ambiguityMargin &&
		top.Coverage < ambiguityCoverageCap &&
		!denseAtLeast(top, minScore+ambiguityDenseSlack)
}

func lexicalSupport(h Hit) bool {
	return h.Coverage >= lexicalCoverageFloor || (h.BM25Score != nil && *h.BM25Score > 0)
}

func denseSupport(h Hit, minScore float64) bool {
	return denseAtLeast(h, minScore) || h.Coverage >= denseCoverageFloor
}

// denseAtLeast treats an absent dense score as below every threshold.
func denseAtLeast(h Hit, threshold float64) bool {
	return h.DenseScore != nil && *h.DenseScore >= threshold
}

// FormatReason renders a gate code with an optional fallback reason as
// "code" or "code(fallback=reason)".
func FormatReason(code GateReason, fallback DegradationReason) string {
	if fallback == "" {
		return string(code)
	}
	return fmt.Sprintf("%s(fallback=%s)", code, fallback)
}
