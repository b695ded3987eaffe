package search

import (
	"math"
	"sort"

	"github.com/Aman-CERP/amanrag/internal/corpus"
	"github.com/Aman-CERP/amanrag/internal/store"
)

// Fusion weights. They sum to 1 so the fused score stays in [0,1].
const (
	WeightRRF      = 0.35
	WeightDense    = 0.30
	WeightBM25     = 0.20
	WeightCoverage = 0.15
)

// ChunkSource resolves chunk ids to chunks. *corpus.Store satisfies it.
type ChunkSource interface {
	Get(id string) (corpus.Chunk, bool)
}

// Merge combines lexical and dense results into one candidate per chunk id.
// Lexical candidates come first in rank order, then dense-only candidates in
// rank order. Ids the corpus cannot resolve are dropped.
func Merge(terms map[string]struct{}, lexical []store.LexicalResult, dense []store.DenseResult, chunks ChunkSource) []CandidateHit {
	byID := make(map[string]int, len(lexical)+len(dense))
	candidates := make([]CandidateHit, 0, len(lexical)+len(dense))

	slot := func(id string) (int, bool) {
		if i, ok := byID[id]; ok {
			return i, true
		}
		chunk, ok := chunks.Get(id)
		if !ok {
			return 0, false
		}
		candidates = append(candidates, CandidateHit{
			ChunkID:  id,
			Coverage: store.Coverage(terms, chunk.Text),
		})
		byID[id] = len(candidates) - 1
		return len(candidates) - 1, true
	}

	for _, r := range lexical {
		i, ok := slot(r.ChunkID)
		if !ok || candidates[i].BM25Score != nil {
			continue
		}
		score := r.Score
		candidates[i].BM25Score = &score
		candidates[i].BM25Rank = r.Rank
	}
	for _, r := range dense {
		i, ok := slot(r.ChunkID)
		if !ok || candidates[i].DenseScore != nil {
			continue
		}
		score := r.Score
		candidates[i].DenseScore = &score
		candidates[i].DenseRank = r.Rank
	}
	return candidates
}

// Fuse scores candidates and returns the top topK hits.
//
// In hybrid mode the fused score is
//
//	0.35*clamp01(rrf) + 0.30*dense_norm + 0.20*bm25_norm + 0.15*coverage
//
// where rrf sums 1/(1+rank) over the families that returned the chunk and
// each norm divides by the family's maximum over the candidate union. In a
// single-family mode the fused score is coverage alone.
//
// Hits are ordered by fused score descending, then BM25 rank, then dense
// rank (absent ranks last), then chunk id.
func Fuse(mode Mode, candidates []CandidateHit, chunks ChunkSource, topK int) []Hit {
	if mode == ModeNone || len(candidates) == 0 || topK <= 0 {
		return []Hit{}
	}

	var maxDense, maxBM25 float64
	var seenDense, seenBM25 bool
	for _, c := range candidates {
		if c.DenseScore != nil && (!seenDense || *c.DenseScore > maxDense) {
			maxDense, seenDense = *c.DenseScore, true
		}
		if c.BM25Score != nil && (!seenBM25 || *c.BM25Score > maxBM25) {
			maxBM25, seenBM25 = *c.BM25Score, true
		}
	}

	hits := make([]Hit, 0, len(candidates))
	for _, c := range candidates {
		chunk, ok := chunks.Get(c.ChunkID)
		if !ok {
			continue
		}

		var fused float64
		if mode == ModeHybrid {
			var rrf, denseNorm, bm25Norm float64
			if c.DenseScore != nil {
				rrf += reciprocalRank(c.DenseRank)
				denseNorm = normalize(*c.DenseScore, maxDense)
			}
			if c.BM25Score != nil {
				rrf += reciprocalRank(c.BM25Rank)
				bm25Norm = normalize(*c.BM25Score, maxBM25)
			}
			fused = WeightRRF*clamp01(rrf) +
				WeightDense*denseNorm +
				WeightBM25*bm25Norm +
				WeightCoverage*c.Coverage
		} else {
			fused = c.Coverage
		}

		hits = append(hits, Hit{
			FusedScore: clamp01(fused),
			ChunkID:    c.ChunkID,
			Metadata:   chunk.Metadata,
			Text:       chunk.Text,
			DenseScore: copyScore(c.DenseScore),
			DenseRank:  c.DenseRank,
			BM25Score:  copyScore(c.BM25Score),
			BM25Rank:   c.BM25Rank,
			Coverage:   c.Coverage,
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hitLess(hits[i], hits[j])
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits
}

// hitLess is the total order over hits.
func hitLess(a, b Hit) bool {
	if a.FusedScore != b.FusedScore {
		return a.FusedScore > b.FusedScore
	}
	if ra, rb := rankKey(a.BM25Rank), rankKey(b.BM25Rank); ra != rb {
		return ra < rb
	}
	if ra, rb := rankKey(a.DenseRank), rankKey(b.DenseRank); ra != rb {
		return ra < rb
	}
	return a.ChunkID < b.ChunkID
}

// rankKey sorts absent ranks after every present one.
func rankKey(rank int) int {
	if rank <= 0 {
		return math.MaxInt
	}
	return rank
}

func reciprocalRank(rank int) float64 {
	return 1.0 / float64(1+rank)
}

func normalize(v, top float64) float64 {
	if top <= 0 {
		return 0
	}
	return clamp01(v / top)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func copyScore(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
