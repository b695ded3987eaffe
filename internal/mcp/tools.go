package mcp

import (
	"github.com/Aman-CERP/amanrag/internal/answer"
	"github.com/Aman-CERP/amanrag/internal/search"
)

// RetrieveInput defines the input schema for the retrieve tool.
type RetrieveInput struct {
	Query    string   `json:"query" jsonschema:"the question or keywords to retrieve evidence for"`
	TopK     int      `json:"top_k,omitempty" jsonschema:"maximum number of hits, default from config"`
	MinScore *float64 `json:"min_score,omitempty" jsonschema:"dense similarity floor used by the confidence gate, 0 to 1"`
}

// RetrieveOutput defines the output schema for the retrieve tool.
type RetrieveOutput struct {
	Mode         string      `json:"mode" jsonschema:"retrieval mode: hybrid, dense-only, bm25-only or none"`
	ShouldAnswer bool        `json:"should_answer" jsonschema:"true if the evidence is strong enough to answer"`
	Reason       string      `json:"reason" jsonschema:"gate reason, with the fallback cause if dense retrieval degraded"`
	Hits         []HitOutput `json:"hits" jsonschema:"ranked hits"`
}

// HitOutput is one ranked chunk.
type HitOutput struct {
	Rank       int      `json:"rank"`
	ChunkID    string   `json:"chunk_id"`
	DocID      string   `json:"doc_id,omitempty"`
	URL        string   `json:"url,omitempty"`
	Text       string   `json:"text"`
	FusedScore float64  `json:"fused_score" jsonschema:"fused relevance score between 0 and 1"`
	DenseScore *float64 `json:"dense_score,omitempty"`
	BM25Score  *float64 `json:"bm25_score,omitempty"`
	Coverage   float64  `json:"coverage" jsonschema:"fraction of query terms present in the chunk"`
}

// AnswerInput defines the input schema for the answer tool.
type AnswerInput struct {
	Question string `json:"question" jsonschema:"the question to answer from the corpus"`
	TopK     int    `json:"top_k,omitempty" jsonschema:"number of chunks to use as evidence, default from config"`
}

// AnswerOutput defines the output schema for the answer tool.
type AnswerOutput struct {
	Answer       string            `json:"answer"`
	Citations    []answer.Citation `json:"citations"`
	Mode         string            `json:"mode"`
	ShouldAnswer bool              `json:"should_answer"`
	Reason       string            `json:"reason"`
	TotalSeconds float64           `json:"total_seconds"`
}

// StatusInput defines the input schema for the engine_status tool (no parameters).
type StatusInput struct{}

// StatusOutput defines the output schema for the engine_status tool.
type StatusOutput struct {
	Ready                bool    `json:"ready"`
	Error                string  `json:"error,omitempty"`
	Chunks               int     `json:"chunks"`
	RetrievalMode        string  `json:"retrieval_mode,omitempty" jsonschema:"best mode available: hybrid or bm25-only"`
	HybridDisabledReason string  `json:"hybrid_disabled_reason,omitempty"`
	LexicalBackend       string  `json:"lexical_backend,omitempty"`
	Embedder             string  `json:"embedder,omitempty"`
	TopK                 int     `json:"top_k"`
	MinScore             float64 `json:"min_score"`
}

func toHitOutputs(hits []search.Hit) []HitOutput {
	out := make([]HitOutput, len(hits))
	for i, h := range hits {
		out[i] = HitOutput{
			Rank:       i + 1,
			ChunkID:    h.ChunkID,
			DocID:      h.Metadata.DocID,
			URL:        h.Metadata.URL,
			Text:       h.Text,
			FusedScore: h.FusedScore,
			DenseScore: h.DenseScore,
			BM25Score:  h.BM25Score,
			Coverage:   h.Coverage,
		}
	}
	return out
}
