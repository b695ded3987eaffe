package answer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Aman-CERP/amanrag/internal/config"
	amanerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/search"
)

// Retriever is the retrieval engine the Answerer consults.
// *search.Retriever and *search.Holder satisfy it.
type Retriever interface {
	Retrieve(ctx context.Context, req search.Request) (search.Result, error)
	Config() search.Config
}

// Citation is one numbered piece of evidence.
type Citation struct {
	Cite          string   `json:"cite"`
	Score         float64  `json:"score"`
	ChunkID       string   `json:"chunk_id"`
	DocID         string   `json:"doc_id,omitempty"`
	URL           string   `json:"url,omitempty"`
	StartChar     int      `json:"start_char"`
	EndChar       int      `json:"end_char"`
	RetrievalMode string   `json:"retrieval_mode"`
	DenseScore    *float64 `json:"dense_score,omitempty"`
	BM25Score     *float64 `json:"bm25_score,omitempty"`
	Coverage      float64  `json:"coverage"`
}

// Retrieval summarizes the retrieval behind an answer.
type Retrieval struct {
	Mode         search.Mode `json:"mode"`
	ShouldAnswer bool        `json:"should_answer"`
	Reason       string      `json:"reason"`
	TopK         int         `json:"top_k"`
}

// Timing reports stage durations in seconds.
type Timing struct {
	RetrievalSeconds  float64 `json:"retrieval_seconds"`
	GenerationSeconds float64 `json:"generation_seconds"`
	TotalSeconds      float64 `json:"total_seconds"`
}

// Result is a cited answer.
type Result struct {
	Answer    string       `json:"answer"`
	Citations []Citation   `json:"citations"`
	Retrieval Retrieval    `json:"retrieval"`
	Timing    Timing       `json:"timing"`
	Hits      []search.Hit `json:"-"`
}

// Config configures the Answerer.
type Config struct {
	// Disabled skips generation and answers GenerationDisabled.
	Disabled bool

	// MaxContextChars caps each chunk's text in the prompt.
	MaxContextChars int
}

// ConfigFrom extracts answer settings from the application config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Disabled:        cfg.Generation.Disabled,
		MaxContextChars: cfg.Generation.MaxContextChars,
	}
}

// Answerer retrieves evidence and, when the gate allows, generates a cited
// answer.
type Answerer struct {
	retriever Retriever
	generator Generator
	config    Config
}

// NewAnswerer creates an Answerer. A nil generator disables generation.
func NewAnswerer(retriever Retriever, generator Generator, cfg Config) *Answerer {
	if generator == nil {
		cfg.Disabled = true
	}
	return &Answerer{retriever: retriever, generator: generator, config: cfg}
}

// Answer retrieves the top topK hits for question and answers from them.
// topK <= 0 uses the retriever's default. The generator is never called
// when the gate rejects the evidence.
func (a *Answerer) Answer(ctx context.Context, question string, topK int) (Result, error) {
	start := time.Now()

	req := a.retriever.Config().NewRequest(question)
	if topK > 0 {
		req.TopK = topK
		if req.CandidatePool != 0 && req.CandidatePool < topK {
			req.CandidatePool = topK
		}
	}

	retrieved, err := a.retriever.Retrieve(ctx, req)
	if err != nil {
		return Result{}, err
	}
	retrievalTook := time.Since(start)

	result := Result{
		Citations: []Citation{},
		Retrieval: Retrieval{
			Mode:         retrieved.Mode,
			ShouldAnswer: retrieved.ShouldAnswer,
			Reason:       retrieved.Reason,
			TopK:         req.TopK,
		},
	}

	if !retrieved.ShouldAnswer || len(retrieved.Hits) == 0 {
		result.Answer = InsufficientInformation
		result.Timing = timing(retrievalTook, 0, time.Since(start))
		slog.Info("answer_declined",
			slog.String("mode", string(retrieved.Mode)),
			slog.String("reason", retrieved.Reason))
		return result, nil
	}

	genStart := time.Now()
	if a.config.Disabled {
		result.Answer = GenerationDisabled
	} else {
		prompt := BuildPrompt(question, FormatContext(retrieved.Hits, a.config.MaxContextChars))
		text, err := a.generator.Generate(ctx, prompt)
		if err != nil {
			if amanerrors.GetCode(err) == "" {
				err = amanerrors.New(amanerrors.ErrCodeGenerationFailed, "answer generation failed", err)
			}
			return Result{}, err
		}
		if strings.TrimSpace(text) == "" {
			text = InsufficientInformation
		}
		result.Answer = text
	}
	genTook := time.Since(genStart)

	result.Citations = Citations(retrieved.Hits, retrieved.Mode)
	result.Hits = retrieved.Hits
	result.Timing = timing(retrievalTook, genTook, time.Since(start))

	slog.Info("answer_complete",
		slog.String("mode", string(retrieved.Mode)),
		slog.String("reason", retrieved.Reason),
		slog.Int("citations", len(result.Citations)),
		slog.Duration("retrieval", retrievalTook),
		slog.Duration("generation", genTook))
	return result, nil
}

// Citations numbers hits in rank order.
func Citations(hits []search.Hit, mode search.Mode) []Citation {
	out := make([]Citation, len(hits))
	for i, h := range hits {
		out[i] = Citation{
			Cite:          fmt.Sprintf("[%d]", i+1),
			Score:         h.FusedScore,
			ChunkID:       h.ChunkID,
			DocID:         h.Metadata.DocID,
			URL:           h.Metadata.URL,
			StartChar:     h.Metadata.StartChar,
			EndChar:       h.Metadata.EndChar,
			RetrievalMode: string(mode),
			DenseScore:    h.DenseScore,
			BM25Score:     h.BM25Score,
			Coverage:      h.Coverage,
		}
	}
	return out
}

func timing(retrieval, generation, total time.Duration) Timing {
	return Timing{
		RetrievalSeconds:  retrieval.Seconds(),
		GenerationSeconds: generation.Seconds(),
		TotalSeconds:      total.Seconds(),
	}
}
