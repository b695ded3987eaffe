// Package validation runs a data-driven query set against a retriever and
// scores both ranking and the confidence gate.
//
// Positive queries name the chunk or document ids that should rank in the
// top k. Negative queries are questions the corpus cannot answer; they pass
// when the gate declines.
package validation

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/amanrag/internal/search"
)

// QuerySpec is one evaluation query.
type QuerySpec struct {
	ID       string   `yaml:"id" json:"id"`
	Name     string   `yaml:"name" json:"name,omitempty"`
	Query    string   `yaml:"query" json:"query"`
	Expected []string `yaml:"expected" json:"expected,omitempty"` // chunk ids or doc ids
	// Answerable, when set on a positive query, also checks the gate.
	Answerable *bool  `yaml:"answerable,omitempty" json:"answerable,omitempty"`
	Notes      string `yaml:"notes,omitempty" json:"notes,omitempty"`
}

// QuerySet is the on-disk query file.
type QuerySet struct {
	Positive []QuerySpec `yaml:"positive"`
	Negative []QuerySpec `yaml:"negative"`
}

// LoadQueries reads a query set from a YAML file.
func LoadQueries(path string) (*QuerySet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read queries file %s: %w", path, err)
	}
	var set QuerySet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("failed to parse queries YAML: %w", err)
	}
	for i, q := range append(append([]QuerySpec{}, set.Positive...), set.Negative...) {
		if q.Query == "" {
			return nil, fmt.Errorf("query %d (%s) has no text", i+1, q.ID)
		}
	}
	return &set, nil
}

// TestResult is the outcome of a single query.
type TestResult struct {
	Spec         QuerySpec     `json:"spec"`
	Passed       bool          `json:"passed"`
	Duration     time.Duration `json:"duration_ns"`
	TopResults   []string      `json:"top_results"`
	MatchedAt    int           `json:"matched_at"` // 1-based rank of first match, 0 if none
	Mode         search.Mode   `json:"mode"`
	ShouldAnswer bool          `json:"should_answer"`
	Reason       string        `json:"reason"`
	Error        string        `json:"error,omitempty"`
}

// Report summarizes a full run.
type Report struct {
	Timestamp     time.Time    `json:"timestamp"`
	TopK          int          `json:"top_k"`
	Positive      []TestResult `json:"positive"`
	Negative      []TestResult `json:"negative"`
	PositivePass  int          `json:"positive_pass"`
	NegativePass  int          `json:"negative_pass"`
	MRR           float64      `json:"mrr"`
	FalseDeclines int          `json:"false_declines"`
}

// Total returns the number of queries run.
func (r *Report) Total() int { return len(r.Positive) + len(r.Negative) }

// Passed returns the number of passing queries.
func (r *Report) Passed() int { return r.PositivePass + r.NegativePass }

// PassRate returns the passing fraction, or 1 for an empty run.
func (r *Report) PassRate() float64 {
	if r.Total() == 0 {
		return 1
	}
	return float64(r.Passed()) / float64(r.Total())
}

// Retriever is the engine under evaluation.
type Retriever interface {
	Retrieve(ctx context.Context, req search.Request) (search.Result, error)
	Config() search.Config
}

// Validator runs query sets.
type Validator struct {
	ret  Retriever
	topK int
}

// NewValidator evaluates ret at topK. topK <= 0 uses the retriever default.
func NewValidator(ret Retriever, topK int) *Validator {
	if topK <= 0 {
		topK = ret.Config().TopK
	}
	return &Validator{ret: ret, topK: topK}
}

// RunQuery runs one query. negative selects the gate-only check.
func (v *Validator) RunQuery(ctx context.Context, spec QuerySpec, negative bool) TestResult {
	req := v.ret.Config().NewRequest(spec.Query)
	req.TopK = v.topK
	if req.CandidatePool < req.TopK {
		req.CandidatePool = req.TopK
	}

	start := time.Now()
	res, err := v.ret.Retrieve(ctx, req)
	result := TestResult{Spec: spec, Duration: time.Since(start)}
	if err != nil {
		result.Error = err.Error()
		return result
	}

	result.Mode, result.ShouldAnswer, result.Reason = res.Mode, res.ShouldAnswer, res.Reason
	for _, h := range res.Hits {
		result.TopResults = append(result.TopResults, h.ChunkID)
	}

	if negative {
		result.Passed = !res.ShouldAnswer
		return result
	}

	result.MatchedAt = matchRank(res.Hits, spec.Expected)
	result.Passed = result.MatchedAt > 0
	if spec.Answerable != nil && *spec.Answerable != res.ShouldAnswer {
		result.Passed = false
	}
	return result
}

// RunAll runs every query in set.
func (v *Validator) RunAll(ctx context.Context, set *QuerySet) *Report {
	report := &Report{Timestamp: time.Now(), TopK: v.topK}

	var rr float64
	for _, spec := range set.Positive {
		tr := v.RunQuery(ctx, spec, false)
		report.Positive = append(report.Positive, tr)
		if tr.Passed {
			report.PositivePass++
		}
		if tr.MatchedAt > 0 {
			rr += 1 / float64(tr.MatchedAt)
			if !tr.ShouldAnswer {
				report.FalseDeclines++
			}
		}
	}
	if len(set.Positive) > 0 {
		report.MRR = rr / float64(len(set.Positive))
	}

	for _, spec := range set.Negative {
		tr := v.RunQuery(ctx, spec, true)
		report.Negative = append(report.Negative, tr)
		if tr.Passed {
			report.NegativePass++
		}
	}
	return report
}

// matchRank returns the 1-based rank of the first hit whose chunk id or doc
// id is expected, or 0.
func matchRank(hits []search.Hit, expected []string) int {
	for i, h := range hits {
		for _, exp := range expected {
			if h.ChunkID == exp || (h.Metadata.DocID != "" && h.Metadata.DocID == exp) {
				return i + 1
			}
		}
	}
	return 0
}
