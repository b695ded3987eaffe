package ui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Aman-CERP/amanrag/internal/answer"
	amanerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/search"
)

// maxSnippetRunes caps chunk text in rendered hits.
const maxSnippetRunes = 320

// Printer renders retrieval results and answers as terminal text.
type Printer struct {
	styles Styles
	width  int
}

// NewPrinter creates a printer. Styling is dropped when output is not a
// terminal or NO_COLOR is set.
func NewPrinter(cfg Config) *Printer {
	width := cfg.Width
	if width <= 0 {
		width = 100
	}
	return &Printer{styles: GetStyles(!Colored(cfg)), width: width}
}

// Retrieval renders a ranked result list with the gate decision.
func (p *Printer) Retrieval(query string, res search.Result) string {
	var sb strings.Builder

	sb.WriteString(p.styles.Header.Render(fmt.Sprintf("Results for %q", query)))
	sb.WriteString("\n")
	sb.WriteString(p.gateLine(res.Mode, res.ShouldAnswer, res.Reason))
	sb.WriteString("\n")

	if len(res.Hits) == 0 {
		sb.WriteString("\n")
		sb.WriteString(p.styles.Dim.Render("No results found."))
		sb.WriteString("\n")
		return sb.String()
	}

	scores := make([]float64, len(res.Hits))
	for i, h := range res.Hits {
		scores[i] = h.FusedScore
	}
	sb.WriteString(p.styles.Label.Render("scores "))
	sb.WriteString(p.styles.Sparkline.Render(Sparkline(scores)))
	sb.WriteString("\n\n")

	for i, h := range res.Hits {
		sb.WriteString(p.hit(i+1, h))
		sb.WriteString("\n")
	}
	return sb.String()
}

func (p *Printer) hit(rank int, h search.Hit) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "%s %s %s %s\n",
		p.styles.Cite.Render(fmt.Sprintf("[%d]", rank)),
		p.styles.Score.Render(fmt.Sprintf("%.3f", h.FusedScore)),
		p.styles.Sparkline.Render(ScoreBar(h.FusedScore, 10)),
		h.ChunkID)

	docID := h.Metadata.DocID
	if docID == "" {
		docID = "unknown_doc"
	}
	meta := fmt.Sprintf("doc %s  span %d-%d", docID, h.Metadata.StartChar, h.Metadata.EndChar)
	if h.Metadata.URL != "" {
		meta += "  " + h.Metadata.URL
	}
	sb.WriteString("    " + p.styles.Label.Render(meta) + "\n")
	sb.WriteString("    " + p.styles.Dim.Render(componentScores(h)) + "\n")

	body := lipgloss.NewStyle().Width(p.width - 4).Render(Snippet(h.Text, maxSnippetRunes))
	for _, line := range strings.Split(body, "\n") {
		sb.WriteString("    " + strings.TrimRight(line, " ") + "\n")
	}
	return sb.String()
}

func componentScores(h search.Hit) string {
	var parts []string
	if h.BM25Score != nil {
		parts = append(parts, fmt.Sprintf("bm25 %.3f #%d", *h.BM25Score, h.BM25Rank))
	}
	if h.DenseScore != nil {
		parts = append(parts, fmt.Sprintf("dense %.3f #%d", *h.DenseScore, h.DenseRank))
	}
	parts = append(parts, fmt.Sprintf("coverage %.2f", h.Coverage))
	return strings.Join(parts, "  ")
}

// Answer renders a generated answer with its sources.
func (p *Printer) Answer(res answer.Result) string {
	var sb strings.Builder

	text := lipgloss.NewStyle().Width(p.width).Render(res.Answer)
	if res.Retrieval.ShouldAnswer {
		sb.WriteString(text)
	} else {
		sb.WriteString(p.styles.Warning.Render(text))
	}
	sb.WriteString("\n")

	if len(res.Citations) > 0 {
		sb.WriteString("\n")
		sb.WriteString(p.styles.Label.Render("Sources"))
		sb.WriteString("\n")
		for _, c := range res.Citations {
			docID := c.DocID
			if docID == "" {
				docID = "unknown_doc"
			}
			line := fmt.Sprintf("%s (%s, span %d-%d, score %.3f)", c.ChunkID, docID, c.StartChar, c.EndChar, c.Score)
			if c.URL != "" {
				line += " " + c.URL
			}
			sb.WriteString("  " + p.styles.Cite.Render(c.Cite) + " " + line + "\n")
		}
	}

	sb.WriteString("\n")
	sb.WriteString(p.gateLine(res.Retrieval.Mode, res.Retrieval.ShouldAnswer, res.Retrieval.Reason))
	sb.WriteString(p.styles.Dim.Render(fmt.Sprintf("  %.2fs", res.Timing.TotalSeconds)))
	sb.WriteString("\n")
	return sb.String()
}

// gateLine renders mode, decision and reason on one line.
func (p *Printer) gateLine(mode search.Mode, should bool, reason string) string {
	decision := p.styles.Success.Render("answer")
	if !should {
		decision = p.styles.Warning.Render("decline")
	}
	return fmt.Sprintf("%s %s  %s %s  %s %s",
		p.styles.Label.Render("mode"), mode,
		p.styles.Label.Render("gate"), decision,
		p.styles.Label.Render("reason"), reason)
}

// Error renders err with its code and suggestion when it carries them.
func (p *Printer) Error(err error) string {
	var ae *amanerrors.AmanError
	if errors.As(err, &ae) {
		s := p.styles.Error.Render(fmt.Sprintf("✗ [%s] %s", ae.Code, ae.Message))
		if ae.Cause != nil {
			s += p.styles.Dim.Render(": " + ae.Cause.Error())
		}
		if ae.Suggestion != "" {
			s += "\n  " + p.styles.Label.Render(ae.Suggestion)
		}
		return s + "\n"
	}
	return p.styles.Error.Render("✗ "+err.Error()) + "\n"
}

// Snippet flattens whitespace and truncates text to max runes.
func Snippet(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	r := []rune(text)
	if len(r) <= max {
		return text
	}
	return string(r[:max]) + " ..."
}
