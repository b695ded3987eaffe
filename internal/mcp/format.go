package mcp

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/amanrag/internal/answer"
	"github.com/Aman-CERP/amanrag/internal/search"
)

// maxSnippetChars caps chunk text in markdown output.
const maxSnippetChars = 600

// FormatRetrieval formats retrieval results as markdown.
func FormatRetrieval(query string, res search.Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Retrieval for \"%s\"\n\n", query)
	fmt.Fprintf(&sb, "**Mode:** %s | **Should answer:** %t | **Reason:** %s\n\n", res.Mode, res.ShouldAnswer, res.Reason)

	if len(res.Hits) == 0 {
		sb.WriteString("No results found.\n")
		return sb.String()
	}

	fmt.Fprintf(&sb, "Found %d result", len(res.Hits))
	if len(res.Hits) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")

	for i, h := range res.Hits {
		formatHit(&sb, i+1, h)
	}
	return sb.String()
}

// formatHit formats a single hit.
func formatHit(sb *strings.Builder, num int, h search.Hit) {
	docID := h.Metadata.DocID
	if docID == "" {
		docID = "unknown_doc"
	}
	fmt.Fprintf(sb, "### %d. %s (score: %.3f)\n", num, h.ChunkID, h.FusedScore)
	fmt.Fprintf(sb, "doc: `%s` span: %d-%d", docID, h.Metadata.StartChar, h.Metadata.EndChar)
	if h.Metadata.URL != "" {
		fmt.Fprintf(sb, " url: %s", h.Metadata.URL)
	}
	sb.WriteString("\n")

	var parts []string
	if h.BM25Score != nil {
		parts = append(parts, fmt.Sprintf("bm25 %.3f (#%d)", *h.BM25Score, h.BM25Rank))
	}
	if h.DenseScore != nil {
		parts = append(parts, fmt.Sprintf("dense %.3f (#%d)", *h.DenseScore, h.DenseRank))
	}
	parts = append(parts, fmt.Sprintf("coverage %.2f", h.Coverage))
	fmt.Fprintf(sb, "_%s_\n\n", strings.Join(parts, ", "))

	fmt.Fprintf(sb, "> %s\n\n", snippet(h.Text))
}

// FormatAnswer formats an answer with its citations as markdown.
func FormatAnswer(res answer.Result) string {
	var sb strings.Builder
	sb.WriteString(res.Answer)
	sb.WriteString("\n\n")

	if len(res.Citations) > 0 {
		sb.WriteString("**Sources**\n\n")
		for _, c := range res.Citations {
			docID := c.DocID
			if docID == "" {
				docID = "unknown_doc"
			}
			fmt.Fprintf(&sb, "- %s %s (%s, span %d-%d)", c.Cite, c.ChunkID, docID, c.StartChar, c.EndChar)
			if c.URL != "" {
				fmt.Fprintf(&sb, " %s", c.URL)
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "_mode: %s, reason: %s_\n", res.Retrieval.Mode, res.Retrieval.Reason)
	return sb.String()
}

func snippet(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	r := []rune(text)
	if len(r) <= maxSnippetChars {
		return text
	}
	return string(r[:maxSnippetChars]) + " ..."
}

// clampLimit ensures limit is within bounds.
func clampLimit(limit, defaultVal, min, max int) int {
	if limit <= 0 {
		return defaultVal
	}
	if limit < min {
		return min
	}
	if limit > max {
		return max
	}
	return limit
}
