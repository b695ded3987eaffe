// Package answer turns retrieved evidence into a cited answer.
//
// The Answerer retrieves, consults the confidence gate and only then asks a
// Generator. Every answer lists its evidence as numbered citations that the
// prompt requires the model to reference.
package answer

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/amanrag/internal/search"
)

const (
	// DefaultMaxContextChars caps each chunk's text in the prompt.
	DefaultMaxContextChars = 1200

	// InsufficientInformation is the answer when evidence is too weak.
	InsufficientInformation = "I don't have enough information in the provided documents."

	// GenerationDisabled is the answer when generation is turned off.
	GenerationDisabled = "(generation disabled)"
)

const promptTemplate = `You are a careful assistant answering questions using ONLY the provided context.
If the context does not contain the answer, say: "%s"

Rules:
- Use only the context below.
- Cite sources using bracket numbers like [1], [2] after the sentence they support.
- Be concise and factual.

Question:
%s

Context:
%s

Answer:`

// FormatContext renders hits as numbered evidence blocks:
//
//	[1] doc_id=<doc> span=<start>-<end> url=<url>
//	<text>
//
// Newlines in the text are flattened and text longer than maxChars is cut
// and suffixed with " ...". maxChars <= 0 selects DefaultMaxContextChars.
func FormatContext(hits []search.Hit, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultMaxContextChars
	}

	blocks := make([]string, 0, len(hits))
	for i, hit := range hits {
		md := hit.Metadata
		docID := md.DocID
		if docID == "" {
			docID = "unknown_doc"
		}

		text := strings.ReplaceAll(strings.TrimSpace(hit.Text), "\n", " ")
		if len(text) > maxChars {
			text = strings.TrimRight(truncate(text, maxChars), " \t") + " ..."
		}

		blocks = append(blocks, fmt.Sprintf("[%d] doc_id=%s span=%d-%d url=%s\n%s\n",
			i+1, docID, md.StartChar, md.EndChar, md.URL, text))
	}
	return strings.Join(blocks, "\n")
}

// BuildPrompt assembles the generation prompt.
func BuildPrompt(question, contextBlock string) string {
	return fmt.Sprintf(promptTemplate, InsufficientInformation, question, contextBlock)
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
