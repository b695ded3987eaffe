package store

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/index/scorch"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
	index "github.com/blevesearch/bleve_index_api"
)

const (
	// AlnumTokenizerName is the registered name of the [a-z0-9] tokenizer.
	AlnumTokenizerName = "amanrag_alnum"

	// AlnumAnalyzerName is the analyzer combining the tokenizer with lowercasing.
	AlnumAnalyzerName = "amanrag_alnum_analyzer"

	contentField = "content"
)

func init() {
	// Registration errors only occur on duplicate names.
	_ = registry.RegisterTokenizer(AlnumTokenizerName, alnumTokenizerConstructor)
}

// BleveLexicalIndex implements LexicalIndex on an in-memory bleve index.
type BleveLexicalIndex struct {
	mu       sync.RWMutex
	index    bleve.Index
	ordinals map[string]int
	closed   bool
}

// BleveDocument is the document indexed in bleve.
type BleveDocument struct {
	Content string `json:"content"`
}

// NewBleveLexicalIndex creates an empty in-memory bleve index.
//
// Scorch with an empty path keeps segments in memory and reports the field
// cardinality BM25 scoring depends on.
func NewBleveLexicalIndex() (*BleveLexicalIndex, error) {
	indexMapping, err := createIndexMapping()
	if err != nil {
		return nil, fmt.Errorf("failed to create index mapping: %w", err)
	}

	idx, err := bleve.NewUsing("", indexMapping, scorch.Name, scorch.Name, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	return &BleveLexicalIndex{
		index:    idx,
		ordinals: make(map[string]int),
	}, nil
}

// createIndexMapping builds a BM25-scored mapping whose default analyzer
// tokenizes with the alnum tokenizer and lowercases.
func createIndexMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()

	err := indexMapping.AddCustomAnalyzer(AlnumAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": AlnumTokenizerName,
		"token_filters": []string{
			lowercase.Name,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add custom analyzer: %w", err)
	}

	indexMapping.DefaultAnalyzer = AlnumAnalyzerName
	indexMapping.StoreDynamic = false
	indexMapping.ScoringModel = index.BM25Scoring
	return indexMapping, nil
}

// Index adds documents in indexing order.
func (b *BleveLexicalIndex) Index(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}

	batch := b.index.NewBatch()
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := batch.Index(doc.ID, BleveDocument{Content: doc.Content}); err != nil {
			return fmt.Errorf("failed to index document %s: %w", doc.ID, err)
		}
	}

	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}

	for _, doc := range docs {
		if _, seen := b.ordinals[doc.ID]; !seen {
			b.ordinals[doc.ID] = len(b.ordinals)
		}
	}
	return nil
}

// Search scores every document matching any query token and returns the
// best limit results.
func (b *BleveLexicalIndex) Search(ctx context.Context, query string, limit int) ([]LexicalResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, ErrClosed
	}

	tokens := Tokenize(query)
	if len(tokens) == 0 || limit <= 0 || len(b.ordinals) == 0 {
		return []LexicalResult{}, nil
	}

	matchQuery := bleve.NewMatchQuery(strings.Join(tokens, " "))
	matchQuery.SetField(contentField)

	searchRequest := bleve.NewSearchRequest(matchQuery)
	searchRequest.Size = len(b.ordinals)

	result, err := b.index.SearchInContext(ctx, searchRequest)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	docs := make([]scoredDoc, 0, len(result.Hits))
	for _, hit := range result.Hits {
		ordinal, ok := b.ordinals[hit.ID]
		if !ok {
			continue
		}
		docs = append(docs, scoredDoc{id: hit.ID, score: hit.Score, ordinal: ordinal})
	}
	return rankLexical(docs, limit), nil
}

// Stats returns index statistics.
func (b *BleveLexicalIndex) Stats() LexicalStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return LexicalStats{Backend: "bleve", DocumentCount: len(b.ordinals)}
}

// Close releases the bleve index.
func (b *BleveLexicalIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return b.index.Close()
}

var _ LexicalIndex = (*BleveLexicalIndex)(nil)

func alnumTokenizerConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.Tokenizer, error) {
	return &alnumTokenizer{}, nil
}

// alnumTokenizer splits input into the same tokens as Tokenize.
type alnumTokenizer struct{}

// Tokenize implements analysis.Tokenizer. Offsets refer to the lowercased
// input.
func (t *alnumTokenizer) Tokenize(input []byte) analysis.TokenStream {
	text := strings.ToLower(string(input))
	tokens := Tokenize(text)
	result := make(analysis.TokenStream, 0, len(tokens))

	offset := 0
	for i, token := range tokens {
		start := offset + strings.Index(text[offset:], token)
		end := start + len(token)
		result = append(result, &analysis.Token{
			Term:     []byte(token),
			Start:    start,
			End:      end,
			Position: i + 1,
			Type:     analysis.AlphaNumeric,
		})
		offset = end
	}
	return result
}
