// Package corpus loads the immutable chunk read model the retrieval engine
// queries: chunk records from chunks.jsonl merged with the dense corpus rows
// from meta.jsonl.
package corpus

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Metadata describes where a chunk came from.
type Metadata struct {
	DocID         string `json:"doc_id"`
	URL           string `json:"url"`
	Kind          string `json:"kind"`
	StartChar     int    `json:"start_char"`
	EndChar       int    `json:"end_char"`
	TokenEstimate int    `json:"token_estimate"`
	CreatedAt     string `json:"created_at"`
}

// Chunk is an immutable unit of retrievable text.
type Chunk struct {
	ID       string   `json:"chunk_id"`
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata"`
}

// ChunkRecord is one line of the chunk source. Fields are flat.
type ChunkRecord struct {
	ChunkID       string  `json:"chunk_id"`
	Text          string  `json:"text"`
	DocID         string  `json:"doc_id"`
	URL           string  `json:"url"`
	Kind          string  `json:"kind"`
	StartChar     flexInt `json:"start_char"`
	EndChar       flexInt `json:"end_char"`
	TokenEstimate flexInt `json:"token_estimate"`
	CreatedAt     string  `json:"created_at"`
}

// DenseRow is one line of the dense corpus source. Row is the vector's
// position in the dense index.
type DenseRow struct {
	Row      flexInt     `json:"row"`
	ID       string      `json:"id"`
	Metadata rowMetadata `json:"metadata"`
	Text     string      `json:"text"`
}

type rowMetadata struct {
	DocID         string  `json:"doc_id"`
	URL           string  `json:"url"`
	Kind          string  `json:"kind"`
	StartChar     flexInt `json:"start_char"`
	EndChar       flexInt `json:"end_char"`
	TokenEstimate flexInt `json:"token_estimate"`
	CreatedAt     string  `json:"created_at"`
}

// RowRef maps a dense index row to the chunk it embeds.
type RowRef struct {
	Row     int
	ChunkID string
}

// toChunk converts a chunk record, reporting false for unusable rows.
func (r ChunkRecord) toChunk() (Chunk, bool) {
	id := strings.TrimSpace(r.ChunkID)
	text := strings.TrimSpace(r.Text)
	if id == "" || text == "" {
		return Chunk{}, false
	}
	return Chunk{
		ID:   id,
		Text: text,
		Metadata: newMetadata(r.DocID, r.URL, r.Kind, int(r.StartChar), int(r.EndChar),
			int(r.TokenEstimate), r.CreatedAt),
	}, true
}

// toChunk builds the fallback chunk for a dense row with no chunk record.
func (r DenseRow) toChunk() (Chunk, bool) {
	id := strings.TrimSpace(r.ID)
	text := strings.TrimSpace(r.Text)
	if id == "" || text == "" {
		return Chunk{}, false
	}
	m := r.Metadata
	return Chunk{
		ID:   id,
		Text: text,
		Metadata: newMetadata(m.DocID, m.URL, m.Kind, int(m.StartChar), int(m.EndChar),
			int(m.TokenEstimate), m.CreatedAt),
	}, true
}

func newMetadata(docID, url, kind string, start, end, tokens int, createdAt string) Metadata {
	if start < 0 {
		start = 0
	}
	if end < start {
		end = start
	}
	return Metadata{
		DocID:         docID,
		URL:           url,
		Kind:          kind,
		StartChar:     start,
		EndChar:       end,
		TokenEstimate: tokens,
		CreatedAt:     createdAt,
	}
}

// flexInt accepts JSON numbers, numeric strings, and null.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*f = 0
			return nil
		}
		data = []byte(s)
	}
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return err
	}
	*f = flexInt(v)
	return nil
}
