package corpus

// LoadStats reports what corpus loading kept and discarded.
type LoadStats struct {
	ChunkRecords     int `json:"chunk_records"`
	DenseRows        int `json:"dense_rows"`
	Discarded        int `json:"discarded"`
	Duplicates       int `json:"duplicates"`
	FallbackChunks   int `json:"fallback_chunks"`
	UnresolvableRows int `json:"unresolvable_rows"`
}

// Store is the immutable chunk read model. It is safe for concurrent reads.
type Store struct {
	chunks []Chunk
	byID   map[string]int
	rows   []RowRef
	stats  LoadStats
}

// Get returns the chunk with the given id.
func (s *Store) Get(id string) (Chunk, bool) {
	i, ok := s.byID[id]
	if !ok {
		return Chunk{}, false
	}
	return s.chunks[i], true
}

// All returns every chunk in indexing order. The slice is a copy.
func (s *Store) All() []Chunk {
	out := make([]Chunk, len(s.chunks))
	copy(out, s.chunks)
	return out
}

// Len returns the number of chunks.
func (s *Store) Len() int {
	return len(s.chunks)
}

// Ordinal returns the chunk's position in indexing order.
func (s *Store) Ordinal(id string) (int, bool) {
	i, ok := s.byID[id]
	return i, ok
}

// Rows returns the usable dense rows, sorted by row index.
func (s *Store) Rows() []RowRef {
	out := make([]RowRef, len(s.rows))
	copy(out, s.rows)
	return out
}

// HasDenseRows reports whether a dense corpus source contributed rows.
func (s *Store) HasDenseRows() bool {
	return s.stats.DenseRows > 0
}

// Stats returns load statistics.
func (s *Store) Stats() LoadStats {
	return s.stats
}
