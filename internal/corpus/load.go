package corpus

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"

	amanerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

var (
	// ErrCorpusEmpty is returned when loading yields zero usable chunks.
	ErrCorpusEmpty = amanerrors.New(amanerrors.ErrCodeCorpusEmpty, "corpus has no usable chunks", nil)

	// ErrCorpusNotFound is returned when neither corpus source exists.
	ErrCorpusNotFound = amanerrors.New(amanerrors.ErrCodeCorpusNotFound, "no corpus source found", nil)
)

// Sources names the persisted corpus inputs. Either may be empty or missing,
// but not both.
type Sources struct {
	ChunksPath string
	MetaPath   string
}

// Load reads the chunk and dense corpus sources and builds the Store.
func Load(src Sources) (*Store, error) {
	var (
		records []ChunkRecord
		rows    []DenseRow
		found   bool
	)

	if exists(src.ChunksPath) {
		recs, err := readFile[ChunkRecord](src.ChunksPath)
		if err != nil {
			return nil, err
		}
		records, found = recs, true
	} else if src.ChunksPath != "" {
		slog.Warn("chunk_source_missing", slog.String("path", src.ChunksPath))
	}

	if exists(src.MetaPath) {
		rs, err := readFile[DenseRow](src.MetaPath)
		if err != nil {
			return nil, err
		}
		rows, found = rs, true
	}

	if !found {
		return nil, amanerrors.New(amanerrors.ErrCodeCorpusNotFound,
			fmt.Sprintf("no corpus source found (chunks=%q, meta=%q)", src.ChunksPath, src.MetaPath), nil).
			WithSuggestion("Set paths.chunks or paths.meta in .amanrag.yaml")
	}

	store, err := Build(records, rows)
	if err != nil {
		return nil, err
	}

	st := store.Stats()
	slog.Info("corpus_loaded",
		slog.Int("chunks", store.Len()),
		slog.Int("chunk_records", st.ChunkRecords),
		slog.Int("dense_rows", st.DenseRows),
		slog.Int("discarded", st.Discarded),
		slog.Int("duplicates", st.Duplicates),
		slog.Int("fallback_chunks", st.FallbackChunks),
		slog.Int("unresolvable_rows", st.UnresolvableRows))
	return store, nil
}

// Build merges chunk records and dense rows into a Store.
//
// Chunk records come first in indexing order. A dense row whose id has no
// chunk record contributes a chunk built from the row's own text and metadata.
// Records with an empty id or text are discarded; the first occurrence of a
// duplicate id wins.
func Build(records []ChunkRecord, rows []DenseRow) (*Store, error) {
	s := &Store{
		byID: make(map[string]int, len(records)),
		stats: LoadStats{
			ChunkRecords: len(records),
			DenseRows:    len(rows),
		},
	}

	for _, rec := range records {
		c, ok := rec.toChunk()
		if !ok {
			s.stats.Discarded++
			continue
		}
		if !s.add(c) {
			s.stats.Duplicates++
		}
	}

	seenRows := make(map[int]struct{}, len(rows))
	for _, row := range rows {
		idx := int(row.Row)
		id := strings.TrimSpace(row.ID)
		if idx < 0 || id == "" {
			s.stats.UnresolvableRows++
			continue
		}
		if _, ok := s.byID[id]; !ok {
			c, ok := row.toChunk()
			if !ok {
				s.stats.UnresolvableRows++
				continue
			}
			s.add(c)
			s.stats.FallbackChunks++
		}
		if _, dup := seenRows[idx]; dup {
			s.stats.Duplicates++
			continue
		}
		seenRows[idx] = struct{}{}
		s.rows = append(s.rows, RowRef{Row: idx, ChunkID: id})
	}
	sort.Slice(s.rows, func(i, j int) bool { return s.rows[i].Row < s.rows[j].Row })

	if len(s.chunks) == 0 {
		return nil, amanerrors.New(amanerrors.ErrCodeCorpusEmpty,
			fmt.Sprintf("corpus has no usable chunks (%d records, %d dense rows)", len(records), len(rows)), nil).
			WithSuggestion("Check that chunk records carry a non-empty chunk_id and text")
	}
	return s, nil
}

func (s *Store) add(c Chunk) bool {
	if _, ok := s.byID[c.ID]; ok {
		return false
	}
	s.byID[c.ID] = len(s.chunks)
	s.chunks = append(s.chunks, c)
	return true
}

// ReadChunkRecords decodes newline-delimited chunk records.
func ReadChunkRecords(r io.Reader) ([]ChunkRecord, error) {
	return readJSONL[ChunkRecord](r, "chunk source")
}

// ReadDenseRows decodes newline-delimited dense corpus rows.
func ReadDenseRows(r io.Reader) ([]DenseRow, error) {
	return readJSONL[DenseRow](r, "dense corpus source")
}

func readFile[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, amanerrors.New(amanerrors.ErrCodeCorpusNotFound, "failed to open "+path, err)
	}
	defer f.Close()
	return readJSONL[T](f, path)
}

// readJSONL decodes one JSON object per line. Blank lines are skipped;
// a malformed line is fatal and reported with its line number.
func readJSONL[T any](r io.Reader, name string) ([]T, error) {
	br := bufio.NewReader(r)
	var out []T
	for lineNo := 1; ; lineNo++ {
		line, err := br.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			var v T
			if uerr := json.Unmarshal(line, &v); uerr != nil {
				return nil, amanerrors.New(amanerrors.ErrCodeCorpusMalformed,
					fmt.Sprintf("invalid JSON on line %d in %s", lineNo, name), uerr).
					WithDetail("line", strconv.Itoa(lineNo))
			}
			out = append(out, v)
		}
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
	}
}

func exists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
