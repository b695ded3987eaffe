package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanrag/internal/corpus"
	"github.com/Aman-CERP/amanrag/internal/search"
	"github.com/Aman-CERP/amanrag/internal/store"
)

// =============================================================================
// Debouncer
// =============================================================================

func TestDebouncer_SingleEvent_PassesThrough(t *testing.T) {
	// Given: a debouncer with a short window
	d := NewDebouncer(30 * time.Millisecond)
	defer d.Stop()

	// When: a single event is added
	d.Add(FileEvent{Path: "/a/chunks.jsonl", Operation: OpModify, Timestamp: time.Now()})

	// Then: it passes through after the window
	select {
	case events := <-d.Output():
		require.Len(t, events, 1)
		assert.Equal(t, "/a/chunks.jsonl", events[0].Path)
		assert.Equal(t, OpModify, events[0].Operation)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for debounced event")
	}
}

func TestDebouncer_RapidEvents_CoalesceIntoOneBatch(t *testing.T) {
	d := NewDebouncer(80 * time.Millisecond)
	defer d.Stop()

	d.Add(FileEvent{Path: "/a/index.hnsw", Operation: OpCreate})
	for i := 0; i < 5; i++ {
		d.Add(FileEvent{Path: "/a/index.hnsw", Operation: OpModify})
		d.Add(FileEvent{Path: "/a/meta.jsonl", Operation: OpModify})
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case events := <-d.Output():
		require.Len(t, events, 2)
		assert.Equal(t, "/a/index.hnsw", events[0].Path)
		assert.Equal(t, OpCreate, events[0].Operation)
		assert.Equal(t, "/a/meta.jsonl", events[1].Path)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for debounced events")
	}
}

func TestDebouncer_StopClosesOutput(t *testing.T) {
	d := NewDebouncer(time.Hour)
	d.Add(FileEvent{Path: "x"})

	d.Stop()
	d.Stop()
	d.Add(FileEvent{Path: "y"})

	_, ok := <-d.Output()
	assert.False(t, ok)
}

func TestOperation_String(t *testing.T) {
	assert.Equal(t, "CREATE", OpCreate.String())
	assert.Equal(t, "DELETE", OpDelete.String())
	assert.Equal(t, "UNKNOWN", Operation(99).String())
}

// =============================================================================
// ArtifactWatcher
// =============================================================================

func waitBatch(t *testing.T, ch <-chan []FileEvent) []FileEvent {
	t.Helper()
	select {
	case batch := <-ch:
		return batch
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for artifact change")
		return nil
	}
}

func TestArtifactWatcher_DetectsChanges(t *testing.T) {
	for _, polling := range []bool{false, true} {
		name := "fsnotify"
		if polling {
			name = "polling"
		}
		t.Run(name, func(t *testing.T) {
			// Given: a watched artifact next to an unwatched file
			dir := t.TempDir()
			chunks := filepath.Join(dir, "chunks.jsonl")
			require.NoError(t, os.WriteFile(chunks, []byte("{}\n"), 0o644))

			w, err := NewArtifactWatcher([]string{chunks, ""}, Options{
				DebounceWindow: 20 * time.Millisecond,
				PollInterval:   20 * time.Millisecond,
				ForcePolling:   polling,
			})
			require.NoError(t, err)
			assert.Equal(t, polling, w.Polling())

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go func() { _ = w.Start(ctx) }()
			defer w.Stop()
			time.Sleep(60 * time.Millisecond)

			// When: the unwatched file and then the artifact change
			require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
			require.NoError(t, os.WriteFile(chunks, []byte("{}\n{\"chunk_id\":\"c2\"}\n"), 0o644))

			// Then: only the artifact is reported
			batch := waitBatch(t, w.Events())
			require.Len(t, batch, 1)
			abs, _ := filepath.Abs(chunks)
			assert.Equal(t, abs, batch[0].Path)
		})
	}
}

func TestArtifactWatcher_SkipsMissingDirs(t *testing.T) {
	// Given: one artifact in an existing directory and one in a missing one
	dir := t.TempDir()
	chunks := filepath.Join(dir, "chunks.jsonl")
	require.NoError(t, os.WriteFile(chunks, []byte("{}\n"), 0o644))
	index := filepath.Join(dir, "missing", "index.hnsw")

	w, err := NewArtifactWatcher([]string{chunks, index}, Options{DebounceWindow: 20 * time.Millisecond})
	require.NoError(t, err)
	if w.Polling() {
		t.Skip("fsnotify unavailable")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Start(ctx) }()
	defer w.Stop()
	time.Sleep(60 * time.Millisecond)

	// When: the existing artifact changes
	require.NoError(t, os.WriteFile(chunks, []byte("{}\n{}\n"), 0o644))

	// Then: it is still reported
	batch := waitBatch(t, w.Events())
	require.Len(t, batch, 1)
}

func TestArtifactWatcher_AllDirsMissing(t *testing.T) {
	w, err := NewArtifactWatcher([]string{filepath.Join(t.TempDir(), "gone", "chunks.jsonl")}, DefaultOptions())
	require.NoError(t, err)
	if w.Polling() {
		t.Skip("fsnotify unavailable")
	}
	defer w.Stop()

	err = w.Start(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no artifact directory exists")
}

func TestNewArtifactWatcher_RequiresPaths(t *testing.T) {
	_, err := NewArtifactWatcher([]string{"", ""}, DefaultOptions())
	assert.Error(t, err)
}

// =============================================================================
// Reloader
// =============================================================================

func buildRetriever(t *testing.T, texts ...string) *search.Retriever {
	t.Helper()
	records := make([]corpus.ChunkRecord, len(texts))
	docs := make([]store.Document, len(texts))
	for i, text := range texts {
		id := string(rune('a' + i))
		records[i] = corpus.ChunkRecord{ChunkID: id, Text: text}
		docs[i] = store.Document{ID: id, Content: text}
	}
	c, err := corpus.Build(records, nil)
	require.NoError(t, err)
	idx, err := store.BuildLexicalIndex(context.Background(), "", docs)
	require.NoError(t, err)
	return search.NewRetriever(c, idx, search.DenseUnavailable(search.ReasonMissingDenseArtifacts), nil, search.DefaultConfig())
}

func TestReloader_SwapsAndClosesOld(t *testing.T) {
	// Given: a holder serving an initial engine
	first := buildRetriever(t, "alpha")
	holder := search.NewHolder(first)
	next := buildRetriever(t, "alpha", "beta")
	r := NewReloader(holder, func(context.Context) (*search.Retriever, error) { return next, nil },
		Options{CloseGrace: 10 * time.Millisecond})

	// When: reloading
	require.NoError(t, r.Reload(context.Background()))

	// Then: the new engine serves and the old one is closed after the grace
	assert.Same(t, next, holder.Current())
	reloads, failures := r.Stats()
	assert.Equal(t, int64(1), reloads)
	assert.Zero(t, failures)
	assert.Eventually(t, func() bool {
		r.closeMu.Lock()
		defer r.closeMu.Unlock()
		return len(r.pending) == 0
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, holder.Close())
}

func TestReloader_FailureKeepsServing(t *testing.T) {
	first := buildRetriever(t, "alpha")
	holder := search.NewHolder(first)
	defer holder.Close()
	loadErr := errors.New("meta rows do not match index")
	r := NewReloader(holder, func(context.Context) (*search.Retriever, error) { return nil, loadErr }, DefaultOptions())

	err := r.Reload(context.Background())

	assert.ErrorIs(t, err, loadErr)
	assert.Same(t, first, holder.Current())
	assert.ErrorIs(t, holder.LoadError(), loadErr)
	_, failures := r.Stats()
	assert.Equal(t, int64(1), failures)
}

func TestReloader_RunReloadsPerBatch(t *testing.T) {
	holder := search.NewHolder(nil)
	defer holder.Close()

	var loads atomic.Int32
	r := NewReloader(holder, func(context.Context) (*search.Retriever, error) {
		loads.Add(1)
		return buildRetriever(t, "alpha"), nil
	}, Options{CloseGrace: time.Hour})

	events := make(chan []FileEvent, 2)
	events <- []FileEvent{{Path: "/a/chunks.jsonl", Operation: OpModify}}
	events <- []FileEvent{{Path: "/a/index.hnsw", Operation: OpCreate}}
	close(events)

	// Run returns when the channel closes and closes replaced engines.
	r.Run(context.Background(), events)

	assert.Equal(t, int32(2), loads.Load())
	assert.True(t, holder.Ready())
	r.closeMu.Lock()
	assert.Empty(t, r.pending)
	r.closeMu.Unlock()
}
