package logging

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleLog = `{"time":"2026-03-01T10:00:00.000Z","level":"DEBUG","msg":"bm25_lookup","hits":4}
{"time":"2026-03-01T10:00:01.000Z","level":"INFO","msg":"query_complete","mode":"hybrid","reason":"ok"}
not json at all
{"time":"2026-03-01T10:00:02.000Z","level":"WARN","msg":"dense_unavailable","reason":"missing_dense_artifacts"}
{"time":"2026-03-01T10:00:03.000Z","level":"ERROR","msg":"engine_load_failed","error":"no corpus source found"}
`

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server.log")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseLine(t *testing.T) {
	// Given: a JSON line with extra attributes
	entry := ParseLine(`{"time":"2026-03-01T10:00:01.5Z","level":"INFO","msg":"query_complete","hits":3}`)

	// Then: standard fields are lifted out of Attrs
	assert.True(t, entry.IsValid)
	assert.Equal(t, "INFO", entry.Level)
	assert.Equal(t, "query_complete", entry.Msg)
	assert.Equal(t, 500*time.Millisecond, time.Duration(entry.Time.Nanosecond()))
	assert.Equal(t, map[string]any{"hits": float64(3)}, entry.Attrs)

	// And: non-JSON lines keep only the raw text
	bad := ParseLine("plain text")
	assert.False(t, bad.IsValid)
	assert.Equal(t, "plain text", bad.Raw)
}

func TestViewer_TailLastN(t *testing.T) {
	path := writeLog(t, sampleLog)
	v := NewViewer(ViewerConfig{NoColor: true}, &bytes.Buffer{})

	entries, err := v.Tail(path, 2)

	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "dense_unavailable", entries[0].Msg)
	assert.Equal(t, "engine_load_failed", entries[1].Msg)
}

func TestViewer_TailFilters(t *testing.T) {
	path := writeLog(t, sampleLog)

	tests := []struct {
		name string
		cfg  ViewerConfig
		want []string
	}{
		{"default level hides debug", ViewerConfig{}, []string{"query_complete", "", "dense_unavailable", "engine_load_failed"}},
		{"debug shows all", ViewerConfig{Level: "debug"}, []string{"bm25_lookup", "query_complete", "", "dense_unavailable", "engine_load_failed"}},
		{"warn and above", ViewerConfig{Level: "warn"}, []string{"", "dense_unavailable", "engine_load_failed"}},
		{"pattern", ViewerConfig{Level: "debug", Pattern: regexp.MustCompile(`reason`)}, []string{"query_complete", "dense_unavailable"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.NoColor = true
			entries, err := NewViewer(tt.cfg, &bytes.Buffer{}).Tail(path, 50)
			require.NoError(t, err)

			var got []string
			for _, e := range entries {
				got = append(got, e.Msg)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestViewer_TailMissingFile(t *testing.T) {
	_, err := NewViewer(ViewerConfig{}, &bytes.Buffer{}).Tail(filepath.Join(t.TempDir(), "nope.log"), 10)

	require.Error(t, err)
}

func TestViewer_FormatEntrySortsAttrs(t *testing.T) {
	v := NewViewer(ViewerConfig{NoColor: true}, &bytes.Buffer{})
	entry := ParseLine(`{"time":"2026-03-01T10:00:01Z","level":"INFO","msg":"query_complete","reason":"ok","mode":"hybrid"}`)

	got := v.FormatEntry(entry)

	assert.Equal(t, "10:00:01.000 INFO  query_complete mode=hybrid reason=ok", got)
	assert.Equal(t, "plain text", v.FormatEntry(ParseLine("plain text")))
}

func TestViewer_Print(t *testing.T) {
	var out bytes.Buffer
	v := NewViewer(ViewerConfig{NoColor: true}, &out)

	v.Print([]LogEntry{ParseLine(`{"time":"2026-03-01T10:00:01Z","level":"WARN","msg":"slow"}`)})

	assert.Equal(t, "10:00:01.000 WARN  slow\n", out.String())
}

func TestViewer_FollowSeesAppendedLines(t *testing.T) {
	// Given: a log file with history
	path := writeLog(t, sampleLog)
	v := NewViewer(ViewerConfig{NoColor: true}, &bytes.Buffer{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	entries := make(chan LogEntry, 10)
	done := make(chan error, 1)
	go func() { done <- v.Follow(ctx, path, entries) }()
	time.Sleep(150 * time.Millisecond)

	// When: a line is appended
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"time":"2026-03-01T10:00:04Z","level":"INFO","msg":"engine_reloaded"}` + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	// Then: only the new entry is delivered
	select {
	case e := <-entries:
		assert.Equal(t, "engine_reloaded", e.Msg)
	case <-time.After(3 * time.Second):
		t.Fatal("no entry followed")
	}

	cancel()
	require.NoError(t, <-done)
}

func TestViewer_FollowAfterTruncate(t *testing.T) {
	path := writeLog(t, sampleLog)
	v := NewViewer(ViewerConfig{NoColor: true}, &bytes.Buffer{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	entries := make(chan LogEntry, 10)
	go func() { _ = v.Follow(ctx, path, entries) }()
	time.Sleep(150 * time.Millisecond)

	line := `{"time":"2026-03-01T11:00:00Z","level":"INFO","msg":"rotated"}` + "\n"
	require.NoError(t, os.WriteFile(path, []byte(line), 0o644))

	select {
	case e := <-entries:
		assert.True(t, strings.HasPrefix(e.Msg, "rotated"))
	case <-time.After(3 * time.Second):
		t.Fatal("no entry after truncate")
	}
}
