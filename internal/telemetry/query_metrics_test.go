package telemetry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanrag/internal/search"
)

// =============================================================================
// CircularBuffer Tests
// =============================================================================

func TestCircularBuffer_Add_SingleItem(t *testing.T) {
	buf := NewCircularBuffer[string](10)

	buf.Add("query1")

	items := buf.Items()
	assert.Equal(t, 1, len(items))
	assert.Equal(t, "query1", items[0])
}

func TestCircularBuffer_Add_MultipleItems(t *testing.T) {
	buf := NewCircularBuffer[string](10)

	buf.Add("query1")
	buf.Add("query2")
	buf.Add("query3")

	items := buf.Items()
	assert.Equal(t, 3, len(items))
	assert.Equal(t, []string{"query1", "query2", "query3"}, items)
}

func TestCircularBuffer_MaintainsCapacity(t *testing.T) {
	buf := NewCircularBuffer[string](3)

	// Add more items than capacity
	buf.Add("query1")
	buf.Add("query2")
	buf.Add("query3")
	buf.Add("query4") // Should evict query1
	buf.Add("query5") // Should evict query2

	items := buf.Items()
	assert.Equal(t, 3, len(items))
	// Should contain last 3 items (FIFO eviction)
	assert.Equal(t, []string{"query3", "query4", "query5"}, items)
}

func TestCircularBuffer_Size(t *testing.T) {
	buf := NewCircularBuffer[string](5)

	assert.Equal(t, 0, buf.Size())

	buf.Add("a")
	assert.Equal(t, 1, buf.Size())

	buf.Add("b")
	buf.Add("c")
	assert.Equal(t, 3, buf.Size())

	// Exceed capacity
	buf.Add("d")
	buf.Add("e")
	buf.Add("f")                   // Evicts "a"
	assert.Equal(t, 5, buf.Size()) // Size capped at capacity
}

func TestCircularBuffer_EmptyItems(t *testing.T) {
	buf := NewCircularBuffer[string](10)

	items := buf.Items()
	assert.Equal(t, 0, len(items))
	assert.NotNil(t, items) // Should return empty slice, not nil
}

func TestCircularBuffer_Clear(t *testing.T) {
	buf := NewCircularBuffer[string](10)

	buf.Add("query1")
	buf.Add("query2")
	buf.Clear()

	assert.Equal(t, 0, buf.Size())
	assert.Equal(t, 0, len(buf.Items()))
}

// =============================================================================
// LatencyBucket Tests
// =============================================================================

func TestLatencyToBucket(t *testing.T) {
	tests := []struct {
		latency  time.Duration
		expected LatencyBucket
	}{
		{5 * time.Millisecond, BucketP10},
		{9 * time.Millisecond, BucketP10},
		{10 * time.Millisecond, BucketP50},
		{25 * time.Millisecond, BucketP50},
		{49 * time.Millisecond, BucketP50},
		{50 * time.Millisecond, BucketP100},
		{75 * time.Millisecond, BucketP100},
		{99 * time.Millisecond, BucketP100},
		{100 * time.Millisecond, BucketP500},
		{250 * time.Millisecond, BucketP500},
		{499 * time.Millisecond, BucketP500},
		{500 * time.Millisecond, BucketP1000},
		{1 * time.Second, BucketP1000},
		{5 * time.Second, BucketP1000},
	}

	for _, tt := range tests {
		t.Run(tt.latency.String(), func(t *testing.T) {
			got := LatencyToBucket(tt.latency)
			assert.Equal(t, tt.expected, got)
		})
	}
}

// =============================================================================
// QueryMetrics Tests
// =============================================================================
// =============================================================================
// Metrics Tests
// =============================================================================

func retrieval(query string, mode search.Mode, reason string, should bool, hits int) search.Event {
	return search.Event{
		Query:        query,
		Mode:         mode,
		Reason:       reason,
		ShouldAnswer: should,
		HitCount:     hits,
		Latency:      20 * time.Millisecond,
	}
}

func TestMetrics_RecordRetrieval_CountsModesAndReasons(t *testing.T) {
	// Given: a collector without persistence
	m := New(nil)
	defer m.Close()
	ctx := context.Background()

	// When: recording a mix of retrievals
	m.RecordRetrieval(ctx, retrieval("liveness probe", search.ModeHybrid, "ok", true, 3))
	m.RecordRetrieval(ctx, retrieval("vacuum", search.ModeBM25Only, "ok(fallback=embed_timeout)", true, 2))
	m.RecordRetrieval(ctx, retrieval("vacuum full", search.ModeBM25Only, "low_lexical_support(fallback=embed_timeout)", false, 1))

	// Then: counts are keyed by mode, gate code and fallback
	snap := m.Snapshot()
	assert.Equal(t, int64(3), snap.TotalQueries)
	assert.Equal(t, int64(1), snap.ModeCounts["hybrid"])
	assert.Equal(t, int64(2), snap.ModeCounts["bm25-only"])
	assert.Equal(t, int64(2), snap.ReasonCounts["ok"])
	assert.Equal(t, int64(1), snap.ReasonCounts["low_lexical_support"])
	assert.Equal(t, int64(2), snap.FallbackCounts["embed_timeout"])
	assert.Equal(t, int64(2), snap.ShouldAnswerCount)
	assert.InDelta(t, 2.0/3.0, snap.ShouldAnswerRate(), 1e-9)
	assert.Equal(t, int64(3), snap.LatencyDistribution[BucketP50])
}

func TestMetrics_RecordRetrieval_CapturesNoCandidates(t *testing.T) {
	m := New(nil)
	defer m.Close()

	m.RecordRetrieval(context.Background(), retrieval("zzz qqq", search.ModeNone, "no_candidates", false, 0))

	snap := m.Snapshot()
	require.Len(t, snap.NoCandidateQueries, 1)
	q := snap.NoCandidateQueries[0]
	assert.Equal(t, "zzz qqq", q.Query)
	assert.Equal(t, "no_candidates", q.Reason)
	assert.Len(t, q.ID, 36)
	assert.False(t, q.Timestamp.IsZero())
	assert.Equal(t, int64(1), snap.NoCandidateCount)
}

func TestMetrics_NoCandidateBuffer_MaintainsCapacity(t *testing.T) {
	m := NewWithConfig(nil, Config{NoCandidateCapacity: 3})
	defer m.Close()

	for _, q := range []string{"a1", "a2", "a3", "a4", "a5"} {
		m.RecordRetrieval(context.Background(), retrieval(q, search.ModeNone, "no_candidates", false, 0))
	}

	snap := m.Snapshot()
	require.Len(t, snap.NoCandidateQueries, 3)
	assert.Equal(t, "a3", snap.NoCandidateQueries[0].Query)
	assert.Equal(t, "a5", snap.NoCandidateQueries[2].Query)
	assert.Equal(t, int64(5), snap.NoCandidateCount)
}

func TestMetrics_TopTerms(t *testing.T) {
	m := New(nil)
	defer m.Close()
	ctx := context.Background()

	m.RecordRetrieval(ctx, retrieval("postgres vacuum", search.ModeHybrid, "ok", true, 1))
	m.RecordRetrieval(ctx, retrieval("postgres index", search.ModeHybrid, "ok", true, 1))

	snap := m.Snapshot()
	require.NotEmpty(t, snap.TopTerms)
	assert.Equal(t, TermCount{Term: "postgres", Count: 2}, snap.TopTerms[0])
}

func TestMetrics_TopTerms_LRUEviction(t *testing.T) {
	m := NewWithConfig(nil, Config{TopTermsCapacity: 2})
	defer m.Close()
	ctx := context.Background()

	m.RecordRetrieval(ctx, retrieval("alpha", search.ModeHybrid, "ok", true, 1))
	m.RecordRetrieval(ctx, retrieval("beta", search.ModeHybrid, "ok", true, 1))
	m.RecordRetrieval(ctx, retrieval("gamma", search.ModeHybrid, "ok", true, 1))

	snap := m.Snapshot()
	terms := make([]string, 0, len(snap.TopTerms))
	for _, tc := range snap.TopTerms {
		terms = append(terms, tc.Term)
	}
	assert.ElementsMatch(t, []string{"beta", "gamma"}, terms)
}

func TestMetrics_ExactRepeats(t *testing.T) {
	m := New(nil)
	defer m.Close()
	ctx := context.Background()

	m.RecordRetrieval(ctx, retrieval("Liveness Probe", search.ModeHybrid, "ok", true, 1))
	m.RecordRetrieval(ctx, retrieval("  liveness probe ", search.ModeHybrid, "ok", true, 1))
	m.RecordRetrieval(ctx, retrieval("readiness", search.ModeHybrid, "ok", true, 1))

	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap.ExactRepeatCount)
	assert.InDelta(t, 1.0/3.0, snap.ExactRepeatRate(), 1e-9)
}

func TestMetrics_RequestsAndAnswers(t *testing.T) {
	m := New(nil)
	defer m.Close()

	m.RecordRequest("/answer", 200)
	m.RecordRequest("/answer", 200)
	m.RecordRequest("/answer", 503)
	m.RecordRequest("/retrieve", 400)
	m.RecordAnswer(search.ModeHybrid, true)
	m.RecordAnswer(search.ModeHybrid, false)
	m.RecordAnswer(search.ModeHybrid, false)

	snap := m.Snapshot()
	assert.Equal(t, []RequestCount{
		{Endpoint: "/answer", Status: 200, Count: 2},
		{Endpoint: "/answer", Status: 503, Count: 1},
		{Endpoint: "/retrieve", Status: 400, Count: 1},
	}, snap.Requests)
	assert.Equal(t, []AnswerCount{
		{Mode: "hybrid", ShouldAnswer: false, Count: 2},
		{Mode: "hybrid", ShouldAnswer: true, Count: 1},
	}, snap.AnswerAttempts)
}

func TestMetrics_Concurrent_ThreadSafe(t *testing.T) {
	m := New(nil)
	defer m.Close()

	var wg sync.WaitGroup
	numGoroutines := 50
	eventsPerGoroutine := 100

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < eventsPerGoroutine; j++ {
				m.RecordRetrieval(context.Background(), retrieval("test query", search.ModeHybrid, "ok", true, 5))
				m.RecordRequest("/retrieve", 200)
			}
		}()
	}
	wg.Wait()

	snap := m.Snapshot()
	expected := int64(numGoroutines * eventsPerGoroutine)
	assert.Equal(t, expected, snap.TotalQueries)
	require.Len(t, snap.Requests, 1)
	assert.Equal(t, expected, snap.Requests[0].Count)
}

func TestMetrics_FlushPersistsDeltasOnce(t *testing.T) {
	// Given: a collector backed by an in-memory store
	st, err := Open(":memory:")
	require.NoError(t, err)
	m := NewWithConfig(st, Config{FlushInterval: 0})
	ctx := context.Background()

	// When: flushing twice around new events
	m.RecordRetrieval(ctx, retrieval("postgres vacuum", search.ModeHybrid, "ok", true, 1))
	require.NoError(t, m.Flush())
	require.NoError(t, m.Flush())
	m.RecordRetrieval(ctx, retrieval("postgres", search.ModeBM25Only, "ok(fallback=embed_timeout)", true, 1))
	require.NoError(t, m.Flush())

	// Then: each event is persisted exactly once
	today := time.Now().Format("2006-01-02")
	modes, err := st.GetCounts(FamilyMode, today, today)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"hybrid": 1, "bm25-only": 1}, modes)

	fallbacks, err := st.GetCounts(FamilyFallback, today, today)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"embed_timeout": 1}, fallbacks)

	terms, err := st.GetTopTerms(1)
	require.NoError(t, err)
	assert.Equal(t, []TermCount{{Term: "postgres", Count: 2}}, terms)

	require.NoError(t, m.Close())
}

func TestMetrics_NoCandidatesPersistImmediately(t *testing.T) {
	st, err := Open(":memory:")
	require.NoError(t, err)
	m := NewWithConfig(st, Config{})
	defer m.Close()

	m.RecordRetrieval(context.Background(), retrieval("nothing here", search.ModeNone, "no_candidates", false, 0))

	got, err := st.GetNoCandidateQueries(10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "nothing here", got[0].Query)
}

func TestMetrics_CloseIsIdempotent(t *testing.T) {
	m := New(nil)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	m.RecordRetrieval(context.Background(), retrieval("late", search.ModeHybrid, "ok", true, 1))
	assert.Zero(t, m.Snapshot().TotalQueries)
}

// =============================================================================
// Helper Tests
// =============================================================================

func TestExtractTerms(t *testing.T) {
	tests := []struct {
		query    string
		expected []string
	}{
		{"error handling", []string{"error", "handling"}},
		{"findUser", []string{"finduser"}},
		{"  spaces  around  ", []string{"spaces", "around"}},
		{"k8s-liveness", []string{"k8s", "liveness"}},
		{"", nil},
		{"ab", nil},
		{"abc", []string{"abc"}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractTerms(tt.query))
		})
	}
}

func TestGateCode(t *testing.T) {
	assert.Equal(t, "ok", GateCode("ok"))
	assert.Equal(t, "low_dense_support", GateCode("low_dense_support(fallback=vector_query_failed)"))
	assert.Equal(t, "vector_query_failed", fallbackOf("low_dense_support(fallback=vector_query_failed)"))
	assert.Equal(t, "", fallbackOf("ok"))
}
