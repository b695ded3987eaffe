// Package telemetry records retrieval and request metrics.
// All telemetry data is stored locally - no external reporting.
package telemetry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Aman-CERP/amanrag/internal/search"
	"github.com/Aman-CERP/amanrag/internal/store"
)

// =============================================================================
// Latency Buckets
// =============================================================================

// LatencyBucket represents a latency histogram bucket.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // >=500ms
)

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	default:
		return BucketP1000
	}
}

// =============================================================================
// Circular Buffer
// =============================================================================

// CircularBuffer is a fixed-capacity FIFO buffer.
type CircularBuffer[T any] struct {
	items    []T
	head     int // Next write position
	size     int
	capacity int
	mu       sync.RWMutex
}

// NewCircularBuffer creates a new circular buffer with the given capacity.
func NewCircularBuffer[T any](capacity int) *CircularBuffer[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &CircularBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Add adds an item to the buffer. If full, the oldest item is evicted.
func (b *CircularBuffer[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items[b.head] = item
	b.head = (b.head + 1) % b.capacity

	if b.size < b.capacity {
		b.size++
	}
}

// Items returns all items in the buffer in FIFO order (oldest first).
func (b *CircularBuffer[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.size == 0 {
		return []T{}
	}

	result := make([]T, b.size)
	if b.size < b.capacity {
		copy(result, b.items[:b.size])
	} else {
		// Full: oldest item is at head
		copy(result, b.items[b.head:])
		copy(result[b.capacity-b.head:], b.items[:b.head])
	}
	return result
}

// Size returns the current number of items in the buffer.
func (b *CircularBuffer[T]) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Clear removes all items from the buffer.
func (b *CircularBuffer[T]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.head = 0
	b.size = 0
}

// =============================================================================
// Term Extraction
// =============================================================================

// ExtractTerms returns the query's retrieval tokens of length 3 or more.
func ExtractTerms(query string) []string {
	var terms []string
	for _, t := range store.Tokenize(query) {
		if len(t) >= 3 {
			terms = append(terms, t)
		}
	}
	return terms
}

// GateCode strips the fallback suffix from a retrieval reason:
// "ok(fallback=embed_timeout)" becomes "ok".
func GateCode(reason string) string {
	if i := strings.IndexByte(reason, '('); i >= 0 {
		return reason[:i]
	}
	return reason
}

// fallbackOf returns the fallback named in a retrieval reason, or "".
func fallbackOf(reason string) string {
	const marker = "(fallback="
	i := strings.Index(reason, marker)
	if i < 0 {
		return ""
	}
	return strings.TrimSuffix(reason[i+len(marker):], ")")
}

// =============================================================================
// Snapshot
// =============================================================================

// TermCount represents a term and its frequency count.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// NoCandidateQuery is a query that retrieved nothing.
type NoCandidateQuery struct {
	ID        string    `json:"id"`
	Query     string    `json:"query"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// RequestCount counts requests per endpoint and status.
type RequestCount struct {
	Endpoint string `json:"endpoint"`
	Status   int    `json:"status"`
	Count    int64  `json:"count"`
}

// AnswerCount counts answer attempts per mode and gate outcome.
type AnswerCount struct {
	Mode         string `json:"retrieval_mode"`
	ShouldAnswer bool   `json:"should_answer"`
	Count        int64  `json:"count"`
}

// Snapshot is an immutable copy of the collected metrics.
type Snapshot struct {
	TotalQueries        int64                   `json:"total_queries"`
	ModeCounts          map[string]int64        `json:"mode_counts"`
	ReasonCounts        map[string]int64        `json:"reason_counts"`
	FallbackCounts      map[string]int64        `json:"fallback_counts"`
	ShouldAnswerCount   int64                   `json:"should_answer_count"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	TopTerms            []TermCount             `json:"top_terms"`
	NoCandidateQueries  []NoCandidateQuery      `json:"no_candidate_queries"`
	NoCandidateCount    int64                   `json:"no_candidate_count"`
	ExactRepeatCount    int64                   `json:"exact_repeat_count"`
	Requests            []RequestCount          `json:"requests"`
	AnswerAttempts      []AnswerCount           `json:"answer_attempts"`
	Since               time.Time               `json:"since"`
}

// ShouldAnswerRate returns the fraction of queries the gate passed.
func (s *Snapshot) ShouldAnswerRate() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ShouldAnswerCount) / float64(s.TotalQueries)
}

// ExactRepeatRate returns the fraction of queries seen recently.
func (s *Snapshot) ExactRepeatRate() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ExactRepeatCount) / float64(s.TotalQueries)
}

// =============================================================================
// Store (Interface)
// =============================================================================

// Counter families persisted by a Store.
const (
	FamilyMode     = "mode"
	FamilyReason   = "reason"
	FamilyFallback = "fallback"
	FamilyLatency  = "latency"
	FamilyRequest  = "request"
	FamilyAnswer   = "answer"
)

// Store persists metrics.
type Store interface {
	// SaveCounts adds daily counts for one counter family.
	SaveCounts(date, family string, counts map[string]int64) error

	// GetCounts sums a family's counts over a date range.
	GetCounts(family, from, to string) (map[string]int64, error)

	// UpsertTermCounts adds term frequency counts.
	UpsertTermCounts(terms map[string]int64) error

	// GetTopTerms retrieves the top N terms by frequency.
	GetTopTerms(limit int) ([]TermCount, error)

	// AddNoCandidateQuery appends to the bounded no-candidate log.
	AddNoCandidateQuery(q NoCandidateQuery) error

	// GetNoCandidateQueries retrieves recent no-candidate queries, newest first.
	GetNoCandidateQueries(limit int) ([]NoCandidateQuery, error)

	// Close releases resources.
	Close() error
}

// =============================================================================
// Configuration
// =============================================================================

// Config configures the metrics collector.
type Config struct {
	TopTermsCapacity      int           // Max terms to track (default: 100)
	NoCandidateCapacity   int           // Max no-candidate queries to keep (default: 100)
	RecentQueriesCapacity int           // Max queries to track for repetition (default: 500)
	FlushInterval         time.Duration // How often to flush to store (0 = no auto-flush)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		TopTermsCapacity:      100,
		NoCandidateCapacity:   100,
		RecentQueriesCapacity: 500,
		FlushInterval:         60 * time.Second,
	}
}

// =============================================================================
// Metrics
// =============================================================================

// Metrics collects retrieval telemetry. Safe for concurrent use.
// It implements search.Recorder.
type Metrics struct {
	mu sync.Mutex

	// Totals since start
	counts         map[string]map[string]int64
	totalQueries   int64
	shouldAnswer   int64
	noCandidates   int64
	exactRepeats   int64
	topTerms       *lru.Cache[string, int64]
	recentQueries  *lru.Cache[string, struct{}]
	noCandidateLog *CircularBuffer[NoCandidateQuery]
	startTime      time.Time

	// Deltas since the last flush
	pending      map[string]map[string]int64
	pendingTerms map[string]int64

	store       Store
	config      Config
	flushTicker *time.Ticker
	stopCh      chan struct{}
	closed      bool
}

var _ search.Recorder = (*Metrics)(nil)

// New creates a collector with default configuration.
// If st is nil, metrics are only kept in memory.
func New(st Store) *Metrics {
	return NewWithConfig(st, DefaultConfig())
}

// NewWithConfig creates a collector with custom configuration.
func NewWithConfig(st Store, cfg Config) *Metrics {
	defaults := DefaultConfig()
	if cfg.TopTermsCapacity <= 0 {
		cfg.TopTermsCapacity = defaults.TopTermsCapacity
	}
	if cfg.NoCandidateCapacity <= 0 {
		cfg.NoCandidateCapacity = defaults.NoCandidateCapacity
	}
	if cfg.RecentQueriesCapacity <= 0 {
		cfg.RecentQueriesCapacity = defaults.RecentQueriesCapacity
	}

	topTerms, _ := lru.New[string, int64](cfg.TopTermsCapacity)
	recentQueries, _ := lru.New[string, struct{}](cfg.RecentQueriesCapacity)

	m := &Metrics{
		counts:         make(map[string]map[string]int64),
		topTerms:       topTerms,
		recentQueries:  recentQueries,
		noCandidateLog: NewCircularBuffer[NoCandidateQuery](cfg.NoCandidateCapacity),
		startTime:      time.Now(),
		pending:        make(map[string]map[string]int64),
		pendingTerms:   make(map[string]int64),
		store:          st,
		config:         cfg,
		stopCh:         make(chan struct{}),
	}

	if cfg.FlushInterval > 0 && st != nil {
		m.flushTicker = time.NewTicker(cfg.FlushInterval)
		go m.flushLoop()
	}
	return m
}

func (m *Metrics) flushLoop() {
	for {
		select {
		case <-m.flushTicker.C:
			if err := m.Flush(); err != nil {
				slog.Warn("telemetry_flush_failed", slog.String("error", err.Error()))
			}
		case <-m.stopCh:
			return
		}
	}
}

// incr bumps a counter in both the totals and the pending deltas.
// Caller holds m.mu.
func (m *Metrics) incr(family, key string) {
	for _, target := range []map[string]map[string]int64{m.counts, m.pending} {
		f, ok := target[family]
		if !ok {
			f = make(map[string]int64)
			target[family] = f
		}
		f[key]++
	}
}

// RecordRetrieval captures one retrieval.
func (m *Metrics) RecordRetrieval(_ context.Context, ev search.Event) {
	var noCandidate *NoCandidateQuery
	if ev.HitCount == 0 {
		noCandidate = &NoCandidateQuery{
			ID:        uuid.NewString(),
			Query:     ev.Query,
			Reason:    ev.Reason,
			Timestamp: time.Now(),
		}
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}

	m.totalQueries++
	m.incr(FamilyMode, string(ev.Mode))
	m.incr(FamilyReason, GateCode(ev.Reason))
	if fb := fallbackOf(ev.Reason); fb != "" {
		m.incr(FamilyFallback, fb)
	}
	m.incr(FamilyLatency, string(LatencyToBucket(ev.Latency)))
	if ev.ShouldAnswer {
		m.shouldAnswer++
	}

	for _, term := range ExtractTerms(ev.Query) {
		count, _ := m.topTerms.Get(term)
		m.topTerms.Add(term, count+1)
		m.pendingTerms[term]++
	}

	key := hashQuery(ev.Query)
	if _, seen := m.recentQueries.Get(key); seen {
		m.exactRepeats++
	}
	m.recentQueries.Add(key, struct{}{})

	if noCandidate != nil {
		m.noCandidates++
		m.noCandidateLog.Add(*noCandidate)
	}
	st := m.store
	m.mu.Unlock()

	if noCandidate != nil && st != nil {
		if err := st.AddNoCandidateQuery(*noCandidate); err != nil {
			slog.Debug("telemetry_store_failed", slog.String("error", err.Error()))
		}
	}
}

// RecordRequest counts an HTTP request.
func (m *Metrics) RecordRequest(endpoint string, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.incr(FamilyRequest, endpoint+"|"+strconv.Itoa(status))
}

// RecordAnswer counts an answer attempt.
func (m *Metrics) RecordAnswer(mode search.Mode, shouldAnswer bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.incr(FamilyAnswer, string(mode)+"|"+strconv.FormatBool(shouldAnswer))
}

// hashQuery creates a normalized hash of the query for repetition detection.
func hashQuery(query string) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	hash := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(hash[:16])
}

// Snapshot returns current metrics for reporting.
func (m *Metrics) Snapshot() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	topTerms := make([]TermCount, 0, m.topTerms.Len())
	for _, key := range m.topTerms.Keys() {
		if count, ok := m.topTerms.Peek(key); ok {
			topTerms = append(topTerms, TermCount{Term: key, Count: count})
		}
	}
	sort.SliceStable(topTerms, func(i, j int) bool {
		if topTerms[i].Count != topTerms[j].Count {
			return topTerms[i].Count > topTerms[j].Count
		}
		return topTerms[i].Term < topTerms[j].Term
	})

	latencies := make(map[LatencyBucket]int64)
	for k, v := range m.counts[FamilyLatency] {
		latencies[LatencyBucket(k)] = v
	}

	return &Snapshot{
		TotalQueries:        m.totalQueries,
		ModeCounts:          copyCounts(m.counts[FamilyMode]),
		ReasonCounts:        copyCounts(m.counts[FamilyReason]),
		FallbackCounts:      copyCounts(m.counts[FamilyFallback]),
		ShouldAnswerCount:   m.shouldAnswer,
		LatencyDistribution: latencies,
		TopTerms:            topTerms,
		NoCandidateQueries:  m.noCandidateLog.Items(),
		NoCandidateCount:    m.noCandidates,
		ExactRepeatCount:    m.exactRepeats,
		Requests:            requestCounts(m.counts[FamilyRequest]),
		AnswerAttempts:      answerCounts(m.counts[FamilyAnswer]),
		Since:               m.startTime,
	}
}

func copyCounts(src map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func requestCounts(src map[string]int64) []RequestCount {
	out := make([]RequestCount, 0, len(src))
	for key, count := range src {
		endpoint, status, _ := strings.Cut(key, "|")
		code, _ := strconv.Atoi(status)
		out = append(out, RequestCount{Endpoint: endpoint, Status: code, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Endpoint != out[j].Endpoint {
			return out[i].Endpoint < out[j].Endpoint
		}
		return out[i].Status < out[j].Status
	})
	return out
}

func answerCounts(src map[string]int64) []AnswerCount {
	out := make([]AnswerCount, 0, len(src))
	for key, count := range src {
		mode, should, _ := strings.Cut(key, "|")
		out = append(out, AnswerCount{Mode: mode, ShouldAnswer: should == "true", Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Mode != out[j].Mode {
			return out[i].Mode < out[j].Mode
		}
		return !out[i].ShouldAnswer && out[j].ShouldAnswer
	})
	return out
}

// Flush persists counts accumulated since the last flush.
// Safe to call even if no store is configured.
func (m *Metrics) Flush() error {
	if m.store == nil {
		return nil
	}

	m.mu.Lock()
	pending, terms := m.pending, m.pendingTerms
	m.pending = make(map[string]map[string]int64)
	m.pendingTerms = make(map[string]int64)
	m.mu.Unlock()

	today := time.Now().Format("2006-01-02")
	for family, counts := range pending {
		if err := m.store.SaveCounts(today, family, counts); err != nil {
			m.restore(pending, terms)
			return err
		}
		delete(pending, family)
	}
	if err := m.store.UpsertTermCounts(terms); err != nil {
		m.restore(pending, terms)
		return err
	}
	return nil
}

// restore merges unflushed deltas back so the next flush retries them.
func (m *Metrics) restore(pending map[string]map[string]int64, terms map[string]int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for family, counts := range pending {
		for key, n := range counts {
			f, ok := m.pending[family]
			if !ok {
				f = make(map[string]int64)
				m.pending[family] = f
			}
			f[key] += n
		}
	}
	for term, n := range terms {
		m.pendingTerms[term] += n
	}
}

// Close stops the flush loop, flushes and closes the store.
func (m *Metrics) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	if m.flushTicker != nil {
		m.flushTicker.Stop()
		close(m.stopCh)
	}

	if err := m.Flush(); err != nil {
		return err
	}
	if m.store != nil {
		return m.store.Close()
	}
	return nil
}
