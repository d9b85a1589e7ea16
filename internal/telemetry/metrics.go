// Package telemetry collects local query metrics for search tuning.
// Nothing is reported externally.
package telemetry

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// LatencyBucket is a latency histogram bucket.
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

// QueryEvent is one recorded search call.
type QueryEvent struct {
	Query       string
	Strategy    string
	Degraded    bool
	ResultCount int
	Latency     time.Duration
	Timestamp   time.Time
}

// IsZeroResult reports whether the query returned nothing.
func (e QueryEvent) IsZeroResult() bool { return e.ResultCount == 0 }

// CircularBuffer is a fixed-capacity FIFO buffer.
type CircularBuffer[T any] struct {
	mu       sync.RWMutex
	items    []T
	head     int
	size     int
	capacity int
}

// NewCircularBuffer creates a buffer with the given capacity.
func NewCircularBuffer[T any](capacity int) *CircularBuffer[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &CircularBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Add appends an item, evicting the oldest when full.
func (b *CircularBuffer[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items[b.head] = item
	b.head = (b.head + 1) % b.capacity
	if b.size < b.capacity {
		b.size++
	}
}

// Items returns the buffer contents oldest first.
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
		copy(result, b.items[b.head:])
		copy(result[b.capacity-b.head:], b.items[:b.head])
	}
	return result
}

// Size returns the current item count.
func (b *CircularBuffer[T]) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// ExtractTerms returns lowercased query terms of length >= 3, used for
// top-term tracking.
func ExtractTerms(query string) []string {
	var terms []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		if len(w) >= 3 {
			terms = append(terms, w)
		}
	}
	return terms
}

// TermCount is a term with its frequency.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// Snapshot is an immutable view of collected metrics.
type Snapshot struct {
	StrategyCounts      map[string]int64        `json:"strategy_counts"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	ZeroResultQueries   []string                `json:"zero_result_queries"`
	TotalQueries        int64                   `json:"total_queries"`
	ZeroResultCount     int64                   `json:"zero_result_count"`
	DegradedCount       int64                   `json:"degraded_count"`
	Since               time.Time               `json:"since"`
}

// ZeroResultPercentage returns the share of zero-result queries.
func (s *Snapshot) ZeroResultPercentage() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ZeroResultCount) / float64(s.TotalQueries) * 100
}

// Metrics collects query telemetry in memory. Safe for concurrent use.
type Metrics struct {
	mu sync.RWMutex

	strategies  map[string]int64
	latencies   map[LatencyBucket]int64
	termCounts  map[string]int64
	zeroResults *CircularBuffer[string]

	total    int64
	zero     int64
	degraded int64
	since    time.Time
}

// NewMetrics creates an empty collector.
func NewMetrics() *Metrics {
	return &Metrics{
		strategies:  make(map[string]int64),
		latencies:   make(map[LatencyBucket]int64),
		termCounts:  make(map[string]int64),
		zeroResults: NewCircularBuffer[string](100),
		since:       time.Now(),
	}
}

// Record registers one query event.
func (m *Metrics) Record(e QueryEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total++
	m.strategies[e.Strategy]++
	m.latencies[LatencyToBucket(e.Latency)]++
	if e.Degraded {
		m.degraded++
	}
	if e.IsZeroResult() {
		m.zero++
		m.zeroResults.Add(e.Query)
	}
	for _, term := range ExtractTerms(e.Query) {
		m.termCounts[term]++
	}
}

// Snapshot returns a copy of the current aggregates.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	strategies := make(map[string]int64, len(m.strategies))
	for k, v := range m.strategies {
		strategies[k] = v
	}
	latencies := make(map[LatencyBucket]int64, len(m.latencies))
	for k, v := range m.latencies {
		latencies[k] = v
	}

	return Snapshot{
		StrategyCounts:      strategies,
		LatencyDistribution: latencies,
		ZeroResultQueries:   m.zeroResults.Items(),
		TotalQueries:        m.total,
		ZeroResultCount:     m.zero,
		DegradedCount:       m.degraded,
		Since:               m.since,
	}
}

// TopTerms returns the most frequent query terms, highest count first, ties
// broken alphabetically.
func (m *Metrics) TopTerms(limit int) []TermCount {
	m.mu.RLock()
	defer m.mu.RUnlock()

	terms := make([]TermCount, 0, len(m.termCounts))
	for t, c := range m.termCounts {
		terms = append(terms, TermCount{Term: t, Count: c})
	}
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].Count != terms[j].Count {
			return terms[i].Count > terms[j].Count
		}
		return terms[i].Term < terms[j].Term
	})
	if limit > 0 && len(terms) > limit {
		terms = terms[:limit]
	}
	return terms
}
