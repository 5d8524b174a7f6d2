package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu            sync.Mutex
	requestCount  map[string]int64
	errorCount    map[string]int64
	decisionCount map[string]int64
	verifyCount   map[string]int64
	refreshCount  map[string]int64
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	Requests      map[string]int64 `json:"requests"`
	Errors        map[string]int64 `json:"errors"`
	Decisions     map[string]int64 `json:"decisions"`
	Verifications map[string]int64 `json:"verifications"`
	Refreshes     map[string]int64 `json:"refreshes"`
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount:  make(map[string]int64),
		errorCount:    make(map[string]int64),
		decisionCount: make(map[string]int64),
		verifyCount:   make(map[string]int64),
		refreshCount:  make(map[string]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RecordDecision counts guard decisions by kind.
func (m *Metrics) RecordDecision(kind string) {
	m.incr(func() { m.decisionCount[kind]++ })
}

// RecordVerification counts verifier outcomes by kind.
func (m *Metrics) RecordVerification(kind string) {
	m.incr(func() { m.verifyCount[kind]++ })
}

// RecordRefresh counts refresh attempts by result.
func (m *Metrics) RecordRefresh(result string) {
	m.incr(func() { m.refreshCount[result]++ })
}

// Snapshot copies the current counters.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		Requests:      copyCounts(m.requestCount),
		Errors:        copyCounts(m.errorCount),
		Decisions:     copyCounts(m.decisionCount),
		Verifications: copyCounts(m.verifyCount),
		Refreshes:     copyCounts(m.refreshCount),
	}
}

func (m *Metrics) incr(fn func()) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	fn()
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}

func copyCounts(src map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
