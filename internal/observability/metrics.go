package observability

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu            sync.Mutex
	requestCount  map[string]int64
	errorCount    map[string]int64
	totalDuration map[string]time.Duration
	startedAt     time.Time
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount:  make(map[string]int64),
		errorCount:    make(map[string]int64),
		totalDuration: make(map[string]time.Duration),
		startedAt:     time.Now(),
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
	m.totalDuration[key] += duration
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

// RequestStat aggregates one route, method and status combination. For
// errors Status holds the error code.
type RequestStat struct {
	Route     string  `json:"route"`
	Method    string  `json:"method"`
	Status    string  `json:"status"`
	Count     int64   `json:"count"`
	AvgMillis float64 `json:"avg_ms,omitempty"`
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	UptimeSeconds int64         `json:"uptime_seconds"`
	Requests      []RequestStat `json:"requests"`
	Errors        []RequestStat `json:"errors"`
}

// Snapshot copies the counters in a stable order.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{Requests: []RequestStat{}, Errors: []RequestStat{}}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		UptimeSeconds: int64(time.Since(m.startedAt).Seconds()),
		Requests:      make([]RequestStat, 0, len(m.requestCount)),
		Errors:        make([]RequestStat, 0, len(m.errorCount)),
	}
	for key, count := range m.requestCount {
		stat := splitKey(key, count)
		if count > 0 {
			stat.AvgMillis = float64(m.totalDuration[key].Microseconds()) / float64(count) / 1000
		}
		snap.Requests = append(snap.Requests, stat)
	}
	for key, count := range m.errorCount {
		snap.Errors = append(snap.Errors, splitKey(key, count))
	}
	sortStats(snap.Requests)
	sortStats(snap.Errors)
	return snap
}

func splitKey(key string, count int64) RequestStat {
	parts := strings.SplitN(key, "|", 3)
	for len(parts) < 3 {
		parts = append(parts, "")
	}
	return RequestStat{Route: parts[0], Method: parts[1], Status: parts[2], Count: count}
}

func sortStats(stats []RequestStat) {
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Route != stats[j].Route {
			return stats[i].Route < stats[j].Route
		}
		if stats[i].Method != stats[j].Method {
			return stats[i].Method < stats[j].Method
		}
		return stats[i].Status < stats[j].Status
	})
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
