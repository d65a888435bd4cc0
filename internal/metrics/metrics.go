package metrics

import (
	"sort"
	"sync"
	"time"
)

type Metrics struct {
	mutex           sync.RWMutex
	totalRequests   int64
	served          map[string]int64
	attemptFailures map[string]map[string]int64
	responseTimes   map[string][]time.Duration
	statusCodes     map[string]map[int]int64
	availability    map[string]bool
	failovers       int64
	swaps           int64
	startTime       time.Time
}

type Snapshot struct {
	TotalRequests int64                     `json:"total_requests"`
	Failovers     int64                     `json:"failovers"`
	PoolSwaps     int64                     `json:"pool_swaps"`
	Uptime        time.Duration             `json:"uptime"`
	Primary       string                    `json:"primary"`
	Backends      map[string]BackendMetrics `json:"backends"`
}

type BackendMetrics struct {
	RequestsServed  int64            `json:"requests_served"`
	AttemptFailures map[string]int64 `json:"attempt_failures"`
	Available       bool             `json:"available"`
	AvgResponse     time.Duration    `json:"avg_response"`
	P50Response     time.Duration    `json:"p50_response"`
	P95Response     time.Duration    `json:"p95_response"`
	P99Response     time.Duration    `json:"p99_response"`
	StatusCodes     map[int]int64    `json:"status_codes"`
}

func (m *Metrics) IncrementRequests() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.totalRequests++
}

func (m *Metrics) RecordAttemptFailure(backend, outcome string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.attemptFailures[backend] == nil {
		m.attemptFailures[backend] = make(map[string]int64)
	}
	m.attemptFailures[backend][outcome]++
}

func (m *Metrics) IncrementFailovers() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.failovers++
}

func (m *Metrics) IncrementSwaps() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.swaps++
}

// RecordResponse attributes a completed request to the backend that actually
// served it, which under failover is not necessarily the one tried first.
func (m *Metrics) RecordResponse(backend string, duration time.Duration, statusCode int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.served[backend]++
	m.responseTimes[backend] = append(m.responseTimes[backend], duration)

	if len(m.responseTimes[backend]) > 1000 {
		m.responseTimes[backend] = m.responseTimes[backend][1:]
	}

	if m.statusCodes[backend] == nil {
		m.statusCodes[backend] = make(map[int]int64)
	}
	m.statusCodes[backend][statusCode]++
}

func (m *Metrics) UpdateAvailability(backend string, available bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.availability[backend] = available
}

func (m *Metrics) Snapshot(primary string) Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		TotalRequests: m.totalRequests,
		Failovers:     m.failovers,
		PoolSwaps:     m.swaps,
		Uptime:        time.Since(m.startTime),
		Primary:       primary,
		Backends:      make(map[string]BackendMetrics),
	}

	// Collect all backends seen by any metric
	allBackends := make(map[string]bool)
	for backend := range m.served {
		allBackends[backend] = true
	}
	for backend := range m.attemptFailures {
		allBackends[backend] = true
	}
	for backend := range m.responseTimes {
		allBackends[backend] = true
	}
	for backend := range m.availability {
		allBackends[backend] = true
	}

	for backend := range allBackends {
		bm := BackendMetrics{
			RequestsServed:  m.served[backend],
			AttemptFailures: m.attemptFailures[backend],
			Available:       m.availability[backend],
			StatusCodes:     m.statusCodes[backend],
		}

		durations := m.responseTimes[backend]
		if len(durations) > 0 {
			sorted := make([]time.Duration, len(durations))
			copy(sorted, durations)
			sort.Slice(sorted, func(i, j int) bool {
				return sorted[i] < sorted[j]
			})

			bm.AvgResponse = average(sorted)
			bm.P50Response = percentile(sorted, 0.50)
			bm.P95Response = percentile(sorted, 0.95)
			bm.P99Response = percentile(sorted, 0.99)
		}

		snap.Backends[backend] = bm
	}

	return snap
}

func NewMetrics() *Metrics {
	return &Metrics{
		served:          make(map[string]int64),
		attemptFailures: make(map[string]map[string]int64),
		responseTimes:   make(map[string][]time.Duration),
		statusCodes:     make(map[string]map[int]int64),
		availability:    make(map[string]bool),
		startTime:       time.Now(),
	}
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return sum / time.Duration(len(durations))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	return sorted[index]
}
