package healthmonitor

import (
	"sync"
	"time"
)

// record is the health state of one backend. The failure counter and the
// failedUntil timestamp are always read and written together under the mutex
// so callers never observe a torn pair.
type record struct {
	mutex       sync.Mutex
	failures    int
	failedUntil time.Time // zero while healthy
}

// Monitor tracks per-backend health from live traffic outcomes.
//
// A backend that accumulates the failure threshold of consecutive failures
// becomes unavailable for the cooldown duration. Once the cooldown elapses
// the backend is half-open: routable again, but the counter is preserved, so
// a single further failure re-trips it immediately. A single success resets
// the counter and clears the cooldown, even mid-cooldown.
type Monitor struct {
	mutex     sync.RWMutex
	records   map[string]*record
	threshold int
	cooldown  time.Duration
}

// BackendHealth is a point-in-time view of one backend's state,
// exposed through the admin endpoint.
type BackendHealth struct {
	Available           bool          `json:"available"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	CooldownRemaining   time.Duration `json:"cooldown_remaining"`
}

func NewMonitor(threshold int, cooldown time.Duration) *Monitor {
	return &Monitor{
		records:   make(map[string]*record),
		threshold: threshold,
		cooldown:  cooldown,
	}
}

// Report records the outcome of one attempt against the named backend.
// It returns true when the backend's availability flipped as a result,
// so the caller can log the transition once instead of on every report.
func (m *Monitor) Report(name string, outcome Outcome) (changed bool) {
	rec := m.getRecord(name)

	rec.mutex.Lock()
	defer rec.mutex.Unlock()

	now := time.Now()
	wasAvailable := rec.availableAt(now)

	if outcome.Failure() {
		rec.failures++
		if rec.failures >= m.threshold {
			rec.failedUntil = now.Add(m.cooldown)
		}
	} else {
		rec.failures = 0
		rec.failedUntil = time.Time{}
	}

	return rec.availableAt(now) != wasAvailable
}

// IsAvailable reports whether the named backend is routable: never tripped,
// or past its cooldown (half-open). It never mutates the counter; only a
// reported outcome does that.
func (m *Monitor) IsAvailable(name string) bool {
	rec := m.getRecord(name)

	rec.mutex.Lock()
	defer rec.mutex.Unlock()

	return rec.availableAt(time.Now())
}

// Snapshot returns the current health of every tracked backend.
func (m *Monitor) Snapshot() map[string]BackendHealth {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	now := time.Now()
	snap := make(map[string]BackendHealth, len(m.records))

	for name, rec := range m.records {
		rec.mutex.Lock()
		remaining := time.Duration(0)
		if !rec.failedUntil.IsZero() && rec.failedUntil.After(now) {
			remaining = rec.failedUntil.Sub(now)
		}
		snap[name] = BackendHealth{
			Available:           rec.availableAt(now),
			ConsecutiveFailures: rec.failures,
			CooldownRemaining:   remaining,
		}
		rec.mutex.Unlock()
	}

	return snap
}

func (rec *record) availableAt(now time.Time) bool {
	return rec.failedUntil.IsZero() || !rec.failedUntil.After(now)
}

func (m *Monitor) getRecord(name string) *record {
	m.mutex.RLock()
	rec, exists := m.records[name]
	m.mutex.RUnlock()

	if exists {
		return rec
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	// Double-check: another goroutine may have created it
	if rec, exists = m.records[name]; exists {
		return rec
	}

	rec = &record{}
	m.records[name] = rec
	return rec
}
