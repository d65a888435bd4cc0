// Package metrics provides real-time counters for the failover proxy.
//
// It uses a channel-based event pipeline to asynchronously collect:
//   - Request counts per backend pool
//   - Per-attempt failure counts grouped by outcome
//   - Failover occurrences (requests served by a non-first candidate)
//   - Response times with percentile calculations (P50, P95, P99)
//   - HTTP status code distribution
//   - Backend availability transitions and pool swaps
//
// The collector runs in a dedicated goroutine and processes events without
// blocking the request path. Events are sent via buffered channels with
// non-blocking semantics to prevent performance degradation under load.
//
// Example usage:
//
//	collector := metrics.NewCollector(1000, logger)
//	collector.Start(ctx)
//
//	collector.EventChannel() <- metrics.MetricEvent{
//		Type:       metrics.EventResponseCompleted,
//		Backend:    "blue",
//		Duration:   150 * time.Millisecond,
//		StatusCode: 200,
//	}
//
//	snapshot := collector.Snapshot("blue")
//
// The package provides thread-safe metrics storage using sync.RWMutex and
// supports graceful shutdown with event draining to prevent data loss.
package metrics
