// Package healthmonitor implements passive per-backend health tracking.
//
// The monitor is fed by the router: every proxied attempt reports its
// outcome, and routing decisions ask IsAvailable before choosing candidate
// order. The model is a small circuit breaker per backend:
//
//   - AVAILABLE: counter below threshold, requests routed normally
//   - UNAVAILABLE: threshold reached, deprioritized until cooldown elapses
//   - HALF-OPEN: cooldown elapsed, routable again with counter preserved
//
// Usage:
//
//	monitor := healthmonitor.NewMonitor(2, 3*time.Second)
//	if monitor.IsAvailable("blue") {
//	    // forward, then:
//	    monitor.Report("blue", healthmonitor.OutcomeSuccess)
//	}
package healthmonitor
