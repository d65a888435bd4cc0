// Package healthprobe implements an optional active liveness prober. It is
// a second feeder for the health monitor alongside live-traffic outcomes and
// is disabled by default.
package healthprobe
