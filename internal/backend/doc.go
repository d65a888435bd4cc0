// Package backend defines the upstream target type used by the router.
// Each backend owns its URL, pool name, and an HTTP client configured with
// the per-attempt connect and read timeouts.
package backend
