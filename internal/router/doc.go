// Package router implements the failover request path: snapshot the pool
// assignment, order the candidates by health, try them sequentially under
// per-attempt timeouts and a cumulative retry budget, and report every
// attempt outcome to the health monitor.
package router
