// Package admin exposes the operator control surface: current assignment and
// backend health on /admin/status, and the pool swap command on /admin/swap.
package admin
