package metrics

import (
	"encoding/json"
	"net/http"
)

// Handler serves the current metrics snapshot as JSON. The primary callback
// is evaluated per request so the snapshot always names the live assignment.
func (c *Collector) Handler(primary func() string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := c.metrics.Snapshot(primary())

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(snap); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
}
