package healthprobe

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/angeloszaimis/failover-proxy/internal/backend"
	"github.com/angeloszaimis/failover-proxy/internal/healthmonitor"
)

// Probe periodically sends GET requests to a backend's liveness path and
// feeds the results into the health monitor through the same Report call the
// router uses. Routing works without it (live traffic is the primary health
// signal); the probe just shortens recovery detection on idle systems.
func Probe(
	ctx context.Context,
	b *backend.Backend,
	monitor *healthmonitor.Monitor,
	interval time.Duration,
	path string,
	logger *slog.Logger,
) {
	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Health probe stopped",
				slog.String("backend", b.Pool()))
			return

		case <-ticker.C:
			probeURL := b.URL().ResolveReference(&url.URL{Path: path})

			req, err := http.NewRequestWithContext(
				ctx, http.MethodGet, probeURL.String(), nil)
			if err != nil {
				continue
			}

			outcome := healthmonitor.OutcomeSuccess

			res, err := client.Do(req)
			if err != nil {
				outcome = healthmonitor.OutcomeForError(err)
			} else {
				if res.StatusCode >= http.StatusInternalServerError {
					outcome = healthmonitor.OutcomeServerError
				}
				res.Body.Close()
			}

			changed := monitor.Report(b.Pool(), outcome)
			if changed {
				if outcome.Failure() {
					logger.Warn("Backend marked unavailable by probe",
						slog.String("backend", b.Pool()))
				} else {
					logger.Info("Backend recovered",
						slog.String("backend", b.Pool()))
				}
			}
		}
	}
}
