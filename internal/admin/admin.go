package admin

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/angeloszaimis/failover-proxy/internal/healthmonitor"
	"github.com/angeloszaimis/failover-proxy/internal/metrics"
	"github.com/angeloszaimis/failover-proxy/internal/toggle"
)

// Handler serves the operator endpoints: assignment/health introspection and
// the pool swap command.
type Handler struct {
	logger    *slog.Logger
	toggle    *toggle.Controller
	monitor   *healthmonitor.Monitor
	collector *metrics.Collector
}

// StatusResponse is the /admin/status payload.
type StatusResponse struct {
	Primary  string                                 `json:"primary"`
	Standby  string                                 `json:"standby"`
	Backends map[string]healthmonitor.BackendHealth `json:"backends"`
}

// SwapResponse is the /admin/swap payload on success.
type SwapResponse struct {
	Primary string `json:"primary"`
	Standby string `json:"standby"`
}

func NewHandler(logger *slog.Logger, toggleCtrl *toggle.Controller, monitor *healthmonitor.Monitor, collector *metrics.Collector) *Handler {
	return &Handler{
		logger:    logger,
		toggle:    toggleCtrl,
		monitor:   monitor,
		collector: collector,
	}
}

// Status returns the current assignment and per-backend health as JSON.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	assign := h.toggle.Current()
	resp := StatusResponse{
		Primary:  assign.Primary.Pool(),
		Standby:  assign.Standby.Pool(),
		Backends: h.monitor.Snapshot(),
	}

	writeJSON(w, http.StatusOK, resp)
}

// Swap makes the pool named by the "target" parameter primary. Swapping to
// the current primary succeeds as a no-op; an unknown pool is rejected with
// 400 and the assignment is left unchanged.
func (h *Handler) Swap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	target := r.FormValue("target")
	if target == "" {
		http.Error(w, "missing target pool", http.StatusBadRequest)
		return
	}

	before := h.toggle.Current().Primary.Pool()

	assign, err := h.toggle.Swap(target)
	if err != nil {
		if errors.Is(err, toggle.ErrUnknownPool) {
			h.logger.Warn("Rejected swap to unknown pool",
				slog.String("target", target))
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if h.collector != nil && assign.Primary.Pool() != before {
		select {
		case h.collector.EventChannel() <- metrics.MetricEvent{
			Type:      metrics.EventPoolSwapped,
			Timestamp: time.Now(),
			Backend:   assign.Primary.Pool(),
		}:
		default:
		}
	}

	writeJSON(w, http.StatusOK, SwapResponse{
		Primary: assign.Primary.Pool(),
		Standby: assign.Standby.Pool(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
