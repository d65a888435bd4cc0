package router

import (
	"bytes"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/angeloszaimis/failover-proxy/internal/backend"
	"github.com/angeloszaimis/failover-proxy/internal/healthmonitor"
	"github.com/angeloszaimis/failover-proxy/internal/metrics"
	"github.com/angeloszaimis/failover-proxy/internal/toggle"
)

// Router proxies each client request to the primary backend, failing over to
// the standby within the same request when an attempt ends in a transport
// error, timeout, or 5xx. Attempts are strictly sequential and bounded by a
// cumulative retry budget.
type Router struct {
	logger          *slog.Logger
	toggle          *toggle.Controller
	monitor         *healthmonitor.Monitor
	collector       *metrics.Collector
	retryBudget     time.Duration
	maxBufferedBody int64
}

func New(
	logger *slog.Logger,
	toggleCtrl *toggle.Controller,
	monitor *healthmonitor.Monitor,
	collector *metrics.Collector,
	retryBudget time.Duration,
	maxBufferedBody int64,
) *Router {
	return &Router{
		logger:          logger,
		toggle:          toggleCtrl,
		monitor:         monitor,
		collector:       collector,
		retryBudget:     retryBudget,
		maxBufferedBody: maxBufferedBody,
	}
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	clientIP := extractClientIP(r)

	// The assignment is snapshotted once: a swap during this request does
	// not change its candidate order.
	assign := rt.toggle.Current()
	candidates := rt.candidates(assign)

	rt.logger.Info("Received request",
		slog.String("from", clientIP),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("primary", assign.Primary.Pool()))

	// No backend attribution here: which pool serves the request is only
	// known at response time, and a failover would make this a lie.
	rt.emitEvent(metrics.MetricEvent{
		Type:      metrics.EventRequestReceived,
		Timestamp: time.Now(),
	})

	buffered, stream, err := rt.bufferBody(r)
	if err != nil {
		rt.logger.Warn("Failed to read request body",
			slog.String("client", clientIP), slog.Any("err", err))
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	var lastStatus int
	streamConsumed := false

	for i, cand := range candidates {
		if r.Context().Err() != nil {
			rt.logger.Info("Client disconnected, abandoning retries",
				slog.String("client", clientIP))
			return
		}

		if i > 0 {
			if time.Since(start) >= rt.retryBudget {
				rt.logger.Warn("Retry budget exhausted",
					slog.String("client", clientIP),
					slog.Duration("budget", rt.retryBudget))
				break
			}
			if stream != nil && streamConsumed {
				// Unbuffered body already sent to the first candidate;
				// replaying it could double-process the request.
				rt.logger.Warn("Streaming body not replayable, skipping retry",
					slog.String("client", clientIP))
				break
			}
		}

		if stream != nil {
			streamConsumed = true
		}

		resp, outcome := rt.forward(r, cand, clientIP, buffered, stream)

		if resp == nil && r.Context().Err() != nil {
			// The client going away cancels the outbound context and kills
			// the attempt; that says nothing about the backend's health.
			rt.logger.Info("Client disconnected mid-attempt, abandoning retries",
				slog.String("client", clientIP),
				slog.String("backend", cand.Pool()))
			return
		}

		if outcome == healthmonitor.OutcomeSuccess {
			rt.reportOutcome(cand, outcome)
			if i > 0 {
				rt.logger.Info("Failed over",
					slog.String("served_by", cand.Pool()),
					slog.String("skipped", candidates[0].Pool()))
				rt.emitEvent(metrics.MetricEvent{
					Type:      metrics.EventFailover,
					Timestamp: time.Now(),
					Backend:   cand.Pool(),
				})
			}
			rt.writeResponse(w, resp, cand, time.Since(start))
			return
		}

		rt.reportOutcome(cand, outcome)
		rt.emitEvent(metrics.MetricEvent{
			Type:      metrics.EventAttemptFailed,
			Timestamp: time.Now(),
			Backend:   cand.Pool(),
			Outcome:   outcome.String(),
		})

		if resp != nil {
			lastStatus = resp.StatusCode

			final := i == len(candidates)-1 ||
				time.Since(start) >= rt.retryBudget ||
				(stream != nil && streamConsumed)
			if final {
				// Last word from the upstreams: relay it as-is.
				rt.writeResponse(w, resp, cand, time.Since(start))
				return
			}

			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}

		rt.logger.Warn("Attempt failed",
			slog.String("backend", cand.Pool()),
			slog.String("outcome", outcome.String()),
			slog.Int("attempt", i+1))
	}

	status := http.StatusBadGateway
	if lastStatus != 0 {
		status = lastStatus
	}

	rt.logger.Error("All candidates failed",
		slog.String("client", clientIP),
		slog.Int("status", status),
		slog.Duration("elapsed", time.Since(start)))
	http.Error(w, http.StatusText(status), status)
}

// candidates orders the two backends for one request: primary first, unless
// it is unavailable, in which case it is deprioritized behind the standby but
// never removed. A fully dark pair still gets both attempts.
func (rt *Router) candidates(assign *toggle.Assignment) []*backend.Backend {
	if rt.monitor.IsAvailable(assign.Primary.Pool()) {
		return []*backend.Backend{assign.Primary, assign.Standby}
	}
	return []*backend.Backend{assign.Standby, assign.Primary}
}

// bufferBody reads the request body up to the configured cap so it can be
// replayed on a retried candidate. Bodies over the cap are returned as a
// stream (prefix + remainder) and are never retried once sent.
func (rt *Router) bufferBody(r *http.Request) (buffered []byte, stream io.Reader, err error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil, nil
	}

	buf, err := io.ReadAll(io.LimitReader(r.Body, rt.maxBufferedBody+1))
	if err != nil {
		return nil, nil, err
	}

	if int64(len(buf)) > rt.maxBufferedBody {
		return nil, io.MultiReader(bytes.NewReader(buf), r.Body), nil
	}

	return buf, nil, nil
}

// forward performs one attempt against one candidate and classifies the result.
// The returned response body is open and must be consumed by the caller.
func (rt *Router) forward(
	r *http.Request,
	cand *backend.Backend,
	clientIP string,
	buffered []byte,
	stream io.Reader,
) (*http.Response, healthmonitor.Outcome) {
	out := r.Clone(r.Context())
	out.RequestURI = ""
	out.URL.Scheme = cand.URL().Scheme
	out.URL.Host = cand.URL().Host

	switch {
	case buffered != nil:
		out.Body = io.NopCloser(bytes.NewReader(buffered))
		out.ContentLength = int64(len(buffered))
	case stream != nil:
		out.Body = io.NopCloser(stream)
	default:
		out.Body = http.NoBody
		out.ContentLength = 0
	}

	stripHopByHopHeaders(out.Header)
	appendForwardedFor(out.Header, clientIP)

	resp, err := cand.Do(out)
	if err != nil {
		return nil, healthmonitor.OutcomeForError(err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return resp, healthmonitor.OutcomeServerError
	}

	return resp, healthmonitor.OutcomeSuccess
}

// writeResponse relays an upstream response to the client, headers verbatim
// (pool/release identifiers included), then the body.
func (rt *Router) writeResponse(w http.ResponseWriter, resp *http.Response, cand *backend.Backend, elapsed time.Duration) {
	defer resp.Body.Close()

	for key, values := range resp.Header {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.Header().Set("X-Backend-Server", cand.URL().String())

	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		rt.logger.Warn("Failed to copy response body",
			slog.String("backend", cand.Pool()), slog.Any("err", err))
	}

	rt.emitEvent(metrics.MetricEvent{
		Type:       metrics.EventResponseCompleted,
		Timestamp:  time.Now(),
		Backend:    cand.Pool(),
		Duration:   elapsed,
		StatusCode: resp.StatusCode,
	})
}

// reportOutcome feeds the health monitor and logs availability transitions
// exactly once, when they happen.
func (rt *Router) reportOutcome(cand *backend.Backend, outcome healthmonitor.Outcome) {
	changed := rt.monitor.Report(cand.Pool(), outcome)
	if !changed {
		return
	}

	available := !outcome.Failure()
	if available {
		rt.logger.Info("Backend available again", slog.String("backend", cand.Pool()))
	} else {
		rt.logger.Warn("Backend marked unavailable", slog.String("backend", cand.Pool()))
	}

	rt.emitEvent(metrics.MetricEvent{
		Type:      metrics.EventBackendStateChange,
		Timestamp: time.Now(),
		Backend:   cand.Pool(),
		Available: available,
	})
}

func (rt *Router) emitEvent(event metrics.MetricEvent) {
	if rt.collector == nil {
		return
	}

	select {
	case rt.collector.EventChannel() <- event:
	default:
	}
}

func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}

	host, _, _ := net.SplitHostPort(r.RemoteAddr)
	return host
}

// hopByHopHeaders must not be forwarded to the next hop (RFC 7230 §6.1).
var hopByHopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

func stripHopByHopHeaders(h http.Header) {
	for _, name := range hopByHopHeaders {
		h.Del(name)
	}
}

func appendForwardedFor(h http.Header, clientIP string) {
	if clientIP == "" {
		return
	}
	if prior := h.Get("X-Forwarded-For"); prior != "" {
		h.Set("X-Forwarded-For", prior+", "+clientIP)
	} else {
		h.Set("X-Forwarded-For", clientIP)
	}
}
