package router_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/failover-proxy/internal/backend"
	"github.com/angeloszaimis/failover-proxy/internal/healthmonitor"
	"github.com/angeloszaimis/failover-proxy/internal/router"
	"github.com/angeloszaimis/failover-proxy/internal/toggle"
)

func TestRouter(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Router Suite")
}

// poolServer is an httptest backend that tags its responses with pool and
// release headers and can be told to fail, mirroring the real backends.
type poolServer struct {
	server  *httptest.Server
	pool    string
	hits    atomic.Int64
	failing atomic.Bool
	delay   time.Duration
}

func newPoolServer(pool, release string) *poolServer {
	ps := &poolServer{pool: pool}
	ps.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ps.hits.Add(1)
		if ps.delay > 0 {
			time.Sleep(ps.delay)
		}
		if ps.failing.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("simulated failure"))
			return
		}
		w.Header().Set("X-Pool", pool)
		w.Header().Set("X-Release", release)
		w.WriteHeader(http.StatusOK)
		body, _ := io.ReadAll(r.Body)
		if len(body) > 0 {
			w.Write(body)
			return
		}
		w.Write([]byte(pool))
	}))
	return ps
}

var _ = Describe("Router", func() {
	var (
		blueSrv  *poolServer
		greenSrv *poolServer
		monitor  *healthmonitor.Monitor
		ctrl     *toggle.Controller
		rt       *router.Router
		log      *slog.Logger
	)

	newRouter := func(budget time.Duration, readTimeout time.Duration) {
		blue := backend.New(mustParseURL(blueSrv.server.URL), "blue", time.Second, readTimeout)
		green := backend.New(mustParseURL(greenSrv.server.URL), "green", time.Second, readTimeout)
		ctrl = toggle.NewController(blue, green, log)
		rt = router.New(log, ctrl, monitor, nil, budget, 1<<20)
	}

	BeforeEach(func() {
		log = slog.New(slog.NewTextHandler(os.Stdout, nil))
		blueSrv = newPoolServer("blue", "v12")
		greenSrv = newPoolServer("green", "v11")
		monitor = healthmonitor.NewMonitor(2, 3*time.Second)
		newRouter(8*time.Second, 2*time.Second)
	})

	AfterEach(func() {
		blueSrv.server.Close()
		greenSrv.server.Close()
	})

	Describe("happy path", func() {
		It("should proxy to the primary and relay its headers verbatim", func() {
			req := httptest.NewRequest(http.MethodGet, "/version", nil)
			w := httptest.NewRecorder()

			rt.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Header().Get("X-Pool")).To(Equal("blue"))
			Expect(w.Header().Get("X-Release")).To(Equal("v12"))
			Expect(w.Body.String()).To(Equal("blue"))
			Expect(greenSrv.hits.Load()).To(BeZero())
		})

		It("should report success to the health monitor", func() {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			rt.ServeHTTP(httptest.NewRecorder(), req)

			snap := monitor.Snapshot()
			Expect(snap["blue"].ConsecutiveFailures).To(Equal(0))
			Expect(snap["blue"].Available).To(BeTrue())
		})
	})

	Describe("failover within one request", func() {
		It("should retry the standby when the primary returns 5xx", func() {
			blueSrv.failing.Store(true)

			req := httptest.NewRequest(http.MethodGet, "/version", nil)
			w := httptest.NewRecorder()

			rt.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Header().Get("X-Pool")).To(Equal("green"))
			Expect(w.Header().Get("X-Release")).To(Equal("v11"))
			Expect(blueSrv.hits.Load()).To(Equal(int64(1)))
			Expect(greenSrv.hits.Load()).To(Equal(int64(1)))
		})

		It("should retry the standby when the primary refuses connections", func() {
			blueSrv.server.Close()

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			w := httptest.NewRecorder()

			rt.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Header().Get("X-Pool")).To(Equal("green"))
		})

		It("should retry the standby when the primary exceeds the read timeout", func() {
			blueSrv.delay = 500 * time.Millisecond
			newRouter(8*time.Second, 100*time.Millisecond)

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			w := httptest.NewRecorder()

			rt.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Header().Get("X-Pool")).To(Equal("green"))

			snap := monitor.Snapshot()
			Expect(snap["blue"].ConsecutiveFailures).To(Equal(1))
		})

		It("should record the failed attempt even though the request succeeded", func() {
			blueSrv.failing.Store(true)

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			rt.ServeHTTP(httptest.NewRecorder(), req)

			snap := monitor.Snapshot()
			Expect(snap["blue"].ConsecutiveFailures).To(Equal(1))
			Expect(snap["green"].ConsecutiveFailures).To(Equal(0))
		})

		It("should replay a buffered POST body on the retried candidate", func() {
			blueSrv.failing.Store(true)

			req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{"item":42}`))
			w := httptest.NewRecorder()

			rt.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.String()).To(Equal(`{"item":42}`))
		})
	})

	Describe("unavailable primary", func() {
		BeforeEach(func() {
			monitor.Report("blue", healthmonitor.OutcomeTransportError)
			monitor.Report("blue", healthmonitor.OutcomeTransportError)
			Expect(monitor.IsAvailable("blue")).To(BeFalse())
		})

		It("should try the standby first without touching the primary", func() {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			w := httptest.NewRecorder()

			rt.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Header().Get("X-Pool")).To(Equal("green"))
			Expect(blueSrv.hits.Load()).To(BeZero())
		})

		It("should still try the primary as last resort when the standby fails", func() {
			greenSrv.failing.Store(true)

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			w := httptest.NewRecorder()

			rt.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Header().Get("X-Pool")).To(Equal("blue"))
			Expect(blueSrv.hits.Load()).To(Equal(int64(1)))
		})
	})

	Describe("exhaustion", func() {
		It("should relay the last 5xx when every candidate fails", func() {
			blueSrv.failing.Store(true)
			greenSrv.failing.Store(true)

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			w := httptest.NewRecorder()

			rt.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusInternalServerError))
			Expect(blueSrv.hits.Load()).To(Equal(int64(1)))
			Expect(greenSrv.hits.Load()).To(Equal(int64(1)))
		})

		It("should return 502 when every candidate fails at the transport", func() {
			blueSrv.server.Close()
			greenSrv.server.Close()

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			w := httptest.NewRecorder()

			rt.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusBadGateway))
		})

		It("should not retry once the budget is spent", func() {
			blueSrv.failing.Store(true)
			blueSrv.delay = 50 * time.Millisecond
			newRouter(10*time.Millisecond, 2*time.Second)

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			w := httptest.NewRecorder()

			rt.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusInternalServerError))
			Expect(greenSrv.hits.Load()).To(BeZero())
		})

		It("should finish well under the budget when both attempts fail fast", func() {
			blueSrv.failing.Store(true)
			greenSrv.failing.Store(true)

			start := time.Now()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			rt.ServeHTTP(httptest.NewRecorder(), req)

			// Budget is an upper bound, not a forced delay.
			Expect(time.Since(start)).To(BeNumerically("<", 2*time.Second))
		})
	})

	Describe("client disconnect", func() {
		It("should not count an aborted attempt against a healthy backend", func() {
			blueSrv.delay = 500 * time.Millisecond

			ctx, cancel := context.WithCancel(context.Background())
			req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)
			go func() {
				time.Sleep(50 * time.Millisecond)
				cancel()
			}()

			rt.ServeHTTP(httptest.NewRecorder(), req)

			Expect(monitor.IsAvailable("blue")).To(BeTrue())
			Expect(monitor.Snapshot()["blue"].ConsecutiveFailures).To(BeZero())
			Expect(greenSrv.hits.Load()).To(BeZero())
		})

		It("should not trip the breaker when impatient clients hang up repeatedly", func() {
			blueSrv.delay = 300 * time.Millisecond

			for i := 0; i < 3; i++ {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
				req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)
				rt.ServeHTTP(httptest.NewRecorder(), req)
				cancel()
			}

			Expect(monitor.IsAvailable("blue")).To(BeTrue())
		})
	})

	Describe("pool swap", func() {
		It("should route to the new primary after a swap", func() {
			_, err := ctrl.Swap("green")
			Expect(err).NotTo(HaveOccurred())

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			w := httptest.NewRecorder()

			rt.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Header().Get("X-Pool")).To(Equal("green"))
			Expect(blueSrv.hits.Load()).To(BeZero())
		})
	})
})

func mustParseURL(rawURL string) *url.URL {
	u, err := url.Parse(rawURL)
	if err != nil {
		panic(err)
	}
	return u
}
