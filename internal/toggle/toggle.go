package toggle

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/angeloszaimis/failover-proxy/internal/backend"
)

// ErrUnknownPool is returned by Swap when the target names neither pool.
var ErrUnknownPool = fmt.Errorf("unknown pool")

// Assignment names which backend is primary and which is standby. Values are
// immutable once published; a swap installs a fresh Assignment rather than
// mutating fields in place, so readers never see a mix of old and new.
type Assignment struct {
	Primary *backend.Backend
	Standby *backend.Backend
}

// Controller owns the current assignment. Current is a wait-free atomic load
// on the router's hot path; Swap is the rare operator-driven write.
type Controller struct {
	assignment atomic.Pointer[Assignment]
	logger     *slog.Logger
}

func NewController(primary, standby *backend.Backend, logger *slog.Logger) *Controller {
	c := &Controller{logger: logger}
	c.assignment.Store(&Assignment{Primary: primary, Standby: standby})
	return c
}

// Current returns the active assignment snapshot. Callers must read it once
// per request and not re-read mid-request.
func (c *Controller) Current() *Assignment {
	return c.assignment.Load()
}

// Swap makes the named pool primary. Swapping to the pool that is already
// primary succeeds as a no-op. In-flight requests keep the assignment they
// snapshotted; no backend connection is closed by a swap.
func (c *Controller) Swap(target string) (*Assignment, error) {
	for {
		cur := c.assignment.Load()

		switch target {
		case cur.Primary.Pool():
			return cur, nil
		case cur.Standby.Pool():
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownPool, target)
		}

		next := &Assignment{Primary: cur.Standby, Standby: cur.Primary}
		if c.assignment.CompareAndSwap(cur, next) {
			c.logger.Info("Pool assignment swapped",
				slog.String("primary", next.Primary.Pool()),
				slog.String("standby", next.Standby.Pool()))
			return next, nil
		}
		// Lost a race with a concurrent swap; re-evaluate against the winner.
	}
}
