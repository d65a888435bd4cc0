package metrics

import (
	"context"
	"log/slog"
	"time"
)

type EventType string

const (
	EventRequestReceived    EventType = "request_received"
	EventAttemptFailed      EventType = "attempt_failed"
	EventFailover           EventType = "failover"
	EventResponseCompleted  EventType = "response_completed"
	EventBackendStateChange EventType = "backend_state_change"
	EventPoolSwapped        EventType = "pool_swapped"
)

type MetricEvent struct {
	Type       EventType
	Timestamp  time.Time
	Backend    string // pool name of the backend involved
	Outcome    string
	Duration   time.Duration
	StatusCode int
	Available  bool
}

type Collector struct {
	eventCh chan MetricEvent
	metrics *Metrics
	logger  *slog.Logger
}

func NewCollector(bufferSize int, logger *slog.Logger) *Collector {
	return &Collector{
		eventCh: make(chan MetricEvent, bufferSize),
		metrics: NewMetrics(),
		logger:  logger,
	}
}

func (c *Collector) EventChannel() chan<- MetricEvent {
	return c.eventCh
}

func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Collector) run(ctx context.Context) {
	c.logger.Info("Metrics collector started")
	defer c.logger.Info("Metrics collector stopped")

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ctx.Done():
			// Drain remaining events before shutdown
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event MetricEvent) {
	switch event.Type {
	case EventRequestReceived:
		c.metrics.IncrementRequests()

	case EventAttemptFailed:
		c.metrics.RecordAttemptFailure(event.Backend, event.Outcome)

	case EventFailover:
		c.metrics.IncrementFailovers()

	case EventResponseCompleted:
		c.metrics.RecordResponse(event.Backend, event.Duration, event.StatusCode)

	case EventBackendStateChange:
		c.metrics.UpdateAvailability(event.Backend, event.Available)

	case EventPoolSwapped:
		c.metrics.IncrementSwaps()
	}
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}

func (c *Collector) Snapshot(primary string) Snapshot {
	return c.metrics.Snapshot(primary)
}
