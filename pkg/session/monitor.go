package session

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/opsforge/gatehouse/pkg/observability"
)

// Monitor periodically counts live sessions and republishes the count as a
// prometheus gauge. It is the only consumer of Store.CountActive and runs
// concurrently with all request handling, coupled to it only through Redis
// and the gauge.
type Monitor struct {
	store    Store
	gauge    prometheus.Gauge
	interval time.Duration
	logger   *observability.Logger
	done     chan struct{}
}

// NewMonitor creates a monitor polling every interval.
func NewMonitor(store Store, gauge prometheus.Gauge, interval time.Duration, logger *observability.Logger) *Monitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Monitor{
		store:    store,
		gauge:    gauge,
		interval: interval,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Run polls until ctx is cancelled. Cancellation is observed within one
// tick; no extra iteration runs after shutdown is requested. A failed count
// is logged and retried on the next tick; it never stops the loop.
//
// Run blocks; start it with `go monitor.Run(ctx)` and wait on Done during
// shutdown.
func (m *Monitor) Run(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	// Publish an initial count so the gauge is live before the first tick.
	m.publish(ctx)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("session monitor stopping")
			return
		case <-ticker.C:
			m.publish(ctx)
		}
	}
}

// Done is closed once Run has observed cancellation and exited. Shutdown
// waits on it, bounded by the shutdown timeout.
func (m *Monitor) Done() <-chan struct{} {
	return m.done
}

func (m *Monitor) publish(ctx context.Context) {
	countCtx, cancel := context.WithTimeout(ctx, m.interval)
	defer cancel()

	count, err := m.store.CountActive(countCtx)
	if err != nil {
		m.logger.WithError(err).Warn("session count failed, will retry next tick")
		return
	}

	m.gauge.Set(float64(count))
	m.logger.WithField("active_sessions", count).Debug("published session count")
}
