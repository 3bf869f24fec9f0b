package usecase

import (
	"context"
	"io"
	"time"

	gometrics "github.com/rcrowley/go-metrics"
)

const (
	metricConnections     = "relay.connections"
	metricAccepted        = "relay.connections.accepted"
	metricDropped         = "relay.connections.dropped"
	metricRoomsClaimed    = "relay.rooms.claimed"
	metricBroadcasts      = "relay.broadcasts"
	metricDeliveries      = "relay.deliveries"
	metricCommands        = "relay.commands"
	metricCommandErrors   = "relay.commands.errors"
	metricSweeps          = "relay.sweeps"
	metricSweepFailures   = "relay.sweeps.failures"
	metricBusResubscribes = "relay.bus.resubscribes"
)

// Metrics is a set of counters kept in its own go-metrics registry.
type Metrics struct {
	reg gometrics.Registry
}

func NewMetrics() *Metrics {
	return &Metrics{reg: gometrics.NewRegistry()}
}

func (m *Metrics) incr(name string, i int64) {
	gometrics.GetOrRegisterCounter(name, m.reg).Inc(i)
}

func (m *Metrics) decr(name string, i int64) {
	gometrics.GetOrRegisterCounter(name, m.reg).Dec(i)
}

func (m *Metrics) Count(name string) int64 {
	return gometrics.GetOrRegisterCounter(name, m.reg).Count()
}

func (m *Metrics) Registry() gometrics.Registry {
	return m.reg
}

// Report writes every counter as JSON to w each tick until ctx is done, and
// once more on the way out.
func (m *Metrics) Report(ctx context.Context, tick time.Duration, w io.Writer) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			gometrics.WriteJSONOnce(m.reg, w)
			return
		case <-ticker.C:
			gometrics.WriteJSONOnce(m.reg, w)
		}
	}
}
