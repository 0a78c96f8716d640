// Package prometheus provides Prometheus implementations of the actor runtime
// and connection manager metrics interfaces.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/trvinh99/redis-actor/core/metrics"
)

// timer wraps a Prometheus histogram to implement the Timer interface.
type timer struct {
	h     prometheus.Observer
	start time.Time
}

func newTimer(h prometheus.Observer) metrics.Timer {
	return &timer{h: h, start: time.Now()}
}

func (t *timer) ObserveDuration() {
	t.h.Observe(time.Since(t.start).Seconds())
}

// Default histogram buckets for latency metrics (in seconds).
var defaultBuckets = []float64{
	.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10,
}

func boolToStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// AllMetrics holds the Prometheus implementations used by the daemon.
type AllMetrics struct {
	Actor   *actorMetrics
	ConnMgr *connMgrMetrics
}

// NewAllMetrics registers every metric on reg.
func NewAllMetrics(reg prometheus.Registerer) *AllMetrics {
	return &AllMetrics{
		Actor:   NewActorMetrics(reg).(*actorMetrics),
		ConnMgr: NewConnMgrMetrics(reg).(*connMgrMetrics),
	}
}
