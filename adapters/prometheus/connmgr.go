package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/trvinh99/redis-actor/core/connmgr"
	"github.com/trvinh99/redis-actor/core/metrics"
)

// connMgrMetrics implements connmgr.Metrics using Prometheus.
type connMgrMetrics struct {
	opDuration  *prometheus.HistogramVec
	opsTotal    *prometheus.CounterVec
	eventsTotal *prometheus.CounterVec
	poolBuilds  *prometheus.CounterVec
	poolOpen    prometheus.Gauge
	poolIdle    prometheus.Gauge
	initialized prometheus.Gauge
}

// NewConnMgrMetrics creates a new Prometheus implementation of connmgr.Metrics.
func NewConnMgrMetrics(reg prometheus.Registerer) connmgr.Metrics {
	m := &connMgrMetrics{
		opDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "redis_actor_operation_duration_seconds",
			Help:    "Store operation time in seconds",
			Buckets: defaultBuckets,
		}, []string{"op"}),

		opsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "redis_actor_operations_total",
			Help: "Total number of store operations by outcome",
		}, []string{"op", "outcome"}),

		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "redis_actor_events_applied_total",
			Help: "Total number of applied connection events",
		}, []string{"event"}),

		poolBuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "redis_actor_pool_builds_total",
			Help: "Total number of pool builds",
		}, []string{"success"}),

		poolOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "redis_actor_pool_connections",
			Help: "Open pooled connections",
		}),

		poolIdle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "redis_actor_pool_idle_connections",
			Help: "Idle pooled connections",
		}),

		initialized: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "redis_actor_initialized",
			Help: "1 when the connection manager holds a working pool",
		}),
	}

	reg.MustRegister(
		m.opDuration,
		m.opsTotal,
		m.eventsTotal,
		m.poolBuilds,
		m.poolOpen,
		m.poolIdle,
		m.initialized,
	)

	return m
}

func (m *connMgrMetrics) OperationDuration(op string) metrics.Timer {
	return newTimer(m.opDuration.WithLabelValues(op))
}

func (m *connMgrMetrics) OperationCompleted(op, outcome string) {
	m.opsTotal.WithLabelValues(op, outcome).Inc()
}

func (m *connMgrMetrics) EventApplied(event string) { m.eventsTotal.WithLabelValues(event).Inc() }
func (m *connMgrMetrics) PoolBuilt(success bool)    { m.poolBuilds.WithLabelValues(boolToStr(success)).Inc() }

func (m *connMgrMetrics) PoolConnections(open, idle int) {
	m.poolOpen.Set(float64(open))
	m.poolIdle.Set(float64(idle))
}

func (m *connMgrMetrics) Initialized(ok bool) {
	if ok {
		m.initialized.Set(1)
		return
	}
	m.initialized.Set(0)
}

var _ connmgr.Metrics = (*connMgrMetrics)(nil)
