package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/trvinh99/redis-actor/core/actor"
	"github.com/trvinh99/redis-actor/core/metrics"
)

// actorMetrics implements actor.ActorMetrics using Prometheus.
type actorMetrics struct {
	messageDuration *prometheus.HistogramVec
	messagesTotal   *prometheus.CounterVec
	failuresTotal   *prometheus.CounterVec
	restartsTotal   *prometheus.CounterVec
	stopsTotal      *prometheus.CounterVec
	mailboxDepth    *prometheus.GaugeVec
	replicas        *prometheus.GaugeVec
}

// NewActorMetrics creates a new Prometheus implementation of ActorMetrics.
func NewActorMetrics(reg prometheus.Registerer) actor.ActorMetrics {
	m := &actorMetrics{
		messageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "redis_actor_message_duration_seconds",
			Help:    "Message handling time in seconds",
			Buckets: defaultBuckets,
		}, []string{"message_type"}),

		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "redis_actor_messages_total",
			Help: "Total number of messages processed",
		}, []string{"message_type", "success"}),

		failuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "redis_actor_child_failures_total",
			Help: "Total number of failed or panicked runs",
		}, []string{"group"}),

		restartsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "redis_actor_child_restarts_total",
			Help: "Total number of restarts",
		}, []string{"group"}),

		stopsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "redis_actor_child_stops_total",
			Help: "Total number of replicas that stopped for good",
		}, []string{"group"}),

		mailboxDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "redis_actor_mailbox_depth",
			Help: "Current mailbox queue depth",
		}, []string{"group"}),

		replicas: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "redis_actor_replicas",
			Help: "Number of running replicas",
		}, []string{"group"}),
	}

	reg.MustRegister(
		m.messageDuration,
		m.messagesTotal,
		m.failuresTotal,
		m.restartsTotal,
		m.stopsTotal,
		m.mailboxDepth,
		m.replicas,
	)

	return m
}

func (m *actorMetrics) MessageDuration(msgType string) metrics.Timer {
	return newTimer(m.messageDuration.WithLabelValues(msgType))
}

func (m *actorMetrics) MessageProcessed(msgType string, success bool) {
	m.messagesTotal.WithLabelValues(msgType, boolToStr(success)).Inc()
}

func (m *actorMetrics) ChildFailed(group string)    { m.failuresTotal.WithLabelValues(group).Inc() }
func (m *actorMetrics) ChildRestarted(group string) { m.restartsTotal.WithLabelValues(group).Inc() }
func (m *actorMetrics) ChildStopped(group string)   { m.stopsTotal.WithLabelValues(group).Inc() }

func (m *actorMetrics) MailboxDepth(group string, depth int) {
	m.mailboxDepth.WithLabelValues(group).Set(float64(depth))
}

func (m *actorMetrics) Replicas(group string, n int) {
	m.replicas.WithLabelValues(group).Set(float64(n))
}

var _ actor.ActorMetrics = (*actorMetrics)(nil)
