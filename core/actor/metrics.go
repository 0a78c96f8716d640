package actor

import "github.com/trvinh99/redis-actor/core/metrics"

// ActorMetrics defines the metrics reported by the actor runtime.
// All methods are thread-safe.
type ActorMetrics interface {
	// Message handling
	MessageDuration(msgType string) metrics.Timer
	MessageProcessed(msgType string, success bool)

	// Supervision
	ChildFailed(group string)
	ChildRestarted(group string)
	ChildStopped(group string)

	// Groups
	MailboxDepth(group string, depth int)
	Replicas(group string, n int)
}

type nopActorMetrics struct{}

func (nopActorMetrics) MessageDuration(string) metrics.Timer { return metrics.NopTimer() }
func (nopActorMetrics) MessageProcessed(string, bool)        {}

func (nopActorMetrics) ChildFailed(string)    {}
func (nopActorMetrics) ChildRestarted(string) {}
func (nopActorMetrics) ChildStopped(string)   {}

func (nopActorMetrics) MailboxDepth(string, int) {}
func (nopActorMetrics) Replicas(string, int)     {}

// NopActorMetrics returns a no-op ActorMetrics implementation.
func NopActorMetrics() ActorMetrics { return nopActorMetrics{} }
