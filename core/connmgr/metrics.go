package connmgr

import "github.com/trvinh99/redis-actor/core/metrics"

// Metrics defines the metrics reported by the connection manager.
// All methods are thread-safe.
type Metrics interface {
	// Operations: insert, query, delete
	OperationDuration(op string) metrics.Timer
	// OperationCompleted counts an operation by outcome: ok, error, dropped,
	// found, absent or unavailable.
	OperationCompleted(op, outcome string)

	// Connection
	EventApplied(event string)
	PoolBuilt(success bool)
	PoolConnections(open, idle int)
	Initialized(ok bool)
}

type nopMetrics struct{}

func (nopMetrics) OperationDuration(string) metrics.Timer { return metrics.NopTimer() }
func (nopMetrics) OperationCompleted(string, string)      {}
func (nopMetrics) EventApplied(string)                    {}
func (nopMetrics) PoolBuilt(bool)                         {}
func (nopMetrics) PoolConnections(int, int)               {}
func (nopMetrics) Initialized(bool)                       {}

// NopMetrics returns a no-op Metrics implementation.
func NopMetrics() Metrics { return nopMetrics{} }
