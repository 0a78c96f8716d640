// Package metrics holds the backend-neutral instruments used by the actor
// runtime and the connection manager. Prometheus implementations live in
// adapters/prometheus.
package metrics

// Counter only goes up.
type Counter interface {
	Inc()
	Add(delta float64)
}

// Gauge can go up and down.
type Gauge interface {
	Set(value float64)
	Inc()
	Dec()
	Add(delta float64)
}

// Histogram samples observations.
type Histogram interface {
	Observe(value float64)
}

// Timer measures one operation; call ObserveDuration when it completes:
//
//	defer m.OpDuration("get").ObserveDuration()
type Timer interface {
	ObserveDuration()
}
