package connmgr

import (
	"log/slog"
	"time"

	"github.com/trvinh99/redis-actor/core/actor"
	"github.com/trvinh99/redis-actor/core/pool"
	"github.com/trvinh99/redis-actor/ports/kv"
)

type (
	Option func(*options)

	options struct {
		auth              kv.Auth
		dialer            kv.Dialer
		poolSize          int
		connectionTimeout time.Duration
		operationTimeout  time.Duration
		log               *slog.Logger
		metrics           Metrics
		actorMetrics      actor.ActorMetrics
		name              string
	}
)

func newOptions(opts []Option) options {
	o := options{
		poolSize:          pool.DefaultMaxSize,
		connectionTimeout: pool.DefaultConnectionTimeout,
		operationTimeout:  DefaultOperationTimeout,
		log:               slog.Default(),
		metrics:           NopMetrics(),
		actorMetrics:      actor.NopActorMetrics(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithAuth sets the credentials forwarded to the dialer.
func WithAuth(a kv.Auth) Option { return func(o *options) { o.auth = a } }

// WithDialer sets how pooled connections are opened. Required.
func WithDialer(d kv.Dialer) Option { return func(o *options) { o.dialer = d } }

// WithPoolSize bounds the pool. Defaults to 15.
func WithPoolSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.poolSize = n
		}
	}
}

func WithConnectionTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.connectionTimeout = d
		}
	}
}

// WithOperationTimeout bounds each store operation. Defaults to 5s.
func WithOperationTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.operationTimeout = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

func WithMetrics(m Metrics) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithActorMetrics reports per-message handler metrics.
func WithActorMetrics(m actor.ActorMetrics) Option {
	return func(o *options) {
		if m != nil {
			o.actorMetrics = m
		}
	}
}

// WithName overrides the address. Each connection manager sharing a
// registry needs its own name.
func WithName(name string) Option { return func(o *options) { o.name = name } }
