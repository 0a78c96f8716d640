package connmgr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/trvinh99/redis-actor/core/actor"
	"github.com/trvinh99/redis-actor/core/es"
	"github.com/trvinh99/redis-actor/core/pool"
	"github.com/trvinh99/redis-actor/ports/kv"
)

const (
	// DefaultName is the address of the connection manager.
	DefaultName = "redis_actor"
	// DefaultOperationTimeout bounds a single store operation.
	DefaultOperationTimeout = 5 * time.Second
)

// Redis is the connection manager aggregate. Exported fields are its state;
// the rest are services that are never changed by events.
type Redis struct {
	State   State
	URLs    []string
	Auth    kv.Auth
	Version es.Version

	opts      options
	log       *slog.Logger
	pool      *pool.Pool[kv.Conn]
	poolURLs  []string
	lastError error
}

// New returns an Uninitialized aggregate that connects to urls once started.
func New(urls []string, opts ...Option) *Redis {
	o := newOptions(opts)
	return &Redis{
		URLs: slices.Clone(urls),
		Auth: o.auth,
		opts: o,
		log:  o.log.With(slog.String("aggregate", AggregateType)),
	}
}

// ActorConfig declares the default hooks of the connection manager.
func (*Redis) ActorConfig() actor.Config {
	return actor.Config{
		Supervisor: actor.SupervisorConfig{
			RestartStrategy: actor.Ptr(actor.NewRestartStrategy(actor.RestartAlways, actor.Immediate)),
		},
		Children: actor.ChildrenConfig{
			Name:       actor.Ptr(DefaultName),
			Dispatcher: &actor.Dispatcher{Name: DefaultName},
		},
	}
}

// Handle serves messages until the run ends. While the aggregate was never
// initialized the run first bootstraps it through its own command path. A
// restarted run resumes from the last applied event.
func (r *Redis) Handle(c *actor.Context) error {
	if r.State == Uninitialized {
		if err := c.TellSelf(ConnectRedisServer{URLs: slices.Clone(r.URLs)}); err != nil {
			r.log.Error("failed to queue bootstrap command", slog.Any("error", err))
		}
	}

	return actor.NewHandlers(
		actor.WithHandlerMetrics(r.opts.actorMetrics),
		actor.OnTell(r.onCommand),
		actor.OnTell(r.onEvent),
		actor.OnTell(r.onInsert),
		actor.OnTell(r.onDelete),
		actor.OnQuestion(r.onQuery),
		actor.OnQuestion(r.onStatus),
	).Loop(c)
}

func (r *Redis) onCommand(c *actor.Context, cmd Command) error {
	events, err := r.HandleCommand(cmd)
	if err != nil {
		r.log.Warn("command rejected", slog.String("command", actor.MsgType(cmd)), slog.Any("error", err))
		return nil
	}
	for _, e := range events {
		if err := c.TellSelf(e); err != nil {
			r.log.Error("failed to queue event", slog.String("event_type", e.EventType()), slog.Any("error", err))
		}
	}
	return nil
}

func (r *Redis) onEvent(c *actor.Context, evt Event) error {
	if err := es.Validate(evt); err != nil {
		r.log.Warn("invalid event", slog.Any("error", err))
		return nil
	}

	urls := eventURLs(evt)
	_, reconnect := evt.(RedisServerReconnected)
	if reconnect || r.pool == nil || !slices.Equal(r.poolURLs, urls) {
		if err := r.rebuildPool(c.Context(), urls); err != nil {
			r.lastError = err
			r.log.Error("pool build failed, keeping current state",
				slog.String("event_type", evt.EventType()),
				slog.Any("error", err),
			)
			return nil
		}
	}

	if err := r.Apply(evt); err != nil {
		return err
	}
	r.lastError = nil
	r.opts.metrics.EventApplied(eventKind(evt))
	r.opts.metrics.Initialized(r.State == Initialized)

	env := es.Seal(AggregateType, r.Version, evt)
	// the envelope carries the aggregate attribute itself
	r.opts.log.Info("event applied", append(env.LogAttrs(), slog.Any("urls", r.URLs))...)
	return nil
}

func eventKind(evt Event) string {
	if _, ok := evt.(RedisServerReconnected); ok {
		return "reconnected"
	}
	return "connected"
}

// rebuildPool swaps in a pool for urls. The current pool stays in place
// when the new one cannot be built.
func (r *Redis) rebuildPool(ctx context.Context, urls []string) error {
	if r.opts.dialer == nil {
		r.opts.metrics.PoolBuilt(false)
		return fmt.Errorf("%w: %w", ErrPool, ErrNoDialer)
	}
	p, err := pool.New(ctx, kv.PoolManager{Dialer: r.opts.dialer, URLs: urls, Auth: r.Auth}, pool.Options{
		MaxSize:           r.opts.poolSize,
		ConnectionTimeout: r.opts.connectionTimeout,
		Log:               r.log,
	})
	if err != nil {
		r.opts.metrics.PoolBuilt(false)
		return fmt.Errorf("%w: %w", ErrPool, err)
	}
	r.opts.metrics.PoolBuilt(true)

	old := r.pool
	r.pool, r.poolURLs = p, slices.Clone(urls)
	if old != nil {
		if err := old.Close(); err != nil {
			r.log.Warn("closing previous pool", slog.Any("error", err))
		}
	}
	r.reportPool()
	r.log.Debug("pool built", slog.Any("urls", urls), slog.Int("max_size", p.MaxSize()))
	return nil
}

func (r *Redis) reportPool() {
	if r.pool == nil {
		r.opts.metrics.PoolConnections(0, 0)
		return
	}
	s := r.pool.State()
	r.opts.metrics.PoolConnections(s.Connections, s.Idle)
}

// closePool closes the pool; the aggregate state is left untouched.
func (r *Redis) closePool() {
	if r.pool == nil {
		return
	}
	if err := r.pool.Close(); err != nil {
		r.log.Warn("closing pool", slog.Any("error", err))
	}
	r.pool = nil
	r.reportPool()
}

func (r *Redis) withConn(ctx context.Context, f func(ctx context.Context, c kv.Conn) error) error {
	ctx, cancel := context.WithTimeout(ctx, r.opts.operationTimeout)
	defer cancel()
	lease, err := r.pool.Get(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPool, err)
	}
	defer r.reportPool()
	defer lease.Release()
	return f(ctx, lease.Conn())
}

func (r *Redis) ready(op string) bool {
	if r.State == Initialized && r.pool != nil {
		return true
	}
	r.log.Debug("not initialized, dropping", slog.String("op", op))
	r.opts.metrics.OperationCompleted(op, "dropped")
	return false
}

func (r *Redis) onInsert(c *actor.Context, msg Insert) error {
	if !r.ready("insert") {
		return nil
	}
	defer r.opts.metrics.OperationDuration("insert").ObserveDuration()

	err := r.withConn(c.Context(), func(ctx context.Context, conn kv.Conn) error {
		if err := conn.Set(ctx, msg.Key, msg.Value); err != nil {
			return err
		}
		if msg.Expire > 0 {
			if err := conn.Expire(ctx, msg.Key, msg.Expire); err != nil {
				return fmt.Errorf("expire: %w", err)
			}
		}
		return nil
	})
	r.complete("insert", msg.Key, err)
	return nil
}

func (r *Redis) onDelete(c *actor.Context, msg Delete) error {
	if !r.ready("delete") {
		return nil
	}
	defer r.opts.metrics.OperationDuration("delete").ObserveDuration()

	err := r.withConn(c.Context(), func(ctx context.Context, conn kv.Conn) error {
		return conn.Delete(ctx, msg.Key)
	})
	r.complete("delete", msg.Key, err)
	return nil
}

func (r *Redis) complete(op, key string, err error) {
	if err != nil {
		r.log.Warn("operation failed", slog.String("op", op), slog.String("key", key), slog.Any("error", err))
		r.opts.metrics.OperationCompleted(op, "error")
		return
	}
	r.opts.metrics.OperationCompleted(op, "ok")
}

func (r *Redis) onQuery(c *actor.Context, msg Query, q actor.Question) error {
	if !r.ready("query") {
		return nil
	}
	defer r.opts.metrics.OperationDuration("query").ObserveDuration()

	var value []byte
	err := r.withConn(c.Context(), func(ctx context.Context, conn kv.Conn) (err error) {
		value, err = conn.Get(ctx, msg.Key)
		return err
	})

	var res QueryResult
	switch {
	case err == nil:
		res = QueryResult{Outcome: Found, Value: value}
	case errors.Is(err, kv.ErrNotFound):
		res = QueryResult{Outcome: Absent}
	default:
		r.log.Warn("query failed", slog.String("key", msg.Key), slog.Any("error", err))
		res = QueryResult{Outcome: Unavailable, Err: err.Error()}
	}
	r.opts.metrics.OperationCompleted("query", res.Outcome.String())
	return r.reply(q, res)
}

func (r *Redis) onStatus(_ *actor.Context, _ GetStatus, q actor.Question) error {
	return r.reply(q, r.Status())
}

// reply answers q. A question can only be answered once; a failed reply is
// logged, never fatal.
func (r *Redis) reply(q actor.Question, v any) error {
	if err := q.Reply(v); err != nil {
		r.log.Warn("reply failed", slog.Any("error", err))
	}
	return nil
}

// Status snapshots the aggregate. It must be called with the state lock held.
func (r *Redis) Status() Status {
	s := Status{
		State:   r.State,
		URLs:    slices.Clone(r.URLs),
		Version: r.Version,
	}
	if r.pool != nil {
		s.Pool = poolStatus(r.pool.MaxSize(), r.pool.State())
	}
	if r.lastError != nil {
		s.LastError = r.lastError.Error()
	}
	return s
}
