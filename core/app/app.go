package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	natsadapter "github.com/trvinh99/redis-actor/adapters/nats"
	redisadapter "github.com/trvinh99/redis-actor/adapters/redis"
	"github.com/trvinh99/redis-actor/core/actor"
	"github.com/trvinh99/redis-actor/core/connmgr"
	"github.com/trvinh99/redis-actor/ports/kv"
)

var ErrNotRunning = errors.New("app is not running")

type Config struct {
	Context  context.Context
	Log      *slog.Logger
	Registry *actor.Registry

	ActorMetrics actor.ActorMetrics
	Metrics      connmgr.Metrics

	// URLs the connection manager bootstraps against. All urls share one
	// scheme: redis, rediss or nats.
	URLs []string
	Auth kv.Auth
	// Dialer defaults to DefaultDialer.
	Dialer kv.Dialer
	// Name is the connection manager address. Defaults to connmgr.DefaultName.
	Name string

	PoolSize          int
	ConnectionTimeout time.Duration
	OperationTimeout  time.Duration
	QueryTimeout      time.Duration

	// NATSBucket is used by the default dialer for nats urls.
	NATSBucket string
}

type App struct {
	cfg       Config
	ctx       context.Context
	cancelCtx context.CancelFunc
	log       *slog.Logger

	root   *actor.Supervisor
	actor  *actor.Actor[*connmgr.Redis]
	client *connmgr.Client
}

// DefaultDialer dials redis and rediss urls through go-redis and nats urls
// through a JetStream key-value bucket.
func DefaultDialer(log *slog.Logger, natsBucket string) *kv.Mux {
	mux := kv.NewMux()
	redisadapter.NewDialer(redisadapter.Options{Log: log}).Register(mux)
	natsadapter.NewKVDialer(natsadapter.KVOptions{Bucket: natsBucket, Log: log}).Register(mux)
	return mux
}

func New(config Config) (*App, error) {
	if len(config.URLs) == 0 {
		return nil, kv.ErrNoURLs
	}
	if _, err := kv.Scheme(config.URLs); err != nil {
		return nil, err
	}

	// === logger ===
	if config.Log == nil {
		config.Log = slog.Default()
	}

	// === context ===
	if config.Context == nil {
		config.Context = context.Background()
	}

	// === defaults ===
	if config.Registry == nil {
		config.Registry = actor.NewRegistry()
	}
	if config.ActorMetrics == nil {
		config.ActorMetrics = actor.NopActorMetrics()
	}
	if config.Metrics == nil {
		config.Metrics = connmgr.NopMetrics()
	}
	if config.Name == "" {
		config.Name = connmgr.DefaultName
	}
	if config.Dialer == nil {
		config.Dialer = DefaultDialer(config.Log, config.NATSBucket)
	}

	a := &App{cfg: config, log: config.Log}
	a.ctx, a.cancelCtx = context.WithCancel(config.Context)
	a.client = connmgr.NewClient(config.Registry, connmgr.ClientOptions{
		Address: config.Name,
		Timeout: config.QueryTimeout,
	})

	a.log.Debug("creating app",
		slog.Any("urls", config.URLs),
		slog.Any("auth", config.Auth),
		slog.String("name", config.Name),
	)
	return a, nil
}

// Run starts the root supervisor and the connection manager under it.
func (a *App) Run() error {
	a.root = actor.NewSupervisor(actor.SupervisorOptions{
		Context:  a.ctx,
		Log:      a.log,
		Registry: a.cfg.Registry,
		Metrics:  a.cfg.ActorMetrics,
	})

	act, err := connmgr.Start(a.root, a.cfg.URLs,
		connmgr.WithName(a.cfg.Name),
		connmgr.WithAuth(a.cfg.Auth),
		connmgr.WithDialer(a.cfg.Dialer),
		connmgr.WithPoolSize(a.cfg.PoolSize),
		connmgr.WithConnectionTimeout(a.cfg.ConnectionTimeout),
		connmgr.WithOperationTimeout(a.cfg.OperationTimeout),
		connmgr.WithLogger(a.log),
		connmgr.WithMetrics(a.cfg.Metrics),
		connmgr.WithActorMetrics(a.cfg.ActorMetrics),
	)
	if err != nil {
		a.root.Stop()
		a.cancelCtx()
		return err
	}
	a.actor = act

	a.log.Info("app started", slog.String("address", act.Address()))
	return nil
}

func (a *App) Client() *connmgr.Client              { return a.client }
func (a *App) Registry() *actor.Registry            { return a.cfg.Registry }
func (a *App) Actor() *actor.Actor[*connmgr.Redis] { return a.actor }

// WaitReady blocks until the connection manager holds a working pool.
func (a *App) WaitReady(ctx context.Context) error {
	if a.actor == nil {
		return ErrNotRunning
	}
	return a.client.WaitReady(ctx)
}

// Done is closed once the root supervisor stopped.
func (a *App) Done() <-chan struct{} {
	if a.root == nil {
		return a.ctx.Done()
	}
	return a.root.Done()
}

// Stop stops the connection manager, which closes its pool, then the root
// supervisor.
func (a *App) Stop() {
	if a.actor != nil {
		a.actor.Stop()
	}
	if a.root != nil {
		a.root.Stop()
	}
	a.cancelCtx()
}

// Shutdown stops the app and waits until it is done or ctx ends.
func (a *App) Shutdown(ctx context.Context) error {
	a.Stop()
	select {
	case <-a.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func Run(config Config) (*App, error) {
	a, err := New(config)
	if err != nil {
		return nil, err
	}
	if err := a.Run(); err != nil {
		return nil, err
	}
	return a, nil
}
