package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

const (
	DefaultMaxSize           = 15
	DefaultConnectionTimeout = 30 * time.Second
)

var (
	ErrClosed      = errors.New("pool closed")
	ErrTimeout     = errors.New("timed out waiting for a connection")
	ErrInvalidSize = errors.New("pool size must be positive")
)

type (
	// Manager creates and checks the connections held by a Pool.
	Manager[C any] interface {
		// Connect opens a new connection.
		Connect(ctx context.Context) (C, error)
		// IsValid performs a round trip to check the connection on checkout.
		IsValid(ctx context.Context, c C) error
		// HasBroken is a cheap, synchronous check run when a connection is
		// returned. Broken connections are closed instead of reused.
		HasBroken(c C) bool
		// Close closes a connection that leaves the pool.
		Close(c C) error
	}

	Options struct {
		// MaxSize bounds the number of open connections. Defaults to 15.
		MaxSize int
		// ConnectionTimeout bounds how long Get waits for a connection.
		// Defaults to 30s.
		ConnectionTimeout time.Duration
		// SkipTestOnCheckout disables IsValid on idle connections handed out
		// by Get.
		SkipTestOnCheckout bool
		Log                *slog.Logger
	}

	// State is a snapshot of the pool.
	State struct {
		Connections int
		Idle        int
		InUse       int
	}

	// Pool is a bounded set of reusable connections.
	Pool[C any] struct {
		mgr  Manager[C]
		opts Options
		log  *slog.Logger
		sem  *semaphore.Weighted

		mu     sync.Mutex
		idle   []C
		open   int
		closed bool
	}

	// Lease is a connection checked out of a Pool. Release returns it.
	Lease[C any] struct {
		pool *Pool[C]
		conn C
		once sync.Once
	}
)

func (o *Options) defaults() error {
	if o.MaxSize == 0 {
		o.MaxSize = DefaultMaxSize
	}
	if o.MaxSize < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidSize, o.MaxSize)
	}
	if o.ConnectionTimeout <= 0 {
		o.ConnectionTimeout = DefaultConnectionTimeout
	}
	if o.Log == nil {
		o.Log = slog.Default()
	}
	return nil
}

// New builds a pool and opens one validated connection, so an unreachable
// backend fails here rather than on first use.
func New[C any](ctx context.Context, mgr Manager[C], opts Options) (*Pool[C], error) {
	if err := opts.defaults(); err != nil {
		return nil, err
	}
	p := &Pool[C]{
		mgr:  mgr,
		opts: opts,
		log:  opts.Log.With(slog.Int("pool_size", opts.MaxSize)),
		sem:  semaphore.NewWeighted(int64(opts.MaxSize)),
	}

	ctx, cancel := context.WithTimeout(ctx, opts.ConnectionTimeout)
	defer cancel()
	c, err := mgr.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := mgr.IsValid(ctx, c); err != nil {
		_ = mgr.Close(c)
		return nil, fmt.Errorf("validate: %w", err)
	}
	p.idle = append(p.idle, c)
	p.open = 1
	return p, nil
}

// Get checks out a connection, waiting at most ConnectionTimeout for one to
// become available.
func (p *Pool[C]) Get(ctx context.Context) (*Lease[C], error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.ConnectionTimeout)
	defer cancel()

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTimeout, err)
	}

	for {
		c, ok, err := p.popIdle()
		if err != nil {
			p.sem.Release(1)
			return nil, err
		}
		if !ok {
			break
		}
		if p.opts.SkipTestOnCheckout {
			return p.lease(c), nil
		}
		if err := p.mgr.IsValid(ctx, c); err != nil {
			p.log.Debug("discarding invalid connection", slog.Any("error", err))
			p.discard(c)
			continue
		}
		return p.lease(c), nil
	}

	c, err := p.mgr.Connect(ctx)
	if err != nil {
		p.sem.Release(1)
		return nil, fmt.Errorf("connect: %w", err)
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		_ = p.mgr.Close(c)
		p.sem.Release(1)
		return nil, ErrClosed
	}
	p.open++
	p.mu.Unlock()
	return p.lease(c), nil
}

func (p *Pool[C]) popIdle() (c C, ok bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return c, false, ErrClosed
	}
	n := len(p.idle)
	if n == 0 {
		return c, false, nil
	}
	c = p.idle[n-1]
	var zero C
	p.idle[n-1] = zero
	p.idle = p.idle[:n-1]
	return c, true, nil
}

func (p *Pool[C]) lease(c C) *Lease[C] { return &Lease[C]{pool: p, conn: c} }

func (p *Pool[C]) discard(c C) {
	if err := p.mgr.Close(c); err != nil {
		p.log.Debug("close connection", slog.Any("error", err))
	}
	p.mu.Lock()
	p.open--
	p.mu.Unlock()
}

func (p *Pool[C]) put(c C) {
	defer p.sem.Release(1)
	if p.mgr.HasBroken(c) {
		p.log.Debug("discarding broken connection")
		p.discard(c)
		return
	}
	p.mu.Lock()
	if p.closed {
		p.open--
		p.mu.Unlock()
		_ = p.mgr.Close(c)
		return
	}
	p.idle = append(p.idle, c)
	p.mu.Unlock()
}

// State reports the current connection counts.
func (p *Pool[C]) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return State{
		Connections: p.open,
		Idle:        len(p.idle),
		InUse:       p.open - len(p.idle),
	}
}

// MaxSize is the configured bound.
func (p *Pool[C]) MaxSize() int { return p.opts.MaxSize }

// Close closes idle connections. Leased connections are closed when they
// are released. Close is idempotent.
func (p *Pool[C]) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.open -= len(idle)
	p.mu.Unlock()

	var errs []error
	for _, c := range idle {
		if err := p.mgr.Close(c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Conn is the leased connection. It must not be used after Release.
func (l *Lease[C]) Conn() C { return l.conn }

// Release returns the connection to the pool. Calling it again is a no-op.
func (l *Lease[C]) Release() {
	l.once.Do(func() { l.pool.put(l.conn) })
}
