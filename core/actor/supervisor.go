package actor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

var (
	ErrSupervisorStopped = errors.New("supervisor stopped")
	ErrInvalidConfig     = errors.New("invalid config")
	ErrPanic             = errors.New("handler panicked")
)

const defaultResizeTick = 500 * time.Millisecond

type (
	// Exec is the body run by every replica of a children group. It is
	// invoked again after each restart.
	Exec func(c *Context) error

	SupervisorOptions struct {
		Context  context.Context
		Log      *slog.Logger
		Registry *Registry
		Metrics  ActorMetrics
	}

	// Supervisor starts, restarts and stops children groups and nested
	// supervisors.
	Supervisor struct {
		id       string
		ctx      context.Context
		cancel   context.CancelFunc
		log      *slog.Logger
		registry *Registry
		metrics  ActorMetrics
		parent   *Supervisor

		restart   RestartStrategy
		strategy  SupervisionStrategy
		callbacks *Callbacks

		mu       sync.Mutex
		stopped  bool
		groups   []*Children
		subs     []*Supervisor
		stopOnce sync.Once
		done     chan struct{}
	}

	// Children is a group of replicas sharing one mailbox and one address.
	Children struct {
		id         string
		address    string
		sup        *Supervisor
		exec       Exec
		mailbox    *Mailbox
		log        *slog.Logger
		callbacks  *Callbacks
		dispatcher *Dispatcher
		resizer    *Resizer

		ctx    context.Context
		cancel context.CancelFunc

		mu       sync.Mutex
		replicas []*child
		wg       sync.WaitGroup
		stopOnce sync.Once
		done     chan struct{}
	}

	child struct {
		id     string
		ctx    context.Context
		cancel context.CancelFunc
		done   chan struct{}

		mu        sync.Mutex
		runCancel context.CancelFunc
		restarts  int
	}
)

// NewSupervisor creates a root supervisor. Canceling opts.Context stops it.
func NewSupervisor(opts SupervisorOptions) *Supervisor {
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.Registry == nil {
		opts.Registry = NewRegistry()
	}
	if opts.Metrics == nil {
		opts.Metrics = NopActorMetrics()
	}
	return newSupervisor(nil, opts.Context, opts.Log, opts.Registry, opts.Metrics, SupervisorConfig{})
}

func newSupervisor(
	parent *Supervisor,
	ctx context.Context,
	log *slog.Logger,
	registry *Registry,
	m ActorMetrics,
	cfg SupervisorConfig,
) *Supervisor {
	s := &Supervisor{
		id:        newID("sup"),
		parent:    parent,
		registry:  registry,
		metrics:   m,
		restart:   valueOr(cfg.RestartStrategy, NewRestartStrategy(RestartAlways, Immediate)),
		strategy:  valueOr(cfg.Strategy, OneForOne),
		callbacks: cfg.Callbacks,
		done:      make(chan struct{}),
	}
	s.log = log.With(slog.String("supervisor", s.id))
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.callbacks.call(beforeStart)

	go func() {
		select {
		case <-s.ctx.Done():
			s.Stop()
		case <-s.done:
		}
	}()
	return s
}

func (s *Supervisor) ID() string               { return s.id }
func (s *Supervisor) Registry() *Registry      { return s.registry }
func (s *Supervisor) Log() *slog.Logger        { return s.log }
func (s *Supervisor) Done() <-chan struct{}    { return s.done }
func (s *Supervisor) Context() context.Context { return s.ctx }

// Supervisor creates a nested supervisor.
func (s *Supervisor) Supervisor(cfg SupervisorConfig) (*Supervisor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, ErrSupervisorStopped
	}
	sub := newSupervisor(s, s.ctx, s.log, s.registry, s.metrics, cfg)
	s.subs = append(s.subs, sub)
	s.log.Debug("supervisor started",
		slog.String("child_supervisor", sub.id),
		slog.String("restart_policy", sub.restart.Policy.String()),
		slog.String("strategy", sub.strategy.String()),
	)
	return sub, nil
}

// Children starts a children group running exec and registers its address.
func (s *Supervisor) Children(cfg ChildrenConfig, exec Exec) (*Children, error) {
	if exec == nil {
		return nil, fmt.Errorf("%w: exec is required", ErrInvalidConfig)
	}
	redundancy := valueOr(cfg.Redundancy, 1)
	if r := cfg.Resizer; r != nil {
		if r.Lower < 1 || (r.Upper > 0 && r.Upper < r.Lower) {
			return nil, fmt.Errorf("%w: resizer bounds %d..%d", ErrInvalidConfig, r.Lower, r.Upper)
		}
		redundancy = max(redundancy, r.Lower)
		if r.Upper > 0 {
			redundancy = min(redundancy, r.Upper)
		}
	}
	if redundancy < 1 {
		return nil, fmt.Errorf("%w: redundancy must be positive, got %d", ErrInvalidConfig, redundancy)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, ErrSupervisorStopped
	}

	g := &Children{
		id:         newID("children"),
		sup:        s,
		exec:       exec,
		mailbox:    newMailbox(valueOr(cfg.MailboxSize, defaultMailboxSize)),
		callbacks:  cfg.Callbacks,
		dispatcher: cfg.Dispatcher,
		resizer:    cfg.Resizer,
		done:       make(chan struct{}),
	}
	g.address = valueOr(cfg.Name, g.id)
	g.log = s.log.With(slog.String("actor", g.address))

	if err := s.registry.Register(g.address, g.mailbox); err != nil {
		return nil, err
	}
	if g.dispatcher != nil {
		s.registry.join(g.dispatcher.Name, g.mailbox)
	}
	g.ctx, g.cancel = context.WithCancel(s.ctx)

	g.callbacks.call(beforeStart)
	for range redundancy {
		g.spawn()
	}

	tick := valueOr(cfg.HeartbeatTick, 0)
	if tick <= 0 && g.resizer != nil {
		tick = defaultResizeTick
	}
	if tick > 0 {
		g.wg.Add(1)
		go g.heartbeat(tick)
	}

	s.groups = append(s.groups, g)
	g.log.Debug("children started", slog.Int("replicas", redundancy))
	return g, nil
}

// Stop stops nested supervisors and children groups, newest first, and
// waits for them. Calling Stop from inside an Exec deadlocks.
func (s *Supervisor) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		subs := append([]*Supervisor(nil), s.subs...)
		groups := append([]*Children(nil), s.groups...)
		s.mu.Unlock()

		for i := len(subs) - 1; i >= 0; i-- {
			subs[i].Stop()
		}
		for i := len(groups) - 1; i >= 0; i-- {
			groups[i].Stop()
		}
		s.cancel()
		s.callbacks.call(afterStop)
		if s.parent != nil {
			s.parent.removeSub(s)
		}
		s.log.Debug("supervisor stopped")
		close(s.done)
	})
}

func (s *Supervisor) removeSub(sub *Supervisor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, x := range s.subs {
		if x == sub {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			return
		}
	}
}

// siblingsToRestart lists the children restarted along with failed.
func (s *Supervisor) siblingsToRestart(failed *child) []*child {
	if s.strategy == OneForOne {
		return nil
	}
	s.mu.Lock()
	groups := append([]*Children(nil), s.groups...)
	s.mu.Unlock()

	var (
		out  []*child
		seen bool
	)
	for _, g := range groups {
		for _, c := range g.snapshot() {
			if c == failed {
				seen = true
				continue
			}
			if s.strategy == OneForAll || seen {
				out = append(out, c)
			}
		}
	}
	return out
}

// --- children group ---

func (g *Children) Address() string       { return g.address }
func (g *Children) Mailbox() *Mailbox     { return g.mailbox }
func (g *Children) Done() <-chan struct{} { return g.done }

// Replicas is the number of running replicas.
func (g *Children) Replicas() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.replicas)
}

func (g *Children) snapshot() []*child {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*child(nil), g.replicas...)
}

// Stop deregisters the group, stops every replica and closes the mailbox.
func (g *Children) Stop() {
	g.stopOnce.Do(func() {
		g.sup.registry.Deregister(g.address, g.mailbox)
		if g.dispatcher != nil {
			g.sup.registry.leave(g.dispatcher.Name, g.mailbox)
		}
		g.cancel()
		g.wg.Wait()
		g.mailbox.close()
		g.callbacks.call(afterStop)
		g.sup.metrics.Replicas(g.address, 0)
		g.log.Debug("children stopped")
		close(g.done)
	})
}

func (g *Children) spawn() {
	c := &child{id: newID("child"), done: make(chan struct{})}
	c.ctx, c.cancel = context.WithCancel(g.ctx)

	g.mu.Lock()
	g.replicas = append(g.replicas, c)
	n := len(g.replicas)
	g.mu.Unlock()
	g.sup.metrics.Replicas(g.address, n)

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		g.run(c)
		g.remove(c)
	}()
}

func (g *Children) remove(c *child) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, x := range g.replicas {
		if x == c {
			g.replicas = append(g.replicas[:i], g.replicas[i+1:]...)
			break
		}
	}
	g.sup.metrics.Replicas(g.address, len(g.replicas))
}

func (g *Children) run(c *child) {
	defer close(c.done)
	defer g.sup.metrics.ChildStopped(g.address)

	log := g.log.With(slog.String("child", c.id))
	for {
		runCtx, runCancel := context.WithCancel(c.ctx)
		c.mu.Lock()
		c.runCancel = runCancel
		c.mu.Unlock()

		err := g.invoke(runCtx, log, c)
		restartedBySibling := runCtx.Err() != nil
		runCancel()

		if c.ctx.Err() != nil {
			return
		}

		var gone *StateGoneError
		if errors.As(err, &gone) {
			log.Error("state owner gone, stopping child", slog.Any("error", err))
			return
		}

		if restartedBySibling {
			log.Debug("restarting with sibling")
			continue
		}

		if err == nil {
			log.Debug("child finished")
			return
		}

		g.sup.metrics.ChildFailed(g.address)
		log.Warn("child failed", slog.Any("error", err))

		c.mu.Lock()
		restarts := c.restarts
		c.mu.Unlock()

		rs := g.sup.restart
		if !rs.Policy.Allows(restarts) {
			log.Error("restart policy exhausted", slog.Int("restarts", restarts), slog.String("policy", rs.Policy.String()))
			return
		}

		for _, sib := range g.sup.siblingsToRestart(c) {
			sib.restartRun()
		}

		g.callbacks.call(beforeRestart)
		if delay := rs.Backoff.Delay(restarts); delay > 0 {
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(delay):
			}
		}

		c.mu.Lock()
		c.restarts++
		c.mu.Unlock()
		g.sup.metrics.ChildRestarted(g.address)
		g.callbacks.call(afterRestart)
		log.Info("child restarted", slog.Int("restarts", restarts+1))
	}
}

func (g *Children) invoke(ctx context.Context, log *slog.Logger, c *child) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if sge, ok := r.(*StateGoneError); ok {
				err = sge
				return
			}
			log.Error("child panicked", slog.Any("recovered", r), slog.String("stack", string(debug.Stack())))
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()

	return g.exec(&Context{
		ctx:      ctx,
		log:      log,
		self:     g.address,
		child:    c.id,
		mailbox:  g.mailbox,
		registry: g.sup.registry,
	})
}

func (c *child) restartRun() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.runCancel != nil {
		c.runCancel()
	}
}

func (g *Children) heartbeat(tick time.Duration) {
	defer g.wg.Done()
	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-g.ctx.Done():
			return
		case <-t.C:
			depth := g.mailbox.Len()
			g.sup.metrics.MailboxDepth(g.address, depth)
			g.resize(depth)
		}
	}
}

func (g *Children) resize(depth int) {
	r := g.resizer
	if r == nil {
		return
	}
	replicas := g.snapshot()
	n := len(replicas)
	switch {
	case r.Upper > 0 && n < r.Upper && depth > r.UpscaleDepth*n:
		g.log.Debug("upscaling", slog.Int("replicas", n+1), slog.Int("depth", depth))
		g.spawn()
	case depth == 0 && n > r.Lower:
		last := replicas[n-1]
		g.log.Debug("downscaling", slog.Int("replicas", n-1))
		last.cancel()
		<-last.done
	}
}
