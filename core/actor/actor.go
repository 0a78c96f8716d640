package actor

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrBuild          = errors.New("actor build failed")
	ErrBuilderUsed    = errors.New("builder already used")
	ErrStateRequired  = errors.New("state is required")
	ErrParentRequired = errors.New("parent supervisor is required")
)

type (
	// Behavior is implemented by state types that run as actors. Handle is
	// the message loop; it runs with exclusive access to the state and is
	// invoked again after every restart. Returning an error hands the
	// failure to the restart policy.
	Behavior interface {
		Handle(c *Context) error
	}

	// Configurer is an optional Behavior extension declaring the type's
	// default hooks. ActorConfig is called once at build time on the zero
	// value of the state type, so it must not read instance fields.
	Configurer interface {
		ActorConfig() Config
	}

	// Actor owns the strong state handle of a running children group.
	Actor[S Behavior] struct {
		supervisor *Supervisor
		children   *Children
		state      *State[S]
	}

	// Builder accumulates configuration for one actor. Builder overrides
	// win over the hooks declared by the state type.
	Builder[S Behavior] struct {
		parent *Supervisor
		state  *State[S]
		cfg    Config
		used   bool
	}
)

func (a *Actor[S]) State() *State[S]        { return a.state }
func (a *Actor[S]) Supervisor() *Supervisor { return a.supervisor }
func (a *Actor[S]) Children() *Children     { return a.children }
func (a *Actor[S]) Address() string         { return a.children.Address() }
func (a *Actor[S]) Done() <-chan struct{}   { return a.supervisor.Done() }

// Stop tears down the supervisor and releases the owning state handle.
func (a *Actor[S]) Stop() {
	a.supervisor.Stop()
	a.state.Release()
}

// NewBuilder starts building an actor supervised by parent.
func NewBuilder[S Behavior](parent *Supervisor) *Builder[S] {
	return &Builder[S]{parent: parent}
}

// WithState wraps v in a new state cell.
func (b *Builder[S]) WithState(v S) *Builder[S] {
	b.state = NewState(v)
	return b
}

// WithStateCell uses an existing strong handle. The actor takes a clone.
func (b *Builder[S]) WithStateCell(s *State[S]) *Builder[S] {
	b.state = s.Clone()
	return b
}

func (b *Builder[S]) WithSupervisorCallbacks(c Callbacks) *Builder[S] {
	b.cfg.Supervisor.Callbacks = &c
	return b
}

func (b *Builder[S]) WithStrategy(s SupervisionStrategy) *Builder[S] {
	b.cfg.Supervisor.Strategy = &s
	return b
}

func (b *Builder[S]) WithRestartStrategy(rs RestartStrategy) *Builder[S] {
	b.cfg.Supervisor.RestartStrategy = &rs
	return b
}

func (b *Builder[S]) WithChildrenCallbacks(c Callbacks) *Builder[S] {
	b.cfg.Children.Callbacks = &c
	return b
}

func (b *Builder[S]) WithDispatcher(name string) *Builder[S] {
	b.cfg.Children.Dispatcher = &Dispatcher{Name: name}
	return b
}

func (b *Builder[S]) WithHeartbeatTick(d time.Duration) *Builder[S] {
	b.cfg.Children.HeartbeatTick = &d
	return b
}

// WithName sets the address other actors use to reach this one.
func (b *Builder[S]) WithName(name string) *Builder[S] {
	b.cfg.Children.Name = &name
	return b
}

// WithRedundancy sets the number of replicas.
func (b *Builder[S]) WithRedundancy(n int) *Builder[S] {
	b.cfg.Children.Redundancy = &n
	return b
}

func (b *Builder[S]) WithResizer(r Resizer) *Builder[S] {
	b.cfg.Children.Resizer = &r
	return b
}

func (b *Builder[S]) WithMailboxSize(n int) *Builder[S] {
	b.cfg.Children.MailboxSize = &n
	return b
}

// Config returns the merged configuration Build would use.
func (b *Builder[S]) Config() Config {
	var zero S
	var declared Config
	if c, ok := any(zero).(Configurer); ok {
		declared = c.ActorConfig()
	}
	return declared.Merge(b.cfg)
}

// Build starts the supervisor and its children group. On failure nothing
// keeps running.
func (b *Builder[S]) Build() (*Actor[S], error) {
	if b.used {
		return nil, ErrBuilderUsed
	}
	b.used = true

	if b.parent == nil {
		return nil, fmt.Errorf("%w: %w", ErrBuild, ErrParentRequired)
	}
	if b.state == nil {
		return nil, fmt.Errorf("%w: %w", ErrBuild, ErrStateRequired)
	}

	cfg := b.Config()

	sup, err := b.parent.Supervisor(cfg.Supervisor)
	if err != nil {
		b.state.Release()
		return nil, fmt.Errorf("%w: supervisor: %w", ErrBuild, err)
	}

	// The closure only sees the weak handle: a restarted run reattaches to
	// the state owned by the returned Actor.
	weak := b.state.Downgrade()
	exec := func(c *Context) error {
		st := weak.Upgrade()
		defer st.Release()
		return st.With(c.Context(), func(s S) error {
			return s.Handle(c)
		})
	}

	children, err := sup.Children(cfg.Children, exec)
	if err != nil {
		sup.Stop()
		b.state.Release()
		return nil, fmt.Errorf("%w: children: %w", ErrBuild, err)
	}

	return &Actor[S]{
		supervisor: sup,
		children:   children,
		state:      b.state,
	}, nil
}
