package actor

import (
	"math"
	"time"
)

type (
	// RestartPolicy decides whether a failed child is relaunched.
	RestartPolicy struct {
		kind     restartKind
		maxTries int
	}

	restartKind int

	// Backoff is the delay applied before a restart.
	Backoff struct {
		kind       backoffKind
		timeout    time.Duration
		multiplier float64
		max        time.Duration
	}

	backoffKind int

	// RestartStrategy combines a policy with a backoff.
	RestartStrategy struct {
		Policy  RestartPolicy
		Backoff Backoff
	}

	// SupervisionStrategy decides which siblings restart with a failed child.
	SupervisionStrategy int

	// Callbacks are invoked around the lifecycle of a supervisor or a
	// children group. Nil funcs are skipped.
	Callbacks struct {
		BeforeStart   func()
		BeforeRestart func()
		AfterRestart  func()
		AfterStop     func()
	}

	// Dispatcher groups children under a broadcast name.
	Dispatcher struct {
		Name string
	}

	// Resizer scales a children group between Lower and Upper replicas.
	// A group is upscaled when its mailbox holds more than UpscaleDepth
	// messages per replica and downscaled when the mailbox is empty.
	Resizer struct {
		Lower        int
		Upper        int
		UpscaleDepth int
	}
)

const (
	restartAlways restartKind = iota
	restartNever
	restartTries
)

const (
	backoffImmediate backoffKind = iota
	backoffLinear
	backoffExponential
)

const (
	// OneForOne restarts only the failed child.
	OneForOne SupervisionStrategy = iota
	// OneForAll restarts every child of the supervisor.
	OneForAll
	// RestForOne restarts the failed child and those started after it.
	RestForOne
)

func (s SupervisionStrategy) String() string {
	switch s {
	case OneForAll:
		return "one_for_all"
	case RestForOne:
		return "rest_for_one"
	default:
		return "one_for_one"
	}
}

var (
	RestartAlways = RestartPolicy{kind: restartAlways}
	RestartNever  = RestartPolicy{kind: restartNever}
	Immediate     = Backoff{kind: backoffImmediate}
)

// RestartTries allows at most n restarts per child.
func RestartTries(n int) RestartPolicy { return RestartPolicy{kind: restartTries, maxTries: n} }

// LinearBackoff waits timeout * (attempt+1).
func LinearBackoff(timeout time.Duration) Backoff {
	return Backoff{kind: backoffLinear, timeout: timeout}
}

// ExponentialBackoff waits timeout * multiplier^attempt, capped at max when max > 0.
func ExponentialBackoff(timeout time.Duration, multiplier float64, max time.Duration) Backoff {
	if multiplier < 1 {
		multiplier = 2
	}
	return Backoff{kind: backoffExponential, timeout: timeout, multiplier: multiplier, max: max}
}

// NewRestartStrategy is a convenience constructor.
func NewRestartStrategy(p RestartPolicy, b Backoff) RestartStrategy {
	return RestartStrategy{Policy: p, Backoff: b}
}

// Allows reports whether another restart is permitted after n restarts.
func (p RestartPolicy) Allows(n int) bool {
	switch p.kind {
	case restartNever:
		return false
	case restartTries:
		return n < p.maxTries
	default:
		return true
	}
}

func (p RestartPolicy) String() string {
	switch p.kind {
	case restartNever:
		return "never"
	case restartTries:
		return "tries"
	default:
		return "always"
	}
}

// Delay returns the wait before restart attempt n (0-based).
func (b Backoff) Delay(attempt int) time.Duration {
	switch b.kind {
	case backoffLinear:
		return b.timeout * time.Duration(attempt+1)
	case backoffExponential:
		d := time.Duration(float64(b.timeout) * math.Pow(b.multiplier, float64(attempt)))
		if b.max > 0 && (d > b.max || d < 0) {
			return b.max
		}
		return d
	default:
		return 0
	}
}

type (
	// SupervisorConfig configures a supervisor. Nil fields fall back to the
	// engine defaults.
	SupervisorConfig struct {
		Callbacks       *Callbacks
		RestartStrategy *RestartStrategy
		Strategy        *SupervisionStrategy
	}

	// ChildrenConfig configures a children group. Nil fields fall back to
	// the engine defaults.
	ChildrenConfig struct {
		Callbacks     *Callbacks
		Dispatcher    *Dispatcher
		HeartbeatTick *time.Duration
		Name          *string
		Redundancy    *int
		Resizer       *Resizer
		MailboxSize   *int
	}

	// Config is the full set of optional actor hooks.
	Config struct {
		Supervisor SupervisorConfig
		Children   ChildrenConfig
	}
)

// Merge returns c with every field set in o taking precedence.
func (c Config) Merge(o Config) Config {
	c.Supervisor.Callbacks = pick(c.Supervisor.Callbacks, o.Supervisor.Callbacks)
	c.Supervisor.RestartStrategy = pick(c.Supervisor.RestartStrategy, o.Supervisor.RestartStrategy)
	c.Supervisor.Strategy = pick(c.Supervisor.Strategy, o.Supervisor.Strategy)

	c.Children.Callbacks = pick(c.Children.Callbacks, o.Children.Callbacks)
	c.Children.Dispatcher = pick(c.Children.Dispatcher, o.Children.Dispatcher)
	c.Children.HeartbeatTick = pick(c.Children.HeartbeatTick, o.Children.HeartbeatTick)
	c.Children.Name = pick(c.Children.Name, o.Children.Name)
	c.Children.Redundancy = pick(c.Children.Redundancy, o.Children.Redundancy)
	c.Children.Resizer = pick(c.Children.Resizer, o.Children.Resizer)
	c.Children.MailboxSize = pick(c.Children.MailboxSize, o.Children.MailboxSize)
	return c
}

func pick[T any](base, override *T) *T {
	if override != nil {
		return override
	}
	return base
}

// Ptr returns a pointer to v; handy for filling Config literals.
func Ptr[T any](v T) *T { return &v }

func valueOr[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}

func (c *Callbacks) call(f func(c Callbacks) func()) {
	if c == nil {
		return
	}
	if fn := f(*c); fn != nil {
		fn()
	}
}

func beforeStart(c Callbacks) func()   { return c.BeforeStart }
func beforeRestart(c Callbacks) func() { return c.BeforeRestart }
func afterRestart(c Callbacks) func()  { return c.AfterRestart }
func afterStop(c Callbacks) func()     { return c.AfterStop }
