package actor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

var (
	// ErrStateGone is reported when a weak state handle is upgraded after
	// every strong handle has been released.
	ErrStateGone = errors.New("state owner is gone")
)

// StateGoneError is the panic value of WeakState.Upgrade. It marks a lifetime
// bug: an execution ran after the actor owning its state was torn down.
type StateGoneError struct {
	ID string
}

func (e *StateGoneError) Error() string { return fmt.Sprintf("upgrade state %s: %s", e.ID, ErrStateGone) }
func (e *StateGoneError) Unwrap() error { return ErrStateGone }

type cell[S any] struct {
	id    string
	lock  *semaphore.Weighted
	value S

	mu   sync.Mutex
	refs int
}

type (
	// State is a strong handle to a shared state cell. The value stays
	// reachable through weak handles while at least one strong handle has
	// not been released.
	State[S any] struct {
		c        *cell[S]
		mu       sync.Mutex
		released bool
	}

	// WeakState observes a state cell without keeping it alive.
	WeakState[S any] struct {
		c *cell[S]
	}
)

// NewState wraps v in a new cell and returns the first strong handle.
func NewState[S any](v S) *State[S] {
	return &State[S]{
		c: &cell[S]{
			id:    newID("state"),
			lock:  semaphore.NewWeighted(1),
			value: v,
			refs:  1,
		},
	}
}

// ID identifies the underlying cell; clones and upgrades share it.
func (s *State[S]) ID() string { return s.c.id }

// Clone returns another strong handle to the same cell.
func (s *State[S]) Clone() *State[S] {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	s.c.refs++
	return &State[S]{c: s.c}
}

// Release drops this handle's ownership. It is idempotent per handle.
func (s *State[S]) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return
	}
	s.released = true

	s.c.mu.Lock()
	s.c.refs--
	s.c.mu.Unlock()
}

// Downgrade returns a weak handle. Ownership does not change.
func (s *State[S]) Downgrade() WeakState[S] { return WeakState[S]{c: s.c} }

// Lock acquires exclusive access to the value. The returned func releases it
// and must be called exactly once.
func (s *State[S]) Lock(ctx context.Context) (v S, unlock func(), err error) {
	if err = s.c.lock.Acquire(ctx, 1); err != nil {
		return v, nil, err
	}
	var once sync.Once
	return s.c.value, func() { once.Do(func() { s.c.lock.Release(1) }) }, nil
}

// With runs f with exclusive access to the value. The lock is released when
// f returns or panics.
func (s *State[S]) With(ctx context.Context, f func(S) error) error {
	v, unlock, err := s.Lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	return f(v)
}

// Read runs op under the state lock and returns its result.
func Read[S any, R any](ctx context.Context, s *State[S], op func(S) R) (out R, err error) {
	err = s.With(ctx, func(v S) error {
		out = op(v)
		return nil
	})
	return
}

// Alive reports whether a strong handle is still held.
func (w WeakState[S]) Alive() bool {
	if w.c == nil {
		return false
	}
	w.c.mu.Lock()
	defer w.c.mu.Unlock()
	return w.c.refs > 0
}

// TryUpgrade returns a new strong handle, or ErrStateGone if the owner has
// released the cell. Callers must Release the returned handle.
func (w WeakState[S]) TryUpgrade() (*State[S], error) {
	if w.c == nil {
		return nil, ErrStateGone
	}
	w.c.mu.Lock()
	defer w.c.mu.Unlock()
	if w.c.refs <= 0 {
		return nil, &StateGoneError{ID: w.c.id}
	}
	w.c.refs++
	return &State[S]{c: w.c}, nil
}

// Upgrade is TryUpgrade for callers that cannot tolerate owner death.
// It panics with a *StateGoneError.
func (w WeakState[S]) Upgrade() *State[S] {
	s, err := w.TryUpgrade()
	if err != nil {
		var sge *StateGoneError
		if !errors.As(err, &sge) {
			sge = &StateGoneError{}
		}
		panic(sge)
	}
	return s
}
