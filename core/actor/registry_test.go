package actor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRegistry_Names(t *testing.T) {
	r := NewRegistry()
	a, b := newMailbox(1), newMailbox(1)

	require.NoError(t, r.Register("a", a))
	require.ErrorIs(t, r.Register("a", b), ErrNameTaken)
	require.Error(t, r.Register("", b))

	// a stale deregistration leaves the current binding alone
	r.Deregister("a", b)
	got, err := r.Lookup("a")
	require.NoError(t, err)
	require.Same(t, a, got)

	r.Deregister("a", a)
	_, err = r.Lookup("a")
	require.ErrorIs(t, err, ErrNotRegistered)
	require.Empty(t, r.Names())
}

func TestRegistry_TellUnknown(t *testing.T) {
	r := NewRegistry()
	require.ErrorIs(t, r.Tell(t.Context(), "nobody", 1), ErrNotRegistered)
	_, err := r.Ask(t.Context(), "nobody", 1)
	require.ErrorIs(t, err, ErrNotRegistered)
}

func TestRegistry_TellFullMailboxHonorsContext(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("a", newMailbox(1)))
	require.NoError(t, r.Tell(t.Context(), "a", 1))

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, r.Tell(ctx, "a", 2), context.DeadlineExceeded)
}

func TestRegistry_TypedAskMismatch(t *testing.T) {
	root := newTestRoot(t)
	_, err := NewBuilder[*counter](root).WithState(&counter{}).Build()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(t.Context(), time.Second)
	defer cancel()
	_, err = Ask[string](ctx, root.Registry(), "counter", get{})
	require.ErrorIs(t, err, ErrUnexpectedReply)
}

func TestRegistry_Broadcast(t *testing.T) {
	root := newTestRoot(t)
	for _, name := range []string{"c1", "c2"} {
		_, err := NewBuilder[*counter](root).
			WithState(&counter{}).
			WithName(name).
			WithDispatcher("counters").
			Build()
		require.NoError(t, err)
	}

	n, err := root.Registry().Broadcast(t.Context(), "counters", inc{By: 3})
	require.NoError(t, err)
	require.Equal(t, 2, n)

	require.Equal(t, 3, ask[int](t, root.Registry(), "c1", get{}))
	require.Equal(t, 3, ask[int](t, root.Registry(), "c2", get{}))

	n, err = root.Registry().Broadcast(t.Context(), "nobody", inc{By: 1})
	require.NoError(t, err)
	require.Zero(t, n)
}
