package actor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_Exclusive(t *testing.T) {
	type data struct{ Value int }
	s := NewState(&data{})

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.With(t.Context(), func(d *data) error {
				v := d.Value
				time.Sleep(time.Microsecond)
				d.Value = v + 1
				return nil
			}))
		}()
	}
	wg.Wait()

	v, err := Read(t.Context(), s, func(d *data) int { return d.Value })
	require.NoError(t, err)
	require.Equal(t, 50, v)
}

func TestState_LockHonorsContext(t *testing.T) {
	s := NewState(1)
	_, unlock, err := s.Lock(t.Context())
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	_, _, err = s.Lock(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestState_WithReleasesOnPanic(t *testing.T) {
	s := NewState(1)
	require.Panics(t, func() {
		_ = s.With(t.Context(), func(int) error { panic("boom") })
	})
	require.NoError(t, s.With(t.Context(), func(int) error { return nil }))
}

func TestState_UpgradeWhileOwned(t *testing.T) {
	s := NewState("hello")
	weak := s.Downgrade()
	require.True(t, weak.Alive())

	up := weak.Upgrade()
	require.Equal(t, s.ID(), up.ID())
	v, err := Read(t.Context(), up, func(v string) string { return v })
	require.NoError(t, err)
	require.Equal(t, "hello", v)

	// the owner goes away, the upgraded handle keeps the cell alive
	s.Release()
	require.True(t, weak.Alive())
	up.Release()
	require.False(t, weak.Alive())
}

func TestState_UpgradeAfterOwnerGone(t *testing.T) {
	s := NewState(42)
	weak := s.Downgrade()
	s.Release()
	s.Release() // idempotent

	_, err := weak.TryUpgrade()
	require.ErrorIs(t, err, ErrStateGone)

	defer func() {
		r := recover()
		require.NotNil(t, r)
		err, ok := r.(error)
		require.True(t, ok)
		require.True(t, errors.Is(err, ErrStateGone))
	}()
	weak.Upgrade()
}

func TestState_Clone(t *testing.T) {
	s := NewState(1)
	c := s.Clone()
	weak := s.Downgrade()

	s.Release()
	require.True(t, weak.Alive())
	c.Release()
	require.False(t, weak.Alive())
}

func TestWeakState_Zero(t *testing.T) {
	var w WeakState[int]
	require.False(t, w.Alive())
	_, err := w.TryUpgrade()
	require.ErrorIs(t, err, ErrStateGone)
}
