package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	natsadapter "github.com/trvinh99/redis-actor/adapters/nats"
	redisadapter "github.com/trvinh99/redis-actor/adapters/redis"
	"github.com/trvinh99/redis-actor/core/app"
	"github.com/trvinh99/redis-actor/core/connmgr"
	"github.com/trvinh99/redis-actor/ports/kv"
)

func startApp(t *testing.T, urls []string, auth kv.Auth) *app.App {
	t.Helper()
	a, err := app.Run(app.Config{
		Context:      t.Context(),
		URLs:         urls,
		Auth:         auth,
		PoolSize:     4,
		QueryTimeout: 2 * time.Second,
		NATSBucket:   "integration",
	})
	require.NoError(t, err)
	t.Cleanup(a.Stop)

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()
	require.NoError(t, a.WaitReady(ctx))
	return a
}

func TestIntegration_Redis(t *testing.T) {
	if testing.Short() {
		t.Skip("needs docker")
	}
	first := redisadapter.NewTestContainer(t)
	second := redisadapter.NewTestContainer(t)

	a := startApp(t, []string{first}, kv.NoAuth())
	c := a.Client()
	ctx := t.Context()

	require.NoError(t, c.Insert(ctx, "user:1", []byte("alice"), 0))
	v, err := c.Query(ctx, "user:1")
	require.NoError(t, err)
	require.Equal(t, []byte("alice"), v)

	require.NoError(t, c.Insert(ctx, "session", []byte("s"), time.Second))
	require.Eventually(t, func() bool {
		_, err := c.Query(ctx, "session")
		return errors.Is(err, connmgr.ErrNotFound)
	}, 5*time.Second, 100*time.Millisecond)

	require.NoError(t, c.Reconnect(ctx, []string{second}))
	_, err = c.Query(ctx, "user:1")
	require.ErrorIs(t, err, connmgr.ErrNotFound)

	st, err := c.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, connmgr.Initialized, st.State)
	require.Equal(t, []string{second}, st.URLs)
	require.EqualValues(t, 2, st.Version)
}

func TestIntegration_RedisAuth(t *testing.T) {
	if testing.Short() {
		t.Skip("needs docker")
	}
	url := redisadapter.NewTestContainer(t, "--requirepass", "secret")

	a := startApp(t, []string{url}, kv.UserPass("default", "secret"))
	require.NoError(t, a.Client().Insert(t.Context(), "k", []byte("v"), 0))
	v, err := a.Client().Query(t.Context(), "k")
	require.NoError(t, err)
	require.Equal(t, []byte("v"), v)
}

func TestIntegration_NATS(t *testing.T) {
	if testing.Short() {
		t.Skip("needs docker")
	}
	url := natsadapter.NewTestContainer(t)

	a := startApp(t, []string{url}, kv.NoAuth())
	c := a.Client()
	ctx := t.Context()

	require.NoError(t, c.Insert(ctx, "user.1", []byte("bob"), 0))
	v, err := c.Query(ctx, "user.1")
	require.NoError(t, err)
	require.Equal(t, []byte("bob"), v)

	require.NoError(t, c.Delete(ctx, "user.1"))
	_, err = c.Query(ctx, "user.1")
	require.ErrorIs(t, err, connmgr.ErrNotFound)
}
