package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/trvinh99/redis-actor/core/connmgr"
	"github.com/trvinh99/redis-actor/ports/kv"
)

func runApp(t *testing.T, cfg Config) *App {
	t.Helper()
	cfg.Context = t.Context()
	app, err := Run(cfg)
	require.NoError(t, err)
	t.Cleanup(app.Stop)

	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()
	require.NoError(t, app.WaitReady(ctx))
	return app
}

func TestApp(t *testing.T) {
	net := kv.NewMemNetwork()
	srv := net.Server("mem://a")

	app := runApp(t, Config{URLs: []string{"mem://a"}, Dialer: net})
	c := app.Client()

	require.NoError(t, c.Insert(t.Context(), "user:1", []byte("alice"), 0))
	v, err := c.Query(t.Context(), "user:1")
	require.NoError(t, err)
	require.Equal(t, []byte("alice"), v)

	require.NoError(t, c.Delete(t.Context(), "user:1"))
	_, err = c.Query(t.Context(), "user:1")
	require.ErrorIs(t, err, connmgr.ErrNotFound)
	require.Equal(t, 0, srv.Len())
}

func TestApp_Defaults(t *testing.T) {
	app, err := New(Config{URLs: []string{"redis://localhost:6379"}})
	require.NoError(t, err)
	require.NotNil(t, app.Registry())
	require.Equal(t, connmgr.DefaultName, app.Client().Address())
	require.IsType(t, &kv.Mux{}, app.cfg.Dialer)

	require.ErrorIs(t, app.WaitReady(t.Context()), ErrNotRunning)
}

func TestApp_InvalidURLs(t *testing.T) {
	_, err := New(Config{})
	require.ErrorIs(t, err, kv.ErrNoURLs)

	_, err = New(Config{URLs: []string{"redis://a", "nats://b"}})
	require.ErrorIs(t, err, kv.ErrUnknownScheme)
}

func TestApp_Name(t *testing.T) {
	net := kv.NewMemNetwork()
	net.Server("mem://a")

	app := runApp(t, Config{URLs: []string{"mem://a"}, Dialer: net, Name: "cache"})
	require.Equal(t, "cache", app.Actor().Address())
	require.Contains(t, app.Registry().Names(), "cache")
}

func TestApp_Shutdown(t *testing.T) {
	net := kv.NewMemNetwork()
	net.Server("mem://a")

	app, err := Run(Config{Context: t.Context(), URLs: []string{"mem://a"}, Dialer: net})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(t.Context(), time.Second)
	defer cancel()
	require.NoError(t, app.Shutdown(ctx))

	select {
	case <-app.Done():
	default:
		t.Fatal("Done channel should be closed")
	}
	require.NotContains(t, app.Registry().Names(), connmgr.DefaultName)
}
