package connmgr

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/trvinh99/redis-actor/core/actor"
	"github.com/trvinh99/redis-actor/core/metrics"
	"github.com/trvinh99/redis-actor/ports/kv"
)

type harness struct {
	root   *actor.Supervisor
	actor  *actor.Actor[*Redis]
	client *Client
}

func start(t *testing.T, d kv.Dialer, urls []string, opts ...Option) harness {
	t.Helper()
	root := actor.NewSupervisor(actor.SupervisorOptions{Context: t.Context()})
	t.Cleanup(root.Stop)

	a, err := Start(root, urls, append([]Option{WithDialer(d)}, opts...)...)
	require.NoError(t, err)
	c := NewClient(root.Registry(), ClientOptions{Timeout: 500 * time.Millisecond})
	return harness{root: root, actor: a, client: c}
}

func (h harness) ready(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.client.WaitReady(ctx))
}

func (h harness) status(t *testing.T) Status {
	t.Helper()
	s, err := h.client.Status(t.Context())
	require.NoError(t, err)
	return s
}

func TestStart_ConnectsOnStartup(t *testing.T) {
	net := kv.NewMemNetwork()
	net.Server("mem://a")
	net.Server("mem://b")
	h := start(t, net, []string{"mem://a", "mem://b"})
	h.ready(t)

	want := Status{
		State:   Initialized,
		URLs:    []string{"mem://a", "mem://b"},
		Version: 1,
		Pool:    PoolStatus{MaxSize: 15, Connections: 1, Idle: 1},
	}
	if diff := cmp.Diff(want, h.status(t)); diff != "" {
		t.Fatalf("status mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, "redis_actor", h.actor.Address())
}

func TestRoundTrip(t *testing.T) {
	net := kv.NewMemNetwork()
	net.Server("mem://a")
	h := start(t, net, []string{"mem://a"})
	h.ready(t)
	ctx := t.Context()

	for _, v := range [][]byte{[]byte("hello"), {0, 1, 2, 255}, []byte("hello again")} {
		require.NoError(t, h.client.Insert(ctx, "k", v, 0))
		got, err := h.client.Query(ctx, "k")
		require.NoError(t, err)
		require.Equal(t, v, got)
	}

	require.NoError(t, h.client.Delete(ctx, "k"))
	_, err := h.client.Query(ctx, "k")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestScenario_ConnectInsertReconnectDelete(t *testing.T) {
	net := kv.NewMemNetwork()
	a, b := net.Server("node-a"), net.Server("node-b")
	h := start(t, net, []string{"node-a"})
	h.ready(t)
	ctx := t.Context()

	s := h.status(t)
	require.Equal(t, Initialized, s.State)
	require.Equal(t, []string{"node-a"}, s.URLs)

	require.NoError(t, h.client.Insert(ctx, "k", []byte("hello"), 0))
	v, err := h.client.Query(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "hello", string(v))

	require.NoError(t, h.client.Reconnect(ctx, []string{"node-b"}))
	require.Eventually(t, func() bool {
		s := h.status(t)
		return s.State == Initialized && cmp.Equal(s.URLs, []string{"node-b"})
	}, time.Second, 5*time.Millisecond)

	// the pool now points at node-b
	_, err = h.client.Query(ctx, "k")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, h.client.Insert(ctx, "k2", []byte("on b"), 0))
	_, err = h.client.Query(ctx, "k2")
	require.NoError(t, err)
	_, onA := a.Lookup("k2")
	require.False(t, onA)
	_, onB := b.Lookup("k2")
	require.True(t, onB)

	require.NoError(t, h.client.Delete(ctx, "k2"))
	_, err = h.client.Query(ctx, "k2")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestQuery_UninitializedTimesOut(t *testing.T) {
	net := kv.NewMemNetwork()
	rec := newRecorder()
	h := start(t, net, []string{"mem://nowhere"}, WithMetrics(rec))

	require.Eventually(t, func() bool { return h.status(t).LastError != "" }, time.Second, 5*time.Millisecond)
	s := h.status(t)
	require.Equal(t, Uninitialized, s.State)
	require.Contains(t, s.LastError, ErrPool.Error())
	require.Contains(t, s.LastError, kv.ErrUnreachable.Error())

	require.NoError(t, h.client.Insert(t.Context(), "k", []byte("v"), 0))
	_, err := h.client.Query(t.Context(), "k")
	require.ErrorIs(t, err, ErrTimeout)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 1, rec.count("insert", "dropped"))
	require.Equal(t, 1, rec.count("query", "dropped"))
	require.Equal(t, 1, rec.pools(false))

	// the server shows up and a new connect recovers
	srv := net.Server("mem://late")
	require.NoError(t, h.client.Connect(t.Context(), []string{"mem://late"}))
	h.ready(t)
	require.NoError(t, h.client.Insert(t.Context(), "k", []byte("v"), 0))
	v, err := h.client.Query(t.Context(), "k")
	require.NoError(t, err)
	require.Equal(t, "v", string(v))
	require.Equal(t, 1, srv.Len())
	require.Empty(t, h.status(t).LastError)
}

func TestReconnect_FailureKeepsPool(t *testing.T) {
	net := kv.NewMemNetwork()
	net.Server("node-a")
	h := start(t, net, []string{"node-a"})
	h.ready(t)

	require.NoError(t, h.client.Reconnect(t.Context(), []string{"node-missing"}))
	require.Eventually(t, func() bool { return h.status(t).LastError != "" }, time.Second, 5*time.Millisecond)

	s := h.status(t)
	require.Equal(t, Initialized, s.State)
	require.Equal(t, []string{"node-a"}, s.URLs)
	require.NoError(t, h.client.Insert(t.Context(), "k", []byte("v"), 0))
	_, err := h.client.Query(t.Context(), "k")
	require.NoError(t, err)
}

func TestUnknownMessage_KeepsLoop(t *testing.T) {
	net := kv.NewMemNetwork()
	net.Server("mem://a")
	h := start(t, net, []string{"mem://a"})
	h.ready(t)

	type bogus struct{ X int }
	require.NoError(t, h.root.Registry().Tell(t.Context(), h.actor.Address(), bogus{X: 1}))
	require.NoError(t, h.root.Registry().Tell(t.Context(), h.actor.Address(), "noise"))
	_, err := h.root.Registry().Ask(shortContext(t), h.actor.Address(), 42)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, h.client.Insert(t.Context(), "k", []byte("still here"), 0))
	v, err := h.client.Query(t.Context(), "k")
	require.NoError(t, err)
	require.Equal(t, "still here", string(v))
}

func TestInsert_Expire(t *testing.T) {
	net := kv.NewMemNetwork()
	srv := net.Server("mem://a")
	var mu sync.Mutex
	now := time.Unix(1000, 0)
	srv.SetClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	})
	h := start(t, net, []string{"mem://a"})
	h.ready(t)

	require.NoError(t, h.client.Insert(t.Context(), "k", []byte("v"), 10*time.Second))
	_, err := h.client.Query(t.Context(), "k")
	require.NoError(t, err)

	mu.Lock()
	now = now.Add(10 * time.Second)
	mu.Unlock()
	_, err = h.client.Query(t.Context(), "k")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestQuery_StoreUnavailable(t *testing.T) {
	net := kv.NewMemNetwork()
	srv := net.Server("mem://a")
	rec := newRecorder()
	h := start(t, net, []string{"mem://a"}, WithMetrics(rec), WithConnectionTimeout(200*time.Millisecond))
	h.ready(t)

	srv.SetDown(true)
	_, err := h.client.Query(t.Context(), "k")
	require.ErrorIs(t, err, ErrUnavailable)
	require.Equal(t, 1, rec.count("query", "unavailable"))

	require.NoError(t, h.client.Insert(t.Context(), "k", []byte("v"), 0))
	require.Eventually(t, func() bool {
		return rec.count("insert", "error") == 1
	}, time.Second, 5*time.Millisecond)
	srv.SetDown(false)
	_, err = h.client.Query(t.Context(), "k")
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, 1, rec.count("insert", "error"))
	require.Equal(t, 1, rec.count("query", "absent"))
}

func TestAuth_Forwarded(t *testing.T) {
	net := kv.NewMemNetwork()
	net.Server("mem://a").RequireAuth(kv.UserPass("app", "secret"))

	h := start(t, net, []string{"mem://a"}, WithAuth(kv.UserPass("app", "secret")))
	h.ready(t)

	other := start(t, net, []string{"mem://a"}, WithName("wrong_auth"))
	wrong := NewClient(other.root.Registry(), ClientOptions{Address: "wrong_auth"})
	require.Eventually(t, func() bool {
		s, err := wrong.Status(t.Context())
		return err == nil && s.LastError != ""
	}, time.Second, 5*time.Millisecond)
	s, err := wrong.Status(t.Context())
	require.NoError(t, err)
	require.Contains(t, s.LastError, kv.ErrAuth.Error())
	require.NotContains(t, s.LastError, "secret")
}

// panicConn crashes the handler when asked for the key "boom".
type panicConn struct{ kv.Conn }

func (c panicConn) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "boom" {
		panic("connection exploded")
	}
	return c.Conn.Get(ctx, key)
}

func TestRestart_PreservesState(t *testing.T) {
	net := kv.NewMemNetwork()
	net.Server("mem://a")
	h := start(t, panicDialer(net), []string{"mem://a"})
	h.ready(t)
	before := h.status(t)

	require.NoError(t, h.client.Insert(t.Context(), "k", []byte("v"), 0))
	_, err := h.client.Query(t.Context(), "boom")
	require.ErrorIs(t, err, ErrTimeout)

	v, err := h.client.Query(t.Context(), "k")
	require.NoError(t, err)
	require.Equal(t, "v", string(v))

	// the restarted run resumes without connecting again
	after := h.status(t)
	require.Equal(t, Initialized, after.State)
	require.Equal(t, before.URLs, after.URLs)
	require.Equal(t, before.Version, after.Version)
	require.Equal(t, 1, after.Pool.Connections)
}

func panicDialer(net *kv.MemNetwork) kv.Dialer {
	return kv.DialFunc(func(ctx context.Context, urls []string, auth kv.Auth) (kv.Conn, error) {
		c, err := net.Dial(ctx, urls, auth)
		if err != nil {
			return nil, err
		}
		return panicConn{Conn: c}, nil
	})
}

func TestRestart_KeepsQueuedReconnect(t *testing.T) {
	net := kv.NewMemNetwork()
	net.Server("mem://a")
	net.Server("mem://b")
	h := start(t, panicDialer(net), []string{"mem://a"})
	h.ready(t)

	// the reconnected event is queued behind the crashing query
	require.NoError(t, h.client.Reconnect(t.Context(), []string{"mem://b"}))
	_, err := h.client.Query(t.Context(), "boom")
	require.ErrorIs(t, err, ErrTimeout)

	require.Eventually(t, func() bool {
		s, err := h.client.Status(t.Context())
		return err == nil && s.Version == 2
	}, time.Second, 5*time.Millisecond)
	require.Never(t, func() bool {
		s, err := h.client.Status(t.Context())
		return err != nil || s.Version != 2
	}, 100*time.Millisecond, 10*time.Millisecond)

	s := h.status(t)
	require.Equal(t, Initialized, s.State)
	require.Equal(t, []string{"mem://b"}, s.URLs)
}

// syncBuffer collects log output written from the actor goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) lines(msg string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, l := range strings.Split(b.buf.String(), "\n") {
		if strings.Contains(l, `"msg":"`+msg+`"`) {
			out = append(out, l)
		}
	}
	return out
}

func TestEventApplied_LogsAggregateOnce(t *testing.T) {
	net := kv.NewMemNetwork()
	net.Server("mem://a")
	buf := &syncBuffer{}
	h := start(t, net, []string{"mem://a"}, WithLogger(slog.New(slog.NewJSONHandler(buf, nil))))
	h.ready(t)

	require.Eventually(t, func() bool { return len(buf.lines("event applied")) == 1 }, time.Second, 5*time.Millisecond)
	line := buf.lines("event applied")[0]
	require.Equal(t, 1, strings.Count(line, `"aggregate":`), line)

	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &m))
	require.Equal(t, AggregateType, m["aggregate"])
	require.Equal(t, RedisServerConnected{URLs: []string{"mem://a"}}.EventType(), m["event_type"])
}

func TestStart_Failures(t *testing.T) {
	root := actor.NewSupervisor(actor.SupervisorOptions{Context: t.Context()})
	t.Cleanup(root.Stop)

	_, err := Start(root, []string{"mem://a"})
	require.ErrorIs(t, err, ErrNoDialer)

	net := kv.NewMemNetwork()
	_, err = Start(root, []string{"mem://a"}, WithDialer(net))
	require.NoError(t, err)
	_, err = Start(root, []string{"mem://a"}, WithDialer(net))
	require.ErrorIs(t, err, actor.ErrNameTaken)

	_, err = Start(root, nil, WithDialer(net), WithName("no_urls"))
	require.ErrorIs(t, err, kv.ErrNoURLs)
	require.NotContains(t, root.Registry().Names(), "no_urls")
}

func TestStart_DispatcherFollowsName(t *testing.T) {
	net := kv.NewMemNetwork()
	net.Server("mem://a")
	root := actor.NewSupervisor(actor.SupervisorOptions{Context: t.Context()})
	t.Cleanup(root.Stop)

	for _, name := range []string{"one", "two"} {
		_, err := Start(root, []string{"mem://a"}, WithDialer(net), WithName(name))
		require.NoError(t, err)
		c := NewClient(root.Registry(), ClientOptions{Address: name})
		ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
		require.NoError(t, c.WaitReady(ctx))
		cancel()
	}

	n, err := root.Registry().Broadcast(t.Context(), "one", "noise")
	require.NoError(t, err)
	require.Equal(t, 1, n)
	n, err = root.Registry().Broadcast(t.Context(), DefaultName, "noise")
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestClient_Validation(t *testing.T) {
	c := NewClient(actor.NewRegistry(), ClientOptions{})
	require.Equal(t, DefaultName, c.Address())
	ctx := t.Context()

	require.ErrorIs(t, c.Insert(ctx, "", nil, 0), ErrEmptyKey)
	require.ErrorIs(t, c.Delete(ctx, ""), ErrEmptyKey)
	_, err := c.Query(ctx, "")
	require.ErrorIs(t, err, ErrEmptyKey)
	require.ErrorIs(t, c.Connect(ctx, nil), kv.ErrNoURLs)
	require.ErrorIs(t, c.Reconnect(ctx, nil), kv.ErrNoURLs)

	require.ErrorIs(t, c.Insert(ctx, "k", nil, 0), actor.ErrNotRegistered)
	_, err = c.Query(ctx, "k")
	require.ErrorIs(t, err, actor.ErrNotRegistered)
	require.ErrorIs(t, c.WaitReady(ctx), actor.ErrNotRegistered)
}

func shortContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	t.Cleanup(cancel)
	return ctx
}

type recorder struct {
	mu       sync.Mutex
	outcomes map[[2]string]int
	built    map[bool]int
	pool     [2]int
}

func newRecorder() *recorder {
	return &recorder{outcomes: map[[2]string]int{}, built: map[bool]int{}}
}

func (r *recorder) OperationDuration(string) metrics.Timer { return metrics.NopTimer() }

func (r *recorder) OperationCompleted(op, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes[[2]string{op, outcome}]++
}

func (r *recorder) EventApplied(string) {}

func (r *recorder) PoolBuilt(ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.built[ok]++
}

func (r *recorder) PoolConnections(open, idle int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pool = [2]int{open, idle}
}

func (r *recorder) Initialized(bool) {}

func (r *recorder) count(op, outcome string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outcomes[[2]string{op, outcome}]
}

func (r *recorder) pools(ok bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.built[ok]
}

func (r *recorder) lastPool() [2]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pool
}

var _ Metrics = (*recorder)(nil)
