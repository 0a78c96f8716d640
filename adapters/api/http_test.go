package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trvinh99/redis-actor/core/actor"
	"github.com/trvinh99/redis-actor/core/connmgr"
	"github.com/trvinh99/redis-actor/ports/kv"
)

type fixture struct {
	srv *httptest.Server
	net *kv.MemNetwork
	c   *connmgr.Client
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	net := kv.NewMemNetwork()
	net.Server("mem://a")
	net.Server("mem://b")

	root := actor.NewSupervisor(actor.SupervisorOptions{Context: t.Context()})
	t.Cleanup(root.Stop)
	_, err := connmgr.Start(root, []string{"mem://a"}, connmgr.WithDialer(net))
	require.NoError(t, err)

	c := connmgr.NewClient(root.Registry(), connmgr.ClientOptions{Timeout: 500 * time.Millisecond})
	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.WaitReady(ctx))

	srv := httptest.NewServer(NewHandler(c, Options{MaxValueSize: 16}))
	t.Cleanup(srv.Close)
	return fixture{srv: srv, net: net, c: c}
}

func (f fixture) do(t *testing.T, method, path, body string) (int, string) {
	t.Helper()
	req, err := http.NewRequestWithContext(t.Context(), method, f.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	b, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res.StatusCode, string(b)
}

func TestHTTP_KV(t *testing.T) {
	f := newFixture(t)

	code, _ := f.do(t, http.MethodPut, "/kv/greeting", "hello")
	require.Equal(t, http.StatusAccepted, code)

	code, body := f.do(t, http.MethodGet, "/kv/greeting", "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "hello", body)

	code, _ = f.do(t, http.MethodDelete, "/kv/greeting", "")
	require.Equal(t, http.StatusAccepted, code)

	code, body = f.do(t, http.MethodGet, "/kv/greeting", "")
	require.Equal(t, http.StatusNotFound, code)
	assert.Contains(t, body, "not found")
}

func TestHTTP_InsertValidation(t *testing.T) {
	f := newFixture(t)

	code, _ := f.do(t, http.MethodPut, "/kv/k?ttl=soon", "v")
	require.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(t, http.MethodPut, "/kv/k", strings.Repeat("x", 17))
	require.Equal(t, http.StatusRequestEntityTooLarge, code)

	code, _ = f.do(t, http.MethodPut, "/kv/k?ttl=1m", "v")
	require.Equal(t, http.StatusAccepted, code)
	code, body := f.do(t, http.MethodGet, "/kv/k", "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "v", body)
}

func TestHTTP_StatusAndReconnect(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, code)
	var st connmgr.Status
	require.NoError(t, json.Unmarshal([]byte(body), &st))
	require.Equal(t, connmgr.Initialized, st.State)
	require.Equal(t, []string{"mem://a"}, st.URLs)

	code, _ = f.do(t, http.MethodPost, "/reconnect", `{"urls":["mem://b"]}`)
	require.Equal(t, http.StatusAccepted, code)
	require.Eventually(t, func() bool {
		s, err := f.c.Status(t.Context())
		return err == nil && len(s.URLs) == 1 && s.URLs[0] == "mem://b"
	}, time.Second, 10*time.Millisecond)

	code, _ = f.do(t, http.MethodPost, "/reconnect", `{"urls":[]}`)
	require.Equal(t, http.StatusBadRequest, code)
	code, _ = f.do(t, http.MethodPost, "/connect", `not json`)
	require.Equal(t, http.StatusBadRequest, code)
}

func TestHTTP_ControlBodyIgnoresValueLimit(t *testing.T) {
	f := newFixture(t)
	f.net.Server("mem://c")

	body := `{"urls":["mem://b","mem://c"]}`
	require.Greater(t, len(body), 16)
	code, _ := f.do(t, http.MethodPost, "/reconnect", body)
	require.Equal(t, http.StatusAccepted, code)
	require.Eventually(t, func() bool {
		s, err := f.c.Status(t.Context())
		return err == nil && len(s.URLs) == 2 && s.URLs[1] == "mem://c"
	}, time.Second, 10*time.Millisecond)

	code, _ = f.do(t, http.MethodPost, "/connect", `{"urls":["`+strings.Repeat("x", MaxControlBodySize)+`"]}`)
	require.Equal(t, http.StatusBadRequest, code)
}

func TestHTTP_StoreDown(t *testing.T) {
	f := newFixture(t)
	f.net.Server("mem://a").SetDown(true)

	code, _ := f.do(t, http.MethodGet, "/kv/k", "")
	require.Equal(t, http.StatusServiceUnavailable, code)
}
