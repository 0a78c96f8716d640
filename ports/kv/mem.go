package kv

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

type (
	// MemNetwork is an in-process set of MemServers addressed by url.
	MemNetwork struct {
		mu      sync.Mutex
		servers map[string]*MemServer
	}

	// MemServer is an in-memory key-value server with expiry.
	MemServer struct {
		mu    sync.Mutex
		data  map[string]memEntry
		down  bool
		auth  Auth
		now   func() time.Time
		dials atomic.Int64
	}

	memEntry struct {
		value     []byte
		expiresAt time.Time
	}

	memConn struct {
		srv    *MemServer
		closed atomic.Bool
	}
)

func NewMemNetwork() *MemNetwork {
	return &MemNetwork{servers: map[string]*MemServer{}}
}

// Server returns the server listening on url, starting one if needed.
func (n *MemNetwork) Server(url string) *MemServer {
	n.mu.Lock()
	defer n.mu.Unlock()
	s, ok := n.servers[url]
	if !ok {
		s = NewMemServer()
		n.servers[url] = s
	}
	return s
}

func (n *MemNetwork) lookup(url string) (*MemServer, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	s, ok := n.servers[url]
	return s, ok
}

// Dial connects to the first reachable server among urls.
func (n *MemNetwork) Dial(_ context.Context, urls []string, auth Auth) (Conn, error) {
	if len(urls) == 0 {
		return nil, ErrNoURLs
	}
	for _, u := range urls {
		s, ok := n.lookup(u)
		if !ok || s.isDown() {
			continue
		}
		if err := s.checkAuth(auth); err != nil {
			return nil, err
		}
		s.dials.Add(1)
		return &memConn{srv: s}, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrUnreachable, urls)
}

func NewMemServer() *MemServer {
	return &MemServer{data: map[string]memEntry{}, now: time.Now}
}

// SetDown makes the server unreachable; connections to it report broken.
func (s *MemServer) SetDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = down
}

// RequireAuth rejects dials with other credentials.
func (s *MemServer) RequireAuth(a Auth) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auth = a
}

// SetClock replaces the server's time source.
func (s *MemServer) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Dials counts accepted connections.
func (s *MemServer) Dials() int64 { return s.dials.Load() }

// Len is the number of live keys.
func (s *MemServer) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.data {
		if _, ok := s.liveLocked(k); ok {
			n++
		}
	}
	return n
}

// Lookup reads a key directly, bypassing connections.
func (s *MemServer) Lookup(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.liveLocked(key)
	return e.value, ok
}

func (s *MemServer) isDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.down
}

func (s *MemServer) checkAuth(a Auth) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.auth.IsZero() && s.auth != a {
		return fmt.Errorf("%w: %s", ErrAuth, a)
	}
	return nil
}

func (s *MemServer) liveLocked(key string) (memEntry, bool) {
	e, ok := s.data[key]
	if !ok {
		return e, false
	}
	if !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt) {
		delete(s.data, key)
		return memEntry{}, false
	}
	return e, true
}

// do runs f under the server lock when the server is up.
func (s *MemServer) do(f func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return ErrUnreachable
	}
	return f()
}

func (c *memConn) check() error {
	if c.closed.Load() {
		return ErrClosed
	}
	return nil
}

func (c *memConn) Get(ctx context.Context, key string) (out []byte, err error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	err = c.srv.do(func() error {
		e, ok := c.srv.liveLocked(key)
		if !ok {
			return ErrNotFound
		}
		out = append([]byte(nil), e.value...)
		return nil
	})
	return out, err
}

func (c *memConn) Set(ctx context.Context, key string, value []byte) error {
	if err := c.check(); err != nil {
		return err
	}
	return c.srv.do(func() error {
		c.srv.data[key] = memEntry{value: append([]byte(nil), value...)}
		return nil
	})
}

func (c *memConn) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := c.check(); err != nil {
		return err
	}
	return c.srv.do(func() error {
		e, ok := c.srv.liveLocked(key)
		if !ok {
			return nil
		}
		e.expiresAt = c.srv.now().Add(ttl)
		c.srv.data[key] = e
		return nil
	})
}

func (c *memConn) Delete(ctx context.Context, key string) error {
	if err := c.check(); err != nil {
		return err
	}
	return c.srv.do(func() error {
		delete(c.srv.data, key)
		return nil
	})
}

func (c *memConn) Ping(ctx context.Context) error {
	if err := c.check(); err != nil {
		return err
	}
	return c.srv.do(func() error { return nil })
}

func (c *memConn) IsOpen() bool { return !c.closed.Load() && !c.srv.isDown() }

func (c *memConn) Close() error {
	c.closed.Store(true)
	return nil
}

var (
	_ Dialer = (*MemNetwork)(nil)
	_ Conn   = (*memConn)(nil)
)
