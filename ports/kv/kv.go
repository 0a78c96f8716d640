package kv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrNoURLs        = errors.New("no server urls")
	ErrUnreachable   = errors.New("server unreachable")
	ErrClosed        = errors.New("connection closed")
	ErrUnsupported   = errors.New("operation not supported")
	ErrAuth          = errors.New("authentication failed")
	ErrUnknownScheme = errors.New("unknown url scheme")
)

type (
	// Conn is one pooled connection to a key-value server.
	Conn interface {
		// Get returns ErrNotFound when the key is absent.
		Get(ctx context.Context, key string) ([]byte, error)
		Set(ctx context.Context, key string, value []byte) error
		// Expire sets a time to live on an existing key. Missing keys are
		// ignored.
		Expire(ctx context.Context, key string, ttl time.Duration) error
		Delete(ctx context.Context, key string) error
		// Ping performs a round trip.
		Ping(ctx context.Context) error
		// IsOpen is a cheap local check; a connection that is not open is
		// dropped by the pool.
		IsOpen() bool
		Close() error
	}

	// Dialer opens connections to a server or cluster given by urls.
	Dialer interface {
		Dial(ctx context.Context, urls []string, auth Auth) (Conn, error)
	}

	DialFunc func(ctx context.Context, urls []string, auth Auth) (Conn, error)

	// Auth holds optional credentials. The zero value means no auth.
	Auth struct {
		Username string `json:"username,omitempty"`
		Password string `json:"password,omitempty"`
	}
)

func (f DialFunc) Dial(ctx context.Context, urls []string, auth Auth) (Conn, error) {
	return f(ctx, urls, auth)
}

func NoAuth() Auth { return Auth{} }

func UserPass(username, password string) Auth {
	return Auth{Username: username, Password: password}
}

func (a Auth) IsZero() bool { return a == Auth{} }

func (a Auth) String() string {
	if a.IsZero() {
		return "none"
	}
	return "userpass(" + a.Username + ")"
}

// LogValue keeps passwords out of logs.
func (a Auth) LogValue() slog.Value { return slog.StringValue(a.String()) }

// Mux dials by the url scheme. All urls of one dial must share a scheme.
type Mux struct {
	mu      sync.RWMutex
	dialers map[string]Dialer
}

func NewMux() *Mux {
	return &Mux{dialers: map[string]Dialer{}}
}

// Handle registers d for scheme and returns the mux.
func (m *Mux) Handle(scheme string, d Dialer) *Mux {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dialers[scheme] = d
	return m
}

func (m *Mux) Dial(ctx context.Context, urls []string, auth Auth) (Conn, error) {
	scheme, err := Scheme(urls)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	d, ok := m.dialers[scheme]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownScheme, scheme)
	}
	return d.Dial(ctx, urls, auth)
}

// Scheme returns the scheme shared by urls.
func Scheme(urls []string) (string, error) {
	if len(urls) == 0 {
		return "", ErrNoURLs
	}
	var scheme string
	for _, raw := range urls {
		u, err := url.Parse(raw)
		if err != nil {
			return "", fmt.Errorf("parse url %q: %w", raw, err)
		}
		if scheme != "" && u.Scheme != scheme {
			return "", fmt.Errorf("%w: mixed schemes %s and %s", ErrUnknownScheme, scheme, u.Scheme)
		}
		scheme = u.Scheme
	}
	return scheme, nil
}

// PoolManager adapts a Dialer to the pool manager contract for one fixed
// set of urls.
type PoolManager struct {
	Dialer Dialer
	URLs   []string
	Auth   Auth
}

func (m PoolManager) Connect(ctx context.Context) (Conn, error) {
	return m.Dialer.Dial(ctx, m.URLs, m.Auth)
}

func (m PoolManager) IsValid(ctx context.Context, c Conn) error { return c.Ping(ctx) }
func (m PoolManager) HasBroken(c Conn) bool                     { return !c.IsOpen() }
func (m PoolManager) Close(c Conn) error                        { return c.Close() }
