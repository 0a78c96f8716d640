package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/trvinh99/redis-actor/ports/kv"
)

// Schemes handled by the Dialer.
var Schemes = []string{"redis", "rediss"}

type (
	Options struct {
		DialTimeout  time.Duration
		ReadTimeout  time.Duration
		WriteTimeout time.Duration
		Log          *slog.Logger
	}

	// Dialer opens go-redis clients. One url gives a single node client,
	// several urls a cluster client seeded with every address.
	Dialer struct {
		opts Options
		log  *slog.Logger
	}

	conn struct {
		c      goredis.UniversalClient
		closed atomic.Bool
		broken atomic.Bool
	}
)

func NewDialer(opts Options) *Dialer {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 5 * time.Second
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	return &Dialer{opts: opts, log: opts.Log.With(slog.String("dialer", "redis"))}
}

// Register adds the dialer to mux for the redis schemes.
func (d *Dialer) Register(mux *kv.Mux) *kv.Mux {
	for _, s := range Schemes {
		mux.Handle(s, d)
	}
	return mux
}

func (d *Dialer) Dial(ctx context.Context, urls []string, auth kv.Auth) (kv.Conn, error) {
	client, err := d.client(urls, auth)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, classifyDial(err)
	}
	d.log.Debug("connected", slog.Any("urls", urls), slog.Any("auth", auth))
	return &conn{c: client}, nil
}

func (d *Dialer) client(urls []string, auth kv.Auth) (goredis.UniversalClient, error) {
	if len(urls) == 0 {
		return nil, kv.ErrNoURLs
	}
	parsed := make([]*goredis.Options, 0, len(urls))
	for _, u := range urls {
		o, err := goredis.ParseURL(u)
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", u, err)
		}
		parsed = append(parsed, o)
	}

	first := parsed[0]
	username, password := first.Username, first.Password
	if !auth.IsZero() {
		username, password = auth.Username, auth.Password
	}

	if len(parsed) == 1 {
		first.Username, first.Password = username, password
		first.PoolSize = 1
		first.DialTimeout = d.opts.DialTimeout
		first.ReadTimeout = d.opts.ReadTimeout
		first.WriteTimeout = d.opts.WriteTimeout
		return goredis.NewClient(first), nil
	}

	addrs := make([]string, 0, len(parsed))
	for _, o := range parsed {
		addrs = append(addrs, o.Addr)
	}
	return goredis.NewClusterClient(&goredis.ClusterOptions{
		Addrs:        addrs,
		Username:     username,
		Password:     password,
		TLSConfig:    first.TLSConfig,
		PoolSize:     1,
		DialTimeout:  d.opts.DialTimeout,
		ReadTimeout:  d.opts.ReadTimeout,
		WriteTimeout: d.opts.WriteTimeout,
	}), nil
}

func classifyDial(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "WRONGPASS") || strings.Contains(msg, "NOAUTH") {
		return fmt.Errorf("%w: %w", kv.ErrAuth, err)
	}
	return fmt.Errorf("%w: %w", kv.ErrUnreachable, err)
}

// track marks the connection broken on transport errors. Replies from the
// server, including a missing key, leave it usable.
func (c *conn) track(err error) error {
	if err == nil || errors.Is(err, goredis.Nil) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var rerr goredis.Error
	if errors.As(err, &rerr) {
		return err
	}
	c.broken.Store(true)
	return fmt.Errorf("%w: %w", kv.ErrUnreachable, err)
}

func (c *conn) check() error {
	if c.closed.Load() {
		return kv.ErrClosed
	}
	return nil
}

func (c *conn) Get(ctx context.Context, key string) ([]byte, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	v, err := c.c.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, kv.ErrNotFound
	}
	return v, c.track(err)
}

func (c *conn) Set(ctx context.Context, key string, value []byte) error {
	if err := c.check(); err != nil {
		return err
	}
	return c.track(c.c.Set(ctx, key, value, 0).Err())
}

func (c *conn) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := c.check(); err != nil {
		return err
	}
	return c.track(c.c.Expire(ctx, key, ttl).Err())
}

func (c *conn) Delete(ctx context.Context, key string) error {
	if err := c.check(); err != nil {
		return err
	}
	return c.track(c.c.Del(ctx, key).Err())
}

func (c *conn) Ping(ctx context.Context) error {
	if err := c.check(); err != nil {
		return err
	}
	return c.track(c.c.Ping(ctx).Err())
}

func (c *conn) IsOpen() bool { return !c.closed.Load() && !c.broken.Load() }

func (c *conn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.c.Close()
}

var (
	_ kv.Dialer = (*Dialer)(nil)
	_ kv.Conn   = (*conn)(nil)
)
