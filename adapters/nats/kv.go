package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"golang.org/x/sync/singleflight"

	"github.com/trvinh99/redis-actor/ports/kv"
)

// Scheme handled by the KV dialer.
const Scheme = "nats"

type (
	KVOptions struct {
		// Bucket is the JetStream key-value bucket. Defaults to "redis_actor".
		Bucket  string
		Storage jetstream.StorageType
		Log     *slog.Logger
	}

	// KVDialer serves kv connections from a JetStream key-value bucket.
	// Connections dialed with the same urls and credentials share one NATS
	// connection.
	KVDialer struct {
		opts KVOptions
		log  *slog.Logger

		mu         sync.Mutex
		connectors map[string]Connector
		buckets    singleflight.Group
	}

	kvConn struct {
		nc      *natsgo.Conn
		kv      jetstream.KeyValue
		release closeFunc
		closed  atomic.Bool
	}
)

func NewKVDialer(opts KVOptions) *KVDialer {
	if opts.Bucket == "" {
		opts.Bucket = "redis_actor"
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	return &KVDialer{
		opts:       opts,
		log:        opts.Log.With(slog.String("dialer", "nats"), slog.String("bucket", opts.Bucket)),
		connectors: map[string]Connector{},
	}
}

// Register adds the dialer to mux for the nats scheme.
func (d *KVDialer) Register(mux *kv.Mux) *kv.Mux {
	return mux.Handle(Scheme, d)
}

func (d *KVDialer) connector(urls []string, auth kv.Auth) Connector {
	key := strings.Join(urls, ",") + "|" + auth.Username + "|" + auth.Password
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.connectors[key]
	if !ok {
		c = ReuseConnection(ConnectURLs(urls, auth))
		d.connectors[key] = c
	}
	return c
}

func (d *KVDialer) Dial(ctx context.Context, urls []string, auth kv.Auth) (kv.Conn, error) {
	if len(urls) == 0 {
		return nil, kv.ErrNoURLs
	}
	nc, release, err := d.connector(urls, auth)()
	if err != nil {
		return nil, err
	}

	js, err := jetstream.New(nc)
	if err != nil {
		release()
		return nil, err
	}

	// pool connections dialed together create the bucket once
	v, err, _ := d.buckets.Do(nc.ConnectedUrlRedacted()+"/"+d.opts.Bucket, func() (any, error) {
		return js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:  d.opts.Bucket,
			Storage: d.opts.Storage,
		})
	})
	if err != nil {
		release()
		return nil, fmt.Errorf("%w: bucket %s: %w", kv.ErrUnreachable, d.opts.Bucket, err)
	}
	d.log.Debug("connected", slog.Any("urls", urls), slog.Any("auth", auth))
	return &kvConn{nc: nc, kv: v.(jetstream.KeyValue), release: release}, nil
}

func (c *kvConn) check() error {
	if c.closed.Load() {
		return kv.ErrClosed
	}
	return nil
}

func (c *kvConn) Get(ctx context.Context, key string) ([]byte, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	e, err := c.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, kv.ErrNotFound
		}
		return nil, err
	}
	return e.Value(), nil
}

func (c *kvConn) Set(ctx context.Context, key string, value []byte) error {
	if err := c.check(); err != nil {
		return err
	}
	_, err := c.kv.Put(ctx, key, value)
	return err
}

// Expire is not available on a JetStream bucket without per-message TTL.
func (c *kvConn) Expire(context.Context, string, time.Duration) error {
	if err := c.check(); err != nil {
		return err
	}
	return kv.ErrUnsupported
}

func (c *kvConn) Delete(ctx context.Context, key string) error {
	if err := c.check(); err != nil {
		return err
	}
	err := c.kv.Delete(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil
	}
	return err
}

func (c *kvConn) Ping(ctx context.Context) error {
	if err := c.check(); err != nil {
		return err
	}
	if err := c.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", kv.ErrUnreachable, err)
	}
	return nil
}

func (c *kvConn) IsOpen() bool { return !c.closed.Load() && c.nc.IsConnected() }

func (c *kvConn) Close() error {
	if !c.closed.Swap(true) {
		c.release()
	}
	return nil
}

var (
	_ kv.Dialer = (*KVDialer)(nil)
	_ kv.Conn   = (*kvConn)(nil)
)
