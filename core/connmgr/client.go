package connmgr

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/trvinh99/redis-actor/core/actor"
	"github.com/trvinh99/redis-actor/ports/kv"
)

const (
	DefaultQueryTimeout = 5 * time.Second
	readyPollInterval   = 20 * time.Millisecond
)

type (
	ClientOptions struct {
		// Address of the connection manager. Defaults to DefaultName.
		Address string
		// Timeout bounds questions when ctx has no earlier deadline.
		// Defaults to DefaultQueryTimeout.
		Timeout time.Duration
	}

	// Client is the caller-facing facade. Each call translates to one
	// message; errors of the send itself are returned.
	Client struct {
		reg     *actor.Registry
		address string
		timeout time.Duration
	}
)

func NewClient(reg *actor.Registry, opts ClientOptions) *Client {
	if opts.Address == "" {
		opts.Address = DefaultName
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultQueryTimeout
	}
	return &Client{reg: reg, address: opts.Address, timeout: opts.Timeout}
}

func (c *Client) Address() string { return c.address }

// Insert writes value under key, fire-and-forget. A positive expire sets a
// time to live.
func (c *Client) Insert(ctx context.Context, key string, value []byte, expire time.Duration) error {
	if key == "" {
		return ErrEmptyKey
	}
	return c.reg.Tell(ctx, c.address, Insert{Key: key, Value: slices.Clone(value), Expire: expire})
}

// Delete removes key, fire-and-forget.
func (c *Client) Delete(ctx context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	return c.reg.Tell(ctx, c.address, Delete{Key: key})
}

// Query returns the value under key. It returns ErrNotFound when the key is
// absent, ErrUnavailable when the store could not be reached and ErrTimeout
// when no reply came, which is the case before the manager is Initialized.
func (c *Client) Query(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	res, err := ask[QueryResult](ctx, c, Query{Key: key})
	if err != nil {
		return nil, err
	}
	switch res.Outcome {
	case Found:
		return res.Value, nil
	case Absent:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, res.Err)
	}
}

// Connect asks the manager to connect to urls.
func (c *Client) Connect(ctx context.Context, urls []string) error {
	if len(urls) == 0 {
		return kv.ErrNoURLs
	}
	return c.reg.Tell(ctx, c.address, ConnectRedisServer{URLs: slices.Clone(urls)})
}

// Reconnect asks the manager to rebuild its pool against urls.
func (c *Client) Reconnect(ctx context.Context, urls []string) error {
	if len(urls) == 0 {
		return kv.ErrNoURLs
	}
	return c.reg.Tell(ctx, c.address, ReconnectRedisServer{URLs: slices.Clone(urls)})
}

// Status returns a snapshot of the manager.
func (c *Client) Status(ctx context.Context) (Status, error) {
	return ask[Status](ctx, c, GetStatus{})
}

// WaitReady polls Status until the manager is Initialized or ctx ends.
func (c *Client) WaitReady(ctx context.Context) error {
	t := time.NewTicker(readyPollInterval)
	defer t.Stop()
	for {
		s, err := c.Status(ctx)
		if err == nil && s.State == Initialized {
			return nil
		}
		if err != nil && !errors.Is(err, ErrTimeout) {
			return err
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
		case <-t.C:
		}
	}
}

func ask[R any](ctx context.Context, c *Client, msg any) (R, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	out, err := actor.Ask[R](ctx, c.reg, c.address, msg)
	if errors.Is(err, context.DeadlineExceeded) {
		return out, fmt.Errorf("%w: %s: %w", ErrTimeout, actor.MsgType(msg), err)
	}
	return out, err
}
