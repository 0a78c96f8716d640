package nats

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	natsgo "github.com/nats-io/nats.go"

	"github.com/trvinh99/redis-actor/ports/kv"
)

type closeFunc = func()

// Connector opens a connection and returns the func that gives it back.
type Connector func() (nc *natsgo.Conn, close closeFunc, err error)

// ReuseConnection shares one connection among all callers. The connection
// is closed when the last lease is given back; the next call reconnects.
func ReuseConnection(connect Connector) Connector {
	var mu sync.Mutex
	var nc *natsgo.Conn
	var closeCon closeFunc
	var leased atomic.Int64
	release := func() {
		mu.Lock()
		defer mu.Unlock()
		if leased.Add(-1) == 0 {
			closeCon()
			nc = nil
		}
	}
	return func() (*natsgo.Conn, closeFunc, error) {
		mu.Lock()
		defer mu.Unlock()
		if nc == nil || nc.IsClosed() {
			var err error
			nc, closeCon, err = connect()
			if err != nil {
				nc = nil
				return nil, nil, err
			}
		}
		leased.Add(1)
		var once sync.Once
		return nc, func() { once.Do(release) }, nil
	}
}

// ConnectURLs connects to any of urls, authenticating with auth when set.
func ConnectURLs(urls []string, auth kv.Auth) Connector {
	return func() (*natsgo.Conn, closeFunc, error) {
		if len(urls) == 0 {
			return nil, nil, kv.ErrNoURLs
		}
		opts := []natsgo.Option{natsgo.MaxReconnects(3)}
		if !auth.IsZero() {
			opts = append(opts, natsgo.UserInfo(auth.Username, auth.Password))
		}
		nc, err := natsgo.Connect(strings.Join(urls, ","), opts...)
		if err != nil {
			if errors.Is(err, natsgo.ErrAuthorization) {
				return nil, nil, fmt.Errorf("%w: %w", kv.ErrAuth, err)
			}
			return nil, nil, fmt.Errorf("%w: %w", kv.ErrUnreachable, err)
		}
		return nc, func() { nc.Close() }, nil
	}
}

func ConnectURL(natsURL string) Connector {
	return ConnectURLs([]string{natsURL}, kv.NoAuth())
}

func ConnectDefault() Connector {
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		return ConnectURL(natsURL)
	}
	return ConnectURL(natsgo.DefaultURL)
}
