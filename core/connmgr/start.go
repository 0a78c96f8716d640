package connmgr

import (
	"context"
	"log/slog"

	"github.com/trvinh99/redis-actor/core/actor"
	"github.com/trvinh99/redis-actor/ports/kv"
)

// Start builds the connection manager actor under parent. The actor connects
// to urls through its own command path; use Client.WaitReady to wait for it.
func Start(parent *actor.Supervisor, urls []string, opts ...Option) (*actor.Actor[*Redis], error) {
	if len(urls) == 0 {
		return nil, kv.ErrNoURLs
	}
	r := New(urls, opts...)
	if r.opts.dialer == nil {
		return nil, ErrNoDialer
	}

	st := actor.NewState(r)
	defer st.Release()
	weak := st.Downgrade()

	b := actor.NewBuilder[*Redis](parent).
		WithStateCell(st).
		WithChildrenCallbacks(actor.Callbacks{
			AfterStop: func() { closeOnStop(weak) },
		})
	if r.opts.name != "" {
		b = b.WithName(r.opts.name).WithDispatcher(r.opts.name)
	}

	a, err := b.Build()
	if err != nil {
		return nil, err
	}
	r.log.Info("connection manager started",
		slog.String("address", a.Address()),
		slog.Any("urls", urls),
		slog.Any("auth", r.Auth),
	)
	return a, nil
}

// closeOnStop closes the pool once no replica runs anymore. The owner may
// already be gone, in which case there is nothing left to close.
func closeOnStop(weak actor.WeakState[*Redis]) {
	st, err := weak.TryUpgrade()
	if err != nil {
		return
	}
	defer st.Release()
	_ = st.With(context.Background(), func(r *Redis) error {
		r.closePool()
		return nil
	})
}
