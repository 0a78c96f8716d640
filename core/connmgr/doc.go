// Package connmgr manages a pooled connection to a key-value store from
// inside a supervised actor.
//
// [Redis] is both an es aggregate and an actor behavior. Connection changes
// go through commands and events: a [ConnectRedisServer] or
// [ReconnectRedisServer] command yields one event, the event is queued to
// the actor itself, and applying it first builds a pool for the event's urls
// and then updates the state. A pool that cannot be built leaves state and
// the current pool unchanged, so the aggregate is Initialized exactly when it
// holds a working pool.
//
// Data operations are ignored until the aggregate is Initialized. Queries
// are not answered in that state and surface as [ErrTimeout] through the
// [Client]:
//
//	a, err := connmgr.Start(root, []string{"redis://localhost:6379"},
//	    connmgr.WithDialer(dialer))
//	c := connmgr.NewClient(root.Registry(), connmgr.ClientOptions{})
//	_ = c.WaitReady(ctx)
//	_ = c.Insert(ctx, "k", []byte("v"), time.Minute)
//	v, err := c.Query(ctx, "k")
package connmgr
