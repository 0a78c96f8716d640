// Package app wires the connection manager into a runnable unit: a root
// supervisor, the registry actors are addressed through, the connection
// manager actor and the caller-facing client.
//
// # Basic Usage
//
//	a, err := app.Run(app.Config{
//	    URLs: []string{"redis://localhost:6379"},
//	    Auth: kv.UserPass("default", "secret"),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer a.Stop()
//
//	if err := a.WaitReady(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	_ = a.Client().Insert(ctx, "user:1", []byte("alice"), time.Minute)
//	v, err := a.Client().Query(ctx, "user:1")
//
// # Dialers
//
// Without a Config.Dialer the app dials redis and rediss urls through
// go-redis, one url for a single server and several for a cluster, and nats
// urls through a JetStream key-value bucket. Tests pass a [kv.MemNetwork].
package app
