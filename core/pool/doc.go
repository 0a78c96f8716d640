// Package pool implements a bounded, generic connection pool.
//
// A [Manager] knows how to open, check and close one kind of connection. The
// [Pool] keeps up to MaxSize of them open, validates idle connections on
// checkout and drops connections the manager reports as broken when they
// come back:
//
//	p, err := pool.New(ctx, mgr, pool.Options{MaxSize: 15})
//	lease, err := p.Get(ctx)
//	defer lease.Release()
//	use(lease.Conn())
package pool
