// Package redis provides a [kv.Dialer] backed by go-redis. Each dialed
// connection wraps a client with a single underlying socket; pooling is left
// to the caller.
package redis
