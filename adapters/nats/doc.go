// Package nats stores key-value data in a NATS JetStream bucket.
//
// [KVDialer] implements the kv dialer contract for nats:// urls. Per-key
// expiry is not supported; Expire reports kv.ErrUnsupported.
package nats
