// Package stores provides the Redis persistence behind the default engine:
// one-time codes, password records and trusted devices.
//
// # Design
//
// Every record is a versioned, binary-encoded Redis value. Read-modify-write
// goes through Mutate, a WATCH/MULTI optimistic transaction retried a bounded
// number of times; the first concurrent writer wins and later ones re-read.
// One-time codes carry a TTL of their expiry plus a grace period so that an
// expired code can still be reported as expired.
//
// # Architecture boundaries
//
// This package owns persistence and concurrency control. It does NOT generate
// codes, compare secrets or decide outcomes; the engine does that inside the
// Mutate callback.
//
// # What this package must NOT do
//
//   - Import goPasswordless or any sibling internal package.
//   - Store raw client nonces or raw device ids.
package stores
