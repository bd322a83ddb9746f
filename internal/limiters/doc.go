// Package limiters provides the Redis fixed-window throttle applied before a
// sign-in code is issued and mailed.
//
// [CodeRequestLimiter] counts requests per recipient and per client IP. It is
// nil-safe: calling CheckRequest on a nil receiver returns nil.
//
// # What this package must NOT do
//
//   - Import goPasswordless or any sibling internal package.
//   - Make policy decisions beyond counting; the engine decides consequences.
package limiters
