// Package internal holds the private building blocks of goPasswordless.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - codes: long code, short code and client nonce generation
//   - limiters: Redis fixed-window throttle for code requests
//   - stores: Redis persistence for codes, passwords and trusted devices
//
// # What this package must NOT do
//
//   - Export types that appear in the public API except through aliases.
//   - Be imported by any package outside the goPasswordless module.
package internal
