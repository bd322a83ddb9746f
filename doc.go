// Package goPasswordless is the core of a passwordless identity provider:
// one-time sign-in codes, client-nonce binding, optional passwords with
// lockout, trusted devices and the sign-in decision that ties them together.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Codes
//
// Each recipient has at most one active code. The long code is a 128-bit
// random decimal string carried in mailed links; the short code is its last
// six digits, typed by hand. A fresh code also yields a client nonce which
// the requesting browser keeps. Verifying a code consumes it first and only
// then compares the nonce, so a relayed code works once and reveals that it
// was redeemed elsewhere.
//
// # Sign-in
//
// [Engine.SignIn] checks the credential, evaluates the browser against the
// subject's trusted devices, optionally trusts it, picks the session
// lifetime, sanitizes the redirect and mints a signed session ticket. A code
// redeemed in a browser that neither requested it nor is trusted is refused
// whenever the subject already has trusted devices.
//
// # Boundaries
//
// HTTP routing, page rendering and account storage stay with the host. They
// are reached through [AccountProvider], [Mailer], [CookieJar] and the store
// interfaces. Redis implementations of the stores are built in; package
// mongostore provides MongoDB ones.
package goPasswordless
