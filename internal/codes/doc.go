// Package codes generates the secrets of a one-time code: the 128-bit long
// code carried by sign-in links, the six-digit short code derived from it,
// and the client nonce bound to the issuing browser.
//
// This package does not store or compare codes.
package codes
