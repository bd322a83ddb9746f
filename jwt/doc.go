// Package jwt mints and verifies the signed session tickets handed out after a
// successful sign-in. Tickets carry the subject, the authentication methods
// used, and whether the browser was a trusted device.
package jwt
