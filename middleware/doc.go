// Package middleware guards net/http handlers with session tickets minted by
// goPasswordless.Engine.
//
// [RequireSession] and [Guard] read the ticket from the Authorization bearer
// header, or from a cookie when [Options.CookieName] is set, validate it with
// Engine.ParseSessionTicket and put the [goPasswordless.Session] in the
// request context. [RequireTrustedDevice] and [RequireMethod] add a check on
// the session before the handler runs.
//
// The package never parses tickets itself.
package middleware
