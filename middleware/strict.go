package middleware

import (
	"net/http"

	goPasswordless "github.com/MrEthical07/goPasswordless"
)

// RequireTrustedDevice admits only sessions granted on a trusted device.
// Sessions from a one-off browser get 403.
func RequireTrustedDevice(engine *goPasswordless.Engine, opts Options) func(http.Handler) http.Handler {
	return guard(engine, opts, func(s *goPasswordless.Session) bool {
		return s.TrustedDevice
	})
}

// RequireMethod admits only sessions whose sign-in used one of methods, as
// named by goPasswordless.SignInMethod.String.
func RequireMethod(engine *goPasswordless.Engine, opts Options, methods ...goPasswordless.SignInMethod) func(http.Handler) http.Handler {
	return guard(engine, opts, func(s *goPasswordless.Session) bool {
		for _, have := range s.Methods {
			for _, want := range methods {
				if have == want.String() {
					return true
				}
			}
		}
		return false
	})
}
