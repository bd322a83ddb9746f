package middleware

import (
	"context"
	"net/http"
	"strings"

	goPasswordless "github.com/MrEthical07/goPasswordless"
)

type sessionContextKey struct{}

// Options selects where the session ticket is read from. The Authorization
// bearer header is always tried first; CookieName, when set, is the fallback.
type Options struct {
	CookieName string
}

// SessionFromContext returns the session validated by a guard.
func SessionFromContext(ctx context.Context) (*goPasswordless.Session, bool) {
	s, ok := ctx.Value(sessionContextKey{}).(*goPasswordless.Session)
	return s, ok
}

// RequireSession rejects requests without a valid bearer session ticket.
func RequireSession(engine *goPasswordless.Engine) func(http.Handler) http.Handler {
	return Guard(engine, Options{})
}

// Guard rejects requests without a valid session ticket and stores the
// session in the request context.
func Guard(engine *goPasswordless.Engine, opts Options) func(http.Handler) http.Handler {
	return guard(engine, opts, nil)
}

func guard(engine *goPasswordless.Engine, opts Options, allow func(*goPasswordless.Session) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ticket, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok && opts.CookieName != "" {
				if c, err := r.Cookie(opts.CookieName); err == nil && c.Value != "" {
					ticket, ok = c.Value, true
				}
			}
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			session, err := engine.ParseSessionTicket(r.Context(), ticket)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if allow != nil && !allow(session) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			ctx := context.WithValue(r.Context(), sessionContextKey{}, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
