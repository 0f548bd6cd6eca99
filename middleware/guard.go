package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/arturkam25/Codify"
)

type principalContextKey struct{}

// PrincipalFromContext returns the principal stored by [RequireSession].
func PrincipalFromContext(ctx context.Context) (codify.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(codify.Principal)
	return p, ok
}

// RequireSession answers 401 unless the request carries a bearer token for an
// active account.
func RequireSession(engine *codify.Engine) func(http.Handler) http.Handler {
	return guard(engine, false)
}

// RequireAdmin answers 401 without a valid session and 403 when the account
// is not an administrator.
func RequireAdmin(engine *codify.Engine) func(http.Handler) http.Handler {
	return guard(engine, true)
}

func guard(engine *codify.Engine, admin bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			p, err := engine.ParseSession(r.Context(), token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if admin {
				if err := engine.RequireAdmin(r.Context(), p); err != nil {
					http.Error(w, "forbidden", http.StatusForbidden)
					return
				}
			}

			ctx := context.WithValue(r.Context(), principalContextKey{}, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientIP stores the request's remote address with [codify.WithClientIP].
// Forwarding headers are not trusted.
func ClientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		next.ServeHTTP(w, r.WithContext(codify.WithClientIP(r.Context(), ip)))
	})
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
