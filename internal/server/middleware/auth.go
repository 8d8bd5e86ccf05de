package middleware

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/ymahak/cust/internal/auth"
)

// Auth rejects requests without a valid access token. Browsers cannot set
// headers on websocket upgrades, so the access_token query parameter is
// accepted as a fallback.
func Auth(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok := extractBearer(r)
			if tok == "" {
				tok = r.URL.Query().Get("access_token")
			}

			if tok != "" {
				if r, ok := authenticate(r, tok, jwtSecret); ok {
					next.ServeHTTP(w, r)
					return
				}
			}

			http.Error(w, `{"title":"Unauthorized","status":401,"detail":"missing or invalid credentials"}`, http.StatusUnauthorized)
		})
	}
}

// OptionalAuth attaches the identity when a valid bearer token is present and
// otherwise lets the request through anonymously.
func OptionalAuth(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tok := extractBearer(r); tok != "" {
				if authed, ok := authenticate(r, tok, jwtSecret); ok {
					r = authed
				} else {
					log.Debug().Str("remote", r.RemoteAddr).Msg("ignoring invalid bearer token")
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return h[7:]
	}
	return ""
}

func authenticate(r *http.Request, tok, secret string) (*http.Request, bool) {
	id, err := auth.ParseAccessToken(secret, tok)
	if err != nil {
		return r, false
	}
	return r.WithContext(WithIdentity(r.Context(), id.UserID, id.Username, id.Role)), true
}
