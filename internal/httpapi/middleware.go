package httpapi

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"example.com/wordduel/internal/auth"
)

type ctxKey string

const playerIDKey ctxKey = "playerID"

type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// BearerToken returns the token of an "Authorization: Bearer" header, or "".
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
}

func AuthMiddleware(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				WriteError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
				return
			}

			claims, err := verifier.Verify(token)
			if err != nil {
				WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), playerIDKey, claims.PlayerID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ServiceTokenMiddleware admits only callers presenting token in
// X-Service-Token. An empty token locks the route.
func ServiceTokenMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get("X-Service-Token")
			if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				WriteError(w, http.StatusUnauthorized, "unauthorized", "service token required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func PlayerIDFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(playerIDKey)
	s, ok := v.(string)
	return s, ok && s != ""
}
