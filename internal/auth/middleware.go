//
//
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/radio-control/commandd/internal/server"
)

// Error codes written by the middleware.
const (
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
)

var errNoBearer = errors.New("missing bearer token")

type contextKey string

const claimsKey contextKey = "claims"

// Middleware authenticates requests and enforces scopes.
type Middleware struct {
	verifier *Verifier
	open     map[string]bool
}

// NewMiddleware creates middleware using verifier. Requests for the open
// paths pass through unauthenticated.
func NewMiddleware(verifier *Verifier, openPaths ...string) *Middleware {
	open := make(map[string]bool, len(openPaths))
	for _, p := range openPaths {
		open[p] = true
	}
	return &Middleware{verifier: verifier, open: open}
}

// RequireAuth rejects requests without a valid bearer token.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.open[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r)
		if err != nil {
			server.WriteError(w, http.StatusUnauthorized, CodeUnauthorized, "Authentication required", "")
			return
		}
		claims, err := m.verifier.VerifyToken(token)
		if err != nil {
			server.WriteError(w, http.StatusUnauthorized, CodeUnauthorized, "Invalid token", "")
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireScope rejects authenticated requests lacking any of scopes.
func (m *Middleware) RequireScope(scopes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.open[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				server.WriteError(w, http.StatusUnauthorized, CodeUnauthorized, "Authentication required", "")
				return
			}
			for _, s := range scopes {
				if !claims.HasScope(s) {
					server.WriteError(w, http.StatusForbidden, CodeForbidden, "Insufficient permissions", "")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClaimsFromContext returns the claims stored by RequireAuth, or nil.
func ClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsKey).(*Claims)
	return claims
}

func extractBearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return "", errNoBearer
	}
	return strings.TrimSpace(token), nil
}
