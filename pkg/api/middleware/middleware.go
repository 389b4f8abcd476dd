package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	authproviders "github.com/ledgerquest/ledgerquest/pkg/auth/providers"
	"github.com/ledgerquest/ledgerquest/pkg/log"
)

type ContextKey int

const (
	// PrincipalContextKey is the key used to store the principal in the
	// request context
	PrincipalContextKey ContextKey = iota
)

// Principal is the immutable identity attached to a request after
// token verification. It is a value, never a pointer: handlers cannot
// smuggle mutable state through it.
type Principal struct {
	UserID string
}

// PrincipalFromContext returns the request principal set by the auth
// middleware.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	principal, ok := ctx.Value(PrincipalContextKey).(Principal)
	return principal, ok
}

// ContextWithPrincipal attaches a principal to a context. Exposed for
// handler tests.
func ContextWithPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, PrincipalContextKey, principal)
}

func NewAuthMiddleware(authProvider authproviders.AuthProvider) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bearerToken, err := parseBearerToken(r)
			if err != nil {
				log.Debug("failed to parse bearer token: %v", err)
				http.Error(w, "failed to parse bearer token", http.StatusUnauthorized)
				return
			}

			token, err := authProvider.VerifyToken(r.Context(), bearerToken)
			if err != nil {
				log.Debug("failed to verify token: %v", err)
				http.Error(w, "failed to verify token", http.StatusUnauthorized)
				return
			}

			ctx := ContextWithPrincipal(r.Context(), Principal{UserID: token.UID})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// parseBearerToken parses the bearer token from the Authorization header
func parseBearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", fmt.Errorf("authorization header is missing")
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", fmt.Errorf("invalid Authorization header format")
	}

	return parts[1], nil
}
