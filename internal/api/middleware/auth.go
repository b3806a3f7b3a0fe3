package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/trovehunt/pushgate/internal/api/models"
	"github.com/trovehunt/pushgate/internal/auth"
)

// userIDKey is the context key for the authenticated user ID.
type userIDKey struct{}

// claimsKey is the context key for the full token claims.
type claimsKey struct{}

// RequireAuth creates authentication middleware that validates JWT bearer
// tokens and rejects requests without one.
func RequireAuth(verifier *auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := verifyRequest(w, r, verifier)
			if !ok {
				return
			}
			next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
		})
	}
}

// OptionalAuth validates a bearer token when one is present and lets
// anonymous requests through. Subscribe works without an account; a valid
// token just attaches the subscription to the player.
func OptionalAuth(verifier *auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				next.ServeHTTP(w, r)
				return
			}
			claims, ok := verifyRequest(w, r, verifier)
			if !ok {
				return
			}
			next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
		})
	}
}

// RequireScope rejects authenticated requests whose token lacks the scope.
// It must run after RequireAuth.
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetClaims(r.Context())
			if claims == nil || !claims.HasScope(scope) {
				traceID := GetRequestID(r.Context())
				problem := models.NewForbidden(traceID, "token does not grant "+scope)
				problem.Instance = r.URL.Path
				problem.Write(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// verifyRequest extracts and validates the bearer token. Failures write a
// 401 and the caller must stop.
func verifyRequest(w http.ResponseWriter, r *http.Request, verifier *auth.Verifier) (*auth.Claims, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		writeUnauthorized(w, r, "missing authorization header")
		return nil, false
	}

	const bearerPrefix = "Bearer "
	if len(authHeader) < len(bearerPrefix) ||
		!strings.EqualFold(authHeader[:len(bearerPrefix)], bearerPrefix) {
		writeUnauthorized(w, r, "invalid authorization header format")
		return nil, false
	}

	tokenString := authHeader[len(bearerPrefix):]
	if tokenString == "" {
		writeUnauthorized(w, r, "missing bearer token")
		return nil, false
	}

	claims, err := verifier.Verify(tokenString)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrTokenExpired):
			writeUnauthorized(w, r, "access token has expired")
		default:
			writeUnauthorized(w, r, "invalid access token")
		}
		return nil, false
	}

	return claims, true
}

func withClaims(ctx context.Context, claims *auth.Claims) context.Context {
	ctx = context.WithValue(ctx, userIDKey{}, claims.UserID)
	return context.WithValue(ctx, claimsKey{}, claims)
}

// writeUnauthorized writes a 401 Unauthorized response.
// This is implemented directly here to avoid import cycle with response package.
func writeUnauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	traceID := GetRequestID(r.Context())
	problem := models.NewUnauthorized(traceID, detail)
	problem.Instance = r.URL.Path
	problem.Write(w)
}

// GetUserID retrieves the authenticated user ID from the context.
// Returns an empty string if not authenticated.
func GetUserID(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey{}).(string); ok {
		return id
	}
	return ""
}

// GetClaims retrieves the full token claims from the context.
// Returns nil if not authenticated.
func GetClaims(ctx context.Context) *auth.Claims {
	if claims, ok := ctx.Value(claimsKey{}).(*auth.Claims); ok {
		return claims
	}
	return nil
}
