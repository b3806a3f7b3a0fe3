// Package auth validates the bearer tokens issued by the main TroveHunt
// API. This service never issues tokens; it only verifies them, so the
// package is a verifier around the shared signing secret.
package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Scopes recognized in tokens.
const (
	// ScopeOperator allows calling the send endpoint. Game servers and
	// operator tooling carry it; player tokens never do.
	ScopeOperator = "push:send"
)

// Predefined token errors.
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token has expired")
)

// Claims are the claims carried by TroveHunt access tokens.
type Claims struct {
	jwt.RegisteredClaims

	// UserID is the authenticated player's ID.
	UserID string `json:"uid"`

	// Scopes grants access beyond the player's own data.
	Scopes []string `json:"scopes,omitempty"`
}

// HasScope reports whether the token carries the given scope.
func (c *Claims) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Verifier validates HS256 access tokens.
type Verifier struct {
	signingKey []byte
	issuer     string
	audience   string
}

// VerifierConfig holds configuration for the token verifier.
type VerifierConfig struct {
	// SigningKey is the secret shared with the token issuer.
	SigningKey string

	// Issuer is the expected issuer claim (e.g. "https://api.trovehunt.app").
	Issuer string

	// Audience is the expected audience claim (e.g. "trovehunt-api").
	Audience string
}

// NewVerifier creates a new token verifier.
func NewVerifier(cfg VerifierConfig) *Verifier {
	return &Verifier{
		signingKey: []byte(cfg.SigningKey),
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
	}
}

// Verify validates a token string and returns its claims.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.signingKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidToken, err.Error())
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
