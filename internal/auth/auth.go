// Package auth provides the authentication provider contract consumed by
// every mutating operation, plus static and JWT-backed implementations.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Common errors for authentication.
var (
	// ErrNoIdentity is returned when no authenticated identity is present.
	ErrNoIdentity = errors.New("no authenticated identity")
	// ErrUnauthorized is returned when the caller identity does not match
	// the target user of a mutating operation.
	ErrUnauthorized = errors.New("caller is not authorized for target user")
)

// Provider yields the currently authenticated user identity.
type Provider interface {
	// CurrentUserID returns the authenticated user ID for this call, or
	// ErrNoIdentity when the caller is unauthenticated.
	CurrentUserID(ctx context.Context) (string, error)
}

// RequireUser verifies that the authenticated identity matches the target
// user. Every mutating call goes through this gate.
func RequireUser(ctx context.Context, p Provider, userID string) error {
	current, err := p.CurrentUserID(ctx)
	if err != nil {
		return err
	}
	if current != userID {
		return fmt.Errorf("%w: target %s", ErrUnauthorized, userID)
	}
	return nil
}

// StaticProvider always reports a fixed identity. Used for single-user
// device deployments and tests. An empty ID behaves as unauthenticated.
type StaticProvider struct {
	ID string
}

// CurrentUserID implements Provider.
func (p StaticProvider) CurrentUserID(ctx context.Context) (string, error) {
	if p.ID == "" {
		return "", ErrNoIdentity
	}
	return p.ID, nil
}

type tokenKey struct{}

// WithToken attaches a bearer token to the context for the JWT provider.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// Claims defines the JWT claims used by the service.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// JWTProvider resolves the caller identity from a bearer token carried on
// the context.
type JWTProvider struct {
	secret []byte
}

// NewJWTProvider creates a JWTProvider with the given HMAC secret.
func NewJWTProvider(secret string) *JWTProvider {
	return &JWTProvider{secret: []byte(secret)}
}

// CurrentUserID implements Provider by validating the context token.
func (p *JWTProvider) CurrentUserID(ctx context.Context) (string, error) {
	token, _ := ctx.Value(tokenKey{}).(string)
	if token == "" {
		return "", ErrNoIdentity
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return p.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoIdentity, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.UserID == "" {
		return "", ErrNoIdentity
	}

	return claims.UserID, nil
}

// GenerateToken issues a JWT for the specified user identity. Primarily a
// test and provisioning helper.
func (p *JWTProvider) GenerateToken(userID string, expiresAt *jwt.NumericDate) (string, error) {
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: expiresAt,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(p.secret)
}
