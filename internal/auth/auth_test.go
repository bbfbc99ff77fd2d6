package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticProvider(t *testing.T) {
	ctx := context.Background()

	id, err := StaticProvider{ID: "u1"}.CurrentUserID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "u1", id)

	_, err = StaticProvider{}.CurrentUserID(ctx)
	assert.ErrorIs(t, err, ErrNoIdentity)
}

func TestRequireUser(t *testing.T) {
	ctx := context.Background()

	assert.NoError(t, RequireUser(ctx, StaticProvider{ID: "u1"}, "u1"))
	assert.ErrorIs(t, RequireUser(ctx, StaticProvider{ID: "u1"}, "u2"), ErrUnauthorized)
	assert.ErrorIs(t, RequireUser(ctx, StaticProvider{}, "u1"), ErrNoIdentity)
}

func TestJWTProviderRoundtrip(t *testing.T) {
	p := NewJWTProvider("test-secret")

	token, err := p.GenerateToken("u1", jwt.NewNumericDate(time.Now().Add(time.Hour)))
	require.NoError(t, err)

	id, err := p.CurrentUserID(WithToken(context.Background(), token))
	require.NoError(t, err)
	assert.Equal(t, "u1", id)
}

func TestJWTProviderRejectsMissingToken(t *testing.T) {
	p := NewJWTProvider("test-secret")

	_, err := p.CurrentUserID(context.Background())
	assert.ErrorIs(t, err, ErrNoIdentity)
}

func TestJWTProviderRejectsWrongSecret(t *testing.T) {
	issuer := NewJWTProvider("issuer-secret")
	verifier := NewJWTProvider("other-secret")

	token, err := issuer.GenerateToken("u1", jwt.NewNumericDate(time.Now().Add(time.Hour)))
	require.NoError(t, err)

	_, err = verifier.CurrentUserID(WithToken(context.Background(), token))
	assert.ErrorIs(t, err, ErrNoIdentity)
}

func TestJWTProviderRejectsExpiredToken(t *testing.T) {
	p := NewJWTProvider("test-secret")

	token, err := p.GenerateToken("u1", jwt.NewNumericDate(time.Now().Add(-time.Hour)))
	require.NoError(t, err)

	_, err = p.CurrentUserID(WithToken(context.Background(), token))
	assert.ErrorIs(t, err, ErrNoIdentity)
}

func TestJWTProviderRejectsGarbage(t *testing.T) {
	p := NewJWTProvider("test-secret")

	_, err := p.CurrentUserID(WithToken(context.Background(), "not-a-token"))
	assert.ErrorIs(t, err, ErrNoIdentity)
}
