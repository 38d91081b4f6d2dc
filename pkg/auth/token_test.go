package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenService(t *testing.T) {
	service := NewTokenService("test-secret", "drsplan")

	token, err := service.GenerateToken("alice@example.com", time.Hour)
	require.NoError(t, err)

	subject, err := service.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", subject)
}

func TestTokenServiceRejects(t *testing.T) {
	service := NewTokenService("test-secret", "drsplan")

	t.Run("wrong secret", func(t *testing.T) {
		token, err := NewTokenService("other", "drsplan").GenerateToken("alice", time.Hour)
		require.NoError(t, err)
		_, err = service.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		token, err := service.GenerateToken("alice", -time.Minute)
		require.NoError(t, err)
		_, err = service.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		token, err := NewTokenService("test-secret", "someone-else").GenerateToken("alice", time.Hour)
		require.NoError(t, err)
		_, err = service.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("no expiry", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Subject: "alice",
			Issuer:  "drsplan",
		}).SignedString([]byte("test-secret"))
		require.NoError(t, err)
		_, err = service.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("other algorithm", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.RegisteredClaims{
			Subject:   "alice",
			Issuer:    "drsplan",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}).SignedString([]byte("test-secret"))
		require.NoError(t, err)
		_, err = service.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := service.ValidateToken("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	_, err := service.GenerateToken("", time.Hour)
	assert.Error(t, err)
}
