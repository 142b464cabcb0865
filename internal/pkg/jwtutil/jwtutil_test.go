package jwtutil

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	t.Run("Valid token yields the identity tuple", func(t *testing.T) {
		token, err := GenerateToken("secret", "u-1", "org-1", RoleAdmin, time.Hour)
		require.NoError(t, err)

		claims, err := ParseToken("secret", token)

		require.NoError(t, err)
		assert.Equal(t, "u-1", claims.UserID)
		assert.Equal(t, "org-1", claims.OrganizationID)
		assert.Equal(t, RoleAdmin, claims.Role)
	})

	t.Run("Empty role defaults to user", func(t *testing.T) {
		token, err := GenerateToken("secret", "u-1", "org-1", "", time.Hour)
		require.NoError(t, err)

		claims, err := ParseToken("secret", token)

		require.NoError(t, err)
		assert.Equal(t, RoleUser, claims.Role)
	})

	t.Run("Wrong secret is rejected", func(t *testing.T) {
		token, err := GenerateToken("secret", "u-1", "org-1", RoleUser, time.Hour)
		require.NoError(t, err)

		_, err = ParseToken("other", token)

		assert.Error(t, err)
	})

	t.Run("Expired token is rejected", func(t *testing.T) {
		token, err := GenerateToken("secret", "u-1", "org-1", RoleUser, -time.Minute)
		require.NoError(t, err)

		_, err = ParseToken("secret", token)

		assert.ErrorIs(t, err, jwt.ErrTokenExpired)
	})

	t.Run("Organization is required to issue", func(t *testing.T) {
		_, err := GenerateToken("secret", "u-1", "", RoleUser, time.Hour)

		assert.ErrorIs(t, err, ErrInvalidClaims)
	})

	t.Run("Token without organization is rejected", func(t *testing.T) {
		raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
			UserID:           "u-1",
			RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		}).SignedString([]byte("secret"))
		require.NoError(t, err)

		_, err = ParseToken("secret", raw)

		assert.ErrorIs(t, err, ErrInvalidClaims)
	})
}

func TestIsAdmin(t *testing.T) {
	assert.True(t, IsAdmin(RoleAdmin))
	assert.True(t, IsAdmin(RoleSuperAdmin))
	assert.False(t, IsAdmin(RoleUser))
}
