package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roboadvisor/pkg/config"
)

func TestTokenRoundTrip(t *testing.T) {
	m := NewTokenManager(config.JWTConfig{Secret: "test-secret", Expire: time.Hour})

	token, err := m.GenerateToken(42, "anna@example.com")
	require.NoError(t, err)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	id, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, uint(42), id)
	assert.Equal(t, "anna@example.com", claims.Email)
	assert.Equal(t, Issuer, claims.Issuer)
}

func TestTokenRejected(t *testing.T) {
	m := NewTokenManager(config.JWTConfig{Secret: "test-secret", Expire: time.Hour})
	token, err := m.GenerateToken(1, "a@example.com")
	require.NoError(t, err)

	other := NewTokenManager(config.JWTConfig{Secret: "other-secret", Expire: time.Hour})
	_, err = other.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = m.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "1", Issuer: Issuer})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = other.ValidateToken(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("geheim123")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "geheim123"))
	assert.False(t, CheckPassword(hash, "geheim124"))

	_, err = HashPassword("short")
	assert.ErrorIs(t, err, ErrPasswordLength)
	_, err = HashPassword(strings.Repeat("x", 129))
	assert.ErrorIs(t, err, ErrPasswordLength)

	long := strings.Repeat("ä", 100)
	hash, err = HashPassword(long)
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, long))
}
