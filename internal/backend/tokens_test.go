package backend

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, userID string, expiresAt time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"exp": expiresAt.Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func TestTokenSourceRoundTrip(t *testing.T) {
	source := NewTokenSource()
	token := signedToken(t, "user-1", time.Now().Add(time.Hour))

	_, ok := source.TokenFor("user-1")
	assert.False(t, ok)

	source.Store("user-1", token)

	got, ok := source.TokenFor("user-1")
	require.True(t, ok)
	assert.Equal(t, token, got)

	source.Clear("user-1")
	_, ok = source.TokenFor("user-1")
	assert.False(t, ok)
}

func TestTokenSourceExpiry(t *testing.T) {
	source := NewTokenSource()
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	source.now = func() time.Time { return now }

	source.Store("user-1", signedToken(t, "user-1", now.Add(10*time.Minute)))

	_, ok := source.TokenFor("user-1")
	assert.True(t, ok)

	// Within the one-minute safety margin of expiry the token is
	// treated as stale.
	now = now.Add(9*time.Minute + 30*time.Second)
	_, ok = source.TokenFor("user-1")
	assert.False(t, ok)
}

func TestTokenSourceRejectsMalformed(t *testing.T) {
	source := NewTokenSource()

	source.Store("user-1", "not-a-jwt")

	_, ok := source.TokenFor("user-1")
	assert.False(t, ok)
}
