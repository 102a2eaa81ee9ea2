package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTManager_RoundTrip(t *testing.T) {
	m := NewJWTManager("secret", time.Hour)

	token, err := m.GenerateToken("uid-1", "a@tripzi.app", "Alice")
	require.NoError(t, err)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "uid-1", claims.UserID)
	assert.Equal(t, "Alice", claims.Name)
	assert.Equal(t, "tripzi", claims.Issuer)
}

func TestJWTManager_Rejects(t *testing.T) {
	m := NewJWTManager("secret", time.Hour)

	other, err := NewJWTManager("other", time.Hour).GenerateToken("uid-1", "", "")
	require.NoError(t, err)
	_, err = m.ValidateToken(other)
	assert.Error(t, err, "wrong signing key")

	expired, err := NewJWTManager("secret", -time.Minute).GenerateToken("uid-1", "", "")
	require.NoError(t, err)
	_, err = m.ValidateToken(expired)
	assert.Error(t, err, "expired")

	_, err = m.ValidateToken("not-a-token")
	assert.Error(t, err)
}
