package auth

import (
	"testing"
	"time"

	"chui/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour)

	token, expiresAt, err := issuer.GenerateToken("ref-1", "alice")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := issuer.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ref-1", claims.Subject)
	assert.Equal(t, "alice", claims.Username)
}

func TestTokenRejectsWrongSecret(t *testing.T) {
	token, _, err := NewTokenIssuer("secret", time.Hour).GenerateToken("ref-1", "alice")
	require.NoError(t, err)

	_, err = NewTokenIssuer("other", time.Hour).ValidateToken(token)
	require.Error(t, err)
	assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidToken))
}

func TestTokenExpires(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Minute)
	token, _, err := issuer.GenerateToken("ref-1", "alice")
	require.NoError(t, err)

	issuer.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = issuer.ValidateToken(token)
	require.Error(t, err)
	assert.Equal(t, "Session expired, please sign in again", utils.UserMessage(err))
}
