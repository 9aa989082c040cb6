package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	req := require.New(t)
	issuer := NewTokenIssuer([]byte("secret"), time.Hour)

	token, err := issuer.Issue("user-123")
	req.NoError(err)
	req.NotEmpty(token)

	userID, err := issuer.Verify(token)
	req.NoError(err)
	req.Equal("user-123", userID)
}

func TestTokenRejectsGarbage(t *testing.T) {
	issuer := NewTokenIssuer([]byte("secret"), time.Hour)

	for _, token := range []string{"", "not.a.jwt", "aaaa.bbbb.cccc"} {
		_, err := issuer.Verify(token)
		require.ErrorIs(t, err, ErrInvalidToken, "token %q", token)
	}
}

func TestTokenRejectsWrongSecret(t *testing.T) {
	issuer := NewTokenIssuer([]byte("secret"), time.Hour)
	other := NewTokenIssuer([]byte("different"), time.Hour)

	token, err := issuer.Issue("user-123")
	require.NoError(t, err)

	_, err = other.Verify(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenRejectsExpired(t *testing.T) {
	issuer := NewTokenIssuer([]byte("secret"), -time.Minute)

	token, err := issuer.Issue("user-123")
	require.NoError(t, err)

	_, err = issuer.Verify(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestPasswordHashing(t *testing.T) {
	req := require.New(t)

	hash, err := HashPassword("s3cret-passphrase")
	req.NoError(err)
	req.NotEqual("s3cret-passphrase", hash)

	req.True(CheckPassword("s3cret-passphrase", hash))
	req.False(CheckPassword("wrong", hash))
}
