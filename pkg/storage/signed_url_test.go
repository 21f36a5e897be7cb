package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignedURLSignerGenerateAndParse(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, expiresAt, err := signer.Generate("reply-1", "reply-1/brochure_1700000000_abcd.pdf")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.False(t, expiresAt.IsZero())

	parsed, err := signer.Parse(token, false)
	require.NoError(t, err)
	require.Equal(t, "reply-1", parsed.ResourceID)
	require.Equal(t, "reply-1/brochure_1700000000_abcd.pdf", parsed.Path)
	require.WithinDuration(t, expiresAt, parsed.ExpiresAt, time.Second)
}

func TestSignedURLSignerExpired(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)
	token, _, err := signer.Generate("reply-1", "reply-1/file.pdf")
	require.NoError(t, err)

	signer.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = signer.Parse(token, false)
	require.ErrorIs(t, err, ErrTokenExpired)

	parsed, err := signer.Parse(token, true)
	require.NoError(t, err)
	require.Equal(t, "reply-1", parsed.ResourceID)
}

func TestSignedURLSignerRejectsTampering(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, _, err := signer.Generate("reply-1", "reply-1/file.pdf")
	require.NoError(t, err)

	other := NewSignedURLSigner("other-secret", time.Hour)
	_, err = other.Parse(token, false)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = signer.Parse("garbage", false)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = signer.Parse(token[:len(token)-2]+"xx", false)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestSignedURLSignerRequiresInput(t *testing.T) {
	_, _, err := NewSignedURLSigner("", time.Hour).Generate("reply-1", "a/b")
	require.Error(t, err)
	_, _, err = NewSignedURLSigner("secret", time.Hour).Generate("", "a/b")
	require.Error(t, err)
}
