package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerifyToken_RoundTrip(t *testing.T) {
	token, err := IssueToken("s3cret", "user-1", time.Hour)
	require.NoError(t, err)

	claims, err := VerifyToken("s3cret", token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
}

func TestVerifyToken_RejectsWrongSecret(t *testing.T) {
	token, err := IssueToken("s3cret", "user-1", time.Hour)
	require.NoError(t, err)

	_, err = VerifyToken("different-secret", token)
	assert.Error(t, err)
}

func TestVerifyToken_RejectsExpired(t *testing.T) {
	token, err := IssueToken("s3cret", "user-1", -time.Minute)
	require.NoError(t, err)

	_, err = VerifyToken("s3cret", token)
	assert.Error(t, err)
}
