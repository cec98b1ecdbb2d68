package secretenc

import (
	"testing"

	"filippo.io/age"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) string {
	t.Helper()
	identity, err := age.GenerateX25519Identity()
	require.NoError(t, err)
	return identity.String()
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	box, err := New(testKey(t))
	require.NoError(t, err)

	ciphertext, err := box.Encrypt("super-secret-token")
	require.NoError(t, err)
	require.NotContains(t, string(ciphertext), "super-secret-token")

	plaintext, err := box.Decrypt(ciphertext)
	require.NoError(t, err)
	require.Equal(t, "super-secret-token", plaintext)
}

func TestNewRejectsEmptyKey(t *testing.T) {
	_, err := New("")
	require.Error(t, err)
}

func TestDecryptWrongIdentityFails(t *testing.T) {
	boxA, err := New(testKey(t))
	require.NoError(t, err)
	boxB, err := New(testKey(t))
	require.NoError(t, err)

	ciphertext, err := boxA.Encrypt("value")
	require.NoError(t, err)

	_, err = boxB.Decrypt(ciphertext)
	require.Error(t, err)
}
