// Package secretenc encrypts and decrypts the Node.APISecret column at the
// store boundary, so the relational store never sees cleartext tokens.
//
// The identity is a single X25519 age key read from NODE_SECRET_KEY
// (the "AGE-SECRET-KEY-..." line, same shape as an age keygen identity
// file).
package secretenc

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"filippo.io/age"
)

// Box encrypts/decrypts api_secret values with one process-wide identity.
type Box struct {
	identity  *age.X25519Identity
	recipient *age.X25519Recipient
}

// New builds a Box from the AGE-SECRET-KEY-... line sourced from
// NODE_SECRET_KEY. An empty key is rejected; callers should fail startup
// rather than silently storing cleartext.
func New(secretKey string) (*Box, error) {
	secretKey = strings.TrimSpace(secretKey)
	if secretKey == "" {
		return nil, fmt.Errorf("secretenc: NODE_SECRET_KEY is required")
	}
	identity, err := age.ParseX25519Identity(secretKey)
	if err != nil {
		return nil, fmt.Errorf("secretenc: parse identity: %w", err)
	}
	return &Box{
		identity:  identity,
		recipient: identity.Recipient(),
	}, nil
}

// Encrypt returns the age-encrypted ciphertext of plaintext, suitable for
// storing in the api_secret column.
func (b *Box) Encrypt(plaintext string) ([]byte, error) {
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, b.recipient)
	if err != nil {
		return nil, fmt.Errorf("secretenc: encrypt: %w", err)
	}
	if _, err := io.WriteString(w, plaintext); err != nil {
		return nil, fmt.Errorf("secretenc: write plaintext: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("secretenc: close writer: %w", err)
	}
	return buf.Bytes(), nil
}

// Decrypt recovers the plaintext api_secret from stored ciphertext. The
// store calls it when reading a node row; the cleartext then lives in
// model.Node.APISecret in memory.
func (b *Box) Decrypt(ciphertext []byte) (string, error) {
	r, err := age.Decrypt(bytes.NewReader(ciphertext), b.identity)
	if err != nil {
		return "", fmt.Errorf("secretenc: decrypt: %w", err)
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("secretenc: read plaintext: %w", err)
	}
	return string(plaintext), nil
}
