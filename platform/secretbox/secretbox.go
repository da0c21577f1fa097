// Package secretbox seals platform access tokens at rest with AES-256-GCM.
// The key is derived from TOKEN_ENCRYPTION_SECRET with HKDF so the raw
// secret is never used directly as cipher key material.
package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const keyInfo = "glasswallet/pixel-tokens/v1"

// ErrMalformed is returned for ciphertexts that cannot be opened.
var ErrMalformed = errors.New("sealed value is malformed")

// Box seals and opens short secrets.
type Box struct {
	aead cipher.AEAD
}

// New derives a 32-byte key from secret and returns a Box.
func New(secret string) (*Box, error) {
	if len(secret) < 16 {
		return nil, errors.New("encryption secret must be at least 16 characters")
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return &Box{aead: aead}, nil
}

// Seal encrypts plaintext and returns base64 nonce+ciphertext.
// An empty plaintext seals to an empty string.
func (b *Box) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, b.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := b.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal.
func (b *Box) Open(sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	data, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil {
		return "", ErrMalformed
	}
	nonceSize := b.aead.NonceSize()
	if len(data) < nonceSize {
		return "", ErrMalformed
	}
	plaintext, err := b.aead.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}
