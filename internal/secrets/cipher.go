// Package secrets implements field-level encryption for personal data and
// password hashing for credentials.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

const fieldKeySize = 32

// ErrInvalidKey reports a field key of the wrong length.
var ErrInvalidKey = errors.New("secrets: field key must be 32 bytes")

// ErrMalformedCiphertext reports a ciphertext that cannot be decoded.
var ErrMalformedCiphertext = errors.New("secrets: malformed ciphertext")

// FieldCipher encrypts personal fields with AES-256-GCM under a random
// nonce, and derives a deterministic HMAC-SHA256 fingerprint for the fields
// that need equality lookups despite the non-deterministic encryption.
type FieldCipher struct {
	aead    cipher.AEAD
	hmacKey []byte
}

// NewFieldCipher builds a cipher from a 32-byte key.
func NewFieldCipher(key []byte) (*FieldCipher, error) {
	if len(key) != fieldKeySize {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidKey, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("secrets: building cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("secrets: building gcm: %w", err)
	}
	lookupKey := sha256.Sum256(append([]byte("lookup:"), key...))
	return &FieldCipher{aead: aead, hmacKey: lookupKey[:]}, nil
}

// Encrypt seals the plaintext. Each call produces a distinct ciphertext.
func (fieldCipher *FieldCipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, fieldCipher.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("secrets: reading nonce: %w", err)
	}
	sealed := fieldCipher.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a ciphertext produced by Encrypt.
func (fieldCipher *FieldCipher) Decrypt(ciphertext string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedCiphertext, err)
	}
	nonceSize := fieldCipher.aead.NonceSize()
	if len(sealed) < nonceSize {
		return "", fmt.Errorf("%w: too short", ErrMalformedCiphertext)
	}
	plaintext, err := fieldCipher.aead.Open(nil, sealed[:nonceSize], sealed[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedCiphertext, err)
	}
	return string(plaintext), nil
}

// LookupHash derives the deterministic fingerprint of a normalized value.
// The same value always hashes to the same fingerprint, which backs the
// unique index on email addresses.
func (fieldCipher *FieldCipher) LookupHash(value string) string {
	mac := hmac.New(sha256.New, fieldCipher.hmacKey)
	mac.Write([]byte(strings.ToLower(strings.TrimSpace(value))))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
