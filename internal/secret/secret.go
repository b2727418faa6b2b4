// Package secret encrypts monitor credentials at rest.
package secret

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrEmptyKey is returned when no key material is configured.
var ErrEmptyKey = errors.New("secret key is empty")

// Cipher seals strings with XChaCha20-Poly1305 under a key derived from a
// passphrase. Sealed values are base64(nonce || ciphertext).
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher derives a 256-bit key from passphrase.
func NewCipher(passphrase string) (*Cipher, error) {
	if passphrase == "" {
		return nil, ErrEmptyKey
	}
	key := sha256.Sum256([]byte(passphrase))
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to init cipher: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to read nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt.
func (c *Cipher) Decrypt(stored string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return "", fmt.Errorf("failed to decode: %w", err)
	}
	if len(raw) < c.aead.NonceSize() {
		return "", errors.New("ciphertext too short")
	}
	nonce, sealed := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plain, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("failed to open: %w", err)
	}
	return string(plain), nil
}

// Reveal returns the plaintext for stored. Values that do not decrypt are
// returned unchanged: records written before encryption hold plaintext.
func (c *Cipher) Reveal(stored string) string {
	if stored == "" {
		return ""
	}
	plain, err := c.Decrypt(stored)
	if err != nil {
		return stored
	}
	return plain
}
