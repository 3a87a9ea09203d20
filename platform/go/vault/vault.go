// Package vault seals and opens per-tenant data-store credentials with an
// authenticated cipher. Ciphertext that fails authentication is reported as a
// distinct integrity error so callers can refuse to fall back to another
// tenant's store.
package vault

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrIntegrity indicates the ciphertext was tampered with or the wrong key was
// supplied. Callers must treat it as fatal for the request: silently degrading
// to a default data store would leak one tenant's operations into another's.
var ErrIntegrity = errors.New("credential integrity check failed")

// KeySize is the required key length in bytes.
const KeySize = chacha20poly1305.KeySize

// Vault performs authenticated encryption of credential material using
// XChaCha20-Poly1305. The extended nonce is random per sealing and prefixed to
// the ciphertext.
type Vault struct {
	key []byte
}

// New validates the key length and returns a Vault. The key is held by
// reference; callers must not mutate it afterwards.
func New(key []byte) (*Vault, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("vault key must be %d bytes, got %d", KeySize, len(key))
	}
	return &Vault{key: key}, nil
}

// NewFromHex builds a Vault from a hex-encoded key, the form used by the
// VAULT_KEY environment variable.
func NewFromHex(hexKey string) (*Vault, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decode vault key: %w", err)
	}
	return New(key)
}

// Seal encrypts and authenticates plaintext. Output layout: nonce || box.
func (v *Vault) Seal(plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(v.key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open authenticates and decrypts ciphertext produced by Seal. Any
// authentication failure, including a truncated or foreign ciphertext, yields
// ErrIntegrity rather than corrupted plaintext.
func (v *Vault) Open(ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(v.key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}

	if len(ciphertext) < aead.NonceSize() {
		return nil, ErrIntegrity
	}

	nonce, box := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, box, nil)
	if err != nil {
		return nil, ErrIntegrity
	}

	return plaintext, nil
}
