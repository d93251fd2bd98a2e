// Package crypto seals account credentials at rest with AES-GCM.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

const sealedPrefix = "enc:"

// Sealer encrypts and decrypts secrets with a key derived from a passphrase.
// A Sealer without a key passes values through unchanged.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer derives a 256-bit key from passphrase. An empty passphrase disables sealing.
func NewSealer(passphrase string) (*Sealer, error) {
	if passphrase == "" {
		return &Sealer{}, nil
	}
	key := sha256.Sum256([]byte(passphrase))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Sealer{aead: aead}, nil
}

// Enabled reports whether a key is configured.
func (s *Sealer) Enabled() bool { return s.aead != nil }

// Seal encrypts plaintext. Already sealed values are returned as is.
func (s *Sealer) Seal(plaintext string) (string, error) {
	if s.aead == nil || plaintext == "" || IsSealed(plaintext) {
		return plaintext, nil
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	data := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.StdEncoding.EncodeToString(data), nil
}

// Open decrypts a sealed value. Unsealed values are returned unchanged so
// credentials imported before a key was configured keep working.
func (s *Sealer) Open(value string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}
	if s.aead == nil {
		return "", errors.New("credential is sealed but no credential key is configured")
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("decode sealed credential: %w", err)
	}
	n := s.aead.NonceSize()
	if len(data) < n {
		return "", errors.New("ciphertext too short")
	}
	plain, err := s.aead.Open(nil, data[:n], data[n:], nil)
	if err != nil {
		return "", fmt.Errorf("open sealed credential: %w", err)
	}
	return string(plain), nil
}

// IsSealed reports whether value was produced by Seal.
func IsSealed(value string) bool {
	return strings.HasPrefix(value, sealedPrefix)
}
