package security

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrInvalidToken signals a malformed or tampered sealed token string.
var ErrInvalidToken = fmt.Errorf("invalid sealed token")

// TokenSealer encrypts gateway payment tokens before they touch storage and
// decrypts them when the orchestrator needs to charge. The sealed form is
// opaque base64; a token never round-trips through logs or API responses in
// the clear.
type TokenSealer struct {
	aead interface {
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	}
}

// NewTokenSealer derives a sealer from a base64-encoded 32-byte key.
func NewTokenSealer(encodedKey string) (*TokenSealer, error) {
	key, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("decode token key: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("token key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	return &TokenSealer{aead: aead}, nil
}

// Seal encrypts a raw payment token. Each call uses a fresh nonce, so sealing
// the same token twice yields different ciphertexts.
func (s *TokenSealer) Seal(token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("token cannot be empty")
	}

	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := s.aead.Seal(nonce, nonce, []byte(token), nil)
	return base64.RawStdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a sealed token. Tampered or truncated input returns
// ErrInvalidToken.
func (s *TokenSealer) Open(sealed string) (string, error) {
	raw, err := base64.RawStdEncoding.DecodeString(sealed)
	if err != nil {
		return "", ErrInvalidToken
	}
	if len(raw) < chacha20poly1305.NonceSizeX {
		return "", ErrInvalidToken
	}

	nonce, ciphertext := raw[:chacha20poly1305.NonceSizeX], raw[chacha20poly1305.NonceSizeX:]
	plain, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrInvalidToken
	}
	return string(plain), nil
}

// GenerateKey returns a fresh base64-encoded key suitable for configuration.
func GenerateKey() (string, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}
