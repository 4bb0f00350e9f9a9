// Package secret encrypts credential values at rest with AES-256-GCM.
//
// Ciphertext blobs are self-describing text: iv, auth tag and ciphertext,
// each hex-encoded and joined by a colon. That framing lets the blob live in
// any plain text column. The framing carries no version; new fields would go
// behind a "v2:" prefix while legacy blobs keep parsing.
package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// KeySize is the required key length in bytes (AES-256).
const KeySize = 32

const gcmTagSize = 16

// ErrInvalidCiphertext is returned when a blob is malformed or fails
// authentication. Both cases are deliberately indistinguishable.
var ErrInvalidCiphertext = errors.New("invalid ciphertext")

// ErrInvalidKey is returned when the configured encryption key cannot be
// decoded to 32 raw bytes.
var ErrInvalidKey = errors.New("invalid encryption key")

// devKey is the fixed development fallback used when ENCRYPTION_KEY is unset.
// Production deployments must fail closed before reaching this (see
// config.Load).
var devKey = []byte("salewatch-dev-key-do-not-ship-32")

// Provider performs symmetric authenticated encryption with a process-wide
// 256-bit key. The zero value is unusable; construct via New or FromEnv.
type Provider struct {
	aead cipher.AEAD
}

// New builds a Provider from 32 raw key bytes.
func New(key []byte) (*Provider, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidKey, len(key), KeySize)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to init GCM: %w", err)
	}
	return &Provider{aead: aead}, nil
}

// ParseKey decodes an ENCRYPTION_KEY value: 64 hex characters or base64 of 32
// bytes.
func ParseKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	if len(s) == KeySize*2 {
		if raw, err := hex.DecodeString(s); err == nil {
			return raw, nil
		}
	}
	if raw, err := base64.StdEncoding.DecodeString(s); err == nil && len(raw) == KeySize {
		return raw, nil
	}
	return nil, fmt.Errorf("%w: want 64 hex chars or base64 of 32 bytes", ErrInvalidKey)
}

// FromEnv builds a Provider from the ENCRYPTION_KEY environment variable.
// When the variable is unset it falls back to a fixed development key and
// prints a loud warning; callers running in production should have already
// failed closed.
func FromEnv() (*Provider, error) {
	val := os.Getenv("ENCRYPTION_KEY")
	if val == "" {
		fmt.Fprintln(os.Stderr, "WARNING: ENCRYPTION_KEY not set; using built-in development key. Stored credentials are NOT protected.")
		return New(devKey)
	}
	key, err := ParseKey(val)
	if err != nil {
		return nil, err
	}
	return New(key)
}

// Encrypt seals plaintext and returns the hex-framed blob.
func (p *Provider) Encrypt(plaintext string) (string, error) {
	iv := make([]byte, p.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("failed to generate iv: %w", err)
	}
	sealed := p.aead.Seal(nil, iv, []byte(plaintext), nil)
	// Seal appends the auth tag to the ciphertext; split it back out so the
	// blob matches the iv:tag:ciphertext framing.
	if len(sealed) < gcmTagSize {
		return "", fmt.Errorf("sealed payload too short: %d bytes", len(sealed))
	}
	ct := sealed[:len(sealed)-gcmTagSize]
	tag := sealed[len(sealed)-gcmTagSize:]
	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(tag) + ":" + hex.EncodeToString(ct), nil
}

// Decrypt opens a blob produced by Encrypt. Malformed framing and failed
// authentication both surface ErrInvalidCiphertext.
func (p *Provider) Decrypt(blob string) (string, error) {
	parts := strings.Split(blob, ":")
	if len(parts) != 3 {
		return "", fmt.Errorf("%w: want 3 parts, got %d", ErrInvalidCiphertext, len(parts))
	}
	iv, err := hex.DecodeString(parts[0])
	if err != nil || len(iv) != p.aead.NonceSize() {
		return "", fmt.Errorf("%w: bad iv", ErrInvalidCiphertext)
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil || len(tag) != gcmTagSize {
		return "", fmt.Errorf("%w: bad auth tag", ErrInvalidCiphertext)
	}
	ct, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("%w: bad ciphertext", ErrInvalidCiphertext)
	}
	plain, err := p.aead.Open(nil, iv, append(ct, tag...), nil)
	if err != nil {
		return "", fmt.Errorf("%w: authentication failed", ErrInvalidCiphertext)
	}
	return string(plain), nil
}

// ShortHash returns the last n characters of plaintext for display
// disambiguation. Purely cosmetic, not security-relevant.
func ShortHash(plaintext string, n int) string {
	if n <= 0 || n >= len(plaintext) {
		return plaintext
	}
	return plaintext[len(plaintext)-n:]
}
