// Package idgen generates opaque identifiers for credentials and sync runs.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// NewCredentialID returns a random 32-character hex id. Credential ids are
// public handles (they appear in URLs and logs); the key itself never is.
func NewCredentialID() (string, error) {
	return randomHex(16)
}

// NewSyncID returns a random 16-character hex id for one sync run.
func NewSyncID() (string, error) {
	return randomHex(8)
}

func randomHex(nBytes int) (string, error) {
	buf := make([]byte, nBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
