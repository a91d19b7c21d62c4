// Package crypto provides cryptographic utilities for Bodleian Archive.
package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// sessionTokenBytes is the entropy of a session token (256 bits).
const sessionTokenBytes = 32

// GenerateSessionToken generates a random hex-encoded session token.
func GenerateSessionToken() (string, error) {
	buf := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
