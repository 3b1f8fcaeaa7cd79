package session

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

const tokenBytes = 32 // 256 bits

// NewToken returns a random URL-safe token. It backs session tokens as
// well as the OAuth state and PKCE verifier values.
func NewToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("session: failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
