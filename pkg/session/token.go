package session

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
)

const (
	// TokenPrefix identifies gatehouse session tokens
	TokenPrefix = "gh_"
	// TokenLength is the number of random bytes per token (32 bytes = 256 bits)
	TokenLength = 32
)

// NewToken creates a fresh session token.
// Format: gh_<base64url(32 random bytes)>
//
// The token is a bearer capability: possession is sufficient for validation
// success, so the only defense is entropy. Tokens carry no embedded
// structure and are never reused across sessions.
func NewToken() (string, error) {
	randomBytes := make([]byte, TokenLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	return TokenPrefix + base64.RawURLEncoding.EncodeToString(randomBytes), nil
}

// ValidateTokenFormat checks if a token has the correct shape before it is
// ever sent to the store. A malformed token can be rejected without a
// round trip, but callers must report the failure exactly like a miss.
func ValidateTokenFormat(token string) error {
	if !strings.HasPrefix(token, TokenPrefix) {
		return fmt.Errorf("token must start with %q", TokenPrefix)
	}

	encodedPart := strings.TrimPrefix(token, TokenPrefix)
	if len(encodedPart) == 0 {
		return fmt.Errorf("token is too short")
	}

	if _, err := base64.RawURLEncoding.DecodeString(encodedPart); err != nil {
		return fmt.Errorf("invalid token encoding: %w", err)
	}

	return nil
}
