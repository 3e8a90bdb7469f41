// Package pkce generates the random values used by the PKCE extension of the
// OAuth 2.0 authorization code flow (RFC 7636) and the OIDC state/nonce pair.
package pkce

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/oauth2"
)

// MethodS256 is the only challenge method we send
const MethodS256 = "S256"

const (
	stateBytes = 16
	nonceBytes = 16
)

// GenerateCodeVerifier returns 32 random bytes encoded as unpadded base64url.
// It panics if the system random source fails.
func GenerateCodeVerifier() string {
	return oauth2.GenerateVerifier()
}

// GenerateCodeChallenge returns base64url(SHA-256(verifier)) without padding
func GenerateCodeChallenge(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}

// GenerateState returns a CSRF token for the authorization request
func GenerateState() (string, error) {
	return randomToken(stateBytes)
}

// GenerateNonce returns an OIDC replay-protection value
func GenerateNonce() (string, error) {
	return randomToken(nonceBytes)
}

func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
