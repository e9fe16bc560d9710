package userauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
)

// generatePkceVerifier produces a fresh PKCE code verifier: 32 bytes of
// cryptographic randomness, base64url-encoded without padding, yielding 43 usable
// characters (the RFC 7636 minimum)
func generatePkceVerifier() string {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes)
}

// computePkceChallenge derives the S256 code challenge for a verifier: the SHA-256
// digest of the verifier, base64url-encoded with padding stripped
func computePkceChallenge(verifier string) string {
	digest := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(digest[:])
}
