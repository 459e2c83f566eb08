package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
)

// 32 bytes gives 256 bits of entropy, well above the 128 bit floor.
const randomBytes = 32

func randomString(n int) string {
	b := make([]byte, n)
	// crypto/rand.Read never returns an error on supported platforms.
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

// GenerateState returns a URL-safe single-use CSRF correlation value.
func GenerateState() string {
	return randomString(randomBytes)
}

// GenerateNonce returns a URL-safe replay protection value for the ID token.
func GenerateNonce() string {
	return randomString(randomBytes)
}

// GeneratePKCE returns an RFC 7636 verifier and its S256 challenge.
func GeneratePKCE() (verifier string, challenge string) {

	verifier = randomString(randomBytes)

	hash := sha256.Sum256([]byte(verifier))
	challenge = base64.RawURLEncoding.EncodeToString(hash[:])

	return verifier, challenge

}
