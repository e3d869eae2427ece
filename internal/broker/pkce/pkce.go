package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// MethodS256 is the only challenge method this broker emits. RFC 7636
// permits "plain" but a broker that holds the verifier server-side has no
// reason to weaken the exchange.
const MethodS256 = "S256"

// unreserved is the RFC 3986 unreserved character set permitted in a
// code_verifier (RFC 7636 section 4.1).
const unreserved = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-._~"

// verifierLength is the number of verifier characters, one per random byte.
// 96 is within the RFC's 43-128 bound with entropy to spare.
const verifierLength = 96

// Pair is a freshly generated verifier with its derived challenge. A Pair
// belongs to exactly one authorization flow and must never be reused.
type Pair struct {
	Verifier  string
	Challenge string
	Method    string
}

// Generate draws a random code_verifier and computes its S256 challenge:
// base64url(SHA-256(verifier)) without padding.
func Generate() (Pair, error) {
	buf := make([]byte, verifierLength)
	if _, err := rand.Read(buf); err != nil {
		return Pair{}, fmt.Errorf("generate code verifier: %w", err)
	}
	for i, b := range buf {
		buf[i] = unreserved[int(b)%len(unreserved)]
	}
	verifier := string(buf)

	return Pair{
		Verifier:  verifier,
		Challenge: ChallengeFor(verifier),
		Method:    MethodS256,
	}, nil
}

// ChallengeFor derives the S256 challenge for a verifier.
func ChallengeFor(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
