// Package session ties an in-flight authorization state token to the browser
// that initiated it. The binding cookie carries hex(SHA-256(stateToken)), so
// a callback presenting a valid, unexpired state token is still rejected
// unless it arrives from the browser that received the cookie. This defeats
// attackers who pre-register a legitimate state token and trick a victim
// into completing it under the attacker's identity.
package session

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// Bind computes the cookie value for a state token.
func Bind(stateToken string) string {
	sum := sha256.Sum256([]byte(stateToken))
	return hex.EncodeToString(sum[:])
}

// Validate recomputes the binding and compares it to the presented cookie
// value in constant time.
func Validate(stateToken, cookieValue string) bool {
	if stateToken == "" || cookieValue == "" {
		return false
	}
	want := Bind(stateToken)
	return subtle.ConstantTimeCompare([]byte(want), []byte(cookieValue)) == 1
}
