package cookie

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"

	dErrors "authgate/pkg/domain-errors"
)

// Signer produces tamper-evident cookie values in the form
// "<hex(HMAC-SHA256(key, payload))>.<base64(payload)>". Each Signer owns a
// purpose-specific key derived from the master secret, so a value signed for
// one cookie can never verify as another.
type Signer struct {
	key []byte
}

// NewSigner derives the signing key for the given purpose from the master
// secret via HKDF-SHA256.
func NewSigner(secret, purpose string) (*Signer, error) {
	if secret == "" {
		return nil, dErrors.New(dErrors.CodeInternal, "cookie secret is not configured")
	}
	key := make([]byte, sha256.Size)
	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte("authgate/cookie/"+purpose))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("derive cookie key for %q: %w", purpose, err)
	}
	return &Signer{key: key}, nil
}

// Sign wraps payload into a signed cookie value.
func (s *Signer) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write(payload)
	sig := hex.EncodeToString(mac.Sum(nil))
	return sig + "." + base64.StdEncoding.EncodeToString(payload)
}

// Verify checks the signature and returns the embedded payload. The MAC
// comparison is constant-time; any structural defect fails closed.
func (s *Signer) Verify(value string) ([]byte, error) {
	sig, encoded, ok := strings.Cut(value, ".")
	if !ok {
		return nil, dErrors.New(dErrors.CodeSecurityViolation, "malformed signed cookie value")
	}
	payload, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeSecurityViolation, "undecodable signed cookie payload")
	}
	supplied, err := hex.DecodeString(sig)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeSecurityViolation, "undecodable cookie signature")
	}

	mac := hmac.New(sha256.New, s.key)
	mac.Write(payload)
	if !hmac.Equal(supplied, mac.Sum(nil)) {
		return nil, dErrors.New(dErrors.CodeSecurityViolation, "cookie signature mismatch")
	}
	return payload, nil
}
