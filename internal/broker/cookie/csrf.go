package cookie

import (
	"crypto/subtle"

	"github.com/google/uuid"

	dErrors "authgate/pkg/domain-errors"
)

// NewCSRFToken mints the double-submit token embedded in the consent form
// and mirrored into a cookie.
func NewCSRFToken() string {
	return uuid.NewString()
}

// ValidateCSRF requires both halves of the double-submit pair to be present
// and equal. An attacker who can forge the form post cannot also set the
// cookie, so equality proves the submission came from our rendered dialog.
func ValidateCSRF(formToken, cookieToken string) error {
	if formToken == "" || cookieToken == "" {
		return dErrors.New(dErrors.CodeInvalidRequest, "missing csrf token")
	}
	if subtle.ConstantTimeCompare([]byte(formToken), []byte(cookieToken)) != 1 {
		return dErrors.New(dErrors.CodeSecurityViolation, "csrf token mismatch")
	}
	return nil
}
