package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIs(t *testing.T) {
	t.Run("matches code on direct error", func(t *testing.T) {
		err := New(CodeInvalidRequest, "missing client_id")
		assert.True(t, Is(err, CodeInvalidRequest))
		assert.False(t, Is(err, CodeInternal))
	})

	t.Run("matches code through fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("handling authorize: %w", New(CodeInvalidGrant, "state not found"))
		assert.True(t, Is(err, CodeInvalidGrant))
	})

	t.Run("plain errors carry no code", func(t *testing.T) {
		assert.False(t, Is(errors.New("boom"), CodeInternal))
		assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
	})
}

func TestWrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(cause, CodeInternal, "upstream exchange failed")

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "upstream exchange failed")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestToHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, ToHTTPStatus(CodeInvalidRequest))
	assert.Equal(t, http.StatusBadRequest, ToHTTPStatus(CodeSecurityViolation))
	assert.Equal(t, http.StatusUnauthorized, ToHTTPStatus(CodeUnauthorized))
	assert.Equal(t, http.StatusNotFound, ToHTTPStatus(CodeNotFound))
	assert.Equal(t, http.StatusInternalServerError, ToHTTPStatus(CodeInternal))
}

func TestToOAuthCode(t *testing.T) {
	assert.Equal(t, "invalid_request", ToOAuthCode(CodeInvalidRequest))
	assert.Equal(t, "access_denied", ToOAuthCode(CodeSecurityViolation))
	assert.Equal(t, "server_error", ToOAuthCode(CodeInternal))
}
