package pkce

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	t.Run("verifier uses only unreserved characters", func(t *testing.T) {
		pair, err := Generate()
		require.NoError(t, err)

		assert.Len(t, pair.Verifier, verifierLength)
		for _, c := range pair.Verifier {
			assert.True(t, strings.ContainsRune(unreserved, c), "unexpected verifier character %q", c)
		}
	})

	t.Run("challenge is unpadded base64url of sha256", func(t *testing.T) {
		pair, err := Generate()
		require.NoError(t, err)

		sum := sha256.Sum256([]byte(pair.Verifier))
		want := base64.RawURLEncoding.EncodeToString(sum[:])
		assert.Equal(t, want, pair.Challenge)
		assert.NotContains(t, pair.Challenge, "=")
		assert.Equal(t, MethodS256, pair.Method)
	})

	t.Run("pairs are unique per flow", func(t *testing.T) {
		seen := make(map[string]bool)
		for i := 0; i < 64; i++ {
			pair, err := Generate()
			require.NoError(t, err)
			assert.False(t, seen[pair.Verifier], "verifier reused")
			seen[pair.Verifier] = true
		}
	})
}

func TestChallengeFor(t *testing.T) {
	// Fixed vector from RFC 7636 appendix B.
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	assert.Equal(t, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM", ChallengeFor(verifier))
}
