package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var urlSafe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

func TestGenerateStateAndNonceAreUniqueAndURLSafe(t *testing.T) {

	seen := make(map[string]struct{})

	for i := 0; i < 1000; i++ {
		for _, v := range []string{GenerateState(), GenerateNonce()} {
			require.True(t, urlSafe.MatchString(v), v)
			// 32 random bytes, unpadded base64url.
			require.Len(t, v, 43)
			_, dup := seen[v]
			require.False(t, dup, "duplicate value %q", v)
			seen[v] = struct{}{}
		}
	}

}

func TestGeneratePKCE(t *testing.T) {

	verifier, challenge := GeneratePKCE()

	sum := sha256.Sum256([]byte(verifier))
	assert.Equal(t, base64.RawURLEncoding.EncodeToString(sum[:]), challenge)
	assert.GreaterOrEqual(t, len(verifier), 43)

}

func TestClaimsNames(t *testing.T) {

	cases := []struct {
		name   string
		claims Claims
		given  string
		family string
	}{
		{"explicit", Claims{GivenName: "Alice", FamilyName: "Martin", FullName: "ignored"}, "Alice", "Martin"},
		{"given only", Claims{GivenName: "Alice", FullName: "A B"}, "Alice", ""},
		{"split full name", Claims{FullName: "Alice Marie  de Martin"}, "Alice", "Marie de Martin"},
		{"single token", Claims{FullName: "Alice"}, "Alice", ""},
		{"nothing", Claims{}, "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			given, family := tc.claims.Names()
			assert.Equal(t, tc.given, given)
			assert.Equal(t, tc.family, family)
		})
	}

}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "alice@x.com", NormalizeEmail("  Alice@X.com "))
}

func TestHasAnyRole(t *testing.T) {

	assert.True(t, HasAnyRole([]string{"user", "admin"}, RoleAdmin))
	assert.True(t, HasAnyRole([]string{"user"}, RoleAdmin, RoleUser))
	assert.False(t, HasAnyRole([]string{"user"}, RoleAdmin))
	assert.False(t, HasAnyRole(nil, RoleUser))
	assert.False(t, HasAnyRole([]string{"user"}))

}

func TestErrorKinds(t *testing.T) {

	cause := errors.New("dial tcp 10.0.0.1:8080: connection refused")
	err := fmt.Errorf("callback: %w", TokenExchangeFailed("exchange code", cause))

	assert.True(t, IsKind(err, KindTokenExchangeFailed))
	assert.False(t, IsKind(err, KindStateMismatch))
	assert.Equal(t, KindTokenExchangeFailed, KindOf(err))
	assert.ErrorIs(t, err, cause)

	ae := AsError(err)
	assert.NotContains(t, ae.PublicMessage(), "10.0.0.1")
	assert.Contains(t, ae.Error(), "connection refused")

	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
	assert.Equal(t, KindInternal, AsError(errors.New("plain")).Kind)

}
