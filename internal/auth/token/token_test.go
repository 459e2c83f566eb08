package token

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/noces-app/backend/internal/auth"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "0123456789abcdef-test"

var alice = Subject{ID: "u-1", Email: "alice@x.com", Roles: []string{"user"}}

func TestIssueAndParse(t *testing.T) {

	iss := NewIssuer(secret, 0)
	assert.Equal(t, time.Hour, iss.Lifetime())

	raw, err := iss.Issue(alice)
	require.NoError(t, err)

	// Any issuer sharing the secret accepts it.
	claims, err := NewIssuer(secret, time.Minute).Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "u-1", claims.Subject)
	assert.Equal(t, "alice@x.com", claims.Email)
	assert.Equal(t, []string{"user"}, claims.Roles)
	assert.WithinDuration(t, claims.IssuedAt.Add(time.Hour), claims.ExpiresAt.Time, time.Second)

}

func TestIssueRefusesEmptyRoles(t *testing.T) {

	_, err := NewIssuer(secret, time.Hour).Issue(Subject{ID: "u-1", Email: "a@x.com"})
	assert.ErrorIs(t, err, ErrNoRoles)

}

func TestParseExpired(t *testing.T) {

	past := time.Now().Add(-2 * time.Hour)
	raw, err := NewIssuer(secret, time.Hour).WithClock(func() time.Time { return past }).Issue(alice)
	require.NoError(t, err)

	_, err = NewIssuer(secret, time.Hour).Parse(raw)
	require.Error(t, err)
	assert.True(t, auth.IsKind(err, auth.KindExpired))

}

func TestParseWrongSecret(t *testing.T) {

	raw, err := NewIssuer(secret, time.Hour).Issue(alice)
	require.NoError(t, err)

	_, err = NewIssuer("another-secret-0123456789", time.Hour).Parse(raw)
	assert.True(t, auth.IsKind(err, auth.KindInvalidCredential))

}

func TestParseExpiredWithWrongSecretIsInvalid(t *testing.T) {

	past := time.Now().Add(-2 * time.Hour)
	raw, err := NewIssuer(secret, time.Hour).WithClock(func() time.Time { return past }).Issue(alice)
	require.NoError(t, err)

	_, err = NewIssuer("another-secret-0123456789", time.Hour).Parse(raw)
	assert.True(t, auth.IsKind(err, auth.KindInvalidCredential))

}

func TestParseTamperedClaims(t *testing.T) {

	iss := NewIssuer(secret, time.Hour)

	raw, err := iss.Issue(alice)
	require.NoError(t, err)

	parts := strings.Split(raw, ".")
	require.Len(t, parts, 3)

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)

	for i := range payload {
		mutated := append([]byte(nil), payload...)
		mutated[i] ^= 0x01
		forged := parts[0] + "." + base64.RawURLEncoding.EncodeToString(mutated) + "." + parts[2]

		_, err := iss.Parse(forged)
		require.Error(t, err, "byte %d", i)
		require.False(t, auth.IsKind(err, auth.KindExpired), "byte %d", i)
	}

	escalated := strings.Replace(string(payload), `"user"`, `"admin"`, 1)
	forged := parts[0] + "." + base64.RawURLEncoding.EncodeToString([]byte(escalated)) + "." + parts[2]
	_, err = iss.Parse(forged)
	assert.True(t, auth.IsKind(err, auth.KindInvalidCredential))

}

func TestParseRejectsOtherAlgorithms(t *testing.T) {

	claims := Claims{
		Email: "alice@x.com",
		Roles: []string{"admin"},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}

	raw, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewIssuer(secret, time.Hour).Parse(raw)
	assert.True(t, auth.IsKind(err, auth.KindInvalidCredential))

	raw, err = jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(secret))
	require.NoError(t, err)

	_, err = NewIssuer(secret, time.Hour).Parse(raw)
	assert.True(t, auth.IsKind(err, auth.KindInvalidCredential))

}

func TestParseGarbage(t *testing.T) {

	for _, raw := range []string{"", "abc", "a.b.c"} {
		_, err := NewIssuer(secret, time.Hour).Parse(raw)
		assert.True(t, auth.IsKind(err, auth.KindInvalidCredential), raw)
	}

}
