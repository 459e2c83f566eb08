package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/noces-app/backend/internal/auth"

	"github.com/golang-jwt/jwt/v5"
)

const DefaultLifetime = time.Hour

var ErrNoRoles = errors.New("refusing to issue a credential without roles")

// Subject is what the issuer needs to know about a user.
type Subject struct {
	ID    string
	Email string
	Roles []string
}

type Claims struct {
	Email string   `json:"email"`
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// Issuer signs and parses local HS256 credentials. One secret and one
// lifetime per process.
type Issuer struct {
	secret   []byte
	lifetime time.Duration
	now      func() time.Time
}

func NewIssuer(secret string, lifetime time.Duration) *Issuer {

	if lifetime <= 0 {
		lifetime = DefaultLifetime
	}

	return &Issuer{
		secret:   []byte(secret),
		lifetime: lifetime,
		now:      time.Now,
	}

}

// WithClock returns a copy of the issuer reading time from now.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	c := *i
	c.now = now
	return &c
}

func (i *Issuer) Lifetime() time.Duration {
	return i.lifetime
}

func (i *Issuer) Issue(s Subject) (string, error) {

	if s.ID == "" {
		return "", errors.New("refusing to issue a credential without subject")
	}

	if len(s.Roles) == 0 {
		return "", ErrNoRoles
	}

	now := i.now()

	claims := Claims{
		Email: s.Email,
		Roles: append([]string(nil), s.Roles...),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.lifetime)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign credential: %w", err)
	}

	return signed, nil

}

// Parse verifies signature then expiry. An expired but correctly signed
// credential is Expired; every other failure is InvalidCredential.
func (i *Issuer) Parse(raw string) (*Claims, error) {

	claims := &Claims{}

	_, err := jwt.ParseWithClaims(
		raw,
		claims,
		func(t *jwt.Token) (any, error) {
			return i.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)

	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, auth.Expired(err)
	default:
		return nil, auth.InvalidCredential(err)
	}

	if claims.Subject == "" {
		return nil, auth.InvalidCredential(errors.New("credential has no subject"))
	}

	return claims, nil

}
