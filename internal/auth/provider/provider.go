package provider

import (
	"context"
	"time"

	"github.com/noces-app/backend/internal/auth"
)

// TokenSet holds the artifacts of a successful code exchange or refresh.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	IDToken      string
	Subject      string // ID token subject, empty on refreshes without an ID token
	Expiry       time.Time
}

// OIDCProvider isolates every interaction with the external identity
// provider. Implementations return identity facts only and must not create
// users, sessions, or perform linking logic.
type OIDCProvider interface {
	// AuthorizationURL builds the authorize endpoint URL. No network call.
	// An empty codeChallenge disables PKCE.
	AuthorizationURL(state, nonce, codeChallenge string) string

	// ExchangeCode fails with StateMismatch before any network call when
	// state != savedState. Provider or validation failures are
	// TokenExchangeFailed.
	ExchangeCode(ctx context.Context, code, state, savedState, nonce, codeVerifier string) (*TokenSet, error)

	// FetchUserInfo fails with UserInfoUnavailable.
	FetchUserInfo(ctx context.Context, accessToken string) (*auth.Claims, error)

	// Refresh trades a refresh token for a new token set.
	Refresh(ctx context.Context, refreshToken string) (*TokenSet, error)

	// Logout notifies the provider that the user's session ended.
	Logout(ctx context.Context, refreshToken string) error
}
