package flow

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/noces-app/backend/internal/auth"
	"github.com/noces-app/backend/internal/auth/provider"
	"github.com/noces-app/backend/internal/auth/resolver"
	"github.com/noces-app/backend/internal/auth/token"
	"github.com/noces-app/backend/internal/logger"
	"github.com/noces-app/backend/internal/session"
	"github.com/noces-app/backend/internal/user"
)

const defaultPendingTTL = 10 * time.Minute

// CredentialIssuer mints the local credential.
type CredentialIssuer interface {
	Issue(s token.Subject) (string, error)
}

// Recorder receives login outcomes; metrics.Collector implements it.
type Recorder interface {
	RecordLogin(outcome string)
}

type Options struct {
	UsePKCE    bool
	PendingTTL time.Duration
	Recorder   Recorder
}

// Service sequences login-start, callback, refresh and logout over a
// session. It mutates the session it is given; persisting it is the
// caller's job.
type Service struct {
	provider   provider.OIDCProvider
	resolver   resolver.Resolver
	issuer     CredentialIssuer
	usePKCE    bool
	pendingTTL time.Duration
	recorder   Recorder
	now        func() time.Time
}

func NewService(
	p provider.OIDCProvider,
	r resolver.Resolver,
	issuer CredentialIssuer,
	opts Options,
) *Service {

	ttl := opts.PendingTTL
	if ttl <= 0 {
		ttl = defaultPendingTTL
	}

	return &Service{
		provider:   p,
		resolver:   r,
		issuer:     issuer,
		usePKCE:    opts.UsePKCE,
		pendingTTL: ttl,
		recorder:   opts.Recorder,
		now:        time.Now,
	}

}

// Start moves the session to PendingLogin and returns the authorization
// URL. A previous pending login on the same session is discarded.
func (s *Service) Start(sess *session.Session) string {

	pending := session.PendingLogin{
		State:     auth.GenerateState(),
		Nonce:     auth.GenerateNonce(),
		StartedAt: s.now(),
	}

	challenge := ""
	if s.usePKCE {
		pending.CodeVerifier, challenge = auth.GeneratePKCE()
	}

	sess.BeginLogin(pending)

	return s.provider.AuthorizationURL(pending.State, pending.Nonce, challenge)

}

// CallbackParams are the query parameters of the provider redirect.
type CallbackParams struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// Callback completes a login. The pending pair is consumed whatever the
// outcome; on failure the session is left Anonymous and the returned
// error is an *auth.Error. An Authenticated session has no pending pair
// and is rejected untouched.
func (s *Service) Callback(ctx context.Context, sess *session.Session, params CallbackParams) (*user.User, error) {

	if sess.IsAuthenticated() {
		ae := auth.StateMismatch("callback on an authenticated session")
		s.record(string(ae.Kind))
		logger.Warn("oidc callback without pending login", map[string]any{
			"session_id": sess.ID,
			"user_id":    sess.Auth.UserID,
		})
		return nil, ae
	}

	u, err := s.callback(ctx, sess, params)
	if err != nil {
		sess.Reset()
		ae := auth.AsError(err)
		s.record(string(ae.Kind))
		logger.Warn("oidc callback failed", map[string]any{
			"session_id": sess.ID,
			"kind":       string(ae.Kind),
			"error":      ae.Error(),
		})
		return nil, ae
	}

	s.record("success")
	logger.Info("login succeeded", map[string]any{
		"session_id": sess.ID,
		"user_id":    u.ID,
	})

	return u, nil

}

func (s *Service) callback(ctx context.Context, sess *session.Session, params CallbackParams) (*user.User, error) {

	// 1. consume the pending pair
	pending, ok := sess.TakePending()
	if !ok {
		return nil, auth.StateMismatch("no pending login on this session")
	}

	if s.now().Sub(pending.StartedAt) > s.pendingTTL {
		return nil, auth.StateMismatch("pending login expired")
	}

	// 2. provider reported an error (user cancelled, consent denied, ...)
	if params.Error != "" {
		if subtle.ConstantTimeCompare([]byte(params.State), []byte(pending.State)) != 1 {
			return nil, auth.StateMismatch("provider error with foreign state")
		}
		return nil, auth.TokenExchangeFailed("provider returned "+params.Error+": "+params.ErrorDescription, nil)
	}

	// 3. state check and code exchange
	tokens, err := s.provider.ExchangeCode(ctx, params.Code, params.State, pending.State, pending.Nonce, pending.CodeVerifier)
	if err != nil {
		return nil, err
	}

	// 4. claims
	claims, err := s.fetchClaims(ctx, tokens)
	if err != nil {
		return nil, err
	}

	// 5. local user and credential
	return s.establish(ctx, sess, claims, tokens)

}

// Refresh renews the credential of an Authenticated session from its
// provider refresh token. On failure the session is left unchanged.
func (s *Service) Refresh(ctx context.Context, sess *session.Session) (*user.User, error) {

	if !sess.IsAuthenticated() {
		return nil, auth.MissingCredential()
	}

	tokens, err := s.provider.Refresh(ctx, sess.Auth.RefreshToken)
	if err != nil {
		s.record("refresh_failed")
		return nil, auth.AsError(err)
	}

	claims, err := s.fetchClaims(ctx, tokens)
	if err != nil {
		s.record("refresh_failed")
		return nil, auth.AsError(err)
	}

	u, err := s.establish(ctx, sess, claims, tokens)
	if err != nil {
		s.record("refresh_failed")
		return nil, auth.AsError(err)
	}

	s.record("refreshed")

	return u, nil

}

// Logout resets the session and notifies the provider. The upstream call
// is best-effort and never fails the logout.
func (s *Service) Logout(ctx context.Context, sess *session.Session) {

	refreshToken := ""
	if sess.Auth != nil {
		refreshToken = sess.Auth.RefreshToken
	}

	sess.Reset()

	if refreshToken == "" {
		return
	}

	if err := s.provider.Logout(ctx, refreshToken); err != nil {
		logger.Warn("upstream logout failed", map[string]any{
			"session_id": sess.ID,
			"error":      err.Error(),
		})
	}

}

func (s *Service) fetchClaims(ctx context.Context, tokens *provider.TokenSet) (*auth.Claims, error) {

	claims, err := s.provider.FetchUserInfo(ctx, tokens.AccessToken)
	if err != nil {
		return nil, err
	}

	if tokens.Subject != "" && claims.Subject != tokens.Subject {
		return nil, auth.UserInfoUnavailable("userinfo subject does not match id_token subject", nil)
	}

	return claims, nil

}

func (s *Service) establish(
	ctx context.Context,
	sess *session.Session,
	claims *auth.Claims,
	tokens *provider.TokenSet,
) (*user.User, error) {

	u, err := s.resolver.Resolve(ctx, claims)
	if err != nil {
		return nil, auth.Internal("identity reconciliation failed", err)
	}

	credential, err := s.issuer.Issue(token.Subject{
		ID:    u.ID,
		Email: u.Email,
		Roles: u.Roles,
	})
	if err != nil {
		return nil, auth.Internal("credential issue failed", err)
	}

	refreshToken := tokens.RefreshToken
	if refreshToken == "" && sess.Auth != nil {
		refreshToken = sess.Auth.RefreshToken
	}

	sess.Authenticate(session.Authenticated{
		UserID:          u.ID,
		Credential:      credential,
		RefreshToken:    refreshToken,
		AuthenticatedAt: s.now(),
	})

	return u, nil

}

func (s *Service) record(outcome string) {
	if s.recorder != nil {
		s.recorder.RecordLogin(outcome)
	}
}
