package flow

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/noces-app/backend/internal/auth"
	"github.com/noces-app/backend/internal/auth/provider"
	"github.com/noces-app/backend/internal/auth/resolver"
	"github.com/noces-app/backend/internal/auth/token"
	"github.com/noces-app/backend/internal/session"
	"github.com/noces-app/backend/internal/user/usertest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider performs the real state check and counts "network" calls.
type fakeProvider struct {
	exchangeCalls int
	userInfoCalls int
	logoutCalls   int

	claims      *auth.Claims
	userInfoErr error
	exchangeErr error
	logoutErr   error
	subject     string
	gotVerifier string
}

func (f *fakeProvider) AuthorizationURL(state, nonce, challenge string) string {
	q := url.Values{"state": {state}, "nonce": {nonce}}
	if challenge != "" {
		q.Set("code_challenge", challenge)
	}
	return "https://idp.example/auth?" + q.Encode()
}

func (f *fakeProvider) ExchangeCode(_ context.Context, code, state, savedState, nonce, verifier string) (*provider.TokenSet, error) {
	if state != savedState {
		return nil, auth.StateMismatch("mismatch")
	}
	f.exchangeCalls++
	f.gotVerifier = verifier
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	sub := f.subject
	if sub == "" && f.claims != nil {
		sub = f.claims.Subject
	}
	return &provider.TokenSet{AccessToken: "at", RefreshToken: "rt", Subject: sub}, nil
}

func (f *fakeProvider) FetchUserInfo(context.Context, string) (*auth.Claims, error) {
	f.userInfoCalls++
	if f.userInfoErr != nil {
		return nil, f.userInfoErr
	}
	c := *f.claims
	return &c, nil
}

func (f *fakeProvider) Refresh(_ context.Context, rt string) (*provider.TokenSet, error) {
	if rt != "rt" {
		return nil, auth.TokenExchangeFailed("unknown refresh token", nil)
	}
	return &provider.TokenSet{AccessToken: "at2", RefreshToken: "rt2"}, nil
}

func (f *fakeProvider) Logout(context.Context, string) error {
	f.logoutCalls++
	return f.logoutErr
}

type recorder struct{ outcomes []string }

func (r *recorder) RecordLogin(o string) { r.outcomes = append(r.outcomes, o) }

const secret = "jwt-secret-0123456789"

func newService(p *fakeProvider) (*Service, *usertest.Directory, *recorder) {
	dir := usertest.NewDirectory()
	rec := &recorder{}
	svc := NewService(p, resolver.NewDirectoryResolver(dir), token.NewIssuer(secret, time.Hour), Options{
		UsePKCE:  true,
		Recorder: rec,
	})
	return svc, dir, rec
}

func newSession() *session.Session {
	return &session.Session{ID: "sid", Kind: session.KindAnonymous}
}

func alice() *auth.Claims {
	return &auth.Claims{Subject: "abc123", Email: "alice@x.com", GivenName: "Alice"}
}

func TestStartStoresPendingPairMatchingURL(t *testing.T) {

	svc, _, _ := newService(&fakeProvider{})
	sess := newSession()

	raw := svc.Start(sess)

	u, err := url.Parse(raw)
	require.NoError(t, err)

	require.Equal(t, session.KindPendingLogin, sess.Kind)
	assert.Equal(t, sess.Pending.State, u.Query().Get("state"))
	assert.Equal(t, sess.Pending.Nonce, u.Query().Get("nonce"))
	assert.NotEmpty(t, sess.Pending.CodeVerifier)
	assert.NotEmpty(t, u.Query().Get("code_challenge"))

	first := sess.Pending.State
	svc.Start(sess)
	assert.NotEqual(t, first, sess.Pending.State, "second login-start replaces the first")

}

func TestCallbackSuccess(t *testing.T) {

	p := &fakeProvider{claims: alice()}
	svc, dir, rec := newService(p)
	sess := newSession()

	svc.Start(sess)
	state, verifier := sess.Pending.State, sess.Pending.CodeVerifier

	u, err := svc.Callback(context.Background(), sess, CallbackParams{Code: "c", State: state})
	require.NoError(t, err)

	assert.Equal(t, 1, dir.Len())
	assert.Equal(t, []string{"user"}, u.Roles)
	assert.Equal(t, verifier, p.gotVerifier)

	require.True(t, sess.IsAuthenticated())
	assert.Nil(t, sess.Pending)
	assert.Equal(t, "rt", sess.Auth.RefreshToken)

	claims, err := token.NewIssuer(secret, time.Hour).Parse(sess.Credential())
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.Subject)

	assert.Equal(t, []string{"success"}, rec.outcomes)

}

func TestCallbackStateMismatchNeverExchanges(t *testing.T) {

	p := &fakeProvider{claims: alice()}
	svc, dir, rec := newService(p)
	sess := newSession()

	svc.Start(sess)

	_, err := svc.Callback(context.Background(), sess, CallbackParams{Code: "c", State: "forged"})
	require.Error(t, err)
	assert.True(t, auth.IsKind(err, auth.KindStateMismatch))

	assert.Zero(t, p.exchangeCalls)
	assert.Zero(t, p.userInfoCalls)
	assert.Zero(t, dir.Len())
	assert.Equal(t, session.KindAnonymous, sess.Kind)
	assert.Nil(t, sess.Pending, "pending pair consumed on failure")
	assert.Equal(t, []string{string(auth.KindStateMismatch)}, rec.outcomes)

}

func TestCallbackWithoutPendingLogin(t *testing.T) {

	p := &fakeProvider{claims: alice()}
	svc, _, _ := newService(p)

	_, err := svc.Callback(context.Background(), newSession(), CallbackParams{Code: "c", State: "s"})
	assert.True(t, auth.IsKind(err, auth.KindStateMismatch))
	assert.Zero(t, p.exchangeCalls)

}

func TestCallbackReplayFails(t *testing.T) {

	p := &fakeProvider{claims: alice()}
	svc, _, _ := newService(p)
	sess := newSession()

	svc.Start(sess)
	state := sess.Pending.State

	_, err := svc.Callback(context.Background(), sess, CallbackParams{Code: "c", State: state})
	require.NoError(t, err)
	credential := sess.Credential()

	_, err = svc.Callback(context.Background(), sess, CallbackParams{Code: "c", State: state})
	assert.True(t, auth.IsKind(err, auth.KindStateMismatch))
	assert.Equal(t, 1, p.exchangeCalls)

	// A stray callback must not log the user out.
	require.True(t, sess.IsAuthenticated())
	assert.Equal(t, credential, sess.Credential())

}

func TestCallbackExpiredPendingLogin(t *testing.T) {

	p := &fakeProvider{claims: alice()}
	svc, _, _ := newService(p)
	sess := newSession()

	svc.Start(sess)
	sess.Pending.StartedAt = time.Now().Add(-time.Hour)

	_, err := svc.Callback(context.Background(), sess, CallbackParams{Code: "c", State: sess.Pending.State})
	assert.True(t, auth.IsKind(err, auth.KindStateMismatch))
	assert.Zero(t, p.exchangeCalls)

}

func TestCallbackProviderError(t *testing.T) {

	p := &fakeProvider{claims: alice()}
	svc, _, _ := newService(p)
	sess := newSession()

	svc.Start(sess)

	_, err := svc.Callback(context.Background(), sess, CallbackParams{
		State: sess.Pending.State,
		Error: "access_denied",
	})
	assert.True(t, auth.IsKind(err, auth.KindTokenExchangeFailed))
	assert.Zero(t, p.exchangeCalls)

}

func TestCallbackProviderErrorWithForeignState(t *testing.T) {

	p := &fakeProvider{claims: alice()}
	svc, _, _ := newService(p)
	sess := newSession()

	svc.Start(sess)

	_, err := svc.Callback(context.Background(), sess, CallbackParams{
		State: "forged",
		Error: "access_denied",
	})
	assert.True(t, auth.IsKind(err, auth.KindStateMismatch))
	assert.Equal(t, session.KindAnonymous, sess.Kind)

}

func TestCallbackFailuresResetSession(t *testing.T) {

	cases := []struct {
		name string
		p    *fakeProvider
		kind auth.Kind
	}{
		{"exchange", &fakeProvider{claims: alice(), exchangeErr: auth.TokenExchangeFailed("boom", errors.New("dial tcp"))}, auth.KindTokenExchangeFailed},
		{"userinfo", &fakeProvider{claims: alice(), userInfoErr: auth.UserInfoUnavailable("boom", nil)}, auth.KindUserInfoUnavailable},
		{"subject mismatch", &fakeProvider{claims: alice(), subject: "someone-else"}, auth.KindUserInfoUnavailable},
		{"no email", &fakeProvider{claims: &auth.Claims{Subject: "abc123"}}, auth.KindInternal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, dir, _ := newService(tc.p)
			sess := newSession()

			svc.Start(sess)

			_, err := svc.Callback(context.Background(), sess, CallbackParams{Code: "c", State: sess.Pending.State})
			require.Error(t, err)
			assert.Equal(t, tc.kind, auth.KindOf(err))
			assert.Equal(t, session.KindAnonymous, sess.Kind)
			assert.Zero(t, dir.Len())
		})
	}

}

func TestRefresh(t *testing.T) {

	p := &fakeProvider{claims: alice()}
	svc, _, _ := newService(p)
	sess := newSession()

	_, err := svc.Refresh(context.Background(), sess)
	assert.True(t, auth.IsKind(err, auth.KindMissingCredential))

	svc.Start(sess)
	_, err = svc.Callback(context.Background(), sess, CallbackParams{Code: "c", State: sess.Pending.State})
	require.NoError(t, err)

	_, err = svc.Refresh(context.Background(), sess)
	require.NoError(t, err)
	assert.True(t, sess.IsAuthenticated())
	assert.Equal(t, "rt2", sess.Auth.RefreshToken)

	before := *sess.Auth
	_, err = svc.Refresh(context.Background(), sess)
	assert.True(t, auth.IsKind(err, auth.KindTokenExchangeFailed))
	assert.Equal(t, before, *sess.Auth, "failed refresh leaves the session unchanged")

}

func TestLogoutClearsSessionEvenWhenUpstreamFails(t *testing.T) {

	p := &fakeProvider{claims: alice(), logoutErr: errors.New("upstream down")}
	svc, _, _ := newService(p)
	sess := newSession()

	svc.Start(sess)
	_, err := svc.Callback(context.Background(), sess, CallbackParams{Code: "c", State: sess.Pending.State})
	require.NoError(t, err)

	svc.Logout(context.Background(), sess)

	assert.Equal(t, 1, p.logoutCalls)
	assert.Equal(t, session.KindAnonymous, sess.Kind)
	assert.Empty(t, sess.Credential())

	// anonymous logout does not call upstream
	svc.Logout(context.Background(), newSession())
	assert.Equal(t, 1, p.logoutCalls)

}
