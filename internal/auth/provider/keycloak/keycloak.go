package keycloak

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/noces-app/backend/internal/auth"
	"github.com/noces-app/backend/internal/auth/provider"
	"github.com/noces-app/backend/internal/logger"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

const defaultTimeout = 10 * time.Second

type Config struct {
	// Issuer is the realm issuer URL, e.g.
	// http://localhost:8080/realms/noces
	Issuer string
	// PublicIssuer replaces Issuer in the browser-facing authorize URL when
	// the server reaches the provider on a different host.
	PublicIssuer string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// PostLogoutRedirectURL is forwarded to the end_session endpoint as
	// post_logout_redirect_uri. It does not affect where the API redirects.
	PostLogoutRedirectURL string
	Scopes                []string
	// Timeout bounds every outbound call, discovery included.
	Timeout time.Duration
}

// Provider implements the authorization code flow against Keycloak.
// It returns identity facts only; no user/session decisions are made here.
type Provider struct {
	oidcProvider  *oidc.Provider
	oauthConfig   *oauth2.Config
	verifier      *oidc.IDTokenVerifier
	httpClient    *http.Client
	timeout       time.Duration
	endSessionURL string
	clientID      string
	clientSecret  string

	postLogoutRedirectURL string
}

var _ provider.OIDCProvider = (*Provider)(nil)

// New performs one-time discovery. A failure here must abort startup.
func New(ctx context.Context, cfg Config) (*Provider, error) {

	if cfg.Issuer == "" || cfg.ClientID == "" || cfg.RedirectURL == "" {
		return nil, errors.New("keycloak oidc config missing required fields")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	httpClient := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			TLSHandshakeTimeout:   timeout,
			ResponseHeaderTimeout: timeout,
		},
	}

	discoveryCtx, cancel := context.WithTimeout(oidc.ClientContext(ctx, httpClient), timeout)
	defer cancel()

	oidcProvider, err := oidc.NewProvider(discoveryCtx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("keycloak oidc discovery failed: %w", err)
	}

	var metadata struct {
		EndSessionEndpoint string `json:"end_session_endpoint"`
	}
	if err := oidcProvider.Claims(&metadata); err != nil {
		return nil, fmt.Errorf("keycloak oidc metadata parse failed: %w", err)
	}

	ep := oidcProvider.Endpoint()
	if cfg.PublicIssuer != "" {
		ep.AuthURL = rebase(ep.AuthURL, cfg.Issuer, cfg.PublicIssuer)
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "email", "profile"}
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Endpoint:     ep,
		Scopes:       scopes,
	}

	logger.Info("keycloak oidc provider discovered", map[string]any{
		"issuer":          cfg.Issuer,
		"end_session":     metadata.EndSessionEndpoint != "",
		"public_base_url": cfg.PublicIssuer,
	})

	return &Provider{
		oidcProvider: oidcProvider,
		oauthConfig:  oauthCfg,
		verifier: oidcProvider.Verifier(&oidc.Config{
			ClientID: cfg.ClientID,
		}),
		httpClient:    httpClient,
		timeout:       timeout,
		endSessionURL: metadata.EndSessionEndpoint,
		clientID:      cfg.ClientID,
		clientSecret:  cfg.ClientSecret,

		postLogoutRedirectURL: cfg.PostLogoutRedirectURL,
	}, nil

}

func (p *Provider) AuthorizationURL(state, nonce, codeChallenge string) string {

	opts := []oauth2.AuthCodeOption{
		oauth2.AccessTypeOnline,
		oidc.Nonce(nonce),
	}

	if codeChallenge != "" {
		opts = append(opts,
			oauth2.SetAuthURLParam("code_challenge", codeChallenge),
			oauth2.SetAuthURLParam("code_challenge_method", "S256"),
		)
	}

	return p.oauthConfig.AuthCodeURL(state, opts...)

}

func (p *Provider) ExchangeCode(
	ctx context.Context,
	code string,
	state string,
	savedState string,
	nonce string,
	codeVerifier string,
) (*provider.TokenSet, error) {

	// 1. CSRF check, before anything leaves the process
	if savedState == "" || subtle.ConstantTimeCompare([]byte(state), []byte(savedState)) != 1 {
		return nil, auth.StateMismatch("returned state does not match the pending login")
	}

	if code == "" {
		return nil, auth.TokenExchangeFailed("authorization code missing", nil)
	}

	ctx, cancel := p.callContext(ctx)
	defer cancel()

	// 2. code for tokens
	var opts []oauth2.AuthCodeOption
	if codeVerifier != "" {
		opts = append(opts, oauth2.SetAuthURLParam("code_verifier", codeVerifier))
	}

	token, err := p.oauthConfig.Exchange(ctx, code, opts...)
	if err != nil {
		return nil, auth.TokenExchangeFailed("token endpoint rejected the code", err)
	}

	// 3. ID token: signature, issuer, audience, expiry, then nonce
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, auth.TokenExchangeFailed("keycloak did not return id_token", nil)
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, auth.TokenExchangeFailed("id_token verification failed", err)
	}

	if nonce == "" || subtle.ConstantTimeCompare([]byte(idToken.Nonce), []byte(nonce)) != 1 {
		return nil, auth.TokenExchangeFailed("id_token nonce mismatch", nil)
	}

	logger.Debug("keycloak id_token verified", map[string]any{
		"issuer":      idToken.Issuer,
		"audience":    idToken.Audience,
		"expiry_unix": idToken.Expiry.Unix(),
	})

	return &provider.TokenSet{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		IDToken:      rawIDToken,
		Subject:      idToken.Subject,
		Expiry:       token.Expiry,
	}, nil

}

// keycloakClaims mirrors the userinfo document, including Keycloak's
// realm_access role container.
type keycloakClaims struct {
	Subject           string   `json:"sub"`
	Email             string   `json:"email"`
	GivenName         string   `json:"given_name"`
	FamilyName        string   `json:"family_name"`
	Name              string   `json:"name"`
	PreferredUsername string   `json:"preferred_username"`
	Roles             []string `json:"roles"`
	RealmAccess       struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
}

func (p *Provider) FetchUserInfo(ctx context.Context, accessToken string) (*auth.Claims, error) {

	if accessToken == "" {
		return nil, auth.UserInfoUnavailable("access token missing", nil)
	}

	ctx, cancel := p.callContext(ctx)
	defer cancel()

	info, err := p.oidcProvider.UserInfo(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))
	if err != nil {
		return nil, auth.UserInfoUnavailable("userinfo request failed", err)
	}

	var raw keycloakClaims
	if err := info.Claims(&raw); err != nil {
		return nil, auth.UserInfoUnavailable("userinfo claims parse failed", err)
	}

	if raw.Subject == "" || raw.Email == "" {
		return nil, auth.UserInfoUnavailable("userinfo missing required claims", nil)
	}

	return &auth.Claims{
		Subject:    raw.Subject,
		Email:      raw.Email,
		GivenName:  raw.GivenName,
		FamilyName: raw.FamilyName,
		FullName:   raw.Name,
		Roles:      mergeRoles(raw.RealmAccess.Roles, raw.Roles),
	}, nil

}

func (p *Provider) Refresh(ctx context.Context, refreshToken string) (*provider.TokenSet, error) {

	if refreshToken == "" {
		return nil, auth.TokenExchangeFailed("refresh token missing", nil)
	}

	ctx, cancel := p.callContext(ctx)
	defer cancel()

	// An expired token forces the token source to hit the token endpoint.
	token, err := p.oauthConfig.TokenSource(ctx, &oauth2.Token{
		RefreshToken: refreshToken,
		Expiry:       time.Unix(1, 0),
	}).Token()
	if err != nil {
		return nil, auth.TokenExchangeFailed("refresh rejected", err)
	}

	set := &provider.TokenSet{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
	}

	if rawIDToken, ok := token.Extra("id_token").(string); ok && rawIDToken != "" {
		idToken, err := p.verifier.Verify(ctx, rawIDToken)
		if err != nil {
			return nil, auth.TokenExchangeFailed("refreshed id_token verification failed", err)
		}
		set.IDToken = rawIDToken
		set.Subject = idToken.Subject
	}

	if set.RefreshToken == "" {
		set.RefreshToken = refreshToken
	}

	return set, nil

}

// Logout ends the provider-side session through the back channel.
func (p *Provider) Logout(ctx context.Context, refreshToken string) error {

	if p.endSessionURL == "" {
		return errors.New("provider does not advertise an end_session_endpoint")
	}

	if refreshToken == "" {
		return errors.New("no refresh token to revoke")
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	form := url.Values{
		"client_id":     {p.clientID},
		"refresh_token": {refreshToken},
	}
	if p.clientSecret != "" {
		form.Set("client_secret", p.clientSecret)
	}
	if p.postLogoutRedirectURL != "" {
		form.Set("post_logout_redirect_uri", p.postLogoutRedirectURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endSessionURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("end_session request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("end_session returned status %d", resp.StatusCode)
	}

	return nil

}

func (p *Provider) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(oidc.ClientContext(ctx, p.httpClient), p.timeout)
}

func rebase(rawURL, from, to string) string {
	from = strings.TrimRight(from, "/")
	to = strings.TrimRight(to, "/")
	if strings.HasPrefix(rawURL, from) {
		return to + strings.TrimPrefix(rawURL, from)
	}
	return rawURL
}

func mergeRoles(lists ...[]string) []string {

	seen := make(map[string]struct{})
	var out []string

	for _, list := range lists {
		for _, r := range list {
			if r == "" {
				continue
			}
			if _, ok := seen[r]; ok {
				continue
			}
			seen[r] = struct{}{}
			out = append(out, r)
		}
	}

	return out

}
