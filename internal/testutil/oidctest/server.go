// Package oidctest runs an in-process OpenID Connect provider for tests.
package oidctest

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
)

const keyID = "oidctest-key"

// User is the identity the server asserts for newly authorized codes.
type User struct {
	Subject    string
	Email      string
	GivenName  string
	FamilyName string
	Name       string
	Roles      []string
}

type grant struct {
	user          User
	nonce         string
	codeChallenge string
}

type Server struct {
	*httptest.Server

	ClientID string

	// TokenHits, UserInfoHits and LogoutHits count calls to those endpoints.
	TokenHits    atomic.Int32
	UserInfoHits atomic.Int32
	LogoutHits   atomic.Int32

	// FailLogout makes the end_session endpoint answer 500.
	FailLogout atomic.Bool
	// FailUserInfo makes the userinfo endpoint answer 500.
	FailUserInfo atomic.Bool

	// TokenDelay stalls the token endpoint, for timeout tests.
	TokenDelay time.Duration

	key *rsa.PrivateKey

	mu       sync.Mutex
	user     User
	codes    map[string]grant
	access   map[string]User
	refresh  map[string]User
	seq      int
	verifier string
	logout   url.Values
}

func New(t *testing.T, clientID string) *Server {

	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	s := &Server{
		ClientID: clientID,
		key:      key,
		codes:    make(map[string]grant),
		access:   make(map[string]User),
		refresh:  make(map[string]User),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", s.handleDiscovery)
	mux.HandleFunc("/jwks", s.handleJWKS)
	mux.HandleFunc("/token", s.handleToken)
	mux.HandleFunc("/userinfo", s.handleUserInfo)
	mux.HandleFunc("/logout", s.handleLogout)

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)

	return s

}

// Issuer is the server URL, which doubles as the issuer identifier.
func (s *Server) Issuer() string {
	return s.URL
}

func (s *Server) SetUser(u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = u
}

// LastCodeVerifier is the code_verifier of the last authorization_code grant.
func (s *Server) LastCodeVerifier() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.verifier
}

// Authorize plays the browser round trip: it reads nonce and PKCE challenge
// from an authorization URL and returns a single-use code bound to them.
func (s *Server) Authorize(authURL string) (code, state string, err error) {

	u, err := url.Parse(authURL)
	if err != nil {
		return "", "", err
	}

	q := u.Query()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	code = fmt.Sprintf("code-%d", s.seq)
	s.codes[code] = grant{
		user:          s.user,
		nonce:         q.Get("nonce"),
		codeChallenge: q.Get("code_challenge"),
	}

	return code, q.Get("state"), nil

}

// SignIDToken signs arbitrary claims with the server key.
func (s *Server) SignIDToken(claims map[string]any) (string, error) {

	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.RS256, Key: s.key},
		(&jose.SignerOptions{}).WithType("JWT").WithHeader("kid", keyID),
	)
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}

	obj, err := signer.Sign(payload)
	if err != nil {
		return "", err
	}

	return obj.CompactSerialize()

}

func (s *Server) handleDiscovery(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"issuer":                                s.URL,
		"authorization_endpoint":                s.URL + "/auth",
		"token_endpoint":                        s.URL + "/token",
		"userinfo_endpoint":                     s.URL + "/userinfo",
		"jwks_uri":                              s.URL + "/jwks",
		"end_session_endpoint":                  s.URL + "/logout",
		"id_token_signing_alg_values_supported": []string{"RS256"},
		"code_challenge_methods_supported":      []string{"S256"},
	})
}

func (s *Server) handleJWKS(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{{
			Key:       &s.key.PublicKey,
			KeyID:     keyID,
			Algorithm: string(jose.RS256),
			Use:       "sig",
		}},
	})
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {

	s.TokenHits.Add(1)

	if s.TokenDelay > 0 {
		select {
		case <-time.After(s.TokenDelay):
		case <-r.Context().Done():
			return
		}
	}

	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}

	switch r.PostForm.Get("grant_type") {

	case "authorization_code":
		s.mu.Lock()
		g, ok := s.codes[r.PostForm.Get("code")]
		delete(s.codes, r.PostForm.Get("code"))
		s.verifier = r.PostForm.Get("code_verifier")
		s.mu.Unlock()

		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
			return
		}

		if g.codeChallenge != "" && g.codeChallenge != s256(r.PostForm.Get("code_verifier")) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
			return
		}

		s.issueTokens(w, g.user, g.nonce)

	case "refresh_token":
		s.mu.Lock()
		u, ok := s.refresh[r.PostForm.Get("refresh_token")]
		s.mu.Unlock()

		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
			return
		}

		s.issueTokens(w, u, "")

	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
	}

}

func (s *Server) issueTokens(w http.ResponseWriter, u User, nonce string) {

	now := time.Now()

	claims := map[string]any{
		"iss":   s.URL,
		"sub":   u.Subject,
		"aud":   s.ClientID,
		"email": u.Email,
		"iat":   now.Unix(),
		"exp":   now.Add(5 * time.Minute).Unix(),
	}
	if nonce != "" {
		claims["nonce"] = nonce
	}

	idToken, err := s.SignIDToken(claims)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "server_error"})
		return
	}

	s.mu.Lock()
	s.seq++
	accessToken := fmt.Sprintf("at-%d", s.seq)
	refreshToken := fmt.Sprintf("rt-%d", s.seq)
	s.access[accessToken] = u
	s.refresh[refreshToken] = u
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  accessToken,
		"token_type":    "Bearer",
		"expires_in":    300,
		"refresh_token": refreshToken,
		"id_token":      idToken,
	})

}

func (s *Server) handleUserInfo(w http.ResponseWriter, r *http.Request) {

	s.UserInfoHits.Add(1)

	if s.FailUserInfo.Load() {
		http.Error(w, "upstream failure", http.StatusInternalServerError)
		return
	}

	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		http.Error(w, "missing authorization", http.StatusUnauthorized)
		return
	}

	s.mu.Lock()
	u, ok := s.access[header[len(prefix):]]
	s.mu.Unlock()

	if !ok {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	body := map[string]any{
		"sub":   u.Subject,
		"email": u.Email,
	}
	if u.GivenName != "" {
		body["given_name"] = u.GivenName
	}
	if u.FamilyName != "" {
		body["family_name"] = u.FamilyName
	}
	if u.Name != "" {
		body["name"] = u.Name
	}
	if len(u.Roles) > 0 {
		body["realm_access"] = map[string]any{"roles": u.Roles}
	}

	writeJSON(w, http.StatusOK, body)

}

// LastLogoutForm is the form body of the last end_session call.
func (s *Server) LastLogoutForm() url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logout
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {

	s.LogoutHits.Add(1)

	if err := r.ParseForm(); err == nil {
		s.mu.Lock()
		s.logout = r.PostForm
		s.mu.Unlock()
	}

	if s.FailLogout.Load() {
		http.Error(w, "upstream failure", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)

}

func s256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
