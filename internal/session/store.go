package session

import (
	"context"
	"time"
)

type Kind string

const (
	KindAnonymous     Kind = "anonymous"
	KindPendingLogin  Kind = "pending_login"
	KindAuthenticated Kind = "authenticated"
)

// PendingLogin is the single in-flight authorization attempt of a session.
type PendingLogin struct {
	State        string    `json:"state"`
	Nonce        string    `json:"nonce"`
	CodeVerifier string    `json:"code_verifier,omitempty"`
	StartedAt    time.Time `json:"started_at"`
}

// Authenticated holds the local credential and the provider tokens needed
// for refresh and upstream logout.
type Authenticated struct {
	UserID          string    `json:"user_id"`
	Credential      string    `json:"credential"`
	RefreshToken    string    `json:"refresh_token,omitempty"`
	AuthenticatedAt time.Time `json:"authenticated_at"`
}

// Session is one browser session. Kind selects which of Pending or Auth is
// set; the transition methods keep the two mutually exclusive.
type Session struct {
	ID        string         `json:"id"`
	Kind      Kind           `json:"kind"`
	Pending   *PendingLogin  `json:"pending,omitempty"`
	Auth      *Authenticated `json:"auth,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	ExpiresAt time.Time      `json:"expires_at"` // absolute expiry

	fresh bool
}

// BeginLogin moves to PendingLogin. A previous pending pair or credential
// is discarded.
func (s *Session) BeginLogin(p PendingLogin) {
	s.Kind = KindPendingLogin
	s.Pending = &p
	s.Auth = nil
}

// TakePending consumes the pending pair and leaves the session Anonymous,
// whatever the caller does next.
func (s *Session) TakePending() (PendingLogin, bool) {

	if s.Kind != KindPendingLogin || s.Pending == nil {
		return PendingLogin{}, false
	}

	p := *s.Pending
	s.Reset()

	return p, true

}

func (s *Session) Authenticate(a Authenticated) {
	s.Kind = KindAuthenticated
	s.Auth = &a
	s.Pending = nil
}

func (s *Session) Reset() {
	s.Kind = KindAnonymous
	s.Pending = nil
	s.Auth = nil
}

func (s *Session) IsAuthenticated() bool {
	return s.Kind == KindAuthenticated && s.Auth != nil && s.Auth.Credential != ""
}

// Credential returns the stored local credential, or "".
func (s *Session) Credential() string {
	if !s.IsAuthenticated() {
		return ""
	}
	return s.Auth.Credential
}

// IsNew reports whether the session has never been persisted.
func (s *Session) IsNew() bool {
	return s.fresh
}

// Store defines how sessions are stored and retrieved.
// Get returns nil, nil for unknown or expired ids.
type Store interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, sessionID string) (*Session, error)
	Update(ctx context.Context, s *Session) error
	Delete(ctx context.Context, sessionID string) error
}

type contextKeyType struct{}

var contextKey = contextKeyType{}

func NewContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, contextKey, s)
}

// FromContext returns the request's session, or nil outside LoadSession.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(contextKey).(*Session)
	return s
}
