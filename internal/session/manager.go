package session

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

type ManagerOptions struct {
	Secret string
	MaxAge time.Duration
	Cookie CookieOptions
}

// Manager binds sessions to browsers through a signed cookie.
type Manager struct {
	store  Store
	secret []byte
	maxAge time.Duration
	cookie CookieOptions
	now    func() time.Time
}

func NewManager(store Store, opts ManagerOptions) *Manager {

	maxAge := opts.MaxAge
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}

	return &Manager{
		store:  store,
		secret: []byte(opts.Secret),
		maxAge: maxAge,
		cookie: opts.Cookie.normalize(),
		now:    time.Now,
	}

}

// Load returns the session bound to the request cookie, or a new unsaved
// Anonymous session when there is none or the cookie does not verify.
func (m *Manager) Load(ctx context.Context, r *http.Request) (*Session, error) {

	if c, err := r.Cookie(m.cookie.Name); err == nil && c.Value != "" {
		if id, ok := unsign(c.Value, m.secret); ok {
			s, err := m.store.Get(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("session: load: %w", err)
			}
			if s != nil {
				return s, nil
			}
		}
	}

	return m.New()

}

// New returns an unsaved Anonymous session.
func (m *Manager) New() (*Session, error) {

	id, err := GenerateID()
	if err != nil {
		return nil, err
	}

	now := m.now()

	return &Session{
		ID:        id,
		Kind:      KindAnonymous,
		CreatedAt: now,
		ExpiresAt: now.Add(m.maxAge),
		fresh:     true,
	}, nil

}

// Save persists the session and (re)issues its cookie.
func (m *Manager) Save(ctx context.Context, w http.ResponseWriter, s *Session) error {

	var err error
	if s.fresh {
		err = m.store.Create(ctx, s)
	} else {
		err = m.store.Update(ctx, s)
	}
	if err != nil {
		return fmt.Errorf("session: save: %w", err)
	}

	s.fresh = false
	SetCookie(w, sign(s.ID, m.secret), s.ExpiresAt, m.cookie)

	return nil

}

// Rotate moves the session to a fresh id, persists it and reissues the
// cookie. The old id no longer resolves. Call it whenever the session gains
// a credential.
func (m *Manager) Rotate(ctx context.Context, w http.ResponseWriter, s *Session) error {

	if !s.fresh {
		if err := m.store.Delete(ctx, s.ID); err != nil {
			return fmt.Errorf("session: rotate: %w", err)
		}
	}

	id, err := GenerateID()
	if err != nil {
		return err
	}

	s.ID = id
	s.fresh = true

	return m.Save(ctx, w, s)

}

// Destroy removes the session from the store and clears the cookie. The
// cookie is cleared even when the store delete fails.
func (m *Manager) Destroy(ctx context.Context, w http.ResponseWriter, s *Session) error {

	ClearCookie(w, m.cookie)

	if s == nil {
		return nil
	}

	s.Reset()

	if s.fresh {
		return nil
	}

	if err := m.store.Delete(ctx, s.ID); err != nil {
		return fmt.Errorf("session: destroy: %w", err)
	}

	return nil

}

func (m *Manager) CookieName() string {
	return m.cookie.Name
}
