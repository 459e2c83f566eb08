package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "session-secret-0123456789"

func newStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisStore(client), mr
}

func TestTransitions(t *testing.T) {

	s := &Session{ID: "s1", Kind: KindAnonymous}
	assert.False(t, s.IsAuthenticated())

	_, ok := s.TakePending()
	assert.False(t, ok)

	s.BeginLogin(PendingLogin{State: "a", Nonce: "n1"})
	s.BeginLogin(PendingLogin{State: "b", Nonce: "n2"})
	assert.Equal(t, KindPendingLogin, s.Kind)

	p, ok := s.TakePending()
	require.True(t, ok)
	assert.Equal(t, "b", p.State)
	assert.Equal(t, KindAnonymous, s.Kind)
	assert.Nil(t, s.Pending)

	_, ok = s.TakePending()
	assert.False(t, ok, "pending pair is single use")

	s.Authenticate(Authenticated{UserID: "u1", Credential: "jwt"})
	assert.True(t, s.IsAuthenticated())
	assert.Equal(t, "jwt", s.Credential())

	s.BeginLogin(PendingLogin{State: "c"})
	assert.False(t, s.IsAuthenticated())
	assert.Empty(t, s.Credential())

}

func TestRedisStoreRoundTrip(t *testing.T) {

	store, mr := newStore(t)
	ctx := context.Background()

	s := &Session{
		ID:        "abc",
		Kind:      KindPendingLogin,
		Pending:   &PendingLogin{State: "st", Nonce: "nc", CodeVerifier: "cv"},
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, store.Create(ctx, s))
	assert.True(t, mr.Exists("noces:session:abc"))
	assert.InDelta(t, time.Hour.Seconds(), mr.TTL("noces:session:abc").Seconds(), 2)

	got, err := store.Get(ctx, "abc")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, KindPendingLogin, got.Kind)
	assert.Equal(t, "cv", got.Pending.CodeVerifier)

	got.Authenticate(Authenticated{UserID: "u1", Credential: "jwt"})
	require.NoError(t, store.Update(ctx, got))

	got, err = store.Get(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, got.IsAuthenticated())
	assert.Nil(t, got.Pending)

	require.NoError(t, store.Delete(ctx, "abc"))
	got, err = store.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Nil(t, got)

}

func TestRedisStoreExpiry(t *testing.T) {

	store, mr := newStore(t)
	ctx := context.Background()

	s := &Session{ID: "abc", Kind: KindAnonymous, ExpiresAt: time.Now().Add(time.Minute)}
	require.NoError(t, store.Create(ctx, s))

	mr.FastForward(2 * time.Minute)

	got, err := store.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.Error(t, store.Create(ctx, &Session{ID: "old", ExpiresAt: time.Now().Add(-time.Second)}))
	assert.Error(t, store.Create(ctx, &Session{ExpiresAt: time.Now().Add(time.Minute)}))

}

func TestSignedCookie(t *testing.T) {

	v := sign("abc", []byte(secret))

	id, ok := unsign(v, []byte(secret))
	require.True(t, ok)
	assert.Equal(t, "abc", id)

	_, ok = unsign(v, []byte("other-secret-0123456789"))
	assert.False(t, ok)

	_, ok = unsign("abd"+v[3:], []byte(secret))
	assert.False(t, ok)

	for _, bad := range []string{"", "abc", ".mac", "abc."} {
		_, ok := unsign(bad, []byte(secret))
		assert.False(t, ok, bad)
	}

}

func TestManagerLifecycle(t *testing.T) {

	store, _ := newStore(t)
	m := NewManager(store, ManagerOptions{
		Secret: secret,
		MaxAge: time.Hour,
		Cookie: CookieOptions{Name: "noces.sid"},
	})
	ctx := context.Background()

	// no cookie: fresh unsaved session
	s, err := m.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.True(t, s.IsNew())
	assert.Equal(t, KindAnonymous, s.Kind)

	s.BeginLogin(PendingLogin{State: "st", Nonce: "nc"})

	rec := httptest.NewRecorder()
	require.NoError(t, m.Save(ctx, rec, s))
	assert.False(t, s.IsNew())

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "noces.sid", cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.NotEqual(t, s.ID, cookies[0].Value, "cookie carries a signed id")

	// cookie round trip
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	loaded, err := m.Load(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, s.ID, loaded.ID)
	assert.Equal(t, "st", loaded.Pending.State)

	// forged cookie value is ignored
	forged := httptest.NewRequest(http.MethodGet, "/", nil)
	forged.AddCookie(&http.Cookie{Name: "noces.sid", Value: s.ID})
	other, err := m.Load(ctx, forged)
	require.NoError(t, err)
	assert.NotEqual(t, s.ID, other.ID)

	// destroy
	rec = httptest.NewRecorder()
	require.NoError(t, m.Destroy(ctx, rec, loaded))
	assert.Equal(t, KindAnonymous, loaded.Kind)
	cleared := rec.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Equal(t, -1, cleared[0].MaxAge)

	after, err := store.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Nil(t, after)

}

type failingStore struct{ Store }

func (failingStore) Delete(context.Context, string) error { return assert.AnError }

func TestManagerDestroyClearsCookieWhenStoreFails(t *testing.T) {

	m := NewManager(failingStore{}, ManagerOptions{Secret: secret})

	s := &Session{ID: "abc", Kind: KindAuthenticated, Auth: &Authenticated{Credential: "jwt"}}

	rec := httptest.NewRecorder()
	err := m.Destroy(context.Background(), rec, s)
	assert.Error(t, err)
	assert.False(t, s.IsAuthenticated())
	require.Len(t, rec.Result().Cookies(), 1)
	assert.Equal(t, -1, rec.Result().Cookies()[0].MaxAge)

}

func TestManagerRotateIssuesNewID(t *testing.T) {

	store, _ := newStore(t)
	m := NewManager(store, ManagerOptions{Secret: secret, MaxAge: time.Hour})
	ctx := context.Background()

	s, err := m.New()
	require.NoError(t, err)
	s.BeginLogin(PendingLogin{State: "st", Nonce: "nc"})
	require.NoError(t, m.Save(ctx, httptest.NewRecorder(), s))

	planted := s.ID

	_, _ = s.TakePending()
	s.Authenticate(Authenticated{UserID: "u-1", Credential: "jwt"})

	rec := httptest.NewRecorder()
	require.NoError(t, m.Rotate(ctx, rec, s))
	assert.NotEqual(t, planted, s.ID)
	assert.False(t, s.IsNew())

	old, err := store.Get(ctx, planted)
	require.NoError(t, err)
	assert.Nil(t, old, "the pre-login id no longer resolves")

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	loaded, err := m.Load(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, s.ID, loaded.ID)
	assert.Equal(t, "jwt", loaded.Credential())

}

func TestManagerRotateFailsWhenOldIDCannotBeDropped(t *testing.T) {

	m := NewManager(failingStore{}, ManagerOptions{Secret: secret})

	s := &Session{ID: "abc", Kind: KindAuthenticated, Auth: &Authenticated{Credential: "jwt"}}

	rec := httptest.NewRecorder()
	assert.Error(t, m.Rotate(context.Background(), rec, s))
	assert.Empty(t, rec.Result().Cookies())

}
