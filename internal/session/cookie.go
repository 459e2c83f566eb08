package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strings"
	"time"
)

// CookieOptions defines how session cookies are issued.
type CookieOptions struct {
	Name     string
	Path     string
	Domain   string
	Secure   bool
	SameSite http.SameSite
}

func (o CookieOptions) normalize() CookieOptions {
	if o.Name == "" {
		o.Name = "noces.sid"
	}
	if o.Path == "" {
		o.Path = "/"
	}
	if o.SameSite == 0 {
		// Lax lets the provider's top-level redirect back carry the cookie.
		o.SameSite = http.SameSiteLaxMode
	}
	return o
}

// SetCookie issues the session cookie. The cookie is always HttpOnly.
func SetCookie(w http.ResponseWriter, value string, expiresAt time.Time, opts CookieOptions) {

	opts = opts.normalize()

	http.SetCookie(w, &http.Cookie{
		Name:     opts.Name,
		Value:    value,
		Path:     opts.Path,
		Domain:   opts.Domain,
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: opts.SameSite,
	})

}

// ClearCookie removes the session cookie from the client.
func ClearCookie(w http.ResponseWriter, opts CookieOptions) {

	opts = opts.normalize()

	http.SetCookie(w, &http.Cookie{
		Name:     opts.Name,
		Value:    "",
		Path:     opts.Path,
		Domain:   opts.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: opts.SameSite,
	})

}

// sign binds a session id to the session secret: "<id>.<mac>".
func sign(id string, secret []byte) string {
	return id + "." + mac(id, secret)
}

// unsign returns the id of a signed value, or false when the MAC is wrong.
func unsign(value string, secret []byte) (string, bool) {

	i := strings.LastIndexByte(value, '.')
	if i <= 0 || i == len(value)-1 {
		return "", false
	}

	id, got := value[:i], value[i+1:]
	if !hmac.Equal([]byte(got), []byte(mac(id, secret))) {
		return "", false
	}

	return id, true

}

func mac(id string, secret []byte) string {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(id))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}
