package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/noces-app/backend/internal/auth"
	"github.com/noces-app/backend/internal/auth/token"
	"github.com/noces-app/backend/internal/logger"
	"github.com/noces-app/backend/internal/session"
	"github.com/noces-app/backend/internal/user"

	"github.com/gin-gonic/gin"
)

// unexported, collision-proof context key
type userContextKeyType struct{}

var userKey = userContextKeyType{}

// UserFromContext returns the verified user of the request.
func UserFromContext(ctx context.Context) (*user.User, bool) {
	u, ok := ctx.Value(userKey).(*user.User)
	return u, ok && u != nil
}

// UserIDFromContext extracts the authenticated user ID from context.
func UserIDFromContext(ctx context.Context) (string, bool) {
	u, ok := UserFromContext(ctx)
	if !ok {
		return "", false
	}
	return u.ID, true
}

// CurrentUser is UserFromContext for gin handlers.
func CurrentUser(c *gin.Context) (*user.User, bool) {
	return UserFromContext(c.Request.Context())
}

type CredentialParser interface {
	Parse(raw string) (*token.Claims, error)
}

type UserLookup interface {
	FindByID(ctx context.Context, id string) (*user.User, error)
}

// RejectionRecorder receives the kind of every rejected credential.
type RejectionRecorder interface {
	RecordRejection(kind string)
}

// Authenticator verifies the credential of a request and resolves it to a
// live user.
type Authenticator struct {
	tokens   CredentialParser
	users    UserLookup
	recorder RejectionRecorder
}

func NewAuthenticator(tokens CredentialParser, users UserLookup, recorder RejectionRecorder) *Authenticator {
	return &Authenticator{
		tokens:   tokens,
		users:    users,
		recorder: recorder,
	}
}

// Verify takes the credential from a Bearer Authorization header, else from
// the session. Embedded profile claims are not trusted: the subject is
// re-read from the directory.
func (a *Authenticator) Verify(ctx context.Context, authorization string, sess *session.Session) (*user.User, error) {

	raw := bearerToken(authorization)
	if raw == "" && sess != nil {
		raw = sess.Credential()
	}

	if raw == "" {
		return nil, auth.MissingCredential()
	}

	claims, err := a.tokens.Parse(raw)
	if err != nil {
		return nil, err
	}

	u, err := a.users.FindByID(ctx, claims.Subject)
	if err != nil {
		return nil, auth.Internal("user lookup failed", err)
	}

	if u == nil {
		return nil, auth.UserNotFound(claims.Subject)
	}

	return u, nil

}

// RequireAuth rejects requests without a valid credential with 401.
func (a *Authenticator) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {

		u, err := a.verifyRequest(c)
		if err != nil {
			ae := auth.AsError(err)
			a.record(ae.Kind)

			logger.Debug("request rejected", map[string]any{
				"path":  c.Request.URL.Path,
				"kind":  string(ae.Kind),
				"error": ae.Error(),
			})

			status := http.StatusUnauthorized
			if ae.Kind == auth.KindInternal {
				status = http.StatusInternalServerError
			}

			c.AbortWithStatusJSON(status, gin.H{
				"error": ae.PublicMessage(),
				"code":  string(ae.Kind),
			})
			return
		}

		setUser(c, u)
		c.Next()
	}
}

// OptionalAuth attaches the user when a valid credential is present and
// otherwise lets the request through anonymously.
func (a *Authenticator) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {

		u, err := a.verifyRequest(c)
		if err == nil {
			setUser(c, u)
		} else if !auth.IsKind(err, auth.KindMissingCredential) {
			a.record(auth.KindOf(err))
		}

		c.Next()
	}
}

// RequireRoles must run after RequireAuth.
func RequireRoles(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {

		u, ok := CurrentUser(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication required",
			})
			return
		}

		if !u.HasAnyRole(roles...) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Forbidden",
			})
			return
		}

		c.Next()
	}
}

func (a *Authenticator) verifyRequest(c *gin.Context) (*user.User, error) {
	return a.Verify(
		c.Request.Context(),
		c.GetHeader("Authorization"),
		session.FromContext(c.Request.Context()),
	)
}

func (a *Authenticator) record(kind auth.Kind) {
	if a.recorder != nil {
		a.recorder.RecordRejection(string(kind))
	}
}

func setUser(c *gin.Context, u *user.User) {
	c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), userKey, u))
}

func bearerToken(header string) string {

	scheme, value, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}

	return strings.TrimSpace(value)

}
