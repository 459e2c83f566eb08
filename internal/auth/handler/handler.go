package handler

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/noces-app/backend/internal/auth"
	"github.com/noces-app/backend/internal/auth/flow"
	"github.com/noces-app/backend/internal/logger"
	"github.com/noces-app/backend/internal/middleware"
	"github.com/noces-app/backend/internal/session"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	flow      *flow.Service
	sessions  *session.Manager
	authn     *middleware.Authenticator
	clientURL string
}

func NewHandler(
	flowService *flow.Service,
	sessions *session.Manager,
	authn *middleware.Authenticator,
	clientURL string,
) *Handler {
	return &Handler{
		flow:      flowService,
		sessions:  sessions,
		authn:     authn,
		clientURL: strings.TrimRight(clientURL, "/"),
	}
}

// RegisterRoutes mounts /auth. The group must already run LoadSession.
func (h *Handler) RegisterRoutes(r gin.IRouter, extra ...gin.HandlerFunc) {

	g := r.Group("/auth", extra...)

	g.GET("/login", h.login)
	g.GET("/callback", h.callback)
	g.GET("/logout", h.logout)
	g.GET("/session", h.session)
	g.GET("/profile", h.authn.RequireAuth(), h.profile)
	g.POST("/refresh", h.refresh)

}

func (h *Handler) login(c *gin.Context) {

	sess := session.FromContext(c.Request.Context())

	authURL := h.flow.Start(sess)

	if err := h.sessions.Save(c.Request.Context(), c.Writer, sess); err != nil {
		logger.Error("failed to persist pending login", map[string]any{
			"error": err.Error(),
		})
		h.redirectFailure(c, auth.Internal("session unavailable", err))
		return
	}

	c.Redirect(http.StatusFound, authURL)

}

func (h *Handler) callback(c *gin.Context) {

	sess := session.FromContext(c.Request.Context())

	_, err := h.flow.Callback(c.Request.Context(), sess, flow.CallbackParams{
		Code:             c.Query("code"),
		State:            c.Query("state"),
		Error:            c.Query("error"),
		ErrorDescription: c.Query("error_description"),
	})

	// The pending pair is consumed either way, so the session is always
	// persisted. A successful login also gets a new session id.
	persist := h.sessions.Save
	if err == nil {
		persist = h.sessions.Rotate
	}

	if saveErr := persist(c.Request.Context(), c.Writer, sess); saveErr != nil {
		logger.Error("failed to persist session after callback", map[string]any{
			"error": saveErr.Error(),
		})
		if err == nil {
			err = auth.Internal("session unavailable", saveErr)
		}
	}

	if err != nil {
		h.redirectFailure(c, auth.AsError(err))
		return
	}

	c.Redirect(http.StatusFound, h.clientURL+"/auth/callback?success=true")

}

func (h *Handler) logout(c *gin.Context) {

	sess := session.FromContext(c.Request.Context())

	h.flow.Logout(c.Request.Context(), sess)

	if err := h.sessions.Destroy(c.Request.Context(), c.Writer, sess); err != nil {
		logger.Error("failed to delete session", map[string]any{
			"session_id": sess.ID,
			"error":      err.Error(),
		})
	}

	target := h.clientURL
	if target == "" {
		target = "/"
	}

	c.Redirect(http.StatusFound, target)

}

func (h *Handler) profile(c *gin.Context) {

	u, _ := middleware.CurrentUser(c)

	c.JSON(http.StatusOK, u.Profile())

}

// session reports whether a credential is stored. It does not verify it.
func (h *Handler) session(c *gin.Context) {

	sess := session.FromContext(c.Request.Context())

	c.JSON(http.StatusOK, gin.H{
		"isAuthenticated": sess.IsAuthenticated(),
		"sessionId":       sess.ID,
	})

}

func (h *Handler) refresh(c *gin.Context) {

	sess := session.FromContext(c.Request.Context())

	u, err := h.flow.Refresh(c.Request.Context(), sess)
	if err != nil {
		ae := auth.AsError(err)
		logger.Warn("credential refresh failed", map[string]any{
			"session_id": sess.ID,
			"error":      ae.Error(),
		})
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": ae.PublicMessage(),
			"code":  string(ae.Kind),
		})
		return
	}

	if err := h.sessions.Rotate(c.Request.Context(), c.Writer, sess); err != nil {
		logger.Error("failed to persist refreshed session", map[string]any{
			"error": err.Error(),
		})
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Internal server error",
		})
		return
	}

	c.JSON(http.StatusOK, u.Profile())

}

func (h *Handler) redirectFailure(c *gin.Context, err *auth.Error) {
	c.Redirect(
		http.StatusFound,
		h.clientURL+"/auth/callback?success=false&error="+url.QueryEscape(err.PublicMessage()),
	)
}
