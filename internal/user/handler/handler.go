package handler

import (
	"errors"
	"net/http"

	"github.com/noces-app/backend/internal/auth"
	"github.com/noces-app/backend/internal/logger"
	"github.com/noces-app/backend/internal/middleware"
	"github.com/noces-app/backend/internal/pagination"
	"github.com/noces-app/backend/internal/user"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	users *user.Service
	authn *middleware.Authenticator
}

func NewHandler(users *user.Service, authn *middleware.Authenticator) *Handler {
	return &Handler{users: users, authn: authn}
}

// RegisterRoutes mounts /users. Every route needs a verified user; the
// admin-only ones are also gated here so non-admins never reach the service.
func (h *Handler) RegisterRoutes(r gin.IRouter) {

	g := r.Group("/users", h.authn.RequireAuth())

	g.POST("", middleware.RequireRoles(auth.RoleAdmin), h.create)
	g.GET("", middleware.RequireRoles(auth.RoleAdmin), h.list)
	g.GET("/:id", h.get)
	g.PATCH("/:id", h.update)
	g.DELETE("/:id", middleware.RequireRoles(auth.RoleAdmin), h.delete)

}

func (h *Handler) create(c *gin.Context) {

	actor, _ := middleware.CurrentUser(c)

	var in user.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	u, err := h.users.Create(c.Request.Context(), actor, in)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, u)

}

func (h *Handler) list(c *gin.Context) {

	actor, _ := middleware.CurrentUser(c)
	q := pagination.Parse(pagination.QueryFunc(c.Query), user.Sorting)

	users, total, err := h.users.List(c.Request.Context(), actor, q)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, pagination.NewPage(users, total, q))

}

func (h *Handler) get(c *gin.Context) {

	actor, _ := middleware.CurrentUser(c)

	u, err := h.users.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, u)

}

func (h *Handler) update(c *gin.Context) {

	actor, _ := middleware.CurrentUser(c)

	var in user.UpdateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	u, err := h.users.Update(c.Request.Context(), actor, c.Param("id"), in)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, u)

}

func (h *Handler) delete(c *gin.Context) {

	actor, _ := middleware.CurrentUser(c)

	if err := h.users.Delete(c.Request.Context(), actor, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)

}

func writeError(c *gin.Context, err error) {

	switch {
	case errors.Is(err, user.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
	case errors.Is(err, user.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
	case errors.Is(err, user.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "A user with this email already exists"})
	case errors.Is(err, user.ErrInvalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		logger.Error("user request failed", map[string]any{
			"path":  c.FullPath(),
			"error": err.Error(),
		})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}

}
