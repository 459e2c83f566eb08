package handler

import (
	"errors"
	"net/http"

	"github.com/noces-app/backend/internal/event"
	"github.com/noces-app/backend/internal/logger"
	"github.com/noces-app/backend/internal/middleware"
	"github.com/noces-app/backend/internal/pagination"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	events *event.Service
	authn  *middleware.Authenticator
}

func NewHandler(events *event.Service, authn *middleware.Authenticator) *Handler {
	return &Handler{events: events, authn: authn}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {

	g := r.Group("/events")

	g.GET("", h.authn.OptionalAuth(), h.list)
	g.GET("/upcoming", h.authn.OptionalAuth(), h.upcoming)
	g.GET("/my", h.authn.RequireAuth(), h.mine)
	g.GET("/:id", h.authn.OptionalAuth(), h.get)
	g.POST("", h.authn.RequireAuth(), h.create)
	g.PATCH("/:id", h.authn.RequireAuth(), h.update)
	g.DELETE("/:id", h.authn.RequireAuth(), h.delete)

}

func (h *Handler) list(c *gin.Context) {

	viewer, _ := middleware.CurrentUser(c)
	q := pagination.Parse(pagination.QueryFunc(c.Query), event.Sorting)

	events, total, err := h.events.List(c.Request.Context(), viewer, q)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, pagination.NewPage(events, total, q))

}

func (h *Handler) upcoming(c *gin.Context) {

	viewer, _ := middleware.CurrentUser(c)
	q := pagination.Parse(pagination.QueryFunc(c.Query), event.Sorting)

	events, total, err := h.events.Upcoming(c.Request.Context(), viewer, q)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, pagination.NewPage(events, total, q))

}

func (h *Handler) mine(c *gin.Context) {

	actor, _ := middleware.CurrentUser(c)
	q := pagination.Parse(pagination.QueryFunc(c.Query), event.Sorting)

	events, total, err := h.events.Mine(c.Request.Context(), actor, q)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, pagination.NewPage(events, total, q))

}

func (h *Handler) get(c *gin.Context) {

	viewer, _ := middleware.CurrentUser(c)

	e, err := h.events.Get(c.Request.Context(), viewer, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, e)

}

func (h *Handler) create(c *gin.Context) {

	actor, _ := middleware.CurrentUser(c)

	var in event.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	e, err := h.events.Create(c.Request.Context(), actor, in)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, e)

}

func (h *Handler) update(c *gin.Context) {

	actor, _ := middleware.CurrentUser(c)

	var in event.UpdateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	e, err := h.events.Update(c.Request.Context(), actor, c.Param("id"), in)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, e)

}

func (h *Handler) delete(c *gin.Context) {

	actor, _ := middleware.CurrentUser(c)

	if err := h.events.Delete(c.Request.Context(), actor, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)

}

func writeError(c *gin.Context, err error) {

	switch {
	case errors.Is(err, event.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Event not found"})
	case errors.Is(err, event.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "Only the owner may modify this event"})
	case errors.Is(err, event.ErrInvalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		logger.Error("event request failed", map[string]any{
			"path":  c.FullPath(),
			"error": err.Error(),
		})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}

}
