package middleware

import (
	"net/http"

	"github.com/noces-app/backend/internal/logger"
	"github.com/noces-app/backend/internal/session"

	"github.com/gin-gonic/gin"
)

// LoadSession attaches the browser session to the request context. A store
// failure degrades to a fresh anonymous session.
func LoadSession(m *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {

		sess, err := m.Load(c.Request.Context(), c.Request)
		if err != nil {
			logger.Error("session load failed", map[string]any{
				"error": err.Error(),
			})

			sess, err = m.New()
			if err != nil {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "Internal server error",
				})
				return
			}
		}

		c.Request = c.Request.WithContext(session.NewContext(c.Request.Context(), sess))
		c.Next()
	}
}
