package app

import (
	"net/http"
	"time"

	"github.com/noces-app/backend/internal/auth/flow"
	authhandler "github.com/noces-app/backend/internal/auth/handler"
	"github.com/noces-app/backend/internal/auth/provider"
	"github.com/noces-app/backend/internal/auth/resolver"
	"github.com/noces-app/backend/internal/auth/token"
	"github.com/noces-app/backend/internal/config"
	"github.com/noces-app/backend/internal/event"
	eventhandler "github.com/noces-app/backend/internal/event/handler"
	"github.com/noces-app/backend/internal/metrics"
	"github.com/noces-app/backend/internal/middleware"
	"github.com/noces-app/backend/internal/session"
	"github.com/noces-app/backend/internal/user"
	userhandler "github.com/noces-app/backend/internal/user/handler"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

const serviceName = "noces-api"

// Deps are the collaborators the router is built from. Tests pass
// in-memory stores and a fake identity provider.
type Deps struct {
	Config   config.Config
	Provider provider.OIDCProvider
	Users    user.Directory
	Events   event.Repository
	Sessions session.Store
	Registry *prometheus.Registry
}

// NewRouter wires every route. The returned stop func releases the rate
// limiter's background goroutine.
func NewRouter(d Deps) (*gin.Engine, func()) {

	cfg := d.Config

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// ----------------------------
	// Dependencies
	// ----------------------------

	collector := metrics.NewCollector(d.Registry)

	issuer := token.NewIssuer(cfg.JWT.Secret, cfg.JWT.Expiration)

	sessions := session.NewManager(d.Sessions, session.ManagerOptions{
		Secret: cfg.Session.Secret,
		MaxAge: cfg.Session.MaxAge,
		Cookie: session.CookieOptions{
			Name:   cfg.Session.CookieName,
			Secure: cfg.Session.SecureCookie || cfg.IsProduction(),
		},
	})

	flowService := flow.NewService(
		d.Provider,
		resolver.NewDirectoryResolver(d.Users),
		issuer,
		flow.Options{
			UsePKCE:    cfg.OIDC.UsePKCE,
			PendingTTL: cfg.OIDC.PendingLoginTTL,
			Recorder:   collector,
		},
	)

	authn := middleware.NewAuthenticator(issuer, d.Users, collector)

	limiter := middleware.NewRateLimiter(middleware.PerMinute(
		cfg.RateLimit.RequestsPerMinute,
		cfg.RateLimit.Burst,
	))

	authHandler := authhandler.NewHandler(
		flowService,
		sessions,
		authn,
		cfg.ClientURL,
	)

	userHandler := userhandler.NewHandler(user.NewService(d.Users), authn)
	eventHandler := eventhandler.NewHandler(event.NewService(d.Events), authn)

	// ----------------------------
	// Router
	// ----------------------------

	router := gin.New()
	router.Use(
		middleware.Recovery(),
		collector.Middleware(),
		middleware.RequestLogger(),
	)

	// ----------------------------
	// Operational Routes
	// ----------------------------

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Welcome to the Noces API"})
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"service":   serviceName,
		})
	})

	router.GET("/metrics", gin.WrapH(metrics.Handler(d.Registry)))

	// ----------------------------
	// Session-aware Routes
	// ----------------------------

	api := router.Group("", middleware.LoadSession(sessions))

	authHandler.RegisterRoutes(api, limiter.Middleware())
	userHandler.RegisterRoutes(api)
	eventHandler.RegisterRoutes(api)

	return router, limiter.Stop

}
