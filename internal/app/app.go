package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/noces-app/backend/internal/auth/provider/keycloak"
	"github.com/noces-app/backend/internal/config"
	"github.com/noces-app/backend/internal/event"
	"github.com/noces-app/backend/internal/logger"
	"github.com/noces-app/backend/internal/session"
	"github.com/noces-app/backend/internal/user"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type App struct {
	httpServer *http.Server
	cleanup    func() error
}

func New(ctx context.Context, cfg config.Config) (*App, error) {

	infra, err := setupInfra(ctx, cfg)
	if err != nil {
		return nil, err
	}

	oidcProvider, err := keycloak.New(ctx, providerConfig(cfg))
	if err != nil {
		_ = infra.Close()
		return nil, err
	}

	logger.Info("identity provider ready", map[string]any{
		"issuer": cfg.OIDC.Issuer,
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	router, stopLimiter := NewRouter(Deps{
		Config:   cfg,
		Provider: oidcProvider,
		Users:    user.NewPostgresDirectory(infra.DB),
		Events:   event.NewPostgresRepository(infra.DB),
		Sessions: session.NewRedisStore(infra.Redis.Client),
		Registry: registry,
	})

	server := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		httpServer: server,
		cleanup: func() error {
			stopLimiter()
			return infra.Close()
		},
	}, nil

}

// Run blocks serving HTTP. A server closed by Shutdown is not an error.
func (a *App) Run() error {
	if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *App) Shutdown(ctx context.Context) error {
	if err := a.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	if a.cleanup != nil {
		return a.cleanup()
	}
	return nil
}

func providerConfig(cfg config.Config) keycloak.Config {
	return keycloak.Config{
		Issuer:       cfg.OIDC.Issuer,
		PublicIssuer: cfg.OIDC.PublicIssuer,
		ClientID:     cfg.OIDC.ClientID,
		ClientSecret: cfg.OIDC.ClientSecret,
		RedirectURL:  cfg.OIDC.RedirectURI,
		Scopes:       cfg.OIDC.Scopes(),
		Timeout:      cfg.OIDC.HTTPTimeout,

		PostLogoutRedirectURL: cfg.OIDC.PostLogoutRedirectURI,
	}
}
