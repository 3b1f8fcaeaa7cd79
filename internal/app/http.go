package app

import (
	"context"

	"participant-auth/internal/auth"
	"participant-auth/internal/auth/elsewhere"
	"participant-auth/internal/auth/handler"
	"participant-auth/internal/auth/provider"
	"participant-auth/internal/auth/provider/oidc"
	"participant-auth/internal/config"
	"participant-auth/internal/logger"
	"participant-auth/internal/middleware"
	"participant-auth/internal/session"

	"github.com/gin-gonic/gin"
)

func setupHTTP(ctx context.Context, cfg config.Config) (*gin.Engine, func() error, error) {

	infra, err := setupInfra(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	router, err := newRouter(ctx, cfg, infra)
	if err != nil {
		_ = infra.Close()
		return nil, nil, err
	}

	return router, infra.Close, nil
}

func newRouter(ctx context.Context, cfg config.Config, infra *Infra) (*gin.Engine, error) {

	// ----------------------------
	// Dependencies
	// ----------------------------

	resolver := auth.NewResolver(infra.Participants, auth.Options{
		CanonicalScheme: cfg.CanonicalScheme,
		SessionTimeout:  cfg.SessionTimeout,
		SessionRefresh:  cfg.SessionRefresh,
	})

	var providers []provider.OAuthProvider
	if cfg.OIDCEnabled() {
		p, err := oidc.New(ctx, oidc.Config{
			Name:         cfg.OIDCProviderName,
			Issuer:       cfg.OIDCIssuer,
			ClientID:     cfg.OIDCClientID,
			ClientSecret: cfg.OIDCClientSecret,
			RedirectURL:  cfg.OIDCRedirectURL,
		})
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	registry := provider.NewRegistry(providers...)

	logger.Info("sign-in providers configured", map[string]any{
		"providers": registry.Names(),
	})

	authHandler := handler.NewHandler(
		registry,
		resolver,
		elsewhere.NewStoreResolver(infra.Participants),
		infra.Participants,
		session.SecureFor(cfg.CanonicalScheme),
	)

	authMiddleware := middleware.NewAuthMiddleware(resolver)

	// ----------------------------
	// Router
	// ----------------------------

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.GinAuthenticate(authMiddleware))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	authHandler.RegisterRoutes(router, authMiddleware)

	return router, nil
}
