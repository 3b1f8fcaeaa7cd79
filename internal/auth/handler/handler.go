package handler

import (
	"errors"
	"net/http"
	"time"

	"participant-auth/internal/auth"
	"participant-auth/internal/auth/elsewhere"
	"participant-auth/internal/auth/provider"
	"participant-auth/internal/logger"
	"participant-auth/internal/middleware"
	"participant-auth/internal/participant"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	providers *provider.Registry
	resolver  *auth.Resolver
	elsewhere elsewhere.Resolver
	store     participant.Store

	// secure marks the short-lived OAuth cookies Secure.
	secure bool
}

func NewHandler(
	registry *provider.Registry,
	resolver *auth.Resolver,
	elsewhereResolver elsewhere.Resolver,
	store participant.Store,
	secure bool,
) *Handler {
	return &Handler{
		providers: registry,
		resolver:  resolver,
		elsewhere: elsewhereResolver,
		store:     store,
		secure:    secure,
	}
}

// RegisterRoutes mounts the auth surface. The engine must already run
// middleware.GinAuthenticate.
func (h *Handler) RegisterRoutes(r *gin.Engine, mw *middleware.AuthMiddleware) {
	r.POST("/auth/register", h.Register)
	r.POST("/auth/signin", h.SignIn)
	r.POST("/auth/signout", h.SignOut)
	r.GET("/oauth/login/:provider", h.login)
	r.GET("/oauth/callback/:provider", h.callback)

	api := r.Group("/api")
	api.Use(middleware.GinRequireAuth(mw))
	api.GET("/me", h.Me)
	api.POST("/api-key", h.RecreateAPIKey)
	api.PUT("/password", h.SetPassword)

	admin := r.Group("/admin")
	admin.Use(middleware.GinRequireAdmin(mw))
	admin.PUT("/participants/:username/suspicion", h.SetSuspicion)

	for _, route := range r.Routes() {
		logger.Debug("route registered", map[string]any{
			"method": route.Method,
			"path":   route.Path,
		})
	}
}

func (h *Handler) login(c *gin.Context) {
	providerName := c.Param("provider")

	p, err := h.providers.Get(providerName)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "unknown oauth provider",
		})
		return
	}

	state, err := generateState(c, h.secure)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "state error"})
		return
	}
	_, codeChallenge, err := generatePKCE(c, h.secure)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "pkce error"})
		return
	}

	authURL := p.AuthCodeURL(state, codeChallenge)
	c.Redirect(http.StatusFound, authURL)
}

func (h *Handler) callback(c *gin.Context) {
	providerName := c.Param("provider")

	p, err := h.providers.Get(providerName)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "unknown oauth provider",
		})
		return
	}

	if !validateState(c) {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "invalid state",
		})
		return
	}

	// State and verifier are single use.
	codeVerifier := getPKCEVerifier(c)
	expireOAuthCookie(c, stateCookieName, h.secure)
	expireOAuthCookie(c, pkceCookieName, h.secure)

	if errParam := c.Query("error"); errParam != "" {
		logger.Warn("oidc callback returned error", map[string]any{
			"provider": providerName,
			"error":    errParam,
			"desc":     c.Query("error_description"),
		})
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "authentication failed",
		})
		return
	}

	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "missing code",
		})
		return
	}

	if codeVerifier == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "missing pkce verifier",
		})
		return
	}

	ctx := c.Request.Context()

	identity, err := p.ExchangeCode(ctx, code, codeVerifier)
	if err != nil {
		logger.Warn("oidc code exchange failed", map[string]any{
			"provider": providerName,
			"error":    err.Error(),
		})
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "authentication failed",
		})
		return
	}

	found, err := h.elsewhere.Resolve(ctx, identity)
	if err != nil {
		logger.Error("elsewhere resolution failed", map[string]any{
			"provider": providerName,
			"error":    err.Error(),
		})
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to resolve participant",
		})
		return
	}

	user, err := h.resolver.FromUsername(ctx, found.UsernameLower)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve participant"})
		return
	}

	h.startSession(c, user, http.StatusOK)
}

// startSession signs user in and reports the outcome as JSON.
func (h *Handler) startSession(c *gin.Context, user *auth.User, status int) {
	err := h.resolver.SignIn(c.Request.Context(), c.Writer, user)
	if errors.Is(err, auth.ErrAnonymous) {
		c.JSON(http.StatusForbidden, gin.H{"error": "account unavailable"})
		return
	}
	if err != nil {
		logger.Error("sign in failed", map[string]any{
			"error": err.Error(),
		})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session error"})
		return
	}

	c.JSON(status, gin.H{
		"status":   "signed_in",
		"username": user.Username(),
		"expires":  user.Participant().SessionExpires.Format(time.RFC3339),
	})
}

func (h *Handler) SignOut(c *gin.Context) {
	user := middleware.UserFromContext(c.Request.Context())

	if err := h.resolver.SignOut(c.Request.Context(), c.Writer, user); err != nil {
		logger.Error("sign out failed", map[string]any{
			"error": err.Error(),
		})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session error"})
		return
	}

	c.Status(http.StatusNoContent)
}
