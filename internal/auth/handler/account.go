package handler

import (
	"net/http"

	"participant-auth/internal/auth/credentials"
	"participant-auth/internal/middleware"
	"participant-auth/internal/participant"

	"github.com/gin-gonic/gin"
)

func (h *Handler) Me(c *gin.Context) {
	user := middleware.UserFromContext(c.Request.Context())

	c.JSON(http.StatusOK, gin.H{
		"username": user.Username(),
		"admin":    user.Admin(),
	})
}

func (h *Handler) RecreateAPIKey(c *gin.Context) {
	user := middleware.UserFromContext(c.Request.Context())

	key, err := participant.RecreateAPIKey(c.Request.Context(), h.store, user.Participant())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue api key"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"api_key": key})
}

type passwordRequest struct {
	Password string `json:"password" binding:"required"`
}

func (h *Handler) SetPassword(c *gin.Context) {
	var req passwordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	hash, err := credentials.HashPassword(req.Password)
	if credentials.IsPolicyViolation(err) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to hash password"})
		return
	}

	user := middleware.UserFromContext(c.Request.Context())
	if err := h.store.SetPasswordHash(c.Request.Context(), user.Participant().ID, hash); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store password"})
		return
	}

	c.Status(http.StatusNoContent)
}
