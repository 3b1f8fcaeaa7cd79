package handler

import (
	"errors"
	"net/http"

	"participant-auth/internal/auth/credentials"
	"participant-auth/internal/participant"

	"github.com/gin-gonic/gin"
)

type registerRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
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
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		return
	}

	ctx := c.Request.Context()

	p, err := h.store.Create(ctx, participant.NewParticipant{
		Username:     req.Username,
		PasswordHash: hash,
	})
	if err != nil {
		switch {
		case errors.Is(err, participant.ErrUsernameTaken):
			c.JSON(http.StatusConflict, gin.H{"error": "username already taken"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		}
		return
	}

	user, err := h.resolver.FromUsername(ctx, p.UsernameLower)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		return
	}

	h.startSession(c, user, http.StatusCreated)
}
