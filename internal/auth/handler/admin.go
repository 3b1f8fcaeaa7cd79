package handler

import (
	"errors"
	"net/http"

	"participant-auth/internal/logger"
	"participant-auth/internal/middleware"
	"participant-auth/internal/participant"

	"github.com/gin-gonic/gin"
)

type suspicionRequest struct {
	Suspicion string `json:"suspicion" binding:"required"`
}

// SetSuspicion records a moderation decision for a participant.
func (h *Handler) SetSuspicion(c *gin.Context) {
	var req suspicionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	s, err := participant.ParseSuspicion(req.Suspicion)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()

	target, err := h.store.FindByUsernameLower(ctx, participant.Canonical(c.Param("username")))
	if errors.Is(err, participant.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "participant not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}

	if err := h.store.SetSuspicion(ctx, target.ID, s); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}

	logger.Info("participant suspicion changed", map[string]any{
		"participant_id": target.ID,
		"suspicion":      s.String(),
		"by":             middleware.UserFromContext(ctx).Username(),
	})

	c.JSON(http.StatusOK, gin.H{
		"username":  target.Username,
		"suspicion": s.String(),
	})
}
