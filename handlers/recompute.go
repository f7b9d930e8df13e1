package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"supplement-effects/batch"
	"supplement-effects/logger"
)

type Recomputer interface {
	Run(ctx context.Context, priority batch.Priority) (batch.Result, error)
	RecomputeUser(ctx context.Context, userID string, priority batch.Priority) (int, error)
}

type RecomputeHandler struct {
	log       *logger.Logger
	processor Recomputer
}

func NewRecomputeHandler(log *logger.Logger, processor Recomputer) *RecomputeHandler {
	return &RecomputeHandler{
		log:       log.With("handler", "RecomputeHandler"),
		processor: processor,
	}
}

// POST /api/users/:user_id/recompute?priority=
func (h *RecomputeHandler) RecomputeUser(c *gin.Context) {
	userID, ok := userParam(c)
	if !ok {
		return
	}
	priority, err := batch.ParsePriority(c.DefaultQuery("priority", string(batch.PriorityNormal)))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid_priority", err)
		return
	}
	insights, err := h.processor.RecomputeUser(c.Request.Context(), userID, priority)
	if err != nil {
		h.log.Error("RecomputeUser failed", "user_id", userID, "error", err)
		respondError(c, http.StatusInternalServerError, "recompute_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id":  userID,
		"priority": priority,
		"insights": insights,
	})
}

// POST /api/cron/recompute?priority=
func (h *RecomputeHandler) Cron(c *gin.Context) {
	priority, err := batch.ParsePriority(c.Query("priority"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid_priority", err)
		return
	}
	res, err := h.processor.Run(c.Request.Context(), priority)
	if err != nil {
		h.log.Error("Cron recompute failed", "priority", priority, "error", err)
		respondError(c, http.StatusInternalServerError, "batch_failed", err)
		return
	}
	c.JSON(http.StatusOK, res)
}
