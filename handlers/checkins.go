package handlers

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"
	_ "time/tzdata"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"supplement-effects/analysis"
	"supplement-effects/checkins"
	"supplement-effects/logger"
	"supplement-effects/models"
)

type CheckinHandler struct {
	log          *logger.Logger
	checkins     checkins.Store
	outcomeRange float64
	now          func() time.Time
}

func NewCheckinHandler(log *logger.Logger, store checkins.Store, outcomeRange float64, now func() time.Time) *CheckinHandler {
	if now == nil {
		now = systemNow
	}
	return &CheckinHandler{
		log:          log.With("handler", "CheckinHandler"),
		checkins:     store,
		outcomeRange: outcomeRange,
		now:          now,
	}
}

type entryRequest struct {
	LocalDate          string             `json:"local_date" binding:"required"`
	Timezone           string             `json:"timezone"`
	Metrics            map[string]float64 `json:"metrics"`
	SupplementIntake   map[string]float64 `json:"supplement_intake"`
	SkippedSupplements []string           `json:"skipped_supplements"`
	Tags               []string           `json:"tags"`
}

// POST /api/users/:user_id/entries
func (h *CheckinHandler) UpsertEntry(c *gin.Context) {
	userID, ok := userParam(c)
	if !ok {
		return
	}
	var req entryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	loc, err := time.LoadLocation(req.Timezone)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid_timezone", err)
		return
	}
	if err := h.checkMetrics(req.Metrics); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_metrics", err)
		return
	}
	for id, amount := range req.SupplementIntake {
		if amount < 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
			respondError(c, http.StatusBadRequest, "invalid_intake", fmt.Errorf("intake for %s must be a non-negative number", id))
			return
		}
	}

	entry := &models.DailyEntry{
		UserID:             userID,
		LocalDate:          req.LocalDate,
		Metrics:            datatypes.NewJSONType(orEmpty(req.Metrics)),
		SupplementIntake:   datatypes.NewJSONType(orEmpty(req.SupplementIntake)),
		SkippedSupplements: datatypes.JSONSlice[string](req.SkippedSupplements),
		Tags:               datatypes.JSONSlice[string](req.Tags),
	}
	today := h.now().In(loc).Format(analysis.DateLayout)
	stored, err := h.checkins.UpsertDailyEntry(c.Request.Context(), nil, entry, today)
	switch {
	case errors.Is(err, checkins.ErrEntryLocked):
		respondError(c, http.StatusConflict, "entry_locked", err)
		return
	case errors.Is(err, checkins.ErrInvalidEntry):
		respondError(c, http.StatusBadRequest, "invalid_entry", err)
		return
	case err != nil:
		h.log.Error("UpsertEntry failed", "user_id", userID, "error", err)
		respondError(c, http.StatusInternalServerError, "save_entry_failed", err)
		return
	}
	c.JSON(http.StatusOK, stored)
}

type logRequest struct {
	SupplementID string `json:"supplement_id" binding:"required"`
	LocalDate    string `json:"local_date" binding:"required"`
	Taken        *bool  `json:"taken" binding:"required"`
}

// POST /api/users/:user_id/supplement-logs
func (h *CheckinHandler) UpsertLog(c *gin.Context) {
	userID, ok := userParam(c)
	if !ok {
		return
	}
	var req logRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	stored, err := h.checkins.UpsertSupplementLog(c.Request.Context(), nil, &models.SupplementLog{
		UserID:       userID,
		SupplementID: req.SupplementID,
		LocalDate:    req.LocalDate,
		Taken:        *req.Taken,
	})
	switch {
	case errors.Is(err, checkins.ErrInvalidEntry):
		respondError(c, http.StatusBadRequest, "invalid_log", err)
		return
	case err != nil:
		h.log.Error("UpsertLog failed", "user_id", userID, "error", err)
		respondError(c, http.StatusInternalServerError, "save_log_failed", err)
		return
	}
	c.JSON(http.StatusOK, stored)
}

func (h *CheckinHandler) checkMetrics(metrics map[string]float64) error {
	for name, v := range metrics {
		if math.IsNaN(v) || v < 0 || v > h.outcomeRange {
			return fmt.Errorf("metric %s must be within 0..%g", name, h.outcomeRange)
		}
	}
	return nil
}

func orEmpty(m map[string]float64) map[string]float64 {
	if m == nil {
		return map[string]float64{}
	}
	return m
}
