package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"supplement-effects/cache"
	"supplement-effects/effect"
	"supplement-effects/logger"
	"supplement-effects/reports"
)

// EffectRecord is the public view of a truth report.
type EffectRecord struct {
	UserSupplementID string    `json:"user_supplement_id"`
	EffectCategory   string    `json:"effect_category"`
	EffectDirection  string    `json:"effect_direction"`
	EffectMagnitude  float64   `json:"effect_magnitude"`
	EffectConfidence float64   `json:"effect_confidence"`
	PreStartAverage  *float64  `json:"pre_start_average"`
	PostStartAverage *float64  `json:"post_start_average"`
	DaysOn           int       `json:"days_on"`
	DaysOff          int       `json:"days_off"`
	CleanDays        int       `json:"clean_days"`
	NoisyDays        int       `json:"noisy_days"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type EffectsHandler struct {
	log     *logger.Logger
	reports reports.Store
	cache   cache.Cache
	ttl     time.Duration
}

func NewEffectsHandler(log *logger.Logger, store reports.Store, c cache.Cache, ttl time.Duration) *EffectsHandler {
	return &EffectsHandler{
		log:     log.With("handler", "EffectsHandler"),
		reports: store,
		cache:   c,
		ttl:     ttl,
	}
}

// GET /api/users/:user_id/effects
func (h *EffectsHandler) GetEffects(c *gin.Context) {
	userID, ok := userParam(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	key := cache.EffectsKey(userID)

	if h.cache != nil {
		body, hit, err := h.cache.Get(ctx, key)
		if err != nil {
			h.log.Warn("Effects cache read failed", "user_id", userID, "error", err)
		}
		if hit {
			c.Header("X-Cache", "hit")
			c.Data(http.StatusOK, "application/json; charset=utf-8", body)
			return
		}
	}

	byPair, err := h.reports.ListByUser(ctx, nil, userID)
	if err != nil {
		h.log.Error("GetEffects failed", "user_id", userID, "error", err)
		respondError(c, http.StatusInternalServerError, "load_effects_failed", err)
		return
	}
	out := make(map[string]EffectRecord, len(byPair))
	for id, r := range byPair {
		out[id] = EffectRecord{
			UserSupplementID: r.UserSupplementID,
			EffectCategory:   r.EffectCategory,
			EffectDirection:  r.EffectDirection,
			EffectMagnitude:  r.EffectMagnitude,
			EffectConfidence: r.EffectConfidence,
			PreStartAverage:  r.PreStartAverage,
			PostStartAverage: r.PostStartAverage,
			DaysOn:           r.DaysOn,
			DaysOff:          r.DaysOff,
			CleanDays:        r.CleanDays,
			NoisyDays:        r.NoisyDays,
			UpdatedAt:        r.UpdatedAt,
		}
	}
	body, err := json.Marshal(out)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "encode_effects_failed", err)
		return
	}
	if h.cache != nil {
		if err := h.cache.Set(ctx, key, body, h.ttl); err != nil {
			h.log.Warn("Effects cache write failed", "user_id", userID, "error", err)
		}
	}
	c.Header("X-Cache", "miss")
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

// GET /api/users/:user_id/stats
func (h *EffectsHandler) GetStats(c *gin.Context) {
	userID, ok := userParam(c)
	if !ok {
		return
	}
	counts, err := h.reports.CountByCategory(c.Request.Context(), nil, userID)
	if err != nil {
		h.log.Error("GetStats failed", "user_id", userID, "error", err)
		respondError(c, http.StatusInternalServerError, "load_stats_failed", err)
		return
	}

	var total int64
	for _, n := range counts {
		total += n
	}
	c.JSON(http.StatusOK, gin.H{
		"total":           total,
		"works":           counts[string(effect.CategoryWorks)],
		"no_effect":       counts[string(effect.CategoryNoEffect)],
		"inconsistent":    counts[string(effect.CategoryInconsistent)],
		"needs_more_data": counts[string(effect.CategoryNeedsMoreData)],
	})
}
