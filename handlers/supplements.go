package handlers

import (
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"supplement-effects/effect"
	"supplement-effects/lifecycle"
	"supplement-effects/logger"
	"supplement-effects/models"
	"supplement-effects/reports"
	"supplement-effects/supplements"
)

// CockpitSupplement is the per-supplement card shown to the user.
type CockpitSupplement struct {
	ID                string             `json:"id"`
	SupplementID      string             `json:"supplementId"`
	Name              string             `json:"name"`
	MonthlyCost       *float64           `json:"monthlyCost,omitempty"`
	Status            lifecycle.Status   `json:"status"`
	Overlay           *lifecycle.Overlay `json:"overlay,omitempty"`
	Trial             *lifecycle.Trial   `json:"trial,omitempty"`
	Signal            effect.Signal      `json:"signal"`
	RetestAvailableAt *time.Time         `json:"retestAvailableAt,omitempty"`
	Category          *effect.Category   `json:"category,omitempty"`
}

type SupplementHandler struct {
	log         *logger.Logger
	supplements supplements.Store
	reports     reports.Store
	machine     lifecycle.Machine
	now         func() time.Time
}

func NewSupplementHandler(
	log *logger.Logger,
	supplementStore supplements.Store,
	reportStore reports.Store,
	machine lifecycle.Machine,
	now func() time.Time,
) *SupplementHandler {
	if now == nil {
		now = systemNow
	}
	return &SupplementHandler{
		log:         log.With("handler", "SupplementHandler"),
		supplements: supplementStore,
		reports:     reportStore,
		machine:     machine,
		now:         now,
	}
}

type createSupplementRequest struct {
	SupplementID string   `json:"supplement_id" binding:"required"`
	Name         string   `json:"name" binding:"required"`
	MonthlyCost  *float64 `json:"monthly_cost" binding:"omitempty,gte=0"`
}

// POST /api/users/:user_id/supplements
func (h *SupplementHandler) Create(c *gin.Context) {
	userID, ok := userParam(c)
	if !ok {
		return
	}
	var req createSupplementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	us, err := h.supplements.Create(c.Request.Context(), nil, &models.UserSupplement{
		UserID:       userID,
		SupplementID: req.SupplementID,
		Name:         req.Name,
		MonthlyCost:  req.MonthlyCost,
	})
	switch {
	case errors.Is(err, supplements.ErrExists):
		respondError(c, http.StatusConflict, "already_tracked", err)
		return
	case errors.Is(err, supplements.ErrInvalid):
		respondError(c, http.StatusBadRequest, "invalid_supplement", err)
		return
	case err != nil:
		h.log.Error("Create supplement failed", "user_id", userID, "error", err)
		respondError(c, http.StatusInternalServerError, "create_supplement_failed", err)
		return
	}
	c.JSON(http.StatusCreated, h.card(*us, nil))
}

type trialRequest struct {
	Type      lifecycle.TrialType `json:"type" binding:"required"`
	TotalDays int                 `json:"total_days" binding:"required,oneof=7 14"`
}

// POST /api/user-supplements/:id/trial
// Starts a trial, or a retest when the supplement is a locked rule.
func (h *SupplementHandler) StartTrial(c *gin.Context) {
	id := c.Param("id")
	var req trialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	ctx := c.Request.Context()

	us, err := h.supplements.Get(ctx, nil, id)
	if errors.Is(err, supplements.ErrNotFound) {
		respondError(c, http.StatusNotFound, "not_found", err)
		return
	}
	if err != nil {
		h.log.Error("StartTrial failed (load)", "user_supplement_id", id, "error", err)
		respondError(c, http.StatusInternalServerError, "load_supplement_failed", err)
		return
	}

	now := h.now()
	state := supplements.StateOf(*us, now)
	next, err := h.machine.StartTrial(state, req.Type, req.TotalDays, now)
	switch {
	case errors.Is(err, lifecycle.ErrRetestCooldown):
		c.JSON(http.StatusConflict, gin.H{
			"error":             err.Error(),
			"code":              "retest_cooldown",
			"retestAvailableAt": state.RetestAvailableAt(h.machine.RetestCooldown),
		})
		return
	case errors.Is(err, lifecycle.ErrTrialActive):
		respondError(c, http.StatusConflict, "trial_active", err)
		return
	case errors.Is(err, lifecycle.ErrInvalidTrial):
		respondError(c, http.StatusBadRequest, "invalid_trial", err)
		return
	case err != nil:
		respondError(c, http.StatusInternalServerError, "start_trial_failed", err)
		return
	}

	if err := h.supplements.SaveState(ctx, nil, us.ID, next); err != nil {
		h.log.Error("StartTrial failed (save)", "user_supplement_id", id, "error", err)
		respondError(c, http.StatusInternalServerError, "save_state_failed", err)
		return
	}
	supplements.ApplyState(us, next)
	h.log.Info("Trial started", "user_id", us.UserID, "user_supplement_id", us.ID, "type", req.Type)
	c.JSON(http.StatusOK, h.card(*us, nil))
}

// GET /api/users/:user_id/cockpit
func (h *SupplementHandler) Cockpit(c *gin.Context) {
	userID, ok := userParam(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	tracked, err := h.supplements.ListByUser(ctx, nil, userID)
	if err != nil {
		h.log.Error("Cockpit failed (supplements)", "user_id", userID, "error", err)
		respondError(c, http.StatusInternalServerError, "load_supplements_failed", err)
		return
	}
	byPair, err := h.reports.ListByUser(ctx, nil, userID)
	if err != nil {
		h.log.Error("Cockpit failed (reports)", "user_id", userID, "error", err)
		respondError(c, http.StatusInternalServerError, "load_reports_failed", err)
		return
	}

	cards := make([]CockpitSupplement, 0, len(tracked))
	for _, us := range tracked {
		var report *models.TruthReport
		if r, ok := byPair[us.ID]; ok {
			report = &r
		}
		cards = append(cards, h.card(us, report))
	}
	sort.SliceStable(cards, func(i, j int) bool { return cards[i].Name < cards[j].Name })
	c.JSON(http.StatusOK, cards)
}

func (h *SupplementHandler) card(us models.UserSupplement, report *models.TruthReport) CockpitSupplement {
	state := supplements.StateOf(us, h.now())
	card := CockpitSupplement{
		ID:                us.ID,
		SupplementID:      us.SupplementID,
		Name:              us.Name,
		MonthlyCost:       us.MonthlyCost,
		Status:            state.Status,
		Overlay:           state.Overlay,
		Trial:             state.Trial,
		RetestAvailableAt: state.RetestAvailableAt(h.machine.RetestCooldown),
	}
	var summary *effect.Summary
	if report != nil {
		category := effect.Category(report.EffectCategory)
		card.Category = &category
		summary = &effect.Summary{
			Direction:  effect.Direction(report.EffectDirection),
			Magnitude:  report.EffectMagnitude,
			Confidence: report.EffectConfidence,
		}
	}
	card.Signal = effect.NewSignal(state.CleanDays, h.machine.RequiredCleanDays, summary)
	return card
}
