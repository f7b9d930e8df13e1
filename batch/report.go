package batch

import (
	"supplement-effects/analysis"
	"supplement-effects/effect"
	"supplement-effects/lifecycle"
	"supplement-effects/models"
)

// BuildReport flattens an analysis result and the advanced lifecycle state
// into the canonical truth report row.
func BuildReport(userID, userSupplementID string, res analysis.Result, st lifecycle.State) *models.TruthReport {
	r := &models.TruthReport{
		UserID:           userID,
		UserSupplementID: userSupplementID,
		EffectCategory:   string(res.Category),
		EffectDirection:  string(effect.DirectionNeutral),
		PreStartAverage:  res.PreStartAverage,
		PostStartAverage: res.PostStartAverage,
		DaysOn:           res.DaysOn,
		DaysOff:          res.DaysOff,
		CleanDays:        res.CleanDays,
		NoisyDays:        res.NoisyDays,
		Status:           string(st.Status),
	}
	if res.Primary != nil {
		r.EffectDirection = string(res.Primary.Direction)
		r.EffectMagnitude = res.Primary.Magnitude
		r.EffectConfidence = res.Primary.Confidence
	}
	if st.Overlay != nil {
		o := string(*st.Overlay)
		r.Overlay = &o
	}
	return r
}
