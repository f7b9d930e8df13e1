package models

import "time"

// TruthReport is the single canonical verdict row for a (user, user supplement) pair.
type TruthReport struct {
	ID               string    `json:"id" gorm:"primaryKey;size:36"`
	UserID           string    `json:"user_id" gorm:"not null;size:64;uniqueIndex:idx_truth_report_pair" validate:"required"`
	UserSupplementID string    `json:"user_supplement_id" gorm:"not null;size:36;uniqueIndex:idx_truth_report_pair" validate:"required"`
	EffectCategory   string    `json:"effect_category" gorm:"size:32;index"`
	EffectDirection  string    `json:"effect_direction" gorm:"size:16"`
	EffectMagnitude  float64   `json:"effect_magnitude"`
	EffectConfidence float64   `json:"effect_confidence" validate:"gte=0,lte=1"`
	PreStartAverage  *float64  `json:"pre_start_average"`
	PostStartAverage *float64  `json:"post_start_average"`
	DaysOn           int       `json:"days_on" validate:"gte=0"`
	DaysOff          int       `json:"days_off" validate:"gte=0"`
	CleanDays        int       `json:"clean_days" validate:"gte=0"`
	NoisyDays        int       `json:"noisy_days" validate:"gte=0"`
	Status           string    `json:"status" gorm:"size:32"`
	Overlay          *string   `json:"overlay"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
