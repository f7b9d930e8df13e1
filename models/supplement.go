package models

import "time"

// UserSupplement is a tracked (user, supplement) pair together with its
// persisted lifecycle state.
type UserSupplement struct {
	ID             string     `json:"id" gorm:"primaryKey;size:36"`
	UserID         string     `json:"user_id" gorm:"not null;size:64;uniqueIndex:idx_user_supplement_pair"`
	SupplementID   string     `json:"supplement_id" gorm:"not null;size:64;uniqueIndex:idx_user_supplement_pair"`
	Name           string     `json:"name"`
	MonthlyCost    *float64   `json:"monthly_cost,omitempty"`
	Status         string     `json:"status" gorm:"not null;size:32"`
	Overlay        *string    `json:"overlay,omitempty" gorm:"size:32"`
	TrialType      *string    `json:"trial_type,omitempty" gorm:"size:16"`
	TrialTotalDays int        `json:"trial_total_days"`
	TrialStartedAt *time.Time `json:"trial_started_at,omitempty"`
	LockedAt       *time.Time `json:"locked_at,omitempty"`
	CleanDays      int        `json:"clean_days"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}
