package models

import (
	"time"

	"gorm.io/datatypes"
)

// DailyEntry is one user's check-in for one local calendar date (YYYY-MM-DD).
type DailyEntry struct {
	ID                 string                                 `json:"id" gorm:"primaryKey;size:36"`
	UserID             string                                 `json:"user_id" gorm:"not null;size:64;uniqueIndex:idx_daily_entry_user_date"`
	LocalDate          string                                 `json:"local_date" gorm:"not null;size:10;uniqueIndex:idx_daily_entry_user_date"`
	Metrics            datatypes.JSONType[map[string]float64] `json:"metrics"`
	SupplementIntake   datatypes.JSONType[map[string]float64] `json:"supplement_intake"`
	SkippedSupplements datatypes.JSONSlice[string]            `json:"skipped_supplements"`
	Tags               datatypes.JSONSlice[string]            `json:"tags"`
	CreatedAt          time.Time                              `json:"created_at"`
	UpdatedAt          time.Time                              `json:"updated_at" gorm:"index"`
}

// SupplementLog records whether a supplement was taken on a date. Last write wins.
type SupplementLog struct {
	ID           string    `json:"id" gorm:"primaryKey;size:36"`
	UserID       string    `json:"user_id" gorm:"not null;size:64;uniqueIndex:idx_supplement_log_day"`
	SupplementID string    `json:"supplement_id" gorm:"not null;size:64;uniqueIndex:idx_supplement_log_day"`
	LocalDate    string    `json:"local_date" gorm:"not null;size:10;uniqueIndex:idx_supplement_log_day"`
	Taken        bool      `json:"taken"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"index"`
}
