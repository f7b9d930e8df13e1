package supplements

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"supplement-effects/lifecycle"
	"supplement-effects/logger"
	"supplement-effects/models"
)

var (
	ErrNotFound = errors.New("supplements: user supplement not found")
	ErrInvalid  = errors.New("supplements: invalid user supplement")
	ErrExists   = errors.New("supplements: supplement already tracked")
)

type Store interface {
	Create(ctx context.Context, tx *gorm.DB, us *models.UserSupplement) (*models.UserSupplement, error)
	Get(ctx context.Context, tx *gorm.DB, id string) (*models.UserSupplement, error)
	ListByUser(ctx context.Context, tx *gorm.DB, userID string) ([]models.UserSupplement, error)
	SaveState(ctx context.Context, tx *gorm.DB, id string, state lifecycle.State) error
}

type store struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStore(db *gorm.DB, baseLog *logger.Logger) Store {
	return &store{db: db, log: baseLog.With("store", "SupplementStore")}
}

func (s *store) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db
}

// Create starts tracking a supplement in the initial lifecycle state.
func (s *store) Create(ctx context.Context, tx *gorm.DB, us *models.UserSupplement) (*models.UserSupplement, error) {
	if us == nil || strings.TrimSpace(us.UserID) == "" || strings.TrimSpace(us.SupplementID) == "" {
		return nil, fmt.Errorf("%w: user_id and supplement_id are required", ErrInvalid)
	}
	if us.ID == "" {
		us.ID = uuid.NewString()
	}
	ApplyState(us, lifecycle.New())
	if err := s.conn(tx).WithContext(ctx).Create(us).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%w: %s", ErrExists, us.SupplementID)
		}
		return nil, err
	}
	return us, nil
}

func (s *store) Get(ctx context.Context, tx *gorm.DB, id string) (*models.UserSupplement, error) {
	var us models.UserSupplement
	err := s.conn(tx).WithContext(ctx).Where("id = ?", id).First(&us).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &us, nil
}

func (s *store) ListByUser(ctx context.Context, tx *gorm.DB, userID string) ([]models.UserSupplement, error) {
	var out []models.UserSupplement
	err := s.conn(tx).WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

func (s *store) SaveState(ctx context.Context, tx *gorm.DB, id string, state lifecycle.State) error {
	if err := state.Validate(); err != nil {
		return err
	}
	var row models.UserSupplement
	ApplyState(&row, state)
	res := s.conn(tx).WithContext(ctx).
		Model(&models.UserSupplement{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":           row.Status,
			"overlay":          row.Overlay,
			"trial_type":       row.TrialType,
			"trial_total_days": row.TrialTotalDays,
			"trial_started_at": row.TrialStartedAt,
			"locked_at":        row.LockedAt,
			"clean_days":       row.CleanDays,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// StateOf reads the lifecycle state stored on a row. The trial day is
// derived from now.
func StateOf(us models.UserSupplement, now time.Time) lifecycle.State {
	st := lifecycle.State{
		Status:    lifecycle.Status(us.Status),
		LockedAt:  us.LockedAt,
		CleanDays: us.CleanDays,
	}
	if st.Status == "" {
		st.Status = lifecycle.StatusGatheringEvidence
	}
	if us.Overlay != nil {
		o := lifecycle.Overlay(*us.Overlay)
		st.Overlay = &o
	}
	if st.Status == lifecycle.StatusTrial && us.TrialType != nil && us.TrialStartedAt != nil {
		trial := lifecycle.Trial{
			Type:      lifecycle.TrialType(*us.TrialType),
			TotalDays: us.TrialTotalDays,
			StartedAt: *us.TrialStartedAt,
			EndsAt:    us.TrialStartedAt.Add(time.Duration(us.TrialTotalDays) * 24 * time.Hour),
		}
		trial.Day = lifecycle.TrialDay(trial, now)
		st.Trial = &trial
	}
	return st
}

// ApplyState copies a lifecycle state onto a row.
func ApplyState(us *models.UserSupplement, st lifecycle.State) {
	us.Status = string(st.Status)
	us.LockedAt = st.LockedAt
	us.CleanDays = st.CleanDays
	us.Overlay = nil
	if st.Overlay != nil {
		o := string(*st.Overlay)
		us.Overlay = &o
	}
	us.TrialType = nil
	us.TrialTotalDays = 0
	us.TrialStartedAt = nil
	if st.Trial != nil {
		typ := string(st.Trial.Type)
		started := st.Trial.StartedAt
		us.TrialType = &typ
		us.TrialTotalDays = st.Trial.TotalDays
		us.TrialStartedAt = &started
	}
}
