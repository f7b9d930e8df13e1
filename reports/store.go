package reports

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"supplement-effects/logger"
	"supplement-effects/models"
)

var ErrInvalidReport = errors.New("reports: invalid truth report")

type Store interface {
	PersistSingle(ctx context.Context, tx *gorm.DB, report *models.TruthReport) error
	ListByUser(ctx context.Context, tx *gorm.DB, userID string) (map[string]models.TruthReport, error)
	CountByCategory(ctx context.Context, tx *gorm.DB, userID string) (map[string]int64, error)
}

type store struct {
	db       *gorm.DB
	log      *logger.Logger
	validate *validator.Validate
}

func NewStore(db *gorm.DB, baseLog *logger.Logger) Store {
	return &store{
		db:       db,
		log:      baseLog.With("store", "TruthReportStore"),
		validate: validator.New(),
	}
}

func (s *store) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db
}

// PersistSingle writes the report for its (user, user supplement) pair. An
// existing row keeps its id and takes the new content; the unique index makes
// the write a single atomic statement under concurrent writers.
func (s *store) PersistSingle(ctx context.Context, tx *gorm.DB, report *models.TruthReport) error {
	if report == nil {
		return fmt.Errorf("%w: nil report", ErrInvalidReport)
	}
	if err := s.validate.Struct(report); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidReport, err)
	}
	if report.ID == "" {
		report.ID = uuid.NewString()
	}

	err := s.conn(tx).WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "user_supplement_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"effect_category",
			"effect_direction",
			"effect_magnitude",
			"effect_confidence",
			"pre_start_average",
			"post_start_average",
			"days_on",
			"days_off",
			"clean_days",
			"noisy_days",
			"status",
			"overlay",
			"updated_at",
		}),
	}).Create(report).Error
	if err != nil {
		s.log.Error("Failed to persist truth report",
			"user_id", report.UserID,
			"user_supplement_id", report.UserSupplementID,
			"error", err,
		)
		return fmt.Errorf("persist truth report: %w", err)
	}
	return nil
}

// ListByUser returns the user's reports keyed by user supplement id.
func (s *store) ListByUser(ctx context.Context, tx *gorm.DB, userID string) (map[string]models.TruthReport, error) {
	var rows []models.TruthReport
	if err := s.conn(tx).WithContext(ctx).Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]models.TruthReport, len(rows))
	for _, r := range rows {
		out[r.UserSupplementID] = r
	}
	return out, nil
}

func (s *store) CountByCategory(ctx context.Context, tx *gorm.DB, userID string) (map[string]int64, error) {
	var rows []struct {
		EffectCategory string
		Total          int64
	}
	err := s.conn(tx).WithContext(ctx).
		Model(&models.TruthReport{}).
		Select("effect_category, COUNT(*) AS total").
		Where("user_id = ?", userID).
		Group("effect_category").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.EffectCategory] = r.Total
	}
	return out, nil
}
