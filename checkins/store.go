package checkins

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"supplement-effects/analysis"
	"supplement-effects/logger"
	"supplement-effects/models"
)

var (
	ErrEntryLocked  = errors.New("checkins: daily entry can only be changed on its own date")
	ErrInvalidEntry = errors.New("checkins: invalid entry")
)

type Store interface {
	UpsertDailyEntry(ctx context.Context, tx *gorm.DB, entry *models.DailyEntry, today string) (*models.DailyEntry, error)
	UpsertSupplementLog(ctx context.Context, tx *gorm.DB, log *models.SupplementLog) (*models.SupplementLog, error)
	ListDailyEntries(ctx context.Context, tx *gorm.DB, userID, sinceDate string) ([]models.DailyEntry, error)
	ListSupplementLogs(ctx context.Context, tx *gorm.DB, userID, sinceDate string) ([]models.SupplementLog, error)
	ActiveUserIDs(ctx context.Context, tx *gorm.DB, sinceDate string) ([]string, error)
}

type store struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStore(db *gorm.DB, baseLog *logger.Logger) Store {
	return &store{db: db, log: baseLog.With("store", "CheckinStore")}
}

func (s *store) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db
}

// UpsertDailyEntry writes the entry for today. Past and future dates are
// rejected because a finished day is immutable.
func (s *store) UpsertDailyEntry(ctx context.Context, tx *gorm.DB, entry *models.DailyEntry, today string) (*models.DailyEntry, error) {
	if entry == nil || strings.TrimSpace(entry.UserID) == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidEntry)
	}
	if _, err := analysis.ParseDate(entry.LocalDate); err != nil {
		return nil, fmt.Errorf("%w: local_date %q", ErrInvalidEntry, entry.LocalDate)
	}
	if entry.LocalDate != today {
		return nil, fmt.Errorf("%w: %s is not %s", ErrEntryLocked, entry.LocalDate, today)
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	transaction := s.conn(tx).WithContext(ctx)
	err := transaction.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "local_date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"metrics",
			"supplement_intake",
			"skipped_supplements",
			"tags",
			"updated_at",
		}),
	}).Create(entry).Error
	if err != nil {
		return nil, err
	}

	var stored models.DailyEntry
	if err := transaction.Where("user_id = ? AND local_date = ?", entry.UserID, entry.LocalDate).First(&stored).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

func (s *store) UpsertSupplementLog(ctx context.Context, tx *gorm.DB, log *models.SupplementLog) (*models.SupplementLog, error) {
	if log == nil || strings.TrimSpace(log.UserID) == "" || strings.TrimSpace(log.SupplementID) == "" {
		return nil, fmt.Errorf("%w: user_id and supplement_id are required", ErrInvalidEntry)
	}
	if _, err := analysis.ParseDate(log.LocalDate); err != nil {
		return nil, fmt.Errorf("%w: local_date %q", ErrInvalidEntry, log.LocalDate)
	}
	if log.ID == "" {
		log.ID = uuid.NewString()
	}

	transaction := s.conn(tx).WithContext(ctx)
	err := transaction.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "supplement_id"}, {Name: "local_date"}},
		DoUpdates: clause.AssignmentColumns([]string{"taken", "updated_at"}),
	}).Create(log).Error
	if err != nil {
		return nil, err
	}

	var stored models.SupplementLog
	if err := transaction.
		Where("user_id = ? AND supplement_id = ? AND local_date = ?", log.UserID, log.SupplementID, log.LocalDate).
		First(&stored).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

func (s *store) ListDailyEntries(ctx context.Context, tx *gorm.DB, userID, sinceDate string) ([]models.DailyEntry, error) {
	var entries []models.DailyEntry
	err := s.conn(tx).WithContext(ctx).
		Where("user_id = ? AND local_date >= ?", userID, sinceDate).
		Order("local_date ASC").
		Find(&entries).Error
	return entries, err
}

func (s *store) ListSupplementLogs(ctx context.Context, tx *gorm.DB, userID, sinceDate string) ([]models.SupplementLog, error) {
	var logs []models.SupplementLog
	err := s.conn(tx).WithContext(ctx).
		Where("user_id = ? AND local_date >= ?", userID, sinceDate).
		Order("local_date ASC").
		Find(&logs).Error
	return logs, err
}

// ActiveUserIDs returns users with an entry or a log on or after sinceDate.
func (s *store) ActiveUserIDs(ctx context.Context, tx *gorm.DB, sinceDate string) ([]string, error) {
	transaction := s.conn(tx).WithContext(ctx)

	var fromEntries, fromLogs []string
	if err := transaction.Model(&models.DailyEntry{}).
		Where("local_date >= ?", sinceDate).
		Distinct().Pluck("user_id", &fromEntries).Error; err != nil {
		return nil, err
	}
	if err := transaction.Model(&models.SupplementLog{}).
		Where("local_date >= ?", sinceDate).
		Distinct().Pluck("user_id", &fromLogs).Error; err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(fromEntries)+len(fromLogs))
	ids := make([]string, 0, len(fromEntries)+len(fromLogs))
	for _, id := range append(fromEntries, fromLogs...) {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
