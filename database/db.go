package database

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"supplement-effects/logger"
	"supplement-effects/models"
)

// Open connects to sqlite (default) or postgres.
func Open(driver, dsn string, log *logger.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "", "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormLogger.Default.LogMode(gormLogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		log.Error("Failed to connect to database", "driver", driver, "error", err)
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}

	if driver != "postgres" {
		// sqlite allows a single writer
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	log.Info("Database connected successfully", "driver", driver)
	return db, nil
}

// Migrate creates or updates every table, including the unique indexes the
// upserts rely on.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.DailyEntry{},
		&models.SupplementLog{},
		&models.UserSupplement{},
		&models.TruthReport{},
	)
}
