package testutil

import (
	"fmt"
	"path/filepath"
	"testing"

	"gorm.io/gorm"

	"supplement-effects/database"
	"supplement-effects/logger"
)

// DB opens a migrated sqlite database in a per-test temp directory.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000", filepath.Join(tb.TempDir(), "test.db"))
	db, err := database.Open("sqlite", dsn, logger.Nop())
	if err != nil {
		tb.Fatalf("open test db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		tb.Fatalf("migrate test db: %v", err)
	}
	tb.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	return logger.Nop()
}
