package main

import (
	"github.com/spf13/cobra"

	"supplement-effects/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Creates or updates the database schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		defer log.Sync()

		db, err := database.Open(cfg.DBDriver, cfg.DBDSN, log)
		if err != nil {
			return err
		}
		if sqlDB, err := db.DB(); err == nil {
			defer sqlDB.Close()
		}
		if err := database.Migrate(db); err != nil {
			return err
		}
		log.Info("Schema migrated", "driver", cfg.DBDriver)
		return nil
	},
}
