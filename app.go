package main

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"supplement-effects/analysis"
	"supplement-effects/batch"
	"supplement-effects/cache"
	"supplement-effects/checkins"
	"supplement-effects/config"
	"supplement-effects/database"
	"supplement-effects/lifecycle"
	"supplement-effects/logger"
	"supplement-effects/reports"
	"supplement-effects/supplements"
)

// app holds everything the commands share.
type app struct {
	cfg config.Config
	log *logger.Logger
	db  *gorm.DB

	cache       cache.Cache
	checkins    checkins.Store
	supplements supplements.Store
	reports     reports.Store
	machine     lifecycle.Machine
	processor   *batch.Processor

	closers []func() error
}

func loadConfig() (config.Config, *logger.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, nil, err
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return cfg, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, log, nil
}

func newApp(ctx context.Context, cfg config.Config, log *logger.Logger) (*app, error) {
	db, err := database.Open(cfg.DBDriver, cfg.DBDSN, log)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log, db: db}
	a.closers = append(a.closers, func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})

	a.cache = cache.NewMemory(cache.SystemClock)
	if cfg.RedisAddr != "" {
		rdb, err := cache.DialRedis(ctx, cfg.RedisAddr)
		if err != nil {
			log.Warn("Redis unavailable, using in-process cache", "addr", cfg.RedisAddr, "error", err)
		} else {
			a.cache = cache.NewRedis(rdb, "supplements:")
			a.closers = append(a.closers, rdb.Close)
			log.Info("Redis cache connected", "addr", cfg.RedisAddr)
		}
	}

	analyzer, err := analysis.NewAnalyzer(cfg.Engine)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("noisy rule: %w", err)
	}
	a.checkins = checkins.NewStore(db, log)
	a.supplements = supplements.NewStore(db, log)
	a.reports = reports.NewStore(db, log)
	a.machine = lifecycle.NewMachine(cfg.Engine.RequiredCleanDays, cfg.Engine.RetestCooldown)
	a.processor = batch.NewProcessor(batch.Deps{
		DB:          db,
		Log:         log,
		Checkins:    a.checkins,
		Supplements: a.supplements,
		Reports:     a.reports,
		Analyzer:    analyzer,
		Machine:     a.machine,
		Cache:       a.cache,
		Config:      cfg.Batch,
	})
	return a, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("Close failed", "error", err)
		}
	}
	a.closers = nil
}
