package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"supplement-effects/batch"
	"supplement-effects/database"
	"supplement-effects/handlers"
	"supplement-effects/telemetry"
)

const serviceName = "supplement-effects"

var (
	noScheduler bool

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Runs the HTTP API and the periodic recompute",
		RunE:  runServe,
	}
)

func init() {
	serveCmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "do not run the periodic batch in this process")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing := telemetry.Init(ctx, log, telemetry.Config{ServiceName: serviceName, Environment: cfg.LogMode})
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := database.Migrate(a.db); err != nil {
		return err
	}

	if !noScheduler {
		batch.NewScheduler(a.processor, cfg.Batch.ScheduleInterval, batch.PriorityLow, log).Start(ctx)
	}

	if cfg.LogMode != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := handlers.NewRouter(handlers.RouterConfig{
		Log:         log,
		ServiceName: serviceName,
		CORSOrigins: cfg.CORSOrigins,
		Checkins:    handlers.NewCheckinHandler(log, a.checkins, cfg.Engine.OutcomeRange, nil),
		Supplements: handlers.NewSupplementHandler(log, a.supplements, a.reports, a.machine, nil),
		Effects:     handlers.NewEffectsHandler(log, a.reports, a.cache, cfg.CacheTTL),
		Recompute:   handlers.NewRecomputeHandler(log, a.processor),
		Health:      handlers.NewHealthHandler(a.db),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting supplement effects server", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
