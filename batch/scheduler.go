package batch

import (
	"context"
	"time"

	"supplement-effects/logger"
)

type Runner interface {
	Run(ctx context.Context, priority Priority) (Result, error)
}

// Scheduler triggers a batch run on a fixed interval until its context ends.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	priority Priority
	log      *logger.Logger
}

func NewScheduler(runner Runner, interval time.Duration, priority Priority, log *logger.Logger) *Scheduler {
	return &Scheduler{
		runner:   runner,
		interval: interval,
		priority: priority,
		log:      log.With("component", "BatchScheduler"),
	}
}

// Start runs the loop in a goroutine. A non-positive interval disables it.
func (s *Scheduler) Start(ctx context.Context) {
	if s.interval <= 0 {
		s.log.Info("Batch scheduler disabled")
		return
	}
	go s.loop(ctx)
}

func (s *Scheduler) loop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.log.Info("Batch scheduler started", "interval", s.interval.String(), "priority", s.priority)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("Batch scheduler stopped")
			return
		case <-ticker.C:
			res, err := s.runner.Run(ctx, s.priority)
			if err != nil {
				s.log.Error("Scheduled batch failed", "error", err)
				continue
			}
			s.log.Debug("Scheduled batch done", "considered", res.Considered, "failed", res.Failed)
		}
	}
}
