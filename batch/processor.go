// Package batch recomputes supplement verdicts for many users, one user at a
// time per worker, and keeps going when a single user fails.
package batch

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"supplement-effects/analysis"
	"supplement-effects/cache"
	"supplement-effects/checkins"
	"supplement-effects/config"
	"supplement-effects/lifecycle"
	"supplement-effects/logger"
	"supplement-effects/reports"
	"supplement-effects/supplements"
)

var tracer = otel.Tracer("supplement-effects/batch")

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

func ParsePriority(s string) (Priority, error) {
	switch p := Priority(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PriorityLow, nil
	case PriorityLow, PriorityNormal, PriorityHigh:
		return p, nil
	default:
		return "", fmt.Errorf("unknown priority %q", s)
	}
}

// Lookback is how much history a recompute at this priority reads.
func (p Priority) Lookback() time.Duration {
	switch p {
	case PriorityHigh:
		return 180 * 24 * time.Hour
	case PriorityNormal:
		return 90 * 24 * time.Hour
	default:
		return 60 * 24 * time.Hour
	}
}

type UserResult struct {
	UserID   string `json:"user_id"`
	Insights int    `json:"insights"`
	Failed   bool   `json:"failed"`
	Error    string `json:"error,omitempty"`
}

type Result struct {
	Priority   Priority              `json:"priority"`
	Considered int                   `json:"considered"`
	Succeeded  int                   `json:"succeeded"`
	Failed     int                   `json:"failed"`
	Users      map[string]UserResult `json:"users"`
	StartedAt  time.Time             `json:"started_at"`
	Duration   time.Duration         `json:"duration"`
}

type Deps struct {
	DB          *gorm.DB
	Log         *logger.Logger
	Checkins    checkins.Store
	Supplements supplements.Store
	Reports     reports.Store
	Analyzer    *analysis.Analyzer
	Machine     lifecycle.Machine
	Cache       cache.Cache
	Config      config.BatchConfig
	Now         func() time.Time
}

type Processor struct {
	db          *gorm.DB
	log         *logger.Logger
	checkins    checkins.Store
	supplements supplements.Store
	reports     reports.Store
	analyzer    *analysis.Analyzer
	machine     lifecycle.Machine
	cache       cache.Cache
	cfg         config.BatchConfig
	now         func() time.Time
}

func NewProcessor(d Deps) *Processor {
	p := &Processor{
		db:          d.DB,
		log:         d.Log.With("component", "BatchProcessor"),
		checkins:    d.Checkins,
		supplements: d.Supplements,
		reports:     d.Reports,
		analyzer:    d.Analyzer,
		machine:     d.Machine,
		cache:       d.Cache,
		cfg:         d.Config,
		now:         d.Now,
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.cfg.Concurrency < 1 {
		p.cfg.Concurrency = 1
	}
	if p.cfg.ActivityWindow <= 0 {
		p.cfg.ActivityWindow = 30 * 24 * time.Hour
	}
	return p
}

// Run recomputes every user active within the activity window. The error is
// only non-nil when the candidate set itself cannot be loaded.
func (p *Processor) Run(ctx context.Context, priority Priority) (Result, error) {
	ctx, span := tracer.Start(ctx, "batch.Run", trace.WithAttributes(attribute.String("priority", string(priority))))
	defer span.End()

	since := analysis.FormatDate(p.now().Add(-p.cfg.ActivityWindow))
	ids, err := p.checkins.ActiveUserIDs(ctx, nil, since)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load candidates")
		return Result{}, fmt.Errorf("load active users: %w", err)
	}
	return p.RunUsers(ctx, ids, priority), nil
}

// RunUsers recomputes the given users in parallel. A failing user is recorded
// in its UserResult and never stops the others.
func (p *Processor) RunUsers(ctx context.Context, userIDs []string, priority Priority) Result {
	start := p.now()
	ids := dedupe(userIDs)
	res := Result{
		Priority:   priority,
		Considered: len(ids),
		Users:      make(map[string]UserResult, len(ids)),
		StartedAt:  start,
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(p.cfg.Concurrency)
	for _, id := range ids {
		g.Go(func() error {
			ur := p.processUser(ctx, id, priority)
			mu.Lock()
			res.Users[id] = ur
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for _, ur := range res.Users {
		if ur.Failed {
			res.Failed++
		} else {
			res.Succeeded++
		}
	}
	res.Duration = time.Since(start)
	runDuration.WithLabelValues(string(priority)).Observe(res.Duration.Seconds())
	p.log.Info("Batch recompute finished",
		"priority", priority,
		"considered", res.Considered,
		"succeeded", res.Succeeded,
		"failed", res.Failed,
	)
	return res
}

func (p *Processor) processUser(ctx context.Context, userID string, priority Priority) (ur UserResult) {
	ur.UserID = userID
	if p.cfg.UserTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.UserTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("Recompute panic", "user_id", userID, "panic", r)
			ur.Insights = 0
			ur.Failed = true
			ur.Error = fmt.Sprintf("panic: %v", r)
		}
		result := "ok"
		if ur.Failed {
			result = "error"
		}
		usersProcessed.WithLabelValues(string(priority), result).Inc()
	}()

	n, err := p.RecomputeUser(ctx, userID, priority)
	if err != nil {
		p.log.Warn("Recompute failed", "user_id", userID, "error", err)
		ur.Failed = true
		ur.Error = err.Error()
		return ur
	}
	ur.Insights = n
	return ur
}

// RecomputeUser re-evaluates every tracked supplement of one user and returns
// the number of truth reports written.
func (p *Processor) RecomputeUser(ctx context.Context, userID string, priority Priority) (int, error) {
	ctx, span := tracer.Start(ctx, "batch.RecomputeUser", trace.WithAttributes(attribute.String("priority", string(priority))))
	defer span.End()

	insights, err := p.recompute(ctx, userID, priority)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "recompute")
	}
	if insights > 0 && p.cache != nil {
		if cerr := p.cache.Delete(ctx, cache.EffectsKey(userID)); cerr != nil {
			p.log.Warn("Cache invalidation failed", "user_id", userID, "error", cerr)
		}
	}
	insightsProduced.WithLabelValues(string(priority)).Add(float64(insights))
	return insights, err
}

func (p *Processor) recompute(ctx context.Context, userID string, priority Priority) (int, error) {
	now := p.now().UTC()
	since := now.Add(-priority.Lookback())
	sinceDate := analysis.FormatDate(since)

	tracked, err := p.supplements.ListByUser(ctx, nil, userID)
	if err != nil {
		return 0, fmt.Errorf("load supplements: %w", err)
	}
	if len(tracked) == 0 {
		return 0, nil
	}
	entries, err := p.checkins.ListDailyEntries(ctx, nil, userID, sinceDate)
	if err != nil {
		return 0, fmt.Errorf("load daily entries: %w", err)
	}
	logs, err := p.checkins.ListSupplementLogs(ctx, nil, userID, sinceDate)
	if err != nil {
		return 0, fmt.Errorf("load supplement logs: %w", err)
	}

	insights := 0
	for _, us := range tracked {
		res, err := p.analyzer.Analyze(analysis.Input{
			SupplementID: us.SupplementID,
			Entries:      entries,
			Logs:         logs,
			Since:        since,
			Until:        now,
		})
		if err != nil {
			return insights, err
		}
		verdicts.WithLabelValues(string(res.Category)).Inc()

		next := p.machine.Advance(supplements.StateOf(us, now), lifecycle.Evaluation{
			Category:  res.Category,
			CleanDays: res.CleanDays,
			Overlay:   res.Overlay,
		}, now)
		report := BuildReport(userID, us.ID, res, next)

		err = p.inTx(ctx, func(tx *gorm.DB) error {
			if err := p.supplements.SaveState(ctx, tx, us.ID, next); err != nil {
				return fmt.Errorf("save state %s: %w", us.ID, err)
			}
			return p.reports.PersistSingle(ctx, tx, report)
		})
		if err != nil {
			return insights, err
		}
		insights++
	}
	return insights, nil
}

func (p *Processor) inTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if p.db == nil {
		return fn(nil)
	}
	return p.db.WithContext(ctx).Transaction(fn)
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
