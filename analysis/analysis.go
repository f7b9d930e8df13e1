// Package analysis turns one user's daily entries and supplement logs into the
// evidence for one supplement: effect summaries, trend, clean/noisy counts,
// verdict and overlay.
package analysis

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"supplement-effects/config"
	"supplement-effects/confound"
	"supplement-effects/effect"
	"supplement-effects/lifecycle"
	"supplement-effects/models"
)

const DateLayout = "2006-01-02"

const (
	hurtingMagnitude  = -0.2
	hurtingConfidence = 0.5
)

type Analyzer struct {
	Metrics           []config.Metric
	OutcomeRange      float64
	RequiredCleanDays int
	Rule              *confound.Rule
}

func NewAnalyzer(cfg config.EngineConfig) (*Analyzer, error) {
	rule, err := confound.Compile(cfg.NoisyRule)
	if err != nil {
		return nil, err
	}
	return &Analyzer{
		Metrics:           cfg.Metrics,
		OutcomeRange:      cfg.OutcomeRange,
		RequiredCleanDays: cfg.RequiredCleanDays,
		Rule:              rule,
	}, nil
}

// Input is everything needed to analyze one supplement. Entries and Logs may
// cover other supplements and dates; they are filtered here.
type Input struct {
	SupplementID string
	Entries      []models.DailyEntry
	Logs         []models.SupplementLog
	Since        time.Time
	Until        time.Time
}

type Result struct {
	Primary          *effect.Summary
	Secondary        *effect.Summary
	Trend            *effect.Trend
	Category         effect.Category
	Overlay          *lifecycle.Overlay
	Signal           effect.Signal
	ObservedDays     int
	CleanDays        int
	NoisyDays        int
	DaysOn           int
	DaysOff          int
	PreStartAverage  *float64
	PostStartAverage *float64
}

type observation struct {
	date    time.Time
	taken   bool
	outcome float64
	clean   bool
}

func (a *Analyzer) Analyze(in Input) (Result, error) {
	obs, err := a.observe(in)
	if err != nil {
		return Result{}, err
	}

	var res Result
	res.ObservedDays = len(obs)

	since := truncate(in.Since)
	mid := since.Add(truncate(in.Until).Sub(since) / 2)
	var firstTaken *time.Time

	var on, off, recentOn, recentOff, pre, post []float64
	var points []effect.Point
	for i := range obs {
		o := obs[i]
		if o.taken {
			res.DaysOn++
			if firstTaken == nil {
				firstTaken = &obs[i].date
			}
		} else {
			res.DaysOff++
		}
		if !o.clean {
			res.NoisyDays++
			continue
		}
		res.CleanDays++
		if o.taken {
			on = append(on, o.outcome)
		} else {
			off = append(off, o.outcome)
		}
		if !o.date.Before(mid) {
			if o.taken {
				recentOn = append(recentOn, o.outcome)
			} else {
				recentOff = append(recentOff, o.outcome)
			}
		}
		points = append(points, effect.Point{Day: o.date.Sub(since).Hours() / 24, Outcome: o.outcome})
	}

	for _, o := range obs {
		if !o.clean {
			continue
		}
		if firstTaken != nil && !o.date.Before(*firstTaken) {
			post = append(post, o.outcome)
		} else {
			pre = append(pre, o.outcome)
		}
	}

	res.Primary = effect.Summarize(on, off, a.OutcomeRange)
	res.Secondary = effect.Summarize(recentOn, recentOff, a.OutcomeRange)
	res.Trend = effect.TrendOf(points, a.OutcomeRange)
	res.Category = effect.Classify(res.Primary, res.Secondary, res.Trend)
	res.Overlay = overlayFor(res)
	res.Signal = effect.NewSignal(res.CleanDays, a.RequiredCleanDays, res.Primary)
	res.PreStartAverage = effect.Mean(pre)
	res.PostStartAverage = effect.Mean(post)
	return res, nil
}

func overlayFor(res Result) *lifecycle.Overlay {
	p := res.Primary
	if p != nil && p.Direction == effect.DirectionNegative &&
		p.Magnitude < hurtingMagnitude && p.Confidence > hurtingConfidence {
		o := lifecycle.OverlayHurting
		return &o
	}
	if res.ObservedDays >= effect.MinGroupSize && res.NoisyDays > res.CleanDays {
		o := lifecycle.OverlayConfounded
		return &o
	}
	return nil
}

// observe builds one observation per date in [Since, Until] that has either a
// daily entry or a log for the supplement, ordered by date.
func (a *Analyzer) observe(in Input) ([]observation, error) {
	since, until := truncate(in.Since), truncate(in.Until)

	entries := make(map[string]models.DailyEntry, len(in.Entries))
	for _, e := range in.Entries {
		entries[e.LocalDate] = e
	}
	logs := make(map[string]models.SupplementLog)
	for _, l := range in.Logs {
		if l.SupplementID == in.SupplementID {
			logs[l.LocalDate] = l
		}
	}

	dates := make(map[string]time.Time)
	for key := range entries {
		if d, ok := inWindow(key, since, until); ok {
			dates[key] = d
		}
	}
	for key := range logs {
		if d, ok := inWindow(key, since, until); ok {
			dates[key] = d
		}
	}

	out := make([]observation, 0, len(dates))
	for key, date := range dates {
		entry, hasEntry := entries[key]
		log, logged := logs[key]

		var metrics, intakes map[string]float64
		var tags []string
		skipped := false
		if hasEntry {
			metrics = entry.Metrics.Data()
			intakes = entry.SupplementIntake.Data()
			tags = entry.Tags
			for _, id := range entry.SkippedSupplements {
				if id == in.SupplementID {
					skipped = true
				}
			}
		}
		intake := intakes[in.SupplementID]
		taken := intake > 0
		if logged {
			taken = log.Taken
		}
		outcome, hasOutcome := Outcome(metrics, a.Metrics, a.OutcomeRange)

		noisy, err := a.Rule.Noisy(confound.Day{
			Taken:      taken,
			Skipped:    skipped,
			Logged:     logged,
			Intake:     intake,
			HasOutcome: hasOutcome,
			Tags:       tags,
			Metrics:    metrics,
			Weekday:    date.Weekday().String(),
		})
		if err != nil {
			return nil, fmt.Errorf("analysis: %s on %s: %w", in.SupplementID, key, err)
		}
		out = append(out, observation{
			date:    date,
			taken:   taken,
			outcome: outcome,
			clean:   !noisy && hasOutcome,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].date.Before(out[j].date) })
	return out, nil
}

// Outcome is the weighted daily score on the 0..outcomeRange scale. Metrics
// with a negative weight are flipped so that higher always means better.
func Outcome(values map[string]float64, metrics []config.Metric, outcomeRange float64) (float64, bool) {
	var sum, weights float64
	for _, m := range metrics {
		v, ok := values[m.Name]
		if !ok {
			continue
		}
		w := m.Weight
		if w < 0 {
			v = outcomeRange - v
			w = -w
		}
		sum += w * v
		weights += w
	}
	if weights == 0 {
		return 0, false
	}
	return sum / weights, true
}

func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.UTC)
}

func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

func inWindow(key string, since, until time.Time) (time.Time, bool) {
	d, err := ParseDate(key)
	if err != nil {
		return time.Time{}, false
	}
	if d.Before(since) || d.After(until) {
		return time.Time{}, false
	}
	return d, true
}

func truncate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
