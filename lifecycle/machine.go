package lifecycle

import (
	"fmt"
	"time"

	"supplement-effects/effect"
)

const day = 24 * time.Hour

// Evaluation is the outcome of one recompute for a pair.
type Evaluation struct {
	Category  effect.Category
	CleanDays int
	Overlay   *Overlay
}

type Machine struct {
	RequiredCleanDays int
	RetestCooldown    time.Duration
}

func NewMachine(requiredCleanDays int, retestCooldown time.Duration) Machine {
	if requiredCleanDays < 1 {
		requiredCleanDays = effect.DefaultRequiredCleanDays
	}
	if retestCooldown <= 0 {
		retestCooldown = DefaultRetestCooldown
	}
	return Machine{RequiredCleanDays: requiredCleanDays, RetestCooldown: retestCooldown}
}

// StartTrial begins a user-initiated experiment. Leaving RULE this way is a
// retest and is refused until the cooldown since the lock has elapsed.
func (m Machine) StartTrial(s State, typ TrialType, totalDays int, now time.Time) (State, error) {
	if !typ.Valid() {
		return s, fmt.Errorf("%w: unknown type %q", ErrInvalidTrial, typ)
	}
	if totalDays != 7 && totalDays != 14 {
		return s, fmt.Errorf("%w: total days must be 7 or 14, got %d", ErrInvalidTrial, totalDays)
	}
	switch s.Status {
	case StatusTrial:
		return s, ErrTrialActive
	case StatusRule:
		if avail := s.RetestAvailableAt(m.RetestCooldown); avail != nil && now.Before(*avail) {
			return s, fmt.Errorf("%w: available at %s", ErrRetestCooldown, avail.Format(time.RFC3339))
		}
	}

	next := s
	next.Status = StatusTrial
	next.LockedAt = nil
	next.Trial = &Trial{
		Type:      typ,
		Day:       1,
		TotalDays: totalDays,
		StartedAt: now,
		EndsAt:    now.Add(time.Duration(totalDays) * day),
	}
	return next, nil
}

// Advance applies one evaluation. The overlay is always replaced; the status
// only moves along the allowed edges.
func (m Machine) Advance(s State, ev Evaluation, now time.Time) State {
	next := s
	next.Overlay = ev.Overlay
	next.CleanDays = ev.CleanDays

	switch s.Status {
	case StatusTrial:
		if s.Trial == nil {
			next.Status = StatusGatheringEvidence
			return m.settle(next, ev, now)
		}
		trial := *s.Trial
		trial.Day = TrialDay(trial, now)
		next.Trial = &trial
		if trial.Day < trial.TotalDays {
			return next
		}
		next.Trial = nil
		switch {
		case ev.Category.Decisive():
			next.Status = StatusRule
			next.LockedAt = timePtr(now)
		case ev.Category == effect.CategoryInconsistent:
			next.Status = StatusConfounded
		default:
			next.Status = StatusGatheringEvidence
		}
		return next

	case StatusGatheringEvidence, StatusHurting:
		next.Status = StatusGatheringEvidence
		return m.settle(next, ev, now)

	case StatusConfounded:
		if ev.CleanDays >= m.RequiredCleanDays && ev.Category.Decisive() {
			next.Status = StatusRule
			next.LockedAt = timePtr(now)
		}
		return next
	}

	// RULE stays locked until an explicit retest.
	return next
}

func (m Machine) settle(next State, ev Evaluation, now time.Time) State {
	if ev.CleanDays < m.RequiredCleanDays {
		return next
	}
	switch {
	case ev.Category.Decisive():
		next.Status = StatusRule
		next.LockedAt = timePtr(now)
	case ev.Category == effect.CategoryInconsistent:
		next.Status = StatusConfounded
	}
	return next
}

// TrialDay is the 1-based day of a trial at now, capped at TotalDays.
func TrialDay(t Trial, now time.Time) int {
	elapsed := now.Sub(t.StartedAt)
	if elapsed < 0 {
		return 1
	}
	d := int(elapsed/day) + 1
	if d > t.TotalDays {
		return t.TotalDays
	}
	return d
}

func timePtr(t time.Time) *time.Time {
	return &t
}
