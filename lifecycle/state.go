// Package lifecycle is the status state machine for a tracked supplement.
//
// A supplement starts in GATHERING_EVIDENCE, may run a time-boxed TRIAL,
// locks into a RULE once a decisive verdict arrives, or lands in CONFOUNDED
// when the evidence disagrees. The overlay (HURTING / CONFOUNDED) is
// recomputed on every evaluation and rides on top of whatever status is
// current; it never drives a transition.
package lifecycle

import (
	"errors"
	"fmt"
	"time"
)

type Status string

const (
	StatusTrial             Status = "TRIAL"
	StatusGatheringEvidence Status = "GATHERING_EVIDENCE"
	StatusRule              Status = "RULE"
	StatusConfounded        Status = "CONFOUNDED"
	// StatusHurting is accepted when reading stored rows; the machine only
	// ever expresses hurting through the overlay.
	StatusHurting Status = "HURTING"
)

func (s Status) Valid() bool {
	switch s {
	case StatusTrial, StatusGatheringEvidence, StatusRule, StatusConfounded, StatusHurting:
		return true
	}
	return false
}

type Overlay string

const (
	OverlayConfounded Overlay = "CONFOUNDED"
	OverlayHurting    Overlay = "HURTING"
)

type TrialType string

const (
	TrialOnOff   TrialType = "ON_OFF"
	TrialDose    TrialType = "DOSE"
	TrialIsolate TrialType = "ISOLATE"
)

func (t TrialType) Valid() bool {
	return t == TrialOnOff || t == TrialDose || t == TrialIsolate
}

type Trial struct {
	Type      TrialType `json:"type"`
	Day       int       `json:"day"`
	TotalDays int       `json:"totalDays"`
	StartedAt time.Time `json:"startedAt"`
	EndsAt    time.Time `json:"endsAt"`
}

// State is the persisted lifecycle of one user supplement.
type State struct {
	Status    Status
	Overlay   *Overlay
	Trial     *Trial
	LockedAt  *time.Time
	CleanDays int
}

var (
	ErrRetestCooldown = errors.New("lifecycle: retest is not available yet")
	ErrTrialActive    = errors.New("lifecycle: a trial is already running")
	ErrInvalidTrial   = errors.New("lifecycle: invalid trial")
	ErrInvalidState   = errors.New("lifecycle: invalid state")
)

const DefaultRetestCooldown = 30 * 24 * time.Hour

// New returns the initial state of a newly tracked supplement.
func New() State {
	return State{Status: StatusGatheringEvidence}
}

// Validate checks that a trial is present exactly when the status is TRIAL.
func (s State) Validate() error {
	if !s.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidState, s.Status)
	}
	if (s.Status == StatusTrial) != (s.Trial != nil) {
		return fmt.Errorf("%w: status %s with trial=%t", ErrInvalidState, s.Status, s.Trial != nil)
	}
	if s.Status == StatusRule && s.LockedAt == nil {
		return fmt.Errorf("%w: rule without lock time", ErrInvalidState)
	}
	if s.Overlay != nil && *s.Overlay != OverlayConfounded && *s.Overlay != OverlayHurting {
		return fmt.Errorf("%w: unknown overlay %q", ErrInvalidState, *s.Overlay)
	}
	return nil
}

// RetestAvailableAt is when a locked rule may be retested. Nil unless RULE.
func (s State) RetestAvailableAt(cooldown time.Duration) *time.Time {
	if s.Status != StatusRule || s.LockedAt == nil {
		return nil
	}
	at := s.LockedAt.Add(cooldown)
	return &at
}
