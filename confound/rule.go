// Package confound decides whether a (day, supplement) observation is noisy.
//
// The rule is a boolean expr-lang expression supplied by the caller and
// compiled once. It is evaluated against a Day with these variables:
//
//	taken        bool               supplement counted as taken that day
//	skipped      bool               user explicitly skipped the supplement
//	logged       bool               a supplement log exists for that day
//	intake       float              amount from the daily entry (0 if absent)
//	has_outcome  bool               at least one outcome metric was reported
//	tags         []string           entry tags (sick, travel, ...)
//	metrics      map[string]float   raw metric values
//	weekday      string             e.g. "Monday"
package confound

import (
	"errors"
	"fmt"
	"strings"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"
)

var ErrEmptyRule = errors.New("confound: rule must not be empty")

// Day is the evaluation input for one observation.
type Day struct {
	Taken      bool
	Skipped    bool
	Logged     bool
	Intake     float64
	HasOutcome bool
	Tags       []string
	Metrics    map[string]float64
	Weekday    string
}

func (d Day) env() map[string]any {
	tags := make([]string, 0, len(d.Tags))
	for _, t := range d.Tags {
		tags = append(tags, strings.ToLower(strings.TrimSpace(t)))
	}
	metrics := d.Metrics
	if metrics == nil {
		metrics = map[string]float64{}
	}
	return map[string]any{
		"taken":       d.Taken,
		"skipped":     d.Skipped,
		"logged":      d.Logged,
		"intake":      d.Intake,
		"has_outcome": d.HasOutcome,
		"tags":        tags,
		"metrics":     metrics,
		"weekday":     d.Weekday,
	}
}

// Rule is a compiled noisy-day expression. Safe for concurrent use.
type Rule struct {
	expression string
	program    *exprvm.Program
}

func Compile(expression string) (*Rule, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return nil, ErrEmptyRule
	}
	program, err := exprlang.Compile(expression,
		exprlang.Env(Day{}.env()),
		exprlang.AsBool(),
	)
	if err != nil {
		return nil, fmt.Errorf("confound: compile %q: %w", expression, err)
	}
	return &Rule{expression: expression, program: program}, nil
}

func MustCompile(expression string) *Rule {
	r, err := Compile(expression)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Rule) String() string { return r.expression }

// Noisy evaluates the rule for one observation.
func (r *Rule) Noisy(d Day) (bool, error) {
	out, err := exprlang.Run(r.program, d.env())
	if err != nil {
		return false, fmt.Errorf("confound: evaluate %q: %w", r.expression, err)
	}
	noisy, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("confound: rule %q returned %T, want bool", r.expression, out)
	}
	return noisy, nil
}
