package dispatch

import (
	"errors"
	"fmt"
	"strings"

	"hybridlint/internal/core"
)

var (
	// ErrNoApplicableStrategy marks a semantic-only rule that could not run
	// its semantic strategy (CapabilityMissing).
	ErrNoApplicableStrategy = errors.New("no applicable strategy")
	// ErrAllStrategiesFailed marks a rule whose whole cascade failed.
	ErrAllStrategiesFailed = errors.New("all strategies failed")
)

// FailureKind classifies a dispatch that produced no authoritative result.
type FailureKind string

const (
	NoApplicableStrategy FailureKind = "no_applicable_strategy"
	AllStrategiesFailed  FailureKind = "all_strategies_failed"
)

// Attempt records what happened to one strategy of the cascade.
type Attempt struct {
	Kind    core.StrategyKind
	Origin  string
	Skipped string // reason the strategy was not invoked
	Err     error  // failure of an invoked strategy
}

func (a Attempt) String() string {
	if a.Skipped != "" {
		return fmt.Sprintf("%s(%s): skipped: %s", a.Kind, a.Origin, a.Skipped)
	}
	return fmt.Sprintf("%s(%s): %v", a.Kind, a.Origin, a.Err)
}

// DispatchError reports a rule-on-file pair without an authoritative result.
// It is never fatal to the run.
type DispatchError struct {
	Kind     FailureKind
	RuleID   string
	File     string
	Attempts []Attempt
}

func (e *DispatchError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, a.String())
	}
	msg := fmt.Sprintf("rule %s on %s: %s", e.RuleID, e.File, e.sentinel())
	if len(parts) > 0 {
		msg += " [" + strings.Join(parts, "; ") + "]"
	}
	return msg
}

func (e *DispatchError) Unwrap() error {
	return e.sentinel()
}

func (e *DispatchError) sentinel() error {
	if e.Kind == NoApplicableStrategy {
		return ErrNoApplicableStrategy
	}
	return ErrAllStrategiesFailed
}

// Severity is the level at which the failure is worth reporting.
func (e *DispatchError) Severity() core.Severity {
	if e.Kind == NoApplicableStrategy {
		return core.SeverityInfo
	}
	return core.SeverityWarning
}

// IsCapabilityMissing reports whether err is a semantic-only rule that had
// no usable strategy.
func IsCapabilityMissing(err error) bool {
	return errors.Is(err, ErrNoApplicableStrategy)
}
