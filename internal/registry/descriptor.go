package registry

import (
	"errors"
	"fmt"
	"strings"

	"hybridlint/internal/core"
)

// Where a strategy implementation came from.
const (
	OriginBuiltin  = "builtin"
	OriginQuery    = "semantic.scm"
	OriginPatterns = "pattern.yaml"
)

// StrategyHandle binds one strategy implementation to a rule.
type StrategyHandle struct {
	Kind                    core.StrategyKind
	Impl                    core.Strategy
	RequiresSemanticContext bool
	Origin                  string
}

// RuleDescriptor describes one rule and its ordered strategy cascade.
// Descriptors are immutable once the registry is built.
type RuleDescriptor struct {
	ID              string
	Name            string
	Category        string
	DefaultSeverity core.Severity
	Languages       []core.Language
	Strategies      []StrategyHandle
	SemanticOnly    bool
	Engines         []string
	Message         string
	Suggestion      string
	Options         core.Options
	Source          string
}

var (
	ErrNoStrategies     = errors.New("rule has no strategies")
	ErrSemanticOnlyForm = errors.New("semantic-only rule must have exactly one semantic strategy and no pattern strategy")
)

// Validate checks the structural invariants of a descriptor.
func (d *RuleDescriptor) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return errors.New("rule id is empty")
	}
	if len(d.Strategies) == 0 {
		return fmt.Errorf("rule %s: %w", d.ID, ErrNoStrategies)
	}
	if d.DefaultSeverity.Rank() == 0 {
		return fmt.Errorf("rule %s: invalid severity %q", d.ID, d.DefaultSeverity)
	}
	if len(d.Languages) == 0 {
		return fmt.Errorf("rule %s: no languages", d.ID)
	}
	for i, h := range d.Strategies {
		if h.Impl == nil {
			return fmt.Errorf("rule %s: strategy %d (%s) has no implementation", d.ID, i, h.Kind)
		}
	}
	if d.SemanticOnly {
		semantic, pattern := 0, 0
		for _, h := range d.Strategies {
			switch h.Kind {
			case core.KindSemantic:
				semantic++
			case core.KindPattern:
				pattern++
			}
		}
		if semantic != 1 || pattern != 0 {
			return fmt.Errorf("rule %s: %w", d.ID, ErrSemanticOnlyForm)
		}
	}
	for _, e := range d.Engines {
		if _, ok := engineKinds[e]; !ok {
			return fmt.Errorf("rule %s: unknown engine %q", d.ID, e)
		}
	}
	return nil
}

// SupportsLanguage reports whether the rule applies to files of lang.
func (d *RuleDescriptor) SupportsLanguage(lang core.Language) bool {
	for _, l := range d.Languages {
		if l.Family() == lang.Family() {
			return true
		}
	}
	return false
}

// AllowsEngine reports whether the rule-level engine list admits engine.
// An empty list admits every engine.
func (d *RuleDescriptor) AllowsEngine(engine string) bool {
	if len(d.Engines) == 0 {
		return true
	}
	for _, e := range d.Engines {
		if e == engine {
			return true
		}
	}
	return false
}

// Kinds returns the strategy kinds in cascade order.
func (d *RuleDescriptor) Kinds() []core.StrategyKind {
	out := make([]core.StrategyKind, 0, len(d.Strategies))
	for _, h := range d.Strategies {
		out = append(out, h.Kind)
	}
	return out
}
