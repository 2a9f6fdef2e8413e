package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"hybridlint/internal/core"
)

// Override adjusts a discovered rule before the registry is frozen.
type Override struct {
	RuleID              string   `yaml:"rule_id"`
	Strategies          []string `yaml:"strategies"`           // kinds to keep, in cascade order
	SemanticOnly        *bool    `yaml:"semantic_only"`        // optional
	EngineCompatibility []string `yaml:"engine_compatibility"` // replaces the rule's engine list
	Enabled             *bool    `yaml:"enabled"`              // optional, false drops the rule
}

// Overrides is a registry configuration file keyed by rule ID.
type Overrides map[string]Override

type overridesFile struct {
	Rules []Override `yaml:"rules"`
}

// ParseOverrides decodes a registry configuration document.
func ParseOverrides(data []byte) (Overrides, error) {
	var f overridesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse registry overrides: %w", err)
	}
	out := make(Overrides, len(f.Rules))
	for i, o := range f.Rules {
		id := normalizeID(o.RuleID)
		if id == "" {
			return nil, fmt.Errorf("registry override %d: missing rule_id", i)
		}
		for _, s := range o.Strategies {
			if _, err := core.ParseStrategyKind(s); err != nil {
				return nil, fmt.Errorf("registry override %s: %w", id, err)
			}
		}
		for _, e := range o.EngineCompatibility {
			if !IsEngine(e) {
				return nil, fmt.Errorf("registry override %s: unknown engine %q", id, e)
			}
		}
		out[id] = o
	}
	return out, nil
}

// LoadOverrides reads a registry configuration file. An empty path yields
// no overrides.
func LoadOverrides(path string) (Overrides, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry overrides: %w", err)
	}
	return ParseOverrides(data)
}

// apply reports whether the rule stays enabled.
func (o Override) apply(d *RuleDescriptor) bool {
	if o.Enabled != nil && !*o.Enabled {
		return false
	}
	if o.SemanticOnly != nil {
		d.SemanticOnly = *o.SemanticOnly
	}
	if len(o.Strategies) > 0 {
		byKind := make(map[core.StrategyKind]StrategyHandle, len(d.Strategies))
		for _, h := range d.Strategies {
			byKind[h.Kind] = h
		}
		var ordered []StrategyHandle
		for _, s := range o.Strategies {
			kind, _ := core.ParseStrategyKind(s)
			if h, ok := byKind[kind]; ok {
				ordered = append(ordered, h)
				delete(byKind, kind)
			}
		}
		d.Strategies = ordered
	}
	if o.EngineCompatibility != nil {
		d.Engines = append([]string(nil), o.EngineCompatibility...)
	}
	if d.SemanticOnly {
		d.Strategies = semanticOnly(d.Strategies)
	}
	return true
}

func semanticOnly(in []StrategyHandle) []StrategyHandle {
	for _, h := range in {
		if h.Kind == core.KindSemantic {
			return []StrategyHandle{h}
		}
	}
	return nil
}
