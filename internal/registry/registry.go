package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"hybridlint/internal/core"
)

// Engine identifiers.
const (
	EngineHeuristic = "heuristic"
	EngineSemantic  = "semantic"
	EnginePattern   = "pattern"

	DefaultEngine = EngineHeuristic
)

// engineKinds is the fixed compatibility table between engines and the
// strategy kinds they may run.
var engineKinds = map[string][]core.StrategyKind{
	EngineHeuristic: {core.KindSemantic, core.KindPattern},
	EngineSemantic:  {core.KindSemantic},
	EnginePattern:   {core.KindPattern},
}

// Engines lists the known engine identifiers.
func Engines() []string {
	return []string{EngineHeuristic, EngineSemantic, EnginePattern}
}

// IsEngine reports whether engine is a known identifier.
func IsEngine(engine string) bool {
	_, ok := engineKinds[engine]
	return ok
}

// EngineAllows reports whether engine may run strategies of kind.
func EngineAllows(engine string, kind core.StrategyKind) bool {
	for _, k := range engineKinds[engine] {
		if k == kind {
			return true
		}
	}
	return false
}

// Factory builds a builtin strategy implementation.
type Factory func() (core.Strategy, error)

var (
	builtinsMu sync.RWMutex
	builtins   = map[string]map[core.StrategyKind]Factory{}
)

// RegisterBuiltin binds a compiled-in strategy to a rule ID. It is meant to
// be called from init functions; registering the same pair twice panics.
func RegisterBuiltin(ruleID string, kind core.StrategyKind, factory Factory) {
	id := normalizeID(ruleID)
	builtinsMu.Lock()
	defer builtinsMu.Unlock()

	kinds, ok := builtins[id]
	if !ok {
		kinds = map[core.StrategyKind]Factory{}
		builtins[id] = kinds
	}
	if _, dup := kinds[kind]; dup {
		panic(fmt.Sprintf("registry: builtin %s strategy for %s registered twice", kind, id))
	}
	kinds[kind] = factory
}

func builtinFactory(ruleID string, kind core.StrategyKind) (Factory, bool) {
	builtinsMu.RLock()
	defer builtinsMu.RUnlock()
	f, ok := builtins[normalizeID(ruleID)][kind]
	return f, ok
}

// BuiltinIDs returns the rule IDs that have compiled-in strategies.
func BuiltinIDs() []string {
	builtinsMu.RLock()
	defer builtinsMu.RUnlock()
	out := make([]string, 0, len(builtins))
	for id := range builtins {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func normalizeID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

// Registry is the immutable set of loaded rules.
type Registry struct {
	rules []*RuleDescriptor
	byID  map[string]*RuleDescriptor
}

// New validates the descriptors and freezes them into a registry.
func New(rules []*RuleDescriptor) (*Registry, error) {
	r := &Registry{
		rules: make([]*RuleDescriptor, 0, len(rules)),
		byID:  make(map[string]*RuleDescriptor, len(rules)),
	}
	for _, d := range rules {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		id := normalizeID(d.ID)
		if _, dup := r.byID[id]; dup {
			return nil, fmt.Errorf("duplicate rule id %s", id)
		}
		r.byID[id] = d
		r.rules = append(r.rules, d)
	}
	sort.Slice(r.rules, func(i, j int) bool { return r.rules[i].ID < r.rules[j].ID })
	return r, nil
}

// Get returns a rule by ID.
func (r *Registry) Get(id string) (*RuleDescriptor, bool) {
	d, ok := r.byID[normalizeID(id)]
	return d, ok
}

// List returns all rules sorted by ID.
func (r *Registry) List() []*RuleDescriptor {
	out := make([]*RuleDescriptor, len(r.rules))
	copy(out, r.rules)
	return out
}

// Len returns the number of rules.
func (r *Registry) Len() int {
	return len(r.rules)
}

// CompatibleStrategies returns the strategies of a rule that the engine may
// run, in cascade order. It is empty for unknown rules, unknown engines and
// engines excluded by the rule.
func (r *Registry) CompatibleStrategies(ruleID, engineID string) []StrategyHandle {
	d, ok := r.Get(ruleID)
	if !ok || !d.AllowsEngine(engineID) {
		return nil
	}
	var out []StrategyHandle
	for _, h := range d.Strategies {
		if EngineAllows(engineID, h.Kind) {
			out = append(out, h)
		}
	}
	return out
}
