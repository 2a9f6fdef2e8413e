package dispatch

import (
	"hybridlint/internal/core"
	"hybridlint/internal/registry"
)

type handleKey struct {
	ruleID string
	index  int
}

// Dispatcher runs a rule's strategy cascade on one file at a time.
// Initialization results are computed by New and only read afterwards, so
// Run may be called from several goroutines.
type Dispatcher struct {
	initErrs map[handleKey]error
}

// New initializes every strategy of the given rules once for the run.
func New(actx *core.AnalysisContext, rules ...*registry.RuleDescriptor) *Dispatcher {
	d := &Dispatcher{initErrs: make(map[handleKey]error)}
	for _, rule := range rules {
		for i, h := range rule.Strategies {
			err := initialize(rule.ID, h, actx)
			if err != nil {
				actx.Logger.Warn("strategy initialization failed", "rule", rule.ID, "kind", h.Kind, "origin", h.Origin, "error", err)
			}
			d.initErrs[handleKey{ruleID: rule.ID, index: i}] = err
		}
	}
	return d
}

func initialize(ruleID string, h registry.StrategyHandle, actx *core.AnalysisContext) (err error) {
	defer core.RecoverStrategy(ruleID, h.Kind, &err)
	if err := h.Impl.Initialize(actx); err != nil {
		return core.WrapStrategyError(ruleID, h.Kind, err)
	}
	return nil
}

// initialized returns the cached initialization result, or initializes a
// handle New never saw without caching the outcome.
func (d *Dispatcher) initialized(rule *registry.RuleDescriptor, i int, actx *core.AnalysisContext) error {
	if err, ok := d.initErrs[handleKey{ruleID: rule.ID, index: i}]; ok {
		return err
	}
	return initialize(rule.ID, rule.Strategies[i], actx)
}

// Run executes the cascade of rule on file. The first strategy that
// completes without error is authoritative, even with zero violations.
// When none does, the violations are empty and the error is a
// *DispatchError, which callers should treat as a diagnostic.
func (d *Dispatcher) Run(rule *registry.RuleDescriptor, file core.FileHandle, actx *core.AnalysisContext) ([]core.Violation, error) {
	opts := rule.Options.Merge(actx.RuleOptions(rule.ID))

	var attempts []Attempt
	for i, h := range rule.Strategies {
		attempt := Attempt{Kind: h.Kind, Origin: h.Origin}

		if !rule.AllowsEngine(actx.Engine) || !registry.EngineAllows(actx.Engine, h.Kind) {
			attempt.Skipped = "incompatible with engine " + actx.Engine
			attempts = append(attempts, attempt)
			continue
		}
		if h.RequiresSemanticContext && !actx.SemanticReady(file.Path) {
			attempt.Skipped = "semantic context unavailable"
			attempts = append(attempts, attempt)
			continue
		}
		if err := d.initialized(rule, i, actx); err != nil {
			attempt.Skipped = "initialization failed"
			attempt.Err = err
			attempts = append(attempts, attempt)
			continue
		}

		violations, err := invoke(rule.ID, h, file, actx, opts)
		if err != nil {
			actx.Debug("strategy failed, falling back", "rule", rule.ID, "file", file.Path, "kind", h.Kind, "error", err)
			attempt.Err = err
			attempts = append(attempts, attempt)
			continue
		}
		return stamp(rule, h.Kind, file, violations), nil
	}

	kind := AllStrategiesFailed
	if rule.SemanticOnly {
		kind = NoApplicableStrategy
	}
	return nil, &DispatchError{
		Kind:     kind,
		RuleID:   rule.ID,
		File:     file.Path,
		Attempts: attempts,
	}
}

func invoke(ruleID string, h registry.StrategyHandle, file core.FileHandle, actx *core.AnalysisContext, opts core.Options) (violations []core.Violation, err error) {
	defer core.RecoverStrategy(ruleID, h.Kind, &err)

	violations, err = h.Impl.Analyze(actx, []string{file.Path}, file.Language, opts)
	if err != nil {
		return nil, core.WrapStrategyError(ruleID, h.Kind, err)
	}
	return violations, nil
}

// stamp fills rule-level fields and removes duplicates.
func stamp(rule *registry.RuleDescriptor, kind core.StrategyKind, file core.FileHandle, in []core.Violation) []core.Violation {
	out := make([]core.Violation, 0, len(in))
	for _, v := range in {
		v.RuleID = rule.ID
		v.File = file.Path
		v.StrategyUsed = kind
		if v.Category == "" {
			v.Category = rule.Category
		}
		if v.Severity == "" {
			v.Severity = rule.DefaultSeverity
		}
		if v.Message == "" {
			v.Message = rule.Message
		}
		if v.Suggestion == "" {
			v.Suggestion = rule.Suggestion
		}
		out = append(out, v)
	}
	return core.Dedupe(out)
}
