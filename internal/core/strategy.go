package core

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// Strategy is one way of analyzing files for a rule.
type Strategy interface {
	// Initialize prepares the strategy for a run. It is called at most once
	// per run before any Analyze call.
	Initialize(actx *AnalysisContext) error

	// Analyze runs the strategy on files of the given language.
	Analyze(actx *AnalysisContext, files []string, lang Language, opts Options) ([]Violation, error)
}

// BaseStrategy provides a no-op Initialize and unit lookup for strategies.
type BaseStrategy struct {
	name string
}

// NewBaseStrategy creates a base strategy with a diagnostic name.
func NewBaseStrategy(name string) BaseStrategy {
	return BaseStrategy{name: name}
}

// Name returns the diagnostic name.
func (s BaseStrategy) Name() string {
	return s.name
}

// Initialize does nothing.
func (s BaseStrategy) Initialize(*AnalysisContext) error {
	return nil
}

// Unit fetches the parsed tree of file from the run's index.
func (s BaseStrategy) Unit(actx *AnalysisContext, file string) (*ParsedUnit, error) {
	if actx.Index == nil || !actx.Index.IsReady() {
		return nil, ErrIndexNotReady
	}
	unit, ok := actx.Index.GetTree(file)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoTree, file)
	}
	return unit, nil
}

// CreateViolation builds a violation located at the given 1-based position.
func (s BaseStrategy) CreateViolation(file string, line, column int, message string) Violation {
	return Violation{
		File:    file,
		Line:    line,
		Column:  column,
		Message: message,
	}
}

var (
	// ErrIndexNotReady is returned when semantic data is requested before
	// the Source Index finished loading.
	ErrIndexNotReady = errors.New("source index not ready")
	// ErrNoTree is returned when the index has no parsed tree for a file.
	ErrNoTree = errors.New("no parsed tree")
)

// StrategyError wraps a failure raised by a strategy, including panics.
type StrategyError struct {
	RuleID string
	Kind   StrategyKind
	Err    error
	Stack  []byte
}

func (e *StrategyError) Error() string {
	return fmt.Sprintf("rule %s: %s strategy: %v", e.RuleID, e.Kind, e.Err)
}

func (e *StrategyError) Unwrap() error {
	return e.Err
}

// Panicked reports whether the failure was a recovered panic.
func (e *StrategyError) Panicked() bool {
	return e.Stack != nil
}

// WrapStrategyError wraps err as a StrategyError.
func WrapStrategyError(ruleID string, kind StrategyKind, err error) error {
	return &StrategyError{
		RuleID: ruleID,
		Kind:   kind,
		Err:    err,
	}
}

// RecoverStrategy turns a panic into a StrategyError stored in *errp.
// It must be deferred directly.
func RecoverStrategy(ruleID string, kind StrategyKind, errp *error) {
	if r := recover(); r != nil {
		*errp = &StrategyError{
			RuleID: ruleID,
			Kind:   kind,
			Err:    fmt.Errorf("panic: %v", r),
			Stack:  debug.Stack(),
		}
	}
}
