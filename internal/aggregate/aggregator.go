package aggregate

import (
	"path/filepath"
	"strings"
	"sync"

	"hybridlint/internal/core"
)

// Sink receives flushed violations, typically a report writer.
type Sink interface {
	Write(violations []core.Violation) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func([]core.Violation) error

func (f SinkFunc) Write(vs []core.Violation) error {
	return f(vs)
}

// Aggregator collects normalized violations from concurrent rule runs. It
// does not merge across rules: two rules may report the same location.
type Aggregator struct {
	mu         sync.Mutex
	root       string
	violations []core.Violation
}

// New creates an aggregator that relativizes paths against root. An empty
// root keeps paths as given.
func New(root string) *Aggregator {
	if root != "" {
		if abs, err := filepath.Abs(root); err == nil {
			root = abs
		}
	}
	return &Aggregator{root: root}
}

// Add normalizes and appends violations.
func (a *Aggregator) Add(vs []core.Violation) {
	if len(vs) == 0 {
		return
	}
	normalized := make([]core.Violation, 0, len(vs))
	for _, v := range vs {
		normalized = append(normalized, a.normalize(v))
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.violations = append(a.violations, normalized...)
}

func (a *Aggregator) normalize(v core.Violation) core.Violation {
	v.RuleID = strings.ToUpper(strings.TrimSpace(v.RuleID))
	v.File = a.relative(v.File)
	v.Message = strings.TrimSpace(v.Message)
	if sev, err := core.ParseSeverity(string(v.Severity)); err == nil {
		v.Severity = sev
	} else {
		v.Severity = core.SeverityWarning
	}
	if v.Line < 1 {
		v.Line = 1
	}
	if v.Column < 1 {
		v.Column = 1
	}
	return v
}

func (a *Aggregator) relative(path string) string {
	if path == "" {
		return path
	}
	if a.root != "" {
		abs := path
		if !filepath.IsAbs(abs) {
			if p, err := filepath.Abs(abs); err == nil {
				abs = p
			}
		}
		if rel, err := filepath.Rel(a.root, abs); err == nil && !strings.HasPrefix(rel, "..") {
			path = rel
		}
	}
	return filepath.ToSlash(filepath.Clean(path))
}

// Violations returns a snapshot of the collected violations.
func (a *Aggregator) Violations() []core.Violation {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]core.Violation, len(a.violations))
	copy(out, a.violations)
	return out
}

// Len returns the number of collected violations.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.violations)
}

// Counts returns the number of violations per severity.
func (a *Aggregator) Counts() map[core.Severity]int {
	a.mu.Lock()
	defer a.mu.Unlock()
	counts := make(map[core.Severity]int, 3)
	for _, v := range a.violations {
		counts[v.Severity]++
	}
	return counts
}

// Flush hands the collected batch to sink and resets the aggregator. On a
// sink error the batch is kept so the caller may retry.
func (a *Aggregator) Flush(sink Sink) error {
	a.mu.Lock()
	batch := a.violations
	a.violations = nil
	a.mu.Unlock()

	if err := sink.Write(batch); err != nil {
		a.mu.Lock()
		a.violations = append(batch, a.violations...)
		a.mu.Unlock()
		return err
	}
	return nil
}
