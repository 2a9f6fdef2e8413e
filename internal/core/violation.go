package core

import (
	"fmt"
	"strings"
)

// Severity of a reported violation.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Rank orders severities, higher is more severe.
func (s Severity) Rank() int {
	switch s {
	case SeverityError:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// ParseSeverity accepts the report levels as well as the common
// critical/high/medium/low scale.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "error", "critical", "high":
		return SeverityError, nil
	case "warning", "warn", "medium":
		return SeverityWarning, nil
	case "info", "low", "note":
		return SeverityInfo, nil
	default:
		return "", fmt.Errorf("unknown severity: %q", s)
	}
}

// StrategyKind tells which family of analysis produced a result.
type StrategyKind string

const (
	KindSemantic StrategyKind = "semantic"
	KindPattern  StrategyKind = "pattern"
)

// ParseStrategyKind parses "semantic" or "pattern".
func ParseStrategyKind(s string) (StrategyKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "semantic", "ast":
		return KindSemantic, nil
	case "pattern", "regex":
		return KindPattern, nil
	default:
		return "", fmt.Errorf("unknown strategy kind: %q", s)
	}
}

// Violation is one finding of one rule in one file.
type Violation struct {
	RuleID       string       `json:"rule_id"`
	File         string       `json:"file"`
	Line         int          `json:"line"`
	Column       int          `json:"column"`
	Severity     Severity     `json:"severity"`
	Message      string       `json:"message"`
	Category     string       `json:"category"`
	Suggestion   string       `json:"suggestion,omitempty"`
	StrategyUsed StrategyKind `json:"strategy_used"`
}

// ViolationKey is the identity used to deduplicate violations.
type ViolationKey struct {
	RuleID  string
	File    string
	Line    int
	Column  int
	Message string
}

// Key returns the identity key of v.
func (v Violation) Key() ViolationKey {
	return ViolationKey{
		RuleID:  v.RuleID,
		File:    v.File,
		Line:    v.Line,
		Column:  v.Column,
		Message: v.Message,
	}
}

func (v Violation) String() string {
	return fmt.Sprintf("%s:%d:%d: [%s] %s (%s)", v.File, v.Line, v.Column, v.RuleID, v.Message, v.Severity)
}

// Dedupe drops violations whose identity key was already seen, keeping the
// first occurrence and the original order.
func Dedupe(in []Violation) []Violation {
	if len(in) < 2 {
		return in
	}
	seen := make(map[ViolationKey]struct{}, len(in))
	out := make([]Violation, 0, len(in))
	for _, v := range in {
		k := v.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, v)
	}
	return out
}
