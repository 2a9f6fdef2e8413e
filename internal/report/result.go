package report

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/xxh3"

	"hybridlint/internal/core"
)

// ToolName and ToolVersion identify the analyzer in reports.
const ToolName = "hybridlint"

var ToolVersion = "dev"

// RuleInfo describes a rule that took part in the run.
type RuleInfo struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Category   string        `json:"category"`
	Severity   core.Severity `json:"severity"`
	Message    string        `json:"message,omitempty"`
	Suggestion string        `json:"suggestion,omitempty"`
}

// Result is everything a writer needs to render one run.
type Result struct {
	RunID        string
	StartedAt    time.Time
	Duration     time.Duration
	Engine       string
	FilesScanned int
	BytesScanned int64
	Rules        []RuleInfo
	Violations   []core.Violation
	Diagnostics  []string
}

// NewResult creates a result with a fresh run ID.
func NewResult(engine string, startedAt time.Time) *Result {
	return &Result{
		RunID:     uuid.NewString(),
		StartedAt: startedAt,
		Engine:    engine,
	}
}

// Sort orders violations by file, position and rule so output is stable
// regardless of scheduling.
func (r *Result) Sort() {
	SortViolations(r.Violations)
	sort.Slice(r.Rules, func(i, j int) bool { return r.Rules[i].ID < r.Rules[j].ID })
}

// SortViolations orders violations by file, line, column, rule and message.
func SortViolations(vs []core.Violation) {
	sort.SliceStable(vs, func(i, j int) bool {
		a, b := vs[i], vs[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		if a.Column != b.Column {
			return a.Column < b.Column
		}
		if a.RuleID != b.RuleID {
			return a.RuleID < b.RuleID
		}
		return a.Message < b.Message
	})
}

// CountBySeverity returns the number of violations per severity.
func (r *Result) CountBySeverity() map[core.Severity]int {
	counts := make(map[core.Severity]int, 3)
	for _, v := range r.Violations {
		counts[v.Severity]++
	}
	return counts
}

// HasErrors reports whether any violation has error severity.
func (r *Result) HasErrors() bool {
	for _, v := range r.Violations {
		if v.Severity == core.SeverityError {
			return true
		}
	}
	return false
}

// Fingerprint is a stable identity of a violation across runs.
func Fingerprint(v core.Violation) string {
	h := xxh3.New()
	fmt.Fprintf(h, "%s\x00%s\x00%d\x00%d\x00%s", v.RuleID, v.File, v.Line, v.Column, v.Message)
	return strconv.FormatUint(h.Sum64(), 16)
}
