package report

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"hybridlint/internal/core"
)

// JSONReport is the JSON report document.
type JSONReport struct {
	RunID       string          `json:"run_id"`
	GeneratedAt time.Time       `json:"generated_at"`
	Tool        ToolInfo        `json:"tool"`
	Summary     Summary         `json:"summary"`
	Violations  []ViolationJSON `json:"violations"`
	Diagnostics []string        `json:"diagnostics,omitempty"`
}

// ToolInfo identifies the analyzer.
type ToolInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Engine  string `json:"engine"`
}

// Summary aggregates the run.
type Summary struct {
	Total        int            `json:"total"`
	BySeverity   map[string]int `json:"by_severity"`
	ByRule       map[string]int `json:"by_rule"`
	ByStrategy   map[string]int `json:"by_strategy"`
	FilesScanned int            `json:"files_scanned"`
	BytesScanned int64          `json:"bytes_scanned"`
	DurationMS   int64          `json:"duration_ms"`
}

// ViolationJSON is a violation plus its fingerprint.
type ViolationJSON struct {
	core.Violation
	Fingerprint string `json:"fingerprint"`
}

// JSONWriter writes JSON reports.
type JSONWriter struct {
	writer io.Writer
	pretty bool
	now    func() time.Time
}

// JSONOption configures a JSONWriter.
type JSONOption func(*JSONWriter)

// WithPrettyJSON toggles indentation.
func WithPrettyJSON(pretty bool) JSONOption {
	return func(w *JSONWriter) {
		w.pretty = pretty
	}
}

// NewJSONWriter creates a JSON writer on w.
func NewJSONWriter(writer io.Writer, options ...JSONOption) *JSONWriter {
	w := &JSONWriter{writer: writer, now: time.Now}
	for _, opt := range options {
		opt(w)
	}
	return w
}

// Write renders result as JSON.
func (w *JSONWriter) Write(result *Result) error {
	enc := json.NewEncoder(w.writer)
	if w.pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(w.generateReport(result)); err != nil {
		return fmt.Errorf("failed to marshal JSON report: %w", err)
	}
	return nil
}

func (w *JSONWriter) generateReport(result *Result) *JSONReport {
	r := &JSONReport{
		RunID:       result.RunID,
		GeneratedAt: w.now().UTC(),
		Tool: ToolInfo{
			Name:    ToolName,
			Version: ToolVersion,
			Engine:  result.Engine,
		},
		Summary: Summary{
			Total:        len(result.Violations),
			BySeverity:   make(map[string]int),
			ByRule:       make(map[string]int),
			ByStrategy:   make(map[string]int),
			FilesScanned: result.FilesScanned,
			BytesScanned: result.BytesScanned,
			DurationMS:   result.Duration.Milliseconds(),
		},
		Violations:  make([]ViolationJSON, 0, len(result.Violations)),
		Diagnostics: result.Diagnostics,
	}

	for _, v := range result.Violations {
		r.Summary.BySeverity[string(v.Severity)]++
		r.Summary.ByRule[v.RuleID]++
		r.Summary.ByStrategy[string(v.StrategyUsed)]++
		r.Violations = append(r.Violations, ViolationJSON{Violation: v, Fingerprint: Fingerprint(v)})
	}
	return r
}
