package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/sirkon/deepequal"

	"hybridlint/internal/core"
)

func sampleResult() *Result {
	r := NewResult("heuristic", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	r.Duration = 1500 * time.Millisecond
	r.FilesScanned = 1200
	r.BytesScanned = 2_500_000
	r.Rules = []RuleInfo{
		{ID: "S001", Name: "No eval", Category: "security", Severity: core.SeverityError, Message: "Avoid eval"},
		{ID: "C029", Name: "Catch handled", Category: "error-handling", Severity: core.SeverityWarning, Suggestion: "Log or rethrow"},
	}
	r.Violations = []core.Violation{
		{RuleID: "C029", File: "src/b.js", Line: 4, Column: 1, Severity: core.SeverityWarning, Message: "empty catch", Category: "error-handling", StrategyUsed: core.KindSemantic},
		{RuleID: "S001", File: "src/a.js", Line: 9, Column: 3, Severity: core.SeverityError, Message: "eval", Category: "security", StrategyUsed: core.KindPattern},
		{RuleID: "C043", File: "src/a.js", Line: 2, Column: 1, Severity: core.SeverityInfo, Message: "console", Category: "quality", StrategyUsed: core.KindSemantic},
	}
	r.Diagnostics = []string{"C035 src/a.js: no applicable strategy"}
	return r
}

func TestResult_Sort(t *testing.T) {
	r := sampleResult()
	r.Sort()

	var got []string
	for _, v := range r.Violations {
		got = append(got, v.String())
	}
	want := []string{
		"src/a.js:2:1: [C043] console (info)",
		"src/a.js:9:3: [S001] eval (error)",
		"src/b.js:4:1: [C029] empty catch (warning)",
	}
	if !reflect.DeepEqual(want, got) {
		deepequal.SideBySide(t, "sorted", want, got)
		t.Fail()
	}
	if r.Rules[0].ID != "C029" {
		t.Errorf("rules must be sorted by ID: %v", r.Rules)
	}
	if !r.HasErrors() {
		t.Error("expected HasErrors")
	}
}

func TestFingerprint(t *testing.T) {
	v := core.Violation{RuleID: "S001", File: "a.js", Line: 1, Column: 1, Message: "eval"}
	if Fingerprint(v) != Fingerprint(v) {
		t.Fatal("fingerprint must be deterministic")
	}
	w := v
	w.Severity = core.SeverityError
	if Fingerprint(v) != Fingerprint(w) {
		t.Error("severity is not part of the identity")
	}
	w.Line = 2
	if Fingerprint(v) == Fingerprint(w) {
		t.Error("line is part of the identity")
	}
}

func TestJSONWriter(t *testing.T) {
	r := sampleResult()
	r.Sort()

	var buf bytes.Buffer
	if err := NewJSONWriter(&buf).Write(r); err != nil {
		t.Fatal(err)
	}

	var doc JSONReport
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if doc.RunID != r.RunID || doc.Tool.Name != ToolName || doc.Tool.Engine != "heuristic" {
		t.Errorf("unexpected header: %+v", doc)
	}
	wantSeverity := map[string]int{"error": 1, "warning": 1, "info": 1}
	if !reflect.DeepEqual(wantSeverity, doc.Summary.BySeverity) {
		deepequal.SideBySide(t, "by_severity", wantSeverity, doc.Summary.BySeverity)
		t.Fail()
	}
	wantStrategy := map[string]int{"semantic": 2, "pattern": 1}
	if !reflect.DeepEqual(wantStrategy, doc.Summary.ByStrategy) {
		deepequal.SideBySide(t, "by_strategy", wantStrategy, doc.Summary.ByStrategy)
		t.Fail()
	}
	if doc.Summary.Total != 3 || doc.Summary.DurationMS != 1500 || doc.Summary.FilesScanned != 1200 {
		t.Errorf("unexpected summary: %+v", doc.Summary)
	}
	if len(doc.Violations) != 3 || doc.Violations[0].RuleID != "C043" {
		t.Fatalf("unexpected violations: %+v", doc.Violations)
	}
	if doc.Violations[0].Fingerprint != Fingerprint(r.Violations[0]) {
		t.Error("fingerprint missing from JSON output")
	}
	if !strings.Contains(buf.String(), `"strategy_used": "semantic"`) && !strings.Contains(buf.String(), `"strategy_used":"semantic"`) {
		t.Errorf("strategy_used not rendered: %s", buf.String())
	}
}

func TestSARIFWriter(t *testing.T) {
	r := sampleResult()
	r.Sort()

	var buf bytes.Buffer
	if err := NewSARIFWriter(&buf, WithPrettySARIF(true)).Write(r); err != nil {
		t.Fatal(err)
	}

	var doc SARIF
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("invalid SARIF: %v", err)
	}
	if doc.Version != "2.1.0" || len(doc.Runs) != 1 {
		t.Fatalf("unexpected log: %+v", doc)
	}
	run := doc.Runs[0]

	var ids []string
	for _, rule := range run.Tool.Driver.Rules {
		ids = append(ids, rule.ID)
	}
	// C043 has no RuleInfo and is derived from its violation.
	if want := []string{"C029", "C043", "S001"}; !reflect.DeepEqual(want, ids) {
		deepequal.SideBySide(t, "rules", want, ids)
		t.Fail()
	}

	type row struct {
		RuleID string
		Index  int
		Level  string
		Line   int
	}
	var got []row
	for _, res := range run.Results {
		got = append(got, row{res.RuleID, res.RuleIndex, res.Level, res.Locations[0].PhysicalLocation.Region.StartLine})
		if run.Tool.Driver.Rules[res.RuleIndex].ID != res.RuleID {
			t.Errorf("ruleIndex %d does not point at %s", res.RuleIndex, res.RuleID)
		}
		if res.PartialFingerprints[fingerprintKey] == "" {
			t.Errorf("missing fingerprint on %s", res.RuleID)
		}
	}
	want := []row{
		{"C043", 1, "note", 2},
		{"S001", 2, "error", 9},
		{"C029", 0, "warning", 4},
	}
	if !reflect.DeepEqual(want, got) {
		deepequal.SideBySide(t, "results", want, got)
		t.Fail()
	}
	if run.AutomationDetails == nil || !strings.HasSuffix(run.AutomationDetails.ID, r.RunID) {
		t.Errorf("automation details: %+v", run.AutomationDetails)
	}
}

func TestTextWriter(t *testing.T) {
	r := sampleResult()
	r.Sort()

	var buf bytes.Buffer
	if err := NewTextWriter(&buf, WithVerbose()).Write(r); err != nil {
		t.Fatal(err)
	}
	out := buf.String()

	for _, want := range []string{
		"Scanned 1,200 files (2.5 MB) in 1.5s",
		"Total violations: 3",
		"ERROR (1):",
		"File: src/a.js",
		"9:3  S001",
		"strategy: pattern",
		"Diagnostics (1):",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Index(out, "ERROR (1):") > strings.Index(out, "WARNING (1):") {
		t.Error("errors must be listed before warnings")
	}

	buf.Reset()
	empty := NewResult("pattern", time.Now())
	if err := NewTextWriter(&buf).Write(empty); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "No violations found.") {
		t.Errorf("unexpected empty report: %s", buf.String())
	}
}

func TestManager_Generate(t *testing.T) {
	t.Run("stdout", func(t *testing.T) {
		var buf bytes.Buffer
		m := NewManager(WithFormat(FormatJSON), WithStdout(&buf))
		files, err := m.Generate(sampleResult())
		if err != nil {
			t.Fatal(err)
		}
		if len(files) != 0 || !json.Valid(buf.Bytes()) {
			t.Errorf("files %v, output %q", files, buf.String())
		}
	})

	t.Run("all formats", func(t *testing.T) {
		dir := t.TempDir()
		m := NewManager(WithFormat(FormatAll), WithOutputDir(dir))
		files, err := m.Generate(sampleResult())
		if err != nil {
			t.Fatal(err)
		}
		want := []string{
			filepath.Join(dir, "hybridlint_report.json"),
			filepath.Join(dir, "hybridlint_report.text"),
			filepath.Join(dir, "hybridlint_report.sarif"),
		}
		if !reflect.DeepEqual(want, files) {
			deepequal.SideBySide(t, "files", want, files)
			t.Fail()
		}
		for _, f := range files {
			if st, err := os.Stat(f); err != nil || st.Size() == 0 {
				t.Errorf("%s not written: %v", f, err)
			}
		}
	})

	t.Run("named file", func(t *testing.T) {
		dir := t.TempDir()
		m := NewManager(WithFormat(FormatSARIF), WithOutputDir(dir), WithFilename("out/results.sarif"))
		files, err := m.Generate(sampleResult())
		if err != nil {
			t.Fatal(err)
		}
		if want := []string{filepath.Join(dir, "out", "results.sarif")}; !reflect.DeepEqual(want, files) {
			t.Errorf("got %v, want %v", files, want)
		}
	})

	t.Run("timestamp", func(t *testing.T) {
		m := NewManager(WithTimestamp())
		m.now = func() time.Time { return time.Date(2026, 10, 16, 8, 30, 0, 0, time.UTC) }
		if got := m.generateFilename(FormatJSON); got != "hybridlint_report_20261016_083000.json" {
			t.Errorf("unexpected name %s", got)
		}
	})
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"json", FormatJSON, false},
		{"SARIF", FormatSARIF, false},
		{"", FormatText, false},
		{"all", FormatAll, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}
