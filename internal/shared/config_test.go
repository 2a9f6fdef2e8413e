package shared

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadConfig_Defaults(t *testing.T) {
	c, err := LoadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if c.Analysis.Engine != "heuristic" || c.Analysis.BatchSize != 100 || !c.Analysis.Semantic {
		t.Fatalf("unexpected defaults: %+v", c.Analysis)
	}
	if c.Reporting.Format != "text" || c.Logging.Level != "info" {
		t.Fatalf("unexpected defaults: %+v %+v", c.Reporting, c.Logging)
	}
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hybridlint.yaml")
	doc := `
analysis:
  engine: pattern
  batch_size: 10
  workers: 3
  disable: [S003]
rules:
  C029:
    options:
      max_depth: 4
reporting:
  format: json
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("HYBRIDLINT_WORKERS", "7")
	t.Setenv("HYBRIDLINT_FORMAT", "sarif")

	c, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.Analysis.Engine != "pattern" || c.Analysis.BatchSize != 10 {
		t.Errorf("file values not applied: %+v", c.Analysis)
	}
	if c.Analysis.Workers != 7 || c.Reporting.Format != "sarif" {
		t.Errorf("env must override the file: workers %d format %s", c.Analysis.Workers, c.Reporting.Format)
	}
	if len(c.Analysis.Disable) != 1 || c.Analysis.Disable[0] != "S003" {
		t.Errorf("disable list: %v", c.Analysis.Disable)
	}
	if got := c.RuleOptions()["C029"]["max_depth"]; got != 4 {
		t.Errorf("rule options: %v", got)
	}
	if c.Logging.Level != "debug" {
		t.Errorf("logging level: %s", c.Logging.Level)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing explicit config file")
	}

	t.Setenv("HYBRIDLINT_WORKERS", "many")
	if _, err := LoadConfig(""); err == nil {
		t.Error("expected error for invalid HYBRIDLINT_WORKERS")
	}

	t.Setenv("HYBRIDLINT_WORKERS", "0")
	if _, err := LoadConfig(""); err == nil {
		t.Error("expected validation error for zero workers")
	}
}

func TestInitLogger(t *testing.T) {
	defer slog.SetDefault(slog.Default())

	var buf bytes.Buffer
	logger := InitLogger("json", "warn", &buf)
	logger.Info("hidden")
	logger.Warn("shown", "rule", "C029")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info must be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"rule":"C029"`) {
		t.Errorf("unexpected json output: %s", out)
	}
}
