package shared

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the hybridlint configuration file.
type Config struct {
	Analysis struct {
		Engine            string   `yaml:"engine"`             // "heuristic"|"semantic"|"pattern"
		RulesDir          string   `yaml:"rules_dir"`          // empty = embedded catalog
		RegistryOverrides string   `yaml:"registry_overrides"` // optional YAML file
		Include           []string `yaml:"include"`            // doublestar globs
		Exclude           []string `yaml:"exclude"`            // doublestar globs
		BatchSize         int      `yaml:"batch_size"`         // 100
		Workers           int      `yaml:"workers"`            // 1 = single-threaded
		MinSeverity       string   `yaml:"min_severity"`       // "info"|"warning"|"error"
		Semantic          bool     `yaml:"semantic"`           // build the Source Index
		Enable            []string `yaml:"enable"`             // rule IDs, empty = all
		Disable           []string `yaml:"disable"`            // rule IDs
		Verbose           bool     `yaml:"verbose"`
	} `yaml:"analysis"`

	Rules map[string]struct {
		Options map[string]any `yaml:"options"`
	} `yaml:"rules"`

	Reporting struct {
		Format    string `yaml:"format"`    // "text"|"json"|"sarif"
		Output    string `yaml:"output"`    // file path, empty = stdout
		Timestamp bool   `yaml:"timestamp"` // append a timestamp to the output name
		Pretty    bool   `yaml:"pretty"`    // indent JSON
	} `yaml:"reporting"`

	Logging struct {
		Format string `yaml:"format"` // "json"|"text"
		Level  string `yaml:"level"`  // "info"|"debug"|"warn"|"error"
	} `yaml:"logging"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	var c Config
	c.Analysis.Engine = "heuristic"
	c.Analysis.Include = []string{"**/*.{js,jsx,mjs,cjs,ts,tsx,mts,cts}"}
	c.Analysis.Exclude = []string{"**/*.min.js", "**/*.d.ts"}
	c.Analysis.BatchSize = 100
	c.Analysis.Workers = runtime.NumCPU()
	c.Analysis.MinSeverity = "info"
	c.Analysis.Semantic = true
	c.Reporting.Format = "text"
	c.Reporting.Pretty = true
	c.Logging.Format = "text"
	c.Logging.Level = "info"
	return c
}

// LoadConfig reads path over the defaults and applies HYBRIDLINT_*
// environment overrides. A missing file is not an error when path is
// empty.
func LoadConfig(path string) (Config, error) {
	c := DefaultConfig()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return c, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return c, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(&c); err != nil {
		return c, err
	}
	return c, c.Validate()
}

func applyEnv(c *Config) error {
	if v := os.Getenv("HYBRIDLINT_ENGINE"); v != "" {
		c.Analysis.Engine = v
	}
	if v := os.Getenv("HYBRIDLINT_RULES_DIR"); v != "" {
		c.Analysis.RulesDir = v
	}
	if v := os.Getenv("HYBRIDLINT_REGISTRY_OVERRIDES"); v != "" {
		c.Analysis.RegistryOverrides = v
	}
	if v := os.Getenv("HYBRIDLINT_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("HYBRIDLINT_WORKERS: %w", err)
		}
		c.Analysis.Workers = n
	}
	if v := os.Getenv("HYBRIDLINT_BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("HYBRIDLINT_BATCH_SIZE: %w", err)
		}
		c.Analysis.BatchSize = n
	}
	if v := os.Getenv("HYBRIDLINT_MIN_SEVERITY"); v != "" {
		c.Analysis.MinSeverity = v
	}
	if v := os.Getenv("HYBRIDLINT_VERBOSE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("HYBRIDLINT_VERBOSE: %w", err)
		}
		c.Analysis.Verbose = b
	}
	if v := os.Getenv("HYBRIDLINT_FORMAT"); v != "" {
		c.Reporting.Format = v
	}
	if v := os.Getenv("HYBRIDLINT_OUTPUT"); v != "" {
		c.Reporting.Output = v
	}
	if v := os.Getenv("HYBRIDLINT_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("HYBRIDLINT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	return nil
}

// Validate checks values that would otherwise fail deep inside a run.
func (c Config) Validate() error {
	var errs []error
	if c.Analysis.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("analysis.batch_size must be positive, got %d", c.Analysis.BatchSize))
	}
	if c.Analysis.Workers < 1 {
		errs = append(errs, fmt.Errorf("analysis.workers must be positive, got %d", c.Analysis.Workers))
	}
	switch strings.ToLower(c.Reporting.Format) {
	case "text", "json", "sarif", "all":
	default:
		errs = append(errs, fmt.Errorf("reporting.format: unknown format %q", c.Reporting.Format))
	}
	return errors.Join(errs...)
}

// RuleOptions returns the per-rule option overrides keyed by rule ID.
func (c Config) RuleOptions() map[string]map[string]any {
	out := make(map[string]map[string]any, len(c.Rules))
	for id, r := range c.Rules {
		if len(r.Options) > 0 {
			out[id] = r.Options
		}
	}
	return out
}
