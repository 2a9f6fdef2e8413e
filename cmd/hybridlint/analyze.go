package main

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"hybridlint/internal/core"
	"hybridlint/internal/engine"
	"hybridlint/internal/registry"
	"hybridlint/internal/report"
	"hybridlint/internal/rules"
	"hybridlint/internal/shared"
)

func newAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze [paths...]",
		Short: "Analyze files or directories (default: current directory)",
		RunE:  runAnalyze,
	}
	f := cmd.Flags()
	f.StringP("config", "c", "", "Path to hybridlint.yaml")
	f.String("engine", "", "Analysis engine: heuristic|semantic|pattern")
	f.String("rules-dir", "", "Load rule folders from this directory instead of the builtin catalog")
	f.String("overrides", "", "Registry override file (strategy order, semantic-only, engines)")
	f.StringP("format", "f", "", "Report format: text|json|sarif|all")
	f.StringP("output", "o", "", "Report file (directory for --format all); default stdout")
	f.Bool("timestamp", false, "Add a timestamp to generated report file names")
	f.IntP("workers", "w", 0, "Number of files analyzed concurrently")
	f.Int("batch-size", 0, "Files scheduled per batch")
	f.String("min-severity", "", "Drop rules and violations below this severity: info|warning|error")
	f.StringSlice("enable", nil, "Run only these rule IDs")
	f.StringSlice("disable", nil, "Skip these rule IDs")
	f.Bool("no-semantic", false, "Skip building the source index; semantic strategies fall back to patterns")
	f.BoolP("verbose", "v", false, "Log strategy fallbacks and list diagnostics in the report")
	f.String("log-format", "", "Log format: text|json")
	f.String("log-level", "", "Log level: debug|info|warn|error")
	f.Bool("list-formats", false, "List supported report formats and exit")
	return cmd
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()

	if list, _ := flags.GetBool("list-formats"); list {
		fmt.Fprintf(cmd.OutOrStdout(), "Supported output formats:\n")
		for _, f := range report.SupportedFormats() {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s - %s\n", f, report.FormatDescription(f))
		}
		return nil
	}

	configPath, _ := flags.GetString("config")
	cfg, err := shared.LoadConfig(configPath)
	if err != nil {
		return usageError(err)
	}
	if err := applyAnalyzeFlags(cmd, &cfg); err != nil {
		return usageError(err)
	}

	level := cfg.Logging.Level
	if cfg.Analysis.Verbose {
		level = "debug"
	}
	logger := shared.InitLogger(cfg.Logging.Format, level, cmd.ErrOrStderr())

	minSeverity, err := core.ParseSeverity(cfg.Analysis.MinSeverity)
	if err != nil {
		return usageError(err)
	}
	format, err := report.ParseFormat(cfg.Reporting.Format)
	if err != nil {
		return usageError(err)
	}

	reg, err := loadRegistry(cfg.Analysis.RulesDir, cfg.Analysis.RegistryOverrides, logger)
	if err != nil {
		return &exitError{code: exitFindings, err: err}
	}

	ruleOptions := make(map[string]core.Options)
	for id, opts := range cfg.RuleOptions() {
		ruleOptions[id] = opts
	}

	eng, err := engine.New(reg, engine.Config{
		Engine:      cfg.Analysis.Engine,
		Include:     cfg.Analysis.Include,
		Exclude:     cfg.Analysis.Exclude,
		BatchSize:   cfg.Analysis.BatchSize,
		Workers:     cfg.Analysis.Workers,
		MinSeverity: minSeverity,
		Semantic:    cfg.Analysis.Semantic,
		Enable:      cfg.Analysis.Enable,
		Disable:     cfg.Analysis.Disable,
		Verbose:     cfg.Analysis.Verbose,
		RuleOptions: ruleOptions,
		Logger:      logger,
	})
	if err != nil {
		return usageError(err)
	}

	paths := args
	if len(paths) == 0 {
		paths = []string{"."}
	}

	started := time.Now()
	res, err := eng.Run(cmd.Context(), paths)
	if err != nil {
		return &exitError{code: exitFindings, err: fmt.Errorf("analysis failed: %w", err)}
	}

	result := toReport(res, started)

	opts := []report.ManagerOption{
		report.WithFormat(format),
		report.WithPretty(cfg.Reporting.Pretty),
		report.WithDetails(cfg.Analysis.Verbose),
		report.WithStdout(cmd.OutOrStdout()),
	}
	if out := cfg.Reporting.Output; out != "" {
		if format == report.FormatAll {
			opts = append(opts, report.WithOutputDir(out))
		} else {
			opts = append(opts, report.WithFilename(out))
		}
	}
	if cfg.Reporting.Timestamp {
		opts = append(opts, report.WithTimestamp())
	}

	files, err := report.NewManager(opts...).Generate(result)
	if err != nil {
		return &exitError{code: exitFindings, err: err}
	}
	for _, f := range files {
		logger.Info("report written", "file", f)
	}

	if result.HasErrors() {
		return &exitError{code: exitFindings}
	}
	return nil
}

// applyAnalyzeFlags overrides configuration values with the flags the user
// actually set.
func applyAnalyzeFlags(cmd *cobra.Command, cfg *shared.Config) error {
	flags := cmd.Flags()
	str := func(name string, dst *string) {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	num := func(name string, dst *int) {
		if flags.Changed(name) {
			*dst, _ = flags.GetInt(name)
		}
	}
	list := func(name string, dst *[]string) {
		if flags.Changed(name) {
			*dst, _ = flags.GetStringSlice(name)
		}
	}

	str("engine", &cfg.Analysis.Engine)
	str("rules-dir", &cfg.Analysis.RulesDir)
	str("overrides", &cfg.Analysis.RegistryOverrides)
	str("min-severity", &cfg.Analysis.MinSeverity)
	str("format", &cfg.Reporting.Format)
	str("output", &cfg.Reporting.Output)
	str("log-format", &cfg.Logging.Format)
	str("log-level", &cfg.Logging.Level)
	num("workers", &cfg.Analysis.Workers)
	num("batch-size", &cfg.Analysis.BatchSize)
	list("enable", &cfg.Analysis.Enable)
	list("disable", &cfg.Analysis.Disable)

	if flags.Changed("timestamp") {
		cfg.Reporting.Timestamp, _ = flags.GetBool("timestamp")
	}
	if flags.Changed("verbose") {
		cfg.Analysis.Verbose, _ = flags.GetBool("verbose")
	}
	if noSemantic, _ := flags.GetBool("no-semantic"); noSemantic {
		cfg.Analysis.Semantic = false
	}
	if !registry.IsEngine(cfg.Analysis.Engine) {
		return fmt.Errorf("unknown engine %q (want one of %s)", cfg.Analysis.Engine, strings.Join(registry.Engines(), ", "))
	}
	return cfg.Validate()
}

// loadRegistry discovers rule folders from dir, or the builtin catalog when
// dir is empty.
func loadRegistry(dir, overridesPath string, logger *slog.Logger) (*registry.Registry, error) {
	var fsys fs.FS = rules.Catalog()
	if dir != "" {
		info, err := os.Stat(dir)
		if err != nil {
			return nil, fmt.Errorf("rules directory: %w", err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("rules directory %s is not a directory", dir)
		}
		fsys = os.DirFS(dir)
	}

	overrides, err := registry.LoadOverrides(overridesPath)
	if err != nil {
		return nil, err
	}

	pm := registry.NewPluginManager(registry.WithLogger(logger), registry.WithOverrides(overrides))
	reg, err := pm.Load(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	if n := len(pm.Skipped()); n > 0 {
		logger.Warn("some rule folders were skipped", "count", n)
	}
	for _, id := range registry.BuiltinIDs() {
		if _, ok := reg.Get(id); !ok {
			logger.Debug("builtin strategy has no loaded rule folder", "rule", id)
		}
	}
	return reg, nil
}

func toReport(res *engine.Result, started time.Time) *report.Result {
	out := report.NewResult(res.Engine, started)
	out.Duration = res.Duration
	out.FilesScanned = res.FilesScanned
	out.BytesScanned = res.BytesScanned
	out.Violations = res.Violations

	for _, r := range res.Rules {
		out.Rules = append(out.Rules, report.RuleInfo{
			ID:         r.ID,
			Name:       r.Name,
			Category:   r.Category,
			Severity:   r.DefaultSeverity,
			Message:    r.Message,
			Suggestion: r.Suggestion,
		})
	}
	for _, d := range res.Diagnostics {
		out.Diagnostics = append(out.Diagnostics, d.Error())
	}
	for path, err := range res.ParseFailures {
		out.Diagnostics = append(out.Diagnostics, fmt.Sprintf("parse %s: %v", path, err))
	}
	for id, reason := range res.SkippedRules {
		out.Diagnostics = append(out.Diagnostics, fmt.Sprintf("rule %s skipped: %s", id, reason))
	}
	sort.Strings(out.Diagnostics)
	return out
}
