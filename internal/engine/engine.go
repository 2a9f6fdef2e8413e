// Package engine drives a full analysis run: it collects files, builds the
// source index, and dispatches every selected rule on every file in
// bounded batches.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"hybridlint/internal/aggregate"
	"hybridlint/internal/core"
	"hybridlint/internal/dispatch"
	"hybridlint/internal/registry"
)

// DefaultBatchSize is the number of files scheduled per batch.
const DefaultBatchSize = 100

// Config controls one run.
type Config struct {
	Engine      string
	Root        string // base for relative report paths; derived from the inputs when empty
	Include     []string
	Exclude     []string
	BatchSize   int
	Workers     int
	MinSeverity core.Severity
	Semantic    bool
	Enable      []string
	Disable     []string
	Verbose     bool
	RuleOptions map[string]core.Options
	Logger      *slog.Logger
}

// Result is the outcome of a run.
type Result struct {
	Engine        string
	Violations    []core.Violation
	Rules         []*registry.RuleDescriptor
	SkippedRules  map[string]string // rule ID -> reason
	Diagnostics   []*dispatch.DispatchError
	ParseFailures map[string]error
	FilesScanned  int
	BytesScanned  int64
	Duration      time.Duration
}

// Engine runs the rules of a registry over source trees.
type Engine struct {
	reg       *registry.Registry
	cfg       Config
	collector Collector
	logger    *slog.Logger
}

// New validates cfg and creates an engine.
func New(reg *registry.Registry, cfg Config) (*Engine, error) {
	if cfg.Engine == "" {
		cfg.Engine = registry.DefaultEngine
	}
	if !registry.IsEngine(cfg.Engine) {
		return nil, fmt.Errorf("unknown engine %q (want one of %s)", cfg.Engine, strings.Join(registry.Engines(), ", "))
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.MinSeverity == "" {
		cfg.MinSeverity = core.SeverityInfo
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	collector := Collector{Include: cfg.Include, Exclude: cfg.Exclude}
	if err := collector.Validate(); err != nil {
		return nil, err
	}
	return &Engine{reg: reg, cfg: cfg, collector: collector, logger: cfg.Logger}, nil
}

// SelectRules returns the rules that will run and, for the others, why
// they were left out.
func (e *Engine) SelectRules() ([]*registry.RuleDescriptor, map[string]string) {
	enabled := idSet(e.cfg.Enable)
	disabled := idSet(e.cfg.Disable)
	minRank := e.cfg.MinSeverity.Rank()

	var rules []*registry.RuleDescriptor
	skipped := make(map[string]string)
	for _, rule := range e.reg.List() {
		switch {
		case len(enabled) > 0 && !enabled[rule.ID]:
			skipped[rule.ID] = "not enabled"
		case disabled[rule.ID]:
			skipped[rule.ID] = "disabled"
		case rule.DefaultSeverity.Rank() < minRank:
			skipped[rule.ID] = "below minimum severity " + string(e.cfg.MinSeverity)
		case len(e.reg.CompatibleStrategies(rule.ID, e.cfg.Engine)) == 0:
			skipped[rule.ID] = "no strategy compatible with engine " + e.cfg.Engine
		default:
			rules = append(rules, rule)
		}
	}
	return rules, skipped
}

// Run analyzes paths. Per-file and per-rule failures become diagnostics;
// only cancellation and collection errors abort the run.
func (e *Engine) Run(ctx context.Context, paths []string) (*Result, error) {
	start := time.Now()

	files, err := e.collector.Collect(paths)
	if err != nil {
		return nil, err
	}
	rules, skipped := e.SelectRules()
	for id, reason := range skipped {
		e.logger.Debug("rule skipped", "rule", id, "reason", reason)
	}
	e.logger.Info("analysis started", "engine", e.cfg.Engine, "files", len(files), "rules", len(rules))

	res := &Result{
		Engine:        e.cfg.Engine,
		Rules:         rules,
		SkippedRules:  skipped,
		ParseFailures: map[string]error{},
	}
	if len(files) == 0 || len(rules) == 0 {
		res.Duration = time.Since(start)
		return res, nil
	}

	index, err := e.buildIndex(ctx, files)
	if err != nil {
		return nil, err
	}
	if mi, ok := index.(*core.MemoryIndex); ok {
		for path, ferr := range mi.Failures() {
			res.ParseFailures[path] = ferr
			e.logger.Warn("parse failed", "file", path, "error", ferr)
		}
	}

	actx := core.NewAnalysisContext(index, e.cfg.Engine,
		core.WithVerbose(e.cfg.Verbose),
		core.WithLogger(e.logger),
		core.WithRoot(e.root(paths)),
		core.WithRuleOptions(e.cfg.RuleOptions),
	)
	agg := aggregate.New(actx.Root)
	d := dispatch.New(actx, rules...)

	var (
		mu      sync.Mutex
		scanned atomic.Int64
		bytes   atomic.Int64
	)
	diagnose := func(err *dispatch.DispatchError) {
		mu.Lock()
		res.Diagnostics = append(res.Diagnostics, err)
		mu.Unlock()
	}

	totalBatches := (len(files) + e.cfg.BatchSize - 1) / e.cfg.BatchSize
	for b := 0; b < totalBatches; b++ {
		lo := b * e.cfg.BatchSize
		hi := min(lo+e.cfg.BatchSize, len(files))
		batch := files[lo:hi]
		e.logger.Debug("batch started", "batch", b+1, "of", totalBatches, "files", len(batch))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.cfg.Workers)
		for _, f := range batch {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				e.analyzeFile(d, actx, rules, f, agg, diagnose)
				scanned.Add(1)
				bytes.Add(f.Size)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, fmt.Errorf("batch %d/%d: %w", b+1, totalBatches, err)
		}

		runtime.Gosched()
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	minRank := e.cfg.MinSeverity.Rank()
	err = agg.Flush(aggregate.SinkFunc(func(vs []core.Violation) error {
		for _, v := range vs {
			if v.Severity.Rank() >= minRank {
				res.Violations = append(res.Violations, v)
			}
		}
		return nil
	}))
	if err != nil {
		return nil, err
	}

	hits, misses := actx.Sources.Stats()
	e.logger.Debug("source cache", "hits", hits, "misses", misses)

	res.FilesScanned = int(scanned.Load())
	res.BytesScanned = bytes.Load()
	res.Duration = time.Since(start)
	e.logger.Info("analysis finished",
		"files", res.FilesScanned,
		"violations", len(res.Violations),
		"diagnostics", len(res.Diagnostics),
		"duration", res.Duration)
	return res, nil
}

// analyzeFile runs every applicable rule on one file in the calling
// goroutine, so a parsed tree is only ever read by one goroutine.
func (e *Engine) analyzeFile(d *dispatch.Dispatcher, actx *core.AnalysisContext, rules []*registry.RuleDescriptor,
	f SourceFile, agg *aggregate.Aggregator, diagnose func(*dispatch.DispatchError)) {
	file, err := core.NewFileHandle(f.Path)
	if err != nil {
		actx.Debug("file skipped", "file", f.Path, "error", err)
		return
	}

	for _, rule := range rules {
		if !rule.SupportsLanguage(file.Language) {
			continue
		}
		vs, err := d.Run(rule, file, actx)
		if err != nil {
			var de *dispatch.DispatchError
			if errors.As(err, &de) {
				diagnose(de)
			}
			actx.Debug("rule produced no result", "rule", rule.ID, "file", file.Path, "error", err)
			continue
		}
		agg.Add(vs)
	}
}

func (e *Engine) buildIndex(ctx context.Context, files []SourceFile) (core.SourceIndex, error) {
	if !e.cfg.Semantic || !registry.EngineAllows(e.cfg.Engine, core.KindSemantic) {
		return core.NewMemoryIndex(), nil
	}
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	started := time.Now()
	index, err := core.LoadIndex(ctx, paths, e.cfg.Workers)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("source index loaded", "files", index.Len(), "bytes", index.Bytes(), "duration", time.Since(started))
	return index, nil
}

// root is the base for report paths: the configured root, the single
// directory argument, or the working directory.
func (e *Engine) root(paths []string) string {
	if e.cfg.Root != "" {
		return e.cfg.Root
	}
	if len(paths) == 1 {
		if info, err := os.Stat(paths[0]); err == nil && info.IsDir() {
			return paths[0]
		}
		return filepath.Dir(paths[0])
	}
	wd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return wd
}

func idSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id = strings.ToUpper(strings.TrimSpace(id)); id != "" {
			set[id] = true
		}
	}
	return set
}
