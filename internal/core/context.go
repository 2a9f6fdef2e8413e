package core

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
)

// FileHandle identifies one file handed to a rule.
type FileHandle struct {
	Path     string
	Language Language
}

// NewFileHandle detects the language of path.
func NewFileHandle(path string) (FileHandle, error) {
	lang, err := DetectLanguage(path)
	if err != nil {
		return FileHandle{}, err
	}
	return FileHandle{Path: filepath.Clean(path), Language: lang}, nil
}

// Options carries per-rule settings from rule metadata and configuration.
type Options map[string]any

// Int reads an integer option. YAML numbers decode as int, JSON ones as
// float64; both are accepted.
func (o Options) Int(key string, def int) int {
	switch v := o[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}

// String reads a string option.
func (o Options) String(key, def string) string {
	if v, ok := o[key].(string); ok {
		return v
	}
	return def
}

// Bool reads a boolean option.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key].(bool); ok {
		return v
	}
	return def
}

// Strings reads a list of strings. A single string is split on commas.
func (o Options) Strings(key string, def []string) []string {
	switch v := o[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return out
	case string:
		var out []string
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	default:
		return def
	}
}

// Merge returns a copy of o overlaid with over.
func (o Options) Merge(over Options) Options {
	out := make(Options, len(o)+len(over))
	for k, v := range o {
		out[k] = v
	}
	for k, v := range over {
		out[k] = v
	}
	return out
}

// AnalysisContext is the per-run configuration shared by every component.
// It is built once and not modified afterwards.
type AnalysisContext struct {
	Verbose bool
	Index   SourceIndex
	Engine  string
	Root    string
	Logger  *slog.Logger
	Sources *SourceCache

	ruleOptions map[string]Options
}

// ContextOption configures an AnalysisContext.
type ContextOption func(*AnalysisContext)

// WithVerbose enables verbose diagnostics.
func WithVerbose(v bool) ContextOption {
	return func(a *AnalysisContext) {
		a.Verbose = v
	}
}

// WithLogger sets the logger used by all components.
func WithLogger(l *slog.Logger) ContextOption {
	return func(a *AnalysisContext) {
		a.Logger = l
	}
}

// WithRoot sets the project root used to relativize paths.
func WithRoot(root string) ContextOption {
	return func(a *AnalysisContext) {
		a.Root = root
	}
}

// WithRuleOptions sets per-rule option overrides keyed by rule ID.
func WithRuleOptions(opts map[string]Options) ContextOption {
	return func(a *AnalysisContext) {
		a.ruleOptions = make(map[string]Options, len(opts))
		for id, o := range opts {
			a.ruleOptions[strings.ToUpper(strings.TrimSpace(id))] = o
		}
	}
}

// NewAnalysisContext creates the context for one analysis run.
func NewAnalysisContext(index SourceIndex, engine string, options ...ContextOption) *AnalysisContext {
	a := &AnalysisContext{
		Index:   index,
		Engine:  engine,
		Sources: NewSourceCache(DefaultSourceCacheSize),
	}
	for _, opt := range options {
		opt(a)
	}
	if a.Logger == nil {
		a.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if a.Index == nil {
		a.Index = NewMemoryIndex()
	}
	return a
}

// RuleOptions returns the configured overrides for a rule.
func (a *AnalysisContext) RuleOptions(ruleID string) Options {
	return a.ruleOptions[strings.ToUpper(strings.TrimSpace(ruleID))]
}

// SemanticReady reports whether a parsed tree is available for path.
func (a *AnalysisContext) SemanticReady(path string) bool {
	if a.Index == nil || !a.Index.IsReady() {
		return false
	}
	_, ok := a.Index.GetTree(path)
	return ok
}

// ReadSource returns the contents of path, preferring the parsed unit of
// the source index over the file cache.
func (a *AnalysisContext) ReadSource(path string) ([]byte, error) {
	if a.Index != nil && a.Index.IsReady() {
		if unit, ok := a.Index.GetTree(path); ok {
			return unit.Source, nil
		}
	}
	return a.Sources.Read(path)
}

// Debug logs only when the run is verbose.
func (a *AnalysisContext) Debug(msg string, args ...any) {
	if !a.Verbose {
		return
	}
	a.Logger.Debug(msg, args...)
}
