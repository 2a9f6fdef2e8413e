package registry

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"hybridlint/internal/core"
)

// Files of a rule folder.
const (
	RuleFile    = "rule.yaml"
	QueryFile   = "semantic.scm"
	PatternFile = "pattern.yaml"
)

// RuleLoadError reports a rule folder that could not be loaded. Discovery
// skips such folders and carries on.
type RuleLoadError struct {
	Folder string
	RuleID string
	Err    error
}

func (e *RuleLoadError) Error() string {
	if e.RuleID != "" {
		return fmt.Sprintf("load rule %s from %s: %v", e.RuleID, e.Folder, e.Err)
	}
	return fmt.Sprintf("load rule folder %s: %v", e.Folder, e.Err)
}

func (e *RuleLoadError) Unwrap() error {
	return e.Err
}

var (
	ErrMissingRuleFile  = errors.New("missing " + RuleFile)
	ErrNoImplementation = errors.New("no strategy implementation")
	ErrDuplicateRule    = errors.New("duplicate rule id")
)

type ruleMeta struct {
	ID           string         `yaml:"id"`
	Name         string         `yaml:"name"`
	Category     string         `yaml:"category"`
	Severity     string         `yaml:"severity"`
	Languages    []string       `yaml:"languages"`
	SemanticOnly bool           `yaml:"semantic_only"`
	Engines      []string       `yaml:"engines"`
	Message      string         `yaml:"message"`
	Suggestion   string         `yaml:"suggestion"`
	Options      map[string]any `yaml:"options"`
}

// PluginManager discovers rule folders and builds their descriptors.
type PluginManager struct {
	logger    *slog.Logger
	overrides Overrides
	skipped   []*RuleLoadError
}

// ManagerOption configures a PluginManager.
type ManagerOption func(*PluginManager)

// WithLogger sets the logger used for skipped folders.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *PluginManager) {
		m.logger = l
	}
}

// WithOverrides applies a registry configuration during discovery.
func WithOverrides(o Overrides) ManagerOption {
	return func(m *PluginManager) {
		m.overrides = o
	}
}

// NewPluginManager creates a plugin manager.
func NewPluginManager(opts ...ManagerOption) *PluginManager {
	m := &PluginManager{}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return m
}

// Discover loads every rule folder under root with the default manager.
func Discover(fsys fs.FS, root string) ([]*RuleDescriptor, error) {
	return NewPluginManager().Discover(fsys, root)
}

// Skipped returns the folders the last Discover call skipped.
func (m *PluginManager) Skipped() []*RuleLoadError {
	return append([]*RuleLoadError(nil), m.skipped...)
}

// Load discovers rules and freezes them into a registry.
func (m *PluginManager) Load(fsys fs.FS, root string) (*Registry, error) {
	rules, err := m.Discover(fsys, root)
	if err != nil {
		return nil, err
	}
	return New(rules)
}

// Discover walks root for rule folders in lexical order. Folders that fail
// to load are logged and skipped; only an unreadable root is an error.
func (m *PluginManager) Discover(fsys fs.FS, root string) ([]*RuleDescriptor, error) {
	m.skipped = nil
	if root == "" {
		root = "."
	}
	if _, err := fs.Stat(fsys, root); err != nil {
		return nil, fmt.Errorf("rules root %s: %w", root, err)
	}

	folders := map[string]map[string]bool{}
	err := fs.WalkDir(fsys, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return err
			}
			m.skip(&RuleLoadError{Folder: p, Err: err})
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		switch d.Name() {
		case RuleFile, QueryFile, PatternFile:
			dir := path.Dir(p)
			if folders[dir] == nil {
				folders[dir] = map[string]bool{}
			}
			folders[dir][d.Name()] = true
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk rules root %s: %w", root, err)
	}

	dirs := make([]string, 0, len(folders))
	for dir := range folders {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)

	var out []*RuleDescriptor
	seen := map[string]string{}
	for _, dir := range dirs {
		files := folders[dir]
		if !files[RuleFile] {
			m.skip(&RuleLoadError{Folder: dir, Err: ErrMissingRuleFile})
			continue
		}

		desc, err := m.loadFolder(fsys, dir, files)
		if err != nil {
			m.skip(asLoadError(dir, err))
			continue
		}
		if desc == nil {
			continue
		}

		id := normalizeID(desc.ID)
		if first, dup := seen[id]; dup {
			m.skip(&RuleLoadError{
				Folder: dir,
				RuleID: id,
				Err:    fmt.Errorf("%w, first defined in %s", ErrDuplicateRule, first),
			})
			continue
		}
		seen[id] = dir
		out = append(out, desc)
	}

	m.logger.Debug("rule discovery finished", "root", root, "loaded", len(out), "skipped", len(m.skipped))
	return out, nil
}

func (m *PluginManager) skip(err *RuleLoadError) {
	m.skipped = append(m.skipped, err)
	m.logger.Warn("skipping rule folder", "folder", err.Folder, "rule", err.RuleID, "error", err.Err)
}

func asLoadError(dir string, err error) *RuleLoadError {
	var le *RuleLoadError
	if errors.As(err, &le) {
		return le
	}
	return &RuleLoadError{Folder: dir, Err: err}
}

// loadFolder builds the descriptor of one folder. It returns nil, nil when an
// override disables the rule.
func (m *PluginManager) loadFolder(fsys fs.FS, dir string, files map[string]bool) (*RuleDescriptor, error) {
	data, err := fs.ReadFile(fsys, path.Join(dir, RuleFile))
	if err != nil {
		return nil, err
	}
	var meta ruleMeta
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parse %s: %w", RuleFile, err)
	}
	id := normalizeID(meta.ID)
	if id == "" {
		return nil, fmt.Errorf("%s: missing id", RuleFile)
	}
	fail := func(err error) error {
		return &RuleLoadError{Folder: dir, RuleID: id, Err: err}
	}

	desc := &RuleDescriptor{
		ID:           id,
		Name:         meta.Name,
		Category:     meta.Category,
		SemanticOnly: meta.SemanticOnly,
		Engines:      meta.Engines,
		Message:      strings.TrimSpace(meta.Message),
		Suggestion:   strings.TrimSpace(meta.Suggestion),
		Options:      core.Options(meta.Options),
		Source:       dir,
	}
	if desc.Name == "" {
		desc.Name = id
	}
	if desc.Options == nil {
		desc.Options = core.Options{}
	}

	desc.DefaultSeverity = core.SeverityWarning
	if meta.Severity != "" {
		sev, err := core.ParseSeverity(meta.Severity)
		if err != nil {
			return nil, fail(err)
		}
		desc.DefaultSeverity = sev
	}

	if len(meta.Languages) == 0 {
		meta.Languages = []string{string(core.LanguageJavaScript), string(core.LanguageTypeScript)}
	}
	for _, l := range meta.Languages {
		lang, err := core.ParseLanguage(l)
		if err != nil {
			return nil, fail(err)
		}
		desc.Languages = append(desc.Languages, lang)
	}

	semantic, err := m.semanticHandle(fsys, dir, id, files, desc.Languages)
	if err != nil {
		return nil, fail(err)
	}
	if semantic != nil {
		desc.Strategies = append(desc.Strategies, *semantic)
	}

	// A semantic-only rule never falls back, so its pattern file is not loaded.
	semOnly := meta.SemanticOnly
	if o, ok := m.overrides[id]; ok && o.SemanticOnly != nil {
		semOnly = *o.SemanticOnly
	}
	if !semOnly {
		pattern, err := m.patternHandle(fsys, dir, id, files)
		if err != nil {
			return nil, fail(err)
		}
		if pattern != nil {
			desc.Strategies = append(desc.Strategies, *pattern)
		}
	}
	if len(desc.Strategies) == 0 {
		return nil, fail(ErrNoImplementation)
	}

	if o, ok := m.overrides[id]; ok {
		if !o.apply(desc) {
			m.logger.Info("rule disabled by registry overrides", "rule", id)
			return nil, nil
		}
	}
	if desc.SemanticOnly {
		desc.Strategies = semanticOnly(desc.Strategies)
	}

	if err := desc.Validate(); err != nil {
		return nil, fail(err)
	}
	return desc, nil
}

func (m *PluginManager) semanticHandle(fsys fs.FS, dir, id string, files map[string]bool, langs []core.Language) (*StrategyHandle, error) {
	if factory, ok := builtinFactory(id, core.KindSemantic); ok {
		impl, err := factory()
		if err != nil {
			return nil, fmt.Errorf("builtin semantic strategy: %w", err)
		}
		return &StrategyHandle{Kind: core.KindSemantic, Impl: impl, RequiresSemanticContext: true, Origin: OriginBuiltin}, nil
	}
	if !files[QueryFile] {
		return nil, nil
	}
	data, err := fs.ReadFile(fsys, path.Join(dir, QueryFile))
	if err != nil {
		return nil, err
	}
	impl, err := ParseQuery(id+"/"+QueryFile, data, langs...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", QueryFile, err)
	}
	return &StrategyHandle{Kind: core.KindSemantic, Impl: impl, RequiresSemanticContext: true, Origin: OriginQuery}, nil
}

func (m *PluginManager) patternHandle(fsys fs.FS, dir, id string, files map[string]bool) (*StrategyHandle, error) {
	if factory, ok := builtinFactory(id, core.KindPattern); ok {
		impl, err := factory()
		if err != nil {
			return nil, fmt.Errorf("builtin pattern strategy: %w", err)
		}
		return &StrategyHandle{Kind: core.KindPattern, Impl: impl, Origin: OriginBuiltin}, nil
	}
	if !files[PatternFile] {
		return nil, nil
	}
	data, err := fs.ReadFile(fsys, path.Join(dir, PatternFile))
	if err != nil {
		return nil, err
	}
	impl, err := ParsePatterns(id+"/"+PatternFile, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", PatternFile, err)
	}
	return &StrategyHandle{Kind: core.KindPattern, Impl: impl, Origin: OriginPatterns}, nil
}
