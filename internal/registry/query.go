package registry

import (
	"errors"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"

	"hybridlint/internal/core"
)

// ViolationCapture is the capture name that marks the reported node of a
// semantic.scm query. Without it the first capture of each match is used.
const ViolationCapture = "violation"

// QueryStrategy is a semantic strategy backed by a tree-sitter query.
type QueryStrategy struct {
	core.BaseStrategy
	pattern string
}

// ParseQuery checks that the query compiles for at least one of langs, or
// for JavaScript when no language is given.
func ParseQuery(name string, data []byte, langs ...core.Language) (*QueryStrategy, error) {
	pattern := string(data)
	if len(langs) == 0 {
		langs = []core.Language{core.LanguageJavaScript}
	}
	var errs []error
	for _, lang := range langs {
		if _, err := core.CompileQuery(pattern, lang); err != nil {
			errs = append(errs, err)
			continue
		}
		return &QueryStrategy{
			BaseStrategy: core.NewBaseStrategy(name),
			pattern:      pattern,
		}, nil
	}
	return nil, errors.Join(errs...)
}

// Analyze runs the query on each file's parsed tree. The query is compiled
// for the file's own grammar; a query that does not compile for it fails the
// strategy so the cascade can fall back.
func (s *QueryStrategy) Analyze(actx *core.AnalysisContext, files []string, _ core.Language, _ core.Options) ([]core.Violation, error) {
	var out []core.Violation
	for _, file := range files {
		unit, err := s.Unit(actx, file)
		if err != nil {
			return nil, err
		}
		query, err := core.CompileQuery(s.pattern, unit.Language)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.Name(), err)
		}
		for _, m := range unit.QueryCompiled(query) {
			node := reportedNode(m)
			line, col := core.Position(node)
			out = append(out, s.CreateViolation(file, line, col, ""))
		}
	}
	return out, nil
}

func reportedNode(m core.QueryMatch) *sitter.Node {
	if n, ok := m.Captures[ViolationCapture]; ok {
		return n
	}
	return m.Node
}
