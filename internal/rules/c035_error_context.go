package rules

import (
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"

	"hybridlint/internal/callgraph"
	"hybridlint/internal/core"
)

// ErrorContextStrategy reports logging calls inside a catch clause whose
// only argument is the caught error itself.
type ErrorContextStrategy struct {
	core.BaseStrategy
}

// NewErrorContextStrategy creates the C035 semantic strategy.
func NewErrorContextStrategy() *ErrorContextStrategy {
	return &ErrorContextStrategy{BaseStrategy: core.NewBaseStrategy("C035/error-context")}
}

func (s *ErrorContextStrategy) Analyze(actx *core.AnalysisContext, files []string, _ core.Language, opts core.Options) ([]core.Violation, error) {
	sink := callgraph.NewLoggerSink(
		opts.Strings("sink_objects", callgraph.DefaultLoggerObjects),
		opts.Strings("sink_methods", callgraph.DefaultLoggerMethods),
	)

	var out []core.Violation
	for _, file := range files {
		unit, err := s.Unit(actx, file)
		if err != nil {
			return nil, err
		}
		for _, clause := range catchClauses(unit) {
			param := clause.ChildByFieldName("parameter")
			body := clause.ChildByFieldName("body")
			if param == nil || body == nil || param.Type() != "identifier" {
				continue
			}
			name := unit.Text(param)

			core.Walk(body, func(n *sitter.Node) bool {
				if isFunctionNode(n) || n.Type() == "catch_clause" {
					return false
				}
				if n.Type() != "call_expression" {
					return true
				}
				site := callgraph.NewCallSite(unit, n)
				if len(site.Args) == 1 && site.Args[0].Type() == "identifier" &&
					unit.Text(site.Args[0]) == name && sink(site) {
					line, col := core.Position(n)
					out = append(out, s.CreateViolation(file, line, col,
						fmt.Sprintf("'%s' is logged by %s without context", name, site.FullName())))
				}
				return true
			})
		}
	}
	return out, nil
}
