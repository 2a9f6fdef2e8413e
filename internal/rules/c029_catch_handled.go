package rules

import (
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"

	"hybridlint/internal/callgraph"
	"hybridlint/internal/core"
)

// CatchHandledStrategy reports catch clauses whose error is dropped: empty
// blocks, clauses without a binding, and errors that neither reach a
// logging call nor get rethrown.
type CatchHandledStrategy struct {
	core.BaseStrategy
}

// NewCatchHandledStrategy creates the C029 semantic strategy.
func NewCatchHandledStrategy() *CatchHandledStrategy {
	return &CatchHandledStrategy{BaseStrategy: core.NewBaseStrategy("C029/catch-handled")}
}

func (s *CatchHandledStrategy) Analyze(actx *core.AnalysisContext, files []string, _ core.Language, opts core.Options) ([]core.Violation, error) {
	sink := sinkFromOptions(opts)
	maxDepth := opts.Int("max_depth", callgraph.DefaultMaxDepth)

	var out []core.Violation
	for _, file := range files {
		unit, err := s.Unit(actx, file)
		if err != nil {
			return nil, err
		}

		var tracer *callgraph.Tracer
		for _, clause := range catchClauses(unit) {
			body := clause.ChildByFieldName("body")
			if body == nil {
				continue
			}
			line, col := core.Position(clause)

			if len(core.NamedChildren(body)) == 0 {
				out = append(out, s.CreateViolation(file, line, col, "Empty catch block silently swallows the error"))
				continue
			}

			param := clause.ChildByFieldName("parameter")
			if param == nil {
				out = append(out, s.CreateViolation(file, line, col, "Caught error is discarded: catch clause has no binding"))
				continue
			}
			if param.Type() != "identifier" {
				// destructured errors are not traced
				continue
			}
			name := unit.Text(param)

			if rethrows(unit, body, name) {
				continue
			}

			if tracer == nil {
				tracer = callgraph.NewTracer(unit)
			}
			res := tracer.Trace(callgraph.TraceQuery{
				TargetVariable: name,
				Sink:           sink,
				MaxDepth:       maxDepth,
				Origin:         body,
			})
			actx.Debug("traced caught error", "file", file, "line", line, "variable", name,
				"reaches_sink", res.ReachesSink, "depth", res.DepthReached, "expanded", res.Expanded)
			if res.ReachesSink {
				continue
			}
			out = append(out, s.CreateViolation(file, line, col,
				fmt.Sprintf("Caught error '%s' is neither logged nor rethrown", name)))
		}
	}
	return out, nil
}

// rethrows reports whether body throws an expression that mentions name.
// Throws inside nested functions do not count.
func rethrows(unit *core.ParsedUnit, body *sitter.Node, name string) bool {
	found := false
	core.Walk(body, func(n *sitter.Node) bool {
		if found || isFunctionNode(n) {
			return false
		}
		if n.Type() != "throw_statement" {
			return true
		}
		core.Walk(n, func(m *sitter.Node) bool {
			if m.Type() == "identifier" || m.Type() == "shorthand_property_identifier" {
				if unit.Text(m) == name {
					found = true
				}
				return false
			}
			return !found
		})
		return false
	})
	return found
}
