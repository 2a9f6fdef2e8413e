package callgraph

import (
	sitter "github.com/smacker/go-tree-sitter"

	"hybridlint/internal/core"
)

// DefaultMaxDepth is the expansion depth used when a query leaves it
// negative.
const DefaultMaxDepth = 2

// TraceQuery asks whether TargetVariable reaches a Sink call.
type TraceQuery struct {
	TargetVariable string
	Sink           Sink
	// MaxDepth bounds the number of nested local calls followed. Zero checks
	// only the direct uses; a negative value selects DefaultMaxDepth.
	MaxDepth int
	// Origin is the block the search starts in, e.g. a catch body. Nil
	// searches the whole file.
	Origin *sitter.Node
}

// TraceResult is the outcome of one trace.
type TraceResult struct {
	ReachesSink  bool
	DepthReached int
	// Path lists the functions entered on the way to the sink.
	Path []string
	// Expanded lists every function expanded during the search, in order.
	Expanded []string
}

// Tracer answers trace queries against one parsed file. The function index
// is built once; each Trace call uses its own visited set.
type Tracer struct {
	unit  *core.ParsedUnit
	index *Index
}

// NewTracer indexes the local functions of unit.
func NewTracer(unit *core.ParsedUnit) *Tracer {
	return &Tracer{unit: unit, index: BuildIndex(unit)}
}

// Trace is a convenience for NewTracer(unit).Trace(q).
func Trace(q TraceQuery, unit *core.ParsedUnit) TraceResult {
	return NewTracer(unit).Trace(q)
}

// Index returns the function index of the file.
func (t *Tracer) Index() *Index {
	return t.index
}

type frame struct {
	scope    *sitter.Node
	variable string
	depth    int
	path     []string
}

type use struct {
	site     CallSite
	argIndex int
}

// Trace runs a depth-first search with an explicit stack. Calls to names
// without a local definition never count as reaching the sink, and a
// function is expanded at most once per trace.
func (t *Tracer) Trace(q TraceQuery) TraceResult {
	maxDepth := q.MaxDepth
	if maxDepth < 0 {
		maxDepth = DefaultMaxDepth
	}
	origin := q.Origin
	if origin == nil {
		origin = t.unit.Root
	}

	var result TraceResult
	if q.TargetVariable == "" || q.Sink == nil {
		return result
	}

	visited := make(map[string]bool)
	stack := []frame{{scope: origin, variable: q.TargetVariable}}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if f.depth > result.DepthReached {
			result.DepthReached = f.depth
		}

		uses := t.uses(f.scope, f.variable)
		for _, u := range uses {
			if q.Sink(u.site) {
				result.ReachesSink = true
				result.DepthReached = f.depth
				result.Path = f.path
				return result
			}
		}
		if f.depth >= maxDepth {
			continue
		}

		var next []frame
		for _, u := range uses {
			fn, ok := t.index.Lookup(u.site.Callee)
			if !ok || visited[fn.FunctionName] {
				continue
			}
			param := fn.Param(u.argIndex)
			if param == "" {
				continue
			}
			visited[fn.FunctionName] = true
			result.Expanded = append(result.Expanded, fn.FunctionName)

			path := make([]string, len(f.path), len(f.path)+1)
			copy(path, f.path)
			next = append(next, frame{
				scope:    fn.body,
				variable: param,
				depth:    f.depth + 1,
				path:     append(path, fn.FunctionName),
			})
		}
		// first use is explored first
		for i := len(next) - 1; i >= 0; i-- {
			stack = append(stack, next[i])
		}
	}
	return result
}

// uses returns the calls inside scope that pass variable in an argument, in
// document order. Nested functions and catch clauses that rebind the name
// are not searched.
func (t *Tracer) uses(scope *sitter.Node, variable string) []use {
	var out []use
	core.Walk(scope, func(n *sitter.Node) bool {
		if n != scope && t.shadows(n, variable) {
			return false
		}
		if n.Type() != "call_expression" {
			return true
		}
		site := NewCallSite(t.unit, n)
		for i, arg := range site.Args {
			if t.references(arg, variable) {
				out = append(out, use{site: site, argIndex: i})
				break
			}
		}
		return true
	})
	return out
}

// references reports whether the subtree of node mentions name as a value.
func (t *Tracer) references(node *sitter.Node, name string) bool {
	found := false
	core.Walk(node, func(n *sitter.Node) bool {
		if found {
			return false
		}
		if t.shadows(n, name) {
			return false
		}
		switch n.Type() {
		case "identifier", "shorthand_property_identifier":
			if t.unit.Text(n) == name {
				found = true
			}
			return false
		}
		return true
	})
	return found
}

func (t *Tracer) shadows(n *sitter.Node, name string) bool {
	switch n.Type() {
	case "function_declaration", "generator_function_declaration", "function_expression", "function",
		"generator_function", "arrow_function", "method_definition":
		for _, p := range t.index.params(n) {
			if p == name {
				return true
			}
		}
	case "catch_clause":
		if p := n.ChildByFieldName("parameter"); p != nil && p.Type() == "identifier" && t.unit.Text(p) == name {
			return true
		}
	}
	return false
}
