// Package rules ships the builtin rule catalog: rule folders embedded from
// catalog/ and the Go strategies that bind to them by rule ID.
package rules

import (
	"embed"
	"io/fs"

	sitter "github.com/smacker/go-tree-sitter"

	"hybridlint/internal/callgraph"
	"hybridlint/internal/core"
	"hybridlint/internal/registry"
)

//go:embed catalog
var catalogFS embed.FS

// Catalog returns the embedded rule folders rooted at ".".
func Catalog() fs.FS {
	sub, err := fs.Sub(catalogFS, "catalog")
	if err != nil {
		panic(err)
	}
	return sub
}

func init() {
	registry.RegisterBuiltin("C029", core.KindSemantic, func() (core.Strategy, error) {
		return NewCatchHandledStrategy(), nil
	})
	registry.RegisterBuiltin("C035", core.KindSemantic, func() (core.Strategy, error) {
		return NewErrorContextStrategy(), nil
	})
}

// sinkFromOptions builds the tracer sink configured for a rule.
func sinkFromOptions(opts core.Options) callgraph.Sink {
	logger := callgraph.NewLoggerSink(
		opts.Strings("sink_objects", callgraph.DefaultLoggerObjects),
		opts.Strings("sink_methods", callgraph.DefaultLoggerMethods),
	)
	funcs := opts.Strings("sink_functions", nil)
	if len(funcs) == 0 {
		return logger
	}
	return callgraph.AnySink(logger, callgraph.CalleeSink(funcs...))
}

// catchClauses returns the catch clauses of the unit in document order.
func catchClauses(unit *core.ParsedUnit) []*sitter.Node {
	var out []*sitter.Node
	core.Walk(unit.Root, func(n *sitter.Node) bool {
		if n.Type() == "catch_clause" {
			out = append(out, n)
		}
		return true
	})
	return out
}

func isFunctionNode(n *sitter.Node) bool {
	switch n.Type() {
	case "function_declaration", "generator_function_declaration", "function_expression", "function",
		"generator_function", "arrow_function", "method_definition":
		return n.IsNamed()
	}
	return false
}
