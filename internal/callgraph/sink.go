package callgraph

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"hybridlint/internal/core"
)

// CallSite is a call expression seen by the tracer.
type CallSite struct {
	Node *sitter.Node
	// Callee is the name used to resolve the call locally: the identifier of
	// a plain call or the property of a member call.
	Callee string
	// Object is the receiver text of a member call, e.g. "this.logger".
	Object string
	// Method is the property of a member call.
	Method string
	Args   []*sitter.Node
}

// FullName returns "object.method" for member calls and the callee otherwise.
func (c CallSite) FullName() string {
	if c.Object != "" {
		return c.Object + "." + c.Method
	}
	return c.Callee
}

// NewCallSite describes a call_expression node.
func NewCallSite(unit *core.ParsedUnit, call *sitter.Node) CallSite {
	site := CallSite{Node: call}

	fn := call.ChildByFieldName("function")
	if fn != nil {
		switch fn.Type() {
		case "identifier":
			site.Callee = unit.Text(fn)
		case "member_expression":
			if prop := fn.ChildByFieldName("property"); prop != nil {
				site.Method = unit.Text(prop)
				site.Callee = site.Method
			}
			if obj := fn.ChildByFieldName("object"); obj != nil {
				site.Object = unit.Text(obj)
			}
		}
	}

	if args := call.ChildByFieldName("arguments"); args != nil {
		if args.Type() == "arguments" {
			site.Args = core.NamedChildren(args)
		} else {
			// tagged template
			site.Args = []*sitter.Node{args}
		}
	}
	return site
}

// Sink decides whether a call site is a terminal, observable effect.
type Sink func(site CallSite) bool

// Default receivers and methods recognized as logging calls.
var (
	DefaultLoggerObjects = []string{"console", "logger", "log", "winston", "pino", "bunyan", "this.logger", "this.log"}
	DefaultLoggerMethods = []string{"error", "warn", "info", "debug", "log", "fatal", "trace"}
)

// LoggerSink matches member calls on a known logger receiver. A receiver
// matches on its full text or on its last segment, so app.logger.error
// is a logger call when "logger" is listed.
func LoggerSink() Sink {
	return NewLoggerSink(DefaultLoggerObjects, DefaultLoggerMethods)
}

// NewLoggerSink builds a logger sink from receiver and method lists.
func NewLoggerSink(objects, methods []string) Sink {
	objSet := toSet(objects)
	methodSet := toSet(methods)
	return func(site CallSite) bool {
		if site.Object == "" || !methodSet[site.Method] {
			return false
		}
		if objSet[site.Object] {
			return true
		}
		if i := strings.LastIndexByte(site.Object, '.'); i >= 0 {
			return objSet[site.Object[i+1:]]
		}
		return false
	}
}

// CalleeSink matches calls by callee name or full "object.method" name.
func CalleeSink(names ...string) Sink {
	set := toSet(names)
	return func(site CallSite) bool {
		return set[site.FullName()] || (site.Object == "" && set[site.Callee])
	}
}

// AnySink matches when any of the sinks matches.
func AnySink(sinks ...Sink) Sink {
	return func(site CallSite) bool {
		for _, s := range sinks {
			if s != nil && s(site) {
				return true
			}
		}
		return false
	}
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			set[it] = true
		}
	}
	return set
}
