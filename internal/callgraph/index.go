package callgraph

import (
	sitter "github.com/smacker/go-tree-sitter"

	"hybridlint/internal/core"
)

// DeclKind is the declaration form that defined a local function.
type DeclKind string

const (
	KindFunctionDeclaration DeclKind = "function_declaration"
	KindMethodDefinition    DeclKind = "method_definition"
	KindObjectMethod        DeclKind = "object_method"
	KindConstFunction       DeclKind = "const_function"
	KindPairFunction        DeclKind = "pair_function"
)

// Span is a half-open byte range in the source.
type Span struct {
	Start uint32
	End   uint32
}

// CallGraphNode is a function defined in the file under analysis. Lookups
// for names with no local definition yield a node with Resolved false.
type CallGraphNode struct {
	FunctionName string
	BodySpan     Span
	Resolved     bool
	Params       []string
	Kind         DeclKind

	body *sitter.Node
}

// Param returns the parameter name at position i, or "" when there is no
// such named parameter.
func (n *CallGraphNode) Param(i int) string {
	if i < 0 || i >= len(n.Params) {
		return ""
	}
	return n.Params[i]
}

// Index maps function names to their local definitions.
type Index struct {
	unit  *core.ParsedUnit
	funcs map[string]*CallGraphNode
}

// BuildIndex collects every supported function definition of the unit in a
// single walk. When a name is defined more than once the first definition in
// document order wins.
func BuildIndex(unit *core.ParsedUnit) *Index {
	ix := &Index{unit: unit, funcs: make(map[string]*CallGraphNode)}

	core.Walk(unit.Root, func(n *sitter.Node) bool {
		switch n.Type() {
		case "function_declaration", "generator_function_declaration":
			ix.add(n.ChildByFieldName("name"), n, KindFunctionDeclaration)
		case "method_definition":
			kind := KindMethodDefinition
			if p := n.Parent(); p != nil && p.Type() == "object" {
				kind = KindObjectMethod
			}
			ix.add(n.ChildByFieldName("name"), n, kind)
		case "lexical_declaration":
			if !isConst(n) {
				return true
			}
			for _, decl := range core.NamedChildren(n) {
				if decl.Type() != "variable_declarator" {
					continue
				}
				if value := decl.ChildByFieldName("value"); isFunctionValue(value) {
					ix.add(decl.ChildByFieldName("name"), value, KindConstFunction)
				}
			}
		case "pair":
			if value := n.ChildByFieldName("value"); isFunctionValue(value) {
				ix.add(n.ChildByFieldName("key"), value, KindPairFunction)
			}
		}
		return true
	})
	return ix
}

func isConst(decl *sitter.Node) bool {
	if kind := decl.ChildByFieldName("kind"); kind != nil {
		return kind.Type() == "const"
	}
	return decl.ChildCount() > 0 && decl.Child(0).Type() == "const"
}

func isFunctionValue(n *sitter.Node) bool {
	if n == nil {
		return false
	}
	switch n.Type() {
	case "arrow_function", "function_expression", "function", "generator_function":
		return true
	}
	return false
}

func (ix *Index) add(nameNode, fn *sitter.Node, kind DeclKind) {
	name := ix.name(nameNode)
	if name == "" {
		return
	}
	if _, ok := ix.funcs[name]; ok {
		return
	}
	body := fn.ChildByFieldName("body")
	if body == nil {
		// signatures and abstract methods
		return
	}
	ix.funcs[name] = &CallGraphNode{
		FunctionName: name,
		BodySpan:     Span{Start: body.StartByte(), End: body.EndByte()},
		Resolved:     true,
		Params:       ix.params(fn),
		Kind:         kind,
		body:         body,
	}
}

func (ix *Index) name(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	switch n.Type() {
	case "identifier", "property_identifier", "private_property_identifier", "shorthand_property_identifier":
		return ix.unit.Text(n)
	case "string":
		text := ix.unit.Text(n)
		if len(text) >= 2 {
			return text[1 : len(text)-1]
		}
	}
	return ""
}

func (ix *Index) params(fn *sitter.Node) []string {
	if single := fn.ChildByFieldName("parameter"); single != nil {
		return []string{ix.paramName(single)}
	}
	list := fn.ChildByFieldName("parameters")
	if list == nil {
		return nil
	}
	var out []string
	for _, p := range core.NamedChildren(list) {
		out = append(out, ix.paramName(p))
	}
	return out
}

// paramName returns the bound identifier of a parameter, or "" for
// destructuring patterns that bind no single name.
func (ix *Index) paramName(p *sitter.Node) string {
	for p != nil {
		switch p.Type() {
		case "identifier":
			return ix.unit.Text(p)
		case "assignment_pattern":
			p = p.ChildByFieldName("left")
		case "required_parameter", "optional_parameter":
			p = p.ChildByFieldName("pattern")
		case "rest_pattern":
			if p.NamedChildCount() == 0 {
				return ""
			}
			p = p.NamedChild(0)
		default:
			return ""
		}
	}
	return ""
}

// Lookup returns the local definition of name.
func (ix *Index) Lookup(name string) (*CallGraphNode, bool) {
	fn, ok := ix.funcs[name]
	return fn, ok
}

// Resolve returns the definition of name, or an unresolved node.
func (ix *Index) Resolve(name string) CallGraphNode {
	if fn, ok := ix.funcs[name]; ok {
		return *fn
	}
	return CallGraphNode{FunctionName: name}
}

// Len returns the number of indexed functions.
func (ix *Index) Len() int {
	return len(ix.funcs)
}
