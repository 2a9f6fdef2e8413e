package callgraph

import (
	"context"
	"reflect"
	"testing"

	"github.com/sirkon/deepequal"
	sitter "github.com/smacker/go-tree-sitter"

	"hybridlint/internal/core"
)

func parse(t *testing.T, lang core.Language, src string) *core.ParsedUnit {
	t.Helper()
	unit, err := core.ParseSource(context.Background(), "test", lang, []byte(src))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return unit
}

// firstCatchBody returns the body of the first catch clause in the file.
func firstCatchBody(t *testing.T, unit *core.ParsedUnit) *sitter.Node {
	t.Helper()
	var body *sitter.Node
	core.Walk(unit.Root, func(n *sitter.Node) bool {
		if body != nil {
			return false
		}
		if n.Type() == "catch_clause" {
			body = n.ChildByFieldName("body")
			return false
		}
		return true
	})
	if body == nil {
		t.Fatal("no catch clause in source")
	}
	return body
}

func traceCatch(t *testing.T, src string, maxDepth int) TraceResult {
	t.Helper()
	unit := parse(t, core.LanguageJavaScript, src)
	return Trace(TraceQuery{
		TargetVariable: "e",
		Sink:           LoggerSink(),
		MaxDepth:       maxDepth,
		Origin:         firstCatchBody(t, unit),
	}, unit)
}

func TestTrace_DirectSink(t *testing.T) {
	got := traceCatch(t, `
try {
  run();
} catch (e) {
  logger.error(e);
}
`, DefaultMaxDepth)

	want := TraceResult{ReachesSink: true, DepthReached: 0}
	if !reflect.DeepEqual(want, got) {
		deepequal.SideBySide(t, "result", want, got)
		t.Fail()
	}
}

func TestTrace_UnresolvedDelegate(t *testing.T) {
	got := traceCatch(t, `
try {
  run();
} catch (e) {
  helper(e);
}
`, DefaultMaxDepth)

	if got.ReachesSink {
		t.Fatal("unresolved callee must not reach the sink")
	}
	if len(got.Expanded) != 0 {
		t.Fatalf("nothing should be expanded, got %v", got.Expanded)
	}
}

func TestTrace_DepthBound(t *testing.T) {
	src := `
function outer(err) {
  inner(err);
}

function inner(x) {
  console.error("failed", x);
}

try {
  run();
} catch (e) {
  outer(e);
}
`
	if got := traceCatch(t, src, 1); got.ReachesSink {
		t.Fatalf("max depth 1 must not reach a depth 2 sink: %+v", got)
	}

	got := traceCatch(t, src, 2)
	want := TraceResult{
		ReachesSink:  true,
		DepthReached: 2,
		Path:         []string{"outer", "inner"},
		Expanded:     []string{"outer", "inner"},
	}
	if !reflect.DeepEqual(want, got) {
		deepequal.SideBySide(t, "result", want, got)
		t.Fail()
	}
}

func TestTrace_ZeroDepthChecksDirectUsesOnly(t *testing.T) {
	src := `
function report(err) { logger.warn(err); }
try { run(); } catch (e) { report(e); }
`
	if got := traceCatch(t, src, 0); got.ReachesSink || len(got.Expanded) != 0 {
		t.Fatalf("depth 0 must not expand: %+v", got)
	}
	if got := traceCatch(t, src, 1); !got.ReachesSink || got.DepthReached != 1 {
		t.Fatalf("depth 1 must reach the sink: %+v", got)
	}
}

func TestTrace_MutualRecursionTerminates(t *testing.T) {
	src := `
function a(x) { b(x); }
function b(y) { a(y); }
try { run(); } catch (e) { a(e); }
`
	got := traceCatch(t, src, 10)
	if got.ReachesSink {
		t.Fatal("recursion without a sink must not reach it")
	}
	if !reflect.DeepEqual([]string{"a", "b"}, got.Expanded) {
		t.Fatalf("each function must be expanded once, got %v", got.Expanded)
	}
}

func TestTrace_VisitedIsPerQuery(t *testing.T) {
	unit := parse(t, core.LanguageJavaScript, `
function handle(err) { logger.error(err); }
try { one(); } catch (e) { handle(e); }
`)
	tracer := NewTracer(unit)
	q := TraceQuery{TargetVariable: "e", Sink: LoggerSink(), MaxDepth: 2, Origin: firstCatchBody(t, unit)}

	for i := 0; i < 2; i++ {
		if got := tracer.Trace(q); !got.ReachesSink {
			t.Fatalf("query %d: expected sink, visited state leaked between queries", i)
		}
	}
}

func TestTrace_ArgumentPositionMapping(t *testing.T) {
	src := `
function wrap(prefix, cause) {
  logger.error(prefix);
}
try { run(); } catch (e) { wrap("ctx", e); }
`
	if got := traceCatch(t, src, 2); got.ReachesSink {
		t.Fatalf("only the mapped parameter may be traced: %+v", got)
	}

	src = `
function wrap(prefix, cause) {
  logger.error(prefix, cause);
}
try { run(); } catch (e) { wrap("ctx", e); }
`
	if got := traceCatch(t, src, 2); !got.ReachesSink {
		t.Fatalf("expected sink through mapped parameter: %+v", got)
	}
}

func TestTrace_Shadowing(t *testing.T) {
	src := `
try { run(); } catch (e) {
  items.forEach((e) => logger.info(e));
}
`
	if got := traceCatch(t, src, 2); got.ReachesSink {
		t.Fatalf("a rebound name is a different value: %+v", got)
	}
}

func TestTrace_DeclarationForms(t *testing.T) {
	tests := []struct {
		name string
		lang core.Language
		src  string
	}{
		{
			name: "const arrow",
			lang: core.LanguageJavaScript,
			src: `
const report = (err) => console.error(err);
try { run(); } catch (e) { report(e); }
`,
		},
		{
			name: "const function expression",
			lang: core.LanguageJavaScript,
			src: `
const report = function (err) { log.warn(err); };
try { run(); } catch (e) { report(e); }
`,
		},
		{
			name: "class method",
			lang: core.LanguageJavaScript,
			src: `
class Service {
  report(err) { this.logger.error(err); }
  run() {
    try { work(); } catch (e) { this.report(e); }
  }
}
`,
		},
		{
			name: "object shorthand",
			lang: core.LanguageJavaScript,
			src: `
const handlers = {
  report(err) { pino.error(err); },
};
try { run(); } catch (e) { handlers.report(e); }
`,
		},
		{
			name: "object pair",
			lang: core.LanguageJavaScript,
			src: `
const handlers = {
  report: function (err) { winston.error(err); },
};
try { run(); } catch (e) { handlers.report(e); }
`,
		},
		{
			name: "typescript typed parameters",
			lang: core.LanguageTypeScript,
			src: `
function report(prefix: string, err?: Error): void {
  logger.error(prefix, err);
}
try { run(); } catch (e) { report("x", e as Error); }
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unit := parse(t, tt.lang, tt.src)
			got := Trace(TraceQuery{
				TargetVariable: "e",
				Sink:           LoggerSink(),
				MaxDepth:       DefaultMaxDepth,
				Origin:         firstCatchBody(t, unit),
			}, unit)
			if !got.ReachesSink || got.DepthReached != 1 {
				t.Fatalf("expected sink at depth 1, got %+v", got)
			}
		})
	}
}

func TestBuildIndex(t *testing.T) {
	unit := parse(t, core.LanguageJavaScript, `
function first(a, b = 1, ...rest) {}
function first(x) {}
let notConst = () => {};
const arrow = x => x;
const obj = { method({ a }, b) {}, "quoted": () => {} };
class K { m(p) {} }
`)
	ix := BuildIndex(unit)

	tests := []struct {
		name   string
		kind   DeclKind
		params []string
	}{
		{"first", KindFunctionDeclaration, []string{"a", "b", "rest"}},
		{"arrow", KindConstFunction, []string{"x"}},
		{"method", KindObjectMethod, []string{"", "b"}},
		{"quoted", KindPairFunction, nil},
		{"m", KindMethodDefinition, []string{"p"}},
	}
	for _, tt := range tests {
		fn, ok := ix.Lookup(tt.name)
		if !ok {
			t.Errorf("%s: not indexed", tt.name)
			continue
		}
		if fn.Kind != tt.kind || !fn.Resolved {
			t.Errorf("%s: got kind %s resolved %v", tt.name, fn.Kind, fn.Resolved)
		}
		if !reflect.DeepEqual(tt.params, fn.Params) {
			t.Errorf("%s: got params %q, want %q", tt.name, fn.Params, tt.params)
		}
	}

	if _, ok := ix.Lookup("notConst"); ok {
		t.Error("let bindings must not be indexed")
	}
	if n := ix.Resolve("missing"); n.Resolved || n.FunctionName != "missing" {
		t.Errorf("unexpected unresolved node: %+v", n)
	}
	if ix.Len() != 5 {
		t.Errorf("expected 5 functions, got %d", ix.Len())
	}
}

func TestSinks(t *testing.T) {
	unit := parse(t, core.LanguageJavaScript, `
console.error(e);
app.logger.warn(e);
reportError(e);
metrics.count(e);
`)
	var sites []CallSite
	core.Walk(unit.Root, func(n *sitter.Node) bool {
		if n.Type() == "call_expression" {
			sites = append(sites, NewCallSite(unit, n))
		}
		return true
	})
	if len(sites) != 4 {
		t.Fatalf("expected 4 call sites, got %d", len(sites))
	}

	logger := LoggerSink()
	custom := CalleeSink("reportError", "metrics.count")
	want := []struct{ logger, custom bool }{
		{true, false},
		{true, false},
		{false, true},
		{false, true},
	}
	for i, site := range sites {
		if got := logger(site); got != want[i].logger {
			t.Errorf("%s: logger sink = %v", site.FullName(), got)
		}
		if got := custom(site); got != want[i].custom {
			t.Errorf("%s: callee sink = %v", site.FullName(), got)
		}
		if !AnySink(logger, custom)(site) {
			t.Errorf("%s: any sink must match", site.FullName())
		}
	}
}
