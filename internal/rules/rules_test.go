package rules

import (
	"context"
	"reflect"
	"testing"

	"hybridlint/internal/core"
	"hybridlint/internal/dispatch"
	"hybridlint/internal/registry"
)

const sample = `function report(err) { logger.error("request failed", err); }
try { a(); } catch (e) {}
try { a(); } catch { cleanup(); }
try { a(); } catch (e) { report(e); }
try { a(); } catch (e) { throw new WrappedError("a failed", { cause: e }); }
try { a(); } catch (e) { helper(e); }
try { a(); } catch (e) { console.error(e); }
console.log("debug");
eval(userInput);
const fn = new Function("return 1");
const apiKey = "sk_live_1234567890abcdef";
const password = process.env.PASSWORD;
`

func loadCatalog(t *testing.T) *registry.Registry {
	t.Helper()
	m := registry.NewPluginManager()
	reg, err := m.Load(Catalog(), ".")
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	if sk := m.Skipped(); len(sk) != 0 {
		t.Fatalf("catalog folders skipped: %v", sk)
	}
	return reg
}

func sampleContext(t *testing.T, engine string) (*core.AnalysisContext, core.FileHandle) {
	t.Helper()
	const path = "src/sample.js"
	unit, err := core.ParseSource(context.Background(), path, core.LanguageJavaScript, []byte(sample))
	if err != nil {
		t.Fatal(err)
	}
	idx := core.NewMemoryIndex()
	idx.Add(unit)
	idx.MarkReady()
	return core.NewAnalysisContext(idx, engine), core.FileHandle{Path: path, Language: core.LanguageJavaScript}
}

func run(t *testing.T, reg *registry.Registry, id, engine string) []core.Violation {
	t.Helper()
	rule, ok := reg.Get(id)
	if !ok {
		t.Fatalf("rule %s not in catalog", id)
	}
	actx, file := sampleContext(t, engine)
	got, err := dispatch.New(actx, rule).Run(rule, file, actx)
	if err != nil {
		t.Fatalf("run %s: %v", id, err)
	}
	return got
}

func lines(vs []core.Violation) []int {
	out := make([]int, 0, len(vs))
	for _, v := range vs {
		out = append(out, v.Line)
	}
	return out
}

func TestCatalog(t *testing.T) {
	reg := loadCatalog(t)

	tests := []struct {
		id      string
		kinds   []core.StrategyKind
		origins []string
		sonly   bool
	}{
		{"C029", []core.StrategyKind{core.KindSemantic, core.KindPattern}, []string{registry.OriginBuiltin, registry.OriginPatterns}, false},
		{"C035", []core.StrategyKind{core.KindSemantic}, []string{registry.OriginBuiltin}, true},
		{"C043", []core.StrategyKind{core.KindSemantic, core.KindPattern}, []string{registry.OriginQuery, registry.OriginPatterns}, false},
		{"S001", []core.StrategyKind{core.KindSemantic, core.KindPattern}, []string{registry.OriginQuery, registry.OriginPatterns}, false},
		{"S003", []core.StrategyKind{core.KindPattern}, []string{registry.OriginPatterns}, false},
	}
	if reg.Len() != len(tests) {
		t.Fatalf("expected %d rules, got %d", len(tests), reg.Len())
	}
	for _, tt := range tests {
		d, ok := reg.Get(tt.id)
		if !ok {
			t.Errorf("%s missing", tt.id)
			continue
		}
		var origins []string
		for _, h := range d.Strategies {
			origins = append(origins, h.Origin)
		}
		if !reflect.DeepEqual(tt.kinds, d.Kinds()) || !reflect.DeepEqual(tt.origins, origins) || d.SemanticOnly != tt.sonly {
			t.Errorf("%s: kinds %v origins %v semantic-only %v", tt.id, d.Kinds(), origins, d.SemanticOnly)
		}
	}

	for _, id := range registry.BuiltinIDs() {
		if _, ok := reg.Get(id); !ok {
			t.Errorf("builtin strategy %s has no catalog folder", id)
		}
	}
}

func TestC029_Semantic(t *testing.T) {
	got := run(t, loadCatalog(t), "C029", registry.EngineHeuristic)

	if want := []int{2, 3, 6}; !reflect.DeepEqual(want, lines(got)) {
		t.Fatalf("got lines %v, want %v: %v", lines(got), want, got)
	}
	for _, v := range got {
		if v.StrategyUsed != core.KindSemantic || v.RuleID != "C029" || v.Category != "error-handling" {
			t.Errorf("unexpected stamping: %+v", v)
		}
	}
	if got[2].Message != "Caught error 'e' is neither logged nor rethrown" {
		t.Errorf("unexpected message: %q", got[2].Message)
	}
}

func TestC029_DepthOption(t *testing.T) {
	reg := loadCatalog(t)
	rule, _ := reg.Get("C029")

	actx, file := sampleContext(t, registry.EngineHeuristic)
	actx = core.NewAnalysisContext(actx.Index, registry.EngineHeuristic,
		core.WithRuleOptions(map[string]core.Options{"C029": {"max_depth": 0}}))

	got, err := dispatch.New(actx, rule).Run(rule, file, actx)
	if err != nil {
		t.Fatal(err)
	}
	if want := []int{2, 3, 4, 6}; !reflect.DeepEqual(want, lines(got)) {
		t.Fatalf("with max_depth 0 the report() delegate must not count: got %v", lines(got))
	}
}

func TestC029_PatternEngine(t *testing.T) {
	got := run(t, loadCatalog(t), "C029", registry.EnginePattern)
	if len(got) == 0 {
		t.Fatal("expected pattern fallback findings")
	}
	for _, v := range got {
		if v.StrategyUsed != core.KindPattern {
			t.Errorf("unexpected strategy: %+v", v)
		}
	}
	if got[0].Line != 2 || got[0].Message != "Empty catch block silently swallows the error" {
		t.Errorf("unexpected first finding: %+v", got[0])
	}
}

func TestC035(t *testing.T) {
	got := run(t, loadCatalog(t), "C035", registry.EngineHeuristic)
	if want := []int{7}; !reflect.DeepEqual(want, lines(got)) {
		t.Fatalf("got lines %v, want %v", lines(got), want)
	}
	if got[0].Severity != core.SeverityInfo {
		t.Errorf("unexpected severity %s", got[0].Severity)
	}

	reg := loadCatalog(t)
	rule, _ := reg.Get("C035")
	actx, file := sampleContext(t, registry.EnginePattern)
	if _, err := dispatch.New(actx, rule).Run(rule, file, actx); !dispatch.IsCapabilityMissing(err) {
		t.Fatalf("semantic-only rule under the pattern engine must report capability missing, got %v", err)
	}
}

func TestQueryAndPatternAgree(t *testing.T) {
	reg := loadCatalog(t)
	tests := []struct {
		id   string
		want []int
	}{
		{"C043", []int{8}},
		{"S001", []int{9, 10}},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			semantic := run(t, reg, tt.id, registry.EngineSemantic)
			pattern := run(t, reg, tt.id, registry.EnginePattern)
			if !reflect.DeepEqual(tt.want, lines(semantic)) || !reflect.DeepEqual(tt.want, lines(pattern)) {
				t.Fatalf("semantic %v, pattern %v, want %v", lines(semantic), lines(pattern), tt.want)
			}
			if semantic[0].Column != pattern[0].Column {
				t.Errorf("column mismatch: %d vs %d", semantic[0].Column, pattern[0].Column)
			}
		})
	}
}

func TestS003(t *testing.T) {
	got := run(t, loadCatalog(t), "S003", registry.EngineHeuristic)
	if want := []int{11}; !reflect.DeepEqual(want, lines(got)) {
		t.Fatalf("got lines %v, want %v", lines(got), want)
	}
	if got[0].Severity != core.SeverityError || got[0].Message != "Possible hard-coded secret" {
		t.Errorf("unexpected violation: %+v", got[0])
	}
}
