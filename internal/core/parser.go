package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Language identifies the grammar a file is parsed with.
type Language string

const (
	LanguageJavaScript Language = "javascript"
	LanguageTypeScript Language = "typescript"
	LanguageTSX        Language = "tsx"
)

// Family folds grammar variants onto the language names rules declare.
// TSX files are TypeScript for the purpose of rule selection.
func (l Language) Family() Language {
	if l == LanguageTSX {
		return LanguageTypeScript
	}
	return l
}

// Grammar returns the tree-sitter grammar for the language.
func (l Language) Grammar() *sitter.Language {
	switch l {
	case LanguageTypeScript:
		return typescript.GetLanguage()
	case LanguageTSX:
		return tsx.GetLanguage()
	default:
		return javascript.GetLanguage()
	}
}

// ParseLanguage accepts the names used in rule metadata and config files.
func ParseLanguage(s string) (Language, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "javascript", "js":
		return LanguageJavaScript, nil
	case "typescript", "ts":
		return LanguageTypeScript, nil
	case "tsx":
		return LanguageTSX, nil
	default:
		return "", fmt.Errorf("unsupported language: %q", s)
	}
}

// DetectLanguage maps a file extension to its grammar.
func DetectLanguage(filename string) (Language, error) {
	ext := strings.ToLower(filepath.Ext(filename))

	switch ext {
	case ".js", ".jsx", ".mjs", ".cjs":
		return LanguageJavaScript, nil
	case ".ts", ".mts", ".cts":
		return LanguageTypeScript, nil
	case ".tsx":
		return LanguageTSX, nil
	default:
		return "", fmt.Errorf("unsupported file extension: %s", ext)
	}
}

// IsSourceFile reports whether the file has an extension the analyzer parses.
func IsSourceFile(filename string) bool {
	_, err := DetectLanguage(filename)
	return err == nil
}

// parserPool hands out one tree-sitter parser per goroutine and language.
// Parsers are never shared, so parsing takes no global lock.
type parserPool struct {
	pools map[Language]*sync.Pool
}

func newParserPool() *parserPool {
	p := &parserPool{pools: make(map[Language]*sync.Pool)}
	for _, lang := range []Language{LanguageJavaScript, LanguageTypeScript, LanguageTSX} {
		grammar := lang.Grammar()
		p.pools[lang] = &sync.Pool{
			New: func() interface{} {
				parser := sitter.NewParser()
				parser.SetLanguage(grammar)
				return parser
			},
		}
	}
	return p
}

var globalParserPool = newParserPool()

func getParser(lang Language) *sitter.Parser {
	return globalParserPool.pools[lang].Get().(*sitter.Parser)
}

func putParser(lang Language, parser *sitter.Parser) {
	// reset state before reuse
	parser.Reset()
	globalParserPool.pools[lang].Put(parser)
}

// queryCache keeps compiled queries keyed by language and pattern.
// Compiled queries are immutable and safe to share between cursors.
var (
	queryCache   *lru.Cache[string, *sitter.Query]
	queryCacheMu sync.Mutex
)

func init() {
	c, err := lru.New[string, *sitter.Query](512)
	if err != nil {
		panic(err)
	}
	queryCache = c
}

// CompileQuery returns a compiled query for the language, reusing cached ones.
func CompileQuery(pattern string, lang Language) (*sitter.Query, error) {
	key := string(lang) + ":" + pattern
	// fast path, no lock
	if q, ok := queryCache.Get(key); ok {
		return q, nil
	}

	// Miss: lock so concurrent callers compile a pattern once.
	queryCacheMu.Lock()
	defer queryCacheMu.Unlock()

	// double check, another goroutine may have compiled it while we waited
	if q, ok := queryCache.Get(key); ok {
		return q, nil
	}

	q, err := sitter.NewQuery([]byte(pattern), lang.Grammar())
	if err != nil {
		return nil, fmt.Errorf("compile %s query: %w", lang, err)
	}
	queryCache.Add(key, q)
	return q, nil
}

// ParsedUnit is a parsed source file. It is read-only once built.
type ParsedUnit struct {
	FilePath string
	Language Language
	Source   []byte
	Tree     *sitter.Tree
	Root     *sitter.Node
}

// Text returns the source text covered by node.
func (u *ParsedUnit) Text(node *sitter.Node) string {
	if node == nil {
		return ""
	}

	start := node.StartByte()
	end := node.EndByte()

	if end > uint32(len(u.Source)) {
		end = uint32(len(u.Source))
	}
	if start > end {
		return ""
	}
	return string(u.Source[start:end])
}

// ParseFile reads and parses a single file.
func ParseFile(ctx context.Context, filePath string) (*ParsedUnit, error) {
	source, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filePath, err)
	}

	lang, err := DetectLanguage(filePath)
	if err != nil {
		return nil, err
	}

	return ParseSource(ctx, filePath, lang, source)
}

// ParseSource parses in-memory source with the given grammar.
func ParseSource(ctx context.Context, filePath string, lang Language, source []byte) (*ParsedUnit, error) {
	parser := getParser(lang)
	defer putParser(lang, parser)

	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filePath, err)
	}

	return &ParsedUnit{
		FilePath: filePath,
		Language: lang,
		Source:   source,
		Tree:     tree,
		Root:     tree.RootNode(),
	}, nil
}

// QueryMatch is one match of a tree-sitter query with its named captures.
type QueryMatch struct {
	Node     *sitter.Node
	Captures map[string]*sitter.Node
}

// Query runs pattern over the unit and returns the matches in document
// order. Predicates (#eq?, #match?) are applied.
func (u *ParsedUnit) Query(pattern string) ([]QueryMatch, error) {
	query, err := CompileQuery(pattern, u.Language)
	if err != nil {
		return nil, err
	}
	return u.QueryCompiled(query), nil
}

// QueryCompiled runs an already compiled query over the unit.
func (u *ParsedUnit) QueryCompiled(query *sitter.Query) []QueryMatch {
	cursor := sitter.NewQueryCursor()
	defer cursor.Close()

	cursor.Exec(query, u.Root)

	var matches []QueryMatch
	for {
		match, ok := cursor.NextMatch()
		if !ok {
			break
		}
		match = cursor.FilterPredicates(match, u.Source)
		if len(match.Captures) == 0 {
			continue
		}

		qm := QueryMatch{
			Node:     match.Captures[0].Node,
			Captures: make(map[string]*sitter.Node, len(match.Captures)),
		}
		for _, capture := range match.Captures {
			qm.Captures[query.CaptureNameForId(capture.Index)] = capture.Node
		}
		matches = append(matches, qm)
	}
	return matches
}

// Position returns the 1-based line and column of node.
func Position(node *sitter.Node) (line, column int) {
	p := node.StartPoint()
	return int(p.Row) + 1, int(p.Column) + 1
}

// Walk visits node and its descendants in document order using an explicit
// stack. Returning false from visit skips the children of that node.
// The tree is never modified.
func Walk(node *sitter.Node, visit func(*sitter.Node) bool) {
	if node == nil {
		return
	}
	stack := []*sitter.Node{node}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !visit(n) {
			continue
		}
		for i := int(n.ChildCount()) - 1; i >= 0; i-- {
			if child := n.Child(i); child != nil {
				stack = append(stack, child)
			}
		}
	}
}

// NamedChildren returns the named children of node, skipping comments.
func NamedChildren(node *sitter.Node) []*sitter.Node {
	if node == nil {
		return nil
	}
	count := int(node.NamedChildCount())
	children := make([]*sitter.Node, 0, count)
	for i := 0; i < count; i++ {
		child := node.NamedChild(i)
		if child == nil || child.Type() == "comment" {
			continue
		}
		children = append(children, child)
	}
	return children
}
