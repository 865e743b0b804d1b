// Package jsparse extracts structural facts from compiled JS/TS module
// text using tree-sitter grammars. It reports imports, exports, top-level
// shape, and framework markers; it never interprets or executes code.
package jsparse

import (
	"path/filepath"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"

	"github.com/reheat-dev/reheat/internal/errors"
)

// KindModule is the parse kind embedded in AST cache keys.
const KindModule = "module"

// Options configures which call names act as framework markers.
type Options struct {
	// ComponentCalls mark a component definition (e.g. defineComponent).
	ComponentCalls []string
	// MountCalls mark an application mount point (e.g. createApp, mount).
	MountCalls []string
	// ResolutionCalls name the framework's component-resolution call;
	// imported local names referenced inside their arguments are baked
	// into render code and cannot be re-bound.
	ResolutionCalls []string
}

// DefaultOptions returns the marker calls of the default target framework.
func DefaultOptions() Options {
	return Options{
		ComponentCalls:  []string{"defineComponent", "_defineComponent"},
		MountCalls:      []string{"createApp", "mount"},
		ResolutionCalls: []string{"resolveComponent", "_resolveComponent"},
	}
}

// Parser parses compiled module text. It is safe for sequential reuse; a
// fresh tree-sitter parser is created per call because parser state is not
// reentrant.
type Parser struct {
	js  *sitter.Language
	ts  *sitter.Language
	tsx *sitter.Language

	componentCalls  map[string]bool
	mountCalls      map[string]bool
	resolutionCalls map[string]bool
}

// NewParser creates a parser with the given marker options.
func NewParser(opts Options) *Parser {
	return &Parser{
		js:              sitter.NewLanguage(tree_sitter_javascript.Language()),
		ts:              sitter.NewLanguage(tree_sitter_typescript.LanguageTypescript()),
		tsx:             sitter.NewLanguage(tree_sitter_typescript.LanguageTSX()),
		componentCalls:  toSet(opts.ComponentCalls),
		mountCalls:      toSet(opts.MountCalls),
		resolutionCalls: toSet(opts.ResolutionCalls),
	}
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, name := range names {
		set[name] = true
	}
	return set
}

func (p *Parser) languageFor(path string) *sitter.Language {
	switch filepath.Ext(path) {
	case ".ts", ".mts":
		return p.ts
	case ".tsx":
		return p.tsx
	default:
		return p.js
	}
}

// Parse extracts module facts from content. A fatal syntax error is
// reported as a parse-stage error; the returned module is nil in that
// case.
func (p *Parser) Parse(path string, content []byte) (*Module, error) {
	parser := sitter.NewParser()
	defer parser.Close()

	if err := parser.SetLanguage(p.languageFor(path)); err != nil {
		return nil, errors.NewParseError(path, "setting grammar", err)
	}

	tree := parser.Parse(content, nil)
	if tree == nil {
		return nil, errors.NewParseError(path, "parse produced no tree", nil)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		line, col := firstErrorPosition(root)
		return nil, errors.NewParseError(path, "syntax error", nil).WithLocation(line, col)
	}

	mod := &Module{
		Path:           path,
		ResolutionRefs: make(map[string]bool),
	}

	for i := uint(0); i < root.NamedChildCount(); i++ {
		child := root.NamedChild(i)
		if child.Kind() == "comment" {
			continue
		}

		mod.TopLevelCount++

		switch child.Kind() {
		case "import_statement":
			decl := parseImport(child, content)
			mod.Imports = append(mod.Imports, decl)
			mod.ImportExportCount++
		case "export_statement":
			mod.Exports = append(mod.Exports, ExportDecl{
				StartByte: child.StartByte(),
				EndByte:   child.EndByte(),
			})
			mod.ImportExportCount++
		}
	}

	p.scanCalls(root, content, mod)

	return mod, nil
}

// parseImport extracts the source path and specifiers of one import
// statement.
func parseImport(node *sitter.Node, source []byte) ImportDecl {
	decl := ImportDecl{
		StartByte: node.StartByte(),
		EndByte:   node.EndByte(),
	}

	if src := node.ChildByFieldName("source"); src != nil {
		decl.SourcePath = trimQuotes(text(src, source))
	}

	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		if child.Kind() != "import_clause" {
			continue
		}
		for j := uint(0); j < child.NamedChildCount(); j++ {
			clause := child.NamedChild(j)
			switch clause.Kind() {
			case "identifier":
				decl.Specifiers = append(decl.Specifiers, ImportSpecifier{
					LocalName: text(clause, source),
					Kind:      ImportDefault,
				})
			case "namespace_import":
				decl.Specifiers = append(decl.Specifiers, ImportSpecifier{
					LocalName: namespaceName(clause, source),
					Kind:      ImportNamespace,
				})
			case "named_imports":
				decl.Specifiers = append(decl.Specifiers, namedSpecifiers(clause, source)...)
			}
		}
	}

	return decl
}

func namespaceName(node *sitter.Node, source []byte) string {
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		if child.Kind() == "identifier" {
			return text(child, source)
		}
	}
	return ""
}

func namedSpecifiers(node *sitter.Node, source []byte) []ImportSpecifier {
	var specs []ImportSpecifier
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		if child.Kind() != "import_specifier" {
			continue
		}

		exported := ""
		if name := child.ChildByFieldName("name"); name != nil {
			exported = text(name, source)
		}
		local := exported
		if alias := child.ChildByFieldName("alias"); alias != nil {
			local = text(alias, source)
		}

		specs = append(specs, ImportSpecifier{
			LocalName:    local,
			ExportedName: exported,
			Kind:         ImportNamed,
		})
	}
	return specs
}

// scanCalls walks the full tree once collecting framework markers and the
// names referenced inside component-resolution calls.
func (p *Parser) scanCalls(node *sitter.Node, source []byte, mod *Module) {
	if node.Kind() == "call_expression" {
		name := calleeName(node, source)
		switch {
		case p.componentCalls[name]:
			mod.ComponentMarker = true
		case p.mountCalls[name]:
			mod.MountMarker = true
		}
		if p.resolutionCalls[name] {
			if args := node.ChildByFieldName("arguments"); args != nil {
				collectResolutionRefs(args, source, mod.ResolutionRefs)
			}
		}
	}

	for i := uint(0); i < node.NamedChildCount(); i++ {
		p.scanCalls(node.NamedChild(i), source, mod)
	}
}

// calleeName returns the simple name of a call's function: the identifier
// itself, or the property name of a member expression.
func calleeName(call *sitter.Node, source []byte) string {
	fn := call.ChildByFieldName("function")
	if fn == nil {
		return ""
	}
	switch fn.Kind() {
	case "identifier":
		return text(fn, source)
	case "member_expression":
		if prop := fn.ChildByFieldName("property"); prop != nil {
			return text(prop, source)
		}
	}
	return ""
}

// collectResolutionRefs records every name a resolution call can reach:
// plain identifiers, and string-literal arguments, since compiled output
// resolves components by name string as often as by binding.
func collectResolutionRefs(node *sitter.Node, source []byte, refs map[string]bool) {
	switch node.Kind() {
	case "identifier":
		refs[text(node, source)] = true
		return
	case "string_fragment":
		refs[text(node, source)] = true
		return
	}
	for i := uint(0); i < node.NamedChildCount(); i++ {
		collectResolutionRefs(node.NamedChild(i), source, refs)
	}
}

func firstErrorPosition(node *sitter.Node) (int, int) {
	if node.IsError() {
		pos := node.StartPosition()
		return int(pos.Row) + 1, int(pos.Column) + 1
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		if child := node.Child(i); child.HasError() {
			return firstErrorPosition(child)
		}
	}
	pos := node.StartPosition()
	return int(pos.Row) + 1, int(pos.Column) + 1
}

func text(node *sitter.Node, source []byte) string {
	return string(source[node.StartByte():node.EndByte()])
}

func trimQuotes(value string) string {
	return strings.Trim(strings.TrimSpace(value), "\"'`")
}
