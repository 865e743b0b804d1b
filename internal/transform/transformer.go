// Package transform rewrites static local imports in compiled module text
// into dynamic, hot-swappable bindings registered under a process-wide
// reload registry emitted into the module itself.
package transform

import (
	"sort"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/reheat-dev/reheat/internal/jsparse"
)

// DefaultRegistryGlobal is the name of the global registry object the
// emitted runtime hook installs.
const DefaultRegistryGlobal = "__reheat__"

// ReloadMarker prefixes emitted output for files ineligible for partial
// patching.
const ReloadMarker = "/* reheat:reload-only */"

// Options configures the transformer.
type Options struct {
	// CompiledExt is the extension of locally compiled modules; imports
	// not ending in it are preserved as static.
	CompiledExt string
	// RegistryGlobal names the global registry object. Defaults to
	// DefaultRegistryGlobal.
	RegistryGlobal string
}

// Binding is one local name rewritten to a hot-swappable `let`.
type Binding struct {
	LocalName    string
	ExportedName string
	SourcePath   string
	Kind         jsparse.ImportKind
}

// RewrittenImport groups the bindings of one rewritten import statement.
type RewrittenImport struct {
	SourcePath string
	Bindings   []Binding
}

// Plan is the computed transform: which imports stay static, which
// bindings become dynamic, the split body/export code, and the reload
// classification.
type Plan struct {
	Preserved      []string
	Rewritten      []RewrittenImport
	Defaults       []Binding
	Namespaces     []Binding
	Named          []Binding
	Body           string
	Exports        string
	Classification Classification
	PassThrough    bool
}

// Transformer rewrites compiled module text. Instances are stateless and
// safe for concurrent use.
type Transformer struct {
	compiledExt    string
	registryGlobal string
}

// NewTransformer creates a transformer.
func NewTransformer(opts Options) *Transformer {
	ext := opts.CompiledExt
	if ext == "" {
		ext = ".js"
	}
	global := opts.RegistryGlobal
	if global == "" {
		global = DefaultRegistryGlobal
	}
	return &Transformer{compiledExt: ext, registryGlobal: global}
}

// BuildPlan decides, for each top-level import, whether it is preserved as
// static or rewritten to a dynamic binding, and splits the remaining text
// into body and export code.
func (t *Transformer) BuildPlan(content []byte, mod *jsparse.Module) *Plan {
	plan := &Plan{
		Classification: Classify(mod, t.compiledExt),
	}

	type cut struct{ start, end uint }
	var cuts []cut

	for _, imp := range mod.Imports {
		if t.preserveImport(imp, mod) {
			plan.Preserved = append(plan.Preserved, string(content[imp.StartByte:imp.EndByte]))
			cuts = append(cuts, cut{imp.StartByte, imp.EndByte})
			continue
		}

		rewritten := RewrittenImport{SourcePath: imp.SourcePath}
		for _, spec := range imp.Specifiers {
			binding := Binding{
				LocalName:    spec.LocalName,
				ExportedName: spec.ExportedName,
				SourcePath:   imp.SourcePath,
				Kind:         spec.Kind,
			}
			rewritten.Bindings = append(rewritten.Bindings, binding)
			switch spec.Kind {
			case jsparse.ImportDefault:
				plan.Defaults = append(plan.Defaults, binding)
			case jsparse.ImportNamespace:
				plan.Namespaces = append(plan.Namespaces, binding)
			case jsparse.ImportNamed:
				plan.Named = append(plan.Named, binding)
			}
		}
		plan.Rewritten = append(plan.Rewritten, rewritten)
		cuts = append(cuts, cut{imp.StartByte, imp.EndByte})
	}

	if len(plan.Rewritten) == 0 {
		plan.PassThrough = true
		return plan
	}

	var exports []string
	for _, exp := range mod.Exports {
		exports = append(exports, string(content[exp.StartByte:exp.EndByte]))
		cuts = append(cuts, cut{exp.StartByte, exp.EndByte})
	}
	plan.Exports = joinStatements(exports)

	sort.Slice(cuts, func(i, j int) bool { return cuts[i].start < cuts[j].start })

	var body []byte
	prev := uint(0)
	for _, c := range cuts {
		if c.start > prev {
			body = append(body, content[prev:c.start]...)
		}
		if c.end > prev {
			prev = c.end
		}
	}
	if prev < uint(len(content)) {
		body = append(body, content[prev:]...)
	}
	plan.Body = trimBlankLines(string(body))

	return plan
}

// preserveImport reports whether an import must stay static: external
// sources, and any import whose local name is referenced through the
// framework's component-resolution call. Such bindings are baked into
// generated render code by name and cannot be re-bound through a variable
// swap.
func (t *Transformer) preserveImport(imp jsparse.ImportDecl, mod *jsparse.Module) bool {
	if !jsparse.IsLocalPath(imp.SourcePath, t.compiledExt) {
		return true
	}
	for _, spec := range imp.Specifiers {
		if mod.ResolutionRefs[spec.LocalName] {
			return true
		}
	}
	// A side-effect import of a local module carries no bindings to
	// rewrite.
	return len(imp.Specifiers) == 0
}

// Transform produces the instrumented module text. A module with zero
// rewritable imports degenerates to an unwrapped pass-through.
func (t *Transformer) Transform(content []byte, mod *jsparse.Module) (string, *Plan) {
	plan := t.BuildPlan(content, mod)
	if plan.PassThrough {
		return string(content), plan
	}

	token := strconv.FormatUint(xxhash.Sum64(content), 16)
	return t.emit(plan, token), plan
}
