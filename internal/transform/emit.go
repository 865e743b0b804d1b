package transform

import (
	"fmt"
	"strings"

	"github.com/reheat-dev/reheat/internal/jsparse"
)

// emit renders the instrumented module: preserved static imports, forward
// binding declarations, the original body and exports, and one deferred
// async initializer that performs the initial cache-busted imports and
// registers per-module reload closures.
func (t *Transformer) emit(plan *Plan, token string) string {
	var b strings.Builder

	if !plan.Classification.PatchEligible() {
		b.WriteString(ReloadMarker)
		b.WriteByte('\n')
	}

	for _, imp := range plan.Preserved {
		b.WriteString(imp)
		b.WriteByte('\n')
	}

	for _, imp := range plan.Rewritten {
		for _, binding := range imp.Bindings {
			fmt.Fprintf(&b, "let %s;\n", binding.LocalName)
		}
	}
	b.WriteByte('\n')

	if plan.Body != "" {
		b.WriteString(plan.Body)
		b.WriteByte('\n')
	}
	if plan.Exports != "" {
		b.WriteString(plan.Exports)
		b.WriteByte('\n')
	}

	b.WriteByte('\n')
	t.emitInitializer(&b, plan, token)

	return b.String()
}

func (t *Transformer) emitInitializer(b *strings.Builder, plan *Plan, token string) {
	b.WriteString(";(async () => {\n")
	b.WriteString("  let __mod;\n")

	// Initial load, in declaration order so original module evaluation
	// order is preserved.
	for _, imp := range plan.Rewritten {
		fmt.Fprintf(b, "  __mod = await import(%q);\n", bustedPath(imp.SourcePath, token))
		writeAssignments(b, "  ", imp.Bindings)
	}

	// Registry shape must stay identical to the served bootstrap's: the
	// first script to evaluate wins the || and defines it for both.
	global := "globalThis." + t.registryGlobal
	fmt.Fprintf(b, "  const __registry = %s = %s || {\n", global, global)
	b.WriteString("    modules: Object.create(null),\n")
	b.WriteString("    async reload() {\n")
	b.WriteString("      for (const key of Object.keys(this.modules)) {\n")
	b.WriteString("        await this.modules[key]();\n")
	b.WriteString("      }\n")
	b.WriteString("    },\n")
	b.WriteString("    async reloadPath(path) {\n")
	b.WriteString("      const loader = this.modules[path];\n")
	b.WriteString("      if (!loader) return false;\n")
	b.WriteString("      await loader();\n")
	b.WriteString("      return true;\n")
	b.WriteString("    },\n")
	b.WriteString("  };\n")

	for _, imp := range plan.Rewritten {
		fmt.Fprintf(b, "  __registry.modules[%q] = async () => {\n", imp.SourcePath)
		fmt.Fprintf(b, "    const __mod = await import(%q + Date.now());\n", imp.SourcePath+"?t=")
		writeAssignments(b, "    ", imp.Bindings)
		b.WriteString("  };\n")
	}

	b.WriteString("})();\n")
}

// writeAssignments re-applies __mod onto the forward-declared bindings,
// re-destructuring aliased named exports by their original export name.
func writeAssignments(b *strings.Builder, indent string, bindings []Binding) {
	for _, binding := range bindings {
		switch binding.Kind {
		case jsparse.ImportDefault:
			fmt.Fprintf(b, "%s%s = __mod.default;\n", indent, binding.LocalName)
		case jsparse.ImportNamespace:
			fmt.Fprintf(b, "%s%s = __mod;\n", indent, binding.LocalName)
		case jsparse.ImportNamed:
			fmt.Fprintf(b, "%s%s = __mod.%s;\n", indent, binding.LocalName, binding.ExportedName)
		}
	}
}

func bustedPath(source, token string) string {
	return source + "?t=" + token
}

func joinStatements(statements []string) string {
	parts := make([]string, 0, len(statements))
	for _, s := range statements {
		s = strings.TrimSpace(s)
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}

func trimBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := 0
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			blank++
			if blank > 1 {
				continue
			}
		} else {
			blank = 0
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
