package reconciler

import "github.com/reheat-dev/reheat/internal/errors"

// Conventional keys of a map-shaped component instance. The host bridge
// hands the reconciler decoded instance graphs where each instance is a
// map[string]any; absent keys are probed, never required.
const (
	fieldName            = "name"
	fieldInternalName    = "internalName"
	fieldConstructorName = "constructorName"
	fieldImpl            = "impl"
	fieldChildren        = "children"
	fieldActiveBranch    = "activeBranch"
	fieldComponents      = "components"
	fieldProxy           = "proxy"
	fieldForceUpdate     = "forceUpdate"
	fieldRenderDeps      = "renderDeps"
	fieldSchedulerUpdate = "schedulerUpdate"
)

// anonymousPlaceholder is the constructor name minifiers and wrappers
// leave on unnamed component functions. It carries no information, so
// name resolution skips past it.
const anonymousPlaceholder = "anonymous"

// MapAdapter inspects instance graphs where every instance is a
// map[string]any following the bridge's field conventions. It implements
// Adapter by duck-typing: each capability is probed on the instance and
// skipped when absent.
type MapAdapter struct {
	// builtins maps an implementation identity (the instance's "impl"
	// field) to the built-in wrapper it denotes.
	builtins map[string]BuiltinKind
}

// NewMapAdapter returns a MapAdapter recognizing the given built-in
// wrapper implementations by identity.
func NewMapAdapter(builtins map[string]BuiltinKind) *MapAdapter {
	if builtins == nil {
		builtins = map[string]BuiltinKind{}
	}
	return &MapAdapter{builtins: builtins}
}

func instanceOf(h Handle) (map[string]any, bool) {
	m, ok := h.(map[string]any)
	return m, ok
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// Name resolves the display name in order: explicit name, internal name,
// constructor name unless it is the anonymous placeholder, built-in
// wrapper name, and finally "Anonymous".
func (a *MapAdapter) Name(h Handle) string {
	m, ok := instanceOf(h)
	if !ok {
		return "Anonymous"
	}
	if s := stringField(m, fieldName); s != "" {
		return s
	}
	if s := stringField(m, fieldInternalName); s != "" {
		return s
	}
	if s := stringField(m, fieldConstructorName); s != "" && s != anonymousPlaceholder {
		return s
	}
	if k := a.Builtin(h); k != BuiltinNone {
		return k.String()
	}
	return "Anonymous"
}

// Children returns the currently rendered child instances. For a
// suspense wrapper only the active resolved branch is visible; the
// pending branch is never traversed.
func (a *MapAdapter) Children(h Handle) []Handle {
	m, ok := instanceOf(h)
	if !ok {
		return nil
	}
	if a.Builtin(h) == BuiltinSuspense {
		if branch, ok := m[fieldActiveBranch]; ok && branch != nil {
			return []Handle{branch}
		}
		return nil
	}
	raw, ok := m[fieldChildren].([]any)
	if !ok {
		return nil
	}
	children := make([]Handle, 0, len(raw))
	for _, c := range raw {
		if c != nil {
			children = append(children, c)
		}
	}
	return children
}

// ForceRender forces a re-render through the instance's update entry
// points, bumping the render-dependency counter first when one is
// exposed so subscribed views observe the change. The public
// force-update entry alone does not guarantee the framework scheduler
// flushes the re-render, so the scheduler-level update is invoked in
// addition whenever the instance exposes it. Only an instance exposing
// neither cannot be re-rendered in place.
func (a *MapAdapter) ForceRender(h Handle) error {
	m, ok := instanceOf(h)
	if !ok {
		return errors.NewPatchError("", "instance is not inspectable", nil)
	}

	if counter, ok := m[fieldRenderDeps].(*int); ok && counter != nil {
		*counter++
	}

	invoked := false
	if proxy, ok := m[fieldProxy].(map[string]any); ok {
		if update, ok := proxy[fieldForceUpdate].(func()); ok {
			update()
			invoked = true
		}
	}
	if update, ok := m[fieldSchedulerUpdate].(func()); ok {
		update()
		invoked = true
	}
	if !invoked {
		return errors.NewPatchError(a.Name(h), "no update entry point exposed", nil)
	}
	return nil
}

// Subcomponents returns the instance's local sub-component registry.
func (a *MapAdapter) Subcomponents(h Handle) (SubcomponentRegistry, bool) {
	m, ok := instanceOf(h)
	if !ok {
		return nil, false
	}
	reg, ok := m[fieldComponents].(map[string]any)
	if !ok {
		return nil, false
	}
	return mapRegistry(reg), true
}

// Builtin matches the instance's implementation identity against the
// known built-in wrappers.
func (a *MapAdapter) Builtin(h Handle) BuiltinKind {
	m, ok := instanceOf(h)
	if !ok {
		return BuiltinNone
	}
	if impl := stringField(m, fieldImpl); impl != "" {
		if k, ok := a.builtins[impl]; ok {
			return k
		}
	}
	return BuiltinNone
}

type mapRegistry map[string]any

func (r mapRegistry) Lookup(name string) (any, bool) {
	def, ok := r[name]
	return def, ok
}

func (r mapRegistry) Replace(name string, definition any) {
	r[name] = definition
}
