package reconciler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testBuiltins = map[string]BuiltinKind{
	"TransitionImpl": BuiltinTransition,
	"KeepAliveImpl":  BuiltinKeepAlive,
	"SuspenseImpl":   BuiltinSuspense,
}

func testAdapter() *MapAdapter {
	return NewMapAdapter(testBuiltins)
}

func instance(name string, children ...any) map[string]any {
	m := map[string]any{fieldChildren: children}
	if name != "" {
		m[fieldName] = name
	}
	return m
}

// withUpdate gives the instance a public force-update entry and a
// render-dependency counter so patches are observable in tests.
func withUpdate(m map[string]any) (map[string]any, *int, *int) {
	deps := new(int)
	calls := new(int)
	m[fieldRenderDeps] = deps
	m[fieldProxy] = map[string]any{
		fieldForceUpdate: func() { *calls++ },
	}
	return m, deps, calls
}

type fakeModule struct {
	def        any
	hasDefault bool
	installOK  bool
	installed  string
}

func (m *fakeModule) DefaultExport() (any, bool) { return m.def, m.hasDefault }

func (m *fakeModule) Install(globalName string) bool {
	if m.installOK {
		m.installed = globalName
	}
	return m.installOK
}

type fakeLoader struct {
	mod    *fakeModule
	err    error
	tokens []string
}

func (l *fakeLoader) Load(_ context.Context, _, token string) (Module, error) {
	l.tokens = append(l.tokens, token)
	if l.err != nil {
		return nil, l.err
	}
	return l.mod, nil
}

func TestMapAdapterNameResolution(t *testing.T) {
	a := testAdapter()

	tests := []struct {
		name     string
		instance map[string]any
		expected string
	}{
		{
			name:     "explicit name wins",
			instance: map[string]any{fieldName: "Header", fieldInternalName: "Hdr", fieldConstructorName: "HeaderImpl"},
			expected: "Header",
		},
		{
			name:     "internal name as fallback",
			instance: map[string]any{fieldInternalName: "Hdr", fieldConstructorName: "HeaderImpl"},
			expected: "Hdr",
		},
		{
			name:     "constructor name as fallback",
			instance: map[string]any{fieldConstructorName: "HeaderImpl"},
			expected: "HeaderImpl",
		},
		{
			name:     "anonymous constructor placeholder rejected",
			instance: map[string]any{fieldConstructorName: anonymousPlaceholder},
			expected: "Anonymous",
		},
		{
			name:     "builtin matched by implementation identity",
			instance: map[string]any{fieldImpl: "KeepAliveImpl"},
			expected: "KeepAlive",
		},
		{
			name:     "nothing resolvable",
			instance: map[string]any{},
			expected: "Anonymous",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, a.Name(tt.instance))
		})
	}
}

func TestMapAdapterSuspenseActiveBranchOnly(t *testing.T) {
	a := testAdapter()

	active := instance("Resolved")
	pending := instance("Pending")
	suspense := map[string]any{
		fieldImpl:         "SuspenseImpl",
		fieldActiveBranch: active,
		fieldChildren:     []any{pending},
	}

	children := a.Children(suspense)
	require.Len(t, children, 1)
	assert.Equal(t, "Resolved", a.Name(children[0]))
}

func TestMapAdapterForceRenderPolicy(t *testing.T) {
	a := testAdapter()

	t.Run("public update entry bumps render deps", func(t *testing.T) {
		inst, deps, calls := withUpdate(instance("Widget"))
		require.NoError(t, a.ForceRender(inst))
		assert.Equal(t, 1, *deps)
		assert.Equal(t, 1, *calls)
	})

	t.Run("scheduler update invoked alongside public entry", func(t *testing.T) {
		inst, _, calls := withUpdate(instance("Widget"))
		scheduled := false
		inst[fieldSchedulerUpdate] = func() { scheduled = true }
		require.NoError(t, a.ForceRender(inst))
		assert.Equal(t, 1, *calls)
		assert.True(t, scheduled, "scheduler flush must not be skipped when the public entry exists")
	})

	t.Run("scheduler update alone suffices", func(t *testing.T) {
		called := false
		inst := instance("Widget")
		inst[fieldSchedulerUpdate] = func() { called = true }
		require.NoError(t, a.ForceRender(inst))
		assert.True(t, called)
	})

	t.Run("no update entry is an error", func(t *testing.T) {
		err := a.ForceRender(instance("Widget"))
		assert.Error(t, err)
	})
}

func TestBuildTreeFindsAllPlacements(t *testing.T) {
	a := testAdapter()

	// Button mounted in two different parents.
	root := instance("App",
		instance("Sidebar", instance("Button")),
		instance("Toolbar", instance("Button")),
	)

	tree, err := BuildTree(a, root)
	require.NoError(t, err)
	assert.Equal(t, 5, tree.Len())

	matches := tree.FindByName("Button")
	require.Len(t, matches, 2)
	for _, idx := range matches {
		assert.Equal(t, "Button", tree.Node(idx).Name)
	}
}

func TestBuildTreeRejectsCyclicGraph(t *testing.T) {
	a := testAdapter()

	inst := instance("Loop")
	inst[fieldChildren] = []any{inst}

	_, err := BuildTree(a, inst)
	assert.Error(t, err)
}

func TestPathToRootOrder(t *testing.T) {
	a := testAdapter()

	root := instance("App", instance("Page", instance("Leaf")))
	tree, err := BuildTree(a, root)
	require.NoError(t, err)

	leaf := tree.FindByName("Leaf")
	require.Len(t, leaf, 1)

	path := tree.PathToRoot(leaf[0])
	require.Len(t, path, 3)
	assert.Equal(t, "Leaf", tree.Node(path[0]).Name)
	assert.Equal(t, "Page", tree.Node(path[1]).Name)
	assert.Equal(t, "App", tree.Node(path[2]).Name)
}

func TestTryPatchAlongPath(t *testing.T) {
	a := testAdapter()

	t.Run("owning ancestor swaps and re-renders", func(t *testing.T) {
		oldDef := map[string]any{"v": 1}
		newDef := map[string]any{"v": 2}

		page, deps, calls := withUpdate(instance("Page", instance("Button")))
		page[fieldComponents] = map[string]any{"Button": oldDef}
		root := instance("App", page)

		tree, err := BuildTree(a, root)
		require.NoError(t, err)
		idx := tree.FindByName("Button")[0]

		result, err := tree.TryPatchAlongPath(tree.PathToRoot(idx), "Button", newDef)
		require.NoError(t, err)
		assert.Equal(t, PatchApplied, result)
		assert.Equal(t, newDef, page[fieldComponents].(map[string]any)["Button"])
		assert.Equal(t, 1, *deps)
		assert.Equal(t, 1, *calls)
	})

	t.Run("first ancestor is the root", func(t *testing.T) {
		root := instance("App", instance("Button"))
		root[fieldComponents] = map[string]any{"Button": map[string]any{}}

		tree, err := BuildTree(a, root)
		require.NoError(t, err)
		idx := tree.FindByName("Button")[0]

		result, err := tree.TryPatchAlongPath(tree.PathToRoot(idx), "Button", map[string]any{})
		require.NoError(t, err)
		assert.Equal(t, PatchReloadRequired, result)
	})

	t.Run("keep-alive boundary forces reload", func(t *testing.T) {
		keepAlive := map[string]any{
			fieldImpl:       "KeepAliveImpl",
			fieldChildren:   []any{instance("Cached", instance("Button"))},
			fieldComponents: map[string]any{"Button": map[string]any{}},
		}
		root := instance("App", keepAlive)

		tree, err := BuildTree(a, root)
		require.NoError(t, err)
		idx := tree.FindByName("Button")[0]

		result, err := tree.TryPatchAlongPath(tree.PathToRoot(idx), "Button", map[string]any{})
		require.NoError(t, err)
		assert.Equal(t, PatchReloadRequired, result)
	})

	t.Run("non-owning ancestors are skipped", func(t *testing.T) {
		page, _, _ := withUpdate(instance("Page", instance("Wrapper", instance("Button"))))
		page[fieldComponents] = map[string]any{"Button": map[string]any{}}
		root := instance("App", page)

		tree, err := BuildTree(a, root)
		require.NoError(t, err)
		idx := tree.FindByName("Button")[0]

		result, err := tree.TryPatchAlongPath(tree.PathToRoot(idx), "Button", map[string]any{"v": 2})
		require.NoError(t, err)
		assert.Equal(t, PatchApplied, result)
	})
}

func TestReloadComponentPatchesEveryPlacement(t *testing.T) {
	a := testAdapter()
	newDef := map[string]any{"v": 2}

	sidebar, _, sidebarCalls := withUpdate(instance("Sidebar", instance("Button")))
	sidebar[fieldComponents] = map[string]any{"Button": map[string]any{"v": 1}}
	toolbar, _, toolbarCalls := withUpdate(instance("Toolbar", instance("Button")))
	toolbar[fieldComponents] = map[string]any{"Button": map[string]any{"v": 1}}
	root := instance("App", sidebar, toolbar)

	loader := &fakeLoader{mod: &fakeModule{def: newDef, hasDefault: true}}
	reloads := 0
	r := New(a, loader, func() { reloads++ }, nil)

	ok := r.ReloadComponent(context.Background(), root, "/src/button.js", "Button")
	assert.True(t, ok)
	assert.Equal(t, 0, reloads)
	assert.Equal(t, 1, *sidebarCalls)
	assert.Equal(t, 1, *toolbarCalls)
	assert.Equal(t, newDef, sidebar[fieldComponents].(map[string]any)["Button"])
	assert.Equal(t, newDef, toolbar[fieldComponents].(map[string]any)["Button"])
}

func TestReloadComponentMixedOutcomes(t *testing.T) {
	a := testAdapter()

	// One placement owned by a patchable parent, one hanging directly
	// off the root.
	sidebar, _, _ := withUpdate(instance("Sidebar", instance("Button")))
	sidebar[fieldComponents] = map[string]any{"Button": map[string]any{}}
	root := instance("App", sidebar, instance("Button"))

	loader := &fakeLoader{mod: &fakeModule{def: map[string]any{}, hasDefault: true}}
	reloads := 0
	r := New(a, loader, func() { reloads++ }, nil)

	ok := r.ReloadComponent(context.Background(), root, "/src/button.js", "Button")
	assert.True(t, ok, "a patched placement counts as success even when another needed a reload")
	assert.Equal(t, 1, reloads, "unpatchable placements trigger exactly one full reload")
}

func TestReloadComponentFailureModes(t *testing.T) {
	a := testAdapter()
	mounted := instance("App", instance("Button"))

	t.Run("nil application", func(t *testing.T) {
		r := New(a, &fakeLoader{mod: &fakeModule{hasDefault: true}}, nil, nil)
		assert.False(t, r.ReloadComponent(context.Background(), nil, "/src/button.js", "Button"))
	})

	t.Run("load error", func(t *testing.T) {
		r := New(a, &fakeLoader{err: errors.New("network down")}, nil, nil)
		assert.False(t, r.ReloadComponent(context.Background(), mounted, "/src/button.js", "Button"))
	})

	t.Run("no default export", func(t *testing.T) {
		r := New(a, &fakeLoader{mod: &fakeModule{}}, nil, nil)
		assert.False(t, r.ReloadComponent(context.Background(), mounted, "/src/button.js", "Button"))
	})

	t.Run("component not mounted", func(t *testing.T) {
		r := New(a, &fakeLoader{mod: &fakeModule{hasDefault: true}}, nil, nil)
		assert.False(t, r.ReloadComponent(context.Background(), mounted, "/src/gone.js", "Gone"))
	})
}

func TestSwapLibrary(t *testing.T) {
	a := testAdapter()

	t.Run("self-installing library", func(t *testing.T) {
		mod := &fakeModule{installOK: true}
		r := New(a, &fakeLoader{mod: mod}, nil, nil)
		assert.True(t, r.SwapLibrary(context.Background(), "lodash", "/@modules/lodash", "_"))
		assert.Equal(t, "_", mod.installed)
	})

	t.Run("library without install support", func(t *testing.T) {
		r := New(a, &fakeLoader{mod: &fakeModule{}}, nil, nil)
		assert.False(t, r.SwapLibrary(context.Background(), "lodash", "/@modules/lodash", "_"))
	})

	t.Run("load error", func(t *testing.T) {
		r := New(a, &fakeLoader{err: errors.New("not found")}, nil, nil)
		assert.False(t, r.SwapLibrary(context.Background(), "lodash", "/@modules/lodash", "_"))
	})
}

func TestWaitForRuntime(t *testing.T) {
	t.Run("available immediately", func(t *testing.T) {
		app := instance("App")
		h, err := WaitForRuntime(context.Background(), func() (Handle, bool) {
			return app, true
		}, time.Millisecond, time.Second)
		require.NoError(t, err)
		assert.Equal(t, Handle(app), h)
	})

	t.Run("available after a few polls", func(t *testing.T) {
		app := instance("App")
		polls := 0
		h, err := WaitForRuntime(context.Background(), func() (Handle, bool) {
			polls++
			if polls < 3 {
				return nil, false
			}
			return app, true
		}, time.Millisecond, time.Second)
		require.NoError(t, err)
		assert.Equal(t, Handle(app), h)
	})

	t.Run("explicit timeout", func(t *testing.T) {
		_, err := WaitForRuntime(context.Background(), func() (Handle, bool) {
			return nil, false
		}, time.Millisecond, 20*time.Millisecond)
		assert.Error(t, err)
	})
}
