package reconciler

// PatchResult is the outcome of attempting an in-place patch along one
// ancestor path.
type PatchResult int

const (
	// PatchApplied means an owning ancestor swapped the definition and
	// re-rendered.
	PatchApplied PatchResult = iota
	// PatchReloadRequired means the walk hit the tree root or a
	// keep-alive boundary and the change needs a full reload.
	PatchReloadRequired
)

// TryPatchAlongPath walks the ancestors of path[0] looking for the
// component that owns the named sub-component registration. Crossing the
// tree root or a keep-alive boundary abandons the patch: cached subtrees
// behind keep-alive hold stale instances an in-place swap would miss, so
// only a full reload is safe there. When an owning ancestor is found,
// the registration is swapped for definition and the ancestor is forced
// to re-render.
func (t *Tree) TryPatchAlongPath(path []int, name string, definition any) (PatchResult, error) {
	for _, idx := range path[1:] {
		node := t.nodes[idx]
		if node.Parent == -1 || node.Builtin == BuiltinKeepAlive {
			return PatchReloadRequired, nil
		}
		reg, ok := t.adapter.Subcomponents(node.Handle)
		if !ok {
			continue
		}
		if _, registered := reg.Lookup(name); !registered {
			continue
		}
		reg.Replace(name, definition)
		if err := t.adapter.ForceRender(node.Handle); err != nil {
			return PatchReloadRequired, err
		}
		return PatchApplied, nil
	}
	return PatchReloadRequired, nil
}
