package reconciler

import "github.com/reheat-dev/reheat/internal/errors"

// maxTreeDepth bounds the traversal so a cyclic instance graph cannot
// hang the reconciler. Handles are not comparable in general, so cycles
// are caught by depth instead of a visited set.
const maxTreeDepth = 512

// Node is one component instance in a snapshot of the rendered tree.
// Parent is an index into the owning Tree's node slice, -1 for the root.
type Node struct {
	Name     string
	Handle   Handle
	Builtin  BuiltinKind
	Parent   int
	Children []int
}

// Tree is an immutable snapshot of the rendered component hierarchy,
// stored as a flat slice with parent indices.
type Tree struct {
	nodes   []Node
	adapter Adapter
}

// BuildTree walks the live instance graph rooted at root and snapshots
// it. Suspense children are whatever the adapter exposes, which is the
// active branch only.
func BuildTree(adapter Adapter, root Handle) (*Tree, error) {
	if root == nil {
		return nil, errors.NewPatchError("", "no root instance", nil)
	}
	t := &Tree{adapter: adapter}
	if _, err := t.addSubtree(root, -1, 0); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tree) addSubtree(h Handle, parent, depth int) (int, error) {
	if depth > maxTreeDepth {
		return -1, errors.NewPatchError("", "component tree too deep, possible cycle", nil)
	}

	idx := len(t.nodes)
	t.nodes = append(t.nodes, Node{
		Name:    t.adapter.Name(h),
		Handle:  h,
		Builtin: t.adapter.Builtin(h),
		Parent:  parent,
	})

	for _, child := range t.adapter.Children(h) {
		ci, err := t.addSubtree(child, idx, depth+1)
		if err != nil {
			return -1, err
		}
		t.nodes[idx].Children = append(t.nodes[idx].Children, ci)
	}
	return idx, nil
}

// Len returns the number of nodes in the snapshot.
func (t *Tree) Len() int { return len(t.nodes) }

// Node returns the node at index i.
func (t *Tree) Node(i int) Node { return t.nodes[i] }

// FindByName returns the indices of every node whose display name
// matches, in traversal order. A component mounted in several places
// yields one index per placement.
func (t *Tree) FindByName(name string) []int {
	var matches []int
	for i := range t.nodes {
		if t.nodes[i].Name == name {
			matches = append(matches, i)
		}
	}
	return matches
}

// PathToRoot returns the node indices from i up to the root, inclusive
// and in that order.
func (t *Tree) PathToRoot(i int) []int {
	var path []int
	for i >= 0 {
		path = append(path, i)
		i = t.nodes[i].Parent
	}
	return path
}
