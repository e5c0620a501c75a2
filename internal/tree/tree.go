// Package tree provides EntryTree, a trie of entries keyed by their parent
// chains that stores at most one value per entry.
//
// An EntryTree is not safe for concurrent use; owners serialize access.
package tree

import (
	"iter"
	"slices"
	"strings"

	"mapsync/internal/entry"
)

// Node is one entry in the tree. A node may exist without a value when it
// only anchors descendants.
type Node[V any] struct {
	entry    entry.Entry
	value    V
	hasValue bool
	parent   *Node[V]
	children []*Node[V] // sorted by key
}

func (n *Node[V]) Entry() entry.Entry { return n.entry }

// Value returns the stored value and whether one is present.
func (n *Node[V]) Value() (V, bool) { return n.value, n.hasValue }

// Children returns the child nodes ordered by key. The slice must not be
// modified.
func (n *Node[V]) Children() []*Node[V] { return n.children }

func (n *Node[V]) empty() bool { return !n.hasValue && len(n.children) == 0 }

// EntryTree maps entries to values.
type EntryTree[V any] struct {
	roots []*Node[V]
	index map[entry.Key]*Node[V]
	count int
}

// New creates an empty tree.
func New[V any]() *EntryTree[V] {
	return &EntryTree[V]{index: make(map[entry.Key]*Node[V])}
}

// Len returns the number of entries holding a value.
func (t *EntryTree[V]) Len() int { return t.count }

// Get returns the value stored for e.
func (t *EntryTree[V]) Get(e entry.Entry) (V, bool) {
	if n, ok := t.index[e.Key()]; ok {
		return n.value, n.hasValue
	}
	var zero V
	return zero, false
}

// Contains reports whether e holds a value.
func (t *EntryTree[V]) Contains(e entry.Entry) bool {
	_, ok := t.Get(e)
	return ok
}

// Node returns the node for e, which may be a valueless anchor.
func (t *EntryTree[V]) Node(e entry.Entry) (*Node[V], bool) {
	n, ok := t.index[e.Key()]
	return n, ok
}

// Roots returns the top-level nodes ordered by key.
func (t *EntryTree[V]) Roots() []*Node[V] { return t.roots }

// Children returns the entries directly below e.
func (t *EntryTree[V]) Children(e entry.Entry) []entry.Entry {
	n, ok := t.index[e.Key()]
	if !ok {
		return nil
	}
	out := make([]entry.Entry, len(n.children))
	for i, c := range n.children {
		out[i] = c.entry
	}
	return out
}

// Insert stores v for e, replacing any previous value. Missing ancestors
// are created from e's own parent chain as valueless nodes.
func (t *EntryTree[V]) Insert(e entry.Entry, v V) {
	n := t.ensure(e)
	if !n.hasValue {
		t.count++
	}
	n.entry = e
	n.value = v
	n.hasValue = true
}

func (t *EntryTree[V]) ensure(e entry.Entry) *Node[V] {
	key := e.Key()
	if n, ok := t.index[key]; ok {
		return n
	}
	n := &Node[V]{entry: e}
	if p := e.Parent(); p != nil {
		parent := t.ensure(p)
		n.parent = parent
		parent.children = insertSorted(parent.children, n)
	} else {
		t.roots = insertSorted(t.roots, n)
	}
	t.index[key] = n
	return n
}

// Clear drops the value stored for e but keeps its descendants. Nodes left
// without value or children are pruned up the chain.
func (t *EntryTree[V]) Clear(e entry.Entry) (V, bool) {
	var zero V
	n, ok := t.index[e.Key()]
	if !ok || !n.hasValue {
		return zero, false
	}
	old := n.value
	n.value = zero
	n.hasValue = false
	t.count--
	t.prune(n)
	return old, true
}

// Remove deletes e and its whole subtree, returning the removed entries
// that held values in pre-order.
func (t *EntryTree[V]) Remove(e entry.Entry) []Pair[V] {
	n, ok := t.index[e.Key()]
	if !ok {
		return nil
	}
	var removed []Pair[V]
	walk(n, func(d *Node[V]) bool {
		if d.hasValue {
			removed = append(removed, Pair[V]{Entry: d.entry, Value: d.value})
			t.count--
		}
		delete(t.index, d.entry.Key())
		return true
	})
	t.detach(n)
	if n.parent != nil {
		t.prune(n.parent)
	}
	return removed
}

func (t *EntryTree[V]) detach(n *Node[V]) {
	if n.parent == nil {
		t.roots = removeNode(t.roots, n)
		return
	}
	n.parent.children = removeNode(n.parent.children, n)
}

func (t *EntryTree[V]) prune(n *Node[V]) {
	for n != nil && n.empty() {
		delete(t.index, n.entry.Key())
		t.detach(n)
		n = n.parent
	}
}

// Pair is an entry with its stored value.
type Pair[V any] struct {
	Entry entry.Entry
	Value V
}

// All yields every entry holding a value, parents before children and
// siblings in key order.
func (t *EntryTree[V]) All() iter.Seq2[entry.Entry, V] {
	return func(yield func(entry.Entry, V) bool) {
		for _, r := range t.roots {
			ok := walk(r, func(n *Node[V]) bool {
				if !n.hasValue {
					return true
				}
				return yield(n.entry, n.value)
			})
			if !ok {
				return
			}
		}
	}
}

// Pairs collects All into a slice.
func (t *EntryTree[V]) Pairs() []Pair[V] {
	out := make([]Pair[V], 0, t.count)
	for e, v := range t.All() {
		out = append(out, Pair[V]{Entry: e, Value: v})
	}
	return out
}

// Clone returns a structural copy sharing the immutable entries and
// copying values by assignment.
func (t *EntryTree[V]) Clone() *EntryTree[V] {
	c := New[V]()
	for _, r := range t.roots {
		walk(r, func(n *Node[V]) bool {
			cn := c.ensure(n.entry)
			cn.value, cn.hasValue = n.value, n.hasValue
			if n.hasValue {
				c.count++
			}
			return true
		})
	}
	return c
}

func walk[V any](n *Node[V], fn func(*Node[V]) bool) bool {
	if !fn(n) {
		return false
	}
	for _, c := range n.children {
		if !walk(c, fn) {
			return false
		}
	}
	return true
}

func compareNodes[V any](a, b *Node[V]) int {
	return strings.Compare(string(a.entry.Key()), string(b.entry.Key()))
}

func insertSorted[V any](nodes []*Node[V], n *Node[V]) []*Node[V] {
	i, _ := slices.BinarySearchFunc(nodes, n, compareNodes[V])
	return slices.Insert(nodes, i, n)
}

func removeNode[V any](nodes []*Node[V], n *Node[V]) []*Node[V] {
	i, found := slices.BinarySearchFunc(nodes, n, compareNodes[V])
	if !found || nodes[i] != n {
		return nodes
	}
	return slices.Delete(nodes, i, i+1)
}
