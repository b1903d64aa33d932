package nodekit

import "sort"

// Tree is an in-memory hierarchy built for a single list, walk or zip call.
// Each name is inserted at most once: adding an existing name returns the
// subtree already stored under it and leaves it untouched.
type Tree[T any] struct {
	payload  T
	names    []string
	children map[string]*Tree[T]
}

// NewTree returns a tree rooted at payload.
func NewTree[T any](payload T) *Tree[T] {
	return &Tree[T]{payload: payload}
}

// Payload returns the value stored at this node.
func (t *Tree[T]) Payload() T {
	return t.payload
}

// Add returns the child called name, creating it from supply when missing.
// supply is not called when the child already exists.
func (t *Tree[T]) Add(name string, supply func() T) *Tree[T] {
	if child, ok := t.children[name]; ok {
		return child
	}
	if t.children == nil {
		t.children = make(map[string]*Tree[T])
	}
	child := NewTree(supply())
	t.children[name] = child
	t.names = append(t.names, name)
	return child
}

// AddChild inserts payload under name unless the name is taken, and returns
// the stored subtree.
func (t *Tree[T]) AddChild(name string, payload T) *Tree[T] {
	return t.Add(name, func() T { return payload })
}

// Child returns the subtree stored under name.
func (t *Tree[T]) Child(name string) (*Tree[T], bool) {
	child, ok := t.children[name]
	return child, ok
}

// Len returns the number of direct children.
func (t *Tree[T]) Len() int {
	return len(t.names)
}

// Children returns the direct children in insertion order.
func (t *Tree[T]) Children() []*Tree[T] {
	out := make([]*Tree[T], 0, len(t.names))
	for _, name := range t.names {
		out = append(out, t.children[name])
	}
	return out
}

// SortedChildren returns the direct children ordered by less.
func (t *Tree[T]) SortedChildren(less func(a, b T) bool) []*Tree[T] {
	out := t.Children()
	sort.SliceStable(out, func(i, j int) bool {
		return less(out[i].payload, out[j].payload)
	})
	return out
}
