package nodekit

import (
	"context"
	"errors"
	"sort"
)

// SkipDir may be returned by Visitor.EnterDir to skip the directory's
// descendants and its ExitDir call. It is never returned by a walk.
var SkipDir = errors.New("skip this directory")

// Visitor receives the nodes of a walk. Directories are reported twice:
// EnterDir before any descendant and ExitDir after the last one. Files are
// reported once through File. Nil callbacks are skipped; a non-nil error
// other than SkipDir stops the walk and is returned unchanged.
type Visitor struct {
	EnterDir func(Node) error
	File     func(Node) error
	ExitDir  func(Node) error
}

func (v Visitor) enter(n Node) error {
	if v.EnterDir == nil {
		return nil
	}
	return v.EnterDir(n)
}

func (v Visitor) file(n Node) error {
	if v.File == nil {
		return nil
	}
	return v.File(n)
}

func (v Visitor) exit(n Node) error {
	if v.ExitDir == nil {
		return nil
	}
	return v.ExitDir(n)
}

// walkLess orders siblings during a walk: files first, then directories,
// each by name.
func walkLess(a, b Node) bool {
	if a.IsDir != b.IsDir {
		return !a.IsDir
	}
	return a.Name < b.Name
}

// SortForWalk sorts nodes into walk order.
func SortForWalk(nodes []Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		return walkLess(nodes[i], nodes[j])
	})
}

// WalkTree walks an in-memory tree.
func WalkTree(tree *Tree[Node], v Visitor) error {
	n := tree.Payload()
	if !n.IsDir {
		return v.file(n)
	}
	if err := v.enter(n); err != nil {
		if errors.Is(err, SkipDir) {
			return nil
		}
		return err
	}
	for _, child := range tree.SortedChildren(walkLess) {
		if err := WalkTree(child, v); err != nil {
			return err
		}
	}
	return v.exit(n)
}

// listFunc returns the direct children of a directory node.
type listFunc func(ctx context.Context, dir Node) ([]Node, error)

// walkListing walks by listing one directory at a time.
func walkListing(ctx context.Context, n Node, list listFunc, v Visitor) error {
	if !n.IsDir {
		return v.file(n)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := v.enter(n); err != nil {
		if errors.Is(err, SkipDir) {
			return nil
		}
		return err
	}
	children, err := list(ctx, n)
	if err != nil {
		return err
	}
	SortForWalk(children)
	for _, child := range children {
		if err := walkListing(ctx, child, list, v); err != nil {
			return err
		}
	}
	return v.exit(n)
}
