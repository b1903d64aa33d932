package nodekit

import (
	"context"
	"strings"

	"github.com/gobwas/glob"
)

// ============================================================================
// Selector Interface
// ============================================================================

// Selector filters the files found by Find.
//
// Selectors compose with And, Or and Not:
//
//	selector := nodekit.And(
//	    nodekit.Glob("*.xml"),
//	    nodekit.FuncSelector(func(n nodekit.Node) bool {
//	        return n.Size < 10*1024*1024
//	    }),
//	)
//	nodes, err := svc.Find(ctx, root, selector)
type Selector interface {
	// Match returns true if the file should be included in results.
	Match(n Node) bool

	// TraverseDescendants returns true if the directory's descendants
	// should be visited. Only called for directories.
	TraverseDescendants(n Node) bool
}

// Find walks below root and returns the files matched by selector, in walk
// order.
func (s *Service) Find(ctx context.Context, root Node, selector Selector) ([]Node, error) {
	if selector == nil {
		selector = All()
	}
	var results []Node
	err := s.Walk(ctx, root, Visitor{
		EnterDir: func(n Node) error {
			if n.Path != root.Path && !selector.TraverseDescendants(n) {
				return SkipDir
			}
			return nil
		},
		File: func(n Node) error {
			if selector.Match(n) {
				results = append(results, n)
			}
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// ============================================================================
// Built-in Selectors
// ============================================================================

type allSelector struct{}

func (allSelector) Match(Node) bool               { return true }
func (allSelector) TraverseDescendants(Node) bool { return true }

// All matches every file.
func All() Selector {
	return allSelector{}
}

type globSelector struct {
	g        glob.Glob
	fullPath bool
}

// Glob matches file names against pattern. Supports *, ?, [abc], [a-z] and
// {a,b}. An invalid pattern matches nothing.
//
//	Glob("*.txt")
//	Glob("report-{2023,2024}-??.csv")
func Glob(pattern string) Selector {
	g, err := glob.Compile(pattern)
	if err != nil {
		return FuncSelector(func(Node) bool { return false })
	}
	return &globSelector{g: g}
}

// PathGlob matches full node paths against pattern, with "/" as the
// separator: "*" stays within one segment and "**" crosses segments.
//
//	PathGlob("reports/**/*.pdf")
func PathGlob(pattern string) Selector {
	g, err := glob.Compile(Strip(pattern), '/')
	if err != nil {
		return FuncSelector(func(Node) bool { return false })
	}
	return &globSelector{g: g, fullPath: true}
}

func (s *globSelector) Match(n Node) bool {
	if s.fullPath {
		return s.g.Match(n.Path)
	}
	return s.g.Match(n.Name)
}

func (s *globSelector) TraverseDescendants(Node) bool { return true }

type depthSelector struct {
	maxDepth int
	basePath string
}

// Depth limits matches to maxDepth levels below basePath. Depth 1 is the
// direct children only.
func Depth(maxDepth int, basePath string) Selector {
	return &depthSelector{
		maxDepth: maxDepth,
		basePath: Strip(basePath),
	}
}

func (s *depthSelector) depth(path string) int {
	rel := Strip(strings.TrimPrefix(path, s.basePath))
	if rel == "" {
		return 0
	}
	return strings.Count(rel, Separator) + 1
}

func (s *depthSelector) Match(n Node) bool {
	return s.depth(n.Path) <= s.maxDepth
}

func (s *depthSelector) TraverseDescendants(n Node) bool {
	return s.depth(n.Path) < s.maxDepth
}

// ============================================================================
// Composition
// ============================================================================

type andSelector struct {
	selectors []Selector
}

// And matches only if every selector matches.
func And(selectors ...Selector) Selector {
	return &andSelector{selectors: selectors}
}

func (s *andSelector) Match(n Node) bool {
	for _, sel := range s.selectors {
		if !sel.Match(n) {
			return false
		}
	}
	return true
}

func (s *andSelector) TraverseDescendants(n Node) bool {
	for _, sel := range s.selectors {
		if !sel.TraverseDescendants(n) {
			return false
		}
	}
	return true
}

type orSelector struct {
	selectors []Selector
}

// Or matches if any selector matches.
func Or(selectors ...Selector) Selector {
	return &orSelector{selectors: selectors}
}

func (s *orSelector) Match(n Node) bool {
	for _, sel := range s.selectors {
		if sel.Match(n) {
			return true
		}
	}
	return false
}

func (s *orSelector) TraverseDescendants(n Node) bool {
	for _, sel := range s.selectors {
		if sel.TraverseDescendants(n) {
			return true
		}
	}
	return false
}

type notSelector struct {
	selector Selector
}

// Not inverts a selector's match result. Traversal is never restricted.
func Not(selector Selector) Selector {
	return &notSelector{selector: selector}
}

func (s *notSelector) Match(n Node) bool             { return !s.selector.Match(n) }
func (s *notSelector) TraverseDescendants(Node) bool { return true }

type funcSelector struct {
	matchFn    func(Node) bool
	traverseFn func(Node) bool
}

// FuncSelector creates a selector from a custom match function.
func FuncSelector(fn func(Node) bool) Selector {
	return &funcSelector{
		matchFn:    fn,
		traverseFn: func(Node) bool { return true },
	}
}

// FuncSelectorFull creates a selector with custom match and traverse
// functions.
func FuncSelectorFull(matchFn, traverseFn func(Node) bool) Selector {
	return &funcSelector{matchFn: matchFn, traverseFn: traverseFn}
}

func (s *funcSelector) Match(n Node) bool               { return s.matchFn(n) }
func (s *funcSelector) TraverseDescendants(n Node) bool { return s.traverseFn(n) }
