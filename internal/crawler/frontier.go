package crawler

import "fmt"

// Traversal selects the order in which a Spider explores its frontier.
type Traversal int

const (
	// TraversalDepthFirst explores the newest discovered link first and
	// finishes its whole sub-tree before returning to its siblings.
	// It uses an explicit stack, so site depth never grows the call stack.
	TraversalDepthFirst Traversal = iota

	// TraversalUnordered keeps pending URLs in a set and takes any member
	// next. Memory stays bounded by the number of distinct pending URLs.
	TraversalUnordered
)

// String returns the configuration name of the traversal.
func (t Traversal) String() string {
	switch t {
	case TraversalDepthFirst:
		return "depth-first"
	case TraversalUnordered:
		return "unordered"
	default:
		return "unknown"
	}
}

// ParseTraversal converts a configuration name into a Traversal.
// The empty string selects TraversalDepthFirst.
func ParseTraversal(name string) (Traversal, error) {
	switch name {
	case "", "depth-first", "dfs", "recursive":
		return TraversalDepthFirst, nil
	case "unordered", "set", "iterative":
		return TraversalUnordered, nil
	default:
		return TraversalDepthFirst, fmt.Errorf("unknown traversal %q", name)
	}
}

// Frontier holds the URLs discovered but not yet fetched.
type Frontier interface {
	// Push adds urls. The first url of a call is the first to be explored
	// by a depth-first frontier.
	Push(urls ...string)

	// Pop removes and returns the next URL, or false if the frontier is empty.
	Pop() (string, bool)

	// Len returns the number of pending entries.
	Len() int
}

// NewFrontier returns the Frontier implementing t.
func NewFrontier(t Traversal) Frontier {
	if t == TraversalUnordered {
		return NewSetFrontier()
	}
	return NewStackFrontier()
}

// StackFrontier is a last-in-first-out Frontier.
// Links of one page are pushed in reverse so they pop in document order,
// which reproduces the order of a recursive depth-first crawl.
type StackFrontier struct {
	items []string
}

// NewStackFrontier creates an empty StackFrontier.
func NewStackFrontier() *StackFrontier {
	return &StackFrontier{items: make([]string, 0)}
}

// Push adds urls so that urls[0] is popped first.
func (f *StackFrontier) Push(urls ...string) {
	for i := len(urls) - 1; i >= 0; i-- {
		f.items = append(f.items, urls[i])
	}
}

// Pop removes the most recently pushed URL.
func (f *StackFrontier) Pop() (string, bool) {
	if len(f.items) == 0 {
		return "", false
	}
	last := len(f.items) - 1
	u := f.items[last]
	f.items[last] = ""
	f.items = f.items[:last]
	return u, true
}

// Len returns the number of stacked URLs. A URL may be stacked more than
// once; the Spider drops repeats when they are popped.
func (f *StackFrontier) Len() int {
	return len(f.items)
}

// SetFrontier is an unordered Frontier without duplicates.
type SetFrontier struct {
	pending map[string]struct{}
}

// NewSetFrontier creates an empty SetFrontier.
func NewSetFrontier() *SetFrontier {
	return &SetFrontier{pending: make(map[string]struct{})}
}

// Push adds urls that are not already pending.
func (f *SetFrontier) Push(urls ...string) {
	for _, u := range urls {
		f.pending[u] = struct{}{}
	}
}

// Pop removes an arbitrary pending URL.
func (f *SetFrontier) Pop() (string, bool) {
	for u := range f.pending {
		delete(f.pending, u)
		return u, true
	}
	return "", false
}

// Len returns the number of pending URLs.
func (f *SetFrontier) Len() int {
	return len(f.pending)
}
