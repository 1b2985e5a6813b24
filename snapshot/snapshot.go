// CLAUDE:SUMMARY Immutable indexed UI tree — arena of nodes with integer parent/child links, attribute indexes and a content hash.
// Package snapshot parses a uiautomator-style XML dump into an immutable,
// indexed tree.
//
// The Snapshot owns one flat slice of Nodes. Parent, child and sibling
// relations are integer indices into that slice, so a Snapshot can be shared
// read-only across goroutines without locking.
//
// Usage:
//
//	snap, err := snapshot.Build(raw)
//	ids := snap.ByResourceID("com.app:id/follow")
//	hits, err := snap.Select("//node[@text='Follow']")
package snapshot

import (
	"slices"
	"strings"

	"github.com/hazyhaar/uianchor/geom"
)

// NoParent marks the root of the arena.
const NoParent = -1

// Node is one element of a UI tree. Nodes are owned by their Snapshot and
// must not be mutated.
type Node struct {
	Index      int       `json:"index"`
	Tag        string    `json:"tag"`
	Class      string    `json:"class,omitempty"`
	Text       string    `json:"text,omitempty"`
	Desc       string    `json:"content_desc,omitempty"`
	ResourceID string    `json:"resource_id,omitempty"`
	Package    string    `json:"package,omitempty"`
	Clickable  bool      `json:"clickable"`
	Enabled    bool      `json:"enabled"`
	Scrollable bool      `json:"scrollable"`
	Bounds     geom.Rect `json:"bounds"`
	// Step is the path relative to the parent, e.g. "node[2]".
	Step string `json:"step"`
	// Path is the absolute structural path, e.g. "/hierarchy/node[1]/node[2]".
	Path     string `json:"path"`
	Parent   int    `json:"parent"`
	Children []int  `json:"children,omitempty"`
	Depth    int    `json:"depth"`
	// Attrs keeps every raw attribute for predicate evaluation.
	Attrs map[string]string `json:"-"`
}

// Attr returns a raw attribute value, "" if absent.
func (n *Node) Attr(name string) string {
	return n.Attrs[name]
}

// Label is the node's text, or its description when the text is empty.
func (n *Node) Label() string {
	if n.Text != "" {
		return n.Text
	}
	return n.Desc
}

// Snapshot is an immutable indexed UI tree captured at one instant.
type Snapshot struct {
	nodes  []Node
	hash   string
	screen geom.Rect

	byPath       map[string]int
	byResourceID map[string][]int
	byClass      map[string][]int
	byText       map[string][]int
	byDesc       map[string][]int
}

// Len is the number of nodes, root included.
func (s *Snapshot) Len() int { return len(s.nodes) }

// Root returns the index of the root node.
func (s *Snapshot) Root() int { return 0 }

// Node returns the node at index i. It panics on an out-of-range index, like
// a slice access.
func (s *Snapshot) Node(i int) *Node { return &s.nodes[i] }

// Valid reports whether i addresses a node of this snapshot.
func (s *Snapshot) Valid(i int) bool { return i >= 0 && i < len(s.nodes) }

// Hash is the content-derived identifier of the raw dump.
func (s *Snapshot) Hash() string { return s.hash }

// Screen is the viewport inferred from the widest top-level bounds.
func (s *Snapshot) Screen() geom.Rect { return s.screen }

// Parent returns the parent index of i, false for the root.
func (s *Snapshot) Parent(i int) (int, bool) {
	p := s.nodes[i].Parent
	return p, p != NoParent
}

// Children returns the ordered child indices of i.
func (s *Snapshot) Children(i int) []int {
	return slices.Clone(s.nodes[i].Children)
}

// Siblings returns the other children of i's parent, in document order.
func (s *Snapshot) Siblings(i int) []int {
	p, ok := s.Parent(i)
	if !ok {
		return nil
	}
	var out []int
	for _, c := range s.nodes[p].Children {
		if c != i {
			out = append(out, c)
		}
	}
	return out
}

// Ancestors returns up to limit ancestors of i, nearest first. A limit <= 0
// returns the whole chain up to the root.
func (s *Snapshot) Ancestors(i, limit int) []int {
	var out []int
	for p, ok := s.Parent(i); ok; p, ok = s.Parent(p) {
		out = append(out, p)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// IsAncestor reports whether a is a strict ancestor of i.
func (s *Snapshot) IsAncestor(a, i int) bool {
	for p, ok := s.Parent(i); ok; p, ok = s.Parent(p) {
		if p == a {
			return true
		}
	}
	return false
}

// Descendants returns every node under i in depth-first document order.
func (s *Snapshot) Descendants(i int) []int {
	var out []int
	var walk func(int)
	walk = func(n int) {
		for _, c := range s.nodes[n].Children {
			out = append(out, c)
			walk(c)
		}
	}
	walk(i)
	return out
}

// DescendantTexts returns the non-empty text and description values found
// under i.
func (s *Snapshot) DescendantTexts(i int) []string {
	var out []string
	for _, d := range s.Descendants(i) {
		n := &s.nodes[d]
		if n.Text != "" {
			out = append(out, n.Text)
		}
		if n.Desc != "" {
			out = append(out, n.Desc)
		}
	}
	return out
}

// ByPath resolves an absolute structural path.
func (s *Snapshot) ByPath(path string) (int, bool) {
	i, ok := s.byPath[path]
	return i, ok
}

func (s *Snapshot) ByResourceID(id string) []int { return slices.Clone(s.byResourceID[id]) }
func (s *Snapshot) ByClass(class string) []int { return slices.Clone(s.byClass[class]) }
func (s *Snapshot) ByText(text string) []int { return slices.Clone(s.byText[text]) }
func (s *Snapshot) ByDesc(desc string) []int { return slices.Clone(s.byDesc[desc]) }

// FindByText returns exact text matches; when there are none it falls back to
// nodes whose text contains the query or is contained in it.
func (s *Snapshot) FindByText(text string) []int {
	if text == "" {
		return nil
	}
	if exact := s.byText[text]; len(exact) > 0 {
		return slices.Clone(exact)
	}
	var out []int
	for i := range s.nodes {
		t := s.nodes[i].Text
		if t == "" {
			continue
		}
		if strings.Contains(t, text) || strings.Contains(text, t) {
			out = append(out, i)
		}
	}
	return out
}

// CountLabel counts nodes whose text or description equals label.
func (s *Snapshot) CountLabel(label string) int {
	if label == "" {
		return 0
	}
	seen := map[int]struct{}{}
	for _, i := range s.byText[label] {
		seen[i] = struct{}{}
	}
	for _, i := range s.byDesc[label] {
		seen[i] = struct{}{}
	}
	return len(seen)
}

// ExactBounds returns nodes whose bounds equal r.
func (s *Snapshot) ExactBounds(r geom.Rect) []int {
	var out []int
	for i := range s.nodes {
		if s.nodes[i].Bounds == r {
			out = append(out, i)
		}
	}
	return out
}

// SmallestContaining returns the node with the smallest positive area whose
// bounds contain r.
func (s *Snapshot) SmallestContaining(r geom.Rect) (int, bool) {
	best, bestArea := -1, int64(-1)
	for i := range s.nodes {
		b := s.nodes[i].Bounds
		a := b.Area()
		if a <= 0 || !b.Contains(r) {
			continue
		}
		if bestArea < 0 || a < bestArea {
			best, bestArea = i, a
		}
	}
	return best, best >= 0
}

// Paths returns every absolute path in document order.
func (s *Snapshot) Paths() []string {
	out := make([]string, len(s.nodes))
	for i := range s.nodes {
		out[i] = s.nodes[i].Path
	}
	return out
}

// Nodes returns a copy of the arena for inspection and comparison.
func (s *Snapshot) Nodes() []Node {
	return slices.Clone(s.nodes)
}
