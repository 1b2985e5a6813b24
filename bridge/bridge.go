// CLAUDE:SUMMARY Execution bridge — turns a mode recommendation into a primary click instruction plus ordered fallbacks.
// Package bridge converts a match recommendation into concrete, replayable
// click instructions.
//
// A Mapping carries a primary ClickMode and fallbacks ordered by decreasing
// structural specificity, ending with a raw coordinate tap. Locate resolves
// any ClickMode against a fresh snapshot.
package bridge

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hazyhaar/uianchor/container"
	"github.com/hazyhaar/uianchor/match"
	"github.com/hazyhaar/uianchor/snapshot"
)

const (
	// DefaultTimeoutMS is the per-instruction execution timeout.
	DefaultTimeoutMS = 5000
	// DefaultRetry is the per-instruction retry count.
	DefaultRetry = 3

	structuralMinConfidence = 0.8
	structuralMaxDepth      = 5
	textExactMinConfidence  = 0.75
	leafClickableSearch     = 3
)

// ErrNoLabel is returned for a text-exact recommendation whose node has
// neither text nor description to match on.
var ErrNoLabel = errors.New("bridge: text match target has no text or description")

// Strategy is an ordered list of instructions with execution limits.
type Strategy struct {
	Primary   Instruction   `json:"primary"`
	Fallbacks []Instruction `json:"fallbacks"`
	TimeoutMS int           `json:"timeout_ms"`
	Retry     int           `json:"retry_count"`
}

// Modes returns the primary followed by every fallback.
func (st Strategy) Modes() []ClickMode {
	out := make([]ClickMode, 0, 1+len(st.Fallbacks))
	if st.Primary.Mode != nil {
		out = append(out, st.Primary.Mode)
	}
	for _, f := range st.Fallbacks {
		out = append(out, f.Mode)
	}
	return out
}

// Mapping is the bridge output for one recommendation.
type Mapping struct {
	Mode            match.Mode `json:"mode"`
	Confidence      float64    `json:"confidence"`
	Node            int        `json:"node"`
	CardRoot        int        `json:"card_root"`
	ClickableParent int        `json:"clickable_parent"`
	Strategy        Strategy   `json:"strategy"`
	Reason          string     `json:"reason"`
}

// Summary is a one-line human description of the mapping.
func (m Mapping) Summary() string {
	parts := make([]string, 0, 1+len(m.Strategy.Fallbacks))
	for _, cm := range m.Strategy.Modes() {
		parts = append(parts, fmt.Sprintf("%s (%.2f)", cm.Describe(), cm.Reliability()))
	}
	return fmt.Sprintf("%s @ %.3f: %s", m.Mode, m.Confidence, strings.Join(parts, " -> "))
}

// Build maps rec onto click instructions against the snapshot it was
// scored on.
func Build(rec match.Recommendation, s *snapshot.Snapshot) (Mapping, error) {
	o := rec.Outcome
	if !s.Valid(o.Node) {
		return Mapping{}, fmt.Errorf("bridge: %s outcome has no located node", rec.Mode)
	}
	m := Mapping{
		Mode:            rec.Mode,
		Confidence:      o.Confidence,
		Node:            o.Node,
		CardRoot:        -1,
		ClickableParent: -1,
	}

	var (
		primary   ClickMode
		fallbacks []ClickMode
	)
	switch rec.Mode {
	case match.CardSubtree:
		primary, fallbacks = m.card(s, o)
	case match.LeafContext:
		primary, fallbacks = m.leaf(s, o)
	case match.TextExact:
		var err error
		primary, fallbacks, err = m.text(s, o)
		if err != nil {
			return Mapping{}, err
		}
	default:
		return Mapping{}, fmt.Errorf("bridge: unsupported mode %s", rec.Mode)
	}

	m.Strategy = Strategy{
		Primary:   Instruction{Mode: primary},
		TimeoutMS: DefaultTimeoutMS,
		Retry:     DefaultRetry,
	}
	for _, f := range fallbacks {
		m.Strategy.Fallbacks = append(m.Strategy.Fallbacks, Instruction{Mode: f})
	}
	return m, nil
}

func (m *Mapping) card(s *snapshot.Snapshot, o match.Outcome) (ClickMode, []ClickMode) {
	root := o.Evidence.CardRoot
	if !s.Valid(root) {
		root = o.Node
	}
	cp := o.Evidence.ClickableParent
	if !s.Valid(cp) {
		cp = root
	}
	m.CardRoot, m.ClickableParent = root, cp
	rb, cb := s.Node(root).Bounds, s.Node(cp).Bounds
	depth := o.Evidence.HierarchyDepth

	relative := RelativePosition{Reference: rb, Target: cb, Position: PositionBottomAction}
	var (
		primary   ClickMode
		fallbacks []ClickMode
	)
	if o.Confidence > structuralMinConfidence && depth >= 1 && depth <= structuralMaxDepth {
		primary = StructuralHierarchy{RootBounds: rb, ClickableBounds: cb, Depth: depth}
		fallbacks = append(fallbacks, relative)
		m.Reason = fmt.Sprintf("card subtree with believable depth %d", depth)
	} else {
		primary = relative
		m.Reason = fmt.Sprintf("card subtree (confidence %.3f, depth %d): anchor on card root", o.Confidence, depth)
	}
	if ci, ok := containerIndex(s, root); ok {
		fallbacks = append(fallbacks, ci)
	}
	fallbacks = append(fallbacks, center(s, cp, "card clickable parent"))
	return primary, fallbacks
}

// containerIndex locates root as the n-th child of its nearest list.
func containerIndex(s *snapshot.Snapshot, root int) (ContainerIndexMatch, bool) {
	c, ok := container.NearestList(s, root)
	if !ok || c == root {
		return ContainerIndexMatch{}, false
	}
	item := root
	for {
		p, ok := s.Parent(item)
		if !ok {
			return ContainerIndexMatch{}, false
		}
		if p == c {
			break
		}
		item = p
	}
	ci := ContainerIndexMatch{ContainerBounds: s.Node(c).Bounds, Index: -1}
	for k, child := range s.Children(c) {
		if child == item {
			ci.Index = k
			break
		}
	}
	if container.ColumnOf(s.Node(root).Bounds) != container.ColumnUnknown {
		info := container.Columns(s, c, root)
		ci.Column = &info
	}
	return ci, ci.Index >= 0
}

func (m *Mapping) leaf(s *snapshot.Snapshot, o match.Outcome) (ClickMode, []ClickMode) {
	n := s.Node(o.Node)
	cp := clickableParent(s, o.Node)
	m.ClickableParent = cp

	if isTextHint(n.Text) {
		m.Reason = fmt.Sprintf("leaf with usable text %q", n.Text)
		primary := TextAugmentedPosition{Hint: n.Text, FallbackBounds: s.Node(cp).Bounds, Context: o.Explain}
		var fallbacks []ClickMode
		if row := o.Evidence.RowContainer; s.Valid(row) {
			fallbacks = append(fallbacks, RelativePosition{Reference: s.Node(row).Bounds, Target: n.Bounds, Position: PositionSiblingContext})
		}
		return primary, append(fallbacks, center(s, cp, "leaf clickable parent"))
	}

	ref := s.Node(cp).Bounds
	if row := o.Evidence.RowContainer; s.Valid(row) {
		ref = s.Node(row).Bounds
	}
	m.Reason = "leaf without stable text: anchor on sibling context"
	return RelativePosition{Reference: ref, Target: n.Bounds, Position: PositionSiblingContext},
		[]ClickMode{center(s, cp, "leaf clickable parent")}
}

// clickableParent is i when clickable, else the nearest clickable ancestor
// within three levels, else i.
func clickableParent(s *snapshot.Snapshot, i int) int {
	if s.Node(i).Clickable {
		return i
	}
	for _, a := range s.Ancestors(i, leafClickableSearch) {
		if s.Node(a).Clickable {
			return a
		}
	}
	return i
}

// isTextHint accepts labels of two or more runes without digits.
func isTextHint(text string) bool {
	if utf8.RuneCountInString(text) < 2 {
		return false
	}
	return !strings.ContainsFunc(text, unicode.IsNumber)
}

func (m *Mapping) text(s *snapshot.Snapshot, o match.Outcome) (ClickMode, []ClickMode, error) {
	n := s.Node(o.Node)
	var label, source string
	switch {
	case n.Text != "" && o.Confidence > textExactMinConfidence:
		label, source = n.Text, "text"
	case n.Desc != "":
		label, source = n.Desc, "content-desc"
	default:
		return nil, nil, ErrNoLabel
	}
	m.Reason = fmt.Sprintf("exact %s match %q", source, label)
	primary := ExactTextMatch{Text: label, Source: source, Confidence: o.Confidence, FallbackBounds: n.Bounds}
	return primary, []ClickMode{center(s, o.Node, "text match bounds")}, nil
}

func center(s *snapshot.Snapshot, i int, source string) DirectCoordinate {
	x, y := s.Node(i).Bounds.Center()
	return DirectCoordinate{X: x, Y: y, Source: source}
}
