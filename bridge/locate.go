package bridge

import (
	"cmp"
	"slices"

	"github.com/hazyhaar/uianchor/container"
	"github.com/hazyhaar/uianchor/gate"
	"github.com/hazyhaar/uianchor/geom"
	"github.com/hazyhaar/uianchor/match"
	"github.com/hazyhaar/uianchor/snapshot"
)

const (
	// minBoundsQuality is the geom.MatchBounds quality a node needs to stand
	// in for recorded bounds.
	minBoundsQuality = 0.5

	textBase          = 0.70
	textProximity     = 0.25
	outsideReference  = 0.9
	indexConfidence   = 0.80
	indexWrongColumn  = 0.60
	directConfidence  = 0.75
	exactTextProxBase = 0.8
)

// Hit is one live node an instruction resolves to, with the point to tap.
type Hit struct {
	Node       int       `json:"node"`
	X          int       `json:"x"`
	Y          int       `json:"y"`
	Bounds     geom.Rect `json:"bounds"`
	Confidence float64   `json:"confidence"`
}

// Locate resolves m against s. Hits are ordered by confidence, best first,
// one per node.
func Locate(m ClickMode, s *snapshot.Snapshot) []Hit {
	var hits []Hit
	switch m := m.(type) {
	case StructuralHierarchy:
		hits = byBounds(s, m.ClickableBounds, true)
	case RelativePosition:
		if m.Position == PositionBottomAction {
			hits = byBounds(s, m.Target, true)
			break
		}
		hits = byBounds(s, m.Target, false)
		if !m.Reference.Empty() {
			for k := range hits {
				if !m.Reference.Contains(hits[k].Bounds) {
					hits[k].Confidence *= outsideReference
				}
			}
		}
	case TextAugmentedPosition:
		ids := s.ByText(m.Hint)
		if len(ids) == 0 {
			ids = s.FindByText(m.Hint)
		}
		for _, i := range ids {
			q := 0.5
			if !m.FallbackBounds.Empty() {
				q = geom.MatchBounds(m.FallbackBounds, s.Node(i).Bounds).Quality
			}
			hits = append(hits, hitAt(s, i, textBase+textProximity*q))
		}
	case ExactTextMatch:
		var ids []int
		if m.Source == "content-desc" {
			ids = s.ByDesc(m.Text)
		} else {
			ids = s.ByText(m.Text)
		}
		for _, i := range ids {
			conf := m.Confidence
			if !m.FallbackBounds.Empty() {
				q := geom.MatchBounds(m.FallbackBounds, s.Node(i).Bounds).Quality
				conf *= exactTextProxBase + (1-exactTextProxBase)*q
			}
			hits = append(hits, hitAt(s, i, conf))
		}
	case ContainerIndexMatch:
		hits = byIndex(s, m)
	case DirectCoordinate:
		i, ok := s.SmallestContaining(geom.Rect{Left: m.X, Top: m.Y, Right: m.X, Bottom: m.Y})
		if !ok {
			i = -1
		}
		h := Hit{Node: i, X: m.X, Y: m.Y, Confidence: directConfidence}
		if ok {
			h.Bounds = s.Node(i).Bounds
		}
		hits = append(hits, h)
	}
	return rank(hits)
}

// byBounds matches nodes whose bounds stand in for ref. Clickable-only
// matches are redirected to their tap target; otherwise a node whose child
// has identical bounds defers to that child.
func byBounds(s *snapshot.Snapshot, ref geom.Rect, clickableOnly bool) []Hit {
	var hits []Hit
	for i := range s.Len() {
		n := s.Node(i)
		if n.Bounds.Empty() {
			continue
		}
		if clickableOnly && !n.Clickable {
			continue
		}
		if !clickableOnly && shadowed(s, i) {
			continue
		}
		q := geom.MatchBounds(ref, n.Bounds).Quality
		if q < minBoundsQuality {
			continue
		}
		target := i
		if clickableOnly {
			target = tapTarget(s, i)
		}
		hits = append(hits, hitAt(s, target, q))
	}
	return hits
}

func byIndex(s *snapshot.Snapshot, m ContainerIndexMatch) []Hit {
	best, bestQ := -1, 0.0
	for i := range s.Len() {
		n := s.Node(i)
		if container.ListPriority(n.Class) == 0 {
			continue
		}
		if q := geom.MatchBounds(m.ContainerBounds, n.Bounds).Quality; q >= minBoundsQuality && q > bestQ {
			best, bestQ = i, q
		}
	}
	if best < 0 {
		return nil
	}
	children := s.Children(best)
	if m.Index < 0 || m.Index >= len(children) {
		return nil
	}
	item := children[m.Index]
	conf := indexConfidence
	if m.Column != nil && m.Column.Column != container.ColumnUnknown &&
		container.ColumnOf(s.Node(item).Bounds) != m.Column.Column {
		conf = indexWrongColumn
	}
	return []Hit{hitAt(s, tapTarget(s, match.FindClickableParent(s, item)), conf)}
}

func shadowed(s *snapshot.Snapshot, i int) bool {
	b := s.Node(i).Bounds
	for _, c := range s.Node(i).Children {
		if s.Node(c).Bounds == b {
			return true
		}
	}
	return false
}

// tapTarget keeps i unless it is a layout container, in which case the
// largest visible non-container descendant inside it stands in.
func tapTarget(s *snapshot.Snapshot, i int) int {
	if !isContainerClass(s.Node(i).Class) {
		return i
	}
	b := s.Node(i).Bounds
	best, bestArea := i, int64(0)
	for _, d := range s.Descendants(i) {
		n := s.Node(d)
		if isContainerClass(n.Class) || !b.Contains(n.Bounds) {
			continue
		}
		if a := n.Bounds.Area(); a > bestArea {
			best, bestArea = d, a
		}
	}
	return best
}

func isContainerClass(class string) bool {
	return slices.Contains(gate.DefaultContainerClasses, class)
}

func hitAt(s *snapshot.Snapshot, i int, conf float64) Hit {
	b := s.Node(i).Bounds
	x, y := b.Center()
	return Hit{Node: i, X: x, Y: y, Bounds: b, Confidence: geom.Clamp01(conf)}
}

func rank(hits []Hit) []Hit {
	slices.SortStableFunc(hits, func(a, b Hit) int { return cmp.Compare(b.Confidence, a.Confidence) })
	seen := make(map[int]bool, len(hits))
	out := hits[:0]
	for _, h := range hits {
		if h.Node >= 0 && seen[h.Node] {
			continue
		}
		seen[h.Node] = true
		out = append(out, h)
	}
	return out
}
