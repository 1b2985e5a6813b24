// CLAUDE:SUMMARY Container scoping for card feeds — click normalisation, hint-seeded container resolution, layout classification, item matching.
// Package container scopes a match to the repeating list that holds it: it
// turns a raw click into {container, card root, clickable parent, column},
// resolves the container from a selection hint, classifies its layout and
// scores the cards inside it.
package container

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hazyhaar/uianchor/geom"
	"github.com/hazyhaar/uianchor/match"
	"github.com/hazyhaar/uianchor/snapshot"
)

var (
	ErrNoNode      = errors.New("container: no node at the clicked bounds")
	ErrNoContainer = errors.New("container: no list container above the node")
	ErrNoCardRoot  = errors.New("container: no card root inside the container")
)

// listPriorityImmediate stops the ancestor walk at the first list-like container.
const listPriorityImmediate = 85

// ListPriority ranks a class as a repeating-item container, 0 when it is not one.
func ListPriority(class string) int {
	c := strings.ToLower(class)
	switch {
	case strings.Contains(c, "recyclerview"):
		return 100
	case strings.Contains(c, "gridview"):
		return 90
	case strings.Contains(c, "listview"):
		return 85
	case strings.Contains(c, "nestedscrollview"):
		return 65
	case strings.Contains(c, "scrollview"):
		return 70
	case strings.Contains(c, "viewpager"):
		return 30
	}
	return 0
}

// NearestList walks up from i (inclusive). The first ancestor at list
// priority 85 or more wins; otherwise the highest priority, nearest first.
func NearestList(s *snapshot.Snapshot, i int) (int, bool) {
	best, bestPrio := -1, 0
	for cur := i; cur != snapshot.NoParent; {
		p := ListPriority(s.Node(cur).Class)
		if p >= listPriorityImmediate {
			return cur, true
		}
		if p > bestPrio {
			best, bestPrio = cur, p
		}
		next, ok := s.Parent(cur)
		if !ok {
			break
		}
		cur = next
	}
	return best, best >= 0
}

// Column is the waterfall column a card sits in.
type Column int

const (
	ColumnUnknown Column = iota
	ColumnLeft
	ColumnRight
)

func (c Column) String() string {
	switch c {
	case ColumnLeft:
		return "left"
	case ColumnRight:
		return "right"
	}
	return "unknown"
}

func (c Column) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Column) UnmarshalText(b []byte) error {
	switch string(b) {
	case "left":
		*c = ColumnLeft
	case "right":
		*c = ColumnRight
	default:
		*c = ColumnUnknown
	}
	return nil
}

// ColumnOf classifies by left edge: ≤100 left, ≥500 right.
func ColumnOf(r geom.Rect) Column {
	switch {
	case r.Left <= 100:
		return ColumnLeft
	case r.Left >= 500:
		return ColumnRight
	}
	return ColumnUnknown
}

// ColumnInfo locates a card within its column, ordered by top edge.
type ColumnInfo struct {
	Column   Column `json:"column"`
	Position int    `json:"position"`
	Count    int    `json:"count"`
}

// IsCardRoot reports a non-clickable FrameLayout carrying a description.
func IsCardRoot(n *snapshot.Node) bool {
	return strings.HasSuffix(n.Class, "FrameLayout") && !n.Clickable && strings.TrimSpace(n.Desc) != ""
}

// Columns computes the column placement of card root within container.
func Columns(s *snapshot.Snapshot, container, root int) ColumnInfo {
	cb := s.Node(container).Bounds
	col := ColumnOf(s.Node(root).Bounds)
	info := ColumnInfo{Column: col}
	rootTop := s.Node(root).Bounds.Top
	for _, d := range s.Descendants(container) {
		n := s.Node(d)
		if !IsCardRoot(n) || !cb.Contains(n.Bounds) || ColumnOf(n.Bounds) != col {
			continue
		}
		info.Count++
		if n.Bounds.Top < rootTop || (n.Bounds.Top == rootTop && d < root) {
			info.Position++
		}
	}
	return info
}

// Normalized is a click recovered to the structure that owns it.
type Normalized struct {
	Clicked         int        `json:"clicked"`
	Container       int        `json:"container"`
	CardRoot        int        `json:"card_root"`
	ClickableParent int        `json:"clickable_parent"`
	Column          ColumnInfo `json:"column"`
}

// NormalizeClick finds the node behind clicked bounds (exact, then smallest
// containing, then best IOU above 0.1) and climbs to its list container,
// card root and clickable parent.
func NormalizeClick(s *snapshot.Snapshot, clicked geom.Rect) (Normalized, error) {
	i, ok := clickedNode(s, clicked)
	if !ok {
		return Normalized{}, fmt.Errorf("%w: %s", ErrNoNode, clicked)
	}
	c, ok := NearestList(s, i)
	if !ok {
		return Normalized{}, fmt.Errorf("%w (node %d)", ErrNoContainer, i)
	}
	root := match.FindCardRoot(s, i)
	if root < 0 || root == c || !s.IsAncestor(c, root) {
		return Normalized{}, fmt.Errorf("%w (node %d, container %d)", ErrNoCardRoot, i, c)
	}
	return Normalized{
		Clicked:         i,
		Container:       c,
		CardRoot:        root,
		ClickableParent: match.FindClickableParent(s, root),
		Column:          Columns(s, c, root),
	}, nil
}

func clickedNode(s *snapshot.Snapshot, r geom.Rect) (int, bool) {
	if exact := s.ExactBounds(r); len(exact) > 0 {
		return exact[len(exact)-1], true
	}
	if i, ok := s.SmallestContaining(r); ok {
		return i, true
	}
	best, bestIOU := -1, 0.1
	for i := range s.Len() {
		if iou := s.Node(i).Bounds.IOU(r); iou > bestIOU {
			best, bestIOU = i, iou
		}
	}
	return best, best >= 0
}
