package match

import (
	"fmt"
	"strings"

	"github.com/hazyhaar/uianchor/geom"
	"github.com/hazyhaar/uianchor/snapshot"
)

const (
	cardRootSearchDepth = 6
	waterfallSearch     = 3
	maxHierarchyDepth   = 10
)

var waterfallMarkers = []string{"RecyclerView", "StaggeredGridLayoutManager", "ListView", "GridView", "WaterFall"}

// CardFeatures are the structural facts the card scorer weighs.
type CardFeatures struct {
	DescOnRoot      bool    `json:"desc_on_root"`
	ClickableParent bool    `json:"clickable_parent"`
	MediaArea       bool    `json:"media_area"`
	BottomBar       bool    `json:"bottom_bar"`
	Waterfall       bool    `json:"waterfall"`
	MediaRatio      float64 `json:"media_ratio"`
	BottomBarPos    float64 `json:"bottom_bar_pos"`
}

// Score weighs four boolean features at 0.10 each, closeness of the media
// ratio to 0.65 and of the bar position to 0.85 at up to 0.10 each, and a
// 0.25 bonus for list-container ancestry.
func (f CardFeatures) Score() float64 {
	var c float64
	for _, on := range []bool{f.DescOnRoot, f.ClickableParent, f.MediaArea, f.BottomBar} {
		if on {
			c += 0.10
		}
	}
	c += geom.Clamp01(1-abs(f.MediaRatio-0.65)) * 0.10
	c += geom.Clamp01(1-abs(f.BottomBarPos-0.85)) * 0.10
	if f.Waterfall {
		c += 0.25
	}
	return geom.Clamp01(c)
}

func scoreCard(s *snapshot.Snapshot, a Anchor) Outcome {
	o := Outcome{Node: -1, Evidence: noEvidence()}
	i, ok := Locate(s, a)
	if !ok {
		o.Explain = "card: anchor not found in snapshot"
		return o
	}
	o.Node = i

	root := FindCardRoot(s, i)
	rootFound := root >= 0
	if !rootFound {
		root = i
	}
	cp := FindClickableParent(s, root)
	f := ExtractCardFeatures(s, root, cp)

	o.Confidence = f.Score()
	o.Evidence.CardRoot = root
	o.Evidence.ClickableParent = cp
	o.Evidence.HierarchyDepth = hierarchyDepth(s, cp, root)
	o.Explain = fmt.Sprintf("card: desc=%t clickable_parent=%t media=%t bottom_bar=%t ratio=%.2f pos=%.2f waterfall=%t",
		f.DescOnRoot, f.ClickableParent, f.MediaArea, f.BottomBar, f.MediaRatio, f.BottomBarPos, f.Waterfall)
	if !rootFound {
		o.Confidence *= 0.5
		o.Explain += "; no card root located"
	}
	return o
}

// FindCardRoot walks up from i (inclusive) looking for a non-clickable
// FrameLayout carrying a description. It returns -1 when none is found.
func FindCardRoot(s *snapshot.Snapshot, i int) int {
	cur := i
	for step := 0; step <= cardRootSearchDepth; step++ {
		n := s.Node(cur)
		if strings.HasSuffix(n.Class, "FrameLayout") && !n.Clickable && strings.TrimSpace(n.Desc) != "" {
			return cur
		}
		p, ok := s.Parent(cur)
		if !ok {
			break
		}
		cur = p
	}
	return -1
}

// FindClickableParent returns the first clickable descendant of root (breadth
// first) that covers most of it, or root itself.
func FindClickableParent(s *snapshot.Snapshot, root int) int {
	rb := s.Node(root).Bounds
	queue := s.Children(root)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		n := s.Node(cur)
		if n.Clickable && n.Bounds.IOU(rb) > 0.5 {
			return cur
		}
		queue = append(queue, n.Children...)
	}
	return root
}

// ExtractCardFeatures measures the card rooted at root whose tap target is cp.
func ExtractCardFeatures(s *snapshot.Snapshot, root, cp int) CardFeatures {
	f := CardFeatures{
		DescOnRoot:      strings.TrimSpace(s.Node(root).Desc) != "",
		ClickableParent: hasClickableFrame(s, root),
		Waterfall:       hasWaterfallAncestor(s, cp),
	}
	ph := s.Node(cp).Bounds.Height()
	for _, g := range contentGroups(s, root) {
		if !f.MediaArea {
			if mb, ok := mediaBlock(s, g); ok && ph > 0 {
				f.MediaArea = true
				f.MediaRatio = float64(mb.Height()) / float64(ph)
			}
		}
		if !f.BottomBar {
			if bb, ok := bottomBar(s, g); ok && ph > 0 {
				f.BottomBar = true
				f.BottomBarPos = float64(bb.Top-s.Node(cp).Bounds.Top) / float64(ph)
			}
		}
	}
	return f
}

func hasClickableFrame(s *snapshot.Snapshot, root int) bool {
	queue := []int{root}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		n := s.Node(cur)
		if n.Clickable && strings.HasSuffix(n.Class, "FrameLayout") {
			return true
		}
		queue = append(queue, n.Children...)
	}
	return false
}

// contentGroups lists RelativeLayout/ConstraintLayout nodes under root,
// breadth first.
func contentGroups(s *snapshot.Snapshot, root int) []int {
	var out []int
	queue := []int{root}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		n := s.Node(cur)
		if strings.HasSuffix(n.Class, "RelativeLayout") || strings.HasSuffix(n.Class, "ConstraintLayout") {
			out = append(out, cur)
		}
		queue = append(queue, n.Children...)
	}
	return out
}

// mediaBlock finds an ImageView, directly under the group or inside a
// child container up to three levels deep, filling 40-90% of the group
// height.
func mediaBlock(s *snapshot.Snapshot, g int) (geom.Rect, bool) {
	gh := s.Node(g).Bounds.Height()
	if gh <= 0 {
		return geom.Rect{}, false
	}
	for _, c := range s.Node(g).Children {
		img, ok := findImage(s, c, 3)
		if !ok {
			continue
		}
		r := float64(img.Height()) / float64(gh)
		if r > 0.4 && r < 0.9 {
			return img, true
		}
	}
	return geom.Rect{}, false
}

func findImage(s *snapshot.Snapshot, i, depth int) (geom.Rect, bool) {
	if depth == 0 {
		return geom.Rect{}, false
	}
	n := s.Node(i)
	if strings.HasSuffix(n.Class, "ImageView") {
		return n.Bounds, true
	}
	for _, c := range n.Children {
		if r, ok := findImage(s, c, depth-1); ok {
			return r, true
		}
	}
	return geom.Rect{}, false
}

// bottomBar finds a child row starting in the lowest quarter of the group.
func bottomBar(s *snapshot.Snapshot, g int) (geom.Rect, bool) {
	gb := s.Node(g).Bounds
	if gb.Height() <= 0 {
		return geom.Rect{}, false
	}
	for _, c := range s.Node(g).Children {
		n := s.Node(c)
		if !strings.HasSuffix(n.Class, "LinearLayout") && !strings.HasSuffix(n.Class, "RelativeLayout") {
			continue
		}
		if float64(n.Bounds.Top-gb.Top)/float64(gb.Height()) > 0.75 {
			return n.Bounds, true
		}
	}
	return geom.Rect{}, false
}

func hasWaterfallAncestor(s *snapshot.Snapshot, i int) bool {
	for _, p := range s.Ancestors(i, waterfallSearch) {
		cls := s.Node(p).Class
		for _, m := range waterfallMarkers {
			if strings.Contains(cls, m) {
				return true
			}
		}
	}
	return false
}

// hierarchyDepth counts levels from the tap target up to the card root.
func hierarchyDepth(s *snapshot.Snapshot, from, root int) int {
	depth := 0
	cur := from
	for cur != root && depth < maxHierarchyDepth {
		p, ok := s.Parent(cur)
		if !ok {
			break
		}
		cur = p
		depth++
	}
	return depth
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
