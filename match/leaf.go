package match

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/hazyhaar/uianchor/snapshot"
)

// leafKeywords are button labels that survive content changes.
var leafKeywords = []string{
	"关注", "已关注", "关注中", "取消关注",
	"Follow", "Following", "Unfollow",
	"私信", "Message", "聊天", "Chat",
	"更多", "More", "...",
}

var (
	rowClasses      = []string{"LinearLayout", "RelativeLayout", "ConstraintLayout"}
	ancestorClasses = []string{"LinearLayout", "RelativeLayout", "ConstraintLayout", "FrameLayout", "CardView", "ViewGroup", "View"}
)

const (
	leafRowSearch  = 3
	leafRowMinKids = 2
	leafRowMaxKids = 5
)

// LeafFeatures are the per-signal sub-scores of the leaf scorer, each in [0,1]
// before weighting.
type LeafFeatures struct {
	Text     float64 `json:"text"`
	Sibling  float64 `json:"sibling"`
	Ancestor float64 `json:"ancestor"`
	Geometry float64 `json:"geometry"`
	Row      int     `json:"row"`
}

// Score adds the weighted signals: the text term is already weighted (0.45
// for a stable keyword, 0.20 for any other label), the row shape weighs 0.30,
// the ancestor layout pattern 0.15 and the normalized position inside the
// row 0.10.
func (f LeafFeatures) Score() float64 {
	return clamp(f.Text + f.Sibling*0.30 + f.Ancestor*0.15 + f.Geometry*0.10)
}

func scoreLeaf(s *snapshot.Snapshot, a Anchor) Outcome {
	o := Outcome{Node: -1, Evidence: noEvidence()}
	i, ok := Locate(s, a)
	if !ok {
		o.Explain = "leaf: anchor not found in snapshot"
		return o
	}
	o.Node = i

	f := ExtractLeafFeatures(s, i)
	o.Confidence = f.Score()
	o.Evidence.RowContainer = f.Row
	n := s.Node(i)
	o.Evidence.Label = n.Label()
	o.Evidence.LabelSource = labelSource(n)
	o.Explain = fmt.Sprintf("leaf: text=%.2f sibling=%.2f ancestor=%.2f geometry=%.2f",
		f.Text, f.Sibling, f.Ancestor, f.Geometry)
	if f.Row < 0 {
		o.Explain += "; no button row located"
	}
	return o
}

// ExtractLeafFeatures measures node i as a small interactive leaf.
func ExtractLeafFeatures(s *snapshot.Snapshot, i int) LeafFeatures {
	n := s.Node(i)
	f := LeafFeatures{Row: FindButtonRow(s, i)}

	switch label := strings.TrimSpace(n.Label()); {
	case isLeafKeyword(strings.TrimSpace(n.Text)) || isLeafKeyword(strings.TrimSpace(n.Desc)):
		f.Text = 0.45
	case label != "":
		f.Text = 0.20
	}

	if f.Row >= 0 {
		kids := s.Node(f.Row).Children
		if len(kids) < 3 {
			f.Sibling = 0.5
		} else {
			f.Sibling = 0.8
		}
		if idx := rowIndex(s, f.Row, i); idx >= 0 {
			f.Geometry = rowPositionScore(idx, len(kids))
		}
	}

	if anc := s.Ancestors(i, leafRowSearch); len(anc) > 0 {
		f.Ancestor = 0.2
		for _, p := range anc {
			if hasSuffixAny(s.Node(p).Class, ancestorClasses) {
				f.Ancestor = 0.8
				break
			}
		}
	}
	return f
}

// rowIndex is the position among row's children of the child holding i.
func rowIndex(s *snapshot.Snapshot, row, i int) int {
	for cur := i; cur >= 0; {
		p, ok := s.Parent(cur)
		if !ok {
			return -1
		}
		if p == row {
			return slices.Index(s.Node(row).Children, cur)
		}
		cur = p
	}
	return -1
}

// rowPositionScore rewards the ends of a row, where action buttons and
// avatars sit: the normalized index idx/(n-1) is scored by its distance to
// 0.85 (right) or 0.10 (left), whichever is closer.
func rowPositionScore(idx, n int) float64 {
	pos := float64(idx) / float64(max(n-1, 1))
	right := 1 - math.Abs(pos-0.85)
	left := 1 - math.Abs(pos-0.10)
	return clamp(max(right, left))
}

// FindButtonRow returns the nearest ancestor (up to three levels) that is a
// row layout with 2-5 direct children, or -1.
func FindButtonRow(s *snapshot.Snapshot, i int) int {
	for _, p := range s.Ancestors(i, leafRowSearch) {
		n := s.Node(p)
		if !hasSuffixAny(n.Class, rowClasses) {
			continue
		}
		if k := len(n.Children); k >= leafRowMinKids && k <= leafRowMaxKids {
			return p
		}
	}
	return -1
}

func isLeafKeyword(label string) bool {
	if label == "" {
		return false
	}
	for _, k := range leafKeywords {
		if strings.EqualFold(label, k) {
			return true
		}
	}
	return false
}

func hasSuffixAny(s string, suffixes []string) bool {
	for _, suf := range suffixes {
		if strings.HasSuffix(s, suf) {
			return true
		}
	}
	return false
}

func labelSource(n *snapshot.Node) string {
	switch {
	case n.Text != "":
		return "text"
	case n.Desc != "":
		return "content-desc"
	}
	return ""
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
