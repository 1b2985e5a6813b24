package recovery

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/hazyhaar/uianchor/geom"
	"github.com/hazyhaar/uianchor/snapshot"
)

// Evaluator weights. Text and description contribute their CompareText
// similarity times the weight; distance decays linearly to zero at
// MaxDistance.
const (
	WeightText     = 0.4
	WeightDesc     = 0.3
	WeightDistance = 0.2
	WeightID       = 0.05
	WeightClass    = 0.05
)

// Target is the recorded element a live candidate is compared against.
type Target struct {
	Text       string    `json:"text,omitempty"`
	Desc       string    `json:"content_desc,omitempty"`
	ResourceID string    `json:"resource_id,omitempty"`
	Class      string    `json:"class,omitempty"`
	Bounds     geom.Rect `json:"bounds"`
	Path       string    `json:"path,omitempty"`
}

// TargetFromNode records node n.
func TargetFromNode(n *snapshot.Node) Target {
	return Target{Text: n.Text, Desc: n.Desc, ResourceID: n.ResourceID, Class: n.Class, Bounds: n.Bounds, Path: n.Path}
}

// Scored is one evaluated live candidate.
type Scored struct {
	Node     int      `json:"node"`
	Score    float64  `json:"score"`
	Distance float64  `json:"distance_px"`
	Reasons  []string `json:"reasons,omitempty"`
}

// Evaluator ranks live candidates against a target.
type Evaluator struct {
	MaxDistance float64
}

// Evaluate scores every candidate and returns them best first. Equal
// scores keep input order, so the first-seen candidate wins a tie.
func (e Evaluator) Evaluate(t Target, s *snapshot.Snapshot, cands []int) []Scored {
	maxDist := e.MaxDistance
	if maxDist <= 0 {
		maxDist = 400
	}
	out := make([]Scored, 0, len(cands))
	for _, i := range cands {
		out = append(out, e.score(t, s.Node(i), maxDist))
	}
	slices.SortStableFunc(out, func(a, b Scored) int { return cmp.Compare(b.Score, a.Score) })
	return out
}

func (e Evaluator) score(t Target, n *snapshot.Node, maxDist float64) Scored {
	sc := Scored{Node: n.Index, Distance: -1}
	if t.Text != "" && n.Text != "" {
		if sim := CompareText(t.Text, n.Text); sim > 0 {
			sc.Score += WeightText * sim
			sc.Reasons = append(sc.Reasons, fmt.Sprintf("text %.2f", sim))
		}
	}
	if t.Desc != "" && n.Desc != "" {
		if sim := CompareText(t.Desc, n.Desc); sim > 0 {
			sc.Score += WeightDesc * sim
			sc.Reasons = append(sc.Reasons, fmt.Sprintf("desc %.2f", sim))
		}
	}
	if !t.Bounds.Empty() && !n.Bounds.Empty() {
		sc.Distance = t.Bounds.CenterDistance(n.Bounds)
		if sc.Distance < maxDist {
			sc.Score += WeightDistance * (1 - sc.Distance/maxDist)
			sc.Reasons = append(sc.Reasons, fmt.Sprintf("distance %.0fpx", sc.Distance))
		}
	}
	if t.ResourceID != "" && t.ResourceID == n.ResourceID {
		sc.Score += WeightID
		sc.Reasons = append(sc.Reasons, "resource-id")
	}
	if t.Class != "" && t.Class == n.Class {
		sc.Score += WeightClass
		sc.Reasons = append(sc.Reasons, "class")
	}
	return sc
}
