// CLAUDE:SUMMARY Strategy plan model — variants wrapping bridge instructions, selected-first ordering and a snapshot-backed finder.
package fallback

import (
	"context"
	"fmt"
	"slices"

	"github.com/hazyhaar/uianchor/bridge"
	"github.com/hazyhaar/uianchor/gate"
	"github.com/hazyhaar/uianchor/geom"
	"github.com/hazyhaar/uianchor/snapshot"
)

// Variant is one executable strategy of a plan.
type Variant struct {
	ID          string             `json:"id"`
	Instruction bridge.Instruction `json:"instruction"`
	Checks      []gate.Check       `json:"checks,omitempty"`
}

// Plan is an ordered list of variants with one pre-selected.
type Plan struct {
	Selected string    `json:"selected"`
	Variants []Variant `json:"variants"`
}

// Order returns the selected variant first, then the others in plan order.
// An unknown or empty selection keeps plan order.
func (p Plan) Order() []Variant {
	sel := slices.IndexFunc(p.Variants, func(v Variant) bool { return v.ID == p.Selected })
	if sel < 0 {
		return slices.Clone(p.Variants)
	}
	out := make([]Variant, 0, len(p.Variants))
	out = append(out, p.Variants[sel])
	for k, v := range p.Variants {
		if k != sel {
			out = append(out, v)
		}
	}
	return out
}

// PlanFromMapping turns a bridge mapping into a plan that selects the primary
// instruction. checks are attached to every variant.
func PlanFromMapping(m bridge.Mapping, checks []gate.Check) Plan {
	var p Plan
	for k, cm := range m.Strategy.Modes() {
		v := Variant{
			ID:          fmt.Sprintf("%s#%d", cm.Kind(), k),
			Instruction: bridge.Instruction{Mode: cm},
			Checks:      checks,
		}
		if k == 0 {
			p.Selected = v.ID
		}
		p.Variants = append(p.Variants, v)
	}
	return p
}

// Match is a gate candidate plus the point to tap.
type Match struct {
	gate.Candidate
	X int `json:"x"`
	Y int `json:"y"`
}

// Finder locates the live matches of a variant.
type Finder interface {
	Find(ctx context.Context, v Variant) ([]Match, error)
}

// Executor performs the tap on the device.
type Executor interface {
	Tap(ctx context.Context, x, y int) error
}

// SnapshotFinder resolves variants against one captured snapshot.
type SnapshotFinder struct {
	Snapshot *snapshot.Snapshot
}

func (f SnapshotFinder) Find(_ context.Context, v Variant) ([]Match, error) {
	if v.Instruction.Mode == nil {
		return nil, fmt.Errorf("fallback: variant %s has no instruction", v.ID)
	}
	hits := bridge.Locate(v.Instruction.Mode, f.Snapshot)
	out := make([]Match, 0, len(hits))
	for _, h := range hits {
		var c gate.Candidate
		if f.Snapshot.Valid(h.Node) {
			c = gate.CandidateFromNode(f.Snapshot, h.Node, h.Confidence)
		} else {
			c = gate.Candidate{Node: -1, Confidence: h.Confidence, Enabled: true,
				Bounds: geom.Rect{Left: h.X, Top: h.Y, Right: h.X, Bottom: h.Y}}
		}
		out = append(out, Match{Candidate: c, X: h.X, Y: h.Y})
	}
	return out, nil
}
