package container

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/hazyhaar/uianchor/geom"
	"github.com/hazyhaar/uianchor/snapshot"
)

// Hint is the selection blob a caller captured alongside an anchor.
// Bounds accepts either "[l,t][r,b]" or {"left":..,"top":..,...}.
type Hint struct {
	SelectedElementID string     `json:"selected_element_id,omitempty"`
	Bounds            *geom.Rect `json:"bounds,omitempty"`
	Class             string     `json:"class,omitempty"`
	ResourceID        string     `json:"resource_id,omitempty"`
	AncestorSignChain []string   `json:"ancestor_sign_chain,omitempty"`
}

func (h *Hint) UnmarshalJSON(data []byte) error {
	type plain Hint
	var raw struct {
		plain
		Bounds json.RawMessage `json:"bounds"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*h = Hint(raw.plain)
	h.Bounds = nil
	b := bytes.TrimSpace(raw.Bounds)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	var r geom.Rect
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		parsed, err := geom.ParseRect(s)
		if err != nil {
			return err
		}
		r = parsed
	} else if err := json.Unmarshal(b, &r); err != nil {
		return fmt.Errorf("container: hint bounds: %w", err)
	}
	h.Bounds = &r
	return nil
}

// ParseHint decodes a JSON hint blob. An empty blob is an empty hint.
func ParseHint(data []byte) (Hint, error) {
	var h Hint
	if len(bytes.TrimSpace(data)) == 0 {
		return h, nil
	}
	if err := json.Unmarshal(data, &h); err != nil {
		return Hint{}, fmt.Errorf("container: parse hint: %w", err)
	}
	return h, nil
}

// ElementIndex extracts N from "element_N" or "node_N".
func (h Hint) ElementIndex() (int, bool) {
	for _, prefix := range []string{"element_", "node_"} {
		if rest, ok := strings.CutPrefix(h.SelectedElementID, prefix); ok {
			n, err := strconv.Atoi(rest)
			return n, err == nil && n >= 0
		}
	}
	return 0, false
}

// Config bounds the container candidates by screen share.
type Config struct {
	MaxScreenRatio float64 `yaml:"max_screen_ratio" json:"max_screen_ratio"`
	MinScreenRatio float64 `yaml:"min_screen_ratio" json:"min_screen_ratio"`
	MinConfidence  float64 `yaml:"min_confidence" json:"min_confidence"`
}

// DefaultConfig excludes containers above 95% or below 5% of the screen and
// keeps items scoring 0.70 or more.
func DefaultConfig() Config {
	c := Config{}
	c.defaults()
	return c
}

func (c *Config) defaults() {
	if c.MaxScreenRatio == 0 {
		c.MaxScreenRatio = 0.95
	}
	if c.MinScreenRatio == 0 {
		c.MinScreenRatio = 0.05
	}
	if c.MinConfidence == 0 {
		c.MinConfidence = 0.70
	}
}

// Scope is the container picked for a hint, with the ranked evidence trail.
type Scope struct {
	Container  int      `json:"container"`
	Anchor     int      `json:"anchor"`
	Score      float64  `json:"score"`
	Confidence float64  `json:"confidence"`
	Reason     string   `json:"reason"`
	Trail      []string `json:"trail,omitempty"`
}

type proposal struct {
	node  int
	score float64
	note  string
}

// Resolve picks the container the hint points into. Proposals from the
// element id, bounds, ancestor signatures and scrollable ancestry are summed
// per node; candidates covering more than MaxScreenRatio or less than
// MinScreenRatio of the screen are dropped. With nothing left the root is
// returned at 0.1.
func Resolve(s *snapshot.Snapshot, h Hint, cfg Config) Scope {
	cfg.defaults()
	anchor := hintAnchor(s, h)

	var props []proposal
	if anchor >= 0 {
		props = append(props, elementProposals(s, h, anchor)...)
		props = append(props, boundsProposals(s, h, anchor)...)
		props = append(props, signatureProposals(s, h, anchor)...)
		props = append(props, scrollableProposals(s, anchor)...)
	}

	screen := s.Screen()
	totals := map[int]float64{}
	notes := map[int][]string{}
	var order []int
	for _, p := range props {
		ratio := s.Node(p.node).Bounds.AreaRatio(screen)
		if ratio > cfg.MaxScreenRatio || ratio < cfg.MinScreenRatio {
			continue
		}
		if _, seen := totals[p.node]; !seen {
			order = append(order, p.node)
		}
		totals[p.node] += p.score
		notes[p.node] = append(notes[p.node], p.note)
	}

	slices.SortStableFunc(order, func(a, b int) int {
		switch {
		case totals[a] > totals[b]:
			return -1
		case totals[a] < totals[b]:
			return 1
		}
		return 0
	})

	sc := Scope{Anchor: anchor}
	for _, n := range order[:min(len(order), 5)] {
		sc.Trail = append(sc.Trail, fmt.Sprintf("node=%d score=%.2f %s", n, totals[n], strings.Join(notes[n], ",")))
	}
	if len(order) == 0 {
		sc.Container = s.Root()
		sc.Score = 0.1
		sc.Confidence = 0.1
		sc.Reason = "fallback_root"
		return sc
	}
	best := order[0]
	sc.Container = best
	sc.Score = totals[best]
	sc.Confidence = geom.Clamp01(totals[best])
	sc.Reason = strings.Join(notes[best], ",")
	return sc
}

// hintAnchor resolves the hinted element: element index, then the smallest
// node containing the bounds, then the first node with the resource id.
func hintAnchor(s *snapshot.Snapshot, h Hint) int {
	if i, ok := h.ElementIndex(); ok && s.Valid(i) {
		return i
	}
	if h.Bounds != nil {
		if exact := s.ExactBounds(*h.Bounds); len(exact) > 0 {
			return exact[len(exact)-1]
		}
		if i, ok := s.SmallestContaining(*h.Bounds); ok {
			return i
		}
	}
	if h.ResourceID != "" {
		if ids := s.ByResourceID(h.ResourceID); len(ids) > 0 {
			return ids[0]
		}
	}
	return -1
}

func elementProposals(s *snapshot.Snapshot, h Hint, anchor int) []proposal {
	if i, ok := h.ElementIndex(); !ok || i != anchor {
		return nil
	}
	for _, a := range s.Ancestors(anchor, 20) {
		if s.Node(a).Scrollable {
			return []proposal{{a, 0.95, "element_id_scrollable_ancestor"}}
		}
	}
	if p, ok := s.Parent(anchor); ok {
		return []proposal{{p, 0.85, "element_id_parent"}}
	}
	return nil
}

func boundsProposals(s *snapshot.Snapshot, h Hint, anchor int) []proposal {
	if h.Bounds == nil {
		return nil
	}
	hb := *h.Bounds
	diag := s.Screen().Diagonal()
	var out []proposal
	for _, a := range s.Ancestors(anchor, 0) {
		nb := s.Node(a).Bounds
		if iou := nb.IOU(hb); iou > 0.02 {
			out = append(out, proposal{a, math.Min(iou*0.5, 0.25), fmt.Sprintf("bounds_iou=%.3f", iou)})
		}
		if diag > 0 {
			if c := (1 - math.Min(nb.CenterDistance(hb)/diag, 1)) * 0.10; c > 0.01 {
				out = append(out, proposal{a, c, "bounds_center"})
			}
		}
	}
	return out
}

func signatureProposals(s *snapshot.Snapshot, h Hint, anchor int) []proposal {
	if len(h.AncestorSignChain) == 0 {
		return nil
	}
	var out []proposal
	for _, a := range s.Ancestors(anchor, 0) {
		n := s.Node(a)
		short := n.Class[strings.LastIndexByte(n.Class, '.')+1:]
		for _, sig := range h.AncestorSignChain {
			if sig != "" && (sig == n.Class || sig == short || sig == n.ResourceID) {
				out = append(out, proposal{a, 0.10, "ancestor_sign=" + sig})
				break
			}
		}
	}
	return out
}

func scrollableProposals(s *snapshot.Snapshot, anchor int) []proposal {
	var out []proposal
	for _, a := range s.Ancestors(anchor, 0) {
		n := s.Node(a)
		if n.Scrollable && len(out) == 0 {
			out = append(out, proposal{a, 0.5, "nearest_scrollable"})
		}
		if p := ListPriority(n.Class); p >= listPriorityImmediate {
			out = append(out, proposal{a, 0.4 * float64(p) / 100, "list_class"})
		}
	}
	return out
}
