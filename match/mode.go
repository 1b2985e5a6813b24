// CLAUDE:SUMMARY Closed set of match modes (CardSubtree, LeafContext, TextExact), score outcomes and per-mode gates.
// Package match scores how well an Anchor is represented in a Snapshot under
// each match mode, and picks the mode to act with.
//
// Scorers are pure functions of (anchor, snapshot, config): they never fail
// on low confidence and may run concurrently on the same Snapshot.
package match

import (
	"fmt"

	"github.com/hazyhaar/uianchor/snapshot"
)

// Mode is a match strategy. The set is closed: every switch over Mode is
// exhaustive.
type Mode int

const (
	CardSubtree Mode = iota + 1
	LeafContext
	TextExact
)

// Modes lists every mode in tie-break priority order, highest first.
var Modes = []Mode{TextExact, CardSubtree, LeafContext}

func (m Mode) String() string {
	switch m {
	case CardSubtree:
		return "card_subtree"
	case LeafContext:
		return "leaf_context"
	case TextExact:
		return "text_exact"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseMode is the inverse of String.
func ParseMode(s string) (Mode, error) {
	for _, m := range Modes {
		if m.String() == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("match: unknown mode %q", s)
}

// MarshalText encodes the mode by name.
func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalText decodes a mode name.
func (m *Mode) UnmarshalText(b []byte) error {
	v, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// priority orders modes for tie-breaks: exact text is least ambiguous.
func (m Mode) priority() int {
	switch m {
	case TextExact:
		return 3
	case CardSubtree:
		return 2
	case LeafContext:
		return 1
	}
	return 0
}

// Evidence carries the structural facts a scorer found, reused by the
// execution bridge to pick an instruction kind.
type Evidence struct {
	CardRoot        int    `json:"card_root"`
	ClickableParent int    `json:"clickable_parent"`
	HierarchyDepth  int    `json:"hierarchy_depth"`
	RowContainer    int    `json:"row_container"`
	Label           string `json:"label,omitempty"`
	LabelSource     string `json:"label_source,omitempty"` // "text" | "content-desc"
	Occurrences     int    `json:"occurrences,omitempty"`
}

func noEvidence() Evidence {
	return Evidence{CardRoot: -1, ClickableParent: -1, RowContainer: -1}
}

// Outcome is one mode's verdict for one anchor against one snapshot.
type Outcome struct {
	Mode       Mode     `json:"mode"`
	Confidence float64  `json:"confidence"`
	Passed     bool     `json:"passed_gate"`
	Explain    string   `json:"explain"`
	Node       int      `json:"node"`
	Evidence   Evidence `json:"evidence"`
}

// Config holds the per-mode gates and selector thresholds.
type Config struct {
	CardGate      float64 `yaml:"card_gate" json:"card_gate"`
	LeafGate      float64 `yaml:"leaf_gate" json:"leaf_gate"`
	TextGate      float64 `yaml:"text_gate" json:"text_gate"`
	MinConfidence float64 `yaml:"min_confidence" json:"min_confidence"`
	TopGap        float64 `yaml:"top_gap" json:"top_gap"`
}

// DefaultConfig returns the tuned thresholds.
func DefaultConfig() Config {
	return Config{
		CardGate:      0.55,
		LeafGate:      0.72,
		TextGate:      0.80,
		MinConfidence: 0.70,
		TopGap:        0.15,
	}
}

func (c *Config) defaults() {
	d := DefaultConfig()
	if c.CardGate <= 0 {
		c.CardGate = d.CardGate
	}
	if c.LeafGate <= 0 {
		c.LeafGate = d.LeafGate
	}
	if c.TextGate <= 0 {
		c.TextGate = d.TextGate
	}
	if c.MinConfidence <= 0 {
		c.MinConfidence = d.MinConfidence
	}
	if c.TopGap <= 0 {
		c.TopGap = d.TopGap
	}
}

// Gate returns the threshold mode m must reach.
func (c Config) Gate(m Mode) float64 {
	switch m {
	case CardSubtree:
		return c.CardGate
	case LeafContext:
		return c.LeafGate
	case TextExact:
		return c.TextGate
	}
	return 1
}

// Score runs the scorer for mode m.
func Score(m Mode, s *snapshot.Snapshot, a Anchor, cfg Config) Outcome {
	cfg.defaults()
	var o Outcome
	switch m {
	case CardSubtree:
		o = scoreCard(s, a)
	case LeafContext:
		o = scoreLeaf(s, a)
	case TextExact:
		o = scoreText(s, a)
	default:
		return Outcome{Mode: m, Node: -1, Evidence: noEvidence(), Explain: "unknown mode"}
	}
	o.Mode = m
	o.Passed = o.Confidence >= cfg.Gate(m)
	return o
}
