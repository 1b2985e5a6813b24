// CLAUDE:SUMMARY Pre-execution safety gate — uniqueness (threshold/gap), container interception, light checks, all pure over scored candidates.
// Package gate holds the checks that stand between a scored match and a real
// tap: the candidate safety gate and the selector-level gate.
package gate

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/hazyhaar/uianchor/geom"
	"github.com/hazyhaar/uianchor/snapshot"
)

// Container classes that are never tapped directly, matched exactly.
var DefaultContainerClasses = []string{
	"android.widget.FrameLayout",
	"android.widget.LinearLayout",
	"android.view.ViewGroup",
	"com.android.internal.policy.DecorView",
	"android.widget.RelativeLayout",
	"android.widget.ScrollView",
	"androidx.constraintlayout.widget.ConstraintLayout",
}

// Candidate is one live node with the confidence a strategy assigned to it.
type Candidate struct {
	Node       int       `json:"node"`
	Confidence float64   `json:"confidence"`
	Bounds     geom.Rect `json:"bounds"`
	Class      string    `json:"class,omitempty"`
	Text       string    `json:"text,omitempty"`
	Clickable  bool      `json:"clickable"`
	Enabled    bool      `json:"enabled"`
	ChildTexts []string  `json:"child_texts,omitempty"`
}

// CandidateFromNode copies the gate-relevant attributes of node i.
func CandidateFromNode(s *snapshot.Snapshot, i int, confidence float64) Candidate {
	n := s.Node(i)
	return Candidate{
		Node:       i,
		Confidence: confidence,
		Bounds:     n.Bounds,
		Class:      n.Class,
		Text:       n.Label(),
		Clickable:  n.Clickable,
		Enabled:    n.Enabled,
		ChildTexts: s.DescendantTexts(i),
	}
}

// Config tunes the safety gate. Zero fields take defaults.
type Config struct {
	MinConfidence      float64   `yaml:"min_confidence" json:"min_confidence"`
	GapThreshold       float64   `yaml:"gap_threshold" json:"gap_threshold"`
	ContainerAreaRatio float64   `yaml:"container_area_ratio" json:"container_area_ratio"`
	Screen             geom.Rect `yaml:"-" json:"screen"`
	ContainerClasses   []string  `yaml:"container_classes" json:"container_classes,omitempty"`
	AllowContainers    bool      `yaml:"allow_containers" json:"allow_containers"`
}

// DefaultConfig returns the tuned defaults: 0.70 / 0.15 / 0.95 on a 1080×2400 screen.
func DefaultConfig() Config {
	c := Config{}
	c.defaults()
	return c
}

func (c *Config) defaults() {
	if c.MinConfidence == 0 {
		c.MinConfidence = 0.70
	}
	if c.GapThreshold == 0 {
		c.GapThreshold = 0.15
	}
	if c.ContainerAreaRatio == 0 {
		c.ContainerAreaRatio = 0.95
	}
	if c.Screen.Empty() {
		c.Screen = geom.Rect{Right: 1080, Bottom: 2400}
	}
	if len(c.ContainerClasses) == 0 {
		c.ContainerClasses = DefaultContainerClasses
	}
}

// Uniqueness is the result of the two-way uniqueness check.
type Uniqueness struct {
	Passed          bool    `json:"passed"`
	ThresholdUnique bool    `json:"threshold_unique"`
	GapUnique       bool    `json:"gap_unique"`
	Gap             float64 `json:"gap"`
	Qualified       int     `json:"qualified"`
}

// Gatekeeper runs the candidate safety checks. It never rescores:
// every method is a pure function of its inputs and the config.
type Gatekeeper struct {
	cfg    Config
	logger *slog.Logger
}

// NewGatekeeper creates a Gatekeeper. A nil logger means slog.Default().
func NewGatekeeper(cfg Config, logger *slog.Logger) *Gatekeeper {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Gatekeeper{cfg: cfg, logger: logger}
}

// Config returns the effective configuration.
func (g *Gatekeeper) Config() Config { return g.cfg }

// ValidateUniqueness passes when exactly one candidate clears MinConfidence
// (threshold-unique) or the top candidate leads the runner-up by at least
// GapThreshold (gap-unique). A lone candidate is gap-unique.
func (g *Gatekeeper) ValidateUniqueness(cands []Candidate) Uniqueness {
	var u Uniqueness
	if len(cands) == 0 {
		return u
	}
	sorted := sortByConfidence(cands)
	top := sorted[0]
	for _, c := range sorted {
		if c.Confidence >= g.cfg.MinConfidence {
			u.Qualified++
		}
	}
	u.ThresholdUnique = top.Confidence >= g.cfg.MinConfidence && u.Qualified == 1
	if len(sorted) == 1 {
		u.GapUnique = true
		u.Gap = top.Confidence
	} else {
		u.Gap = top.Confidence - sorted[1].Confidence
		// Rounding keeps 0.95-0.80 on the passing side of 0.15.
		u.GapUnique = u.Gap+1e-9 >= g.cfg.GapThreshold
	}
	u.Passed = u.ThresholdUnique || u.GapUnique
	return u
}

// CheckContainer rejects full-screen nodes and denylisted container classes.
func (g *Gatekeeper) CheckContainer(c Candidate) error {
	if g.cfg.AllowContainers {
		return nil
	}
	ratio := c.Bounds.AreaRatio(g.cfg.Screen)
	if ratio > g.cfg.ContainerAreaRatio {
		return &UnsafeTargetError{Reason: "full screen", Class: c.Class, Bounds: c.Bounds, AreaRatio: ratio}
	}
	if slices.Contains(g.cfg.ContainerClasses, c.Class) {
		return &UnsafeTargetError{Reason: "container class", Class: c.Class, Bounds: c.Bounds, AreaRatio: ratio}
	}
	return nil
}

// Check kinds understood by RunChecks.
const (
	CheckClickable            = "clickable"
	CheckEnabled              = "enabled"
	CheckChildTextContains    = "child_text_contains"
	CheckChildTextContainsAny = "child_text_contains_any"
)

// Check is one light re-check attached to a strategy variant.
type Check struct {
	Kind   string   `json:"type" yaml:"type"`
	Value  string   `json:"value,omitempty" yaml:"value,omitempty"`
	Values []string `json:"values,omitempty" yaml:"values,omitempty"`
}

func (c Check) String() string {
	switch {
	case c.Value != "":
		return c.Kind + "=" + c.Value
	case len(c.Values) > 0:
		return c.Kind + "=" + strings.Join(c.Values, "|")
	}
	return c.Kind
}

// RunChecks evaluates checks in order and returns the first failure as a
// *CheckError. Unknown kinds pass with a warning.
func (g *Gatekeeper) RunChecks(ctx context.Context, c Candidate, checks []Check) error {
	for _, chk := range checks {
		ok, known := evalCheck(c, chk)
		if !known {
			g.logger.WarnContext(ctx, "gate: unknown light check, passing", "kind", chk.Kind)
			continue
		}
		if !ok {
			return &CheckError{Check: chk}
		}
	}
	return nil
}

func evalCheck(c Candidate, chk Check) (ok, known bool) {
	switch chk.Kind {
	case CheckClickable:
		return c.Clickable, true
	case CheckEnabled:
		return c.Enabled, true
	case CheckChildTextContains:
		return chk.Value != "" && textContains(c, chk.Value), true
	case CheckChildTextContainsAny:
		return slices.ContainsFunc(chk.Values, func(v string) bool {
			return v != "" && textContains(c, v)
		}), true
	}
	return true, false
}

func textContains(c Candidate, v string) bool {
	if strings.Contains(c.Text, v) {
		return true
	}
	return slices.ContainsFunc(c.ChildTexts, func(t string) bool { return strings.Contains(t, v) })
}

// Validate runs uniqueness, container interception and light checks in
// sequence and returns the top candidate when all pass. Rejections come
// back as ErrNoCandidates, *AmbiguousMatchError, *UnsafeTargetError or
// *CheckError.
func (g *Gatekeeper) Validate(ctx context.Context, cands []Candidate, checks []Check) (Candidate, error) {
	if len(cands) == 0 {
		return Candidate{}, ErrNoCandidates
	}
	sorted := sortByConfidence(cands)
	u := g.ValidateUniqueness(sorted)
	if !u.Passed {
		err := &AmbiguousMatchError{Count: len(sorted), Top: sorted[0].Confidence, RunnerUp: sorted[1].Confidence}
		g.logger.InfoContext(ctx, "gate: uniqueness rejected",
			"candidates", len(sorted), "qualified", u.Qualified, "gap", u.Gap)
		return Candidate{}, err
	}
	best := sorted[0]
	if err := g.CheckContainer(best); err != nil {
		g.logger.WarnContext(ctx, "gate: unsafe target intercepted", "node", best.Node, "error", err)
		return Candidate{}, err
	}
	if err := g.RunChecks(ctx, best, checks); err != nil {
		g.logger.InfoContext(ctx, "gate: light check failed", "node", best.Node, "error", err)
		return Candidate{}, err
	}
	g.logger.DebugContext(ctx, "gate: passed", "node", best.Node, "confidence", best.Confidence,
		"threshold_unique", u.ThresholdUnique, "gap_unique", u.GapUnique)
	return best, nil
}

func sortByConfidence(cands []Candidate) []Candidate {
	sorted := slices.Clone(cands)
	slices.SortStableFunc(sorted, func(a, b Candidate) int {
		switch {
		case a.Confidence > b.Confidence:
			return -1
		case a.Confidence < b.Confidence:
			return 1
		}
		return 0
	})
	return sorted
}
