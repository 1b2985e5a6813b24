// CLAUDE:SUMMARY Recovery manager — re-derives the target from the recorded dump, filters similar live nodes and picks one with the evaluator.
// Package recovery re-finds an element after every planned strategy failed.
//
// The recorded dump is the source of truth: the target is located there
// first, then live nodes sharing its text, resource-id or description are
// ranked by an Evaluator. When the target carries no text at all, only a
// strict bounds or path match is accepted.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hazyhaar/uianchor/geom"
	"github.com/hazyhaar/uianchor/snapshot"
)

// ErrTargetNotFound is returned when no cascade rule resolves the target in
// the recorded dump.
var ErrTargetNotFound = errors.New("recovery: target not found in original dump")

// Rules of the original-target cascade, in order.
const (
	RuleXPath     = "xpath"
	RuleTextAndID = "text+resource-id"
	RuleText      = "text"
	RuleDesc      = "content-desc"
)

// Config tunes recovery. Zero fields take defaults.
type Config struct {
	MaxCandidates int     `yaml:"max_candidates" json:"max_candidates"`
	MaxDistancePX float64 `yaml:"max_distance_px" json:"max_distance_px"`
}

// DefaultConfig returns 10 candidates and 400px.
func DefaultConfig() Config {
	var c Config
	c.defaults()
	return c
}

func (c *Config) defaults() {
	if c.MaxCandidates <= 0 {
		c.MaxCandidates = 10
	}
	if c.MaxDistancePX <= 0 {
		c.MaxDistancePX = 400
	}
}

// Outcome is the result of one recovery. Best is -1 when nothing on the
// live screen is trustworthy enough to act on.
type Outcome struct {
	Strategy   string   `json:"recovery_strategy"`
	Rule       string   `json:"rule"`
	Original   Target   `json:"original_target"`
	Candidates []Scored `json:"candidates"`
	Best       int      `json:"best"`
	Confidence float64  `json:"confidence"`
	Strict     bool     `json:"strict_match"`
	Reason     string   `json:"reason"`
}

// Manager runs recoveries.
type Manager struct {
	cfg    Config
	eval   Evaluator
	logger *slog.Logger
}

// NewManager builds a Manager. A nil logger uses slog.Default().
func NewManager(cfg Config, logger *slog.Logger) *Manager {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{cfg: cfg, eval: Evaluator{MaxDistance: cfg.MaxDistancePX}, logger: logger}
}

// Recover locates rc's target in the recorded dump and picks its live
// counterpart in live.
func (m *Manager) Recover(ctx context.Context, rc Context, live *snapshot.Snapshot) (Outcome, error) {
	orig, err := snapshot.Build(rc.OriginalXML)
	if err != nil {
		return Outcome{}, fmt.Errorf("recovery: original dump: %w", err)
	}
	i, rule, ok := locateOriginal(orig, rc)
	if !ok {
		m.logger.WarnContext(ctx, "recovery: target not found in original", "xpath", rc.SelectedXPath, "text", rc.Text)
		return Outcome{}, ErrTargetNotFound
	}
	t := TargetFromNode(orig.Node(i))
	if rc.Bounds != nil && t.Bounds.Empty() {
		t.Bounds = *rc.Bounds
	}

	out := Outcome{Strategy: rc.Strategy(), Rule: rule, Original: t, Best: -1}
	cands := m.similar(live, t)
	out.Candidates = m.eval.Evaluate(t, live, cands)

	if t.Text == "" && t.Desc == "" {
		if best, ok := strictMatch(live, t); ok {
			out.Best, out.Confidence, out.Strict = best, 1, true
			out.Reason = "no text signal: strict bounds/path match"
		} else {
			out.Reason = "no text signal and no strict bounds/path match"
		}
	} else if len(out.Candidates) > 0 {
		top := out.Candidates[0]
		out.Best, out.Confidence = top.Node, top.Score
		out.Reason = "evaluator: " + strings.Join(top.Reasons, ", ")
	} else {
		out.Reason = "no live node shares text, resource-id or description"
	}

	m.logger.InfoContext(ctx, "recovery: done", "strategy", out.Strategy, "rule", rule,
		"candidates", len(out.Candidates), "best", out.Best, "confidence", out.Confidence)
	return out, nil
}

// locateOriginal runs the cascade: stored path, text with resource-id,
// text, description. The first rule with a unique hit wins; failing that,
// the first hit of the earliest rule that matched anything.
func locateOriginal(s *snapshot.Snapshot, rc Context) (int, string, bool) {
	type attempt struct {
		rule string
		hits []int
	}
	var tries []attempt
	if rc.SelectedXPath != "" {
		if hits, err := s.Select(rc.SelectedXPath); err == nil {
			tries = append(tries, attempt{RuleXPath, hits})
		}
	}
	if rc.Text != "" && rc.ResourceID != "" {
		var hits []int
		for _, i := range s.ByText(rc.Text) {
			if s.Node(i).ResourceID == rc.ResourceID {
				hits = append(hits, i)
			}
		}
		tries = append(tries, attempt{RuleTextAndID, hits})
	}
	if rc.Text != "" {
		tries = append(tries, attempt{RuleText, s.ByText(rc.Text)})
	}
	if rc.Desc != "" {
		var hits []int
		for i := range s.Len() {
			if strings.Contains(s.Node(i).Desc, rc.Desc) {
				hits = append(hits, i)
			}
		}
		tries = append(tries, attempt{RuleDesc, hits})
	}

	for _, a := range tries {
		if len(a.hits) == 1 {
			return a.hits[0], a.rule, true
		}
	}
	for _, a := range tries {
		if len(a.hits) > 0 {
			return a.hits[0], a.rule, true
		}
	}
	return -1, "", false
}

// similar keeps live nodes sharing text (either containing the other),
// resource-id or description with t, narrowed by resource-id past
// MaxCandidates.
func (m *Manager) similar(s *snapshot.Snapshot, t Target) []int {
	var out []int
	for i := range s.Len() {
		n := s.Node(i)
		if overlaps(t.Text, n.Text) || (t.ResourceID != "" && t.ResourceID == n.ResourceID) || overlaps(t.Desc, n.Desc) {
			out = append(out, i)
		}
	}
	if len(out) > m.cfg.MaxCandidates && t.ResourceID != "" {
		var byID []int
		for _, i := range out {
			if s.Node(i).ResourceID == t.ResourceID {
				byID = append(byID, i)
			}
		}
		if len(byID) > 0 {
			out = byID
		}
	}
	return out
}

func overlaps(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return a == b || strings.Contains(a, b) || strings.Contains(b, a)
}

// strictMatch accepts a live node of the same class whose path is
// identical or whose bounds are equivalent (IOU ≥ 0.9). An identical path
// wins over equivalent bounds.
func strictMatch(s *snapshot.Snapshot, t Target) (int, bool) {
	best, bestIOU := -1, 0.0
	for i := range s.Len() {
		n := s.Node(i)
		if t.Class != "" && n.Class != t.Class {
			continue
		}
		if t.Path != "" && n.Path == t.Path {
			return i, true
		}
		if t.Bounds.Empty() {
			continue
		}
		if bm := geom.MatchBounds(t.Bounds, n.Bounds); bm.Equivalent && bm.IOU > bestIOU {
			best, bestIOU = i, bm.IOU
		}
	}
	return best, best >= 0
}
