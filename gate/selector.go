package gate

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/hazyhaar/uianchor/snapshot"
)

// Recommendation tells the fallback controller what to do after a selector
// verification.
type Recommendation int

const (
	Proceed Recommendation = iota
	UseFallback
	UseBoundsDirectly
	Abort
)

var recommendationNames = [...]string{"proceed", "use_fallback", "use_bounds_directly", "abort"}

func (r Recommendation) String() string {
	if r < 0 || int(r) >= len(recommendationNames) {
		return fmt.Sprintf("recommendation(%d)", int(r))
	}
	return recommendationNames[r]
}

func (r Recommendation) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

func (r *Recommendation) UnmarshalText(b []byte) error {
	for i, n := range recommendationNames {
		if n == string(b) {
			*r = Recommendation(i)
			return nil
		}
	}
	return fmt.Errorf("gate: unknown recommendation %q", b)
}

// Verification is the outcome of checking a selector against a live snapshot.
type Verification struct {
	Selector           string         `json:"selector"`
	Passed             bool           `json:"passed"`
	MatchCount         int            `json:"match_count"`
	Matches            []int          `json:"matches,omitempty"`
	AdjustedConfidence float64        `json:"adjusted_confidence"`
	Reason             string         `json:"reason"`
	Recommendation     Recommendation `json:"recommendation"`
	ID                 *IDAssessment  `json:"id_assessment,omitempty"`
}

// Err converts a failed multi-match verification into an *AmbiguousMatchError.
func (v Verification) Err() error {
	if v.Passed || v.MatchCount < 2 {
		return nil
	}
	return &AmbiguousMatchError{Count: v.MatchCount, Selector: v.Selector}
}

// SelectorConfig tunes the selector gate. Zero numeric fields take defaults.
type SelectorConfig struct {
	MinConfidence     float64 `yaml:"min_confidence" json:"min_confidence"`
	MaxAllowedMatches int     `yaml:"max_allowed_matches" json:"max_allowed_matches"`
	Strict            bool    `yaml:"strict" json:"strict"`
	CheckIDStability  *bool   `yaml:"check_id_stability" json:"check_id_stability,omitempty"`
	PenaltyPerMatch   float64 `yaml:"penalty_per_match" json:"penalty_per_match"`
}

// DefaultSelectorConfig returns min 0.5, at most 3 matches, non-strict, id
// stability on, 15% penalty per match.
func DefaultSelectorConfig() SelectorConfig {
	c := SelectorConfig{}
	c.defaults()
	return c
}

func (c *SelectorConfig) defaults() {
	if c.MinConfidence == 0 {
		c.MinConfidence = 0.5
	}
	if c.MaxAllowedMatches == 0 {
		c.MaxAllowedMatches = 3
	}
	if c.CheckIDStability == nil {
		on := true
		c.CheckIDStability = &on
	}
	if c.PenaltyPerMatch == 0 {
		c.PenaltyPerMatch = 0.15
	}
}

const floorConfidence = 0.1

var resourceIDPredicate = regexp.MustCompile(`@resource-id=['"](.*?)['"]`)

// SelectorGate verifies a raw selector string against the live tree.
type SelectorGate struct {
	cfg    SelectorConfig
	logger *slog.Logger
}

// NewSelectorGate creates a SelectorGate. A nil logger means slog.Default().
func NewSelectorGate(cfg SelectorConfig, logger *slog.Logger) *SelectorGate {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &SelectorGate{cfg: cfg, logger: logger}
}

// Config returns the effective configuration.
func (g *SelectorGate) Config() SelectorConfig { return g.cfg }

// Verify evaluates selector on s and grades the match count against the
// static confidence. Only an unparseable selector is an error.
func (g *SelectorGate) Verify(ctx context.Context, s *snapshot.Snapshot, selector string, confidence float64) (Verification, error) {
	matches, err := s.Select(selector)
	if err != nil {
		return Verification{}, err
	}
	v := g.Evaluate(selector, matches, confidence)
	if v.Passed {
		g.logger.InfoContext(ctx, "gate: selector verified", "selector", selector,
			"matches", v.MatchCount, "confidence", v.AdjustedConfidence, "recommendation", v.Recommendation)
	} else {
		g.logger.WarnContext(ctx, "gate: selector rejected", "selector", selector,
			"matches", v.MatchCount, "reason", v.Reason, "recommendation", v.Recommendation)
	}
	return v, nil
}

// Evaluate grades an already computed match list.
//
//	0 matches          UseBoundsDirectly, confidence 0
//	1 match            id-stability penalty, Proceed or UseFallback
//	2..max matches     confidence × (1 - n×penalty), Abort if strict else Proceed
//	more than max      Abort, confidence 0.1
func (g *SelectorGate) Evaluate(selector string, matches []int, confidence float64) Verification {
	n := len(matches)
	v := Verification{Selector: selector, MatchCount: n, Matches: matches}
	switch {
	case n == 0:
		v.Reason = "no live node matches the selector; the screen may have changed"
		v.Recommendation = UseBoundsDirectly

	case n == 1:
		factor := 1.0
		if id, ok := g.stabilityTarget(selector); ok {
			a := AnalyzeID(id)
			v.ID = &a
			factor = a.Score
		}
		v.AdjustedConfidence = confidence * factor
		if v.AdjustedConfidence >= g.cfg.MinConfidence {
			v.Passed = true
			v.Reason = "unique match"
			v.Recommendation = Proceed
		} else {
			v.Reason = fmt.Sprintf("confidence too low: %.2f < %.2f", v.AdjustedConfidence, g.cfg.MinConfidence)
			v.Recommendation = UseFallback
		}

	case n <= g.cfg.MaxAllowedMatches:
		penalty := 1 - float64(n)*g.cfg.PenaltyPerMatch
		v.AdjustedConfidence = max(confidence*penalty, floorConfidence)
		if g.cfg.Strict {
			v.Reason = fmt.Sprintf("strict mode: %d matches, need exactly one", n)
			v.Recommendation = Abort
		} else {
			v.Passed = true
			v.Reason = fmt.Sprintf("%d matches, using the first", n)
			v.Recommendation = Proceed
		}

	default:
		v.AdjustedConfidence = floorConfidence
		v.Reason = fmt.Sprintf("too many matches: %d > %d, selector too broad", n, g.cfg.MaxAllowedMatches)
		v.Recommendation = Abort
	}
	return v
}

// QuickCheck is the cheap pre-flight used before a live dump is available:
// enough confidence, an absolute selector and, for id selectors, an
// identifier stable enough to rely on.
func (g *SelectorGate) QuickCheck(selector string, confidence float64) bool {
	if confidence < g.cfg.MinConfidence {
		return false
	}
	if !strings.HasPrefix(selector, "/") {
		return false
	}
	if id, ok := g.stabilityTarget(selector); ok && AnalyzeID(id).Score < 0.5 {
		return false
	}
	return true
}

func (g *SelectorGate) stabilityTarget(selector string) (string, bool) {
	if !*g.cfg.CheckIDStability {
		return "", false
	}
	m := resourceIDPredicate.FindStringSubmatch(selector)
	if m == nil {
		return "", false
	}
	return m[1], true
}
