package match

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/uianchor/snapshot"
)

// ScoreCache memoises outcomes per key. Implementations must run compute at
// most once per key at a time.
type ScoreCache interface {
	GetOrCompute(ctx context.Context, key string, compute func(context.Context) ([]byte, error)) ([]byte, bool, error)
}

// Recommendation is the mode selector's verdict.
type Recommendation struct {
	// Mode is the winning mode, or the strongest loser when Found is false.
	Mode    Mode    `json:"mode"`
	Outcome Outcome `json:"outcome"`
	// Found is true when at least one mode passed its own gate.
	Found bool `json:"found"`
	// ClearWinner is true when the winner leads the runner-up by TopGap.
	ClearWinner bool      `json:"clear_winner"`
	Outcomes    []Outcome `json:"outcomes"`
	Reason      string    `json:"reason"`
}

// Ranked returns every outcome ordered best first with the same total
// ordering used for the winner: gate pass, confidence, mode priority.
func (r Recommendation) Ranked() []Outcome {
	out := append([]Outcome(nil), r.Outcomes...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && better(out[j], out[j-1]); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// Selector runs every scorer against one anchor and snapshot.
type Selector struct {
	cfg    Config
	cache  ScoreCache
	logger *slog.Logger
}

// SelectorOption configures a Selector.
type SelectorOption func(*Selector)

// WithCache memoises outcomes by snapshot hash, anchor key and mode.
func WithCache(c ScoreCache) SelectorOption {
	return func(s *Selector) { s.cache = c }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) SelectorOption {
	return func(s *Selector) { s.logger = l }
}

// NewSelector builds a Selector. Zero thresholds in cfg take their defaults.
func NewSelector(cfg Config, opts ...SelectorOption) *Selector {
	cfg.defaults()
	s := &Selector{cfg: cfg, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Config returns the effective configuration.
func (sel *Selector) Config() Config { return sel.cfg }

// Select scores all modes concurrently and picks the winner.
func (sel *Selector) Select(ctx context.Context, s *snapshot.Snapshot, a Anchor) (Recommendation, error) {
	outcomes := make([]Outcome, len(Modes))
	g, gctx := errgroup.WithContext(ctx)
	for k, m := range Modes {
		g.Go(func() error {
			o, err := sel.score(gctx, m, s, a)
			if err != nil {
				return err
			}
			outcomes[k] = o
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Recommendation{}, fmt.Errorf("match: select: %w", err)
	}

	rec := Pick(outcomes, sel.cfg)
	sel.logger.DebugContext(ctx, "match: mode selected",
		"mode", rec.Mode.String(),
		"confidence", rec.Outcome.Confidence,
		"found", rec.Found,
		"clear_winner", rec.ClearWinner,
		"snapshot", shortHash(s.Hash()))
	return rec, nil
}

func (sel *Selector) score(ctx context.Context, m Mode, s *snapshot.Snapshot, a Anchor) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	if sel.cache == nil {
		return Score(m, s, a, sel.cfg), nil
	}
	key := "score:" + shortHash(s.Hash()) + ":" + a.Key() + ":" + m.String()
	data, hit, err := sel.cache.GetOrCompute(ctx, key, func(context.Context) ([]byte, error) {
		return json.Marshal(Score(m, s, a, sel.cfg))
	})
	if err != nil {
		sel.logger.WarnContext(ctx, "match: score cache failed, computing directly", "key", key, "error", err)
		return Score(m, s, a, sel.cfg), nil
	}
	var o Outcome
	if err := json.Unmarshal(data, &o); err != nil {
		sel.logger.WarnContext(ctx, "match: corrupt cache entry", "key", key, "error", err)
		return Score(m, s, a, sel.cfg), nil
	}
	if hit {
		sel.logger.DebugContext(ctx, "match: score cache hit", "key", key)
	}
	return o, nil
}

// Pick selects the highest-confidence outcome that passed its gate. Ties go
// to the higher-priority mode (TextExact > CardSubtree > LeafContext). When
// no outcome passed, the strongest loser is reported with Found=false so
// callers can still build fallbacks from it.
func Pick(outcomes []Outcome, cfg Config) Recommendation {
	cfg.defaults()
	rec := Recommendation{Outcomes: append([]Outcome(nil), outcomes...)}
	if len(outcomes) == 0 {
		rec.Reason = "no outcomes"
		return rec
	}
	ranked := rec.Ranked()
	best := ranked[0]
	rec.Mode = best.Mode
	rec.Outcome = best
	rec.Found = best.Passed

	if len(ranked) == 1 || best.Confidence-ranked[1].Confidence >= cfg.TopGap {
		rec.ClearWinner = true
	}

	switch {
	case !rec.Found:
		rec.Reason = fmt.Sprintf("no mode passed its gate; strongest is %s at %.2f (gate %.2f)",
			best.Mode, best.Confidence, cfg.Gate(best.Mode))
	case rec.ClearWinner:
		rec.Reason = fmt.Sprintf("%s passed at %.2f with a clear lead", best.Mode, best.Confidence)
	default:
		rec.Reason = fmt.Sprintf("%s passed at %.2f; runner-up %s at %.2f",
			best.Mode, best.Confidence, ranked[1].Mode, ranked[1].Confidence)
	}
	return rec
}

// better orders outcomes: gate pass first, then confidence, then priority.
func better(a, b Outcome) bool {
	if a.Passed != b.Passed {
		return a.Passed
	}
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	return a.Mode.priority() > b.Mode.priority()
}

func shortHash(h string) string {
	if len(h) > 16 {
		return h[:16]
	}
	return h
}
