// CLAUDE:SUMMARY Fallback controller — runs plan variants in order under total and per-attempt budgets, gating each before a single tap.
// Package fallback executes a strategy plan against a live screen.
//
// Variants run strictly one after another: at most one tap is ever in
// flight and each attempt sees the time spent by the previous ones. A run
// never panics or returns an error value; it always yields a Result.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/uianchor/gate"
)

// UsedNone is Result.UsedVariant when no variant succeeded.
const UsedNone = "NONE"

// Config holds the time budgets. Zero fields take defaults.
type Config struct {
	TotalBudget        time.Duration `yaml:"total_budget" json:"total_budget"`
	PerCandidateBudget time.Duration `yaml:"per_candidate_budget" json:"per_candidate_budget"`
}

// DefaultConfig returns 1200ms total and 180ms per attempt.
func DefaultConfig() Config {
	var c Config
	c.defaults()
	return c
}

func (c *Config) defaults() {
	if c.TotalBudget <= 0 {
		c.TotalBudget = 1200 * time.Millisecond
	}
	if c.PerCandidateBudget <= 0 {
		c.PerCandidateBudget = 180 * time.Millisecond
	}
}

// Point is a tapped screen coordinate.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Result is the structured outcome of a run.
type Result struct {
	Success         bool     `json:"success"`
	UsedVariant     string   `json:"used_variant"`
	MatchCount      int      `json:"match_count"`
	FinalConfidence float64  `json:"final_confidence"`
	ElapsedMS       int64    `json:"execution_time_ms"`
	Chain           []string `json:"fallback_chain"`
	Tap             *Point   `json:"tap_coordinates,omitempty"`
	Error           string   `json:"error_reason,omitempty"`
	// Err is the last attempt error, for errors.As by callers.
	Err error `json:"-"`
}

// Controller runs plans. It is safe for concurrent use by callers that
// serialise taps at the device layer.
type Controller struct {
	finder Finder
	exec   Executor
	gate   *gate.Gatekeeper
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock replaces time.Now (for tests).
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// NewController builds a controller. A nil gatekeeper uses gate defaults.
func NewController(f Finder, e Executor, g *gate.Gatekeeper, cfg Config, opts ...Option) *Controller {
	cfg.defaults()
	c := &Controller{finder: f, exec: e, gate: g, cfg: cfg, logger: slog.Default(), now: time.Now}
	for _, o := range opts {
		o(c)
	}
	if c.gate == nil {
		c.gate = gate.NewGatekeeper(gate.DefaultConfig(), c.logger)
	}
	return c
}

// Config returns the effective configuration.
func (c *Controller) Config() Config { return c.cfg }

// Run tries the selected variant, then the rest of the plan in order,
// until one taps successfully or the plan or the total budget runs out.
// The chain lists every failed variant as "id:FAILED:reason" followed, on
// success, by "id:OK".
func (c *Controller) Run(ctx context.Context, p Plan) Result {
	start := c.now()
	var (
		chain   []string
		lastErr error
	)
	for _, v := range p.Order() {
		elapsed := c.now().Sub(start)
		if elapsed >= c.cfg.TotalBudget {
			lastErr = &BudgetExceededError{Scope: "total", Budget: c.cfg.TotalBudget, Elapsed: elapsed}
			c.logger.WarnContext(ctx, "fallback: total budget exhausted", "elapsed_ms", elapsed.Milliseconds(), "attempted", len(chain))
			break
		}
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}

		res, err := c.attempt(ctx, v, c.cfg.TotalBudget-elapsed)
		if err == nil {
			res.Chain = append(chain, v.ID+":OK")
			res.ElapsedMS = c.now().Sub(start).Milliseconds()
			c.logger.InfoContext(ctx, "fallback: variant succeeded", "variant", v.ID,
				"confidence", res.FinalConfidence, "fallbacks", len(chain), "elapsed_ms", res.ElapsedMS)
			return res
		}
		lastErr = err
		chain = append(chain, fmt.Sprintf("%s:FAILED:%v", v.ID, err))
		c.logger.InfoContext(ctx, "fallback: variant failed", "variant", v.ID, "error", err)
	}

	if lastErr == nil {
		lastErr = errors.New("fallback: empty plan")
	}
	return Result{
		UsedVariant: UsedNone,
		ElapsedMS:   c.now().Sub(start).Milliseconds(),
		Chain:       chain,
		Error:       fmt.Sprintf("all strategies failed, last error: %v", lastErr),
		Err:         lastErr,
	}
}

// attempt is one variant: find, rank, gate, check the per-attempt budget,
// then tap. Find and Tap run under a deadline of the per-attempt budget or
// the remaining total budget, whichever is shorter.
func (c *Controller) attempt(ctx context.Context, v Variant, remaining time.Duration) (Result, error) {
	scope, budget := "candidate", c.cfg.PerCandidateBudget
	if remaining < budget {
		scope, budget = "total", remaining
	}
	actx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	start := c.now()
	matches, err := c.finder.Find(actx, v)
	if err != nil {
		return Result{}, c.deadline(ctx, actx, err, scope, budget, start)
	}
	if len(matches) == 0 {
		return Result{}, &NoMatchError{Variant: v.ID}
	}

	cands := make([]gate.Candidate, len(matches))
	for k, m := range matches {
		cands[k] = m.Candidate
	}
	best, err := c.gate.Validate(ctx, cands, v.Checks)
	if err != nil {
		return Result{}, err
	}
	target := matches[0]
	for _, m := range matches {
		if m.Node == best.Node && m.Confidence == best.Confidence {
			target = m
			break
		}
	}

	if elapsed := c.now().Sub(start); elapsed >= c.cfg.PerCandidateBudget {
		return Result{}, &BudgetExceededError{Scope: "candidate", Budget: c.cfg.PerCandidateBudget, Elapsed: elapsed}
	}
	if err := actx.Err(); err != nil {
		return Result{}, c.deadline(ctx, actx, err, scope, budget, start)
	}
	if err := c.exec.Tap(actx, target.X, target.Y); err != nil {
		return Result{}, c.deadline(ctx, actx, &TapError{X: target.X, Y: target.Y, Cause: err}, scope, budget, start)
	}
	return Result{
		Success:         true,
		UsedVariant:     v.ID,
		MatchCount:      len(matches),
		FinalConfidence: best.Confidence,
		Tap:             &Point{X: target.X, Y: target.Y},
	}, nil
}

// deadline turns an error caused by the attempt deadline into a
// *BudgetExceededError. Cancellation of the caller's ctx passes through.
func (c *Controller) deadline(ctx, actx context.Context, err error, scope string, budget time.Duration, start time.Time) error {
	if ctx.Err() == nil && errors.Is(actx.Err(), context.DeadlineExceeded) {
		return &BudgetExceededError{Scope: scope, Budget: budget, Elapsed: c.now().Sub(start)}
	}
	return err
}
