package locator

import (
	"context"
	"fmt"

	"github.com/hazyhaar/uianchor/fallback"
	"github.com/hazyhaar/uianchor/gate"
	"github.com/hazyhaar/uianchor/idgen"
	"github.com/hazyhaar/uianchor/kit"
	"github.com/hazyhaar/uianchor/match"
	"github.com/hazyhaar/uianchor/observability"
	"github.com/hazyhaar/uianchor/recovery"
	"github.com/hazyhaar/uianchor/snapshot"
)

// ExecRequest is one tap to perform on the live screen.
type ExecRequest struct {
	Anchor match.Anchor `json:"anchor"`
	// Plan is run as given. An empty plan is derived from the anchor on
	// the live dump.
	Plan fallback.Plan `json:"plan"`
	// Checks are attached to every variant of a derived plan.
	Checks []gate.Check `json:"checks,omitempty"`
	// Recovery, when set, is tried after every variant failed.
	Recovery *recovery.Context `json:"recovery,omitempty"`
}

// ExecResult is the fallback result plus the run bookkeeping.
type ExecResult struct {
	RunID        string `json:"run_id"`
	SnapshotHash string `json:"snapshot_hash,omitempty"`
	fallback.Result
	Recovered bool              `json:"recovered"`
	Recovery  *recovery.Outcome `json:"recovery,omitempty"`
}

// recoveryVariant is the UsedVariant prefix of a tap made by recovery.
const recoveryVariant = "recovery"

// Execute dumps the live screen, runs the plan through the fallback
// controller and, when every variant failed, tries recovery. Every run is
// audited. Execute never returns an error: failures are in the result.
func (l *Locator) Execute(ctx context.Context, req ExecRequest) ExecResult {
	runID := idgen.RunID()
	ctx = kit.WithRunID(ctx, runID)
	res := l.execute(ctx, req)
	res.RunID = runID
	l.record(ctx, req.Anchor.Key(), res)
	return res
}

func (l *Locator) execute(ctx context.Context, req ExecRequest) ExecResult {
	if l.device == nil {
		return failed(ErrNoDevice)
	}
	l.tapMu.Lock()
	defer l.tapMu.Unlock()

	start := l.now()
	raw, err := l.device.Dump(ctx)
	if err != nil {
		return failed(fmt.Errorf("locator: dump: %w", err))
	}
	live, err := snapshot.Build(raw)
	if err != nil {
		return failed(fmt.Errorf("locator: live dump: %w", err))
	}

	gk := gate.NewGatekeeper(l.cfg.safetyGate(live.Screen()), l.logger)
	out := ExecResult{SnapshotHash: live.Hash()}

	plan := req.Plan
	if len(plan.Variants) == 0 {
		rep, err := l.matchSnapshot(ctx, live, req.Anchor, req.Checks)
		if err != nil {
			return failed(err)
		}
		switch {
		case !rep.Recommendation.Found:
			// Only a mode that passed its own gate yields a plan.
			out.Result = noPlan(&fallback.NoMatchError{Variant: derivedVariant + ":" + rep.Recommendation.Mode.String()})
			l.logger.WarnContext(ctx, "locator: no match mode passed its gate",
				"anchor_key", rep.AnchorKey, "mode", rep.Recommendation.Mode.String(), "reason", rep.Recommendation.Reason)
		case rep.Mapping == nil:
			out.Result = noPlan(fmt.Errorf("locator: no plan for anchor: %s", rep.MappingError))
		default:
			plan = rep.Plan
		}
	}

	if len(plan.Variants) > 0 {
		ctrl := fallback.NewController(fallback.SnapshotFinder{Snapshot: live}, l.device, gk, l.cfg.Fallback,
			fallback.WithLogger(l.logger), fallback.WithClock(l.now))
		out.Result = ctrl.Run(ctx, plan)
	}

	if !out.Success && req.Recovery != nil && ctx.Err() == nil {
		l.recover(ctx, &out, *req.Recovery, live, gk, req.Checks)
	}
	out.ElapsedMS = l.now().Sub(start).Milliseconds()
	return out
}

// derivedVariant names the plan derived on the live screen in the chain.
const derivedVariant = "derived"

func noPlan(err error) fallback.Result {
	return fallback.Result{
		UsedVariant: fallback.UsedNone,
		Chain:       []string{fmt.Sprintf("%s:FAILED:%v", derivedVariant, err)},
		Error:       err.Error(),
		Err:         err,
	}
}

// recover is the last resort after the plan failed: find the recorded
// element on the live screen and tap it when the evaluator trusts it and
// the Safety Gate accepts it.
func (l *Locator) recover(ctx context.Context, out *ExecResult, rc recovery.Context, live *snapshot.Snapshot, gk *gate.Gatekeeper, checks []gate.Check) {
	fail := func(err error) {
		out.Chain = append(out.Chain, fmt.Sprintf("%s:FAILED:%v", recoveryVariant, err))
		out.Error = err.Error()
		out.Err = err
	}
	oc, err := l.recovery.Recover(ctx, rc, live)
	if err != nil {
		fail(err)
		return
	}
	out.Recovery = &oc
	if oc.Best < 0 || oc.Confidence < l.cfg.Recovery.MinConfidence {
		fail(fmt.Errorf("recovery: confidence %.2f below %.2f (%s)",
			oc.Confidence, l.cfg.Recovery.MinConfidence, oc.Reason))
		return
	}

	var best gate.Candidate
	if oc.Strict {
		best = gate.CandidateFromNode(live, oc.Best, oc.Confidence)
		if err := gk.CheckContainer(best); err != nil {
			fail(err)
			return
		}
		if err := gk.RunChecks(ctx, best, checks); err != nil {
			fail(err)
			return
		}
	} else {
		cands := make([]gate.Candidate, len(oc.Candidates))
		for k, c := range oc.Candidates {
			cands[k] = gate.CandidateFromNode(live, c.Node, c.Score)
		}
		if best, err = gk.Validate(ctx, cands, checks); err != nil {
			fail(err)
			return
		}
	}

	x, y := best.Bounds.Center()
	if err := l.device.Tap(ctx, x, y); err != nil {
		fail(&fallback.TapError{X: x, Y: y, Cause: err})
		return
	}
	variant := recoveryVariant + ":" + oc.Rule
	out.Chain = append(out.Chain, variant+":OK")
	out.Success = true
	out.Recovered = true
	out.UsedVariant = variant
	out.MatchCount = len(oc.Candidates)
	out.FinalConfidence = best.Confidence
	out.Tap = &fallback.Point{X: x, Y: y}
	out.Error = ""
	out.Err = nil
	l.logger.InfoContext(ctx, "locator: recovered after plan failure", "rule", oc.Rule, "node", best.Node, "confidence", best.Confidence)
}

func failed(err error) ExecResult {
	return ExecResult{Result: fallback.Result{
		UsedVariant: fallback.UsedNone,
		Chain:       []string{},
		Error:       err.Error(),
		Err:         err,
	}}
}

func (l *Locator) record(ctx context.Context, anchorKey string, res ExecResult) {
	rec := observability.ExecRecord{
		RunID:      res.RunID,
		AnchorKey:  anchorKey,
		Transport:  kit.GetTransport(ctx),
		RequestID:  kit.GetRequestID(ctx),
		Variant:    res.UsedVariant,
		Success:    res.Success,
		MatchCount: res.MatchCount,
		Confidence: res.FinalConfidence,
		ElapsedMS:  res.ElapsedMS,
		Recovered:  res.Recovered,
		Chain:      res.Chain,
		Error:      res.Error,
	}
	if l.cfg.Audit.Async {
		l.audit.RecordAsync(rec)
	} else if _, err := l.audit.Record(ctx, rec); err != nil {
		l.logger.ErrorContext(ctx, "locator: audit write failed", "run_id", res.RunID, "error", err)
	}

	success := 0.0
	if res.Success {
		success = 1
	}
	labels := map[string]string{"variant": res.UsedVariant}
	l.metrics.Observe(observability.MetricExecElapsedMS, float64(res.ElapsedMS), "milliseconds", labels)
	l.metrics.Observe(observability.MetricExecSuccess, success, "count", labels)
	l.metrics.Observe(observability.MetricFallbackAttempts, float64(len(res.Chain)), "count", labels)
	if res.Recovered {
		l.metrics.Observe(observability.MetricRecoveryUsed, 1, "count", nil)
	}
	l.logger.InfoContext(ctx, "locator: executed",
		observability.RunAttrs(res.RunID, anchorKey, res.UsedVariant, res.Success),
		"elapsed_ms", res.ElapsedMS, "attempts", len(res.Chain))
}
