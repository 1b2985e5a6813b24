package fallback

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/hazyhaar/uianchor/bridge"
	"github.com/hazyhaar/uianchor/gate"
	"github.com/hazyhaar/uianchor/geom"
	"github.com/hazyhaar/uianchor/internal/fixture"
	"github.com/hazyhaar/uianchor/match"
	"github.com/hazyhaar/uianchor/snapshot"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock { return &fakeClock{t: time.Unix(1_700_000_000, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// scriptedFinder answers per variant id and optionally burns clock time.
type scriptedFinder struct {
	clock   *fakeClock
	cost    map[string]time.Duration
	matches map[string][]Match
	errs    map[string]error
	calls   []string
}

func (f *scriptedFinder) Find(_ context.Context, v Variant) ([]Match, error) {
	f.calls = append(f.calls, v.ID)
	if f.clock != nil {
		f.clock.Advance(f.cost[v.ID])
	}
	if err := f.errs[v.ID]; err != nil {
		return nil, err
	}
	return f.matches[v.ID], nil
}

type recorder struct {
	taps []Point
	err  error
}

func (r *recorder) Tap(_ context.Context, x, y int) error {
	r.taps = append(r.taps, Point{X: x, Y: y})
	return r.err
}

func button(node int, conf float64, x, y int) Match {
	return Match{
		Candidate: gate.Candidate{
			Node:       node,
			Confidence: conf,
			Bounds:     geom.Rect{Left: x - 50, Top: y - 20, Right: x + 50, Bottom: y + 20},
			Class:      "android.widget.Button",
			Clickable:  true,
			Enabled:    true,
		},
		X: x, Y: y,
	}
}

func plan(ids ...string) Plan {
	p := Plan{Selected: ids[0]}
	for _, id := range ids {
		p.Variants = append(p.Variants, Variant{ID: id})
	}
	return p
}

func TestRun_SecondVariantSucceeds(t *testing.T) {
	f := &scriptedFinder{matches: map[string][]Match{
		"b": {button(7, 0.9, 930, 280)},
		"c": {button(8, 0.9, 100, 100)},
	}}
	rec := &recorder{}
	res := NewController(f, rec, nil, DefaultConfig()).Run(context.Background(), plan("a", "b", "c"))

	require.True(t, res.Success, res.Error)
	assert.Equal(t, "b", res.UsedVariant)
	require.Len(t, res.Chain, 2)
	assert.True(t, strings.HasPrefix(res.Chain[0], "a:FAILED:"), res.Chain[0])
	assert.Equal(t, "b:OK", res.Chain[1])
	assert.Equal(t, []Point{{930, 280}}, rec.taps)
	assert.Equal(t, &Point{930, 280}, res.Tap)
	assert.Equal(t, 1, res.MatchCount)
	assert.InDelta(t, 0.9, res.FinalConfidence, 1e-9)
	assert.Equal(t, []string{"a", "b"}, f.calls)
}

func TestRun_SelectedFirst(t *testing.T) {
	f := &scriptedFinder{}
	p := plan("a", "b", "c")
	p.Selected = "c"
	res := NewController(f, &recorder{}, nil, DefaultConfig()).Run(context.Background(), p)

	assert.False(t, res.Success)
	assert.Equal(t, []string{"c", "a", "b"}, f.calls)
	assert.Equal(t, UsedNone, res.UsedVariant)
	assert.Len(t, res.Chain, 3)
	assert.True(t, strings.HasPrefix(res.Error, "all strategies failed, last error: "))
	assert.ErrorIs(t, res.Err, ErrNoMatch)
	var nm *NoMatchError
	require.ErrorAs(t, res.Err, &nm)
	assert.Equal(t, "b", nm.Variant)
}

func TestRun_TotalBudget(t *testing.T) {
	clock := newClock()
	f := &scriptedFinder{clock: clock, cost: map[string]time.Duration{
		"a": 500 * time.Millisecond, "b": 500 * time.Millisecond,
		"c": 500 * time.Millisecond, "d": 500 * time.Millisecond,
	}}
	res := NewController(f, &recorder{}, nil, DefaultConfig(), WithClock(clock.Now)).
		Run(context.Background(), plan("a", "b", "c", "d"))

	assert.False(t, res.Success)
	assert.Equal(t, []string{"a", "b", "c"}, f.calls, "d starts after 1500ms")
	assert.Len(t, res.Chain, 3)
	var be *BudgetExceededError
	require.ErrorAs(t, res.Err, &be)
	assert.Equal(t, "total", be.Scope)
	assert.Equal(t, int64(1500), res.ElapsedMS)
}

func TestRun_PerCandidateBudgetSkipsTap(t *testing.T) {
	clock := newClock()
	f := &scriptedFinder{
		clock:   clock,
		cost:    map[string]time.Duration{"slow": 200 * time.Millisecond},
		matches: map[string][]Match{"slow": {button(1, 0.95, 10, 10)}, "fast": {button(2, 0.95, 20, 20)}},
	}
	rec := &recorder{}
	res := NewController(f, rec, nil, DefaultConfig(), WithClock(clock.Now)).
		Run(context.Background(), plan("slow", "fast"))

	require.True(t, res.Success)
	assert.Equal(t, "fast", res.UsedVariant)
	assert.Contains(t, res.Chain[0], "candidate budget")
	assert.Equal(t, []Point{{20, 20}}, rec.taps)
}

func TestRun_GateRejections(t *testing.T) {
	full := button(3, 0.99, 540, 1200)
	full.Bounds = geom.Rect{Right: 1080, Bottom: 2400}
	f := &scriptedFinder{matches: map[string][]Match{
		"ambiguous": {button(1, 0.80, 100, 100), button(2, 0.79, 300, 100)},
		"unsafe":    {full},
	}}
	rec := &recorder{}
	res := NewController(f, rec, nil, DefaultConfig()).Run(context.Background(), plan("ambiguous", "unsafe"))

	assert.False(t, res.Success)
	assert.Empty(t, rec.taps, "gate rejections never tap")
	require.Len(t, res.Chain, 2)
	assert.Contains(t, res.Chain[0], "ambiguous")
	var ue *gate.UnsafeTargetError
	require.ErrorAs(t, res.Err, &ue)
	assert.Equal(t, "full screen", ue.Reason)
}

func TestRun_LightChecks(t *testing.T) {
	f := &scriptedFinder{matches: map[string][]Match{"a": {button(1, 0.9, 100, 100)}}}
	p := Plan{Selected: "a", Variants: []Variant{{
		ID:     "a",
		Checks: []gate.Check{{Kind: gate.CheckChildTextContains, Value: "关注"}},
	}}}
	res := NewController(f, &recorder{}, nil, DefaultConfig()).Run(context.Background(), p)
	var ce *gate.CheckError
	assert.ErrorAs(t, res.Err, &ce)
}

func TestRun_TapFailure(t *testing.T) {
	boom := errors.New("adb: device offline")
	f := &scriptedFinder{matches: map[string][]Match{"a": {button(1, 0.9, 5, 6)}}}
	res := NewController(f, &recorder{err: boom}, nil, DefaultConfig()).Run(context.Background(), plan("a"))

	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, boom)
	var te *TapError
	require.ErrorAs(t, res.Err, &te)
	assert.Equal(t, 5, te.X)
}

// blockingTap holds every tap until its context ends.
type blockingTap struct{ calls int }

func (b *blockingTap) Tap(ctx context.Context, _, _ int) error {
	b.calls++
	<-ctx.Done()
	return ctx.Err()
}

type blockingFinder struct{}

func (blockingFinder) Find(ctx context.Context, _ Variant) ([]Match, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRun_BlockingTapBoundedByCandidateBudget(t *testing.T) {
	f := &scriptedFinder{matches: map[string][]Match{"a": {button(1, 0.9, 5, 6)}}}
	tap := &blockingTap{}
	cfg := Config{TotalBudget: time.Second, PerCandidateBudget: 20 * time.Millisecond}

	start := time.Now()
	res := NewController(f, tap, nil, cfg).Run(context.Background(), plan("a"))

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.False(t, res.Success)
	assert.Equal(t, 1, tap.calls)
	var be *BudgetExceededError
	require.ErrorAs(t, res.Err, &be)
	assert.Equal(t, "candidate", be.Scope)
	assert.Equal(t, 20*time.Millisecond, be.Budget)
}

func TestRun_BlockingFindBoundedByRemainingTotal(t *testing.T) {
	cfg := Config{TotalBudget: 30 * time.Millisecond, PerCandidateBudget: time.Second}

	start := time.Now()
	res := NewController(blockingFinder{}, &recorder{}, nil, cfg).Run(context.Background(), plan("a"))

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	var be *BudgetExceededError
	require.ErrorAs(t, res.Err, &be)
	assert.Equal(t, "total", be.Scope)
	assert.LessOrEqual(t, be.Budget, 30*time.Millisecond)
}

func TestRun_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := &scriptedFinder{}
	res := NewController(f, &recorder{}, nil, DefaultConfig()).Run(ctx, plan("a"))
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Empty(t, f.calls)
	assert.Empty(t, res.Chain)
}

func TestRun_EmptyPlan(t *testing.T) {
	res := NewController(&scriptedFinder{}, &recorder{}, nil, DefaultConfig()).Run(context.Background(), Plan{})
	assert.False(t, res.Success)
	assert.Equal(t, UsedNone, res.UsedVariant)
	assert.Contains(t, res.Error, "empty plan")
}

func TestPlanOrder(t *testing.T) {
	p := plan("a", "b", "c")
	p.Selected = "b"
	var ids []string
	for _, v := range p.Order() {
		ids = append(ids, v.ID)
	}
	assert.Equal(t, []string{"b", "a", "c"}, ids)

	p.Selected = "zzz"
	assert.Len(t, p.Order(), 3)
}

func TestSnapshotFinder_EndToEnd(t *testing.T) {
	feed, err := snapshot.Build(fixture.Feed)
	require.NoError(t, err)
	scrolled, err := snapshot.Build(fixture.FeedScrolled)
	require.NoError(t, err)

	o := match.Score(match.CardSubtree, feed, match.AnchorFromNode(feed, 9), match.DefaultConfig())
	m, err := bridge.Build(match.Recommendation{Mode: match.CardSubtree, Outcome: o, Found: true}, feed)
	require.NoError(t, err)
	p := PlanFromMapping(m, nil)
	require.Len(t, p.Variants, 4)
	assert.Equal(t, "structural_hierarchy#0", p.Selected)

	rec := &recorder{}
	res := NewController(SnapshotFinder{Snapshot: scrolled}, rec, nil, DefaultConfig()).Run(context.Background(), p)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "structural_hierarchy#0", res.UsedVariant)
	assert.Equal(t, []Point{{276, 585}}, rec.taps, "center of the moved cover image")
	assert.Equal(t, []string{"structural_hierarchy#0:OK"}, res.Chain)
}
