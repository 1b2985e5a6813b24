package locator

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/hazyhaar/uianchor/bridge"
	"github.com/hazyhaar/uianchor/device"
	"github.com/hazyhaar/uianchor/fallback"
	"github.com/hazyhaar/uianchor/gate"
	"github.com/hazyhaar/uianchor/geom"
	"github.com/hazyhaar/uianchor/internal/fixture"
	"github.com/hazyhaar/uianchor/match"
	"github.com/hazyhaar/uianchor/observability"
	"github.com/hazyhaar/uianchor/recovery"
	"github.com/hazyhaar/uianchor/snapshot"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newLocator(t *testing.T, opts ...Option) *Locator {
	t.Helper()
	loc, err := New(&Config{}, nil, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { loc.Close() })
	return loc
}

func followAnchor(t *testing.T) match.Anchor {
	t.Helper()
	s, err := snapshot.Build(fixture.Feed)
	require.NoError(t, err)
	return match.AnchorFromNode(s, 7)
}

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	assert.Equal(t, 1080, c.Screen.Width)
	assert.Equal(t, 2400, c.Screen.Height)
	assert.Equal(t, 3, c.Gate.MaxAllowedMatches)
	require.NotNil(t, c.Gate.CheckIDStability)
	assert.True(t, *c.Gate.CheckIDStability)
	assert.Equal(t, 5*time.Second, c.Device.Timeout)
	assert.Equal(t, "default", c.Device.Serial)
	assert.InDelta(t, 0.6, c.Recovery.MinConfidence, 1e-9)
	assert.Equal(t, 30*24*time.Hour, c.Audit.Retention)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "uianchor.yaml")
	yml := `
screen:
  width: 720
  height: 1600
gate:
  strict: true
  check_id_stability: false
device:
  serial: emulator-5554
  max_retries: 2
audit:
  async: true
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	cfg.defaults()

	assert.Equal(t, 720, cfg.Screen.Width)
	assert.True(t, cfg.Gate.Strict)
	require.NotNil(t, cfg.Gate.CheckIDStability)
	assert.False(t, *cfg.Gate.CheckIDStability, "explicit false survives defaults")
	assert.Equal(t, "emulator-5554", cfg.Device.Serial)
	assert.Equal(t, 2, cfg.Device.MaxRetries)
	assert.True(t, cfg.Audit.Async)
	assert.InDelta(t, 0.5, cfg.Gate.MinConfidence, 1e-9)

	_, err = LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestMatch_FollowButton(t *testing.T) {
	loc := newLocator(t)
	a := followAnchor(t)

	rep, err := loc.Match(context.Background(), fixture.Feed, a)
	require.NoError(t, err)
	assert.Equal(t, match.TextExact, rep.Recommendation.Mode)
	assert.Equal(t, 7, rep.Node)
	assert.Equal(t, a.Key(), rep.AnchorKey)
	require.NotNil(t, rep.Mapping)
	assert.Empty(t, rep.MappingError)
	require.NotEmpty(t, rep.Plan.Variants)
	assert.Equal(t, rep.Plan.Variants[0].ID, rep.Plan.Selected)
	assert.Equal(t, bridge.KindExactText, rep.Plan.Variants[0].Instruction.Mode.Kind())

	// Same snapshot and anchor: the score cache answers.
	_, err = loc.Match(context.Background(), fixture.Feed, a)
	require.NoError(t, err)
	assert.Positive(t, loc.cache.Stats().Hits)
}

func TestMatch_BadDump(t *testing.T) {
	loc := newLocator(t)
	_, err := loc.Match(context.Background(), "<hierarchy", match.Anchor{Text: "x"})
	var pe *snapshot.ParseError
	assert.ErrorAs(t, err, &pe)
}

func TestGate(t *testing.T) {
	loc := newLocator(t)
	ctx := context.Background()

	v, err := loc.Gate(ctx, fixture.Feed, "//node[@resource-id='com.xingin.xhs:id/follow_btn']", 0.9)
	require.NoError(t, err)
	assert.True(t, v.Passed)

	v, err = loc.Gate(ctx, fixture.Feed, "//node[@resource-id='com.xingin.xhs:id/missing']", 0.9)
	require.NoError(t, err)
	assert.False(t, v.Passed)

	_, err = loc.Gate(ctx, fixture.Feed, "//node[@text='x'", 0.9)
	var se *snapshot.SelectorError
	assert.ErrorAs(t, err, &se)

	assert.False(t, loc.QuickCheck("//node[@resource-id='x']", 0.1), "confidence below the gate")
}

func TestExecute_DerivesPlanOnLiveScreen(t *testing.T) {
	replay := device.NewReplay(fixture.FeedScrolled)
	loc := newLocator(t, WithDevice(replay))
	a := followAnchor(t)

	res := loc.Execute(context.Background(), ExecRequest{Anchor: a})
	require.True(t, res.Success, res.Error)
	assert.True(t, strings.HasPrefix(res.RunID, "run_"), res.RunID)
	assert.NotEmpty(t, res.SnapshotHash)
	assert.False(t, res.Recovered)
	assert.Equal(t, []device.Tap{{X: 922, Y: 284}}, replay.Taps())
	assert.Equal(t, &fallback.Point{X: 922, Y: 284}, res.Tap)

	recs, err := loc.Audit(context.Background(), observability.AuditFilter{AnchorKey: a.Key()})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, res.RunID, recs[0].RunID)
	assert.True(t, recs[0].Success)
	assert.Equal(t, res.UsedVariant, recs[0].Variant)
	assert.Equal(t, "http", recs[0].Transport)
}

func TestExecute_PlanFromRecordedScreen(t *testing.T) {
	replay := device.NewReplay(fixture.FeedScrolled)
	loc := newLocator(t, WithDevice(replay))
	a := followAnchor(t)

	rep, err := loc.Match(context.Background(), fixture.Feed, a)
	require.NoError(t, err)

	res := loc.Execute(context.Background(), ExecRequest{Anchor: a, Plan: rep.Plan})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, rep.Plan.Selected, res.UsedVariant)
	assert.Equal(t, []string{rep.Plan.Selected + ":OK"}, res.Chain)
	require.Len(t, replay.Taps(), 1)
}

func TestExecute_NoDevice(t *testing.T) {
	loc := newLocator(t)
	a := followAnchor(t)

	res := loc.Execute(context.Background(), ExecRequest{Anchor: a})
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, ErrNoDevice)
	assert.Equal(t, fallback.UsedNone, res.UsedVariant)

	recs, err := loc.Audit(context.Background(), observability.AuditFilter{Status: observability.StatusFailure})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, ErrNoDevice.Error(), recs[0].Error)
}

func TestExecute_RecoversAfterPlanFailure(t *testing.T) {
	replay := device.NewReplay(fixture.FeedScrolled)
	loc := newLocator(t, WithDevice(replay))

	plan := fallback.Plan{Selected: "gone", Variants: []fallback.Variant{{
		ID:          "gone",
		Instruction: bridge.Instruction{Mode: bridge.ExactTextMatch{Text: "取消关注", Source: "text", Confidence: 0.9}},
	}}}
	res := loc.Execute(context.Background(), ExecRequest{
		Anchor: match.Anchor{Text: "取消关注"},
		Plan:   plan,
		Recovery: &recovery.Context{
			OriginalXML:   fixture.Feed,
			SelectedXPath: "//node[@resource-id='com.xingin.xhs:id/follow_btn']",
		},
	})

	require.True(t, res.Success, res.Error)
	assert.True(t, res.Recovered)
	assert.Equal(t, "recovery:"+recovery.RuleXPath, res.UsedVariant)
	require.Len(t, res.Chain, 2)
	assert.True(t, strings.HasPrefix(res.Chain[0], "gone:FAILED:"), res.Chain[0])
	assert.Equal(t, "recovery:"+recovery.RuleXPath+":OK", res.Chain[1])
	assert.Equal(t, []device.Tap{{X: 922, Y: 284}}, replay.Taps())

	st, err := loc.Stats(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Recoveries.Count)
	assert.Equal(t, "closed", st.BreakerState)
}

// deleteRow holds an avatar and a "Delete" action where a "Follow" button
// used to be.
const deleteRow = `<?xml version='1.0' encoding='UTF-8' standalone='yes' ?>
<hierarchy rotation="0">
  <node index="0" text="" resource-id="" class="android.widget.FrameLayout" package="com.app" content-desc="" clickable="false" enabled="true" bounds="[0,0][1080,2400]">
    <node index="0" text="" resource-id="com.app:id/row" class="android.widget.LinearLayout" package="com.app" content-desc="" clickable="false" enabled="true" bounds="[0,200][1080,330]">
      <node index="0" text="" resource-id="com.app:id/avatar" class="android.widget.ImageView" package="com.app" content-desc="" clickable="false" enabled="true" bounds="[40,230][120,300]" />
      <node index="1" text="Delete" resource-id="com.app:id/action" class="android.widget.TextView" package="com.app" content-desc="" clickable="true" enabled="true" bounds="[860,230][1040,300]" />
    </node>
  </node>
</hierarchy>`

func TestExecute_NoModePassedDoesNotTap(t *testing.T) {
	replay := device.NewReplay(deleteRow)
	loc := newLocator(t, WithDevice(replay))
	a := match.Anchor{
		Text:   "Follow",
		Class:  "android.widget.TextView",
		Bounds: geom.MustParseRect("[860,230][1040,300]"),
	}

	rep, err := loc.Match(context.Background(), deleteRow, a)
	require.NoError(t, err)
	require.False(t, rep.Recommendation.Found, rep.Recommendation.Reason)

	res := loc.Execute(context.Background(), ExecRequest{Anchor: a})
	assert.False(t, res.Success)
	assert.Empty(t, replay.Taps(), "Delete must not be tapped for a Follow anchor")
	assert.Equal(t, fallback.UsedNone, res.UsedVariant)
	assert.ErrorIs(t, res.Err, fallback.ErrNoMatch)
	require.Len(t, res.Chain, 1)
	assert.True(t, strings.HasPrefix(res.Chain[0], "derived:"), res.Chain[0])
}

// fullScreenRoot is a single clickable root covering the whole screen.
const fullScreenRoot = `<?xml version='1.0' encoding='UTF-8' standalone='yes' ?>
<hierarchy rotation="0">
  <node index="0" text="" resource-id="com.app:id/root" class="android.widget.FrameLayout" package="com.app" content-desc="Home" clickable="true" enabled="true" bounds="[0,0][1080,2400]" />
</hierarchy>`

func TestExecute_RecoveryPassesSafetyGate(t *testing.T) {
	replay := device.NewReplay(fullScreenRoot)
	loc := newLocator(t, WithDevice(replay))

	plan := fallback.Plan{Selected: "gone", Variants: []fallback.Variant{{
		ID:          "gone",
		Instruction: bridge.Instruction{Mode: bridge.ExactTextMatch{Text: "Gone", Source: "text", Confidence: 0.9}},
	}}}
	res := loc.Execute(context.Background(), ExecRequest{
		Anchor: match.Anchor{Text: "Gone"},
		Plan:   plan,
		Recovery: &recovery.Context{
			OriginalXML: fullScreenRoot,
			Desc:        "Home",
			ResourceID:  "com.app:id/root",
		},
	})

	assert.False(t, res.Success)
	assert.False(t, res.Recovered)
	assert.Empty(t, replay.Taps(), "the full-screen root is never tapped")
	require.Len(t, res.Chain, 2)
	assert.True(t, strings.HasPrefix(res.Chain[1], "recovery:FAILED:"), res.Chain[1])
	require.NotNil(t, res.Recovery)
	var ue *gate.UnsafeTargetError
	assert.ErrorAs(t, res.Err, &ue)
}

func TestRecover(t *testing.T) {
	loc := newLocator(t)
	params := []byte(`{"original_data":{"original_xml":` + quote(fixture.Feed) +
		`,"selected_xpath":"//node[@resource-id='com.xingin.xhs:id/follow_btn']"}}`)

	out, err := loc.Recover(context.Background(), params, fixture.FeedScrolled)
	require.NoError(t, err)
	assert.Equal(t, 7, out.Best)
	assert.Equal(t, recovery.RuleXPath, out.Rule)

	_, err = loc.Recover(context.Background(), []byte(`{}`), fixture.FeedScrolled)
	assert.ErrorIs(t, err, recovery.ErrNoOriginal)
}

func TestPrune(t *testing.T) {
	loc := newLocator(t)
	loc.Execute(context.Background(), ExecRequest{Anchor: match.Anchor{Text: "x"}})
	require.NoError(t, loc.Prune(context.Background()))

	recs, err := loc.Audit(context.Background(), observability.AuditFilter{})
	require.NoError(t, err)
	assert.Len(t, recs, 1, "fresh rows survive")
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
