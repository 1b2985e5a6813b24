package recovery

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/uianchor/geom"
	"github.com/hazyhaar/uianchor/internal/fixture"
	"github.com/hazyhaar/uianchor/snapshot"
)

func TestCompareText(t *testing.T) {
	cases := []struct {
		a, b string
		want float64
	}{
		{"关注", "关注", 1},
		{"Follow", "follow", 0.98},
		{"ＡＢＣ", "abc", 0.98},
		{"Follow Me", "followme", 0.95},
		{"关注", "取消关注", 0.4},
		{"abcd", "abxy", 0.35},
		{"abc", "xyz", 0},
		{"", "x", 0},
		{"", "", 1},
	}
	for _, tc := range cases {
		assert.InDelta(t, tc.want, CompareText(tc.a, tc.b), 1e-9, "%q vs %q", tc.a, tc.b)
	}
}

func TestContextFromParams(t *testing.T) {
	raw, err := json.Marshal(map[string]any{
		"strategy_type": "standard",
		"original_data": map[string]any{
			"original_xml":   fixture.Feed,
			"selected_xpath": "//node[@resource-id='com.xingin.xhs:id/follow_btn']",
			"children_texts": []string{"a", "b"},
			"parent_info":    map[string]any{"class": "android.widget.LinearLayout"},
			"key_attributes": map[string]any{
				"text":         "关注",
				"resource-id":  "com.xingin.xhs:id/follow_btn",
				"content-desc": "",
				"bounds":       "[820,240][1040,320]",
			},
		},
	})
	require.NoError(t, err)

	c, err := ContextFromParams(raw)
	require.NoError(t, err)
	assert.Equal(t, "关注", c.Text)
	assert.Equal(t, "com.xingin.xhs:id/follow_btn", c.ResourceID)
	require.NotNil(t, c.Bounds)
	assert.Equal(t, geom.MustParseRect("[820,240][1040,320]"), *c.Bounds)
	assert.Equal(t, []string{"a", "b"}, c.ChildrenTexts)
	assert.JSONEq(t, `{"class":"android.widget.LinearLayout"}`, string(c.ParentInfo))
	assert.Equal(t, "standard", c.StrategyType)
	assert.Equal(t, StrategyXPath, c.Strategy())
}

func TestContextFromParams_Errors(t *testing.T) {
	_, err := ContextFromParams([]byte(`{"original_data":{"original_xml":""}}`))
	assert.ErrorIs(t, err, ErrNoOriginal)

	_, err = ContextFromParams([]byte(`{"key_attributes":{"text":"x"}}`))
	assert.ErrorIs(t, err, ErrNoOriginal)

	_, err = ContextFromParams([]byte(`{"original_data":{"original_xml":"<x/>","element_bounds":"[1,2][3]"}}`))
	var be *geom.BoundsError
	assert.ErrorAs(t, err, &be)

	_, err = ContextFromParams([]byte(`{`))
	assert.Error(t, err)
}

func TestContextStrategy(t *testing.T) {
	assert.Equal(t, StrategyTextAndID, Context{Text: "a", ResourceID: "b"}.Strategy())
	assert.Equal(t, StrategyText, Context{Text: "a"}.Strategy())
	assert.Equal(t, StrategyContentDesc, Context{Desc: "a"}.Strategy())
	assert.Equal(t, StrategyUnknown, Context{}.Strategy())
}

func live(t *testing.T) *snapshot.Snapshot {
	t.Helper()
	s, err := snapshot.Build(fixture.FeedScrolled)
	require.NoError(t, err)
	return s
}

func TestRecover_XPath(t *testing.T) {
	m := NewManager(DefaultConfig(), nil)
	out, err := m.Recover(context.Background(), Context{
		OriginalXML:   fixture.Feed,
		SelectedXPath: "//node[@resource-id='com.xingin.xhs:id/follow_btn']",
	}, live(t))
	require.NoError(t, err)

	assert.Equal(t, StrategyXPath, out.Strategy)
	assert.Equal(t, RuleXPath, out.Rule)
	assert.Equal(t, "关注", out.Original.Text)
	require.Len(t, out.Candidates, 1)
	assert.Equal(t, 7, out.Best)
	assert.InDelta(t, 0.8955, out.Confidence, 0.001)
	assert.False(t, out.Strict)
}

func TestRecover_TextAndIDRanksByEvaluator(t *testing.T) {
	m := NewManager(DefaultConfig(), nil)
	out, err := m.Recover(context.Background(), Context{
		OriginalXML: fixture.Feed,
		Text:        "小明",
		ResourceID:  "com.xingin.xhs:id/author",
	}, live(t))
	require.NoError(t, err)

	assert.Equal(t, RuleTextAndID, out.Rule)
	var order []int
	for _, c := range out.Candidates {
		order = append(order, c.Node)
	}
	assert.Equal(t, []int{15, 6, 24}, order)
	assert.Equal(t, 15, out.Best)
	assert.InDelta(t, 0.68, out.Confidence, 1e-9)
	assert.InDelta(t, 0.45, out.Candidates[1].Score, 1e-9)
	assert.InDelta(t, 0.24, out.Candidates[2].Score, 1e-9)
}

func TestRecover_AmbiguousTextTakesFirst(t *testing.T) {
	m := NewManager(DefaultConfig(), nil)
	out, err := m.Recover(context.Background(), Context{OriginalXML: fixture.Feed, Text: "小明"}, live(t))
	require.NoError(t, err)
	assert.Equal(t, RuleText, out.Rule)
	assert.Equal(t, StrategyText, out.Strategy)
	assert.Equal(t, geom.MustParseRect("[180,240][700,320]"), out.Original.Bounds)
}

func TestRecover_NoTextRequiresStrictMatch(t *testing.T) {
	m := NewManager(DefaultConfig(), nil)
	s := live(t)

	out, err := m.Recover(context.Background(), Context{
		OriginalXML:   fixture.Feed,
		SelectedXPath: "//node[@resource-id='com.xingin.xhs:id/card_wrapper']",
	}, s)
	require.NoError(t, err)
	assert.True(t, out.Strict)
	assert.Equal(t, 10, out.Best, "identical path beats the equivalent card root bounds")

	orig, err := snapshot.Build(fixture.Feed)
	require.NoError(t, err)
	out, err = m.Recover(context.Background(), Context{
		OriginalXML:   fixture.Feed,
		SelectedXPath: orig.Node(28).Path,
	}, s)
	require.NoError(t, err)
	assert.Equal(t, -1, out.Best, "third card is gone; the look-alike wrappers must not be tapped")
	assert.NotEmpty(t, out.Candidates)
	assert.Contains(t, out.Reason, "no strict")
}

func TestRecover_Errors(t *testing.T) {
	m := NewManager(DefaultConfig(), nil)
	_, err := m.Recover(context.Background(), Context{OriginalXML: fixture.Feed, Text: "不存在"}, live(t))
	assert.ErrorIs(t, err, ErrTargetNotFound)

	_, err = m.Recover(context.Background(), Context{OriginalXML: "<hierarchy><node"}, live(t))
	assert.Error(t, err)
}

func TestSimilar_NarrowsByResourceID(t *testing.T) {
	m := NewManager(Config{MaxCandidates: 2}, nil)
	s := live(t)
	// Text 小 overlaps every author and nickname; the id keeps the authors.
	got := m.similar(s, Target{Text: "小", ResourceID: "com.xingin.xhs:id/author"})
	assert.Equal(t, []int{15, 24}, got)
}
