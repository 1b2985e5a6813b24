package match

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/hazyhaar/uianchor/internal/fixture"
	"github.com/hazyhaar/uianchor/snapshot"
)

func feed(t *testing.T) *snapshot.Snapshot {
	t.Helper()
	s, err := snapshot.Build(fixture.Feed)
	require.NoError(t, err)
	return s
}

func TestCardSubtree_FullCard(t *testing.T) {
	s := feed(t)
	a := AnchorFromNode(s, 9)
	o := Score(CardSubtree, s, a, DefaultConfig())

	assert.True(t, o.Passed, o.Explain)
	assert.InDelta(t, 0.85, o.Confidence, 0.01)
	assert.Equal(t, 9, o.Evidence.CardRoot)
	assert.Equal(t, 10, o.Evidence.ClickableParent)
	assert.Equal(t, 1, o.Evidence.HierarchyDepth)
}

func TestCardSubtree_FromInnerNode(t *testing.T) {
	s := feed(t)
	// Anchor on the cover image: the scorer must climb to the card root.
	o := Score(CardSubtree, s, AnchorFromNode(s, 12), DefaultConfig())
	assert.Equal(t, 9, o.Evidence.CardRoot)
	assert.True(t, o.Passed)
}

func TestCardSubtree_NoCardRootIsLowNotError(t *testing.T) {
	s := feed(t)
	o := Score(CardSubtree, s, AnchorFromNode(s, 7), DefaultConfig())
	assert.False(t, o.Passed)
	assert.Less(t, o.Confidence, 0.2)
	assert.Contains(t, o.Explain, "no card root")
}

func TestCardFeatures_Monotonic(t *testing.T) {
	base := CardFeatures{Waterfall: true}
	steps := []func(*CardFeatures){
		func(f *CardFeatures) { f.DescOnRoot = true },
		func(f *CardFeatures) { f.ClickableParent = true },
		func(f *CardFeatures) { f.MediaArea, f.MediaRatio = true, 0.45 },
		func(f *CardFeatures) { f.BottomBar, f.BottomBarPos = true, 0.99 },
	}
	prev := base.Score()
	cur := base
	for k, step := range steps {
		step(&cur)
		got := cur.Score()
		assert.GreaterOrEqual(t, got, prev, "step %d", k)
		prev = got
	}

	full := CardFeatures{DescOnRoot: true, ClickableParent: true, MediaArea: true, BottomBar: true,
		Waterfall: true, MediaRatio: 0.65, BottomBarPos: 0.85}
	assert.InDelta(t, 0.85, full.Score(), 1e-9)
}

func TestLeafContext_FollowButton(t *testing.T) {
	s := feed(t)
	o := Score(LeafContext, s, AnchorFromNode(s, 7), DefaultConfig())
	assert.True(t, o.Passed, o.Explain)
	assert.InDelta(t, 0.895, o.Confidence, 1e-9)
	assert.Equal(t, 4, o.Evidence.RowContainer)
	assert.Equal(t, "关注", o.Evidence.Label)
}

func TestLeafContext_GenericText(t *testing.T) {
	s := feed(t)
	o := Score(LeafContext, s, AnchorFromNode(s, 6), DefaultConfig())
	assert.False(t, o.Passed)
	assert.InDelta(t, 0.625, o.Confidence, 1e-9)
}

func TestLeafFeatures_RowPosition(t *testing.T) {
	s := feed(t)
	// Avatar, nickname and follow button share the user row.
	assert.InDelta(t, 0.90, ExtractLeafFeatures(s, 5).Geometry, 1e-9)
	assert.InDelta(t, 0.65, ExtractLeafFeatures(s, 6).Geometry, 1e-9)
	assert.InDelta(t, 0.85, ExtractLeafFeatures(s, 7).Geometry, 1e-9)

	assert.InDelta(t, 0.85, rowPositionScore(3, 4), 1e-9)
	assert.InDelta(t, 0.90, rowPositionScore(0, 1), 1e-9, "lone child counts as left edge")
}

func TestTextExact(t *testing.T) {
	s := feed(t)

	unique := Score(TextExact, s, AnchorFromNode(s, 3), DefaultConfig())
	assert.True(t, unique.Passed)
	assert.InDelta(t, 0.95, unique.Confidence, 1e-9)
	assert.Equal(t, 3, unique.Node)

	dup := Score(TextExact, s, AnchorFromNode(s, 6), DefaultConfig())
	assert.False(t, dup.Passed, "小明 appears twice")
	assert.Equal(t, 2, dup.Evidence.Occurrences)
	assert.Less(t, dup.Confidence, unique.Confidence)

	count := Score(TextExact, s, AnchorFromNode(s, 17), DefaultConfig())
	assert.False(t, count.Passed, "like counts are unstable")

	desc := Score(TextExact, s, Anchor{Desc: "头像"}, DefaultConfig())
	assert.True(t, desc.Passed)
	assert.Equal(t, "content-desc", desc.Evidence.LabelSource)
	assert.Equal(t, 5, desc.Node)
}

func TestCheckTextStability(t *testing.T) {
	stable := []string{"取消关注", "发现", "Follow", "已收藏"}
	unstable := []string{"", "120", "1.2万", "12:30", "¥99", "这是一段很长的笔记正文内容不稳定", "Share this post", "第3集"}
	for _, label := range stable {
		assert.True(t, CheckTextStability(label).Stable, "label %q", label)
	}
	for _, label := range unstable {
		assert.False(t, CheckTextStability(label).Stable, "label %q", label)
	}
}

func TestPick_TieBreak(t *testing.T) {
	outs := []Outcome{
		{Mode: LeafContext, Confidence: 0.9, Passed: true},
		{Mode: CardSubtree, Confidence: 0.9, Passed: true},
		{Mode: TextExact, Confidence: 0.9, Passed: true},
	}
	rec := Pick(outs, DefaultConfig())
	assert.Equal(t, TextExact, rec.Mode)
	assert.True(t, rec.Found)
	assert.False(t, rec.ClearWinner)

	rec = Pick(outs[:2], DefaultConfig())
	assert.Equal(t, CardSubtree, rec.Mode)
}

func TestPick_PassingBeatsHigherFailing(t *testing.T) {
	outs := []Outcome{
		{Mode: TextExact, Confidence: 0.78, Passed: false},
		{Mode: CardSubtree, Confidence: 0.60, Passed: true},
	}
	rec := Pick(outs, DefaultConfig())
	assert.Equal(t, CardSubtree, rec.Mode)
	assert.True(t, rec.Found)
}

func TestPick_NothingPassed(t *testing.T) {
	outs := []Outcome{
		{Mode: TextExact, Confidence: 0.3},
		{Mode: LeafContext, Confidence: 0.5},
	}
	rec := Pick(outs, DefaultConfig())
	assert.False(t, rec.Found)
	assert.Equal(t, LeafContext, rec.Mode)
	assert.Len(t, rec.Outcomes, 2)
}

func TestSelector_Select(t *testing.T) {
	defer goleak.VerifyNone(t)
	s := feed(t)
	sel := NewSelector(DefaultConfig())

	rec, err := sel.Select(context.Background(), s, AnchorFromNode(s, 7))
	require.NoError(t, err)
	assert.Equal(t, TextExact, rec.Mode)
	assert.Len(t, rec.Outcomes, 3)

	rec, err = sel.Select(context.Background(), s, AnchorFromNode(s, 9))
	require.NoError(t, err)
	assert.Equal(t, CardSubtree, rec.Mode)
	assert.True(t, rec.ClearWinner)
}

func TestSelector_Cancelled(t *testing.T) {
	s := feed(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewSelector(DefaultConfig()).Select(ctx, s, AnchorFromNode(s, 7))
	assert.ErrorIs(t, err, context.Canceled)
}

type countingCache struct {
	mu       sync.Mutex
	data     map[string][]byte
	computes int
}

func (c *countingCache) GetOrCompute(ctx context.Context, key string, compute func(context.Context) ([]byte, error)) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.data[key]; ok {
		return v, true, nil
	}
	v, err := compute(ctx)
	if err != nil {
		return nil, false, err
	}
	c.computes++
	c.data[key] = v
	return v, false, nil
}

func TestSelector_Cache(t *testing.T) {
	s := feed(t)
	cache := &countingCache{data: map[string][]byte{}}
	sel := NewSelector(DefaultConfig(), WithCache(cache))
	a := AnchorFromNode(s, 7)

	first, err := sel.Select(context.Background(), s, a)
	require.NoError(t, err)
	second, err := sel.Select(context.Background(), s, a)
	require.NoError(t, err)

	assert.Equal(t, 3, cache.computes)
	assert.Equal(t, first.Mode, second.Mode)
	assert.Equal(t, first.Outcome.Confidence, second.Outcome.Confidence)
}

func TestLocate_AfterScroll(t *testing.T) {
	s := feed(t)
	a := AnchorFromNode(s, 7)
	live, err := snapshot.Build(fixture.FeedScrolled)
	require.NoError(t, err)

	i, ok := Locate(live, a)
	require.True(t, ok)
	assert.Equal(t, "关注", live.Node(i).Text)

	a.Path = ""
	i, ok = Locate(live, a)
	require.True(t, ok, "resource-id fallback")
	assert.Equal(t, "关注", live.Node(i).Text)
}

func TestMediaBlock_ImageOnly(t *testing.T) {
	const dump = `<hierarchy rotation="0">
  <node index="0" text="" class="android.widget.RelativeLayout" bounds="[0,0][1000,1000]">
    <node index="0" text="一段很长的正文" class="android.widget.TextView" bounds="[0,0][1000,600]" />
  </node>
  <node index="1" text="" class="android.widget.RelativeLayout" bounds="[0,1000][1000,2000]">
    <node index="0" text="" class="android.widget.FrameLayout" bounds="[0,1000][1000,1600]">
      <node index="0" text="" class="android.widget.ImageView" bounds="[0,1000][1000,1500]" />
    </node>
  </node>
</hierarchy>`
	s, err := snapshot.Build(dump)
	require.NoError(t, err)
	_, ok := mediaBlock(s, 1)
	assert.False(t, ok, "a tall TextView is not media")

	r, ok := mediaBlock(s, 3)
	require.True(t, ok, "image nested in a child container")
	assert.Equal(t, 500, r.Height())
}
