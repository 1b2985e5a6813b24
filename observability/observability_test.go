package observability

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/hazyhaar/uianchor/dbopen"
	"github.com/hazyhaar/uianchor/idgen"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newAudit(t *testing.T, db *sql.DB, c *clock) *AuditLog {
	t.Helper()
	a, err := NewAuditLog(db, WithAuditClock(c.now))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestInit_CreatesTables(t *testing.T) {
	db := dbopen.OpenMemory(t)
	require.NoError(t, Init(db))
	require.NoError(t, Init(db), "schema must be idempotent")
	for _, table := range []string{"exec_audit", "metrics_timeseries"} {
		var n int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&n))
		assert.Equal(t, 1, n, table)
	}
}

func TestAuditLog_RecordAndQuery(t *testing.T) {
	db := dbopen.OpenMemory(t)
	c := &clock{t: time.UnixMilli(1_700_000_000_000)}
	a := newAudit(t, db, c)
	ctx := context.Background()

	ok, err := a.Record(ctx, ExecRecord{
		AnchorKey:  "follow",
		Variant:    "text_augmented_position#0",
		Success:    true,
		MatchCount: 1,
		Confidence: 0.89,
		ElapsedMS:  42,
		Chain:      []string{"text_augmented_position#0:OK"},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ok.RunID, "run_"), ok.RunID)
	_, err = idgen.ParseRunID(ok.RunID)
	require.NoError(t, err)

	c.t = c.t.Add(time.Second)
	_, err = a.Record(ctx, ExecRecord{
		AnchorKey: "card",
		Variant:   "NONE",
		Chain:     []string{"a:FAILED:no match", "b:FAILED:no match"},
		Error:     "all strategies failed, last error: no match",
	})
	require.NoError(t, err)

	all, err := a.Query(ctx, AuditFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "card", all[0].AnchorKey, "newest first")
	assert.Equal(t, []string{"a:FAILED:no match", "b:FAILED:no match"}, all[0].Chain)
	assert.Equal(t, ok.RunID, all[1].RunID)
	assert.InDelta(t, 0.89, all[1].Confidence, 1e-9)
	assert.Equal(t, int64(42), all[1].ElapsedMS)
	assert.True(t, all[1].Timestamp.Equal(time.UnixMilli(1_700_000_000_000)))

	failed, err := a.Query(ctx, AuditFilter{Status: StatusFailure})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.False(t, failed[0].Success)

	recent, err := a.Query(ctx, AuditFilter{Since: time.UnixMilli(1_700_000_000_500)})
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "card", recent[0].AnchorKey)

	byAnchor, err := a.Query(ctx, AuditFilter{AnchorKey: "follow", Status: StatusSuccess})
	require.NoError(t, err)
	assert.Len(t, byAnchor, 1)

	limited, err := a.Query(ctx, AuditFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "follow", limited[0].AnchorKey)
}

func TestAuditLog_InvalidStatus(t *testing.T) {
	a := newAudit(t, dbopen.OpenMemory(t), &clock{t: time.Now()})
	_, err := a.Query(context.Background(), AuditFilter{Status: "maybe"})
	assert.ErrorContains(t, err, "invalid status")
}

func TestAuditLog_DuplicateRunID(t *testing.T) {
	a := newAudit(t, dbopen.OpenMemory(t), &clock{t: time.Now()})
	ctx := context.Background()
	_, err := a.Record(ctx, ExecRecord{RunID: "run_x", AnchorKey: "k", Variant: "v"})
	require.NoError(t, err)
	_, err = a.Record(ctx, ExecRecord{RunID: "run_x", AnchorKey: "k", Variant: "v"})
	assert.ErrorContains(t, err, "run_x")
}

func TestAuditLog_AsyncDrainedOnClose(t *testing.T) {
	db := dbopen.OpenMemory(t)
	a, err := NewAuditLog(db)
	require.NoError(t, err)

	for i := range 10 {
		id := a.RecordAsync(ExecRecord{AnchorKey: fmt.Sprintf("k%d", i), Variant: "v", Success: i%2 == 0})
		assert.NotEmpty(t, id)
	}
	require.NoError(t, a.Close())
	require.NoError(t, a.Close(), "second close is a no-op")

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM exec_audit").Scan(&n))
	assert.Equal(t, 10, n)
}

func TestAuditLog_Cleanup(t *testing.T) {
	db := dbopen.OpenMemory(t)
	c := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	a := newAudit(t, db, c)
	ctx := context.Background()

	_, err := a.Record(ctx, ExecRecord{AnchorKey: "old", Variant: "v"})
	require.NoError(t, err)
	c.t = c.t.Add(48 * time.Hour)
	_, err = a.Record(ctx, ExecRecord{AnchorKey: "new", Variant: "v"})
	require.NoError(t, err)

	n, err := a.Cleanup(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rest, err := a.Query(ctx, AuditFilter{})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "new", rest[0].AnchorKey)
}

func TestMetrics_RecordQuerySummarize(t *testing.T) {
	db := dbopen.OpenMemory(t)
	m, err := NewMetrics(db, 100, time.Hour, nil)
	require.NoError(t, err)

	for _, v := range []float64{10, 20, 60} {
		m.Observe(MetricExecElapsedMS, v, "milliseconds", map[string]string{"mode": "card_subtree"})
	}
	m.Record(Metric{Name: MetricExecSuccess, Value: 1, Unit: "count"})
	require.NoError(t, m.Close(), "close flushes the buffer")

	ctx := context.Background()
	pts, err := m.Query(ctx, MetricExecElapsedMS, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, pts, 3)
	assert.Equal(t, "card_subtree", pts[0].Labels["mode"])

	s, err := m.Summarize(ctx, MetricExecElapsedMS, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), s.Count)
	assert.InDelta(t, 30, s.Avg, 1e-9)
	assert.InDelta(t, 10, s.Min, 1e-9)
	assert.InDelta(t, 60, s.Max, 1e-9)

	empty, err := m.Summarize(ctx, "unknown", time.Time{})
	require.NoError(t, err)
	assert.Zero(t, empty.Count)
}

func TestMetrics_FlushOnFullBuffer(t *testing.T) {
	db := dbopen.OpenMemory(t)
	m, err := NewMetrics(db, 2, time.Hour, nil)
	require.NoError(t, err)
	defer m.Close()

	m.Observe(MetricFallbackAttempts, 1, "count", nil)
	m.Observe(MetricFallbackAttempts, 2, "count", nil)

	pts, err := m.Query(context.Background(), "", time.Time{}, 10)
	require.NoError(t, err)
	assert.Len(t, pts, 2)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, "json", "warn")
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", RunAttrs("run_1", "follow", "direct_coordinate#2", true))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "shown", rec["msg"])
	run := rec["run"].(map[string]any)
	assert.Equal(t, "follow", run["anchor"])
	assert.Equal(t, true, run["success"])

	_, err = NewLogger(&buf, "xml", "info")
	assert.Error(t, err)
	_, err = NewLogger(&buf, "text", "loud")
	assert.Error(t, err)

	lvl, err := ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, lvl)
}
