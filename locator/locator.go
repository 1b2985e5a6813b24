// CLAUDE:SUMMARY Locator service — wires indexer, mode selector, bridge, gates, fallback, recovery, device, audit and score cache behind one API.
// Package locator is the service layer of uianchor. It owns the stores and
// the device connection and exposes the operations used by the CLI, the
// HTTP API and the MCP tools.
//
// Usage:
//
//	loc, err := locator.New(cfg, logger, locator.WithDevice(adb))
//	defer loc.Close()
//	rep, err := loc.Match(ctx, dump, anchor)
//	res := loc.Execute(ctx, locator.ExecRequest{Anchor: anchor, Plan: rep.Plan})
//	loc.RegisterMCP(mcpServer)
//	http.ListenAndServe(addr, loc.Handler())
package locator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/uianchor/bridge"
	"github.com/hazyhaar/uianchor/container"
	"github.com/hazyhaar/uianchor/dbopen"
	"github.com/hazyhaar/uianchor/device"
	"github.com/hazyhaar/uianchor/fallback"
	"github.com/hazyhaar/uianchor/gate"
	"github.com/hazyhaar/uianchor/geom"
	"github.com/hazyhaar/uianchor/match"
	"github.com/hazyhaar/uianchor/observability"
	"github.com/hazyhaar/uianchor/recovery"
	"github.com/hazyhaar/uianchor/scorecache"
	"github.com/hazyhaar/uianchor/snapshot"
)

// ErrNoDevice is returned by operations that need a device when none was
// configured.
var ErrNoDevice = errors.New("locator: no device configured")

// Locator is the uianchor service.
type Locator struct {
	cfg    *Config
	logger *slog.Logger
	now    func() time.Time

	db         *sql.DB
	cacheStore *scorecache.SQLiteStore
	cache      *scorecache.Cache
	selector   *match.Selector
	selGate    *gate.SelectorGate
	recovery   *recovery.Manager
	audit      *observability.AuditLog
	metrics    *observability.Metrics

	rawDevice device.Driver
	device    device.Driver
	breaker   *device.Breaker
	// tapMu keeps at most one Execute touching the device at a time.
	tapMu sync.Mutex
}

// Option configures a Locator.
type Option func(*Locator)

// WithDevice sets the device driver. New wraps it with the configured
// retry, breaker and timeout middleware.
func WithDevice(d device.Driver) Option {
	return func(l *Locator) { l.rawDevice = d }
}

// WithClock replaces time.Now for audit timestamps and the fallback budgets.
func WithClock(now func() time.Time) Option {
	return func(l *Locator) { l.now = now }
}

// New opens the database (in memory when cfg.DBPath is empty) and builds
// every component from cfg.
func New(cfg *Config, logger *slog.Logger, opts ...Option) (*Locator, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	l := &Locator{cfg: cfg, logger: logger, now: time.Now}
	for _, o := range opts {
		o(l)
	}

	path := cfg.DBPath
	if path == "" {
		path = dbopen.Memory
	}
	db, err := dbopen.Open(path, dbopen.WithMkdirAll())
	if err != nil {
		return nil, err
	}
	l.db = db

	if l.cacheStore, err = scorecache.NewSQLiteStore(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("locator: score cache: %w", err)
	}
	l.cache = scorecache.New(l.cacheStore, scorecache.WithLogger(logger))
	l.selector = match.NewSelector(cfg.Matching, match.WithCache(l.cache), match.WithLogger(logger))
	l.selGate = gate.NewSelectorGate(cfg.selectorGate(), logger)
	l.recovery = recovery.NewManager(cfg.Recovery.Config, logger)

	if l.audit, err = observability.NewAuditLog(db,
		observability.WithAuditLogger(logger),
		observability.WithAuditClock(func() time.Time { return l.now() }),
	); err != nil {
		db.Close()
		return nil, err
	}
	if l.metrics, err = observability.NewMetrics(db, 100, 5*time.Second, logger); err != nil {
		l.audit.Close()
		db.Close()
		return nil, err
	}

	if l.rawDevice != nil {
		l.breaker = device.NewBreaker(
			device.WithThreshold(cfg.Device.BreakerThreshold),
			device.WithResetTimeout(cfg.Device.BreakerReset),
		)
		l.device = device.Chain(l.rawDevice,
			device.WithRetry(cfg.Device.MaxRetries, cfg.Device.RetryBackoff, logger),
			device.WithBreaker(l.breaker, cfg.Device.Serial),
			device.WithTimeout(cfg.Device.Timeout),
		)
	}

	logger.Info("locator: ready", "db", path, "device", l.device != nil)
	return l, nil
}

// Close flushes the audit log and metrics and closes the database.
func (l *Locator) Close() error {
	errs := []error{l.audit.Close(), l.metrics.Close()}
	errs = append(errs, l.db.Close())
	return errors.Join(errs...)
}

// Config returns the effective configuration.
func (l *Locator) Config() *Config { return l.cfg }

// Index parses a raw dump into a snapshot.
func (l *Locator) Index(raw string) (*snapshot.Snapshot, error) {
	return snapshot.Build(raw)
}

// MatchReport is the result of Match: the selector verdict, the execution
// mapping derived from it and a ready-to-run plan.
type MatchReport struct {
	SnapshotHash   string               `json:"snapshot_hash"`
	AnchorKey      string               `json:"anchor_key"`
	Node           int                  `json:"node"`
	Recommendation match.Recommendation `json:"recommendation"`
	Mapping        *bridge.Mapping      `json:"mapping,omitempty"`
	MappingError   string               `json:"mapping_error,omitempty"`
	Plan           fallback.Plan        `json:"plan"`
}

// Match indexes raw, runs the mode selector for a and builds the execution
// mapping. A mapping failure (no usable label, say) is reported in the
// MatchReport, not as an error.
func (l *Locator) Match(ctx context.Context, raw string, a match.Anchor) (*MatchReport, error) {
	s, err := snapshot.Build(raw)
	if err != nil {
		return nil, err
	}
	return l.matchSnapshot(ctx, s, a, nil)
}

func (l *Locator) matchSnapshot(ctx context.Context, s *snapshot.Snapshot, a match.Anchor, checks []gate.Check) (*MatchReport, error) {
	rec, err := l.selector.Select(ctx, s, a)
	if err != nil {
		return nil, err
	}
	rep := &MatchReport{
		SnapshotHash:   s.Hash(),
		AnchorKey:      a.Key(),
		Node:           rec.Outcome.Node,
		Recommendation: rec,
	}
	m, err := bridge.Build(rec, s)
	if err != nil {
		rep.MappingError = err.Error()
		l.logger.WarnContext(ctx, "locator: no execution mapping", "mode", rec.Mode.String(), "error", err)
		return rep, nil
	}
	rep.Mapping = &m
	rep.Plan = fallback.PlanFromMapping(m, checks)
	return rep, nil
}

// MatchContainer resolves the list container named by a hint blob and
// scores its items.
func (l *Locator) MatchContainer(_ context.Context, raw string, hint container.Hint) (*container.Result, error) {
	s, err := snapshot.Build(raw)
	if err != nil {
		return nil, err
	}
	res := container.Match(s, hint, l.cfg.Container)
	return &res, nil
}

// Normalize maps tapped bounds to their list container, card root and
// clickable parent.
func (l *Locator) Normalize(_ context.Context, raw string, clicked geom.Rect) (*container.Normalized, error) {
	s, err := snapshot.Build(raw)
	if err != nil {
		return nil, err
	}
	n, err := container.NormalizeClick(s, clicked)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// Gate verifies a selector against raw. Only a malformed dump or an
// unsupported selector is an error; a failing gate is a Verification with
// Passed false.
func (l *Locator) Gate(ctx context.Context, raw, selector string, confidence float64) (gate.Verification, error) {
	s, err := snapshot.Build(raw)
	if err != nil {
		return gate.Verification{}, err
	}
	return l.selGate.Verify(ctx, s, selector, confidence)
}

// QuickCheck pre-flights a selector without a live dump.
func (l *Locator) QuickCheck(selector string, confidence float64) bool {
	return l.selGate.QuickCheck(selector, confidence)
}

// Recover decodes recovery params (original dump plus key attributes) and
// finds the recorded element on the live dump.
func (l *Locator) Recover(ctx context.Context, params []byte, liveRaw string) (*recovery.Outcome, error) {
	rc, err := recovery.ContextFromParams(params)
	if err != nil {
		return nil, err
	}
	live, err := snapshot.Build(liveRaw)
	if err != nil {
		return nil, fmt.Errorf("locator: live dump: %w", err)
	}
	out, err := l.recovery.Recover(ctx, rc, live)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Audit queries the execution audit.
func (l *Locator) Audit(ctx context.Context, f observability.AuditFilter) ([]observability.ExecRecord, error) {
	return l.audit.Query(ctx, f)
}

// Stats summarises cache behaviour and execution metrics since the given time.
type Stats struct {
	Cache        scorecache.Stats      `json:"cache"`
	Elapsed      observability.Summary `json:"elapsed_ms"`
	Success      observability.Summary `json:"success"`
	Recoveries   observability.Summary `json:"recoveries"`
	BreakerState string                `json:"breaker_state,omitempty"`
}

// Stats flushes buffered metrics and summarises them.
func (l *Locator) Stats(ctx context.Context, since time.Time) (Stats, error) {
	l.metrics.Flush()
	st := Stats{Cache: l.cache.Stats()}
	var err error
	if st.Elapsed, err = l.metrics.Summarize(ctx, observability.MetricExecElapsedMS, since); err != nil {
		return st, err
	}
	if st.Success, err = l.metrics.Summarize(ctx, observability.MetricExecSuccess, since); err != nil {
		return st, err
	}
	if st.Recoveries, err = l.metrics.Summarize(ctx, observability.MetricRecoveryUsed, since); err != nil {
		return st, err
	}
	if l.breaker != nil {
		st.BreakerState = l.breaker.State().String()
	}
	return st, nil
}

// Prune drops audit rows past the retention window and score cache entries
// older than a day.
func (l *Locator) Prune(ctx context.Context) error {
	n, err := l.audit.Cleanup(ctx, l.cfg.Audit.Retention)
	if err != nil {
		return err
	}
	m, err := l.cacheStore.Prune(ctx, 24*time.Hour)
	if err != nil {
		return err
	}
	l.logger.InfoContext(ctx, "locator: pruned", "audit_rows", n, "cache_entries", m)
	return nil
}
