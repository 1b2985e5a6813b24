// CLAUDE:SUMMARY SQLite execution audit (one row per Execute run, sync or buffered async), metrics timeseries and slog setup helpers.
// Package observability persists what the locator did: an execution audit
// row per run, timeseries metrics, and the slog handler setup shared by the
// CLI and the server.
//
// Both stores write to a SQLite database opened through dbopen. Call Init
// (or let NewAuditLog / NewMetrics do it) before use.
package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/uianchor/idgen"
)

// Status filter values for AuditFilter.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// ExecRecord is one execution run as stored in exec_audit.
type ExecRecord struct {
	RunID      string    `json:"run_id"`
	Timestamp  time.Time `json:"timestamp"`
	AnchorKey  string    `json:"anchor_key"`
	Transport  string    `json:"transport,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
	Variant    string    `json:"variant"`
	Success    bool      `json:"success"`
	MatchCount int       `json:"match_count"`
	Confidence float64   `json:"confidence"`
	ElapsedMS  int64     `json:"elapsed_ms"`
	Recovered  bool      `json:"recovered,omitempty"`
	Chain      []string  `json:"fallback_chain"`
	Error      string    `json:"error,omitempty"`
}

// AuditFilter selects rows for Query. Zero values mean "any".
type AuditFilter struct {
	Status    string    `json:"status,omitempty"`
	AnchorKey string    `json:"anchor_key,omitempty"`
	Since     time.Time `json:"since,omitzero"`
	Limit     int       `json:"limit,omitempty"`
	Offset    int       `json:"offset,omitempty"`
}

// AuditLog writes execution records to exec_audit. Record is synchronous;
// RecordAsync queues the row for a background batch writer that Close drains.
type AuditLog struct {
	db     *sql.DB
	newID  idgen.Generator
	now    func() time.Time
	logger *slog.Logger

	ch        chan *ExecRecord
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// AuditOption configures an AuditLog.
type AuditOption func(*AuditLog)

// WithRunIDGenerator sets the generator for records without a run id.
func WithRunIDGenerator(gen idgen.Generator) AuditOption {
	return func(a *AuditLog) { a.newID = gen }
}

// WithAuditLogger sets the logger for background write failures.
func WithAuditLogger(l *slog.Logger) AuditOption {
	return func(a *AuditLog) { a.logger = l }
}

// WithAuditClock overrides the timestamp source.
func WithAuditClock(now func() time.Time) AuditOption {
	return func(a *AuditLog) { a.now = now }
}

// WithAsyncBuffer sets the capacity of the RecordAsync queue. Default: 256.
func WithAsyncBuffer(n int) AuditOption {
	return func(a *AuditLog) { a.ch = make(chan *ExecRecord, n) }
}

// NewAuditLog applies the schema and starts the async writer.
func NewAuditLog(db *sql.DB, opts ...AuditOption) (*AuditLog, error) {
	if err := Init(db); err != nil {
		return nil, fmt.Errorf("observability: init schema: %w", err)
	}
	a := &AuditLog{
		db:    db,
		newID: idgen.RunID,
		now:   time.Now,
		ch:    make(chan *ExecRecord, 256),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	for _, o := range opts {
		o(a)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	go a.flushLoop()
	return a, nil
}

// Record writes one row synchronously and returns the stored record with
// defaults filled in.
func (a *AuditLog) Record(ctx context.Context, rec ExecRecord) (ExecRecord, error) {
	a.fillDefaults(&rec)
	if err := a.insert(ctx, a.db, &rec); err != nil {
		return rec, fmt.Errorf("observability: record %s: %w", rec.RunID, err)
	}
	return rec, nil
}

// RecordAsync queues a row without blocking. When the queue is full the row
// is dropped with a warning; the caller's run is never delayed by auditing.
func (a *AuditLog) RecordAsync(rec ExecRecord) string {
	a.fillDefaults(&rec)
	select {
	case a.ch <- &rec:
	default:
		a.logger.Warn("observability: audit queue full, dropping record", "run_id", rec.RunID)
	}
	return rec.RunID
}

// Query returns rows matching f, newest first. Limit defaults to 100.
func (a *AuditLog) Query(ctx context.Context, f AuditFilter) ([]ExecRecord, error) {
	q := `SELECT run_id, timestamp, anchor_key, transport, request_id, variant,
		success, match_count, confidence, elapsed_ms, recovered, chain, error
		FROM exec_audit WHERE 1=1`
	var args []any

	switch f.Status {
	case "":
	case StatusSuccess:
		q += " AND success = 1"
	case StatusFailure:
		q += " AND success = 0"
	default:
		return nil, fmt.Errorf("observability: invalid status filter %q", f.Status)
	}
	if f.AnchorKey != "" {
		q += " AND anchor_key = ?"
		args = append(args, f.AnchorKey)
	}
	if !f.Since.IsZero() {
		q += " AND timestamp >= ?"
		args = append(args, f.Since.UnixMilli())
	}
	q += " ORDER BY timestamp DESC, run_id DESC LIMIT ?"
	limit := 100
	if f.Limit > 0 {
		limit = f.Limit
	}
	args = append(args, limit)
	if f.Offset > 0 {
		q += " OFFSET ?"
		args = append(args, f.Offset)
	}

	rows, err := a.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("observability: query audit: %w", err)
	}
	defer rows.Close()

	var out []ExecRecord
	for rows.Next() {
		var r ExecRecord
		var ts int64
		var chain string
		if err := rows.Scan(&r.RunID, &ts, &r.AnchorKey, &r.Transport, &r.RequestID, &r.Variant,
			&r.Success, &r.MatchCount, &r.Confidence, &r.ElapsedMS, &r.Recovered, &chain, &r.Error); err != nil {
			return nil, fmt.Errorf("observability: scan audit row: %w", err)
		}
		r.Timestamp = time.UnixMilli(ts)
		if err := json.Unmarshal([]byte(chain), &r.Chain); err != nil {
			return nil, fmt.Errorf("observability: decode chain of %s: %w", r.RunID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Cleanup deletes rows older than maxAge and returns how many were removed.
func (a *AuditLog) Cleanup(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := a.now().Add(-maxAge).UnixMilli()
	res, err := a.db.ExecContext(ctx, "DELETE FROM exec_audit WHERE timestamp < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("observability: cleanup audit: %w", err)
	}
	return res.RowsAffected()
}

// Close drains the async queue and stops the writer. It is idempotent.
func (a *AuditLog) Close() error {
	a.closeOnce.Do(func() { close(a.stop) })
	<-a.done
	return nil
}

func (a *AuditLog) fillDefaults(r *ExecRecord) {
	if r.RunID == "" {
		r.RunID = a.newID()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = a.now()
	}
	if r.Chain == nil {
		r.Chain = []string{}
	}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const insertExec = `INSERT INTO exec_audit
	(run_id, timestamp, anchor_key, transport, request_id, variant,
	 success, match_count, confidence, elapsed_ms, recovered, chain, error)
	VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`

func (a *AuditLog) insert(ctx context.Context, db execer, r *ExecRecord) error {
	chain, err := json.Marshal(r.Chain)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, insertExec,
		r.RunID, r.Timestamp.UnixMilli(), r.AnchorKey, r.Transport, r.RequestID, r.Variant,
		r.Success, r.MatchCount, r.Confidence, r.ElapsedMS, r.Recovered, string(chain), r.Error)
	return err
}

func (a *AuditLog) flushLoop() {
	defer close(a.done)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	batch := make([]*ExecRecord, 0, 64)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		tx, err := a.db.BeginTx(ctx, nil)
		if err != nil {
			a.logger.Error("observability: audit begin tx", "error", err)
			return
		}
		for _, r := range batch {
			if err := a.insert(ctx, tx, r); err != nil {
				a.logger.Error("observability: audit insert", "error", err, "run_id", r.RunID)
			}
		}
		if err := tx.Commit(); err != nil {
			a.logger.Error("observability: audit commit", "error", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-a.stop:
			for {
				select {
				case r := <-a.ch:
					batch = append(batch, r)
				default:
					flush()
					return
				}
			}
		case r := <-a.ch:
			batch = append(batch, r)
			if len(batch) >= 64 {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
