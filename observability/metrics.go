package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Metric names recorded by the locator.
const (
	MetricExecElapsedMS    = "exec_elapsed_ms"
	MetricExecSuccess      = "exec_success"
	MetricFallbackAttempts = "fallback_attempts"
	MetricRecoveryUsed     = "recovery_used"
)

// Metric is a single timeseries datapoint.
type Metric struct {
	Name      string            `json:"name"`
	Timestamp time.Time         `json:"timestamp"`
	Value     float64           `json:"value"`
	Labels    map[string]string `json:"labels,omitempty"`
	Unit      string            `json:"unit,omitempty"`
}

// Summary aggregates one metric over a window.
type Summary struct {
	Name  string  `json:"name"`
	Count int64   `json:"count"`
	Sum   float64 `json:"sum"`
	Avg   float64 `json:"avg"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// Metrics buffers datapoints and flushes them to metrics_timeseries in
// batches, when the buffer fills, on every interval tick and on Close.
type Metrics struct {
	db            *sql.DB
	bufferSize    int
	flushInterval time.Duration
	logger        *slog.Logger

	mu     sync.Mutex
	buffer []*Metric

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewMetrics applies the schema and starts the flush loop.
// Typical values: bufferSize=100, flushInterval=5s.
func NewMetrics(db *sql.DB, bufferSize int, flushInterval time.Duration, logger *slog.Logger) (*Metrics, error) {
	if err := Init(db); err != nil {
		return nil, fmt.Errorf("observability: init schema: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &Metrics{
		db:            db,
		bufferSize:    max(bufferSize, 1),
		flushInterval: flushInterval,
		logger:        logger,
		buffer:        make([]*Metric, 0, max(bufferSize, 1)),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	go m.flushLoop()
	return m, nil
}

// Record queues a datapoint. A zero timestamp means now.
func (m *Metrics) Record(p Metric) {
	if p.Timestamp.IsZero() {
		p.Timestamp = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buffer = append(m.buffer, &p)
	if len(m.buffer) >= m.bufferSize {
		m.flushLocked()
	}
}

// Observe records a labelled value.
func (m *Metrics) Observe(name string, value float64, unit string, labels map[string]string) {
	m.Record(Metric{Name: name, Value: value, Unit: unit, Labels: labels})
}

// Flush writes buffered datapoints now.
func (m *Metrics) Flush() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushLocked()
}

// Query returns datapoints of name (all names when empty) since the given
// time, newest first.
func (m *Metrics) Query(ctx context.Context, name string, since time.Time, limit int) ([]Metric, error) {
	q := "SELECT metric_name, timestamp, value, labels, unit FROM metrics_timeseries WHERE 1=1"
	var args []any
	if name != "" {
		q += " AND metric_name = ?"
		args = append(args, name)
	}
	if !since.IsZero() {
		q += " AND timestamp >= ?"
		args = append(args, since.UnixMilli())
	}
	q += " ORDER BY timestamp DESC, metric_id DESC"
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := m.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("observability: query metrics: %w", err)
	}
	defer rows.Close()

	var out []Metric
	for rows.Next() {
		var p Metric
		var ts int64
		var labels sql.NullString
		if err := rows.Scan(&p.Name, &ts, &p.Value, &labels, &p.Unit); err != nil {
			return nil, fmt.Errorf("observability: scan metric: %w", err)
		}
		p.Timestamp = time.UnixMilli(ts)
		if labels.Valid {
			_ = json.Unmarshal([]byte(labels.String), &p.Labels)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Summarize aggregates persisted datapoints of name since the given time.
// Buffered points are not included until flushed.
func (m *Metrics) Summarize(ctx context.Context, name string, since time.Time) (Summary, error) {
	s := Summary{Name: name}
	var sum, avg, lo, hi sql.NullFloat64
	err := m.db.QueryRowContext(ctx, `SELECT COUNT(*), SUM(value), AVG(value), MIN(value), MAX(value)
		FROM metrics_timeseries WHERE metric_name = ? AND timestamp >= ?`,
		name, since.UnixMilli()).Scan(&s.Count, &sum, &avg, &lo, &hi)
	if err != nil {
		return s, fmt.Errorf("observability: summarize %s: %w", name, err)
	}
	s.Sum, s.Avg, s.Min, s.Max = sum.Float64, avg.Float64, lo.Float64, hi.Float64
	return s, nil
}

// Close flushes remaining datapoints and stops the flush loop.
func (m *Metrics) Close() error {
	m.closeOnce.Do(func() { close(m.stop) })
	<-m.done
	return nil
}

func (m *Metrics) flushLoop() {
	defer close(m.done)
	ticker := time.NewTicker(m.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			m.Flush()
			return
		case <-ticker.C:
			m.Flush()
		}
	}
}

func (m *Metrics) flushLocked() {
	if len(m.buffer) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		m.logger.Error("observability: metrics begin tx", "error", err)
		return
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO metrics_timeseries (metric_name, timestamp, value, labels, unit) VALUES (?,?,?,?,?)`)
	if err != nil {
		tx.Rollback()
		m.logger.Error("observability: metrics prepare", "error", err)
		return
	}
	defer stmt.Close()

	for _, p := range m.buffer {
		var labels sql.NullString
		if len(p.Labels) > 0 {
			if b, err := json.Marshal(p.Labels); err == nil {
				labels = sql.NullString{String: string(b), Valid: true}
			}
		}
		if _, err := stmt.ExecContext(ctx, p.Name, p.Timestamp.UnixMilli(), p.Value, labels, p.Unit); err != nil {
			m.logger.Error("observability: metrics insert", "error", err, "metric", p.Name)
		}
	}
	if err := tx.Commit(); err != nil {
		m.logger.Error("observability: metrics commit", "error", err)
	}
	m.buffer = m.buffer[:0]
}
