package observability

import "database/sql"

// Schema contains the DDL for the execution audit and metrics tables.
// Timestamps are unix milliseconds.
const Schema = `
-- Execution audit: one row per locator.Execute run
CREATE TABLE IF NOT EXISTS exec_audit (
    run_id TEXT PRIMARY KEY,
    timestamp INTEGER NOT NULL,
    anchor_key TEXT NOT NULL,
    transport TEXT NOT NULL DEFAULT '',
    request_id TEXT NOT NULL DEFAULT '',
    variant TEXT NOT NULL,
    success INTEGER NOT NULL,
    match_count INTEGER NOT NULL DEFAULT 0,
    confidence REAL NOT NULL DEFAULT 0,
    elapsed_ms INTEGER NOT NULL DEFAULT 0,
    recovered INTEGER NOT NULL DEFAULT 0,
    chain TEXT NOT NULL DEFAULT '[]',
    error TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_exec_audit_timestamp ON exec_audit(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_exec_audit_anchor ON exec_audit(anchor_key, timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_exec_audit_success ON exec_audit(success);

-- Metrics timeseries
CREATE TABLE IF NOT EXISTS metrics_timeseries (
    metric_id INTEGER PRIMARY KEY AUTOINCREMENT,
    metric_name TEXT NOT NULL,
    timestamp INTEGER NOT NULL,
    value REAL NOT NULL,
    labels TEXT,
    unit TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_metrics_name_time
    ON metrics_timeseries(metric_name, timestamp DESC);
`

// Init applies the observability schema to the given database.
func Init(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
