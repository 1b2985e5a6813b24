package scorecache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Schema creates the score_cache table.
const Schema = `
CREATE TABLE IF NOT EXISTS score_cache (
	cache_key  TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_score_cache_created ON score_cache(created_at);
`

// SQLiteStore persists entries in a score_cache table. Writes use
// INSERT OR IGNORE so the first writer of a key wins.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore creates the schema if needed.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("scorecache: init schema: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var v []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM score_cache WHERE cache_key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("scorecache: get: %w", err)
	}
	return v, true, nil
}

func (s *SQLiteStore) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO score_cache (cache_key, value, created_at) VALUES (?, ?, ?)`,
		key, value, s.now().Unix())
	if err != nil {
		return fmt.Errorf("scorecache: put: %w", err)
	}
	return nil
}

// Prune deletes entries older than maxAge and returns how many were removed.
func (s *SQLiteStore) Prune(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := s.now().Add(-maxAge).Unix()
	res, err := s.db.ExecContext(ctx, `DELETE FROM score_cache WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("scorecache: prune: %w", err)
	}
	return res.RowsAffected()
}
