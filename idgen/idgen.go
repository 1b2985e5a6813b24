// CLAUDE:SUMMARY Pluggable string ID generators: UUIDv7 for request ids, ULID for execution run ids.
// Package idgen provides pluggable ID generation.
//
// Constructors that persist or correlate records (observability.AuditLog,
// the locator HTTP and MCP surfaces) accept a Generator so the strategy is a
// startup-time decision.
package idgen

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator that produces RFC 9562 UUID v7 strings.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// ULID returns a Generator of 26-character, lexicographically sortable
// ULIDs. Run ids use it so audit rows sort by creation time as text.
func ULID() Generator {
	return func() string {
		return ulid.Make().String()
	}
}

// Prefixed wraps a Generator and prepends a fixed prefix to every ID,
// e.g. "run_" or "req_".
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Default is UUIDv7.
var Default Generator = UUIDv7()

// New produces an ID using the Default generator.
func New() string {
	return Default()
}

// RunID is the generator for execution runs.
var RunID Generator = Prefixed("run_", ULID())

// Parse validates a UUID string and returns its canonical form.
func Parse(s string) (string, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid UUID: %w", err)
	}
	return u.String(), nil
}

// ParseRunID validates a run id produced by RunID and returns the embedded
// millisecond timestamp.
func ParseRunID(id string) (uint64, error) {
	if len(id) < 4 || id[:4] != "run_" {
		return 0, fmt.Errorf("invalid run id %q: missing run_ prefix", id)
	}
	u, err := ulid.ParseStrict(id[4:])
	if err != nil {
		return 0, fmt.Errorf("invalid run id %q: %w", id, err)
	}
	return u.Time(), nil
}
