package persistence

import (
	"context"
	"database/sql"
	"time"
)

// PostgresDedupChecker is the cold-path idempotency lookup against the
// persisted audit log, consulted when a key has aged out of the engine's LRU.
type PostgresDedupChecker struct {
	db      *sql.DB
	timeout time.Duration
}

func NewPostgresDedupChecker(db *sql.DB) *PostgresDedupChecker {
	return &PostgresDedupChecker{db: db, timeout: 500 * time.Millisecond}
}

// IsDuplicate reports whether an event with this key was already committed.
// The lookup is bounded so a slow database cannot stall report processing.
func (c *PostgresDedupChecker) IsDuplicate(eventType, idempotencyKey string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	var exists int
	err := c.db.QueryRowContext(ctx, `
		SELECT 1
		FROM audit_log.events
		WHERE event_type = $1 AND idempotency_key = $2
		LIMIT 1
	`, eventType, idempotencyKey).Scan(&exists)

	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
