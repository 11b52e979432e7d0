package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"VaultAccountant/internal/accountant"
)

// SnapshotStore saves and loads full engine state snapshots. A snapshot is
// emitted with every committed event; recovery loads the latest one and
// needs no event replay, the audit log serving audit queries only.
type SnapshotStore struct {
	db *sql.DB
}

func NewSnapshotStore(db *sql.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// Save upserts the snapshot keyed by its audit sequence.
func (s *SnapshotStore) Save(ctx context.Context, snap *accountant.StateSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_log.snapshots
			(snapshot_id, sequence, data, state_hash, format_version, size_bytes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (sequence) DO UPDATE SET data = $3, state_hash = $4, size_bytes = $6
	`, uuid.New(), snap.Sequence, data, snap.StateHash[:], int32(1), len(data), snap.CreatedAt)
	return err
}

// LoadLatest returns the most recent snapshot, nil on a cold start.
func (s *SnapshotStore) LoadLatest(ctx context.Context) (*accountant.StateSnapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT data FROM audit_log.snapshots
		ORDER BY sequence DESC
		LIMIT 1
	`)

	var data []byte
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var snap accountant.StateSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// Prune deletes all but the newest keep snapshots.
func (s *SnapshotStore) Prune(ctx context.Context, keep int) error {
	if keep <= 0 {
		return fmt.Errorf("prune: keep must be positive, got %d", keep)
	}
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM audit_log.snapshots
		WHERE sequence < (
			SELECT COALESCE(MIN(sequence), 0) FROM (
				SELECT sequence FROM audit_log.snapshots
				ORDER BY sequence DESC
				LIMIT $1
			) newest
		)
	`, keep)
	return err
}
