package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/relisten/internal/models"
)

// SyncStateRepository manages the per-(user, source) checkpoint cursor.
//
// The cursor advances monotonically and only inside the batch writer's
// transaction, so a rolled-back batch never moves it. Reset exists solely
// for an explicit full resync.
type SyncStateRepository struct {
	db *sql.DB
}

// NewSyncStateRepository creates a new SyncStateRepository with the given database connection
func NewSyncStateRepository(db *sql.DB) *SyncStateRepository {
	return &SyncStateRepository{db: db}
}

// Get retrieves the checkpoint for a (user, source) pair. A missing row
// reads as timestamp 0 (never synced).
func (r *SyncStateRepository) Get(user, source string) (*models.SyncState, error) {
	state := &models.SyncState{User: user, Source: source}

	query := "SELECT last_timestamp, updated_at FROM sync_state WHERE user = ? AND source = ?"
	err := r.db.QueryRow(query, user, source).Scan(&state.LastTimestamp, &state.UpdatedAt)
	if err == sql.ErrNoRows {
		return state, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sync state: %w", err)
	}

	return state, nil
}

// AdvanceTx moves the checkpoint forward within an open transaction.
// A timestamp at or behind the stored cursor is ignored: the cursor
// never moves backwards here.
func (r *SyncStateRepository) AdvanceTx(tx *sql.Tx, user, source string, ts int64) error {
	query := `
		INSERT INTO sync_state (user, source, last_timestamp, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user, source) DO UPDATE
		SET last_timestamp = excluded.last_timestamp, updated_at = excluded.updated_at
		WHERE excluded.last_timestamp > sync_state.last_timestamp
	`

	if _, err := tx.Exec(query, user, source, ts, time.Now()); err != nil {
		return fmt.Errorf("failed to advance checkpoint: %w", err)
	}

	return nil
}

// Reset rewinds the checkpoint to zero for an explicit full resync.
func (r *SyncStateRepository) Reset(user, source string) error {
	query := `
		INSERT INTO sync_state (user, source, last_timestamp, updated_at)
		VALUES (?, ?, 0, ?)
		ON CONFLICT (user, source) DO UPDATE
		SET last_timestamp = 0, updated_at = excluded.updated_at
	`

	if _, err := r.db.Exec(query, user, source, time.Now()); err != nil {
		return fmt.Errorf("failed to reset checkpoint: %w", err)
	}

	return nil
}
