package tasks

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/relisten/internal/models"
	"github.com/desertthunder/relisten/internal/repositories"
	"github.com/desertthunder/relisten/internal/shared"
)

// defaultBatchSize bounds the number of events per transaction.
const defaultBatchSize = 100

// BatchWriter commits resolved events in fixed-size transactional
// batches, advancing the checkpoint inside each batch's transaction so a
// rolled-back batch leaves the cursor exactly where it was.
type BatchWriter struct {
	db        *sql.DB
	scrobbles *repositories.ScrobbleRepository
	state     *repositories.SyncStateRepository
	user      string
	source    string
	batchSize int
	logger    *log.Logger
}

// NewBatchWriter creates a BatchWriter for one (user, source) pair.
func NewBatchWriter(db *sql.DB, scrobbles *repositories.ScrobbleRepository, state *repositories.SyncStateRepository, user, source string, batchSize int, logger *log.Logger) *BatchWriter {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	return &BatchWriter{
		db:        db,
		scrobbles: scrobbles,
		state:     state,
		user:      user,
		source:    source,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Write commits events in batch-sized transactions. Events must arrive in
// non-decreasing timestamp order; that ordering is what makes the
// checkpoint a valid resume point. Returns the number of rows actually
// inserted (redelivered events collapse silently on the natural key).
//
// Cancellation is honored between batches only, never inside one.
func (w *BatchWriter) Write(ctx context.Context, events []*models.Scrobble) (int, error) {
	written := 0

	for start := 0; start < len(events); start += w.batchSize {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		end := start + w.batchSize
		if end > len(events) {
			end = len(events)
		}

		n, err := w.commitBatch(events[start:end])
		if err != nil {
			return written, err
		}
		written += n
	}

	return written, nil
}

// commitBatch inserts one batch within a single transaction and advances
// the checkpoint to the batch's maximum timestamp before committing.
func (w *BatchWriter) commitBatch(batch []*models.Scrobble) (int, error) {
	tx, err := w.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("%w: failed to begin batch transaction: %v", shared.ErrDatabase, err)
	}
	defer tx.Rollback()

	written := 0
	var maxTS int64
	for _, s := range batch {
		n, err := w.scrobbles.CreateTx(tx, s)
		if err != nil {
			return 0, err
		}
		written += int(n)
		if s.ListenedAt > maxTS {
			maxTS = s.ListenedAt
		}
	}

	if maxTS > 0 {
		if err := w.state.AdvanceTx(tx, w.user, w.source, maxTS); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: failed to commit batch: %v", shared.ErrDatabase, err)
	}

	w.logger.Debugf("committed batch of %d events (%d new), checkpoint %d", len(batch), written, maxTS)
	return written, nil
}
