package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/relisten/internal/models"
	"github.com/desertthunder/relisten/internal/shared"
)

// ScrobbleRepository handles listen-event persistence. Inserts go through
// the batch writer's transaction; the natural-key UNIQUE constraint makes
// redelivered events no-ops.
type ScrobbleRepository struct {
	db *sql.DB
}

// NewScrobbleRepository creates a new ScrobbleRepository with the given database connection
func NewScrobbleRepository(db *sql.DB) *ScrobbleRepository {
	return &ScrobbleRepository{db: db}
}

// CreateTx inserts a scrobble within an open transaction. Returns the
// number of rows written: 0 means the natural key already existed and the
// event was absorbed silently.
func (r *ScrobbleRepository) CreateTx(tx *sql.Tx, s *models.Scrobble) (int64, error) {
	if s.ID == "" {
		s.ID = shared.GenerateID()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO scrobbles (id, artist, track, album, listened_at, url, artist_id, album_id, track_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (artist, track, listened_at) DO NOTHING
	`

	result, err := tx.Exec(query,
		s.ID,
		s.Artist,
		s.Track,
		s.Album,
		s.ListenedAt,
		s.URL,
		nullable(s.ArtistID),
		nullable(s.AlbumID),
		nullable(s.TrackID),
		s.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to insert scrobble: %v", shared.ErrDatabase, err)
	}

	written, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return written, nil
}

const scrobbleColumns = "id, artist, track, album, listened_at, url, artist_id, album_id, track_id, created_at"

// ListAscending retrieves all scrobbles in listen order
func (r *ScrobbleRepository) ListAscending() ([]*models.Scrobble, error) {
	query := "SELECT " + scrobbleColumns + " FROM scrobbles ORDER BY listened_at ASC"

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query scrobbles: %w", err)
	}
	defer rows.Close()

	var scrobbles []*models.Scrobble
	for rows.Next() {
		var (
			s                          models.Scrobble
			artistID, albumID, trackID sql.NullString
		)
		err := rows.Scan(
			&s.ID,
			&s.Artist,
			&s.Track,
			&s.Album,
			&s.ListenedAt,
			&s.URL,
			&artistID,
			&albumID,
			&trackID,
			&s.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scrobble: %w", err)
		}
		s.ArtistID = artistID.String
		s.AlbumID = albumID.String
		s.TrackID = trackID.String
		scrobbles = append(scrobbles, &s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return scrobbles, nil
}

// Count returns the total number of committed events
func (r *ScrobbleRepository) Count() (int, error) {
	var n int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM scrobbles").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count scrobbles: %w", err)
	}
	return n, nil
}

// CountLinked returns the number of events resolved to an artist row
func (r *ScrobbleRepository) CountLinked() (int, error) {
	var n int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM scrobbles WHERE artist_id IS NOT NULL").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count linked scrobbles: %w", err)
	}
	return n, nil
}

// MaxTimestamp returns the newest committed listen time, 0 when empty
func (r *ScrobbleRepository) MaxTimestamp() (int64, error) {
	var ts int64
	if err := r.db.QueryRow("SELECT COALESCE(MAX(listened_at), 0) FROM scrobbles").Scan(&ts); err != nil {
		return 0, fmt.Errorf("failed to get max timestamp: %w", err)
	}
	return ts, nil
}
