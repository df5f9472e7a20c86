package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/relisten/internal/models"
	"github.com/desertthunder/relisten/internal/shared"
)

// TrackRepository handles CRUD for catalog tracks. Track lookups are
// scoped by denormalized artist name.
type TrackRepository struct {
	db *sql.DB
}

// NewTrackRepository creates a new TrackRepository with the given database connection
func NewTrackRepository(db *sql.DB) *TrackRepository {
	return &TrackRepository{db: db}
}

const trackColumns = "id, sequence, title, artist, album, mbid, provenance, created_at, updated_at"

// Create inserts a new [models.Track] with generated ID and sequence
func (r *TrackRepository) Create(track *models.Track) error {
	if err := track.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := NextSequence(r.db, "tracks")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	now := time.Now()
	track.ID = shared.GenerateID()
	track.Sequence = sequence
	track.CreatedAt = now
	track.UpdatedAt = now

	query := `
		INSERT INTO tracks (id, sequence, title, artist, album, mbid, provenance, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		track.ID,
		track.Sequence,
		track.Title,
		track.Artist,
		track.Album,
		nullable(track.MBID),
		string(track.Provenance),
		track.CreatedAt,
		track.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert track: %w", err)
	}

	return nil
}

// Get retrieves a track by ID
func (r *TrackRepository) Get(id string) (*models.Track, error) {
	query := "SELECT " + trackColumns + " FROM tracks WHERE id = ?"
	return r.scanOne(r.db.QueryRow(query, id))
}

// GetByMBID retrieves a track by stable external ID
func (r *TrackRepository) GetByMBID(mbid string) (*models.Track, error) {
	if mbid == "" {
		return nil, shared.ErrTrackNotFound
	}
	query := "SELECT " + trackColumns + " FROM tracks WHERE mbid = ? ORDER BY sequence ASC LIMIT 1"
	return r.scanOne(r.db.QueryRow(query, mbid))
}

// GetByTitle retrieves a track by case-insensitive title within one artist
func (r *TrackRepository) GetByTitle(artist, title string) (*models.Track, error) {
	query := "SELECT " + trackColumns + " FROM tracks WHERE artist = ? COLLATE NOCASE AND title = ? COLLATE NOCASE ORDER BY sequence ASC LIMIT 1"
	return r.scanOne(r.db.QueryRow(query, artist, title))
}

// ListByArtist retrieves all tracks credited to an artist name
func (r *TrackRepository) ListByArtist(artist string) ([]*models.Track, error) {
	query := "SELECT " + trackColumns + " FROM tracks WHERE artist = ? COLLATE NOCASE ORDER BY sequence ASC"

	rows, err := r.db.Query(query, artist)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks: %w", err)
	}
	defer rows.Close()

	var tracks []*models.Track
	for rows.Next() {
		track, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, track)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return tracks, nil
}

// Update modifies an existing track row in place
func (r *TrackRepository) Update(track *models.Track) error {
	if err := track.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	track.UpdatedAt = now

	query := `
		UPDATE tracks
		SET title = ?, artist = ?, album = ?, mbid = ?, provenance = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.Exec(query,
		track.Title,
		track.Artist,
		track.Album,
		nullable(track.MBID),
		string(track.Provenance),
		now,
		track.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update track: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrTrackNotFound, track.ID)
	}

	return nil
}

// Count returns the number of track rows
func (r *TrackRepository) Count() (int, error) {
	var n int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM tracks").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count tracks: %w", err)
	}
	return n, nil
}

func scanTrack(row rowScanner) (*models.Track, error) {
	var (
		track      models.Track
		mbid       sql.NullString
		provenance string
	)

	err := row.Scan(
		&track.ID,
		&track.Sequence,
		&track.Title,
		&track.Artist,
		&track.Album,
		&mbid,
		&provenance,
		&track.CreatedAt,
		&track.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	track.MBID = mbid.String
	track.Provenance = models.Provenance(provenance)
	return &track, nil
}

// scanOne scans a single [sql.Row] into a [models.Track]
func (r *TrackRepository) scanOne(row *sql.Row) (*models.Track, error) {
	track, err := scanTrack(row)
	if err == sql.ErrNoRows {
		return nil, shared.ErrTrackNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan track: %w", err)
	}
	return track, nil
}

// scanRow scans a row from [sql.Rows] into a [models.Track]
func (r *TrackRepository) scanRow(rows *sql.Rows) (*models.Track, error) {
	track, err := scanTrack(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan track: %w", err)
	}
	return track, nil
}
