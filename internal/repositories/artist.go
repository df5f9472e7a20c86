package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/relisten/internal/models"
	"github.com/desertthunder/relisten/internal/shared"
)

// ArtistRepository handles CRUD for catalog artists.
type ArtistRepository struct {
	db *sql.DB
}

// NewArtistRepository creates a new ArtistRepository with the given database connection
func NewArtistRepository(db *sql.DB) *ArtistRepository {
	return &ArtistRepository{db: db}
}

// Create inserts a new [models.Artist] with generated ID and sequence
func (r *ArtistRepository) Create(artist *models.Artist) error {
	if err := artist.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := NextSequence(r.db, "artists")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	now := time.Now()
	artist.ID = shared.GenerateID()
	artist.Sequence = sequence
	artist.CreatedAt = now
	artist.UpdatedAt = now

	query := `
		INSERT INTO artists (id, sequence, name, mbid, provenance, bio, tags, similar, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		artist.ID,
		artist.Sequence,
		artist.Name,
		nullable(artist.MBID),
		string(artist.Provenance),
		artist.Bio,
		artist.Tags,
		artist.Similar,
		artist.CreatedAt,
		artist.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert artist: %w", err)
	}

	return nil
}

const artistColumns = "id, sequence, name, mbid, provenance, bio, tags, similar, created_at, updated_at"

// Get retrieves an artist by ID
func (r *ArtistRepository) Get(id string) (*models.Artist, error) {
	query := "SELECT " + artistColumns + " FROM artists WHERE id = ?"
	return r.scanOne(r.db.QueryRow(query, id))
}

// GetByMBID retrieves an artist by stable external ID
func (r *ArtistRepository) GetByMBID(mbid string) (*models.Artist, error) {
	if mbid == "" {
		return nil, shared.ErrArtistNotFound
	}
	query := "SELECT " + artistColumns + " FROM artists WHERE mbid = ? ORDER BY sequence ASC LIMIT 1"
	return r.scanOne(r.db.QueryRow(query, mbid))
}

// GetByName retrieves an artist by case-insensitive exact name
func (r *ArtistRepository) GetByName(name string) (*models.Artist, error) {
	query := "SELECT " + artistColumns + " FROM artists WHERE name = ? COLLATE NOCASE ORDER BY sequence ASC LIMIT 1"
	return r.scanOne(r.db.QueryRow(query, name))
}

// All retrieves every artist ordered by sequence. The fuzzy matcher scans
// this list; at personal-library scale a linear pass is fine.
func (r *ArtistRepository) All() ([]*models.Artist, error) {
	query := "SELECT " + artistColumns + " FROM artists ORDER BY sequence ASC"

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query artists: %w", err)
	}
	defer rows.Close()

	var artists []*models.Artist
	for rows.Next() {
		artist, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		artists = append(artists, artist)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return artists, nil
}

// Update modifies an existing artist row in place
func (r *ArtistRepository) Update(artist *models.Artist) error {
	if err := artist.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	artist.UpdatedAt = now

	query := `
		UPDATE artists
		SET name = ?, mbid = ?, provenance = ?, bio = ?, tags = ?, similar = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.Exec(query,
		artist.Name,
		nullable(artist.MBID),
		string(artist.Provenance),
		artist.Bio,
		artist.Tags,
		artist.Similar,
		now,
		artist.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update artist: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrArtistNotFound, artist.ID)
	}

	return nil
}

// Count returns the number of artist rows
func (r *ArtistRepository) Count() (int, error) {
	var n int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM artists").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count artists: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArtist(row rowScanner) (*models.Artist, error) {
	var (
		artist     models.Artist
		mbid       sql.NullString
		provenance string
	)

	err := row.Scan(
		&artist.ID,
		&artist.Sequence,
		&artist.Name,
		&mbid,
		&provenance,
		&artist.Bio,
		&artist.Tags,
		&artist.Similar,
		&artist.CreatedAt,
		&artist.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	artist.MBID = mbid.String
	artist.Provenance = models.Provenance(provenance)
	return &artist, nil
}

// scanOne scans a single [sql.Row] into a [models.Artist]
func (r *ArtistRepository) scanOne(row *sql.Row) (*models.Artist, error) {
	artist, err := scanArtist(row)
	if err == sql.ErrNoRows {
		return nil, shared.ErrArtistNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan artist: %w", err)
	}
	return artist, nil
}

// scanRow scans a row from [sql.Rows] into a [models.Artist]
func (r *ArtistRepository) scanRow(rows *sql.Rows) (*models.Artist, error) {
	artist, err := scanArtist(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan artist: %w", err)
	}
	return artist, nil
}
