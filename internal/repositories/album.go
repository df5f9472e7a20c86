package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/relisten/internal/models"
	"github.com/desertthunder/relisten/internal/shared"
)

// AlbumRepository handles CRUD for catalog albums. Album lookups are
// always scoped to the owning artist.
type AlbumRepository struct {
	db *sql.DB
}

// NewAlbumRepository creates a new AlbumRepository with the given database connection
func NewAlbumRepository(db *sql.DB) *AlbumRepository {
	return &AlbumRepository{db: db}
}

const albumColumns = "id, sequence, name, artist_id, mbid, year, provenance, created_at, updated_at"

// Create inserts a new [models.Album] with generated ID and sequence
func (r *AlbumRepository) Create(album *models.Album) error {
	if err := album.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := NextSequence(r.db, "albums")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	now := time.Now()
	album.ID = shared.GenerateID()
	album.Sequence = sequence
	album.CreatedAt = now
	album.UpdatedAt = now

	query := `
		INSERT INTO albums (id, sequence, name, artist_id, mbid, year, provenance, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		album.ID,
		album.Sequence,
		album.Name,
		album.ArtistID,
		nullable(album.MBID),
		nullableYear(album.Year),
		string(album.Provenance),
		album.CreatedAt,
		album.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert album: %w", err)
	}

	return nil
}

// Get retrieves an album by ID
func (r *AlbumRepository) Get(id string) (*models.Album, error) {
	query := "SELECT " + albumColumns + " FROM albums WHERE id = ?"
	return r.scanOne(r.db.QueryRow(query, id))
}

// GetByMBID retrieves an album by stable external ID
func (r *AlbumRepository) GetByMBID(mbid string) (*models.Album, error) {
	if mbid == "" {
		return nil, shared.ErrAlbumNotFound
	}
	query := "SELECT " + albumColumns + " FROM albums WHERE mbid = ? ORDER BY sequence ASC LIMIT 1"
	return r.scanOne(r.db.QueryRow(query, mbid))
}

// GetByName retrieves an album by case-insensitive name within one artist
func (r *AlbumRepository) GetByName(artistID, name string) (*models.Album, error) {
	query := "SELECT " + albumColumns + " FROM albums WHERE artist_id = ? AND name = ? COLLATE NOCASE ORDER BY sequence ASC LIMIT 1"
	return r.scanOne(r.db.QueryRow(query, artistID, name))
}

// ListByArtist retrieves all albums owned by an artist
func (r *AlbumRepository) ListByArtist(artistID string) ([]*models.Album, error) {
	query := "SELECT " + albumColumns + " FROM albums WHERE artist_id = ? ORDER BY sequence ASC"

	rows, err := r.db.Query(query, artistID)
	if err != nil {
		return nil, fmt.Errorf("failed to query albums: %w", err)
	}
	defer rows.Close()

	var albums []*models.Album
	for rows.Next() {
		album, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		albums = append(albums, album)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return albums, nil
}

// Update modifies an existing album row in place
func (r *AlbumRepository) Update(album *models.Album) error {
	if err := album.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	album.UpdatedAt = now

	query := `
		UPDATE albums
		SET name = ?, artist_id = ?, mbid = ?, year = ?, provenance = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.Exec(query,
		album.Name,
		album.ArtistID,
		nullable(album.MBID),
		nullableYear(album.Year),
		string(album.Provenance),
		now,
		album.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update album: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrAlbumNotFound, album.ID)
	}

	return nil
}

// Count returns the number of album rows
func (r *AlbumRepository) Count() (int, error) {
	var n int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM albums").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count albums: %w", err)
	}
	return n, nil
}

func nullableYear(y int) sql.NullInt64 {
	if y == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(y), Valid: true}
}

func scanAlbum(row rowScanner) (*models.Album, error) {
	var (
		album      models.Album
		mbid       sql.NullString
		year       sql.NullInt64
		provenance string
	)

	err := row.Scan(
		&album.ID,
		&album.Sequence,
		&album.Name,
		&album.ArtistID,
		&mbid,
		&year,
		&provenance,
		&album.CreatedAt,
		&album.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	album.MBID = mbid.String
	album.Year = int(year.Int64)
	album.Provenance = models.Provenance(provenance)
	return &album, nil
}

// scanOne scans a single [sql.Row] into a [models.Album]
func (r *AlbumRepository) scanOne(row *sql.Row) (*models.Album, error) {
	album, err := scanAlbum(row)
	if err == sql.ErrNoRows {
		return nil, shared.ErrAlbumNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan album: %w", err)
	}
	return album, nil
}

// scanRow scans a row from [sql.Rows] into a [models.Album]
func (r *AlbumRepository) scanRow(rows *sql.Rows) (*models.Album, error) {
	album, err := scanAlbum(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan album: %w", err)
	}
	return album, nil
}
