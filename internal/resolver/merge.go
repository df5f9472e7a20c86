package resolver

import (
	"database/sql"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/relisten/internal/models"
	"github.com/desertthunder/relisten/internal/shared"
)

// Merger collapses catalog rows that share a stable external ID.
//
// For each duplicate group the row with the lowest sequence survives,
// except that hand-curated rows always outrank sync-created ones; every
// foreign-key reference elsewhere is rewritten to the survivor and the
// other members are deleted. Curated rows are never deleted. Running
// the pass twice is a no-op after the first.
//
// Must run in dependency order: artists before albums, albums before
// tracks, so downstream references already point at survivors.
type Merger struct {
	db     *sql.DB
	logger *log.Logger
}

// NewMerger creates a Merger over the given database connection.
func NewMerger(db *sql.DB, logger *log.Logger) *Merger {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Merger{db: db, logger: logger}
}

// MergeStats reports rows removed by a full maintenance pass.
type MergeStats struct {
	Artists int
	Albums  int
	Tracks  int
}

// Total returns the number of duplicate rows removed.
func (s MergeStats) Total() int {
	return s.Artists + s.Albums + s.Tracks
}

// MergeAll runs the maintenance pass over every entity kind in
// dependency order.
func (m *Merger) MergeAll() (MergeStats, error) {
	var stats MergeStats
	var err error

	if stats.Artists, err = m.MergeArtists(); err != nil {
		return stats, err
	}
	if stats.Albums, err = m.MergeAlbums(); err != nil {
		return stats, err
	}
	if stats.Tracks, err = m.MergeTracks(); err != nil {
		return stats, err
	}

	return stats, nil
}

// reference names a foreign-key column pointing at a merged table.
type reference struct {
	table  string
	column string
}

// MergeArtists collapses artist rows sharing an MBID and returns the
// number of rows removed.
func (m *Merger) MergeArtists() (int, error) {
	return m.mergeByMBID("artists", []reference{
		{table: "albums", column: "artist_id"},
		{table: "scrobbles", column: "artist_id"},
	})
}

// MergeAlbums collapses album rows sharing an MBID.
func (m *Merger) MergeAlbums() (int, error) {
	return m.mergeByMBID("albums", []reference{
		{table: "scrobbles", column: "album_id"},
	})
}

// MergeTracks collapses track rows sharing an MBID.
func (m *Merger) MergeTracks() (int, error) {
	return m.mergeByMBID("tracks", []reference{
		{table: "scrobbles", column: "track_id"},
	})
}

// mergeByMBID finds groups of rows in table sharing a non-null MBID and
// collapses each group into its lowest-sequence member.
func (m *Merger) mergeByMBID(table string, refs []reference) (int, error) {
	query := fmt.Sprintf(`
		SELECT mbid FROM %s
		WHERE mbid IS NOT NULL AND mbid != ''
		GROUP BY mbid
		HAVING COUNT(*) > 1
	`, table)

	rows, err := m.db.Query(query)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to find duplicate groups in %s: %v", shared.ErrDatabase, table, err)
	}

	var mbids []string
	for rows.Next() {
		var mbid string
		if err := rows.Scan(&mbid); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan mbid: %w", err)
		}
		mbids = append(mbids, mbid)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("row iteration error: %w", err)
	}
	rows.Close()

	merged := 0
	for _, mbid := range mbids {
		n, err := m.mergeGroup(table, mbid, refs)
		if err != nil {
			return merged, err
		}
		merged += n
	}

	if merged > 0 {
		m.logger.Infof("merged %d duplicate %s rows", merged, table)
	}

	return merged, nil
}

// mergeGroup collapses one duplicate group within a single transaction.
// Hand-curated rows are protected: a curated member is preferred as the
// survivor and curated rows are never deleted.
func (m *Merger) mergeGroup(table, mbid string, refs []reference) (int, error) {
	idQuery := fmt.Sprintf("SELECT id, provenance FROM %s WHERE mbid = ? ORDER BY sequence ASC", table)

	rows, err := m.db.Query(idQuery, mbid)
	if err != nil {
		return 0, fmt.Errorf("failed to load duplicate group: %w", err)
	}

	var ids []string
	var protected []bool
	for rows.Next() {
		var id string
		var provenance models.Provenance
		if err := rows.Scan(&id, &provenance); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan id: %w", err)
		}
		ids = append(ids, id)
		protected = append(protected, provenance.Protected())
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("row iteration error: %w", err)
	}
	rows.Close()

	if len(ids) < 2 {
		return 0, nil
	}

	// Lowest-sequence curated row wins; otherwise the oldest row overall.
	survivorIdx := 0
	for i, p := range protected {
		if p {
			survivorIdx = i
			break
		}
	}

	survivor := ids[survivorIdx]
	var losers []string
	for i, id := range ids {
		if i == survivorIdx || protected[i] {
			continue
		}
		losers = append(losers, id)
	}
	if len(losers) == 0 {
		return 0, nil
	}

	tx, err := m.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin merge transaction: %w", err)
	}
	defer tx.Rollback()

	for _, loser := range losers {
		for _, ref := range refs {
			rewrite := fmt.Sprintf("UPDATE %s SET %s = ? WHERE %s = ?", ref.table, ref.column, ref.column)
			if _, err := tx.Exec(rewrite, survivor, loser); err != nil {
				return 0, fmt.Errorf("%w: failed to rewrite %s.%s: %v", shared.ErrDatabase, ref.table, ref.column, err)
			}
		}

		del := fmt.Sprintf("DELETE FROM %s WHERE id = ?", table)
		if _, err := tx.Exec(del, loser); err != nil {
			return 0, fmt.Errorf("%w: failed to delete merged row: %v", shared.ErrDatabase, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit merge: %w", err)
	}

	m.logger.Debugf("collapsed %d %s rows into %s (mbid %s)", len(losers), table, survivor, mbid)
	return len(losers), nil
}
