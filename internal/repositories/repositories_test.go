package repositories

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/desertthunder/relisten/internal/models"
	"github.com/desertthunder/relisten/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		t.Fatalf("failed to enable foreign keys: %v", err)
	}

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	return db
}

func TestNextSequence(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	first, err := NextSequence(db, "artists")
	if err != nil {
		t.Fatalf("failed to get sequence: %v", err)
	}
	second, err := NextSequence(db, "artists")
	if err != nil {
		t.Fatalf("failed to get sequence: %v", err)
	}

	if second != first+1 {
		t.Errorf("expected consecutive sequences, got %d then %d", first, second)
	}
}

func TestArtistRepository(t *testing.T) {
	t.Run("Create", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewArtistRepository(db)
		artist := &models.Artist{Name: "Radiohead", MBID: "a74b1b7f", Provenance: models.ProvenanceSync}

		if err := repo.Create(artist); err != nil {
			t.Fatalf("failed to create artist: %v", err)
		}

		if artist.ID == "" {
			t.Error("artist ID should be set after creation")
		}
		if artist.Sequence == 0 {
			t.Error("artist sequence should be set after creation")
		}
	})

	t.Run("Create Requires Name", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewArtistRepository(db)
		if err := repo.Create(&models.Artist{}); err == nil {
			t.Error("expected validation error for empty name")
		}
	})

	t.Run("Get", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewArtistRepository(db)
		artist := &models.Artist{Name: "Radiohead", Provenance: models.ProvenanceSync}
		if err := repo.Create(artist); err != nil {
			t.Fatalf("failed to create artist: %v", err)
		}

		retrieved, err := repo.Get(artist.ID)
		if err != nil {
			t.Fatalf("failed to get artist: %v", err)
		}
		if retrieved.Name != "Radiohead" {
			t.Errorf("expected name Radiohead, got %s", retrieved.Name)
		}

		_, err = repo.Get("missing")
		if !errors.Is(err, shared.ErrArtistNotFound) {
			t.Errorf("expected ErrArtistNotFound, got %v", err)
		}
	})

	t.Run("GetByMBID", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewArtistRepository(db)
		artist := &models.Artist{Name: "Radiohead", MBID: "a74b1b7f", Provenance: models.ProvenanceSync}
		if err := repo.Create(artist); err != nil {
			t.Fatalf("failed to create artist: %v", err)
		}

		retrieved, err := repo.GetByMBID("a74b1b7f")
		if err != nil {
			t.Fatalf("failed to get artist by mbid: %v", err)
		}
		if retrieved.ID != artist.ID {
			t.Errorf("expected ID %s, got %s", artist.ID, retrieved.ID)
		}

		if _, err := repo.GetByMBID(""); !errors.Is(err, shared.ErrArtistNotFound) {
			t.Errorf("empty mbid should never match, got %v", err)
		}
	})

	t.Run("GetByMBID Prefers Oldest Duplicate", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewArtistRepository(db)
		first := &models.Artist{Name: "Radiohead", MBID: "dup-mbid", Provenance: models.ProvenanceSync}
		second := &models.Artist{Name: "radiohead", MBID: "dup-mbid", Provenance: models.ProvenanceSync}
		if err := repo.Create(first); err != nil {
			t.Fatalf("failed to create artist: %v", err)
		}
		if err := repo.Create(second); err != nil {
			t.Fatalf("failed to create artist: %v", err)
		}

		retrieved, err := repo.GetByMBID("dup-mbid")
		if err != nil {
			t.Fatalf("failed to get artist by mbid: %v", err)
		}
		if retrieved.ID != first.ID {
			t.Error("expected the earliest row to win for duplicate mbids")
		}
	})

	t.Run("GetByName Is Case Insensitive", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewArtistRepository(db)
		artist := &models.Artist{Name: "The Beatles", Provenance: models.ProvenanceSync}
		if err := repo.Create(artist); err != nil {
			t.Fatalf("failed to create artist: %v", err)
		}

		retrieved, err := repo.GetByName("the beatles")
		if err != nil {
			t.Fatalf("failed to get artist by name: %v", err)
		}
		if retrieved.ID != artist.ID {
			t.Errorf("expected ID %s, got %s", artist.ID, retrieved.ID)
		}
	})

	t.Run("Update", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewArtistRepository(db)
		artist := &models.Artist{Name: "Radiohead", Provenance: models.ProvenanceFallback}
		if err := repo.Create(artist); err != nil {
			t.Fatalf("failed to create artist: %v", err)
		}

		artist.MBID = "a74b1b7f"
		artist.Provenance = models.ProvenanceSync
		if err := repo.Update(artist); err != nil {
			t.Fatalf("failed to update artist: %v", err)
		}

		retrieved, err := repo.Get(artist.ID)
		if err != nil {
			t.Fatalf("failed to get artist: %v", err)
		}
		if retrieved.MBID != "a74b1b7f" {
			t.Errorf("expected updated mbid, got %q", retrieved.MBID)
		}
		if retrieved.Provenance != models.ProvenanceSync {
			t.Errorf("expected updated provenance, got %s", retrieved.Provenance)
		}
	})

	t.Run("All", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewArtistRepository(db)
		for _, name := range []string{"Radiohead", "Portishead", "Massive Attack"} {
			if err := repo.Create(&models.Artist{Name: name, Provenance: models.ProvenanceSync}); err != nil {
				t.Fatalf("failed to create artist: %v", err)
			}
		}

		artists, err := repo.All()
		if err != nil {
			t.Fatalf("failed to list artists: %v", err)
		}
		if len(artists) != 3 {
			t.Fatalf("expected 3 artists, got %d", len(artists))
		}
		if artists[0].Name != "Radiohead" {
			t.Errorf("expected sequence order, got %s first", artists[0].Name)
		}

		count, err := repo.Count()
		if err != nil {
			t.Fatalf("failed to count artists: %v", err)
		}
		if count != 3 {
			t.Errorf("expected count 3, got %d", count)
		}
	})
}

func TestAlbumRepository(t *testing.T) {
	createArtist := func(t *testing.T, db *sql.DB) *models.Artist {
		t.Helper()
		artist := &models.Artist{Name: "Radiohead", Provenance: models.ProvenanceSync}
		if err := NewArtistRepository(db).Create(artist); err != nil {
			t.Fatalf("failed to create artist: %v", err)
		}
		return artist
	}

	t.Run("Create And Get", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		artist := createArtist(t, db)
		repo := NewAlbumRepository(db)
		album := &models.Album{Name: "OK Computer", ArtistID: artist.ID, Year: 1997, Provenance: models.ProvenanceSync}

		if err := repo.Create(album); err != nil {
			t.Fatalf("failed to create album: %v", err)
		}

		retrieved, err := repo.Get(album.ID)
		if err != nil {
			t.Fatalf("failed to get album: %v", err)
		}
		if retrieved.Year != 1997 {
			t.Errorf("expected year 1997, got %d", retrieved.Year)
		}
	})

	t.Run("Create Requires Artist", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewAlbumRepository(db)
		if err := repo.Create(&models.Album{Name: "Orphan"}); err == nil {
			t.Error("expected validation error for missing artist_id")
		}
	})

	t.Run("GetByName Scoped To Artist", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		artistRepo := NewArtistRepository(db)
		first := &models.Artist{Name: "Radiohead", Provenance: models.ProvenanceSync}
		second := &models.Artist{Name: "Portishead", Provenance: models.ProvenanceSync}
		if err := artistRepo.Create(first); err != nil {
			t.Fatalf("failed to create artist: %v", err)
		}
		if err := artistRepo.Create(second); err != nil {
			t.Fatalf("failed to create artist: %v", err)
		}

		repo := NewAlbumRepository(db)
		album := &models.Album{Name: "Dummy", ArtistID: second.ID, Provenance: models.ProvenanceSync}
		if err := repo.Create(album); err != nil {
			t.Fatalf("failed to create album: %v", err)
		}

		if _, err := repo.GetByName(first.ID, "Dummy"); !errors.Is(err, shared.ErrAlbumNotFound) {
			t.Errorf("expected miss for wrong artist, got %v", err)
		}

		retrieved, err := repo.GetByName(second.ID, "dummy")
		if err != nil {
			t.Fatalf("failed to get album: %v", err)
		}
		if retrieved.ID != album.ID {
			t.Errorf("expected ID %s, got %s", album.ID, retrieved.ID)
		}
	})

	t.Run("ListByArtist", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		artist := createArtist(t, db)
		repo := NewAlbumRepository(db)
		for _, name := range []string{"OK Computer", "Kid A"} {
			if err := repo.Create(&models.Album{Name: name, ArtistID: artist.ID, Provenance: models.ProvenanceSync}); err != nil {
				t.Fatalf("failed to create album: %v", err)
			}
		}

		albums, err := repo.ListByArtist(artist.ID)
		if err != nil {
			t.Fatalf("failed to list albums: %v", err)
		}
		if len(albums) != 2 {
			t.Errorf("expected 2 albums, got %d", len(albums))
		}
	})
}

func TestTrackRepository(t *testing.T) {
	t.Run("Create And GetByTitle", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewTrackRepository(db)
		track := &models.Track{Title: "Karma Police", Artist: "Radiohead", Album: "OK Computer", Provenance: models.ProvenanceSync}
		if err := repo.Create(track); err != nil {
			t.Fatalf("failed to create track: %v", err)
		}

		retrieved, err := repo.GetByTitle("radiohead", "karma police")
		if err != nil {
			t.Fatalf("failed to get track by title: %v", err)
		}
		if retrieved.ID != track.ID {
			t.Errorf("expected ID %s, got %s", track.ID, retrieved.ID)
		}
	})

	t.Run("Title Scoped To Artist", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewTrackRepository(db)
		track := &models.Track{Title: "Creep", Artist: "Radiohead", Provenance: models.ProvenanceSync}
		if err := repo.Create(track); err != nil {
			t.Fatalf("failed to create track: %v", err)
		}

		if _, err := repo.GetByTitle("TLC", "Creep"); !errors.Is(err, shared.ErrTrackNotFound) {
			t.Errorf("expected miss for other artist's track, got %v", err)
		}
	})
}

func TestScrobbleRepository(t *testing.T) {
	write := func(t *testing.T, db *sql.DB, s *models.Scrobble) int64 {
		t.Helper()

		tx, err := db.Begin()
		if err != nil {
			t.Fatalf("failed to begin transaction: %v", err)
		}
		written, err := NewScrobbleRepository(db).CreateTx(tx, s)
		if err != nil {
			tx.Rollback()
			t.Fatalf("failed to insert scrobble: %v", err)
		}
		if err := tx.Commit(); err != nil {
			t.Fatalf("failed to commit: %v", err)
		}
		return written
	}

	t.Run("CreateTx", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		written := write(t, db, &models.Scrobble{Artist: "Radiohead", Track: "Creep", ListenedAt: 1000})
		if written != 1 {
			t.Errorf("expected 1 row written, got %d", written)
		}
	})

	t.Run("Duplicate Natural Key Is A No-Op", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		write(t, db, &models.Scrobble{Artist: "Radiohead", Track: "Creep", ListenedAt: 1000})
		written := write(t, db, &models.Scrobble{Artist: "Radiohead", Track: "Creep", ListenedAt: 1000})
		if written != 0 {
			t.Errorf("expected duplicate to write 0 rows, got %d", written)
		}

		count, err := NewScrobbleRepository(db).Count()
		if err != nil {
			t.Fatalf("failed to count scrobbles: %v", err)
		}
		if count != 1 {
			t.Errorf("expected 1 scrobble, got %d", count)
		}
	})

	t.Run("ListAscending", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		write(t, db, &models.Scrobble{Artist: "Radiohead", Track: "Creep", ListenedAt: 3000})
		write(t, db, &models.Scrobble{Artist: "Portishead", Track: "Roads", ListenedAt: 1000})

		scrobbles, err := NewScrobbleRepository(db).ListAscending()
		if err != nil {
			t.Fatalf("failed to list scrobbles: %v", err)
		}
		if len(scrobbles) != 2 {
			t.Fatalf("expected 2 scrobbles, got %d", len(scrobbles))
		}
		if scrobbles[0].ListenedAt != 1000 {
			t.Errorf("expected oldest first, got %d", scrobbles[0].ListenedAt)
		}
	})

	t.Run("CountLinked And MaxTimestamp", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		artist := &models.Artist{Name: "Radiohead", Provenance: models.ProvenanceSync}
		if err := NewArtistRepository(db).Create(artist); err != nil {
			t.Fatalf("failed to create artist: %v", err)
		}

		write(t, db, &models.Scrobble{Artist: "Radiohead", Track: "Creep", ListenedAt: 1000, ArtistID: artist.ID})
		write(t, db, &models.Scrobble{Artist: "Unknown", Track: "Nothing", ListenedAt: 2000})

		repo := NewScrobbleRepository(db)
		linked, err := repo.CountLinked()
		if err != nil {
			t.Fatalf("failed to count linked: %v", err)
		}
		if linked != 1 {
			t.Errorf("expected 1 linked scrobble, got %d", linked)
		}

		ts, err := repo.MaxTimestamp()
		if err != nil {
			t.Fatalf("failed to get max timestamp: %v", err)
		}
		if ts != 2000 {
			t.Errorf("expected max timestamp 2000, got %d", ts)
		}
	})
}

func TestSyncStateRepository(t *testing.T) {
	advance := func(t *testing.T, db *sql.DB, repo *SyncStateRepository, ts int64) {
		t.Helper()

		tx, err := db.Begin()
		if err != nil {
			t.Fatalf("failed to begin transaction: %v", err)
		}
		if err := repo.AdvanceTx(tx, "someone", "lastfm", ts); err != nil {
			tx.Rollback()
			t.Fatalf("failed to advance checkpoint: %v", err)
		}
		if err := tx.Commit(); err != nil {
			t.Fatalf("failed to commit: %v", err)
		}
	}

	t.Run("Missing Row Reads As Zero", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		state, err := NewSyncStateRepository(db).Get("someone", "lastfm")
		if err != nil {
			t.Fatalf("failed to get sync state: %v", err)
		}
		if state.LastTimestamp != 0 {
			t.Errorf("expected zero checkpoint, got %d", state.LastTimestamp)
		}
	})

	t.Run("Advance Is Monotonic", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewSyncStateRepository(db)
		advance(t, db, repo, 1000)
		advance(t, db, repo, 500)

		state, err := repo.Get("someone", "lastfm")
		if err != nil {
			t.Fatalf("failed to get sync state: %v", err)
		}
		if state.LastTimestamp != 1000 {
			t.Errorf("checkpoint moved backwards: got %d", state.LastTimestamp)
		}

		advance(t, db, repo, 2000)
		state, err = repo.Get("someone", "lastfm")
		if err != nil {
			t.Fatalf("failed to get sync state: %v", err)
		}
		if state.LastTimestamp != 2000 {
			t.Errorf("expected checkpoint 2000, got %d", state.LastTimestamp)
		}
	})

	t.Run("Rollback Leaves Checkpoint Unchanged", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewSyncStateRepository(db)
		advance(t, db, repo, 1000)

		tx, err := db.Begin()
		if err != nil {
			t.Fatalf("failed to begin transaction: %v", err)
		}
		if err := repo.AdvanceTx(tx, "someone", "lastfm", 5000); err != nil {
			t.Fatalf("failed to advance checkpoint: %v", err)
		}
		if err := tx.Rollback(); err != nil {
			t.Fatalf("failed to rollback: %v", err)
		}

		state, err := repo.Get("someone", "lastfm")
		if err != nil {
			t.Fatalf("failed to get sync state: %v", err)
		}
		if state.LastTimestamp != 1000 {
			t.Errorf("rolled-back advance should not persist, got %d", state.LastTimestamp)
		}
	})

	t.Run("Reset", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewSyncStateRepository(db)
		advance(t, db, repo, 1000)

		if err := repo.Reset("someone", "lastfm"); err != nil {
			t.Fatalf("failed to reset checkpoint: %v", err)
		}

		state, err := repo.Get("someone", "lastfm")
		if err != nil {
			t.Fatalf("failed to get sync state: %v", err)
		}
		if state.LastTimestamp != 0 {
			t.Errorf("expected checkpoint 0 after reset, got %d", state.LastTimestamp)
		}
	})

	t.Run("Checkpoints Are Scoped Per Source", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		repo := NewSyncStateRepository(db)

		tx, err := db.Begin()
		if err != nil {
			t.Fatalf("failed to begin transaction: %v", err)
		}
		if err := repo.AdvanceTx(tx, "someone", "lastfm", 1000); err != nil {
			t.Fatalf("failed to advance checkpoint: %v", err)
		}
		if err := repo.AdvanceTx(tx, "someone", "librefm", 2000); err != nil {
			t.Fatalf("failed to advance checkpoint: %v", err)
		}
		if err := tx.Commit(); err != nil {
			t.Fatalf("failed to commit: %v", err)
		}

		state, err := repo.Get("someone", "lastfm")
		if err != nil {
			t.Fatalf("failed to get sync state: %v", err)
		}
		if state.LastTimestamp != 1000 {
			t.Errorf("expected lastfm checkpoint 1000, got %d", state.LastTimestamp)
		}
	})
}
