package tasks

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/desertthunder/relisten/internal/services"
	"github.com/desertthunder/relisten/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	return db
}

// track builds a feed entry via the provider's wire format so the test
// data goes through real parsing.
func track(t *testing.T, artist, name string, ts int64) services.RecentTrack {
	t.Helper()

	data := fmt.Sprintf(`{"artist":{"#text":%q},"name":%q,"date":{"uts":"%d"}}`, artist, name, ts)
	var rt services.RecentTrack
	if err := json.Unmarshal([]byte(data), &rt); err != nil {
		t.Fatalf("failed to build test track: %v", err)
	}
	return rt
}

// nowPlayingTrack builds an in-flight feed entry with no timestamp.
func nowPlayingTrack(t *testing.T, artist, name string) services.RecentTrack {
	t.Helper()

	data := fmt.Sprintf(`{"artist":{"#text":%q},"name":%q,"@attr":{"nowplaying":"true"}}`, artist, name)
	var rt services.RecentTrack
	if err := json.Unmarshal([]byte(data), &rt); err != nil {
		t.Fatalf("failed to build test track: %v", err)
	}
	return rt
}

// fakeSource serves pre-built history pages and records the since cursor
// it was asked for.
type fakeSource struct {
	pages []*services.RecentTracksPage
	err   error

	lastFrom int64
	calls    int
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) RecentTracks(ctx context.Context, user string, from int64, page, limit int) (*services.RecentTracksPage, error) {
	f.calls++
	f.lastFrom = from

	if f.err != nil {
		return nil, f.err
	}
	if page < 1 || page > len(f.pages) {
		return &services.RecentTracksPage{Page: page, TotalPages: len(f.pages)}, nil
	}

	src := f.pages[page-1]
	filtered := &services.RecentTracksPage{Page: src.Page, TotalPages: src.TotalPages}
	for _, rt := range src.Tracks {
		if from > 0 && rt.Timestamp() < from && !rt.NowPlaying() {
			continue
		}
		filtered.Tracks = append(filtered.Tracks, rt)
	}
	return filtered, nil
}
