// package models defines the data model for the listening-history sync engine
package models

import (
	"fmt"
	"strings"
	"time"
)

// Provenance records which process created or last verified a catalog row.
type Provenance string

const (
	// ProvenanceSync marks rows created from a full provider metadata snapshot.
	ProvenanceSync Provenance = "relisten.sync"
	// ProvenanceFallback marks minimal name-only rows created when every
	// external lookup failed. Candidates for later enrichment.
	ProvenanceFallback Provenance = "relisten.fallback"
	// ProvenanceManual marks hand-curated rows. Protected: never overwritten.
	ProvenanceManual Provenance = "manual"
)

// Protected reports whether rows with this provenance may be modified by
// automated processes.
func (p Provenance) Protected() bool {
	return p == ProvenanceManual
}

// Event is a single listen reported by the provider, before entity
// resolution. ListenedAt is a Unix timestamp in seconds; zero means the
// track was still playing when fetched and the event must be discarded.
type Event struct {
	Artist     string
	Track      string
	Album      string
	ArtistMBID string
	AlbumMBID  string
	TrackMBID  string
	ListenedAt int64
	URL        string
}

// Key returns the case-insensitive dedup key for an event. Providers can
// return the same logical play on two adjacent pages; events sharing a key
// collapse to the one with the newest timestamp.
func (e Event) Key() string {
	return strings.ToLower(e.Artist) + "\x00" + strings.ToLower(e.Track)
}

// Artist is a catalog artist row.
type Artist struct {
	ID         string
	Sequence   int
	Name       string
	MBID       string
	Provenance Provenance
	Bio        string
	Tags       string
	Similar    string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Validate checks that the artist's data is valid.
func (a *Artist) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("artist name is required")
	}
	return nil
}

// Album is a catalog album row, owned by an artist.
type Album struct {
	ID         string
	Sequence   int
	Name       string
	ArtistID   string
	MBID       string
	Year       int
	Provenance Provenance
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Validate checks that the album's data is valid.
func (a *Album) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("album name is required")
	}
	if a.ArtistID == "" {
		return fmt.Errorf("album artist_id is required")
	}
	return nil
}

// Track is a catalog track row. Artist and album are denormalized names;
// the scrobble table carries the resolved identifiers.
type Track struct {
	ID         string
	Sequence   int
	Title      string
	Artist     string
	Album      string
	MBID       string
	Provenance Provenance
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Validate checks that the track's data is valid.
func (t *Track) Validate() error {
	if t.Title == "" {
		return fmt.Errorf("track title is required")
	}
	if t.Artist == "" {
		return fmt.Errorf("track artist is required")
	}
	return nil
}

// Scrobble is a committed listen event. The natural key is
// (artist, track, listened_at); ArtistID/AlbumID/TrackID stay empty until
// resolution backfills them and are never rewritten afterwards.
type Scrobble struct {
	ID         string
	Artist     string
	Track      string
	Album      string
	ListenedAt int64
	URL        string
	ArtistID   string
	AlbumID    string
	TrackID    string
	CreatedAt  time.Time
}

// Linked reports whether the event resolved to at least an artist row.
func (s *Scrobble) Linked() bool {
	return s.ArtistID != ""
}

// SyncState is the durable checkpoint cursor for one (user, source) pair.
// LastTimestamp advances monotonically; only an explicit full resync
// rewrites it to zero.
type SyncState struct {
	User          string
	Source        string
	LastTimestamp int64
	UpdatedAt     time.Time
}
