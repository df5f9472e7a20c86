// package services provides typed clients for the external provider APIs.
package services

import "context"

// EventSource is a provider of paginated listening history.
type EventSource interface {
	// RecentTracks fetches one page of history for user, starting at the
	// Unix timestamp from (exclusive of anything older).
	RecentTracks(ctx context.Context, user string, from int64, page, limit int) (*RecentTracksPage, error)
	// Name identifies the source for checkpointing and logging.
	Name() string
}

// MetadataProvider resolves artist/album/track reference data. All methods
// are read-only; a lookup miss is reported as [shared.ErrNotFound], never
// treated as a failure.
type MetadataProvider interface {
	ArtistInfo(ctx context.Context, name, mbid string) (*ArtistInfo, error)
	ArtistCorrection(ctx context.Context, name string) (*Correction, error)
	AlbumInfo(ctx context.Context, artist, album string) (*AlbumInfo, error)
	TrackInfo(ctx context.Context, artist, track string) (*TrackInfo, error)
}
