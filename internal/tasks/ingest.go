package tasks

import (
	"context"
	"fmt"
	"sort"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/relisten/internal/models"
	"github.com/desertthunder/relisten/internal/services"
	"github.com/desertthunder/relisten/internal/shared"
)

// Ingestor pages through the provider's listening history from a
// checkpoint forward and returns a chronologically ordered, deduplicated
// event list.
type Ingestor struct {
	source   services.EventSource
	user     string
	pageSize int
	logger   *log.Logger
}

// NewIngestor creates an Ingestor for one user's history.
func NewIngestor(source services.EventSource, user string, pageSize int, logger *log.Logger) *Ingestor {
	if pageSize <= 0 {
		pageSize = 200
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	return &Ingestor{
		source:   source,
		user:     user,
		pageSize: pageSize,
		logger:   logger,
	}
}

// FetchSince collects every completed listen event newer than since
// (Unix seconds; 0 means the full history).
//
// Providers can return the same logical play on two adjacent pages, so
// events are deduplicated by case-insensitive (artist, track) keeping the
// newest timestamp per key, then re-sorted ascending for chronological
// processing.
func (i *Ingestor) FetchSince(ctx context.Context, since int64) ([]models.Event, error) {
	latest := make(map[string]models.Event)

	page := 1
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := i.source.RecentTracks(ctx, i.user, since, page, i.pageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch history page %d: %w", page, err)
		}

		for _, t := range resp.Tracks {
			if t.NowPlaying() || t.Timestamp() == 0 {
				// in-flight events have no completed timestamp
				continue
			}

			ev := models.Event{
				Artist:     t.Artist.Name,
				Track:      t.Name,
				Album:      t.Album.Name,
				ArtistMBID: t.Artist.MBID,
				AlbumMBID:  t.Album.MBID,
				TrackMBID:  t.MBID,
				ListenedAt: t.Timestamp(),
				URL:        t.URL,
			}

			key := ev.Key()
			if prev, ok := latest[key]; !ok || ev.ListenedAt > prev.ListenedAt {
				latest[key] = ev
			}
		}

		i.logger.Debugf("fetched history page %d/%d (%d events)", resp.Page, resp.TotalPages, len(resp.Tracks))

		if !resp.HasMore() {
			break
		}
		page = resp.Page + 1
	}

	events := make([]models.Event, 0, len(latest))
	for _, ev := range latest {
		events = append(events, ev)
	}

	sort.Slice(events, func(a, b int) bool {
		return events[a].ListenedAt < events[b].ListenedAt
	})

	return events, nil
}
