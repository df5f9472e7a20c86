package tasks

import (
	"context"
	"errors"
	"testing"

	"github.com/desertthunder/relisten/internal/services"
	"github.com/desertthunder/relisten/internal/shared"
)

func TestFetchSince(t *testing.T) {
	ctx := context.Background()

	t.Run("Collects All Pages Ascending", func(t *testing.T) {
		source := &fakeSource{pages: []*services.RecentTracksPage{
			{Tracks: []services.RecentTrack{
				track(t, "Radiohead", "Karma Police", 3000),
				track(t, "Portishead", "Roads", 2000),
			}, Page: 1, TotalPages: 2},
			{Tracks: []services.RecentTrack{
				track(t, "Massive Attack", "Teardrop", 1000),
			}, Page: 2, TotalPages: 2},
		}}

		events, err := NewIngestor(source, "someone", 200, nil).FetchSince(ctx, 0)
		if err != nil {
			t.Fatalf("fetch failed: %v", err)
		}

		if len(events) != 3 {
			t.Fatalf("expected 3 events, got %d", len(events))
		}
		for i := 1; i < len(events); i++ {
			if events[i].ListenedAt < events[i-1].ListenedAt {
				t.Fatalf("events out of order at %d: %d before %d", i, events[i-1].ListenedAt, events[i].ListenedAt)
			}
		}
		if events[0].Artist != "Massive Attack" {
			t.Errorf("expected oldest event first, got %s", events[0].Artist)
		}
		if source.calls != 2 {
			t.Errorf("expected 2 page fetches, got %d", source.calls)
		}
	})

	t.Run("Deduplicates Across Pages Keeping Newest", func(t *testing.T) {
		source := &fakeSource{pages: []*services.RecentTracksPage{
			{Tracks: []services.RecentTrack{
				track(t, "Artist X", "Song Y", 1000),
			}, Page: 1, TotalPages: 2},
			{Tracks: []services.RecentTrack{
				track(t, "artist x", "song y", 1000),
				track(t, "Artist X", "Song Y", 500),
			}, Page: 2, TotalPages: 2},
		}}

		events, err := NewIngestor(source, "someone", 200, nil).FetchSince(ctx, 0)
		if err != nil {
			t.Fatalf("fetch failed: %v", err)
		}

		if len(events) != 1 {
			t.Fatalf("expected 1 deduplicated event, got %d", len(events))
		}
		if events[0].ListenedAt != 1000 {
			t.Errorf("expected newest timestamp to survive, got %d", events[0].ListenedAt)
		}
	})

	t.Run("Drops In-Flight Entries", func(t *testing.T) {
		source := &fakeSource{pages: []*services.RecentTracksPage{
			{Tracks: []services.RecentTrack{
				nowPlayingTrack(t, "Radiohead", "Creep"),
				track(t, "Portishead", "Roads", 2000),
			}, Page: 1, TotalPages: 1},
		}}

		events, err := NewIngestor(source, "someone", 200, nil).FetchSince(ctx, 0)
		if err != nil {
			t.Fatalf("fetch failed: %v", err)
		}

		if len(events) != 1 {
			t.Fatalf("expected the in-flight entry to be dropped, got %d events", len(events))
		}
		if events[0].Track != "Roads" {
			t.Errorf("unexpected surviving event %s", events[0].Track)
		}
	})

	t.Run("Passes Cursor To Source", func(t *testing.T) {
		source := &fakeSource{pages: []*services.RecentTracksPage{
			{Page: 1, TotalPages: 1},
		}}

		if _, err := NewIngestor(source, "someone", 200, nil).FetchSince(ctx, 12345); err != nil {
			t.Fatalf("fetch failed: %v", err)
		}
		if source.lastFrom != 12345 {
			t.Errorf("expected cursor 12345, got %d", source.lastFrom)
		}
	})

	t.Run("Propagates Source Errors", func(t *testing.T) {
		source := &fakeSource{err: shared.ErrNetwork}

		_, err := NewIngestor(source, "someone", 200, nil).FetchSince(ctx, 0)
		if !errors.Is(err, shared.ErrNetwork) {
			t.Errorf("expected ErrNetwork, got %v", err)
		}
	})

	t.Run("Honors Cancellation", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(context.Background())
		cancel()

		source := &fakeSource{pages: []*services.RecentTracksPage{
			{Page: 1, TotalPages: 1},
		}}

		_, err := NewIngestor(source, "someone", 200, nil).FetchSince(cancelled, 0)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if source.calls != 0 {
			t.Errorf("expected no fetches after cancellation, got %d", source.calls)
		}
	})
}
