package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/relisten/internal/models"
	"github.com/desertthunder/relisten/internal/repositories"
	"github.com/desertthunder/relisten/internal/resolver"
	"github.com/desertthunder/relisten/internal/shared"
)

// SyncEngine drives one full sync run: ingest, resolve, write.
type SyncEngine struct {
	ingestor *Ingestor
	resolver *resolver.Resolver
	writer   *BatchWriter
	state    *repositories.SyncStateRepository
	user     string
	source   string
	force    bool
	logger   *log.Logger
}

// EngineOpts configures a SyncEngine.
type EngineOpts struct {
	Ingestor *Ingestor
	Resolver *resolver.Resolver
	Writer   *BatchWriter
	State    *repositories.SyncStateRepository
	User     string
	Source   string
	// ForceUpdate ignores the stored checkpoint and resyncs the full
	// history. The natural event key keeps the result identical.
	ForceUpdate bool
	Logger      *log.Logger
}

// NewSyncEngine creates a SyncEngine from opts.
func NewSyncEngine(opts EngineOpts) *SyncEngine {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	return &SyncEngine{
		ingestor: opts.Ingestor,
		resolver: opts.Resolver,
		writer:   opts.Writer,
		state:    opts.State,
		user:     opts.User,
		source:   opts.Source,
		force:    opts.ForceUpdate,
		logger:   opts.Logger,
	}
}

// RunStats summarizes a sync run so partial success is observable.
type RunStats struct {
	Fetched         int   // unique events returned by the ingestor
	Linked          int   // events whose attempted lookups all resolved
	Skipped         int   // events left unresolved because creation is off
	Failed          int   // events written with null or partial references after a hard lookup failure
	Written         int   // rows actually inserted
	StartCheckpoint int64 // cursor position before the run
	EndCheckpoint   int64 // cursor position after the run
}

// Run executes one full sync pass. Resolution failures for individual
// events never abort the run: the affected event is committed with null
// references and counted in Failed.
func (e *SyncEngine) Run(ctx context.Context) (*RunStats, error) {
	stats := &RunStats{}

	if e.force {
		if err := e.state.Reset(e.user, e.source); err != nil {
			return stats, err
		}
		e.logger.Info("checkpoint reset, resyncing full history")
	}

	cp, err := e.state.Get(e.user, e.source)
	if err != nil {
		return stats, err
	}
	stats.StartCheckpoint = cp.LastTimestamp
	stats.EndCheckpoint = cp.LastTimestamp

	// The checkpoint is passed unchanged rather than advanced by one.
	// Whether the provider treats the cursor as inclusive or exclusive,
	// nothing is skipped; a redelivered boundary event is absorbed by
	// ingest dedup and the scrobble natural key.
	events, err := e.ingestor.FetchSince(ctx, cp.LastTimestamp)
	if err != nil {
		return stats, fmt.Errorf("ingestion failed: %w", err)
	}
	stats.Fetched = len(events)

	if len(events) == 0 {
		e.logger.Info("no new events", "checkpoint", cp.LastTimestamp)
		return stats, nil
	}

	e.logger.Infof("fetched %d new events since %d", len(events), cp.LastTimestamp)

	resolved := make([]*models.Scrobble, 0, len(events))
	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		resolved = append(resolved, e.resolveEvent(ctx, ev, stats))
	}

	written, err := e.writer.Write(ctx, resolved)
	stats.Written = written
	if err != nil {
		return stats, err
	}

	after, err := e.state.Get(e.user, e.source)
	if err != nil {
		return stats, err
	}
	stats.EndCheckpoint = after.LastTimestamp

	e.logger.Info("sync complete",
		"fetched", stats.Fetched,
		"written", stats.Written,
		"linked", stats.Linked,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
		"checkpoint", stats.EndCheckpoint,
	)

	return stats, nil
}

// resolveEvent maps one event's names to catalog identifiers. An event
// whose entities cannot be resolved even after full fallback keeps null
// references and is skipped for enrichment, not dropped.
func (e *SyncEngine) resolveEvent(ctx context.Context, ev models.Event, stats *RunStats) *models.Scrobble {
	s := &models.Scrobble{
		Artist:     ev.Artist,
		Track:      ev.Track,
		Album:      ev.Album,
		ListenedAt: ev.ListenedAt,
		URL:        ev.URL,
	}

	artistID, err := e.resolver.ResolveArtist(ctx, ev.Artist, ev.ArtistMBID)
	if err != nil {
		if errors.Is(err, shared.ErrUnresolved) {
			stats.Skipped++
		} else {
			e.logger.Warnf("failed to resolve artist %q: %v", ev.Artist, err)
			stats.Failed++
		}
		return s
	}
	s.ArtistID = artistID

	failed := false

	if ev.Album != "" {
		albumID, err := e.resolver.ResolveAlbum(ctx, ev.Album, artistID, ev.Artist, ev.AlbumMBID)
		if err != nil && !errors.Is(err, shared.ErrUnresolved) {
			e.logger.Warnf("failed to resolve album %q: %v", ev.Album, err)
			failed = true
		} else if err == nil {
			s.AlbumID = albumID
		}
	}

	trackID, err := e.resolver.ResolveTrack(ctx, ev.Track, ev.Artist, ev.Album, ev.TrackMBID)
	if err != nil && !errors.Is(err, shared.ErrUnresolved) {
		e.logger.Warnf("failed to resolve track %q: %v", ev.Track, err)
		failed = true
	} else if err == nil {
		s.TrackID = trackID
	}

	if failed {
		stats.Failed++
	} else {
		stats.Linked++
	}
	return s
}
