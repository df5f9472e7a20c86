package main

import (
	"context"

	"github.com/desertthunder/relisten/internal/repositories"
	"github.com/desertthunder/relisten/internal/resolver"
	"github.com/desertthunder/relisten/internal/services"
	"github.com/desertthunder/relisten/internal/tasks"
	"github.com/urfave/cli/v3"
)

// SyncRun executes one full sync pass: ingest new listen events, resolve
// them against the catalog, and commit in checkpointed batches.
func (r *Runner) SyncRun(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	// credentials are checked before any network call
	if err := config.Validate(); err != nil {
		return err
	}

	lastfm, err := r.newLastFM(config)
	if err != nil {
		return err
	}

	db, err := r.openDatabase(config)
	if err != nil {
		return err
	}
	defer db.Close()

	artists := repositories.NewArtistRepository(db)
	albums := repositories.NewAlbumRepository(db)
	tracks := repositories.NewTrackRepository(db)
	scrobbles := repositories.NewScrobbleRepository(db)
	state := repositories.NewSyncStateRepository(db)

	addMissing := config.Sync.AddMissing
	if cmd.IsSet("add-items") {
		addMissing = cmd.Bool("add-items")
	}

	res := resolver.New(artists, albums, tracks, resolver.Opts{
		Provider:   lastfm,
		Logger:     r.logger,
		AddMissing: addMissing,
	})

	user := config.LastFM.Username
	engine := tasks.NewSyncEngine(tasks.EngineOpts{
		Ingestor:    tasks.NewIngestor(lastfm, user, config.Sync.PageSize, r.logger),
		Resolver:    res,
		Writer:      tasks.NewBatchWriter(db, scrobbles, state, user, lastfm.Name(), config.Sync.BatchSize, r.logger),
		State:       state,
		User:        user,
		Source:      lastfm.Name(),
		ForceUpdate: cmd.Bool("force-update"),
		Logger:      r.logger,
	})

	stats, err := engine.Run(ctx)
	if err != nil {
		return err
	}

	r.writePlainln("✓ Sync complete")
	r.writePlainln("  Fetched: %d  Written: %d", stats.Fetched, stats.Written)
	r.writePlainln("  Linked: %d  Skipped: %d  Failed: %d", stats.Linked, stats.Skipped, stats.Failed)
	r.writePlainln("  Checkpoint: %d → %d", stats.StartCheckpoint, stats.EndCheckpoint)

	return nil
}

// SyncStatus reports the checkpoint position and catalog row counts.
func (r *Runner) SyncStatus(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	db, err := r.openDatabase(config)
	if err != nil {
		return err
	}
	defer db.Close()

	state := repositories.NewSyncStateRepository(db)
	cp, err := state.Get(config.LastFM.Username, services.LastFMSource)
	if err != nil {
		return err
	}

	artistCount, err := repositories.NewArtistRepository(db).Count()
	if err != nil {
		return err
	}
	albumCount, err := repositories.NewAlbumRepository(db).Count()
	if err != nil {
		return err
	}
	trackCount, err := repositories.NewTrackRepository(db).Count()
	if err != nil {
		return err
	}

	scrobbles := repositories.NewScrobbleRepository(db)
	eventCount, err := scrobbles.Count()
	if err != nil {
		return err
	}
	linkedCount, err := scrobbles.CountLinked()
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(map[string]any{
			"user":       cp.User,
			"source":     cp.Source,
			"checkpoint": cp.LastTimestamp,
			"artists":    artistCount,
			"albums":     albumCount,
			"tracks":     trackCount,
			"scrobbles":  eventCount,
			"linked":     linkedCount,
		}, true)
	}

	r.writePlainln("Checkpoint: %d (%s @ %s)", cp.LastTimestamp, cp.User, cp.Source)
	r.writePlainln("Catalog: %d artists, %d albums, %d tracks", artistCount, albumCount, trackCount)
	r.writePlainln("Scrobbles: %d (%d linked)", eventCount, linkedCount)

	return nil
}
