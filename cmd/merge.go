package main

import (
	"context"

	"github.com/desertthunder/relisten/internal/resolver"
	"github.com/urfave/cli/v3"
)

// Merge runs the duplicate-collapse maintenance pass over the catalog.
//
// Safe to run any time; it is idempotent and independent of the sync
// pipeline.
func (r *Runner) Merge(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	db, err := r.openDatabase(config)
	if err != nil {
		return err
	}
	defer db.Close()

	stats, err := resolver.NewMerger(db, r.logger).MergeAll()
	if err != nil {
		return err
	}

	if stats.Total() == 0 {
		r.writePlainln("✓ No duplicates found")
		return nil
	}

	r.writePlainln("✓ Merged %d duplicate rows", stats.Total())
	r.writePlainln("  Artists: %d  Albums: %d  Tracks: %d", stats.Artists, stats.Albums, stats.Tracks)

	return nil
}
