package main

import (
	"context"

	"github.com/urfave/cli/v3"
)

// Probe fetches a single recent track to verify the configured
// credentials work before a real sync run.
func (r *Runner) Probe(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := config.Validate(); err != nil {
		return err
	}

	lastfm, err := r.newLastFM(config)
	if err != nil {
		return err
	}

	page, err := lastfm.RecentTracks(ctx, config.LastFM.Username, 0, 1, 1)
	if err != nil {
		return err
	}

	return r.writeJSON(page, cmd.Bool("pretty"))
}
