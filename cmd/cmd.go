// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// configFlag is shared by every command.
func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

// setupCommand initializes the database and config file
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Initialize config file, database and run migrations",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:  "db-path",
				Usage: "Override database path",
			},
		},
		Action: r.Setup,
	}
}

// syncCommand groups the sync pipeline operations
func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Synchronize listening history into the local catalog",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Fetch, resolve and commit new listen events",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:  "db-path",
						Usage: "Override database path",
					},
					&cli.StringFlag{
						Name:  "cache-dir",
						Usage: "Override response cache directory",
					},
					&cli.BoolFlag{
						Name:  "force-update",
						Usage: "Ignore the checkpoint and resync the full history",
					},
					&cli.BoolFlag{
						Name:  "add-items",
						Usage: "Create catalog rows for unresolved entities",
						Value: true,
					},
				},
				Action: r.SyncRun,
			},
			{
				Name:  "status",
				Usage: "Show checkpoint position and catalog counts",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:  "db-path",
						Usage: "Override database path",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output as JSON",
					},
				},
				Action: r.SyncStatus,
			},
		},
	}
}

// mergeCommand runs the duplicate-collapse maintenance pass
func mergeCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "merge",
		Usage: "Collapse catalog rows sharing a stable external ID",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:  "db-path",
				Usage: "Override database path",
			},
		},
		Action: r.Merge,
	}
}

// probeCommand issues one authenticated API call for config verification
func probeCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "probe",
		Usage: "Fetch one recent track to verify credentials",
		Flags: []cli.Flag{
			configFlag(),
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Pretty-print output",
				Value: true,
			},
		},
		Action: r.Probe,
	}
}
