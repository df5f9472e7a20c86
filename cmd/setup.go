package main

import (
	"context"
	"os"

	"github.com/desertthunder/relisten/internal/shared"
	"github.com/urfave/cli/v3"
)

// Setup initializes the config file (when missing), the database and its schema.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := shared.CreateConfigFile(configPath); err != nil {
			return err
		}
		r.writePlainln("✓ Created %s, add your Last.fm API key before syncing", configPath)
	}

	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	db, err := r.openDatabase(config)
	if err != nil {
		return err
	}
	defer db.Close()

	r.logger.Infof("database ready at %s", config.Database.Path)
	r.writePlainln("✓ Database initialized: %s", config.Database.Path)

	return nil
}
