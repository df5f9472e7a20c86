package main

import (
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/relisten/internal/cache"
	"github.com/desertthunder/relisten/internal/services"
	"github.com/desertthunder/relisten/internal/shared"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Runner{
		config:     opts.Config,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, syncCommand, mergeCommand, probeCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// loadConfig resolves the effective configuration for a command,
// applying flag overrides on top of the config file.
func (r *Runner) loadConfig(cmd *cli.Command) (*shared.Config, error) {
	config := r.config

	if path := cmd.String("config"); path != "" {
		if _, err := os.Stat(path); err == nil {
			loaded, err := shared.LoadConfig(path)
			if err != nil {
				return nil, err
			}
			config = loaded
		}
	}

	if dbPath := cmd.String("db-path"); dbPath != "" {
		config.Database.Path = dbPath
	}
	if cacheDir := cmd.String("cache-dir"); cacheDir != "" {
		config.Cache.Dir = cacheDir
	}

	return config, nil
}

// openDatabase opens the configured database and applies migrations.
func (r *Runner) openDatabase(config *shared.Config) (*sql.DB, error) {
	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		return nil, err
	}

	shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// newLastFM wires the rate-limited clients and caches for the provider.
// The feed cache goes stale in minutes, the reference cache in days;
// both clients share one limiter so the provider's minimum interval
// holds across every call.
func (r *Runner) newLastFM(config *shared.Config) (*services.LastFM, error) {
	feedCache := cache.New(config.Cache.ActivityTTL(), cachePath(config, "recenttracks.json"), r.logger)
	refCache := cache.New(config.Cache.ReferenceTTL(), cachePath(config, "reference.json"), r.logger)

	feed := services.NewClient(services.ClientOpts{
		HTTPClient:    r.httpClient,
		Cache:         feedCache,
		Logger:        r.logger,
		RatePerSecond: config.Sync.RatePerSecond,
	})
	ref := services.NewClient(services.ClientOpts{
		HTTPClient: r.httpClient,
		Cache:      refCache,
		Limiter:    feed.Limiter(),
		Logger:     r.logger,
	})

	return services.NewLastFM(config.LastFM.APIKey, feed, ref)
}

func cachePath(config *shared.Config, name string) string {
	if config.Cache.Dir == "" {
		return ""
	}
	return filepath.Join(config.Cache.Dir, name)
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	out, err := shared.MarshalJSON(data, pretty)
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}

	fmt.Fprintln(r.output, string(out))
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) {
	fmt.Fprintf(r.output, format+"\n", args...)
}
