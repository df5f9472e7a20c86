package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	LastFM   LastFMConfig   `toml:"lastfm"`
	Database DatabaseConfig `toml:"database"`
	Cache    CacheConfig    `toml:"cache"`
	Sync     SyncConfig     `toml:"sync"`
}

// LastFMConfig contains Last.fm API credentials.
type LastFMConfig struct {
	APIKey   string `toml:"api_key"`
	Username string `toml:"username"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// CacheConfig contains response cache settings.
//
// Reference lookups (artist/album/track info) keep for days; the
// recent-activity feed goes stale in minutes.
type CacheConfig struct {
	Dir                string `toml:"dir"`
	ReferenceTTLHours  int    `toml:"reference_ttl_hours"`
	ActivityTTLMinutes int    `toml:"activity_ttl_minutes"`
}

// SyncConfig contains sync pipeline tuning options.
type SyncConfig struct {
	BatchSize     int     `toml:"batch_size"`
	PageSize      int     `toml:"page_size"`
	AddMissing    bool    `toml:"add_missing"`
	RatePerSecond float64 `toml:"rate_per_second"`
}

// ReferenceTTL returns the configured TTL for stable reference data.
func (c CacheConfig) ReferenceTTL() time.Duration {
	return time.Duration(c.ReferenceTTLHours) * time.Hour
}

// ActivityTTL returns the configured TTL for volatile recent-activity data.
func (c CacheConfig) ActivityTTL() time.Duration {
	return time.Duration(c.ActivityTTLMinutes) * time.Minute
}

// Validate checks that the configuration can support a sync run.
func (c *Config) Validate() error {
	if c.LastFM.APIKey == "" {
		return fmt.Errorf("%w: lastfm.api_key is required", ErrMissingCredentials)
	}
	if c.LastFM.Username == "" {
		return fmt.Errorf("%w: lastfm.username is required", ErrMissingCredentials)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("%w: database.path is required", ErrInvalidConfig)
	}
	return nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
