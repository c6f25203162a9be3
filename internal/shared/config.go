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
	Credentials CredentialsConfig `toml:"credentials"`
	Providers   ProvidersConfig   `toml:"providers"`
	Engine      EngineConfig      `toml:"engine"`
	MusicBrainz MusicBrainzConfig `toml:"musicbrainz"`
	Cache       CacheConfig       `toml:"cache"`
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
}

// SpotifyConfig contains Spotify API credentials for the client-credentials flow.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
}

// ProvidersConfig contains settings for the preview catalog providers.
type ProvidersConfig struct {
	DeezerBaseURL  string `toml:"deezer_base_url"`
	ITunesBaseURL  string `toml:"itunes_base_url"`
	DefaultCountry string `toml:"default_country"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Timeout returns the per-provider request timeout.
func (p ProvidersConfig) Timeout() time.Duration {
	if p.TimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// EngineConfig contains settings for the external tempo/key analysis engine.
type EngineConfig struct {
	BaseURL             string  `toml:"base_url"`
	Token               string  `toml:"token"`
	ConfidenceThreshold float64 `toml:"confidence_threshold"`
	DebugLevel          int     `toml:"debug_level"`
	PollIntervalMS      int     `toml:"poll_interval_ms"`
	MaxWaitSeconds      int     `toml:"max_wait_seconds"`
	BatchChunkSize      int     `toml:"batch_chunk_size"`
	StreamChunkSize     int     `toml:"stream_chunk_size"`
	ChunkDelayMS        int     `toml:"chunk_delay_ms"`
}

// PollInterval returns the batch status polling interval.
func (e EngineConfig) PollInterval() time.Duration {
	if e.PollIntervalMS <= 0 {
		return time.Second
	}
	return time.Duration(e.PollIntervalMS) * time.Millisecond
}

// MaxWait returns the overall batch polling deadline.
func (e EngineConfig) MaxWait() time.Duration {
	if e.MaxWaitSeconds <= 0 {
		return 120 * time.Second
	}
	return time.Duration(e.MaxWaitSeconds) * time.Second
}

// ChunkDelay returns the pacing delay between submission chunks.
func (e EngineConfig) ChunkDelay() time.Duration {
	if e.ChunkDelayMS <= 0 {
		return 250 * time.Millisecond
	}
	return time.Duration(e.ChunkDelayMS) * time.Millisecond
}

// MusicBrainzConfig contains settings for the bibliographic metadata client.
type MusicBrainzConfig struct {
	BaseURL   string `toml:"base_url"`
	UserAgent string `toml:"user_agent"`
}

// CacheConfig contains analysis cache tuning.
type CacheConfig struct {
	FreshnessDays int `toml:"freshness_days"`
}

// Freshness returns the window after which a cached record is stale.
func (c CacheConfig) Freshness() time.Duration {
	if c.FreshnessDays <= 0 {
		return 90 * 24 * time.Hour
	}
	return time.Duration(c.FreshnessDays) * 24 * time.Hour
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingConfig, err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	return &config, nil
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
