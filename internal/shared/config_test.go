package shared

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Providers.DeezerBaseURL == "" {
		t.Error("expected default deezer base URL")
	}
	if config.Providers.DefaultCountry != "US" {
		t.Errorf("expected default country US, got %s", config.Providers.DefaultCountry)
	}
	if config.Cache.Freshness() != 90*24*time.Hour {
		t.Errorf("expected 90 day freshness window, got %v", config.Cache.Freshness())
	}
	if config.Engine.PollInterval() != time.Second {
		t.Errorf("expected 1s poll interval, got %v", config.Engine.PollInterval())
	}
	if config.Engine.MaxWait() != 120*time.Second {
		t.Errorf("expected 120s max wait, got %v", config.Engine.MaxWait())
	}
	if config.Engine.StreamChunkSize != 20 {
		t.Errorf("expected stream chunk size 20, got %d", config.Engine.StreamChunkSize)
	}
	if config.Engine.BatchChunkSize != 5 {
		t.Errorf("expected batch chunk size 5, got %d", config.Engine.BatchChunkSize)
	}
}

func TestLoadConfig(t *testing.T) {
	t.Run("Valid File", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.toml")

		content := `
[credentials.spotify]
client_id = "abc"
client_secret = "def"

[providers]
default_country = "DE"
timeout_seconds = 3

[cache]
freshness_days = 7
`
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}

		config, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("expected config to load, got %v", err)
		}

		if config.Credentials.Spotify.ClientID != "abc" {
			t.Errorf("expected client_id abc, got %s", config.Credentials.Spotify.ClientID)
		}
		if config.Providers.DefaultCountry != "DE" {
			t.Errorf("expected country DE, got %s", config.Providers.DefaultCountry)
		}
		if config.Providers.Timeout() != 3*time.Second {
			t.Errorf("expected 3s provider timeout, got %v", config.Providers.Timeout())
		}
		if config.Cache.Freshness() != 7*24*time.Hour {
			t.Errorf("expected 7 day freshness, got %v", config.Cache.Freshness())
		}
	})

	t.Run("Missing File", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
			t.Error("expected error for missing config file")
		}
	})

	t.Run("Malformed File", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.toml")
		if err := os.WriteFile(path, []byte("not toml ["), 0644); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}

		if _, err := LoadConfig(path); err == nil {
			t.Error("expected error for malformed config file")
		}
	})
}

func TestCreateConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	if err := CreateConfigFile(path); err != nil {
		t.Fatalf("expected config file to be created: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected config file to exist: %v", err)
	}

	if err := CreateConfigFile(path); err == nil {
		t.Error("expected error when config file already exists")
	}
}
