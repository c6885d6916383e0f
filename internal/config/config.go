// Package config loads service configuration from defaults overlaid with
// DM_-prefixed environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is stripped from environment variables before they are mapped
// onto Config fields (DM_LISTEN_ADDR -> listen_addr).
const EnvPrefix = "DM_"

// Config holds all runtime settings.
type Config struct {
	ListenAddr string `koanf:"listen_addr"`
	AuthToken  string `koanf:"auth_token"`
	BaseURL    string `koanf:"base_url"`

	// Remote media store account.
	CloudName     string `koanf:"cloud_name"`
	APIKey        string `koanf:"api_key"`
	APISecret     string `koanf:"api_secret"`
	UploadBaseURL string `koanf:"upload_base_url"`
	AdminBaseURL  string `koanf:"admin_base_url"`

	// Cleanup journal.
	JournalPath   string        `koanf:"journal_path"`
	SweepInterval time.Duration `koanf:"sweep_interval"`

	// AI transform retry policy.
	TransformMaxAttempts  int           `koanf:"transform_max_attempts"`
	TransformInitialDelay time.Duration `koanf:"transform_initial_delay"`

	// Gold quote upstream.
	QuoteURL   string        `koanf:"quote_url"`
	QuoteToken string        `koanf:"quote_token"`
	QuoteTTL   time.Duration `koanf:"quote_ttl"`
}

// defaults returns the built-in configuration, applied before env overrides.
func defaults() *Config {
	return &Config{
		ListenAddr:            ":8080",
		BaseURL:               "http://localhost:8080",
		UploadBaseURL:         "https://api.cloudinary.com/v1_1",
		AdminBaseURL:          "https://api.cloudinary.com/v1_1",
		JournalPath:           "/data/db/cleanup.db",
		SweepInterval:         15 * time.Minute,
		TransformMaxAttempts:  3,
		TransformInitialDelay: 2 * time.Second,
		QuoteURL:              "https://www.goldapi.io/api/XAU/USD",
		QuoteTTL:              8 * time.Hour,
	}
}

// Load builds a Config from defaults plus DM_* environment variables.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
