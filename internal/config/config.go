package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Defaults for the recognized options.
const (
	DefaultVoteLimitPerDay    = 5
	DefaultTimezone           = "Africa/Harare"
	DefaultChartSize          = 100
	DefaultResolutionCacheTTL = 15 * time.Minute
	DefaultSpotifyMarket      = "ZW"
	DefaultPort               = "8080"
	DefaultDBPath             = "./data/votes.db"
)

// Config holds the runtime options. Everything comes from the environment
// (optionally seeded from a .env file in main).
type Config struct {
	VoteLimitPerDay    int
	Timezone           string
	Location           *time.Location
	ChartSize          int
	ResolutionCacheTTL time.Duration

	SpotifyID     string
	SpotifySecret string
	SpotifyMarket string

	// AdminTOTPSecret guards the manual recompute endpoint. Empty disables it.
	AdminTOTPSecret string

	Port       string
	DBPath     string
	ArtistsCSV string
}

// Load reads configuration from environment variables, applying defaults.
// Spotify credentials are required; everything else has a sane default.
func Load() (*Config, error) {
	cfg := &Config{
		Timezone:        envOr("TIMEZONE", DefaultTimezone),
		SpotifyID:       os.Getenv("SPOTIFY_ID"),
		SpotifySecret:   os.Getenv("SPOTIFY_SECRET"),
		SpotifyMarket:   envOr("SPOTIFY_MARKET", DefaultSpotifyMarket),
		AdminTOTPSecret: os.Getenv("ADMIN_TOTP_SECRET"),
		Port:            envOr("PORT", DefaultPort),
		DBPath:          envOr("DB_PATH", DefaultDBPath),
		ArtistsCSV:      os.Getenv("ARTISTS_CSV"),
	}

	if cfg.SpotifyID == "" || cfg.SpotifySecret == "" {
		return nil, fmt.Errorf("SPOTIFY_ID and SPOTIFY_SECRET must be set in environment")
	}

	var err error
	if cfg.VoteLimitPerDay, err = envInt("VOTE_LIMIT_PER_DAY", DefaultVoteLimitPerDay); err != nil {
		return nil, err
	}
	if cfg.VoteLimitPerDay <= 0 {
		return nil, fmt.Errorf("VOTE_LIMIT_PER_DAY must be positive, got %d", cfg.VoteLimitPerDay)
	}

	if cfg.ChartSize, err = envInt("CHART_SIZE", DefaultChartSize); err != nil {
		return nil, err
	}
	if cfg.ChartSize <= 0 {
		return nil, fmt.Errorf("CHART_SIZE must be positive, got %d", cfg.ChartSize)
	}

	if cfg.ResolutionCacheTTL, err = envDuration("RESOLUTION_CACHE_TTL", DefaultResolutionCacheTTL); err != nil {
		return nil, err
	}

	cfg.Location, err = time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", cfg.Timezone, err)
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, d)
	}
	return d, nil
}
