// Package config defines pipeline configuration structures and loading hooks.
//
// Conventions:
//   - Provide New() to build a Config with defaults.
//   - Load layers a YAML file and PITWALL_* env vars on top of the defaults.
//   - Validation failures wrap ErrInvalidConfig.
package config

import "time"

// Provider kinds.
const (
	ProviderErgast    = "ergast"
	ProviderSynthetic = "synthetic"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"oneof=debug info warn warning error"`

	// Addr configures the read-only status API listen address, e.g. ":9080".
	// Empty disables the server; the process exits after the pipeline run.
	Addr string `koanf:"addr"`

	// MinYear and MaxYear bound the seasons to ingest when Years is empty.
	MinYear int `koanf:"min_year" validate:"gte=1950"`
	MaxYear int `koanf:"max_year" validate:"gtefield=MinYear"`

	// Years lists the seasons to ingest explicitly.
	Years []int `koanf:"years" validate:"dive,gte=1950"`

	// FeatureStorePath is the feature store base directory.
	FeatureStorePath string `koanf:"feature_store_path" validate:"required"`

	// FeatureSetName names the feature set written by the store stage.
	FeatureSetName string `koanf:"feature_set_name" validate:"required,excludes=/"`

	// TestSize is the chronological test fraction.
	TestSize float64 `koanf:"test_size" validate:"gt=0,lt=1"`

	EloKFactor       float64 `koanf:"elo_k_factor" validate:"gt=0"`
	EloInitialRating float64 `koanf:"elo_initial_rating" validate:"gt=0"`

	// UnseenPosition is predicted for drivers the rating model never saw.
	UnseenPosition int `koanf:"unseen_position" validate:"gte=1"`

	// EnsembleWeights weighs (elo, baseline). Empty means uniform.
	EnsembleWeights []float64 `koanf:"ensemble_weights" validate:"omitempty,len=2,dive,gte=0"`

	// BaselineColumn is the feature the baseline model echoes.
	BaselineColumn string `koanf:"baseline_column" validate:"required"`

	// EventFilter is a CEL expression over `event` selecting schedule entries
	// to ingest. Empty keeps every event.
	EventFilter string `koanf:"event_filter"`

	ProviderKind         string  `koanf:"provider_kind" validate:"oneof=ergast synthetic"`
	ProviderBaseURL      string  `koanf:"provider_base_url" validate:"omitempty,url"`
	ProviderTimeoutMS    int     `koanf:"provider_timeout_ms" validate:"gt=0"`
	ProviderRatePerSec   float64 `koanf:"provider_rate_per_sec" validate:"gt=0"`
	ProviderBurst        int     `koanf:"provider_burst" validate:"gte=1"`
	ProviderCacheDir     string  `koanf:"provider_cache_dir"`
	ProviderCacheTTLHour int     `koanf:"provider_cache_ttl_hours" validate:"gte=0"`

	SyntheticSeed    uint64 `koanf:"synthetic_seed"`
	SyntheticRounds  int    `koanf:"synthetic_rounds" validate:"gte=1"`
	SyntheticDrivers int    `koanf:"synthetic_drivers" validate:"gte=2"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:             "info",
		MinYear:              2018,
		MaxYear:              2025,
		FeatureStorePath:     "data/features",
		FeatureSetName:       "race_features",
		TestSize:             0.2,
		EloKFactor:           32,
		EloInitialRating:     1500,
		UnseenPosition:       20,
		BaselineColumn:       "qualifying_position",
		EventFilter:          `event.format == "conventional"`,
		ProviderKind:         ProviderErgast,
		ProviderBaseURL:      "https://api.jolpi.ca/ergast/f1",
		ProviderTimeoutMS:    10_000,
		ProviderRatePerSec:   4,
		ProviderBurst:        1,
		ProviderCacheTTLHour: 24 * 7,
		SyntheticSeed:        42,
		SyntheticRounds:      10,
		SyntheticDrivers:     20,
	}
}

// Seasons returns Years, or MinYear..MaxYear when Years is empty.
func (c *Config) Seasons() []int {
	if len(c.Years) > 0 {
		out := make([]int, len(c.Years))
		copy(out, c.Years)
		return out
	}
	out := make([]int, 0, c.MaxYear-c.MinYear+1)
	for y := c.MinYear; y <= c.MaxYear; y++ {
		out = append(out, y)
	}
	return out
}

// ProviderTimeout returns the per-request provider timeout.
func (c *Config) ProviderTimeout() time.Duration {
	return time.Duration(c.ProviderTimeoutMS) * time.Millisecond
}

// ProviderCacheTTL returns how long cached provider responses stay valid.
func (c *Config) ProviderCacheTTL() time.Duration {
	return time.Duration(c.ProviderCacheTTLHour) * time.Hour
}
