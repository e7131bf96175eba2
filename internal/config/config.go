// Package config loads the MPI core's configuration surface (§6) via
// Viper, the same defaults-then-env-then-file layering the rest of this
// codebase uses. Configuration LOADING (files, env vars, flags) is an
// external-collaborator concern the core does not itself depend on for
// correctness — every component in this module accepts a plain struct —
// but Load is the ambient convenience this codebase's callers expect.
package config

import (
	"fmt"
	"math"
	"time"

	"github.com/spf13/viper"
)

// MatchingStrategy selects which composite scorer the matcher applies.
type MatchingStrategy string

const (
	StrategyProbabilistic MatchingStrategy = "probabilistic"
	StrategyDeterministic MatchingStrategy = "deterministic"
)

// Weights mirrors scoring.Weights for config-file/env unmarshaling
// without importing the scoring package from config.
type Weights struct {
	Name       float64 `mapstructure:"name"`
	DOB        float64 `mapstructure:"dob"`
	Gender     float64 `mapstructure:"gender"`
	Address    float64 `mapstructure:"address"`
	Identifier float64 `mapstructure:"identifier"`
}

// Matching holds the matching.* configuration options.
type Matching struct {
	Threshold float64          `mapstructure:"threshold"`
	Weights   Weights          `mapstructure:"weights"`
	Strategy  MatchingStrategy `mapstructure:"strategy"`
}

// Blocking holds the blocking.* configuration options.
type Blocking struct {
	ResultCap         int `mapstructure:"result_cap"`
	FuzzyEditDistance int `mapstructure:"fuzzy_edit_distance"`
}

// Store holds the store.* configuration options.
type Store struct {
	PoolMin       int32         `mapstructure:"pool_min"`
	PoolMax       int32         `mapstructure:"pool_max"`
	HealthTimeout time.Duration `mapstructure:"health_timeout"`
}

// Index holds the index.* configuration options.
type Index struct {
	Path string `mapstructure:"path"`
}

// Audit holds the audit.* configuration options.
type Audit struct {
	QueryCap int `mapstructure:"query_cap"`
}

// Config is the full MPI core configuration surface enumerated in §6.
type Config struct {
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	Matching    Matching `mapstructure:"matching"`
	Blocking    Blocking `mapstructure:"blocking"`
	Store       Store    `mapstructure:"store"`
	Index       Index    `mapstructure:"index"`
	Audit       Audit    `mapstructure:"audit"`
}

// Load reads configuration from environment variables (optionally layered
// over a ".env" file if present) with the spec's defaults applied first.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("matching.threshold", 0.85)
	v.SetDefault("matching.weights.name", 0.35)
	v.SetDefault("matching.weights.dob", 0.30)
	v.SetDefault("matching.weights.gender", 0.10)
	v.SetDefault("matching.weights.address", 0.15)
	v.SetDefault("matching.weights.identifier", 0.10)
	v.SetDefault("matching.strategy", string(StrategyProbabilistic))
	v.SetDefault("blocking.result_cap", 100)
	v.SetDefault("blocking.fuzzy_edit_distance", 2)
	v.SetDefault("store.pool_min", 10)
	v.SetDefault("store.pool_max", 50)
	v.SetDefault("store.health_timeout", "5s")
	v.SetDefault("index.path", "")
	v.SetDefault("audit.query_cap", 500)

	v.BindEnv("DATABASE_URL")
	v.BindEnv("matching.threshold", "MATCHING_THRESHOLD")
	v.BindEnv("matching.weights.name", "MATCHING_WEIGHTS_NAME")
	v.BindEnv("matching.weights.dob", "MATCHING_WEIGHTS_DOB")
	v.BindEnv("matching.weights.gender", "MATCHING_WEIGHTS_GENDER")
	v.BindEnv("matching.weights.address", "MATCHING_WEIGHTS_ADDRESS")
	v.BindEnv("matching.weights.identifier", "MATCHING_WEIGHTS_IDENTIFIER")
	v.BindEnv("matching.strategy", "MATCHING_STRATEGY")
	v.BindEnv("blocking.result_cap", "BLOCKING_RESULT_CAP")
	v.BindEnv("blocking.fuzzy_edit_distance", "BLOCKING_FUZZY_EDIT_DISTANCE")
	v.BindEnv("store.pool_min", "STORE_POOL_MIN")
	v.BindEnv("store.pool_max", "STORE_POOL_MAX")
	v.BindEnv("store.health_timeout", "STORE_HEALTH_TIMEOUT")
	v.BindEnv("index.path", "INDEX_PATH")
	v.BindEnv("audit.query_cap", "AUDIT_QUERY_CAP")

	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

const weightSumTolerance = 1e-9

// Validate checks the invariants the configuration surface requires: the
// five matching weights sum to 1.0, the strategy and edit distance are in
// their closed sets, and the pool bounds are sane.
func (c *Config) Validate() error {
	w := c.Matching.Weights
	sum := w.Name + w.DOB + w.Gender + w.Address + w.Identifier
	if math.Abs(sum-1.0) > weightSumTolerance {
		return fmt.Errorf("matching.weights must sum to 1.0, got %v", sum)
	}

	if c.Matching.Strategy != StrategyProbabilistic && c.Matching.Strategy != StrategyDeterministic {
		return fmt.Errorf("matching.strategy must be %q or %q, got %q", StrategyProbabilistic, StrategyDeterministic, c.Matching.Strategy)
	}

	if c.Blocking.FuzzyEditDistance < 0 || c.Blocking.FuzzyEditDistance > 2 {
		return fmt.Errorf("blocking.fuzzy_edit_distance must be 0, 1, or 2, got %d", c.Blocking.FuzzyEditDistance)
	}

	if c.Store.PoolMin < 0 || c.Store.PoolMax < c.Store.PoolMin {
		return fmt.Errorf("store.pool_max (%d) must be >= store.pool_min (%d)", c.Store.PoolMax, c.Store.PoolMin)
	}

	if c.Store.HealthTimeout <= 0 {
		return fmt.Errorf("store.health_timeout must be positive, got %v", c.Store.HealthTimeout)
	}

	if c.Audit.QueryCap <= 0 {
		return fmt.Errorf("audit.query_cap must be positive, got %d", c.Audit.QueryCap)
	}

	return nil
}
