// Package config loads and validates the engine configuration. Any
// invalid value is fatal at startup: the engine never runs on guessed
// or partially-applied settings.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"qde/internal/errors"
	"qde/internal/ledger"
	"qde/internal/logger"
	"qde/internal/regime"
	"qde/internal/risk"
	"qde/internal/sizing"
	"qde/internal/store"
	"qde/internal/tuner"
)

// Config is the full engine configuration.
type Config struct {
	Run      RunConfig             `yaml:"run"`
	Logging  logger.Config         `yaml:"logging"`
	Ensemble EnsembleConfig        `yaml:"ensemble"`
	Regime   regime.DetectorConfig `yaml:"regime"`
	Risk     risk.Limits           `yaml:"risk"`
	Sizing   sizing.Config         `yaml:"sizing"`
	Ledger   ledger.Config         `yaml:"ledger"`
	Tuner    tuner.Config          `yaml:"tuner"`
	Audit    AuditConfig           `yaml:"audit"`
	Store    StoreConfig           `yaml:"store"`
	API      APIConfig             `yaml:"api"`
}

// RunConfig identifies and paces one simulation run.
type RunConfig struct {
	ID         string        `yaml:"id"`          // empty: generated at startup
	WindowSize int           `yaml:"window_size"` // rolling bars kept per symbol
	Workers    int           `yaml:"workers"`     // per-symbol analysis workers
	EntryVote  float64       `yaml:"entry_vote"`  // combined vote opening a position
	ExitVote   float64       `yaml:"exit_vote"`   // combined vote closing a position
	StepPace   time.Duration `yaml:"step_pace"`   // delay between steps; zero runs flat out
}

// EnsembleConfig holds the learner settings.
type EnsembleConfig struct {
	Eta        float64 `yaml:"eta"`         // multiplicative update learning rate
	Floor      float64 `yaml:"floor"`       // minimum expert weight
	Learning   bool    `yaml:"learning"`    // false freezes weights for replay
	BlendAlpha float64 `yaml:"blend_alpha"` // learned-vs-prior blend share
}

// AuditConfig bounds the in-memory audit tail.
type AuditConfig struct {
	MaxRecords int `yaml:"max_records"`
}

// StoreConfig selects the durable event store backend.
type StoreConfig struct {
	Backend    string               `yaml:"backend"` // memory, postgres, nop
	Postgres   store.PostgresConfig `yaml:"postgres"`
	Checkpoint CheckpointConfig     `yaml:"checkpoint"`
}

// CheckpointConfig enables periodic learned-state snapshots to Redis.
type CheckpointConfig struct {
	Enabled  bool              `yaml:"enabled"`
	Interval time.Duration     `yaml:"interval"`
	Redis    store.RedisConfig `yaml:"redis"`
}

// APIConfig controls the HTTP status surface.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Default returns the full default configuration.
func Default() *Config {
	return &Config{
		Run: RunConfig{
			WindowSize: 60,
			Workers:    4,
			EntryVote:  0.15,
			ExitVote:   -0.10,
		},
		Logging: logger.DefaultConfig,
		Ensemble: EnsembleConfig{
			Eta:        0.10,
			Floor:      0.05,
			Learning:   true,
			BlendAlpha: 0.7,
		},
		Regime: regime.DefaultDetectorConfig(),
		Risk:   risk.DefaultLimits(),
		Sizing: sizing.DefaultConfig(),
		Ledger: ledger.DefaultConfig(),
		Tuner:  tuner.DefaultConfig(),
		Audit:  AuditConfig{MaxRecords: 10000},
		Store: StoreConfig{
			Backend: "memory",
			Checkpoint: CheckpointConfig{
				Interval: 5 * time.Minute,
				Redis:    store.RedisConfig{Addr: "localhost:6379", TTL: 7 * 24 * time.Hour},
			},
		},
		API: APIConfig{Enabled: true, Addr: ":8080"},
	}
}

// Load reads a YAML file over the defaults, expanding ${ENV} references
// before parsing.
func Load(path string) (*Config, error) {
	cfg := Default()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeConfigInvalid, "failed to read config file")
	}

	expanded := os.ExpandEnv(string(raw))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeConfigInvalid, "failed to parse config file")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every section. The first failure is returned as a
// fatal configuration error.
func (c *Config) Validate() error {
	if c.Run.WindowSize < 2 {
		return errors.NewAppError(errors.ErrCodeConfigInvalid,
			"window size must be at least 2 bars", nil)
	}
	if c.Run.Workers < 1 {
		return errors.NewAppError(errors.ErrCodeConfigInvalid,
			"worker count must be at least 1", nil)
	}
	if c.Run.EntryVote <= c.Run.ExitVote {
		return errors.NewAppError(errors.ErrCodeConfigInvalid,
			"entry vote threshold must exceed exit threshold", nil)
	}
	if c.Ensemble.Eta <= 0 {
		return errors.NewAppError(errors.ErrCodeConfigInvalid,
			"ensemble eta must be positive", nil)
	}
	if c.Ensemble.Floor <= 0 || c.Ensemble.Floor >= 1 {
		return errors.NewAppError(errors.ErrCodeConfigInvalid,
			"ensemble floor must lie in (0,1)", nil)
	}
	if c.Ensemble.BlendAlpha < 0 || c.Ensemble.BlendAlpha > 1 {
		return errors.NewAppError(errors.ErrCodeConfigInvalid,
			"blend alpha must lie in [0,1]", nil)
	}
	if c.Regime.Lookback > c.Run.WindowSize {
		return errors.NewAppError(errors.ErrCodeConfigInvalid,
			"regime lookback cannot exceed the window size", nil)
	}
	if err := c.Risk.Validate(); err != nil {
		return err
	}
	if err := c.Sizing.Validate(); err != nil {
		return err
	}
	if err := c.Ledger.Validate(); err != nil {
		return err
	}
	if err := c.Tuner.Validate(); err != nil {
		return err
	}
	switch c.Store.Backend {
	case "memory", "postgres", "nop":
	default:
		return errors.NewAppErrorWithDetails(errors.ErrCodeConfigInvalid,
			"unknown store backend", c.Store.Backend, nil)
	}
	if c.Store.Backend == "postgres" && c.Store.Postgres.DSN == "" {
		return errors.NewAppError(errors.ErrCodeConfigInvalid,
			"postgres backend requires a dsn", nil)
	}
	if c.API.Enabled && c.API.Addr == "" {
		return errors.NewAppError(errors.ErrCodeConfigInvalid,
			"api enabled without a listen address", nil)
	}
	return nil
}
