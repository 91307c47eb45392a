// Package daemon manages the Lockup daemon lifecycle and configuration.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// Config holds all daemon configuration.
type Config struct {
	API       APIConfig       `toml:"api"`
	Sweeps    SweepConfig     `toml:"sweeps"`
	Economy   EconomyConfig   `toml:"economy"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Host string `toml:"host" env:"LOCKUP_API_HOST"`
	Port int    `toml:"port" env:"LOCKUP_API_PORT"`
}

// SweepConfig controls the periodic maintenance intervals, in seconds.
type SweepConfig struct {
	RewardInterval int `toml:"reward_interval" env:"LOCKUP_SWEEP_REWARD"`
	VoteInterval   int `toml:"vote_interval" env:"LOCKUP_SWEEP_VOTE"`
	PinInterval    int `toml:"pin_interval" env:"LOCKUP_SWEEP_PIN"`
	BoardInterval  int `toml:"board_interval" env:"LOCKUP_SWEEP_BOARD"`
}

// EconomyConfig controls the fixed coin costs.
type EconomyConfig struct {
	FreezeFee   int64 `toml:"freeze_fee" env:"LOCKUP_FREEZE_FEE"`
	UnfreezeFee int64 `toml:"unfreeze_fee" env:"LOCKUP_UNFREEZE_FEE"`
}

// TelemetryConfig controls observability.
type TelemetryConfig struct {
	Prometheus bool `toml:"prometheus" env:"LOCKUP_PROMETHEUS"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8090,
		},
		Sweeps: SweepConfig{
			RewardInterval: 300,
			VoteInterval:   60,
			PinInterval:    60,
			BoardInterval:  300,
		},
		Economy: EconomyConfig{
			FreezeFee:   10,
			UnfreezeFee: 5,
		},
		Telemetry: TelemetryConfig{
			Prometheus: true,
		},
	}
}

// LoadConfig reads ~/.lockup/config.toml over the defaults, then applies
// LOCKUP_* environment overrides on top.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	path := filepath.Join(lockupHome(), "config.toml")

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env overrides: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes the config to ~/.lockup/config.toml.
func SaveConfig(cfg Config) error {
	path := filepath.Join(lockupHome(), "config.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// lockupHome returns the Lockup data directory.
func lockupHome() string {
	if env := os.Getenv("LOCKUP_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".lockup")
}

// Home is exported for use by other packages.
func Home() string {
	return lockupHome()
}
