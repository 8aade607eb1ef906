// Package config loads and validates keeper configuration. The core
// assumes configuration reaching it is already validated and typed.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// GasConfig is the per-chain gas policy. It is opaque to this core and
// passed through to the submission pipeline.
type GasConfig struct {
	RecommendedGasPriceMultiplier float64 `yaml:"recommendedGasPriceMultiplier"`
	SanitizationSamplingWindow    int64   `yaml:"sanitizationSamplingWindow"`
	SanitizationPercentile        int     `yaml:"sanitizationPercentile"`
}

// ChainConfig configures one monitored chain.
type ChainConfig struct {
	RegistryAddress       string            `yaml:"registryAddress"`
	BatchSize             uint64            `yaml:"batchSize"`
	UpdateIntervalSeconds int64             `yaml:"updateInterval"`
	Providers             map[string]string `yaml:"providers"` // name -> RPC URL
	Gas                   GasConfig         `yaml:"gas"`
}

// UpdateInterval returns the chain's update interval as a duration.
func (c ChainConfig) UpdateInterval() time.Duration {
	return time.Duration(c.UpdateIntervalSeconds) * time.Second
}

// Config is the full keeper configuration.
type Config struct {
	Logging                       LoggingConfig          `yaml:"logging"`
	FetchIntervalSeconds          int64                  `yaml:"fetchInterval"`
	DeviationThresholdCoefficient int64                  `yaml:"deviationThresholdCoefficient"`
	StatusListenAddress           string                 `yaml:"statusListenAddress"`
	StatusReportSchedule          string                 `yaml:"statusReportSchedule"`
	Chains                        map[string]ChainConfig `yaml:"chains"`
}

// FetchInterval returns the signed-data fetch interval as a duration.
func (c *Config) FetchInterval() time.Duration {
	return time.Duration(c.FetchIntervalSeconds) * time.Second
}

type envOverrides struct {
	ConfigPath string `env:"KEEPER_CONFIG,default=config/keeper.yaml"`
	LogLevel   string `env:"KEEPER_LOG_LEVEL,default="`
	StatusAddr string `env:"KEEPER_STATUS_ADDR,default="`
}

// Default returns the built-in defaults applied before the file is read.
func Default() *Config {
	return &Config{
		Logging:                       LoggingConfig{Level: "info", Format: "text", Output: "stdout"},
		FetchIntervalSeconds:          10,
		DeviationThresholdCoefficient: 1,
		StatusListenAddress:           ":9090",
		StatusReportSchedule:          "@every 1m",
		Chains:                        map[string]ChainConfig{},
	}
}

// Load reads configuration from the path in KEEPER_CONFIG (default
// config/keeper.yaml), applying .env bootstrap and environment overrides.
func Load() (*Config, error) {
	// Missing .env files are fine; explicit env wins anyway.
	_ = godotenv.Load()

	var env envOverrides
	if err := envdecode.Decode(&env); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}

	cfg, err := LoadFromPath(env.ConfigPath)
	if err != nil {
		return nil, err
	}

	if env.LogLevel != "" {
		cfg.Logging.Level = env.LogLevel
	}
	if env.StatusAddr != "" {
		cfg.StatusListenAddress = env.StatusAddr
	}
	return cfg, nil
}

// LoadFromPath reads and validates configuration from a specific file.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every field the core relies on.
func (c *Config) Validate() error {
	if c.FetchIntervalSeconds <= 0 {
		return fmt.Errorf("fetchInterval must be positive")
	}
	if c.DeviationThresholdCoefficient < 1 {
		return fmt.Errorf("deviationThresholdCoefficient must be at least 1")
	}
	if len(c.Chains) == 0 {
		return fmt.Errorf("at least one chain is required")
	}

	for chainID, chain := range c.Chains {
		if strings.TrimSpace(chain.RegistryAddress) == "" {
			return fmt.Errorf("chain %s: registryAddress is required", chainID)
		}
		if chain.BatchSize == 0 {
			return fmt.Errorf("chain %s: batchSize must be positive", chainID)
		}
		if chain.UpdateIntervalSeconds <= 0 {
			return fmt.Errorf("chain %s: updateInterval must be positive", chainID)
		}
		if len(chain.Providers) == 0 {
			return fmt.Errorf("chain %s: at least one provider is required", chainID)
		}
		for name, url := range chain.Providers {
			if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
				return fmt.Errorf("chain %s: provider %s URL must be http(s)", chainID, name)
			}
		}
	}
	return nil
}
