// Package config loads and validates the minerwatch configuration from a
// YAML file, environment variables and built-in defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the minerwatch pipeline.
type Config struct {
	Telemetry struct {
		// EvePath is the signature engine's EVE log file.
		EvePath string `mapstructure:"eve_path"`
		// MaxEvents caps how many recent events one analysis pass reads.
		MaxEvents int `mapstructure:"max_events"`
		// Window is the trailing time window for recent-event reads.
		Window time.Duration `mapstructure:"window"`
	} `mapstructure:"telemetry"`

	Rules struct {
		// EngineFile is the rule file the signature engine loads.
		EngineFile string `mapstructure:"engine_file"`
		// BackupFile receives a verbatim timestamped copy of every batch.
		BackupFile string `mapstructure:"backup_file"`
		// BaseSID is the starting SID for generated rules.
		BaseSID int `mapstructure:"base_sid"`
		// MaxPerPass caps how many rules one analysis pass may emit.
		MaxPerPass int `mapstructure:"max_per_pass"`
	} `mapstructure:"rules"`

	Coverage struct {
		// Window is how far back to look for existing engine alerts.
		Window time.Duration `mapstructure:"window"`
	} `mapstructure:"coverage"`

	Backend struct {
		URL       string        `mapstructure:"url"`
		Token     string        `mapstructure:"token"`
		Timeout   time.Duration `mapstructure:"timeout"`
		RateLimit float64       `mapstructure:"rate_limit"` // requests per second
	} `mapstructure:"backend"`

	Pipeline struct {
		Interval time.Duration `mapstructure:"interval"`
		// SyntheticFallback enables fabricating events from classifier
		// metrics when the telemetry source is empty.
		SyntheticFallback bool `mapstructure:"synthetic_fallback"`
	} `mapstructure:"pipeline"`

	Classifier struct {
		// ModelPath points at a JSON logistic model file. Empty uses the
		// built-in weights.
		ModelPath string `mapstructure:"model_path"`
		// Threshold is the probability above which prediction flips to 1.
		Threshold float64 `mapstructure:"threshold"`
	} `mapstructure:"classifier"`

	Indicators struct {
		// File optionally overrides the built-in indicator sets.
		File string `mapstructure:"file"`
	} `mapstructure:"indicators"`

	Cache struct {
		// Enabled turns on cross-cycle pattern suppression. Off by
		// default: the analyzer then deduplicates per pass only.
		Enabled bool          `mapstructure:"enabled"`
		TTL     time.Duration `mapstructure:"ttl"`
		Size    int           `mapstructure:"size"`
		Redis   struct {
			// Addr selects the Redis cache backend when non-empty;
			// otherwise the in-memory cache is used.
			Addr     string `mapstructure:"addr"`
			Password string `mapstructure:"password"`
			DB       int    `mapstructure:"db"`
		} `mapstructure:"redis"`
	} `mapstructure:"cache"`

	Archive struct {
		Enabled bool   `mapstructure:"enabled"`
		Path    string `mapstructure:"path"`
	} `mapstructure:"archive"`

	Metrics struct {
		// Addr exposes /metrics when non-empty, e.g. ":9090".
		Addr string `mapstructure:"addr"`
	} `mapstructure:"metrics"`
}

// LoadConfig reads configuration from config.yaml (working directory or
// ./config), applies MINERWATCH_* environment overrides and validates the
// result. A missing config file is not an error; defaults apply.
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	setDefaults()

	viper.SetEnvPrefix("MINERWATCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// Config file not found, will use defaults and env vars
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("telemetry.eve_path", "/var/log/suricata/eve.json")
	viper.SetDefault("telemetry.max_events", 500)
	viper.SetDefault("telemetry.window", 10*time.Minute)

	viper.SetDefault("rules.engine_file", "/etc/suricata/rules/generated.rules")
	viper.SetDefault("rules.backup_file", "rules/custom_rules.rules")
	viper.SetDefault("rules.base_sid", 2000000)
	viper.SetDefault("rules.max_per_pass", 10)

	viper.SetDefault("coverage.window", 120*time.Second)

	viper.SetDefault("backend.url", "http://localhost:8080")
	viper.SetDefault("backend.timeout", 10*time.Second)
	viper.SetDefault("backend.rate_limit", 5.0)

	viper.SetDefault("pipeline.interval", 10*time.Second)
	viper.SetDefault("pipeline.synthetic_fallback", true)

	viper.SetDefault("classifier.threshold", 0.5)

	viper.SetDefault("cache.enabled", false)
	viper.SetDefault("cache.ttl", 15*time.Minute)
	viper.SetDefault("cache.size", 4096)

	viper.SetDefault("archive.enabled", true)
	viper.SetDefault("archive.path", "data/minerwatch.db")
}

// validate rejects configurations the pipeline cannot run with at all.
// Degradable settings (missing backend URL, absent model file) are handled
// per cycle with warnings instead.
func validate(cfg *Config) error {
	if cfg.Telemetry.EvePath == "" {
		return fmt.Errorf("telemetry.eve_path must not be empty")
	}
	if cfg.Rules.BaseSID <= 0 {
		return fmt.Errorf("rules.base_sid must be positive, got %d", cfg.Rules.BaseSID)
	}
	if cfg.Rules.MaxPerPass <= 0 {
		return fmt.Errorf("rules.max_per_pass must be positive, got %d", cfg.Rules.MaxPerPass)
	}
	if cfg.Pipeline.Interval <= 0 {
		return fmt.Errorf("pipeline.interval must be positive, got %s", cfg.Pipeline.Interval)
	}
	if cfg.Classifier.Threshold < 0 || cfg.Classifier.Threshold > 1 {
		return fmt.Errorf("classifier.threshold must be in [0,1], got %f", cfg.Classifier.Threshold)
	}
	if cfg.Backend.RateLimit <= 0 {
		return fmt.Errorf("backend.rate_limit must be positive, got %f", cfg.Backend.RateLimit)
	}
	return nil
}
