// Copyright (C) 2026 Shop Compliance Engine Contributors
// Licensed under the GNU Affero General Public License v3.0.
// See the LICENSE.txt file for the full license text.

// Package config loads the engine's tunables from a YAML file, applies
// environment variable overrides on top, and can watch the file for edits so
// operators can adjust thresholds without a restart.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shopcompliance/engine/internal/compliance"
)

// Duration wraps time.Duration so the config file can use Go duration
// strings ("10m", "24h") instead of raw nanosecond integers.
type Duration time.Duration

// UnmarshalYAML accepts a Go duration string ("10m", "24h").
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration the same way it is parsed.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// ProviderConfig names one LLM provider entry and its quota caps. API
// credentials are never read from this file; each provider client reads its
// own key from the environment.
type ProviderConfig struct {
	ID      string `yaml:"id"`
	Primary bool   `yaml:"primary"`

	DailyRequests  int64 `yaml:"daily_requests"`
	DailyTokens    int64 `yaml:"daily_tokens"`
	HourlyRequests int64 `yaml:"hourly_requests"`
	HourlyTokens   int64 `yaml:"hourly_tokens"`
}

// Config is the on-disk shape of the engine's tunable configuration. Every
// field corresponds to a row in the configuration table: pipeline
// thresholds, TTLs, quota caps, and worker pool sizing.
type Config struct {
	HTTPPort int    `yaml:"http_port"`
	DBPath   string `yaml:"db_path"`

	RegenerationThreshold float64 `yaml:"regeneration_threshold"`
	UncertaintyLow        float64 `yaml:"uncertainty_low"`
	UncertaintyHigh       float64 `yaml:"uncertainty_high"`

	IdempotencyTTL    Duration `yaml:"idempotency_ttl"`
	DegradationTTL    Duration `yaml:"degradation_ttl"`
	BlacklistDuration Duration `yaml:"blacklist_duration"`

	Workers       int      `yaml:"workers"`
	SoftTimeLimit Duration `yaml:"soft_time_limit"`
	HardTimeLimit Duration `yaml:"hard_time_limit"`
	MaxRetries    int      `yaml:"max_retries"`
	RetryBackoff  Duration `yaml:"retry_backoff"`

	ReaperInterval Duration `yaml:"reaper_interval"`

	ForceNewPerHourPerOrigin float64 `yaml:"force_new_per_hour_per_origin"`

	OTelEndpoint string `yaml:"otel_endpoint"`

	Providers []ProviderConfig `yaml:"providers"`
}

// Default returns the documented defaults for every threshold, with a
// single OpenAI provider registered as primary.
func Default() Config {
	sup := compliance.DefaultSupervisorConfig()
	return Config{
		HTTPPort:                 8080,
		DBPath:                   "./data/compliance.db",
		RegenerationThreshold:    compliance.DefaultRegenerationThreshold,
		UncertaintyLow:           0.30,
		UncertaintyHigh:          0.70,
		IdempotencyTTL:           Duration(compliance.DefaultIdempotencyTTL),
		DegradationTTL:           Duration(compliance.DefaultDegradationTTL),
		BlacklistDuration:        Duration(compliance.DefaultBlacklistDuration),
		Workers:                  sup.Workers,
		SoftTimeLimit:            Duration(sup.SoftTimeLimit),
		HardTimeLimit:            Duration(sup.HardTimeLimit),
		MaxRetries:               sup.MaxRetries,
		RetryBackoff:             Duration(sup.RetryBackoff),
		ReaperInterval:           Duration(10 * time.Minute),
		ForceNewPerHourPerOrigin: 3,
		Providers: []ProviderConfig{
			{ID: "openai", Primary: true},
		},
	}
}

// Load reads path as YAML into Default()'s baseline, then applies
// environment overrides. A missing file is not an error: the defaults (with
// env overrides) are returned as-is, matching first-run behavior.
func Load(path string) (Config, error) {
	cfg := Default()
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("COMPLIANCE_HTTP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HTTPPort = n
		}
	}
	if v := os.Getenv("COMPLIANCE_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("COMPLIANCE_REGENERATION_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RegenerationThreshold = f
		}
	}
	if v := os.Getenv("COMPLIANCE_OTEL_ENDPOINT"); v != "" {
		cfg.OTelEndpoint = v
	}
	if v := os.Getenv("COMPLIANCE_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Workers = n
		}
	}
}

// ToEngineConfig builds a compliance.EngineConfig from cfg, leaving
// cfg.Providers' LLMCaller wiring to the caller: the config package knows
// provider IDs and caps, not how to construct an authenticated client for
// each.
func ToEngineConfig(cfg Config, callers map[string]compliance.LLMCaller) (compliance.EngineConfig, error) {
	ec := compliance.DefaultEngineConfig()
	ec.DBPath = cfg.DBPath
	ec.RegenerationThreshold = cfg.RegenerationThreshold
	ec.UncertaintyLow = cfg.UncertaintyLow
	ec.UncertaintyHigh = cfg.UncertaintyHigh
	ec.IdempotencyTTL = time.Duration(cfg.IdempotencyTTL)
	ec.DegradationTTL = time.Duration(cfg.DegradationTTL)
	ec.BlacklistDuration = time.Duration(cfg.BlacklistDuration)
	ec.ReaperInterval = time.Duration(cfg.ReaperInterval)
	ec.Supervisor.Workers = cfg.Workers
	ec.Supervisor.SoftTimeLimit = time.Duration(cfg.SoftTimeLimit)
	ec.Supervisor.HardTimeLimit = time.Duration(cfg.HardTimeLimit)
	ec.Supervisor.MaxRetries = cfg.MaxRetries
	ec.Supervisor.RetryBackoff = time.Duration(cfg.RetryBackoff)

	ec.ProviderCaps = make(map[string]compliance.ProviderCaps, len(cfg.Providers))
	for _, p := range cfg.Providers {
		caller, ok := callers[p.ID]
		if !ok {
			return compliance.EngineConfig{}, fmt.Errorf("no LLM client constructed for configured provider %q", p.ID)
		}
		ec.Providers = append(ec.Providers, compliance.ProviderSpec{ID: p.ID, Caller: caller, Primary: p.Primary})
		if p.DailyRequests == 0 && p.DailyTokens == 0 && p.HourlyRequests == 0 && p.HourlyTokens == 0 {
			ec.ProviderCaps[p.ID] = compliance.DefaultProviderCaps()
			continue
		}
		ec.ProviderCaps[p.ID] = compliance.ProviderCaps{
			DailyRequests:  p.DailyRequests,
			DailyTokens:    p.DailyTokens,
			HourlyRequests: p.HourlyRequests,
			HourlyTokens:   p.HourlyTokens,
		}
	}
	return ec, nil
}
