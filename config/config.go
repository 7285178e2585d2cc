// Package config loads the zipcheck server configuration. Values come
// from, in increasing precedence: built-in defaults, a YAML file, a .env
// file and ZIPCHECK_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	zipcheck "github.com/pola2025/zipcheck-sub000"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ZIPCHECK_"

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// Config is the full server configuration.
type Config struct {
	Server   Server   `yaml:"server"`
	Log      Log      `yaml:"log"`
	Store    Store    `yaml:"store"`
	Provider Provider `yaml:"provider"`
	Engine   Engine   `yaml:"engine"`
	Context  Context  `yaml:"context"`
	Notify   Notify   `yaml:"notify"`
	Sessions Sessions `yaml:"sessions"`
	Cron     Cron     `yaml:"cron"`
}

// Server configures the HTTP listener.
type Server struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Log configures the slog handler.
type Log struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// Store selects the persistence backend.
type Store struct {
	Driver string `yaml:"driver"`
	// DSN is a file path for sqlite, a connection string for postgres and
	// a redis:// URL for redis.
	DSN string `yaml:"dsn"`
}

// Provider configures the OpenAI-compatible text-generation endpoint.
type Provider struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	// RequestsPerSecond limits outbound calls. Zero disables limiting.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// Engine mirrors zipcheck.Config.
type Engine struct {
	Model             string        `yaml:"model"`
	TokenBudget       int           `yaml:"token_budget"`
	USDBudget         float64       `yaml:"usd_budget"`
	MaxOutputTokens   int           `yaml:"max_output_tokens"`
	MaxRetries        int           `yaml:"max_retries"`
	AttemptTimeout    time.Duration `yaml:"attempt_timeout"`
	MaxSteps          int           `yaml:"max_steps"`
	TerminationMarker string        `yaml:"termination_marker"`
	StopSequences     []string      `yaml:"stop_sequences"`
	Temperature       float64       `yaml:"temperature"`
	WarnTokenRatio    float64       `yaml:"warn_token_ratio"`
	WarnCostUSD       float64       `yaml:"warn_cost_usd"`
	JobTimeout        time.Duration `yaml:"job_timeout"`
	StaleJobThreshold time.Duration `yaml:"stale_job_threshold"`
}

// Context configures the supporting-context provider.
type Context struct {
	// PriceBook is a YAML file of reference unit prices. Empty disables
	// market context.
	PriceBook string `yaml:"price_book"`
	// RedisURL enables caching of context summaries.
	RedisURL string        `yaml:"redis_url"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// Notify configures notification sinks. The log sink is always on.
type Notify struct {
	WebhookURL   string   `yaml:"webhook_url"`
	RedisURL     string   `yaml:"redis_url"`
	RedisChannel string   `yaml:"redis_channel"`
	Buffer       int      `yaml:"buffer"`
	Events       []string `yaml:"events"`
}

// Sessions configures draft sessions.
type Sessions struct {
	TTL time.Duration `yaml:"ttl"`
}

// Cron holds the schedules of the maintenance tasks.
type Cron struct {
	SessionSweep   string `yaml:"session_sweep"`
	StaleJobReaper string `yaml:"stale_job_reaper"`
}

// Default returns the built-in configuration.
func Default() Config {
	e := zipcheck.DefaultConfig()
	return Config{
		Server: Server{Addr: ":8080", ShutdownTimeout: 15 * time.Second},
		Log:    Log{Level: "info", Format: "text"},
		Store:  Store{Driver: DriverMemory},
		Provider: Provider{
			BaseURL: "https://api.openai.com/v1",
			Burst:   1,
		},
		Engine: Engine{
			Model:             e.Model,
			TokenBudget:       e.TokenBudget,
			USDBudget:         e.USDBudget,
			MaxOutputTokens:   e.MaxOutputTokens,
			MaxRetries:        e.MaxRetries,
			AttemptTimeout:    e.AttemptTimeout,
			MaxSteps:          e.MaxSteps,
			TerminationMarker: e.TerminationMarker,
			StopSequences:     e.StopSequences,
			Temperature:       e.Temperature,
			WarnTokenRatio:    e.WarnTokenRatio,
			WarnCostUSD:       e.WarnCostUSD,
			JobTimeout:        e.JobTimeout,
			StaleJobThreshold: e.StaleJobThreshold,
		},
		Context:  Context{CacheTTL: time.Hour},
		Notify:   Notify{Buffer: 256},
		Sessions: Sessions{TTL: 30 * time.Minute},
		Cron: Cron{
			SessionSweep:   "@every 1m",
			StaleJobReaper: "@every 5m",
		},
	}
}

// Load reads path (optional), then envFile (optional, missing is fine),
// then the process environment.
func Load(path, envFile string) (Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return cfg, fmt.Errorf("zipcheck/config: open %s: %w", path, err)
		}
		defer f.Close()
		if err := Decode(f, &cfg); err != nil {
			return cfg, fmt.Errorf("zipcheck/config: %s: %w", path, err)
		}
	}

	if envFile != "" {
		// godotenv.Load never overrides variables already set.
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("zipcheck/config: load %s: %w", envFile, err)
		}
	}

	if err := ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Decode strictly decodes YAML from r over cfg. Unknown keys are errors.
func Decode(r io.Reader, cfg *Config) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("decode yaml: %w", err)
	}
	return nil
}

// ApplyEnv overlays ZIPCHECK_* variables found through lookup.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	var errs []error

	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	integer := func(name string, dst *int) {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	float := func(name string, dst *float64) {
		if v, ok := lookup(EnvPrefix + name); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = f
		}
	}
	duration := func(name string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + name); ok {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = d
		}
	}

	str("ADDR", &cfg.Server.Addr)
	duration("SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)
	str("STORE_DRIVER", &cfg.Store.Driver)
	str("STORE_DSN", &cfg.Store.DSN)
	str("PROVIDER_BASE_URL", &cfg.Provider.BaseURL)
	str("PROVIDER_API_KEY", &cfg.Provider.APIKey)
	float("PROVIDER_RPS", &cfg.Provider.RequestsPerSecond)
	integer("PROVIDER_BURST", &cfg.Provider.Burst)
	str("MODEL", &cfg.Engine.Model)
	integer("TOKEN_BUDGET", &cfg.Engine.TokenBudget)
	float("USD_BUDGET", &cfg.Engine.USDBudget)
	integer("MAX_OUTPUT_TOKENS", &cfg.Engine.MaxOutputTokens)
	integer("MAX_RETRIES", &cfg.Engine.MaxRetries)
	duration("ATTEMPT_TIMEOUT", &cfg.Engine.AttemptTimeout)
	integer("MAX_STEPS", &cfg.Engine.MaxSteps)
	duration("JOB_TIMEOUT", &cfg.Engine.JobTimeout)
	duration("STALE_JOB_THRESHOLD", &cfg.Engine.StaleJobThreshold)
	str("PRICE_BOOK", &cfg.Context.PriceBook)
	str("CONTEXT_REDIS_URL", &cfg.Context.RedisURL)
	duration("CONTEXT_CACHE_TTL", &cfg.Context.CacheTTL)
	str("WEBHOOK_URL", &cfg.Notify.WebhookURL)
	str("NOTIFY_REDIS_URL", &cfg.Notify.RedisURL)
	str("NOTIFY_REDIS_CHANNEL", &cfg.Notify.RedisChannel)
	duration("SESSION_TTL", &cfg.Sessions.TTL)

	// The conventional variable name, when no explicit key was given.
	if cfg.Provider.APIKey == "" {
		if v, ok := lookup("OPENAI_API_KEY"); ok {
			cfg.Provider.APIKey = v
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("zipcheck/config: environment: %w", errors.Join(errs...))
	}
	return nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	var problems []string

	switch c.Store.Driver {
	case DriverMemory:
	case DriverSQLite, DriverPostgres, DriverRedis:
		if c.Store.DSN == "" {
			problems = append(problems, fmt.Sprintf("store.dsn is required for driver %q", c.Store.Driver))
		}
	default:
		problems = append(problems, fmt.Sprintf("store.driver %q is not one of memory, sqlite, postgres, redis", c.Store.Driver))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("log.format %q is not text or json", c.Log.Format))
	}
	if c.Engine.Model == "" {
		problems = append(problems, "engine.model is required")
	}
	if c.Engine.TokenBudget <= 0 {
		problems = append(problems, "engine.token_budget must be positive")
	}
	if c.Engine.USDBudget <= 0 {
		problems = append(problems, "engine.usd_budget must be positive")
	}
	if c.Engine.MaxRetries < 0 {
		problems = append(problems, "engine.max_retries must not be negative")
	}
	if c.Provider.RequestsPerSecond < 0 {
		problems = append(problems, "provider.requests_per_second must not be negative")
	}

	if len(problems) > 0 {
		return fmt.Errorf("zipcheck/config: invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// EngineConfig converts the engine section to a zipcheck.Config.
func (c Config) EngineConfig() zipcheck.Config {
	e := c.Engine
	return zipcheck.Config{
		Model:             e.Model,
		TokenBudget:       e.TokenBudget,
		USDBudget:         e.USDBudget,
		MaxOutputTokens:   e.MaxOutputTokens,
		MaxRetries:        e.MaxRetries,
		AttemptTimeout:    e.AttemptTimeout,
		MaxSteps:          e.MaxSteps,
		TerminationMarker: e.TerminationMarker,
		StopSequences:     e.StopSequences,
		Temperature:       e.Temperature,
		WarnTokenRatio:    e.WarnTokenRatio,
		WarnCostUSD:       e.WarnCostUSD,
		JobTimeout:        e.JobTimeout,
		StaleJobThreshold: e.StaleJobThreshold,
	}
}
