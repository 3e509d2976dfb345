// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the hive configuration file. A loaded Config is an
// immutable snapshot: reloads produce a new value rather than mutating the
// one components were built from.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	internallog "github.com/hivetechs/consensus/internal/log"
	hiveerrors "github.com/hivetechs/consensus/pkg/errors"
	"github.com/hivetechs/consensus/pkg/llm"
	"github.com/hivetechs/consensus/pkg/llm/cost"
	"github.com/hivetechs/consensus/pkg/profile"
)

var (
	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("config: invalid configuration")
)

// Config represents the complete hive configuration.
type Config struct {
	Gateway        GatewayConfig              `yaml:"gateway"`
	DefaultProfile string                     `yaml:"default_profile"`
	Profiles       map[string]profile.Profile `yaml:"profiles"`
	Engine         EngineConfig               `yaml:"engine"`
	RateLimits     RateLimitConfig            `yaml:"rate_limits"`
	Breaker        BreakerConfig              `yaml:"breaker"`
	Retry          RetryConfig                `yaml:"retry"`
	Budget         cost.BudgetConfig          `yaml:"budget"`
	Timeouts       TimeoutConfig              `yaml:"timeouts"`
	Performance    PerformanceConfig          `yaml:"performance"`
	Storage        StorageConfig              `yaml:"storage"`
	Log            LogConfig                  `yaml:"log"`
	Observability  ObservabilityConfig        `yaml:"observability"`
	Server         ServerConfig               `yaml:"server"`
}

// GatewayConfig configures the OpenRouter-compatible gateway.
type GatewayConfig struct {
	// BaseURL is the API root, e.g. https://openrouter.ai/api/v1.
	// Environment: HIVE_GATEWAY_URL
	BaseURL string `yaml:"base_url"`

	// APIKey is accepted for completeness but should live in the keychain
	// or HIVE_API_KEY instead of the file.
	APIKey string `yaml:"api_key,omitempty"`

	// Referer and Title are sent as HTTP-Referer and X-Title.
	Referer string `yaml:"referer,omitempty"`
	Title   string `yaml:"title,omitempty"`

	// ProgressInterval throttles StageProgress events while streaming.
	ProgressInterval time.Duration `yaml:"progress_interval,omitempty"`

	// CatalogRefresh is how often the model catalog is refetched. Zero
	// fetches once at startup.
	CatalogRefresh time.Duration `yaml:"catalog_refresh,omitempty"`
}

// EngineConfig tunes run execution.
type EngineConfig struct {
	EventBuffer       int     `yaml:"event_buffer"`
	MaxConcurrentRuns int     `yaml:"max_concurrent_runs"`
	Temperature       float64 `yaml:"temperature"`
	MaxTokens         int     `yaml:"max_tokens"`
	Streaming         bool    `yaml:"streaming"`
	MaxFallbacks      int     `yaml:"max_fallbacks"`
}

// RateLimitConfig holds the default bucket and per-provider overrides.
// Providers are the prefix of a model id ("openai" in "openai/gpt-4o").
type RateLimitConfig struct {
	Default   llm.ProviderLimit            `yaml:"default"`
	Providers map[string]llm.ProviderLimit `yaml:"providers,omitempty"`
}

// BreakerConfig configures the per-provider circuit breaker.
type BreakerConfig struct {
	FailureThreshold   int           `yaml:"failure_threshold"`
	Window             time.Duration `yaml:"window"`
	Cooldown           time.Duration `yaml:"cooldown"`
	CooldownMultiplier float64       `yaml:"cooldown_multiplier"`
	MaxCooldown        time.Duration `yaml:"max_cooldown"`
}

// LLM converts to the breaker's own configuration type.
func (b BreakerConfig) LLM() llm.BreakerConfig {
	return llm.BreakerConfig{
		FailureThreshold:   b.FailureThreshold,
		Window:             b.Window,
		Cooldown:           b.Cooldown,
		CooldownMultiplier: b.CooldownMultiplier,
		MaxCooldown:        b.MaxCooldown,
	}
}

// RetryConfig configures retries against the same model.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	Multiplier  float64       `yaml:"multiplier"`
	Jitter      float64       `yaml:"jitter"`
}

// Policy converts to an llm.RetryPolicy.
func (r RetryConfig) Policy() llm.RetryPolicy {
	return llm.RetryPolicy{
		MaxAttempts: r.MaxAttempts,
		BaseDelay:   r.BaseDelay,
		MaxDelay:    r.MaxDelay,
		Multiplier:  r.Multiplier,
		Jitter:      r.Jitter,
	}
}

// TimeoutConfig bounds network and stage durations.
type TimeoutConfig struct {
	// Stage bounds one stage across retries and fallbacks.
	Stage time.Duration `yaml:"stage"`

	// Request bounds a single HTTP request to the gateway.
	Request time.Duration `yaml:"request"`

	// Shutdown bounds graceful server shutdown and tracker flushes.
	Shutdown time.Duration `yaml:"shutdown"`
}

// PerformanceConfig configures the rolling health window.
type PerformanceConfig struct {
	WindowSize int           `yaml:"window_size"`
	LatencySLA time.Duration `yaml:"latency_sla"`
}

// StorageConfig selects where cost and performance records are kept.
type StorageConfig struct {
	// Backend is "sqlite" or "memory".
	Backend string `yaml:"backend"`

	// Path is the sqlite database file. Empty uses the data directory.
	// Environment: HIVE_DB_PATH
	Path string `yaml:"path,omitempty"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

// Logging returns the equivalent internal/log configuration.
func (l LogConfig) Logging() *internallog.Config {
	cfg := internallog.DefaultConfig()
	cfg.Level = l.Level
	cfg.Format = internallog.Format(l.Format)
	cfg.AddSource = l.AddSource
	return cfg
}

// ObservabilityConfig configures OpenTelemetry metrics and tracing.
type ObservabilityConfig struct {
	ServiceName string        `yaml:"service_name"`
	Metrics     MetricsConfig `yaml:"metrics"`
	Tracing     TracingConfig `yaml:"tracing"`
}

// MetricsConfig configures the prometheus exporter.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// TracingConfig configures span export.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`

	// Exporter is one of stdout, otlp-http, otlp-grpc.
	Exporter string `yaml:"exporter"`

	// Endpoint is the collector address for otlp exporters.
	Endpoint string `yaml:"endpoint,omitempty"`

	Insecure   bool    `yaml:"insecure"`
	SampleRate float64 `yaml:"sample_rate"`
}

// ServerConfig configures hive serve.
type ServerConfig struct {
	// Addr is the listen address. Environment: HIVE_SERVER_ADDR
	Addr string `yaml:"addr"`
}

// Trace exporters.
const (
	ExporterStdout   = "stdout"
	ExporterOTLPHTTP = "otlp-http"
	ExporterOTLPGRPC = "otlp-grpc"
)

// Default returns a configuration with default values.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			BaseURL:          "https://openrouter.ai/api/v1",
			Referer:          "https://hivetechs.io",
			Title:            "Hive.AI Consensus Pipeline",
			ProgressInterval: 100 * time.Millisecond,
		},
		DefaultProfile: "balanced",
		Profiles:       DefaultProfiles(),
		Engine: EngineConfig{
			EventBuffer:       64,
			MaxConcurrentRuns: 8,
			Temperature:       0.7,
			MaxTokens:         4000,
			Streaming:         true,
			MaxFallbacks:      3,
		},
		RateLimits: RateLimitConfig{
			Default: llm.DefaultProviderLimit,
		},
		Breaker: BreakerConfig{
			FailureThreshold:   5,
			Window:             60 * time.Second,
			Cooldown:           30 * time.Second,
			CooldownMultiplier: 2.0,
			MaxCooldown:        10 * time.Minute,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   500 * time.Millisecond,
			MaxDelay:    8 * time.Second,
			Multiplier:  2.0,
			Jitter:      0.2,
		},
		Budget: cost.BudgetConfig{
			AlertThreshold: cost.DefaultAlertThreshold,
		},
		Timeouts: TimeoutConfig{
			Stage:    2 * time.Minute,
			Request:  90 * time.Second,
			Shutdown: 10 * time.Second,
		},
		Performance: PerformanceConfig{
			WindowSize: 100,
			LatencySLA: 30 * time.Second,
		},
		Storage: StorageConfig{
			Backend: "sqlite",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Observability: ObservabilityConfig{
			ServiceName: "hive",
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
			Tracing: TracingConfig{
				Exporter:   ExporterStdout,
				SampleRate: 1.0,
			},
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8765",
		},
	}
}

// DefaultProfiles returns the profiles shipped with hive. Configuration
// files may replace the set entirely.
func DefaultProfiles() map[string]profile.Profile {
	return map[string]profile.Profile{
		"balanced": {
			Description: "General purpose consensus across providers",
			Strategy:    profile.StrategyBalanced,
			Models: profile.StageModels{
				Generator: "anthropic/claude-3.5-sonnet",
				Refiner:   "openai/gpt-4o",
				Validator: "google/gemini-pro-1.5",
				Curator:   "anthropic/claude-3.5-sonnet",
			},
		},
		"speed": {
			Description: "Fast answers from low-latency models",
			Strategy:    profile.StrategyPerformance,
			Models: profile.StageModels{
				Generator: "google/gemini-flash-1.5",
				Refiner:   "meta-llama/llama-3.1-70b-instruct",
				Validator: "openai/gpt-4o-mini",
				Curator:   "anthropic/claude-3-haiku",
			},
		},
		"quality": {
			Description: "Strongest available models at every stage",
			Strategy:    profile.StrategyQualityFirst,
			Models: profile.StageModels{
				Generator: "anthropic/claude-3-opus",
				Refiner:   "openai/gpt-4o",
				Validator: "anthropic/claude-3.5-sonnet",
				Curator:   "openai/gpt-4o",
			},
		},
		"budget": {
			Description:   "Lowest cost models with a per-run ceiling",
			Strategy:      profile.StrategyCostOptimized,
			MaxCostPerRun: 0.05,
			Models: profile.StageModels{
				Generator: "meta-llama/llama-3.1-8b-instruct",
				Refiner:   "google/gemini-flash-1.5",
				Validator: "openai/gpt-4o-mini",
				Curator:   "meta-llama/llama-3.1-70b-instruct",
			},
		},
	}
}

// Load loads configuration from an optional YAML file and environment
// variables. Environment variables take precedence over the file. If
// configPath is empty, HIVE_CONFIG is consulted and then the default path is
// used when it exists.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	path, explicit := ResolvePath(configPath)
	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			if explicit || !errors.Is(err, os.ErrNotExist) {
				return nil, &hiveerrors.ConfigError{
					Key:    "config_file",
					Reason: fmt.Sprintf("failed to load from %s", path),
					Cause:  err,
				}
			}
		}
	}

	cfg.applyDefaults()
	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Parse decodes YAML data on top of the defaults without consulting the
// environment.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := cfg.decode(data); err != nil {
		return nil, &hiveerrors.ConfigError{Key: "config_file", Reason: "invalid YAML", Cause: err}
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ResolvePath returns the file Load reads for configPath and whether the
// caller named it explicitly, either directly or through HIVE_CONFIG.
func ResolvePath(configPath string) (string, bool) {
	if configPath != "" {
		return configPath, true
	}
	if env := os.Getenv("HIVE_CONFIG"); env != "" {
		return env, true
	}
	path, err := ConfigPath()
	if err != nil {
		return "", false
	}
	return path, false
}

// applyDefaults fills in zero values so minimal files work.
func (c *Config) applyDefaults() {
	defaults := Default()

	if c.Gateway.BaseURL == "" {
		c.Gateway.BaseURL = defaults.Gateway.BaseURL
	}
	if c.Gateway.Referer == "" {
		c.Gateway.Referer = defaults.Gateway.Referer
	}
	if c.Gateway.Title == "" {
		c.Gateway.Title = defaults.Gateway.Title
	}
	if c.Gateway.ProgressInterval == 0 {
		c.Gateway.ProgressInterval = defaults.Gateway.ProgressInterval
	}

	if len(c.Profiles) == 0 {
		c.Profiles = defaults.Profiles
	}
	if c.DefaultProfile == "" {
		c.DefaultProfile = defaults.DefaultProfile
	}

	if c.Engine.EventBuffer == 0 {
		c.Engine.EventBuffer = defaults.Engine.EventBuffer
	}
	if c.Engine.MaxConcurrentRuns == 0 {
		c.Engine.MaxConcurrentRuns = defaults.Engine.MaxConcurrentRuns
	}
	if c.Engine.MaxTokens == 0 {
		c.Engine.MaxTokens = defaults.Engine.MaxTokens
	}
	if c.Engine.MaxFallbacks == 0 {
		c.Engine.MaxFallbacks = defaults.Engine.MaxFallbacks
	}

	if c.RateLimits.Default.RequestsPerMinute == 0 {
		c.RateLimits.Default = defaults.RateLimits.Default
	}

	if c.Breaker.FailureThreshold == 0 {
		c.Breaker.FailureThreshold = defaults.Breaker.FailureThreshold
	}
	if c.Breaker.Window == 0 {
		c.Breaker.Window = defaults.Breaker.Window
	}
	if c.Breaker.Cooldown == 0 {
		c.Breaker.Cooldown = defaults.Breaker.Cooldown
	}
	if c.Breaker.CooldownMultiplier == 0 {
		c.Breaker.CooldownMultiplier = defaults.Breaker.CooldownMultiplier
	}
	if c.Breaker.MaxCooldown == 0 {
		c.Breaker.MaxCooldown = defaults.Breaker.MaxCooldown
	}

	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = defaults.Retry.MaxAttempts
	}
	if c.Retry.BaseDelay == 0 {
		c.Retry.BaseDelay = defaults.Retry.BaseDelay
	}
	if c.Retry.MaxDelay == 0 {
		c.Retry.MaxDelay = defaults.Retry.MaxDelay
	}
	if c.Retry.Multiplier == 0 {
		c.Retry.Multiplier = defaults.Retry.Multiplier
	}

	if c.Budget.AlertThreshold == 0 {
		c.Budget.AlertThreshold = defaults.Budget.AlertThreshold
	}

	if c.Timeouts.Stage == 0 {
		c.Timeouts.Stage = defaults.Timeouts.Stage
	}
	if c.Timeouts.Request == 0 {
		c.Timeouts.Request = defaults.Timeouts.Request
	}
	if c.Timeouts.Shutdown == 0 {
		c.Timeouts.Shutdown = defaults.Timeouts.Shutdown
	}

	if c.Performance.WindowSize == 0 {
		c.Performance.WindowSize = defaults.Performance.WindowSize
	}
	if c.Performance.LatencySLA == 0 {
		c.Performance.LatencySLA = defaults.Performance.LatencySLA
	}

	if c.Storage.Backend == "" {
		c.Storage.Backend = defaults.Storage.Backend
	}

	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = defaults.Log.Format
	}

	if c.Observability.ServiceName == "" {
		c.Observability.ServiceName = defaults.Observability.ServiceName
	}
	if c.Observability.Metrics.Path == "" {
		c.Observability.Metrics.Path = defaults.Observability.Metrics.Path
	}
	if c.Observability.Tracing.Exporter == "" {
		c.Observability.Tracing.Exporter = defaults.Observability.Tracing.Exporter
	}
	if c.Observability.Tracing.SampleRate == 0 {
		c.Observability.Tracing.SampleRate = defaults.Observability.Tracing.SampleRate
	}

	if c.Server.Addr == "" {
		c.Server.Addr = defaults.Server.Addr
	}
}

// loadFromFile loads configuration from a YAML file.
func (c *Config) loadFromFile(path string) error {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := c.decode(data); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

// decode unmarshals data onto c. A profiles section replaces the default
// set rather than merging into it.
func (c *Config) decode(data []byte) error {
	var probe struct {
		Profiles map[string]profile.Profile `yaml:"profiles"`
	}
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return err
	}
	if len(probe.Profiles) > 0 {
		c.Profiles = nil
	}
	return yaml.Unmarshal(data, c)
}

// loadFromEnv applies HIVE_* environment overrides.
func (c *Config) loadFromEnv() {
	if val := os.Getenv("HIVE_GATEWAY_URL"); val != "" {
		c.Gateway.BaseURL = val
	}
	if val := os.Getenv("HIVE_PROFILE"); val != "" {
		c.DefaultProfile = val
	}

	if val := os.Getenv("HIVE_LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	}
	if val := os.Getenv("HIVE_LOG_FORMAT"); val != "" {
		c.Log.Format = strings.ToLower(val)
	}
	if val := os.Getenv("HIVE_LOG_SOURCE"); val != "" {
		c.Log.AddSource = val == "1" || strings.ToLower(val) == "true"
	}

	if val := os.Getenv("HIVE_STAGE_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.Timeouts.Stage = d
		}
	}
	if val := os.Getenv("HIVE_MAX_CONCURRENT_RUNS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Engine.MaxConcurrentRuns = n
		}
	}
	if val := os.Getenv("HIVE_DAILY_BUDGET"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			c.Budget.DailyLimit = f
		}
	}
	if val := os.Getenv("HIVE_MONTHLY_BUDGET"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			c.Budget.MonthlyLimit = f
		}
	}

	if val := os.Getenv("HIVE_DB_PATH"); val != "" {
		c.Storage.Path = val
	}
	if val := os.Getenv("HIVE_SERVER_ADDR"); val != "" {
		c.Server.Addr = val
	}
	if val := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); val != "" {
		c.Observability.Tracing.Endpoint = val
	}
}

// Validate checks that the configuration is valid. All problems are
// reported together in one ConfigError.
func (c *Config) Validate() error {
	var errs []string

	if c.Gateway.BaseURL == "" {
		errs = append(errs, "gateway.base_url is required")
	} else if !strings.HasPrefix(c.Gateway.BaseURL, "http://") && !strings.HasPrefix(c.Gateway.BaseURL, "https://") {
		errs = append(errs, fmt.Sprintf("gateway.base_url must be an http(s) URL, got %q", c.Gateway.BaseURL))
	}

	if len(c.Profiles) == 0 {
		errs = append(errs, "profiles must define at least one profile")
	}
	if _, err := profile.NewSet(c.Profiles); err != nil {
		errs = append(errs, fmt.Sprintf("profiles: %v", err))
	}
	if _, ok := c.Profiles[c.DefaultProfile]; !ok && len(c.Profiles) > 0 {
		errs = append(errs, fmt.Sprintf("default_profile %q not found in profiles %v", c.DefaultProfile, profileNames(c.Profiles)))
	}

	if c.Engine.EventBuffer < 0 {
		errs = append(errs, "engine.event_buffer must not be negative")
	}
	if c.Engine.MaxConcurrentRuns < 1 {
		errs = append(errs, fmt.Sprintf("engine.max_concurrent_runs must be at least 1, got %d", c.Engine.MaxConcurrentRuns))
	}
	if c.Engine.Temperature < 0 || c.Engine.Temperature > 2 {
		errs = append(errs, fmt.Sprintf("engine.temperature must be between 0 and 2, got %v", c.Engine.Temperature))
	}

	if c.RateLimits.Default.RequestsPerMinute < 0 {
		errs = append(errs, "rate_limits.default.requests_per_minute must not be negative")
	}
	for name, limit := range c.RateLimits.Providers {
		if limit.RequestsPerMinute < 0 || limit.Burst < 0 {
			errs = append(errs, fmt.Sprintf("rate_limits.providers.%s must not be negative", name))
		}
	}

	if c.Breaker.FailureThreshold < 1 {
		errs = append(errs, "breaker.failure_threshold must be at least 1")
	}
	if c.Breaker.CooldownMultiplier < 1 {
		errs = append(errs, fmt.Sprintf("breaker.cooldown_multiplier must be at least 1, got %v", c.Breaker.CooldownMultiplier))
	}

	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, "retry.max_attempts must be at least 1")
	}
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		errs = append(errs, "retry.max_delay must not be less than retry.base_delay")
	}
	if c.Retry.Jitter < 0 || c.Retry.Jitter > 1 {
		errs = append(errs, fmt.Sprintf("retry.jitter must be between 0 and 1, got %v", c.Retry.Jitter))
	}

	if c.Budget.DailyLimit < 0 || c.Budget.MonthlyLimit < 0 || c.Budget.PerRequestLimit < 0 {
		errs = append(errs, "budget limits must not be negative")
	}
	if c.Budget.AlertThreshold <= 0 || c.Budget.AlertThreshold > 1 {
		errs = append(errs, fmt.Sprintf("budget.alert_threshold must be in (0, 1], got %v", c.Budget.AlertThreshold))
	}

	if c.Timeouts.Stage <= 0 {
		errs = append(errs, fmt.Sprintf("timeouts.stage must be positive, got %v", c.Timeouts.Stage))
	}

	switch c.Storage.Backend {
	case "sqlite", "memory":
	default:
		errs = append(errs, fmt.Sprintf("storage.backend must be one of [sqlite, memory], got %q", c.Storage.Backend))
	}

	if !internallog.ValidLevel(c.Log.Level) {
		errs = append(errs, fmt.Sprintf("log.level must be one of [trace, debug, info, warn, error], got %q", c.Log.Level))
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		errs = append(errs, fmt.Sprintf("log.format must be one of [json, text], got %q", c.Log.Format))
	}

	if c.Observability.Tracing.Enabled {
		switch c.Observability.Tracing.Exporter {
		case ExporterStdout, ExporterOTLPHTTP, ExporterOTLPGRPC:
		default:
			errs = append(errs, fmt.Sprintf("observability.tracing.exporter must be one of [stdout, otlp-http, otlp-grpc], got %q", c.Observability.Tracing.Exporter))
		}
	}
	if r := c.Observability.Tracing.SampleRate; r < 0 || r > 1 {
		errs = append(errs, fmt.Sprintf("observability.tracing.sample_rate must be between 0 and 1, got %v", r))
	}

	if len(errs) > 0 {
		return &hiveerrors.ConfigError{
			Key:    "validation",
			Reason: strings.Join(errs, "; "),
			Cause:  ErrInvalidConfig,
		}
	}
	return nil
}

// ProfileSet builds the validated profile set.
func (c *Config) ProfileSet() (*profile.Set, error) {
	return profile.NewSet(c.Profiles)
}

// DatabasePath returns the sqlite path, defaulting into the data directory.
func (c *Config) DatabasePath() (string, error) {
	if c.Storage.Path != "" {
		return c.Storage.Path, nil
	}
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "hive.db"), nil
}

func profileNames(m map[string]profile.Profile) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
