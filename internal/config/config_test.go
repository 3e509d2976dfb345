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

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	hiveerrors "github.com/hivetechs/consensus/pkg/errors"
	"github.com/hivetechs/consensus/pkg/profile"
)

// isolate points config lookups at an empty directory and clears HIVE_* overrides.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("XDG_DATA_HOME", dir)
	for _, key := range []string{
		"HIVE_CONFIG", "HIVE_GATEWAY_URL", "HIVE_PROFILE", "HIVE_LOG_LEVEL",
		"HIVE_LOG_FORMAT", "HIVE_LOG_SOURCE", "HIVE_STAGE_TIMEOUT",
		"HIVE_MAX_CONCURRENT_RUNS", "HIVE_DAILY_BUDGET", "HIVE_MONTHLY_BUDGET",
		"HIVE_DB_PATH", "HIVE_SERVER_ADDR", "OTEL_EXPORTER_OTLP_ENDPOINT",
	} {
		t.Setenv(key, "")
	}
	return dir
}

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Gateway.BaseURL != "https://openrouter.ai/api/v1" {
		t.Errorf("unexpected base url %q", cfg.Gateway.BaseURL)
	}
	if cfg.DefaultProfile != "balanced" {
		t.Errorf("expected default profile balanced, got %q", cfg.DefaultProfile)
	}
	if cfg.Retry.MaxAttempts != 3 || cfg.Retry.BaseDelay != 500*time.Millisecond || cfg.Retry.MaxDelay != 8*time.Second {
		t.Errorf("unexpected retry defaults %+v", cfg.Retry)
	}
	if cfg.Budget.AlertThreshold != 0.8 {
		t.Errorf("expected alert threshold 0.8, got %v", cfg.Budget.AlertThreshold)
	}
	if cfg.Timeouts.Stage != 2*time.Minute {
		t.Errorf("expected stage timeout 2m, got %v", cfg.Timeouts.Stage)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestDefaultProfilesAreValid(t *testing.T) {
	set, err := profile.NewSet(DefaultProfiles())
	if err != nil {
		t.Fatalf("default profiles invalid: %v", err)
	}
	for _, name := range []string{"balanced", "speed", "quality", "budget"} {
		if _, ok := set.Get(name); !ok {
			t.Errorf("missing default profile %q", name)
		}
	}
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Profiles) != len(DefaultProfiles()) {
		t.Errorf("expected default profiles, got %d", len(cfg.Profiles))
	}
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	dir := isolate(t)

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	var cfgErr *hiveerrors.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if cfgErr.Key != "config_file" {
		t.Errorf("expected key config_file, got %q", cfgErr.Key)
	}
}

func TestLoad_FileReplacesProfiles(t *testing.T) {
	dir := isolate(t)
	path := writeConfig(t, dir, `
default_profile: team
profiles:
  team:
    strategy: quality-first
    models:
      generator: openai/gpt-4o
      refiner: anthropic/claude-3.5-sonnet
      validator: google/gemini-pro-1.5
      curator: openai/gpt-4o
retry:
  max_attempts: 5
timeouts:
  stage: 45s
budget:
  daily_limit: 2.5
  enforce: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Profiles) != 1 {
		t.Fatalf("expected file profiles to replace defaults, got %d", len(cfg.Profiles))
	}
	if cfg.Profiles["team"].Strategy != profile.StrategyQualityFirst {
		t.Errorf("unexpected strategy %q", cfg.Profiles["team"].Strategy)
	}
	if cfg.Retry.MaxAttempts != 5 {
		t.Errorf("expected 5 attempts, got %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.BaseDelay != 500*time.Millisecond {
		t.Errorf("unset retry fields should keep defaults, got %v", cfg.Retry.BaseDelay)
	}
	if cfg.Timeouts.Stage != 45*time.Second {
		t.Errorf("expected 45s stage timeout, got %v", cfg.Timeouts.Stage)
	}
	if !cfg.Budget.Enforce || cfg.Budget.DailyLimit != 2.5 {
		t.Errorf("unexpected budget %+v", cfg.Budget)
	}
}

func TestLoad_HiveConfigEnv(t *testing.T) {
	dir := isolate(t)
	path := writeConfig(t, dir, "log:\n  level: debug\n")
	t.Setenv("HIVE_CONFIG", path)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected debug from HIVE_CONFIG file, got %q", cfg.Log.Level)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := isolate(t)
	path := writeConfig(t, dir, "log:\n  level: debug\n")

	t.Setenv("HIVE_GATEWAY_URL", "http://localhost:9999/v1")
	t.Setenv("HIVE_LOG_LEVEL", "WARN")
	t.Setenv("HIVE_PROFILE", "speed")
	t.Setenv("HIVE_STAGE_TIMEOUT", "30s")
	t.Setenv("HIVE_DAILY_BUDGET", "1.25")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Gateway.BaseURL != "http://localhost:9999/v1" {
		t.Errorf("HIVE_GATEWAY_URL not applied: %q", cfg.Gateway.BaseURL)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("env should override file, got %q", cfg.Log.Level)
	}
	if cfg.DefaultProfile != "speed" {
		t.Errorf("HIVE_PROFILE not applied: %q", cfg.DefaultProfile)
	}
	if cfg.Timeouts.Stage != 30*time.Second {
		t.Errorf("HIVE_STAGE_TIMEOUT not applied: %v", cfg.Timeouts.Stage)
	}
	if cfg.Budget.DailyLimit != 1.25 {
		t.Errorf("HIVE_DAILY_BUDGET not applied: %v", cfg.Budget.DailyLimit)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "bad gateway url",
			mutate:  func(c *Config) { c.Gateway.BaseURL = "openrouter.ai" },
			wantErr: "gateway.base_url",
		},
		{
			name:    "unknown default profile",
			mutate:  func(c *Config) { c.DefaultProfile = "missing" },
			wantErr: "default_profile",
		},
		{
			name: "invalid profile strategy",
			mutate: func(c *Config) {
				p := c.Profiles["balanced"]
				p.Strategy = "fastest"
				c.Profiles["balanced"] = p
			},
			wantErr: "profiles",
		},
		{
			name:    "zero retry attempts",
			mutate:  func(c *Config) { c.Retry.MaxAttempts = 0 },
			wantErr: "retry.max_attempts",
		},
		{
			name:    "negative budget",
			mutate:  func(c *Config) { c.Budget.DailyLimit = -1 },
			wantErr: "budget limits",
		},
		{
			name:    "unknown storage backend",
			mutate:  func(c *Config) { c.Storage.Backend = "postgres" },
			wantErr: "storage.backend",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Log.Level = "verbose" },
			wantErr: "log.level",
		},
		{
			name: "unknown trace exporter",
			mutate: func(c *Config) {
				c.Observability.Tracing.Enabled = true
				c.Observability.Tracing.Exporter = "zipkin"
			},
			wantErr: "observability.tracing.exporter",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("profiles: [unterminated"))
	var cfgErr *hiveerrors.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestConversions(t *testing.T) {
	cfg := Default()

	policy := cfg.Retry.Policy()
	if policy.Attempts() != 3 {
		t.Errorf("expected 3 attempts, got %d", policy.Attempts())
	}

	breaker := cfg.Breaker.LLM()
	if breaker.FailureThreshold != 5 || breaker.Cooldown != 30*time.Second {
		t.Errorf("unexpected breaker config %+v", breaker)
	}

	logCfg := cfg.Log.Logging()
	if logCfg.Level != "info" || string(logCfg.Format) != "text" {
		t.Errorf("unexpected log config %+v", logCfg)
	}
}

func TestDatabasePath(t *testing.T) {
	dir := isolate(t)

	cfg := Default()
	path, err := cfg.DatabasePath()
	if err != nil {
		t.Fatalf("DatabasePath() error = %v", err)
	}
	if path != filepath.Join(dir, "hive", "hive.db") {
		t.Errorf("unexpected path %q", path)
	}

	cfg.Storage.Path = "/tmp/custom.db"
	if path, _ := cfg.DatabasePath(); path != "/tmp/custom.db" {
		t.Errorf("explicit path ignored: %q", path)
	}
}

func TestConfigPath(t *testing.T) {
	dir := isolate(t)

	path, err := ConfigPath()
	if err != nil {
		t.Fatalf("ConfigPath() error = %v", err)
	}
	if path != filepath.Join(dir, "hive", "config.yaml") {
		t.Errorf("unexpected path %q", path)
	}
}
