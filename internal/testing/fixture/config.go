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

package fixture

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"
)

// Isolate points every hive path and credential variable at a temporary
// directory so tests never read the developer's config or keychain entry.
// It returns the directory.
func Isolate(t testing.TB) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("XDG_DATA_HOME", dir)
	t.Setenv("HOME", dir)
	for _, key := range []string{
		"HIVE_CONFIG", "HIVE_API_KEY", "OPENROUTER_API_KEY", "HIVE_SECRET_GATEWAY_API_KEY",
		"HIVE_GATEWAY_URL", "HIVE_PROFILE", "HIVE_LOG_LEVEL", "HIVE_LOG_FORMAT", "HIVE_LOG_SOURCE",
		"HIVE_DAILY_BUDGET", "HIVE_MONTHLY_BUDGET", "HIVE_DB_PATH", "HIVE_SERVER_ADDR",
	} {
		t.Setenv(key, "")
	}
	return dir
}

// Base returns settings suited to tests: in-memory storage, buffered calls
// and no telemetry exporters.
func Base() map[string]any {
	return map[string]any{
		"storage": map[string]any{"backend": "memory"},
		"engine":  map[string]any{"streaming": false},
		"log":     map[string]any{"level": "error"},
		"observability": map[string]any{
			"metrics": map[string]any{"enabled": false},
			"tracing": map[string]any{"enabled": false},
		},
	}
}

// WriteConfig isolates the environment and writes Base merged with
// overrides to a config file, returning its path.
func WriteConfig(t testing.TB, overrides map[string]any) string {
	t.Helper()
	dir := Isolate(t)

	cfg := Merge(Base(), overrides)
	data, err := yaml.Marshal(cfg)
	if err != nil {
		t.Fatalf("failed to marshal config fixture: %v", err)
	}
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("failed to write config fixture: %v", err)
	}
	return path
}

// Merge deep-merges src into dst and returns dst. Nested maps are merged,
// everything else in src replaces the value in dst.
func Merge(dst, src map[string]any) map[string]any {
	for k, v := range src {
		sv, ok := v.(map[string]any)
		if !ok {
			dst[k] = v
			continue
		}
		dv, ok := dst[k].(map[string]any)
		if !ok {
			dst[k] = sv
			continue
		}
		dst[k] = Merge(dv, sv)
	}
	return dst
}
