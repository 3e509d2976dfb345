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
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hivetechs/consensus/internal/commands/shared"
	"github.com/hivetechs/consensus/internal/secrets"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name         string
		overrides    map[string]any
		apiKey       string
		args         []string
		wantErr      bool
		wantWarnings []string
	}{
		{
			name:      "valid with key and budget",
			overrides: map[string]any{"budget": map[string]any{"daily_limit": 5.0}},
			apiKey:    "sk-or-test-key",
		},
		{
			name:         "missing key warns",
			overrides:    map[string]any{"budget": map[string]any{"daily_limit": 5.0}},
			wantWarnings: []string{"No gateway API key"},
		},
		{
			name:         "strict fails on warnings",
			apiKey:       "sk-or-test-key",
			args:         []string{"--strict"},
			wantErr:      true,
			wantWarnings: []string{"spend is unlimited"},
		},
		{
			name:      "unknown storage backend",
			overrides: map[string]any{"storage": map[string]any{"backend": "postgres"}},
			apiKey:    "sk-or-test-key",
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			useConfig(t, tt.overrides)
			t.Setenv("HIVE_API_KEY", tt.apiKey)
			shared.SetSecretsForTest(secrets.NewResolver(secrets.NewEnvBackend()))
			t.Cleanup(func() { shared.SetSecretsForTest(nil) })

			args := append([]string{"config", "validate", "--json"}, tt.args...)
			out, err := executeConfig(t, args...)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v\n%s", err, tt.wantErr, out)
			}
			if err != nil {
				var exitErr *shared.ExitError
				if !errors.As(err, &exitErr) || exitErr.Code != shared.ExitConfigError {
					t.Errorf("expected config exit error, got %v", err)
				}
			}

			var result ValidationResult
			if jsonErr := json.Unmarshal([]byte(out), &result); jsonErr != nil {
				t.Fatalf("invalid JSON: %v\n%s", jsonErr, out)
			}
			all := strings.Join(result.Warnings, "\n")
			for _, want := range tt.wantWarnings {
				if !strings.Contains(all, want) {
					t.Errorf("warnings missing %q: %v", want, result.Warnings)
				}
			}
		})
	}
}

func TestValidate_MalformedYAML(t *testing.T) {
	useConfig(t, nil)
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("profiles: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}
	shared.SetConfigPathForTest(path)

	out, err := executeConfig(t, "config", "validate")
	if err == nil {
		t.Fatal("expected validation failure")
	}
	if !strings.Contains(out, "Configuration validation failed") {
		t.Errorf("unexpected output:\n%s", out)
	}
}
