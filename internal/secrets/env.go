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

package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

const (
	// EnvBackendPriority is the highest priority so environment variables
	// override stored secrets.
	EnvBackendPriority = 100

	envSecretPrefix = "HIVE_SECRET_"
)

// apiKeyVars are checked, in order, for the gateway API key.
var apiKeyVars = []string{"HIVE_API_KEY", "OPENROUTER_API_KEY"}

// EnvBackend provides read-only access to secrets via environment variables.
// It supports two naming conventions:
//  1. HIVE_SECRET_<KEY> (normalized, e.g. HIVE_SECRET_GATEWAY_API_KEY)
//  2. HIVE_API_KEY or OPENROUTER_API_KEY for the gateway key
type EnvBackend struct{}

// NewEnvBackend creates a new environment variable backend.
func NewEnvBackend() *EnvBackend {
	return &EnvBackend{}
}

// Name returns the backend identifier.
func (e *EnvBackend) Name() string {
	return "env"
}

// Get retrieves a secret from environment variables.
func (e *EnvBackend) Get(ctx context.Context, key string) (string, error) {
	if value := os.Getenv(normalizeKey(key)); value != "" {
		return value, nil
	}

	if key == APIKeyName {
		for _, name := range apiKeyVars {
			if value := os.Getenv(name); value != "" {
				return value, nil
			}
		}
	}

	return "", fmt.Errorf("%w: environment variable not set", ErrSecretNotFound)
}

// Set returns ErrReadOnlyBackend as environment backend is read-only.
func (e *EnvBackend) Set(ctx context.Context, key string, value string) error {
	return ErrReadOnlyBackend
}

// Delete returns ErrReadOnlyBackend as environment backend is read-only.
func (e *EnvBackend) Delete(ctx context.Context, key string) error {
	return ErrReadOnlyBackend
}

// Available returns true as environment variables are always available.
func (e *EnvBackend) Available() bool {
	return true
}

// Priority returns the backend priority (highest).
func (e *EnvBackend) Priority() int {
	return EnvBackendPriority
}

// normalizeKey converts a secret key to an environment variable name.
// Example: "gateway/api_key" -> "HIVE_SECRET_GATEWAY_API_KEY"
func normalizeKey(key string) string {
	return envSecretPrefix + strings.ToUpper(strings.ReplaceAll(key, "/", "_"))
}
