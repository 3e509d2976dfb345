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

package shared

import (
	"context"
	"io"

	"github.com/hivetechs/consensus/internal/bootstrap"
	"github.com/hivetechs/consensus/internal/config"
	internallog "github.com/hivetechs/consensus/internal/log"
	"github.com/hivetechs/consensus/internal/secrets"
	"github.com/hivetechs/consensus/pkg/llm"
)

var (
	testGateway  llm.Gateway
	testResolver *secrets.Resolver
)

// SetGatewayForTest makes OpenApp use gw instead of the OpenRouter client
func SetGatewayForTest(gw llm.Gateway) {
	testGateway = gw
}

// SetSecretsForTest makes commands resolve secrets through r
func SetSecretsForTest(r *secrets.Resolver) {
	testResolver = r
}

// Secrets returns the resolver commands should use
func Secrets() *secrets.Resolver {
	if testResolver != nil {
		return testResolver
	}
	return secrets.Default()
}

// LoadConfig loads configuration from --config, HIVE_CONFIG or the default
// path and applies the verbosity flags to logging
func LoadConfig() (*config.Config, error) {
	cfg, err := config.Load(GetConfigPath())
	if err != nil {
		return nil, NewConfigError("failed to load config", err)
	}
	switch {
	case GetVerbose():
		cfg.Log.Level = "debug"
	case GetQuiet() || GetJSON():
		if cfg.Log.Level == "info" {
			cfg.Log.Level = "warn"
		}
	}
	return cfg, nil
}

// OpenApp loads configuration and assembles the engine. watch enables
// config hot reload for long-running commands.
func OpenApp(ctx context.Context, watch bool) (*bootstrap.App, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	return bootstrap.New(ctx, cfg, bootstrap.Options{
		ConfigPath: GetConfigPath(),
		Watch:      watch,
		Version:    version,
		Gateway:    testGateway,
		Secrets:    Secrets(),
	})
}

// OpenStores loads configuration and opens only the cost and performance
// trackers. Commands that read history use it so no API key is needed.
func OpenStores(ctx context.Context) (*config.Config, *bootstrap.Stores, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	stores, err := bootstrap.OpenStores(ctx, cfg, internallog.New(cfg.Log.Logging()))
	if err != nil {
		return nil, nil, NewExecutionError("failed to open storage", err)
	}
	return cfg, stores, nil
}

// StartSpinner shows a spinner on w until the returned func is called.
// JSON and quiet output suppress it.
func StartSpinner(w io.Writer, message string) func() {
	if GetJSON() || GetQuiet() {
		return func() {}
	}
	s := NewSpinner(w)
	s.Start(message)
	return func() { s.Stop() }
}
