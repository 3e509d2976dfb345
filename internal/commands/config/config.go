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
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hivetechs/consensus/internal/commands/shared"
	"github.com/hivetechs/consensus/internal/config"
	internallog "github.com/hivetechs/consensus/internal/log"
)

// NewConfigCommand creates the config command with subcommands
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and validate configuration",
		Long: `View and validate hive configuration.

Subcommands:
  show     - Display the effective configuration
  path     - Show config file location
  validate - Check the configuration for errors and warnings`,
	}

	cmd.AddCommand(newConfigShowCommand())
	cmd.AddCommand(newConfigPathCommand())
	cmd.AddCommand(NewValidateCommand())

	// If no subcommand provided, default to 'show'
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return newConfigShowCommand().RunE(cmd, args)
	}

	return cmd
}

// newConfigShowCommand creates the 'config show' subcommand
func newConfigShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		Long: `Display the effective configuration: file values merged over defaults
with HIVE_* environment overrides applied.

The API key is masked. Use --json for machine-readable output.`,
		RunE: runConfigShow,
	}

	return cmd
}

// newConfigPathCommand creates the 'config path' subcommand
func newConfigPathCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "path",
		Short: "Show config file location",
		Long:  `Display the path to the configuration file and whether it exists.`,
		RunE:  runConfigPath,
	}

	return cmd
}

// runConfigShow displays the current configuration
func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := shared.LoadConfig()
	if err != nil {
		return err
	}
	masked := maskSensitiveConfig(cfg)
	out := cmd.OutOrStdout()

	if shared.GetJSON() {
		return shared.EmitJSON(cmd.Context(), out, masked)
	}

	path, _ := config.ResolvePath(shared.GetConfigPath())
	fmt.Fprintf(out, "Configuration: %s\n", path)
	fmt.Fprintln(out, strings.Repeat("=", 50))
	fmt.Fprintln(out)

	encoder := yaml.NewEncoder(out)
	encoder.SetIndent(2)
	if err := encoder.Encode(masked); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return encoder.Close()
}

// runConfigPath displays the config file path
func runConfigPath(cmd *cobra.Command, args []string) error {
	path, _ := config.ResolvePath(shared.GetConfigPath())
	if path == "" {
		return shared.NewConfigError("failed to determine config path", nil)
	}
	_, statErr := os.Stat(path)

	if shared.GetJSON() {
		return shared.EmitJSON(cmd.Context(), cmd.OutOrStdout(), map[string]any{
			"path":   path,
			"exists": statErr == nil,
		})
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}

// maskSensitiveConfig creates a copy of config with sensitive values masked
func maskSensitiveConfig(cfg *config.Config) *config.Config {
	masked := *cfg
	if masked.Gateway.APIKey != "" {
		masked.Gateway.APIKey = internallog.SanitizeAPIKey(masked.Gateway.APIKey)
	}
	return &masked
}
