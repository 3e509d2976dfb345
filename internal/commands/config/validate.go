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
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/hivetechs/consensus/internal/commands/shared"
	"github.com/hivetechs/consensus/internal/config"
	pkgerrors "github.com/hivetechs/consensus/pkg/errors"
	"github.com/hivetechs/consensus/pkg/llm/pricing"
)

// ValidationResult represents the result of config validation.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// NewValidateCommand creates the 'config validate' subcommand.
func NewValidateCommand() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		Long: `Validate the configuration file structure and references.

Checks performed:
  - YAML syntax and structure
  - Gateway URL, engine, retry, breaker and budget settings
  - Profiles are complete and the default profile exists
  - Profile models have known pricing
  - A gateway API key can be resolved

With --strict, warnings are treated as errors.`,
		Example: `  # Validate configuration
  hive config validate

  # Validate with warnings as errors
  hive config validate --strict

  # Get validation result as JSON
  hive config validate --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			result := runValidate(cmd)
			return outputValidationResult(cmd, result, strict)
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "Treat warnings as errors")

	return cmd
}

// runValidate loads the config and collects problems.
func runValidate(cmd *cobra.Command) ValidationResult {
	cfg, err := config.Load(shared.GetConfigPath())
	if err != nil {
		var cfgErr *pkgerrors.ConfigError
		if errors.As(err, &cfgErr) && cfgErr.Cause != nil {
			return ValidationResult{Errors: []string{fmt.Sprintf("%s: %v", cfgErr.Reason, cfgErr.Cause)}}
		}
		return ValidationResult{Errors: []string{err.Error()}}
	}
	return validateConfig(cmd, cfg)
}

// validateConfig reports warnings for a config that passed Validate.
func validateConfig(cmd *cobra.Command, cfg *config.Config) ValidationResult {
	var warnings []string

	table := pricing.NewTable()
	set, _ := cfg.ProfileSet()
	for _, id := range set.ModelIDs() {
		if _, ok := table.Lookup(id); !ok {
			warnings = append(warnings, fmt.Sprintf("Model %q has no built-in pricing; fallback pricing applies until the catalog is fetched", id))
		}
	}

	if _, _, err := shared.Secrets().APIKey(cmd.Context(), cfg.Gateway.APIKey); err != nil {
		warnings = append(warnings, "No gateway API key found. Run 'hive auth login' or set HIVE_API_KEY.")
	}

	if cfg.Budget.DailyLimit == 0 && cfg.Budget.MonthlyLimit == 0 {
		warnings = append(warnings, "No daily or monthly budget configured; spend is unlimited.")
	}

	if cfg.Observability.Tracing.Enabled && cfg.Observability.Tracing.Exporter != config.ExporterStdout && cfg.Observability.Tracing.Endpoint == "" {
		warnings = append(warnings, fmt.Sprintf("Tracing exporter %q has no endpoint; OTEL_EXPORTER_OTLP_ENDPOINT or the exporter default applies", cfg.Observability.Tracing.Exporter))
	}

	return ValidationResult{Valid: true, Warnings: warnings}
}

// outputValidationResult prints the result. An invalid config, or warnings
// under --strict, return an ExitError.
func outputValidationResult(cmd *cobra.Command, result ValidationResult, strict bool) error {
	result.Valid = len(result.Errors) == 0
	out := cmd.OutOrStdout()

	if shared.GetJSON() {
		if err := shared.EmitJSON(cmd.Context(), out, result); err != nil {
			return err
		}
	} else {
		printResult(out, result)
	}

	if !result.Valid {
		return &shared.ExitError{Code: shared.ExitConfigError, Message: "configuration is invalid"}
	}
	if strict && len(result.Warnings) > 0 {
		return &shared.ExitError{Code: shared.ExitConfigError, Message: "validation failed (strict mode: warnings treated as errors)"}
	}
	return nil
}

func printResult(out io.Writer, result ValidationResult) {
	if result.Valid {
		fmt.Fprintln(out, shared.RenderOK("Configuration is valid"))
	} else {
		fmt.Fprintln(out, shared.RenderError("Configuration validation failed"))
	}
	fmt.Fprintln(out)

	if len(result.Errors) > 0 {
		fmt.Fprintln(out, shared.Header.Render("Errors:"))
		for _, err := range result.Errors {
			fmt.Fprintf(out, "  %s %s\n", shared.StatusError.Render(shared.SymbolError), err)
		}
		fmt.Fprintln(out)
	}

	if len(result.Warnings) > 0 {
		fmt.Fprintln(out, shared.Header.Render("Warnings:"))
		for _, warn := range result.Warnings {
			fmt.Fprintf(out, "  %s %s\n", shared.StatusWarn.Render(shared.SymbolWarn), warn)
		}
		fmt.Fprintln(out)
	}

	if result.Valid && len(result.Warnings) == 0 {
		fmt.Fprintln(out, "No issues found.")
	}
}
