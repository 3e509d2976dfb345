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
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/hivetechs/consensus/internal/commands/shared"
	internallog "github.com/hivetechs/consensus/internal/log"
	"github.com/hivetechs/consensus/internal/secrets"
	pkgerrors "github.com/hivetechs/consensus/pkg/errors"
)

// NewCommand creates the auth command for managing the gateway API key.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "auth",
		Aliases: []string{"secrets"},
		Annotations: map[string]string{
			"group": "configuration",
		},
		Short: "Manage the OpenRouter API key",
		Long: `Manage the API key used to call the OpenRouter gateway.

The key is resolved in this order:
  1. gateway.api_key in the config file
  2. HIVE_API_KEY or OPENROUTER_API_KEY (read-only)
  3. The system keychain (macOS Keychain, Linux Secret Service, Windows Credential Manager)

'hive auth login' stores the key in the keychain.`,
		RunE: runStatus,
	}

	cmd.AddCommand(newLoginCommand())
	cmd.AddCommand(newLogoutCommand())
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show where the API key comes from",
		Args:  cobra.NoArgs,
		RunE:  runStatus,
	})

	return cmd
}

func newLoginCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Store an API key in the keychain",
		Long: `Store an OpenRouter API key in the system keychain.

The key can be provided via:
  - Interactive prompt (hidden input, default)
  - Standard input: echo "sk-or-..." | hive auth login`,
		Example: `  hive auth login
  echo "$OPENROUTER_API_KEY" | hive auth login`,
		Args: cobra.NoArgs,
		RunE: runLogin,
	}
}

func newLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored API key",
		Args:  cobra.NoArgs,
		RunE:  runLogout,
	}
}

func runLogin(cmd *cobra.Command, args []string) error {
	value, err := readSecretValue(cmd)
	if err != nil {
		return fmt.Errorf("failed to read API key: %w", err)
	}
	if value == "" {
		return shared.NewConfigError("API key cannot be empty", &pkgerrors.ValidationError{
			Field:   "api_key",
			Message: "empty value",
		})
	}

	if err := shared.Secrets().Set(cmd.Context(), secrets.APIKeyName, value); err != nil {
		return &shared.ExitError{Code: shared.ExitAuthError, Message: "failed to store API key", Cause: err}
	}

	if shared.GetJSON() {
		return shared.EmitJSON(cmd.Context(), cmd.OutOrStdout(), map[string]any{
			"stored": true,
			"key":    internallog.SanitizeAPIKey(value),
		})
	}
	fmt.Fprintln(cmd.OutOrStdout(), shared.RenderOK("API key stored ("+internallog.SanitizeAPIKey(value)+")"))
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	resolver := shared.Secrets()

	removed := true
	if err := resolver.Delete(ctx, secrets.APIKeyName); err != nil {
		if !errors.Is(err, secrets.ErrSecretNotFound) {
			return &shared.ExitError{Code: shared.ExitAuthError, Message: "failed to remove API key", Cause: err}
		}
		removed = false
	}

	// Environment variables are read-only and may still supply a key.
	_, source, lookupErr := resolver.Lookup(ctx, secrets.APIKeyName)
	stillResolves := lookupErr == nil

	out := cmd.OutOrStdout()
	if shared.GetJSON() {
		result := map[string]any{"removed": removed}
		if stillResolves {
			result["remaining_source"] = source
		}
		return shared.EmitJSON(ctx, out, result)
	}

	if removed {
		fmt.Fprintln(out, shared.RenderOK("API key removed"))
	} else {
		fmt.Fprintln(out, "No stored API key.")
	}
	if stillResolves {
		fmt.Fprintln(out, shared.RenderWarn(fmt.Sprintf("A key is still supplied by %s.", source)))
	}
	return nil
}

// KeyStatus describes where the gateway API key resolves from.
type KeyStatus struct {
	Configured bool   `json:"configured"`
	Source     string `json:"source,omitempty"`
	Key        string `json:"key,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := shared.LoadConfig()
	if err != nil {
		return err
	}

	var status KeyStatus
	key, source, err := shared.Secrets().APIKey(cmd.Context(), cfg.Gateway.APIKey)
	if err == nil {
		status = KeyStatus{Configured: true, Source: source, Key: internallog.SanitizeAPIKey(key)}
	}

	out := cmd.OutOrStdout()
	if shared.GetJSON() {
		if err := shared.EmitJSON(cmd.Context(), out, status); err != nil {
			return err
		}
	} else if status.Configured {
		fmt.Fprintln(out, shared.RenderOK(fmt.Sprintf("API key %s from %s", status.Key, status.Source)))
	} else {
		fmt.Fprintln(out, shared.RenderError("No API key configured"))
		fmt.Fprintln(out, shared.Muted.Render("Run 'hive auth login' or set HIVE_API_KEY."))
	}

	if !status.Configured {
		return &shared.ExitError{Code: shared.ExitAuthError, Message: "no API key configured", Cause: err}
	}
	return nil
}

// readSecretValue reads from a terminal with echo disabled, or from
// piped input otherwise.
func readSecretValue(cmd *cobra.Command) (string, error) {
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if shared.IsNonInteractive() {
			return "", shared.NewConfigError("no API key on stdin", fmt.Errorf("refusing to prompt in non-interactive mode; pipe the key to 'hive auth login'"))
		}
		fmt.Fprint(cmd.ErrOrStderr(), "Enter OpenRouter API key (hidden): ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}

	data, err := io.ReadAll(in)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
