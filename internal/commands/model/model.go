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

package model

import (
	"github.com/spf13/cobra"
)

// NewCommand creates the models command group
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "models",
		Aliases: []string{"model"},
		Short:   "Inspect the gateway model catalog",
		Long: `Inspect the models the gateway serves and how the selector ranks them.

The catalog is fetched from the gateway on startup and falls back to the
built-in pricing table when the gateway cannot be reached.

Examples:
  # List all models
  hive models list

  # Models with vision support in the fast tier
  hive models list --capability vision --tier fast

  # Filter with an expression over model attributes
  hive models list --where 'input_price < 1 && context_window >= 100000'

  # Show one model
  hive models info openai/gpt-4o

  # How the refiner stage would rank candidates for a profile
  hive models rank refiner --profile quality`,
	}

	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newInfoCmd())
	cmd.AddCommand(newRankCmd())

	// Default to list if no subcommand specified
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return newListCmd().RunE(cmd, args)
	}

	return cmd
}
