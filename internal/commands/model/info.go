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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hivetechs/consensus/internal/commands/shared"
)

func newInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info <model-id>",
		Short: "Show detailed information about a model",
		Long: `Display catalog metadata for one model: tier, pricing, context window,
capabilities and its recent health across stages.

Examples:
  hive models info anthropic/claude-3.5-sonnet
  hive models info openai/gpt-4o --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := shared.OpenApp(ctx, false)
			if err != nil {
				return shared.NewExecutionError("failed to load model catalog", err)
			}
			defer app.Close(ctx)

			m, err := app.Registry.Get(args[0])
			if err != nil {
				return shared.NewExecutionError("model not found", err)
			}
			health := app.Engine.Performance().ModelHealth(m.ID)

			out := cmd.OutOrStdout()
			if shared.GetJSON() {
				return shared.EmitJSON(ctx, out, map[string]any{"model": m, "health": health})
			}

			fmt.Fprintf(out, "%s\n", shared.Header.Render(m.ID))
			if m.Name != "" {
				fmt.Fprintf(out, "  %s %s\n", shared.RenderLabel("Name:"), m.Name)
			}
			fmt.Fprintf(out, "  %s %s\n", shared.RenderLabel("Provider:"), m.Provider)
			fmt.Fprintf(out, "  %s %s\n", shared.RenderLabel("Tier:"), m.Tier)
			if m.ContextWindow > 0 {
				fmt.Fprintf(out, "  %s %d tokens\n", shared.RenderLabel("Context:"), m.ContextWindow)
			}
			if m.MaxOutputTokens > 0 {
				fmt.Fprintf(out, "  %s %d tokens\n", shared.RenderLabel("Max output:"), m.MaxOutputTokens)
			}
			fmt.Fprintf(out, "  %s $%.3f / $%.3f per million tokens (in/out)\n", shared.RenderLabel("Pricing:"),
				m.Pricing.InputPerMillion, m.Pricing.OutputPerMillion)
			fmt.Fprintf(out, "  %s %s\n", shared.RenderLabel("Capabilities:"), joinTags(m.Capabilities))
			fmt.Fprintf(out, "  %s %t\n", shared.RenderLabel("Streaming:"), m.Streaming)
			fmt.Fprintf(out, "  %s %s (%d samples)\n", shared.RenderLabel("Health:"), shared.RenderHealth(string(health.State)), health.Samples)
			return nil
		},
	}

	return cmd
}
