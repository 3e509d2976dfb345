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
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hivetechs/consensus/internal/commands/shared"
	"github.com/hivetechs/consensus/pkg/llm"
)

func newListCmd() *cobra.Command {
	var (
		capabilities []string
		tier         string
		allow        []string
		deny         []string
		where        string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List catalog models",
		Long: `List catalog models, optionally filtered.

Filters combine with AND:
  --capability  required capability tag (chat, code, reasoning, vision, tools, long-context)
  --tier        fast, balanced or strategic
  --allow       glob patterns a model id must match, e.g. 'anthropic/*'
  --deny        glob patterns that exclude a model id
  --where       expression over id, provider, tier, capabilities,
                input_price, output_price, context_window`,
		RunE: func(cmd *cobra.Command, args []string) error {
			query := llm.Query{
				Capabilities: capabilities,
				Tier:         llm.ModelTier(tier),
				Allow:        allow,
				Deny:         deny,
				Where:        where,
			}
			filters, err := query.Filters()
			if err != nil {
				return shared.NewConfigError("invalid filter", err)
			}

			ctx := cmd.Context()
			stop := shared.StartSpinner(cmd.ErrOrStderr(), "Loading model catalog...")
			app, err := shared.OpenApp(ctx, false)
			stop()
			if err != nil {
				return shared.NewExecutionError("failed to load model catalog", err)
			}
			defer app.Close(ctx)

			models := app.Registry.List(filters...)
			out := cmd.OutOrStdout()

			if shared.GetJSON() {
				return shared.EmitJSON(ctx, out, map[string]any{"models": models})
			}

			if len(models) == 0 {
				fmt.Fprintln(out, "No models match the given filters.")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "MODEL\tTIER\tCONTEXT\tINPUT $/M\tOUTPUT $/M\tCAPABILITIES")
			for _, m := range models {
				window := "-"
				if m.ContextWindow > 0 {
					window = fmt.Sprintf("%d", m.ContextWindow)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%.3f\t%.3f\t%s\n",
					m.ID, m.Tier, window,
					m.Pricing.InputPerMillion, m.Pricing.OutputPerMillion,
					joinTags(m.Capabilities))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if !shared.GetQuiet() {
				fmt.Fprintln(out)
				fmt.Fprintln(out, shared.Muted.Render(fmt.Sprintf("%d models, catalog updated %s", len(models), app.Registry.UpdatedAt().Format("2006-01-02 15:04"))))
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&capabilities, "capability", nil, "Required capability (repeatable)")
	cmd.Flags().StringVar(&tier, "tier", "", "Model tier: fast, balanced or strategic")
	cmd.Flags().StringSliceVar(&allow, "allow", nil, "Glob patterns model ids must match")
	cmd.Flags().StringSliceVar(&deny, "deny", nil, "Glob patterns excluding model ids")
	cmd.Flags().StringVar(&where, "where", "", "Expression over model attributes")

	return cmd
}

func joinTags(tags []string) string {
	if len(tags) == 0 {
		return "-"
	}
	return strings.Join(tags, ",")
}
