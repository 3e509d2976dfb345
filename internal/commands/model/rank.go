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
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hivetechs/consensus/internal/commands/shared"
	"github.com/hivetechs/consensus/pkg/consensus"
	pkgerrors "github.com/hivetechs/consensus/pkg/errors"
)

func newRankCmd() *cobra.Command {
	var profileName string

	cmd := &cobra.Command{
		Use:   "rank <stage>",
		Short: "Show how the selector ranks candidates for a stage",
		Long: `Score every eligible model for a stage under a profile's strategy.

Stages: generator, refiner, validator, curator. The configured model for the
stage is tried first during a run regardless of its rank; this list is the
fallback order.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stage := consensus.Stage(args[0])
			if !stage.IsValid() {
				return shared.NewConfigError("invalid stage", &pkgerrors.ValidationError{
					Field:      "stage",
					Message:    fmt.Sprintf("unknown stage %q", args[0]),
					Suggestion: "use generator, refiner, validator or curator",
				})
			}

			ctx := cmd.Context()
			app, err := shared.OpenApp(ctx, false)
			if err != nil {
				return shared.NewExecutionError("failed to start engine", err)
			}
			defer app.Close(ctx)

			if profileName == "" {
				profileName = app.Config().DefaultProfile
			}
			p, ok := app.Engine.Profiles().Get(profileName)
			if !ok {
				return shared.NewConfigError("unknown profile", &pkgerrors.NotFoundError{Resource: "profile", ID: profileName})
			}

			ranked, err := app.Engine.Selector().Rank(stage, p)
			if err != nil {
				return shared.NewExecutionError("failed to rank models", err)
			}

			out := cmd.OutOrStdout()
			if shared.GetJSON() {
				return shared.EmitJSON(ctx, out, map[string]any{
					"stage":      stage,
					"profile":    profileName,
					"configured": p.Models.For(string(stage)),
					"ranked":     ranked,
				})
			}

			fmt.Fprintf(out, "%s %s (%s, %s)\n\n", shared.Header.Render("Ranking for"), stage, profileName, p.Strategy)
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "#\tMODEL\tTIER\tSCORE")
			for i, s := range ranked {
				id := s.Model.ID
				if id == p.Models.For(string(stage)) {
					id += " *"
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%.3f\n", i+1, id, s.Model.Tier, s.Score)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, shared.Muted.Render("* configured model for this stage"))
			return nil
		},
	}

	cmd.Flags().StringVarP(&profileName, "profile", "p", "", "Profile whose strategy and constraints apply")

	return cmd
}
