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

package profile

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hivetechs/consensus/internal/commands/completion"
	"github.com/hivetechs/consensus/internal/commands/shared"
	pkgerrors "github.com/hivetechs/consensus/pkg/errors"
	"github.com/hivetechs/consensus/pkg/profile"
)

// NewCommand creates the profiles command.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "profiles",
		Aliases: []string{"profile"},
		Annotations: map[string]string{
			"group": "configuration",
		},
		Short: "List and inspect consensus profiles",
		Long: `List and inspect the consensus profiles defined in configuration.

A profile names the model for each stage and the strategy used to choose
fallbacks when a configured model is unavailable.`,
		Example: `  hive profiles
  hive profiles show quality
  hive profiles list --json`,
		RunE: runList,
	}

	cmd.AddCommand(newListCommand())
	cmd.AddCommand(newShowCommand())

	return cmd
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List profiles",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}
}

func newShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "show <name>",
		Short:             "Show one profile",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completion.CompleteProfiles,
		RunE:              runShow,
	}
}

func loadProfiles() (string, *profile.Set, error) {
	cfg, err := shared.LoadConfig()
	if err != nil {
		return "", nil, err
	}
	set, err := cfg.ProfileSet()
	if err != nil {
		return "", nil, shared.NewConfigError("invalid profiles", err)
	}
	return cfg.DefaultProfile, set, nil
}

func runList(cmd *cobra.Command, args []string) error {
	def, set, err := loadProfiles()
	if err != nil {
		return err
	}

	profiles := make([]profile.Profile, 0, set.Len())
	for _, name := range set.Names() {
		p, _ := set.Get(name)
		profiles = append(profiles, p)
	}

	out := cmd.OutOrStdout()
	if shared.GetJSON() {
		return shared.EmitJSON(cmd.Context(), out, map[string]any{
			"default":  def,
			"profiles": profiles,
		})
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSTRATEGY\tGENERATOR\tCURATOR\tDESCRIPTION")
	for _, p := range profiles {
		name := p.Name
		if name == def {
			name += " (default)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", name, p.Strategy, p.Models.Generator, p.Models.Curator, p.Description)
	}
	return w.Flush()
}

func runShow(cmd *cobra.Command, args []string) error {
	def, set, err := loadProfiles()
	if err != nil {
		return err
	}

	p, ok := set.Get(args[0])
	if !ok {
		return shared.NewConfigError("unknown profile", &pkgerrors.NotFoundError{Resource: "profile", ID: args[0]})
	}

	out := cmd.OutOrStdout()
	if shared.GetJSON() {
		return shared.EmitJSON(cmd.Context(), out, map[string]any{
			"default": p.Name == def,
			"profile": p,
		})
	}

	title := p.Name
	if p.Name == def {
		title += " (default)"
	}
	fmt.Fprintln(out, shared.Header.Render(title))
	if p.Description != "" {
		fmt.Fprintln(out, p.Description)
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "%s %s\n", shared.RenderLabel("Strategy:"), p.Strategy)
	for _, stage := range profile.Stages {
		line := p.Models.For(stage)
		if t := p.Temperature.For(stage); t != nil {
			line += fmt.Sprintf(" (temperature %.2f)", *t)
		}
		fmt.Fprintf(out, "%s %s\n", shared.RenderLabel(fmt.Sprintf("%-10s", stage+":")), line)
	}
	if p.MaxCostPerRun > 0 {
		fmt.Fprintf(out, "%s $%.4f\n", shared.RenderLabel("Max cost per run:"), p.MaxCostPerRun)
	}
	if len(p.Allow) > 0 {
		fmt.Fprintf(out, "%s %s\n", shared.RenderLabel("Allow:"), strings.Join(p.Allow, ", "))
	}
	if len(p.Deny) > 0 {
		fmt.Fprintf(out, "%s %s\n", shared.RenderLabel("Deny:"), strings.Join(p.Deny, ", "))
	}
	if p.Where != "" {
		fmt.Fprintf(out, "%s %s\n", shared.RenderLabel("Where:"), p.Where)
	}
	return nil
}
