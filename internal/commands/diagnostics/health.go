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

package diagnostics

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hivetechs/consensus/internal/bootstrap"
	"github.com/hivetechs/consensus/internal/commands/completion"
	"github.com/hivetechs/consensus/internal/commands/shared"
	"github.com/hivetechs/consensus/internal/config"
	pkgerrors "github.com/hivetechs/consensus/pkg/errors"
	"github.com/hivetechs/consensus/pkg/llm/performance"
	"github.com/hivetechs/consensus/pkg/profile"
)

// HealthResult contains the overall health check results
type HealthResult struct {
	ConfigPath      string               `json:"config_path"`
	ConfigExists    bool                 `json:"config_exists"`
	Storage         string               `json:"storage"`
	Models          []performance.Health `json:"models"`
	Recommendations []string             `json:"recommendations"`
	OverallHealthy  bool                 `json:"overall_healthy"`
}

// NewHealthCommand creates the health command
func NewHealthCommand() *cobra.Command {
	var (
		byStage bool
		stage   string
	)

	cmd := &cobra.Command{
		Use: "health [model...]",
		Annotations: map[string]string{
			"group": "diagnostics",
		},
		Short: "Show model health from recent runs",
		Long: `Report the health of each model from its recent calls: success rate,
latency percentiles and, where available, validator quality scores.

Health is computed over the rolling window kept in local storage, so the
command makes no gateway calls and needs no API key. Only models that have
been used by a profile appear.

See also: hive models info, hive budget`,
		Example: `  # Health of every model
  hive health

  # Per-stage breakdown for one model
  hive health openai/gpt-4o --by-stage

  # Use in CI
  hive health --json | jq -e '.overall_healthy'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if stage != "" {
				if !validStage(stage) {
					return shared.NewConfigError("invalid --stage", &pkgerrors.ValidationError{
						Field:      "stage",
						Message:    fmt.Sprintf("unknown stage %q", stage),
						Suggestion: "Use one of: " + strings.Join(profile.Stages, ", "),
					})
				}
				byStage = true
			}
			return runHealth(cmd, args, byStage, stage)
		},
	}

	cmd.Flags().BoolVar(&byStage, "by-stage", false, "Report each (model, stage) pair separately")
	cmd.Flags().StringVar(&stage, "stage", "", "Only report this stage (implies --by-stage)")
	cmd.RegisterFlagCompletionFunc("stage", completion.CompleteStages)

	return cmd
}

func validStage(name string) bool {
	for _, s := range profile.Stages {
		if s == name {
			return true
		}
	}
	return false
}

func runHealth(cmd *cobra.Command, models []string, byStage bool, stage string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	result := HealthResult{
		Recommendations: []string{},
		OverallHealthy:  true,
	}

	path, _ := config.ResolvePath(shared.GetConfigPath())
	result.ConfigPath = path
	if _, err := os.Stat(path); err == nil {
		result.ConfigExists = true
	}

	cfg, stores, err := shared.OpenStores(ctx)
	if err != nil {
		return err
	}
	defer stores.Close(context.Background())
	result.Storage = cfg.Storage.Backend

	result.Models = collectHealth(stores.Performance, models, byStage, stage)
	for _, h := range result.Models {
		if h.State == performance.Unhealthy {
			result.OverallHealthy = false
		}
		if h.State != performance.Healthy {
			for _, issue := range h.Issues {
				result.Recommendations = append(result.Recommendations,
					fmt.Sprintf("%s: %s", label(h), issue))
			}
		}
	}

	if len(result.Models) == 0 {
		if cfg.Storage.Backend == bootstrap.BackendMemory {
			result.Recommendations = append(result.Recommendations,
				"Storage backend is 'memory'; health history does not survive between commands. Set storage.backend to sqlite.")
		} else {
			result.Recommendations = append(result.Recommendations,
				"No calls recorded yet. Run 'hive consensus' to collect health data.")
		}
	}

	if shared.GetJSON() {
		return shared.EmitJSON(ctx, cmd.OutOrStdout(), result)
	}
	return outputHealthText(cmd.OutOrStdout(), result)
}

// collectHealth reads the tracker. Without byStage each model's stages
// are folded into one row.
func collectHealth(perf *performance.Tracker, models []string, byStage bool, stage string) []performance.Health {
	wanted := make(map[string]bool, len(models))
	for _, m := range models {
		wanted[m] = true
	}
	keep := func(h performance.Health) bool {
		if len(wanted) > 0 && !wanted[h.ModelID] {
			return false
		}
		return stage == "" || h.Stage == stage
	}

	snapshot := perf.Snapshot()
	if byStage {
		out := make([]performance.Health, 0, len(snapshot))
		for _, h := range snapshot {
			if keep(h) {
				out = append(out, h)
			}
		}
		return out
	}

	seen := make(map[string]bool)
	var ids []string
	for _, h := range snapshot {
		if keep(h) && !seen[h.ModelID] {
			seen[h.ModelID] = true
			ids = append(ids, h.ModelID)
		}
	}
	sort.Strings(ids)
	out := make([]performance.Health, 0, len(ids))
	for _, id := range ids {
		out = append(out, perf.ModelHealth(id))
	}
	return out
}

func label(h performance.Health) string {
	if h.Stage == "" {
		return h.ModelID
	}
	return h.ModelID + " (" + h.Stage + ")"
}

func outputHealthText(out io.Writer, result HealthResult) error {
	fmt.Fprintln(out, shared.Header.Render("Hive Health"))
	fmt.Fprintln(out)

	fmt.Fprintf(out, "%s %s", shared.RenderLabel("Config:"), result.ConfigPath)
	if !result.ConfigExists {
		fmt.Fprint(out, shared.Muted.Render(" (not found, using defaults)"))
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "%s %s\n\n", shared.RenderLabel("Storage:"), result.Storage)

	if len(result.Models) > 0 {
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "MODEL\tSTATE\tSAMPLES\tSUCCESS\tP50\tP95\tQUALITY")
		for _, h := range result.Models {
			quality := "-"
			if h.AvgQuality != nil {
				quality = fmt.Sprintf("%.2f", *h.AvgQuality)
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%.0f%%\t%s\t%s\t%s\n",
				label(h), shared.RenderHealth(string(h.State)), h.Samples, h.SuccessRate*100,
				h.P50.Round(time.Millisecond), h.P95.Round(time.Millisecond), quality)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintln(out)
	}

	if len(result.Recommendations) > 0 {
		fmt.Fprintln(out, shared.Header.Render("Recommendations"))
		for _, rec := range result.Recommendations {
			fmt.Fprintf(out, "  %s %s\n", shared.StatusInfo.Render(shared.SymbolInfo), rec)
		}
		fmt.Fprintln(out)
	}

	if result.OverallHealthy {
		fmt.Fprintln(out, shared.RenderOK("All models healthy"))
	} else {
		fmt.Fprintln(out, shared.RenderError("Some models are unhealthy"))
	}
	return nil
}
