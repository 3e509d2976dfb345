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

package budget

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hivetechs/consensus/internal/commands/completion"
	"github.com/hivetechs/consensus/internal/commands/shared"
	pkgerrors "github.com/hivetechs/consensus/pkg/errors"
	"github.com/hivetechs/consensus/pkg/llm/cost"
)

// NewCommand creates the budget command.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "budget",
		Aliases: []string{"cost"},
		Annotations: map[string]string{
			"group": "diagnostics",
		},
		Short: "Show spend against budget limits",
		Long: `Show recorded spend against the configured daily and monthly limits.

Spend is read from local storage. No API key is required.`,
		Example: `  hive budget
  hive budget summary --by stage --since 168h
  hive budget --json`,
		RunE: runStatus,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show spend against limits",
		Args:  cobra.NoArgs,
		RunE:  runStatus,
	})
	cmd.AddCommand(newSummaryCommand())

	return cmd
}

func newSummaryCommand() *cobra.Command {
	var (
		by    string
		since time.Duration
	)

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Break spend down by model or stage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			group := cost.GroupBy(by)
			if group != cost.GroupByModel && group != cost.GroupByStage {
				return shared.NewConfigError("invalid --by", &pkgerrors.ValidationError{
					Field:      "by",
					Message:    fmt.Sprintf("unknown grouping %q", by),
					Suggestion: "Use 'model' or 'stage'",
				})
			}
			if since <= 0 {
				return shared.NewConfigError("invalid --since", &pkgerrors.ValidationError{
					Field:   "since",
					Message: "must be a positive duration",
				})
			}
			return runSummary(cmd, group, since)
		},
	}

	cmd.Flags().StringVar(&by, "by", string(cost.GroupByModel), "Group by 'model' or 'stage'")
	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "How far back to look")
	cmd.RegisterFlagCompletionFunc("by", completion.CompleteGroupBy)

	return cmd
}

func withStores(cmd *cobra.Command, fn func(ctx context.Context, costs *cost.Tracker) error) error {
	ctx := cmd.Context()
	_, stores, err := shared.OpenStores(ctx)
	if err != nil {
		return err
	}
	defer stores.Close(context.Background())
	return fn(ctx, stores.Costs)
}

func runStatus(cmd *cobra.Command, args []string) error {
	return withStores(cmd, func(ctx context.Context, costs *cost.Tracker) error {
		status, err := costs.BudgetStatus(ctx)
		if err != nil {
			return shared.NewExecutionError("failed to read spend", err)
		}

		out := cmd.OutOrStdout()
		if shared.GetJSON() {
			return shared.EmitJSON(ctx, out, status)
		}

		fmt.Fprintln(out, shared.Header.Render("Budget"))
		printPeriod(out, "Today:", status.DailySpent, status.DailyLimit, status.DailyRatio(), status.AlertThreshold)
		printPeriod(out, "This month:", status.MonthlySpent, status.MonthlyLimit, status.MonthlyRatio(), status.AlertThreshold)
		if status.Enforced {
			fmt.Fprintln(out, shared.Muted.Render("Limits are enforced: runs that would exceed them are rejected."))
		} else if status.DailyLimit > 0 || status.MonthlyLimit > 0 {
			fmt.Fprintln(out, shared.Muted.Render("Limits are advisory: crossing them only logs an alert."))
		}
		return nil
	})
}

func printPeriod(out io.Writer, label string, spent, limit, ratio, threshold float64) {
	if limit <= 0 {
		fmt.Fprintf(out, "  %s $%.4f %s\n", shared.RenderLabel(fmt.Sprintf("%-12s", label)), spent, shared.Muted.Render("(no limit)"))
		return
	}
	pct := fmt.Sprintf("%.0f%%", ratio*100)
	switch {
	case ratio >= 1:
		pct = shared.StatusError.Render(pct)
	case threshold > 0 && ratio >= threshold:
		pct = shared.StatusWarn.Render(pct)
	default:
		pct = shared.StatusOK.Render(pct)
	}
	fmt.Fprintf(out, "  %s $%.4f / $%.2f %s\n", shared.RenderLabel(fmt.Sprintf("%-12s", label)), spent, limit, pct)
}

// summaryRow is one line of a spend breakdown.
type summaryRow struct {
	Key string `json:"key"`
	cost.Aggregate
}

func runSummary(cmd *cobra.Command, group cost.GroupBy, since time.Duration) error {
	return withStores(cmd, func(ctx context.Context, costs *cost.Tracker) error {
		from := time.Now().Add(-since)
		totals, err := costs.Summary(ctx, group, from)
		if err != nil {
			return shared.NewExecutionError("failed to summarize spend", err)
		}

		rows := make([]summaryRow, 0, len(totals))
		var total cost.Aggregate
		for k, agg := range totals {
			rows = append(rows, summaryRow{Key: k, Aggregate: agg})
			total.Calls += agg.Calls
			total.TokensIn += agg.TokensIn
			total.TokensOut += agg.TokensOut
			total.Cost += agg.Cost
		}
		sort.Slice(rows, func(i, j int) bool {
			if rows[i].Cost != rows[j].Cost {
				return rows[i].Cost > rows[j].Cost
			}
			return rows[i].Key < rows[j].Key
		})

		out := cmd.OutOrStdout()
		if shared.GetJSON() {
			return shared.EmitJSON(ctx, out, map[string]any{
				"by":    group,
				"since": from.UTC().Format(time.RFC3339),
				"rows":  rows,
				"total": total,
			})
		}

		if len(rows) == 0 {
			fmt.Fprintf(out, "No spend recorded in the last %s.\n", since)
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "%s\tCALLS\tTOKENS IN\tTOKENS OUT\tCOST\n", strings.ToUpper(string(group)))
		for _, r := range rows {
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\t$%.4f\n", r.Key, r.Calls, r.TokensIn, r.TokensOut, r.Cost)
		}
		fmt.Fprintf(w, "TOTAL\t%d\t%d\t%d\t$%.4f\n", total.Calls, total.TokensIn, total.TokensOut, total.Cost)
		return w.Flush()
	})
}
