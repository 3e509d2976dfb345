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
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/hivetechs/consensus/internal/bootstrap"
	"github.com/hivetechs/consensus/internal/commands/shared"
	"github.com/hivetechs/consensus/internal/config"
	"github.com/hivetechs/consensus/internal/testing/fixture"
	"github.com/hivetechs/consensus/pkg/llm/cost"
)

// setup writes a sqlite-backed config and seeds it with records.
func setup(t *testing.T, records ...cost.Record) {
	t.Helper()
	shared.ResetFlagsForTest()
	t.Cleanup(shared.ResetFlagsForTest)

	path := fixture.WriteConfig(t, map[string]any{
		"storage": map[string]any{
			"backend": "sqlite",
			"path":    filepath.Join(t.TempDir(), "hive.db"),
		},
		"budget": map[string]any{"daily_limit": 1.0, "monthly_limit": 20.0},
	})
	shared.SetConfigPathForTest(path)

	if len(records) == 0 {
		return
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	ctx := context.Background()
	stores, err := bootstrap.OpenStores(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("open stores: %v", err)
	}
	for _, r := range records {
		stores.Costs.Record(r)
	}
	if err := stores.Close(ctx); err != nil {
		t.Fatalf("close stores: %v", err)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := &cobra.Command{Use: "hive", SilenceUsage: true, SilenceErrors: true}
	verbose, quiet, jsonFlag, cfg := shared.RegisterFlagPointers()
	root.PersistentFlags().BoolVarP(verbose, "verbose", "v", false, "")
	root.PersistentFlags().BoolVarP(quiet, "quiet", "q", false, "")
	root.PersistentFlags().BoolVar(jsonFlag, "json", false, "")
	root.PersistentFlags().StringVar(cfg, "config", *cfg, "")
	root.PersistentFlags().StringVar(shared.JQFlagPointer(), "jq", "", "")
	root.AddCommand(NewCommand())

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func seedRecords() []cost.Record {
	now := time.Now()
	return []cost.Record{
		{RunID: "r1", ModelID: "openai/gpt-4o", Stage: "generator", TokensIn: 100, TokensOut: 200, Cost: 0.25, CreatedAt: now},
		{RunID: "r1", ModelID: "anthropic/claude-3.5-sonnet", Stage: "curator", TokensIn: 50, TokensOut: 80, Cost: 0.5, CreatedAt: now},
		{RunID: "r0", ModelID: "openai/gpt-4o", Stage: "generator", TokensIn: 10, TokensOut: 10, Cost: 0.1, CreatedAt: now.Add(-72 * time.Hour)},
	}
}

func TestStatus_JSON(t *testing.T) {
	setup(t, seedRecords()...)

	out, err := execute(t, "budget", "--json")
	if err != nil {
		t.Fatalf("budget failed: %v", err)
	}
	var status cost.Status
	if err := json.Unmarshal([]byte(out), &status); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	if status.DailyLimit != 1.0 || status.MonthlyLimit != 20.0 {
		t.Errorf("limits = %v/%v", status.DailyLimit, status.MonthlyLimit)
	}
	if status.DailySpent < 0.74 || status.DailySpent > 0.76 {
		t.Errorf("daily spent = %v, want 0.75", status.DailySpent)
	}
}

func TestStatus_Text(t *testing.T) {
	setup(t)

	out, err := execute(t, "budget", "status")
	if err != nil {
		t.Fatalf("budget status failed: %v", err)
	}
	for _, want := range []string{"Today:", "This month:", "$1.00"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestSummary_ByStage(t *testing.T) {
	setup(t, seedRecords()...)

	out, err := execute(t, "budget", "summary", "--by", "stage", "--json")
	if err != nil {
		t.Fatalf("summary failed: %v", err)
	}
	var body struct {
		By    string         `json:"by"`
		Rows  []summaryRow   `json:"rows"`
		Total cost.Aggregate `json:"total"`
	}
	if err := json.Unmarshal([]byte(out), &body); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	if body.By != "stage" {
		t.Errorf("by = %q", body.By)
	}
	if len(body.Rows) != 2 {
		t.Fatalf("rows = %+v, want generator and curator", body.Rows)
	}
	if body.Rows[0].Key != "curator" {
		t.Errorf("rows should be ordered by cost, got %+v", body.Rows)
	}
	if body.Total.Calls != 2 {
		t.Errorf("total calls = %d, records older than --since must be excluded", body.Total.Calls)
	}
}

func TestSummary_Table(t *testing.T) {
	setup(t, seedRecords()...)

	out, err := execute(t, "budget", "summary", "--since", "168h")
	if err != nil {
		t.Fatalf("summary failed: %v", err)
	}
	if !strings.Contains(out, "MODEL") || !strings.Contains(out, "openai/gpt-4o") {
		t.Errorf("unexpected table:\n%s", out)
	}
	if !strings.Contains(out, "TOTAL") {
		t.Errorf("missing total row:\n%s", out)
	}
}

func TestSummary_Empty(t *testing.T) {
	setup(t)

	out, err := execute(t, "budget", "summary")
	if err != nil {
		t.Fatalf("summary failed: %v", err)
	}
	if !strings.Contains(out, "No spend recorded") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestSummary_InvalidGroup(t *testing.T) {
	setup(t)

	_, err := execute(t, "budget", "summary", "--by", "provider")
	if code := shared.ExitCodeFor(err); code != shared.ExitConfigError {
		t.Errorf("exit code = %d, want %d (err %v)", code, shared.ExitConfigError, err)
	}
}
