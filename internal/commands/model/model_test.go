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
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/hivetechs/consensus/internal/commands/shared"
	"github.com/hivetechs/consensus/internal/testing/fixture"
	"github.com/hivetechs/consensus/internal/testing/mock"
	"github.com/hivetechs/consensus/pkg/consensus"
	pkgerrors "github.com/hivetechs/consensus/pkg/errors"
	"github.com/hivetechs/consensus/pkg/llm"
)

func setup(t *testing.T) {
	t.Helper()
	shared.ResetFlagsForTest()
	shared.SetConfigPathForTest(fixture.WriteConfig(t, nil))
	shared.SetGatewayForTest(mock.NewGateway())
	t.Cleanup(func() {
		shared.ResetFlagsForTest()
		shared.SetGatewayForTest(nil)
	})
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

func TestList_JSONWithFilters(t *testing.T) {
	setup(t)

	out, err := execute(t, "models", "list", "--allow", "openai/*", "--json")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	var body struct {
		Models []llm.ModelDescriptor `json:"models"`
	}
	if err := json.Unmarshal([]byte(out), &body); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	if len(body.Models) == 0 {
		t.Fatal("expected openai models in the seed catalog")
	}
	for _, m := range body.Models {
		if !strings.HasPrefix(m.ID, "openai/") {
			t.Errorf("model %q does not match --allow", m.ID)
		}
	}
}

func TestList_Table(t *testing.T) {
	setup(t)

	out, err := execute(t, "models", "list", "--deny", "**")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if !strings.Contains(out, "No models match") {
		t.Errorf("expected empty message, got: %s", out)
	}

	out, err = execute(t, "models")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if !strings.Contains(out, "MODEL") || !strings.Contains(out, "openai/gpt-4o") {
		t.Errorf("unexpected table:\n%s", out)
	}
}

func TestList_InvalidTier(t *testing.T) {
	setup(t)

	_, err := execute(t, "models", "list", "--tier", "huge")
	var exitErr *shared.ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != shared.ExitConfigError {
		t.Fatalf("expected config exit error, got %v", err)
	}
}

func TestInfo(t *testing.T) {
	setup(t)

	out, err := execute(t, "models", "info", "openai/gpt-4o")
	if err != nil {
		t.Fatalf("info failed: %v", err)
	}
	for _, want := range []string{"openai/gpt-4o", "Provider:", "Pricing:"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	_, err = execute(t, "models", "info", "acme/unknown")
	var notFound *pkgerrors.NotFoundError
	if !errors.As(err, &notFound) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}

func TestRank(t *testing.T) {
	setup(t)

	out, err := execute(t, "models", "rank", "refiner", "--json")
	if err != nil {
		t.Fatalf("rank failed: %v", err)
	}
	var body struct {
		Stage      consensus.Stage    `json:"stage"`
		Profile    string             `json:"profile"`
		Configured string             `json:"configured"`
		Ranked     []consensus.Scored `json:"ranked"`
	}
	if err := json.Unmarshal([]byte(out), &body); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	if body.Stage != consensus.StageRefiner || body.Profile != "balanced" {
		t.Errorf("unexpected header: %+v", body)
	}
	if len(body.Ranked) == 0 {
		t.Fatal("expected ranked candidates")
	}
	for i := 1; i < len(body.Ranked); i++ {
		if body.Ranked[i].Score > body.Ranked[i-1].Score {
			t.Errorf("ranking not sorted at %d", i)
		}
	}
}

func TestRank_InvalidStage(t *testing.T) {
	setup(t)

	_, err := execute(t, "models", "rank", "summarizer")
	if code := shared.ExitCodeFor(err); code != shared.ExitConfigError {
		t.Errorf("exit code = %d, want %d (err %v)", code, shared.ExitConfigError, err)
	}
}
