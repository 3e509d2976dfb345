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

package consensus

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/hivetechs/consensus/internal/commands/shared"
	"github.com/hivetechs/consensus/internal/config"
	"github.com/hivetechs/consensus/internal/testing/fixture"
	"github.com/hivetechs/consensus/internal/testing/mock"
	"github.com/hivetechs/consensus/pkg/consensus"
	pkgerrors "github.com/hivetechs/consensus/pkg/errors"
	"github.com/hivetechs/consensus/pkg/llm"
)

func setup(t *testing.T) *mock.Gateway {
	t.Helper()
	shared.ResetFlagsForTest()
	shared.SetConfigPathForTest(fixture.WriteConfig(t, nil))
	gw := mock.NewGateway()
	shared.SetGatewayForTest(gw)
	t.Cleanup(func() {
		shared.ResetFlagsForTest()
		shared.SetGatewayForTest(nil)
	})
	return gw
}

// execute runs the command under a root carrying the global flags.
func execute(t *testing.T, stdin string, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	root := &cobra.Command{Use: "hive", SilenceUsage: true, SilenceErrors: true}
	verbose, quiet, jsonFlag, cfg := shared.RegisterFlagPointers()
	root.PersistentFlags().BoolVarP(verbose, "verbose", "v", false, "")
	root.PersistentFlags().BoolVarP(quiet, "quiet", "q", false, "")
	root.PersistentFlags().BoolVar(jsonFlag, "json", false, "")
	root.PersistentFlags().StringVar(cfg, "config", *cfg, "")
	root.PersistentFlags().StringVar(shared.JQFlagPointer(), "jq", "", "")
	root.AddCommand(NewCommand())

	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"consensus"}, args...))
	err = root.Execute()
	return out.String(), errOut.String(), err
}

func curatorOf(t *testing.T, name string) string {
	t.Helper()
	p, ok := config.DefaultProfiles()[name]
	if !ok {
		t.Fatalf("no default profile %q", name)
	}
	return p.Models.Curator
}

func promptOf(req llm.CallRequest) string {
	var b strings.Builder
	for _, m := range req.Messages {
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
}

func TestNewCommand(t *testing.T) {
	cmd := NewCommand()

	if cmd.Use != "consensus [question]" {
		t.Errorf("unexpected use %q", cmd.Use)
	}
	for _, flag := range []string{"profile", "context", "context-file", "no-progress", "stream", "timeout"} {
		if cmd.Flags().Lookup(flag) == nil {
			t.Errorf("--%s flag not defined", flag)
		}
	}
}

func TestConsensus_PrintsFinalAnswer(t *testing.T) {
	gw := setup(t)

	stdout, stderr, err := execute(t, "", "--no-progress", "What", "is", "a", "goroutine?")
	if err != nil {
		t.Fatalf("consensus failed: %v\nstderr: %s", err, stderr)
	}

	want := "answer from " + curatorOf(t, "balanced")
	if strings.TrimSpace(stdout) != want {
		t.Errorf("stdout = %q, want %q", stdout, want)
	}
	if !strings.Contains(stderr, "Consensus completed") {
		t.Errorf("expected completion summary on stderr, got: %s", stderr)
	}
	if calls := gw.Calls(); len(calls) != 4 {
		t.Errorf("gateway calls = %v, want 4", calls)
	}
	if !strings.Contains(promptOf(gw.Requests()[0]), "What is a goroutine?") {
		t.Errorf("generator prompt does not carry the question: %+v", gw.Requests()[0].Messages)
	}
}

func TestConsensus_ReadsStdinAndContextFile(t *testing.T) {
	gw := setup(t)
	ctxFile := filepath.Join(t.TempDir(), "context.md")
	if err := os.WriteFile(ctxFile, []byte("The service is written in Go."), 0o600); err != nil {
		t.Fatal(err)
	}

	_, stderr, err := execute(t, "Review the design\n", "--no-progress", "--profile", "speed", "--context-file", ctxFile)
	if err != nil {
		t.Fatalf("consensus failed: %v\nstderr: %s", err, stderr)
	}

	first := gw.Requests()[0]
	if first.Model != config.DefaultProfiles()["speed"].Models.Generator {
		t.Errorf("generator model = %q", first.Model)
	}
	prompt := promptOf(first)
	for _, want := range []string{"Review the design", "The service is written in Go."} {
		if !strings.Contains(prompt, want) {
			t.Errorf("generator messages missing %q", want)
		}
	}
}

func TestConsensus_EmptyQuestion(t *testing.T) {
	setup(t)

	_, _, err := execute(t, "   \n")
	if err == nil {
		t.Fatal("expected error for empty question")
	}
	var exitErr *shared.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected ExitError, got %T", err)
	}
	if pkgerrors.KindOf(err) != pkgerrors.KindValidation {
		t.Errorf("kind = %q, want validation", pkgerrors.KindOf(err))
	}
}

func TestConsensus_UnknownProfile(t *testing.T) {
	setup(t)

	_, _, err := execute(t, "", "--profile", "nope", "hello")
	var notFound *pkgerrors.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestConsensus_JSONEvents(t *testing.T) {
	setup(t)

	stdout, _, err := execute(t, "", "--json", "hello")
	if err != nil {
		t.Fatalf("consensus failed: %v", err)
	}

	var events []consensus.PipelineEvent
	scanner := bufio.NewScanner(strings.NewReader(stdout))
	for scanner.Scan() {
		var ev consensus.PipelineEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			t.Fatalf("invalid event line %q: %v", scanner.Text(), err)
		}
		events = append(events, ev)
	}
	if len(events) == 0 {
		t.Fatal("no events written")
	}
	last := events[len(events)-1]
	if last.Type != consensus.EventComplete {
		t.Errorf("last event = %q, want complete", last.Type)
	}
	if last.StagesUsed != 4 {
		t.Errorf("stages used = %d", last.StagesUsed)
	}
	completed := 0
	for _, ev := range events {
		if ev.Type == consensus.EventStageCompleted {
			completed++
		}
	}
	if completed != 4 {
		t.Errorf("stage_completed events = %d, want 4", completed)
	}
}

func TestConsensus_JQFilter(t *testing.T) {
	setup(t)

	stdout, _, err := execute(t, "", "--jq", `select(.type == "complete") | .final_text`, "hello")
	if err != nil {
		t.Fatalf("consensus failed: %v", err)
	}
	want := `"answer from ` + curatorOf(t, "balanced") + `"`
	if strings.TrimSpace(stdout) != want {
		t.Errorf("stdout = %q, want %q", stdout, want)
	}
}

func TestConsensus_GatewayFailure(t *testing.T) {
	gw := setup(t)
	authErr := &pkgerrors.AuthError{Provider: "openrouter", StatusCode: 401, Message: "invalid key"}
	m := config.DefaultProfiles()["balanced"].Models
	for _, id := range []string{m.Generator, m.Refiner, m.Validator, m.Curator} {
		gw.FailAlways(id, authErr)
	}

	_, stderr, err := execute(t, "", "--no-progress", "hello")
	if err == nil {
		t.Fatal("expected failure")
	}
	if code := shared.ExitCodeFor(err); code != shared.ExitAuthError {
		t.Errorf("exit code = %d, want %d", code, shared.ExitAuthError)
	}
	if !strings.Contains(stderr, "Consensus failed") {
		t.Errorf("expected failure summary, got: %s", stderr)
	}
}
