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
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hivetechs/consensus/internal/commands/shared"
	"github.com/hivetechs/consensus/pkg/consensus"
	pkgerrors "github.com/hivetechs/consensus/pkg/errors"
)

type options struct {
	profile     string
	context     string
	contextFile string
	noProgress  bool
	stream      bool
	timeout     time.Duration
}

// NewCommand creates the consensus command
func NewCommand() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:     "consensus [question]",
		Aliases: []string{"ask"},
		Short:   "Run a question through the four-stage consensus pipeline",
		Annotations: map[string]string{
			"group": "execution",
		},
		Long: `Consensus sends a question through Generator, Refiner, Validator and
Curator stages, each answered by a model chosen from the active profile.

The question is read from the arguments, or from stdin when no arguments
are given or the only argument is "-".

Output:
  (default)  Stage progress on stderr, the curated answer on stdout
  --stream   Print answer tokens as they arrive
  --json     One JSON pipeline event per line (NDJSON)

Examples:
  hive consensus "What are the trade-offs of using gRPC over REST?"
  hive consensus -p quality --context-file ARCHITECTURE.md "Review this design"
  echo "Explain CRDTs" | hive consensus --json --jq 'select(.type=="complete") | .final_text'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConsensus(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.profile, "profile", "p", "", "Consensus profile to use (default from config)")
	cmd.Flags().StringVar(&opts.context, "context", "", "Repository or domain context for the Generator")
	cmd.Flags().StringVar(&opts.contextFile, "context-file", "", "Read Generator context from a file")
	cmd.Flags().BoolVar(&opts.noProgress, "no-progress", false, "Disable the animated stage display")
	cmd.Flags().BoolVar(&opts.stream, "stream", false, "Print answer tokens as they arrive")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "Cancel the run after this long")

	return cmd
}

func runConsensus(cmd *cobra.Command, args []string, opts options) error {
	query, err := readQuery(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}
	req := consensus.Request{
		Query:           query,
		ProfileID:       opts.profile,
		Context:         opts.context,
		TemporalContext: "Today is " + time.Now().Format("Monday, 2 January 2006"),
	}
	if opts.contextFile != "" {
		data, err := os.ReadFile(opts.contextFile)
		if err != nil {
			return shared.NewConfigError("failed to read context file", err)
		}
		req.Context = strings.TrimSpace(req.Context + "\n\n" + string(data))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	app, err := shared.OpenApp(ctx, false)
	if err != nil {
		return shared.NewExecutionError("failed to start engine", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), app.Config().Timeouts.Shutdown)
		defer cancel()
		app.Close(closeCtx)
	}()

	events, err := app.Engine.Run(ctx, req)
	if err != nil {
		return shared.NewExecutionError("consensus run rejected", err)
	}

	if shared.GetJSON() {
		return writeEvents(ctx, cmd.OutOrStdout(), events)
	}
	return renderEvents(cmd, events, opts)
}

// readQuery joins args into the question, falling back to stdin.
func readQuery(stdin io.Reader, args []string) (string, error) {
	var query string
	if len(args) == 0 || (len(args) == 1 && args[0] == "-") {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", shared.NewExecutionError("failed to read question from stdin", err)
		}
		query = string(data)
	} else {
		query = strings.Join(args, " ")
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return "", shared.NewExecutionError("no question given", &pkgerrors.ValidationError{
			Field:      "query",
			Message:    "query must not be empty",
			Suggestion: "pass the question as an argument or on stdin",
		})
	}
	return query, nil
}

// writeEvents prints each event as one JSON line and returns the run's
// terminal error.
func writeEvents(ctx context.Context, out io.Writer, events <-chan consensus.PipelineEvent) error {
	ew, err := shared.NewEventWriter(out)
	if err != nil {
		return err
	}
	var runErr error
	for ev := range events {
		if err := ew.Write(ctx, ev); err != nil && runErr == nil {
			runErr = shared.NewExecutionError("failed to write event", err)
		}
		if ev.Type == consensus.EventError {
			runErr = shared.NewExecutionError(ev.Message, ev.Err)
		}
	}
	return runErr
}

func renderEvents(cmd *cobra.Command, events <-chan consensus.PipelineEvent, opts options) error {
	out := cmd.OutOrStdout()
	progressOut := cmd.ErrOrStderr()
	if shared.GetQuiet() {
		progressOut = io.Discard
	}
	display := shared.NewProgressDisplay(progressOut, opts.noProgress, shared.GetVerbose())

	total := len(consensus.Stages)
	started := false
	streamed := false
	var runErr error

	for ev := range events {
		if !started {
			display.Start(profileName(opts.profile), ev.RunID)
			started = true
		}
		switch ev.Type {
		case consensus.EventStageStarted:
			display.StageStarted(string(ev.Stage), ev.ModelID, ev.Stage.Index()+1, total)
		case consensus.EventStageProgress:
			display.StageProgress(ev.Percent)
		case consensus.EventTokenReceived:
			if opts.stream && ev.Stage == consensus.StageCurator {
				fmt.Fprint(out, ev.Text)
				streamed = true
			}
		case consensus.EventStageCompleted:
			display.StageCompleted(string(ev.Stage), ev.ModelID, ev.Cost, false, ev.DurationMS, ev.TokensIn, ev.TokensOut)
		case consensus.EventError:
			display.StageFailed(string(ev.Stage), ev.Message)
			status := "failed"
			if ev.Kind == pkgerrors.KindCancelled {
				status = "cancelled"
			}
			display.Finish(status, totalCost(ev.Results), 0)
			runErr = shared.NewExecutionError("consensus run failed", ev.Err)
		case consensus.EventComplete:
			for _, w := range ev.Warnings {
				display.LogMessage(w)
			}
			display.Finish("completed", ev.TotalCost, ev.TotalTokens)
			if streamed {
				fmt.Fprintln(out)
			} else {
				fmt.Fprintln(out, ev.FinalText)
			}
		}
	}
	return runErr
}

func profileName(name string) string {
	if name == "" {
		return "default"
	}
	return name
}

func totalCost(results []consensus.StageResult) float64 {
	var sum float64
	for _, r := range results {
		sum += r.Cost
	}
	return sum
}
