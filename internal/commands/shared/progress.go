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

package shared

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

// ProgressDisplay renders a consensus run as one line per stage.
// It animates a spinner for the running stage and falls back to static
// output when not writing to a TTY or when disabled.
type ProgressDisplay struct {
	mu         sync.Mutex
	out        io.Writer
	isTTY      bool
	noProgress bool
	verbose    bool

	profile string
	runID   string

	// Current stage tracking
	currentStage   string
	currentModel   string
	stageStartTime time.Time
	percent        float64
	stageIndex     int
	totalStages    int

	// Log messages for current stage (verbose mode)
	currentLogs []string

	completedStages []CompletedStage

	// Animation state
	spinnerFrames []string
	frameIdx      int
	done          chan struct{}
	running       bool
}

// CompletedStage tracks information about a finished stage.
type CompletedStage struct {
	Name      string
	ModelID   string
	Status    string // "success", "error"
	Cost      float64
	Estimated bool
	Duration  time.Duration
	TokensIn  int
	TokensOut int
}

// NewProgressDisplay creates a display writing to out.
func NewProgressDisplay(out io.Writer, noProgress, verbose bool) *ProgressDisplay {
	isTTY := false
	if f, ok := out.(*os.File); ok {
		isTTY = term.IsTerminal(int(f.Fd()))
	}
	return &ProgressDisplay{
		out:           out,
		isTTY:         isTTY,
		noProgress:    noProgress,
		verbose:       verbose,
		spinnerFrames: []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
	}
}

// Start prints the run header.
func (p *ProgressDisplay) Start(profile, runID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.profile = profile
	p.runID = runID

	header := fmt.Sprintf("Consensus run: %s", Bold.Render(profile))
	if runID != "" {
		header += " " + Muted.Render("("+runID+")")
	}
	fmt.Fprintln(p.out, header)
	fmt.Fprintln(p.out)
}

// StageStarted is called when a stage begins calling a model. A second
// call for the same stage means the engine fell back to another model.
func (p *ProgressDisplay) StageStarted(stage, modelID string, index, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.currentStage == stage && p.currentModel != "" && p.currentModel != modelID {
		p.logLocked(fmt.Sprintf("%s failed, falling back to %s", p.currentModel, modelID))
		p.currentModel = modelID
		p.percent = 0
		if p.isInteractive() {
			p.redrawSpinnerLine()
		}
		return
	}

	p.currentStage = stage
	p.currentModel = modelID
	p.stageStartTime = time.Now()
	p.percent = 0
	p.stageIndex = index
	p.totalStages = total
	p.currentLogs = nil

	if p.isInteractive() {
		p.startSpinner()
	} else {
		fmt.Fprintf(p.out, "  %s %s %s...\n", Muted.Render(SymbolInfo), stage, Muted.Render(modelID))
	}
}

// StageProgress updates the estimated completion of the running stage.
func (p *ProgressDisplay) StageProgress(percent float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.percent = percent
}

// StageCompleted is called when a stage succeeds.
func (p *ProgressDisplay) StageCompleted(stage, modelID string, cost float64, estimated bool, durationMs int64, tokensIn, tokensOut int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	duration := time.Duration(durationMs) * time.Millisecond
	p.completedStages = append(p.completedStages, CompletedStage{
		Name:      stage,
		ModelID:   modelID,
		Status:    "success",
		Cost:      cost,
		Estimated: estimated,
		Duration:  duration,
		TokensIn:  tokensIn,
		TokensOut: tokensOut,
	})

	p.endStage()
	p.printCompletedStage(stage, modelID, "success", cost, estimated, duration)
}

// StageFailed is called when the run fails inside a stage.
func (p *ProgressDisplay) StageFailed(stage, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if stage == "" {
		stage = p.currentStage
	}
	duration := time.Duration(0)
	if !p.stageStartTime.IsZero() {
		duration = time.Since(p.stageStartTime)
	}
	model := p.currentModel

	p.endStage()
	if stage != "" {
		p.printCompletedStage(stage, model, "error", 0, false, duration)
	}
	if message != "" {
		fmt.Fprintf(p.out, "    %s %s\n", Muted.Render("│"), StatusError.Render(message))
	}
}

// LogMessage adds a log message (for verbose mode).
func (p *ProgressDisplay) LogMessage(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logLocked(message)
}

func (p *ProgressDisplay) logLocked(message string) {
	if !p.verbose {
		return
	}

	if p.isInteractive() && p.currentStage != "" {
		p.currentLogs = append(p.currentLogs, message)
		p.redrawSpinnerLine()
	} else {
		fmt.Fprintf(p.out, "    %s %s\n", Muted.Render("│"), message)
	}
}

// Finish prints the final status with run totals.
func (p *ProgressDisplay) Finish(status string, totalCost float64, totalTokens int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopSpinner()
	fmt.Fprintln(p.out)

	totals := Muted.Render(fmt.Sprintf("%d tokens, $%.4f", totalTokens, totalCost))
	switch status {
	case "completed":
		fmt.Fprintf(p.out, "%s Consensus completed %s\n", StatusOK.Render(SymbolOK), totals)
	case "failed":
		fmt.Fprintf(p.out, "%s Consensus failed %s\n", StatusError.Render(SymbolError), totals)
	case "cancelled":
		fmt.Fprintf(p.out, "%s Consensus cancelled %s\n", StatusWarn.Render(SymbolWarn), totals)
	default:
		fmt.Fprintf(p.out, "Consensus %s\n", status)
	}
}

// CompletedStages returns the stages finished so far.
func (p *ProgressDisplay) CompletedStages() []CompletedStage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]CompletedStage(nil), p.completedStages...)
}

func (p *ProgressDisplay) endStage() {
	if p.isInteractive() {
		p.stopSpinner()
		p.clearCurrentLines()
	}
	p.currentStage = ""
	p.currentModel = ""
	p.currentLogs = nil
	p.stageStartTime = time.Time{}
}

// isInteractive returns true if we should use interactive mode.
func (p *ProgressDisplay) isInteractive() bool {
	return p.isTTY && !p.noProgress
}

// startSpinner begins the spinner animation goroutine.
func (p *ProgressDisplay) startSpinner() {
	if p.running {
		return
	}
	p.running = true
	p.done = make(chan struct{})
	p.frameIdx = 0

	p.renderSpinnerLine()

	done := p.done
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				p.mu.Lock()
				if p.running {
					p.frameIdx = (p.frameIdx + 1) % len(p.spinnerFrames)
					p.redrawSpinnerLine()
				}
				p.mu.Unlock()
			}
		}
	}()
}

// stopSpinner stops the spinner animation.
func (p *ProgressDisplay) stopSpinner() {
	if !p.running {
		return
	}
	p.running = false
	close(p.done)
}

// clearCurrentLines clears the spinner line and any log lines below it.
func (p *ProgressDisplay) clearCurrentLines() {
	if !p.isTTY {
		return
	}
	fmt.Fprint(p.out, "\r\033[K")
	for i := 0; i < len(p.currentLogs); i++ {
		fmt.Fprint(p.out, "\033[A\033[K") // move up and clear
	}
}

// renderSpinnerLine renders the current spinner state.
func (p *ProgressDisplay) renderSpinnerLine() {
	elapsedStr := formatDuration(time.Since(p.stageStartTime))

	frame := p.spinnerFrames[p.frameIdx]
	if !ColorEnabled() {
		frame = "..."
	}

	// Format: "  ⠋ refiner  openai/gpt-4o  42%            (3.1s)"
	stageDisplay := fmt.Sprintf("%s  %s", p.currentStage, p.currentModel)
	if p.percent > 0 {
		stageDisplay += fmt.Sprintf("  %.0f%%", p.percent)
	}
	line := fmt.Sprintf("  %s %s", StatusInfo.Render(frame), stageDisplay)

	padding := 60 - len(stageDisplay) - 4
	if padding < 2 {
		padding = 2
	}
	line += strings.Repeat(" ", padding) + Muted.Render("("+elapsedStr+")")

	fmt.Fprint(p.out, line)
}

// redrawSpinnerLine redraws the spinner line (and logs in verbose mode).
func (p *ProgressDisplay) redrawSpinnerLine() {
	if !p.isTTY {
		return
	}

	fmt.Fprint(p.out, "\r\033[K")
	for i := 0; i < len(p.currentLogs); i++ {
		fmt.Fprint(p.out, "\033[A\033[K")
	}

	p.renderSpinnerLine()

	for _, log := range p.currentLogs {
		fmt.Fprintf(p.out, "\n    %s %s", Muted.Render("│"), log)
	}
}

// printCompletedStage prints a finished stage line.
func (p *ProgressDisplay) printCompletedStage(stage, modelID, status string, cost float64, estimated bool, duration time.Duration) {
	symbol := StatusOK.Render(SymbolOK)
	if status == "error" {
		symbol = StatusError.Render(SymbolError)
	}

	// Right-aligned format: "  ✓ generator  openai/gpt-4o       $0.0312  (12.4s)"
	label := fmt.Sprintf("%-10s %s", stage, modelID)
	maxLabelLen := 45
	if len(label) > maxLabelLen {
		label = label[:maxLabelLen-3] + "..."
	}
	padding := maxLabelLen - len(label)
	if padding < 1 {
		padding = 1
	}

	fmt.Fprintf(p.out, "  %s %s%s%s  %s\n",
		symbol,
		label,
		strings.Repeat(" ", padding),
		formatCostValue(cost, estimated),
		Muted.Render("("+formatDuration(duration)+")"),
	)
}

// formatCostValue formats a cost, marking estimates with "~".
func formatCostValue(cost float64, estimated bool) string {
	if cost == 0 {
		return Muted.Render("--")
	}
	prefix := ""
	if estimated {
		prefix = "~"
	}
	return fmt.Sprintf("%s$%.4f", prefix, cost)
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	d = d.Round(100 * time.Millisecond)
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	minutes := int(d.Minutes())
	seconds := d.Seconds() - float64(minutes*60)
	return fmt.Sprintf("%dm %.0fs", minutes, seconds)
}
