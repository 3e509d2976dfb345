package consensus

import "context"

// StageInfo describes a stage about to run.
type StageInfo struct {
	RunID   string
	Stage   Stage
	Profile string

	// Input is the previous stage's output; empty for the Generator.
	Input string
}

// Hooks are optional callbacks around each stage. A BeforeStage error
// fails the run with kind "hook". AfterStage errors are logged and ignored.
type Hooks struct {
	BeforeStage func(ctx context.Context, info StageInfo) error
	AfterStage  func(ctx context.Context, result StageResult) error
}
