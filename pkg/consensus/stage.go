package consensus

import "github.com/hivetechs/consensus/pkg/profile"

// Stage is one step of the consensus pipeline.
type Stage string

const (
	StageGenerator Stage = profile.StageGenerator
	StageRefiner   Stage = profile.StageRefiner
	StageValidator Stage = profile.StageValidator
	StageCurator   Stage = profile.StageCurator
)

// Stages lists every stage in execution order. Stages are never skipped.
var Stages = []Stage{StageGenerator, StageRefiner, StageValidator, StageCurator}

// String returns the stage name.
func (s Stage) String() string { return string(s) }

// Index returns the zero-based position of s in the pipeline, or -1.
func (s Stage) Index() int {
	for i, st := range Stages {
		if st == s {
			return i
		}
	}
	return -1
}

// IsValid reports whether s is a pipeline stage.
func (s Stage) IsValid() bool { return s.Index() >= 0 }
