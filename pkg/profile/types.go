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


// Package profile defines consensus profiles: a model per pipeline stage
// plus the strategy used to rank fallback models.
package profile

import "sort"

// Stage names, in pipeline order.
const (
	StageGenerator = "generator"
	StageRefiner   = "refiner"
	StageValidator = "validator"
	StageCurator   = "curator"
)

// Stages lists the pipeline stages in execution order.
var Stages = []string{StageGenerator, StageRefiner, StageValidator, StageCurator}

// Strategy selects the weights used to score candidate models.
type Strategy string

const (
	StrategyCostOptimized Strategy = "cost-optimized"
	StrategyBalanced      Strategy = "balanced"
	StrategyPerformance   Strategy = "performance"
	StrategyQualityFirst  Strategy = "quality-first"
)

// IsValid reports whether s is a known strategy.
func (s Strategy) IsValid() bool {
	switch s {
	case StrategyCostOptimized, StrategyBalanced, StrategyPerformance, StrategyQualityFirst:
		return true
	}
	return false
}

// StageModels assigns one model id per stage.
type StageModels struct {
	Generator string `yaml:"generator" json:"generator"`
	Refiner   string `yaml:"refiner" json:"refiner"`
	Validator string `yaml:"validator" json:"validator"`
	Curator   string `yaml:"curator" json:"curator"`
}

// For returns the model assigned to stage.
func (m StageModels) For(stage string) string {
	switch stage {
	case StageGenerator:
		return m.Generator
	case StageRefiner:
		return m.Refiner
	case StageValidator:
		return m.Validator
	case StageCurator:
		return m.Curator
	}
	return ""
}

// StageTemperatures optionally overrides sampling temperature per stage.
type StageTemperatures struct {
	Generator *float64 `yaml:"generator,omitempty" json:"generator,omitempty"`
	Refiner   *float64 `yaml:"refiner,omitempty" json:"refiner,omitempty"`
	Validator *float64 `yaml:"validator,omitempty" json:"validator,omitempty"`
	Curator   *float64 `yaml:"curator,omitempty" json:"curator,omitempty"`
}

// For returns the temperature for stage, or nil to use the default.
func (t StageTemperatures) For(stage string) *float64 {
	switch stage {
	case StageGenerator:
		return t.Generator
	case StageRefiner:
		return t.Refiner
	case StageValidator:
		return t.Validator
	case StageCurator:
		return t.Curator
	}
	return nil
}

// Profile is a named consensus configuration. Profiles are values: a run
// copies the profile it starts with and never observes later edits.
type Profile struct {
	Name        string            `yaml:"-" json:"name"`
	Description string            `yaml:"description,omitempty" json:"description,omitempty"`
	Strategy    Strategy          `yaml:"strategy" json:"strategy"`
	Models      StageModels       `yaml:"models" json:"models"`
	Temperature StageTemperatures `yaml:"temperature,omitempty" json:"temperature,omitempty"`

	// MaxCostPerRun excludes candidates whose estimated stage cost would push
	// a run past this amount. Zero is unlimited.
	MaxCostPerRun float64 `yaml:"max_cost_per_run,omitempty" json:"max_cost_per_run,omitempty"`

	// Allow and Deny are glob patterns on fallback model ids.
	Allow []string `yaml:"allow,omitempty" json:"allow,omitempty"`
	Deny  []string `yaml:"deny,omitempty" json:"deny,omitempty"`

	// Where is an expression over model attributes that fallbacks must satisfy.
	Where string `yaml:"where,omitempty" json:"where,omitempty"`
}

// Set is an immutable collection of profiles keyed by name.
type Set struct {
	profiles map[string]Profile
}

// NewSet validates profiles and builds a set. Map keys become profile names.
func NewSet(profiles map[string]Profile) (*Set, error) {
	s := &Set{profiles: make(map[string]Profile, len(profiles))}
	for name, p := range profiles {
		p.Name = name
		if err := Validate(p); err != nil {
			return nil, err
		}
		p.Allow = append([]string(nil), p.Allow...)
		p.Deny = append([]string(nil), p.Deny...)
		s.profiles[name] = p
	}
	return s, nil
}

// Get returns the named profile.
func (s *Set) Get(name string) (Profile, bool) {
	p, ok := s.profiles[name]
	return p, ok
}

// Names returns profile names sorted alphabetically.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.profiles))
	for name := range s.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of profiles.
func (s *Set) Len() int {
	return len(s.profiles)
}

// ModelIDs returns every model id referenced by any profile, sorted.
func (s *Set) ModelIDs() []string {
	seen := make(map[string]bool)
	for _, p := range s.profiles {
		for _, stage := range Stages {
			if id := p.Models.For(stage); id != "" {
				seen[id] = true
			}
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
