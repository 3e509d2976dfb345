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


package profile

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/hivetechs/consensus/pkg/llm"
)

// MaxProfileNameLength is the maximum length for profile names
const MaxProfileNameLength = 64

var (
	// profileNameRegex matches valid profile names: lowercase alphanumeric, underscore, hyphen
	profileNameRegex = regexp.MustCompile(`^[a-z0-9_-]+$`)

	// reservedProfileNames cannot be used for user-defined profiles
	reservedProfileNames = map[string]bool{
		"system": true,
	}
)

// ValidationError represents a validation failure with field context.
type ValidationError struct {
	Profile string
	Field   string
	Message string
	Value   string
}

func (e *ValidationError) Error() string {
	prefix := e.Field
	if e.Profile != "" {
		prefix = fmt.Sprintf("profile %s: %s", e.Profile, e.Field)
	}
	if e.Value != "" {
		return fmt.Sprintf("%s: %s (value: %q)", prefix, e.Message, e.Value)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// ValidateName checks if a profile name is valid.
func ValidateName(name string) error {
	if name == "" {
		return &ValidationError{Field: "name", Message: "profile name cannot be empty"}
	}
	if len(name) > MaxProfileNameLength {
		return &ValidationError{
			Field:   "name",
			Message: fmt.Sprintf("profile name exceeds maximum length of %d characters", MaxProfileNameLength),
			Value:   name,
		}
	}
	if !profileNameRegex.MatchString(name) {
		return &ValidationError{
			Field:   "name",
			Message: "profile name must contain only lowercase letters, numbers, underscores, and hyphens",
			Value:   name,
		}
	}
	if reservedProfileNames[name] {
		return &ValidationError{
			Field:   "name",
			Message: fmt.Sprintf("profile name %q is reserved", name),
			Value:   name,
		}
	}
	return nil
}

// Validate checks a profile: a valid name, a known strategy, one model per
// stage in provider/model form, and compilable model constraints.
func Validate(p Profile) error {
	if err := ValidateName(p.Name); err != nil {
		return err
	}
	if !p.Strategy.IsValid() {
		return &ValidationError{
			Profile: p.Name,
			Field:   "strategy",
			Message: "must be one of cost-optimized, balanced, performance, quality-first",
			Value:   string(p.Strategy),
		}
	}
	for _, stage := range Stages {
		id := p.Models.For(stage)
		if id == "" {
			return &ValidationError{Profile: p.Name, Field: "models." + stage, Message: "a model is required for every stage"}
		}
		if !strings.Contains(id, "/") {
			return &ValidationError{
				Profile: p.Name,
				Field:   "models." + stage,
				Message: "model id must be in provider/model form",
				Value:   id,
			}
		}
		if t := p.Temperature.For(stage); t != nil && (*t < 0 || *t > 2) {
			return &ValidationError{
				Profile: p.Name,
				Field:   "temperature." + stage,
				Message: "temperature must be between 0 and 2",
				Value:   fmt.Sprintf("%g", *t),
			}
		}
	}
	if p.MaxCostPerRun < 0 {
		return &ValidationError{Profile: p.Name, Field: "max_cost_per_run", Message: "must not be negative"}
	}
	if _, err := llm.MatchPatterns(p.Allow, p.Deny); err != nil {
		return &ValidationError{Profile: p.Name, Field: "allow", Message: err.Error()}
	}
	if _, err := llm.Where(p.Where); err != nil {
		return &ValidationError{Profile: p.Name, Field: "where", Message: err.Error(), Value: p.Where}
	}
	return nil
}
