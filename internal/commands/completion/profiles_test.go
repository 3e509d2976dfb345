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

package completion

import (
	"strings"
	"testing"

	"github.com/hivetechs/consensus/internal/commands/shared"
	"github.com/hivetechs/consensus/internal/testing/fixture"
)

func TestCompleteProfiles(t *testing.T) {
	shared.ResetFlagsForTest()
	t.Cleanup(shared.ResetFlagsForTest)

	path := fixture.WriteConfig(t, map[string]any{
		"default_profile": "reviews",
		"profiles": map[string]any{
			"reviews": map[string]any{
				"description": "Code review",
				"strategy":    "quality-first",
				"models": map[string]any{
					"generator": "anthropic/claude-3.5-sonnet",
					"refiner":   "openai/gpt-4o",
					"validator": "openai/gpt-4o",
					"curator":   "anthropic/claude-3.5-sonnet",
				},
			},
		},
	})
	shared.SetConfigPathForTest(path)

	completions, _ := CompleteProfiles(nil, nil, "")
	if len(completions) != 1 {
		t.Fatalf("completions = %v, want one profile", completions)
	}
	if !strings.HasPrefix(completions[0], "reviews\t") {
		t.Errorf("completion = %q", completions[0])
	}
}

func TestCompleteProfiles_MissingConfig(t *testing.T) {
	shared.ResetFlagsForTest()
	t.Cleanup(shared.ResetFlagsForTest)
	shared.SetConfigPathForTest("/nonexistent/hive/config.yaml")

	completions, _ := CompleteProfiles(nil, nil, "")
	if len(completions) != 0 {
		t.Errorf("expected no completions, got %v", completions)
	}
}
