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

	"github.com/spf13/cobra"
)

func values(completions []string) []string {
	out := make([]string, len(completions))
	for i, c := range completions {
		out[i] = strings.SplitN(c, "\t", 2)[0]
	}
	return out
}

func TestStaticCompletions(t *testing.T) {
	tests := []struct {
		name string
		fn   func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective)
		want []string
	}{
		{"stages", CompleteStages, []string{"generator", "refiner", "validator", "curator"}},
		{"tiers", CompleteTiers, []string{"fast", "balanced", "strategic"}},
		{"capabilities", CompleteCapabilities, []string{"chat", "code", "reasoning", "vision", "tools", "long-context"}},
		{"group by", CompleteGroupBy, []string{"model", "stage"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			completions, directive := tt.fn(nil, nil, "")
			if directive != cobra.ShellCompDirectiveNoFileComp {
				t.Errorf("expected ShellCompDirectiveNoFileComp, got %v", directive)
			}
			got := values(completions)
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("completions = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCompleteStages_OnlyFirstArg(t *testing.T) {
	completions, _ := CompleteStages(nil, []string{"refiner"}, "")
	if len(completions) != 0 {
		t.Errorf("expected no completions after the stage argument, got %v", completions)
	}
}
