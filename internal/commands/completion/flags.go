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
	"github.com/spf13/cobra"
)

// CompleteStages provides completion for pipeline stage arguments.
func CompleteStages(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		if len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		return []string{
			"generator\tDrafts the initial answer",
			"refiner\tImproves the draft",
			"validator\tChecks the refined answer",
			"curator\tProduces the final answer",
		}, cobra.ShellCompDirectiveNoFileComp
	})
}

// CompleteTiers provides completion for --tier flag values.
func CompleteTiers(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		return []string{
			"fast\tLow latency, low cost",
			"balanced\tGeneral purpose",
			"strategic\tStrongest reasoning",
		}, cobra.ShellCompDirectiveNoFileComp
	})
}

// CompleteCapabilities provides completion for --capability flag values.
func CompleteCapabilities(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		return []string{
			"chat", "code", "reasoning", "vision", "tools", "long-context",
		}, cobra.ShellCompDirectiveNoFileComp
	})
}

// CompleteGroupBy provides completion for --by flag values.
func CompleteGroupBy(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		return []string{
			"model\tTotals per model",
			"stage\tTotals per pipeline stage",
		}, cobra.ShellCompDirectiveNoFileComp
	})
}
