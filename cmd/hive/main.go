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

package main

import (
	"github.com/hivetechs/consensus/internal/cli"
	"github.com/hivetechs/consensus/internal/commands/budget"
	"github.com/hivetechs/consensus/internal/commands/completion"
	"github.com/hivetechs/consensus/internal/commands/config"
	"github.com/hivetechs/consensus/internal/commands/consensus"
	"github.com/hivetechs/consensus/internal/commands/daemon"
	"github.com/hivetechs/consensus/internal/commands/diagnostics"
	"github.com/hivetechs/consensus/internal/commands/model"
	"github.com/hivetechs/consensus/internal/commands/profile"
	"github.com/hivetechs/consensus/internal/commands/secrets"
	versioncmd "github.com/hivetechs/consensus/internal/commands/version"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	// Set version information from build-time ldflags
	cli.SetVersion(version, commit, buildDate)

	rootCmd := cli.NewRootCommand()

	// Execution
	rootCmd.AddCommand(consensus.NewCommand())
	rootCmd.AddCommand(daemon.NewServeCommand())

	// Models and profiles
	rootCmd.AddCommand(model.NewCommand())
	rootCmd.AddCommand(profile.NewCommand())

	// Configuration and credentials
	rootCmd.AddCommand(config.NewConfigCommand())
	rootCmd.AddCommand(secrets.NewCommand())

	// Diagnostics
	rootCmd.AddCommand(budget.NewCommand())
	rootCmd.AddCommand(diagnostics.NewHealthCommand())
	rootCmd.AddCommand(completion.NewCommand())

	// Version command
	rootCmd.AddCommand(versioncmd.NewVersionCommand())

	// Custom help command with JSON support
	rootCmd.SetHelpCommand(cli.NewHelpCommand(rootCmd))

	if err := rootCmd.Execute(); err != nil {
		cli.HandleExitError(err)
	}
}
