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

/*
Package cli provides the root command and shared configuration for hive's CLI.

This package creates the main Cobra command tree and handles global concerns like
version information, persistent flags, and error handling. Individual commands
are implemented in the internal/commands subpackages.

# Command Tree

The CLI is organized as:

	hive
	├── consensus     Run a query through the pipeline (alias: ask)
	├── serve         Serve the consensus API over HTTP
	├── models        List, inspect and rank models
	├── profiles      List and inspect profiles
	├── budget        Spend against limits
	├── health        Model health from recent runs
	├── auth          Manage the OpenRouter API key
	├── config        View and validate configuration
	├── completion    Shell completion scripts
	├── version       Show version
	└── help          Show help

# Usage

From main.go:

	cli.SetVersion(version, commit, date)
	rootCmd := cli.NewRootCommand()
	// ... add commands ...
	if err := rootCmd.Execute(); err != nil {
	    cli.HandleExitError(err)
	}

# Global Flags

All commands inherit these flags:

	--verbose, -v    Enable verbose output
	--quiet, -q      Suppress non-error output
	--json           Output in JSON format
	--jq             Filter JSON output (implies --json)
	--config         Path to config file

# Error Handling

Errors are mapped to exit codes by their kind:

  - Exit 0: Success
  - Exit 1: Run failed
  - Exit 2: Configuration error
  - Exit 3: Authentication failed
  - Exit 4: Gateway or model unavailable
  - Exit 5: Budget exceeded
  - Exit 130: Interrupted

Use HandleExitError for consistent error handling:

	if err := cmd.Execute(); err != nil {
	    cli.HandleExitError(err)
	}
*/
package cli
