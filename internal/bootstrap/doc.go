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

// Package bootstrap assembles a consensus engine and its supporting
// services from configuration.
//
// There is no process-wide engine. Each call to New builds one App that
// owns its stores, trackers, telemetry and gateway client; Close releases
// them in dependency order. Commands that only read history use
// OpenStores instead, which needs no API key.
package bootstrap
