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

// Package server exposes a consensus engine over HTTP.
//
// Routes:
//
//	GET  /health               liveness and build version
//	POST /v1/consensus         run a query; JSON response, or server-sent
//	                           events when ?stream=true or Accept is text/event-stream
//	GET  /v1/models            model catalog, filterable by capability and tier
//	GET  /v1/profiles          configured profiles
//	GET  /v1/health/models     rolling performance health and circuit state
//	GET  /v1/budget            spend against limits with per-model totals
//	GET  /metrics              prometheus metrics, when a handler is configured
package server
