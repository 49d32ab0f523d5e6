// Copyright 2025 The Bake Authors
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

// Package orchestrator drives the execution plan through the cache and
// subprocess pipeline with bounded parallelism.
package orchestrator

import "github.com/bake-build/bake/pkg/bake/model"

// Status is a recipe's place in its lifecycle.
type Status string

const (
	Pending Status = "pending"
	Running Status = "running"
	Done    Status = "done"
	Error   Status = "error"
	Skipped Status = "skipped"
)

// Event is a structured status transition the core emits for the
// caller to render.
type Event struct {
	Recipe   model.FQN
	Status   Status
	CacheHit bool
	ExitCode int
	Err      error
	// Stdout/Stderr carry a truncated tail for Error events, surfaced in
	// the end-of-run summary.
	Stdout string
	Stderr string
	LogPath string
}

// Result summarizes a completed run.
type Result struct {
	Events   []Event
	Statuses map[model.FQN]Status
}

// Success reports whether every scheduled recipe reached Done. The
// process exit code is zero iff this holds.
func (r Result) Success() bool {
	for _, s := range r.Statuses {
		if s != Done {
			return false
		}
	}
	return true
}
