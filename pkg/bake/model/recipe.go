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

package model

import (
	"fmt"
	"strings"
)

// FQN is a fully qualified recipe name, "cookbook:recipe".
type FQN string

// Cookbook and Name split the FQN at its first colon.
func (f FQN) Cookbook() string {
	c, _, _ := strings.Cut(string(f), ":")
	return c
}

func (f FQN) Name() string {
	_, n, _ := strings.Cut(string(f), ":")
	return n
}

func (f FQN) Valid() bool {
	return strings.Contains(string(f), ":")
}

// Recipe is a named unit of work: a shell command with declared inputs,
// outputs, dependencies, and environment forwarding. Immutable once
// constructed.
type Recipe struct {
	FQN FQN

	// Command is the shell command to execute. Must be non-empty.
	Command string

	// InputGlobs are relative to ConfigDir. Empty means every file under
	// ConfigDir.
	InputGlobs []string

	// Outputs are paths (relative to the project root) the recipe is
	// expected to produce.
	Outputs []string

	// Dependencies are FQNs of recipes that must complete before this one.
	Dependencies []FQN

	// ForwardEnv lists environment variable names forwarded into the
	// child process. Environment inheritance is assumed to already be
	// resolved by the time a recipe reaches the planner.
	ForwardEnv []string

	// Tags are case-insensitively matched against a caller-supplied tag
	// filter during planning.
	Tags []string

	// ConfigDir is the directory the cookbook defining this recipe lives
	// in; input globs are resolved relative to it and it is the
	// subprocess's working directory.
	ConfigDir string
}

// Validate checks the invariants that hold on a single recipe in
// isolation (dependency resolution and cycle-freedom are graph-wide
// invariants, checked by the planner instead).
func (r Recipe) Validate() error {
	if strings.TrimSpace(r.Command) == "" {
		return fmt.Errorf("bake: recipe %q has an empty command", r.FQN)
	}
	if !r.FQN.Valid() {
		return fmt.Errorf("bake: recipe FQN %q is missing the cookbook:recipe separator", r.FQN)
	}
	return nil
}
