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

package planner

import (
	"sort"

	"github.com/bake-build/bake/internal/errs"
	"github.com/bake-build/bake/pkg/bake/graph"
	"github.com/bake-build/bake/pkg/bake/model"
)

// Plan is a finite sequence of waves; within a wave, FQNs are sorted
// lexicographically.
type Plan [][]model.FQN

// Len returns the total number of recipes across every wave.
func (p Plan) Len() int {
	n := 0
	for _, w := range p {
		n += len(w)
	}
	return n
}

// Flatten returns every FQN across every wave, in wave then
// lexicographic order.
func (p Plan) Flatten() []model.FQN {
	out := make([]model.FQN, 0, p.Len())
	for _, w := range p {
		out = append(out, w...)
	}
	return out
}

// Build validates every FQN in targets exists in g, expands to include
// transitive closures, and topologically sorts the induced subgraph via
// Kahn's algorithm, grouping into waves by in-degree-zero frontier.
func Build(g *graph.Graph, targets []model.FQN) (Plan, error) {
	if len(targets) == 0 {
		return Plan{}, nil
	}

	var unknown []string
	for _, fqn := range targets {
		if _, ok := g.Recipe(fqn); !ok {
			unknown = append(unknown, string(fqn))
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, &errs.UnknownTargetError{Targets: unknown}
	}

	required := make(map[model.FQN]bool, len(targets))
	for _, fqn := range targets {
		required[fqn] = true
		for dep := range g.TransitiveClosure(fqn) {
			required[dep] = true
		}
	}

	return executionOrder(g, required)
}

// executionOrder runs Kahn's algorithm over the subgraph induced by
// required, returning lexicographically sorted waves.
func executionOrder(g *graph.Graph, required map[model.FQN]bool) (Plan, error) {
	if len(required) == 0 {
		return Plan{}, nil
	}

	// dependents[f] = recipes within `required` that depend on f
	// (reverse edges, scoped to the induced subgraph).
	dependents := make(map[model.FQN][]model.FQN, len(required))
	inDegree := make(map[model.FQN]int, len(required))
	for fqn := range required {
		dependents[fqn] = nil
		inDegree[fqn] = 0
	}

	for fqn := range required {
		r, _ := g.Recipe(fqn)
		for _, dep := range r.Dependencies {
			if required[dep] {
				dependents[dep] = append(dependents[dep], fqn)
				inDegree[fqn]++
			}
		}
	}

	var frontier []model.FQN
	for fqn, deg := range inDegree {
		if deg == 0 {
			frontier = append(frontier, fqn)
		}
	}

	var plan Plan
	processed := 0
	for len(frontier) > 0 {
		sort.Slice(frontier, func(i, j int) bool { return frontier[i] < frontier[j] })
		plan = append(plan, frontier)
		processed += len(frontier)

		var next []model.FQN
		for _, fqn := range frontier {
			for _, dependent := range dependents[fqn] {
				inDegree[dependent]--
				if inDegree[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		frontier = next
	}

	if processed != len(required) {
		var residual []string
		for fqn, deg := range inDegree {
			if deg > 0 {
				residual = append(residual, string(fqn))
			}
		}
		sort.Strings(residual)
		return nil, &errs.PlanCycleError{Residual: residual}
	}

	return plan, nil
}
