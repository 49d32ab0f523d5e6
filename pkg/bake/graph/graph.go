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

// Package graph builds the recipe dependency DAG, validates it, and
// computes transitive closures.
package graph

import (
	"sort"

	"github.com/bake-build/bake/internal/errs"
	"github.com/bake-build/bake/pkg/bake/model"
)

// Graph is a recipe dependency DAG indexed by FQN. Edges point from a
// recipe to its dependencies; no recipe directly references another,
// all references go through the index map.
type Graph struct {
	recipes map[model.FQN]model.Recipe
	// deps[f] lists the dependencies declared by f (forward edges).
	deps map[model.FQN][]model.FQN
	// dependents[f] lists recipes that declare f as a dependency
	// (reverse edges), precomputed for transitive-closure and
	// Kahn's-algorithm traversal.
	dependents map[model.FQN][]model.FQN
}

// Build constructs a Graph from recipes, keyed by their FQN. It fails
// with a MissingDependencyError aggregating every (recipe, unknown-FQN)
// pair, or a CycleError aggregating every non-trivial strongly
// connected component and self-loop.
func Build(recipes []model.Recipe) (*Graph, error) {
	g := &Graph{
		recipes:    make(map[model.FQN]model.Recipe, len(recipes)),
		deps:       make(map[model.FQN][]model.FQN, len(recipes)),
		dependents: make(map[model.FQN][]model.FQN, len(recipes)),
	}
	for _, r := range recipes {
		g.recipes[r.FQN] = r
	}

	var missing []errs.MissingDependency
	for _, r := range recipes {
		for _, dep := range r.Dependencies {
			if _, ok := g.recipes[dep]; !ok {
				missing = append(missing, errs.MissingDependency{
					Recipe:     string(r.FQN),
					UnknownFQN: string(dep),
				})
				continue
			}
			g.deps[r.FQN] = append(g.deps[r.FQN], dep)
			g.dependents[dep] = append(g.dependents[dep], r.FQN)
		}
	}
	if len(missing) > 0 {
		sort.Slice(missing, func(i, j int) bool {
			if missing[i].Recipe != missing[j].Recipe {
				return missing[i].Recipe < missing[j].Recipe
			}
			return missing[i].UnknownFQN < missing[j].UnknownFQN
		})
		return nil, &errs.MissingDependencyError{Problems: missing}
	}

	if cycles := g.findCycles(); len(cycles) > 0 {
		return nil, &errs.CycleError{Cycles: cycles}
	}

	return g, nil
}

// findCycles returns every non-trivial strongly connected component and
// every self-loop, via Tarjan's algorithm.
func (g *Graph) findCycles() [][]string {
	t := newTarjan(g)
	var cycles [][]string
	for _, scc := range t.run() {
		if len(scc) > 1 {
			cycles = append(cycles, scc)
			continue
		}
		if len(scc) == 1 {
			fqn := model.FQN(scc[0])
			for _, d := range g.deps[fqn] {
				if d == fqn {
					cycles = append(cycles, scc)
					break
				}
			}
		}
	}
	return cycles
}

// Recipe returns the recipe named fqn and whether it exists.
func (g *Graph) Recipe(fqn model.FQN) (model.Recipe, bool) {
	r, ok := g.recipes[fqn]
	return r, ok
}

// Recipes returns every recipe in the graph.
func (g *Graph) Recipes() map[model.FQN]model.Recipe {
	return g.recipes
}

// TransitiveClosure returns the set of all recipes reachable via
// dependency edges from fqn, excluding fqn itself.
func (g *Graph) TransitiveClosure(fqn model.FQN) map[model.FQN]bool {
	visited := make(map[model.FQN]bool)
	var visit func(model.FQN)
	visit = func(f model.FQN) {
		for _, dep := range g.deps[f] {
			if !visited[dep] {
				visited[dep] = true
				visit(dep)
			}
		}
	}
	visit(fqn)
	return visited
}
