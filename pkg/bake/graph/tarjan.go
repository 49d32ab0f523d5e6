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

package graph

import (
	"sort"

	"github.com/bake-build/bake/pkg/bake/model"
)

// tarjan computes strongly connected components over the dependency
// edges of a Graph, in deterministic FQN order so that results (and
// therefore reported cycles) are stable across runs.
type tarjan struct {
	g        *Graph
	index    map[model.FQN]int
	lowlink  map[model.FQN]int
	onStack  map[model.FQN]bool
	stack    []model.FQN
	counter  int
	sccs     [][]string
	order    []model.FQN
}

func newTarjan(g *Graph) *tarjan {
	order := make([]model.FQN, 0, len(g.recipes))
	for fqn := range g.recipes {
		order = append(order, fqn)
	}
	sortFQNs(order)
	return &tarjan{
		g:       g,
		index:   make(map[model.FQN]int),
		lowlink: make(map[model.FQN]int),
		onStack: make(map[model.FQN]bool),
		order:   order,
	}
}

func (t *tarjan) run() [][]string {
	for _, fqn := range t.order {
		if _, seen := t.index[fqn]; !seen {
			t.strongConnect(fqn)
		}
	}
	return t.sccs
}

func (t *tarjan) strongConnect(v model.FQN) {
	t.index[v] = t.counter
	t.lowlink[v] = t.counter
	t.counter++
	t.stack = append(t.stack, v)
	t.onStack[v] = true

	deps := append([]model.FQN(nil), t.g.deps[v]...)
	sortFQNs(deps)
	for _, w := range deps {
		if _, seen := t.index[w]; !seen {
			t.strongConnect(w)
			if t.lowlink[w] < t.lowlink[v] {
				t.lowlink[v] = t.lowlink[w]
			}
		} else if t.onStack[w] {
			if t.index[w] < t.lowlink[v] {
				t.lowlink[v] = t.index[w]
			}
		}
	}

	if t.lowlink[v] == t.index[v] {
		var scc []string
		for {
			n := len(t.stack) - 1
			w := t.stack[n]
			t.stack = t.stack[:n]
			t.onStack[w] = false
			scc = append(scc, string(w))
			if w == v {
				break
			}
		}
		t.sccs = append(t.sccs, scc)
	}
}

func sortFQNs(fqns []model.FQN) {
	sort.Slice(fqns, func(i, j int) bool { return fqns[i] < fqns[j] })
}
