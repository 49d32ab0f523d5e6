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

// Package planner selects recipes by target/tag filter and produces an
// ordered execution plan of waves.
package planner

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/bake-build/bake/pkg/bake/graph"
	"github.com/bake-build/bake/pkg/bake/model"
)

// Selector is a parsed "<cookbook_pattern>:<recipe_pattern>" target
// selector. Either side may be empty, meaning "match
// anything".
type Selector struct {
	CookbookPattern string
	RecipePattern   string
	Regex           bool
}

// ParseSelector parses s. The ':' separator is mandatory.
func ParseSelector(s string, regex bool) (Selector, error) {
	cookbook, recipe, ok := strings.Cut(s, ":")
	if !ok {
		return Selector{}, fmt.Errorf("planner: selector %q is missing the mandatory ':' separator", s)
	}
	return Selector{CookbookPattern: cookbook, RecipePattern: recipe, Regex: regex}, nil
}

// Matches reports whether fqn satisfies the selector, either by exact
// string equality per side, or by full regex match per side when Regex
// is set.
func (s Selector) Matches(fqn model.FQN) (bool, error) {
	cookbookOK, err := matchSide(s.CookbookPattern, fqn.Cookbook(), s.Regex)
	if err != nil {
		return false, err
	}
	if !cookbookOK {
		return false, nil
	}
	return matchSide(s.RecipePattern, fqn.Name(), s.Regex)
}

func matchSide(pattern, value string, regex bool) (bool, error) {
	if pattern == "" {
		return true, nil
	}
	if !regex {
		return pattern == value, nil
	}
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return false, fmt.Errorf("planner: invalid regex %q: %w", pattern, err)
	}
	return re.MatchString(value), nil
}

// SelectTargets returns every FQN in g matching any of selectors, then
// (if tags is non-empty) narrows to recipes whose tag set intersects
// tags case-insensitively. The transitive closure of
// whatever survives both filters is always included, even if the
// dependency itself doesn't match either filter.
func SelectTargets(g *graph.Graph, selectors []Selector, tags []string) ([]model.FQN, error) {
	recipes := g.Recipes()

	var bySelector []model.FQN
	if len(selectors) == 0 {
		for fqn := range recipes {
			bySelector = append(bySelector, fqn)
		}
	} else {
		for fqn := range recipes {
			for _, sel := range selectors {
				ok, err := sel.Matches(fqn)
				if err != nil {
					return nil, err
				}
				if ok {
					bySelector = append(bySelector, fqn)
					break
				}
			}
		}
	}

	filtered := bySelector
	if len(tags) > 0 {
		wanted := make(map[string]bool, len(tags))
		for _, t := range tags {
			wanted[strings.ToLower(t)] = true
		}
		filtered = filtered[:0]
		for _, fqn := range bySelector {
			r := recipes[fqn]
			for _, tag := range r.Tags {
				if wanted[strings.ToLower(tag)] {
					filtered = append(filtered, fqn)
					break
				}
			}
		}
	}

	final := make(map[model.FQN]bool, len(filtered))
	for _, fqn := range filtered {
		final[fqn] = true
		for dep := range g.TransitiveClosure(fqn) {
			final[dep] = true
		}
	}

	out := make([]model.FQN, 0, len(final))
	for fqn := range final {
		out = append(out, fqn)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
