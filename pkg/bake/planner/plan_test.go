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

package planner_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bake-build/bake/pkg/bake/graph"
	"github.com/bake-build/bake/pkg/bake/model"
	"github.com/bake-build/bake/pkg/bake/planner"
)

func recipe(fqn string, deps ...string) model.Recipe {
	d := make([]model.FQN, len(deps))
	for i, dep := range deps {
		d[i] = model.FQN(dep)
	}
	return model.Recipe{FQN: model.FQN(fqn), Command: "true", Dependencies: d}
}

func TestPlan_WavesAreToposortedAndLexicographic(t *testing.T) {
	g, err := graph.Build([]model.Recipe{
		recipe("app:b"),
		recipe("app:a"),
		recipe("app:c", "app:a", "app:b"),
	})
	require.NoError(t, err)

	plan, err := planner.Build(g, []model.FQN{"app:c"})
	require.NoError(t, err)
	require.Equal(t, 2, len(plan))
	assert.Equal(t, []model.FQN{"app:a", "app:b"}, plan[0])
	assert.Equal(t, []model.FQN{"app:c"}, plan[1])
	assert.Equal(t, 3, plan.Len())
	assert.Equal(t, []model.FQN{"app:a", "app:b", "app:c"}, plan.Flatten())
}

func TestPlan_UnknownTarget(t *testing.T) {
	g, err := graph.Build([]model.Recipe{recipe("app:a")})
	require.NoError(t, err)

	_, err = planner.Build(g, []model.FQN{"app:does-not-exist"})
	require.Error(t, err)
}

func TestSelectTargets_ExactAndTagFilter(t *testing.T) {
	g, err := graph.Build([]model.Recipe{
		{FQN: "app:compile", Command: "true", Tags: []string{"Fast"}},
		{FQN: "app:slow-test", Command: "true", Tags: []string{"slow"}},
	})
	require.NoError(t, err)

	sel, err := planner.ParseSelector("app:compile", false)
	require.NoError(t, err)
	targets, err := planner.SelectTargets(g, []planner.Selector{sel}, nil)
	require.NoError(t, err)
	assert.Equal(t, []model.FQN{"app:compile"}, targets)

	targets, err = planner.SelectTargets(g, nil, []string{"FAST"})
	require.NoError(t, err)
	assert.Equal(t, []model.FQN{"app:compile"}, targets)
}
