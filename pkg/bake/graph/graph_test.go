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

package graph_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bake-build/bake/internal/errs"
	"github.com/bake-build/bake/pkg/bake/graph"
	"github.com/bake-build/bake/pkg/bake/model"
)

func recipe(fqn string, deps ...string) model.Recipe {
	d := make([]model.FQN, len(deps))
	for i, dep := range deps {
		d[i] = model.FQN(dep)
	}
	return model.Recipe{FQN: model.FQN(fqn), Command: "true", Dependencies: d}
}

func TestBuild_Simple(t *testing.T) {
	g, err := graph.Build([]model.Recipe{
		recipe("app:compile"),
		recipe("app:package", "app:compile"),
	})
	require.NoError(t, err)

	closure := g.TransitiveClosure("app:package")
	want := map[model.FQN]bool{"app:compile": true}
	if diff := cmp.Diff(want, closure); diff != "" {
		t.Errorf("transitive closure mismatch (-want +got):\n%s", diff)
	}
}

func TestBuild_MissingDependencyAggregatesAll(t *testing.T) {
	_, err := graph.Build([]model.Recipe{
		recipe("app:a", "app:missing1"),
		recipe("app:b", "app:missing2"),
	})
	require.Error(t, err)

	var missing *errs.MissingDependencyError
	require.ErrorAs(t, err, &missing)
	assert.Len(t, missing.Problems, 2)
}

func TestBuild_DetectsCycle(t *testing.T) {
	_, err := graph.Build([]model.Recipe{
		recipe("app:a", "app:b"),
		recipe("app:b", "app:a"),
	})
	require.Error(t, err)

	var cycleErr *errs.CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.Len(t, cycleErr.Cycles, 1)
}

func TestBuild_DetectsSelfLoop(t *testing.T) {
	_, err := graph.Build([]model.Recipe{
		recipe("app:a", "app:a"),
	})
	require.Error(t, err)

	var cycleErr *errs.CycleError
	require.ErrorAs(t, err, &cycleErr)
}

func TestBuild_DetectsLargerSCC(t *testing.T) {
	_, err := graph.Build([]model.Recipe{
		recipe("app:a", "app:b"),
		recipe("app:b", "app:c"),
		recipe("app:c", "app:a"),
	})
	require.Error(t, err)

	var cycleErr *errs.CycleError
	require.ErrorAs(t, err, &cycleErr)
	require.Len(t, cycleErr.Cycles, 1)
	assert.ElementsMatch(t, []string{"app:a", "app:b", "app:c"}, cycleErr.Cycles[0])
}

func TestBuild_DetectsMultipleIndependentCycles(t *testing.T) {
	_, err := graph.Build([]model.Recipe{
		recipe("app:a", "app:b"),
		recipe("app:b", "app:a"),
		recipe("app:x", "app:y"),
		recipe("app:y", "app:x"),
		recipe("app:standalone"),
	})
	require.Error(t, err)

	var cycleErr *errs.CycleError
	require.ErrorAs(t, err, &cycleErr)
	require.Len(t, cycleErr.Cycles, 2)
}
