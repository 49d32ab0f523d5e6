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

package fingerprint_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bake-build/bake/pkg/bake/fingerprint"
	"github.com/bake-build/bake/pkg/bake/model"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestSelfHash_DeterministicAndOrderIndependent(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "hello")
	writeFile(t, dir, "b.txt", "world")

	recipes := map[model.FQN]model.Recipe{
		"app:build": {FQN: "app:build", Command: "cat a.txt b.txt", ConfigDir: dir},
	}

	h1, err := fingerprint.NewTable(recipes).SelfHash("app:build")
	require.NoError(t, err)
	h2, err := fingerprint.NewTable(recipes).SelfHash("app:build")
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	// The same files written in the opposite order hash identically.
	other := t.TempDir()
	writeFile(t, other, "b.txt", "world")
	writeFile(t, other, "a.txt", "hello")
	reversed := map[model.FQN]model.Recipe{
		"app:build": {FQN: "app:build", Command: "cat a.txt b.txt", ConfigDir: other},
	}
	h3, err := fingerprint.NewTable(reversed).SelfHash("app:build")
	require.NoError(t, err)
	assert.Equal(t, h1, h3)
}

func TestSelfHash_ChangesWithContent(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "v1")
	recipes := map[model.FQN]model.Recipe{
		"app:build": {FQN: "app:build", Command: "cat a.txt", ConfigDir: dir},
	}
	before, err := fingerprint.NewTable(recipes).SelfHash("app:build")
	require.NoError(t, err)

	writeFile(t, dir, "a.txt", "v2")
	after, err := fingerprint.NewTable(recipes).SelfHash("app:build")
	require.NoError(t, err)

	assert.NotEqual(t, before, after)
}

func TestCombinedHash_InputChangeInvalidatesDependents(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "v1")

	recipes := map[model.FQN]model.Recipe{
		"app:base": {FQN: "app:base", Command: "cat a.txt", ConfigDir: dir},
		"app:top":  {FQN: "app:top", Command: "true", ConfigDir: dir, Dependencies: []model.FQN{"app:base"}},
	}

	before, err := fingerprint.NewTable(recipes).CombinedHash("app:top")
	require.NoError(t, err)

	writeFile(t, dir, "a.txt", "v2")
	after, err := fingerprint.NewTable(recipes).CombinedHash("app:top")
	require.NoError(t, err)

	assert.NotEqual(t, before, after)
}

func TestActionKey_StableAcrossRepeatedComputation(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "content")
	recipes := map[model.FQN]model.Recipe{
		"app:build": {FQN: "app:build", Command: "true", ConfigDir: dir, Outputs: []string{"out/b.bin", "out/a.bin"}},
	}

	table := fingerprint.NewTable(recipes)
	k1, err := table.ActionKey("app:build")
	require.NoError(t, err)
	k2, err := table.ActionKey("app:build")
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
}

func TestActionKey_IndependentOfRecipeName(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "content")
	recipes := map[model.FQN]model.Recipe{
		"app:build": {FQN: "app:build", Command: "true", ConfigDir: dir, Outputs: []string{"out/b.bin", "out/a.bin"}},
		"app:other": {FQN: "app:other", Command: "true", ConfigDir: dir, Outputs: []string{"out/b.bin", "out/a.bin"}},
	}

	table := fingerprint.NewTable(recipes)
	k1, err := table.ActionKey("app:build")
	require.NoError(t, err)
	k2, err := table.ActionKey("app:other")
	require.NoError(t, err)
	assert.Equal(t, k1, k2, "identical command, inputs, and outputs must yield the same action key regardless of FQN")
}
