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

package model_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bake-build/bake/pkg/bake/model"
)

func TestDigest_ToHashAndBackRoundTrips(t *testing.T) {
	h, err := model.HashBytes([]byte("manifest content"), model.Blake3)
	require.NoError(t, err)

	d := model.DigestOf(h)
	back, err := d.ToHash()
	require.NoError(t, err)
	assert.True(t, h.Equal(back))
}

func TestDigest_ZeroHashRoundTripsToEmptyDigest(t *testing.T) {
	d := model.DigestOf(model.Hash{})
	assert.Equal(t, model.Digest{}, d)

	back, err := d.ToHash()
	require.NoError(t, err)
	assert.True(t, back.IsZero())
}

func TestActionResult_MarshalJSONRoundTrip(t *testing.T) {
	h, err := model.HashBytes([]byte("output bytes"), model.Blake3)
	require.NoError(t, err)

	want := model.ActionResult{
		Recipe:   "app:build",
		ExitCode: 0,
		Outputs: []model.OutputFile{
			{Path: "out/a.bin", Digest: model.DigestOf(h), Size: 12},
		},
		ExecutionMetadata: model.ExecutionMetadata{
			StartedAt:   1000,
			CompletedAt: 1005,
			Hostname:    "ci-runner",
			BakeVersion: "dev",
		},
	}

	data, err := json.Marshal(want)
	require.NoError(t, err)

	var got model.ActionResult
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, want, got)
}
