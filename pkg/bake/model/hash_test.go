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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bake-build/bake/pkg/bake/model"
)

func TestHashBytes_SameContentSameHash(t *testing.T) {
	h1, err := model.HashBytes([]byte("hello"), model.Blake3)
	require.NoError(t, err)
	h2, err := model.HashBytes([]byte("hello"), model.Blake3)
	require.NoError(t, err)
	assert.True(t, h1.Equal(h2))
}

func TestHashBytes_DifferentAlgorithmsDifferentHash(t *testing.T) {
	h1, err := model.HashBytes([]byte("hello"), model.Blake3)
	require.NoError(t, err)
	h2, err := model.HashBytes([]byte("hello"), model.SHA256)
	require.NoError(t, err)
	assert.False(t, h1.Equal(h2))
}

func TestHashBytes_UnknownAlgorithmErrors(t *testing.T) {
	_, err := model.HashBytes([]byte("hello"), model.Algorithm("md5"))
	assert.Error(t, err)
}

func TestHash_StringParseRoundTrip(t *testing.T) {
	h, err := model.HashBytes([]byte("round trip me"), model.Blake3)
	require.NoError(t, err)

	parsed, err := model.ParseHash(h.String())
	require.NoError(t, err)
	assert.True(t, h.Equal(parsed))
}

func TestParseHash_MalformedInputs(t *testing.T) {
	cases := []string{
		"missing-separator",
		"blake3:not-hex",
		"blake3:deadbeef",
		"md5:" + strings.Repeat("ab", 32),
	}
	for _, c := range cases {
		_, err := model.ParseHash(c)
		assert.Error(t, err, "input %q should have failed to parse", c)
	}
}

func TestHash_ShardPrefixIsTwoHexChars(t *testing.T) {
	h, err := model.HashBytes([]byte("shard me"), model.Blake3)
	require.NoError(t, err)
	assert.Len(t, h.ShardPrefix(), 2)
}

func TestHash_IsZero(t *testing.T) {
	var zero model.Hash
	assert.True(t, zero.IsZero())

	h, err := model.HashBytes([]byte("not zero"), model.Blake3)
	require.NoError(t, err)
	assert.False(t, h.IsZero())
}
