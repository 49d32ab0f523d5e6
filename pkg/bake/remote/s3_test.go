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

package remote

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bake-build/bake/pkg/bake/model"
)

func TestS3Backend_ObjectKeyLayout(t *testing.T) {
	h, err := model.HashBytes([]byte("object key test"), model.Blake3)
	require.NoError(t, err)

	noPrefix := &S3Backend{}
	withPrefix := &S3Backend{prefix: "ci"}

	assert.Equal(t, string(h.Algorithm)+"/"+h.ShardPrefix()+"/"+h.Hex(), noPrefix.objectKey(h))
	assert.Equal(t, "ci/"+string(h.Algorithm)+"/"+h.ShardPrefix()+"/"+h.Hex(), withPrefix.objectKey(h))
}

func TestHashFromKey_RoundTripsObjectKey(t *testing.T) {
	h, err := model.HashBytes([]byte("round trip"), model.Blake3)
	require.NoError(t, err)

	b := &S3Backend{prefix: "ci"}
	key := b.objectKey(h)

	got, err := hashFromKey(key, "ci/")
	require.NoError(t, err)
	assert.True(t, h.Equal(got))
}

func TestHashFromKey_NoPrefix(t *testing.T) {
	h, err := model.HashBytes([]byte("no prefix"), model.Blake3)
	require.NoError(t, err)

	b := &S3Backend{}
	key := b.objectKey(h)

	got, err := hashFromKey(key, "")
	require.NoError(t, err)
	assert.True(t, h.Equal(got))
}

func TestHashFromKey_MalformedKeyErrors(t *testing.T) {
	_, err := hashFromKey("too/short", "")
	assert.Error(t, err)
}

func TestSplitN_BoundsSliceLength(t *testing.T) {
	parts := splitN("a/b/c/d", '/', 3)
	assert.Equal(t, []string{"a", "b", "c/d"}, parts)
}

func TestManifestKey_PrefixedAndUnprefixed(t *testing.T) {
	noPrefix := &S3Backend{}
	withPrefix := &S3Backend{prefix: "ci"}

	assert.Equal(t, "manifests/app:build", noPrefix.manifestKey("app:build"))
	assert.Equal(t, "ci/manifests/app:build", withPrefix.manifestKey("app:build"))
}
