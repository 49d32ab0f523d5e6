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

package layered_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bake-build/bake/pkg/bake/cas"
	"github.com/bake-build/bake/pkg/bake/layered"
)

func newTier(t *testing.T) cas.BlobStore {
	t.Helper()
	store, err := cas.NewLocalFsStore(t.TempDir(), cas.Options{})
	require.NoError(t, err)
	return store
}

func TestLayeredStore_GetFallsThroughToLowerTier(t *testing.T) {
	hot, cold := newTier(t), newTier(t)
	ctx := context.Background()

	h, err := cold.Put(ctx, []byte("only in cold"))
	require.NoError(t, err)

	store := layered.New([]cas.BlobStore{hot, cold}, layered.Options{})
	data, err := store.Get(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, "only in cold", string(data))
}

func TestLayeredStore_AutoPromotesOnColdHit(t *testing.T) {
	hot, cold := newTier(t), newTier(t)
	ctx := context.Background()

	h, err := cold.Put(ctx, []byte("promote me"))
	require.NoError(t, err)

	store := layered.New([]cas.BlobStore{hot, cold}, layered.Options{AutoPromote: true})
	_, err = store.Get(ctx, h)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		ok, _ := hot.Contains(ctx, h)
		return ok
	}, time.Second, 5*time.Millisecond, "blob was never promoted into the hot tier")
}

func TestLayeredStore_PutWithoutWriteThroughOnlyHitsFirstTier(t *testing.T) {
	hot, cold := newTier(t), newTier(t)
	ctx := context.Background()

	store := layered.New([]cas.BlobStore{hot, cold}, layered.Options{})
	h, err := store.Put(ctx, []byte("hot only"))
	require.NoError(t, err)

	okHot, _ := hot.Contains(ctx, h)
	okCold, _ := cold.Contains(ctx, h)
	assert.True(t, okHot)
	assert.False(t, okCold)
}

func TestLayeredStore_PutWriteThroughFansOutToEveryTier(t *testing.T) {
	hot, cold := newTier(t), newTier(t)
	ctx := context.Background()

	store := layered.New([]cas.BlobStore{hot, cold}, layered.Options{WriteThrough: true})
	h, err := store.Put(ctx, []byte("everywhere"))
	require.NoError(t, err)

	okHot, _ := hot.Contains(ctx, h)
	okCold, _ := cold.Contains(ctx, h)
	assert.True(t, okHot)
	assert.True(t, okCold)
}

func TestLayeredStore_ListIsDeduplicatedUnion(t *testing.T) {
	hot, cold := newTier(t), newTier(t)
	ctx := context.Background()

	h, err := hot.Put(ctx, []byte("shared"))
	require.NoError(t, err)
	_, err = cold.Put(ctx, []byte("shared"))
	require.NoError(t, err)
	_, err = cold.Put(ctx, []byte("cold only"))
	require.NoError(t, err)

	store := layered.New([]cas.BlobStore{hot, cold}, layered.Options{})
	all, err := store.List(ctx)
	require.NoError(t, err)

	assert.Len(t, all, 2)
	assert.Contains(t, all, h)
}
