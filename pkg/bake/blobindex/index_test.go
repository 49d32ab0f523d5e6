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

package blobindex_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bake-build/bake/pkg/bake/blobindex"
)

func openBoth(t *testing.T) map[string]blobindex.BlobIndex {
	t.Helper()
	sqliteIdx, err := blobindex.Open(blobindex.BackendSQLite, filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	pebbleIdx, err := blobindex.Open(blobindex.BackendPebble, filepath.Join(t.TempDir(), "index.pebble"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sqliteIdx.Close()
		_ = pebbleIdx.Close()
	})
	return map[string]blobindex.BlobIndex{"sqlite": sqliteIdx, "pebble": pebbleIdx}
}

func TestBlobIndex_InsertContainsRemove(t *testing.T) {
	for name, idx := range openBoth(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, idx.Insert("deadbeef", "blake3", 1024, false))

			ok, err := idx.Contains("deadbeef")
			require.NoError(t, err)
			assert.True(t, ok)

			require.NoError(t, idx.Remove("deadbeef"))
			ok, err = idx.Contains("deadbeef")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestBlobIndex_EvictLRUHonorsAccessOrder(t *testing.T) {
	for name, idx := range openBoth(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, idx.Insert("a", "blake3", 10, false))
			require.NoError(t, idx.Insert("b", "blake3", 10, false))
			require.NoError(t, idx.Insert("c", "blake3", 10, false))

			// Touch "a" so it's most-recently-used; "b" and "c" stay older.
			// last_accessed has one-second resolution, so wait past the
			// inserts' second before touching.
			time.Sleep(1100 * time.Millisecond)
			require.NoError(t, idx.Touch("a"))

			var removed []string
			n, err := idx.EvictLRU(1, func(digest string) error {
				removed = append(removed, digest)
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, 1, n)
			assert.NotContains(t, removed, "a")
		})
	}
}

func TestBlobIndex_EvictToSize(t *testing.T) {
	for name, idx := range openBoth(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, idx.Insert("a", "blake3", 100, false))
			require.NoError(t, idx.Insert("b", "blake3", 100, false))
			require.NoError(t, idx.Insert("c", "blake3", 100, false))

			var removed []string
			_, err := idx.EvictToSize(100, func(digest string) error {
				removed = append(removed, digest)
				return nil
			})
			require.NoError(t, err)

			total, err := idx.TotalSize()
			require.NoError(t, err)
			assert.LessOrEqual(t, total, int64(100))
		})
	}
}
