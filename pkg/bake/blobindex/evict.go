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

package blobindex

import (
	"fmt"
	"sort"
)

func sortByLastAccessed(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].LastAccessed < entries[j].LastAccessed })
}

func sortBySizeDesc(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Size > entries[j].Size })
}

// evictBatchSize bounds how many rows a single eviction pop considers.
const evictBatchSize = 256

// maxEvictionPasses is the safety counter preventing an infinite loop
// when rows and files have drifted.
const maxEvictionPasses = 10_000

// Remover deletes the blob file backing digest. BlobIndex has no
// filesystem access of its own; the caller (typically cas.LocalFsStore)
// supplies this so eviction can remove both the row and the file.
type Remover func(digest string) error

// EvictToSize pops LRU batches and deletes each blob until the index's
// total size is at or below target. A missing file
// (remove returns an error the caller interprets as not-found) is not
// treated as fatal — the row is still removed and eviction continues.
func (i *SQLiteIndex) EvictToSize(target int64, remove Remover) (evicted int, err error) {
	for pass := 0; pass < maxEvictionPasses; pass++ {
		total, err := i.TotalSize()
		if err != nil {
			return evicted, err
		}
		if total <= target {
			return evicted, nil
		}

		batch, err := i.lruBatch(evictBatchSize)
		if err != nil {
			return evicted, err
		}
		if len(batch) == 0 {
			return evicted, nil
		}

		for _, e := range batch {
			_ = remove(e.Digest) // missing file is not an error; row removal still proceeds
			if err := i.Remove(e.Digest); err != nil {
				return evicted, err
			}
			evicted++
			total -= e.Size
			if total <= target {
				return evicted, nil
			}
		}
	}
	return evicted, fmt.Errorf("blobindex: eviction did not converge after %d passes", maxEvictionPasses)
}

// EvictLRU removes the n least-recently-used blobs in a single pass.
func (i *SQLiteIndex) EvictLRU(n int, remove Remover) (evicted int, err error) {
	batch, err := i.lruBatch(n)
	if err != nil {
		return 0, err
	}
	for _, e := range batch {
		_ = remove(e.Digest)
		if err := i.Remove(e.Digest); err != nil {
			return evicted, err
		}
		evicted++
	}
	return evicted, nil
}

// EvictLargest removes the n largest blobs in a single pass.
func (i *SQLiteIndex) EvictLargest(n int, remove Remover) (evicted int, err error) {
	batch, err := i.largestBatch(n)
	if err != nil {
		return 0, err
	}
	for _, e := range batch {
		_ = remove(e.Digest)
		if err := i.Remove(e.Digest); err != nil {
			return evicted, err
		}
		evicted++
	}
	return evicted, nil
}
