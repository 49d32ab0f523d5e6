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

import "fmt"

// Backend selects which storage engine backs a BlobIndex.
type Backend string

const (
	BackendSQLite Backend = "sqlite"
	BackendPebble Backend = "pebble"
)

// BlobIndex is the full catalog capability both backends implement:
// cas.Index plus size lookups, listing, and the three eviction
// strategies (to-size, LRU, largest-first).
type BlobIndex interface {
	Insert(digest, algorithm string, size int64, compressed bool) error
	Touch(digest string) error
	Remove(digest string) error
	Contains(digest string) (bool, error)
	Size(digest string) (int64, bool, error)
	TotalSize() (int64, error)
	ListAll() ([]Entry, error)
	EvictToSize(target int64, remove Remover) (int, error)
	EvictLRU(n int, remove Remover) (int, error)
	EvictLargest(n int, remove Remover) (int, error)
	Close() error
}

var (
	_ BlobIndex = (*SQLiteIndex)(nil)
	_ BlobIndex = (*PebbleIndex)(nil)
)

// Open opens a BlobIndex of the given backend at path.
func Open(backend Backend, path string) (BlobIndex, error) {
	switch backend {
	case BackendSQLite, "":
		return OpenSQLiteIndex(path)
	case BackendPebble:
		return OpenPebbleIndex(path)
	default:
		return nil, fmt.Errorf("blobindex: unknown backend %q", backend)
	}
}
