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
	"encoding/json"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/bake-build/bake/internal/errs"
)

// PebbleIndex is an embedded-KV alternative to SQLiteIndex, for
// deployments that want a second, independently-tuned backend.
// Selected via Open(BackendPebble, path). Tuning grounded on
// pkg/helios/objstore/objstore.go in the reference corpus.
type PebbleIndex struct {
	mu sync.Mutex
	db *pebble.DB
}

// OpenPebbleIndex opens (creating if necessary) a Pebble-backed catalog
// at path, tuned for a write-heavy workload.
func OpenPebbleIndex(path string) (*PebbleIndex, error) {
	opts := &pebble.Options{
		MemTableSize:                64 << 20,
		MemTableStopWritesThreshold: 4,
		L0CompactionThreshold:       4,
		L0StopWritesThreshold:       12,
		LBaseMaxBytes:               64 << 20,
		MaxConcurrentCompactions:    func() int { return 3 },
		DisableWAL:                  false,
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, errs.NewCacheBackendError("blobindex.pebble", "open", err)
	}
	return &PebbleIndex{db: db}, nil
}

func (p *PebbleIndex) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.db.Close()
}

func (p *PebbleIndex) key(digest string) []byte { return []byte("blob/" + digest) }

func (p *PebbleIndex) get(digest string) (Entry, bool, error) {
	val, closer, err := p.db.Get(p.key(digest))
	if err == pebble.ErrNotFound {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, errs.NewCacheBackendError("blobindex.pebble", "get", err)
	}
	defer closer.Close()

	var e Entry
	if err := json.Unmarshal(val, &e); err != nil {
		return Entry{}, false, errs.NewCacheBackendError("blobindex.pebble", "get", err)
	}
	return e, true, nil
}

func (p *PebbleIndex) set(e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return errs.NewCacheBackendError("blobindex.pebble", "set", err)
	}
	if err := p.db.Set(p.key(e.Digest), data, pebble.Sync); err != nil {
		return errs.NewCacheBackendError("blobindex.pebble", "set", err)
	}
	return nil
}

func (p *PebbleIndex) Insert(digest, algorithm string, size int64, compressed bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now().Unix()
	existing, ok, err := p.get(digest)
	if err != nil {
		return err
	}
	compressionFormat := 0
	if compressed {
		compressionFormat = 1
	}
	if ok {
		existing.LastAccessed = now
		existing.AccessCount++
		return p.set(existing)
	}
	return p.set(Entry{
		Digest:            digest,
		Algorithm:         algorithm,
		Size:              size,
		StoredAt:          now,
		AccessCount:       1,
		LastAccessed:      now,
		CompressionFormat: compressionFormat,
	})
}

func (p *PebbleIndex) Touch(digest string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok, err := p.get(digest)
	if err != nil {
		return err
	}
	if !ok {
		return errs.ErrNotFound
	}
	e.LastAccessed = time.Now().Unix()
	e.AccessCount++
	return p.set(e)
}

func (p *PebbleIndex) Remove(digest string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.db.Delete(p.key(digest), pebble.Sync); err != nil {
		return errs.NewCacheBackendError("blobindex.pebble", "remove", err)
	}
	return nil
}

func (p *PebbleIndex) Contains(digest string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, ok, err := p.get(digest)
	return ok, err
}

func (p *PebbleIndex) Size(digest string) (int64, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok, err := p.get(digest)
	if err != nil || !ok {
		return 0, ok, err
	}
	return e.Size, true, nil
}

// ListAll iterates every row via a prefix scan over the "blob/" keyspace.
func (p *PebbleIndex) ListAll() ([]Entry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("blob/"),
		UpperBound: []byte("blob0"), // '0' sorts just after '/' ASCII-wise, bounding the prefix scan
	})
	if err != nil {
		return nil, errs.NewCacheBackendError("blobindex.pebble", "list_all", err)
	}
	defer iter.Close()

	var out []Entry
	for iter.First(); iter.Valid(); iter.Next() {
		var e Entry
		if err := json.Unmarshal(iter.Value(), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, iter.Error()
}

func (p *PebbleIndex) TotalSize() (int64, error) {
	entries, err := p.ListAll()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, e := range entries {
		total += e.Size
	}
	return total, nil
}

// EvictToSize mirrors SQLiteIndex.EvictToSize over an in-memory sort of
// ListAll, since Pebble has no secondary index on last_accessed.
func (p *PebbleIndex) EvictToSize(target int64, remove Remover) (int, error) {
	entries, err := p.ListAll()
	if err != nil {
		return 0, err
	}
	sortByLastAccessed(entries)

	total, err := p.TotalSize()
	if err != nil {
		return 0, err
	}

	evicted := 0
	for _, e := range entries {
		if total <= target {
			break
		}
		_ = remove(e.Digest)
		if err := p.Remove(e.Digest); err != nil {
			return evicted, err
		}
		evicted++
		total -= e.Size
	}
	return evicted, nil
}

// EvictLRU removes the n least-recently-used blobs in a single pass.
func (p *PebbleIndex) EvictLRU(n int, remove Remover) (int, error) {
	entries, err := p.ListAll()
	if err != nil {
		return 0, err
	}
	sortByLastAccessed(entries)
	if n < len(entries) {
		entries = entries[:n]
	}
	return p.removeAll(entries, remove)
}

// EvictLargest removes the n largest blobs in a single pass.
func (p *PebbleIndex) EvictLargest(n int, remove Remover) (int, error) {
	entries, err := p.ListAll()
	if err != nil {
		return 0, err
	}
	sortBySizeDesc(entries)
	if n < len(entries) {
		entries = entries[:n]
	}
	return p.removeAll(entries, remove)
}

func (p *PebbleIndex) removeAll(entries []Entry, remove Remover) (int, error) {
	evicted := 0
	for _, e := range entries {
		_ = remove(e.Digest)
		if err := p.Remove(e.Digest); err != nil {
			return evicted, err
		}
		evicted++
	}
	return evicted, nil
}
