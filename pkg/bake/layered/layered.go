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

// Package layered composes an ordered list of cas.BlobStore tiers into
// a single tiered store with read-through promotion and write-through
// fan-out.
package layered

import (
	"context"
	"log/slog"
	"os"

	"github.com/bake-build/bake/internal/errs"
	"github.com/bake-build/bake/pkg/bake/cas"
	"github.com/bake-build/bake/pkg/bake/model"
)

// Options configures a Store.
type Options struct {
	Logger *slog.Logger

	// AutoPromote writes a blob found in tier i>0 into tiers 0..i
	// asynchronously on a read hit. Failures are logged, never
	// propagated.
	AutoPromote bool

	// WriteThrough fans a Put out to every tier in parallel, succeeding
	// if at least one tier accepts it. When false, Put only writes tier 0.
	WriteThrough bool
}

// Store composes an ordered list of BlobStore tiers, lowest-latency
// first.
type Store struct {
	tiers  []cas.BlobStore
	opts   Options
	logger *slog.Logger
}

var _ cas.BlobStore = (*Store)(nil)

// New builds a layered Store over tiers, ordered lowest-latency first.
func New(tiers []cas.BlobStore, opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	}
	return &Store{tiers: tiers, opts: opts, logger: logger.With("component", "layered")}
}

// Contains tries tiers in order; first hit wins.
func (s *Store) Contains(ctx context.Context, h model.Hash) (bool, error) {
	for _, t := range s.tiers {
		ok, err := t.Contains(ctx, h)
		if err == nil && ok {
			return true, nil
		}
	}
	return false, nil
}

// Get tries tiers in order; on a hit from tier i>0, if AutoPromote is
// enabled, asynchronously writes the blob into every tier 0..i.
func (s *Store) Get(ctx context.Context, h model.Hash) ([]byte, error) {
	for i, t := range s.tiers {
		data, err := t.Get(ctx, h)
		if err != nil {
			continue
		}
		if i > 0 && s.opts.AutoPromote {
			s.promote(h, data, i)
		}
		return data, nil
	}
	return nil, errs.ErrNotFound
}

func (s *Store) promote(h model.Hash, data []byte, fromTier int) {
	go func() {
		ctx := context.Background()
		for i := 0; i < fromTier; i++ {
			if _, err := s.tiers[i].Put(ctx, data); err != nil {
				s.logger.Warn("promotion write failed", "operation", "promote", "tier", i, "hash", h.String(), "error", err)
			}
		}
	}()
}

// Put writes to tier 0 only, unless WriteThrough is enabled, in which
// case it fans out to every tier in parallel and succeeds if at least
// one tier succeeds.
func (s *Store) Put(ctx context.Context, data []byte) (model.Hash, error) {
	if len(s.tiers) == 0 {
		return model.Hash{}, errs.NewCacheBackendError("layered", "put", context.Canceled)
	}
	if !s.opts.WriteThrough || len(s.tiers) == 1 {
		return s.tiers[0].Put(ctx, data)
	}

	type result struct {
		h   model.Hash
		err error
	}
	results := make(chan result, len(s.tiers))
	for _, t := range s.tiers {
		t := t
		go func() {
			h, err := t.Put(ctx, data)
			results <- result{h, err}
		}()
	}

	var first model.Hash
	var lastErr error
	ok := false
	for range s.tiers {
		r := <-results
		if r.err != nil {
			lastErr = r.err
			s.logger.Warn("tier write failed", "operation", "put", "error", r.err)
			continue
		}
		if !ok {
			first = r.h
			ok = true
		}
	}
	if !ok {
		return model.Hash{}, errs.NewCacheBackendError("layered", "put", lastErr)
	}
	return first, nil
}

// Delete fans out to every tier; succeeds if at least one tier reports
// success.
func (s *Store) Delete(ctx context.Context, h model.Hash) error {
	var lastErr error
	ok := false
	for _, t := range s.tiers {
		if err := t.Delete(ctx, h); err != nil {
			lastErr = err
			continue
		}
		ok = true
	}
	if !ok && lastErr != nil {
		return lastErr
	}
	return nil
}

// Size tries tiers in order; first hit wins.
func (s *Store) Size(ctx context.Context, h model.Hash) (uint64, bool, error) {
	for _, t := range s.tiers {
		size, ok, err := t.Size(ctx, h)
		if err == nil && ok {
			return size, true, nil
		}
	}
	return 0, false, nil
}

// List returns the deduplicated union of every reachable tier's list.
func (s *Store) List(ctx context.Context) ([]model.Hash, error) {
	seen := make(map[model.Hash]bool)
	var out []model.Hash
	for _, t := range s.tiers {
		hashes, err := t.List(ctx)
		if err != nil {
			continue
		}
		for _, h := range hashes {
			if !seen[h] {
				seen[h] = true
				out = append(out, h)
			}
		}
	}
	return out, nil
}

func (s *Store) ContainsMany(ctx context.Context, hashes []model.Hash) (map[model.Hash]bool, error) {
	out := make(map[model.Hash]bool, len(hashes))
	for _, h := range hashes {
		ok, _ := s.Contains(ctx, h)
		out[h] = ok
	}
	return out, nil
}

func (s *Store) GetMany(ctx context.Context, hashes []model.Hash) (map[model.Hash][]byte, error) {
	out := make(map[model.Hash][]byte, len(hashes))
	var batchErr cas.BatchError
	for _, h := range hashes {
		data, err := s.Get(ctx, h)
		if err != nil {
			batchErr.Add(h, err)
			continue
		}
		out[h] = data
	}
	if batchErr.HasErrors() {
		return out, &batchErr
	}
	return out, nil
}

func (s *Store) PutMany(ctx context.Context, blobs [][]byte) ([]model.Hash, error) {
	out := make([]model.Hash, len(blobs))
	for i, b := range blobs {
		h, err := s.Put(ctx, b)
		if err != nil {
			return nil, err
		}
		out[i] = h
	}
	return out, nil
}

// PutManifest always fans out to every tier.
func (s *Store) PutManifest(ctx context.Context, key string, data []byte) error {
	var lastErr error
	ok := false
	for _, t := range s.tiers {
		if err := t.PutManifest(ctx, key, data); err != nil {
			lastErr = err
			continue
		}
		ok = true
	}
	if !ok && lastErr != nil {
		return lastErr
	}
	return nil
}

// GetManifest tries tiers in order and promotes on hit.
func (s *Store) GetManifest(ctx context.Context, key string) ([]byte, bool, error) {
	for i, t := range s.tiers {
		data, ok, err := t.GetManifest(ctx, key)
		if err == nil && ok {
			if i > 0 && s.opts.AutoPromote {
				go func() {
					bg := context.Background()
					for j := 0; j < i; j++ {
						if err := s.tiers[j].PutManifest(bg, key, data); err != nil {
							s.logger.Warn("manifest promotion failed", "operation", "promote_manifest", "tier", j, "error", err)
						}
					}
				}()
			}
			return data, true, nil
		}
	}
	return nil, false, nil
}
