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

package cas

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/bake-build/bake/internal/errs"
	"github.com/bake-build/bake/internal/util"
	"github.com/bake-build/bake/pkg/bake/model"
)

// Index is the subset of BlobIndex (pkg/bake/blobindex) LocalFsStore
// needs: recording and touching catalog rows as blobs are written and
// read, keeping last_accessed/access_count current on every get. A nil
// Index disables cataloging — the store still works, just without
// O(1) existence/LRU bookkeeping.
type Index interface {
	Insert(digest string, algorithm string, size int64, compressed bool) error
	Touch(digest string) error
	Remove(digest string) error
	Contains(digest string) (bool, error)
}

// Options configures a LocalFsStore. The zero value is usable.
type Options struct {
	Logger *slog.Logger

	// Index catalogs blobs for O(1) existence checks and eviction. May
	// be nil.
	Index Index

	// CacheSize bounds the in-process hot-content LRU. Zero disables
	// the cache.
	CacheSize int

	// Compress enables zstd compression of blobs at rest. Get
	// decompresses every blob whenever Compress is set and none when it
	// is not; it does not consult a per-blob marker, so a root is read
	// with the setting it was written with.
	Compress bool

	// DefaultAlgorithm is used by Put when computing new hashes.
	// Defaults to model.Blake3.
	DefaultAlgorithm model.Algorithm
}

// LocalFsStore is a BlobStore backed by a sharded local filesystem tree:
// <root>/<algo>/<shard>/<hex>.
type LocalFsStore struct {
	root   string
	opts   Options
	logger *slog.Logger

	cache *lru.Cache[model.Hash, []byte]

	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

var _ BlobStore = (*LocalFsStore)(nil)

// NewLocalFsStore opens (creating if necessary) a LocalFsStore rooted at
// root.
func NewLocalFsStore(root string, opts Options) (*LocalFsStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("cas: creating root %s: %w", root, err)
	}
	if opts.DefaultAlgorithm == "" {
		opts.DefaultAlgorithm = model.Blake3
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	}

	s := &LocalFsStore{root: root, opts: opts, logger: logger.With("component", "cas.localfs")}

	if opts.CacheSize > 0 {
		c, err := lru.New[model.Hash, []byte](opts.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("cas: creating hot-content cache: %w", err)
		}
		s.cache = c
	}

	if opts.Compress {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, fmt.Errorf("cas: initializing zstd encoder: %w", err)
		}
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("cas: initializing zstd decoder: %w", err)
		}
		s.encoder, s.decoder = enc, dec
	}

	return s, nil
}

// Close releases the store's zstd resources.
func (s *LocalFsStore) Close() error {
	if s.decoder != nil {
		s.decoder.Close()
	}
	return nil
}

func (s *LocalFsStore) shardPath(h model.Hash) string {
	return filepath.Join(s.root, string(h.Algorithm), h.ShardPrefix(), h.Hex())
}

// Contains reports whether h is present, consulting the index first
// when configured (avoiding a filesystem stat).
func (s *LocalFsStore) Contains(ctx context.Context, h model.Hash) (bool, error) {
	if s.opts.Index != nil {
		ok, err := s.opts.Index.Contains(h.String())
		if err == nil {
			return ok, nil
		}
		s.logger.WarnContext(ctx, "index contains check failed, falling back to stat", "operation", "contains", "error", err)
	}
	_, err := os.Stat(s.shardPath(h))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, errs.NewCacheBackendError("localfs", "contains", err)
}

// Get returns the decoded bytes for h, touching the index on success.
func (s *LocalFsStore) Get(ctx context.Context, h model.Hash) ([]byte, error) {
	if s.cache != nil {
		if data, ok := s.cache.Get(h); ok {
			return data, nil
		}
	}

	raw, err := os.ReadFile(s.shardPath(h))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.ErrNotFound
		}
		return nil, errs.NewCacheBackendError("localfs", "get", err)
	}

	data := raw
	if s.opts.Compress {
		data, err = s.decoder.DecodeAll(raw, nil)
		if err != nil {
			return nil, errs.NewCacheBackendError("localfs", "get", fmt.Errorf("decompressing %s: %w", h, err))
		}
	}

	if s.opts.Index != nil {
		if err := s.opts.Index.Touch(h.String()); err != nil {
			s.logger.WarnContext(ctx, "touching index entry failed", "operation", "get", "error", err)
		}
	}
	if s.cache != nil {
		s.cache.Add(h, data)
	}
	return data, nil
}

// Put stores data, deduplicating by content hash.
func (s *LocalFsStore) Put(ctx context.Context, data []byte) (model.Hash, error) {
	h, err := model.HashBytes(data, s.opts.DefaultAlgorithm)
	if err != nil {
		return model.Hash{}, err
	}

	path := s.shardPath(h)
	if _, statErr := os.Stat(path); statErr == nil {
		// Already present, dedup.
		if s.opts.Index != nil {
			_ = s.opts.Index.Touch(h.String())
		}
		return h, nil
	}

	payload := data
	compressed := false
	if s.opts.Compress {
		payload = s.encoder.EncodeAll(data, nil)
		compressed = true
	}

	if err := util.AtomicWriteFile(path, payload, 0o644); err != nil {
		return model.Hash{}, errs.NewCacheBackendError("localfs", "put", err)
	}

	if s.opts.Index != nil {
		if err := s.opts.Index.Insert(h.String(), string(h.Algorithm), int64(len(payload)), compressed); err != nil {
			s.logger.WarnContext(ctx, "indexing new blob failed", "operation", "put", "error", err)
		}
	}
	if s.cache != nil {
		s.cache.Add(h, data)
	}
	return h, nil
}

// Delete removes h's blob file and, if an index is configured, its row.
func (s *LocalFsStore) Delete(ctx context.Context, h model.Hash) error {
	if err := os.Remove(s.shardPath(h)); err != nil && !os.IsNotExist(err) {
		return errs.NewCacheBackendError("localfs", "delete", err)
	}
	if s.cache != nil {
		s.cache.Remove(h)
	}
	if s.opts.Index != nil {
		if err := s.opts.Index.Remove(h.String()); err != nil {
			s.logger.WarnContext(ctx, "removing index entry failed", "operation", "delete", "error", err)
		}
	}
	return nil
}

// Size returns the on-disk size of h's blob, or false if absent.
func (s *LocalFsStore) Size(ctx context.Context, h model.Hash) (uint64, bool, error) {
	info, err := os.Stat(s.shardPath(h))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, errs.NewCacheBackendError("localfs", "size", err)
	}
	return uint64(info.Size()), true, nil
}

// List walks the store's shard tree and returns every stored hash.
func (s *LocalFsStore) List(ctx context.Context) ([]model.Hash, error) {
	var out []model.Hash
	algos, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.NewCacheBackendError("localfs", "list", err)
	}
	for _, algoEntry := range algos {
		if !algoEntry.IsDir() {
			continue
		}
		algo := model.Algorithm(algoEntry.Name())
		algoPath := filepath.Join(s.root, algoEntry.Name())
		shards, err := os.ReadDir(algoPath)
		if err != nil {
			continue
		}
		for _, shardEntry := range shards {
			if !shardEntry.IsDir() {
				continue
			}
			shardPath := filepath.Join(algoPath, shardEntry.Name())
			files, err := os.ReadDir(shardPath)
			if err != nil {
				continue
			}
			for _, f := range files {
				if f.IsDir() {
					continue
				}
				h, parseErr := model.ParseHash(string(algo) + ":" + f.Name())
				if parseErr != nil {
					continue
				}
				out = append(out, h)
			}
		}
	}
	return out, nil
}

func (s *LocalFsStore) ContainsMany(ctx context.Context, hashes []model.Hash) (map[model.Hash]bool, error) {
	return fanOutContains(ctx, s, hashes)
}

func (s *LocalFsStore) GetMany(ctx context.Context, hashes []model.Hash) (map[model.Hash][]byte, error) {
	return fanOutGet(ctx, s, hashes)
}

func (s *LocalFsStore) PutMany(ctx context.Context, blobs [][]byte) ([]model.Hash, error) {
	return fanOutPut(ctx, s, blobs)
}

// manifestPath returns the path for a non-content-addressed manifest
// key, stored alongside the blob shard tree under a dedicated directory.
func (s *LocalFsStore) manifestPath(key string) string {
	return filepath.Join(s.root, "manifests", fmt.Sprintf("%x", []byte(key)))
}

func (s *LocalFsStore) PutManifest(ctx context.Context, key string, data []byte) error {
	if err := util.AtomicWriteFile(s.manifestPath(key), data, 0o644); err != nil {
		return errs.NewCacheBackendError("localfs", "put_manifest", err)
	}
	return nil
}

func (s *LocalFsStore) GetManifest(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := os.ReadFile(s.manifestPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, errs.NewCacheBackendError("localfs", "get_manifest", err)
	}
	return data, true, nil
}

// Extract hard-links (or, failing that, copies) h's blob to dst, used
// during cache-hit restore.
func (s *LocalFsStore) Extract(ctx context.Context, h model.Hash, dst string) error {
	src := s.shardPath(h)
	if s.opts.Compress {
		// Compressed on-disk blobs can't be hard-linked directly into
		// the working tree; materialize through Get instead.
		data, err := s.Get(ctx, h)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return fmt.Errorf("cas: creating %s: %w", filepath.Dir(dst), err)
		}
		return os.WriteFile(dst, data, 0o644)
	}
	if err := util.HardLinkOrCopy(src, dst); err != nil {
		return errs.NewCacheBackendError("localfs", "extract", err)
	}
	return nil
}
