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

// Package cas implements bake's content-addressable blob storage layer:
// the BlobStore capability and its LocalFsStore implementation.
package cas

import (
	"context"
	"fmt"
	"strings"

	"github.com/bake-build/bake/pkg/bake/model"
)

// BlobStore is bake's content-addressed byte storage capability.
// Implementations (LocalFsStore, remote.S3Backend, layered.Store) must
// be safe for concurrent use across goroutines.
type BlobStore interface {
	Contains(ctx context.Context, h model.Hash) (bool, error)
	Get(ctx context.Context, h model.Hash) ([]byte, error)
	Put(ctx context.Context, data []byte) (model.Hash, error)
	Delete(ctx context.Context, h model.Hash) error
	Size(ctx context.Context, h model.Hash) (uint64, bool, error)
	List(ctx context.Context) ([]model.Hash, error)

	ContainsMany(ctx context.Context, hashes []model.Hash) (map[model.Hash]bool, error)
	GetMany(ctx context.Context, hashes []model.Hash) (map[model.Hash][]byte, error)
	PutMany(ctx context.Context, blobs [][]byte) ([]model.Hash, error)

	PutManifest(ctx context.Context, key string, data []byte) error
	GetManifest(ctx context.Context, key string) ([]byte, bool, error)
}

// BatchError accumulates per-item failures from a batch operation
// without aborting the rest of the batch.
type BatchError struct {
	Errors map[model.Hash]error
}

func (e *BatchError) Error() string {
	if e == nil || len(e.Errors) == 0 {
		return "cas: empty batch error"
	}
	parts := make([]string, 0, len(e.Errors))
	for h, err := range e.Errors {
		parts = append(parts, fmt.Sprintf("%s: %v", h, err))
	}
	return fmt.Sprintf("cas: %d of batch failed: %s", len(e.Errors), strings.Join(parts, "; "))
}

func (e *BatchError) Add(h model.Hash, err error) {
	if e.Errors == nil {
		e.Errors = make(map[model.Hash]error)
	}
	e.Errors[h] = err
}

func (e *BatchError) HasErrors() bool { return e != nil && len(e.Errors) > 0 }

// fanOutContains is the default sequential ContainsMany implementation,
// usable by any BlobStore that doesn't optimize batch existence checks.
func fanOutContains(ctx context.Context, s BlobStore, hashes []model.Hash) (map[model.Hash]bool, error) {
	out := make(map[model.Hash]bool, len(hashes))
	for _, h := range hashes {
		ok, err := s.Contains(ctx, h)
		if err != nil {
			return nil, err
		}
		out[h] = ok
	}
	return out, nil
}

// fanOutGet is the default sequential GetMany implementation.
func fanOutGet(ctx context.Context, s BlobStore, hashes []model.Hash) (map[model.Hash][]byte, error) {
	out := make(map[model.Hash][]byte, len(hashes))
	var batchErr BatchError
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

// fanOutPut is the default sequential PutMany implementation.
func fanOutPut(ctx context.Context, s BlobStore, blobs [][]byte) ([]model.Hash, error) {
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
