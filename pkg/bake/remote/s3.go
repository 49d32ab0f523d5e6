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

// Package remote implements BlobStore adapters over remote object
// storage.
package remote

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"golang.org/x/sync/semaphore"

	"github.com/bake-build/bake/internal/errs"
	"github.com/bake-build/bake/pkg/bake/cas"
	"github.com/bake-build/bake/pkg/bake/model"
)

// S3Options configures an S3Backend.
type S3Options struct {
	Endpoint string
	Bucket   string
	Prefix   string
	UseSSL   bool

	// AccessKey/SecretKey are optional; when both are empty, ambient
	// credentials (environment, IAM role) are used instead.
	AccessKey string
	SecretKey string

	// MaxUploads/MaxDownloads bound concurrent transfers (defaults 8
	// and 16).
	MaxUploads   int64
	MaxDownloads int64

	Logger *slog.Logger
}

// S3Backend is a BlobStore implementation over an S3-compatible object
// store, using the object key layout `[<prefix>/]<algo>/<shard>/<hex>`.
type S3Backend struct {
	client *minio.Client
	bucket string
	prefix string

	uploadSem   *semaphore.Weighted
	downloadSem *semaphore.Weighted

	logger *slog.Logger
}

var _ cas.BlobStore = (*S3Backend)(nil)

// NewS3Backend constructs an S3Backend from opts.
func NewS3Backend(opts S3Options) (*S3Backend, error) {
	var creds *credentials.Credentials
	if opts.AccessKey != "" || opts.SecretKey != "" {
		creds = credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, "")
	} else {
		creds = credentials.NewChainCredentials([]credentials.Provider{
			&credentials.EnvAWS{},
			&credentials.FileAWSCredentials{},
			&credentials.IAM{},
		})
	}

	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  creds,
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, errs.NewCacheBackendError("remote.s3", "new", err)
	}

	uploads := opts.MaxUploads
	if uploads <= 0 {
		uploads = 8
	}
	downloads := opts.MaxDownloads
	if downloads <= 0 {
		downloads = 16
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	}

	return &S3Backend{
		client:      client,
		bucket:      opts.Bucket,
		prefix:      opts.Prefix,
		uploadSem:   semaphore.NewWeighted(uploads),
		downloadSem: semaphore.NewWeighted(downloads),
		logger:      logger.With("component", "remote.s3"),
	}, nil
}

func (b *S3Backend) objectKey(h model.Hash) string {
	if b.prefix == "" {
		return path.Join(string(h.Algorithm), h.ShardPrefix(), h.Hex())
	}
	return path.Join(b.prefix, string(h.Algorithm), h.ShardPrefix(), h.Hex())
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.Code == "NotFound"
}

// Contains checks object existence, normalizing "not found" to false.
func (b *S3Backend) Contains(ctx context.Context, h model.Hash) (bool, error) {
	_, err := b.client.StatObject(ctx, b.bucket, b.objectKey(h), minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, errs.NewCacheBackendError("remote.s3", "contains", err)
}

// Get downloads h's object, gated by the download semaphore.
func (b *S3Backend) Get(ctx context.Context, h model.Hash) ([]byte, error) {
	if err := b.downloadSem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer b.downloadSem.Release(1)

	obj, err := b.client.GetObject(ctx, b.bucket, b.objectKey(h), minio.GetObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return nil, errs.ErrNotFound
		}
		return nil, errs.NewCacheBackendError("remote.s3", "get", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if isNotFound(err) {
			return nil, errs.ErrNotFound
		}
		return nil, errs.NewCacheBackendError("remote.s3", "get", err)
	}
	return data, nil
}

// Put uploads data under its content hash. An existence check precedes
// every upload so the object is never re-uploaded if already present.
func (b *S3Backend) Put(ctx context.Context, data []byte) (model.Hash, error) {
	h, err := model.HashBytes(data, model.Blake3)
	if err != nil {
		return model.Hash{}, err
	}

	if exists, err := b.Contains(ctx, h); err == nil && exists {
		return h, nil
	}

	if err := b.uploadSem.Acquire(ctx, 1); err != nil {
		return model.Hash{}, err
	}
	defer b.uploadSem.Release(1)

	_, err = b.client.PutObject(ctx, b.bucket, b.objectKey(h), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return model.Hash{}, errs.NewCacheBackendError("remote.s3", "put", err)
	}
	return h, nil
}

// Delete removes h's object.
func (b *S3Backend) Delete(ctx context.Context, h model.Hash) error {
	err := b.client.RemoveObject(ctx, b.bucket, b.objectKey(h), minio.RemoveObjectOptions{})
	if err != nil && !isNotFound(err) {
		return errs.NewCacheBackendError("remote.s3", "delete", err)
	}
	return nil
}

// Size stats h's object, normalizing "not found" to false.
func (b *S3Backend) Size(ctx context.Context, h model.Hash) (uint64, bool, error) {
	info, err := b.client.StatObject(ctx, b.bucket, b.objectKey(h), minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return 0, false, nil
		}
		return 0, false, errs.NewCacheBackendError("remote.s3", "size", err)
	}
	return uint64(info.Size), true, nil
}

// List enumerates every object under the backend's blob prefix.
func (b *S3Backend) List(ctx context.Context) ([]model.Hash, error) {
	prefix := b.prefix
	if prefix != "" {
		prefix += "/"
	}
	var out []model.Hash
	for obj := range b.client.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			continue
		}
		h, err := hashFromKey(obj.Key, prefix)
		if err != nil {
			continue
		}
		out = append(out, h)
	}
	return out, nil
}

func hashFromKey(key, prefix string) (model.Hash, error) {
	rest := key
	if prefix != "" {
		rest = rest[len(prefix):]
	}
	parts := splitN(rest, '/', 3)
	if len(parts) != 3 {
		return model.Hash{}, errs.ErrNotFound
	}
	return model.ParseHash(parts[0] + ":" + parts[2])
}

func splitN(s string, sep byte, n int) []string {
	var out []string
	start := 0
	for i := 0; i < len(s) && len(out) < n-1; i++ {
		if s[i] == sep {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

func (b *S3Backend) ContainsMany(ctx context.Context, hashes []model.Hash) (map[model.Hash]bool, error) {
	out := make(map[model.Hash]bool, len(hashes))
	for _, h := range hashes {
		ok, _ := b.Contains(ctx, h)
		out[h] = ok
	}
	return out, nil
}

func (b *S3Backend) GetMany(ctx context.Context, hashes []model.Hash) (map[model.Hash][]byte, error) {
	out := make(map[model.Hash][]byte, len(hashes))
	var batchErr cas.BatchError
	for _, h := range hashes {
		data, err := b.Get(ctx, h)
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

func (b *S3Backend) PutMany(ctx context.Context, blobs [][]byte) ([]model.Hash, error) {
	out := make([]model.Hash, len(blobs))
	for i, data := range blobs {
		h, err := b.Put(ctx, data)
		if err != nil {
			return nil, err
		}
		out[i] = h
	}
	return out, nil
}

func (b *S3Backend) manifestKey(key string) string {
	if b.prefix == "" {
		return path.Join("manifests", key)
	}
	return path.Join(b.prefix, "manifests", key)
}

func (b *S3Backend) PutManifest(ctx context.Context, key string, data []byte) error {
	_, err := b.client.PutObject(ctx, b.bucket, b.manifestKey(key), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{})
	if err != nil {
		return errs.NewCacheBackendError("remote.s3", "put_manifest", err)
	}
	return nil
}

func (b *S3Backend) GetManifest(ctx context.Context, key string) ([]byte, bool, error) {
	obj, err := b.client.GetObject(ctx, b.bucket, b.manifestKey(key), minio.GetObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, errs.NewCacheBackendError("remote.s3", "get_manifest", err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, errs.NewCacheBackendError("remote.s3", "get_manifest", err)
	}
	return data, true, nil
}
