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

package actioncache

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bake-build/bake/internal/errs"
	"github.com/bake-build/bake/internal/util"
	"github.com/bake-build/bake/pkg/bake/model"
)

// envelope is the on-disk shape when a Signer is configured: the
// manifest plus its signature.
type envelope struct {
	Manifest  json.RawMessage `json:"manifest"`
	Signature *Signature      `json:"signature,omitempty"`
}

// Store is a key→manifest store persisted as hex-named JSON files under
// root.
type Store struct {
	root   string
	signer *Signer
	logger *slog.Logger
}

// Options configures a Store.
type Options struct {
	Signer *Signer
	Logger *slog.Logger
}

// Open opens (creating if necessary) a Store rooted at root.
func Open(root string, opts Options) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("actioncache: creating %s: %w", root, err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	}
	return &Store{root: root, signer: opts.Signer, logger: logger.With("component", "actioncache")}, nil
}

// path returns the hex-encoded filename for key: the filesystem
// filename is the hex encoding of the raw key bytes with
// '.json' suffix".
func (s *Store) path(key string) string {
	return filepath.Join(s.root, hex.EncodeToString([]byte(key))+".json")
}

// Put writes manifest for key atomically (temp file + rename), signing
// it first if a Signer is configured.
func (s *Store) Put(key string, manifest model.ActionResult) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return errs.NewCacheBackendError("actioncache", "put", err)
	}

	payload := data
	if s.signer != nil {
		sig := s.signer.Sign(data)
		env := envelope{Manifest: data, Signature: &sig}
		payload, err = json.MarshalIndent(env, "", "  ")
		if err != nil {
			return errs.NewCacheBackendError("actioncache", "put", err)
		}
	}

	if err := util.AtomicWriteFile(s.path(key), payload, 0o644); err != nil {
		return errs.NewCacheBackendError("actioncache", "put", err)
	}
	return nil
}

// Get returns the manifest for key, or ok=false if absent. A parse
// failure (including a signature mismatch) is reported as an error, not
// a miss: the store itself reports faithfully, and the orchestrator
// decides whether to treat it as a miss.
func (s *Store) Get(key string) (model.ActionResult, bool, error) {
	raw, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return model.ActionResult{}, false, nil
		}
		return model.ActionResult{}, false, errs.NewCacheBackendError("actioncache", "get", err)
	}

	manifestBytes := raw
	if s.signer != nil {
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return model.ActionResult{}, false, errs.NewIntegrityError(key, fmt.Sprintf("malformed signed envelope: %v", err))
		}
		if env.Signature == nil {
			return model.ActionResult{}, false, errs.NewIntegrityError(key, "signing is enabled but manifest is unsigned")
		}
		if !s.signer.Verify(env.Manifest, *env.Signature) {
			s.logger.Error("manifest signature mismatch", "operation", "get", "security", "tamper_detected", "key", key)
			return model.ActionResult{}, false, errs.NewIntegrityError(key, "signature verification failed")
		}
		manifestBytes = env.Manifest
	}

	var result model.ActionResult
	if err := json.Unmarshal(manifestBytes, &result); err != nil {
		return model.ActionResult{}, false, errs.NewIntegrityError(key, fmt.Sprintf("malformed manifest: %v", err))
	}
	return result, true, nil
}

// Contains reports whether key has a manifest on disk.
func (s *Store) Contains(key string) bool {
	_, err := os.Stat(s.path(key))
	return err == nil
}

// Delete removes key's manifest file, if present.
func (s *Store) Delete(key string) error {
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return errs.NewCacheBackendError("actioncache", "delete", err)
	}
	return nil
}

// List returns every stored key by reversing the hex encoding of
// filenames.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.NewCacheBackendError("actioncache", "list", err)
	}

	var keys []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		const suffix = ".json"
		if len(name) <= len(suffix) || name[len(name)-len(suffix):] != suffix {
			continue
		}
		raw, err := hex.DecodeString(name[:len(name)-len(suffix)])
		if err != nil {
			continue
		}
		keys = append(keys, string(raw))
	}
	return keys, nil
}

// Stats reports the manifest count and total bytes on disk.
type Stats struct {
	Count     int
	TotalSize int64
}

func (s *Store) Stats() (Stats, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return Stats{}, nil
		}
		return Stats{}, errs.NewCacheBackendError("actioncache", "stats", err)
	}

	var stats Stats
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		stats.Count++
		stats.TotalSize += info.Size()
	}
	return stats, nil
}
