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

// Package fingerprint computes the deterministic self-hash and combined
// hash of a recipe.
package fingerprint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"lukechampine.com/blake3"

	"github.com/bake-build/bake/internal/errs"
	"github.com/bake-build/bake/internal/util"
	"github.com/bake-build/bake/pkg/bake/model"
)

// canonicalSelf is the stable structure hashed to produce a self-hash:
// {file_hashes: sorted_map, run: command}.
// encoding/json already emits map keys sorted, which gives us the
// "canonical JSON, sorted keys" requirement for free.
type canonicalSelf struct {
	FileHashes map[string]string `json:"file_hashes"`
	Run        string            `json:"run"`
}

// Table memoizes combined hashes across one fingerprinting pass so
// repeated lookups for the same recipe don't re-walk its dependencies.
type Table struct {
	mu       sync.Mutex
	combined map[model.FQN]string
	self     map[model.FQN]string

	recipes map[model.FQN]model.Recipe
}

// NewTable constructs a fingerprint table scoped to recipes. recipes must
// already form a valid (acyclic, fully resolved) graph; Table does not
// re-validate that — the planner owns cycle/missing-dependency detection.
func NewTable(recipes map[model.FQN]model.Recipe) *Table {
	return &Table{
		combined: make(map[model.FQN]string),
		self:     make(map[model.FQN]string),
		recipes:  recipes,
	}
}

// SelfHash computes (and memoizes) the self-hash of the recipe named fqn.
func (t *Table) SelfHash(fqn model.FQN) (string, error) {
	t.mu.Lock()
	if h, ok := t.self[fqn]; ok {
		t.mu.Unlock()
		return h, nil
	}
	t.mu.Unlock()

	r, ok := t.recipes[fqn]
	if !ok {
		return "", fmt.Errorf("fingerprint: unknown recipe %q", fqn)
	}

	files, err := util.MatchGlobs(r.ConfigDir, r.InputGlobs)
	if err != nil {
		return "", errs.NewFingerprintError(string(fqn), r.ConfigDir, err)
	}

	fileHashes := make(map[string]string, len(files))
	for _, rel := range files {
		full := filepath.Join(r.ConfigDir, filepath.FromSlash(rel))
		data, readErr := os.ReadFile(full)
		if readErr != nil {
			return "", errs.NewFingerprintError(string(fqn), full, readErr)
		}
		sum := blake3.Sum256(data)
		fileHashes[rel] = fmt.Sprintf("%x", sum)
	}

	payload, err := json.Marshal(canonicalSelf{FileHashes: fileHashes, Run: r.Command})
	if err != nil {
		return "", errs.NewFingerprintError(string(fqn), r.ConfigDir, err)
	}
	sum := blake3.Sum256(payload)
	hash := fmt.Sprintf("%x", sum)

	t.mu.Lock()
	t.self[fqn] = hash
	t.mu.Unlock()
	return hash, nil
}

// CombinedHash computes (and memoizes) the combined hash of the recipe
// named fqn: its self-hash folded with the sorted combined hashes of
// every dependency, recursively.
func (t *Table) CombinedHash(fqn model.FQN) (string, error) {
	t.mu.Lock()
	if h, ok := t.combined[fqn]; ok {
		t.mu.Unlock()
		return h, nil
	}
	t.mu.Unlock()

	r, ok := t.recipes[fqn]
	if !ok {
		return "", fmt.Errorf("fingerprint: unknown recipe %q", fqn)
	}

	self, err := t.SelfHash(fqn)
	if err != nil {
		return "", err
	}

	depHashes := make([]string, 0, len(r.Dependencies))
	for _, dep := range r.Dependencies {
		dh, depErr := t.CombinedHash(dep)
		if depErr != nil {
			return "", depErr
		}
		depHashes = append(depHashes, dh)
	}
	sort.Strings(depHashes)

	var b strings.Builder
	b.WriteString(self)
	for _, dh := range depHashes {
		b.WriteString(dh)
	}
	sum := blake3.Sum256([]byte(b.String()))
	hash := fmt.Sprintf("%x", sum)

	t.mu.Lock()
	t.combined[fqn] = hash
	t.mu.Unlock()
	return hash, nil
}

// ActionKey derives the deterministic action key for fqn from its
// combined hash and its declared, sorted output paths. Two recipes
// with identical command, inputs, and
// dependency combined hashes, and identical declared outputs, always
// produce the same action key.
func (t *Table) ActionKey(fqn model.FQN) (string, error) {
	r, ok := t.recipes[fqn]
	if !ok {
		return "", fmt.Errorf("fingerprint: unknown recipe %q", fqn)
	}
	combined, err := t.CombinedHash(fqn)
	if err != nil {
		return "", err
	}

	outputs := append([]string(nil), r.Outputs...)
	sort.Strings(outputs)

	var b strings.Builder
	b.WriteString(combined)
	for _, o := range outputs {
		b.WriteByte('\n')
		b.WriteString(o)
	}
	sum := blake3.Sum256([]byte(b.String()))
	return fmt.Sprintf("%x", sum), nil
}

// Snapshot returns every combined hash computed so far, keyed by FQN,
// the precomputed fingerprint table the orchestrator takes as input.
func (t *Table) Snapshot() map[model.FQN]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[model.FQN]string, len(t.combined))
	for k, v := range t.combined {
		out[k] = v
	}
	return out
}
