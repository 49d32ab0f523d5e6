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

package model

import "encoding/json"

// NodeKind distinguishes regular files from the other output shapes a
// recipe may declare.
type NodeKind string

const (
	NodeRegular   NodeKind = ""
	NodeSymlink   NodeKind = "symlink"
	NodeDirectory NodeKind = "directory"
	NodeSpecial   NodeKind = "special"
)

// NodeProperties carries the extra fields needed for non-regular output
// nodes. A nil pointer means NodeRegular.
type NodeProperties struct {
	Type        NodeKind `json:"type"`
	Target      string   `json:"target,omitempty"`      // symlink
	Description string   `json:"description,omitempty"` // special
}

// OutputFile is one entry in a recipe's recorded output set.
type OutputFile struct {
	Path           string          `json:"path"`
	Digest         Digest          `json:"digest"`
	Size           uint64          `json:"size"`
	IsExecutable   bool            `json:"is_executable"`
	NodeProperties *NodeProperties `json:"node_properties,omitempty"`
}

// Digest is the JSON-visible form of a Hash: {"algorithm": ...,
// "hash": ...}.
type Digest struct {
	Algorithm Algorithm `json:"algorithm"`
	Hash      string    `json:"hash"`
}

// ToHash converts the wire form back to a Hash.
func (d Digest) ToHash() (Hash, error) {
	if d.Algorithm == "" && d.Hash == "" {
		return Hash{}, nil
	}
	return ParseHash(string(d.Algorithm) + ":" + d.Hash)
}

// DigestOf converts a Hash to its wire form.
func DigestOf(h Hash) Digest {
	if h.IsZero() {
		return Digest{}
	}
	return Digest{Algorithm: h.Algorithm, Hash: h.Hex()}
}

// ExecutionMetadata records when and where a recipe ran.
type ExecutionMetadata struct {
	StartedAt   int64           `json:"started_at"`
	CompletedAt int64           `json:"completed_at"`
	Hostname    string          `json:"hostname"`
	BakeVersion string          `json:"bake_version"`
	Extra       json.RawMessage `json:"extra,omitempty"`
}

// ActionResult is the manifest recorded for one recipe execution.
type ActionResult struct {
	Recipe            FQN               `json:"recipe"`
	ExitCode          int               `json:"exit_code"`
	Outputs           []OutputFile      `json:"outputs"`
	StdoutDigest      Digest            `json:"stdout_digest"`
	StderrDigest      Digest            `json:"stderr_digest"`
	ExecutionMetadata ExecutionMetadata `json:"execution_metadata"`
}

// MarshalJSON produces the stable schema form, with field order fixed by
// the struct. The output is compact; actioncache.Store.Put indents it.
func (a ActionResult) MarshalJSON() ([]byte, error) {
	type alias ActionResult
	return json.Marshal(alias(a))
}
