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

// SPDX-License-Identifier: Apache-2.0

// Package model holds the plain data types shared by every layer of bake's
// core: the recipe graph, the fingerprinter, and the cache.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"lukechampine.com/blake3"
)

// Algorithm names the hash function used to address a blob.
type Algorithm string

const (
	// Blake3 is the default algorithm for content addressing.
	Blake3 Algorithm = "blake3"
	// SHA256 is accepted for interoperability with other systems.
	SHA256 Algorithm = "sha256"
)

// DigestSize is the fixed digest length for both supported algorithms.
const DigestSize = 32

// Hash is a tagged, fixed-size content digest.
type Hash struct {
	Algorithm Algorithm
	Digest    [DigestSize]byte
}

// HashBytes computes the content hash of data using algo.
func HashBytes(data []byte, algo Algorithm) (Hash, error) {
	switch algo {
	case Blake3, "":
		sum := blake3.Sum256(data)
		return Hash{Algorithm: Blake3, Digest: sum}, nil
	case SHA256:
		sum := sha256.Sum256(data)
		return Hash{Algorithm: SHA256, Digest: sum}, nil
	default:
		return Hash{}, fmt.Errorf("model: unsupported hash algorithm %q", algo)
	}
}

// String renders the hash as "<algo>:<64-hex>", the canonical wire form.
func (h Hash) String() string {
	return fmt.Sprintf("%s:%s", h.Algorithm, hex.EncodeToString(h.Digest[:]))
}

// IsZero reports whether h has never been assigned.
func (h Hash) IsZero() bool {
	return h.Algorithm == "" && h.Digest == [DigestSize]byte{}
}

// Equal reports whether h and other address the same content.
func (h Hash) Equal(other Hash) bool {
	return h.Algorithm == other.Algorithm && h.Digest == other.Digest
}

// ShardPrefix returns the two lowercase hex characters used for filesystem
// and object-store fan-out.
func (h Hash) ShardPrefix() string {
	return hex.EncodeToString(h.Digest[0:1])
}

// Hex returns the raw 64-character hex digest, without the algorithm tag.
func (h Hash) Hex() string {
	return hex.EncodeToString(h.Digest[:])
}

// ParseHash parses the canonical "<algo>:<hex>" string form.
func ParseHash(s string) (Hash, error) {
	algo, hexDigest, ok := strings.Cut(s, ":")
	if !ok {
		return Hash{}, fmt.Errorf("model: malformed hash %q: missing algorithm prefix", s)
	}
	raw, err := hex.DecodeString(hexDigest)
	if err != nil {
		return Hash{}, fmt.Errorf("model: malformed hash %q: %w", s, err)
	}
	if len(raw) != DigestSize {
		return Hash{}, fmt.Errorf("model: malformed hash %q: expected %d bytes, got %d", s, DigestSize, len(raw))
	}
	var h Hash
	switch Algorithm(algo) {
	case Blake3, SHA256:
		h.Algorithm = Algorithm(algo)
	default:
		return Hash{}, fmt.Errorf("model: malformed hash %q: unknown algorithm %q", s, algo)
	}
	copy(h.Digest[:], raw)
	return h, nil
}
