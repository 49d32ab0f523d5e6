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

// Package actioncache implements bake's key→manifest store and its
// optional HMAC manifest signing.
package actioncache

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"

	"github.com/bake-build/bake/internal/errs"
)

// signingVersion is the version byte recorded alongside every
// signature, reserved for future algorithm changes.
const signingVersion = 1

// Signature is the HMAC-SHA256 signature accompanying a signed manifest.
type Signature struct {
	Signature string `json:"signature"`
	Version   uint8  `json:"version"`
}

// Signer signs and verifies manifest bytes with a shared secret.
type Signer struct {
	secret []byte
}

// NewSigner builds a Signer around secret.
func NewSigner(secret []byte) *Signer {
	return &Signer{secret: secret}
}

// SignerFromEnv builds a Signer from BAKE_CACHE_SECRET. Returns
// (nil, nil) when the variable is unset, disabling signing entirely.
// An empty-but-set value is an error; a value under
// 16 bytes logs a warning but is still accepted.
func SignerFromEnv(logger *slog.Logger) (*Signer, error) {
	secret, ok := os.LookupEnv("BAKE_CACHE_SECRET")
	if !ok {
		return nil, nil
	}
	if secret == "" {
		return nil, errs.NewConfigError("BAKE_CACHE_SECRET is set but empty", nil)
	}
	if len(secret) < 16 {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("BAKE_CACHE_SECRET is short; recommend at least 32 bytes", "component", "actioncache", "length", len(secret))
	}
	return NewSigner([]byte(secret)), nil
}

// Sign computes the HMAC-SHA256 signature of data.
func (s *Signer) Sign(data []byte) Signature {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(data)
	return Signature{
		Signature: hex.EncodeToString(mac.Sum(nil)),
		Version:   signingVersion,
	}
}

// Verify reports whether sig is a valid signature of data, comparing in
// constant time. A version mismatch is always a failure.
func (s *Signer) Verify(data []byte, sig Signature) bool {
	if sig.Version != signingVersion {
		return false
	}
	expected := s.Sign(data)
	return hmac.Equal([]byte(expected.Signature), []byte(sig.Signature))
}

func (s Signature) String() string {
	return fmt.Sprintf("v%d:%s", s.Version, s.Signature)
}
