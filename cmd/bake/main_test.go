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

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRun_VersionFlagExitsZero(t *testing.T) {
	assert.Equal(t, 0, run([]string{"--version"}))
}

func TestRun_UnknownFlagExitsTwo(t *testing.T) {
	assert.Equal(t, 2, run([]string{"--not-a-real-flag"}))
}

func TestRun_MissingManifestLoaderExitsOne(t *testing.T) {
	assert.Equal(t, 1, run([]string{"--root", t.TempDir()}))
}

func TestLoadProject_ReturnsSentinelError(t *testing.T) {
	_, err := LoadProject("/some/root")
	assert.ErrorContains(t, err, "no manifest loader configured")
}
