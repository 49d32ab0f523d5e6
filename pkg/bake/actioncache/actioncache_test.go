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

package actioncache_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bake-build/bake/pkg/bake/actioncache"
	"github.com/bake-build/bake/pkg/bake/model"
)

func TestStore_PutGetRoundTrip(t *testing.T) {
	store, err := actioncache.Open(t.TempDir(), actioncache.Options{})
	require.NoError(t, err)

	want := model.ActionResult{Recipe: "app:build", ExitCode: 0}
	require.NoError(t, store.Put("key1", want))

	got, ok, err := store.Get("key1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want.Recipe, got.Recipe)
}

func TestStore_MissForUnknownKey(t *testing.T) {
	store, err := actioncache.Open(t.TempDir(), actioncache.Options{})
	require.NoError(t, err)

	_, ok, err := store.Get("nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSigner_VerifyRoundTrip(t *testing.T) {
	signer := actioncache.NewSigner([]byte("a reasonably long shared secret"))
	sig := signer.Sign([]byte("payload"))
	assert.True(t, signer.Verify([]byte("payload"), sig))
	assert.False(t, signer.Verify([]byte("tampered"), sig))
}

func TestStore_TamperDetected(t *testing.T) {
	root := t.TempDir()
	signer := actioncache.NewSigner([]byte("a reasonably long shared secret"))
	store, err := actioncache.Open(root, actioncache.Options{Signer: signer})
	require.NoError(t, err)

	require.NoError(t, store.Put("key1", model.ActionResult{Recipe: "app:build"}))

	// Tamper with the stored file directly.
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	path := filepath.Join(root, entries[0].Name())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	tampered := append(data, []byte("x")...)
	require.NoError(t, os.WriteFile(path, tampered, 0o644))

	_, _, err = store.Get("key1")
	assert.Error(t, err)
}

func TestSignerFromEnv_UnsetDisables(t *testing.T) {
	os.Unsetenv("BAKE_CACHE_SECRET")
	signer, err := actioncache.SignerFromEnv(nil)
	require.NoError(t, err)
	assert.Nil(t, signer)
}

func TestSignerFromEnv_EmptyErrors(t *testing.T) {
	t.Setenv("BAKE_CACHE_SECRET", "")
	_, err := actioncache.SignerFromEnv(nil)
	assert.Error(t, err)
}
