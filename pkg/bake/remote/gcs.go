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

package remote

import (
	"github.com/bake-build/bake/internal/errs"
	"github.com/bake-build/bake/pkg/bake/cas"
)

// GCSOptions would configure a Google Cloud Storage-backed BlobStore
// as a second remote backend alongside S3Backend. No GCS client
// library appears anywhere in this module's dependency pack, so it is
// left unimplemented rather than grown on a fabricated dependency;
// S3Backend is the supported remote tier.
type GCSOptions struct {
	Bucket string
	Prefix string
}

// NewGCSBackend always returns errs.ErrBackendUnimplemented.
func NewGCSBackend(GCSOptions) (cas.BlobStore, error) {
	return nil, errs.ErrBackendUnimplemented
}
