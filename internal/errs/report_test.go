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

package errs_test

import (
	"os"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"

	"github.com/bake-build/bake/internal/errs"
)

func TestReport_NoDSNIsANoOp(t *testing.T) {
	os.Unsetenv("SENTRY_DSN")
	assert.NotPanics(t, func() {
		errs.Report(errors.New("boom"), "recipe_exec")
	})
}

func TestReport_NilErrorIsANoOp(t *testing.T) {
	assert.NotPanics(t, func() {
		errs.Report(nil, "recipe_exec")
	})
}
