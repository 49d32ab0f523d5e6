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

// Package errs defines bake's error taxonomy. Every kind wraps
// github.com/cockroachdb/errors so callers get stack traces and
// errors.Is/As compatibility for free.
package errs

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
)

// Sentinel markers for errors.Is checks against a whole error class.
var (
	ErrConfig               = errors.New("bake: config error")
	ErrPlan                 = errors.New("bake: plan error")
	ErrFingerprint          = errors.New("bake: fingerprint error")
	ErrCacheBackend         = errors.New("bake: cache backend error")
	ErrIntegrity            = errors.New("bake: integrity error")
	ErrRecipeExec           = errors.New("bake: recipe execution error")
	ErrCancelled            = errors.New("bake: cancelled")
	ErrNotFound             = errors.New("bake: not found")
	ErrBackendUnimplemented = errors.New("bake: backend not implemented")
)

// ConfigError wraps malformed input discovered at a boundary, before any
// work begins.
type ConfigError struct {
	Detail string
	Cause  error
}

func (e *ConfigError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("config error: %s: %v", e.Detail, e.Cause)
	}
	return fmt.Sprintf("config error: %s", e.Detail)
}

func (e *ConfigError) Unwrap() error { return ErrConfig }
func (e *ConfigError) Cause_() error { return e.Cause }

func NewConfigError(detail string, cause error) error {
	return errors.Wrap(&ConfigError{Detail: detail, Cause: cause}, "config")
}

// MissingDependency is one unresolved (recipe, unknown-FQN) pair.
type MissingDependency struct {
	Recipe     string
	UnknownFQN string
}

// MissingDependencyError aggregates every unresolved dependency found in a
// single validation pass.
type MissingDependencyError struct {
	Problems []MissingDependency
}

func (e *MissingDependencyError) Error() string {
	parts := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		parts = append(parts, fmt.Sprintf("%s -> %s", p.Recipe, p.UnknownFQN))
	}
	return fmt.Sprintf("plan error: %d missing dependencies: %s", len(e.Problems), strings.Join(parts, "; "))
}

func (e *MissingDependencyError) Unwrap() error { return ErrPlan }

// CycleError aggregates every non-trivial strongly connected component
// and every self-loop found in the recipe graph.
type CycleError struct {
	Cycles [][]string
}

func (e *CycleError) Error() string {
	parts := make([]string, 0, len(e.Cycles))
	for _, c := range e.Cycles {
		parts = append(parts, "["+strings.Join(c, " -> ")+"]")
	}
	return fmt.Sprintf("plan error: %d cycles detected: %s", len(e.Cycles), strings.Join(parts, ", "))
}

func (e *CycleError) Unwrap() error { return ErrPlan }

// PlanCycleError is reported by plan() when the induced subgraph over a
// target set fails to fully topologically sort (residual non-zero
// in-degree nodes remain after Kahn's algorithm terminates).
type PlanCycleError struct {
	Residual []string
}

func (e *PlanCycleError) Error() string {
	sorted := append([]string(nil), e.Residual...)
	sort.Strings(sorted)
	return fmt.Sprintf("plan error: cycle within requested targets, residual: %s", strings.Join(sorted, ", "))
}

func (e *PlanCycleError) Unwrap() error { return ErrPlan }

// UnknownTargetError reports target FQNs that do not resolve to any
// known recipe.
type UnknownTargetError struct {
	Targets []string
}

func (e *UnknownTargetError) Error() string {
	return fmt.Sprintf("plan error: unknown targets: %s", strings.Join(e.Targets, ", "))
}

func (e *UnknownTargetError) Unwrap() error { return ErrPlan }

// FingerprintError reports a declared input file that could not be read
// while computing a recipe's self-hash.
type FingerprintError struct {
	Recipe string
	Path   string
	Cause  error
}

func (e *FingerprintError) Error() string {
	return fmt.Sprintf("fingerprint error: recipe %s: reading %s: %v", e.Recipe, e.Path, e.Cause)
}

func (e *FingerprintError) Unwrap() error { return ErrFingerprint }

func NewFingerprintError(recipe, path string, cause error) error {
	return errors.Wrap(&FingerprintError{Recipe: recipe, Path: path, Cause: cause}, "fingerprint")
}

// CacheBackendError wraps a transient blob or action-cache backend
// failure. Never fatal to the run: reads fall through to a miss, writes
// surface as a non-fatal warning.
type CacheBackendError struct {
	Backend   string
	Operation string
	Cause     error
}

func (e *CacheBackendError) Error() string {
	return fmt.Sprintf("cache backend error: %s.%s: %v", e.Backend, e.Operation, e.Cause)
}

func (e *CacheBackendError) Unwrap() error { return ErrCacheBackend }

func NewCacheBackendError(backend, op string, cause error) error {
	return errors.Wrap(&CacheBackendError{Backend: backend, Operation: op, Cause: cause}, "cache-backend")
}

// IntegrityError reports a manifest signature mismatch or a malformed
// manifest. Treated as a miss and logged prominently.
type IntegrityError struct {
	Key    string
	Detail string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity error: key %s: %s", e.Key, e.Detail)
}

func (e *IntegrityError) Unwrap() error { return ErrIntegrity }

func NewIntegrityError(key, detail string) error {
	return errors.Wrap(&IntegrityError{Key: key, Detail: detail}, "integrity")
}

// RecipeExecError reports a subprocess spawn failure or non-zero exit.
// Fatal to that recipe; transitive dependents become Skipped.
type RecipeExecError struct {
	Recipe   string
	ExitCode int
	Cause    error
}

func (e *RecipeExecError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("recipe execution error: %s: spawn failed: %v", e.Recipe, e.Cause)
	}
	return fmt.Sprintf("recipe execution error: %s: exit code %d", e.Recipe, e.ExitCode)
}

func (e *RecipeExecError) Unwrap() error { return ErrRecipeExec }

func NewRecipeExecError(recipe string, exitCode int, cause error) error {
	return errors.Wrap(&RecipeExecError{Recipe: recipe, ExitCode: exitCode, Cause: cause}, "recipe-exec")
}

// CancelledError is propagated to every in-flight recipe on
// cancellation (Ctrl-C or the first failure under fail-fast).
type CancelledError struct {
	Recipe string
}

func (e *CancelledError) Error() string {
	if e.Recipe == "" {
		return "cancelled"
	}
	return fmt.Sprintf("cancelled: %s", e.Recipe)
}

func (e *CancelledError) Unwrap() error { return ErrCancelled }

func NewCancelledError(recipe string) error {
	return errors.Wrap(&CancelledError{Recipe: recipe}, "cancelled")
}

// IsNotFound reports whether err represents a cache/blob miss.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
