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

package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/bake-build/bake/internal/errs"
	"github.com/bake-build/bake/internal/util"
	"github.com/bake-build/bake/pkg/bake/model"
)

// stdoutTailLimit bounds how much of a failed recipe's output is kept in
// its Event.
const stdoutTailLimit = 4096

// execute runs the six-step hot loop for fqn: look up
// the action cache, restore outputs on a hit (honoring the quick-verify
// fast path), or run the recipe's command and publish its outputs on a
// miss.
func (o *Orchestrator) execute(ctx context.Context, fqn model.FQN) Event {
	start := time.Now()
	o.metrics.WorkerStarted()
	defer o.metrics.WorkerFinished()

	recipe := o.recipes[fqn]
	key := o.actionKeys[fqn]

	if ctx.Err() != nil {
		return Event{Recipe: fqn, Status: Skipped}
	}

	result, hit, err := o.actionCache.Get(key)
	if err != nil {
		o.logger.Warn("action cache lookup failed, treating as miss", "operation", "cache-lookup", "recipe", string(fqn), "error", err)
		if errors.Is(err, errs.ErrIntegrity) {
			errs.Report(err, "integrity")
		}
		hit = false
	}
	o.metrics.RecordCacheResult("action", hit)

	if hit {
		if restoreErr := o.restoreOutputs(ctx, recipe, result); restoreErr != nil {
			o.logger.Warn("cache hit restore failed, rebuilding", "operation", "restore", "recipe", string(fqn), "error", restoreErr)
		} else {
			o.logger.Info("cache hit", "operation", "restore", "recipe", string(fqn), "outputs", len(result.Outputs))
			o.metrics.ObserveRecipeDuration("hit", time.Since(start).Seconds())
			return Event{Recipe: fqn, Status: Done, CacheHit: true, ExitCode: result.ExitCode}
		}
	}

	ev := o.runRecipe(ctx, recipe, key)
	outcome := "built"
	switch ev.Status {
	case Skipped:
		outcome = "skipped"
	case Error:
		outcome = "error"
	}
	o.metrics.ObserveRecipeDuration(outcome, time.Since(start).Seconds())
	return ev
}

// restoreOutputs materializes every output file recorded in result into
// the working tree. When o.cfg.QuickVerify is
// set, a file already present on disk at the expected size is left
// untouched instead of re-fetched.
func (o *Orchestrator) restoreOutputs(ctx context.Context, recipe model.Recipe, result model.ActionResult) error {
	for _, out := range result.Outputs {
		dst := filepath.Join(o.cfg.ProjectRoot, out.Path)

		if o.cfg.QuickVerify {
			if info, statErr := os.Stat(dst); statErr == nil && uint64(info.Size()) == out.Size {
				continue
			}
		}

		h, err := out.Digest.ToHash()
		if err != nil {
			return fmt.Errorf("orchestrator: output %s: %w", out.Path, err)
		}

		data, err := o.store.Get(ctx, h)
		if err != nil {
			return fmt.Errorf("orchestrator: fetching output %s: %w", out.Path, err)
		}
		perm := os.FileMode(0o644)
		if out.IsExecutable {
			perm = 0o755
		}
		if err := util.AtomicWriteFile(dst, data, perm); err != nil {
			return fmt.Errorf("orchestrator: writing output %s: %w", out.Path, err)
		}
	}
	return nil
}

// runRecipe spawns recipe's command, streams its output to a log file,
// and on success publishes the declared outputs to the blob store and
// the manifest to the action cache.
func (o *Orchestrator) runRecipe(ctx context.Context, recipe model.Recipe, key string) Event {
	o.logger.Info("running recipe", "operation", "exec", "recipe", string(recipe.FQN))

	logPath := o.logPathFor(recipe.FQN)
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		o.logger.Warn("could not create log directory", "operation", "exec", "recipe", string(recipe.FQN), "error", err)
	}
	logFile, logErr := os.Create(logPath)
	if logErr != nil {
		o.logger.Warn("could not open log file", "operation", "exec", "recipe", string(recipe.FQN), "error", logErr)
	} else {
		defer logFile.Close()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", recipe.Command)
	cmd.Dir = recipe.ConfigDir
	cmd.Env = forwardedEnv(recipe.ForwardEnv)

	outWriters := []io.Writer{&stdout}
	errWriters := []io.Writer{&stderr}
	if logFile != nil {
		outWriters = append(outWriters, logFile)
		errWriters = append(errWriters, logFile)
	}
	cmd.Stdout = io.MultiWriter(outWriters...)
	cmd.Stderr = io.MultiWriter(errWriters...)

	startedAt := time.Now()
	runErr := cmd.Run()
	completedAt := time.Now()

	exitCode := 0
	if runErr != nil {
		if ctx.Err() != nil {
			return Event{Recipe: recipe.FQN, Status: Skipped}
		}
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	ev := Event{
		Recipe:   recipe.FQN,
		ExitCode: exitCode,
		Stdout:   tail(stdout.Bytes(), stdoutTailLimit),
		Stderr:   tail(stderr.Bytes(), stdoutTailLimit),
		LogPath:  logPath,
	}

	if exitCode != 0 {
		execErr := errs.NewRecipeExecError(string(recipe.FQN), exitCode, nil)
		errs.Report(execErr, "recipe_exec")
		ev.Status = Error
		ev.Err = execErr
		return ev
	}

	result, publishErr := o.publishOutputs(ctx, recipe, exitCode, stdout.Bytes(), stderr.Bytes(), startedAt, completedAt)
	if publishErr != nil {
		o.logger.Error("publishing outputs failed", "operation", "publish", "recipe", string(recipe.FQN), "error", publishErr)
		ev.Status = Error
		ev.Err = publishErr
		return ev
	}

	if err := o.actionCache.Put(key, result); err != nil {
		o.logger.Warn("writing action cache manifest failed", "operation", "publish", "recipe", string(recipe.FQN), "error", err)
	}

	ev.Status = Done
	return ev
}

// publishOutputs hashes and uploads every declared output of recipe and
// assembles the resulting manifest.
func (o *Orchestrator) publishOutputs(ctx context.Context, recipe model.Recipe, exitCode int, stdout, stderr []byte, startedAt, completedAt time.Time) (model.ActionResult, error) {
	var outputs []model.OutputFile

	for _, declared := range recipe.Outputs {
		abs := filepath.Join(o.cfg.ProjectRoot, declared)
		info, statErr := os.Stat(abs)
		if statErr != nil {
			if os.IsNotExist(statErr) {
				continue
			}
			return model.ActionResult{}, fmt.Errorf("orchestrator: stat declared output %s: %w", declared, statErr)
		}

		if info.IsDir() {
			files, walkErr := util.WalkFiles(abs)
			if walkErr != nil {
				return model.ActionResult{}, fmt.Errorf("orchestrator: walking %s: %w", declared, walkErr)
			}
			for _, rel := range files {
				out, err := o.publishOne(ctx, filepath.Join(declared, rel), filepath.Join(abs, rel))
				if err != nil {
					return model.ActionResult{}, err
				}
				outputs = append(outputs, out)
			}
			continue
		}

		out, err := o.publishOne(ctx, declared, abs)
		if err != nil {
			return model.ActionResult{}, err
		}
		outputs = append(outputs, out)
	}

	stdoutHash, err := o.store.Put(ctx, stdout)
	if err != nil {
		return model.ActionResult{}, fmt.Errorf("orchestrator: storing stdout: %w", err)
	}
	stderrHash, err := o.store.Put(ctx, stderr)
	if err != nil {
		return model.ActionResult{}, fmt.Errorf("orchestrator: storing stderr: %w", err)
	}

	hostname, _ := os.Hostname()
	return model.ActionResult{
		Recipe:       recipe.FQN,
		ExitCode:     exitCode,
		Outputs:      outputs,
		StdoutDigest: model.DigestOf(stdoutHash),
		StderrDigest: model.DigestOf(stderrHash),
		ExecutionMetadata: model.ExecutionMetadata{
			StartedAt:   startedAt.Unix(),
			CompletedAt: completedAt.Unix(),
			Hostname:    hostname,
			BakeVersion: Version,
		},
	}, nil
}

func (o *Orchestrator) publishOne(ctx context.Context, relPath, absPath string) (model.OutputFile, error) {
	data, err := os.ReadFile(absPath)
	if err != nil {
		return model.OutputFile{}, fmt.Errorf("orchestrator: reading output %s: %w", relPath, err)
	}
	h, err := o.store.Put(ctx, data)
	if err != nil {
		return model.OutputFile{}, fmt.Errorf("orchestrator: storing output %s: %w", relPath, err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return model.OutputFile{}, fmt.Errorf("orchestrator: stat output %s: %w", relPath, err)
	}
	return model.OutputFile{
		Path:         filepath.ToSlash(relPath),
		Digest:       model.DigestOf(h),
		Size:         uint64(info.Size()),
		IsExecutable: info.Mode()&0o111 != 0,
	}, nil
}

func (o *Orchestrator) logPathFor(fqn model.FQN) string {
	name := strings.ReplaceAll(string(fqn), ":", ".")
	return filepath.Join(o.cfg.BakeDir, "logs", name+".log")
}

func forwardedEnv(names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if v, ok := os.LookupEnv(name); ok {
			out = append(out, name+"="+v)
		}
	}
	return out
}

func tail(b []byte, limit int) string {
	if len(b) <= limit {
		return string(b)
	}
	return string(b[len(b)-limit:])
}

// Version is the bake build identifier recorded in manifests. Overridden
// at link time via -ldflags in production builds.
var Version = "dev"
