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

// Command bake wires the core packages (graph, planner, fingerprint,
// cas, orchestrator) into a runnable binary. Manifest parsing, variable
// substitution, and full flag wiring are external collaborators and are
// not implemented here; LoadProject is the seam where that collaborator
// plugs in.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/bake-build/bake/internal/metrics"
	"github.com/bake-build/bake/pkg/bake/actioncache"
	"github.com/bake-build/bake/pkg/bake/cas"
	"github.com/bake-build/bake/pkg/bake/fingerprint"
	"github.com/bake-build/bake/pkg/bake/graph"
	"github.com/bake-build/bake/pkg/bake/model"
	"github.com/bake-build/bake/pkg/bake/orchestrator"
	"github.com/bake-build/bake/pkg/bake/planner"
)

var version = "dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("bake", flag.ContinueOnError)
	projectRoot := fs.String("root", ".", "project root directory")
	failFast := fs.Bool("fail-fast", false, "cancel the run on the first error")
	workers := fs.Int("workers", 0, "worker count (0 = cores-1)")
	showVersion := fs.Bool("version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *showVersion {
		fmt.Println(version)
		return 0
	}
	targets := fs.Args()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	project, err := LoadProject(*projectRoot)
	if err != nil {
		logger.Error("loading project", "error", err)
		return 1
	}

	g, err := graph.Build(project.Recipes)
	if err != nil {
		logger.Error("building dependency graph", "error", err)
		return 1
	}

	targetFQNs := make([]model.FQN, 0, len(targets))
	for _, t := range targets {
		targetFQNs = append(targetFQNs, model.FQN(t))
	}
	if len(targetFQNs) == 0 {
		for _, r := range project.Recipes {
			targetFQNs = append(targetFQNs, r.FQN)
		}
	}

	plan, err := planner.Build(g, targetFQNs)
	if err != nil {
		logger.Error("planning execution", "error", err)
		return 1
	}
	fmt.Println(planner.Render(plan))

	recipeMap := make(map[model.FQN]model.Recipe, len(project.Recipes))
	for _, r := range project.Recipes {
		recipeMap[r.FQN] = r
	}

	table := fingerprint.NewTable(recipeMap)
	fingerprints := make(map[model.FQN]string, len(recipeMap))
	actionKeys := make(map[model.FQN]string, len(recipeMap))
	for _, fqn := range plan.Flatten() {
		combined, err := table.CombinedHash(fqn)
		if err != nil {
			logger.Error("fingerprinting", "recipe", string(fqn), "error", err)
			return 1
		}
		fingerprints[fqn] = combined
		key, err := table.ActionKey(fqn)
		if err != nil {
			logger.Error("computing action key", "recipe", string(fqn), "error", err)
			return 1
		}
		actionKeys[fqn] = key
	}

	bakeDir := filepath.Join(*projectRoot, ".bake")
	store, err := cas.NewLocalFsStore(filepath.Join(bakeDir, "cas"), cas.Options{Logger: logger})
	if err != nil {
		logger.Error("opening blob store", "error", err)
		return 1
	}
	defer store.Close()

	signer, err := actioncache.SignerFromEnv(logger)
	if err != nil {
		logger.Error("configuring cache signing", "error", err)
		return 1
	}
	ac, err := actioncache.Open(filepath.Join(bakeDir, "actioncache"), actioncache.Options{Signer: signer, Logger: logger})
	if err != nil {
		logger.Error("opening action cache", "error", err)
		return 1
	}

	cfg := orchestrator.Config{
		WorkerCount: *workers,
		FailFast:    *failFast,
		QuickVerify: true,
		ProjectRoot: *projectRoot,
		BakeDir:     bakeDir,
		Logger:      logger,
		Metrics:     metrics.NewRecorder(),
	}
	o := orchestrator.New(cfg, recipeMap, plan, fingerprints, actionKeys, store, ac)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result := o.Run(ctx)
	for _, ev := range result.Events {
		if ev.Status == orchestrator.Error {
			logger.Error("recipe failed", "recipe", string(ev.Recipe), "exit_code", ev.ExitCode, "log", ev.LogPath)
		}
	}
	if !result.Success() {
		return 1
	}
	return 0
}

// Project is the handful of resolved recipes LoadProject hands to the
// core. Building this from a root manifest plus nested cookbook
// manifests (parsing, variable substitution, environment inheritance
// resolution) is left to an external collaborator.
type Project struct {
	Recipes []model.Recipe
}

// LoadProject is the seam where manifest parsing plugs in. YAML
// parsing and templating live outside the core's scope.
func LoadProject(root string) (Project, error) {
	return Project{}, fmt.Errorf("bake: no manifest loader configured for %s", root)
}
