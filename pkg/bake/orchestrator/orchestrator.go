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
	"context"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/bake-build/bake/internal/errs"
	"github.com/bake-build/bake/internal/metrics"
	"github.com/bake-build/bake/pkg/bake/actioncache"
	"github.com/bake-build/bake/pkg/bake/cas"
	"github.com/bake-build/bake/pkg/bake/model"
	"github.com/bake-build/bake/pkg/bake/planner"
)

// Config configures one Orchestrator run: the small slice of run
// configuration the core itself owns.
type Config struct {
	// WorkerCount bounds parallel recipe execution; 0 defaults to
	// available cores minus one (minimum 1).
	WorkerCount int

	FailFast bool
	Verbose  bool

	// QuickVerify enables the size-only fast path that skips re-fetching
	// an output already on disk with the recorded size. The zero value
	// leaves it off; cmd/bake turns it on.
	QuickVerify bool

	// ProjectRoot is where recipe output paths are resolved relative to.
	ProjectRoot string

	// BakeDir is the project's persistent-state directory
	// (<project-root>/.bake).
	BakeDir string

	Logger  *slog.Logger
	Metrics *metrics.Recorder
}

func (c Config) workerCount() int {
	if c.WorkerCount > 0 {
		return c.WorkerCount
	}
	n := runtime.NumCPU() - 1
	if n < 1 {
		n = 1
	}
	return n
}

// Orchestrator drives plan through the cache and subprocess pipeline.
// The zero value is not usable; construct with New.
type Orchestrator struct {
	cfg Config

	recipes      map[model.FQN]model.Recipe
	dependents   map[model.FQN][]model.FQN
	fingerprints map[model.FQN]string // precomputed combined hash per recipe
	actionKeys   map[model.FQN]string

	store       cas.BlobStore
	actionCache *actioncache.Store

	logger  *slog.Logger
	metrics *metrics.Recorder
	runID   string

	mu        sync.Mutex
	status    map[model.FQN]Status
	inDegree  map[model.FQN]int
	doneCount int
	events    []Event
	cancelled atomic.Bool
	closed    bool

	ready chan model.FQN
}

// New constructs an Orchestrator for plan, using fingerprints (FQN →
// precomputed combined hash) and actionKeys (FQN →
// precomputed action key).
func New(cfg Config, recipes map[model.FQN]model.Recipe, plan planner.Plan, fingerprints, actionKeys map[model.FQN]string, store cas.BlobStore, actionCache *actioncache.Store) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	scheduled := make(map[model.FQN]bool)
	for _, wave := range plan {
		for _, fqn := range wave {
			scheduled[fqn] = true
		}
	}

	dependents := make(map[model.FQN][]model.FQN)
	inDegree := make(map[model.FQN]int, len(scheduled))
	for fqn := range scheduled {
		inDegree[fqn] = 0
	}
	for fqn := range scheduled {
		r := recipes[fqn]
		for _, dep := range r.Dependencies {
			if scheduled[dep] {
				dependents[dep] = append(dependents[dep], fqn)
				inDegree[fqn]++
			}
		}
	}

	o := &Orchestrator{
		cfg:          cfg,
		recipes:      recipes,
		dependents:   dependents,
		fingerprints: fingerprints,
		actionKeys:   actionKeys,
		store:        store,
		actionCache:  actionCache,
		logger:       logger.With("component", "orchestrator"),
		metrics:      cfg.Metrics,
		runID:        uuid.NewString(),
		status:       make(map[model.FQN]Status, len(scheduled)),
		inDegree:     inDegree,
	}
	for fqn := range scheduled {
		o.status[fqn] = Pending
	}
	return o
}

// Run drives every scheduled recipe to a terminal status, respecting
// dependency order and the configured worker bound. It returns once
// every recipe is terminal or the
// context is cancelled.
func (o *Orchestrator) Run(ctx context.Context) Result {
	total := len(o.status)
	if total == 0 {
		return Result{Statuses: map[model.FQN]Status{}}
	}

	o.ready = make(chan model.FQN, total)

	o.mu.Lock()
	for fqn, deg := range o.inDegree {
		if deg == 0 {
			o.ready <- fqn
		}
	}
	o.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	workers := o.cfg.workerCount()
	o.logger.Info("starting run", "operation", "run", "run_id", o.runID, "workers", workers, "recipes", total)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for fqn := range o.ready {
				o.runOne(ctx, fqn, cancel)
			}
		}()
	}

	wg.Wait()

	o.mu.Lock()
	defer o.mu.Unlock()
	statuses := make(map[model.FQN]Status, len(o.status))
	for k, v := range o.status {
		statuses[k] = v
	}
	return Result{Events: o.events, Statuses: statuses}
}

// runOne executes the hot loop for fqn then hands its terminal status to
// finish, which propagates it to dependents and closes the ready channel
// once every scheduled recipe has gone terminal.
func (o *Orchestrator) runOne(ctx context.Context, fqn model.FQN, cancel context.CancelFunc) {
	if o.cancelled.Load() {
		o.finish(fqn, Skipped, Event{Recipe: fqn, Status: Skipped})
		return
	}

	o.setStatus(fqn, Running)
	ev := o.execute(ctx, fqn)

	if ev.Status == Error && o.cfg.FailFast {
		o.cancelled.Store(true)
		cancel()
	}
	o.finish(fqn, ev.Status, ev)
}

func (o *Orchestrator) setStatus(fqn model.FQN, s Status) {
	o.mu.Lock()
	o.status[fqn] = s
	o.mu.Unlock()
	o.logger.Info("recipe transition", "operation", "schedule", "recipe", string(fqn), "status", string(s))
}

// finish records fqn's terminal status, appends its event, and pushes
// any dependents that became ready — or, if fqn did not complete
// successfully, marks its whole downstream subtree Skipped. Once every
// recipe has gone terminal it closes the ready channel, which is what
// lets the worker pool in Run drain and exit.
func (o *Orchestrator) finish(fqn model.FQN, status Status, ev Event) {
	o.mu.Lock()
	o.status[fqn] = status
	o.events = append(o.events, ev)
	o.doneCount++

	var toSkip []model.FQN
	var toRun []model.FQN

	if status == Done {
		for _, dependent := range o.dependents[fqn] {
			o.inDegree[dependent]--
			if o.inDegree[dependent] == 0 {
				toRun = append(toRun, dependent)
			}
		}
	} else {
		toSkip = append(toSkip, o.dependents[fqn]...)
	}
	o.mu.Unlock()

	o.logger.Info("recipe transition", "operation", "schedule", "recipe", string(fqn), "status", string(status))
	o.metrics.RecordStatus(string(status))

	for _, dependent := range toSkip {
		o.skipSubtree(dependent)
	}

	if o.closeIfDrained() {
		return
	}
	for _, r := range toRun {
		o.ready <- r
	}
}

// skipSubtree marks fqn and every transitive dependent Skipped, without
// executing any of them.
func (o *Orchestrator) skipSubtree(fqn model.FQN) {
	o.mu.Lock()
	if o.status[fqn] != Pending {
		o.mu.Unlock()
		return
	}
	o.status[fqn] = Skipped
	o.doneCount++
	dependents := append([]model.FQN(nil), o.dependents[fqn]...)
	o.events = append(o.events, Event{Recipe: fqn, Status: Skipped})
	o.mu.Unlock()

	o.logger.Info("recipe transition", "operation", "schedule", "recipe", string(fqn), "status", "skipped")
	if o.metrics != nil {
		o.metrics.RecordStatus("skipped")
	}

	for _, dependent := range dependents {
		o.skipSubtree(dependent)
	}

	o.closeIfDrained()
}

// closeIfDrained closes the ready channel once every scheduled recipe
// has reached a terminal status, reporting whether it did so.
func (o *Orchestrator) closeIfDrained() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.doneCount < len(o.status) {
		return false
	}
	if !o.closed {
		close(o.ready)
		o.closed = true
	}
	return true
}

// ErrCancelled re-exports errs.ErrCancelled. execute does not return it:
// a recipe reached after cancellation is reported as a Skipped Event
// with no Err set.
var ErrCancelled = errs.ErrCancelled
