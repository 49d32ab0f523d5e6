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

// Package metrics exposes the Prometheus collectors the orchestrator and
// cache layers update as a run progresses. Callers who don't want metrics
// can ignore the registry; collectors are harmless to update when unread.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder bundles every collector a single bake invocation updates. It
// is safe for concurrent use by multiple workers.
type Recorder struct {
	Registry *prometheus.Registry

	RecipeDuration *prometheus.HistogramVec
	CacheHits      *prometheus.CounterVec
	CacheMisses    *prometheus.CounterVec
	ActiveWorkers  prometheus.Gauge
	RecipesDone    *prometheus.CounterVec
}

// NewRecorder builds a fresh, independent registry and collector set.
// Each bake run owns its own Recorder rather than sharing a package-level
// global, so concurrent test runs or embedded uses never collide.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()

	r := &Recorder{
		Registry: reg,
		RecipeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bake",
			Subsystem: "orchestrator",
			Name:      "recipe_duration_seconds",
			Help:      "Wall-clock duration of recipe execution, by outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bake",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Action cache hits, by tier.",
		}, []string{"tier"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bake",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Action cache misses, by tier.",
		}, []string{"tier"}),
		ActiveWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bake",
			Subsystem: "orchestrator",
			Name:      "active_workers",
			Help:      "Number of workers currently executing a recipe subprocess.",
		}),
		RecipesDone: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bake",
			Subsystem: "orchestrator",
			Name:      "recipes_total",
			Help:      "Recipes that reached a terminal status, by status.",
		}, []string{"status"}),
	}

	reg.MustRegister(r.RecipeDuration, r.CacheHits, r.CacheMisses, r.ActiveWorkers, r.RecipesDone)
	return r
}

// ObserveRecipeDuration records how long a recipe's hot-loop iteration
// took, tagged by its terminal outcome ("hit", "built", "error", "skipped").
func (r *Recorder) ObserveRecipeDuration(outcome string, seconds float64) {
	if r == nil {
		return
	}
	r.RecipeDuration.WithLabelValues(outcome).Observe(seconds)
}

// RecordCacheResult increments the hit or miss counter for tier.
func (r *Recorder) RecordCacheResult(tier string, hit bool) {
	if r == nil {
		return
	}
	if hit {
		r.CacheHits.WithLabelValues(tier).Inc()
	} else {
		r.CacheMisses.WithLabelValues(tier).Inc()
	}
}

// WorkerStarted/WorkerFinished track the active-worker gauge around a
// recipe subprocess's lifetime.
func (r *Recorder) WorkerStarted() {
	if r == nil {
		return
	}
	r.ActiveWorkers.Inc()
}

func (r *Recorder) WorkerFinished() {
	if r == nil {
		return
	}
	r.ActiveWorkers.Dec()
}

// RecordStatus increments the terminal-status counter for a recipe.
func (r *Recorder) RecordStatus(status string) {
	if r == nil {
		return
	}
	r.RecipesDone.WithLabelValues(status).Inc()
}
