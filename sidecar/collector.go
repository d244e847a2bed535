/*
Copyright 2022.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package sidecar

import (
	"sync"

	"github.com/konflux-ci/pycov-bridge/covdata"
)

// Collector is the live coverage-collection handle the control endpoint
// operates on. The endpoint owns the handle it is constructed with and
// serializes every operation against it; implementations only need to be
// internally consistent between a Pause and the following Resume.
type Collector interface {
	// Pause suspends collection so a snapshot observes a stable state.
	Pause()

	// Resume restarts collection after a pause.
	Resume()

	// Snapshot returns a copy of the accumulated coverage data.
	Snapshot() (*covdata.Store, error)

	// Erase discards all accumulated coverage data.
	Erase()
}

// TracingCollector is a store-backed Collector an instrumented process feeds
// while it executes. Recording calls made while paused are dropped.
type TracingCollector struct {
	mu     sync.Mutex
	store  *covdata.Store
	paused bool
}

// NewTracingCollector returns an empty, actively collecting collector.
func NewTracingCollector() *TracingCollector {
	return &TracingCollector{store: covdata.NewStore()}
}

// RecordLines registers executed lines for a source file.
func (c *TracingCollector) RecordLines(path string, lines ...int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.paused {
		return
	}
	c.store.AddLines(path, lines)
}

// RecordArcs registers executed branch transitions for a source file.
func (c *TracingCollector) RecordArcs(path string, arcs ...covdata.Arc) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.paused {
		return
	}
	c.store.AddArcs(path, arcs)
}

// Seed unions an existing store into the collector's live data.
func (c *TracingCollector) Seed(store *covdata.Store) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.store.Update(store)
}

// Pause suspends recording.
func (c *TracingCollector) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.paused = true
}

// Resume restarts recording.
func (c *TracingCollector) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.paused = false
}

// Snapshot returns a deep copy of the accumulated store.
func (c *TracingCollector) Snapshot() (*covdata.Store, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.store.Clone(), nil
}

// Erase discards accumulated data while keeping the collector alive.
func (c *TracingCollector) Erase() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.store.Erase()
}
