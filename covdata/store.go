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

package covdata

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Arc is a single observed branch transition between two line numbers.
type Arc struct {
	Start int
	End   int
}

// record holds the executed lines and arcs measured for one source file.
type record struct {
	lines map[int]struct{}
	arcs  map[Arc]struct{}
}

func newRecord() *record {
	return &record{
		lines: map[int]struct{}{},
		arcs:  map[Arc]struct{}{},
	}
}

// Store is a coverage database keyed by absolute source file path. Each path
// appears at most once; line and arc sets only ever grow except through Erase.
// A Store is not safe for concurrent use; callers owning a live Store must
// serialize access to it.
type Store struct {
	records map[string]*record
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{records: map[string]*record{}}
}

// storeJSON is the canonical byte-serialization form. It is the interchange
// format between the sidecar and the client and also the persistent artifact
// format, so field names must remain stable.
type storeJSON struct {
	Files map[string]recordJSON `json:"files"`
}

type recordJSON struct {
	Lines []int    `json:"lines"`
	Arcs  [][2]int `json:"arcs,omitempty"`
}

// Load deserializes a Store from its canonical byte form.
func Load(data []byte) (*Store, error) {
	var decoded storeJSON
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode coverage data: %w", err)
	}

	store := NewStore()
	for path, rec := range decoded.Files {
		store.AddLines(path, rec.Lines)
		arcs := make([]Arc, 0, len(rec.Arcs))
		for _, pair := range rec.Arcs {
			arcs = append(arcs, Arc{Start: pair[0], End: pair[1]})
		}
		store.AddArcs(path, arcs)
	}

	return store, nil
}

// Dumps serializes the Store into its canonical byte form. Line and arc
// arrays are sorted so the same Store always produces the same bytes.
func (s *Store) Dumps() ([]byte, error) {
	encoded := storeJSON{Files: map[string]recordJSON{}}
	for path, rec := range s.records {
		encoded.Files[path] = recordJSON{
			Lines: sortedLines(rec.lines),
			Arcs:  sortedArcPairs(rec.arcs),
		}
	}

	data, err := json.Marshal(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to encode coverage data: %w", err)
	}

	return data, nil
}

// ReadFile loads a Store from a persisted artifact.
func ReadFile(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read coverage file %s: %w", path, err)
	}

	return Load(data)
}

// WriteFile persists the Store. The on-disk form is exactly the serialized
// byte form.
func (s *Store) WriteFile(path string) error {
	data, err := s.Dumps()
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write coverage file %s: %w", path, err)
	}

	return nil
}

// MeasuredFiles returns the sorted set of file paths with records in the
// Store.
func (s *Store) MeasuredFiles() []string {
	paths := make([]string, 0, len(s.records))
	for path := range s.records {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	return paths
}

// Lines returns the sorted executed lines recorded for the given path, or nil
// when the path has no record.
func (s *Store) Lines(path string) []int {
	rec, found := s.records[path]
	if !found {
		return nil
	}

	return sortedLines(rec.lines)
}

// Arcs returns the sorted executed arcs recorded for the given path, or nil
// when the path has no record or the store is line-only for it.
func (s *Store) Arcs(path string) []Arc {
	rec, found := s.records[path]
	if !found || len(rec.arcs) == 0 {
		return nil
	}

	arcs := make([]Arc, 0, len(rec.arcs))
	for arc := range rec.arcs {
		arcs = append(arcs, arc)
	}
	sort.Slice(arcs, func(i, j int) bool {
		if arcs[i].Start != arcs[j].Start {
			return arcs[i].Start < arcs[j].Start
		}
		return arcs[i].End < arcs[j].End
	})

	return arcs
}

// AddLines unions the given executed lines into the record for path, creating
// the record if needed. An empty set of lines still creates the record.
func (s *Store) AddLines(path string, lines []int) {
	rec := s.ensureRecord(path)
	for _, line := range lines {
		rec.lines[line] = struct{}{}
	}
}

// AddArcs unions the given executed arcs into the record for path, creating
// the record if needed.
func (s *Store) AddArcs(path string, arcs []Arc) {
	rec := s.ensureRecord(path)
	for _, arc := range arcs {
		rec.arcs[arc] = struct{}{}
	}
}

// Update merges another Store into this one. Overlapping paths union their
// line and arc sets, new paths are added. The other Store is not modified.
func (s *Store) Update(other *Store) {
	for path, rec := range other.records {
		target := s.ensureRecord(path)
		for line := range rec.lines {
			target.lines[line] = struct{}{}
		}
		for arc := range rec.arcs {
			target.arcs[arc] = struct{}{}
		}
	}
}

// Clone returns a deep copy of the Store.
func (s *Store) Clone() *Store {
	clone := NewStore()
	clone.Update(s)

	return clone
}

// Erase removes every record from the Store.
func (s *Store) Erase() {
	s.records = map[string]*record{}
}

func (s *Store) ensureRecord(path string) *record {
	rec, found := s.records[path]
	if !found {
		rec = newRecord()
		s.records[path] = rec
	}

	return rec
}

func sortedLines(lines map[int]struct{}) []int {
	sorted := make([]int, 0, len(lines))
	for line := range lines {
		sorted = append(sorted, line)
	}
	sort.Ints(sorted)

	return sorted
}

func sortedArcPairs(arcs map[Arc]struct{}) [][2]int {
	if len(arcs) == 0 {
		return nil
	}

	pairs := make([][2]int, 0, len(arcs))
	for arc := range arcs {
		pairs = append(pairs, [2]int{arc.Start, arc.End})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i][0] != pairs[j][0] {
			return pairs[i][0] < pairs[j][0]
		}
		return pairs[i][1] < pairs[j][1]
	})

	return pairs
}
