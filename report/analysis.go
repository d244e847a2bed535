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

// Package report renders text, Cobertura XML and HTML reports from a
// reconciled coverage store. Every renderer expects store keys to resolve on
// the local filesystem; files that cannot be read are skipped so one bad
// entry never sinks a whole report.
package report

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/konflux-ci/pycov-bridge/covdata"
)

// FileCoverage is the per-file analysis every renderer works from.
type FileCoverage struct {
	// Path is the absolute local path of the source file.
	Path string

	// Name is the path relative to the report's source root when the file
	// lies under it, the absolute path otherwise.
	Name string

	// Statements are the executable line numbers of the file, ascending.
	Statements []int

	// Executed is the set of statement lines observed as executed.
	Executed map[int]bool
}

// Missed returns the statement lines never observed as executed, ascending.
func (f *FileCoverage) Missed() []int {
	missed := []int{}
	for _, line := range f.Statements {
		if !f.Executed[line] {
			missed = append(missed, line)
		}
	}

	return missed
}

// Percent returns the covered-statement percentage, 100 for empty files.
func (f *FileCoverage) Percent() float64 {
	if len(f.Statements) == 0 {
		return 100
	}

	return float64(len(f.Statements)-len(f.Missed())) / float64(len(f.Statements)) * 100
}

// Analyze builds the per-file coverage analysis for every measured file in
// the store. Files that cannot be read are reported in the skipped list
// rather than failing the analysis.
func Analyze(store *covdata.Store, sourceRoot string) (files []*FileCoverage, skipped []string) {
	root, err := filepath.Abs(sourceRoot)
	if err != nil {
		root = sourceRoot
	}

	for _, path := range store.MeasuredFiles() {
		statements, err := executableLines(path)
		if err != nil {
			skipped = append(skipped, path)
			continue
		}

		executed := map[int]bool{}
		for _, line := range store.Lines(path) {
			executed[line] = true
		}

		files = append(files, &FileCoverage{
			Path:       path,
			Name:       relativeName(root, path),
			Statements: statements,
			Executed:   executed,
		})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })

	return files, skipped
}

// executableLines returns the line numbers considered executable statements.
// Blank lines and comment lines are excluded; this is a heuristic, the
// instrumentation side holds the authoritative statement set.
func executableLines(path string) ([]int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open source file %s: %w", path, err)
	}
	defer file.Close()

	lines := []int{}
	scanner := bufio.NewScanner(file)
	number := 0
	for scanner.Scan() {
		number++
		trimmed := strings.TrimSpace(scanner.Text())
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		lines = append(lines, number)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read source file %s: %w", path, err)
	}

	return lines, nil
}

func relativeName(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}

	return rel
}
