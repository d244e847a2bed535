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

// Package reconcile rewrites coverage stores recorded under container
// filesystem paths so their file keys resolve on the local filesystem.
// Mapping detection is structural: an unresolved container path is matched
// against the local source tree by the longest contiguous path-segment suffix
// ending at the filename.
package reconcile

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/konflux-ci/pycov-bridge/covdata"
)

const (
	// sourceExtension restricts the local tree walk to Python sources.
	sourceExtension = ".py"

	// wrapperModule identifies the sidecar's own control-endpoint module,
	// which must never appear in reports.
	wrapperModule = "coverage_server.py"

	// thirdPartySegment marks installed-package directories, which likewise
	// never appear in reports.
	thirdPartySegment = "/site-packages/"
)

// PathMapping is one container-to-local path prefix substitution. Both roots
// are absolute directory prefixes terminated with a path separator.
type PathMapping struct {
	ContainerRoot string
	LocalRoot     string
}

// PathMappings is an ordered mapping set. Detection currently emits at most
// one entry; application tries entries in order and stops at the first
// matching prefix.
type PathMappings []PathMapping

// localFile is one enumerated source file under the local root. Candidates
// keep their enumeration position so equal-score ties resolve to the
// first-seen file on every run.
type localFile struct {
	path     string
	segments []string
}

// DetectMappings inspects the measured files of a store and derives the
// prefix substitution that turns container-side paths into locally
// resolvable ones. It returns an empty set when every measured file already
// resolves locally.
func DetectMappings(store *covdata.Store, sourceDir string) (PathMappings, error) {
	unresolved := []string{}
	for _, path := range store.MeasuredFiles() {
		if !fileExists(path) {
			unresolved = append(unresolved, path)
		}
	}
	if len(unresolved) == 0 {
		return nil, nil
	}

	localFiles, err := enumerateSourceFiles(sourceDir)
	if err != nil {
		return nil, err
	}

	// Bucket matched pairs by candidate container root. bucketOrder keeps
	// insertion order purely for reproducible diagnostics; selection sorts.
	buckets := map[string][]matchedPair{}
	bucketOrder := []string{}

	for _, containerPath := range unresolved {
		containerSegments := splitSegments(containerPath)
		if len(containerSegments) == 0 {
			continue
		}
		filename := containerSegments[len(containerSegments)-1]

		best, bestScore := findBestMatch(containerSegments, filename, localFiles)
		if bestScore == 0 {
			continue
		}

		// Removing the matched suffix must leave at least one segment on
		// both sides, otherwise this file contributes no candidate root.
		if len(containerSegments) <= bestScore || len(best.segments) <= bestScore {
			continue
		}

		containerRoot := joinRoot(containerSegments[:len(containerSegments)-bestScore])
		if _, found := buckets[containerRoot]; !found {
			bucketOrder = append(bucketOrder, containerRoot)
		}
		buckets[containerRoot] = append(buckets[containerRoot], matchedPair{
			containerPath: containerPath,
			localPath:     best.path,
		})
	}

	if len(buckets) == 0 {
		return nil, nil
	}

	// Most pairs wins; ties break to the lexicographically smallest root.
	sort.Slice(bucketOrder, func(i, j int) bool {
		if len(buckets[bucketOrder[i]]) != len(buckets[bucketOrder[j]]) {
			return len(buckets[bucketOrder[i]]) > len(buckets[bucketOrder[j]])
		}
		return bucketOrder[i] < bucketOrder[j]
	})

	winner := bucketOrder[0]
	localRoot, found := deriveLocalRoot(buckets[winner][0])
	if !found {
		return nil, nil
	}

	return PathMappings{{ContainerRoot: winner, LocalRoot: localRoot}}, nil
}

// Rebuild produces a new store whose file keys have the mapping set applied
// and which contains only files that resolve on the local filesystem.
// Instrumentation-internal files are always excluded. The pass is a pure
// function of the store, the mappings, and local filesystem state.
func Rebuild(store *covdata.Store, mappings PathMappings) *covdata.Store {
	rebuilt := covdata.NewStore()

	for _, oldPath := range store.MeasuredFiles() {
		if strings.Contains(oldPath, wrapperModule) || strings.Contains(oldPath, thirdPartySegment) {
			continue
		}

		newPath := oldPath
		for _, mapping := range mappings {
			if strings.HasPrefix(oldPath, mapping.ContainerRoot) {
				newPath = mapping.LocalRoot + strings.TrimPrefix(oldPath, mapping.ContainerRoot)
				break
			}
		}

		if !fileExists(newPath) {
			continue
		}

		if lines := store.Lines(oldPath); len(lines) > 0 {
			rebuilt.AddLines(newPath, lines)
		}
		if arcs := store.Arcs(oldPath); len(arcs) > 0 {
			rebuilt.AddArcs(newPath, arcs)
		}
	}

	return rebuilt
}

type matchedPair struct {
	containerPath string
	localPath     string
}

// enumerateSourceFiles walks the local root and returns every source file in
// lexicographic walk order, each decomposed into its absolute path segments.
func enumerateSourceFiles(sourceDir string) ([]localFile, error) {
	root, err := filepath.Abs(sourceDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve source directory %s: %w", sourceDir, err)
	}

	files := []localFile{}
	err = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || filepath.Ext(path) != sourceExtension {
			return nil
		}
		files = append(files, localFile{path: path, segments: splitSegments(path)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk source directory %s: %w", root, err)
	}

	return files, nil
}

// findBestMatch scores every local candidate sharing the unresolved file's
// filename by the length of the contiguous segment suffix common to both
// paths, scanning backward from the filename and stopping at the first
// mismatch. The strictly highest score wins; on ties the earlier candidate
// in enumeration order is kept.
func findBestMatch(containerSegments []string, filename string, candidates []localFile) (localFile, int) {
	var best localFile
	bestScore := 0

	for _, candidate := range candidates {
		if candidate.segments[len(candidate.segments)-1] != filename {
			continue
		}

		score := suffixMatchLength(containerSegments, candidate.segments)
		if score > bestScore {
			bestScore = score
			best = candidate
		}
	}

	return best, bestScore
}

// suffixMatchLength counts trailing segments common to both paths, stopping
// at the first mismatch.
func suffixMatchLength(a, b []string) int {
	limit := len(a)
	if len(b) < limit {
		limit = len(b)
	}

	length := 0
	for i := 1; i <= limit; i++ {
		if a[len(a)-i] != b[len(b)-i] {
			break
		}
		length = i
	}

	return length
}

// deriveLocalRoot recomputes the suffix match for a bucket's first pair and
// removes the matched suffix from the local path.
func deriveLocalRoot(pair matchedPair) (string, bool) {
	containerSegments := splitSegments(pair.containerPath)
	localSegments := splitSegments(pair.localPath)

	matchLength := suffixMatchLength(containerSegments, localSegments)
	if matchLength == 0 || len(localSegments) <= matchLength {
		return "", false
	}

	return joinRoot(localSegments[:len(localSegments)-matchLength]), true
}

// splitSegments decomposes an absolute path into its ordered segments,
// filename last.
func splitSegments(path string) []string {
	cleaned := filepath.ToSlash(filepath.Clean(path))
	segments := []string{}
	for _, segment := range strings.Split(cleaned, "/") {
		if segment != "" {
			segments = append(segments, segment)
		}
	}

	return segments
}

// joinRoot re-joins segments as an absolute directory prefix with a trailing
// separator.
func joinRoot(segments []string) string {
	return "/" + strings.Join(segments, "/") + "/"
}

func fileExists(path string) bool {
	_, err := os.Stat(path)

	return err == nil
}
