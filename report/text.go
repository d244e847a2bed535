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

package report

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/go-logr/logr"

	"github.com/konflux-ci/pycov-bridge/covdata"
)

// WriteText renders the per-file statement table with a TOTAL row.
func WriteText(store *covdata.Store, sourceRoot string, w io.Writer, logger logr.Logger) error {
	files, skipped := Analyze(store, sourceRoot)
	for _, path := range skipped {
		logger.Info("skipping unreadable source file", "path", path)
	}

	table := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(table, "Name\tStmts\tMiss\tCover")

	totalStatements := 0
	totalMissed := 0
	for _, file := range files {
		missed := len(file.Missed())
		totalStatements += len(file.Statements)
		totalMissed += missed
		fmt.Fprintf(table, "%s\t%d\t%d\t%.0f%%\n", file.Name, len(file.Statements), missed, file.Percent())
	}

	totalPercent := float64(100)
	if totalStatements > 0 {
		totalPercent = float64(totalStatements-totalMissed) / float64(totalStatements) * 100
	}
	fmt.Fprintf(table, "TOTAL\t%d\t%d\t%.0f%%\n", totalStatements, totalMissed, totalPercent)

	return table.Flush()
}
