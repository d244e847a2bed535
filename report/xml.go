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
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/konflux-ci/pycov-bridge/covdata"
)

const coberturaDoctype = `<!DOCTYPE coverage SYSTEM "http://cobertura.sourceforge.net/xml/coverage-04.dtd">`

type coberturaCoverage struct {
	XMLName      xml.Name           `xml:"coverage"`
	LineRate     string             `xml:"line-rate,attr"`
	BranchRate   string             `xml:"branch-rate,attr"`
	LinesCovered int                `xml:"lines-covered,attr"`
	LinesValid   int                `xml:"lines-valid,attr"`
	Timestamp    int64              `xml:"timestamp,attr"`
	Version      string             `xml:"version,attr"`
	Sources      []string           `xml:"sources>source"`
	Packages     []coberturaPackage `xml:"packages>package"`
}

type coberturaPackage struct {
	Name     string           `xml:"name,attr"`
	LineRate string           `xml:"line-rate,attr"`
	Classes  []coberturaClass `xml:"classes>class"`
}

type coberturaClass struct {
	Name     string          `xml:"name,attr"`
	Filename string          `xml:"filename,attr"`
	LineRate string          `xml:"line-rate,attr"`
	Lines    []coberturaLine `xml:"lines>line"`
}

type coberturaLine struct {
	Number int `xml:"number,attr"`
	Hits   int `xml:"hits,attr"`
}

// WriteXML renders a Cobertura coverage.xml for external consumers such as
// Codecov. Source files that cannot be read are skipped.
func WriteXML(store *covdata.Store, sourceRoot, outPath string, logger logr.Logger) error {
	files, skipped := Analyze(store, sourceRoot)
	for _, path := range skipped {
		logger.Info("skipping unreadable source file", "path", path)
	}

	root, err := filepath.Abs(sourceRoot)
	if err != nil {
		root = sourceRoot
	}

	packages := map[string][]coberturaClass{}
	linesCovered := 0
	linesValid := 0

	for _, file := range files {
		lines := make([]coberturaLine, 0, len(file.Statements))
		covered := 0
		for _, number := range file.Statements {
			hits := 0
			if file.Executed[number] {
				hits = 1
				covered++
			}
			lines = append(lines, coberturaLine{Number: number, Hits: hits})
		}
		linesCovered += covered
		linesValid += len(file.Statements)

		packageName := packageNameFor(file.Name)
		packages[packageName] = append(packages[packageName], coberturaClass{
			Name:     classNameFor(file.Name),
			Filename: file.Name,
			LineRate: rate(covered, len(file.Statements)),
			Lines:    lines,
		})
	}

	packageNames := make([]string, 0, len(packages))
	for name := range packages {
		packageNames = append(packageNames, name)
	}
	sort.Strings(packageNames)

	document := coberturaCoverage{
		LineRate:     rate(linesCovered, linesValid),
		BranchRate:   "0",
		LinesCovered: linesCovered,
		LinesValid:   linesValid,
		Timestamp:    time.Now().Unix(),
		Version:      "pycov-bridge",
		Sources:      []string{root},
	}
	for _, name := range packageNames {
		classes := packages[name]
		covered := 0
		valid := 0
		for _, class := range classes {
			for _, line := range class.Lines {
				valid++
				if line.Hits > 0 {
					covered++
				}
			}
		}
		document.Packages = append(document.Packages, coberturaPackage{
			Name:     name,
			LineRate: rate(covered, valid),
			Classes:  classes,
		})
	}

	encoded, err := xml.MarshalIndent(document, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode coverage XML: %w", err)
	}

	body := xml.Header + coberturaDoctype + "\n" + string(encoded) + "\n"
	if err := os.WriteFile(outPath, []byte(body), 0644); err != nil {
		return fmt.Errorf("failed to write coverage XML %s: %w", outPath, err)
	}

	return nil
}

// packageNameFor maps a relative file name to its dotted package name, "."
// for top-level files.
func packageNameFor(name string) string {
	dir := filepath.Dir(name)
	if dir == "." || dir == "/" {
		return "."
	}

	return strings.ReplaceAll(filepath.ToSlash(dir), "/", ".")
}

func classNameFor(name string) string {
	base := filepath.Base(name)

	return strings.TrimSuffix(base, filepath.Ext(base))
}

func rate(covered, valid int) string {
	if valid == 0 {
		return "1"
	}

	return fmt.Sprintf("%.4f", float64(covered)/float64(valid))
}
