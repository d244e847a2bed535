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
	"bufio"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-logr/logr"

	"github.com/konflux-ci/pycov-bridge/covdata"
)

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head>
<title>Coverage report: {{.Title}}</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; }
th, td { padding: 0.3em 1em; border-bottom: 1px solid #ddd; text-align: left; }
td.num { text-align: right; }
</style>
</head>
<body>
<h1>Coverage report: {{.Title}}</h1>
<table>
<tr><th>File</th><th>Stmts</th><th>Miss</th><th>Cover</th></tr>
{{range .Files}}<tr><td><a href="{{.Page}}">{{.Name}}</a></td><td class="num">{{.Statements}}</td><td class="num">{{.Missed}}</td><td class="num">{{.Percent}}%</td></tr>
{{end}}<tr><td>TOTAL</td><td class="num">{{.TotalStatements}}</td><td class="num">{{.TotalMissed}}</td><td class="num">{{.TotalPercent}}%</td></tr>
</table>
</body>
</html>
`))

var fileTemplate = template.Must(template.New("file").Parse(`<!DOCTYPE html>
<html>
<head>
<title>{{.Name}}</title>
<style>
body { font-family: monospace; margin: 2em; }
pre { margin: 0; }
span.line-number { display: inline-block; width: 4em; color: #888; }
pre.run { background-color: #dff0d8; }
pre.mis { background-color: #f2dede; }
</style>
</head>
<body>
<h1>{{.Name}} &mdash; {{.Percent}}%</h1>
<p><a href="index.html">&laquo; index</a></p>
{{range .Lines}}<pre class="{{.Class}}"><span class="line-number">{{.Number}}</span>{{.Text}}</pre>
{{end}}</body>
</html>
`))

type indexRow struct {
	Name       string
	Page       string
	Statements int
	Missed     int
	Percent    string
}

type indexData struct {
	Title           string
	Files           []indexRow
	TotalStatements int
	TotalMissed     int
	TotalPercent    string
}

type fileRow struct {
	Number int
	Text   string
	Class  string
}

type fileData struct {
	Name    string
	Percent string
	Lines   []fileRow
}

// WriteHTML renders a static HTML report into outDir: an index page plus one
// annotated page per source file. Files that cannot be read are skipped.
func WriteHTML(store *covdata.Store, sourceRoot, outDir, title string, logger logr.Logger) error {
	files, skipped := Analyze(store, sourceRoot)
	for _, path := range skipped {
		logger.Info("skipping unreadable source file", "path", path)
	}

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("failed to create report directory %s: %w", outDir, err)
	}

	index := indexData{Title: title}
	for i, file := range files {
		page := fmt.Sprintf("file_%03d.html", i)
		missed := len(file.Missed())
		index.Files = append(index.Files, indexRow{
			Name:       file.Name,
			Page:       page,
			Statements: len(file.Statements),
			Missed:     missed,
			Percent:    fmt.Sprintf("%.0f", file.Percent()),
		})
		index.TotalStatements += len(file.Statements)
		index.TotalMissed += missed

		if err := writeFilePage(file, filepath.Join(outDir, page)); err != nil {
			logger.Info("skipping file page", "path", file.Path, "error", err.Error())
		}
	}

	totalPercent := float64(100)
	if index.TotalStatements > 0 {
		totalPercent = float64(index.TotalStatements-index.TotalMissed) / float64(index.TotalStatements) * 100
	}
	index.TotalPercent = fmt.Sprintf("%.0f", totalPercent)

	out, err := os.Create(filepath.Join(outDir, "index.html"))
	if err != nil {
		return fmt.Errorf("failed to create index page: %w", err)
	}
	defer out.Close()

	return indexTemplate.Execute(out, index)
}

func writeFilePage(file *FileCoverage, outPath string) error {
	source, err := os.Open(file.Path)
	if err != nil {
		return err
	}
	defer source.Close()

	statements := map[int]bool{}
	for _, line := range file.Statements {
		statements[line] = true
	}

	data := fileData{
		Name:    file.Name,
		Percent: fmt.Sprintf("%.0f", file.Percent()),
	}
	scanner := bufio.NewScanner(source)
	number := 0
	for scanner.Scan() {
		number++
		class := ""
		switch {
		case file.Executed[number]:
			class = "run"
		case statements[number]:
			class = "mis"
		}
		data.Lines = append(data.Lines, fileRow{
			Number: number,
			Text:   strings.ReplaceAll(scanner.Text(), "\t", "    "),
			Class:  class,
		})
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer out.Close()

	return fileTemplate.Execute(out, data)
}
