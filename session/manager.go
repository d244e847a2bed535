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

// Package session manages named coverage artifacts for one test session:
// collecting snapshots from remote sidecars, resetting remote counters,
// merging artifacts and generating reports.
package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/go-logr/logr"

	"github.com/konflux-ci/pycov-bridge/covdata"
	"github.com/konflux-ci/pycov-bridge/reconcile"
	"github.com/konflux-ci/pycov-bridge/report"
	"github.com/konflux-ci/pycov-bridge/sidecar"
	"github.com/konflux-ci/pycov-bridge/tunnel"
)

// DefaultTimeout caps the dump fetch once the tunnel is ready. The tunnel's
// own bounded readiness wait comes on top of this.
const DefaultTimeout = 30 * time.Second

// Manager owns the named coverage artifacts under its output directory. It
// is not safe for concurrent use; one test session drives one Manager.
type Manager struct {
	outputDir string
	namespace string
	logger    logr.Logger
}

// NewManager creates a Manager, creating the output directory when needed.
func NewManager(outputDir, namespace string, logger logr.Logger) (*Manager, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", outputDir, err)
	}

	return &Manager{
		outputDir: outputDir,
		namespace: namespace,
		logger:    logger,
	}, nil
}

// ArtifactPath returns where the named session artifact is persisted.
func (m *Manager) ArtifactPath(testName string) string {
	return filepath.Join(m.outputDir, ".coverage_"+testName)
}

// Collect tunnels to the pod's sidecar, dumps its live coverage under the
// given label and persists the snapshot as a named artifact. It returns the
// artifact path. The tunnel is torn down on every exit path.
func (m *Manager) Collect(ctx context.Context, forwarder tunnel.Forwarder, podName, testName string, remotePort int, timeout time.Duration) (string, error) {
	m.logger.Info("collecting coverage", "pod", podName, "test", testName)

	localPort, err := forwarder.Start(ctx, m.namespace, podName, remotePort)
	if err != nil {
		return "", fmt.Errorf("failed to establish tunnel to pod %s: %w", podName, err)
	}
	defer forwarder.Stop()

	store, err := m.fetchDump(ctx, localPort, testName, timeout)
	if err != nil {
		return "", err
	}

	artifactPath := m.ArtifactPath(testName)
	if err := store.WriteFile(artifactPath); err != nil {
		return "", err
	}
	m.logger.Info("coverage data saved", "path", artifactPath)

	return artifactPath, nil
}

// Reset erases the accumulated coverage in the pod's sidecar. Failures are
// reported through the return value, not raised; the caller decides whether
// to proceed with degraded reporting.
func (m *Manager) Reset(ctx context.Context, forwarder tunnel.Forwarder, podName string, remotePort int, timeout time.Duration) bool {
	m.logger.Info("resetting coverage counters", "pod", podName)

	localPort, err := forwarder.Start(ctx, m.namespace, podName, remotePort)
	if err != nil {
		m.logger.Error(err, "failed to establish tunnel", "pod", podName)
		return false
	}
	defer forwarder.Stop()

	requestURL := fmt.Sprintf("http://localhost:%d/coverage/reset", localPort)
	response, err := m.get(ctx, requestURL, timeout)
	if err != nil {
		m.logger.Error(err, "failed to reset coverage", "pod", podName)
		return false
	}
	response.Body.Close()

	if response.StatusCode != http.StatusOK {
		m.logger.Info("failed to reset coverage", "status", response.StatusCode)
		return false
	}
	m.logger.Info("coverage counters reset", "pod", podName)

	return true
}

// Merge combines the named artifacts into one new artifact. Missing inputs
// are skipped with a warning; merge never fails because one is absent.
func (m *Manager) Merge(testNames []string, mergedName string) error {
	merged := covdata.NewStore()

	for _, testName := range testNames {
		artifactPath := m.ArtifactPath(testName)
		store, err := covdata.ReadFile(artifactPath)
		if err != nil {
			m.logger.Info("skipping missing coverage artifact", "test", testName, "path", artifactPath)
			continue
		}
		merged.Update(store)
		m.logger.Info("merged coverage", "test", testName)
	}

	mergedPath := m.ArtifactPath(mergedName)
	if err := merged.WriteFile(mergedPath); err != nil {
		return err
	}
	m.logger.Info("merged coverage saved", "path", mergedPath)

	return nil
}

// ReportKinds selects which report renderers GenerateReports runs.
type ReportKinds struct {
	Text bool
	XML  bool
	HTML bool
}

// GenerateReports runs the selected renderers over one reconciled load of
// the named artifact. Each kind is attempted independently; the first
// failure per kind is reported but does not stop the remaining kinds. Only
// loading the artifact itself is fatal.
func (m *Manager) GenerateReports(testName, sourceDir string, remap bool, kinds ReportKinds) error {
	store, err := m.loadReconciled(testName, sourceDir, remap)
	if err != nil {
		return err
	}

	var firstErr error
	record := func(kind string, err error) {
		if err == nil {
			return
		}
		m.logger.Error(err, "report generation failed", "kind", kind)
		if firstErr == nil {
			firstErr = err
		}
	}

	if kinds.Text {
		record("text", m.writeTextReport(store, testName, sourceDir))
	}
	if kinds.XML {
		record("xml", report.WriteXML(store, sourceDir, filepath.Join(m.outputDir, "coverage.xml"), m.logger))
	}
	if kinds.HTML {
		htmlDir := filepath.Join(m.outputDir, "html_"+testName)
		record("html", report.WriteHTML(store, sourceDir, htmlDir, testName, m.logger))
	}

	return firstErr
}

// loadReconciled loads a named artifact and applies path reconciliation,
// giving every report kind the same ready store.
func (m *Manager) loadReconciled(testName, sourceDir string, remap bool) (*covdata.Store, error) {
	artifactPath := m.ArtifactPath(testName)
	store, err := covdata.ReadFile(artifactPath)
	if err != nil {
		return nil, err
	}

	if !remap {
		return store, nil
	}

	mappings, err := reconcile.DetectMappings(store, sourceDir)
	if err != nil {
		return nil, err
	}
	if len(mappings) > 0 {
		m.logger.Info("auto-detected path mappings",
			"containerRoot", mappings[0].ContainerRoot, "localRoot", mappings[0].LocalRoot)
	} else {
		m.logger.Info("no container paths detected, using paths as-is")
	}

	return reconcile.Rebuild(store, mappings), nil
}

// writeTextReport renders the text report to its file and echoes it to
// stdout, the way the session's operator expects to see it.
func (m *Manager) writeTextReport(store *covdata.Store, testName, sourceDir string) error {
	reportPath := filepath.Join(m.outputDir, "report_"+testName+".txt")
	out, err := os.Create(reportPath)
	if err != nil {
		return fmt.Errorf("failed to create report file %s: %w", reportPath, err)
	}
	defer out.Close()

	if err := report.WriteText(store, sourceDir, out, m.logger); err != nil {
		return err
	}
	m.logger.Info("text report saved", "path", reportPath)

	return report.WriteText(store, sourceDir, os.Stdout, m.logger)
}

// fetchDump performs the dump request against the forwarded local port and
// decodes the snapshot. Protocol failures (bad status, missing fields,
// undecodable payload) are errors just like transport failures.
func (m *Manager) fetchDump(ctx context.Context, localPort int, testName string, timeout time.Duration) (*covdata.Store, error) {
	requestURL := fmt.Sprintf("http://localhost:%d/coverage?name=%s", localPort, url.QueryEscape(testName))
	response, err := m.get(ctx, requestURL, timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch coverage data: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to collect coverage: HTTP %d", response.StatusCode)
	}

	var payload sidecar.DumpPayload
	if err := json.NewDecoder(response.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode coverage response: %w", err)
	}
	if payload.CoverageData == "" {
		return nil, fmt.Errorf("no coverage data in response")
	}

	raw, err := base64.StdEncoding.DecodeString(payload.CoverageData)
	if err != nil {
		return nil, fmt.Errorf("failed to decode coverage payload: %w", err)
	}

	return covdata.Load(raw)
}

func (m *Manager) get(ctx context.Context, requestURL string, timeout time.Duration) (*http.Response, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := &http.Client{Timeout: timeout}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, err
	}

	return client.Do(request)
}
