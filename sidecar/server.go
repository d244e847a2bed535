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

// Package sidecar exposes the in-process coverage control endpoint an
// instrumented target embeds, the way a service binary built with a coverage
// tag starts its collection server from init. The endpoint offers dump,
// reset and health operations against the live collector it owns.
package sidecar

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/konflux-ci/pycov-bridge/metrics"
)

// DefaultPort is the control endpoint's listening port unless overridden by
// the COVERAGE_PORT environment variable.
const DefaultPort = 9095

// defaultLabel names dumps requested without an explicit label.
const defaultLabel = "session"

// DumpPayload is the wire form of a coverage dump response. Field names are
// part of the protocol and must not change.
type DumpPayload struct {
	Label        string `json:"label"`
	Timestamp    string `json:"timestamp"`
	CoverageData string `json:"coverage_data"`
}

// HealthPayload is the wire form of a health response.
type HealthPayload struct {
	Status          string `json:"status"`
	CoverageEnabled bool   `json:"coverage_enabled"`
}

// Server serves the coverage control endpoint over an explicitly owned
// collector handle. All control operations are serialized against the
// collector; concurrent dump and reset requests never interleave their
// pause/snapshot/resume sections.
type Server struct {
	collector Collector
	logger    logr.Logger

	// mu is the control-operation critical section.
	mu  sync.Mutex
	srv *http.Server
}

// NewServer returns a Server owning the given collector.
func NewServer(collector Collector, logger logr.Logger) *Server {
	return &Server{
		collector: collector,
		logger:    logger,
	}
}

// Handler returns the control endpoint's HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/coverage", s.handleDump)
	mux.HandleFunc("/coverage/reset", s.handleReset)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/", s.handleNotFound)

	return mux
}

// Start begins serving on the given port and blocks until the context is
// canceled or the listener fails.
func (s *Server) Start(ctx context.Context, port int) error {
	s.srv = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.srv.ListenAndServe()
	}()
	s.logger.Info("coverage control endpoint listening", "port", port)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// handleDump pauses the collector, snapshots it, resumes it, then replies
// with the serialized snapshot. Dumping never stops collection permanently.
func (s *Server) handleDump(w http.ResponseWriter, r *http.Request) {
	label := r.URL.Query().Get("name")
	if label == "" {
		label = defaultLabel
	}
	s.logger.Info("coverage dump requested", "label", label)

	s.mu.Lock()
	s.collector.Pause()
	snapshot, err := s.collector.Snapshot()
	s.collector.Resume()
	s.mu.Unlock()

	if err != nil {
		s.logger.Error(err, "failed to snapshot collector")
		metrics.RegisterDump(false, 0)
		http.Error(w, "failed to snapshot coverage", http.StatusInternalServerError)
		return
	}

	data, err := snapshot.Dumps()
	if err != nil {
		s.logger.Error(err, "failed to serialize snapshot")
		metrics.RegisterDump(false, 0)
		http.Error(w, "failed to serialize coverage", http.StatusInternalServerError)
		return
	}

	payload := DumpPayload{
		Label:        label,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		CoverageData: base64.StdEncoding.EncodeToString(data),
	}
	metrics.RegisterDump(true, len(data))
	writeJSON(w, payload)
}

// handleReset erases all accumulated coverage and restarts tracing.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("coverage reset requested")

	s.mu.Lock()
	s.collector.Pause()
	s.collector.Erase()
	s.collector.Resume()
	s.mu.Unlock()

	metrics.RegisterReset()
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Coverage reset"))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	metrics.RegisterHealthProbe()
	writeJSON(w, HealthPayload{Status: "ok", CoverageEnabled: true})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusNotFound)
	w.Write([]byte("Not found"))
}

func writeJSON(w http.ResponseWriter, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(body)))
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}
