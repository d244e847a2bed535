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

package session

import (
	"context"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/konflux-ci/pycov-bridge/covdata"
	"github.com/konflux-ci/pycov-bridge/sidecar"
	"github.com/konflux-ci/pycov-bridge/tunnel"
)

var _ = Describe("Manager", func() {
	var (
		ctx       context.Context
		outputDir string
		manager   *Manager
	)

	BeforeEach(func() {
		ctx = context.Background()

		var err error
		outputDir, err = os.MkdirTemp("", "session-")
		Expect(err).NotTo(HaveOccurred())

		manager, err = NewManager(outputDir, "default", GinkgoLogr)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(os.RemoveAll(outputDir)).To(Succeed())
	})

	// startSidecar serves a live control endpoint and returns a local
	// forwarder pointing at it.
	startSidecar := func(collector sidecar.Collector) (*httptest.Server, *tunnel.LocalForwarder) {
		server := httptest.NewServer(sidecar.NewServer(collector, GinkgoLogr).Handler())
		parsed, err := url.Parse(server.URL)
		Expect(err).NotTo(HaveOccurred())
		port, err := strconv.Atoi(parsed.Port())
		Expect(err).NotTo(HaveOccurred())
		return server, &tunnel.LocalForwarder{Port: port}
	}

	Context("Collect", func() {
		It("dumps the sidecar's live coverage into a named artifact", func() {
			collector := sidecar.NewTracingCollector()
			collector.RecordLines("/app/main.py", 1, 2, 3)
			server, forwarder := startSidecar(collector)
			defer server.Close()

			artifactPath, err := manager.Collect(ctx, forwarder, "demo-pod", "test1", 9095, time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(artifactPath).To(Equal(filepath.Join(outputDir, ".coverage_test1")))

			store, err := covdata.ReadFile(artifactPath)
			Expect(err).NotTo(HaveOccurred())
			Expect(store.Lines("/app/main.py")).To(Equal([]int{1, 2, 3}))
		})

		It("fails with an explicit error when the sidecar is unreachable", func() {
			port, err := tunnel.FreePort()
			Expect(err).NotTo(HaveOccurred())

			_, err = manager.Collect(ctx, &tunnel.LocalForwarder{Port: port}, "demo-pod", "test1", 9095, time.Second)
			Expect(err).To(HaveOccurred())
		})
	})

	Context("Reset", func() {
		It("erases the sidecar's counters and reports success", func() {
			collector := sidecar.NewTracingCollector()
			collector.RecordLines("/app/main.py", 1)
			server, forwarder := startSidecar(collector)
			defer server.Close()

			Expect(manager.Reset(ctx, forwarder, "demo-pod", 9095, time.Second)).To(BeTrue())

			snapshot, err := collector.Snapshot()
			Expect(err).NotTo(HaveOccurred())
			Expect(snapshot.MeasuredFiles()).To(BeEmpty())
		})

		It("reports failure without raising when the sidecar is unreachable", func() {
			port, err := tunnel.FreePort()
			Expect(err).NotTo(HaveOccurred())

			Expect(manager.Reset(ctx, &tunnel.LocalForwarder{Port: port}, "demo-pod", 9095, time.Second)).To(BeFalse())
		})
	})

	Context("Reset followed by Collect", func() {
		It("yields an artifact with no measured files", func() {
			collector := sidecar.NewTracingCollector()
			collector.RecordLines("/app/main.py", 1, 2)
			server, forwarder := startSidecar(collector)
			defer server.Close()

			Expect(manager.Reset(ctx, forwarder, "demo-pod", 9095, time.Second)).To(BeTrue())

			artifactPath, err := manager.Collect(ctx, forwarder, "demo-pod", "after-reset", 9095, time.Second)
			Expect(err).NotTo(HaveOccurred())

			store, err := covdata.ReadFile(artifactPath)
			Expect(err).NotTo(HaveOccurred())
			Expect(store.MeasuredFiles()).To(BeEmpty())
		})
	})

	Context("Merge", func() {
		writeArtifact := func(testName string, build func(*covdata.Store)) {
			store := covdata.NewStore()
			build(store)
			Expect(store.WriteFile(manager.ArtifactPath(testName))).To(Succeed())
		}

		It("unions the line sets of the named artifacts", func() {
			writeArtifact("a", func(store *covdata.Store) {
				store.AddLines("/app/f1.py", []int{1, 2})
			})
			writeArtifact("b", func(store *covdata.Store) {
				store.AddLines("/app/f1.py", []int{2, 3})
				store.AddLines("/app/f2.py", []int{5})
			})

			Expect(manager.Merge([]string{"a", "b"}, "merged")).To(Succeed())

			merged, err := covdata.ReadFile(manager.ArtifactPath("merged"))
			Expect(err).NotTo(HaveOccurred())
			Expect(merged.Lines("/app/f1.py")).To(Equal([]int{1, 2, 3}))
			Expect(merged.Lines("/app/f2.py")).To(Equal([]int{5}))
		})

		It("skips missing artifacts instead of failing", func() {
			writeArtifact("a", func(store *covdata.Store) {
				store.AddLines("/app/f1.py", []int{1})
			})

			Expect(manager.Merge([]string{"a", "absent"}, "merged")).To(Succeed())

			merged, err := covdata.ReadFile(manager.ArtifactPath("merged"))
			Expect(err).NotTo(HaveOccurred())
			Expect(merged.Lines("/app/f1.py")).To(Equal([]int{1}))
		})
	})

	Context("GenerateReports", func() {
		var sourceDir string

		BeforeEach(func() {
			var err error
			sourceDir, err = os.MkdirTemp("", "session-src-")
			Expect(err).NotTo(HaveOccurred())
			sourceDir, err = filepath.EvalSymlinks(sourceDir)
			Expect(err).NotTo(HaveOccurred())

			path := filepath.Join(sourceDir, "pkg", "mod.py")
			Expect(os.MkdirAll(filepath.Dir(path), 0755)).To(Succeed())
			Expect(os.WriteFile(path, []byte("a = 1\nb = 2\nc = 3\n"), 0644)).To(Succeed())
		})

		AfterEach(func() {
			Expect(os.RemoveAll(sourceDir)).To(Succeed())
		})

		It("remaps container paths and writes the selected reports", func() {
			store := covdata.NewStore()
			store.AddLines("/app/pkg/mod.py", []int{1, 2})
			Expect(store.WriteFile(manager.ArtifactPath("test1"))).To(Succeed())

			err := manager.GenerateReports("test1", sourceDir, true, ReportKinds{Text: true, XML: true, HTML: true})
			Expect(err).NotTo(HaveOccurred())

			rendered, err := os.ReadFile(filepath.Join(outputDir, "report_test1.txt"))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(rendered)).To(ContainSubstring("pkg/mod.py"))

			_, err = os.Stat(filepath.Join(outputDir, "coverage.xml"))
			Expect(err).NotTo(HaveOccurred())

			_, err = os.Stat(filepath.Join(outputDir, "html_test1", "index.html"))
			Expect(err).NotTo(HaveOccurred())
		})

		It("fails when the named artifact does not exist", func() {
			err := manager.GenerateReports("absent", sourceDir, true, ReportKinds{Text: true})
			Expect(err).To(HaveOccurred())
		})
	})
})
