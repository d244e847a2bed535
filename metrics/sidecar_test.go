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

package metrics

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

var _ = Describe("Sidecar metrics", Ordered, func() {

	BeforeEach(func() {
		SidecarDumpTotal.Reset()
	})

	When("RegisterDump is called", func() {
		It("increments the succeeded counter and observes the payload size", func() {
			Expect(testutil.ToFloat64(SidecarDumpTotal.WithLabelValues("true"))).To(Equal(float64(0)))
			RegisterDump(true, 2048)
			Expect(testutil.ToFloat64(SidecarDumpTotal.WithLabelValues("true"))).To(Equal(float64(1)))
			Expect(testutil.CollectAndCount(SidecarDumpBytes)).To(Equal(1))
		})

		It("increments the failed counter without a size observation", func() {
			RegisterDump(false, 0)
			Expect(testutil.ToFloat64(SidecarDumpTotal.WithLabelValues("false"))).To(Equal(float64(1)))
			Expect(testutil.ToFloat64(SidecarDumpTotal.WithLabelValues("true"))).To(Equal(float64(0)))
		})
	})

	When("RegisterReset is called", func() {
		It("increments SidecarResetTotal", func() {
			before := testutil.ToFloat64(SidecarResetTotal)
			RegisterReset()
			Expect(testutil.ToFloat64(SidecarResetTotal)).To(Equal(before + 1))
		})
	})

	When("RegisterHealthProbe is called", func() {
		It("increments SidecarHealthTotal", func() {
			before := testutil.ToFloat64(SidecarHealthTotal)
			RegisterHealthProbe()
			Expect(testutil.ToFloat64(SidecarHealthTotal)).To(Equal(before + 1))
		})
	})

	When("RegisterMetrics is called", func() {
		It("registers every sidecar collector", func() {
			registry := prometheus.NewRegistry()
			RegisterMetrics(registry)

			RegisterDump(true, 100)
			names, err := testutil.GatherAndCount(registry,
				"sidecar_coverage_dump_total",
				"sidecar_coverage_dump_bytes",
			)
			Expect(err).NotTo(HaveOccurred())
			Expect(names).To(BeNumerically(">", 0))
		})
	})
})
