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
	"github.com/prometheus/client_golang/prometheus"
)

var (
	SidecarDumpTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sidecar_coverage_dump_total",
			Help: "Total number of coverage dump requests served by the control endpoint",
		},
		[]string{"succeeded"},
	)

	SidecarDumpBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sidecar_coverage_dump_bytes",
			Help:    "Size of serialized coverage snapshots returned by dump requests",
			Buckets: []float64{256, 1024, 4096, 16384, 65536, 262144, 1048576},
		},
	)

	SidecarResetTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sidecar_coverage_reset_total",
			Help: "Total number of coverage reset requests served by the control endpoint",
		},
	)

	SidecarHealthTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sidecar_health_total",
			Help: "Total number of health probes served by the control endpoint",
		},
	)
)

// RegisterDump adds a dump observation with its payload size.
func RegisterDump(succeeded bool, payloadBytes int) {
	if succeeded {
		SidecarDumpTotal.WithLabelValues("true").Inc()
		SidecarDumpBytes.Observe(float64(payloadBytes))
		return
	}
	SidecarDumpTotal.WithLabelValues("false").Inc()
}

// RegisterReset adds a reset observation.
func RegisterReset() {
	SidecarResetTotal.Inc()
}

// RegisterHealthProbe adds a health probe observation.
func RegisterHealthProbe() {
	SidecarHealthTotal.Inc()
}

// RegisterMetrics adds the sidecar collectors to the given registerer.
func RegisterMetrics(registerer prometheus.Registerer) {
	registerer.MustRegister(
		SidecarDumpTotal,
		SidecarDumpBytes,
		SidecarResetTotal,
		SidecarHealthTotal,
	)
}
