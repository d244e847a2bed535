package main

import (
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/konflux-ci/pycov-bridge/covdata"
	"github.com/konflux-ci/pycov-bridge/metrics"
	"github.com/konflux-ci/pycov-bridge/sidecar"
)

var (
	serveStorePath   string
	serveMetricsPort int

	serveCmd = &cobra.Command{
		Use:   "serve [-- <command> [args...]]",
		Short: "Serve the coverage control endpoint locally",
		Long: `Serve hosts an in-process coverage control endpoint, optionally supervising
a target command for as long as it runs. With --store the collector is
seeded from an existing artifact, which makes the endpoint usable as a
stand-in sidecar when exercising the collection flow without a cluster.`,
		RunE: runServe,
	}
)

func init() {
	serveCmd.Flags().StringVar(&serveStorePath, "store", "", "Artifact used to seed the collector")
	serveCmd.Flags().IntVar(&serveMetricsPort, "metrics-port", 0, "Serve Prometheus metrics on this port (0 disables)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	collector := sidecar.NewTracingCollector()
	if serveStorePath != "" {
		store, err := covdata.ReadFile(serveStorePath)
		if err != nil {
			return fmt.Errorf("failed to seed collector: %w", err)
		}
		collector.Seed(store)
	}

	metrics.RegisterMetrics(prometheus.DefaultRegisterer)
	if serveMetricsPort > 0 {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(fmt.Sprintf(":%d", serveMetricsPort), mux); err != nil {
				logger.Error(err, "metrics listener failed")
			}
		}()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(args) > 0 {
		return sidecar.RunTarget(ctx, collector, coveragePort, args, logger)
	}

	return sidecar.NewServer(collector, logger).Start(ctx, coveragePort)
}
