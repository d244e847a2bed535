package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/go-logr/logr"
)

var (
	namespace     string
	outputDir     string
	coveragePort  int
	tunnelMethod  string
	labelSelector string

	logger logr.Logger

	rootCmd = &cobra.Command{
		Use:   "pycov-bridge",
		Short: "Collect coverage data from Python applications running in Kubernetes pods",
		Long: `pycov-bridge talks to the coverage control endpoint embedded in a remote
Python application, fetches its in-memory coverage data through a
port-forward tunnel, reconciles container paths against the local source
tree and renders text, XML and HTML reports.`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&namespace, "namespace",
		getEnv("COVERAGE_NAMESPACE", "default"), "Kubernetes namespace of the target pod")
	rootCmd.PersistentFlags().StringVar(&outputDir, "output-dir",
		getEnv("COVERAGE_OUTPUT_DIR", "./coverage-output"), "Directory for coverage artifacts and reports")
	rootCmd.PersistentFlags().IntVar(&coveragePort, "port",
		getEnvInt("COVERAGE_PORT", 9095), "Port the coverage control endpoint listens on")
	rootCmd.PersistentFlags().StringVar(&tunnelMethod, "tunnel",
		getEnv("COVERAGE_TUNNEL", "kubectl"), "Tunnel method: kubectl or native")
	rootCmd.PersistentFlags().StringVar(&labelSelector, "label-selector",
		getEnv("COVERAGE_LABEL_SELECTOR", "app=coverage-demo"), "Label selector used to discover the target pod")
}

// getEnv retrieves an environment variable with a default fallback.
func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}

	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
		fmt.Fprintf(os.Stderr, "ignoring invalid %s value %q\n", key, val)
	}

	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}

	return defaultVal
}
