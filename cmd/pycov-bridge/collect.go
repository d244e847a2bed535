package main

import (
	"time"

	"github.com/spf13/cobra"
	"k8s.io/client-go/rest"

	"github.com/konflux-ci/pycov-bridge/discovery"
	"github.com/konflux-ci/pycov-bridge/session"
	"github.com/konflux-ci/pycov-bridge/tunnel"
)

var (
	collectTestName string
	collectPodName  string
	collectTimeout  time.Duration

	collectCmd = &cobra.Command{
		Use:   "collect",
		Short: "Collect coverage data from a pod into a named artifact",
		Example: `  # Discover the pod by label selector and collect under the name "login-test"
  pycov-bridge collect --test-name login-test

  # Collect from a specific pod using the in-process tunnel
  pycov-bridge collect --test-name login-test --pod demo-7f9b --tunnel native`,
		RunE: runCollect,
	}
)

func init() {
	collectCmd.Flags().StringVar(&collectTestName, "test-name", "", "Name of the test session (required)")
	collectCmd.Flags().StringVar(&collectPodName, "pod", "", "Target pod; discovered via the label selector when empty")
	collectCmd.Flags().DurationVar(&collectTimeout, "timeout", session.DefaultTimeout, "Timeout for the dump fetch")
	collectCmd.MarkFlagRequired("test-name")
	rootCmd.AddCommand(collectCmd)
}

func runCollect(cmd *cobra.Command, args []string) error {
	manager, err := session.NewManager(outputDir, namespace, logger)
	if err != nil {
		return err
	}

	podName, config, err := resolveTarget(cmd, collectPodName)
	if err != nil {
		return err
	}

	forwarder, err := tunnel.New(tunnelMethod, config, logger)
	if err != nil {
		return err
	}

	_, err = manager.Collect(cmd.Context(), forwarder, podName, collectTestName, coveragePort, collectTimeout)

	return err
}

// resolveTarget returns the pod to talk to, discovering it when none was
// given, along with the rest config needed by the native tunnel. The config
// is nil when neither discovery nor the native tunnel require one.
func resolveTarget(cmd *cobra.Command, podName string) (string, *rest.Config, error) {
	if podName != "" && tunnelMethod != tunnel.MethodNative {
		return podName, nil, nil
	}

	clientset, config, err := discovery.NewClientset()
	if err != nil {
		return "", nil, err
	}

	if podName == "" {
		podName, err = discovery.FirstRunningPod(cmd.Context(), clientset, namespace, labelSelector)
		if err != nil {
			return "", nil, err
		}
		logger.Info("discovered target pod", "pod", podName)
	}

	return podName, config, nil
}
