package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/konflux-ci/pycov-bridge/session"
	"github.com/konflux-ci/pycov-bridge/tunnel"
)

var (
	resetPodName string
	resetTimeout time.Duration

	resetCmd = &cobra.Command{
		Use:   "reset",
		Short: "Reset the coverage counters in a pod",
		RunE:  runReset,
	}
)

func init() {
	resetCmd.Flags().StringVar(&resetPodName, "pod", "", "Target pod; discovered via the label selector when empty")
	resetCmd.Flags().DurationVar(&resetTimeout, "timeout", session.DefaultTimeout, "Timeout for the reset request")
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
	manager, err := session.NewManager(outputDir, namespace, logger)
	if err != nil {
		return err
	}

	podName, config, err := resolveTarget(cmd, resetPodName)
	if err != nil {
		return err
	}

	forwarder, err := tunnel.New(tunnelMethod, config, logger)
	if err != nil {
		return err
	}

	if !manager.Reset(cmd.Context(), forwarder, podName, coveragePort, resetTimeout) {
		return fmt.Errorf("failed to reset coverage counters in pod %s", podName)
	}

	return nil
}
