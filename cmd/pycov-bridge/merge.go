package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/konflux-ci/pycov-bridge/session"
)

var (
	mergeName string

	mergeCmd = &cobra.Command{
		Use:   "merge <test-name> [<test-name> ...]",
		Short: "Merge named coverage artifacts into one",
		Long: `Merge combines the artifacts of the given test sessions into a single new
artifact. Missing artifacts are skipped with a warning.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runMerge,
	}
)

func init() {
	mergeCmd.Flags().StringVar(&mergeName, "name", "merged", "Name of the merged artifact")
	rootCmd.AddCommand(mergeCmd)
}

func runMerge(cmd *cobra.Command, args []string) error {
	manager, err := session.NewManager(outputDir, namespace, logger)
	if err != nil {
		return err
	}

	if err := manager.Merge(args, mergeName); err != nil {
		return fmt.Errorf("failed to merge coverage artifacts: %w", err)
	}

	return nil
}
