package main

import (
	"github.com/spf13/cobra"

	"github.com/konflux-ci/pycov-bridge/session"
)

var (
	reportTestName  string
	reportSourceDir string
	reportXML       bool
	reportHTML      bool
	reportNoRemap   bool

	reportCmd = &cobra.Command{
		Use:   "report",
		Short: "Generate coverage reports from a collected artifact",
		Long: `Generate reports from a previously collected artifact. The text report is
always produced; XML (Cobertura) and HTML variants are opt-in. Container
paths recorded by the remote process are remapped onto the local source
tree unless --no-remap is given.`,
		RunE: runReport,
	}
)

func init() {
	reportCmd.Flags().StringVar(&reportTestName, "test-name", "", "Name of the test session (required)")
	reportCmd.Flags().StringVar(&reportSourceDir, "source-dir", ".", "Local source directory for path reconciliation")
	reportCmd.Flags().BoolVar(&reportXML, "xml", false, "Also write coverage.xml")
	reportCmd.Flags().BoolVar(&reportHTML, "html", getEnvBool("COVERAGE_HTML", false), "Also write the HTML report")
	reportCmd.Flags().BoolVar(&reportNoRemap, "no-remap", false, "Skip container-to-local path remapping")
	reportCmd.MarkFlagRequired("test-name")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	manager, err := session.NewManager(outputDir, namespace, logger)
	if err != nil {
		return err
	}

	return manager.GenerateReports(reportTestName, reportSourceDir, !reportNoRemap, session.ReportKinds{
		Text: true,
		XML:  reportXML,
		HTML: reportHTML,
	})
}
