package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/fenceline-dev/fenceline/internal/boundary"
	"github.com/fenceline-dev/fenceline/internal/output"
)

var (
	reportFormat string
	reportInput  string
)

// reportCmd summarizes a recorded boundary-object stream.
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize recorded boundary objects",
	Long: `Read boundary objects from stdin or --input (single object, array, or
NDJSON, auto-detected) and summarize observed results per run mode,
listing every denied or failed operation. SARIF output maps probes to
rules for code-scanning integrations.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		var input io.Reader = cmd.InOrStdin()
		if reportInput != "" {
			file, err := os.Open(reportInput)
			if err != nil {
				return fmt.Errorf("failed to open input %s: %w", reportInput, err)
			}
			defer file.Close()
			input = file
		}

		objects, err := boundary.ParseStream(input)
		if err != nil {
			return err
		}

		formatter, err := output.NewFormatter(reportFormat, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		return formatter.Format(objects)
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().StringVar(&reportFormat, "format", "table", "Output format: table, json, sarif")
	reportCmd.Flags().StringVarP(&reportInput, "input", "i", "", "Input file (default: stdin)")
}
