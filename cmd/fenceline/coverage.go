package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/fenceline-dev/fenceline/internal/coverage"
)

var (
	coverageOut     string
	coverageCheck   string
	coverageRecords []string
)

// coverageCmd builds the capability-to-probe coverage map, or cross-checks a
// previously materialized one for drift.
var coverageCmd = &cobra.Command{
	Use:   "coverage",
	Short: "Compute or check capability-to-probe coverage",
	Long: `Cross-reference every cataloged capability against the probes that declare
it as their primary target. Without flags the live coverage map is printed
as JSON. With --check, a previously saved map is compared against the live
computation and every discrepancy is reported in one pass. With --records,
recorded boundary-object files are scanned for capability references the
catalog no longer declares.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runCoverage(cmd)
	},
}

func init() {
	rootCmd.AddCommand(coverageCmd)

	coverageCmd.Flags().StringVarP(&coverageOut, "out", "o", "", "Write the coverage map to a file instead of stdout")
	coverageCmd.Flags().StringVar(&coverageCheck, "check", "", "Check a previously saved coverage map for drift")
	coverageCmd.Flags().StringSliceVar(&coverageRecords, "records", nil, "Boundary-object files to scan for stale capability references")
}

func runCoverage(cmd *cobra.Command) error {
	index, err := loadIndex()
	if err != nil {
		return err
	}
	metas, err := allProbeMetadata(probesDir())
	if err != nil {
		return err
	}

	live, err := coverage.Build(index, metas)
	if err != nil {
		return err
	}

	if len(coverageRecords) > 0 {
		if err := coverage.ScanRecords(cmd.Context(), index, coverageRecords); err != nil {
			return err
		}
		slog.Info("record scan passed", "files", len(coverageRecords))
	}

	if coverageCheck != "" {
		recorded, err := coverage.LoadMap(coverageCheck)
		if err != nil {
			return err
		}
		if err := coverage.DriftError(coverage.Check(live, recorded)); err != nil {
			return err
		}
		slog.Info("coverage map matches the live computation", "capabilities", len(live))
		return nil
	}

	data, err := json.MarshalIndent(live, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode coverage map: %w", err)
	}
	if coverageOut != "" {
		if err := os.WriteFile(coverageOut, append(data, '\n'), 0o644); err != nil {
			return fmt.Errorf("failed to write coverage map: %w", err)
		}
		slog.Info("coverage map written", "path", coverageOut, "capabilities", len(live))
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
