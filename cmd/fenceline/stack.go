package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fenceline-dev/fenceline/internal/connector"
	"github.com/fenceline-dev/fenceline/internal/stack"
)

// stackCmd prints the host/sandbox metadata that would be stamped into
// boundary objects for a run mode.
var stackCmd = &cobra.Command{
	Use:   "stack [MODE]",
	Short: "Print host and sandbox stack metadata for a run mode",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		modeName := connector.ModeBaseline.String()
		if len(args) == 1 {
			modeName = args[0]
		}
		mode, err := connector.ParseMode(modeName)
		if err != nil {
			return err
		}
		opts, err := connectorOptions()
		if err != nil {
			return err
		}

		info := stack.Detect(mode, connector.ProfileForMode(mode, opts), stack.Options{CLI: opts.CLI})
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode stack metadata: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(stackCmd)
}
