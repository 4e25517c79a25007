package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fenceline-dev/fenceline/internal/version"
)

// versionCmd implements the version command.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of fenceline",
	Run: func(cmd *cobra.Command, _ []string) {
		info := version.Get()
		fmt.Printf("fenceline version %s\n", info.Full())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
