package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/synx"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of synx",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "synx version %s\n", strings.TrimSpace(synx.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
