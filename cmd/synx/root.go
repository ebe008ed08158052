package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/synx/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "synx",
	Short: "synx shares synchronization objects across domains",
	Long: `synx runs the synchronization object service: handles, merges, callbacks and
recovery of objects shared between domains through a Global Directory.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "synx.yaml", "Config file (YAML or JSON); missing files use defaults")
	rootCmd.PersistentFlags().StringArray("set", nil, "Override a config key, e.g. --set dispatch.max_handles=64")
}

// loadConfig reads --config and applies --set overrides.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	sets, _ := cmd.Flags().GetStringArray("set")

	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	overrides, err := config.ParseOverrides(sets)
	if err != nil {
		return cfg, err
	}
	if err := config.Apply(&cfg, overrides); err != nil {
		return cfg, fmt.Errorf("applying --set: %w", err)
	}
	return cfg, cfg.Validate()
}
