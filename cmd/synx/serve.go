package main

import (
	"github.com/spf13/cobra"

	"github.com/aretw0/synx/internal/cli"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the synx daemon",
	Long: `Runs the object service against the configured Global Directory and serves the
introspection API, the event stream and Prometheus metrics over HTTP.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("addr"); cmd.Flags().Changed("addr") {
			cfg.HTTP.Addr = addr
		}
		logger, err := cli.NewLogger(cfg.Log)
		if err != nil {
			return err
		}

		d, err := cli.NewDaemon(cfg, logger)
		if err != nil {
			return err
		}

		ctx := cli.NewSignalContext(cmd.Context())
		defer ctx.Cancel()

		logger.Info("synx starting", "directory", cfg.Directory.Backend, "merge_policy", cfg.Dispatch.MergePolicy)
		err = d.Run(ctx)
		if sig := ctx.Signal(); sig != nil {
			logger.Info("synx stopped", "signal", sig.String())
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "HTTP listen address, overrides http.addr")
}
