package main

import (
	"github.com/spf13/cobra"

	"github.com/aretw0/synx/internal/cli"
	"github.com/aretw0/synx/internal/config"
	"github.com/aretw0/synx/pkg/domain"
	"github.com/aretw0/synx/pkg/ports"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "List live Global Directory entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := openSharedDirectory(cmd)
		if err != nil {
			return err
		}
		from, _ := cmd.Flags().GetUint32("from")
		to, _ := cmd.Flags().GetUint32("to")
		cols, _ := cmd.Flags().GetString("columns")
		noColor, _ := cmd.Flags().GetBool("no-color")

		return cli.Inspect(cmd.Context(), dir, cli.InspectOptions{
			From:    from,
			To:      to,
			Columns: cols,
			Color:   !noColor,
		}, cmd.OutOrStdout())
	},
}

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Signal SSR on directory entries left ACTIVE by a reset domain",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, _ := cmd.Flags().GetUint32("domain")
		if d == 0 {
			return domain.NewOpError("recover", 0, domain.ErrInvalid)
		}
		dir, err := openSharedDirectory(cmd)
		if err != nil {
			return err
		}
		return cli.Recover(cmd.Context(), dir, domain.DomainID(d), cmd.OutOrStdout())
	},
}

// openSharedDirectory connects to the redis directory named by --redis or the
// config. A private memory directory would always be empty here.
func openSharedDirectory(cmd *cobra.Command) (ports.Directory, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	cfg.Directory.Backend = config.BackendRedis
	if addr, _ := cmd.Flags().GetString("redis"); addr != "" {
		cfg.Directory.Redis.Addr = addr
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cli.OpenDirectory(cfg.Directory), nil
}

func init() {
	for _, c := range []*cobra.Command{inspectCmd, recoverCmd} {
		c.Flags().String("redis", "", "Redis address of the shared directory, overrides directory.redis.addr")
		rootCmd.AddCommand(c)
	}
	inspectCmd.Flags().Uint32("from", 0, "Lowest object ID to list")
	inspectCmd.Flags().Uint32("to", 0, "Highest object ID to list, 0 for no limit")
	inspectCmd.Flags().String("columns", "all", "Comma separated columns")
	inspectCmd.Flags().Bool("no-color", false, "Disable colored status output")
	recoverCmd.Flags().Uint32("domain", 0, "Domain that reset")
}
