package cmd

import (
	"github.com/spf13/cobra"

	"github.com/fulmenhq/leakhook/pkg/exitcode"
	"github.com/fulmenhq/leakhook/pkg/report"
)

// discoverCmd lists repositories without touching them
var discoverCmd = newDiscoverCommand()

func newDiscoverCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discover [roots...]",
		Short: "List git repositories under the roots",
		Long: `Discover walks the roots the same way 'run' does and prints every repository
found, one per line. Dependency, build and cache directories are pruned.`,
		RunE: runDiscover,
	}
	addDiscoveryFlags(cmd)
	cmd.Flags().String("format", "text", "Output format: text, json or yaml")
	return cmd
}

func runDiscover(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyFlags(cmd.Flags(), cfg)
	format, err := report.ParseFormat(cfg.Output.Format)
	if err != nil {
		return withCode(exitcode.ConfigError, err)
	}
	roots, err := discoveryRoots(cmd, args)
	if err != nil {
		return err
	}

	repos, err := locate(cmd.Context(), cfg, roots)
	if err != nil {
		return err
	}
	return report.WriteRepositories(cmd.OutOrStdout(), repos, format)
}
