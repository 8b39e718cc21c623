/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/
package cmd

import (
	"runtime"

	"github.com/spf13/cobra"

	"github.com/fulmenhq/leakhook/pkg/buildinfo"
)

// versionCmd represents the version command
var versionCmd = newVersionCommand()

func newVersionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show leakhook version",
		RunE:  runVersion,
	}
	cmd.Flags().Bool("extended", false, "Show detailed build information")
	return cmd
}

func runVersion(cmd *cobra.Command, _ []string) error {
	extended, _ := cmd.Flags().GetBool("extended")

	printf(cmd, "leakhook %s\n", buildinfo.BinaryVersion)
	if !extended {
		return nil
	}
	if mv := buildinfo.ModuleVersion(); mv != "" {
		printf(cmd, "Module version: %s\n", mv)
	}
	revision := buildinfo.Revision()
	if len(revision) > 8 {
		revision = revision[:8]
	}
	if revision == "" {
		revision = "unknown"
	}
	printf(cmd, "Git commit: %s\n", revision)
	printf(cmd, "Go version: %s\n", runtime.Version())
	printf(cmd, "Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	return nil
}
