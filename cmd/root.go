/*
Copyright © 2025 3 Leaps <info@3leaps.com>
*/
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/fulmenhq/leakhook/pkg/buildinfo"
	"github.com/fulmenhq/leakhook/pkg/config"
	"github.com/fulmenhq/leakhook/pkg/exitcode"
	"github.com/fulmenhq/leakhook/pkg/logger"
)

// newRootCommand creates a fresh root command instance.
// This factory pattern allows tests to create isolated command trees without shared state.
func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "leakhook",
		Short: "Install secret-scanning git hooks across every repository on a machine",
		Long: `leakhook finds git repositories and makes sure each one runs the gitleaks
secret scanner before every commit. Repositories using husky get the scan
injected into .husky/pre-commit; all others get native pre-commit and
commit-msg hooks. A core.hooksPath pointing at a missing directory, which
silently disables every hook, is repaired.

Examples:
   leakhook run                    # Reconcile repositories under the current directory
   leakhook run ~/src --dry-run    # Show what would change
   leakhook run --all-volumes      # Every fixed volume on this machine
   leakhook discover ~/src         # List repositories only
   leakhook inspect                # Classify the current repository
   leakhook templates init         # Write the default hook templates
   leakhook doctor --verify        # Check scanner, templates and config`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			initializeLogger(cmd)
		},
	}

	// Add global flags
	cmd.PersistentFlags().String("log-level", "info", "Set log level (trace|debug|info|warn|error)")
	cmd.PersistentFlags().Bool("json", false, "Output logs in JSON format")
	cmd.PersistentFlags().Bool("no-color", false, "Disable colored output")
	cmd.PersistentFlags().String("config", "", "Config file (default: ./leakhook.yaml, then ~/.leakhook/config/leakhook.yaml)")

	cmd.Version = buildinfo.BinaryVersion
	cmd.SetVersionTemplate("leakhook {{.Version}}\n")

	return cmd
}

// registerSubcommands adds all subcommands to the root command.
// This is called from init() for production and can be called explicitly in tests.
func registerSubcommands(cmd *cobra.Command) {
	cmd.AddCommand(runCmd)
	cmd.AddCommand(discoverCmd)
	cmd.AddCommand(inspectCmd)
	cmd.AddCommand(templatesCmd)
	cmd.AddCommand(doctorCmd)
	cmd.AddCommand(versionCmd)
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = newRootCommand()

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(handleError(err))
	}
}

func init() {
	// Register all subcommands with the production rootCmd
	registerSubcommands(rootCmd)
}

// exitError carries a specific process exit code out of a RunE.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return exitcode.String(e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func withCode(code int, err error) error {
	return &exitError{code: code, err: err}
}

// handleError logs err and returns the exit code for it.
func handleError(err error) int {
	code := exitcode.GeneralError
	var ee *exitError
	if errors.As(err, &ee) {
		code = ee.code
	}
	logger.Error("Command execution failed", logger.Err(err), logger.String("exit", exitcode.String(code)))
	return code
}

// initializeLogger sets up the logger based on command flags
func initializeLogger(cmd *cobra.Command) {
	logLevelStr, _ := cmd.Flags().GetString("log-level")
	jsonLogs, _ := cmd.Flags().GetBool("json")
	noColor, _ := cmd.Flags().GetBool("no-color")
	dryRun := false
	if f := cmd.Flags().Lookup("dry-run"); f != nil {
		dryRun = f.Value.String() == "true"
	}

	config := logger.Config{
		Level:     logger.ParseLevel(logLevelStr),
		UseColor:  !noColor && colorAllowed(os.Stderr),
		JSON:      jsonLogs,
		Component: "leakhook",
		DryRun:    dryRun,
	}

	if err := logger.Initialize(config); err != nil {
		// Fallback to stderr
		if _, writeErr := os.Stderr.WriteString("Failed to initialize logger: " + err.Error() + "\n"); writeErr != nil {
			_ = writeErr
		}
		os.Exit(exitcode.ConfigError)
	}
}

// colorAllowed reports whether f is a terminal and NO_COLOR is unset.
func colorAllowed(f *os.File) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// useColor decides whether command output written to stdout is colored.
func useColor(cmd *cobra.Command) bool {
	noColor, _ := cmd.Flags().GetBool("no-color")
	if noColor {
		return false
	}
	out, ok := cmd.OutOrStdout().(*os.File)
	return ok && colorAllowed(out)
}

// loadConfig reads configuration honoring the global --config flag.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, withCode(exitcode.ConfigError, err)
	}
	if cfg.File != "" {
		logger.Debug("loaded config", logger.String("file", cfg.File))
	}
	return cfg, nil
}

func printf(cmd *cobra.Command, format string, args ...interface{}) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...) //nolint:errcheck // CLI output errors are typically ignored
}
