package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/fulmenhq/leakhook/pkg/config"
	"github.com/fulmenhq/leakhook/pkg/exitcode"
	"github.com/fulmenhq/leakhook/pkg/scanner"
)

// doctorCmd checks the preconditions run relies on
var doctorCmd = newDoctorCommand()

func newDoctorCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check scanner, templates and configuration",
		Long: `Doctor runs the same preflight checks as 'run' and reports each one:
the scanner binary, the scanner config (when configured), the hook templates
and the git CLI. With --verify the scanner is run against a fixture of fake
credentials and must report leaks.`,
		RunE: runDoctor,
	}
	cmd.Flags().Bool("verify", false, "Run the scanner against the fake-credentials fixture")
	cmd.Flags().String("template-dir", "", "Directory holding pre-commit.hbs and commit-msg.hbs")
	cmd.Flags().String("scanner-config", "", "gitleaks config file to check")
	return cmd
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyFlags(cmd.Flags(), cfg)

	printf(cmd, "leakhook environment\n")
	printf(cmd, "====================\n")
	if cfg.File != "" {
		printf(cmd, "Config file: %s\n", cfg.File)
	} else {
		printf(cmd, "Config file: (defaults)\n")
	}
	if home, err := config.GetHome(); err == nil {
		printf(cmd, "Home:        %s\n", home)
	}
	if dir, err := config.GetConfigDir(); err == nil {
		printf(cmd, "Config dir:  %s\n", dir)
	}
	printf(cmd, "\n")

	// First failure decides the exit code.
	var firstErr error
	fail := func(err error) {
		if firstErr == nil {
			firstErr = err
		}
	}

	bin, err := scannerCommand(cfg)
	if err != nil {
		printf(cmd, "❌ Scanner: %v\n", unwrapExit(err))
		fail(err)
	} else {
		printf(cmd, "✅ Scanner: %s\n", bin)
	}

	if cfg.Scanner.ConfigPath == "" {
		printf(cmd, "➖ Scanner config: not set (scanner defaults apply)\n")
	} else if sum, err := checkScannerConfig(cfg); err != nil {
		printf(cmd, "❌ Scanner config: %v\n", unwrapExit(err))
		fail(err)
	} else {
		printf(cmd, "✅ Scanner config: %s (%d rules, extends defaults: %t)\n", sum.Path, sum.Rules, sum.ExtendsDefault)
	}

	if _, err := loadTemplates(cfg, cfg.Scanner.Binary); err != nil {
		printf(cmd, "❌ Templates: %v\n", unwrapExit(err))
		fail(err)
	} else {
		printf(cmd, "✅ Templates: %s\n", cfg.Hooks.TemplateDir)
	}

	if gitPath, err := exec.LookPath("git"); err != nil {
		printf(cmd, "⚠️  git CLI: not found (only used as a fallback)\n")
	} else {
		printf(cmd, "✅ git CLI: %s\n", gitPath)
	}

	if verify, _ := cmd.Flags().GetBool("verify"); verify && bin != "" {
		resolved := bin
		if p, err := exec.LookPath(bin); err == nil {
			resolved = p
		}
		v, err := scanner.Verify(cmd.Context(), resolved, cfg.Scanner.ConfigPath)
		if err != nil {
			printf(cmd, "❌ Fixture verification: %v\n", err)
			if v != nil && v.Output != "" {
				fmt.Fprintln(os.Stderr, v.Output) //nolint:errcheck // CLI output errors are typically ignored
			}
			fail(withCode(exitcode.ConfigError, err))
		} else {
			printf(cmd, "✅ Fixture verification: %d findings\n", v.Findings)
		}
	}

	return firstErr
}

func unwrapExit(err error) error {
	var ee *exitError
	if errors.As(err, &ee) && ee.err != nil {
		return ee.err
	}
	return err
}
