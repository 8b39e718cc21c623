package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/fulmenhq/leakhook/pkg/config"
	"github.com/fulmenhq/leakhook/pkg/exitcode"
	"github.com/fulmenhq/leakhook/pkg/hooks"
	"github.com/fulmenhq/leakhook/pkg/locator"
	"github.com/fulmenhq/leakhook/pkg/logger"
	"github.com/fulmenhq/leakhook/pkg/report"
	"github.com/fulmenhq/leakhook/pkg/volumes"
)

// runCmd discovers repositories and reconciles their hooks
var runCmd = newRunCommand()

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [roots...]",
		Short: "Install or repair secret-scanning hooks in every repository under the roots",
		Long: `Run walks the given roots (default: current directory) for git repositories
and reconciles each one so commits run the secret scanner:

  bypass-repair  core.hooksPath points at a missing directory: unset a local value,
                 or override a global/system one locally, then native install
  inject         .husky/pre-commit exists without the scanner: add the scan block
  create-entry   husky installed but no .husky/pre-commit: create one
  native         write pre-commit and commit-msg, backing up foreign hooks

The scanner binary and hook templates must be present before any repository
is touched. Exit status is non-zero when any repository failed.`,
		RunE: runRun,
	}
	addDiscoveryFlags(cmd)
	cmd.Flags().Bool("dry-run", false, "Report intended changes without writing")
	cmd.Flags().String("template-dir", "", "Directory holding pre-commit.hbs and commit-msg.hbs")
	cmd.Flags().String("scanner-config", "", "gitleaks config file passed to the scanner by installed hooks")
	cmd.Flags().String("format", "", "Summary format: text, json or yaml")
	cmd.Flags().Bool("skip-preflight", false, "Do not require the scanner binary to be installed")
	return cmd
}

// addDiscoveryFlags registers the flags shared by run and discover.
func addDiscoveryFlags(cmd *cobra.Command) {
	cmd.Flags().Int("max-depth", 0, "Maximum directory depth below each root (0 = unbounded)")
	cmd.Flags().Bool("all-volumes", false, "Walk every fixed local volume instead of the given roots")
	cmd.Flags().StringSlice("exclude", nil, "Additional exclusion glob (doublestar, absolute paths); repeatable")
}

// applyFlags overlays explicitly set flags on cfg.
func applyFlags(flags *pflag.FlagSet, cfg *config.Config) {
	if flags.Changed("max-depth") {
		cfg.Discovery.MaxDepth, _ = flags.GetInt("max-depth")
	}
	if flags.Changed("exclude") {
		extra, _ := flags.GetStringSlice("exclude")
		cfg.Discovery.ExcludeGlobs = append(cfg.Discovery.ExcludeGlobs, extra...)
	}
	if f := flags.Lookup("template-dir"); f != nil && f.Changed {
		cfg.Hooks.TemplateDir = f.Value.String()
	}
	if f := flags.Lookup("scanner-config"); f != nil && f.Changed {
		cfg.Scanner.ConfigPath = f.Value.String()
	}
	if f := flags.Lookup("format"); f != nil && f.Changed {
		cfg.Output.Format = f.Value.String()
	}
	if cfg.Scanner.ConfigPath != "" {
		if abs, err := filepath.Abs(cfg.Scanner.ConfigPath); err == nil {
			cfg.Scanner.ConfigPath = abs
		}
	}
}

// discoveryRoots returns the roots to walk.
func discoveryRoots(cmd *cobra.Command, args []string) ([]string, error) {
	if all, _ := cmd.Flags().GetBool("all-volumes"); all {
		roots, err := volumes.Fixed()
		if err != nil {
			return nil, withCode(exitcode.FileSystemError, fmt.Errorf("list volumes: %w", err))
		}
		logger.Info("walking all fixed volumes", logger.Int("volumes", len(roots)))
		return roots, nil
	}
	if len(args) == 0 {
		return []string{"."}, nil
	}
	return args, nil
}

// locate runs discovery with a spinner on interactive terminals.
func locate(ctx context.Context, cfg *config.Config, roots []string) ([]locator.Repository, error) {
	var spin *spinner.Spinner
	if colorAllowed(os.Stderr) {
		spin = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
		spin.Suffix = " discovering repositories"
		spin.Start()
		defer spin.Stop()
	}

	found := 0
	loc := locator.New(locator.Options{
		MaxDepth:          cfg.Discovery.MaxDepth,
		ExtraExcludeNames: cfg.Discovery.ExcludeNames,
		ExtraExcludeGlobs: cfg.Discovery.ExcludeGlobs,
		Concurrency:       cfg.Discovery.Concurrency,
		OnRepository: func(r locator.Repository) {
			found++
			logger.Trace("found repository", logger.String("path", r.Path))
			if spin != nil {
				spin.Lock()
				spin.Suffix = fmt.Sprintf(" discovering repositories (%d found)", found)
				spin.Unlock()
			}
		},
	})

	repos, err := loc.LocateAll(ctx, roots)
	if ctx.Err() != nil {
		return nil, withCode(exitcode.Interrupted, ctx.Err())
	}
	if err != nil {
		if len(repos) == 0 {
			return nil, withCode(exitcode.FileSystemError, err)
		}
		logger.Warn("some roots could not be walked", logger.Err(err))
	}
	return repos, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	started := time.Now()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyFlags(cmd.Flags(), cfg)
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	format, err := report.ParseFormat(cfg.Output.Format)
	if err != nil {
		return withCode(exitcode.ConfigError, err)
	}

	// Preconditions are checked once; nothing is touched if they fail.
	scannerBin := cfg.Scanner.Binary
	if skip, _ := cmd.Flags().GetBool("skip-preflight"); !skip {
		if scannerBin, err = scannerCommand(cfg); err != nil {
			return err
		}
		if _, err := checkScannerConfig(cfg); err != nil {
			return err
		}
	}
	templates, err := loadTemplates(cfg, scannerBin)
	if err != nil {
		return err
	}

	roots, err := discoveryRoots(cmd, args)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repos, err := locate(ctx, cfg, roots)
	if err != nil {
		return err
	}
	logger.Info("discovery complete", logger.Int("repositories", len(repos)))

	// Structured summaries own stdout; progress goes to stderr then.
	var progressOut io.Writer = cmd.OutOrStdout()
	if format != report.FormatText {
		progressOut = cmd.ErrOrStderr()
	}
	printer := report.NewPrinter(progressOut, useColor(cmd))

	rec := hooks.NewReconciler(hooks.Options{
		Templates:  templates,
		ManagerDir: cfg.Hooks.ManagerDir,
		DryRun:     dryRun,
		OnResult:   printer.Progress,
	})
	summary := rec.ReconcileAll(ctx, locator.Paths(repos))

	run := report.NewRun(roots, dryRun, started)
	run.Complete(summary, time.Now())
	run.Interrupted = ctx.Err() != nil
	if err := report.Write(cmd.OutOrStdout(), run, format, useColor(cmd)); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}

	switch {
	case run.Interrupted:
		return withCode(exitcode.Interrupted, fmt.Errorf("interrupted; %d of %d repositories not started", notStarted(summary, ctx.Err()), len(repos)))
	case summary.HasFailures():
		return withCode(exitcode.ReconcileFailed, fmt.Errorf("%d of %d repositories failed", run.Counts.Failed, run.Counts.Found))
	}
	return nil
}

// notStarted counts the results ReconcileAll recorded after cancellation.
func notStarted(sum *hooks.Summary, cause error) int {
	n := 0
	for _, res := range sum.Results {
		if res.Outcome == hooks.OutcomeSkipped && errors.Is(res.Err, cause) {
			n++
		}
	}
	return n
}
