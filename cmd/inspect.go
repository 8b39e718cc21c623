package cmd

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/spf13/cobra"

	"github.com/fulmenhq/leakhook/internal/gitctx"
	"github.com/fulmenhq/leakhook/pkg/exitcode"
	"github.com/fulmenhq/leakhook/pkg/hooks"
	"github.com/fulmenhq/leakhook/pkg/logger"
	"github.com/fulmenhq/leakhook/pkg/report"
)

// inspectCmd shows what run would do to a single repository
var inspectCmd = newInspectCommand()

func newInspectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect [repo]",
		Short: "Show the hook state of one repository and what run would change",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runInspect,
	}
	cmd.Flags().String("format", "text", "Output format: text, json or yaml")
	cmd.Flags().String("template-dir", "", "Directory holding pre-commit.hbs and commit-msg.hbs")
	return cmd
}

func runInspect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyFlags(cmd.Flags(), cfg)
	format, err := report.ParseFormat(cfg.Output.Format)
	if err != nil {
		return withCode(exitcode.ConfigError, err)
	}

	repo := "."
	if len(args) == 1 {
		repo = args[0]
	}
	repo, err = filepath.Abs(repo)
	if err != nil {
		return err
	}
	if !gitctx.IsRepo(repo) {
		return withCode(exitcode.GeneralError, fmt.Errorf("%s: %w", repo, gitctx.ErrNotRepository))
	}

	// Inspection never writes, so the embedded templates stand in for
	// missing ones.
	templates, err := loadTemplates(cfg, cfg.Scanner.Binary)
	if err != nil {
		if !errors.Is(err, hooks.ErrMissingTemplate) {
			return err
		}
		logger.Warn("hook templates missing, inspecting with built-in defaults", logger.String("dir", cfg.Hooks.TemplateDir))
		fs := memfs.New()
		if _, err := hooks.WriteDefaultTemplates(fs, true); err != nil {
			return err
		}
		if templates, err = hooks.LoadTemplates(fs, hooks.TemplateData{ScannerBinary: cfg.Scanner.Binary, ConfigPath: cfg.Scanner.ConfigPath}); err != nil {
			return err
		}
	}

	rec := hooks.NewReconciler(hooks.Options{
		Templates:  templates,
		ManagerDir: cfg.Hooks.ManagerDir,
		DryRun:     true,
	})
	res := rec.Reconcile(cmd.Context(), repo)
	return report.WriteInspection(cmd.OutOrStdout(), res, format, useColor(cmd))
}
