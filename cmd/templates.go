package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"

	"github.com/fulmenhq/leakhook/pkg/exitcode"
	"github.com/fulmenhq/leakhook/pkg/hooks"
)

// templatesCmd manages the hook templates
var templatesCmd = newTemplatesCommand()

func newTemplatesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Manage hook templates",
	}
	cmd.AddCommand(newTemplatesInitCommand())
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the built-in hook templates",
		RunE: func(cmd *cobra.Command, _ []string) error {
			defaults := hooks.DefaultTemplates()
			for _, name := range []string{hooks.PreCommitTemplate, hooks.CommitMsgTemplate, hooks.BlockTemplate} {
				printf(cmd, "==> %s <==\n%s\n", name, defaults[name])
			}
			return nil
		},
	})
	return cmd
}

func newTemplatesInitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the built-in hook templates to the template directory",
		Long: `Init materialises pre-commit.hbs, commit-msg.hbs and block.hbs. Templates are
handlebars files; scanner is the scanner binary and config the optional
scanner config path. Render them shell-quoted with {{{shellquote scanner}}}. Existing files are kept unless --force is set.`,
		RunE: runTemplatesInit,
	}
	cmd.Flags().String("dir", "", "Template directory (default: hooks.template_dir, ~/.leakhook/hooks)")
	cmd.Flags().Bool("force", false, "Overwrite existing templates")
	return cmd
}

func runTemplatesInit(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	dir, _ := cmd.Flags().GetString("dir")
	if dir == "" {
		dir = cfg.Hooks.TemplateDir
	}
	force, _ := cmd.Flags().GetBool("force")

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return withCode(fsExitCode(err), fmt.Errorf("create template dir: %w", err))
	}
	written, err := hooks.WriteDefaultTemplates(osfs.New(dir), force)
	if err != nil {
		return withCode(fsExitCode(err), err)
	}
	if len(written) == 0 {
		printf(cmd, "Templates already present in %s (use --force to overwrite)\n", dir)
		return nil
	}
	for _, name := range written {
		printf(cmd, "📁 Wrote %s\n", filepath.Join(dir, name))
	}
	return nil
}

func fsExitCode(err error) int {
	if errors.Is(err, fs.ErrPermission) {
		return exitcode.PermissionError
	}
	return exitcode.FileSystemError
}
