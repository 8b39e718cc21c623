package cmd

import (
	"errors"
	"os/exec"
	"path/filepath"

	"github.com/go-git/go-billy/v5/osfs"

	"github.com/fulmenhq/leakhook/pkg/config"
	"github.com/fulmenhq/leakhook/pkg/exitcode"
	"github.com/fulmenhq/leakhook/pkg/hooks"
	"github.com/fulmenhq/leakhook/pkg/logger"
	"github.com/fulmenhq/leakhook/pkg/scanner"
)

// scannerCommand resolves the scanner and returns what installed hooks should
// invoke: the bare name when PATH finds the same binary, else its absolute
// path.
func scannerCommand(cfg *config.Config) (string, error) {
	opts := scanner.ResolveOptions{EnvOverride: scanner.EnvScannerBin, AllowPath: true}
	if binDir, err := config.GetBinDir(); err == nil {
		opts.BinDir = binDir
	}
	resolved, err := scanner.ResolveBinary(cfg.Scanner.Binary, opts)
	if err != nil {
		return "", withCode(exitcode.ScannerNotFound, err)
	}
	if onPath, err := exec.LookPath(cfg.Scanner.Binary); err == nil && sameFile(onPath, resolved) {
		return cfg.Scanner.Binary, nil
	}
	return resolved, nil
}

func sameFile(a, b string) bool {
	aa, err1 := filepath.Abs(a)
	bb, err2 := filepath.Abs(b)
	return err1 == nil && err2 == nil && aa == bb
}

// checkScannerConfig parses the configured gitleaks config, if any.
func checkScannerConfig(cfg *config.Config) (*scanner.ConfigSummary, error) {
	if cfg.Scanner.ConfigPath == "" {
		return nil, nil
	}
	sum, err := scanner.LoadConfigFile(cfg.Scanner.ConfigPath)
	if err != nil {
		return nil, withCode(exitcode.ConfigError, err)
	}
	logger.Debug("scanner config ok", logger.String("path", sum.Path), logger.Int("rules", sum.Rules))
	return sum, nil
}

// loadTemplates renders the hook templates from the configured directory.
func loadTemplates(cfg *config.Config, scannerBin string) (*hooks.TemplateSet, error) {
	set, err := hooks.LoadTemplates(osfs.New(cfg.Hooks.TemplateDir), hooks.TemplateData{
		ScannerBinary: scannerBin,
		ConfigPath:    cfg.Scanner.ConfigPath,
	})
	if err != nil {
		if errors.Is(err, hooks.ErrMissingTemplate) {
			return nil, withCode(exitcode.MissingTemplate,
				errors.Join(err, errors.New("run 'leakhook templates init' to write the default templates")))
		}
		return nil, withCode(exitcode.ConfigError, err)
	}
	return set, nil
}
