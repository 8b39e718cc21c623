// Package scanner locates the external secret scanner and checks the
// configuration hooks will hand it. leakhook never scans content itself.
package scanner

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/fulmenhq/leakhook/pkg/logger"
)

// EnvScannerBin overrides scanner resolution with an explicit path.
const EnvScannerBin = "LEAKHOOK_SCANNER_BIN"

// ErrNotFound is wrapped by ResolveBinary when no candidate exists.
var ErrNotFound = errors.New("scanner binary not found")

// ResolveOptions configures binary resolution.
type ResolveOptions struct {
	// EnvOverride names an environment variable holding an explicit path.
	EnvOverride string
	// BinDir is the leakhook-managed binary directory. Both <BinDir>/<name>
	// and <BinDir>/<name>@<version>/<name> layouts are checked.
	BinDir string
	// AllowPath enables the PATH fallback.
	AllowPath bool
}

// ResolveBinary finds the scanner binary, checking in order: an absolute
// name, the env override, the managed bin dir, then PATH.
func ResolveBinary(name string, opts ResolveOptions) (string, error) {
	logger.Debug("resolving scanner binary", logger.String("name", name), logger.String("bin_dir", opts.BinDir))

	if filepath.IsAbs(name) {
		if isFile(name) {
			return name, nil
		}
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	if opts.EnvOverride != "" {
		if p := os.Getenv(opts.EnvOverride); p != "" {
			if isFile(p) {
				logger.Debug("scanner resolved from env override", logger.String("path", p))
				return p, nil
			}
			logger.Debug("env override path invalid", logger.String("env_var", opts.EnvOverride), logger.String("path", p))
		}
	}

	if opts.BinDir != "" {
		if p := findManaged(opts.BinDir, name); p != "" {
			logger.Debug("scanner resolved from managed bin dir", logger.String("path", p))
			return p, nil
		}
	}

	if opts.AllowPath {
		if p, err := exec.LookPath(name); err == nil {
			logger.Debug("scanner resolved from PATH", logger.String("path", p))
			return p, nil
		}
	}

	var suggestions []string
	if opts.EnvOverride != "" {
		suggestions = append(suggestions, fmt.Sprintf("set %s=/path/to/%s", opts.EnvOverride, name))
	}
	if opts.BinDir != "" {
		suggestions = append(suggestions, fmt.Sprintf("place %s in %s", name, opts.BinDir))
	}
	if opts.AllowPath {
		suggestions = append(suggestions, fmt.Sprintf("install %s and ensure it is on PATH", name))
	}
	return "", fmt.Errorf("%w: %s (%s)", ErrNotFound, name, strings.Join(suggestions, " or "))
}

func findManaged(binDir, name string) string {
	exe := name
	if runtime.GOOS == "windows" {
		exe += ".exe"
	}
	if p := filepath.Join(binDir, exe); isFile(p) {
		return p
	}
	entries, err := os.ReadDir(binDir)
	if err != nil {
		return ""
	}
	// ReadDir sorts by name, so the last match is the highest version in
	// lexical order.
	found := ""
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), name+"@") {
			if p := filepath.Join(binDir, e.Name(), exe); isFile(p) {
				found = p
			}
		}
	}
	return found
}

func isFile(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}
