// Package gitctx answers the handful of git questions hook reconciliation
// needs: where a repository keeps its hooks and whether core.hooksPath
// redirects them. go-git is preferred; the git CLI is the fallback for
// layouts go-git cannot open.
package gitctx

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	git "github.com/go-git/go-git/v5"
	format "github.com/go-git/go-git/v5/plumbing/format/config"

	"github.com/fulmenhq/leakhook/pkg/logger"
)

const (
	coreSection      = "core"
	hooksPathKey     = "hooksPath"
	systemConfigPath = "/etc/gitconfig"
)

// ErrNotRepository is returned when a path has no .git entry.
var ErrNotRepository = errors.New("not a git repository")

// IsRepo reports whether path directly contains a .git entry.
func IsRepo(path string) bool {
	_, err := os.Lstat(filepath.Join(path, ".git"))
	return err == nil
}

// GitDir returns the repository's git directory, following the
// "gitdir: <path>" pointer file used by worktrees and submodules.
func GitDir(repo string) (string, error) {
	dotGit := filepath.Join(repo, ".git")
	info, err := os.Stat(dotGit)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%s: %w", repo, ErrNotRepository)
		}
		return "", err
	}
	if info.IsDir() {
		return dotGit, nil
	}

	data, err := os.ReadFile(dotGit) // #nosec G304 -- fixed name under repo
	if err != nil {
		return "", err
	}
	line := strings.TrimSpace(firstLine(data))
	if !strings.HasPrefix(line, "gitdir:") {
		return "", fmt.Errorf("%s: malformed .git file", repo)
	}
	target := strings.TrimSpace(strings.TrimPrefix(line, "gitdir:"))
	if !filepath.IsAbs(target) {
		target = filepath.Join(repo, target)
	}
	return filepath.Clean(target), nil
}

// CommonDir returns the directory shared by all worktrees of a repository.
// For a plain repository it is the git directory itself.
func CommonDir(repo string) (string, error) {
	gitDir, err := GitDir(repo)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(filepath.Join(gitDir, "commondir")) // #nosec G304 -- fixed name under git dir
	if err != nil {
		return gitDir, nil
	}
	common := strings.TrimSpace(firstLine(data))
	if common == "" {
		return gitDir, nil
	}
	if !filepath.IsAbs(common) {
		common = filepath.Join(gitDir, common)
	}
	return filepath.Clean(common), nil
}

// DefaultHooksDir returns the hook directory git uses when core.hooksPath is unset.
func DefaultHooksDir(repo string) (string, error) {
	common, err := CommonDir(repo)
	if err != nil {
		return "", err
	}
	return filepath.Join(common, "hooks"), nil
}

// Scope is the git config level a value was read from.
type Scope string

const (
	ScopeLocal  Scope = "local"
	ScopeGlobal Scope = "global"
	ScopeSystem Scope = "system"
)

// Setting is a config value together with the scope that supplied it.
type Setting struct {
	Value string
	Scope Scope
}

// Set reports whether any scope supplied a non-empty value.
func (s Setting) Set() bool { return s.Value != "" }

// HooksPath returns the effective core.hooksPath of repo: the repository-local
// value, else the global one, else the system one. The git CLI is used when
// go-git cannot open the repository.
func HooksPath(repo string) (Setting, error) {
	local, err := hooksPathGoGit(repo)
	if err != nil {
		logger.Debug("go-git config read failed, trying git CLI", logger.String("repo", repo), logger.Err(err))
		return hooksPathCLI(repo)
	}
	if local.Set() {
		return local, nil
	}
	for _, scope := range []Scope{ScopeGlobal, ScopeSystem} {
		value, err := hooksPathFiles(scopeFiles(scope))
		if err != nil {
			return Setting{}, fmt.Errorf("read %s git config: %w", scope, err)
		}
		if value != "" {
			return Setting{Value: value, Scope: scope}, nil
		}
	}
	return Setting{}, nil
}

func hooksPathGoGit(repo string) (Setting, error) {
	r, err := git.PlainOpenWithOptions(repo, &git.PlainOpenOptions{EnableDotGitCommonDir: true})
	if err != nil {
		return Setting{}, err
	}
	cfg, err := r.Config()
	if err != nil {
		return Setting{}, err
	}
	section := cfg.Raw.Section(coreSection)
	if !section.HasOption(hooksPathKey) {
		return Setting{}, nil
	}
	return Setting{Value: strings.TrimSpace(section.Options.Get(hooksPathKey)), Scope: ScopeLocal}, nil
}

// scopeFiles lists the config files git reads for scope, lowest precedence
// first. GIT_CONFIG_GLOBAL, GIT_CONFIG_SYSTEM and GIT_CONFIG_NOSYSTEM are
// honoured as git does.
func scopeFiles(scope Scope) []string {
	switch scope {
	case ScopeGlobal:
		if f, ok := os.LookupEnv("GIT_CONFIG_GLOBAL"); ok {
			return []string{f}
		}
		var files []string
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			files = append(files, filepath.Join(xdg, "git", "config"))
		} else if home, err := os.UserHomeDir(); err == nil {
			files = append(files, filepath.Join(home, ".config", "git", "config"))
		}
		if home, err := os.UserHomeDir(); err == nil {
			files = append(files, filepath.Join(home, ".gitconfig"))
		}
		return files
	case ScopeSystem:
		if noSystem, _ := strconv.ParseBool(os.Getenv("GIT_CONFIG_NOSYSTEM")); noSystem {
			return nil
		}
		if f, ok := os.LookupEnv("GIT_CONFIG_SYSTEM"); ok {
			return []string{f}
		}
		return []string{systemConfigPath}
	}
	return nil
}

// hooksPathFiles returns the last core.hooksPath found in files.
func hooksPathFiles(files []string) (string, error) {
	var value string
	for _, file := range files {
		if file == "" {
			continue
		}
		f, err := os.Open(file) // #nosec G304 -- git config locations
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return "", err
		}
		raw := format.New()
		err = format.NewDecoder(f).Decode(raw)
		_ = f.Close()
		if err != nil {
			return "", fmt.Errorf("%s: %w", file, err)
		}
		section := raw.Section(coreSection)
		if section.HasOption(hooksPathKey) {
			value = strings.TrimSpace(section.Options.Get(hooksPathKey))
		}
	}
	return value, nil
}

func hooksPathCLI(repo string) (Setting, error) {
	if _, err := exec.LookPath("git"); err != nil {
		return Setting{}, fmt.Errorf("cannot read git config for %s: git CLI unavailable", repo)
	}
	out, err := runGitBytes(repo, "config", "--show-scope", "--get", "core.hooksPath")
	if err != nil {
		var exitErr *exec.ExitError
		// git config exits 1 when the key is absent.
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return Setting{}, nil
		}
		return Setting{}, fmt.Errorf("git config --get core.hooksPath: %w", err)
	}
	return parseScoped(string(out)), nil
}

// parseScoped parses "<scope>\t<value>" as printed by git config --show-scope.
func parseScoped(out string) Setting {
	line := strings.TrimRight(firstLine([]byte(out)), "\r")
	scope, value, ok := strings.Cut(line, "\t")
	if !ok {
		return Setting{Value: strings.TrimSpace(line), Scope: ScopeLocal}
	}
	value = strings.TrimSpace(value)
	switch Scope(scope) {
	case ScopeGlobal, ScopeSystem:
		return Setting{Value: value, Scope: Scope(scope)}
	}
	// worktree and command scopes behave like local ones for this repository.
	return Setting{Value: value, Scope: ScopeLocal}
}

// ResolveHooksPath turns a core.hooksPath value into an absolute path. Git
// runs hooks from the worktree root, so relative values resolve against repo.
func ResolveHooksPath(repo, value string) string {
	if value == "~" || strings.HasPrefix(value, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			value = filepath.Join(home, strings.TrimPrefix(value, "~"))
		}
	}
	if !filepath.IsAbs(value) {
		value = filepath.Join(repo, value)
	}
	return filepath.Clean(value)
}

// UnsetHooksPath removes core.hooksPath from the repository-local config.
func UnsetHooksPath(repo string) error {
	err := unsetGoGit(repo)
	if err == nil {
		return nil
	}
	logger.Debug("go-git config write failed, trying git CLI", logger.String("repo", repo), logger.Err(err))

	if _, lookErr := exec.LookPath("git"); lookErr != nil {
		return fmt.Errorf("unset core.hooksPath in %s: %w", repo, err)
	}
	if out, cliErr := runGitCombined(repo, "config", "--local", "--unset", "core.hooksPath"); cliErr != nil {
		var exitErr *exec.ExitError
		// Exit 5 means the key was already absent.
		if errors.As(cliErr, &exitErr) && exitErr.ExitCode() == 5 {
			return nil
		}
		return fmt.Errorf("git config --unset core.hooksPath failed: %w (output: %s)", cliErr, strings.TrimSpace(string(out)))
	}
	return nil
}

func unsetGoGit(repo string) error {
	r, err := git.PlainOpenWithOptions(repo, &git.PlainOpenOptions{EnableDotGitCommonDir: true})
	if err != nil {
		return err
	}
	cfg, err := r.Config()
	if err != nil {
		return err
	}
	section := cfg.Raw.Section(coreSection)
	if !section.HasOption(hooksPathKey) {
		return nil
	}
	section.RemoveOption(hooksPathKey)
	return r.Storer.SetConfig(cfg)
}

// SetHooksPath writes core.hooksPath to the repository-local config.
func SetHooksPath(repo, value string) error {
	err := setGoGit(repo, value)
	if err == nil {
		return nil
	}
	logger.Debug("go-git config write failed, trying git CLI", logger.String("repo", repo), logger.Err(err))

	if _, lookErr := exec.LookPath("git"); lookErr != nil {
		return fmt.Errorf("set core.hooksPath in %s: %w", repo, err)
	}
	if out, cliErr := runGitCombined(repo, "config", "--local", "core.hooksPath", value); cliErr != nil {
		return fmt.Errorf("git config core.hooksPath failed: %w (output: %s)", cliErr, strings.TrimSpace(string(out)))
	}
	return nil
}

func setGoGit(repo, value string) error {
	r, err := git.PlainOpenWithOptions(repo, &git.PlainOpenOptions{EnableDotGitCommonDir: true})
	if err != nil {
		return err
	}
	cfg, err := r.Config()
	if err != nil {
		return err
	}
	cfg.Raw.Section(coreSection).SetOption(hooksPathKey, value)
	return r.Storer.SetConfig(cfg)
}

// Local implements hook-path lookups against the on-disk repository config.
type Local struct{}

func (Local) HooksPath(repo string) (Setting, error)      { return HooksPath(repo) }
func (Local) UnsetHooksPath(repo string) error            { return UnsetHooksPath(repo) }
func (Local) SetHooksPath(repo, value string) error       { return SetHooksPath(repo, value) }
func (Local) DefaultHooksDir(repo string) (string, error) { return DefaultHooksDir(repo) }

func firstLine(data []byte) string {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	if scanner.Scan() {
		return scanner.Text()
	}
	return ""
}

func runGitBytes(dir string, args ...string) ([]byte, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	return cmd.Output()
}

func runGitCombined(dir string, args ...string) ([]byte, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}
