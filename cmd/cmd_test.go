package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	git "github.com/go-git/go-git/v5"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fulmenhq/leakhook/pkg/exitcode"
	"github.com/fulmenhq/leakhook/pkg/hooks"
)

// newTestRoot builds an isolated command tree writing to a buffer.
func newTestRoot(t *testing.T) (*cobra.Command, *bytes.Buffer) {
	t.Helper()
	root := newRootCommand()
	root.AddCommand(newRunCommand(), newDiscoverCommand(), newInspectCommand(), newTemplatesCommand(), newDoctorCommand())
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	return root, &out
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root, out := newTestRoot(t)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

// isolate points leakhook's home at a temp dir and returns a workspace dir.
func isolate(t *testing.T) string {
	t.Helper()
	t.Setenv("LEAKHOOK_HOME", t.TempDir())
	t.Setenv("NO_COLOR", "1")
	t.Setenv(envScannerBinForTest, "")
	// Keep the developer's global and system git config out of the run.
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("GIT_CONFIG_NOSYSTEM", "1")
	return t.TempDir()
}

const envScannerBinForTest = "LEAKHOOK_SCANNER_BIN"

func codeOf(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	if err != nil {
		return exitcode.GeneralError
	}
	return exitcode.Success
}

func initRepo(t *testing.T, dir string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	_, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	return dir
}

func writeTemplates(t *testing.T, dir string) {
	t.Helper()
	_, err := execute(t, "templates", "init", "--dir", dir)
	require.NoError(t, err)
}

func fakeScanner(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script binaries are unix only")
	}
	path := filepath.Join(t.TempDir(), "gitleaks")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\nexit 1\n"), 0o755)) // #nosec G306 -- test executable
	return path
}

func TestRun_ReconcilesRepositories(t *testing.T) {
	ws := isolate(t)
	tpl := filepath.Join(ws, "tpl")
	writeTemplates(t, tpl)

	src := filepath.Join(ws, "src")
	native := initRepo(t, filepath.Join(src, "native"))
	husky := initRepo(t, filepath.Join(src, "web"))
	require.NoError(t, os.MkdirAll(filepath.Join(husky, ".husky"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(husky, ".husky", "pre-commit"), []byte("echo hi\n"), 0o755))
	initRepo(t, filepath.Join(src, "web", "node_modules", "dep"))

	out, err := execute(t, "run", src, "--skip-preflight", "--template-dir", tpl)
	require.NoError(t, err, out)
	assert.Contains(t, out, "updated   Native")
	assert.Contains(t, out, "updated   Inject")
	assert.NotContains(t, out, "node_modules")
	assert.Contains(t, out, "│ Found      2")

	pre, err := os.ReadFile(filepath.Join(native, ".git", "hooks", "pre-commit"))
	require.NoError(t, err)
	assert.True(t, hooks.HasScannerReference(pre))
	entry, err := os.ReadFile(filepath.Join(husky, ".husky", "pre-commit"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(entry), "echo hi\n"))

	out, err = execute(t, "run", src, "--skip-preflight", "--template-dir", tpl)
	require.NoError(t, err)
	assert.Contains(t, out, "│ Updated    0")
	assert.Contains(t, out, "│ Unchanged  2")
}

func TestRun_DryRun(t *testing.T) {
	ws := isolate(t)
	tpl := filepath.Join(ws, "tpl")
	writeTemplates(t, tpl)
	repo := initRepo(t, filepath.Join(ws, "repo"))

	out, err := execute(t, "run", repo, "--skip-preflight", "--template-dir", tpl, "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "(dry run)")
	assert.NoFileExists(t, filepath.Join(repo, ".git", "hooks", "pre-commit"))
}

func TestRun_MissingTemplatesIsFatal(t *testing.T) {
	ws := isolate(t)
	repo := initRepo(t, filepath.Join(ws, "repo"))

	_, err := execute(t, "run", repo, "--skip-preflight", "--template-dir", filepath.Join(ws, "empty"))
	require.Error(t, err)
	assert.Equal(t, exitcode.MissingTemplate, codeOf(err))
	assert.True(t, errors.Is(err, hooks.ErrMissingTemplate))
	assert.NoFileExists(t, filepath.Join(repo, ".git", "hooks", "pre-commit"))
}

func TestRun_MissingScannerIsFatal(t *testing.T) {
	ws := isolate(t)
	tpl := filepath.Join(ws, "tpl")
	writeTemplates(t, tpl)
	repo := initRepo(t, filepath.Join(ws, "repo"))
	t.Setenv("PATH", t.TempDir())

	_, err := execute(t, "run", repo, "--template-dir", tpl)
	require.Error(t, err)
	assert.Equal(t, exitcode.ScannerNotFound, codeOf(err))
	assert.NoFileExists(t, filepath.Join(repo, ".git", "hooks", "pre-commit"))
}

func TestRun_ScannerFromEnvIsWrittenIntoHooks(t *testing.T) {
	ws := isolate(t)
	bin := fakeScanner(t)
	t.Setenv(envScannerBinForTest, bin)
	t.Setenv("PATH", t.TempDir())
	tpl := filepath.Join(ws, "tpl")
	writeTemplates(t, tpl)
	repo := initRepo(t, filepath.Join(ws, "repo"))

	_, err := execute(t, "run", repo, "--template-dir", tpl)
	require.NoError(t, err)
	pre, err := os.ReadFile(filepath.Join(repo, ".git", "hooks", "pre-commit"))
	require.NoError(t, err)
	assert.Contains(t, string(pre), "scanner="+hooks.ShellQuote(bin)+"\n")
	assert.Contains(t, string(pre), `"$scanner" protect --staged --redact || exit 1`)
}

func TestRun_InstalledHooksRunScannerFromSpacedPath(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script binaries are unix only")
	}
	ws := isolate(t)
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	dir := filepath.Join(t.TempDir(), "John Doe", "bin")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	bin := filepath.Join(dir, "gitleaks")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\ntouch \"$(dirname \"$0\")/ran\"\nexit 1\n"), 0o755)) // #nosec G306 -- test executable
	t.Setenv(envScannerBinForTest, bin)
	tpl := filepath.Join(ws, "tpl")
	writeTemplates(t, tpl)
	repo := initRepo(t, filepath.Join(ws, "repo"))

	_, err = execute(t, "run", repo, "--template-dir", tpl)
	require.NoError(t, err)

	hook := filepath.Join(repo, ".git", "hooks", "pre-commit")
	out, err := exec.Command(sh, hook).CombinedOutput() // #nosec G204 -- installed test hook
	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr, string(out))
	assert.Equal(t, 1, exitErr.ExitCode())
	assert.FileExists(t, filepath.Join(dir, "ran"), "scanner must be invoked, not reported missing")
}

func TestRun_JSONSummary(t *testing.T) {
	ws := isolate(t)
	tpl := filepath.Join(ws, "tpl")
	writeTemplates(t, tpl)
	repo := initRepo(t, filepath.Join(ws, "repo"))

	root, _ := newTestRoot(t)
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs([]string{"run", repo, "--skip-preflight", "--template-dir", tpl, "--format", "json"})
	require.NoError(t, root.Execute())

	var decoded struct {
		RunID  string `json:"run_id"`
		Counts struct {
			Found   int `json:"found"`
			Updated int `json:"updated"`
		} `json:"counts"`
	}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &decoded), stdout.String())
	assert.NotEmpty(t, decoded.RunID)
	assert.Equal(t, 1, decoded.Counts.Found)
	assert.Equal(t, 1, decoded.Counts.Updated)
	assert.Contains(t, stderr.String(), "updated")
}

func TestRun_FailedRepositorySetsExitCode(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced")
	}
	ws := isolate(t)
	tpl := filepath.Join(ws, "tpl")
	writeTemplates(t, tpl)
	src := filepath.Join(ws, "src")
	ok := initRepo(t, filepath.Join(src, "ok"))
	locked := initRepo(t, filepath.Join(src, "locked"))
	hooksDir := filepath.Join(locked, ".git", "hooks")
	require.NoError(t, os.MkdirAll(hooksDir, 0o755))
	require.NoError(t, os.Chmod(hooksDir, 0o555))
	t.Cleanup(func() { _ = os.Chmod(hooksDir, 0o755) })

	out, err := execute(t, "run", src, "--skip-preflight", "--template-dir", tpl)
	require.Error(t, err)
	assert.Equal(t, exitcode.ReconcileFailed, codeOf(err))
	assert.Contains(t, out, "Failed repositories:")
	assert.FileExists(t, filepath.Join(ok, ".git", "hooks", "pre-commit"), "one failure does not stop the run")
}

func TestDiscover(t *testing.T) {
	ws := isolate(t)
	a := initRepo(t, filepath.Join(ws, "a"))
	b := initRepo(t, filepath.Join(ws, "deep", "b"))
	initRepo(t, filepath.Join(ws, "vendor", "c"))

	out, err := execute(t, "discover", ws)
	require.NoError(t, err)
	assert.Equal(t, a+"\n"+b+"\n", out)

	out, err = execute(t, "discover", ws, "--max-depth", "1", "--format", "json")
	require.NoError(t, err)
	var repos []struct {
		Path string `json:"path"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &repos))
	require.Len(t, repos, 1)
	assert.Equal(t, a, repos[0].Path)
}

func TestDiscover_ExcludeFlag(t *testing.T) {
	ws := isolate(t)
	a := initRepo(t, filepath.Join(ws, "keep"))
	initRepo(t, filepath.Join(ws, "skip", "x"))

	out, err := execute(t, "discover", ws, "--exclude", "**/skip")
	require.NoError(t, err)
	assert.Equal(t, a+"\n", out)
}

func TestInspect(t *testing.T) {
	ws := isolate(t)
	repo := initRepo(t, filepath.Join(ws, "web"))
	entry := filepath.Join(repo, ".husky", "pre-commit")
	require.NoError(t, os.MkdirAll(filepath.Dir(entry), 0o755))
	require.NoError(t, os.WriteFile(entry, []byte("echo hi\n"), 0o755))

	// No templates written: inspection falls back to the built-in ones.
	out, err := execute(t, "inspect", repo)
	require.NoError(t, err)
	assert.Contains(t, out, "manager-needs-injection")
	assert.Contains(t, out, "inject scanner block")

	content, err := os.ReadFile(entry)
	require.NoError(t, err)
	assert.Equal(t, "echo hi\n", string(content))
}

func TestInspect_NotARepository(t *testing.T) {
	ws := isolate(t)
	_, err := execute(t, "inspect", ws)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a git repository")
}

func TestTemplatesInit(t *testing.T) {
	ws := isolate(t)
	dir := filepath.Join(ws, "tpl")

	out, err := execute(t, "templates", "init", "--dir", dir)
	require.NoError(t, err)
	for _, name := range []string{hooks.PreCommitTemplate, hooks.CommitMsgTemplate, hooks.BlockTemplate} {
		assert.FileExists(t, filepath.Join(dir, name))
		assert.Contains(t, out, name)
	}

	out, err = execute(t, "templates", "init", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "already present")

	out, err = execute(t, "templates", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "==> pre-commit.hbs <==")
}

func TestDoctor(t *testing.T) {
	ws := isolate(t)
	bin := fakeScanner(t)
	t.Setenv(envScannerBinForTest, bin)
	tpl := filepath.Join(ws, "tpl")

	out, err := execute(t, "doctor", "--template-dir", tpl)
	require.Error(t, err)
	assert.Equal(t, exitcode.MissingTemplate, codeOf(err))
	assert.Contains(t, out, "✅ Scanner: "+bin)
	assert.Contains(t, out, "❌ Templates")

	writeTemplates(t, tpl)
	out, err = execute(t, "doctor", "--template-dir", tpl, "--verify")
	require.NoError(t, err, out)
	assert.Contains(t, out, "✅ Templates")
	assert.Contains(t, out, "✅ Fixture verification")
}

func TestDoctor_BadScannerConfig(t *testing.T) {
	ws := isolate(t)
	t.Setenv(envScannerBinForTest, fakeScanner(t))
	tpl := filepath.Join(ws, "tpl")
	writeTemplates(t, tpl)
	cfgPath := filepath.Join(ws, "gitleaks.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("[[rules]\n"), 0o600))

	out, err := execute(t, "doctor", "--template-dir", tpl, "--scanner-config", cfgPath)
	require.Error(t, err)
	assert.Equal(t, exitcode.ConfigError, codeOf(err))
	assert.Contains(t, out, "❌ Scanner config")
}

func TestVersion(t *testing.T) {
	root, out := newTestRoot(t)
	root.AddCommand(newVersionCommand())
	root.SetArgs([]string{"version", "--extended"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "leakhook dev")
	assert.Contains(t, out.String(), "Go version: "+runtime.Version())
}

func TestInitializeLogger(t *testing.T) {
	for _, level := range []string{"trace", "debug", "info", "warn", "error", "invalid"} {
		cmd := &cobra.Command{}
		cmd.Flags().String("log-level", level, "")
		cmd.Flags().Bool("json", level == "debug", "")
		cmd.Flags().Bool("no-color", true, "")
		cmd.Flags().Bool("dry-run", true, "")

		// This should not panic
		initializeLogger(cmd)
	}
}

func TestHandleError(t *testing.T) {
	assert.Equal(t, exitcode.GeneralError, handleError(errors.New("boom")))
	assert.Equal(t, exitcode.ReconcileFailed, handleError(withCode(exitcode.ReconcileFailed, errors.New("1 failed"))))
	assert.Equal(t, "Interrupted", withCode(exitcode.Interrupted, nil).Error())
}

func TestFSExitCode(t *testing.T) {
	denied := &fs.PathError{Op: "mkdir", Path: "/root/hooks", Err: fs.ErrPermission}
	assert.Equal(t, exitcode.PermissionError, fsExitCode(denied))
	assert.Equal(t, exitcode.FileSystemError, fsExitCode(errors.New("disk full")))
}

func TestNotStarted(t *testing.T) {
	sum := &hooks.Summary{}
	sum.Add(hooks.Result{Repo: "/src/a", Outcome: hooks.OutcomeUpdated})
	sum.Add(hooks.Result{Repo: "/src/gone", Outcome: hooks.OutcomeSkipped, Err: errors.New("enter /src/gone: no such file")})
	sum.Add(hooks.Result{Repo: "/src/b", Outcome: hooks.OutcomeSkipped, Err: fmt.Errorf("not started: %w", context.Canceled)})
	sum.Add(hooks.Result{Repo: "/src/c", Outcome: hooks.OutcomeSkipped, Err: fmt.Errorf("not started: %w", context.Canceled)})

	assert.Equal(t, 2, notStarted(sum, context.Canceled))
}
