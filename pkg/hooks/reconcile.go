// Package hooks classifies the hook setup of a git repository and brings it to
// a state where every commit runs the secret scanner.
//
// Repositories managed by husky get the scanner block injected into (or a new)
// .husky/pre-commit. Everything else gets native pre-commit and commit-msg
// hooks, with any foreign hook backed up first. A core.hooksPath pointing at a
// missing directory silently disables all hooks; it is unset and native hooks
// are installed.
package hooks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/fulmenhq/leakhook/internal/gitctx"
	"github.com/fulmenhq/leakhook/pkg/logger"
	"github.com/fulmenhq/leakhook/pkg/safeio"
)

// DefaultManagerDir is the hook manager marker directory.
const DefaultManagerDir = ".husky"

// helperFiles are the husky runtime helpers, relative to the manager dir.
// v4 to v8 ship _/husky.sh; v9 ships _/h.
var helperFiles = []string{
	filepath.Join("_", "husky.sh"),
	filepath.Join("_", "h"),
}

const (
	hookPerm      = 0o755
	dirPerm       = 0o755
	execPermBits  = 0o111
	backupTimeFmt = "20060102T150405"
	entryShebang  = "#!/usr/bin/env sh\n"
)

// Git reads and repairs hook-related repository configuration. HooksPath
// returns the effective value across local, global and system scopes.
type Git interface {
	HooksPath(repo string) (gitctx.Setting, error)
	UnsetHooksPath(repo string) error
	SetHooksPath(repo, value string) error
	DefaultHooksDir(repo string) (string, error)
}

// Options configures a Reconciler.
type Options struct {
	Templates *TemplateSet
	// ManagerDir is the hook manager directory relative to the repository.
	ManagerDir string
	DryRun     bool
	// Clock stamps backup names. Defaults to time.Now.
	Clock func() time.Time
	// Git defaults to the on-disk repository config.
	Git Git
	// OnResult is called after each repository in ReconcileAll.
	OnResult func(Result)
}

// Reconciler applies hook strategies to repositories.
type Reconciler struct {
	templates  *TemplateSet
	managerDir string
	dryRun     bool
	clock      func() time.Time
	git        Git
	onResult   func(Result)
}

// NewReconciler creates a Reconciler.
func NewReconciler(opts Options) *Reconciler {
	r := &Reconciler{
		templates:  opts.Templates,
		managerDir: opts.ManagerDir,
		dryRun:     opts.DryRun,
		clock:      opts.Clock,
		git:        opts.Git,
		onResult:   opts.OnResult,
	}
	if r.managerDir == "" {
		r.managerDir = DefaultManagerDir
	}
	if r.clock == nil {
		r.clock = time.Now
	}
	if r.git == nil {
		r.git = gitctx.Local{}
	}
	return r
}

// layout is the hook-related paths of one repository.
type layout struct {
	repo         string
	hooksPath    string // resolved core.hooksPath, "" when unset
	hooksScope   gitctx.Scope
	defaultHooks string
	managerDir   string
	entry        string
}

// nativeDir returns where native hooks are installed: an existing custom
// core.hooksPath target, else the git dir's hooks directory.
func (l layout) nativeDir() string {
	if l.hooksPath != "" {
		return l.hooksPath
	}
	return l.defaultHooks
}

func (r *Reconciler) layout(repo string) (layout, error) {
	l := layout{
		repo:       repo,
		managerDir: filepath.Join(repo, r.managerDir),
	}
	l.entry = filepath.Join(l.managerDir, PreCommit)

	def, err := r.git.DefaultHooksDir(repo)
	if err != nil {
		return l, &Error{Kind: KindStructuralAnomaly, Op: "resolve git dir", Path: repo, Err: err}
	}
	l.defaultHooks = filepath.Clean(def)

	setting, err := r.git.HooksPath(repo)
	if err != nil {
		return l, &Error{Kind: KindUnknown, Op: "read core.hooksPath", Path: repo, Err: err}
	}
	l.setHooksPath(setting)
	return l, nil
}

func (l *layout) setHooksPath(s gitctx.Setting) {
	l.hooksPath, l.hooksScope = "", ""
	if s.Set() {
		l.hooksPath = gitctx.ResolveHooksPath(l.repo, s.Value)
		l.hooksScope = s.Scope
	}
}

// bypassed reports whether core.hooksPath redirects hooks to a directory
// that does not exist.
func (l layout) bypassed() bool {
	if l.hooksPath == "" || l.hooksPath == l.defaultHooks {
		return false
	}
	_, err := os.Stat(l.hooksPath)
	return errors.Is(err, fs.ErrNotExist)
}

// defaultHooksValue is the core.hooksPath value naming the default hooks
// directory, relative to the worktree when it lies inside it.
func (l layout) defaultHooksValue() string {
	if rel, err := filepath.Rel(l.repo, l.defaultHooks); err == nil && rel != ".." &&
		!strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.ToSlash(rel)
	}
	return filepath.ToSlash(l.defaultHooks)
}

// Classify derives the hook state of repo. The first matching condition wins.
func (r *Reconciler) Classify(repo string) (State, error) {
	l, err := r.layout(repo)
	if err != nil {
		return StateNative, err
	}
	return r.classify(l)
}

func (r *Reconciler) classify(l layout) (State, error) {
	if l.bypassed() {
		return StateBypass, nil
	}

	info, err := os.Stat(l.managerDir)
	switch {
	case err == nil && info.IsDir():
	case err == nil, errors.Is(err, fs.ErrNotExist):
		return StateNative, nil
	default:
		return StateNative, fsError("inspect", l.managerDir, err)
	}

	content, err := os.ReadFile(l.entry) // #nosec G304 -- fixed name under repository
	switch {
	case err == nil:
		if HasScannerReference(content) {
			return StateManagerConfigured, nil
		}
		return StateManagerNeedsInjection, nil
	case !errors.Is(err, fs.ErrNotExist):
		return StateNative, fsError("read", l.entry, err)
	}

	for _, h := range helperFiles {
		if _, err := os.Stat(filepath.Join(l.managerDir, h)); err == nil {
			return StateManagerNeedsEntry, nil
		}
	}
	return StateManagerBroken, nil
}

// Reconcile classifies repo and applies the matching strategy. Errors are
// recorded in the Result; Reconcile never panics on filesystem state.
func (r *Reconciler) Reconcile(ctx context.Context, repo string) Result {
	res := Result{Repo: repo, DryRun: r.dryRun}

	if err := ctx.Err(); err != nil {
		res.Outcome = OutcomeSkipped
		res.Err = err
		return res
	}
	if err := enter(repo); err != nil {
		res.Outcome = OutcomeSkipped
		res.Err = fsError("enter", repo, err)
		return res
	}
	if r.templates == nil {
		return r.fail(res, &Error{Kind: KindMissingTemplate, Op: "reconcile", Path: repo, Err: ErrMissingTemplate})
	}

	l, err := r.layout(repo)
	if err != nil {
		return r.fail(res, err)
	}
	state, err := r.classify(l)
	if err != nil {
		return r.fail(res, err)
	}
	res.State = state
	res.Strategy = state.Strategy()
	res.HooksPath = l.hooksPath
	res.HooksPathScope = l.hooksScope

	var changed bool
	switch state {
	case StateManagerConfigured:
		logger.Debug("hook manager already runs scanner", logger.String("repo", repo))
	case StateManagerNeedsInjection:
		changed, err = r.inject(l, &res)
	case StateManagerNeedsEntry:
		changed, err = r.createEntry(l, &res)
	case StateBypass:
		if err = r.repairBypass(&l, &res); err == nil {
			_, err = r.installNative(l.nativeDir(), &res)
			changed = true
		}
	case StateManagerBroken:
		// Husky may still run its own entry points at commit time; the native
		// hooks are installed regardless.
		logger.Debug("hook manager directory has no runtime helper, using native hooks",
			logger.String("repo", repo), logger.String("manager_dir", l.managerDir))
		changed, err = r.installNative(l.nativeDir(), &res)
	default:
		changed, err = r.installNative(l.nativeDir(), &res)
	}
	if err != nil {
		return r.fail(res, err)
	}

	res.Outcome = OutcomeUnchanged
	if changed {
		res.Outcome = OutcomeUpdated
	}
	return res
}

// ReconcileAll reconciles repos in order. Cancellation is checked between
// repositories; those not yet started are left untouched and recorded as
// skipped with an error wrapping ctx.Err().
func (r *Reconciler) ReconcileAll(ctx context.Context, repos []string) *Summary {
	sum := &Summary{}
	interrupted := false
	for i, repo := range repos {
		var res Result
		if err := ctx.Err(); err != nil {
			if !interrupted {
				logger.Warn("reconciliation interrupted", logger.Int("remaining", len(repos)-i))
				interrupted = true
			}
			res = Result{Repo: repo, Outcome: OutcomeSkipped, DryRun: r.dryRun, Err: fmt.Errorf("not started: %w", err)}
		} else {
			res = r.Reconcile(ctx, repo)
		}
		sum.Add(res)
		if r.onResult != nil {
			r.onResult(res)
		}
	}
	return sum
}

func (r *Reconciler) fail(res Result, err error) Result {
	res.Outcome = OutcomeFailed
	res.Err = err
	logger.Debug("reconciliation failed", logger.String("repo", res.Repo), logger.Err(err))
	return res
}

// repairBypass makes hooks run again. A local value is unset; if that exposes
// an inherited value that is also missing, or the missing value came from the
// global or system config in the first place, a local core.hooksPath naming
// the default hooks directory overrides it for this repository only.
func (r *Reconciler) repairBypass(l *layout, res *Result) error {
	logger.Warn("core.hooksPath points to a missing directory; no hooks run in this repository",
		logger.String("repo", l.repo), logger.String("hooks_path", l.hooksPath),
		logger.String("scope", string(l.hooksScope)))

	if l.hooksScope == gitctx.ScopeLocal {
		res.action("unset core.hooksPath (%s does not exist)", l.hooksPath)
		if r.dryRun {
			l.setHooksPath(gitctx.Setting{})
			return nil
		}
		if err := r.git.UnsetHooksPath(l.repo); err != nil {
			return &Error{Kind: KindBypassMisconfiguration, Op: "unset core.hooksPath", Path: l.repo, Err: err}
		}
		inherited, err := r.git.HooksPath(l.repo)
		if err != nil {
			return &Error{Kind: KindBypassMisconfiguration, Op: "read core.hooksPath", Path: l.repo, Err: err}
		}
		l.setHooksPath(inherited)
		if !l.bypassed() {
			return nil
		}
		logger.Warn("inherited core.hooksPath also points to a missing directory",
			logger.String("repo", l.repo), logger.String("hooks_path", l.hooksPath),
			logger.String("scope", string(l.hooksScope)))
	}

	value := l.defaultHooksValue()
	res.action("set local core.hooksPath to %s (%s core.hooksPath %s does not exist)", value, l.hooksScope, l.hooksPath)
	if !r.dryRun {
		if err := r.git.SetHooksPath(l.repo, value); err != nil {
			return &Error{Kind: KindBypassMisconfiguration, Op: "set core.hooksPath", Path: l.repo, Err: err}
		}
	}
	l.hooksPath, l.hooksScope = l.defaultHooks, gitctx.ScopeLocal
	return nil
}

func (r *Reconciler) inject(l layout, res *Result) (bool, error) {
	content, err := safeio.ReadFileContained(l.repo, l.entry)
	if err != nil {
		return false, fsError("read", l.entry, err)
	}
	updated := InjectBlock(content, r.templates.Block)
	if len(updated) == len(content) {
		return false, nil
	}
	res.action("inject scanner block into %s", l.entry)
	if r.dryRun {
		return true, nil
	}
	if err := safeio.WriteFilePreservePerms(l.entry, updated); err != nil {
		return false, fsError("write", l.entry, err)
	}
	return true, nil
}

func (r *Reconciler) createEntry(l layout, res *Result) (bool, error) {
	res.action("create %s", l.entry)
	if r.dryRun {
		return true, nil
	}
	body := append([]byte(entryShebang), r.templates.Block...)
	if err := safeio.WriteFileAtomic(l.entry, body, hookPerm); err != nil {
		return false, fsError("write", l.entry, err)
	}
	return true, nil
}

// installNative ensures pre-commit and commit-msg in dir run the scanner.
func (r *Reconciler) installNative(dir string, res *Result) (bool, error) {
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		res.action("create %s", dir)
		if !r.dryRun {
			if err := os.MkdirAll(dir, dirPerm); err != nil {
				return false, fsError("create", dir, err)
			}
		}
	}

	changed := false
	for _, name := range HookNames {
		c, err := r.installHook(filepath.Join(dir, name), r.templates.Body(name), res)
		if err != nil {
			return changed, err
		}
		changed = changed || c
	}
	return changed, nil
}

func (r *Reconciler) installHook(path string, body []byte, res *Result) (bool, error) {
	existing, err := os.ReadFile(path) // #nosec G304 -- fixed name under hooks dir
	switch {
	case err == nil && HasScannerReference(existing):
		info, err := os.Stat(path)
		if err != nil {
			return false, fsError("stat", path, err)
		}
		// Windows reports no execute bits; git there runs hooks regardless.
		if runtime.GOOS == "windows" || info.Mode().Perm()&execPermBits != 0 {
			return false, nil
		}
		res.action("mark %s executable", path)
		if r.dryRun {
			return true, nil
		}
		if err := os.Chmod(path, info.Mode().Perm()|execPermBits); err != nil {
			return false, fsError("chmod", path, err)
		}
		return true, nil

	case err == nil:
		backup := r.backupPath(path)
		res.action("back up %s to %s", path, filepath.Base(backup))
		if !r.dryRun {
			if err := os.Rename(path, backup); err != nil {
				return false, fsError("back up", path, err)
			}
		}

	case errors.Is(err, fs.ErrNotExist):

	default:
		return false, fsError("read", path, err)
	}

	res.action("write %s", path)
	if r.dryRun {
		return true, nil
	}
	if err := safeio.WriteFileAtomic(path, body, hookPerm); err != nil {
		return false, fsError("write", path, err)
	}
	return true, nil
}

// backupPath returns an unused "<hook>.backup.<timestamp>" name.
func (r *Reconciler) backupPath(path string) string {
	base := path + ".backup." + r.clock().Format(backupTimeFmt)
	candidate := base
	for i := 1; ; i++ {
		if _, err := os.Lstat(candidate); errors.Is(err, fs.ErrNotExist) {
			return candidate
		}
		candidate = fmt.Sprintf("%s.%d", base, i)
	}
}

// enter fails when the repository directory cannot be listed.
func enter(repo string) error {
	f, err := os.Open(repo) // #nosec G304 -- discovered repository path
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	if _, err := f.Readdirnames(1); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
