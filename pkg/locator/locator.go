// Package locator discovers git repositories beneath one or more roots.
//
// A directory is a repository when it directly contains a .git entry
// (directory, or pointer file for worktrees and submodules). Traversal never
// enters a .git directory, never follows symlinks, and prunes excluded
// directories before listing them, so dependency caches and system trees of
// arbitrary size cost a single name comparison.
package locator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	"github.com/fulmenhq/leakhook/pkg/logger"
)

// Repository is a discovered git repository.
type Repository struct {
	Path  string `json:"path" yaml:"path"`
	Depth int    `json:"depth" yaml:"depth"`
}

// Options configures a Locator.
type Options struct {
	// MaxDepth bounds how many levels below a root are examined for a .git
	// entry. Zero means unbounded.
	MaxDepth int
	// ExcludeNames replaces the built-in directory-name exclusions when non-nil.
	ExcludeNames []string
	// ExtraExcludeNames are added to the name exclusions.
	ExtraExcludeNames []string
	// ExcludeGlobs replaces the built-in path globs when non-nil. Patterns
	// use doublestar syntax against absolute, slash-separated paths.
	ExcludeGlobs []string
	// ExtraExcludeGlobs are added to the glob exclusions.
	ExtraExcludeGlobs []string
	// Concurrency bounds how many roots LocateAll walks at once.
	Concurrency int
	// OnRepository is called once per repository as it is found. LocateAll
	// serialises calls.
	OnRepository func(Repository)
}

// Locator walks directory trees looking for repositories.
type Locator struct {
	maxDepth    int
	concurrency int
	names       map[string]struct{}
	globs       []string
	onRepo      func(Repository)
}

// New creates a Locator. Invalid glob patterns are dropped with a warning.
func New(opts Options) *Locator {
	names := opts.ExcludeNames
	if names == nil {
		names = DefaultExcludeNames()
	}
	globs := opts.ExcludeGlobs
	if globs == nil {
		globs = DefaultExcludeGlobs()
	}

	l := &Locator{
		maxDepth:    opts.MaxDepth,
		concurrency: opts.Concurrency,
		names:       make(map[string]struct{}, len(names)+len(opts.ExtraExcludeNames)),
		onRepo:      opts.OnRepository,
	}
	if l.maxDepth < 0 {
		l.maxDepth = 0
	}
	if l.concurrency <= 0 {
		l.concurrency = 4
	}
	for _, n := range append(append([]string{}, names...), opts.ExtraExcludeNames...) {
		l.names[n] = struct{}{}
	}
	for _, g := range append(append([]string{}, globs...), opts.ExtraExcludeGlobs...) {
		if !doublestar.ValidatePattern(g) {
			logger.Warn("ignoring invalid exclude pattern", logger.String("pattern", g))
			continue
		}
		l.globs = append(l.globs, g)
	}
	return l
}

// Excluded reports whether the directory at path should be pruned.
func (l *Locator) Excluded(path string) bool {
	if _, ok := l.names[filepath.Base(path)]; ok {
		return true
	}
	slash := filepath.ToSlash(path)
	// "**/" patterns must also match absolute paths, whose first segment is empty.
	rel := strings.TrimPrefix(slash, "/")
	for _, g := range l.globs {
		if ok, _ := doublestar.Match(g, slash); ok {
			return true
		}
		if strings.HasPrefix(g, "**") {
			if ok, _ := doublestar.Match(g, rel); ok {
				return true
			}
		}
	}
	return false
}

// Locate returns the repositories under root, sorted by path. An unreadable
// root is an error; unreadable directories below it are skipped.
func (l *Locator) Locate(ctx context.Context, root string) ([]Repository, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %s: %w", root, err)
	}
	abs = filepath.Clean(abs)

	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("root %s: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s: not a directory", abs)
	}

	w := &walk{locator: l, emit: l.onRepo}
	if err := w.dir(ctx, abs, 0); err != nil {
		return nil, err
	}
	return normalize(w.found), nil
}

// LocateAll walks every root (several at once) and merges the results into a
// single sorted, duplicate-free list. Roots that cannot be read are reported
// in the returned error without discarding repositories found elsewhere.
// Only context cancellation aborts the whole call.
func (l *Locator) LocateAll(ctx context.Context, roots []string) ([]Repository, error) {
	var (
		mu       sync.Mutex
		found    []Repository
		rootErrs []error
	)

	emit := func(r Repository) {
		if l.onRepo == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		l.onRepo(r)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)

	for _, root := range roots {
		g.Go(func() error {
			sub := *l
			sub.onRepo = emit
			repos, err := sub.Locate(gctx, root)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				logger.Warn("skipping unreadable root", logger.String("root", root), logger.Err(err))
				mu.Lock()
				rootErrs = append(rootErrs, err)
				mu.Unlock()
				return nil
			}
			mu.Lock()
			found = append(found, repos...)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return normalize(found), errors.Join(rootErrs...)
}

type walk struct {
	locator *Locator
	emit    func(Repository)
	found   []Repository
}

func (w *walk) dir(ctx context.Context, dir string, depth int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if depth == 0 {
			return fmt.Errorf("read root %s: %w", dir, err)
		}
		logger.Debug("skipping unreadable directory", logger.String("path", dir), logger.Err(err))
		if len(entries) == 0 {
			return nil
		}
	}

	for _, e := range entries {
		if e.Name() == ".git" {
			repo := Repository{Path: dir, Depth: depth}
			w.found = append(w.found, repo)
			if w.emit != nil {
				w.emit(repo)
			}
			break
		}
	}

	if w.locator.maxDepth > 0 && depth >= w.locator.maxDepth {
		return nil
	}

	for _, e := range entries {
		// Symlinks report a non-directory type and are never followed.
		if !e.IsDir() || e.Name() == ".git" {
			continue
		}
		child := filepath.Join(dir, e.Name())
		if w.locator.Excluded(child) {
			logger.Trace("pruned excluded directory", logger.String("path", child))
			continue
		}
		if err := w.dir(ctx, child, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// normalize sorts by path and drops duplicates, keeping the shallowest depth.
func normalize(repos []Repository) []Repository {
	sort.SliceStable(repos, func(i, j int) bool {
		if repos[i].Path == repos[j].Path {
			return repos[i].Depth < repos[j].Depth
		}
		return repos[i].Path < repos[j].Path
	})
	out := repos[:0]
	for i, r := range repos {
		if i > 0 && r.Path == repos[i-1].Path {
			continue
		}
		out = append(out, r)
	}
	if len(out) == 0 {
		return []Repository{}
	}
	return out
}

// Paths extracts the repository paths in order.
func Paths(repos []Repository) []string {
	paths := make([]string, len(repos))
	for i, r := range repos {
		paths[i] = r.Path
	}
	return paths
}
