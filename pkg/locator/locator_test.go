package locator

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mkrepo creates dir/.git (as a directory) under root.
func mkrepo(t *testing.T, root, rel string) string {
	t.Helper()
	dir := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git", "hooks"), 0o750))
	return dir
}

func mkdir(t *testing.T, root, rel string) string {
	t.Helper()
	dir := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(dir, 0o750))
	return dir
}

func TestLocate_FindsRepositoriesSorted(t *testing.T) {
	root := t.TempDir()
	b := mkrepo(t, root, "work/b")
	a := mkrepo(t, root, "work/a")
	nested := mkrepo(t, root, "work/a/libs/inner")
	mkdir(t, root, "work/empty")

	repos, err := New(Options{}).Locate(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, []string{a, nested, b}, Paths(repos))
	assert.Equal(t, 2, repos[0].Depth)
	assert.Equal(t, 4, repos[1].Depth)
}

func TestLocate_RootIsRepository(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0o750))

	repos, err := New(Options{}).Locate(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, repos, 1)
	assert.Equal(t, 0, repos[0].Depth)
}

func TestLocate_GitFileCounts(t *testing.T) {
	root := t.TempDir()
	wt := mkdir(t, root, "feature")
	require.NoError(t, os.WriteFile(filepath.Join(wt, ".git"), []byte("gitdir: /elsewhere\n"), 0o600))

	repos, err := New(Options{}).Locate(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, []string{wt}, Paths(repos))
}

func TestLocate_ExcludedDirectoriesArePruned(t *testing.T) {
	root := t.TempDir()
	keep := mkrepo(t, root, "app")
	mkrepo(t, root, "app/node_modules/left-pad")
	mkrepo(t, root, "app/node_modules/.pnpm/deep/pkg")
	mkrepo(t, root, ".venv/src/thing")
	mkrepo(t, root, "proj/target/checkout")
	mkrepo(t, root, "proj/.svn/mirror")

	l := New(Options{})
	repos, err := l.Locate(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, []string{keep}, Paths(repos))

	for _, r := range repos {
		rel, err := filepath.Rel(root, r.Path)
		require.NoError(t, err)
		for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
			_, excluded := l.names[part]
			assert.False(t, excluded, "%s lies inside excluded directory %s", r.Path, part)
		}
	}
}

func TestLocate_NestedGitInsideGitIgnored(t *testing.T) {
	root := t.TempDir()
	repo := mkrepo(t, root, "repo")
	// Git internals (e.g. modules/) may carry their own .git-shaped trees.
	require.NoError(t, os.MkdirAll(filepath.Join(repo, ".git", "modules", "sub", ".git"), 0o750))
	require.NoError(t, os.MkdirAll(filepath.Join(repo, ".git", "worktrees", "x", ".git"), 0o750))

	repos, err := New(Options{}).Locate(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, []string{repo}, Paths(repos))
}

func TestLocate_MaxDepth(t *testing.T) {
	root := t.TempDir()
	shallow := mkrepo(t, root, "a")
	mid := mkrepo(t, root, "x/b")
	mkrepo(t, root, "x/y/c")

	tests := []struct {
		depth    int
		expected []string
	}{
		{depth: 1, expected: []string{shallow}},
		{depth: 2, expected: []string{shallow, mid}},
		{depth: 0, expected: []string{shallow, mid, filepath.Join(root, "x", "y", "c")}},
	}
	for _, tt := range tests {
		repos, err := New(Options{MaxDepth: tt.depth}).Locate(context.Background(), root)
		require.NoError(t, err)
		assert.Equal(t, tt.expected, Paths(repos), "max depth %d", tt.depth)
	}
}

func TestLocate_Deterministic(t *testing.T) {
	root := t.TempDir()
	for _, rel := range []string{"z", "m/n", "a", "m/n/o", "q/r/s/t"} {
		mkrepo(t, root, rel)
	}
	l := New(Options{})
	first, err := l.Locate(context.Background(), root)
	require.NoError(t, err)
	second, err := l.Locate(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	seen := map[string]bool{}
	for _, r := range first {
		assert.False(t, seen[r.Path], "duplicate %s", r.Path)
		seen[r.Path] = true
	}
}

func TestLocate_SymlinksNotFollowed(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	root := t.TempDir()
	other := t.TempDir()
	mkrepo(t, other, "outside")
	require.NoError(t, os.Symlink(other, filepath.Join(root, "link")))

	repos, err := New(Options{}).Locate(context.Background(), root)
	require.NoError(t, err)
	assert.Empty(t, repos)
}

func TestLocate_UnreadableSubdirectorySkipped(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced")
	}
	root := t.TempDir()
	ok := mkrepo(t, root, "ok")
	locked := mkdir(t, root, "locked")
	mkrepo(t, locked, "hidden")
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o750) })

	repos, err := New(Options{}).Locate(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, []string{ok}, Paths(repos))
}

func TestLocate_RootErrors(t *testing.T) {
	_, err := New(Options{}).Locate(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o600))
	_, err = New(Options{}).Locate(context.Background(), file)
	assert.Error(t, err)
}

func TestLocate_ContextCanceled(t *testing.T) {
	root := t.TempDir()
	mkrepo(t, root, "a")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(Options{}).Locate(ctx, root)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLocate_ExtraExclusions(t *testing.T) {
	root := t.TempDir()
	keep := mkrepo(t, root, "src/app")
	mkrepo(t, root, "fixtures/repo")
	mkrepo(t, root, "archive/2019/old")

	l := New(Options{
		ExtraExcludeNames: []string{"fixtures"},
		ExtraExcludeGlobs: []string{"**/archive/*"},
	})
	repos, err := l.Locate(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, []string{keep}, Paths(repos))
}

func TestNew_InvalidGlobDropped(t *testing.T) {
	l := New(Options{ExcludeGlobs: []string{"[unclosed", "/proc"}})
	assert.Equal(t, []string{"/proc"}, l.globs)
}

func TestExcluded_SystemPaths(t *testing.T) {
	l := New(Options{})
	assert.True(t, l.Excluded(filepath.FromSlash("/proc")))
	assert.True(t, l.Excluded(filepath.FromSlash("/var/log")))
	assert.True(t, l.Excluded(filepath.FromSlash("/Users/dev/Library/Caches")))
	assert.False(t, l.Excluded(filepath.FromSlash("/var/lib")))
	assert.False(t, l.Excluded(filepath.FromSlash("/home/dev/code")))
}

func TestLocateAll_MergesAndDedupes(t *testing.T) {
	root := t.TempDir()
	a := mkrepo(t, root, "one/a")
	b := mkrepo(t, root, "two/b")

	var mu sync.Mutex
	var seen []string
	l := New(Options{
		Concurrency: 2,
		OnRepository: func(r Repository) {
			mu.Lock()
			seen = append(seen, r.Path)
			mu.Unlock()
		},
	})

	// Overlapping roots report shared repositories once.
	repos, err := l.LocateAll(context.Background(), []string{
		filepath.Join(root, "two"),
		root,
		filepath.Join(root, "one"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{a, b}, Paths(repos))
	assert.Len(t, seen, 4)
}

func TestLocateAll_BadRootDoesNotAbort(t *testing.T) {
	root := t.TempDir()
	a := mkrepo(t, root, "a")

	repos, err := New(Options{}).LocateAll(context.Background(), []string{
		filepath.Join(root, "nope"),
		root,
	})
	assert.Error(t, err)
	assert.Equal(t, []string{a}, Paths(repos))
}
