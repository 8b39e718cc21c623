package scanner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeBinary(t *testing.T, dir, name, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script binaries are unix only")
	}
	require.NoError(t, os.MkdirAll(dir, 0o750))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755)) // #nosec G306 -- test executable
	return path
}

func TestResolveBinary(t *testing.T) {
	binDir := t.TempDir()
	managed := fakeBinary(t, binDir, "gitleaks", "exit 0\n")
	versioned := fakeBinary(t, filepath.Join(binDir, "scanx@8.21.0"), "scanx", "exit 0\n")
	override := fakeBinary(t, t.TempDir(), "custom", "exit 0\n")

	t.Run("managed flat layout", func(t *testing.T) {
		p, err := ResolveBinary("gitleaks", ResolveOptions{BinDir: binDir})
		require.NoError(t, err)
		assert.Equal(t, managed, p)
	})

	t.Run("managed versioned layout", func(t *testing.T) {
		p, err := ResolveBinary("scanx", ResolveOptions{BinDir: binDir})
		require.NoError(t, err)
		assert.Equal(t, versioned, p)
	})

	t.Run("env override wins", func(t *testing.T) {
		t.Setenv("LEAKHOOK_TEST_SCANNER", override)
		p, err := ResolveBinary("gitleaks", ResolveOptions{EnvOverride: "LEAKHOOK_TEST_SCANNER", BinDir: binDir})
		require.NoError(t, err)
		assert.Equal(t, override, p)
	})

	t.Run("invalid env override falls through", func(t *testing.T) {
		t.Setenv("LEAKHOOK_TEST_SCANNER", filepath.Join(t.TempDir(), "nope"))
		p, err := ResolveBinary("gitleaks", ResolveOptions{EnvOverride: "LEAKHOOK_TEST_SCANNER", BinDir: binDir})
		require.NoError(t, err)
		assert.Equal(t, managed, p)
	})

	t.Run("absolute name", func(t *testing.T) {
		p, err := ResolveBinary(override, ResolveOptions{})
		require.NoError(t, err)
		assert.Equal(t, override, p)
	})

	t.Run("PATH fallback", func(t *testing.T) {
		pathDir := t.TempDir()
		onPath := fakeBinary(t, pathDir, "pathscan", "exit 0\n")
		t.Setenv("PATH", pathDir)
		p, err := ResolveBinary("pathscan", ResolveOptions{AllowPath: true})
		require.NoError(t, err)
		assert.Equal(t, onPath, p)

		_, err = ResolveBinary("pathscan", ResolveOptions{AllowPath: false})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("not found lists suggestions", func(t *testing.T) {
		t.Setenv("PATH", t.TempDir())
		_, err := ResolveBinary("gitleaks", ResolveOptions{EnvOverride: EnvScannerBin, BinDir: t.TempDir(), AllowPath: true})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNotFound))
		assert.Contains(t, err.Error(), EnvScannerBin)
		assert.Contains(t, err.Error(), "PATH")
	})
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gitleaks.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfigFile(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
		check   func(t *testing.T, s *ConfigSummary)
	}{
		{
			name: "rules and allowlist",
			content: `title = "team config"

[[rules]]
id = "internal-token"
description = "Internal API token"
regex = '''itk_[a-z0-9]{32}'''
keywords = ["itk_"]

[[rules]]
id = "pem-files"
path = '''\.pem$'''

[allowlist]
paths = ['''testdata/''']
`,
			check: func(t *testing.T, s *ConfigSummary) {
				assert.Equal(t, "team config", s.Title)
				assert.Equal(t, 2, s.Rules)
				assert.Equal(t, []string{"internal-token", "pem-files"}, s.RuleIDs)
				assert.True(t, s.HasAllowlist)
				assert.False(t, s.ExtendsDefault)
			},
		},
		{
			name: "extends defaults only",
			content: `[extend]
useDefault = true
`,
			check: func(t *testing.T, s *ConfigSummary) {
				assert.True(t, s.ExtendsDefault)
				assert.Zero(t, s.Rules)
				assert.False(t, s.HasAllowlist)
			},
		},
		{name: "malformed toml", content: "title = \n[[rules", wantErr: "parse scanner config"},
		{name: "rule without id", content: "[[rules]]\nregex = 'x'\n", wantErr: "has no id"},
		{name: "rule without matcher", content: "[[rules]]\nid = 'empty'\n", wantErr: "neither regex nor path"},
		{name: "bad regex", content: "[[rules]]\nid = 'bad'\nregex = '(unclosed'\n", wantErr: "rule bad"},
		{name: "nothing to scan with", content: "title = 'empty'\n", wantErr: "no rules"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := LoadConfigFile(writeConfig(t, tt.content))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, s)
		})
	}

	_, err := LoadConfigFile(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFixture(t *testing.T) {
	f := Fixture()
	assert.Contains(t, string(f), "BEGIN RSA PRIVATE KEY")
	assert.Contains(t, string(f), "AKIA")
	f[0] = 'X'
	assert.NotEqual(t, byte('X'), Fixture()[0], "Fixture returns a copy")
}

const reportingScanner = `out=""
cfg=""
while [ $# -gt 0 ]; do
  case "$1" in
    --report-path) out="$2"; shift ;;
    --config) cfg="$2"; shift ;;
  esac
  shift
done
printf '[{"RuleID":"aws-access-token"},{"RuleID":"github-pat"},{"RuleID":"private-key"}]' > "$out"
echo "config=$cfg"
exit 1
`

func TestVerify(t *testing.T) {
	dir := t.TempDir()

	t.Run("leaks found", func(t *testing.T) {
		bin := fakeBinary(t, dir, "reports", reportingScanner)
		v, err := Verify(context.Background(), bin, "/etc/gitleaks.toml")
		require.NoError(t, err)
		assert.Equal(t, 3, v.Findings)
		assert.Equal(t, "config=/etc/gitleaks.toml", v.Output)
	})

	t.Run("no leaks is a failure", func(t *testing.T) {
		bin := fakeBinary(t, dir, "clean", "exit 0\n")
		_, err := Verify(context.Background(), bin, "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no leaks")
	})

	t.Run("scanner error", func(t *testing.T) {
		bin := fakeBinary(t, dir, "broken", "echo 'unknown flag' >&2\nexit 126\n")
		v, err := Verify(context.Background(), bin, "")
		require.Error(t, err)
		assert.True(t, strings.Contains(v.Output, "unknown flag"))
	})

	t.Run("missing binary", func(t *testing.T) {
		_, err := Verify(context.Background(), filepath.Join(dir, "absent"), "")
		assert.Error(t, err)
	})
}
