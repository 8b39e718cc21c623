package hooks

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/aymerick/raymond"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

// Hook names leakhook manages.
const (
	PreCommit = "pre-commit"
	CommitMsg = "commit-msg"
)

// HookNames lists the native hooks installed into every repository.
var HookNames = []string{PreCommit, CommitMsg}

// Template file names inside a template directory. The block template is
// optional; the embedded one is used when it is absent.
const (
	PreCommitTemplate = "pre-commit.hbs"
	CommitMsgTemplate = "commit-msg.hbs"
	BlockTemplate     = "block.hbs"
)

//go:embed templates/*.hbs
var embedded embed.FS

// TemplateData is substituted into hook templates.
type TemplateData struct {
	ScannerBinary string
	ConfigPath    string
}

func (d TemplateData) context() map[string]interface{} {
	scanner := d.ScannerBinary
	if scanner == "" {
		scanner = "gitleaks"
	}
	return map[string]interface{}{
		"scanner": scanner,
		"config":  d.ConfigPath,
	}
}

// TemplateSet holds rendered hook bodies.
type TemplateSet struct {
	PreCommit []byte
	CommitMsg []byte
	// Block is the scanner invocation injected into hook-manager entry points.
	Block []byte
}

// Body returns the rendered template for a native hook name.
func (t *TemplateSet) Body(name string) []byte {
	switch name {
	case PreCommit:
		return t.PreCommit
	case CommitMsg:
		return t.CommitMsg
	}
	return nil
}

// DefaultTemplates returns the embedded template sources keyed by file name.
func DefaultTemplates() map[string][]byte {
	out := make(map[string][]byte, 3)
	for _, name := range []string{PreCommitTemplate, CommitMsgTemplate, BlockTemplate} {
		data, err := embedded.ReadFile(path.Join("templates", name))
		if err != nil {
			panic(fmt.Sprintf("embedded template %s: %v", name, err))
		}
		out[name] = data
	}
	return out
}

// WriteDefaultTemplates materialises the embedded templates into fsys. Existing
// files are left alone unless force is set. It returns the names written.
func WriteDefaultTemplates(fsys billy.Filesystem, force bool) ([]string, error) {
	var written []string
	for _, name := range []string{PreCommitTemplate, CommitMsgTemplate, BlockTemplate} {
		if !force {
			if _, err := fsys.Stat(name); err == nil {
				continue
			}
		}
		if err := util.WriteFile(fsys, name, DefaultTemplates()[name], 0o644); err != nil {
			return written, fmt.Errorf("write template %s: %w", name, err)
		}
		written = append(written, name)
	}
	return written, nil
}

// LoadTemplates reads and renders the hook templates from fsys. A missing
// pre-commit or commit-msg template yields an error wrapping ErrMissingTemplate.
func LoadTemplates(fsys billy.Filesystem, data TemplateData) (*TemplateSet, error) {
	ctx := data.context()
	set := &TemplateSet{}

	for _, tc := range []struct {
		name string
		dst  *[]byte
	}{
		{PreCommitTemplate, &set.PreCommit},
		{CommitMsgTemplate, &set.CommitMsg},
	} {
		src, err := util.ReadFile(fsys, tc.name)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) || os.IsNotExist(err) {
				return nil, &Error{Kind: KindMissingTemplate, Op: "load template", Path: fsys.Join(fsys.Root(), tc.name), Err: ErrMissingTemplate}
			}
			return nil, &Error{Kind: KindMissingTemplate, Op: "load template", Path: fsys.Join(fsys.Root(), tc.name), Err: fmt.Errorf("%w: %w", ErrMissingTemplate, err)}
		}
		out, err := render(tc.name, src, ctx)
		if err != nil {
			return nil, err
		}
		*tc.dst = out
	}

	blockSrc, err := util.ReadFile(fsys, BlockTemplate)
	if err != nil {
		blockSrc = DefaultTemplates()[BlockTemplate]
	}
	if set.Block, err = render(BlockTemplate, blockSrc, ctx); err != nil {
		return nil, err
	}
	return set, nil
}

func render(name string, src []byte, ctx map[string]interface{}) ([]byte, error) {
	tpl, err := raymond.Parse(string(src))
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", name, err)
	}
	tpl.RegisterHelper("shellquote", ShellQuote)
	out, err := tpl.Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("render template %s: %w", name, err)
	}
	// Without the marker a hook would be replaced on every run.
	if !HasScannerReference([]byte(out)) {
		return nil, fmt.Errorf("template %s does not reference %s", name, ScannerMarker)
	}
	return []byte(out), nil
}

// ShellQuote returns s as a single POSIX shell word. Templates call it as
// {{{shellquote scanner}}}.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
