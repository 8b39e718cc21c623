package hooks

import (
	"errors"
	"fmt"
	"io/fs"
)

// Kind classifies reconciliation errors.
type Kind int

const (
	KindUnknown Kind = iota
	KindPermissionDenied
	KindMissingTemplate
	KindStructuralAnomaly
	KindBypassMisconfiguration
	KindWriteFailed
)

func (k Kind) String() string {
	switch k {
	case KindPermissionDenied:
		return "PermissionDenied"
	case KindMissingTemplate:
		return "MissingTemplate"
	case KindStructuralAnomaly:
		return "StructuralAnomaly"
	case KindBypassMisconfiguration:
		return "BypassMisconfiguration"
	case KindWriteFailed:
		return "WriteFailed"
	default:
		return "Unknown"
	}
}

// ErrMissingTemplate is wrapped by errors from LoadTemplates when a template
// file is absent.
var ErrMissingTemplate = errors.New("hook template missing")

// Error describes a failed reconciliation step.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var he *Error
	if errors.As(err, &he) {
		return he.Kind
	}
	if errors.Is(err, ErrMissingTemplate) {
		return KindMissingTemplate
	}
	return KindUnknown
}

// IsPermission reports whether err stems from a permission failure.
func IsPermission(err error) bool {
	return KindOf(err) == KindPermissionDenied || errors.Is(err, fs.ErrPermission)
}

// fsError wraps a filesystem failure, classifying permission problems.
func fsError(op, path string, err error) *Error {
	kind := KindWriteFailed
	if errors.Is(err, fs.ErrPermission) {
		kind = KindPermissionDenied
	}
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}
