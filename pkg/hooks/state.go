package hooks

import (
	"fmt"

	"github.com/fulmenhq/leakhook/internal/gitctx"
)

// State is the hook configuration of a repository, derived on demand.
type State int

const (
	// StateNative means no hook manager is present; hooks live in the git dir.
	StateNative State = iota
	// StateBypass means core.hooksPath points at a directory that does not
	// exist, so no hook runs at all.
	StateBypass
	// StateManagerConfigured means the hook manager's pre-commit already runs the scanner.
	StateManagerConfigured
	// StateManagerNeedsInjection means the hook manager's pre-commit exists
	// without the scanner.
	StateManagerNeedsInjection
	// StateManagerNeedsEntry means the hook manager is installed but has no pre-commit.
	StateManagerNeedsEntry
	// StateManagerBroken means the hook manager directory lacks its runtime
	// helper. Reconciled like StateNative.
	StateManagerBroken
)

func (s State) String() string {
	switch s {
	case StateNative:
		return "native"
	case StateBypass:
		return "bypass"
	case StateManagerConfigured:
		return "manager-configured"
	case StateManagerNeedsInjection:
		return "manager-needs-injection"
	case StateManagerNeedsEntry:
		return "manager-needs-entry"
	case StateManagerBroken:
		return "manager-broken"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in JSON and YAML output.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Strategy is the reconciliation applied for a State.
type Strategy string

const (
	StrategyNone         Strategy = "none"
	StrategyBypassRepair Strategy = "bypass-repair"
	StrategyInject       Strategy = "inject"
	StrategyCreateEntry  Strategy = "create-entry"
	StrategyNative       Strategy = "native"
)

// Strategy returns the strategy reconciliation applies in state s.
func (s State) Strategy() Strategy {
	switch s {
	case StateBypass:
		return StrategyBypassRepair
	case StateManagerConfigured:
		return StrategyNone
	case StateManagerNeedsInjection:
		return StrategyInject
	case StateManagerNeedsEntry:
		return StrategyCreateEntry
	default:
		return StrategyNative
	}
}

// Outcome is the per-repository result of reconciliation.
type Outcome string

const (
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
)

// Result records what reconciliation did (or, in dry-run mode, would do) to
// one repository.
type Result struct {
	Repo     string
	State    State
	Strategy Strategy

	// HooksPath is the resolved core.hooksPath seen during classification and
	// HooksPathScope the config level that set it; both empty when unset.
	HooksPath      string
	HooksPathScope gitctx.Scope
	Outcome        Outcome
	Actions        []string
	DryRun         bool
	Err            error
}

// Cause returns the failure message, or "" when reconciliation succeeded.
func (r Result) Cause() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

func (r *Result) action(format string, args ...interface{}) {
	r.Actions = append(r.Actions, fmt.Sprintf(format, args...))
}
