// Package report renders per-repository progress and run summaries as text,
// JSON or YAML.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/fulmenhq/leakhook/pkg/hooks"
	"github.com/fulmenhq/leakhook/pkg/locator"
)

// Format selects the summary encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates a --format value.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatText, FormatJSON, FormatYAML:
		return f, nil
	case "":
		return FormatText, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text, json or yaml)", s)
	}
}

// RepoReport is the serialisable form of a hooks.Result.
type RepoReport struct {
	Path           string   `json:"path" yaml:"path"`
	State          string   `json:"state,omitempty" yaml:"state,omitempty"`
	Strategy       string   `json:"strategy,omitempty" yaml:"strategy,omitempty"`
	HooksPath      string   `json:"hooks_path,omitempty" yaml:"hooks_path,omitempty"`
	HooksPathScope string   `json:"hooks_path_scope,omitempty" yaml:"hooks_path_scope,omitempty"`
	Outcome        string   `json:"outcome" yaml:"outcome"`
	Actions        []string `json:"actions,omitempty" yaml:"actions,omitempty"`
	Error          string   `json:"error,omitempty" yaml:"error,omitempty"`
}

// FromResult converts a reconciliation result.
func FromResult(r hooks.Result) RepoReport {
	rep := RepoReport{
		Path:    r.Repo,
		Outcome: string(r.Outcome),
		Actions: r.Actions,
		Error:   r.Cause(),
	}
	// Skipped repositories were never classified.
	if r.Outcome != hooks.OutcomeSkipped {
		rep.State = r.State.String()
		rep.Strategy = string(r.Strategy)
		rep.HooksPath = r.HooksPath
		rep.HooksPathScope = string(r.HooksPathScope)
	}
	return rep
}

// Counts are the run-level outcome counters.
type Counts struct {
	Found     int `json:"found" yaml:"found"`
	Updated   int `json:"updated" yaml:"updated"`
	Unchanged int `json:"unchanged" yaml:"unchanged"`
	Failed    int `json:"failed" yaml:"failed"`
	Skipped   int `json:"skipped" yaml:"skipped"`
}

// Run is the summary of one leakhook run.
type Run struct {
	ID           string       `json:"run_id" yaml:"run_id"`
	StartedAt    time.Time    `json:"started_at" yaml:"started_at"`
	Duration     string       `json:"duration" yaml:"duration"`
	DryRun       bool         `json:"dry_run" yaml:"dry_run"`
	Interrupted  bool         `json:"interrupted,omitempty" yaml:"interrupted,omitempty"`
	Roots        []string     `json:"roots" yaml:"roots"`
	Counts       Counts       `json:"counts" yaml:"counts"`
	Repositories []RepoReport `json:"repositories" yaml:"repositories"`
}

// NewRun starts a run record with a fresh ID.
func NewRun(roots []string, dryRun bool, started time.Time) *Run {
	return &Run{
		ID:        uuid.NewString(),
		StartedAt: started.UTC(),
		DryRun:    dryRun,
		Roots:     roots,
	}
}

// Complete fills the run from a reconciliation summary.
func (r *Run) Complete(sum *hooks.Summary, finished time.Time) {
	r.Counts.Found, r.Counts.Updated, r.Counts.Unchanged, r.Counts.Failed, r.Counts.Skipped = sum.Counts()
	r.Duration = finished.Sub(r.StartedAt).Round(time.Millisecond).String()
	r.Repositories = make([]RepoReport, 0, len(sum.Results))
	for _, res := range sum.Results {
		r.Repositories = append(r.Repositories, FromResult(res))
	}
}

// Write renders the run summary.
func Write(w io.Writer, run *Run, format Format, useColor bool) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, run)
	case FormatYAML:
		return writeYAML(w, run)
	default:
		_, err := io.WriteString(w, NewPrinter(w, useColor).Summary(run))
		return err
	}
}

// WriteRepositories renders a discovery listing.
func WriteRepositories(w io.Writer, repos []locator.Repository, format Format) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, repos)
	case FormatYAML:
		return writeYAML(w, repos)
	default:
		for _, r := range repos {
			if _, err := fmt.Fprintln(w, r.Path); err != nil {
				return err
			}
		}
		return nil
	}
}

// WriteInspection renders a single dry-run result.
func WriteInspection(w io.Writer, res hooks.Result, format Format, useColor bool) error {
	rep := FromResult(res)
	switch format {
	case FormatJSON:
		return writeJSON(w, rep)
	case FormatYAML:
		return writeYAML(w, rep)
	default:
		_, err := io.WriteString(w, NewPrinter(w, useColor).Inspection(rep))
		return err
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeYAML(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
