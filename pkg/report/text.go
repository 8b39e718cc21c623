package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/fulmenhq/leakhook/pkg/hooks"
)

const (
	outcomeWidth  = 9
	strategyWidth = 13
)

// Printer writes human-readable progress lines.
type Printer struct {
	w     io.Writer
	green *color.Color
	cyan  *color.Color
	red   *color.Color
	dim   *color.Color
	bold  *color.Color
	title cases.Caser
}

// NewPrinter creates a Printer. Colors are emitted only when useColor is set.
func NewPrinter(w io.Writer, useColor bool) *Printer {
	p := &Printer{
		w:     w,
		green: color.New(color.FgGreen),
		cyan:  color.New(color.FgCyan),
		red:   color.New(color.FgRed, color.Bold),
		dim:   color.New(color.Faint),
		bold:  color.New(color.Bold),
		title: cases.Title(language.English),
	}
	for _, c := range []*color.Color{p.green, p.cyan, p.red, p.dim, p.bold} {
		if useColor {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// StrategyLabel renders a strategy for people: "bypass-repair" becomes
// "Bypass Repair".
func (p *Printer) StrategyLabel(s hooks.Strategy) string {
	if s == "" {
		return "-"
	}
	return p.title.String(strings.ReplaceAll(string(s), "-", " "))
}

// Progress writes one line for a reconciled repository.
func (p *Printer) Progress(r hooks.Result) {
	_, _ = io.WriteString(p.w, p.ProgressLine(r)+"\n")
}

// ProgressLine formats the path, strategy and outcome of one repository.
func (p *Printer) ProgressLine(r hooks.Result) string {
	outcome := runewidth.FillRight(string(r.Outcome), outcomeWidth)
	switch r.Outcome {
	case hooks.OutcomeUpdated:
		outcome = p.green.Sprint(outcome)
	case hooks.OutcomeFailed:
		outcome = p.red.Sprint(outcome)
	case hooks.OutcomeSkipped:
		outcome = p.cyan.Sprint(outcome)
	default:
		outcome = p.dim.Sprint(outcome)
	}
	strategy := "-"
	if r.Outcome != hooks.OutcomeSkipped {
		strategy = p.StrategyLabel(r.Strategy)
	}
	line := fmt.Sprintf("%s %s %s", outcome, runewidth.FillRight(strategy, strategyWidth), r.Repo)
	if r.DryRun && len(r.Actions) > 0 {
		line += p.dim.Sprint(" (dry run)")
	}
	if cause := r.Cause(); cause != "" {
		line += "\n    " + p.red.Sprint(cause)
	}
	return line
}

// Summary renders the run totals in a box, followed by the failures.
func (p *Printer) Summary(run *Run) string {
	title := "leakhook run " + shortID(run.ID)
	if run.DryRun {
		title += " (dry run)"
	}
	if run.Interrupted {
		title += " (interrupted)"
	}
	rows := [][2]string{
		{"Found", fmt.Sprint(run.Counts.Found)},
		{"Updated", fmt.Sprint(run.Counts.Updated)},
		{"Unchanged", fmt.Sprint(run.Counts.Unchanged)},
		{"Failed", fmt.Sprint(run.Counts.Failed)},
		{"Skipped", fmt.Sprint(run.Counts.Skipped)},
		{"Duration", run.Duration},
	}
	lines := []string{title, ""}
	for _, row := range rows {
		lines = append(lines, runewidth.FillRight(row[0], 11)+row[1])
	}

	var sb strings.Builder
	sb.WriteString(Box(lines))
	var failed []RepoReport
	for _, r := range run.Repositories {
		if r.Outcome == string(hooks.OutcomeFailed) {
			failed = append(failed, r)
		}
	}
	if len(failed) > 0 {
		sb.WriteString(p.bold.Sprint("Failed repositories:") + "\n")
		for _, r := range failed {
			fmt.Fprintf(&sb, "  %s\n    %s\n", r.Path, p.red.Sprint(r.Error))
		}
	}
	return sb.String()
}

// Inspection renders one repository's classification and planned actions.
func (p *Printer) Inspection(r RepoReport) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s\n", p.bold.Sprint("Repository:"), r.Path)
	fmt.Fprintf(&sb, "%s %s\n", p.bold.Sprint("State:     "), orDash(r.State))
	fmt.Fprintf(&sb, "%s %s\n", p.bold.Sprint("Strategy:  "), p.StrategyLabel(hooks.Strategy(r.Strategy)))
	if r.HooksPath != "" {
		fmt.Fprintf(&sb, "%s %s (%s)\n", p.bold.Sprint("Hooks path:"), r.HooksPath, r.HooksPathScope)
	}
	fmt.Fprintf(&sb, "%s %s\n", p.bold.Sprint("Outcome:   "), r.Outcome)
	if len(r.Actions) == 0 {
		sb.WriteString("No changes needed.\n")
	} else {
		sb.WriteString(p.bold.Sprint("Planned actions:") + "\n")
		for _, a := range r.Actions {
			fmt.Fprintf(&sb, "  - %s\n", a)
		}
	}
	if r.Error != "" {
		fmt.Fprintf(&sb, "%s %s\n", p.red.Sprint("Error:"), r.Error)
	}
	return sb.String()
}

// Box draws lines inside a single-line border. Wide runes are measured with
// go-runewidth so the right edge stays aligned.
func Box(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	width := 0
	trimmed := make([]string, len(lines))
	for i, l := range lines {
		trimmed[i] = strings.TrimRight(l, " ")
		if w := runewidth.StringWidth(trimmed[i]); w > width {
			width = w
		}
	}
	border := strings.Repeat("─", width+2)

	var sb strings.Builder
	sb.WriteString("┌" + border + "┐\n")
	for _, l := range trimmed {
		sb.WriteString("│ " + runewidth.FillRight(l, width) + " │\n")
	}
	sb.WriteString("└" + border + "┘\n")
	return sb.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
