package scanner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/fulmenhq/leakhook/pkg/logger"
)

// leaksExitCode is the exit status Verify asks the scanner to use when it
// finds leaks.
const leaksExitCode = 1

// Verification is the result of scanning the fixture.
type Verification struct {
	Findings int    `json:"findings" yaml:"findings"`
	Output   string `json:"-" yaml:"-"`
}

// Verify runs the scanner against the fake-credentials fixture and succeeds
// only when the scanner reports leaks. A scanner that passes the fixture
// would also pass real secrets.
func Verify(ctx context.Context, bin, configPath string) (*Verification, error) {
	dir, err := os.MkdirTemp("", "leakhook-verify-*")
	if err != nil {
		return nil, fmt.Errorf("create verification dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	src := filepath.Join(dir, "src")
	if err := os.MkdirAll(src, 0o750); err != nil {
		return nil, fmt.Errorf("create verification dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(src, FixtureName), fixture, 0o600); err != nil {
		return nil, fmt.Errorf("write fixture: %w", err)
	}
	report := filepath.Join(dir, "report.json")

	args := []string{
		"detect", "--no-git", "--redact",
		"--source", src,
		"--report-format", "json",
		"--report-path", report,
		"--exit-code", fmt.Sprint(leaksExitCode),
	}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}

	logger.Debug("verifying scanner against fixture", logger.String("bin", bin), logger.String("config", configPath))
	// #nosec G204 -- bin comes from ResolveBinary
	cmd := exec.CommandContext(ctx, bin, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	runErr := cmd.Run()

	v := &Verification{Output: strings.TrimSpace(out.String())}
	var exitErr *exec.ExitError
	switch {
	case runErr == nil:
		return v, fmt.Errorf("scanner reported no leaks in the fake-credentials fixture; check the scanner configuration")
	case errors.As(runErr, &exitErr) && exitErr.ExitCode() == leaksExitCode:
	default:
		return v, fmt.Errorf("run scanner: %w", runErr)
	}

	v.Findings = countFindings(report)
	return v, nil
}

// countFindings reads a gitleaks JSON report. An unreadable report counts as
// zero; the exit status is authoritative.
func countFindings(path string) int {
	data, err := os.ReadFile(path) // #nosec G304 -- report written to our temp dir
	if err != nil {
		return 0
	}
	var findings []json.RawMessage
	if err := json.Unmarshal(data, &findings); err != nil {
		return 0
	}
	return len(findings)
}
