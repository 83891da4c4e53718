// Package verify confirms installations by running a check command and
// matching its output.
package verify

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/blackwell-systems/envstate/internal/advisor"
	"github.com/blackwell-systems/envstate/internal/executor"
)

// DefaultTimeout bounds a verify command when none is configured.
const DefaultTimeout = 10 * time.Second

var versionPattern = regexp.MustCompile(`\d+(?:\.\d+)+`)

// Result is the outcome of one verification. Installed with !Success means
// the command ran but its output did not match the expected pattern. Ran is
// false when the command could not be started, timed out or was cancelled;
// Installed is then false without proving absence.
type Result struct {
	Name      string `json:"name"`
	Ran       bool   `json:"ran"`
	Installed bool   `json:"installed"`
	Success   bool   `json:"success"`
	Version   string `json:"version,omitempty"`
	Command   string `json:"command"`
	Output    string `json:"output,omitempty"`
	Message   string `json:"message"`
}

// Mismatch reports a command that ran but did not print what was expected.
func (r Result) Mismatch() bool {
	return r.Installed && !r.Success
}

// Report aggregates a VerifyAll run.
type Report struct {
	Results   []Result `json:"results"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
}

// Verifier runs verify commands through an executor.Runner.
type Verifier struct {
	runner  executor.Runner
	timeout time.Duration
	logger  *slog.Logger
}

// New returns a Verifier. A zero timeout uses DefaultTimeout.
func New(r executor.Runner, timeout time.Duration, logger *slog.Logger) *Verifier {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{runner: r, timeout: timeout, logger: logger}
}

// Verify runs dep.VerifyCommand, or "<name> --version" when none is given.
// It never returns an error: failures are reported in the Result.
func (v *Verifier) Verify(ctx context.Context, dep advisor.Dependency) Result {
	command := strings.TrimSpace(dep.VerifyCommand)
	if command == "" {
		command = dep.Name + " --version"
	}
	res := Result{Name: dep.Name, Command: command}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()
	out, err := v.runner.Run(ctx, command, "", nil)
	combined := strings.TrimSpace(out.Stdout + "\n" + out.Stderr)

	switch {
	case err != nil:
		res.Message = fmt.Sprintf("verification command could not run: %v", err)
		v.logger.Debug("verify failed", "package", dep.Name, "command", command, "err", err)
		return res
	case out.ExitCode != 0:
		res.Ran = true
		res.Message = fmt.Sprintf("verification command exited with code %d", out.ExitCode)
		res.Output = combined
		return res
	}

	res.Ran = true
	res.Installed = true
	res.Output = combined
	res.Version = versionPattern.FindString(combined)
	res.Success = matches(dep.ExpectedPattern, combined)
	if res.Success {
		res.Message = "verified"
		if res.Version != "" {
			res.Message = "verified version " + res.Version
		}
	} else {
		res.Message = fmt.Sprintf("output did not match expected pattern %q", dep.ExpectedPattern)
	}
	return res
}

// VerifyAll verifies each dependency in order. Each result is also sent on
// progress when it is non-nil; sends stop when ctx is cancelled.
func (v *Verifier) VerifyAll(ctx context.Context, deps []advisor.Dependency, progress chan<- Result) Report {
	var rep Report
	for _, d := range deps {
		res := v.Verify(ctx, d)
		rep.Results = append(rep.Results, res)
		if res.Success {
			rep.Succeeded++
		} else {
			rep.Failed++
		}
		if progress != nil {
			select {
			case progress <- res:
			case <-ctx.Done():
			}
		}
	}
	return rep
}

// GenerateReport formats a Report for display.
func GenerateReport(rep Report) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Verification: %d passed, %d failed, %d total\n", rep.Succeeded, rep.Failed, len(rep.Results))
	for _, r := range rep.Results {
		mark := "✓"
		switch {
		case r.Mismatch():
			mark = "!"
		case !r.Success:
			mark = "✗"
		}
		fmt.Fprintf(&sb, "  %s %s: %s\n", mark, r.Name, r.Message)
	}
	return sb.String()
}

// matches tests output against a case-insensitive pattern. An empty pattern
// always matches; a pattern that is not a valid regexp is matched literally.
func matches(pattern, output string) bool {
	if pattern == "" {
		return true
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return strings.Contains(strings.ToLower(output), strings.ToLower(pattern))
	}
	return re.MatchString(output)
}
